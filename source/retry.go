package source

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"navigator-system/model"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

// RetryOptions 上游抓取的超时与重试策略
type RetryOptions struct {
	// AttemptTimeout 单次抓取超时
	AttemptTimeout time.Duration
	// MaxAttempts 最多尝试次数 (含第一次)
	MaxAttempts uint
	// InitialInterval 指数退避的初始间隔
	InitialInterval time.Duration
	// MaxInterval 指数退避的最大间隔
	MaxInterval time.Duration
	// RatePerSecond 每秒允许的抓取次数, <= 0 表示不限速
	RatePerSecond float64
}

// DefaultRetryOptions 与 requests Retry(total=5, backoff_factor=1) 的行为接近
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		AttemptTimeout:  10 * time.Second,
		MaxAttempts:     5,
		InitialInterval: time.Second,
		MaxInterval:     16 * time.Second,
		RatePerSecond:   1,
	}
}

// Retrying 为数据源加上超时、限速和有限次数的指数退避重试
// 最终失败一律包装为 *UpstreamFetchError
type Retrying struct {
	src     Source
	opts    RetryOptions
	limiter *rate.Limiter
}

// WithRetry 包装数据源
func WithRetry(src Source, opts RetryOptions) *Retrying {
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 1
	}
	return &Retrying{
		src:     src,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Name 实现 Source
func (r *Retrying) Name() string { return r.src.Name() }

// Fetch 实现 Source
func (r *Retrying) Fetch(ctx context.Context, bbox model.BoundingBox, limit int) ([]RawFeature, error) {
	b := backoff.NewExponentialBackOff()
	if r.opts.InitialInterval > 0 {
		b.InitialInterval = r.opts.InitialInterval
	}
	if r.opts.MaxInterval > 0 {
		b.MaxInterval = r.opts.MaxInterval
	}

	attempt := 0
	operation := func() ([]RawFeature, error) {
		attempt++
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		attemptCtx := ctx
		if r.opts.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, r.opts.AttemptTimeout)
			defer cancel()
		}

		out, err := r.src.Fetch(attemptCtx, bbox, limit)
		if err != nil {
			if errors.Is(err, ErrUnsupportedCategory) || ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return out, nil
	}

	out, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.opts.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("上游抓取失败, 准备重试",
				slog.String("source", r.src.Name()),
				slog.Int("attempt", attempt),
				slog.Duration("retry_in", next),
				slog.String("error", err.Error()))
		}),
	)
	if err != nil {
		return nil, &UpstreamFetchError{Source: r.src.Name(), Err: err}
	}
	return out, nil
}
