package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"navigator-system/db"
	"navigator-system/model"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveDestinationValidation(t *testing.T) {
	nav, _ := newNavigator(t, nil, Config{})
	ctx := context.Background()

	tests := []struct {
		name  string
		input string
		p     orb.Point
	}{
		{"empty name", "  ", orb.Point{39.27, -6.81}},
		{"long name", strings.Repeat("馆", 101), orb.Point{39.27, -6.81}},
		{"latitude out of range", "Library", orb.Point{39.27, -91}},
		{"longitude out of range", "Library", orb.Point{181, -6.81}},
		{"nan", "Library", orb.Point{math.NaN(), -6.81}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := nav.SaveDestination(ctx, tt.input, tt.p)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
		})
	}
}

func TestDestinations(t *testing.T) {
	nav, _ := newNavigator(t, nil, Config{})
	ctx := context.Background()

	d, err := nav.SaveDestination(ctx, " Library ", orb.Point{39.27, -6.81})
	require.NoError(t, err)
	assert.Equal(t, "Library", d.Name)
	assert.Equal(t, orb.Point{39.27, -6.81}, d.Point())

	list, err := nav.ListDestinations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = nav.Destination(ctx, "Gym")
	assert.ErrorIs(t, err, db.ErrDestinationNotFound)

	ok, err := nav.RemoveDestination(ctx, "Library")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = nav.RemoveDestination(ctx, "Library")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRouteBetweenDestinations(t *testing.T) {
	nav, _ := newNavigator(t, nil, Config{})
	ctx := context.Background()

	_, err := nav.AddPath(ctx, []orb.Point{{0, 0}, {1, 0}, {1, 1}}, "")
	require.NoError(t, err)
	_, err = nav.SaveDestination(ctx, "Gate", orb.Point{0, 0.1})
	require.NoError(t, err)
	_, err = nav.SaveDestination(ctx, "Hall", orb.Point{1.1, 1})
	require.NoError(t, err)

	res, err := nav.RouteBetween(ctx, "Gate", "Hall")
	require.NoError(t, err)
	require.Equal(t, model.RouteFound, res.Status)
	assert.Equal(t, []orb.Point{{0, 0}, {1, 0}, {1, 1}}, res.Path)

	_, err = nav.RouteBetween(ctx, "Gate", "Nowhere")
	assert.ErrorIs(t, err, db.ErrDestinationNotFound)
}
