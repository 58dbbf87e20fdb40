package model

// Admin 允许修改用户路径的管理员账号 (用于登录认证)
// 密码只保存 bcrypt hash, 来自配置文件
type Admin struct {
	Username     string `json:"username" yaml:"username"`
	PasswordHash string `json:"-" yaml:"password_hash"`
}
