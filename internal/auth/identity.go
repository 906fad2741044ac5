package auth

import (
	"errors"
	"time"

	"opsdash/internal/audit"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrInvalidCredentials 用户名或密码错误
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrUserInactive 账号已停用
	ErrUserInactive = errors.New("auth: account disabled")
	// ErrUserExists 用户名或邮箱已被占用
	ErrUserExists = errors.New("auth: username or email already exists")
	// ErrTokenInvalid 令牌无法解析或已过期
	ErrTokenInvalid = errors.New("auth: invalid token")
	// ErrTokenRevoked 令牌已注销
	ErrTokenRevoked = errors.New("auth: token revoked")
	// ErrProtectedAccount 不允许删除自己或内置管理员
	ErrProtectedAccount = errors.New("auth: protected account")
)

// Role 用户角色
type Role string

const (
	RoleStandard      Role = "Standard"
	RoleAdministrator Role = "Administrator"
)

// Valid 是否为已知角色
func (r Role) Valid() bool {
	return r == RoleStandard || r == RoleAdministrator
}

// Identity 当前操作者的只读视图，策略引擎只读取角色、句柄与激活状态
type Identity struct {
	ID     string `json:"id"`
	Handle string `json:"username"`
	Role   Role   `json:"role"`
	Active bool   `json:"is_active"`
}

// IsAdmin 是否为管理员
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdministrator
}

// AuditActor 转换为审计记录的身份引用
func (i *Identity) AuditActor() *audit.Actor {
	if i == nil {
		return nil
	}
	return &audit.Actor{ID: i.ID, Username: i.Handle}
}

// User 用户账号
type User struct {
	ID           string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Username     string     `gorm:"type:varchar(80);uniqueIndex;not null" json:"username"`
	Email        string     `gorm:"type:varchar(120);uniqueIndex;not null" json:"email"`
	Name         string     `gorm:"type:varchar(100)" json:"name"`
	PasswordHash string     `gorm:"type:varchar(128);not null" json:"-"`
	Role         Role       `gorm:"type:varchar(20);not null" json:"role"`
	IsActive     bool       `gorm:"not null" json:"is_active"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// BeforeCreate GORM 钩子：创建前设置 ID
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Role == "" {
		u.Role = RoleStandard
	}
	return nil
}

// Identity 转换为身份视图
func (u *User) Identity() *Identity {
	return &Identity{
		ID:     u.ID,
		Handle: u.Username,
		Role:   u.Role,
		Active: u.IsActive,
	}
}
