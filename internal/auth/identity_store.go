package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// IdentityStore 用户身份存储
type IdentityStore struct {
	db   *gorm.DB
	cost int
}

// NewIdentityStore 创建身份存储
func NewIdentityStore(db *gorm.DB) *IdentityStore {
	return &IdentityStore{db: db, cost: bcrypt.DefaultCost}
}

// Authenticate 校验用户名与密码。用户不存在与密码错误返回同一个错误。
func (s *IdentityStore) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := s.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.CheckPassword(user, password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return user, nil
}

// CheckPassword 校验密码
func (s *IdentityStore) CheckPassword(user *User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

// FindByID 按 ID 查询
func (s *IdentityStore) FindByID(ctx context.Context, id string) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindByUsername 按用户名查询
func (s *IdentityStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	clean := strings.TrimSpace(username)
	if clean == "" {
		return nil, ErrUserNotFound
	}
	var user User
	if err := s.db.WithContext(ctx).Where("username = ?", clean).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// List 按用户名排序列出全部用户
func (s *IdentityStore) List(ctx context.Context) ([]User, error) {
	var users []User
	err := s.db.WithContext(ctx).Order("username ASC").Find(&users).Error
	return users, err
}

// Create 创建用户并设置密码
func (s *IdentityStore) Create(ctx context.Context, user *User, password string) error {
	user.Username = strings.TrimSpace(user.Username)
	user.Email = strings.TrimSpace(strings.ToLower(user.Email))
	if err := s.ensureUnique(ctx, user.Username, user.Email, ""); err != nil {
		return err
	}
	if err := s.SetPassword(user, password); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(user).Error
}

// Save 保存用户资料（用户名、邮箱变更时检查唯一性）
func (s *IdentityStore) Save(ctx context.Context, user *User) error {
	user.Email = strings.TrimSpace(strings.ToLower(user.Email))
	if err := s.ensureUnique(ctx, user.Username, user.Email, user.ID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Save(user).Error
}

// SetPassword 只更新内存中的密码哈希，需调用 Save 持久化
func (s *IdentityStore) SetPassword(user *User, password string) error {
	if password == "" {
		return fmt.Errorf("auth: password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = string(hash)
	return nil
}

// Delete 删除用户
func (s *IdentityStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&User{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// TouchLastLogin 更新最后登录时间
func (s *IdentityStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).
		UpdateColumn("last_login", at.UTC()).Error
}

// BootstrapAdmin 初始管理员账号
type BootstrapAdmin struct {
	Username string
	Email    string
	Password string
}

// EnsureBootstrapAdmin 不存在任何管理员时创建初始管理员（幂等）
func (s *IdentityStore) EnsureBootstrapAdmin(ctx context.Context, admin BootstrapAdmin) (*User, bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("role = ?", RoleAdministrator).Count(&count).Error; err != nil {
		return nil, false, err
	}
	if count > 0 {
		return nil, false, nil
	}

	user := &User{
		Username: admin.Username,
		Email:    admin.Email,
		Name:     "Administrator",
		Role:     RoleAdministrator,
		IsActive: true,
	}
	if err := s.Create(ctx, user, admin.Password); err != nil {
		return nil, false, err
	}
	return user, true, nil
}

func (s *IdentityStore) ensureUnique(ctx context.Context, username, email, excludeID string) error {
	query := s.db.WithContext(ctx).Model(&User{}).Where("(username = ? OR email = ?)", username, email)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrUserExists
	}
	return nil
}
