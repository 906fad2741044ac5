package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"opsdash/internal/audit"
	"opsdash/internal/logger"

	"go.uber.org/zap"
)

const (
	generatedPasswordLength = 12
	passwordAlphabet        = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"
)

// UserService 用户管理，所有变更都写审计
type UserService struct {
	store          *IdentityStore
	auditor        Auditor
	logger         *zap.Logger
	protectedAdmin string
}

// NewUserService 创建用户管理服务。protectedAdmin 为不可删除的内置管理员用户名。
func NewUserService(store *IdentityStore, auditor Auditor, protectedAdmin string, zl *zap.Logger) *UserService {
	if protectedAdmin == "" {
		protectedAdmin = "admin"
	}
	return &UserService{
		store:          store,
		auditor:        auditor,
		logger:         logger.OrNop(zl),
		protectedAdmin: protectedAdmin,
	}
}

// CreateUserInput 创建用户参数
type CreateUserInput struct {
	Username string `json:"username" binding:"required,max=80"`
	Email    string `json:"email" binding:"required,email,max=120"`
	Name     string `json:"name" binding:"max=100"`
	Password string `json:"password" binding:"required,min=8"`
	Role     Role   `json:"role"`
	Active   *bool  `json:"is_active"`
}

// UpdateUserInput 更新用户参数，nil 字段保持不变
type UpdateUserInput struct {
	Email         *string `json:"email" binding:"omitempty,email,max=120"`
	Name          *string `json:"name" binding:"omitempty,max=100"`
	Role          *Role   `json:"role"`
	Active        *bool   `json:"is_active"`
	ResetPassword bool    `json:"reset_password"`
}

// ProfileInput 个人资料修改参数；修改密码时必须提供当前密码
type ProfileInput struct {
	Email           *string `json:"email" binding:"omitempty,email,max=120"`
	Name            *string `json:"name" binding:"omitempty,max=100"`
	CurrentPassword string  `json:"current_password"`
	NewPassword     string  `json:"new_password" binding:"omitempty,min=8"`
}

// List 列出全部用户
func (s *UserService) List(ctx context.Context) ([]User, error) {
	return s.store.List(ctx)
}

// Get 查询单个用户
func (s *UserService) Get(ctx context.Context, id string) (*User, error) {
	return s.store.FindByID(ctx, id)
}

// Create 管理员创建用户
func (s *UserService) Create(ctx context.Context, actor *Identity, in CreateUserInput, origin audit.Origin) (*User, error) {
	role := in.Role
	if role == "" {
		role = RoleStandard
	}
	if !role.Valid() {
		return nil, fmt.Errorf("auth: unknown role %q", role)
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}

	user := &User{
		Username: in.Username,
		Email:    in.Email,
		Name:     in.Name,
		Role:     role,
		IsActive: active,
	}
	if err := s.store.Create(ctx, user, in.Password); err != nil {
		return nil, err
	}

	if err := s.record(ctx, audit.CategoryUserCreated, fmt.Sprintf("Admin %s created user %s", actor.Handle, user.Username), actor, origin); err != nil {
		return nil, err
	}
	return user, nil
}

// Update 管理员修改用户。ResetPassword 时返回新生成的 12 位密码。
func (s *UserService) Update(ctx context.Context, actor *Identity, id string, in UpdateUserInput, origin audit.Origin) (*User, string, error) {
	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, "", err
	}

	if in.Email != nil {
		user.Email = *in.Email
	}
	if in.Name != nil {
		user.Name = *in.Name
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return nil, "", fmt.Errorf("auth: unknown role %q", *in.Role)
		}
		if user.ID == actor.ID && *in.Role != RoleAdministrator {
			return nil, "", ErrProtectedAccount
		}
		user.Role = *in.Role
	}
	if in.Active != nil {
		if user.ID == actor.ID && !*in.Active {
			return nil, "", ErrProtectedAccount
		}
		user.IsActive = *in.Active
	}

	var newPassword string
	if in.ResetPassword {
		newPassword, err = GeneratePassword(generatedPasswordLength)
		if err != nil {
			return nil, "", err
		}
		if err := s.store.SetPassword(user, newPassword); err != nil {
			return nil, "", err
		}
	}

	if err := s.store.Save(ctx, user); err != nil {
		return nil, "", err
	}
	if err := s.record(ctx, audit.CategoryUserModified, fmt.Sprintf("Admin %s modified user %s", actor.Handle, user.Username), actor, origin); err != nil {
		return nil, "", err
	}
	return user, newPassword, nil
}

// Delete 管理员删除用户；不能删除自己或内置管理员
func (s *UserService) Delete(ctx context.Context, actor *Identity, id string, origin audit.Origin) error {
	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if user.ID == actor.ID || user.Username == s.protectedAdmin {
		return ErrProtectedAccount
	}

	if err := s.store.Delete(ctx, user.ID); err != nil {
		return err
	}
	return s.record(ctx, audit.CategoryUserDeleted, fmt.Sprintf("Admin %s deleted user %s", actor.Handle, user.Username), actor, origin)
}

// UpdateProfile 用户修改自己的资料
func (s *UserService) UpdateProfile(ctx context.Context, identity *Identity, in ProfileInput, origin audit.Origin) (*User, error) {
	user, err := s.store.FindByID(ctx, identity.ID)
	if err != nil {
		return nil, err
	}

	if in.NewPassword != "" {
		if !s.store.CheckPassword(user, in.CurrentPassword) {
			return nil, ErrInvalidCredentials
		}
		if err := s.store.SetPassword(user, in.NewPassword); err != nil {
			return nil, err
		}
	}
	if in.Email != nil {
		user.Email = *in.Email
	}
	if in.Name != nil {
		user.Name = *in.Name
	}

	if err := s.store.Save(ctx, user); err != nil {
		return nil, err
	}
	if err := s.record(ctx, audit.CategoryProfileUpdate, fmt.Sprintf("User %s updated their profile", user.Username), identity, origin); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) record(ctx context.Context, category audit.Category, description string, actor *Identity, origin audit.Origin) error {
	_, err := s.auditor.Record(ctx, audit.Entry{
		Category:    category,
		Description: description,
		Origin:      origin,
		Actor:       actor.AuditActor(),
	})
	if err != nil {
		logger.Attach(ctx, s.logger).Error("用户管理审计失败", zap.String("category", string(category)), zap.Error(err))
	}
	return err
}

// GeneratePassword 生成随机密码（去掉易混淆字符）
func GeneratePassword(length int) (string, error) {
	buf := make([]byte, length)
	limit := big.NewInt(int64(len(passwordAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = passwordAlphabet[n.Int64()]
	}
	return string(buf), nil
}
