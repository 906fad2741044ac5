package auth

import (
	"context"
	"fmt"
	"time"

	"opsdash/internal/audit"
	"opsdash/internal/logger"

	"go.uber.org/zap"
)

// Auditor 审计写入接口
type Auditor interface {
	Record(ctx context.Context, e audit.Entry) (*audit.Record, error)
}

// SessionService 登录与登出，每次尝试都写审计
type SessionService struct {
	store   *IdentityStore
	jwt     *JWTService
	auditor Auditor
	logger  *zap.Logger
}

// NewSessionService 创建会话服务
func NewSessionService(store *IdentityStore, jwtService *JWTService, auditor Auditor, zl *zap.Logger) *SessionService {
	return &SessionService{
		store:   store,
		jwt:     jwtService,
		auditor: auditor,
		logger:  logger.OrNop(zl),
	}
}

// LoginResult 登录结果
type LoginResult struct {
	Token *Token    `json:"token"`
	User  *Identity `json:"user"`
}

// Login 认证并签发令牌。失败的尝试记录 LOGIN_FAILED，不关联身份。
// 审计写入失败时不签发令牌，返回 audit.ErrWriteFailed。
func (s *SessionService) Login(ctx context.Context, username, password string, origin audit.Origin) (*LoginResult, error) {
	user, err := s.store.Authenticate(ctx, username, password)
	if err != nil {
		if _, aerr := s.auditor.Record(ctx, audit.Entry{
			Category:    audit.CategoryLoginFailed,
			Description: fmt.Sprintf("Failed login attempt for username: %s", username),
			Origin:      origin,
		}); aerr != nil {
			return nil, aerr
		}
		logger.Attach(ctx, s.logger).Warn("登录失败", zap.String("username", username), zap.Error(err))
		return nil, err
	}

	token, err := s.jwt.GenerateToken(user)
	if err != nil {
		return nil, err
	}

	identity := user.Identity()
	if _, err := s.auditor.Record(ctx, audit.Entry{
		Category:    audit.CategoryLogin,
		Description: fmt.Sprintf("User %s logged in", user.Username),
		Origin:      origin,
		Actor:       identity.AuditActor(),
	}); err != nil {
		return nil, err
	}

	if err := s.store.TouchLastLogin(ctx, user.ID, time.Now()); err != nil {
		logger.Attach(ctx, s.logger).Warn("更新最后登录时间失败", zap.String("user_id", user.ID), zap.Error(err))
	}
	return &LoginResult{Token: token, User: identity}, nil
}

// Logout 注销当前令牌并记录 LOGOUT
func (s *SessionService) Logout(ctx context.Context, identity *Identity, claims *TokenClaims, origin audit.Origin) error {
	if err := s.jwt.Revoke(ctx, claims); err != nil {
		logger.Attach(ctx, s.logger).Warn("令牌注销失败", zap.String("user_id", identity.ID), zap.Error(err))
	}
	_, err := s.auditor.Record(ctx, audit.Entry{
		Category:    audit.CategoryLogout,
		Description: fmt.Sprintf("User %s logged out", identity.Handle),
		Origin:      origin,
		Actor:       identity.AuditActor(),
	})
	return err
}
