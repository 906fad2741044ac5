package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "opsdash:revoked:"

// JWTService JWT 令牌服务
type JWTService struct {
	secretKey    []byte
	issuer       string
	accessExpiry time.Duration
	redisClient  redis.UniversalClient // 为空时不支持注销
}

// NewJWTService 创建 JWT 服务
func NewJWTService(secretKey, issuer string, accessExpiry time.Duration, redisClient redis.UniversalClient) *JWTService {
	if accessExpiry <= 0 {
		accessExpiry = 8 * time.Hour
	}
	return &JWTService{
		secretKey:    []byte(secretKey),
		issuer:       issuer,
		accessExpiry: accessExpiry,
		redisClient:  redisClient,
	}
}

// TokenClaims JWT 声明
type TokenClaims struct {
	UserID   string `json:"uid"`
	Username string `json:"usr"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}

// Token 登录成功后返回的访问令牌
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"` // 秒
	ExpiresAt   time.Time `json:"expires_at"`
}

// GenerateToken 为用户签发访问令牌
func (s *JWTService) GenerateToken(user *User) (*Token, error) {
	now := time.Now()
	expiresAt := now.Add(s.accessExpiry)
	claims := &TokenClaims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return nil, fmt.Errorf("签名令牌失败: %w", err)
	}
	return &Token{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.accessExpiry.Seconds()),
		ExpiresAt:   expiresAt.UTC(),
	}, nil
}

// ValidateToken 验证并解析令牌
func (s *JWTService) ValidateToken(ctx context.Context, tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("无效的签名算法: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	if s.isRevoked(ctx, claims.ID) {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Revoke 注销令牌直到其自然过期（需要 Redis）
func (s *JWTService) Revoke(ctx context.Context, claims *TokenClaims) error {
	if s.redisClient == nil || claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	if err := s.redisClient.Set(ctx, revokedKeyPrefix+claims.ID, "revoked", ttl).Err(); err != nil {
		return fmt.Errorf("加入黑名单失败: %w", err)
	}
	return nil
}

// isRevoked Redis 故障时放行，避免所有请求失败
func (s *JWTService) isRevoked(ctx context.Context, tokenID string) bool {
	if s.redisClient == nil || tokenID == "" {
		return false
	}
	exists, err := s.redisClient.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false
	}
	return exists > 0
}

// ExtractTokenFromBearer 从 Authorization 头中提取令牌
func ExtractTokenFromBearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
