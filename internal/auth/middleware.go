package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	identityContextKey = "identity"
	claimsContextKey   = "token_claims"
)

// AuthMiddleware 校验 Bearer 令牌，并在每次请求时重新加载账号，
// 停用的账号立即失去访问权限
func AuthMiddleware(jwtService *JWTService, store *IdentityStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractTokenFromBearer(c.GetHeader("Authorization"))
		if token == "" {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing or malformed bearer token")
			return
		}

		claims, err := jwtService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			return
		}

		user, err := store.FindByID(c.Request.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "account no longer exists")
				return
			}
			abort(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load account")
			return
		}
		if !user.IsActive {
			abort(c, http.StatusForbidden, "ACCOUNT_DISABLED", "account disabled")
			return
		}

		SetIdentity(c, user.Identity())
		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

// RequireRole 角色检查中间件，需在 AuthMiddleware 之后使用
func RequireRole(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := CurrentIdentity(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}
		for _, role := range roles {
			if identity.Role == role {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "FORBIDDEN", "insufficient privilege")
	}
}

// CurrentIdentity 当前请求的身份
func CurrentIdentity(c *gin.Context) (*Identity, bool) {
	v, exists := c.Get(identityContextKey)
	if !exists {
		return nil, false
	}
	identity, ok := v.(*Identity)
	return identity, ok
}

// CurrentClaims 当前请求的令牌声明
func CurrentClaims(c *gin.Context) (*TokenClaims, bool) {
	v, exists := c.Get(claimsContextKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*TokenClaims)
	return claims, ok
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"code":    code,
		"message": message,
	})
}

// SetIdentity 将身份写入请求上下文
func SetIdentity(c *gin.Context, identity *Identity) {
	c.Set(identityContextKey, identity)
}
