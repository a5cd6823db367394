package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/pkg"
	"Clubs_Hub/internal/service"
)

const (
	ContextUserIDKey    = "user_id"
	ContextRoleKey      = "role"
	ContextSessionIDKey = "session_id"
)

type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*pkg.Claims, error)
}

// Auth 校验 Bearer access token，并确认会话仍然有效
func Auth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			abort(c, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		claims, err := auth.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			abort(c, http.StatusUnauthorized, "invalid or expired session")
			return
		}

		// 注入 user_id / role / session_id
		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextRoleKey, model.GlobalRole(claims.Role))
		c.Set(ContextSessionIDKey, claims.SessionID)
		ctx := zerolog.Ctx(c.Request.Context()).With().Uint64("user_id", claims.UserID).Logger().WithContext(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireRole 仅允许指定的全局角色访问
func RequireRole(roles ...model.GlobalRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := c.Get(ContextRoleKey)
		if !ok {
			abort(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "forbidden")
	}
}

// ActorFrom 取出 Auth 注入的登录信息
func ActorFrom(c *gin.Context) (service.Actor, bool) {
	uid, ok := c.Get(ContextUserIDKey)
	if !ok {
		return service.Actor{}, false
	}
	role, _ := c.Get(ContextRoleKey)
	r, _ := role.(model.GlobalRole)
	return service.Actor{
		UserID:    uid.(uint64),
		Role:      r,
		SessionID: c.GetString(ContextSessionIDKey),
	}, true
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"status": "error", "message": msg})
}
