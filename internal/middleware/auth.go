package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"push-device-service/internal/apierror"
	"push-device-service/internal/auth"
	"push-device-service/internal/model"
)

const callerContextKey = "caller"

func CallerFromContext(c *gin.Context) (model.Caller, bool) {
	v, ok := c.Get(callerContextKey)
	if !ok {
		return model.Caller{}, false
	}
	caller, ok := v.(model.Caller)
	return caller, ok && caller.Username != ""
}

// RequireAuth accepts a session token from the Authorization header, or from
// the token query parameter for websocket upgrades. Tokens without a tenant
// fall back to defaultTenant.
func RequireAuth(cfg auth.TokenConfig, defaultTenant string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			abortUnauthenticated(c)
			return
		}

		claims, err := auth.VerifyToken(token, cfg)
		if err != nil {
			abortUnauthenticated(c)
			return
		}

		tenant := claims.TenantDomain
		if tenant == "" {
			tenant = defaultTenant
		}
		c.Set(callerContextKey, model.Caller{Username: claims.Username, TenantDomain: tenant})
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

func abortUnauthenticated(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.MsgUnauthenticated.Response())
}
