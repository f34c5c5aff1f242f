package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/studio233/batchd/ctxutil"
	"github.com/studio233/batchd/logging/logger"
	"github.com/studio233/batchd/net/resp"
	"github.com/studio233/batchd/security/jwt"
)

const (
	userIDKey    = "user_id"
	userEmailKey = "user_email"
)

// Auth validates the bearer token and puts the caller into the request
// context. Requests without a valid token are rejected with 401.
func Auth(tm *jwt.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			resp.Fail(c.Writer, resp.UnAuthorized("missing authorization header"))
			c.Abort()
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			resp.Fail(c.Writer, resp.UnAuthorized("invalid authorization header format"))
			c.Abort()
			return
		}

		claims, err := tm.DecodeToken(token)
		if err != nil {
			logger.Warn(c.Request.Context(), "invalid token", "error", err)
			if errors.Is(err, jwt.ErrTokenExpired) {
				resp.Fail(c.Writer, resp.UnAuthorized("token expired"))
			} else {
				resp.Fail(c.Writer, resp.UnAuthorized("invalid token"))
			}
			c.Abort()
			return
		}

		userID := jwt.GetUserIDFromToken(claims)
		if userID == "" {
			resp.Fail(c.Writer, resp.UnAuthorized("invalid token payload"))
			c.Abort()
			return
		}
		email := jwt.GetEmailFromToken(claims)

		c.Set(userIDKey, userID)
		c.Set(userEmailKey, email)
		ctx := ctxutil.SetUserID(c.Request.Context(), userID)
		ctx = ctxutil.SetUserEmail(ctx, email)
		ctx = ctxutil.SetUserRoles(ctx, jwt.GetRolesFromToken(claims))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// UserID returns the authenticated caller.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// UserEmail returns the caller's e-mail from the token, if any.
func UserEmail(c *gin.Context) string {
	return c.GetString(userEmailKey)
}
