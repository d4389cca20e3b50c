package auth

import (
	"pinger/contract"
	"pinger/domain"
	"pinger/errors"
	"strings"

	"github.com/gin-gonic/gin"
)

const sessionKey = "pinger.session"

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
// Channel upgrades cannot set headers from a browser, so ?token= is accepted as a fallback.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return c.Query("token")
}

// RequireSession authenticates the bearer token and stores its session in the gin context.
func RequireSession(store contract.IIdentityStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			AbortWithError(c, errors.ErrMissingToken)
			return
		}

		session, err := store.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(sessionKey, session)
		c.Next()
	}
}

// SessionFrom returns the session stored by RequireSession.
func SessionFrom(c *gin.Context) (domain.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return domain.Session{}, false
	}
	session, ok := v.(domain.Session)
	return session, ok
}

// AbortWithError writes {"error": "..."} with the status mapped from err.
func AbortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errors.HTTPStatus(err), gin.H{"error": errors.Message(err)})
}
