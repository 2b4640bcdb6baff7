package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/btasarimambalaj-afk/adminara-sub000/internal/otp"
)

// SessionCookie is the cookie carrying the admin session token.
const SessionCookie = "support_session"

const subjectKey = "sessionSubject"

// Auth validates the session cookie and attaches the subject.
type Auth struct {
	Authenticator *otp.Authenticator
}

// RequireSession aborts unauthenticated requests. Validation slides the
// session TTL forward.
func (m *Auth) RequireSession(c *gin.Context) {
	token, err := c.Cookie(SessionCookie)
	if err != nil || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Session required."})
		return
	}
	subject, err := m.Authenticator.ValidateSession(c.Request.Context(), token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Session check failed."})
		return
	}
	if subject == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Invalid or expired session."})
		return
	}
	c.Set(subjectKey, subject)
	c.Next()
}

// GetSubject returns the authenticated subject set by RequireSession.
func GetSubject(c *gin.Context) (string, bool) {
	value, ok := c.Get(subjectKey)
	if !ok {
		return "", false
	}
	subject, ok := value.(string)
	return subject, ok
}
