package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/btasarimambalaj-afk/adminara-sub000/internal/config"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/http/middleware"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/otp"
)

// AuthHandler serves the OTP login and session endpoints.
type AuthHandler struct {
	Authenticator *otp.Authenticator
	Config        config.Config
	Logger        *zap.Logger
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(authenticator *otp.Authenticator, cfg config.Config, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{Authenticator: authenticator, Config: cfg, Logger: logger}
}

func (h *AuthHandler) subject(c *gin.Context) string {
	var req struct {
		Subject string `json:"subject"`
	}
	// The body is optional; the admin subject is the default.
	_ = c.ShouldBindJSON(&req)
	if req.Subject == "" {
		return h.Config.AdminSubject
	}
	return req.Subject
}

// OTPRequest generates and delivers a fresh challenge.
func (h *AuthHandler) OTPRequest(c *gin.Context) {
	subject := h.subject(c)
	if err := h.Authenticator.RequestChallenge(c.Request.Context(), subject); err != nil {
		h.Logger.Error("otp request failed", zap.String("subject", subject), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "delivery_failed", "error_description": "Could not deliver the code."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

// OTPVerify checks the submitted code and issues the session cookie. The
// invalid response is deliberately generic: a wrong code and an expired one
// look the same to the caller.
func (h *AuthHandler) OTPVerify(c *gin.Context) {
	var req struct {
		Subject string `json:"subject"`
		Code    string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Code is required."})
		return
	}
	if req.Subject == "" {
		req.Subject = h.Config.AdminSubject
	}

	result, err := h.Authenticator.VerifyChallenge(c.Request.Context(), req.Subject, req.Code)
	if err != nil {
		h.Logger.Error("otp verify failed", zap.String("subject", req.Subject), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Verification unavailable."})
		return
	}

	switch result.Status {
	case otp.StatusVerified:
		h.setSessionCookie(c, result.SessionToken)
		c.JSON(http.StatusOK, gin.H{"status": "verified"})
	case otp.StatusLocked:
		retryAfter := result.RetryAfterSeconds()
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":             "locked",
			"error_description": "Too many failed attempts.",
			"retry_after":       retryAfter,
		})
	default:
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_code",
			"error_description": "Invalid code.",
			"attempts_left":     result.AttemptsLeft,
		})
	}
}

// Session reports the authenticated subject. RequireSession has already
// slid the TTL forward.
func (h *AuthHandler) Session(c *gin.Context) {
	subject, ok := middleware.GetSubject(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subject": subject})
}

// Logout revokes the session and clears the cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	token, err := c.Cookie(middleware.SessionCookie)
	if err == nil && token != "" {
		if err := h.Authenticator.RevokeSession(c.Request.Context(), token); err != nil {
			h.Logger.Error("session revoke failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Logout failed."})
			return
		}
	}
	h.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, token string) {
	secure := h.Config.Environment != "development"
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, token, int(h.Config.SessionTTL.Seconds()), "/", "", secure, true)
}

func (h *AuthHandler) clearSessionCookie(c *gin.Context) {
	secure := h.Config.Environment != "development"
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", secure, true)
}
