package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/btasarimambalaj-afk/adminara-sub000/internal/config"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/http/handler"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/http/middleware"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/otp"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/ratelimit"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/store"
)

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

type captureNotifier struct {
	messages []string
}

func (n *captureNotifier) Send(ctx context.Context, text string) error {
	n.messages = append(n.messages, text)
	return nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *captureNotifier) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{Environment: "development", AdminSubject: "admin", SessionTTL: time.Hour}
	st := store.NewMemoryStore()
	limiter := ratelimit.New(st, zap.NewNop())
	notifier := &captureNotifier{}
	authenticator := otp.New(st, limiter, notifier, otp.Options{MaxAttempts: 3}, zap.NewNop())

	authHandler := handler.NewAuthHandler(authenticator, cfg, zap.NewNop())
	authMiddleware := &middleware.Auth{Authenticator: authenticator}

	r := gin.New()
	r.POST("/auth/otp/request", authHandler.OTPRequest)
	r.POST("/auth/otp/verify", authHandler.OTPVerify)
	r.GET("/auth/session", authMiddleware.RequireSession, authHandler.Session)
	r.POST("/auth/logout", authMiddleware.RequireSession, authHandler.Logout)
	return r, notifier
}

func doJSON(r *gin.Engine, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookie {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func TestOTPLoginFlow(t *testing.T) {
	r, notifier := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/auth/otp/request", `{}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, notifier.messages, 1)
	code := codePattern.FindStringSubmatch(notifier.messages[0])[1]

	w = doJSON(r, http.MethodPost, "/auth/otp/verify", `{"code":"`+code+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	cookie := sessionCookie(t, w)
	require.NotEmpty(t, cookie.Value)
	require.True(t, cookie.HttpOnly)

	w = doJSON(r, http.MethodGet, "/auth/session", "", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "admin", body["subject"])
}

func TestOTPVerifyWrongCode(t *testing.T) {
	r, notifier := newTestRouter(t)

	doJSON(r, http.MethodPost, "/auth/otp/request", `{}`)
	code := codePattern.FindStringSubmatch(notifier.messages[0])[1]
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	w := doJSON(r, http.MethodPost, "/auth/otp/verify", `{"code":"`+wrong+`"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "invalid_code", body["error"])
	require.Equal(t, float64(2), body["attempts_left"])
}

func TestOTPVerifyLockout(t *testing.T) {
	r, notifier := newTestRouter(t)

	doJSON(r, http.MethodPost, "/auth/otp/request", `{}`)
	code := codePattern.FindStringSubmatch(notifier.messages[0])[1]
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	doJSON(r, http.MethodPost, "/auth/otp/verify", `{"code":"`+wrong+`"}`)
	doJSON(r, http.MethodPost, "/auth/otp/verify", `{"code":"`+wrong+`"}`)
	w := doJSON(r, http.MethodPost, "/auth/otp/verify", `{"code":"`+wrong+`"}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotEmpty(t, w.Header().Get("Retry-After"))

	// Locked even with the right code.
	w = doJSON(r, http.MethodPost, "/auth/otp/verify", `{"code":"`+code+`"}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestOTPVerifyMissingCode(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(r, http.MethodPost, "/auth/otp/verify", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionRequiresCookie(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodGet, "/auth/session", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodGet, "/auth/session", "", &http.Cookie{Name: middleware.SessionCookie, Value: "bogus"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutRevokesSession(t *testing.T) {
	r, notifier := newTestRouter(t)

	doJSON(r, http.MethodPost, "/auth/otp/request", `{}`)
	code := codePattern.FindStringSubmatch(notifier.messages[0])[1]
	w := doJSON(r, http.MethodPost, "/auth/otp/verify", `{"code":"`+code+`"}`)
	cookie := sessionCookie(t, w)

	w = doJSON(r, http.MethodPost, "/auth/logout", "", cookie)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/auth/session", "", cookie)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
