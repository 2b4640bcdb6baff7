package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/btasarimambalaj-afk/adminara-sub000/internal/config"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/http/handler"
	httpmiddleware "github.com/btasarimambalaj-afk/adminara-sub000/internal/http/middleware"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/middleware"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/ratelimit"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/room"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/transport"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(
	cfg config.Config,
	authHandler *handler.AuthHandler,
	systemHandler *handler.SystemHandler,
	authMiddleware *httpmiddleware.Auth,
	globalLimiter *middleware.RateLimiter,
	limiter *ratelimit.Limiter,
	hub *transport.Hub,
	logger *zap.Logger,
) *gin.Engine {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(logger))
	if globalLimiter != nil {
		r.Use(globalLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	auth := r.Group("/auth")
	{
		otpGroup := auth.Group("/otp")
		{
			otpGroup.POST("/request",
				httpmiddleware.EndpointLimit(limiter, "http:otp_request", 3, time.Minute),
				authHandler.OTPRequest)
			otpGroup.POST("/verify",
				httpmiddleware.EndpointLimit(limiter, "http:otp_verify", 10, time.Minute),
				authHandler.OTPVerify)
		}

		auth.GET("/session",
			httpmiddleware.EndpointLimit(limiter, "http:session", 60, time.Minute),
			authMiddleware.RequireSession,
			authHandler.Session)
		auth.POST("/logout", authMiddleware.RequireSession, authHandler.Logout)
	}

	api := r.Group("/api")
	{
		api.GET("/ice-servers",
			httpmiddleware.EndpointLimit(limiter, "http:ice_servers", 30, time.Minute),
			systemHandler.ICEServers)
	}

	r.GET("/healthz", systemHandler.Health)

	r.GET("/ws", func(c *gin.Context) {
		role := room.RoleCustomer
		if c.Query("role") == string(room.RoleAdmin) {
			token, err := c.Cookie(httpmiddleware.SessionCookie)
			if err != nil || token == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			subject, err := authHandler.Authenticator.ValidateSession(c.Request.Context(), token)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
				return
			}
			if subject == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			role = room.RoleAdmin
		}
		hub.HandleWS(c.Writer, c.Request, role, c.Query("name"))
	})

	return r
}
