package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/btasarimambalaj-afk/adminara-sub000/internal/config"
	httptransport "github.com/btasarimambalaj-afk/adminara-sub000/internal/http"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/http/handler"
	httpmiddleware "github.com/btasarimambalaj-afk/adminara-sub000/internal/http/middleware"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/jobs"
	apimiddleware "github.com/btasarimambalaj-afk/adminara-sub000/internal/middleware"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/notify"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/otp"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/ratelimit"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/room"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/server"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/store"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/telemetry"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/transport"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/turn"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newStateStore,
			newRateLimiter,
			newNotifier,
			newAuthenticator,
			newTurnIssuer,
			newCoordinator,
			newHub,
			newGlobalLimiter,
			newAuthHandler,
			newSystemHandler,
			newAuthMiddleware,
			newRouter,
			server.NewHTTPServer,
			newScheduler,
		),
		fx.Invoke(useTelemetry, startSweep, startScheduler, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

// newStateStore selects the Redis backend when configured, else the
// in-process fallback. Without Redis every instance holds its own state, so
// the deployment must be single-instance.
func newStateStore(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (store.StateStore, error) {
	if !cfg.RedisEnabled() {
		logger.Warn("no REDIS_ADDR configured, using in-process state (single instance only)")
		return store.NewMemoryStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	logger.Info("redis state store connected", zap.String("addr", cfg.RedisAddr))
	return store.NewRedisStore(client, cfg.KeyPrefix), nil
}

func newRateLimiter(st store.StateStore, logger *zap.Logger) *ratelimit.Limiter {
	return ratelimit.New(st, logger)
}

func newNotifier(cfg config.Config, logger *zap.Logger) (notify.Notifier, error) {
	if cfg.TelegramBotToken == "" {
		logger.Warn("no TELEGRAM_BOT_TOKEN configured, OTP codes will be logged")
		return &notify.LogNotifier{Logger: logger}, nil
	}
	return notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, logger)
}

func newAuthenticator(st store.StateStore, limiter *ratelimit.Limiter, notifier notify.Notifier, cfg config.Config, logger *zap.Logger) *otp.Authenticator {
	return otp.New(st, limiter, notifier, otp.Options{
		ChallengeTTL: cfg.OTPTTL,
		MaxAttempts:  cfg.OTPMaxAttempts,
		Lockout:      cfg.OTPLockout,
		SessionTTL:   cfg.SessionTTL,
	}, logger)
}

func newTurnIssuer(cfg config.Config) *turn.Issuer {
	return turn.NewIssuer(cfg.STUNURLs, cfg.TURNURLs, cfg.TURNSecret, cfg.AdminSubject, cfg.TURNCredentialTTL)
}

// newCoordinator breaks the hub/coordinator cycle by injecting the sender
// after both exist: the coordinator needs the hub to send, the hub needs the
// coordinator to dispatch.
type senderProxy struct {
	hub *transport.Hub
}

func (p *senderProxy) Send(connID string, event room.Event) {
	if p.hub != nil {
		p.hub.Send(connID, event)
	}
}

func newCoordinator(cfg config.Config, limiter *ratelimit.Limiter, logger *zap.Logger) (*room.Coordinator, *senderProxy) {
	proxy := &senderProxy{}
	coordinator := room.New(proxy, limiter, &room.ZapObserver{Logger: logger}, room.Options{
		WaitTimeout: cfg.WaitTimeout,
		SignalLimits: map[string]int64{
			room.EventDescription:  int64(cfg.RateDescriptionPerSec),
			room.EventICECandidate: int64(cfg.RateICEPerSec),
			room.EventChatMessage:  int64(cfg.RateChatPerSec),
		},
	}, logger)
	return coordinator, proxy
}

func newHub(lc fx.Lifecycle, coordinator *room.Coordinator, proxy *senderProxy, cfg config.Config, logger *zap.Logger) *transport.Hub {
	hub := transport.NewHub(coordinator, cfg.MaxConnections, logger)
	proxy.hub = hub

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			hub.Shutdown(ctx, coordinator.Shutdown)
			return nil
		},
	})
	return hub
}

func newGlobalLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newAuthHandler(authenticator *otp.Authenticator, cfg config.Config, logger *zap.Logger) *handler.AuthHandler {
	return handler.NewAuthHandler(authenticator, cfg, logger)
}

func newSystemHandler(issuer *turn.Issuer, st store.StateStore, cfg config.Config) *handler.SystemHandler {
	return &handler.SystemHandler{Issuer: issuer, Store: st, RedisBacked: cfg.RedisEnabled()}
}

func newAuthMiddleware(authenticator *otp.Authenticator) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{Authenticator: authenticator}
}

func newRouter(
	cfg config.Config,
	authHandler *handler.AuthHandler,
	systemHandler *handler.SystemHandler,
	authMiddleware *httpmiddleware.Auth,
	globalLimiter *apimiddleware.RateLimiter,
	limiter *ratelimit.Limiter,
	hub *transport.Hub,
	logger *zap.Logger,
) *gin.Engine {
	return httptransport.NewRouter(cfg, authHandler, systemHandler, authMiddleware, globalLimiter, limiter, hub, logger)
}

func newScheduler(st store.StateStore, logger *zap.Logger) (*jobs.Scheduler, error) {
	return jobs.NewScheduler(st, logger)
}

func useTelemetry(*telemetry.Provider) {}

func startSweep(lc fx.Lifecycle, limiter *ratelimit.Limiter, cfg config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			limiter.StartSweep(cfg.SweepInterval)
			return nil
		},
		OnStop: func(context.Context) error {
			limiter.StopSweep()
			return nil
		},
	})
}

func startScheduler(lc fx.Lifecycle, scheduler *jobs.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			scheduler.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			scheduler.Stop()
			return nil
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
