package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds the drain of in-flight requests once the run
// context is cancelled. WebSocket connections are closed separately by the
// hub before this drain starts.
const shutdownTimeout = 10 * time.Second

// HTTPServer runs the signaling service's gin engine with context-driven
// graceful shutdown.
type HTTPServer struct {
	Engine *gin.Engine
}

// NewHTTPServer wraps the router, enabling 405 responses for known paths
// and client IP resolution from forwarding headers; the per-IP limits key
// on that resolved address.
func NewHTTPServer(router *gin.Engine) *HTTPServer {
	router.HandleMethodNotAllowed = true
	router.ForwardedByClientIP = true
	return &HTTPServer{Engine: router}
}

// Run listens on addr until ctx is cancelled, then drains in-flight
// requests for up to shutdownTimeout before returning.
func (s *HTTPServer) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Engine,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
