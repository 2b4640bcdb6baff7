package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/btasarimambalaj-afk/adminara-sub000/internal/store"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/turn"
)

// SystemHandler serves the ICE-server and health endpoints.
type SystemHandler struct {
	Issuer      *turn.Issuer
	Store       store.StateStore
	RedisBacked bool
}

// ICEServers hands out the STUN list plus ephemeral TURN credentials when
// a relay is configured.
func (h *SystemHandler) ICEServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": h.Issuer.ICEServers()})
}

// Health reports store reachability. Health reporting is advisory, so an
// unreachable backend degrades to a 503 body rather than an error.
func (h *SystemHandler) Health(c *gin.Context) {
	mode := "memory"
	if h.RedisBacked {
		mode = "redis"
	}
	healthy := h.Store.HealthCheck(c.Request.Context())
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"healthy": healthy, "store": mode})
}
