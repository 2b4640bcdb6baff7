package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/btasarimambalaj-afk/adminara-sub000/internal/http/handler"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/store"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/turn"
)

func newSystemRouter(issuer *turn.Issuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := &handler.SystemHandler{Issuer: issuer, Store: store.NewMemoryStore()}
	r := gin.New()
	r.GET("/api/ice-servers", h.ICEServers)
	r.GET("/healthz", h.Health)
	return r
}

func TestICEServersWithTURN(t *testing.T) {
	issuer := turn.NewIssuer(
		[]string{"stun:stun.example.com:3478"},
		[]string{"turn:relay.example.com:3478"},
		"secret", "support", 5*time.Minute)
	r := newSystemRouter(issuer)

	w := doJSON(r, http.MethodGet, "/api/ice-servers", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		ICEServers []turn.ICEServer `json:"iceServers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.ICEServers, 2)
	require.Empty(t, body.ICEServers[0].Username)
	require.NotEmpty(t, body.ICEServers[1].Username)
	require.NotEmpty(t, body.ICEServers[1].Credential)
}

func TestICEServersSTUNOnly(t *testing.T) {
	issuer := turn.NewIssuer([]string{"stun:stun.example.com:3478"}, nil, "", "support", 0)
	r := newSystemRouter(issuer)

	w := doJSON(r, http.MethodGet, "/api/ice-servers", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		ICEServers []turn.ICEServer `json:"iceServers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.ICEServers, 1)
}

func TestHealthMemoryMode(t *testing.T) {
	issuer := turn.NewIssuer(nil, nil, "", "support", 0)
	r := newSystemRouter(issuer)

	w := doJSON(r, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, true, body["healthy"])
	require.Equal(t, "memory", body["store"])
}
