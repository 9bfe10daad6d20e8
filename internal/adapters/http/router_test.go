package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/adapters/rtc"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*gin.Engine, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w, err := rtc.NewWorker(rtc.WorkerConfig{Engine: rtc.EngineLoopback})
	require.NoError(t, err)
	t.Cleanup(w.Close)

	reg := app.NewRegistry()
	rooms := app.NewRoomManager(app.NewWorkerPool([]core.Worker{w}, nil), reg, app.RoomOptions{})
	t.Cleanup(rooms.CloseAll)
	o := &orch.Orchestrator{Registry: reg, Rooms: rooms, Policy: app.SimplePolicy{}, RouterWait: time.Second}

	promReg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(promReg))

	cfg := &config.Config{
		Mode:       "test",
		StaticPath: t.TempDir(),
		Secret:     "secret",
		PingPeriod: time.Second,
	}
	return SetupRouter(context.Background(), cfg, o, promReg), o
}

func TestRouter_Rooms(t *testing.T) {
	r, o := setup(t)
	require.NoError(t, o.CreateRoom("r1"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list []domain.RoomInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, domain.RoomID("r1"), list[0].ID)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms/r1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var snap domain.RoomSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, domain.RoomID("r1"), snap.ID)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_ClientTokenCookie(t *testing.T) {
	r, _ := setup(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var token string
	for _, c := range w.Result().Cookies() {
		if c.Name == clientTokenCookie {
			token = c.Value
		}
	}
	assert.NotEmpty(t, token)

	// an existing token is kept
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.AddCookie(&http.Cookie{Name: clientTokenCookie, Value: "known"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		assert.NotEqual(t, clientTokenCookie, c.Name)
	}
}

func TestRouter_Metrics(t *testing.T) {
	r, _ := setup(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "huddle_rooms")
}
