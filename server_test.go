package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grid-replanner/config"
	"grid-replanner/planner"
)

const emptyObstacles = `{"type":"FeatureCollection","features":[]}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Map: config.MapConfig{
			Size:             100,
			Count:            2,
			InitialObstacles: 4,
			DynamicObstacles: 1,
			SimplifyEpsilon:  0.5,
		},
		RRT:     config.RRTConfig{MaxIterations: 2000, StepSize: 1, Index: planner.IndexLinear},
		Replan:  config.ReplanConfig{Threshold: 1, Direction: planner.GoalToStart.String()},
		Run:     config.RunConfig{Seed: 5, OutputDir: filepath.Join(dir, "images")},
		Server:  config.ServerConfig{Host: "127.0.0.1", Port: 8080, MapFile: filepath.Join(dir, "map.json")},
		Store:   config.StoreConfig{Path: filepath.Join(dir, "runs.db")},
		Logging: config.LoggingConfig{Level: "info", Format: "text"},
	}
	require.NoError(t, config.Validate(cfg, nil))
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	srv, err := NewServer(testConfig(t), discardLogger(), NewMetrics())
	require.NoError(t, err)
	return srv, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

// openMap installs an obstacle-free 100x100 map.
func openMap(t *testing.T, h http.Handler) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/map", MapRequest{Size: 100, GeoJSON: json.RawMessage(emptyObstacles)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealthWithoutMap(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "waiting for map", body["status"])
	assert.Equal(t, false, body["hasMap"])
}

func TestCORSPreflight(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodOptions, "/route", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMethodNotAllowed(t *testing.T) {
	_, h := newTestServer(t)

	for _, path := range []string{"/map", "/route", "/obstacles", "/replan"} {
		rec := do(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
	}
	rec := do(t, h, http.MethodPost, "/path.geojson", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRequestsBeforeMap(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/route", RouteRequest{Start: planner.Point{X: 1, Y: 1}, Goal: planner.Point{X: 5, Y: 5}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/replan", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/map.png", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateMapConflict(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/map", MapRequest{Size: 100, Obstacles: 3, Seed: 11})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, float64(100), body["width"])
	assert.Greater(t, body["blocked"], float64(0))

	rec = do(t, h, http.MethodPost, "/map", MapRequest{Size: 100, Obstacles: 3})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/map", MapRequest{Size: 100, Obstacles: 3, Force: true})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInvalidBodies(t *testing.T) {
	_, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/map", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/map", MapRequest{GeoJSON: json.RawMessage(`{"type":"FeatureCollection","features":5}`)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	openMap(t, h)
	rec = do(t, h, http.MethodPost, "/obstacles", ObstacleRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouteObstaclesReplan(t *testing.T) {
	_, h := newTestServer(t)
	openMap(t, h)

	start, goal := planner.Point{X: 10, Y: 50}, planner.Point{X: 90, Y: 50}
	rec := do(t, h, http.MethodPost, "/route", RouteRequest{Start: start, Goal: goal})
	require.Equal(t, http.StatusOK, rec.Code)
	route := decodeBody[RouteResponse](t, rec)
	require.True(t, route.Success)
	require.Len(t, route.Path, 81)
	assert.Equal(t, start, route.Path.Start())
	assert.Equal(t, goal, route.Path.Goal())

	blocked := route.Path[40]
	rec = do(t, h, http.MethodPost, "/obstacles", ObstacleRequest{Cells: []planner.Point{blocked}})
	require.Equal(t, http.StatusOK, rec.Code)
	placed := decodeBody[map[string]any](t, rec)
	assert.Equal(t, float64(1), placed["covered"])

	rec = do(t, h, http.MethodPost, "/replan", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	replan := decodeBody[ReplanResponse](t, rec)
	require.True(t, replan.Success, replan.Message)
	assert.GreaterOrEqual(t, replan.Encounters, 1)
	assert.Equal(t, start, replan.Path.Start())
	assert.Equal(t, goal, replan.Path.Goal())
	assert.False(t, replan.Path.Contains(blocked))
	if !replan.Fallback {
		assert.Equal(t, planner.StateSucceeded.String(), replan.State)
	}

	rec = do(t, h, http.MethodGet, "/path.geojson", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"LineString"`)

	rec = do(t, h, http.MethodGet, "/map.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `gridplan_plans_total{planner="search",result="found"} 1`)
}

func TestRouteBlockedEndpoint(t *testing.T) {
	_, h := newTestServer(t)
	openMap(t, h)

	goal := planner.Point{X: 20, Y: 20}
	rec := do(t, h, http.MethodPost, "/obstacles", ObstacleRequest{Cells: []planner.Point{goal}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/route", RouteRequest{Start: planner.Point{X: 1, Y: 1}, Goal: goal})
	require.Equal(t, http.StatusOK, rec.Code)
	route := decodeBody[RouteResponse](t, rec)
	assert.False(t, route.Success)
	assert.Empty(t, route.Path)
	assert.NotEmpty(t, route.Message)
}

func TestObstacleCountNeedsPath(t *testing.T) {
	_, h := newTestServer(t)
	openMap(t, h)

	rec := do(t, h, http.MethodPost, "/obstacles", ObstacleRequest{Count: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/route", RouteRequest{Start: planner.Point{X: 5, Y: 50}, Goal: planner.Point{X: 94, Y: 50}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/obstacles", ObstacleRequest{Count: 1})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Greater(t, body["blocked"], float64(0))
}

func TestSavedMapIsReloaded(t *testing.T) {
	srv, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/map", MapRequest{Size: 100, Obstacles: 2, Seed: 4, SaveToFile: true})
	require.Equal(t, http.StatusOK, rec.Code)
	_, err := os.Stat(srv.cfg.Server.MapFile)
	require.NoError(t, err)

	restored, err := NewServer(srv.cfg, discardLogger(), NewMetrics())
	require.NoError(t, err)
	restored.loadInitialMap()

	rec = do(t, restored.Handler(), http.MethodGet, "/health", nil)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, float64(100), body["width"])
	assert.Equal(t, srv.grid.BlockedCount(), restored.grid.BlockedCount())
}

func TestGenerateMapClampsObstacleCount(t *testing.T) {
	for _, obstacles := range []int{-1, 1_000_000} {
		srv, h := newTestServer(t)

		rec := do(t, h, http.MethodPost, "/map", MapRequest{Size: 100, Obstacles: obstacles, Seed: 3})

		require.Equal(t, http.StatusOK, rec.Code, "obstacles=%d", obstacles)
		body := decodeBody[map[string]any](t, rec)
		assert.Equal(t, float64(srv.grid.BlockedCount()), body["blocked"], "obstacles=%d", obstacles)
		assert.Less(t, srv.grid.BlockedCount(), 100*100/2, "obstacles=%d", obstacles)
	}
}

func TestNewServerRejectsBadReplanSettings(t *testing.T) {
	cfg := testConfig(t)
	cfg.Replan.Direction = "sideways"
	_, err := NewServer(cfg, discardLogger(), NewMetrics())
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.RRT.Index = "kd"
	_, err = NewServer(cfg, discardLogger(), NewMetrics())
	assert.Error(t, err)
}

type failingWriter struct {
	*httptest.ResponseRecorder
}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestWriteJSONLogsEncodeFailure(t *testing.T) {
	var logs bytes.Buffer
	srv, err := NewServer(testConfig(t), slog.New(slog.NewTextHandler(&logs, nil)), NewMetrics())
	require.NoError(t, err)

	srv.writeJSON(failingWriter{httptest.NewRecorder()}, http.StatusOK, map[string]any{"ok": true})

	assert.Contains(t, logs.String(), "failed to write response")
	assert.Contains(t, logs.String(), "connection reset")
}
