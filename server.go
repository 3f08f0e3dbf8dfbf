package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"grid-replanner/config"
	"grid-replanner/mapgen"
	"grid-replanner/planner"
	"grid-replanner/render"
)

const banner = "========================================"

type MapRequest struct {
	Size       int             `json:"size"`
	Obstacles  int             `json:"obstacles"`
	Seed       int64           `json:"seed,omitempty"`
	GeoJSON    json.RawMessage `json:"geojson,omitempty"` // FeatureCollection in cell coordinates
	SaveToFile bool            `json:"saveToFile"`
	Force      bool            `json:"force,omitempty"` // Replace an existing map
}

type RouteRequest struct {
	Start planner.Point `json:"start"`
	Goal  planner.Point `json:"goal"`
}

type RouteResponse struct {
	Path    planner.Path `json:"path"`
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Length  float64      `json:"length,omitempty"`
}

type ObstacleRequest struct {
	Cells []planner.Point `json:"cells,omitempty"` // Block exactly these cells
	Count int             `json:"count,omitempty"` // Or drop this many obstacles on the current path
}

type ReplanResponse struct {
	RouteResponse
	State      string `json:"state"`
	Encounters int    `json:"encounters"`
	Detours    int    `json:"detours"`
	Fallback   bool   `json:"fallback"`
}

// Server exposes one shared map and its current path over HTTP.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *Metrics

	mu    sync.RWMutex
	grid  *planner.Grid
	start planner.Point
	goal  planner.Point
	path  planner.Path
	rng   *rand.Rand

	replan planner.ReplanOptions
}

func NewServer(cfg *config.Config, logger *slog.Logger, metrics *Metrics) (*Server, error) {
	dir, err := planner.ParseDirection(cfg.Replan.Direction)
	if err != nil {
		return nil, err
	}
	newIndex, err := planner.IndexByName(cfg.RRT.Index)
	if err != nil {
		return nil, err
	}
	seed := cfg.Run.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	return &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		path:    planner.NoPath(),
		rng:     rng,
		replan: planner.ReplanOptions{
			Threshold:     cfg.Replan.Threshold,
			MaxIterations: cfg.RRT.MaxIterations,
			StepSize:      cfg.RRT.StepSize,
			Direction:     dir,
			Rand:          rng,
			NewIndex:      newIndex,
			Logger:        logger,
		},
	}, nil
}

// LoadMap restores a map saved by a previous /map call.
func (s *Server) LoadMap(filename string) error {
	snap, err := mapgen.LoadSnapshot(filename)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grid = snap.Grid
	s.start, s.goal = snap.Start, snap.Goal
	s.path = snap.Path
	if s.path == nil {
		s.path = planner.NoPath()
	}
	return nil
}

// Handler returns the routed, CORS-enabled handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/map", corsMiddleware(s.mapHandler))
	mux.HandleFunc("/route", corsMiddleware(s.routeHandler))
	mux.HandleFunc("/obstacles", corsMiddleware(s.obstaclesHandler))
	mux.HandleFunc("/replan", corsMiddleware(s.replanHandler))
	mux.HandleFunc("/path.geojson", corsMiddleware(s.pathGeoJSONHandler))
	mux.HandleFunc("/map.png", corsMiddleware(s.mapImageHandler))
	mux.HandleFunc("/health", corsMiddleware(s.healthHandler))
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	s.logger.Info(banner)
	s.logger.Info("🚀 Grid replanning server", "addr", srv.Addr)
	s.logger.Info("Endpoints:")
	s.logger.Info("  POST /map           - Generate or import a map")
	s.logger.Info("  POST /route         - Grid search from start to goal")
	s.logger.Info("  POST /obstacles     - Block cells or drop obstacles on the path")
	s.logger.Info("  POST /replan        - Repair the current path")
	s.logger.Info("  GET  /path.geojson  - Current path as GeoJSON")
	s.logger.Info("  GET  /map.png       - Rendered map and path")
	s.logger.Info("  GET  /health        - Check server status")
	s.logger.Info("  GET  /metrics       - Prometheus metrics")
	s.logger.Info("CORS enabled for all origins")
	s.logger.Info(banner)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("🛑 shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// corsMiddleware adds CORS headers to allow frontend requests
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		// Handle preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("⚠️  failed to write response", "error", err)
	}
}

func (s *Server) requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	s.logger.Warn("❌ method not allowed", "method", r.Method, "path", r.URL.Path)
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	return false
}

func decode(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// POST /map - Generate a random map or rasterize GeoJSON obstacles
func (s *Server) mapHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Info(banner)
	s.logger.Info("🗺️  Map request received")
	defer s.logger.Info(banner)

	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var req MapRequest
	if err := decode(r, &req); err != nil {
		s.logger.Warn("❌ invalid request body", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Size == 0 {
		req.Size = s.cfg.Map.Size
	}
	if req.Obstacles == 0 {
		req.Obstacles = s.cfg.Map.InitialObstacles
	}
	req.Size = min(max(req.Size, config.MinMapSize), config.MaxMapSize)
	if limit := config.MaxInitialObstacles(req.Size); req.Obstacles < 1 || req.Obstacles > limit {
		clamped := min(max(req.Obstacles, 1), limit)
		s.logger.Warn("⚠️  obstacle count out of range, clamping", "requested", req.Obstacles, "using", clamped)
		req.Obstacles = clamped
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.grid != nil && !req.Force {
		s.logger.Warn("⚠️  map already exists, set force:true to replace it")
		s.writeJSON(w, http.StatusConflict, map[string]any{
			"success": false,
			"error":   "map already exists",
			"message": "A map is already loaded. Set 'force: true' to replace it.",
		})
		return
	}

	var grid *planner.Grid
	if len(req.GeoJSON) > 0 {
		polygons, err := mapgen.ParseObstacles(req.GeoJSON)
		if err != nil {
			s.logger.Warn("❌ invalid obstacles", "error", err)
			http.Error(w, "Invalid GeoJSON obstacles", http.StatusBadRequest)
			return
		}
		polygons = mapgen.SimplifyObstacles(polygons, s.cfg.Map.SimplifyEpsilon)
		grid = mapgen.GridFromObstacles(req.Size, req.Size, polygons)
		s.logger.Info("   imported obstacles", "polygons", len(polygons))
	} else {
		rng := s.rng
		if req.Seed != 0 {
			rng = rand.New(rand.NewSource(req.Seed))
		}
		grid = mapgen.Generate(req.Size, req.Obstacles, rng)
		s.logger.Info("   generated obstacles", "count", req.Obstacles)
	}

	s.grid = grid
	s.start, s.goal = planner.Point{}, planner.Point{}
	s.path = planner.NoPath()
	s.logger.Info("✅ map ready", "size", req.Size, "blocked", grid.BlockedCount())

	if req.SaveToFile {
		s.saveLocked()
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"width":   req.Size,
		"height":  req.Size,
		"blocked": grid.BlockedCount(),
	})
}

// saveLocked writes the map and path to the configured file. s.mu must be held.
func (s *Server) saveLocked() {
	file := s.cfg.Server.MapFile
	s.logger.Info("💾 saving map", "file", file)
	err := mapgen.SaveSnapshot(&mapgen.Snapshot{Grid: s.grid, Start: s.start, Goal: s.goal, Path: s.path}, file)
	if err != nil {
		s.logger.Warn("⚠️  failed to save map", "error", err)
	}
}

// POST /route - Grid search between two cells of the current map
func (s *Server) routeHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Info(banner)
	s.logger.Info("📍 Route request received")
	defer s.logger.Info(banner)

	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var req RouteRequest
	if err := decode(r, &req); err != nil {
		s.logger.Warn("❌ invalid request body", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	s.logger.Info("   endpoints", "start", req.Start, "goal", req.Goal)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.grid == nil {
		s.logger.Warn("❌ map not available")
		http.Error(w, "Map not built. Call /map first", http.StatusBadRequest)
		return
	}

	search := planner.GridSearch{Logger: s.logger}
	path := search.Search(s.grid, req.Start, req.Goal)
	s.metrics.ObserveSearch("search", search.Stats.Duration, path)

	s.start, s.goal, s.path = req.Start, req.Goal, path

	resp := RouteResponse{Path: path, Success: !path.Empty()}
	if path.Empty() {
		s.logger.Warn("❌ no path found")
		resp.Message = "No path found (start or goal blocked, or goal unreachable)"
	} else {
		resp.Length = path.Length()
		s.logger.Info("✅ path found", "points", len(path), "expanded", search.Stats.Expanded, "duration", search.Stats.Duration)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// POST /obstacles - Block cells on the current map
func (s *Server) obstaclesHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Info(banner)
	s.logger.Info("🧱 Obstacle request received")
	defer s.logger.Info(banner)

	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var req ObstacleRequest
	if err := decode(r, &req); err != nil {
		s.logger.Warn("❌ invalid request body", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.grid == nil {
		http.Error(w, "Map not built. Call /map first", http.StatusBadRequest)
		return
	}

	before := s.grid.BlockedCount()
	covered := 0
	switch {
	case len(req.Cells) > 0:
		for _, c := range req.Cells {
			s.grid.Block(c)
			if s.path.Contains(c) {
				covered++
			}
		}
	case req.Count > 0:
		if s.path.Empty() {
			http.Error(w, "No current path. Call /route first", http.StatusBadRequest)
			return
		}
		covered = mapgen.InjectDynamicObstacles(s.grid, s.path, req.Count, s.rng)
	default:
		http.Error(w, "Provide cells or count", http.StatusBadRequest)
		return
	}
	s.metrics.ObserveCovered(covered)
	s.logger.Info("✅ obstacles placed", "blocked", s.grid.BlockedCount()-before, "covered", covered)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"blocked": s.grid.BlockedCount() - before,
		"covered": covered,
	})
}

// POST /replan - Repair the current path, falling back to a full grid search
func (s *Server) replanHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Info(banner)
	s.logger.Info("🔄 Replan request received")
	defer s.logger.Info(banner)

	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.grid == nil || s.path.Empty() {
		http.Error(w, "No current path. Call /route first", http.StatusBadRequest)
		return
	}

	res := planner.NewReplanner(s.replan).Replan(s.grid, s.path)
	s.metrics.ObserveReplan(res)

	resp := ReplanResponse{
		State:      res.State.String(),
		Encounters: res.Encounters,
		Detours:    res.Detours,
	}
	path := res.Path
	if res.State == planner.StateFailed {
		s.logger.Info("🔍 replanning failed, running grid search", "encounters", res.Encounters)
		search := planner.GridSearch{Logger: s.logger}
		path = search.Search(s.grid, s.start, s.goal)
		s.metrics.ObserveSearch("fallback", search.Stats.Duration, path)
		resp.Fallback = true
	}
	s.path = path

	resp.Path = path
	resp.Success = !path.Empty()
	if path.Empty() {
		resp.Message = "Goal unreachable on the current map"
		s.logger.Warn("❌ no path after replanning")
	} else {
		resp.Length = path.Length()
		s.logger.Info("✅ path repaired", "points", len(path), "detours", res.Detours, "fallback", resp.Fallback)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// GET /path.geojson - Current path with start and goal markers
func (s *Server) pathGeoJSONHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	s.mu.RLock()
	fc := planner.FeatureCollection(s.start, s.goal, map[string]planner.Path{"path": s.path})
	hasMap := s.grid != nil
	s.mu.RUnlock()

	if !hasMap {
		http.Error(w, "Map not built. Call /map first", http.StatusBadRequest)
		return
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		http.Error(w, "Failed to encode path", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Write(data)
}

// GET /map.png - Rendered map with the current path
func (s *Server) mapImageHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.grid == nil {
		http.Error(w, "Map not built. Call /map first", http.StatusBadRequest)
		return
	}
	scene := &render.Scene{
		Title:  "Current map",
		Map:    s.grid,
		Layers: []render.Layer{{Name: "path", Path: s.path, Color: render.SearchColor}},
	}
	if !s.path.Empty() {
		start, goal := s.path.Start(), s.path.Goal()
		scene.Start, scene.Goal = &start, &goal
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := scene.WriteTo(w); err != nil {
		s.logger.Warn("⚠️  failed to render map", "error", err)
	}
}

// GET /health - Health check endpoint
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	hasMap := s.grid != nil
	width, height := 0, 0
	if hasMap {
		width, height = s.grid.Dimensions()
	}
	pathPoints := len(s.path)
	s.mu.RUnlock()

	status := "ready"
	if !hasMap {
		status = "waiting for map"
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"hasMap":     hasMap,
		"width":      width,
		"height":     height,
		"pathPoints": pathPoints,
	})
}

// loadInitialMap restores the saved map if there is one.
func (s *Server) loadInitialMap() {
	file := s.cfg.Server.MapFile
	s.logger.Info("Checking for existing map file...", "file", file)
	err := s.LoadMap(file)
	switch {
	case err == nil:
		s.mu.RLock()
		w, h := s.grid.Dimensions()
		s.mu.RUnlock()
		s.logger.Info("✅ loaded existing map", "width", w, "height", h)
	case errors.Is(err, os.ErrNotExist):
		s.logger.Info("ℹ️  no existing map found (this is normal on first run)")
		s.logger.Info("   call /map to create one")
	default:
		s.logger.Warn("⚠️  failed to load map", "error", err)
	}
}
