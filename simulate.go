package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/orb"

	"grid-replanner/config"
	"grid-replanner/mapgen"
	"grid-replanner/planner"
	"grid-replanner/render"
	"grid-replanner/store"
)

// MapResult is the outcome of one map in a batch run.
type MapResult struct {
	Index       int
	Start, Goal planner.Point

	Search         planner.Path
	SearchDuration time.Duration
	Covered        int

	Replan planner.ReplanResult

	Fallback         bool
	FallbackPath     planner.Path
	FallbackDuration time.Duration

	Final planner.Path
}

// Solved reports whether the run ended with a path on the final map.
func (r *MapResult) Solved() bool { return !r.Final.Empty() }

// Runner plans on a series of generated maps: grid search, obstacle injection,
// replanning and, when replanning gives up, a second grid search.
type Runner struct {
	cfg     *config.Config
	logger  *slog.Logger
	rng     *rand.Rand
	seed    int64
	metrics *Metrics
	store   *store.Store

	obstacles []orb.Polygon
	loaded    bool
}

func NewRunner(cfg *config.Config, logger *slog.Logger, metrics *Metrics, st *store.Store) *Runner {
	seed := cfg.Run.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Runner{
		cfg:     cfg,
		logger:  logger,
		rng:     rand.New(rand.NewSource(seed)),
		seed:    seed,
		metrics: metrics,
		store:   st,
	}
}

// Seed is the seed of the runner's random source.
func (r *Runner) Seed() int64 { return r.seed }

// Run processes cfg.Map.Count maps, stopping early when ctx is cancelled.
func (r *Runner) Run(ctx context.Context) ([]MapResult, error) {
	r.logger.Info("🚀 starting run", "maps", r.cfg.Map.Count, "size", r.cfg.Map.Size, "seed", r.seed)

	results := make([]MapResult, 0, r.cfg.Map.Count)
	for i := 1; i <= r.cfg.Map.Count; i++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := r.RunMap(ctx, i)
		if err != nil {
			return results, fmt.Errorf("map %d: %w", i, err)
		}
		results = append(results, *res)
	}
	return results, nil
}

// RunMap processes a single map.
func (r *Runner) RunMap(ctx context.Context, index int) (*MapResult, error) {
	logger := r.logger.With("map", index)

	grid, err := r.newGrid()
	if err != nil {
		return nil, err
	}
	points, err := mapgen.SelectFreePoints(grid, 2, r.rng)
	if err != nil {
		return nil, err
	}
	res := &MapResult{Index: index, Start: points[0], Goal: points[1]}
	logger.Info("📍 start and goal selected", "start", res.Start, "goal", res.Goal)

	search := planner.GridSearch{Logger: logger}
	res.Search = search.Search(grid, res.Start, res.Goal)
	res.SearchDuration = search.Stats.Duration
	r.metrics.ObserveSearch("search", res.SearchDuration, res.Search)
	if res.Search.Empty() {
		logger.Warn("❌ no initial path")
		res.Final = planner.NoPath()
		return res, r.record(ctx, res)
	}
	logger.Info("✅ initial path found", "points", len(res.Search), "duration", res.SearchDuration)
	if err := r.draw(grid, res, "initial", render.Layer{Name: "search", Path: res.Search, Color: render.SearchColor}); err != nil {
		return nil, err
	}

	res.Covered = mapgen.InjectDynamicObstacles(grid, res.Search, r.cfg.Map.DynamicObstacles, r.rng)
	r.metrics.ObserveCovered(res.Covered)
	logger.Info("🧱 dynamic obstacles placed", "count", r.cfg.Map.DynamicObstacles, "covered", res.Covered)
	if err := r.draw(grid, res, "dynamic", render.Layer{Name: "stale", Path: res.Search, Color: render.StaleColor}); err != nil {
		return nil, err
	}

	replanner, err := r.newReplanner(logger)
	if err != nil {
		return nil, err
	}
	res.Replan = replanner.Replan(grid, res.Search)
	r.metrics.ObserveReplan(res.Replan)
	logger.Info("🔄 replanning finished",
		"state", res.Replan.State,
		"encounters", res.Replan.Encounters,
		"detours", res.Replan.Detours,
		"duration", res.Replan.Duration)

	res.Final = res.Replan.Path
	solution := render.Layer{Name: "replanned", Path: res.Replan.Path, Color: render.RepairColor}
	if res.Replan.State == planner.StateFailed {
		res.Fallback = true
		fallback := planner.GridSearch{Logger: logger}
		res.FallbackPath = fallback.Search(grid, res.Start, res.Goal)
		res.FallbackDuration = fallback.Stats.Duration
		res.Final = res.FallbackPath
		r.metrics.ObserveSearch("fallback", res.FallbackDuration, res.FallbackPath)
		logger.Info("🔍 fell back to grid search", "points", len(res.FallbackPath), "duration", res.FallbackDuration)
		solution = render.Layer{Name: "fallback", Path: res.FallbackPath, Color: render.SearchColor}
	}
	if err := r.draw(grid, res, "solution", render.Layer{Name: "stale", Path: res.Search, Color: render.StaleColor}, solution); err != nil {
		return nil, err
	}

	return res, r.record(ctx, res)
}

func (r *Runner) newGrid() (*planner.Grid, error) {
	size := r.cfg.Map.Size
	if r.cfg.Map.ObstacleDir == "" {
		return mapgen.Generate(size, r.cfg.Map.InitialObstacles, r.rng), nil
	}
	if !r.loaded {
		polygons, err := mapgen.LoadObstacleDir(r.cfg.Map.ObstacleDir, r.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to load obstacles: %w", err)
		}
		r.obstacles = mapgen.SimplifyObstacles(polygons, r.cfg.Map.SimplifyEpsilon)
		r.loaded = true
	}
	return mapgen.GridFromObstacles(size, size, r.obstacles), nil
}

func (r *Runner) newReplanner(logger *slog.Logger) (*planner.Replanner, error) {
	dir, err := planner.ParseDirection(r.cfg.Replan.Direction)
	if err != nil {
		return nil, err
	}
	newIndex, err := planner.IndexByName(r.cfg.RRT.Index)
	if err != nil {
		return nil, err
	}
	return planner.NewReplanner(planner.ReplanOptions{
		Threshold:     r.cfg.Replan.Threshold,
		MaxIterations: r.cfg.RRT.MaxIterations,
		StepSize:      r.cfg.RRT.StepSize,
		Direction:     dir,
		Rand:          r.rng,
		NewIndex:      newIndex,
		Logger:        logger,
	}), nil
}

// draw saves map<index>_<suffix>.png when rendering is enabled.
func (r *Runner) draw(grid *planner.Grid, res *MapResult, suffix string, layers ...render.Layer) error {
	if !r.cfg.Run.Render {
		return nil
	}
	if err := os.MkdirAll(r.cfg.Run.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	scene := &render.Scene{
		Title:  fmt.Sprintf("Map %d (%s)", res.Index, suffix),
		Map:    grid,
		Layers: layers,
		Start:  &res.Start,
		Goal:   &res.Goal,
	}
	file := filepath.Join(r.cfg.Run.OutputDir, fmt.Sprintf("map%d_%s.png", res.Index, suffix))
	if err := scene.Save(file); err != nil {
		return err
	}
	r.logger.Debug("map saved", "file", file)
	return nil
}

func (r *Runner) record(ctx context.Context, res *MapResult) error {
	if r.store == nil {
		return nil
	}
	return r.store.RecordRun(ctx, &store.Run{
		MapIndex:         res.Index,
		MapSize:          r.cfg.Map.Size,
		Seed:             r.seed,
		Start:            res.Start,
		Goal:             res.Goal,
		SearchDuration:   res.SearchDuration,
		SearchLength:     len(res.Search),
		CoveredCells:     res.Covered,
		ReplanState:      replanStateName(res),
		ReplanDuration:   res.Replan.Duration,
		ReplanLength:     len(res.Replan.Path),
		Encounters:       res.Replan.Encounters,
		Detours:          res.Replan.Detours,
		Fallback:         res.Fallback,
		FallbackDuration: res.FallbackDuration,
		FinalLength:      len(res.Final),
	})
}

// replanStateName is empty for maps that never reached replanning.
func replanStateName(res *MapResult) string {
	if res.Search.Empty() {
		return ""
	}
	return res.Replan.State.String()
}
