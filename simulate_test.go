package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grid-replanner/planner"
	"grid-replanner/store"
)

func TestRunnerRecordsAndRenders(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.Render = true
	st, err := store.Open(cfg.Store.Path, nil)
	require.NoError(t, err)
	defer st.Close()

	runner := NewRunner(cfg, discardLogger(), NewMetrics(), st)
	assert.Equal(t, int64(5), runner.Seed())

	results, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, res := range results {
		assert.NotEqual(t, res.Start, res.Goal)
		if res.Search.Empty() {
			assert.False(t, res.Solved())
			continue
		}
		assert.Equal(t, res.Start, res.Search.Start())
		assert.Equal(t, res.Goal, res.Search.Goal())
		assert.Equal(t, res.Replan.State == planner.StateFailed, res.Fallback)
		if res.Solved() {
			assert.Equal(t, res.Start, res.Final.Start())
			assert.Equal(t, res.Goal, res.Final.Goal())
		}
		for _, suffix := range []string{"initial", "dynamic", "solution"} {
			_, err := os.Stat(filepath.Join(cfg.Run.OutputDir, fmt.Sprintf("map%d_%s.png", res.Index, suffix)))
			assert.NoError(t, err, suffix)
		}
	}

	runs, err := st.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 2, runs[0].MapIndex)
	assert.Equal(t, int64(5), runs[0].Seed)
	assert.Equal(t, len(results[1].Final), runs[0].FinalLength)
}

func TestRunnerIsReproducible(t *testing.T) {
	cfg := testConfig(t)

	first, err := NewRunner(cfg, discardLogger(), nil, nil).Run(context.Background())
	require.NoError(t, err)
	second, err := NewRunner(cfg, discardLogger(), nil, nil).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Start, second[i].Start)
		assert.Equal(t, first[i].Goal, second[i].Goal)
		assert.Equal(t, first[i].Search, second[i].Search)
		assert.Equal(t, first[i].Covered, second[i].Covered)
		assert.Equal(t, first[i].Final, second[i].Final)
	}
}

func TestRunnerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := NewRunner(testConfig(t), discardLogger(), nil, nil).Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

func TestRunnerUsesObstacleDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Map.Count = 1
	cfg.Map.ObstacleDir = t.TempDir()
	wall := `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},
		"geometry":{"type":"Polygon","coordinates":[[[0,40],[100,40],[100,60],[0,60],[0,40]]]}}]}`
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Map.ObstacleDir, "wall.geojson"), []byte(wall), 0o644))

	runner := NewRunner(cfg, discardLogger(), nil, nil)
	grid, err := runner.newGrid()
	require.NoError(t, err)
	assert.False(t, grid.IsFree(planner.Point{X: 50, Y: 50}))
	assert.True(t, grid.IsFree(planner.Point{X: 50, Y: 10}))

	results, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	for _, p := range results[0].Search {
		assert.False(t, p.Y >= 40 && p.Y < 60, "path crosses the wall at %v", p)
	}
}
