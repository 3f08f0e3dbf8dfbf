package mapgen

import (
	"math"
	"math/rand"

	"grid-replanner/planner"
)

// PathMarginRatio is the share of the path at each end that never receives a
// dynamic obstacle.
const PathMarginRatio = 0.15

// InjectDynamicObstacles drops count small obstacles onto cells of path, each
// anchored on a still uncovered path cell away from both ends. The anchor cell
// is always blocked. Start and goal are cleared afterwards so the path stays
// repairable. It returns the number of path cells that ended up blocked.
func InjectDynamicObstacles(g *planner.Grid, path planner.Path, count int, rng *rand.Rand) int {
	if path.Empty() {
		return 0
	}
	w, h := g.Dimensions()
	size := max(w, h)

	uncovered := path.Clone()
	for i := 0; i < count && len(uncovered) > 0; i++ {
		anchor := pickPathPoint(uncovered, rng)
		ob := ObstacleAt(anchor, size, rng)
		Rasterize(g, ob.Polygon)
		g.Block(anchor)

		uncovered = freeCells(g, uncovered)
	}

	g.Clear(path.Start())
	g.Clear(path.Goal())

	covered := 0
	for _, p := range path {
		if !g.IsFree(p) {
			covered++
		}
	}
	return covered
}

// pickPathPoint chooses a random point outside the first and last
// PathMarginRatio of path, or anywhere on path when it is too short.
func pickPathPoint(path planner.Path, rng *rand.Rand) planner.Point {
	margin := int(math.Floor(float64(len(path)) * PathMarginRatio))
	lo, hi := margin, len(path)-margin
	if lo >= hi {
		lo, hi = 0, len(path)
	}
	return path[lo+rng.Intn(hi-lo)]
}

func freeCells(m planner.OccupancyMap, path planner.Path) planner.Path {
	kept := path[:0:0]
	for _, p := range path {
		if m.IsFree(p) {
			kept = append(kept, p)
		}
	}
	return kept
}
