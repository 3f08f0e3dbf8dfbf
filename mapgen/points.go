package mapgen

import (
	"errors"
	"fmt"
	"math/rand"

	"grid-replanner/planner"
)

// ErrNoFreeSpace is returned when the map has fewer free cells than requested.
var ErrNoFreeSpace = errors.New("not enough free cells")

// samplesPerPoint bounds rejection sampling before falling back to a full scan.
const samplesPerPoint = 50

// SelectFreePoints picks count distinct free cells uniformly at random.
func SelectFreePoints(m planner.OccupancyMap, count int, rng *rand.Rand) ([]planner.Point, error) {
	if count <= 0 {
		return nil, nil
	}
	w, h := m.Dimensions()

	points := make([]planner.Point, 0, count)
	seen := make(map[planner.Point]bool, count)
	attempts := 0
	maxAttempts := count * samplesPerPoint

	for len(points) < count && attempts < maxAttempts {
		attempts++
		p := planner.Point{X: rng.Intn(w), Y: rng.Intn(h)}
		if seen[p] || !m.IsFree(p) {
			continue
		}
		seen[p] = true
		points = append(points, p)
	}
	if len(points) == count {
		return points, nil
	}

	// Crowded map: draw the rest from the enumerated free cells.
	var free []planner.Point
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := planner.Point{X: x, Y: y}
			if m.IsFree(p) && !seen[p] {
				free = append(free, p)
			}
		}
	}
	missing := count - len(points)
	if len(free) < missing {
		return nil, fmt.Errorf("%w: want %d, map has %d", ErrNoFreeSpace, count, len(points)+len(free))
	}
	rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })
	return append(points, free[:missing]...), nil
}
