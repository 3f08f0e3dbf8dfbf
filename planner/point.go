// Package planner finds and repairs collision-free routes on a 2D occupancy grid.
//
// Three planners share the primitives in this package: a uniform-cost grid search
// (Search), a rapidly-exploring random tree (TreePlanner) and a replanner that walks
// a stale path and detours around newly blocked cells (Replanner).
package planner

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Point is a grid cell coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

// Orb converts the cell coordinate to a planar orb point.
func (p Point) Orb() orb.Point {
	return orb.Point{float64(p.X), float64(p.Y)}
}

// Distance calculates Euclidean distance between two points
func (p Point) Distance(other Point) float64 {
	return math.Sqrt(float64(p.SquaredDistance(other)))
}

// SquaredDistance is exact for integer cells, which keeps nearest-node ties stable.
func (p Point) SquaredDistance(other Point) int {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return dx*dx + dy*dy
}

// Manhattan returns the 4-connected hop distance between two cells.
func Manhattan(a, b Point) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

// IsAdjacent4 reports whether two cells share an edge.
func IsAdjacent4(a, b Point) bool {
	return Manhattan(a, b) == 1
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Path is an ordered route from Start to Goal. An empty Path means no route was found.
type Path []Point

// NoPath is the failure result shared by every planner.
func NoPath() Path {
	return Path{}
}

func (p Path) Empty() bool { return len(p) == 0 }

func (p Path) Len() int { return len(p) }

// Start returns the first point. It panics on an empty path.
func (p Path) Start() Point { return p[0] }

// Goal returns the last point. It panics on an empty path.
func (p Path) Goal() Point { return p[len(p)-1] }

// IndexOf returns the index of the first occurrence of pt at or after from, or -1.
func (p Path) IndexOf(pt Point, from int) int {
	for i := max(from, 0); i < len(p); i++ {
		if p[i] == pt {
			return i
		}
	}
	return -1
}

func (p Path) Contains(pt Point) bool {
	return p.IndexOf(pt, 0) >= 0
}

// Reversed returns a reversed copy.
func (p Path) Reversed() Path {
	out := make(Path, len(p))
	for i, pt := range p {
		out[len(p)-1-i] = pt
	}
	return out
}

// Clone returns a copy that does not alias p.
func (p Path) Clone() Path {
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// LineString converts the path to an orb line string.
func (p Path) LineString() orb.LineString {
	ls := make(orb.LineString, 0, len(p))
	for _, pt := range p {
		ls = append(ls, pt.Orb())
	}
	return ls
}

// Length returns the travelled Euclidean length in cells.
func (p Path) Length() float64 {
	if len(p) < 2 {
		return 0
	}
	return planar.Length(p.LineString())
}

// IsGridPath checks the grid-search invariant: every cell is free and
// consecutive cells are 4-adjacent.
func (p Path) IsGridPath(m OccupancyMap) bool {
	for i, pt := range p {
		if !m.IsFree(pt) {
			return false
		}
		if i > 0 && !IsAdjacent4(p[i-1], pt) {
			return false
		}
	}
	return true
}

// IsTreePath checks the tree invariant for a given step size: every segment is
// collision-free at the tree's sampling density and no longer than step.
func (p Path) IsTreePath(m OccupancyMap, step int) bool {
	for i := 1; i < len(p); i++ {
		if p[i-1].Distance(p[i]) > float64(step) {
			return false
		}
		if !IsCollisionFree(m, p[i-1], p[i], SegmentResolution(step)) {
			return false
		}
	}
	return true
}
