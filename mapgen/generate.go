// Package mapgen builds occupancy grids for planning runs: random obstacle
// fields, obstacles dropped onto an existing path, and maps imported from GeoJSON.
package mapgen

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"grid-replanner/planner"
)

// Obstacle size limits, as fractions of the map size.
const (
	MaxRadiusRatio     = 0.10 // Initial obstacles
	DynamicRadiusRatio = 0.05 // Obstacles dropped onto a path
	MinRadiusRatio     = 0.2  // Of the maximum radius

	curveSegments = 32
)

// Shape is the outline of a generated obstacle.
type Shape int

const (
	ShapeCircle Shape = iota
	ShapeEllipse
	ShapeTriangle
	ShapeRectangle
)

func (s Shape) String() string {
	switch s {
	case ShapeCircle:
		return "circle"
	case ShapeEllipse:
		return "ellipse"
	case ShapeTriangle:
		return "triangle"
	case ShapeRectangle:
		return "rectangle"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// Obstacle is a generated obstacle outline in cell coordinates, where cell
// (x, y) covers [x, x+1) x [y, y+1).
type Obstacle struct {
	Shape   Shape
	Anchor  planner.Point
	Polygon orb.Polygon
}

// Generate creates a size x size grid with count random obstacles.
func Generate(size, count int, rng *rand.Rand) *planner.Grid {
	g := planner.NewGrid(size, size)
	for _, ob := range RandomObstacles(size, count, rng) {
		Rasterize(g, ob.Polygon)
	}
	return g
}

// RandomObstacles places count obstacles fully inside a size x size map.
func RandomObstacles(size, count int, rng *rand.Rand) []Obstacle {
	if count <= 0 {
		return nil
	}
	maxRadius := int(math.Floor(float64(size) * MaxRadiusRatio))
	obstacles := make([]Obstacle, 0, count)
	for i := 0; i < count; i++ {
		anchor := planner.Point{
			X: randInt(rng, maxRadius, size-maxRadius),
			Y: randInt(rng, maxRadius, size-maxRadius),
		}
		obstacles = append(obstacles, newObstacle(anchor, maxRadius, false, rng))
	}
	return obstacles
}

// ObstacleAt builds a small obstacle centered on anchor, sized for a map of
// the given size the way dynamic obstacles are.
func ObstacleAt(anchor planner.Point, size int, rng *rand.Rand) Obstacle {
	maxRadius := int(math.Floor(float64(size) * DynamicRadiusRatio))
	return newObstacle(anchor, maxRadius, true, rng)
}

func newObstacle(anchor planner.Point, maxRadius int, pinned bool, rng *rand.Rand) Obstacle {
	minRadius := int(math.Floor(float64(maxRadius) * MinRadiusRatio))
	radius := float64(randInt(rng, minRadius, maxRadius))
	cx, cy := float64(anchor.X)+0.5, float64(anchor.Y)+0.5
	shape := Shape(rng.Intn(4))

	var poly orb.Polygon
	switch shape {
	case ShapeCircle:
		if !pinned {
			cx, cy = shift(rng, cx, cy, radius/2, radius/2)
		}
		poly = ellipse(cx, cy, radius, radius)
	case ShapeEllipse:
		ry := float64(randInt(rng, minRadius, maxRadius))
		rx := float64(randInt(rng, minRadius, maxRadius))
		if !pinned {
			cx, cy = shift(rng, cx, cy, rx/2, ry/2)
		}
		poly = ellipse(cx, cy, rx, ry)
	case ShapeTriangle:
		half := radius / 2
		poly = orb.Polygon{closed(orb.Ring{
			{cx - half, cy},
			{cx + half, cy},
			{cx, cy - radius},
		})}
	case ShapeRectangle:
		hi := 3
		if pinned {
			hi = 2
		}
		w := radius * float64(randInt(rng, 1, hi)) / 2
		h := radius * float64(randInt(rng, 1, hi)) / 2
		x0, y0 := cx-w, cy-h
		if !pinned {
			// Anchor on one of the four corners instead of the center.
			x0 += float64(rng.Intn(2)) * w
			y0 += float64(rng.Intn(2)) * h
		}
		poly = orb.Polygon{closed(orb.Ring{
			{x0, y0},
			{x0 + w, y0},
			{x0 + w, y0 + h},
			{x0, y0 + h},
		})}
	}
	return Obstacle{Shape: shape, Anchor: anchor, Polygon: poly}
}

// shift moves a center by up to one offset in each axis.
func shift(rng *rand.Rand, x, y, dx, dy float64) (float64, float64) {
	switch rng.Intn(3) {
	case 1:
		x -= math.Floor(dx)
	case 2:
		x += math.Floor(dx)
	}
	switch rng.Intn(3) {
	case 1:
		y += math.Floor(dy)
	case 2:
		y -= math.Floor(dy)
	}
	return x, y
}

func ellipse(cx, cy, rx, ry float64) orb.Polygon {
	ring := make(orb.Ring, 0, curveSegments+1)
	for i := 0; i < curveSegments; i++ {
		a := 2 * math.Pi * float64(i) / curveSegments
		ring = append(ring, orb.Point{cx + rx*math.Cos(a), cy + ry*math.Sin(a)})
	}
	return orb.Polygon{closed(ring)}
}

func closed(r orb.Ring) orb.Ring {
	if len(r) > 0 && !r.Closed() {
		r = append(r, r[0])
	}
	return r
}

// Rasterize blocks every cell of g whose center lies inside poly and returns
// how many cells changed from free to blocked.
func Rasterize(g *planner.Grid, poly orb.Polygon) int {
	if len(poly) == 0 || len(poly[0]) == 0 {
		return 0
	}
	w, h := g.Dimensions()
	b := poly.Bound()
	x0 := max(int(math.Floor(b.Min.X())), 0)
	y0 := max(int(math.Floor(b.Min.Y())), 0)
	x1 := min(int(math.Ceil(b.Max.X())), w-1)
	y1 := min(int(math.Ceil(b.Max.Y())), h-1)

	changed := 0
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			p := planner.Point{X: x, Y: y}
			if !g.IsFree(p) {
				continue
			}
			if planar.PolygonContains(poly, orb.Point{float64(x) + 0.5, float64(y) + 0.5}) {
				g.Block(p)
				changed++
			}
		}
	}
	return changed
}

// randInt returns a uniform integer in [lo, hi]; lo when the range is empty.
func randInt(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}
