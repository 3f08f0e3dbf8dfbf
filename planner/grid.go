package planner

// OccupancyMap is the read-only view of the planning space.
// Points outside the map are never free.
type OccupancyMap interface {
	IsFree(p Point) bool
	Dimensions() (width, height int)
}

// Grid is a FREE/BLOCKED occupancy grid stored as a flat arena.
// It is not safe for concurrent mutation; mutate only between planning calls.
type Grid struct {
	width   int
	height  int
	blocked []bool
}

// NewGrid creates an all-free grid.
func NewGrid(width, height int) *Grid {
	if width <= 0 || height <= 0 {
		panic("planner: grid dimensions must be positive")
	}
	return &Grid{
		width:   width,
		height:  height,
		blocked: make([]bool, width*height),
	}
}

// Dimensions implements OccupancyMap.
func (g *Grid) Dimensions() (int, int) {
	return g.width, g.height
}

func (g *Grid) InBounds(p Point) bool {
	return inBounds(g.width, g.height, p)
}

// IsFree implements OccupancyMap.
func (g *Grid) IsFree(p Point) bool {
	return g.InBounds(p) && !g.blocked[p.Y*g.width+p.X]
}

// Block marks a cell as an obstacle. Out-of-bounds points are ignored.
func (g *Grid) Block(p Point) {
	if g.InBounds(p) {
		g.blocked[p.Y*g.width+p.X] = true
	}
}

// Clear marks a cell as free. Out-of-bounds points are ignored.
func (g *Grid) Clear(p Point) {
	if g.InBounds(p) {
		g.blocked[p.Y*g.width+p.X] = false
	}
}

// BlockRect blocks every cell in the half-open rectangle [x0,x1)×[y0,y1).
func (g *Grid) BlockRect(x0, y0, x1, y1 int) {
	for y := max(y0, 0); y < min(y1, g.height); y++ {
		for x := max(x0, 0); x < min(x1, g.width); x++ {
			g.blocked[y*g.width+x] = true
		}
	}
}

// BlockedCount returns the number of obstacle cells.
func (g *Grid) BlockedCount() int {
	n := 0
	for _, b := range g.blocked {
		if b {
			n++
		}
	}
	return n
}

// Clone returns an independent copy, used to plan against a snapshot.
func (g *Grid) Clone() *Grid {
	blocked := make([]bool, len(g.blocked))
	copy(blocked, g.blocked)
	return &Grid{width: g.width, height: g.height, blocked: blocked}
}

func inBounds(width, height int, p Point) bool {
	return p.X >= 0 && p.X < width && p.Y >= 0 && p.Y < height
}
