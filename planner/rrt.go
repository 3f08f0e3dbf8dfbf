package planner

import (
	"log/slog"
	"math/rand"
	"time"
)

const (
	// DefaultMaxIterations is the RRT sampling budget when none is configured.
	DefaultMaxIterations = 2500
	// DefaultStepSize is the RRT expansion step in cells.
	DefaultStepSize = 4
)

// TreeOptions configures a TreePlanner.
type TreeOptions struct {
	MaxIterations int                 // Sampling budget; zero or less never grows
	StepSize      int                 // Maximum edge length in cells
	Rand          *rand.Rand          // Sample source; seed it for reproducible runs
	NewIndex      func() NearestIndex // Nearest-node index, linear scan when nil
	Logger        *slog.Logger
}

// TreeStats describes the last Grow call.
type TreeStats struct {
	Iterations int
	Nodes      int
	Reached    bool
	Target     Point
	Duration   time.Duration
}

// TreePlanner grows a rapidly-exploring random tree from one or more roots until
// it reaches any of a set of targets.
type TreePlanner struct {
	opts  TreeOptions
	Stats TreeStats
}

// NewTreePlanner fills defaults for a zero step, a nil random source and a nil index.
func NewTreePlanner(opts TreeOptions) *TreePlanner {
	if opts.StepSize < 1 {
		opts.StepSize = DefaultStepSize
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.NewIndex == nil {
		opts.NewIndex = NewLinearIndex
	}
	return &TreePlanner{opts: opts}
}

// StepSize returns the configured expansion step.
func (tp *TreePlanner) StepSize() int { return tp.opts.StepSize }

// tree is the node arena of one Grow call.
type tree struct {
	nodes   []Point
	parents []int       // Parent node per node, -1 for roots
	ids     map[Point]int
	index   NearestIndex
	rootPos map[int]int // Root node -> position in the roots slice
}

func (t *tree) add(p Point, parent int) int {
	id := len(t.nodes)
	t.nodes = append(t.nodes, p)
	t.parents = append(t.parents, parent)
	t.ids[p] = id
	t.index.Insert(p)
	return id
}

// Grow searches from roots toward targets. roots is the already-confirmed prefix of
// a route (a single start for standalone planning); every root seeds the tree. The
// result is the prefix up to the root the branch grew from, followed by the branch
// ending at the reached target. An empty Path is returned when the budget runs out.
func (tp *TreePlanner) Grow(m OccupancyMap, roots, targets []Point) Path {
	began := time.Now()
	tp.Stats = TreeStats{}
	defer func() { tp.Stats.Duration = time.Since(began) }()

	if tp.opts.MaxIterations <= 0 || len(roots) == 0 || len(targets) == 0 {
		return NoPath()
	}

	width, height := m.Dimensions()
	step := float64(tp.opts.StepSize)
	resolution := SegmentResolution(tp.opts.StepSize)
	rng := tp.opts.Rand

	t := &tree{
		ids:     make(map[Point]int, len(roots)),
		index:   tp.opts.NewIndex(),
		rootPos: make(map[int]int, len(roots)),
	}
	for i, r := range roots {
		if _, dup := t.ids[r]; dup {
			continue
		}
		t.rootPos[t.add(r, -1)] = i
	}
	for _, target := range targets {
		if id, ok := t.ids[target]; ok && m.IsFree(target) {
			tp.Stats.Nodes = len(t.nodes)
			tp.Stats.Reached = true
			tp.Stats.Target = target
			return t.extract(roots, id)
		}
	}

	for i := 0; i < tp.opts.MaxIterations; i++ {
		tp.Stats.Iterations = i + 1

		// Random point in map
		sample := Point{X: rng.Intn(width), Y: rng.Intn(height)}
		nearID := t.index.Nearest(sample)
		nearest := t.nodes[nearID]
		if sample == nearest {
			continue
		}

		// Steer towards the random point; truncating each axis toward zero keeps
		// the edge no longer than the step.
		length := nearest.Distance(sample)
		ux := float64(sample.X-nearest.X) / length
		uy := float64(sample.Y-nearest.Y) / length
		next := Point{
			X: nearest.X + int(step*ux),
			Y: nearest.Y + int(step*uy),
		}
		if next == nearest || !inBounds(width, height, next) {
			continue
		}
		if _, seen := t.ids[next]; seen {
			continue
		}
		if !IsCollisionFree(m, nearest, next, resolution) {
			continue
		}
		newID := t.add(next, nearID)

		for _, target := range targets {
			if !m.IsFree(target) {
				continue
			}
			if next.Distance(target) >= step {
				continue
			}

			goalID := newID
			if target != next {
				if !IsCollisionFree(m, next, target, resolution) {
					continue
				}
				goalID = t.add(target, newID)
			}

			tp.Stats.Nodes = len(t.nodes)
			tp.Stats.Reached = true
			tp.Stats.Target = target
			tp.debug("tree reached target", "target", target, "iterations", i+1, "nodes", len(t.nodes))
			return t.extract(roots, goalID)
		}
	}

	tp.Stats.Nodes = len(t.nodes)
	tp.debug("tree budget exhausted", "iterations", tp.Stats.Iterations, "nodes", len(t.nodes))
	return NoPath()
}

// extract backtracks from goalID to its root and prepends the confirmed prefix before that root.
func (t *tree) extract(roots []Point, goalID int) Path {
	var branch Path
	id := goalID
	for {
		branch = append(branch, t.nodes[id])
		if t.parents[id] == -1 {
			break
		}
		id = t.parents[id]
	}

	prefix := roots[:t.rootPos[id]]
	path := make(Path, 0, len(prefix)+len(branch))
	path = append(path, prefix...)
	for i := len(branch) - 1; i >= 0; i-- {
		path = append(path, branch[i])
	}
	return path
}

func (tp *TreePlanner) debug(msg string, args ...any) {
	if tp.opts.Logger != nil {
		tp.opts.Logger.Debug(msg, args...)
	}
}
