package planner

import (
	"fmt"
	"math"

	"github.com/dhconnelly/rtreego"
)

// NearestIndex stores tree nodes in insertion order and answers nearest-node queries.
// Implementations must agree exactly: nearest by Euclidean distance, earliest
// insertion among equal distances.
type NearestIndex interface {
	// Insert adds p; its index is the number of points inserted before it.
	Insert(p Point)
	// Nearest returns the index of the node closest to q, or -1 when empty.
	Nearest(q Point) int
	Len() int
}

// Index names accepted by IndexByName.
const (
	IndexLinear = "linear"
	IndexRTree  = "rtree"
)

// IndexByName returns a constructor for the named nearest-node index.
func IndexByName(name string) (func() NearestIndex, error) {
	switch name {
	case "", IndexLinear:
		return NewLinearIndex, nil
	case IndexRTree:
		return NewRTreeIndex, nil
	default:
		return nil, fmt.Errorf("unknown nearest index %q", name)
	}
}

// LinearIndex scans every node on each query.
type LinearIndex struct {
	points []Point
}

func NewLinearIndex() NearestIndex {
	return &LinearIndex{}
}

func (li *LinearIndex) Insert(p Point) { li.points = append(li.points, p) }

func (li *LinearIndex) Len() int { return len(li.points) }

// Nearest finds the closest node to a given point
func (li *LinearIndex) Nearest(q Point) int {
	if len(li.points) == 0 {
		return -1
	}

	nearestID := 0
	minDist := q.SquaredDistance(li.points[0])

	for i := 1; i < len(li.points); i++ {
		dist := q.SquaredDistance(li.points[i])
		if dist < minDist {
			minDist = dist
			nearestID = i
		}
	}

	return nearestID
}

// nodeEntry wraps a tree node for R-tree storage
type nodeEntry struct {
	ID    int
	Point Point
	BBox  rtreego.Rect
}

// Bounds implements rtreego.Spatial interface
func (n *nodeEntry) Bounds() rtreego.Rect {
	return n.BBox
}

// nodeTolerance is the half-size of the box stored for each node.
const nodeTolerance = 0.25

// RTreeIndex answers nearest-node queries with an R-tree, then resolves ties
// exactly over the candidates inside the nearest distance.
type RTreeIndex struct {
	tree   *rtreego.Rtree
	points []Point
}

func NewRTreeIndex() NearestIndex {
	return &RTreeIndex{
		tree: rtreego.NewTree(2, 25, 50), // 2D, min 25, max 50 entries per node
	}
}

func (ri *RTreeIndex) Len() int { return len(ri.points) }

func (ri *RTreeIndex) Insert(p Point) {
	bbox, err := squareAround(p, nodeTolerance)
	if err != nil {
		panic(fmt.Sprintf("planner: node box: %v", err))
	}
	ri.tree.Insert(&nodeEntry{ID: len(ri.points), Point: p, BBox: bbox})
	ri.points = append(ri.points, p)
}

func (ri *RTreeIndex) Nearest(q Point) int {
	if len(ri.points) == 0 {
		return -1
	}

	// The R-tree answer is within box tolerance of the true nearest distance,
	// so every true candidate lies inside a window of that radius.
	approx := ri.tree.NearestNeighbor(rtreego.Point{float64(q.X), float64(q.Y)}).(*nodeEntry)
	radius := math.Sqrt(float64(q.SquaredDistance(approx.Point))) + 1

	window, err := squareAround(q, radius)
	if err != nil {
		return approx.ID
	}

	nearestID := approx.ID
	minDist := q.SquaredDistance(approx.Point)
	for _, item := range ri.tree.SearchIntersect(window) {
		entry := item.(*nodeEntry)
		dist := q.SquaredDistance(entry.Point)
		if dist < minDist || (dist == minDist && entry.ID < nearestID) {
			minDist = dist
			nearestID = entry.ID
		}
	}

	return nearestID
}

// squareAround returns the axis-aligned square of half-size r centered on p.
func squareAround(p Point, r float64) (rtreego.Rect, error) {
	return rtreego.NewRect(
		rtreego.Point{float64(p.X) - r, float64(p.Y) - r},
		[]float64{2 * r, 2 * r},
	)
}
