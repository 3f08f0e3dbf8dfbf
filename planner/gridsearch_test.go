package planner

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchFreeMapIsManhattanOptimal(t *testing.T) {
	g := NewGrid(12, 9)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 50; i++ {
		start := Point{rng.Intn(12), rng.Intn(9)}
		goal := Point{rng.Intn(12), rng.Intn(9)}

		path := Search(g, start, goal)
		require.Len(t, path, Manhattan(start, goal)+1, "start %v goal %v", start, goal)
		assert.Equal(t, start, path.Start())
		assert.Equal(t, goal, path.Goal())
		assert.True(t, path.IsGridPath(g))
	}
}

func TestSearchScenarioA(t *testing.T) {
	g := NewGrid(5, 5)

	path := Search(g, Point{0, 0}, Point{4, 4})

	require.Len(t, path, 9)
	for i := 1; i < len(path); i++ {
		assert.GreaterOrEqual(t, path[i].X+path[i].Y, path[i-1].X+path[i-1].Y)
	}
}

func TestSearchScenarioBWall(t *testing.T) {
	g := NewGrid(10, 10)
	g.BlockRect(5, 0, 6, 10)

	path := Search(g, Point{1, 5}, Point{8, 5})

	assert.True(t, path.Empty())
	assert.NotNil(t, path)
}

func TestSearchEnclosedGoal(t *testing.T) {
	g := NewGrid(9, 9)
	goal := Point{4, 4}
	for _, p := range []Point{{3, 4}, {5, 4}, {4, 3}, {4, 5}} {
		g.Block(p)
	}

	assert.True(t, Search(g, Point{0, 0}, goal).Empty())
}

func TestSearchBlockedEndpoints(t *testing.T) {
	g := NewGrid(5, 5)
	g.Block(Point{4, 4})

	assert.True(t, Search(g, Point{0, 0}, Point{4, 4}).Empty())
	assert.True(t, Search(g, Point{4, 4}, Point{0, 0}).Empty())
}

func TestSearchStartIsGoal(t *testing.T) {
	g := NewGrid(5, 5)

	assert.Equal(t, Path{{2, 2}}, Search(g, Point{2, 2}, Point{2, 2}))
}

func TestSearchAroundObstacles(t *testing.T) {
	g := NewGrid(10, 10)
	// A wall with a gap at the bottom forces a detour.
	g.BlockRect(5, 0, 6, 9)

	path := Search(g, Point{0, 0}, Point{9, 0})

	require.False(t, path.Empty())
	assert.True(t, path.IsGridPath(g))
	// Down 9, across 9, back up 9.
	assert.Len(t, path, 28)
	assert.True(t, path.Contains(Point{5, 9}))
}

func TestSearchIsDeterministic(t *testing.T) {
	g := NewGrid(30, 30)
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		g.Block(Point{rng.Intn(30), rng.Intn(30)})
	}
	start, goal := Point{0, 0}, Point{29, 29}
	g.Clear(start)
	g.Clear(goal)

	first := Search(g, start, goal)
	second := Search(g, start, goal)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("search not deterministic (-first +second):\n%s", diff)
	}
	if !first.Empty() {
		assert.True(t, first.IsGridPath(g))
	}
}

func TestSearchTieBreakPrefersEarlierNeighbors(t *testing.T) {
	g := NewGrid(3, 3)

	// With FIFO ties and left/right/up/down expansion, the search runs along x first.
	path := Search(g, Point{0, 0}, Point{2, 2})

	want := Path{{0, 0}, {1, 0}, {2, 0}, {2, 1}, {2, 2}}
	if diff := cmp.Diff(want, path); diff != "" {
		t.Errorf("unexpected path (-want +got):\n%s", diff)
	}
}

func TestGridSearchStats(t *testing.T) {
	g := NewGrid(5, 5)
	var gs GridSearch

	path := gs.Search(g, Point{0, 0}, Point{4, 0})

	require.Len(t, path, 5)
	assert.Equal(t, 4, gs.Stats.Expanded)
	assert.GreaterOrEqual(t, gs.Stats.Pushed, 5)
}

func TestFrontierFIFOAmongEqualPriorities(t *testing.T) {
	var f Frontier
	f.Push(10, 3)
	f.Push(11, 1)
	f.Push(12, 3)
	f.Push(13, 1)

	var order []int
	for f.Len() > 0 {
		cell, _ := f.Pop()
		order = append(order, cell)
	}

	assert.Equal(t, []int{11, 13, 10, 12}, order)
}
