package planner

import (
	"log/slog"
	"time"
)

// neighborOffsets is the fixed expansion order: left, right, up, down.
var neighborOffsets = [4]Point{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

// SearchStats describes the work done by the last grid search.
type SearchStats struct {
	Expanded int           // Cells popped and expanded
	Pushed   int           // Frontier insertions
	Duration time.Duration // Wall time of the search
}

// GridSearch is a one-shot uniform-cost search over the 4-connected grid with a
// Manhattan heuristic. It is historically called "D*" but never repairs costs
// incrementally; rerun it after the map changes.
type GridSearch struct {
	Logger *slog.Logger
	Stats  SearchStats
}

// Search computes a minimal-hop path with a fresh GridSearch.
func Search(m OccupancyMap, start, goal Point) Path {
	var gs GridSearch
	return gs.Search(m, start, goal)
}

// Search computes the shortest path from start to goal, or an empty Path when
// the goal is unreachable.
func (gs *GridSearch) Search(m OccupancyMap, start, goal Point) Path {
	began := time.Now()
	gs.Stats = SearchStats{}
	defer func() { gs.Stats.Duration = time.Since(began) }()

	if !m.IsFree(start) || !m.IsFree(goal) {
		gs.debug("search endpoints blocked", "start", start, "goal", goal)
		return NoPath()
	}

	width, height := m.Dimensions()
	cellOf := func(p Point) int { return p.Y*width + p.X }
	pointOf := func(c int) Point { return Point{X: c % width, Y: c / width} }

	// Cost-so-far and predecessor arenas, scoped to this call.
	cost := make([]int, width*height)
	cameFrom := make([]int, width*height)
	for i := range cost {
		cost[i] = -1
		cameFrom[i] = -1
	}

	startCell := cellOf(start)
	goalCell := cellOf(goal)
	cost[startCell] = 0

	var open Frontier
	open.Push(startCell, Manhattan(start, goal))
	gs.Stats.Pushed++

	found := false
	for open.Len() > 0 {
		cell, priority := open.Pop()
		current := pointOf(cell)

		// A cheaper entry for this cell was pushed after this one.
		if priority > cost[cell]+Manhattan(current, goal) {
			continue
		}

		if cell == goalCell {
			found = true
			break
		}
		gs.Stats.Expanded++

		for _, off := range neighborOffsets {
			neighbor := Point{X: current.X + off.X, Y: current.Y + off.Y}
			if !inBounds(width, height, neighbor) || !m.IsFree(neighbor) {
				continue
			}

			n := cellOf(neighbor)
			newCost := cost[cell] + 1
			if cost[n] == -1 || newCost < cost[n] {
				cost[n] = newCost
				cameFrom[n] = cell
				open.Push(n, newCost+Manhattan(neighbor, goal))
				gs.Stats.Pushed++
			}
		}
	}

	if !found {
		gs.debug("no path found", "start", start, "goal", goal, "expanded", gs.Stats.Expanded)
		return NoPath()
	}

	// Reconstruct path
	path := make(Path, 0, cost[goalCell]+1)
	for c := goalCell; c != -1; c = cameFrom[c] {
		path = append(path, pointOf(c))
	}
	path = path.Reversed()

	gs.debug("path found", "length", len(path), "expanded", gs.Stats.Expanded)
	return path
}

func (gs *GridSearch) debug(msg string, args ...any) {
	if gs.Logger != nil {
		gs.Logger.Debug(msg, args...)
	}
}
