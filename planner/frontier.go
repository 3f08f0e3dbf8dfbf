package planner

import (
	"container/heap"
)

// frontierItem is a cell waiting to be expanded by the grid search.
type frontierItem struct {
	Cell     int // Index of the cell in the search arena
	Priority int // g + h
	Seq      int // Insertion order, breaks priority ties FIFO
}

// frontierQueue implements heap.Interface ordered by (Priority, Seq).
type frontierQueue []frontierItem

func (pq frontierQueue) Len() int { return len(pq) }

func (pq frontierQueue) Less(i, j int) bool {
	if pq[i].Priority != pq[j].Priority {
		return pq[i].Priority < pq[j].Priority
	}
	return pq[i].Seq < pq[j].Seq
}

func (pq frontierQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
}

func (pq *frontierQueue) Push(x interface{}) {
	*pq = append(*pq, x.(frontierItem))
}

func (pq *frontierQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[0 : n-1]
	return item
}

// Frontier is a min-priority queue of cells with stable FIFO ordering among equal priorities.
type Frontier struct {
	items frontierQueue
	seq   int
}

func (f *Frontier) Len() int { return f.items.Len() }

// Push adds a cell with the given priority.
func (f *Frontier) Push(cell, priority int) {
	heap.Push(&f.items, frontierItem{Cell: cell, Priority: priority, Seq: f.seq})
	f.seq++
}

// Pop removes the lowest-priority cell, oldest first among ties.
func (f *Frontier) Pop() (cell, priority int) {
	item := heap.Pop(&f.items).(frontierItem)
	return item.Cell, item.Priority
}
