package planner

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// Direction is the order in which the replanner walks a stale path.
type Direction int

const (
	// GoalToStart walks from the goal back toward the start.
	GoalToStart Direction = iota
	// StartToGoal walks from the start toward the goal.
	StartToGoal
)

func (d Direction) String() string {
	switch d {
	case GoalToStart:
		return "goal-to-start"
	case StartToGoal:
		return "start-to-goal"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ParseDirection accepts the names produced by Direction.String.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "", "goal-to-start":
		return GoalToStart, nil
	case "start-to-goal":
		return StartToGoal, nil
	default:
		return 0, fmt.Errorf("unknown walk direction %q", s)
	}
}

// State is a replanner state.
type State int

const (
	StateWalking State = iota
	StateDetouring
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateWalking:
		return "walking"
	case StateDetouring:
		return "detouring"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ReplanOptions configures a Replanner.
type ReplanOptions struct {
	Threshold     int // Obstacle encounters tolerated before giving up; raised to 1
	MaxIterations int
	StepSize      int
	Direction     Direction
	Rand          *rand.Rand
	NewIndex      func() NearestIndex
	Logger        *slog.Logger
}

// ReplanResult is the outcome of one Replan call.
type ReplanResult struct {
	Path       Path  // Repaired path in start-to-goal order, empty on failure
	State      State // StateSucceeded or StateFailed
	Encounters int   // Blocked path cells met during the walk
	Detours    int   // Successful tree detours spliced into the path
	Duration   time.Duration
}

// Replanner repairs a previously valid path after obstacles were injected, using
// tree detours instead of a full grid search while disruption stays below the
// threshold. A failed result is the caller's cue to rerun Search.
type Replanner struct {
	opts ReplanOptions
	tree *TreePlanner
}

func NewReplanner(opts ReplanOptions) *Replanner {
	if opts.Threshold < 1 {
		opts.Threshold = 1
	}
	tp := NewTreePlanner(TreeOptions{
		MaxIterations: opts.MaxIterations,
		StepSize:      opts.StepSize,
		Rand:          opts.Rand,
		NewIndex:      opts.NewIndex,
		Logger:        opts.Logger,
	})
	return &Replanner{opts: opts, tree: tp}
}

// Threshold returns the effective obstacle threshold.
func (r *Replanner) Threshold() int { return r.opts.Threshold }

// replanState is the per-call walk state.
type replanState struct {
	walk       Path // Stale path in walk order
	cursor     int  // Next walk index to examine
	confirmed  Path
	encounters int
	detours    int
	state      State
}

// Replan walks stale in the configured direction, confirming free cells and
// detouring around blocked ones.
func (r *Replanner) Replan(m OccupancyMap, stale Path) ReplanResult {
	began := time.Now()
	st := r.run(m, stale)

	result := ReplanResult{
		Path:       NoPath(),
		State:      st.state,
		Encounters: st.encounters,
		Detours:    st.detours,
		Duration:   time.Since(began),
	}
	if st.state == StateSucceeded {
		result.Path = st.confirmed
		if r.opts.Direction == GoalToStart {
			result.Path = st.confirmed.Reversed()
		}
	}
	return result
}

func (r *Replanner) run(m OccupancyMap, stale Path) *replanState {
	st := &replanState{state: StateWalking}
	if stale.Empty() {
		st.state = StateFailed
		return st
	}

	st.walk = stale.Clone()
	if r.opts.Direction == GoalToStart {
		st.walk = stale.Reversed()
	}
	last := len(st.walk) - 1

	if !m.IsFree(st.walk[0]) {
		r.debug("walk origin is blocked", "point", st.walk[0])
		st.state = StateFailed
		return st
	}
	st.confirmed = Path{st.walk[0]}
	if last == 0 {
		st.state = StateSucceeded
		return st
	}
	st.cursor = 1

	for st.state == StateWalking {
		next := st.walk[st.cursor]

		if m.IsFree(next) {
			st.confirmed = append(st.confirmed, next)
			if st.cursor == last {
				st.state = StateSucceeded
				break
			}
			st.cursor++
			continue
		}

		st.encounters++
		r.debug("obstacle detected", "point", next, "encounters", st.encounters)
		if st.encounters > r.opts.Threshold {
			r.debug("obstacle threshold exceeded", "threshold", r.opts.Threshold)
			st.state = StateFailed
			break
		}

		st.state = StateDetouring
		r.detour(m, st)
	}

	return st
}

// detour grows a tree from the confirmed prefix to the unvisited remainder and
// resumes the walk after the reconnection point.
func (r *Replanner) detour(m OccupancyMap, st *replanState) {
	targets := st.walk[st.cursor+1:]
	if len(targets) == 0 {
		st.state = StateFailed
		return
	}

	spliced := r.tree.Grow(m, st.confirmed, targets)
	if spliced.Empty() {
		r.debug("detour failed", "iterations", r.tree.Stats.Iterations)
		st.state = StateFailed
		return
	}

	rejoin := st.walk.IndexOf(spliced.Goal(), st.cursor+1)
	st.confirmed = spliced
	st.detours++
	r.debug("detour found", "rejoin", spliced.Goal(), "length", len(spliced))

	if rejoin == len(st.walk)-1 {
		st.state = StateSucceeded
		return
	}
	st.cursor = rejoin + 1
	st.state = StateWalking
}

func (r *Replanner) debug(msg string, args ...any) {
	if r.opts.Logger != nil {
		r.opts.Logger.Debug(msg, args...)
	}
}
