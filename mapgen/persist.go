package mapgen

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"grid-replanner/planner"
)

// ErrInvalidMapFile is returned for map files whose rows do not match the
// declared dimensions or contain unknown cell codes.
var ErrInvalidMapFile = errors.New("invalid map file")

const (
	freeCode    = '.'
	blockedCode = '#'
)

// Snapshot is a map together with the planning state attached to it.
type Snapshot struct {
	Grid  *planner.Grid
	Start planner.Point
	Goal  planner.Point
	Path  planner.Path
}

// snapshotFile is the on-disk form. Rows are run-length encoded, e.g. "12.3#5."
// is 12 free cells, 3 blocked cells and 5 free cells.
type snapshotFile struct {
	Width  int           `json:"width"`
	Height int           `json:"height"`
	Rows   []string      `json:"rows"`
	Start  planner.Point `json:"start"`
	Goal   planner.Point `json:"goal"`
	Path   planner.Path  `json:"path,omitempty"`
}

func (s *Snapshot) MarshalJSON() ([]byte, error) {
	if s.Grid == nil {
		return nil, fmt.Errorf("%w: no grid", ErrInvalidMapFile)
	}
	w, h := s.Grid.Dimensions()
	f := snapshotFile{
		Width:  w,
		Height: h,
		Rows:   make([]string, h),
		Start:  s.Start,
		Goal:   s.Goal,
		Path:   s.Path,
	}
	for y := 0; y < h; y++ {
		f.Rows[y] = EncodeRow(s.Grid, y)
	}
	return json.Marshal(f)
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var f snapshotFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if f.Width <= 0 || f.Height <= 0 || len(f.Rows) != f.Height {
		return fmt.Errorf("%w: %dx%d with %d rows", ErrInvalidMapFile, f.Width, f.Height, len(f.Rows))
	}

	g := planner.NewGrid(f.Width, f.Height)
	for y, row := range f.Rows {
		if err := decodeRow(g, y, row); err != nil {
			return err
		}
	}
	*s = Snapshot{Grid: g, Start: f.Start, Goal: f.Goal, Path: f.Path}
	return nil
}

// EncodeRow run-length encodes row y of g.
func EncodeRow(g *planner.Grid, y int) string {
	w, _ := g.Dimensions()
	var sb strings.Builder
	run, free := 0, true
	for x := 0; x < w; x++ {
		f := g.IsFree(planner.Point{X: x, Y: y})
		if x > 0 && f != free {
			writeRun(&sb, run, free)
			run = 0
		}
		free = f
		run++
	}
	writeRun(&sb, run, free)
	return sb.String()
}

func writeRun(sb *strings.Builder, n int, free bool) {
	sb.WriteString(strconv.Itoa(n))
	if free {
		sb.WriteByte(freeCode)
	} else {
		sb.WriteByte(blockedCode)
	}
}

func decodeRow(g *planner.Grid, y int, row string) error {
	w, _ := g.Dimensions()
	x, start := 0, 0
	for i := 0; i < len(row); i++ {
		c := row[i]
		if c >= '0' && c <= '9' {
			continue
		}
		n, err := strconv.Atoi(row[start:i])
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: row %d: bad run length %q", ErrInvalidMapFile, y, row[start:i])
		}
		switch c {
		case freeCode:
		case blockedCode:
			for k := x; k < x+n && k < w; k++ {
				g.Block(planner.Point{X: k, Y: y})
			}
		default:
			return fmt.Errorf("%w: row %d: unknown cell code %q", ErrInvalidMapFile, y, c)
		}
		x += n
		start = i + 1
	}
	if start != len(row) || x != w {
		return fmt.Errorf("%w: row %d covers %d of %d cells", ErrInvalidMapFile, y, x, w)
	}
	return nil
}

// SaveSnapshot writes s to filename as JSON.
func SaveSnapshot(s *Snapshot, filename string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal map: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// LoadSnapshot reads a map written by SaveSnapshot.
func LoadSnapshot(filename string) (*Snapshot, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal map: %w", err)
	}
	return &s, nil
}
