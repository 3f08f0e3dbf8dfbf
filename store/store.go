// Package store keeps the history of planning runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"grid-replanner/planner"
)

// ErrNotFound is returned when no run has the requested ID.
var ErrNotFound = errors.New("run not found")

//go:embed migrations/*.sql
var migrations embed.FS

// Run is one map processed by the run loop.
type Run struct {
	ID        string
	CreatedAt time.Time
	MapIndex  int
	MapSize   int
	Seed      int64
	Start     planner.Point
	Goal      planner.Point

	SearchDuration time.Duration
	SearchLength   int
	CoveredCells   int // Path cells blocked by dynamic obstacles

	ReplanState    string
	ReplanDuration time.Duration
	ReplanLength   int
	Encounters     int
	Detours        int

	Fallback         bool // Replanning failed and the grid search ran again
	FallbackDuration time.Duration
	FinalLength      int
}

// Store is a SQLite-backed run history.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the database at path and applies pending migrations.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{logger: s.logger}

	// m is not closed: that would close the shared database handle.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// RecordRun inserts r, assigning an ID and creation time when unset.
func (s *Store) RecordRun(ctx context.Context, r *Run) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, created_at, map_index, map_size, seed,
			start_x, start_y, goal_x, goal_y,
			search_ns, search_length, covered_cells,
			replan_state, replan_ns, replan_length, encounters, detours,
			fallback, fallback_ns, final_length
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatedAt.UnixNano(), r.MapIndex, r.MapSize, r.Seed,
		r.Start.X, r.Start.Y, r.Goal.X, r.Goal.Y,
		int64(r.SearchDuration), r.SearchLength, r.CoveredCells,
		r.ReplanState, int64(r.ReplanDuration), r.ReplanLength, r.Encounters, r.Detours,
		r.Fallback, int64(r.FallbackDuration), r.FinalLength,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.ID, err)
	}
	s.logger.Debug("run recorded", "id", r.ID)
	return nil
}

const selectRun = `
	SELECT id, created_at, map_index, map_size, seed,
		start_x, start_y, goal_x, goal_y,
		search_ns, search_length, covered_cells,
		replan_state, replan_ns, replan_length, encounters, detours,
		fallback, fallback_ns, final_length
	FROM runs`

// GetRun returns the run with the given ID.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRuns returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectRun+` ORDER BY created_at DESC, map_index DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r                            Run
		created                      int64
		searchNs, replanNs, fallback int64
	)
	err := sc.Scan(
		&r.ID, &created, &r.MapIndex, &r.MapSize, &r.Seed,
		&r.Start.X, &r.Start.Y, &r.Goal.X, &r.Goal.Y,
		&searchNs, &r.SearchLength, &r.CoveredCells,
		&r.ReplanState, &replanNs, &r.ReplanLength, &r.Encounters, &r.Detours,
		&r.Fallback, &fallback, &r.FinalLength,
	)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = time.Unix(0, created)
	r.SearchDuration = time.Duration(searchNs)
	r.ReplanDuration = time.Duration(replanNs)
	r.FallbackDuration = time.Duration(fallback)
	return &r, nil
}

// migrateLogger implements migrate.Logger over slog.
type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf("[migrate] "+format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
