// Package store persists detection runs to sqlite for auditing. Each run row
// records the inputs and summary of one detection; accepted locations hang
// off it in order.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/grove-data/canopy.report/internal/geo"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Run is one recorded detection run.
type Run struct {
	RunID            string       `json:"run_id"`
	OrchardID        int64        `json:"orchard_id"`
	SurveyID         int64        `json:"survey_id"`
	MissingTreeCount int          `json:"missing_tree_count"`
	DetectedCount    int          `json:"detected_count"`
	HealthyTreeCount int          `json:"healthy_tree_count"`
	ExpectedSpacingM float64      `json:"expected_spacing_m"`
	RowAligned       bool         `json:"row_aligned"`
	DurationMs       int64        `json:"duration_ms"`
	CreatedAtNs      int64        `json:"created_at_ns"`
	Locations        []geo.LatLon `json:"locations"`
}

// Store provides run persistence backed by sqlite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies pending
// migrations. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migration setup: %w", err)
	}
	// Closing m would close the shared DB connection, so it is left to the GC.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// RecordRun inserts the run and its locations in one transaction. An empty
// RunID gets a fresh UUID; a zero CreatedAtNs gets the current time.
func (s *Store) RecordRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAtNs == 0 {
		run.CreatedAtNs = time.Now().UnixNano()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin run insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO detection_runs (
			run_id, orchard_id, survey_id, missing_tree_count, detected_count,
			healthy_tree_count, expected_spacing_m, row_aligned, duration_ms,
			created_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.OrchardID, run.SurveyID, run.MissingTreeCount,
		run.DetectedCount, run.HealthyTreeCount, run.ExpectedSpacingM,
		run.RowAligned, run.DurationMs, run.CreatedAtNs,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, loc := range run.Locations {
		_, err = tx.Exec(`
			INSERT INTO detection_locations (run_id, position, latitude, longitude)
			VALUES (?, ?, ?, ?)`,
			run.RunID, i, loc.Lat, loc.Lon,
		)
		if err != nil {
			return fmt.Errorf("insert run location %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run insert: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first, with their locations.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT run_id, orchard_id, survey_id, missing_tree_count, detected_count,
		       healthy_tree_count, expected_spacing_m, row_aligned, duration_ms,
		       created_at_ns
		FROM detection_runs
		ORDER BY created_at_ns DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(
			&r.RunID, &r.OrchardID, &r.SurveyID, &r.MissingTreeCount,
			&r.DetectedCount, &r.HealthyTreeCount, &r.ExpectedSpacingM,
			&r.RowAligned, &r.DurationMs, &r.CreatedAtNs,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	for i := range runs {
		locs, err := s.runLocations(runs[i].RunID)
		if err != nil {
			return nil, err
		}
		runs[i].Locations = locs
	}
	return runs, nil
}

// RunsByOrchard returns the orchard's runs, newest first.
func (s *Store) RunsByOrchard(orchardID int64, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT run_id, orchard_id, survey_id, missing_tree_count, detected_count,
		       healthy_tree_count, expected_spacing_m, row_aligned, duration_ms,
		       created_at_ns
		FROM detection_runs
		WHERE orchard_id = ?
		ORDER BY created_at_ns DESC
		LIMIT ?`, orchardID, limit)
	if err != nil {
		return nil, fmt.Errorf("query orchard runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(
			&r.RunID, &r.OrchardID, &r.SurveyID, &r.MissingTreeCount,
			&r.DetectedCount, &r.HealthyTreeCount, &r.ExpectedSpacingM,
			&r.RowAligned, &r.DurationMs, &r.CreatedAtNs,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orchard runs: %w", err)
	}

	for i := range runs {
		locs, err := s.runLocations(runs[i].RunID)
		if err != nil {
			return nil, err
		}
		runs[i].Locations = locs
	}
	return runs, nil
}

func (s *Store) runLocations(runID string) ([]geo.LatLon, error) {
	rows, err := s.db.Query(`
		SELECT latitude, longitude
		FROM detection_locations
		WHERE run_id = ?
		ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run locations: %w", err)
	}
	defer rows.Close()

	locs := []geo.LatLon{}
	for rows.Next() {
		var l geo.LatLon
		if err := rows.Scan(&l.Lat, &l.Lon); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locs = append(locs, l)
	}
	return locs, rows.Err()
}
