// Package telemetry records what a run did: a SQLite history of runs, state
// changes and saved images, live messages over MQTT or Kafka, and the
// per-cycle image dumps.
package telemetry

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    mode        TEXT NOT NULL,
    algorithm   TEXT NOT NULL,
    started_at  TEXT NOT NULL,
    finished_at TEXT,
    runtime     TEXT NOT NULL DEFAULT '',
    dumped      INTEGER NOT NULL DEFAULT 0,
    held        INTEGER NOT NULL DEFAULT 0,
    cycles      INTEGER NOT NULL DEFAULT 0,
    cycle_mean_ms REAL NOT NULL DEFAULT 0,
    cycle_p95_ms  REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS events (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    kind      TEXT NOT NULL,
    detail    TEXT NOT NULL DEFAULT '',
    held      INTEGER NOT NULL DEFAULT 0,
    dumped    INTEGER NOT NULL DEFAULT 0,
    at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS images (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    category   TEXT NOT NULL,
    path       TEXT NOT NULL,
    generation INTEGER NOT NULL,
    at         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id);
CREATE INDEX IF NOT EXISTS idx_images_run ON images(run_id);
`

// Store wraps the SQLite run history.
type Store struct {
	*sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{DB: db, now: time.Now}, nil
}

func (s *Store) stamp() string { return s.now().UTC().Format(time.RFC3339Nano) }

// Run is one row of the runs table.
type Run struct {
	ID          string         `json:"id"`
	Mode        string         `json:"mode,omitempty"`
	Algorithm   string         `json:"algorithm,omitempty"`
	StartedAt   string         `json:"started_at,omitempty"`
	FinishedAt  sql.NullString `json:"-"`
	Runtime     string         `json:"runtime"`
	Dumped      int            `json:"dumped"`
	Held        int            `json:"held"`
	Cycles      int            `json:"cycles"`
	CycleMeanMS float64        `json:"cycle_mean_ms"`
	CycleP95MS  float64        `json:"cycle_p95_ms"`
}

// Event is one row of the events table.
type Event struct {
	ID     int64
	RunID  string
	Kind   string
	Detail string
	Held   int
	Dumped int
	At     string
}

// Image is one row of the images table.
type Image struct {
	Category   string
	Path       string
	Generation int
}

// StartRun inserts a run and returns its generated id.
func (s *Store) StartRun(mode, algorithm string) (string, error) {
	id := uuid.NewString()
	_, err := s.Exec(`INSERT INTO runs (id, mode, algorithm, started_at) VALUES (?, ?, ?, ?)`,
		id, mode, algorithm, s.stamp())
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun stores the final counters of a run.
func (s *Store) FinishRun(r Run) error {
	_, err := s.Exec(`
		UPDATE runs
		SET finished_at = ?, runtime = ?, dumped = ?, held = ?, cycles = ?, cycle_mean_ms = ?, cycle_p95_ms = ?
		WHERE id = ?`,
		s.stamp(), r.Runtime, r.Dumped, r.Held, r.Cycles, r.CycleMeanMS, r.CycleP95MS, r.ID)
	return err
}

func (s *Store) InsertEvent(e Event) (int64, error) {
	res, err := s.Exec(`INSERT INTO events (run_id, kind, detail, held, dumped, at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Kind, e.Detail, e.Held, e.Dumped, s.stamp())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) InsertImage(runID string, img Image) error {
	_, err := s.Exec(`INSERT INTO images (run_id, category, path, generation, at) VALUES (?, ?, ?, ?, ?)`,
		runID, img.Category, img.Path, img.Generation, s.stamp())
	return err
}

func (s *Store) GetRun(id string) (Run, error) {
	var r Run
	err := s.QueryRow(`
		SELECT id, mode, algorithm, started_at, finished_at, runtime, dumped, held, cycles, cycle_mean_ms, cycle_p95_ms
		FROM runs WHERE id = ?`, id).
		Scan(&r.ID, &r.Mode, &r.Algorithm, &r.StartedAt, &r.FinishedAt, &r.Runtime, &r.Dumped, &r.Held, &r.Cycles, &r.CycleMeanMS, &r.CycleP95MS)
	return r, err
}

func (s *Store) ListEvents(runID string) ([]Event, error) {
	rows, err := s.Query(`
		SELECT id, run_id, kind, detail, held, dumped, at
		FROM events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.RunID, &e.Kind, &e.Detail, &e.Held, &e.Dumped, &e.At); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) CountImages(runID string) (int, error) {
	var n int
	err := s.QueryRow(`SELECT COUNT(*) FROM images WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}
