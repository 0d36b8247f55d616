package telemetry

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/gwillem/rover/pkg/sensor"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	started_ns INTEGER NOT NULL,
	ended_ns   INTEGER,
	notes      TEXT
);
CREATE TABLE IF NOT EXISTS estimates (
	run_id      TEXT NOT NULL,
	ts_ns       INTEGER NOT NULL,
	channel     INTEGER NOT NULL,
	label       TEXT NOT NULL,
	distance_mm REAL NOT NULL,
	zone        TEXT NOT NULL,
	fault       TEXT,
	FOREIGN KEY(run_id) REFERENCES runs(run_id)
);
CREATE INDEX IF NOT EXISTS idx_estimates_run ON estimates(run_id, ts_ns);
CREATE TABLE IF NOT EXISTS zone_events (
	run_id      TEXT NOT NULL,
	ts_ns       INTEGER NOT NULL,
	channel     INTEGER NOT NULL,
	label       TEXT NOT NULL,
	from_zone   TEXT NOT NULL,
	to_zone     TEXT NOT NULL,
	distance_mm REAL NOT NULL,
	FOREIGN KEY(run_id) REFERENCES runs(run_id)
);
`

// Recorder persists snapshots and zone events of one run to SQLite.
// Write errors are logged and counted; they never stop the monitor.
type Recorder struct {
	db    *sql.DB
	runID string
	Logf  func(format string, args ...any)

	mu     sync.Mutex
	errors int
}

// OpenRecorder opens (or creates) the database at path and starts a new run.
func OpenRecorder(path, notes string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open recorder: %w", err)
	}
	// one writer; the monitor publishes from a single goroutine
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	r := &Recorder{db: db, runID: uuid.New().String(), Logf: log.Printf}
	_, err = db.Exec("INSERT INTO runs (run_id, started_ns, notes) VALUES (?, ?, ?)",
		r.runID, time.Now().UnixNano(), nullString(notes))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return r, nil
}

// RunID identifies the run being recorded.
func (r *Recorder) RunID() string {
	return r.runID
}

// Errors returns the number of failed writes.
func (r *Recorder) Errors() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors
}

func (r *Recorder) fail(what string, err error) {
	r.mu.Lock()
	r.errors++
	r.mu.Unlock()
	if r.Logf != nil {
		r.Logf("recorder: %s: %v", what, err)
	}
}

func (r *Recorder) PublishSnapshot(snap sensor.Snapshot) {
	if len(snap.Estimates) == 0 {
		return
	}
	if err := r.insertSnapshot(snap); err != nil {
		r.fail("insert snapshot", err)
	}
}

func (r *Recorder) insertSnapshot(snap sensor.Snapshot) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO estimates
		(run_id, ts_ns, channel, label, distance_mm, zone, fault)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	ts := snap.Time.UnixNano()
	for _, est := range snap.Estimates {
		var fault string
		if est.Fault != nil {
			fault = est.Fault.Error()
		}
		if _, err := stmt.Exec(r.runID, ts, est.Channel, est.Label, est.Distance, est.Zone.String(), nullString(fault)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Recorder) PublishZone(e sensor.ZoneEvent) {
	_, err := r.db.Exec(`INSERT INTO zone_events
		(run_id, ts_ns, channel, label, from_zone, to_zone, distance_mm)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.runID, e.Time.UnixNano(), e.Channel, e.Label, e.From.String(), e.To.String(), e.Distance)
	if err != nil {
		r.fail("insert zone event", err)
	}
}

// ZoneEvents returns the recorded zone events of the current run in order.
func (r *Recorder) ZoneEvents() ([]sensor.ZoneEvent, error) {
	rows, err := r.db.Query(`SELECT ts_ns, channel, label, from_zone, to_zone, distance_mm
		FROM zone_events WHERE run_id = ? ORDER BY rowid`, r.runID)
	if err != nil {
		return nil, fmt.Errorf("query zone events: %w", err)
	}
	defer rows.Close()

	var events []sensor.ZoneEvent
	for rows.Next() {
		var (
			ts       int64
			e        sensor.ZoneEvent
			from, to string
		)
		if err := rows.Scan(&ts, &e.Channel, &e.Label, &from, &to, &e.Distance); err != nil {
			return nil, fmt.Errorf("scan zone event: %w", err)
		}
		e.Time = time.Unix(0, ts)
		e.From = sensor.ParseZone(from)
		e.To = sensor.ParseZone(to)
		events = append(events, e)
	}
	return events, rows.Err()
}

// ChannelStats summarizes the recorded estimates of one channel.
type ChannelStats struct {
	Label   string
	Samples int
	MinMM   float64
	MeanMM  float64
	Faults  int
}

// Stats summarizes the current run per channel, ordered by channel index.
func (r *Recorder) Stats() ([]ChannelStats, error) {
	rows, err := r.db.Query(`SELECT label, COUNT(*), MIN(distance_mm), AVG(distance_mm), COUNT(fault)
		FROM estimates WHERE run_id = ? GROUP BY channel, label ORDER BY channel`, r.runID)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var stats []ChannelStats
	for rows.Next() {
		var s ChannelStats
		if err := rows.Scan(&s.Label, &s.Samples, &s.MinMM, &s.MeanMM, &s.Faults); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Close ends the run and closes the database.
func (r *Recorder) Close() error {
	_, err := r.db.Exec("UPDATE runs SET ended_ns = ? WHERE run_id = ?", time.Now().UnixNano(), r.runID)
	if cerr := r.db.Close(); err == nil {
		err = cerr
	}
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
