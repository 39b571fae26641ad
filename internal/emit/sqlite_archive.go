package emit

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/constellation-router/internal/logging"
	"github.com/signalsfoundry/constellation-router/model"
)

const driverName = "sqlite"

//go:embed schema.sql
var schemaSQL string

// dsn builds a modernc.org/sqlite DSN with _pragma=key(value) pairs.
func dsn(path string, pragmas [][2]string) string {
	s := path
	for i, p := range pragmas {
		if i == 0 {
			s += "?"
		} else {
			s += "&"
		}
		s += "_pragma=" + p[0] + "(" + p[1] + ")"
	}
	return s
}

// StepSummary describes one archived step.
type StepSummary struct {
	TimeNs           int64
	Policy           string
	Tagged           bool
	Full             bool
	Records          int
	BandwidthRecords int
}

// SQLiteArchive keeps every step of every run so any historical table can
// be rebuilt. Runs are keyed by run id.
type SQLiteArchive struct {
	db     *sql.DB
	runID  string
	policy string
	log    logging.Logger
}

// NewSQLiteArchive opens (creating if needed) the archive at path. Steps
// written through it are filed under runID.
func NewSQLiteArchive(ctx context.Context, path, runID, policy string, log logging.Logger) (*SQLiteArchive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	db, err := sql.Open(driverName, dsn(path, [][2]string{{"journal_mode", "WAL"}, {"foreign_keys", "1"}}))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	return newArchive(ctx, db, path, runID, policy, log)
}

// NewInMemoryArchive creates an in-memory archive for tests.
func NewInMemoryArchive(ctx context.Context, runID, policy string, log logging.Logger) (*SQLiteArchive, error) {
	db, err := sql.Open(driverName, dsn(":memory:", [][2]string{{"foreign_keys", "1"}}))
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory archive: %w", err)
	}
	// Every pooled connection would get its own empty in-memory database.
	db.SetMaxOpenConns(1)
	return newArchive(ctx, db, ":memory:", runID, policy, log)
}

func newArchive(ctx context.Context, db *sql.DB, path, runID, policy string, log logging.Logger) (*SQLiteArchive, error) {
	if log == nil {
		log = logging.Noop()
	}
	a := &SQLiteArchive{db: db, runID: runID, policy: policy, log: log.With(logging.String("component", "archive"))}
	if err := a.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate archive: %w", err)
	}
	a.log.Info(ctx, "opened archive", logging.String("path", path), logging.String("run_id", runID))
	return a, nil
}

func (a *SQLiteArchive) migrate(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}

// RunID is the run steps are written under.
func (a *SQLiteArchive) RunID() string { return a.runID }

// Write stores the step, replacing any earlier copy of the same step.
func (a *SQLiteArchive) Write(ctx context.Context, step Step) (err error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM steps WHERE run_id = ? AND time_ns = ?`, a.runID, step.TimeNs); err != nil {
		return fmt.Errorf("delete step: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO steps (run_id, time_ns, policy, tagged, full_table, records, bandwidth_records) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.runID, step.TimeNs, a.policy, step.Tagged, step.Full, len(step.Records), len(step.Bandwidth)); err != nil {
		return fmt.Errorf("insert step: %w", err)
	}

	fwd, err := tx.PrepareContext(ctx,
		`INSERT INTO forwarding_deltas (run_id, time_ns, src, dst, path_id, next_hop, local_if, remote_if) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare forwarding insert: %w", err)
	}
	defer fwd.Close()
	for _, r := range step.Records {
		if _, err = fwd.ExecContext(ctx, a.runID, step.TimeNs, r.Src, r.Dst, r.PathID, r.NextHop, r.LocalInterface, r.RemoteInterface); err != nil {
			return fmt.Errorf("insert forwarding record %s: %w", FormatRecord(r, true), err)
		}
	}

	bw, err := tx.PrepareContext(ctx,
		`INSERT INTO bandwidth (run_id, time_ns, node, iface, bandwidth) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare bandwidth insert: %w", err)
	}
	defer bw.Close()
	for _, b := range step.Bandwidth {
		if _, err = bw.ExecContext(ctx, a.runID, step.TimeNs, b.Node, b.Interface, b.Bandwidth); err != nil {
			return fmt.Errorf("insert bandwidth record %s: %w", FormatBandwidth(b), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Runs lists archived run ids.
func (a *SQLiteArchive) Runs(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT DISTINCT run_id FROM steps ORDER BY run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Steps lists the archived steps of runID in time order.
func (a *SQLiteArchive) Steps(ctx context.Context, runID string) ([]StepSummary, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT time_ns, policy, tagged, full_table, records, bandwidth_records FROM steps WHERE run_id = ? ORDER BY time_ns`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StepSummary
	for rows.Next() {
		var s StepSummary
		if err := rows.Scan(&s.TimeNs, &s.Policy, &s.Tagged, &s.Full, &s.Records, &s.BandwidthRecords); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// TableAt rebuilds the forwarding table of runID at step upTo by replaying
// the archived deltas.
func (a *SQLiteArchive) TableAt(ctx context.Context, runID string, upTo int64, numSatellites int) (*model.Table, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT time_ns, src, dst, path_id, next_hop, local_if, remote_if
		   FROM forwarding_deltas
		  WHERE run_id = ? AND time_ns <= ?
		  ORDER BY time_ns, src, dst, path_id`, runID, upTo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	table := model.NewTable()
	var batch []model.Record
	current := int64(-1)
	flush := func() {
		table.Apply(numSatellites, batch)
		table.Normalize()
		batch = batch[:0]
	}
	for rows.Next() {
		var ns int64
		var r model.Record
		if err := rows.Scan(&ns, &r.Src, &r.Dst, &r.PathID, &r.NextHop, &r.LocalInterface, &r.RemoteInterface); err != nil {
			return nil, err
		}
		if ns != current && len(batch) > 0 {
			flush()
		}
		current = ns
		batch = append(batch, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(batch) > 0 {
		flush()
	}
	return table, nil
}

// BandwidthAt returns the bandwidth assignment archived for one step.
func (a *SQLiteArchive) BandwidthAt(ctx context.Context, runID string, timeNs int64) ([]model.BandwidthRecord, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT node, iface, bandwidth FROM bandwidth WHERE run_id = ? AND time_ns = ? ORDER BY node, iface`, runID, timeNs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.BandwidthRecord
	for rows.Next() {
		var b model.BandwidthRecord
		if err := rows.Scan(&b.Node, &b.Interface, &b.Bandwidth); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
