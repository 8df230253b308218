package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS totals (
	user_id TEXT PRIMARY KEY,
	total   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	ts      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_user_ts ON events(user_id, ts);
`

// SQLiteStore keeps totals and events in two tables of one SQLite database.
// An increment writes both in one transaction.
type SQLiteStore struct {
	settings
	db     *sql.DB
	users  *KeyedMutex
	closed atomic.Bool
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path with WAL mode and a
// busy timeout, then creates the schema.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=rwc&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate",
		url.PathEscape(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db.SetMaxOpenConns(4)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteStore{
		settings: newSettings(opts),
		db:       db,
		users:    NewKeyedMutex(),
	}, nil
}

// RecordIncrement implements Store.RecordIncrement.
func (s *SQLiteStore) RecordIncrement(ctx context.Context, userID string) (int, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency("increment", float64(time.Since(start).Microseconds())/1000)
	}()

	if err := model.ValidateUserID(userID); err != nil {
		return 0, err
	}
	if s.closed.Load() {
		return 0, ErrClosed
	}

	unlock := s.users.Lock(userID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	total, err := s.increment(ctx, userID, model.NewEvent(s.now()))
	if err != nil {
		metrics.RecordErrorByComponent("repository", "write_tx")
		return 0, fmt.Errorf("%w: %s: %w", ErrWrite, userID, err)
	}
	return total, nil
}

func (s *SQLiteStore) increment(ctx context.Context, userID string, ev model.Event) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (user_id, ts) VALUES (?, ?)`, userID, ev.Timestamp); err != nil {
		return 0, err
	}

	var total int
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO totals (user_id, total) VALUES (?, 1)
		ON CONFLICT(user_id) DO UPDATE SET total = total + 1
		RETURNING total`, userID).Scan(&total); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

// LoadEvents implements Store.LoadEvents.
func (s *SQLiteStore) LoadEvents(ctx context.Context, userID string) []model.Event {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts FROM events WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		s.anomaly(ctx, "events", err, logger.String("user_id", userID))
		return nil
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		if err := rows.Scan(&ev.Timestamp); err != nil {
			s.anomaly(ctx, "events", err, logger.String("user_id", userID))
			return nil
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		s.anomaly(ctx, "events", err, logger.String("user_id", userID))
		return nil
	}
	return events
}

// LoadAllTotals implements Store.LoadAllTotals. Rows come back in rowid
// order, which is first-insertion order.
func (s *SQLiteStore) LoadAllTotals(ctx context.Context) *model.Totals {
	totals := model.NewTotals()
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, total FROM totals ORDER BY rowid`)
	if err != nil {
		s.anomaly(ctx, "totals", err)
		return totals
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    string
			total int
		)
		if err := rows.Scan(&id, &total); err != nil {
			s.anomaly(ctx, "totals", err)
			return model.NewTotals()
		}
		totals.Set(id, total)
	}
	if err := rows.Err(); err != nil {
		s.anomaly(ctx, "totals", err)
		return model.NewTotals()
	}
	return totals
}

// CountInWindow implements Store.CountInWindow.
func (s *SQLiteStore) CountInWindow(ctx context.Context, userID string, start, end int64) int {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE user_id = ? AND ts BETWEEN ? AND ?`,
		userID, start, end).Scan(&n); err != nil {
		s.anomaly(ctx, "events", err, logger.String("user_id", userID))
		return 0
	}
	return n
}

const auditQuery = `
SELECT user_id, total, events FROM (
	SELECT t.rowid AS pos, t.user_id, t.total,
	       (SELECT COUNT(*) FROM events e WHERE e.user_id = t.user_id) AS events
	FROM totals t
	UNION ALL
	SELECT COALESCE((SELECT MAX(rowid) FROM totals), 0) + MIN(e.id), e.user_id, 0, COUNT(*)
	FROM events e
	WHERE e.user_id NOT IN (SELECT user_id FROM totals)
	GROUP BY e.user_id
)
WHERE total != events
ORDER BY pos`

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func audit(ctx context.Context, q querier) ([]Discrepancy, error) {
	rows, err := q.QueryContext(ctx, auditQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Discrepancy
	for rows.Next() {
		var d Discrepancy
		if err := rows.Scan(&d.UserID, &d.Total, &d.Events); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Audit implements Store.Audit.
func (s *SQLiteStore) Audit(ctx context.Context) ([]Discrepancy, error) {
	diffs, err := audit(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	return diffs, nil
}

// Reconcile implements Store.Reconcile in a single transaction.
func (s *SQLiteStore) Reconcile(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %w", ErrWrite, err)
	}
	defer func() { _ = tx.Rollback() }()

	diffs, err := audit(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("audit: %w", err)
	}
	for _, d := range diffs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO totals (user_id, total) VALUES (?, ?)
			ON CONFLICT(user_id) DO UPDATE SET total = excluded.total`, d.UserID, d.Events); err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrWrite, d.UserID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", ErrWrite, err)
	}
	for _, d := range diffs {
		s.log.Info(ctx, "total reconciled from event log",
			logger.String("user_id", d.UserID), logger.Int("was", d.Total), logger.Int("now", d.Events))
	}
	return len(diffs), nil
}

// Close implements Store.Close.
func (s *SQLiteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) anomaly(ctx context.Context, record string, err error, fields ...logger.Field) {
	metrics.RecordStoreReadAnomaly(record)
	fields = append(fields, logger.String("record", record), logger.Error(err))
	s.log.Warn(ctx, "unreadable store record treated as empty", fields...)
}
