package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

const (
	totalsFileName = "totals.json"
	eventsDirName  = "events"
	jsonExt        = ".json"
)

// totalsFile is the on-disk shape of totals.json.
type totalsFile struct {
	Users *model.Totals `json:"users"`
}

// eventLog is the on-disk shape of events/<userID>.json.
type eventLog struct {
	Events []model.Event `json:"events"`
}

// FileStore keeps totals in one JSON document and each user's events in
// their own JSON document under dir.
type FileStore struct {
	settings
	dir string

	// gate is held shared by increments and exclusively by Reconcile.
	gate sync.RWMutex
	// users serializes increments per user.
	users *KeyedMutex
	// totalsMu serializes the read-modify-write of the shared totals file.
	totalsMu sync.Mutex

	closed atomic.Bool
}

var _ Store = (*FileStore)(nil)

// NewFileStore opens a file store rooted at dir, creating it when missing.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, eventsDirName), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{
		settings: newSettings(opts),
		dir:      dir,
		users:    NewKeyedMutex(),
	}, nil
}

func (s *FileStore) totalsPath() string {
	return filepath.Join(s.dir, totalsFileName)
}

func (s *FileStore) eventsPath(userID string) string {
	return filepath.Join(s.dir, eventsDirName, userID+jsonExt)
}

// RecordIncrement implements Store.RecordIncrement. The event log is written
// before the total, so an interrupted increment leaves the log ahead.
func (s *FileStore) RecordIncrement(ctx context.Context, userID string) (int, error) {
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

	s.gate.RLock()
	defer s.gate.RUnlock()
	unlock := s.users.Lock(userID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// Unreadable state fails the increment instead of being overwritten.
	events, err := s.loadEvents(userID)
	if err != nil {
		s.anomaly(ctx, "events", err, logger.String("user_id", userID))
		return 0, fmt.Errorf("%w: events of %s: %w", ErrWrite, userID, err)
	}
	if _, err := s.loadTotals(); err != nil {
		s.anomaly(ctx, "totals", err)
		return 0, fmt.Errorf("%w: totals: %w", ErrWrite, err)
	}

	events = append(events, model.NewEvent(s.now()))
	if err := writeJSONAtomic(s.eventsPath(userID), eventLog{Events: events}); err != nil {
		metrics.RecordErrorByComponent("repository", "write_events")
		return 0, fmt.Errorf("%w: events of %s: %w", ErrWrite, userID, err)
	}

	s.totalsMu.Lock()
	defer s.totalsMu.Unlock()

	totals, err := s.loadTotals()
	if err != nil {
		s.anomaly(ctx, "totals", err)
		return 0, fmt.Errorf("%w: totals: %w", ErrWrite, err)
	}
	total := totals.Add(userID, 1)
	if err := writeJSONAtomic(s.totalsPath(), totalsFile{Users: totals}); err != nil {
		metrics.RecordErrorByComponent("repository", "write_totals")
		return 0, fmt.Errorf("%w: totals: %w", ErrWrite, err)
	}
	metrics.UpdateTrackedUsers(totals.Len())
	return total, nil
}

// LoadEvents implements Store.LoadEvents.
func (s *FileStore) LoadEvents(ctx context.Context, userID string) []model.Event {
	if model.ValidateUserID(userID) != nil {
		return nil
	}
	return s.readEvents(ctx, userID)
}

// LoadAllTotals implements Store.LoadAllTotals.
func (s *FileStore) LoadAllTotals(ctx context.Context) *model.Totals {
	return s.readTotals(ctx)
}

// CountInWindow implements Store.CountInWindow.
func (s *FileStore) CountInWindow(ctx context.Context, userID string, start, end int64) int {
	return countInWindow(s.LoadEvents(ctx, userID), start, end)
}

// Audit implements Store.Audit. Users are reported in totals order, then
// users that only have an event log in file name order.
func (s *FileStore) Audit(ctx context.Context) ([]Discrepancy, error) {
	return s.audit(ctx, s.readTotals(ctx))
}

func (s *FileStore) audit(ctx context.Context, totals *model.Totals) ([]Discrepancy, error) {
	logged, err := s.loggedUsers()
	if err != nil {
		return nil, err
	}

	var out []Discrepancy
	for _, id := range totals.Users() {
		if n := len(s.LoadEvents(ctx, id)); n != totals.Get(id) {
			out = append(out, Discrepancy{UserID: id, Total: totals.Get(id), Events: n})
		}
	}
	for _, id := range logged {
		if totals.Has(id) {
			continue
		}
		if n := len(s.LoadEvents(ctx, id)); n > 0 {
			out = append(out, Discrepancy{UserID: id, Events: n})
		}
	}
	return out, nil
}

// Reconcile implements Store.Reconcile.
func (s *FileStore) Reconcile(ctx context.Context) (int, error) {
	s.gate.Lock()
	defer s.gate.Unlock()
	s.totalsMu.Lock()
	defer s.totalsMu.Unlock()

	totals := s.readTotals(ctx)
	diffs, err := s.audit(ctx, totals)
	if err != nil {
		return 0, err
	}
	if len(diffs) == 0 {
		return 0, nil
	}
	for _, d := range diffs {
		totals.Set(d.UserID, d.Events)
	}
	if err := writeJSONAtomic(s.totalsPath(), totalsFile{Users: totals}); err != nil {
		return 0, fmt.Errorf("%w: totals: %w", ErrWrite, err)
	}
	for _, d := range diffs {
		s.log.Info(ctx, "total reconciled from event log",
			logger.String("user_id", d.UserID), logger.Int("was", d.Total), logger.Int("now", d.Events))
	}
	metrics.UpdateTrackedUsers(totals.Len())
	return len(diffs), nil
}

// Close implements Store.Close. Later increments fail with ErrClosed.
func (s *FileStore) Close() error {
	s.closed.Store(true)
	return nil
}

// loggedUsers lists user IDs that have an event log file.
func (s *FileStore) loggedUsers() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, eventsDirName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list event logs: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, jsonExt) {
			continue
		}
		id := strings.TrimSuffix(name, jsonExt)
		if model.ValidateUserID(id) == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// loadEvents reads userID's log. A missing file is an empty log.
func (s *FileStore) loadEvents(userID string) ([]model.Event, error) {
	data, err := os.ReadFile(s.eventsPath(userID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var doc eventLog
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return doc.Events, nil
}

// loadTotals reads totals.json. A missing file is empty totals.
func (s *FileStore) loadTotals() (*model.Totals, error) {
	data, err := os.ReadFile(s.totalsPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.NewTotals(), nil
		}
		return nil, err
	}
	doc := totalsFile{Users: model.NewTotals()}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode totals: %w", err)
	}
	if doc.Users == nil {
		return model.NewTotals(), nil
	}
	return doc.Users, nil
}

// readEvents is loadEvents for read paths: failures are logged and read as empty.
func (s *FileStore) readEvents(ctx context.Context, userID string) []model.Event {
	events, err := s.loadEvents(userID)
	if err != nil {
		s.anomaly(ctx, "events", err, logger.String("user_id", userID))
		return nil
	}
	return events
}

func (s *FileStore) readTotals(ctx context.Context) *model.Totals {
	totals, err := s.loadTotals()
	if err != nil {
		s.anomaly(ctx, "totals", err)
		return model.NewTotals()
	}
	return totals
}

func (s *FileStore) anomaly(ctx context.Context, record string, err error, fields ...logger.Field) {
	metrics.RecordStoreReadAnomaly(record)
	fields = append(fields, logger.String("record", record), logger.Error(err))
	s.log.Warn(ctx, "unreadable store record treated as empty", fields...)
}
