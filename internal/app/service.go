// Package service wires the event store, aggregators, renderer and name
// resolution into the operations the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/tally/internal/adapters/names"
	"github.com/okian/tally/internal/adapters/render"
	"github.com/okian/tally/internal/adapters/repository"
	"github.com/okian/tally/internal/domain/contribution"
	"github.com/okian/tally/internal/domain/dedupe"
	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/internal/domain/ranking"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

// Store drivers accepted by WithStoreDriver.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Service implements the API dependencies for the counter system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store         repository.Store
	deduper       dedupe.Deduper
	rankings      *ranking.Aggregator
	contributions *contribution.Aggregator
	renderer      *render.Renderer
	resolver      names.Resolver

	// Configuration
	storeDriver      string
	dataDir          string
	sqlitePath       string
	dedupeSize       int
	rankingLimit     int
	offsetMinutes    int
	lookupTimeout    time.Duration
	reconcileOnStart bool
	now              func() time.Time

	// State
	started bool
	ownsDB  bool

	logger logger.Logger
}

// components is what a request works with. ready hands out a copy taken
// under the lock, so a concurrent Stop never swaps them mid-call.
type components struct {
	store         repository.Store
	deduper       dedupe.Deduper
	rankings      *ranking.Aggregator
	contributions *contribution.Aggregator
	renderer      *render.Renderer
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore injects a ready store instead of opening one from the driver settings.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithStoreDriver selects the backend opened by Start: "file" or "sqlite".
func WithStoreDriver(driver string) Option {
	return func(s *Service) {
		if driver != "" {
			s.storeDriver = driver
		}
	}
}

// WithDataDir sets the file backend root.
func WithDataDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.dataDir = dir
		}
	}
}

// WithSQLitePath sets the sqlite backend database file.
func WithSQLitePath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.sqlitePath = path
		}
	}
}

// WithDedupeSize sets how many idempotency keys are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithRankingLimit sets the number of bars drawn, capped at render.MaxBars.
func WithRankingLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.rankingLimit = min(n, render.MaxBars)
		}
	}
}

// WithTimezoneOffset sets the offset in minutes used to bucket contributions.
func WithTimezoneOffset(minutes int) Option {
	return func(s *Service) {
		s.offsetMinutes = minutes
	}
}

// WithResolver sets the display name resolver. Without one every name falls back to User{n}.
func WithResolver(r names.Resolver) Option {
	return func(s *Service) {
		s.resolver = r
	}
}

// WithNameLookupTimeout bounds each display name lookup.
func WithNameLookupTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lookupTimeout = d
		}
	}
}

// WithReconcileOnStart rewrites counters from event logs during Start.
func WithReconcileOnStart(enabled bool) Option {
	return func(s *Service) {
		s.reconcileOnStart = enabled
	}
}

// WithClock sets the clock that resolves ranking windows.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		storeDriver:   DriverFile,
		dataDir:       "./data",
		sqlitePath:    "./data/tally.sqlite",
		dedupeSize:    10_000,
		rankingLimit:  render.MaxBars,
		offsetMinutes: 9 * 60,
		lookupTimeout: 2 * time.Second,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store and builds the components. It is a no-op when already started.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting tally service...")

	if s.store == nil {
		store, err := s.openStore(ctx)
		if err != nil {
			return err
		}
		s.store = store
		s.ownsDB = true
	}

	renderer, err := render.New()
	if err != nil {
		s.closeOwnedStore()
		return fmt.Errorf("init renderer: %w", err)
	}
	s.renderer = renderer
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.rankings = ranking.New(s.store)
	s.contributions = contribution.New(s.store)

	if s.reconcileOnStart {
		n, err := s.store.Reconcile(ctx)
		if err != nil {
			s.closeOwnedStore()
			return fmt.Errorf("reconcile: %w", err)
		}
		s.logger.Info(ctx, "reconciled totals from event logs", logger.Int("users", n))
	}

	totals := s.store.LoadAllTotals(ctx)
	metrics.UpdateTrackedUsers(totals.Len())

	s.started = true
	s.logger.Info(ctx, "tally service started",
		logger.String("store", s.storeDriver),
		logger.Int("users", totals.Len()),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("rankingLimit", s.rankingLimit),
		logger.Int("offsetMinutes", s.offsetMinutes),
	)
	return nil
}

func (s *Service) openStore(ctx context.Context) (repository.Store, error) {
	opts := []repository.Option{repository.WithLogger(s.logger.Named("store"))}
	switch s.storeDriver {
	case DriverFile:
		s.logger.Info(ctx, "using file store", logger.String("dir", s.dataDir))
		return repository.NewFileStore(s.dataDir, opts...)
	case DriverSQLite:
		s.logger.Info(ctx, "using sqlite store", logger.String("path", s.sqlitePath))
		return repository.NewSQLiteStore(ctx, s.sqlitePath, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, s.storeDriver)
	}
}

// Stop closes the store when the service opened it.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(context.Background(), "stopping tally service...")
	s.closeOwnedStore()
	s.started = false
	s.logger.Info(context.Background(), "tally service stopped")
}

func (s *Service) closeOwnedStore() {
	if !s.ownsDB {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(context.Background(), "close store", logger.Error(err))
	}
	s.store = nil
	s.ownsDB = false
}

func (s *Service) ready() (components, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return components{}, ErrNotStarted
	}
	return components{
		store:         s.store,
		deduper:       s.deduper,
		rankings:      s.rankings,
		contributions: s.contributions,
		renderer:      s.renderer,
	}, nil
}

// Increment records one increment for userID and returns the new total.
func (s *Service) Increment(ctx context.Context, userID string) (int, error) {
	c, err := s.ready()
	if err != nil {
		return 0, err
	}
	return s.increment(ctx, c.store, userID)
}

func (s *Service) increment(ctx context.Context, store repository.Store, userID string) (int, error) {
	total, err := store.RecordIncrement(ctx, userID)
	if err != nil {
		if !errors.Is(err, model.ErrInvalidUserID) {
			metrics.RecordIncrementError()
			s.logger.Error(ctx, "increment failed", logger.String("user_id", userID), logger.Error(err))
		}
		return 0, err
	}
	metrics.RecordIncrement()
	s.logger.Debug(ctx, "increment recorded", logger.String("user_id", userID), logger.Int("total", total))
	return total, nil
}

// IncrementOnce is Increment guarded by an idempotency key. A retried key
// returns the first total with replayed set. An empty key never deduplicates.
func (s *Service) IncrementOnce(ctx context.Context, userID, key string) (total int, replayed bool, err error) {
	if key == "" {
		total, err = s.Increment(ctx, userID)
		return total, false, err
	}
	c, err := s.ready()
	if err != nil {
		return 0, false, err
	}
	total, replayed, err = c.deduper.Do(ctx, userID+"\x00"+key, func(ctx context.Context) (int, error) {
		return s.increment(ctx, c.store, userID)
	})
	if replayed {
		metrics.RecordIdempotentReplay()
		s.logger.Debug(ctx, "increment replayed", logger.String("user_id", userID), logger.String("key", key))
	}
	return total, replayed, err
}

// Leaderboard ranks users for window at the service clock's now and names
// the top entries.
func (s *Service) Leaderboard(ctx context.Context, window model.Window) (model.Leaderboard, error) {
	c, err := s.ready()
	if err != nil {
		return model.Leaderboard{}, err
	}
	return s.leaderboard(ctx, c, window), nil
}

func (s *Service) leaderboard(ctx context.Context, c components, window model.Window) model.Leaderboard {
	all := c.rankings.Rank(ctx, window, s.now())
	top := ranking.Top(all, s.rankingLimit)
	labels := s.displayNames(ctx, top)

	entries := make([]model.RankedUser, len(top))
	for i, e := range top {
		entries[i] = model.RankedUser{Rank: i + 1, UserID: e.UserID, Name: labels[i], Count: e.Count}
	}
	return model.Leaderboard{Window: window, Participants: len(all), Entries: entries}
}

// RankingImage renders the leaderboard for window. It returns nil without
// error when nobody has events in the window.
func (s *Service) RankingImage(ctx context.Context, window model.Window) (*model.Image, error) {
	c, err := s.ready()
	if err != nil {
		return nil, err
	}
	lb := s.leaderboard(ctx, c, window)
	if len(lb.Entries) == 0 {
		return nil, nil
	}

	bars := make([]render.Bar, len(lb.Entries))
	for i, e := range lb.Entries {
		bars[i] = render.Bar{Label: e.Name, Value: e.Count}
	}
	data, err := c.renderer.RenderBarChart(render.BarChart{
		Title:        window.Title() + " Ranking",
		Bars:         bars,
		Participants: lb.Participants,
	})
	if err != nil {
		metrics.RecordErrorByComponent("render", "bar_chart")
		return nil, fmt.Errorf("render ranking: %w", err)
	}
	return &model.Image{Name: fmt.Sprintf("ranking-%s.png", window), Data: data}, nil
}

// Contributions returns userID's per-day counts ordered by date.
func (s *Service) Contributions(ctx context.Context, userID string) ([]model.ContributionBucket, error) {
	c, err := s.ready()
	if err != nil {
		return nil, err
	}
	if err := model.ValidateUserID(userID); err != nil {
		return nil, err
	}
	return contribution.Sorted(c.contributions.BucketByDay(ctx, userID, s.offsetMinutes)), nil
}

// ContributionImage renders userID's contribution calendar for the year
// ending today in the configured offset. Users without events get an empty grid.
func (s *Service) ContributionImage(ctx context.Context, userID string) (*model.Image, error) {
	c, err := s.ready()
	if err != nil {
		return nil, err
	}
	if err := model.ValidateUserID(userID); err != nil {
		return nil, err
	}
	days := c.contributions.BucketByDay(ctx, userID, s.offsetMinutes)
	title, ok := s.displayName(ctx, userID)
	if !ok {
		title = userID
	}
	end := s.now().UTC().Add(time.Duration(s.offsetMinutes) * time.Minute)

	data, err := c.renderer.RenderCalendar(render.Calendar{Title: title, Days: days, End: end})
	if err != nil {
		metrics.RecordErrorByComponent("render", "calendar")
		return nil, fmt.Errorf("render contributions: %w", err)
	}
	return &model.Image{Name: "contribution-graph.png", Data: data}, nil
}

// Events returns userID's raw event log.
func (s *Service) Events(ctx context.Context, userID string) ([]model.Event, error) {
	c, err := s.ready()
	if err != nil {
		return nil, err
	}
	if err := model.ValidateUserID(userID); err != nil {
		return nil, err
	}
	return c.store.LoadEvents(ctx, userID), nil
}

// Audit reports users whose totals disagree with their event logs.
func (s *Service) Audit(ctx context.Context) ([]repository.Discrepancy, error) {
	c, err := s.ready()
	if err != nil {
		return nil, err
	}
	return c.store.Audit(ctx)
}

func fallbackName(i int) string {
	return fmt.Sprintf("User%d", i+1)
}

// displayNames resolves a label per entry, falling back to User{n} on any failure.
func (s *Service) displayNames(ctx context.Context, entries []model.RankingEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		name, ok := s.displayName(ctx, e.UserID)
		if !ok {
			name = fallbackName(i)
			s.logger.Debug(ctx, "display name unavailable, using fallback",
				logger.String("user_id", e.UserID), logger.String("fallback", name))
		}
		out[i] = name
	}
	return out
}

func (s *Service) displayName(ctx context.Context, userID string) (string, bool) {
	if s.resolver == nil {
		metrics.RecordNameLookup(metrics.LookupFallback)
		return "", false
	}
	lctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()
	name, err := s.resolver.DisplayName(lctx, userID)
	if err != nil || name == "" {
		metrics.RecordNameLookup(metrics.LookupFallback)
		if err != nil {
			s.logger.Debug(ctx, "name lookup failed", logger.String("user_id", userID), logger.Error(err))
		}
		return "", false
	}
	return name, true
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":       s.started,
		"storeDriver":   s.storeDriver,
		"dedupeSize":    s.dedupeSize,
		"rankingLimit":  s.rankingLimit,
		"offsetMinutes": s.offsetMinutes,
	}
	if s.started {
		users := s.store.LoadAllTotals(context.Background()).Len()
		stats["trackedUsers"] = users
		stats["rememberedKeys"] = s.deduper.Size()
		metrics.UpdateTrackedUsers(users)
	}
	return stats
}
