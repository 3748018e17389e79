package history

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed holder can keep a distributed lock.
const DefaultLockTTL = 30 * time.Second

// pruneKey serialises Prune calls across processes.
const pruneKey = "prune"

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates access to stored reports.
// Per-ID locks are reference counted and dropped once unused.
type Manager struct {
	store ports.ReportStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	keep    int
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithRetention makes Record prune everything but the n most recent reports.
// Zero keeps all of them.
func WithRetention(n int) Option {
	return func(m *Manager) {
		m.keep = n
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager over store.
func NewManager(store ports.ReportStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Entry summarises one stored report.
type Entry struct {
	ID         string         `json:"id"`
	Plan       string         `json:"plan,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Summary    domain.Summary `json:"summary"`
	Passed     bool           `json:"passed"`
}

func (m *Manager) acquire(id string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	return entry
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, id)
	}
}

// Record stores a finished report under its run ID and applies the retention policy.
func (m *Manager) Record(ctx context.Context, report *domain.Report) error {
	if report == nil || report.RunID == "" {
		return fmt.Errorf("report has no run ID")
	}
	err := m.WithLock(ctx, report.RunID, func(ctx context.Context) error {
		return m.store.Save(ctx, report.RunID, report)
	})
	if err != nil {
		return err
	}
	m.logger.Debug("report recorded", "run", report.RunID, "plan", report.Plan)

	if m.keep > 0 {
		if _, err := m.Prune(ctx, m.keep); err != nil {
			return fmt.Errorf("apply retention: %w", err)
		}
	}
	return nil
}

// Load retrieves a report.
func (m *Manager) Load(ctx context.Context, id string) (*domain.Report, error) {
	var report *domain.Report
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		var err error
		report, err = m.store.Load(ctx, id)
		return err
	})
	return report, err
}

// Delete removes a report.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		return m.store.Delete(ctx, id)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Entries summarises every stored report, most recent first. Reports that vanish
// between List and Load are skipped.
func (m *Manager) Entries(ctx context.Context) ([]Entry, error) {
	ids, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		report, err := m.Load(ctx, id)
		if errors.Is(err, domain.ErrReportNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load report %s: %w", id, err)
		}
		entries = append(entries, Entry{
			ID:         id,
			Plan:       report.Plan,
			StartedAt:  report.StartedAt,
			FinishedAt: report.FinishedAt,
			Summary:    report.Summary(),
			Passed:     report.Passed(),
		})
	}

	slices.SortFunc(entries, func(a, b Entry) int {
		return cmp.Or(b.StartedAt.Compare(a.StartedAt), cmp.Compare(a.ID, b.ID))
	})
	return entries, nil
}

// Latest returns the most recent report of the named plan, or of any plan when plan
// is empty.
func (m *Manager) Latest(ctx context.Context, plan string) (*domain.Report, error) {
	entries, err := m.Entries(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if plan == "" || e.Plan == plan {
			return m.Load(ctx, e.ID)
		}
	}
	return nil, domain.ErrReportNotFound
}

// Prune deletes all but the keep most recent reports and returns the deleted IDs.
func (m *Manager) Prune(ctx context.Context, keep int) ([]string, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep must not be negative, got %d", keep)
	}

	var removed []string
	err := m.WithLock(ctx, pruneKey, func(ctx context.Context) error {
		entries, err := m.Entries(ctx)
		if err != nil {
			return err
		}
		if len(entries) <= keep {
			return nil
		}
		for _, e := range entries[keep:] {
			if err := m.Delete(ctx, e.ID); err != nil {
				return fmt.Errorf("delete report %s: %w", e.ID, err)
			}
			removed = append(removed, e.ID)
		}
		return nil
	})
	if len(removed) > 0 {
		m.logger.Info("reports pruned", "count", len(removed), "kept", keep)
	}
	return removed, err
}

// Store returns the underlying report store.
func (m *Manager) Store() ports.ReportStore {
	return m.store
}

// WithLock executes fn while holding the lock for id.
func (m *Manager) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	entry := m.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(id)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, id, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"report", id,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
