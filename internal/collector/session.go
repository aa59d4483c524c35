// Package collector runs the poll loop that feeds the vehicle store.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/frost-warsaw/frost/internal/ingest"
	"github.com/frost-warsaw/frost/internal/model"
	"github.com/frost-warsaw/frost/internal/store"
	"github.com/frost-warsaw/frost/internal/umapi"
)

// ErrAlreadyStarted is returned when a session is opened or run twice.
var ErrAlreadyStarted = errors.New("collector: session already started")

// ErrNotOpen is returned by Run before a successful Open.
var ErrNotOpen = errors.New("collector: session store not open")

const defaultSummaryTimeout = 10 * time.Second

// State is the lifecycle position of a Session.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Fetcher returns one validated payload per call, retrying internally.
// It only fails when ctx is done.
type Fetcher interface {
	Fetch(ctx context.Context, class model.VehicleClass) (*umapi.Payload, error)
}

// BatchObserver is told about every batch after it is persisted.
type BatchObserver interface {
	ObserveBatch(batch model.PollBatch)
}

// Config controls a Session.
type Config struct {
	Driver       store.Driver
	DBPath       string
	StoreOptions store.Options

	Interval       time.Duration
	Classes        []model.VehicleClass
	SummaryTimeout time.Duration
	Observer       BatchObserver
	Logger         *log.Logger
}

// Session is one run of the collection loop, from Open until ctx is done.
type Session struct {
	id      string
	cfg     Config
	fetcher Fetcher
	logger  *log.Logger

	mu        sync.Mutex
	state     State
	store     *store.Store
	startedAt time.Time
	stoppedAt time.Time

	cycles    atomic.Int64
	persisted atomic.Int64
	abandoned atomic.Int64
}

// NewSession prepares a session. Nothing is created until Open.
func NewSession(fetcher Fetcher, cfg Config) *Session {
	if cfg.Interval <= 0 {
		cfg.Interval = model.DefaultPollInterval
	}
	if len(cfg.Classes) == 0 {
		cfg.Classes = model.VehicleClasses
	}
	if cfg.SummaryTimeout <= 0 {
		cfg.SummaryTimeout = defaultSummaryTimeout
	}
	if cfg.Driver == "" {
		cfg.Driver = store.DriverSQLite
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	if cfg.StoreOptions.Logger == nil {
		cfg.StoreOptions.Logger = logger
	}
	return &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger,
	}
}

// ID returns the session's unique id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open creates the session's store and its schema. It fails with
// store.ErrStoreExists when a store is already present at the configured
// path; the session is then stopped and never polls.
func (s *Session) Open() (*store.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateNotStarted || s.store != nil {
		return nil, ErrAlreadyStarted
	}

	st, err := store.Create(s.cfg.Driver, s.cfg.DBPath, s.cfg.StoreOptions)
	if err != nil {
		s.state = StateStopped
		return nil, fmt.Errorf("collector: open store: %w", err)
	}
	s.store = st
	return st, nil
}

// Run polls every configured vehicle class once per interval until ctx is
// done, then returns the session summary. Classes are polled one after the
// other and each batch is persisted before the next fetch starts.
// The caller closes the store returned by Open.
func (s *Session) Run(ctx context.Context) (model.Summary, error) {
	s.mu.Lock()
	switch {
	case s.state != StateNotStarted:
		s.mu.Unlock()
		return model.Summary{}, ErrAlreadyStarted
	case s.store == nil:
		s.mu.Unlock()
		return model.Summary{}, ErrNotOpen
	}
	s.state = StateRunning
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Printf("collector: session %s started, polling every %s", s.id, s.cfg.Interval)

	for ctx.Err() == nil {
		s.runCycle(ctx)
		if !sleep(ctx, s.cfg.Interval) {
			break
		}
	}

	return s.stop(), nil
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// runCycle fetches, extracts and persists each class in order. A cycle cut
// short by ctx is not counted.
func (s *Session) runCycle(ctx context.Context) {
	cycle := s.cycles.Load() + 1
	var fetched, inserted int64

	for _, class := range s.cfg.Classes {
		payload, err := s.fetcher.Fetch(ctx, class)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Printf("collector: WARN cycle %d: skipping %s: %v", cycle, class, err)
			continue
		}

		batch := ingest.Extract(class, payload.Result)
		batch.Cycle = cycle
		fetched += int64(len(batch.Records))

		// An interrupt must not cut a batch write in half.
		n, err := s.store.InsertBatch(context.WithoutCancel(ctx), batch.Records)
		if err != nil {
			s.abandoned.Add(1)
			continue
		}
		inserted += n
		s.persisted.Add(n)

		if s.cfg.Observer != nil {
			s.cfg.Observer.ObserveBatch(batch)
		}
	}

	s.cycles.Add(1)
	s.logger.Printf("collector: collected cycle %d: %d records, %d new", cycle, fetched, inserted)
}

// stop moves the session to Stopped and builds its summary. A failing store
// query is logged and leaves the store part of the summary empty.
func (s *Session) stop() model.Summary {
	s.mu.Lock()
	s.state = StateStopped
	s.stoppedAt = time.Now()
	s.mu.Unlock()

	summary := s.Progress()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SummaryTimeout)
	defer cancel()
	storeSummary, err := s.store.Summarize(ctx)
	if err != nil {
		s.logger.Printf("collector: WARN summary unavailable: %v", err)
	} else {
		summary.StoreSummary = storeSummary
	}

	s.logger.Printf("collector: session %s stopped after %s: %d cycles, %d records persisted, %d batches abandoned",
		s.id, summary.Duration.Round(time.Second), summary.Cycles, summary.Persisted, summary.AbandonedBatches)
	s.logger.Printf("collector: store holds %d records from %s to %s",
		summary.Records, orNone(summary.FirstObserved), orNone(summary.LastObserved))
	return summary
}

// Progress returns the session counters so far. The store part is empty.
func (s *Session) Progress() model.Summary {
	s.mu.Lock()
	startedAt, stoppedAt := s.startedAt, s.stoppedAt
	s.mu.Unlock()

	var elapsed time.Duration
	switch {
	case !stoppedAt.IsZero():
		elapsed = stoppedAt.Sub(startedAt)
	case !startedAt.IsZero():
		elapsed = time.Since(startedAt)
	}
	return model.Summary{
		SessionID:        s.id,
		StartedAt:        startedAt,
		Duration:         elapsed,
		Cycles:           s.cycles.Load(),
		Persisted:        s.persisted.Load(),
		AbandonedBatches: s.abandoned.Load(),
	}
}

func orNone(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
