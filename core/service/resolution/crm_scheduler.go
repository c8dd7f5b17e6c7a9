package resolution

import (
	"context"
	"errors"
	"sync"
	"time"

	"crm_server/core/domain"
	"crm_server/pkg/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultGroupSize = 10
	DefaultPacing    = 100 * time.Millisecond
)

// ErrSuperseded is returned by a pass that a newer pass replaced.
var ErrSuperseded = errors.New("suggestion pass superseded by a newer pass")

// ContactResolver computes the suggestion for one contact.
type ContactResolver interface {
	Resolve(ctx context.Context, contact *domain.Contact) (*domain.Suggestion, error)
}

// SchedulerConfig bounds the load a pass puts on the store.
type SchedulerConfig struct {
	GroupSize int
	Pacing    time.Duration
}

// BatchScheduler computes suggestions for many contacts in fixed-size groups.
// Contacts within a group resolve concurrently; the next group starts only
// after the previous one has finished and the pacing delay has passed.
type BatchScheduler struct {
	resolver ContactResolver
	store    *SuggestionStore
	cfg      SchedulerConfig
	log      zerolog.Logger

	metrics *metrics.ResolutionMetrics
	latency *metrics.LatencyRegistry

	mu     sync.Mutex
	cancel context.CancelFunc
	active uint64
}

// NewBatchScheduler creates a scheduler writing into store.
func NewBatchScheduler(resolver ContactResolver, store *SuggestionStore, cfg SchedulerConfig, log zerolog.Logger) *BatchScheduler {
	if cfg.GroupSize <= 0 {
		cfg.GroupSize = DefaultGroupSize
	}
	if cfg.Pacing < 0 {
		cfg.Pacing = 0
	}
	return &BatchScheduler{
		resolver: resolver,
		store:    store,
		cfg:      cfg,
		log:      log.With().Str("component", "batch_scheduler").Logger(),
	}
}

// WithMetrics attaches Prometheus metrics and a latency registry.
func (s *BatchScheduler) WithMetrics(m *metrics.ResolutionMetrics, latency *metrics.LatencyRegistry) *BatchScheduler {
	s.metrics = m
	s.latency = latency
	return s
}

// Store returns the store the scheduler writes into.
func (s *BatchScheduler) Store() *SuggestionStore {
	return s.store
}

// ComputeSuggestions runs one pass over contacts. Starting a pass cancels the
// one still running; the cancelled pass returns ErrSuperseded and never
// touches the store. The returned map holds this pass's results.
func (s *BatchScheduler) ComputeSuggestions(ctx context.Context, contacts []*domain.Contact) (map[int64]*domain.Suggestion, error) {
	gen, passCtx, done := s.beginPass(ctx)
	defer done()

	start := time.Now()
	eligible := eligibleContacts(contacts)

	log := s.log.With().Uint64("generation", gen).Logger()
	log.Debug().
		Int("contacts", len(contacts)).
		Int("eligible", len(eligible)).
		Msg("suggestion pass started")

	results := make(map[int64]*domain.Suggestion, len(eligible))
	var mu sync.Mutex

	for i := 0; i < len(eligible); i += s.cfg.GroupSize {
		if i > 0 {
			if err := s.pace(passCtx); err != nil {
				return nil, s.abort(gen, err)
			}
		}

		end := min(i+s.cfg.GroupSize, len(eligible))
		group, groupCtx := errgroup.WithContext(passCtx)
		for _, contact := range eligible[i:end] {
			contact := contact
			group.Go(func() error {
				sug, err := s.resolver.Resolve(groupCtx, contact)
				if err != nil {
					if passCtx.Err() != nil {
						return passCtx.Err()
					}
					log.Warn().
						Err(err).
						Int64("contact_id", contact.ID).
						Msg("suggestion lookup failed, skipping contact")
					return nil
				}
				if sug == nil {
					return nil
				}
				mu.Lock()
				results[contact.ID] = sug
				mu.Unlock()
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return nil, s.abort(gen, err)
		}
	}

	if !s.store.Apply(gen, results) {
		return nil, s.abort(gen, ErrSuperseded)
	}

	elapsed := time.Since(start)
	s.metrics.ObservePass(elapsed)
	s.latency.Record(metrics.StagePass, elapsed)

	log.Info().
		Int("suggestions", len(results)).
		Dur("duration", elapsed).
		Msg("suggestion pass completed")

	for _, sug := range results {
		sug.Generation = gen
	}
	return results, nil
}

// beginPass registers a new pass and cancels the previous one.
func (s *BatchScheduler) beginPass(ctx context.Context) (uint64, context.Context, func()) {
	passCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	gen := s.store.BeginPass()
	s.cancel = cancel
	s.active = gen
	s.mu.Unlock()

	return gen, passCtx, func() {
		s.mu.Lock()
		if s.active == gen {
			s.cancel = nil
			s.active = 0
		}
		s.mu.Unlock()
		cancel()
	}
}

func (s *BatchScheduler) pace(ctx context.Context) error {
	if s.cfg.Pacing == 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.cfg.Pacing)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// abort maps a pass failure to ErrSuperseded when a newer pass took over.
func (s *BatchScheduler) abort(gen uint64, err error) error {
	if errors.Is(err, ErrSuperseded) || !s.store.IsCurrent(gen) {
		s.metrics.IncSuperseded()
		s.log.Debug().Uint64("generation", gen).Msg("suggestion pass superseded")
		return ErrSuperseded
	}
	return err
}

// eligibleContacts keeps contacts with no association and at least one email.
func eligibleContacts(contacts []*domain.Contact) []*domain.Contact {
	eligible := make([]*domain.Contact, 0, len(contacts))
	for _, c := range contacts {
		if c != nil && c.NeedsResolution() {
			eligible = append(eligible, c)
		}
	}
	return eligible
}
