package resolution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"crm_server/core/domain"
	"crm_server/core/port/out"
	"crm_server/pkg/resilience"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedResolver records call ordering and delegates to fn.
type scriptedResolver struct {
	seq      atomic.Int64
	inflight atomic.Int32
	maxSeen  atomic.Int32

	mu    sync.Mutex
	start map[int64]int64
	end   map[int64]int64
	calls int

	fn func(ctx context.Context, c *domain.Contact) (*domain.Suggestion, error)
}

func newScriptedResolver(fn func(ctx context.Context, c *domain.Contact) (*domain.Suggestion, error)) *scriptedResolver {
	return &scriptedResolver{start: map[int64]int64{}, end: map[int64]int64{}, fn: fn}
}

func (r *scriptedResolver) Resolve(ctx context.Context, c *domain.Contact) (*domain.Suggestion, error) {
	n := r.inflight.Add(1)
	for {
		m := r.maxSeen.Load()
		if n <= m || r.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	r.mu.Lock()
	r.calls++
	r.start[c.ID] = r.seq.Add(1)
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.end[c.ID] = r.seq.Add(1)
		r.mu.Unlock()
		r.inflight.Add(-1)
	}()

	return r.fn(ctx, c)
}

func createFor(ctx context.Context, c *domain.Contact) (*domain.Suggestion, error) {
	time.Sleep(2 * time.Millisecond)
	return domain.NewCreateSuggestion(c.ID, "x.com", "X", domain.DefaultOrganizationCategory), nil
}

func manyContacts(n int) []*domain.Contact {
	contacts := make([]*domain.Contact, n)
	for i := range contacts {
		id := int64(i + 1)
		contacts[i] = contactWith(id, "C", fmt.Sprint(id), fmt.Sprintf("c%d@x.com", id))
	}
	return contacts
}

func newTestScheduler(r ContactResolver, cfg SchedulerConfig) *BatchScheduler {
	return NewBatchScheduler(r, NewSuggestionStore(), cfg, zerolog.Nop())
}

func TestBatchScheduler_GroupsRunSequentially(t *testing.T) {
	resolver := newScriptedResolver(createFor)
	s := newTestScheduler(resolver, SchedulerConfig{GroupSize: 10})
	contacts := manyContacts(25)

	got, err := s.ComputeSuggestions(context.Background(), contacts)
	require.NoError(t, err)
	assert.Len(t, got, 25)
	assert.LessOrEqual(t, resolver.maxSeen.Load(), int32(10))

	groupEnd := func(from, to int) int64 {
		var last int64
		for _, c := range contacts[from:to] {
			last = max(last, resolver.end[c.ID])
		}
		return last
	}
	for g := 1; g*10 < len(contacts); g++ {
		prevEnd := groupEnd((g-1)*10, g*10)
		for _, c := range contacts[g*10:min((g+1)*10, len(contacts))] {
			assert.Greater(t, resolver.start[c.ID], prevEnd, "contact %d started before group %d finished", c.ID, g-1)
		}
	}
}

func TestBatchScheduler_AppliesOnceAtEnd(t *testing.T) {
	store := NewSuggestionStore()
	sink := &recordingSink{}
	store.AddSink(sink)

	s := NewBatchScheduler(newScriptedResolver(createFor), store, SchedulerConfig{GroupSize: 3}, zerolog.Nop())
	got, err := s.ComputeSuggestions(context.Background(), manyContacts(7))
	require.NoError(t, err)

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, 7, events[0].Count)

	snap, gen := store.Snapshot()
	assert.Equal(t, uint64(1), gen)
	assert.Len(t, snap, 7)
	for id, sug := range got {
		assert.Equal(t, gen, sug.Generation)
		assert.Equal(t, domain.StateSuggested, store.State(id))
	}
}

func TestBatchScheduler_LookupFailureSkipsContact(t *testing.T) {
	resolver := newScriptedResolver(func(ctx context.Context, c *domain.Contact) (*domain.Suggestion, error) {
		if c.ID == 3 {
			return nil, &LookupError{Stage: stageExact, Err: errStoreDown}
		}
		return createFor(ctx, c)
	})
	s := newTestScheduler(resolver, SchedulerConfig{GroupSize: 2})

	got, err := s.ComputeSuggestions(context.Background(), manyContacts(5))
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.NotContains(t, got, int64(3))
	assert.Equal(t, 5, resolver.calls)
}

func TestBatchScheduler_SkipsIneligibleContacts(t *testing.T) {
	resolver := newScriptedResolver(createFor)
	s := newTestScheduler(resolver, SchedulerConfig{})

	linked := contactWith(1, "A", "B", "a@acme.com")
	linked.Associations = []domain.Association{{ContactID: 1, OrganizationID: 9}}
	contacts := []*domain.Contact{linked, contactWith(2, "No", "Mail", ""), nil, contactWith(3, "C", "D", "c@acme.com")}

	got, err := s.ComputeSuggestions(context.Background(), contacts)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, int64(3))
	assert.Equal(t, 1, resolver.calls)
}

func TestBatchScheduler_Pacing(t *testing.T) {
	s := newTestScheduler(newScriptedResolver(createFor), SchedulerConfig{GroupSize: 2, Pacing: 20 * time.Millisecond})

	start := time.Now()
	_, err := s.ComputeSuggestions(context.Background(), manyContacts(6))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestBatchScheduler_NewPassSupersedesRunningPass(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	entered := make(chan struct{})

	resolver := newScriptedResolver(func(ctx context.Context, c *domain.Contact) (*domain.Suggestion, error) {
		if c.ID == 1 {
			once.Do(func() { close(entered) })
			select {
			case <-ctx.Done():
				return nil, &LookupError{Stage: stageExact, Err: ctx.Err()}
			case <-release:
			}
		}
		return domain.NewCreateSuggestion(c.ID, "x.com", "X", "Corporate"), nil
	})
	store := NewSuggestionStore()
	s := NewBatchScheduler(resolver, store, SchedulerConfig{GroupSize: 10}, zerolog.Nop())

	firstErr := make(chan error, 1)
	go func() {
		_, err := s.ComputeSuggestions(context.Background(), manyContacts(3))
		firstErr <- err
	}()
	<-entered

	second := []*domain.Contact{contactWith(42, "N", "Ew", "new@x.com")}
	got, err := s.ComputeSuggestions(context.Background(), second)
	require.NoError(t, err)
	assert.Contains(t, got, int64(42))

	select {
	case err := <-firstErr:
		assert.True(t, errors.Is(err, ErrSuperseded), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded pass did not stop")
	}
	close(release)

	snap, gen := store.Snapshot()
	assert.Equal(t, uint64(2), gen)
	assert.Len(t, snap, 1)
	assert.Contains(t, snap, int64(42))
}

// stallingRepo holds lookups for slow* domains until the caller gives up.
type stallingRepo struct {
	*fakeRepo
	entered chan string
}

func (r *stallingRepo) FindDomainsByDomainString(ctx context.Context, d string) ([]*out.DomainMatch, error) {
	if strings.HasPrefix(d, "slow") {
		r.entered <- d
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return r.fakeRepo.FindDomainsByDomainString(ctx, d)
}

func TestBatchScheduler_SupersededPassKeepsBreakerClosed(t *testing.T) {
	repo := &stallingRepo{fakeRepo: newFakeRepo(), entered: make(chan string, 10)}
	breaker := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("organization_store"))
	resolver := NewResolver(repo, ResolverConfig{Now: fixedNow}).WithBreaker(breaker)
	s := NewBatchScheduler(resolver, NewSuggestionStore(), SchedulerConfig{GroupSize: 10}, zerolog.Nop())

	stalled := make([]*domain.Contact, 10)
	for i := range stalled {
		id := int64(i + 1)
		stalled[i] = contactWith(id, "S", fmt.Sprint(id), fmt.Sprintf("s%d@slow%d.com", id, id))
	}

	firstErr := make(chan error, 1)
	go func() {
		_, err := s.ComputeSuggestions(context.Background(), stalled)
		firstErr <- err
	}()
	for range stalled {
		select {
		case <-repo.entered:
		case <-time.After(2 * time.Second):
			t.Fatal("lookups did not start")
		}
	}

	_, err := s.ComputeSuggestions(context.Background(), []*domain.Contact{contactWith(50, "M", "O", "m@other.org")})
	require.NoError(t, err)

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded pass did not stop")
	}
	assert.Equal(t, "closed", breaker.State())

	got, err := s.ComputeSuggestions(context.Background(), []*domain.Contact{contactWith(60, "N", "W", "n@totallynew.biz")})
	require.NoError(t, err)
	require.Contains(t, got, int64(60))
	assert.Equal(t, domain.SuggestionCreate, got[60].Kind)
	assert.Equal(t, "Totallynew", got[60].ProposedName)
}

func TestBatchScheduler_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	resolver := newScriptedResolver(func(ctx context.Context, c *domain.Contact) (*domain.Suggestion, error) {
		cancel()
		<-ctx.Done()
		return nil, &LookupError{Stage: stageExact, Err: ctx.Err()}
	})
	store := NewSuggestionStore()
	s := NewBatchScheduler(resolver, store, SchedulerConfig{GroupSize: 2}, zerolog.Nop())

	_, err := s.ComputeSuggestions(ctx, manyContacts(4))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, store.Len())
}
