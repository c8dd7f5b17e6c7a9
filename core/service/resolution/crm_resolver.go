package resolution

import (
	"context"
	"errors"
	"time"
	"unicode"
	"unicode/utf8"

	"crm_server/core/domain"
	"crm_server/core/port/out"
	"crm_server/pkg/metrics"
	"crm_server/pkg/resilience"

	"golang.org/x/sync/singleflight"
)

// Match stages, also used as metric labels.
const (
	stageExact         = "exact"
	stageDisambiguated = "disambiguated"
	stageVariant       = "variant"
	stageFallback      = "fallback"
)

// LookupError marks a store read failure while computing a suggestion.
type LookupError struct {
	Stage string
	Err   error
}

func (e *LookupError) Error() string { return "lookup failed during " + e.Stage + ": " + e.Err.Error() }
func (e *LookupError) Unwrap() error { return e.Err }

// IsLookupFailure reports whether err came from a store read.
func IsLookupFailure(err error) bool {
	var le *LookupError
	return errors.As(err, &le)
}

// ResolverConfig tunes the resolver.
type ResolverConfig struct {
	VariantLimit    int
	VariantMinScore float64
	DefaultCategory string
	Now             func() time.Time
}

// Resolver runs the full pipeline for one contact: domain extraction, exact
// lookup, disambiguation or variant search, and the create fallback.
type Resolver struct {
	exact         *ExactMatcher
	disambiguator *Disambiguator
	variants      *VariantMatcher
	category      string
	now           func() time.Time

	breaker *resilience.CircuitBreaker
	flight  singleflight.Group
	metrics *metrics.ResolutionMetrics
	latency *metrics.LatencyRegistry
}

// NewResolver creates a Resolver reading from repo.
func NewResolver(repo out.OrganizationReader, cfg ResolverConfig) *Resolver {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	category := cfg.DefaultCategory
	if category == "" {
		category = domain.DefaultOrganizationCategory
	}

	return &Resolver{
		exact:         NewExactMatcher(repo),
		disambiguator: NewDisambiguator(now),
		variants:      NewVariantMatcher(repo, cfg.VariantLimit, cfg.VariantMinScore, now),
		category:      category,
		now:           now,
	}
}

// WithBreaker guards store reads with a circuit breaker.
func (r *Resolver) WithBreaker(b *resilience.CircuitBreaker) *Resolver {
	r.breaker = b
	return r
}

// WithMetrics attaches Prometheus metrics and a latency registry.
func (r *Resolver) WithMetrics(m *metrics.ResolutionMetrics, latency *metrics.LatencyRegistry) *Resolver {
	r.metrics = m
	r.latency = latency
	return r
}

// Resolve computes the suggestion for a contact. It returns nil without error
// when the contact carries no usable domain signal.
func (r *Resolver) Resolve(ctx context.Context, contact *domain.Contact) (*domain.Suggestion, error) {
	if !contact.NeedsResolution() {
		return nil, nil
	}

	d, ok := ExtractDomain(contact.PrimaryEmail())
	if !ok {
		return nil, nil
	}

	start := time.Now()
	defer func() { r.latency.Record(metrics.StageResolve, time.Since(start)) }()

	matches, err := r.exactMatches(ctx, d)
	if err != nil {
		r.metrics.IncLookupFailure(stageExact)
		return nil, &LookupError{Stage: stageExact, Err: err}
	}

	var suggestion *domain.Suggestion
	switch len(matches) {
	case 0:
		variant, err := r.variantMatch(ctx, d)
		if err != nil {
			r.metrics.IncLookupFailure(stageVariant)
			return nil, &LookupError{Stage: stageVariant, Err: err}
		}
		if variant != nil {
			suggestion = domain.NewExistingSuggestion(contact.ID, d, variant.OrganizationID, variant.OrganizationName,
				variant.IsPrimary, VariantReason(domain.CoreToken(d), variant.Domain))
			suggestion.Score = variant.Score
			r.metrics.IncSuggestion(string(domain.SuggestionExisting), stageVariant)
		} else {
			suggestion = r.synthesizeCreate(contact.ID, d)
			r.metrics.IncSuggestion(string(domain.SuggestionCreate), stageFallback)
		}

	case 1:
		m := matches[0]
		suggestion = domain.NewExistingSuggestion(contact.ID, d, m.OrganizationID, m.OrganizationName,
			m.IsPrimary, "domain "+d+" is registered to "+m.OrganizationName)
		r.metrics.IncSuggestion(string(domain.SuggestionExisting), stageExact)

	default:
		best := r.disambiguator.Pick(contact, matches)
		suggestion = domain.NewExistingSuggestion(contact.ID, d, best.OrganizationID, best.OrganizationName,
			best.IsPrimary, SharedDomainReason(len(matches), d))
		suggestion.Score = best.Score
		r.metrics.IncSuggestion(string(domain.SuggestionExisting), stageDisambiguated)
	}

	suggestion.ComputedAt = r.now()
	return suggestion, nil
}

// synthesizeCreate proposes a new organization named after the core token.
func (r *Resolver) synthesizeCreate(contactID int64, d string) *domain.Suggestion {
	return domain.NewCreateSuggestion(contactID, d, ProposedName(d), r.category)
}

// ProposedName capitalizes the first letter of the domain's core token.
func ProposedName(d string) string {
	core := domain.CoreToken(d)
	if core == "" {
		return ""
	}
	first, size := utf8.DecodeRuneInString(core)
	return string(unicode.ToUpper(first)) + core[size:]
}

// exactMatches shares one store read between concurrent contacts on the same domain.
func (r *Resolver) exactMatches(ctx context.Context, d string) ([]*out.DomainMatch, error) {
	v, err := r.shared(ctx, "exact:"+d, func() (interface{}, error) {
		start := time.Now()
		defer func() { r.latency.Record(metrics.StageExactLookup, time.Since(start)) }()

		return resilience.Call(r.breaker, func() ([]*out.DomainMatch, error) {
			return r.exact.Match(ctx, d)
		})
	})
	if err != nil {
		return nil, err
	}
	return v.([]*out.DomainMatch), nil
}

func (r *Resolver) variantMatch(ctx context.Context, d string) (*ScoredMatch, error) {
	v, err := r.shared(ctx, "variant:"+d, func() (interface{}, error) {
		start := time.Now()
		defer func() { r.latency.Record(metrics.StageVariantLookup, time.Since(start)) }()

		return resilience.Call(r.breaker, func() (*ScoredMatch, error) {
			return r.variants.Match(ctx, d)
		})
	})
	if err != nil {
		return nil, err
	}
	return v.(*ScoredMatch), nil
}

// shared runs fn once per key among concurrent callers. A waiter whose own
// context is still live retries alone when the leading caller was cancelled.
func (r *Resolver) shared(ctx context.Context, key string, fn func() (interface{}, error)) (interface{}, error) {
	v, err, shared := r.flight.Do(key, fn)
	if shared && err != nil && ctx.Err() == nil && errors.Is(err, context.Canceled) {
		return fn()
	}
	return v, err
}
