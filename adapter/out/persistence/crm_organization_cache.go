package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crm_server/core/domain"
	"crm_server/core/port/out"
	"crm_server/pkg/cache"
)

const negativeCacheTTL = time.Minute

// CachedOrganizationAdapter wraps OrganizationAdapter with Redis caching of
// domain lookups. Writes invalidate the affected keys.
type CachedOrganizationAdapter struct {
	delegate *OrganizationAdapter
	cache    *cache.RedisCache
	ttl      time.Duration
}

// NewCachedOrganizationAdapter creates a cached organization adapter.
func NewCachedOrganizationAdapter(delegate *OrganizationAdapter, redisCache *cache.RedisCache, ttl time.Duration) *CachedOrganizationAdapter {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedOrganizationAdapter{delegate: delegate, cache: redisCache, ttl: ttl}
}

var (
	_ out.OrganizationRepository = (*CachedOrganizationAdapter)(nil)
	_ out.OrganizationTxRunner   = (*CachedOrganizationAdapter)(nil)
)

func exactCacheKey(d string) string {
	return "domain:" + domain.NormalizeDomain(d)
}

func variantCacheKey(core, exclude string, limit int) string {
	return fmt.Sprintf("variants:%s:%s:%d", core, domain.NormalizeDomain(exclude), limit)
}

// =============================================================================
// Reads (cached)
// =============================================================================

func (a *CachedOrganizationAdapter) FindDomainsByDomainString(ctx context.Context, d string) ([]*out.DomainMatch, error) {
	return a.cached(ctx, exactCacheKey(d), func() ([]*out.DomainMatch, error) {
		return a.delegate.FindDomainsByDomainString(ctx, d)
	})
}

func (a *CachedOrganizationAdapter) FindDomainVariants(ctx context.Context, core, excludeDomain string, limit int) ([]*out.DomainMatch, error) {
	return a.cached(ctx, variantCacheKey(core, excludeDomain, limit), func() ([]*out.DomainMatch, error) {
		return a.delegate.FindDomainVariants(ctx, core, excludeDomain, limit)
	})
}

func (a *CachedOrganizationAdapter) cached(ctx context.Context, key string, load func() ([]*out.DomainMatch, error)) ([]*out.DomainMatch, error) {
	var matches []*out.DomainMatch
	if found, err := a.cache.GetJSON(ctx, key, &matches); err == nil && found {
		return matches, nil
	}

	matches, err := load()
	if err != nil {
		return nil, err
	}

	// Empty results are cached briefly so unknown domains do not hit the DB on every pass.
	ttl := a.ttl
	if len(matches) == 0 {
		ttl = negativeCacheTTL
		matches = []*out.DomainMatch{}
	}
	_ = a.cache.SetJSON(ctx, key, matches, ttl)
	return matches, nil
}

func (a *CachedOrganizationAdapter) ListAssociations(ctx context.Context, contactID int64) ([]*out.AssociationEntity, error) {
	return a.delegate.ListAssociations(ctx, contactID)
}

// =============================================================================
// Writes (invalidate)
// =============================================================================

func (a *CachedOrganizationAdapter) CreateOrganization(ctx context.Context, org *out.OrganizationEntity) (int64, error) {
	return a.delegate.CreateOrganization(ctx, org)
}

func (a *CachedOrganizationAdapter) CreateDomain(ctx context.Context, d *out.DomainEntity) error {
	if err := a.delegate.CreateDomain(ctx, d); err != nil {
		return err
	}
	a.invalidateDomains(ctx, d.Domain)
	return nil
}

func (a *CachedOrganizationAdapter) CreateAssociation(ctx context.Context, assoc *out.AssociationEntity) error {
	return a.delegate.CreateAssociation(ctx, assoc)
}

func (a *CachedOrganizationAdapter) DeleteOrganization(ctx context.Context, organizationID int64) error {
	if err := a.delegate.DeleteOrganization(ctx, organizationID); err != nil {
		return err
	}
	// The deleted organization's domains are unknown here.
	_ = a.cache.DeletePattern(ctx, "*")
	return nil
}

// RunInTx runs fn in a delegate transaction and invalidates the domains it
// created once the transaction commits.
func (a *CachedOrganizationAdapter) RunInTx(ctx context.Context, fn func(w out.OrganizationWriter) error) error {
	var created []string
	err := a.delegate.RunInTx(ctx, func(w out.OrganizationWriter) error {
		return fn(&domainRecorder{OrganizationWriter: w, created: &created})
	})
	if err != nil {
		return err
	}
	a.invalidateDomains(ctx, created...)
	return nil
}

func (a *CachedOrganizationAdapter) invalidateDomains(ctx context.Context, domains ...string) {
	for _, d := range domains {
		_ = a.cache.Delete(ctx, exactCacheKey(d))
		// A new domain can match variant searches for any of its labels.
		for _, label := range strings.Split(domain.NormalizeDomain(d), ".") {
			if label != "" {
				_ = a.cache.DeletePattern(ctx, "variants:"+label+":*")
			}
		}
	}
}

// domainRecorder notes the domains created through a transactional writer.
type domainRecorder struct {
	out.OrganizationWriter
	created *[]string
}

func (r *domainRecorder) CreateDomain(ctx context.Context, d *out.DomainEntity) error {
	if err := r.OrganizationWriter.CreateDomain(ctx, d); err != nil {
		return err
	}
	*r.created = append(*r.created, d.Domain)
	return nil
}
