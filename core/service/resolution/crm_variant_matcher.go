package resolution

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"crm_server/core/domain"
	"crm_server/core/port/out"
)

const (
	DefaultVariantLimit    = 5
	DefaultVariantMinScore = 30.0

	minCoreTokenLength = 4

	sameCoreTokenBonus  = 50.0
	coreInNameBonus     = 30.0
	variantPrimaryBonus = 10.0
	humanNameBonus      = 15.0
	humanNameMaxLength  = 50
	variantRecentBonus  = 5.0
)

// genericLabels are leading labels that say nothing about the brand.
var genericLabels = map[string]struct{}{
	"www":   {},
	"mail":  {},
	"email": {},
	"app":   {},
}

// IsBrandToken reports whether a core token is specific enough to search
// for corporate-family variants.
func IsBrandToken(core string) bool {
	if utf8.RuneCountInString(core) < minCoreTokenLength {
		return false
	}
	_, generic := genericLabels[core]
	return !generic
}

// VariantMatcher looks for organizations registered under other domains of
// the same brand, e.g. acme.co for acme.io.
type VariantMatcher struct {
	repo     out.OrganizationReader
	limit    int
	minScore float64
	now      func() time.Time
}

// NewVariantMatcher creates a VariantMatcher. Zero limit and minScore use the defaults.
func NewVariantMatcher(repo out.OrganizationReader, limit int, minScore float64, now func() time.Time) *VariantMatcher {
	if limit <= 0 {
		limit = DefaultVariantLimit
	}
	if minScore <= 0 {
		minScore = DefaultVariantMinScore
	}
	if now == nil {
		now = time.Now
	}
	return &VariantMatcher{repo: repo, limit: limit, minScore: minScore, now: now}
}

// Match returns the best variant at or above the confidence floor, or nil.
func (m *VariantMatcher) Match(ctx context.Context, d string) (*ScoredMatch, error) {
	core := domain.CoreToken(d)
	if !IsBrandToken(core) {
		return nil, nil
	}

	candidates, err := m.repo.FindDomainVariants(ctx, core, d, m.limit)
	if err != nil {
		return nil, err
	}
	return m.pick(core, candidates), nil
}

func (m *VariantMatcher) pick(core string, candidates []*out.DomainMatch) *ScoredMatch {
	now := m.now()

	var best *ScoredMatch
	for _, c := range candidates {
		if c == nil {
			continue
		}
		score := scoreVariantCandidate(core, c, now)
		if best == nil || score > best.Score {
			best = &ScoredMatch{DomainMatch: c, Score: score}
		}
	}

	if best == nil || best.Score < m.minScore {
		return nil
	}
	return best
}

// VariantReason is the match reason for a variant candidate.
func VariantReason(core, candidateDomain string) string {
	return fmt.Sprintf("domain variant of %s group (%s)", core, candidateDomain)
}

func scoreVariantCandidate(core string, c *out.DomainMatch, now time.Time) float64 {
	var score float64

	if domain.CoreToken(c.Domain) == core {
		score += sameCoreTokenBonus
	}
	if strings.Contains(strings.ToLower(c.OrganizationName), core) {
		score += coreInNameBonus
	}
	if c.IsPrimary {
		score += variantPrimaryBonus
	}
	if utf8.RuneCountInString(c.OrganizationName) < humanNameMaxLength && !strings.Contains(c.OrganizationName, ".") {
		score += humanNameBonus
	}
	if isRecent(c.OrganizationCreatedAt, now) {
		score += variantRecentBonus
	}

	return score
}
