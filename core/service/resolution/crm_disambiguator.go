package resolution

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"crm_server/core/domain"
	"crm_server/core/port/out"
)

const (
	primaryDomainBonus = 10.0
	nameOverlapBonus   = 20.0
	nameLengthDivisor  = 5.0
	nameLengthCap      = 10.0
	recencyBonus       = 5.0
	recencyWindow      = 365 * 24 * time.Hour
)

// ScoredMatch is a candidate with its score.
type ScoredMatch struct {
	*out.DomainMatch
	Score float64
}

// Disambiguator ranks several organizations that share one domain.
type Disambiguator struct {
	now func() time.Time
}

// NewDisambiguator creates a Disambiguator. now defaults to time.Now.
func NewDisambiguator(now func() time.Time) *Disambiguator {
	if now == nil {
		now = time.Now
	}
	return &Disambiguator{now: now}
}

// Pick returns the highest scoring candidate. On equal scores the candidate
// that appears first in the input wins, so the result follows store order.
func (d *Disambiguator) Pick(contact *domain.Contact, candidates []*out.DomainMatch) *ScoredMatch {
	now := d.now()
	fullName := strings.ToLower(contact.DisplayName())

	var best *ScoredMatch
	for _, c := range candidates {
		if c == nil {
			continue
		}
		score := scoreSharedDomainCandidate(fullName, c, now)
		if best == nil || score > best.Score {
			best = &ScoredMatch{DomainMatch: c, Score: score}
		}
	}
	return best
}

// SharedDomainReason is the match reason for a disambiguated candidate.
func SharedDomainReason(n int, d string) string {
	return fmt.Sprintf("best match among %d companies sharing %s", n, d)
}

func scoreSharedDomainCandidate(fullName string, c *out.DomainMatch, now time.Time) float64 {
	var score float64

	if c.IsPrimary {
		score += primaryDomainBonus
	}
	if namesOverlap(fullName, c.OrganizationName) {
		score += nameOverlapBonus
	}
	score += math.Min(float64(utf8.RuneCountInString(c.OrganizationName))/nameLengthDivisor, nameLengthCap)
	if isRecent(c.OrganizationCreatedAt, now) {
		score += recencyBonus
	}

	return score
}

// namesOverlap reports whether the first token of the organization name occurs
// in the contact's full name or the full name occurs in that token.
func namesOverlap(fullName, orgName string) bool {
	tokens := strings.Fields(strings.ToLower(orgName))
	if len(tokens) == 0 || fullName == "" {
		return false
	}
	first := tokens[0]
	return strings.Contains(fullName, first) || strings.Contains(first, fullName)
}

func isRecent(createdAt, now time.Time) bool {
	if createdAt.IsZero() {
		return false
	}
	return now.Sub(createdAt) <= recencyWindow
}
