package resolution

import (
	"context"

	"crm_server/core/port/out"
)

// ExactMatcher finds organizations that registered the searched domain.
type ExactMatcher struct {
	repo out.OrganizationReader
}

// NewExactMatcher creates an ExactMatcher.
func NewExactMatcher(repo out.OrganizationReader) *ExactMatcher {
	return &ExactMatcher{repo: repo}
}

// Match returns one candidate per owning organization, in store order.
func (m *ExactMatcher) Match(ctx context.Context, d string) ([]*out.DomainMatch, error) {
	rows, err := m.repo.FindDomainsByDomainString(ctx, d)
	if err != nil {
		return nil, err
	}
	return collapseByOrganization(rows), nil
}

// collapseByOrganization merges decorated duplicates ("acme.com" and
// "https://acme.com/") registered by the same organization. The merged
// candidate is primary if any of its rows is.
func collapseByOrganization(rows []*out.DomainMatch) []*out.DomainMatch {
	if len(rows) < 2 {
		return rows
	}

	index := make(map[int64]int, len(rows))
	result := make([]*out.DomainMatch, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		i, ok := index[row.OrganizationID]
		if !ok {
			index[row.OrganizationID] = len(result)
			result = append(result, row)
			continue
		}
		if row.IsPrimary && !result[i].IsPrimary {
			merged := *result[i]
			merged.IsPrimary = true
			result[i] = &merged
		}
	}
	return result
}
