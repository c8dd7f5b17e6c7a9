package resolution

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"crm_server/core/domain"
	"crm_server/core/port/out"
)

var errStoreDown = errors.New("store unavailable")

type fakeOrg struct {
	id        int64
	name      string
	category  string
	createdAt time.Time
}

type fakeDomain struct {
	orgID     int64
	domain    string
	isPrimary bool
}

// fakeRepo is an in-memory out.OrganizationRepository.
type fakeRepo struct {
	mu      sync.Mutex
	nextID  int64
	orgs    map[int64]*fakeOrg
	domains []*fakeDomain
	assocs  []*out.AssociationEntity

	failExact    func(d string) error
	failVariants func(core string) error
	failCreate   map[string]error

	onListAssociations func()

	exactCalls   atomic.Int32
	variantCalls atomic.Int32
	orgCreates   int
	domCreates   int
	assocCreates int
	deletes      int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		nextID:     100,
		orgs:       make(map[int64]*fakeOrg),
		failCreate: make(map[string]error),
	}
}

func (r *fakeRepo) addOrg(id int64, name string, createdAt time.Time, domains ...fakeDomain) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orgs[id] = &fakeOrg{id: id, name: name, category: domain.DefaultOrganizationCategory, createdAt: createdAt}
	for _, d := range domains {
		d := d
		d.orgID = id
		r.domains = append(r.domains, &d)
	}
}

func (r *fakeRepo) match(d *fakeDomain) *out.DomainMatch {
	org := r.orgs[d.orgID]
	return &out.DomainMatch{
		Domain:                d.domain,
		IsPrimary:             d.isPrimary,
		OrganizationID:        org.id,
		OrganizationName:      org.name,
		OrganizationCategory:  org.category,
		OrganizationCreatedAt: org.createdAt,
	}
}

func (r *fakeRepo) FindDomainsByDomainString(_ context.Context, d string) ([]*out.DomainMatch, error) {
	r.exactCalls.Add(1)
	if r.failExact != nil {
		if err := r.failExact(d); err != nil {
			return nil, err
		}
	}

	forms := make(map[string]struct{})
	for _, f := range domain.DomainLookupForms(d) {
		forms[f] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var matches []*out.DomainMatch
	for _, rec := range r.domains {
		if _, ok := forms[rec.domain]; ok {
			matches = append(matches, r.match(rec))
		}
	}
	return matches, nil
}

func (r *fakeRepo) FindDomainVariants(_ context.Context, core, exclude string, limit int) ([]*out.DomainMatch, error) {
	r.variantCalls.Add(1)
	if r.failVariants != nil {
		if err := r.failVariants(core); err != nil {
			return nil, err
		}
	}

	pattern := regexp.MustCompile(`(?i)^(https?://)?([^./]+\.)?` + regexp.QuoteMeta(core) + `\.`)
	excluded := make(map[string]struct{})
	for _, f := range domain.DomainLookupForms(exclude) {
		excluded[f] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var matches []*out.DomainMatch
	for _, rec := range r.domains {
		if _, skip := excluded[rec.domain]; skip || !pattern.MatchString(rec.domain) {
			continue
		}
		matches = append(matches, r.match(rec))
		if len(matches) == limit {
			break
		}
	}
	return matches, nil
}

func (r *fakeRepo) CreateOrganization(_ context.Context, org *out.OrganizationEntity) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orgCreates++
	if err := r.failCreate["organization"]; err != nil {
		return 0, err
	}
	r.nextID++
	r.orgs[r.nextID] = &fakeOrg{id: r.nextID, name: org.Name, category: org.Category, createdAt: org.CreatedAt}
	return r.nextID, nil
}

func (r *fakeRepo) CreateDomain(_ context.Context, d *out.DomainEntity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.domCreates++
	if err := r.failCreate["domain"]; err != nil {
		return err
	}
	r.domains = append(r.domains, &fakeDomain{orgID: d.OrganizationID, domain: d.Domain, isPrimary: d.IsPrimary})
	return nil
}

func (r *fakeRepo) CreateAssociation(_ context.Context, a *out.AssociationEntity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assocCreates++
	if err := r.failCreate["association"]; err != nil {
		return err
	}
	cp := *a
	r.assocs = append(r.assocs, &cp)
	return nil
}

func (r *fakeRepo) DeleteOrganization(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++
	delete(r.orgs, id)
	kept := r.domains[:0]
	for _, d := range r.domains {
		if d.orgID != id {
			kept = append(kept, d)
		}
	}
	r.domains = kept
	return nil
}

func (r *fakeRepo) ListAssociations(_ context.Context, contactID int64) ([]*out.AssociationEntity, error) {
	if r.onListAssociations != nil {
		r.onListAssociations()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*out.AssociationEntity
	for _, a := range r.assocs {
		if a.ContactID == contactID {
			cp := *a
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (r *fakeRepo) orgCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orgs)
}

func (r *fakeRepo) domainCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.domains)
}

// txRepo adds all-or-nothing transactions on top of fakeRepo.
type txRepo struct {
	*fakeRepo
	commits   int
	rollbacks int
}

func (r *txRepo) RunInTx(ctx context.Context, fn func(w out.OrganizationWriter) error) error {
	r.mu.Lock()
	orgs := make(map[int64]*fakeOrg, len(r.orgs))
	for k, v := range r.orgs {
		orgs[k] = v
	}
	domains := append([]*fakeDomain(nil), r.domains...)
	assocs := append([]*out.AssociationEntity(nil), r.assocs...)
	r.mu.Unlock()

	if err := fn(r.fakeRepo); err != nil {
		r.mu.Lock()
		r.orgs, r.domains, r.assocs = orgs, domains, assocs
		r.rollbacks++
		r.mu.Unlock()
		return err
	}
	r.commits++
	return nil
}

func contactWith(id int64, first, last, email string) *domain.Contact {
	c := &domain.Contact{ID: id, FirstName: first, LastName: last}
	if email != "" {
		c.Emails = []domain.ContactEmail{{Address: email, IsPrimary: true}}
	}
	return c
}

func fixedNow() time.Time {
	return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
}
