package persistence

import (
	"context"
	"testing"
	"time"

	"crm_server/core/port/out"
	"crm_server/pkg/cache"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.NewRedisCache(client, "crm:org:"), mr
}

func TestCachedOrganizationAdapter_ServesRepeatLookupsFromCache(t *testing.T) {
	db, mock := newMockDB(t)
	redisCache, mr := newTestCache(t)
	adapter := NewCachedOrganizationAdapter(NewOrganizationAdapter(db), redisCache, time.Minute)
	ctx := context.Background()

	mock.ExpectQuery(`FROM organization_domains`).
		WillReturnRows(sqlmock.NewRows(matchColumns).AddRow("acme.com", true, 1, "Acme", "Corporate", time.Now()))

	first, err := adapter.FindDomainsByDomainString(ctx, "acme.com")
	require.NoError(t, err)
	second, err := adapter.FindDomainsByDomainString(ctx, "ACME.com")
	require.NoError(t, err)

	require.Len(t, second, 1)
	assert.Equal(t, first[0].OrganizationID, second[0].OrganizationID)
	assert.True(t, mr.Exists("crm:org:domain:acme.com"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedOrganizationAdapter_NegativeCaching(t *testing.T) {
	db, mock := newMockDB(t)
	redisCache, mr := newTestCache(t)
	adapter := NewCachedOrganizationAdapter(NewOrganizationAdapter(db), redisCache, time.Hour)
	ctx := context.Background()

	mock.ExpectQuery(`FROM organization_domains`).WillReturnRows(sqlmock.NewRows(matchColumns))

	for i := 0; i < 3; i++ {
		matches, err := adapter.FindDomainsByDomainString(ctx, "unknown.biz")
		require.NoError(t, err)
		assert.Empty(t, matches)
	}
	assert.Equal(t, negativeCacheTTL, mr.TTL("crm:org:domain:unknown.biz"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedOrganizationAdapter_CreateDomainInvalidates(t *testing.T) {
	db, mock := newMockDB(t)
	redisCache, mr := newTestCache(t)
	adapter := NewCachedOrganizationAdapter(NewOrganizationAdapter(db), redisCache, time.Hour)
	ctx := context.Background()

	mock.ExpectQuery(`FROM organization_domains`).WillReturnRows(sqlmock.NewRows(matchColumns))
	mock.ExpectQuery(`d.domain ~\*`).WillReturnRows(sqlmock.NewRows(matchColumns))
	mock.ExpectExec(`INSERT INTO organization_domains`).WillReturnResult(sqlmock.NewResult(1, 1))

	_, err := adapter.FindDomainsByDomainString(ctx, "newco.io")
	require.NoError(t, err)
	_, err = adapter.FindDomainVariants(ctx, "newco", "newco.com", 5)
	require.NoError(t, err)
	require.True(t, mr.Exists("crm:org:domain:newco.io"))
	require.True(t, mr.Exists("crm:org:variants:newco:newco.com:5"))

	require.NoError(t, adapter.CreateDomain(ctx, &out.DomainEntity{OrganizationID: 1, Domain: "newco.io", IsPrimary: true}))

	assert.False(t, mr.Exists("crm:org:domain:newco.io"))
	assert.False(t, mr.Exists("crm:org:variants:newco:newco.com:5"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedOrganizationAdapter_TxInvalidatesAfterCommit(t *testing.T) {
	db, mock := newMockDB(t)
	redisCache, mr := newTestCache(t)
	adapter := NewCachedOrganizationAdapter(NewOrganizationAdapter(db), redisCache, time.Hour)
	ctx := context.Background()

	mr.Set("crm:org:domain:newco.io", "[]")

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO organizations`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectExec(`INSERT INTO organization_domains`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := adapter.RunInTx(ctx, func(w out.OrganizationWriter) error {
		id, err := w.CreateOrganization(ctx, &out.OrganizationEntity{Name: "Newco"})
		if err != nil {
			return err
		}
		return w.CreateDomain(ctx, &out.DomainEntity{OrganizationID: id, Domain: "newco.io", IsPrimary: true})
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("crm:org:domain:newco.io"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedOrganizationAdapter_FallsBackWhenRedisDown(t *testing.T) {
	db, mock := newMockDB(t)
	redisCache, mr := newTestCache(t)
	adapter := NewCachedOrganizationAdapter(NewOrganizationAdapter(db), redisCache, time.Hour)
	mr.Close()

	mock.ExpectQuery(`FROM organization_domains`).
		WillReturnRows(sqlmock.NewRows(matchColumns).AddRow("acme.com", true, 1, "Acme", "Corporate", time.Now()))

	matches, err := adapter.FindDomainsByDomainString(context.Background(), "acme.com")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}
