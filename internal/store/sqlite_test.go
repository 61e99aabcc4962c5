package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/relationship-crm/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func ptr[T any](v T) *T { return &v }

func TestSQLite_MigrateIsIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Ping(context.Background()))
}

// --- Contacts ---

func TestSQLite_CreateContact_NormalizesEmail(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c, err := st.CreateContact(ctx, model.Contact{OwnerID: "o1", Email: "  Jane@ACME.com ", Name: "Jane"})
	require.NoError(t, err)
	assert.NotZero(t, c.ID)
	assert.Equal(t, "jane@acme.com", c.Email)
	assert.Equal(t, "acme.com", c.Domain())
	assert.False(t, c.CreatedAt.IsZero())

	_, err = st.CreateContact(ctx, model.Contact{OwnerID: "o1", Email: "jane@acme.com"})
	require.Error(t, err, "email is unique per owner")

	_, err = st.CreateContact(ctx, model.Contact{OwnerID: "o2", Email: "jane@acme.com"})
	require.NoError(t, err, "other owners may hold the same email")
}

func TestSQLite_FindContactsNeedingEnrichment(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	fresh, err := st.CreateContact(ctx, model.Contact{OwnerID: "o1", Email: "a@acme.com"})
	require.NoError(t, err)
	done, err := st.CreateContact(ctx, model.Contact{OwnerID: "o1", Email: "b@acme.com", EnrichedAt: ptr(time.Now().UTC())})
	require.NoError(t, err)
	_, err = st.CreateContact(ctx, model.Contact{OwnerID: "o2", Email: "c@acme.com"})
	require.NoError(t, err)

	got, err := st.FindContactsNeedingEnrichment(ctx, "o1", false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, fresh.ID, got[0].ID)

	got, err = st.FindContactsNeedingEnrichment(ctx, "o1", true)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, fresh.ID, got[0].ID)
	assert.Equal(t, done.ID, got[1].ID)

	got, err = st.FindContactsNeedingEnrichment(ctx, "nobody", true)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLite_UpdateContact(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c, err := st.CreateContact(ctx, model.Contact{OwnerID: "o1", Email: "a@acme.com", Name: "Original", Title: "Eng"})
	require.NoError(t, err)
	co, err := st.UpsertCompany(ctx, "acme.com", "Acme", model.CompanyFields{})
	require.NoError(t, err)

	at := time.Now().UTC()
	require.NoError(t, st.UpdateContact(ctx, c.ID, model.ContactUpdate{
		Name:       "Jane Doe",
		Headline:   "Builds things",
		CompanyID:  &co.ID,
		EnrichedAt: &at,
	}))

	got, err := st.FindContactsNeedingEnrichment(ctx, "o1", true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Jane Doe", got[0].Name)
	assert.Equal(t, "Eng", got[0].Title, "empty update fields keep stored values")
	assert.Equal(t, "Builds things", got[0].Headline)
	require.NotNil(t, got[0].CompanyID)
	assert.Equal(t, co.ID, *got[0].CompanyID)
	require.NotNil(t, got[0].EnrichedAt)

	none, err := st.FindContactsNeedingEnrichment(ctx, "o1", false)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLite_UpdateContact_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateContact(context.Background(), 999, model.ContactUpdate{Name: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_ImportContacts_SkipsExisting(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.CreateContact(ctx, model.Contact{OwnerID: "o1", Email: "a@acme.com", Name: "Kept"})
	require.NoError(t, err)

	n, err := st.ImportContacts(ctx, []model.Contact{
		{OwnerID: "o1", Email: "A@acme.com", Name: "Overwritten?"},
		{OwnerID: "o1", Email: "b@acme.com", Name: "B"},
		{OwnerID: "o1", Email: "b@acme.com", Name: "B again"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := st.FindContactsNeedingEnrichment(ctx, "o1", true)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Kept", got[0].Name)
	assert.Equal(t, "B", got[1].Name)

	n, err = st.ImportContacts(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// --- Companies ---

func TestSQLite_FindCompanyByDomain_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	c, err := st.FindCompanyByDomain(context.Background(), "nowhere.io")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestSQLite_UpsertCompany_BareThenEnriched(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	bare, err := st.UpsertCompany(ctx, "acme.com", "Acme", model.CompanyFields{})
	require.NoError(t, err)
	assert.Equal(t, "Acme", bare.Name)
	assert.False(t, bare.Enriched())
	assert.Nil(t, bare.EmployeeCount)

	at := time.Now().UTC()
	enriched, err := st.UpsertCompany(ctx, "acme.com", "ignored", model.CompanyFields{
		Name:          ptr("Acme Corporation"),
		Industry:      ptr("manufacturing"),
		EmployeeCount: ptr(1200),
		TotalFunding:  ptr(int64(5_000_000)),
		ProviderID:    ptr("org-1"),
		EnrichedAt:    &at,
	})
	require.NoError(t, err)
	assert.Equal(t, bare.ID, enriched.ID)
	assert.Equal(t, "Acme Corporation", enriched.Name)
	assert.Equal(t, "manufacturing", enriched.Industry)
	require.NotNil(t, enriched.EmployeeCount)
	assert.Equal(t, 1200, *enriched.EmployeeCount)
	require.NotNil(t, enriched.TotalFunding)
	assert.Equal(t, int64(5_000_000), *enriched.TotalFunding)
	assert.True(t, enriched.Enriched())

	// A later bare upsert keeps everything already written.
	again, err := st.UpsertCompany(ctx, "acme.com", "Acme", model.CompanyFields{})
	require.NoError(t, err)
	assert.Equal(t, "Acme Corporation", again.Name)
	assert.Equal(t, "manufacturing", again.Industry)
	assert.True(t, again.Enriched())

	found, err := st.FindCompanyByDomain(ctx, "acme.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, bare.ID, found.ID)
}

func TestSQLite_UpsertCompany_ConcurrentSameDomain(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	const workers = 16
	ids := make([]int64, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := st.UpsertCompany(ctx, "shared.io", "Shared", model.CompanyFields{
				Industry: ptr(fmt.Sprintf("industry-%d", i)),
			})
			errs[i] = err
			if c != nil {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	var count int
	require.NoError(t, st.db.QueryRow(`SELECT COUNT(*) FROM companies WHERE domain = 'shared.io'`).Scan(&count))
	assert.Equal(t, 1, count)
}
