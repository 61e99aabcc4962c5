package enrich

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/relationship-crm/internal/company"
	"github.com/sells-group/relationship-crm/internal/model"
)

// --- ContactStore Mock ---

type mockContactStore struct {
	mock.Mock
}

func (m *mockContactStore) FindContactsNeedingEnrichment(ctx context.Context, ownerID string, force bool) ([]model.Contact, error) {
	args := m.Called(ctx, ownerID, force)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Contact), args.Error(1)
}

func (m *mockContactStore) UpdateContact(ctx context.Context, id int64, u model.ContactUpdate) error {
	args := m.Called(ctx, id, u)
	return args.Error(0)
}

// --- PersonMatcher Mock ---

type mockPersonMatcher struct {
	mock.Mock
}

func (m *mockPersonMatcher) MatchPersonByEmail(ctx context.Context, email string) (*model.Person, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Person), args.Error(1)
}

// --- CompanyUpserter Mock ---

type mockCompanyUpserter struct {
	mock.Mock
}

func (m *mockCompanyUpserter) Upsert(ctx context.Context, domain string, opts company.UpsertOptions) (*model.Company, error) {
	args := m.Called(ctx, domain, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Company), args.Error(1)
}
