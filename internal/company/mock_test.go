package company

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/relationship-crm/internal/model"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindCompanyByDomain(ctx context.Context, domain string) (*model.Company, error) {
	args := m.Called(ctx, domain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Company), args.Error(1)
}

func (m *mockStore) UpsertCompany(ctx context.Context, domain, fallbackName string, fields model.CompanyFields) (*model.Company, error) {
	args := m.Called(ctx, domain, fallbackName, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Company), args.Error(1)
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) MatchPersonByEmail(ctx context.Context, email string) (*model.Person, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Person), args.Error(1)
}

func (m *mockProvider) EnrichOrganization(ctx context.Context, domain string) (*model.Organization, error) {
	args := m.Called(ctx, domain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Organization), args.Error(1)
}

func (m *mockProvider) EnrichOrganizationFree(ctx context.Context, domain string) (*model.Organization, error) {
	args := m.Called(ctx, domain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Organization), args.Error(1)
}

type mockHook struct {
	mock.Mock
}

func (m *mockHook) Reindex(ctx context.Context, c *model.Company) error {
	return m.Called(ctx, c).Error(0)
}
