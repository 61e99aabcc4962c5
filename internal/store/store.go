// Package store persists contacts and companies in Postgres or SQLite.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/relationship-crm/internal/model"
)

// ErrNotFound is returned by updates that match no row.
var ErrNotFound = eris.New("store: not found")

// Store defines the persistence interface for contacts and companies.
type Store interface {
	// Contacts
	FindContactsNeedingEnrichment(ctx context.Context, ownerID string, force bool) ([]model.Contact, error)
	UpdateContact(ctx context.Context, id int64, u model.ContactUpdate) error
	CreateContact(ctx context.Context, c model.Contact) (*model.Contact, error)
	ImportContacts(ctx context.Context, contacts []model.Contact) (int64, error)

	// Companies
	FindCompanyByDomain(ctx context.Context, domain string) (*model.Company, error)
	// UpsertCompany inserts or updates the company keyed by domain. A new row
	// takes fields.Name, or fallbackName when fields.Name is nil. Nil fields
	// leave existing columns untouched.
	UpsertCompany(ctx context.Context, domain, fallbackName string, fields model.CompanyFields) (*model.Company, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

const contactColumns = `id, owner_id, email, name, title, headline, linkedin_url, photo_url, company_id, enriched_at, created_at, updated_at`

const companyColumns = `id, domain, name, industry, employee_count, founded_year, linkedin_url, website, logo_url, description, city, state, country, total_funding, funding_stage, provider_id, enriched_at, created_at, updated_at`

type scannable interface {
	Scan(dest ...any) error
}

func scanContact(row scannable) (*model.Contact, error) {
	var c model.Contact
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Email, &c.Name, &c.Title, &c.Headline,
		&c.LinkedInURL, &c.PhotoURL, &c.CompanyID, &c.EnrichedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanCompany(row scannable) (*model.Company, error) {
	var c model.Company
	err := row.Scan(
		&c.ID, &c.Domain, &c.Name, &c.Industry, &c.EmployeeCount, &c.FoundedYear,
		&c.LinkedInURL, &c.Website, &c.LogoURL, &c.Description,
		&c.City, &c.State, &c.Country, &c.TotalFunding, &c.FundingStage,
		&c.ProviderID, &c.EnrichedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// companyArgs returns the upsert parameters in column order, starting with
// domain and fallback name.
func companyArgs(domain, fallbackName string, f model.CompanyFields) []any {
	return []any{
		domain, fallbackName,
		f.Name, f.Industry, f.EmployeeCount, f.FoundedYear,
		f.LinkedInURL, f.Website, f.LogoURL, f.Description,
		f.City, f.State, f.Country, f.TotalFunding, f.FundingStage,
		f.ProviderID, f.EnrichedAt,
	}
}

// contactUpdateArgs returns the update parameters in column order. Empty
// strings become NULL so the stored value is kept.
func contactUpdateArgs(id int64, u model.ContactUpdate) []any {
	return []any{
		id,
		nullString(u.Name), nullString(u.Title), nullString(u.Headline),
		nullString(u.LinkedInURL), nullString(u.PhotoURL),
		u.CompanyID, u.EnrichedAt,
	}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
