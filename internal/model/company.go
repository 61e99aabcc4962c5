// Package model holds the contact and company records shared by the
// enrichment pipeline, the stores and the HTTP layer.
package model

import (
	"time"
)

// Company is the single record kept per normalized domain. Companies are
// shared across owners.
type Company struct {
	ID            int64      `json:"id" db:"id"`
	Domain        string     `json:"domain" db:"domain"`
	Name          string     `json:"name" db:"name"`
	Industry      string     `json:"industry,omitempty" db:"industry"`
	EmployeeCount *int       `json:"employee_count,omitempty" db:"employee_count"`
	FoundedYear   *int       `json:"founded_year,omitempty" db:"founded_year"`
	LinkedInURL   string     `json:"linkedin_url,omitempty" db:"linkedin_url"`
	Website       string     `json:"website,omitempty" db:"website"`
	LogoURL       string     `json:"logo_url,omitempty" db:"logo_url"`
	Description   string     `json:"description,omitempty" db:"description"`
	City          string     `json:"city,omitempty" db:"city"`
	State         string     `json:"state,omitempty" db:"state"`
	Country       string     `json:"country,omitempty" db:"country"`
	TotalFunding  *int64     `json:"total_funding,omitempty" db:"total_funding"`
	FundingStage  string     `json:"funding_stage,omitempty" db:"funding_stage"`
	ProviderID    string     `json:"provider_id,omitempty" db:"provider_id"`
	EnrichedAt    *time.Time `json:"enriched_at,omitempty" db:"enriched_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// Enriched reports whether the provider has already filled this record.
func (c *Company) Enriched() bool {
	return c != nil && c.EnrichedAt != nil
}

// CompanyFields is the write-through set applied by an upsert. A nil field
// leaves the stored column untouched.
type CompanyFields struct {
	Name          *string
	Industry      *string
	EmployeeCount *int
	FoundedYear   *int
	LinkedInURL   *string
	Website       *string
	LogoURL       *string
	Description   *string
	City          *string
	State         *string
	Country       *string
	TotalFunding  *int64
	FundingStage  *string
	ProviderID    *string
	EnrichedAt    *time.Time
}

// Organization is a provider's view of a company.
type Organization struct {
	ProviderID   string `json:"provider_id"`
	Name         string `json:"name"`
	Domain       string `json:"domain,omitempty"`
	Industry     string `json:"industry,omitempty"`
	Employees    int    `json:"employees,omitempty"`
	FoundedYear  int    `json:"founded_year,omitempty"`
	LinkedInURL  string `json:"linkedin_url,omitempty"`
	Website      string `json:"website,omitempty"`
	LogoURL      string `json:"logo_url,omitempty"`
	Description  string `json:"description,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	Country      string `json:"country,omitempty"`
	TotalFunding int64  `json:"total_funding,omitempty"`
	FundingStage string `json:"funding_stage,omitempty"`
}

// Usable reports whether the organization carries enough data to enrich a
// company record.
func (o *Organization) Usable() bool {
	return o != nil && o.Name != ""
}
