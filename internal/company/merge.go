package company

import (
	"strings"
	"time"

	"github.com/sells-group/relationship-crm/internal/model"
)

// MergeOrganization maps a provider organization onto the fields written
// by an upsert. Every non-empty provider value is written through; empty
// values leave the stored column as it is. EnrichedAt is set to now.
func MergeOrganization(org *model.Organization, now time.Time) model.CompanyFields {
	f := model.CompanyFields{EnrichedAt: &now}
	if org == nil {
		return f
	}

	f.Name = str(org.Name)
	f.Industry = str(org.Industry)
	f.LinkedInURL = str(org.LinkedInURL)
	f.Website = str(org.Website)
	f.LogoURL = str(org.LogoURL)
	f.Description = str(org.Description)
	f.City = str(org.City)
	f.State = str(org.State)
	f.Country = str(org.Country)
	f.FundingStage = str(org.FundingStage)
	f.ProviderID = str(org.ProviderID)

	if org.Employees > 0 {
		n := org.Employees
		f.EmployeeCount = &n
	}
	if org.FoundedYear > 0 {
		y := org.FoundedYear
		f.FoundedYear = &y
	}
	if org.TotalFunding > 0 {
		t := org.TotalFunding
		f.TotalFunding = &t
	}
	return f
}

func str(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
