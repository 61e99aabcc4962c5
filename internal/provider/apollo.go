package provider

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/relationship-crm/internal/model"
	"github.com/sells-group/relationship-crm/internal/resilience"
	"github.com/sells-group/relationship-crm/pkg/apollo"
)

const apolloName = "apollo"

// Apollo implements Provider on top of the Apollo.io API. Every call runs
// through a circuit breaker; calls rejected by an open circuit surface as a
// *ProviderError. The adapter never retries.
type Apollo struct {
	client         apollo.Client
	breaker        *resilience.CircuitBreaker
	revealPersonal bool
}

// ApolloOption configures the adapter.
type ApolloOption func(*Apollo)

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) ApolloOption {
	return func(a *Apollo) { a.breaker = cb }
}

// WithRevealPersonalEmails asks Apollo to include personal emails in matches.
func WithRevealPersonalEmails(v bool) ApolloOption {
	return func(a *Apollo) { a.revealPersonal = v }
}

// NewApollo wraps an Apollo client.
func NewApollo(client apollo.Client, opts ...ApolloOption) *Apollo {
	a := &Apollo{client: client}
	for _, o := range opts {
		o(a)
	}
	if a.breaker == nil {
		cfg := resilience.DefaultCircuitBreakerConfig()
		cfg.Name = apolloName
		a.breaker = resilience.NewCircuitBreaker(cfg)
	}
	return a
}

// MatchPersonByEmail implements Provider.
func (a *Apollo) MatchPersonByEmail(ctx context.Context, email string) (*model.Person, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	p, err := resilience.ExecuteVal(ctx, a.breaker, func(ctx context.Context) (*apollo.Person, error) {
		return a.client.MatchPerson(ctx, apollo.MatchPersonRequest{
			Email:                email,
			RevealPersonalEmails: a.revealPersonal,
		})
	})
	if err != nil {
		return nil, a.wrap("match person", err)
	}
	if p == nil {
		return nil, nil
	}

	person := toPerson(p)
	if person.Organization != nil && person.Organization.Domain == "" {
		person.Organization.Domain = emailDomain(email)
	}
	zap.L().Debug("provider: person matched",
		zap.String("provider", apolloName),
		zap.String("provider_id", person.ProviderID),
	)
	return person, nil
}

// EnrichOrganization implements Provider.
func (a *Apollo) EnrichOrganization(ctx context.Context, domain string) (*model.Organization, error) {
	if domain == "" {
		return nil, nil
	}
	org, err := resilience.ExecuteVal(ctx, a.breaker, func(ctx context.Context) (*apollo.Organization, error) {
		return a.client.EnrichOrganization(ctx, domain)
	})
	if err != nil {
		return nil, a.wrap("enrich organization", err)
	}
	if org == nil {
		return nil, nil
	}
	return toOrganization(org, domain), nil
}

// EnrichOrganizationFree implements Provider using the credit-free search
// endpoint, taking the first hit.
func (a *Apollo) EnrichOrganizationFree(ctx context.Context, domain string) (*model.Organization, error) {
	if domain == "" {
		return nil, nil
	}
	orgs, err := resilience.ExecuteVal(ctx, a.breaker, func(ctx context.Context) ([]apollo.Organization, error) {
		return a.client.SearchOrganizations(ctx, apollo.SearchOrganizationsRequest{
			Domains: []string{domain},
			Page:    1,
			PerPage: 1,
		})
	})
	if err != nil {
		return nil, a.wrap("search organizations", err)
	}
	if len(orgs) == 0 {
		return nil, nil
	}
	return toOrganization(&orgs[0], domain), nil
}

func (a *Apollo) wrap(op string, err error) error {
	pe := &ProviderError{Provider: apolloName, Op: op, Err: err}
	var apiErr *apollo.APIError
	if errors.As(err, &apiErr) {
		pe.StatusCode = apiErr.StatusCode
		pe.Quota = isQuotaStatus(apiErr.StatusCode)
	}
	return pe
}

func toPerson(p *apollo.Person) *model.Person {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = strings.TrimSpace(p.FirstName + " " + p.LastName)
	}
	person := &model.Person{
		ProviderID:  p.ID,
		Name:        name,
		Title:       p.Title,
		Headline:    p.Headline,
		LinkedInURL: p.LinkedInURL,
		PhotoURL:    p.PhotoURL,
	}
	if p.Organization != nil {
		person.Organization = toOrganization(p.Organization, "")
	}
	return person
}

func toOrganization(o *apollo.Organization, domain string) *model.Organization {
	d := strings.ToLower(o.PrimaryDomain)
	if d == "" {
		d = domain
	}
	return &model.Organization{
		ProviderID:   o.ID,
		Name:         strings.TrimSpace(o.Name),
		Domain:       d,
		Industry:     o.Industry,
		Employees:    o.EstimatedNumEmployees,
		FoundedYear:  o.FoundedYear,
		LinkedInURL:  o.LinkedInURL,
		Website:      o.WebsiteURL,
		LogoURL:      o.LogoURL,
		Description:  o.ShortDescription,
		City:         o.City,
		State:        o.State,
		Country:      o.Country,
		TotalFunding: o.TotalFunding,
		FundingStage: o.LatestFundingStage,
	}
}
