// Package apollo is a thin client for the Apollo.io people and organization
// enrichment endpoints.
package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.apollo.io/api/v1"

// Client performs lookups against the Apollo API. Lookups that find nothing
// return a nil result and a nil error.
type Client interface {
	MatchPerson(ctx context.Context, req MatchPersonRequest) (*Person, error)
	EnrichOrganization(ctx context.Context, domain string) (*Organization, error)
	SearchOrganizations(ctx context.Context, req SearchOrganizationsRequest) ([]Organization, error)
}

// MatchPersonRequest is the body of POST /people/match.
type MatchPersonRequest struct {
	Email                string `json:"email"`
	RevealPersonalEmails bool   `json:"reveal_personal_emails"`
}

// SearchOrganizationsRequest is the body of POST /mixed_companies/search.
// Search does not consume enrichment credits.
type SearchOrganizationsRequest struct {
	Domains []string `json:"q_organization_domains_list"`
	Page    int      `json:"page"`
	PerPage int      `json:"per_page"`
}

// Person is a matched person record.
type Person struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	FirstName    string        `json:"first_name"`
	LastName     string        `json:"last_name"`
	Title        string        `json:"title"`
	Headline     string        `json:"headline"`
	LinkedInURL  string        `json:"linkedin_url"`
	PhotoURL     string        `json:"photo_url"`
	Organization *Organization `json:"organization"`
}

// Organization is an organization record.
type Organization struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	WebsiteURL            string `json:"website_url"`
	LinkedInURL           string `json:"linkedin_url"`
	PrimaryDomain         string `json:"primary_domain"`
	Industry              string `json:"industry"`
	EstimatedNumEmployees int    `json:"estimated_num_employees"`
	FoundedYear           int    `json:"founded_year"`
	LogoURL               string `json:"logo_url"`
	ShortDescription      string `json:"short_description"`
	City                  string `json:"city"`
	State                 string `json:"state"`
	Country               string `json:"country"`
	TotalFunding          int64  `json:"total_funding"`
	LatestFundingStage    string `json:"latest_funding_stage"`
}

// APIError is returned for any non-2xx response other than 404.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apollo: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit throttles outbound calls to rps requests per second. Zero
// disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an Apollo API client. Calls are throttled to 5 req/s
// unless WithRateLimit says otherwise.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 5),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) MatchPerson(ctx context.Context, req MatchPersonRequest) (*Person, error) {
	var resp struct {
		Person *Person `json:"person"`
	}
	found, err := c.do(ctx, http.MethodPost, "/people/match", req, &resp)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: match person")
	}
	if !found {
		return nil, nil
	}
	return resp.Person, nil
}

func (c *httpClient) EnrichOrganization(ctx context.Context, domain string) (*Organization, error) {
	var resp struct {
		Organization *Organization `json:"organization"`
	}
	path := "/organizations/enrich?domain=" + url.QueryEscape(domain)
	found, err := c.do(ctx, http.MethodGet, path, nil, &resp)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: enrich organization")
	}
	if !found {
		return nil, nil
	}
	return resp.Organization, nil
}

func (c *httpClient) SearchOrganizations(ctx context.Context, req SearchOrganizationsRequest) ([]Organization, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PerPage == 0 {
		req.PerPage = 1
	}
	var resp struct {
		Organizations []Organization `json:"organizations"`
		Accounts      []Organization `json:"accounts"`
	}
	found, err := c.do(ctx, http.MethodPost, "/mixed_companies/search", req, &resp)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: search organizations")
	}
	if !found {
		return nil, nil
	}
	// Organizations already saved as accounts in the workspace come back
	// under "accounts".
	return append(resp.Accounts, resp.Organizations...), nil
}

// do sends one request and decodes a 2xx body into out. A 404 reports
// found=false with a nil error.
func (c *httpClient) do(ctx context.Context, method, path string, body, out any) (bool, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return false, eris.Wrap(err, "rate limit")
		}
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return false, eris.Wrap(err, "marshal request")
		}
		reader = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, eris.Wrap(err, "create request")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("X-Api-Key", c.apiKey)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return false, eris.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, eris.Wrap(err, "read response")
	}

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return false, eris.Wrap(err, "unmarshal response")
	}
	return true, nil
}
