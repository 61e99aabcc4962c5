// Package provider adapts third-party enrichment APIs to the person and
// organization lookups used by the enrichment worker and company service.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sells-group/relationship-crm/internal/model"
)

// Provider looks up people and organizations. A lookup that finds nothing
// returns (nil, nil). Transport, quota and decoding failures return a
// *ProviderError.
type Provider interface {
	MatchPersonByEmail(ctx context.Context, email string) (*model.Person, error)

	// EnrichOrganization is the full, credit-consuming lookup.
	EnrichOrganization(ctx context.Context, domain string) (*model.Organization, error)

	// EnrichOrganizationFree is the quota-limited lookup used on first touch.
	EnrichOrganizationFree(ctx context.Context, domain string) (*model.Organization, error)
}

// ProviderError is a failed lookup.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	// Quota is set when the provider refused the call for credit or rate
	// reasons (402, 422, 429).
	Quota bool
	Err   error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsProviderError reports whether err is, or wraps, a *ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// IsQuota reports whether err is a provider quota refusal.
func IsQuota(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Quota
}

func isQuotaStatus(code int) bool {
	switch code {
	case http.StatusPaymentRequired, http.StatusUnprocessableEntity, http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// emailDomain returns the lower-cased part after the last "@".
func emailDomain(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 || i == len(email)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[i+1:]))
}
