// Package reindex notifies the search index that a company changed.
package reindex

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/relationship-crm/internal/model"
	"github.com/sells-group/relationship-crm/internal/resilience"
)

// Hook refreshes whatever derived index is kept for a company.
type Hook interface {
	Reindex(ctx context.Context, c *model.Company) error
}

// Nop is a Hook that does nothing.
type Nop struct{}

// Reindex implements Hook.
func (Nop) Reindex(context.Context, *model.Company) error { return nil }

// Payload is the JSON body posted to the webhook.
type Payload struct {
	CompanyID int64  `json:"company_id"`
	Domain    string `json:"domain"`
}

// Webhook posts a Payload to a URL, retrying transient failures.
type Webhook struct {
	url   string
	token string
	http  *http.Client
	retry resilience.RetryConfig
}

// Option configures a Webhook.
type Option func(*Webhook)

// WithToken sets a bearer token on every request.
func WithToken(token string) Option {
	return func(w *Webhook) { w.token = token }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(w *Webhook) { w.http = hc }
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(w *Webhook) { w.retry = cfg }
}

// NewWebhook creates a webhook hook for url.
func NewWebhook(url string, opts ...Option) *Webhook {
	w := &Webhook{
		url:   url,
		http:  &http.Client{Timeout: 10 * time.Second},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(w)
	}
	if w.retry.OnRetry == nil {
		w.retry.OnRetry = resilience.RetryLogger("reindex", "post")
	}
	return w
}

// Reindex implements Hook.
func (w *Webhook) Reindex(ctx context.Context, c *model.Company) error {
	if c == nil {
		return nil
	}
	body, err := json.Marshal(Payload{CompanyID: c.ID, Domain: c.Domain})
	if err != nil {
		return eris.Wrap(err, "reindex: marshal payload")
	}

	err = resilience.Do(ctx, w.retry, func(ctx context.Context) error {
		return w.post(ctx, body)
	})
	if err != nil {
		return eris.Wrapf(err, "reindex: company %d", c.ID)
	}
	zap.L().Debug("reindex: company refreshed",
		zap.Int64("company_id", c.ID),
		zap.String("domain", c.Domain),
	)
	return nil
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	return resilience.CheckStatus("reindex", resp)
}
