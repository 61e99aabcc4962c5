package company

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/relationship-crm/internal/model"
	"github.com/sells-group/relationship-crm/internal/provider"
	"github.com/sells-group/relationship-crm/internal/reindex"
)

// ErrInvalidDomain is returned when a domain normalizes to nothing.
var ErrInvalidDomain = eris.New("company: invalid domain")

// Store is the persistence the service needs.
type Store interface {
	FindCompanyByDomain(ctx context.Context, domain string) (*model.Company, error)
	UpsertCompany(ctx context.Context, domain, fallbackName string, fields model.CompanyFields) (*model.Company, error)
}

// UpsertOptions controls a single upsert.
type UpsertOptions struct {
	// Force looks the company up again even when it is already enriched.
	Force bool
	// Full uses the credit-consuming lookup instead of the free one.
	Full bool
}

// Service maps a domain to exactly one company record, enriching it at
// most once unless forced.
type Service struct {
	store    Store
	provider provider.Provider
	hook     reindex.Hook

	group   singleflight.Group
	pending sync.WaitGroup
	now     func() time.Time
}

// NewService creates a Service. A nil hook disables reindexing.
func NewService(store Store, p provider.Provider, hook reindex.Hook) *Service {
	if hook == nil {
		hook = reindex.Nop{}
	}
	return &Service{
		store:    store,
		provider: p,
		hook:     hook,
		now:      time.Now,
	}
}

// Upsert returns the company for domain, creating or enriching it as
// needed. Concurrent calls for the same domain and options share one
// lookup; a caller whose ctx ends stops waiting without failing the others.
func (s *Service) Upsert(ctx context.Context, domain string, opts UpsertOptions) (*model.Company, error) {
	d := NormalizeDomain(domain)
	if d == "" {
		return nil, eris.Wrapf(ErrInvalidDomain, "%q", domain)
	}

	// The shared call runs detached; each caller waits on its own ctx.
	key := fmt.Sprintf("%s|%t|%t", d, opts.Force, opts.Full)
	ch := s.group.DoChan(key, func() (any, error) {
		return s.upsert(context.WithoutCancel(ctx), d, opts)
	})
	select {
	case <-ctx.Done():
		return nil, eris.Wrapf(ctx.Err(), "company: upsert %s", d)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.Company), nil
	}
}

func (s *Service) upsert(ctx context.Context, domain string, opts UpsertOptions) (*model.Company, error) {
	existing, err := s.store.FindCompanyByDomain(ctx, domain)
	if err != nil {
		return nil, eris.Wrapf(err, "company: find %s", domain)
	}
	if existing.Enriched() && !opts.Force {
		return existing, nil
	}

	org, err := s.lookup(ctx, domain, opts.Full)
	if err != nil {
		return nil, eris.Wrapf(err, "company: lookup %s", domain)
	}

	if !org.Usable() {
		if existing != nil {
			return existing, nil
		}
		bare, err := s.store.UpsertCompany(ctx, domain, FallbackName(domain), model.CompanyFields{})
		if err != nil {
			return nil, eris.Wrapf(err, "company: create %s", domain)
		}
		zap.L().Debug("company: created without provider data", zap.String("domain", domain))
		s.reindex(ctx, bare)
		return bare, nil
	}

	c, err := s.store.UpsertCompany(ctx, domain, FallbackName(domain), MergeOrganization(org, s.now().UTC()))
	if err != nil {
		return nil, eris.Wrapf(err, "company: upsert %s", domain)
	}
	zap.L().Info("company: enriched",
		zap.String("domain", domain),
		zap.Int64("company_id", c.ID),
		zap.Bool("force", opts.Force),
		zap.Bool("full", opts.Full),
	)
	s.reindex(ctx, c)
	return c, nil
}

func (s *Service) lookup(ctx context.Context, domain string, full bool) (*model.Organization, error) {
	if full {
		return s.provider.EnrichOrganization(ctx, domain)
	}
	return s.provider.EnrichOrganizationFree(ctx, domain)
}

// reindex fires the hook in the background. Failures are logged only.
func (s *Service) reindex(ctx context.Context, c *model.Company) {
	ctx = context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				zap.L().Error("company: reindex panicked",
					zap.Int64("company_id", c.ID),
					zap.Any("panic", r),
				)
			}
		}()
		if err := s.hook.Reindex(ctx, c); err != nil {
			zap.L().Warn("company: reindex failed",
				zap.Int64("company_id", c.ID),
				zap.String("domain", c.Domain),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until all background reindex calls have returned.
func (s *Service) Wait() {
	s.pending.Wait()
}
