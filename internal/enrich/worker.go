// Package enrich runs an owner's contacts through the person lookup and the
// company upsert, one contact at a time.
package enrich

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/relationship-crm/internal/company"
	"github.com/sells-group/relationship-crm/internal/jobs"
	"github.com/sells-group/relationship-crm/internal/model"
)

// ContactStore is the slice of the store the worker reads and writes.
type ContactStore interface {
	FindContactsNeedingEnrichment(ctx context.Context, ownerID string, force bool) ([]model.Contact, error)
	UpdateContact(ctx context.Context, id int64, u model.ContactUpdate) error
}

// PersonMatcher looks up a person by email. A miss is (nil, nil).
type PersonMatcher interface {
	MatchPersonByEmail(ctx context.Context, email string) (*model.Person, error)
}

// CompanyUpserter resolves a domain to a stored company.
type CompanyUpserter interface {
	Upsert(ctx context.Context, domain string, opts company.UpsertOptions) (*model.Company, error)
}

// DomainFilter reports free-mail and other domains that do not identify a
// company.
type DomainFilter interface {
	IsGeneric(domain string) bool
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeEnriched
	outcomeError
)

// Worker implements jobs.Runner.
type Worker struct {
	contacts  ContactStore
	people    PersonMatcher
	companies CompanyUpserter
	generic   DomainFilter
	now       func() time.Time
}

// NewWorker wires a Worker.
func NewWorker(contacts ContactStore, people PersonMatcher, companies CompanyUpserter, generic DomainFilter) *Worker {
	return &Worker{
		contacts:  contacts,
		people:    people,
		companies: companies,
		generic:   generic,
		now:       time.Now,
	}
}

// Run enriches the owner's eligible contacts. Total is fixed to the eligible
// count up front. The token is checked before each contact, so a stop ends
// the run with fewer processed contacts than Total and never interrupts a
// lookup already in flight.
func (w *Worker) Run(ctx context.Context, run *jobs.Run) (jobs.Progress, error) {
	log := zap.L().With(zap.String("owner_id", run.OwnerID), zap.String("run_id", run.RunID))

	contacts, err := w.contacts.FindContactsNeedingEnrichment(ctx, run.OwnerID, run.Force)
	if err != nil {
		return jobs.Progress{}, eris.Wrap(err, "enrich: find eligible contacts")
	}

	p := jobs.Progress{Total: len(contacts)}
	if err := w.report(ctx, run, p); err != nil {
		return p, err
	}
	log.Info("enrich: run begins", zap.Int("eligible", p.Total), zap.Bool("force", run.Force))

	for _, c := range contacts {
		if run.Cancelled() {
			log.Info("enrich: run cancelled",
				zap.Int("processed", p.Processed()),
				zap.Int("total", p.Total),
			)
			return p, nil
		}

		switch w.enrichContact(ctx, c, run.Force) {
		case outcomeEnriched:
			p.Enriched++
		case outcomeError:
			p.Errors++
		default:
			p.Skipped++
		}

		if err := w.report(ctx, run, p); err != nil {
			return p, err
		}
	}
	return p, nil
}

// report publishes progress. A stale run is surfaced so the loop ends; any
// other failure to publish is logged and the run continues.
func (w *Worker) report(ctx context.Context, run *jobs.Run, p jobs.Progress) error {
	err := run.Report(ctx, p)
	if errors.Is(err, jobs.ErrStaleRun) {
		return err
	}
	if err != nil {
		zap.L().Warn("enrich: publish progress", zap.String("owner_id", run.OwnerID), zap.Error(err))
	}
	return nil
}

func (w *Worker) enrichContact(ctx context.Context, c model.Contact, force bool) outcome {
	log := zap.L().With(zap.Int64("contact_id", c.ID), zap.String("email", c.Email))

	person, err := w.people.MatchPersonByEmail(ctx, c.Email)
	if err != nil {
		log.Warn("enrich: person lookup failed", zap.Error(err))
		return outcomeError
	}

	var companyID *int64
	if domain := company.NormalizeDomain(c.Domain()); domain != "" && !w.generic.IsGeneric(domain) {
		co, err := w.companies.Upsert(ctx, domain, company.UpsertOptions{Force: force})
		if err != nil {
			log.Warn("enrich: company upsert failed", zap.String("domain", domain), zap.Error(err))
			return outcomeError
		}
		companyID = &co.ID
	}

	if person == nil {
		// A miss stays eligible for the next run; only the company link is
		// recorded.
		if companyID != nil && !sameID(c.CompanyID, companyID) {
			if err := w.contacts.UpdateContact(ctx, c.ID, model.ContactUpdate{CompanyID: companyID}); err != nil {
				log.Warn("enrich: link company", zap.Error(err))
				return outcomeError
			}
		}
		return outcomeSkipped
	}

	now := w.now().UTC()
	err = w.contacts.UpdateContact(ctx, c.ID, model.ContactUpdate{
		Name:        person.Name,
		Title:       person.Title,
		Headline:    person.Headline,
		LinkedInURL: person.LinkedInURL,
		PhotoURL:    person.PhotoURL,
		CompanyID:   companyID,
		EnrichedAt:  &now,
	})
	if err != nil {
		log.Warn("enrich: update contact", zap.Error(err))
		return outcomeError
	}
	return outcomeEnriched
}

func sameID(a, b *int64) bool {
	return a != nil && b != nil && *a == *b
}
