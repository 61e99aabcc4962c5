package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/relationship-crm/internal/db"
	"github.com/sells-group/relationship-crm/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id             BIGSERIAL PRIMARY KEY,
	domain         TEXT NOT NULL UNIQUE,
	name           TEXT NOT NULL,
	industry       TEXT NOT NULL DEFAULT '',
	employee_count INTEGER,
	founded_year   INTEGER,
	linkedin_url   TEXT NOT NULL DEFAULT '',
	website        TEXT NOT NULL DEFAULT '',
	logo_url       TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	city           TEXT NOT NULL DEFAULT '',
	state          TEXT NOT NULL DEFAULT '',
	country        TEXT NOT NULL DEFAULT '',
	total_funding  BIGINT,
	funding_stage  TEXT NOT NULL DEFAULT '',
	provider_id    TEXT NOT NULL DEFAULT '',
	enriched_at    TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contacts (
	id           BIGSERIAL PRIMARY KEY,
	owner_id     TEXT NOT NULL,
	email        TEXT NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	headline     TEXT NOT NULL DEFAULT '',
	linkedin_url TEXT NOT NULL DEFAULT '',
	photo_url    TEXT NOT NULL DEFAULT '',
	company_id   BIGINT REFERENCES companies(id) ON DELETE SET NULL,
	enriched_at  TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (owner_id, email)
);

CREATE INDEX IF NOT EXISTS idx_contacts_owner_enriched ON contacts(owner_id, enriched_at);
CREATE INDEX IF NOT EXISTS idx_contacts_company_id ON contacts(company_id);
`

const pgUpsertCompany = `INSERT INTO companies (domain, name, industry, employee_count, founded_year, linkedin_url, website, logo_url, description, city, state, country, total_funding, funding_stage, provider_id, enriched_at)
VALUES ($1, COALESCE($3, $2), COALESCE($4, ''), $5, $6, COALESCE($7, ''), COALESCE($8, ''), COALESCE($9, ''), COALESCE($10, ''), COALESCE($11, ''), COALESCE($12, ''), COALESCE($13, ''), $14, COALESCE($15, ''), COALESCE($16, ''), $17)
ON CONFLICT (domain) DO UPDATE SET
	name = COALESCE($3, companies.name),
	industry = COALESCE($4, companies.industry),
	employee_count = COALESCE($5, companies.employee_count),
	founded_year = COALESCE($6, companies.founded_year),
	linkedin_url = COALESCE($7, companies.linkedin_url),
	website = COALESCE($8, companies.website),
	logo_url = COALESCE($9, companies.logo_url),
	description = COALESCE($10, companies.description),
	city = COALESCE($11, companies.city),
	state = COALESCE($12, companies.state),
	country = COALESCE($13, companies.country),
	total_funding = COALESCE($14, companies.total_funding),
	funding_stage = COALESCE($15, companies.funding_stage),
	provider_id = COALESCE($16, companies.provider_id),
	enriched_at = COALESCE($17, companies.enriched_at),
	updated_at = now()
RETURNING ` + companyColumns

const pgUpdateContact = `UPDATE contacts SET
	name = COALESCE($2, name),
	title = COALESCE($3, title),
	headline = COALESCE($4, headline),
	linkedin_url = COALESCE($5, linkedin_url),
	photo_url = COALESCE($6, photo_url),
	company_id = COALESCE($7, company_id),
	enriched_at = COALESCE($8, enriched_at),
	updated_at = now()
WHERE id = $1`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) FindContactsNeedingEnrichment(ctx context.Context, ownerID string, force bool) ([]model.Contact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE owner_id = $1 AND ($2 OR enriched_at IS NULL) ORDER BY id`,
		ownerID, force,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find contacts needing enrichment for %s", ownerID)
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan contact")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate contacts")
}

func (s *PostgresStore) UpdateContact(ctx context.Context, id int64, u model.ContactUpdate) error {
	if u.Empty() {
		return nil
	}
	tag, err := s.pool.Exec(ctx, pgUpdateContact, contactUpdateArgs(id, u)...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update contact %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "contact %d", id)
	}
	return nil
}

func (s *PostgresStore) CreateContact(ctx context.Context, c model.Contact) (*model.Contact, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO contacts (owner_id, email, name, title, headline, linkedin_url, photo_url, company_id, enriched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+contactColumns,
		c.OwnerID, strings.ToLower(strings.TrimSpace(c.Email)), c.Name, c.Title, c.Headline,
		c.LinkedInURL, c.PhotoURL, c.CompanyID, c.EnrichedAt,
	)
	out, err := scanContact(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: create contact %s", c.Email)
	}
	return out, nil
}

// ImportContacts bulk-inserts contacts, skipping any (owner, email) pair
// that already exists.
func (s *PostgresStore) ImportContacts(ctx context.Context, contacts []model.Contact) (int64, error) {
	rows := make([][]any, 0, len(contacts))
	for _, c := range contacts {
		rows = append(rows, []any{
			c.OwnerID, strings.ToLower(strings.TrimSpace(c.Email)),
			c.Name, c.Title, c.Headline, c.LinkedInURL, c.PhotoURL,
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "contacts",
		Columns:      []string{"owner_id", "email", "name", "title", "headline", "linkedin_url", "photo_url"},
		ConflictKeys: []string{"owner_id", "email"},
		DoNothing:    true,
	}, rows)
	return n, eris.Wrap(err, "postgres: import contacts")
}

func (s *PostgresStore) FindCompanyByDomain(ctx context.Context, domain string) (*model.Company, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE domain = $1`, domain)
	c, err := scanCompany(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find company %s", domain)
	}
	return c, nil
}

func (s *PostgresStore) UpsertCompany(ctx context.Context, domain, fallbackName string, fields model.CompanyFields) (*model.Company, error) {
	row := s.pool.QueryRow(ctx, pgUpsertCompany, companyArgs(domain, fallbackName, fields)...)
	c, err := scanCompany(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert company %s", domain)
	}
	return c, nil
}
