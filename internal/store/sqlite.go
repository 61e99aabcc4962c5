package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/relationship-crm/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// SQLite has a single writer; one connection keeps upserts from racing
	// into SQLITE_BUSY and keeps the pragmas below in force.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
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
	total_funding  INTEGER,
	funding_stage  TEXT NOT NULL DEFAULT '',
	provider_id    TEXT NOT NULL DEFAULT '',
	enriched_at    DATETIME,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS contacts (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id     TEXT NOT NULL,
	email        TEXT NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	headline     TEXT NOT NULL DEFAULT '',
	linkedin_url TEXT NOT NULL DEFAULT '',
	photo_url    TEXT NOT NULL DEFAULT '',
	company_id   INTEGER REFERENCES companies(id) ON DELETE SET NULL,
	enriched_at  DATETIME,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL,
	UNIQUE (owner_id, email)
);

CREATE INDEX IF NOT EXISTS idx_contacts_owner_enriched ON contacts(owner_id, enriched_at);
CREATE INDEX IF NOT EXISTS idx_contacts_company_id ON contacts(company_id);
`

const sqliteUpsertCompany = `INSERT INTO companies (domain, name, industry, employee_count, founded_year, linkedin_url, website, logo_url, description, city, state, country, total_funding, funding_stage, provider_id, enriched_at, created_at, updated_at)
VALUES (?1, COALESCE(?3, ?2), COALESCE(?4, ''), ?5, ?6, COALESCE(?7, ''), COALESCE(?8, ''), COALESCE(?9, ''), COALESCE(?10, ''), COALESCE(?11, ''), COALESCE(?12, ''), COALESCE(?13, ''), ?14, COALESCE(?15, ''), COALESCE(?16, ''), ?17, ?18, ?18)
ON CONFLICT (domain) DO UPDATE SET
	name = COALESCE(?3, companies.name),
	industry = COALESCE(?4, companies.industry),
	employee_count = COALESCE(?5, companies.employee_count),
	founded_year = COALESCE(?6, companies.founded_year),
	linkedin_url = COALESCE(?7, companies.linkedin_url),
	website = COALESCE(?8, companies.website),
	logo_url = COALESCE(?9, companies.logo_url),
	description = COALESCE(?10, companies.description),
	city = COALESCE(?11, companies.city),
	state = COALESCE(?12, companies.state),
	country = COALESCE(?13, companies.country),
	total_funding = COALESCE(?14, companies.total_funding),
	funding_stage = COALESCE(?15, companies.funding_stage),
	provider_id = COALESCE(?16, companies.provider_id),
	enriched_at = COALESCE(?17, companies.enriched_at),
	updated_at = ?18
RETURNING ` + companyColumns

const sqliteUpdateContact = `UPDATE contacts SET
	name = COALESCE(?2, name),
	title = COALESCE(?3, title),
	headline = COALESCE(?4, headline),
	linkedin_url = COALESCE(?5, linkedin_url),
	photo_url = COALESCE(?6, photo_url),
	company_id = COALESCE(?7, company_id),
	enriched_at = COALESCE(?8, enriched_at),
	updated_at = ?9
WHERE id = ?1`

const sqliteInsertContact = `INSERT INTO contacts (owner_id, email, name, title, headline, linkedin_url, photo_url, company_id, enriched_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindContactsNeedingEnrichment(ctx context.Context, ownerID string, force bool) ([]model.Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE owner_id = ? AND (? OR enriched_at IS NULL) ORDER BY id`,
		ownerID, force,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find contacts needing enrichment for %s", ownerID)
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contact")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate contacts")
}

func (s *SQLiteStore) UpdateContact(ctx context.Context, id int64, u model.ContactUpdate) error {
	if u.Empty() {
		return nil
	}
	args := append(contactUpdateArgs(id, u), time.Now().UTC())
	res, err := s.db.ExecContext(ctx, sqliteUpdateContact, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update contact %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "contact %d", id)
	}
	return nil
}

func (s *SQLiteStore) CreateContact(ctx context.Context, c model.Contact) (*model.Contact, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, sqliteInsertContact,
		c.OwnerID, strings.ToLower(strings.TrimSpace(c.Email)), c.Name, c.Title, c.Headline,
		c.LinkedInURL, c.PhotoURL, c.CompanyID, c.EnrichedAt, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: create contact %s", c.Email)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: last insert id")
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id)
	out, err := scanContact(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: reload contact %d", id)
	}
	return out, nil
}

// ImportContacts inserts contacts in one transaction, skipping any
// (owner, email) pair that already exists.
func (s *SQLiteStore) ImportContacts(ctx context.Context, contacts []model.Contact) (int64, error) {
	if len(contacts) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteInsertContact+` ON CONFLICT (owner_id, email) DO NOTHING`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare import")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var inserted int64
	for _, c := range contacts {
		res, err := stmt.ExecContext(ctx,
			c.OwnerID, strings.ToLower(strings.TrimSpace(c.Email)), c.Name, c.Title, c.Headline,
			c.LinkedInURL, c.PhotoURL, nil, nil, now, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: import contact %s", c.Email)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit import")
	}
	return inserted, nil
}

func (s *SQLiteStore) FindCompanyByDomain(ctx context.Context, domain string) (*model.Company, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+companyColumns+` FROM companies WHERE domain = ?`, domain)
	c, err := scanCompany(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find company %s", domain)
	}
	return c, nil
}

func (s *SQLiteStore) UpsertCompany(ctx context.Context, domain, fallbackName string, fields model.CompanyFields) (*model.Company, error) {
	args := append(companyArgs(domain, fallbackName, fields), time.Now().UTC())
	row := s.db.QueryRowContext(ctx, sqliteUpsertCompany, args...)
	c, err := scanCompany(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert company %s", domain)
	}
	return c, nil
}
