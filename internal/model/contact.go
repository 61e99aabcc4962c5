package model

import (
	"strings"
	"time"
)

// Contact is a person in an owner's address book, usually derived from
// calendar attendees.
type Contact struct {
	ID          int64      `json:"id" db:"id"`
	OwnerID     string     `json:"owner_id" db:"owner_id"`
	Email       string     `json:"email" db:"email"`
	Name        string     `json:"name,omitempty" db:"name"`
	Title       string     `json:"title,omitempty" db:"title"`
	Headline    string     `json:"headline,omitempty" db:"headline"`
	LinkedInURL string     `json:"linkedin_url,omitempty" db:"linkedin_url"`
	PhotoURL    string     `json:"photo_url,omitempty" db:"photo_url"`
	CompanyID   *int64     `json:"company_id,omitempty" db:"company_id"`
	EnrichedAt  *time.Time `json:"enriched_at,omitempty" db:"enriched_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Domain returns the lower-cased part of the email after the last "@", or
// "" when the address has none.
func (c Contact) Domain() string {
	at := strings.LastIndex(c.Email, "@")
	if at < 0 || at == len(c.Email)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(c.Email[at+1:]))
}

// ContactUpdate is written onto a contact after a lookup. Empty strings and
// nil pointers leave the stored value as it is.
type ContactUpdate struct {
	Name        string
	Title       string
	Headline    string
	LinkedInURL string
	PhotoURL    string
	CompanyID   *int64
	EnrichedAt  *time.Time
}

// Empty reports whether the update would change nothing.
func (u ContactUpdate) Empty() bool {
	return u.Name == "" && u.Title == "" && u.Headline == "" &&
		u.LinkedInURL == "" && u.PhotoURL == "" && u.CompanyID == nil && u.EnrichedAt == nil
}

// Person is a provider's match for an email address.
type Person struct {
	ProviderID   string        `json:"provider_id"`
	Name         string        `json:"name"`
	Title        string        `json:"title,omitempty"`
	Headline     string        `json:"headline,omitempty"`
	LinkedInURL  string        `json:"linkedin_url,omitempty"`
	PhotoURL     string        `json:"photo_url,omitempty"`
	Organization *Organization `json:"organization,omitempty"`
}
