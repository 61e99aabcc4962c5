package importer

import (
	"net/mail"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/relationship-crm/internal/model"
)

// ErrNoEmailColumn is returned when the header has no recognizable email
// column.
var ErrNoEmailColumn = eris.New("importer: header has no email column")

type field int

const (
	fieldEmail field = iota
	fieldName
	fieldFirstName
	fieldLastName
	fieldTitle
	fieldLinkedIn
)

// headerAliases maps normalized header text to a contact field. Exports from
// Google Contacts, Outlook and LinkedIn use these names.
var headerAliases = map[string]field{
	"email":            fieldEmail,
	"e-mail":           fieldEmail,
	"email address":    fieldEmail,
	"e-mail address":   fieldEmail,
	"e-mail 1 - value": fieldEmail,
	"primary email":    fieldEmail,
	"name":             fieldName,
	"full name":        fieldName,
	"display name":     fieldName,
	"first name":       fieldFirstName,
	"given name":       fieldFirstName,
	"last name":        fieldLastName,
	"family name":      fieldLastName,
	"surname":          fieldLastName,
	"title":            fieldTitle,
	"job title":        fieldTitle,
	"position":         fieldTitle,
	"linkedin":         fieldLinkedIn,
	"linkedin url":     fieldLinkedIn,
	"linkedin profile": fieldLinkedIn,
	"profile url":      fieldLinkedIn,
}

type columnMap map[field]int

func mapHeader(header []string) (columnMap, error) {
	cols := make(columnMap)
	for i, h := range header {
		key := strings.ToLower(strings.Join(strings.Fields(strings.TrimPrefix(h, "\ufeff")), " "))
		f, ok := headerAliases[key]
		if !ok {
			continue
		}
		if _, seen := cols[f]; !seen {
			cols[f] = i
		}
	}
	if _, ok := cols[fieldEmail]; !ok {
		return nil, ErrNoEmailColumn
	}
	return cols, nil
}

func (m columnMap) get(row []string, f field) string {
	i, ok := m[f]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// contact builds a contact from row. ok is false when the row has no
// usable email address.
func (m columnMap) contact(ownerID string, row []string) (model.Contact, bool) {
	email := normalizeEmail(m.get(row, fieldEmail))
	if email == "" {
		return model.Contact{}, false
	}

	name := m.get(row, fieldName)
	if name == "" {
		name = strings.TrimSpace(m.get(row, fieldFirstName) + " " + m.get(row, fieldLastName))
	}
	return model.Contact{
		OwnerID:     ownerID,
		Email:       email,
		Name:        name,
		Title:       m.get(row, fieldTitle),
		LinkedInURL: m.get(row, fieldLinkedIn),
	}, true
}

// normalizeEmail lower-cases a bare address and rejects anything that does
// not parse, including display-name forms with more than one address.
func normalizeEmail(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return ""
	}
	email := strings.ToLower(addr.Address)
	at := strings.LastIndex(email, "@")
	if at <= 0 || !strings.Contains(email[at+1:], ".") {
		return ""
	}
	return email
}
