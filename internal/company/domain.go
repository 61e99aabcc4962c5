// Package company maps email and web domains to a single shared company
// record and keeps that record enriched.
package company

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// NormalizeDomain reduces a domain, URL or email address to the key used
// for company records: lower-cased, without scheme, path, port, trailing
// dot or leading "www.". It is idempotent.
func NormalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndex(d, "@"); i >= 0 {
		d = d[i+1:]
	}
	if i := strings.Index(d, ":"); i >= 0 {
		d = d[:i]
	}
	for {
		next := strings.TrimPrefix(strings.Trim(strings.TrimSpace(d), "."), "www.")
		if next == d {
			return d
		}
		d = next
	}
}

// secondLevelSuffixes are public suffixes made of two labels.
var secondLevelSuffixes = map[string]bool{
	"co.uk": true, "org.uk": true, "ac.uk": true, "gov.uk": true, "me.uk": true,
	"com.au": true, "net.au": true, "org.au": true,
	"co.nz": true, "co.jp": true, "co.kr": true, "co.in": true, "co.za": true, "co.il": true,
	"com.br": true, "com.mx": true, "com.sg": true, "com.hk": true, "com.cn": true, "com.tr": true,
}

var titleCaser = cases.Title(language.English)

// FallbackName derives a display name from a domain by dropping the public
// suffix and title-casing what is left, e.g. "acme-tools.co.uk" becomes
// "Acme Tools".
func FallbackName(domain string) string {
	d := NormalizeDomain(domain)
	labels := strings.Split(d, ".")
	switch {
	case len(labels) >= 3 && secondLevelSuffixes[strings.Join(labels[len(labels)-2:], ".")]:
		labels = labels[:len(labels)-2]
	case len(labels) >= 2:
		labels = labels[:len(labels)-1]
	}

	var words []string
	for _, l := range labels {
		for _, w := range strings.FieldsFunc(l, func(r rune) bool { return r == '-' || r == '_' }) {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return d
	}
	return titleCaser.String(strings.Join(words, " "))
}

// defaultGenericDomains are consumer mail providers that never identify a
// company.
var defaultGenericDomains = []string{
	"gmail.com", "googlemail.com", "yahoo.com", "yahoo.co.uk", "ymail.com",
	"hotmail.com", "hotmail.co.uk", "outlook.com", "live.com", "msn.com",
	"icloud.com", "me.com", "mac.com", "aol.com", "proton.me", "protonmail.com",
	"gmx.com", "gmx.net", "mail.com", "zoho.com", "yandex.com", "fastmail.com",
	"hey.com", "comcast.net", "verizon.net", "att.net", "qq.com", "163.com",
}

// DomainSet is a set of normalized domains.
type DomainSet map[string]struct{}

// NewDomainSet builds a set from the given domains, normalizing each.
func NewDomainSet(domains ...string) DomainSet {
	s := make(DomainSet, len(domains))
	s.Add(domains...)
	return s
}

// Add inserts domains into the set.
func (s DomainSet) Add(domains ...string) {
	for _, d := range domains {
		if n := NormalizeDomain(d); n != "" {
			s[n] = struct{}{}
		}
	}
}

// Contains reports whether domain, after normalization, is in the set.
func (s DomainSet) Contains(domain string) bool {
	_, ok := s[NormalizeDomain(domain)]
	return ok
}

// IsGeneric reports whether domain is a consumer mail domain. It satisfies
// the worker's generic-domain check.
func (s DomainSet) IsGeneric(domain string) bool {
	return s.Contains(domain)
}

type domainsFile struct {
	Domains []string `yaml:"domains"`
}

// GenericDomains returns the built-in consumer domains plus extra and the
// domains listed in the YAML file at path, if path is set. The file holds a
// top-level "domains" list.
func GenericDomains(extra []string, path string) (DomainSet, error) {
	set := NewDomainSet(defaultGenericDomains...)
	set.Add(extra...)
	if path == "" {
		return set, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "company: read generic domains file %s", path)
	}
	var f domainsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "company: parse generic domains file %s", path)
	}
	set.Add(f.Domains...)
	return set, nil
}
