// Package guess derives a document file name from its OCR text.
//
// The name has the form "<YY> <MM> <label>": year and month come from the
// first date-like token, the label from the first URL (its registrable
// domain without the public suffix), else the domain of the first email
// address, else a random document id.
package guess

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
	"mvdan.cc/xurls/v2"
)

const (
	unknownYear  = "YY"
	unknownMonth = "MM"
)

var (
	datePattern  = regexp.MustCompile(`\d{1,4}[.\-/]\d{1,2}[.\-/]\d{1,4}`)
	emailPattern = regexp.MustCompile(`[\w.-]+@[\w.-]+`)
	urlPattern   = xurls.Relaxed()
)

// Name is a guessed document name.
type Name struct {
	Year  string
	Month string
	Label string
}

// String renders the name without suffix.
func (n Name) String() string {
	return n.Year + " " + n.Month + " " + n.Label
}

// Guesser guesses names. The zero value is not usable; call New.
type Guesser struct {
	intN func(n int) int
}

// New returns a Guesser that draws random document ids from math/rand.
func New() *Guesser {
	return &Guesser{intN: rand.IntN}
}

// NewWithRand returns a Guesser drawing random ids from intN, which must
// return a value in [0, n).
func NewWithRand(intN func(n int) int) *Guesser {
	return &Guesser{intN: intN}
}

// Guess derives a Name from document text.
func (g *Guesser) Guess(text string) Name {
	year, month := Date(text)
	label := URLDomain(text)
	if label == "" {
		label = EmailDomain(text)
	}
	if label == "" {
		label = fmt.Sprintf("Doc Id %06d", g.intN(999999)+1)
	}
	return Name{Year: year, Month: month, Label: sanitize(label)}
}

// Date returns the two-digit year and the month of the first date-like token,
// read as day.month.year. Missing parts come back as "YY" and "MM".
func Date(text string) (year, month string) {
	m := datePattern.FindString(text)
	if m == "" {
		return unknownYear, unknownMonth
	}
	year = slice(m, 8, 10)
	month = slice(m, 3, 5)
	if year == "" {
		year = unknownYear
	}
	if month == "" {
		month = unknownMonth
	}
	return strings.ReplaceAll(year, "/", "x"), strings.ReplaceAll(month, "/", "x")
}

// URLDomain returns the registrable domain label of the first URL in text,
// e.g. "example" for "https://www.example.co.uk/path".
func URLDomain(text string) string {
	for _, raw := range urlPattern.FindAllString(text, -1) {
		if !strings.Contains(raw, "://") {
			if strings.Contains(raw, "@") {
				continue
			}
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			continue
		}
		if label := domainLabel(u.Hostname()); label != "" {
			return label
		}
	}
	return ""
}

// EmailDomain returns the domain of the first email address in text.
func EmailDomain(text string) string {
	m := emailPattern.FindString(text)
	if m == "" {
		return ""
	}
	_, domain, _ := strings.Cut(m, "@")
	return strings.Trim(domain, ".")
}

func domainLabel(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	suffix, _ := publicsuffix.PublicSuffix(etld1)
	return strings.TrimSuffix(etld1, "."+suffix)
}

// slice returns s[from:to] clamped to the bounds of s.
func slice(s string, from, to int) string {
	if from >= len(s) {
		return ""
	}
	return s[from:min(to, len(s))]
}

// sanitize keeps a label usable as part of a file name.
func sanitize(label string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, label)
}
