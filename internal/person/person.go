// Package person holds the individual being resolved and the outcome of a
// resolution. A Person is owned by exactly one resolution task; sources only
// read it.
package person

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	seriesWidth = 4
	numberWidth = 6

	// BirthDateLayout is the wire and output format of a normalized birth date.
	BirthDateLayout = "02.01.2006"

	// DocumentTypePassport is the upstream code for a domestic passport.
	DocumentTypePassport = "21"
)

// Status is the terminal state of one person's resolution.
type Status string

const (
	StatusFound    Status = "found"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// Label returns the human readable status written to the output sheet.
func (s Status) Label() string {
	switch s {
	case StatusFound:
		return "Успешно"
	case StatusNotFound:
		return "ИНН не найден"
	case StatusError:
		return "Ошибка"
	default:
		return ""
	}
}

// ParseStatusLabel maps an output sheet label back to a Status.
func ParseStatusLabel(label string) (Status, bool) {
	for _, s := range []Status{StatusFound, StatusNotFound, StatusError} {
		if s.Label() == strings.TrimSpace(label) {
			return s, true
		}
	}
	return "", false
}

var (
	ErrMissingField     = errors.New("missing identity field")
	ErrInvalidBirthDate = errors.New("invalid birth date")
)

// Person is one row of the input: identity fields plus the mutable
// resolution outcome.
type Person struct {
	LastName       string `json:"last_name"`
	FirstName      string `json:"first_name"`
	Patronymic     string `json:"patronymic,omitempty"`
	BirthDate      string `json:"birth_date"`
	DocumentSeries string `json:"document_series"`
	DocumentNumber string `json:"document_number"`

	Identifier string `json:"identifier,omitempty"`
	Status     Status `json:"status,omitempty"`
}

// ID is the stable person key: zero-padded series and number separated by a
// space, e.g. "0012 003456".
func (p Person) ID() string {
	return p.DocumentSeries + " " + p.DocumentNumber
}

// DocumentValue formats the passport the way both upstream forms expect it:
// "SS SS NNNNNN".
func (p Person) DocumentValue() string {
	series := p.DocumentSeries
	if len(series) < 2 {
		return series + " " + p.DocumentNumber
	}
	return series[:2] + " " + series[2:] + " " + p.DocumentNumber
}

// Validate checks that every identity field except the patronymic is present.
func (p Person) Validate() error {
	fields := []struct {
		name, value string
	}{
		{"last_name", p.LastName},
		{"first_name", p.FirstName},
		{"birth_date", p.BirthDate},
		{"document_series", p.DocumentSeries},
		{"document_number", p.DocumentNumber},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
	}
	return nil
}

// WithOutcome returns a copy of p carrying the outcome's identifier and status.
func (p Person) WithOutcome(o SearchOutcome) Person {
	p.Identifier = o.Identifier
	p.Status = o.Status
	return p
}

// Normalize trims and capitalizes names, reformats the birth date to
// dd.mm.yyyy and zero-pads the document parts. Normalize is idempotent.
func Normalize(p Person) (Person, error) {
	if err := p.Validate(); err != nil {
		return Person{}, err
	}
	bd, err := NormalizeBirthDate(p.BirthDate)
	if err != nil {
		return Person{}, err
	}
	p.LastName = capitalize(p.LastName)
	p.FirstName = capitalize(p.FirstName)
	p.Patronymic = capitalize(p.Patronymic)
	p.BirthDate = bd
	p.DocumentSeries = zeroPad(p.DocumentSeries, seriesWidth)
	p.DocumentNumber = zeroPad(p.DocumentNumber, numberWidth)
	return p, nil
}

var birthDateLayouts = []string{
	BirthDateLayout,
	"2.1.2006",
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2006.01.02",
	"2 January 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02-Jan-2006",
}

// shortYearLayouts carry a two-digit year. Dates they yield in the future are
// moved back a century.
var shortYearLayouts = []string{
	"02.01.06",
	"2.1.06",
	"02/01/06",
	"2/1/06",
}

// NormalizeBirthDate accepts the date layouts seen in input sheets, plus
// spreadsheet serial day numbers, and returns dd.mm.yyyy.
func NormalizeBirthDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidBirthDate)
	}
	for _, layout := range birthDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(BirthDateLayout), nil
		}
	}
	for _, layout := range shortYearLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			if t.After(time.Now()) {
				t = t.AddDate(-100, 0, 0)
			}
			return t.Format(BirthDateLayout), nil
		}
	}
	if t, ok := fromSerialDate(raw); ok {
		return t.Format(BirthDateLayout), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidBirthDate, raw)
}

// spreadsheetEpoch is day zero of the 1900 date system (accounting for the
// phantom 1900-02-29).
var spreadsheetEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

func fromSerialDate(raw string) (time.Time, bool) {
	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil || serial < 61 || serial > 2958465 {
		return time.Time{}, false
	}
	return spreadsheetEpoch.AddDate(0, 0, int(serial)), true
}

func capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func zeroPad(s string, width int) string {
	s = strings.Join(strings.Fields(s), "")
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
