package extract

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/meterwerk/meter-import-worker/internal/normalize"
)

// Row is one record of the input sequence: a mapping from column label to
// the raw cell value as decoded from the source file or message.
type Row map[string]any

// ImportRecord is the canonical form of one customer-import row. Fields the
// source row did not supply are left empty; completeness is judged later by
// the resolver and linker.
type ImportRecord struct {
	GivenName      string
	FamilyName     string
	Street         string
	HouseNumber    string
	MeterNumber    string
	InstalledAt    *time.Time
	MobileNumber   string
	LandlineNumber string
}

// ReadingRecord is the canonical form of one reading-import row. Valid is
// false on Date when the date cell was absent or unparseable; Value is nil
// in the same situation for the value cell.
type ReadingRecord struct {
	MeterNumber string
	Date        time.Time
	DateValid   bool
	Value       *float64
}

// Alias tables map each canonical field to the column labels it may appear
// under, in priority order. The first alias with a non-empty cell wins.
// Labels mirror the spreadsheets this importer receives, umlaut variants
// included.
var (
	fullNameAliases    = []string{"Name", "name", "Nachname", "Vorname"}
	streetAliases      = []string{"Straße", "Strasse", "strasse"}
	houseNumberAliases = []string{"Hausnummer", "hausnummer"}
	meterNumberAliases = []string{"Zählernummer", "Zaehlernummer", "zaehlernummer", "Zaehler", "zaehler"}
	installDateAliases = []string{"Installationsdatum", "installationsdatum", "InstallationsDatum"}
	mobileAliases      = []string{"Mobilnummer", "mobilnummer", "Mobil"}
	landlineAliases    = []string{"Festnetznummer", "festnetznummer", "Festnetz"}
	readingDateAliases = []string{"Datum", "datum", "date"}
	valueAliases       = []string{"Zählerstand", "Zaehlerstand", "zaehlerstand", "Wert", "wert", "value"}
)

// CustomerRecord maps one raw row onto an ImportRecord.
func CustomerRecord(row Row) ImportRecord {
	rec := ImportRecord{
		Street:         stringField(row, streetAliases),
		HouseNumber:    stringField(row, houseNumberAliases),
		MeterNumber:    stringField(row, meterNumberAliases),
		MobileNumber:   stringField(row, mobileAliases),
		LandlineNumber: stringField(row, landlineAliases),
	}

	rec.GivenName, rec.FamilyName = splitName(stringField(row, fullNameAliases))

	if raw, ok := firstValue(row, installDateAliases); ok {
		if d, ok := normalize.Date(raw); ok {
			rec.InstalledAt = &d
		}
	}

	return rec
}

// MeterReadingRecord maps one raw row onto a ReadingRecord.
func MeterReadingRecord(row Row) ReadingRecord {
	rec := ReadingRecord{
		MeterNumber: stringField(row, meterNumberAliases),
	}

	if raw, ok := firstValue(row, readingDateAliases); ok {
		rec.Date, rec.DateValid = normalize.Date(raw)
	}

	if raw, ok := firstValue(row, valueAliases); ok {
		if v, ok := normalize.Number(raw); ok {
			rec.Value = &v
		}
	}

	return rec
}

// splitName splits a full name on the first whitespace run: the first token
// becomes the given name, the remaining tokens joined by single spaces the
// family name. An empty remainder is an empty family name, not an error.
func splitName(full string) (given, family string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// firstValue returns the first non-empty cell among the aliased labels.
func firstValue(row Row, aliases []string) (any, bool) {
	for _, label := range aliases {
		v, ok := row[label]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func stringField(row Row, aliases []string) string {
	v, ok := firstValue(row, aliases)
	if !ok {
		return ""
	}
	return cellString(v)
}

// cellString renders a raw cell value as a trimmed string. Numeric cells
// keep their shortest exact representation so meter serials read from
// numeric columns do not grow a trailing ".000000".
func cellString(v any) string {
	switch c := v.(type) {
	case string:
		return strings.TrimSpace(c)
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(c), 'f', -1, 32)
	case int:
		return strconv.Itoa(c)
	case int64:
		return strconv.FormatInt(c, 10)
	case time.Time:
		return c.Format("2006-01-02")
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", c))
	}
}
