package normalize

import (
	"strings"
	"time"

	"github.com/pharmaintel/helix/pkg/normalizers"
	"github.com/pharmaintel/helix/pkg/sources"
)

// relevantForms are the SEC form types worth tracking; everything else in the
// feed is noise for this system.
var relevantForms = map[string]bool{
	"10-K": true,
	"10-Q": true,
	"8-K":  true,
	"20-F": true,
	"S-1":  true,
	"S-3":  true,
}

var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2006-01-02T15:04:05-07:00",
}

// Filing converts one EDGAR feed entry into a filing record. Only relevant
// form types from tracked CIKs survive; tracked maps a normalized CIK to the
// company name it belongs to. The second return is a non-empty skip reason
// when the entry is dropped.
func Filing(entry sources.FilingEntry, tracked map[string]string) (*Record, string) {
	cik := normalizers.NormalizeCIK(entry.CIK)
	if cik == "" {
		return nil, SkipMissingID
	}

	companyName, ok := tracked[cik]
	if !ok {
		return nil, SkipIrrelevantForm
	}

	formType := strings.ToUpper(strings.TrimSpace(entry.FormType))
	// Amended filings (10-K/A) count as their base form.
	baseForm := strings.TrimSuffix(formType, "/A")
	if !relevantForms[baseForm] {
		return nil, SkipIrrelevantForm
	}

	if entry.Link == "" {
		return nil, SkipNoDocument
	}

	filingDate, ok := parsePubDate(entry.PubDate)
	if !ok {
		return nil, SkipBadDate
	}

	return &Record{Kind: KindFiling, Filing: &FilingRecord{
		CIK:         cik,
		CompanyName: companyName,
		FormType:    baseForm,
		FilingDate:  filingDate,
		Title:       entry.Title,
		URL:         entry.Link,
	}}, ""
}

func parsePubDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
