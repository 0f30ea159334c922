// Package normalize converts raw source payloads into canonical records the
// ingestion writer can persist. Malformed input never errors; it yields a
// skip reason instead so one bad record cannot poison a run.
package normalize

import "time"

// Skip reasons recorded against dropped records.
const (
	SkipMissingID      = "missing_id"
	SkipMissingName    = "missing_name"
	SkipBadDate        = "bad_date"
	SkipIrrelevantForm = "irrelevant_form"
	SkipNoDocument     = "no_document"
)

// Record kinds.
const (
	KindTrial    = "trial"
	KindApproval = "approval"
	KindFiling   = "filing"
)

// Record is the canonical unit flowing from normalization into the writer.
// Exactly one of Trial, Approval, or Filing is set, matching Kind.
type Record struct {
	Kind     string
	Trial    *TrialRecord
	Approval *ApprovalRecord
	Filing   *FilingRecord
}

// TrialRecord carries one clinical trial plus the entity names to resolve.
// LastUpdated is the source's own last-update timestamp, distinct from the
// local fetch timestamp stamped at write time.
type TrialRecord struct {
	NCTID          string
	Title          string
	Phase          string
	Status         string
	Enrollment     *int
	StartDate      *time.Time
	CompletionDate *time.Time
	URL            string
	LastUpdated    *time.Time
	Sponsor        string
	Conditions     []string
	Interventions  []string
}

// ApprovalRecord carries one regulatory approval plus the entity names to
// resolve.
type ApprovalRecord struct {
	Agency            string
	ApplicationNumber string
	ApprovalDate      time.Time
	DocumentURL       *string
	Sponsor           string
	DrugName          string
	ActiveIngredient  *string
	Mechanism         *string
	Targets           []string
}

// FilingRecord carries one SEC filing from a tracked company. The financial
// figures come from the filing's XBRL documents when extracted.
type FilingRecord struct {
	CIK           string
	CompanyName   string
	FormType      string
	FilingDate    time.Time
	Title         string
	URL           string
	CashUSD       *float64
	RnDExpenseUSD *float64
	RevenueUSD    *float64
}
