package normalize

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pharmaintel/helix/pkg/models"
	"github.com/pharmaintel/helix/pkg/sources"
)

// ctgovPhases maps the API's phase tokens to the stored enum.
var ctgovPhases = map[string]string{
	"EARLY_PHASE1": models.PhaseOne,
	"PHASE1":       models.PhaseOne,
	"PHASE2":       models.PhaseTwo,
	"PHASE3":       models.PhaseThree,
	"PHASE4":       models.PhaseFour,
}

var validPhases = map[string]bool{
	models.PhaseOne:      true,
	models.PhaseOneTwo:   true,
	models.PhaseTwo:      true,
	models.PhaseTwoThree: true,
	models.PhaseThree:    true,
	models.PhaseFour:     true,
	models.PhaseNA:       true,
}

// Phase coerces the API's phases list to the stored enum. Combined phases are
// sorted and joined with a slash; an empty or unrecognized combination maps
// to N/A.
func Phase(phases []string) string {
	set := map[string]bool{}
	for _, p := range phases {
		if mapped, ok := ctgovPhases[strings.ToUpper(strings.TrimSpace(p))]; ok {
			set[mapped] = true
		}
	}
	if len(set) == 0 {
		return models.PhaseNA
	}

	parts := make([]string, 0, len(set))
	for p := range set {
		parts = append(parts, p)
	}
	sort.Strings(parts)

	phase := strings.Join(parts, "/")
	if !validPhases[phase] {
		return models.PhaseNA
	}
	return phase
}

// Trial converts one ClinicalTrials.gov study into a canonical trial record.
// The second return is a non-empty skip reason when the study is unusable.
func Trial(study sources.Study) (*Record, string) {
	ps := study.ProtocolSection

	nctID := strings.TrimSpace(ps.IdentificationModule.NCTID)
	if nctID == "" {
		return nil, SkipMissingID
	}

	title := strings.TrimSpace(ps.IdentificationModule.BriefTitle)
	if title == "" {
		return nil, SkipMissingName
	}

	trial := TrialRecord{
		NCTID:   nctID,
		Title:   title,
		Phase:   Phase(ps.DesignModule.Phases),
		Status:  strings.TrimSpace(ps.StatusModule.OverallStatus),
		URL:     fmt.Sprintf("https://clinicaltrials.gov/study/%s", nctID),
		Sponsor: strings.TrimSpace(ps.SponsorCollaboratorsModule.LeadSponsor.Name),
	}

	if count := ps.DesignModule.EnrollmentInfo.Count; count > 0 {
		trial.Enrollment = &count
	}

	var badDate bool
	trial.StartDate, badDate = ctgovDate(ps.StatusModule.StartDateStruct.Date)
	if badDate {
		return nil, SkipBadDate
	}
	trial.CompletionDate, badDate = ctgovDate(ps.StatusModule.CompletionDateStruct.Date)
	if badDate {
		return nil, SkipBadDate
	}
	// Metadata only; an unparseable last-update date never drops the study.
	trial.LastUpdated, _ = ctgovDate(ps.StatusModule.LastUpdatePostDateStruct.Date)

	for _, c := range ps.ConditionsModule.Conditions {
		if c = strings.TrimSpace(c); c != "" {
			trial.Conditions = append(trial.Conditions, c)
		}
	}
	for _, iv := range ps.ArmsInterventionsModule.Interventions {
		if !strings.EqualFold(iv.Type, "DRUG") && !strings.EqualFold(iv.Type, "BIOLOGICAL") {
			continue
		}
		if name := strings.TrimSpace(iv.Name); name != "" {
			trial.Interventions = append(trial.Interventions, name)
		}
	}

	return &Record{Kind: KindTrial, Trial: &trial}, ""
}

// ctgovDate parses a study date. Dates can be full or year-month precision;
// anything else is a bad date. An absent date is fine.
func ctgovDate(s string) (*time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	for _, layout := range []string{"2006-01-02", "2006-01"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, false
		}
	}
	return nil, true
}
