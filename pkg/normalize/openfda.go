package normalize

import (
	"strings"
	"time"

	"github.com/pharmaintel/helix/pkg/sources"
)

const agencyFDA = "FDA"

// Approvals converts one openFDA drugsfda application into approval records,
// one per approved submission. The second return is a non-empty skip reason
// when the application is unusable.
func Approvals(app sources.DrugApplication) ([]Record, string) {
	appNumber := strings.TrimSpace(app.ApplicationNumber)
	if appNumber == "" {
		return nil, SkipMissingID
	}

	drugName := productName(app)
	if drugName == "" {
		return nil, SkipMissingName
	}

	sponsor := strings.TrimSpace(app.SponsorName)

	var targets []string
	var mechanism *string
	for _, moa := range app.OpenFDA.PharmClassMOA {
		moa = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(moa), "[MoA]"))
		if moa != "" {
			targets = append(targets, moa)
			if mechanism == nil {
				m := moa
				mechanism = &m
			}
		}
	}

	var activeIngredient *string
	if name := ingredientName(app); name != "" {
		activeIngredient = &name
	}

	var records []Record
	for _, sub := range app.Submissions {
		if !strings.EqualFold(strings.TrimSpace(sub.SubmissionStatus), "AP") {
			continue
		}

		date, err := time.Parse("20060102", strings.TrimSpace(sub.SubmissionStatusDate))
		if err != nil {
			return nil, SkipBadDate
		}

		approval := ApprovalRecord{
			Agency:            agencyFDA,
			ApplicationNumber: appNumber,
			ApprovalDate:      date,
			Sponsor:           sponsor,
			DrugName:          drugName,
			ActiveIngredient:  activeIngredient,
			Mechanism:         mechanism,
			Targets:           targets,
		}
		for _, doc := range sub.ApplicationDocs {
			if u := strings.TrimSpace(doc.URL); u != "" {
				approval.DocumentURL = &u
				break
			}
		}

		records = append(records, Record{Kind: KindApproval, Approval: &approval})
	}

	if len(records) == 0 {
		return nil, SkipNoDocument
	}
	return records, ""
}

// productName picks the drug name for an application: the first brand name,
// falling back to the first generic name.
func productName(app sources.DrugApplication) string {
	for _, p := range app.Products {
		if name := strings.TrimSpace(p.BrandName); name != "" {
			return name
		}
	}
	for _, p := range app.Products {
		if name := strings.TrimSpace(p.GenericName); name != "" {
			return name
		}
	}
	return ""
}

// ingredientName picks the first active ingredient listed on any product.
func ingredientName(app sources.DrugApplication) string {
	for _, p := range app.Products {
		for _, ai := range p.ActiveIngredients {
			if name := strings.TrimSpace(ai.Name); name != "" {
				return name
			}
		}
	}
	return ""
}
