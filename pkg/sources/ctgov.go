package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/pharmaintel/helix/pkg/tracing"
)

// Study is one ClinicalTrials.gov v2 study, trimmed to the modules the
// normalizer reads.
type Study struct {
	ProtocolSection struct {
		IdentificationModule struct {
			NCTID      string `json:"nctId"`
			BriefTitle string `json:"briefTitle"`
		} `json:"identificationModule"`
		StatusModule struct {
			OverallStatus   string `json:"overallStatus"`
			StartDateStruct struct {
				Date string `json:"date"`
			} `json:"startDateStruct"`
			CompletionDateStruct struct {
				Date string `json:"date"`
			} `json:"completionDateStruct"`
			LastUpdatePostDateStruct struct {
				Date string `json:"date"`
			} `json:"lastUpdatePostDateStruct"`
		} `json:"statusModule"`
		SponsorCollaboratorsModule struct {
			LeadSponsor struct {
				Name string `json:"name"`
			} `json:"leadSponsor"`
		} `json:"sponsorCollaboratorsModule"`
		ConditionsModule struct {
			Conditions []string `json:"conditions"`
		} `json:"conditionsModule"`
		DesignModule struct {
			Phases         []string `json:"phases"`
			EnrollmentInfo struct {
				Count int `json:"count"`
			} `json:"enrollmentInfo"`
		} `json:"designModule"`
		ArmsInterventionsModule struct {
			Interventions []struct {
				Type string `json:"type"`
				Name string `json:"name"`
			} `json:"interventions"`
		} `json:"armsInterventionsModule"`
	} `json:"protocolSection"`
}

type studiesResponse struct {
	Studies       []Study `json:"studies"`
	NextPageToken string  `json:"nextPageToken"`
}

// CTGovClient pulls studies from the ClinicalTrials.gov v2 API.
type CTGovClient struct {
	baseURL  string
	pageSize int
	fetcher  *fetcher
	logger   ectologger.Logger
}

// NewCTGovClient creates a ClinicalTrials.gov client.
func NewCTGovClient(baseURL string, pageSize int, timeout time.Duration, retry RetryConfig, logger ectologger.Logger) *CTGovClient {
	if pageSize < 1 {
		pageSize = 100
	}
	return &CTGovClient{
		baseURL:  baseURL,
		pageSize: pageSize,
		fetcher:  newFetcher(timeout, retry, nil, logger),
		logger:   logger,
	}
}

// Fetch returns an iterator over studies whose last update falls inside the
// window. Pages are fetched on demand.
func (c *CTGovClient) Fetch(window Window) *StudyIterator {
	return &StudyIterator{client: c, window: window}
}

// StudyIterator walks the study list one page at a time using the API's
// nextPageToken cursor.
type StudyIterator struct {
	client    *CTGovClient
	window    Window
	pageToken string
	done      bool
}

// Next returns the next page of studies. The second return is false once the
// feed is exhausted.
func (it *StudyIterator) Next(ctx context.Context) ([]Study, bool, error) {
	if it.done {
		return nil, false, nil
	}

	ctx, span := tracing.StartSpan(ctx, "sources.StudyIterator.Next")
	defer span.End()

	params := url.Values{}
	params.Set("format", "json")
	params.Set("pageSize", fmt.Sprintf("%d", it.client.pageSize))
	params.Set("query.term", fmt.Sprintf("AREA[LastUpdatePostDate]RANGE[%s,%s]",
		it.window.Since.Format("2006-01-02"), it.window.Until.Format("2006-01-02")))
	if it.pageToken != "" {
		params.Set("pageToken", it.pageToken)
	}

	fetchURL := fmt.Sprintf("%s/studies?%s", it.client.baseURL, params.Encode())
	body, _, err := it.client.fetcher.get(ctx, fetchURL)
	if err != nil {
		return nil, false, err
	}

	var resp studiesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, false, errors.Wrap(ErrSourceUnavailable, "clinicaltrials.gov returned malformed JSON")
	}

	it.client.logger.WithContext(ctx).WithFields(map[string]any{"count": len(resp.Studies), "next_page": resp.NextPageToken != ""}).Debug("Fetched studies page")

	it.pageToken = resp.NextPageToken
	if it.pageToken == "" {
		it.done = true
	}
	return resp.Studies, !it.done, nil
}
