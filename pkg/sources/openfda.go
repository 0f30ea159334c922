package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/pharmaintel/helix/pkg/tracing"
)

// DrugApplication is one openFDA drugsfda result, trimmed to the fields the
// normalizer reads.
type DrugApplication struct {
	ApplicationNumber string `json:"application_number"`
	SponsorName       string `json:"sponsor_name"`
	Products          []struct {
		BrandName         string `json:"brand_name"`
		GenericName       string `json:"generic_name"`
		ActiveIngredients []struct {
			Name string `json:"name"`
		} `json:"active_ingredients"`
	} `json:"products"`
	Submissions []struct {
		SubmissionType       string `json:"submission_type"`
		SubmissionStatus     string `json:"submission_status"`
		SubmissionStatusDate string `json:"submission_status_date"`
		ApplicationDocs      []struct {
			Type string `json:"type"`
			URL  string `json:"url"`
		} `json:"application_docs"`
	} `json:"submissions"`
	OpenFDA struct {
		PharmClassMOA []string `json:"pharm_class_moa"`
	} `json:"openfda"`
}

type drugsFDAResponse struct {
	Meta struct {
		Results struct {
			Skip  int `json:"skip"`
			Limit int `json:"limit"`
			Total int `json:"total"`
		} `json:"results"`
	} `json:"meta"`
	Results []DrugApplication `json:"results"`
}

// FDAClient pulls approval data from the openFDA drugsfda endpoint.
type FDAClient struct {
	baseURL  string
	apiKey   string
	pageSize int
	fetcher  *fetcher
	logger   ectologger.Logger
}

// NewFDAClient creates an openFDA client. The API key is optional; without
// one openFDA applies a lower rate limit.
func NewFDAClient(baseURL, apiKey string, pageSize int, timeout time.Duration, retry RetryConfig, logger ectologger.Logger) *FDAClient {
	if pageSize < 1 || pageSize > 1000 {
		pageSize = 100
	}
	return &FDAClient{
		baseURL:  baseURL,
		apiKey:   apiKey,
		pageSize: pageSize,
		fetcher:  newFetcher(timeout, retry, nil, logger),
		logger:   logger,
	}
}

// Fetch returns an iterator over applications with submissions dated inside
// the window.
func (c *FDAClient) Fetch(window Window) *ApplicationIterator {
	return &ApplicationIterator{client: c, window: window}
}

// ApplicationIterator walks the drugsfda result set with limit/skip paging.
type ApplicationIterator struct {
	client *FDAClient
	window Window
	skip   int
	total  int
	done   bool
}

// Next returns the next page of applications. The second return is false once
// the result set is exhausted.
func (it *ApplicationIterator) Next(ctx context.Context) ([]DrugApplication, bool, error) {
	if it.done {
		return nil, false, nil
	}

	ctx, span := tracing.StartSpan(ctx, "sources.ApplicationIterator.Next")
	defer span.End()

	search := fmt.Sprintf("submissions.submission_status_date:[%s TO %s]",
		it.window.Since.Format("20060102"), it.window.Until.Format("20060102"))

	params := url.Values{}
	params.Set("search", search)
	params.Set("limit", fmt.Sprintf("%d", it.client.pageSize))
	params.Set("skip", fmt.Sprintf("%d", it.skip))
	if it.client.apiKey != "" {
		params.Set("api_key", it.client.apiKey)
	}

	fetchURL := fmt.Sprintf("%s/drug/drugsfda.json?%s", it.client.baseURL, params.Encode())
	body, status, err := it.client.fetcher.get(ctx, fetchURL)
	if err != nil {
		// openFDA answers 404 when a search matches nothing.
		if status == http.StatusNotFound {
			it.done = true
			return nil, false, nil
		}
		return nil, false, err
	}

	var resp drugsFDAResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, false, errors.Wrap(ErrSourceUnavailable, "openFDA returned malformed JSON")
	}

	it.total = resp.Meta.Results.Total
	it.skip += len(resp.Results)
	if len(resp.Results) == 0 || it.skip >= it.total {
		it.done = true
	}

	it.client.logger.WithContext(ctx).WithFields(map[string]any{"count": len(resp.Results), "skip": it.skip, "total": it.total}).Debug("Fetched drugsfda page")

	return resp.Results, !it.done, nil
}
