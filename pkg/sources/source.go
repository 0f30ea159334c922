// Package sources contains HTTP clients for the public feeds the ingestion
// pipelines pull from. Each client exposes a lazy page iterator; transient
// failures (429, 5xx, timeouts) are retried internally with exponential
// backoff before an error surfaces to the pipeline.
package sources

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"
)

// ErrSourceUnavailable is returned when a source answers with a non-retryable
// status or keeps failing after all retries. The pipeline treats it as fatal
// for the run.
var ErrSourceUnavailable = errors.New("source unavailable")

// ErrRateLimited is returned when a source is still throttling after all
// retries. It wraps ErrSourceUnavailable: an exhausted retry budget is fatal
// to the run either way.
var ErrRateLimited = errors.Wrap(ErrSourceUnavailable, "source rate limited")

// Window bounds a fetch to records updated within [Since, Until].
type Window struct {
	Since time.Time
	Until time.Time
}

// LastDays returns a window covering the past n days.
func LastDays(n int) Window {
	now := time.Now().UTC()
	return Window{Since: now.AddDate(0, 0, -n), Until: now}
}

// RetryConfig controls the shared retry behavior of all source clients.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
}

type fetcher struct {
	client  *http.Client
	retry   RetryConfig
	headers map[string]string
	logger  ectologger.Logger
}

func newFetcher(timeout time.Duration, retry RetryConfig, headers map[string]string, logger ectologger.Logger) *fetcher {
	if retry.MaxRetries < 1 {
		retry.MaxRetries = 5
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = time.Second
	}
	return &fetcher{
		client:  &http.Client{Timeout: timeout},
		retry:   retry,
		headers: headers,
		logger:  logger,
	}
}

// get fetches a URL, retrying 429s, 5xx responses, and network timeouts with
// exponential backoff. A non-429 4xx fails immediately.
func (f *fetcher) get(ctx context.Context, url string) ([]byte, int, error) {
	backoff := f.retry.InitialBackoff
	var lastStatus int
	var lastErr error

	for attempt := 0; attempt <= f.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			f.logger.WithContext(ctx).WithFields(map[string]any{"url": url, "attempt": attempt, "backoff": backoff.String()}).Warn("Retrying source fetch")
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		body, status, err := f.once(ctx, url)
		switch {
		case err == nil && status == http.StatusOK:
			return body, status, nil
		case err == nil && status == http.StatusTooManyRequests:
			lastStatus = status
			lastErr = nil
		case err == nil && status >= 500:
			lastStatus = status
			lastErr = nil
		case err == nil:
			// Other non-2xx statuses are not retryable. The caller may still
			// want the status (openFDA uses 404 for an empty result set).
			return body, status, errors.Wrapf(ErrSourceUnavailable, "%s returned status %d", url, status)
		case ctx.Err() != nil:
			return nil, 0, ctx.Err()
		default:
			lastStatus = 0
			lastErr = err
		}
	}

	if lastStatus == http.StatusTooManyRequests {
		return nil, lastStatus, errors.Wrapf(ErrRateLimited, "%s still throttled after %d retries", url, f.retry.MaxRetries)
	}
	if lastErr != nil {
		return nil, 0, errors.Wrapf(ErrSourceUnavailable, "%s unreachable after %d retries: %v", url, f.retry.MaxRetries, lastErr)
	}
	return nil, lastStatus, errors.Wrapf(ErrSourceUnavailable, "%s returned status %d after %d retries", url, lastStatus, f.retry.MaxRetries)
}

func (f *fetcher) once(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}
