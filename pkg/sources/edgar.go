package sources

import (
	"context"
	"encoding/xml"
	"regexp"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/pharmaintel/helix/pkg/tracing"
)

// FilingEntry is one item from the EDGAR XBRL RSS feed with the CIK and form
// type already extracted.
type FilingEntry struct {
	Title       string
	Link        string
	Description string
	PubDate     string
	CIK         string
	FormType    string
}

type edgarFeed struct {
	Channel struct {
		Items []struct {
			Title       string `xml:"title"`
			Link        string `xml:"link"`
			Description string `xml:"description"`
			PubDate     string `xml:"pubDate"`
		} `xml:"item"`
	} `xml:"channel"`
}

// Filer CIK appears parenthesized in the item title, zero-padded to ten
// digits.
var cikPattern = regexp.MustCompile(`\((\d{7,10})\)`)

// EdgarClient pulls the SEC EDGAR XBRL RSS feed. The SEC requires a
// descriptive User-Agent identifying the caller.
type EdgarClient struct {
	baseURL string
	fetcher *fetcher
	logger  ectologger.Logger
}

// NewEdgarClient creates an EDGAR RSS client.
func NewEdgarClient(baseURL, userAgent string, timeout time.Duration, retry RetryConfig, logger ectologger.Logger) *EdgarClient {
	headers := map[string]string{"User-Agent": userAgent}
	return &EdgarClient{
		baseURL: baseURL,
		fetcher: newFetcher(timeout, retry, headers, logger),
		logger:  logger,
	}
}

// Fetch returns an iterator over the current feed. EDGAR publishes a single
// RSS document, so the iterator yields exactly one page.
func (c *EdgarClient) Fetch(window Window) *FilingIterator {
	return &FilingIterator{client: c, window: window}
}

// FilingIterator yields the feed's entries as a single page.
type FilingIterator struct {
	client *EdgarClient
	window Window
	done   bool
}

// Next returns the feed entries. The second return is always false since the
// feed is one document.
func (it *FilingIterator) Next(ctx context.Context) ([]FilingEntry, bool, error) {
	if it.done {
		return nil, false, nil
	}
	it.done = true

	ctx, span := tracing.StartSpan(ctx, "sources.FilingIterator.Next")
	defer span.End()

	body, _, err := it.client.fetcher.get(ctx, it.client.baseURL+"/Archives/edgar/xbrlrss.all.xml")
	if err != nil {
		return nil, false, err
	}

	var feed edgarFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, false, errors.Wrap(ErrSourceUnavailable, "EDGAR returned malformed RSS")
	}

	entries := make([]FilingEntry, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		entry := FilingEntry{
			Title:       strings.TrimSpace(item.Title),
			Link:        strings.TrimSpace(item.Link),
			Description: strings.TrimSpace(item.Description),
			PubDate:     strings.TrimSpace(item.PubDate),
			FormType:    strings.TrimSpace(item.Description),
		}
		// The feed is not windowed server side. Entries with an unparseable
		// pubDate are kept so the normalizer can record the skip.
		if ts, ok := entryTime(entry.PubDate); ok && (ts.Before(it.window.Since) || ts.After(it.window.Until)) {
			continue
		}
		if m := cikPattern.FindStringSubmatch(item.Title); m != nil {
			entry.CIK = m[1]
		}
		entries = append(entries, entry)
	}

	it.client.logger.WithContext(ctx).WithField("count", len(entries)).Debug("Fetched EDGAR feed")

	return entries, false, nil
}

func entryTime(pubDate string) (time.Time, bool) {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123} {
		if t, err := time.Parse(layout, pubDate); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
