package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{MaxRetries: maxRetries, InitialBackoff: time.Millisecond}
}

func TestFetcherGet(t *testing.T) {
	t.Run("should return body on success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"ok":true}`))
		}))
		defer server.Close()

		f := newFetcher(time.Second, fastRetry(3), nil, testLogger())
		body, status, err := f.get(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, `{"ok":true}`, string(body))
	})

	t.Run("should retry 429 responses until success", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) <= 2 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Write([]byte("ok"))
		}))
		defer server.Close()

		f := newFetcher(time.Second, fastRetry(5), nil, testLogger())
		body, _, err := f.get(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Equal(t, "ok", string(body))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("should retry 5xx responses until success", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte("ok"))
		}))
		defer server.Close()

		f := newFetcher(time.Second, fastRetry(3), nil, testLogger())
		_, _, err := f.get(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("should fail immediately on other 4xx", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		f := newFetcher(time.Second, fastRetry(5), nil, testLogger())
		_, status, err := f.get(context.Background(), server.URL)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSourceUnavailable))
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("should return rate limited error after exhausting retries", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		f := newFetcher(time.Second, fastRetry(2), nil, testLogger())
		_, _, err := f.get(context.Background(), server.URL)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrRateLimited))
		assert.True(t, errors.Is(err, ErrSourceUnavailable))
	})

	t.Run("should return source unavailable after persistent 5xx", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		f := newFetcher(time.Second, fastRetry(2), nil, testLogger())
		_, _, err := f.get(context.Background(), server.URL)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSourceUnavailable))
	})

	t.Run("should stop retrying when context is canceled", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		f := newFetcher(time.Second, RetryConfig{MaxRetries: 5, InitialBackoff: time.Minute}, nil, testLogger())
		_, _, err := f.get(ctx, server.URL)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
	})

	t.Run("should send configured headers", func(t *testing.T) {
		var gotAgent string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAgent = r.Header.Get("User-Agent")
			w.Write([]byte("ok"))
		}))
		defer server.Close()

		f := newFetcher(time.Second, fastRetry(1), map[string]string{"User-Agent": "helix-api ops@example.com"}, testLogger())
		_, _, err := f.get(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Equal(t, "helix-api ops@example.com", gotAgent)
	})
}

func TestStudyIterator(t *testing.T) {
	t.Run("should page with the next page token", func(t *testing.T) {
		var queries []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			queries = append(queries, r.URL.RawQuery)
			if r.URL.Query().Get("pageToken") == "" {
				w.Write([]byte(`{"studies": [{"protocolSection": {"identificationModule": {"nctId": "NCT1"}}}], "nextPageToken": "abc"}`))
				return
			}
			w.Write([]byte(`{"studies": [{"protocolSection": {"identificationModule": {"nctId": "NCT2"}}}]}`))
		}))
		defer server.Close()

		client := NewCTGovClient(server.URL, 50, time.Second, fastRetry(1), testLogger())
		it := client.Fetch(Window{Since: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Until: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)})

		page, more, err := it.Next(context.Background())
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "NCT1", page[0].ProtocolSection.IdentificationModule.NCTID)
		assert.True(t, more)

		page, more, err = it.Next(context.Background())
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "NCT2", page[0].ProtocolSection.IdentificationModule.NCTID)
		assert.False(t, more)

		page, more, err = it.Next(context.Background())
		require.NoError(t, err)
		assert.Empty(t, page)
		assert.False(t, more)

		require.Len(t, queries, 2)
		assert.Contains(t, queries[0], "pageSize=50")
		assert.Contains(t, queries[0], "RANGE%5B2024-01-01%2C2024-01-31%5D")
	})

	t.Run("should surface malformed JSON as source unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>"))
		}))
		defer server.Close()

		client := NewCTGovClient(server.URL, 50, time.Second, fastRetry(1), testLogger())
		_, _, err := client.Fetch(LastDays(7)).Next(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSourceUnavailable))
	})
}

func TestApplicationIterator(t *testing.T) {
	t.Run("should page with limit and skip", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("skip") == "0" {
				w.Write([]byte(`{"meta": {"results": {"skip": 0, "limit": 1, "total": 2}}, "results": [{"application_number": "NDA1"}]}`))
				return
			}
			w.Write([]byte(`{"meta": {"results": {"skip": 1, "limit": 1, "total": 2}}, "results": [{"application_number": "NDA2"}]}`))
		}))
		defer server.Close()

		client := NewFDAClient(server.URL, "", 1, time.Second, fastRetry(1), testLogger())
		it := client.Fetch(LastDays(30))

		page, more, err := it.Next(context.Background())
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "NDA1", page[0].ApplicationNumber)
		assert.True(t, more)

		page, more, err = it.Next(context.Background())
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "NDA2", page[0].ApplicationNumber)
		assert.False(t, more)
	})

	t.Run("should treat 404 as an empty result set", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": {"code": "NOT_FOUND"}}`))
		}))
		defer server.Close()

		client := NewFDAClient(server.URL, "", 100, time.Second, fastRetry(1), testLogger())
		page, more, err := client.Fetch(LastDays(30)).Next(context.Background())
		require.NoError(t, err)
		assert.Empty(t, page)
		assert.False(t, more)
	})

	t.Run("should pass the api key when configured", func(t *testing.T) {
		var gotKey string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotKey = r.URL.Query().Get("api_key")
			w.Write([]byte(`{"meta": {"results": {"total": 0}}, "results": []}`))
		}))
		defer server.Close()

		client := NewFDAClient(server.URL, "secret", 100, time.Second, fastRetry(1), testLogger())
		_, _, err := client.Fetch(LastDays(30)).Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "secret", gotKey)
	})
}

func TestFilingIterator(t *testing.T) {
	recent := time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC1123Z)
	feed := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <item>
      <title>10-K - PFIZER INC (0000078003) (Filer)</title>
      <link>https://www.sec.gov/Archives/edgar/data/78003/index.htm</link>
      <description>10-K</description>
      <pubDate>%s</pubDate>
    </item>
    <item>
      <title>8-K - Some Other Company</title>
      <link>https://www.sec.gov/Archives/edgar/data/99999/index.htm</link>
      <description>8-K</description>
      <pubDate>%s</pubDate>
    </item>
    <item>
      <title>10-Q - STALE CORP (0000011111) (Filer)</title>
      <link>https://www.sec.gov/Archives/edgar/data/11111/index.htm</link>
      <description>10-Q</description>
      <pubDate>Thu, 22 Feb 2018 09:00:00 -0500</pubDate>
    </item>
    <item>
      <title>10-K - ODD DATE CO (0000022222) (Filer)</title>
      <link>https://www.sec.gov/Archives/edgar/data/22222/index.htm</link>
      <description>10-K</description>
      <pubDate>not a date</pubDate>
    </item>
  </channel>
</rss>`, recent, recent)

	t.Run("should yield the feed as a single page", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/Archives/edgar/xbrlrss.all.xml", r.URL.Path)
			w.Write([]byte(feed))
		}))
		defer server.Close()

		client := NewEdgarClient(server.URL, "helix-api ops@example.com", time.Second, fastRetry(1), testLogger())
		it := client.Fetch(LastDays(7))

		page, more, err := it.Next(context.Background())
		require.NoError(t, err)
		require.Len(t, page, 3)
		assert.False(t, more)

		assert.Equal(t, "0000078003", page[0].CIK)
		assert.Equal(t, "10-K", page[0].FormType)
		assert.Equal(t, "https://www.sec.gov/Archives/edgar/data/78003/index.htm", page[0].Link)
		assert.Empty(t, page[1].CIK)

		page, more, err = it.Next(context.Background())
		require.NoError(t, err)
		assert.Empty(t, page)
		assert.False(t, more)
	})

	t.Run("should drop entries published outside the window", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(feed))
		}))
		defer server.Close()

		client := NewEdgarClient(server.URL, "helix-api ops@example.com", time.Second, fastRetry(1), testLogger())
		it := client.Fetch(LastDays(7))

		page, _, err := it.Next(context.Background())
		require.NoError(t, err)
		for _, entry := range page {
			assert.NotEqual(t, "0000011111", entry.CIK)
		}
		// An unparseable pubDate is kept for the normalizer to reject.
		assert.Equal(t, "0000022222", page[2].CIK)
	})
}
