package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pharmaintel/helix/pkg/database"
	"github.com/pharmaintel/helix/pkg/models"
	"github.com/pharmaintel/helix/pkg/sources"
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

type fakeExecutions struct {
	mu        sync.Mutex
	created   []models.Execution
	completed []completion
	done      chan struct{}
}

type completion struct {
	id         string
	status     string
	processed  int
	skipped    int
	failed     int
	errMessage *string
}

func newFakeExecutions() *fakeExecutions {
	return &fakeExecutions{done: make(chan struct{}, 1)}
}

func (f *fakeExecutions) Create(ctx context.Context, source, executedBy string) (*models.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	exec := models.Execution{
		ID:         "exec-1",
		Source:     source,
		Status:     models.ExecutionStatusRunning,
		StartedAt:  time.Now().UTC(),
		ExecutedBy: executedBy,
	}
	f.created = append(f.created, exec)
	return &exec, nil
}

func (f *fakeExecutions) Complete(ctx context.Context, id, status string, processed, skipped, failed int, errMessage *string) error {
	f.mu.Lock()
	f.completed = append(f.completed, completion{id: id, status: status, processed: processed, skipped: skipped, failed: failed, errMessage: errMessage})
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func (f *fakeExecutions) lastCompletion(t *testing.T) completion {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(5 * time.Second):
		t.Fatal("execution never finalized")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.completed)
	return f.completed[len(f.completed)-1]
}

// failingDB refuses to open transactions, so every chunk rolls back.
type failingDB struct {
	database.DB
}

func (failingDB) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, fmt.Errorf("connection reset by peer")
}

type fakeTracker struct {
	ciks map[string]string
}

func (f *fakeTracker) TrackedCIKs(ctx context.Context) (map[string]string, error) {
	return f.ciks, nil
}

type fakeSearch struct {
	mu       sync.Mutex
	refreshs int
}

func (f *fakeSearch) Refresh(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshs++
	return nil
}

func edgarClient(t *testing.T, serverURL string) *sources.EdgarClient {
	t.Helper()
	retry := sources.RetryConfig{MaxRetries: 1, InitialBackoff: time.Millisecond}
	return sources.NewEdgarClient(serverURL, "helix-api ops@example.com", time.Second, retry, testLogger())
}

// edgarTestFeed builds a feed with fresh pubDates so the entries land inside
// the fetch window.
func edgarTestFeed() string {
	pubDate := time.Now().UTC().Add(-time.Hour).Format(time.RFC1123Z)
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <item>
      <title>10-K - ALPHA BIO INC (0000099999) (Filer)</title>
      <link>https://www.sec.gov/Archives/edgar/data/99999/index.htm</link>
      <description>10-K</description>
      <pubDate>%s</pubDate>
    </item>
    <item>
      <title>4 - SOMEONE (0000088888) (Reporting)</title>
      <link>https://www.sec.gov/Archives/edgar/data/88888/index.htm</link>
      <description>4</description>
      <pubDate>%s</pubDate>
    </item>
  </channel>
</rss>`, pubDate, pubDate)
}

func TestPipelineExecute(t *testing.T) {
	t.Run("should finalize success and count skipped records", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(edgarTestFeed()))
		}))
		defer server.Close()

		executions := newFakeExecutions()
		search := &fakeSearch{}
		writer := NewWriter(nil, nil, nil, nil, nil, nil, 50, testLogger())
		p := NewPipeline(executions, writer, nil, nil, edgarClient(t, server.URL), &fakeTracker{ciks: map[string]string{}}, search, nil, 7, testLogger())

		exec, err := executions.Create(context.Background(), models.SourceEdgar, "tester")
		require.NoError(t, err)
		p.Execute(context.Background(), exec)

		result := executions.lastCompletion(t)
		assert.Equal(t, "exec-1", result.id)
		assert.Equal(t, models.ExecutionStatusSuccess, result.status)
		assert.Equal(t, 0, result.processed)
		assert.Equal(t, 2, result.skipped)
		assert.Equal(t, 0, result.failed)
		assert.Nil(t, result.errMessage)
		assert.Equal(t, 0, search.refreshs)
	})

	t.Run("should finalize failed when a chunk rolls back", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(edgarTestFeed()))
		}))
		defer server.Close()

		executions := newFakeExecutions()
		search := &fakeSearch{}
		writer := NewWriter(failingDB{}, nil, nil, nil, nil, nil, 50, testLogger())
		tracker := &fakeTracker{ciks: map[string]string{"99999": "company-1"}}
		p := NewPipeline(executions, writer, nil, nil, edgarClient(t, server.URL), tracker, search, nil, 7, testLogger())

		exec, err := executions.Create(context.Background(), models.SourceEdgar, "tester")
		require.NoError(t, err)
		p.Execute(context.Background(), exec)

		result := executions.lastCompletion(t)
		assert.Equal(t, models.ExecutionStatusFailed, result.status)
		assert.Equal(t, 0, result.processed)
		assert.Equal(t, 1, result.skipped)
		assert.Equal(t, 1, result.failed)
		require.NotNil(t, result.errMessage)
		assert.Contains(t, *result.errMessage, "chunk 0 failed")
		assert.Contains(t, *result.errMessage, "connection reset")
		assert.Equal(t, 0, search.refreshs)
	})

	t.Run("should finalize failed when the source is unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		executions := newFakeExecutions()
		writer := NewWriter(nil, nil, nil, nil, nil, nil, 50, testLogger())
		p := NewPipeline(executions, writer, nil, nil, edgarClient(t, server.URL), &fakeTracker{}, &fakeSearch{}, nil, 7, testLogger())

		exec, err := executions.Create(context.Background(), models.SourceEdgar, "tester")
		require.NoError(t, err)
		p.Execute(context.Background(), exec)

		result := executions.lastCompletion(t)
		assert.Equal(t, models.ExecutionStatusFailed, result.status)
		require.NotNil(t, result.errMessage)
		assert.Contains(t, *result.errMessage, "source unavailable")
	})
}

func TestPipelineStart(t *testing.T) {
	t.Run("should reject an unknown source", func(t *testing.T) {
		executions := newFakeExecutions()
		p := NewPipeline(executions, nil, nil, nil, nil, nil, nil, nil, 7, testLogger())

		_, err := p.Start(context.Background(), "bloomberg", "tester")
		assert.Error(t, err)
		assert.Empty(t, executions.created)
	})

	t.Run("should create a running execution and run in the background", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(edgarTestFeed()))
		}))
		defer server.Close()

		executions := newFakeExecutions()
		writer := NewWriter(nil, nil, nil, nil, nil, nil, 50, testLogger())
		p := NewPipeline(executions, writer, nil, nil, edgarClient(t, server.URL), &fakeTracker{}, &fakeSearch{}, nil, 7, testLogger())

		exec, err := p.Start(context.Background(), models.SourceEdgar, "tester")
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusRunning, exec.Status)
		assert.Equal(t, "tester", exec.ExecutedBy)

		result := executions.lastCompletion(t)
		assert.Equal(t, models.ExecutionStatusSuccess, result.status)
	})
}
