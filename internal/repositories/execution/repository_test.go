package execution_test

import (
	"context"
	"net/http"
	"os"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pharmaintel/helix/internal/repositories/execution"
	"github.com/pharmaintel/helix/pkg/database"
	"github.com/pharmaintel/helix/pkg/models"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "helix"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	return database.NewDatabaseInstance(db, getTestLogger())
}

func TestExecutionRepository_Lifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := execution.NewRepository(db, getTestLogger())
	ctx := context.Background()

	exec, err := repo.Create(ctx, models.SourceCTGov, "integration-test")
	require.NoError(t, err)
	assert.NotEmpty(t, exec.ID)
	assert.Equal(t, models.ExecutionStatusRunning, exec.Status)
	assert.Equal(t, "integration-test", exec.ExecutedBy)
	assert.False(t, exec.IsTerminal())

	fetched, err := repo.Get(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, exec.ID, fetched.ID)
	assert.Equal(t, models.ExecutionStatusRunning, fetched.Status)
	assert.Nil(t, fetched.CompletedAt)

	err = repo.Complete(ctx, exec.ID, models.ExecutionStatusSuccess, 120, 3, 0, nil)
	require.NoError(t, err)

	fetched, err = repo.Get(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, fetched.Status)
	assert.Equal(t, 120, fetched.RecordsProcessed)
	assert.Equal(t, 3, fetched.RecordsSkipped)
	assert.Equal(t, 0, fetched.RecordsFailed)
	require.NotNil(t, fetched.CompletedAt)
	assert.Nil(t, fetched.Error)
	assert.True(t, fetched.IsTerminal())

	// A terminal execution stays as it finished.
	errMsg := "late failure"
	err = repo.Complete(ctx, exec.ID, models.ExecutionStatusFailed, 0, 0, 0, &errMsg)
	require.NoError(t, err)

	fetched, err = repo.Get(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, fetched.Status)
	assert.Equal(t, 120, fetched.RecordsProcessed)
}

func TestExecutionRepository_FailedRun(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := execution.NewRepository(db, getTestLogger())
	ctx := context.Background()

	exec, err := repo.Create(ctx, models.SourceEdgar, "integration-test")
	require.NoError(t, err)

	errMsg := "source unavailable"
	err = repo.Complete(ctx, exec.ID, models.ExecutionStatusFailed, 10, 2, 4, &errMsg)
	require.NoError(t, err)

	fetched, err := repo.Get(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, fetched.Status)
	assert.Equal(t, 10, fetched.RecordsProcessed)
	assert.Equal(t, 4, fetched.RecordsFailed)
	require.NotNil(t, fetched.Error)
	assert.Equal(t, "source unavailable", *fetched.Error)
}

func TestExecutionRepository_List(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := execution.NewRepository(db, getTestLogger())
	ctx := context.Background()

	older, err := repo.Create(ctx, models.SourceFDA, "integration-test")
	require.NoError(t, err)
	newer, err := repo.Create(ctx, models.SourceFDA, "integration-test")
	require.NoError(t, err)

	items, err := repo.List(ctx, 50)
	require.NoError(t, err)
	require.NotEmpty(t, items)

	positions := map[string]int{}
	for i, item := range items {
		positions[item.ID] = i
	}
	newerPos, ok := positions[newer.ID]
	require.True(t, ok, "newest execution should be listed")
	if olderPos, ok := positions[older.ID]; ok {
		assert.Less(t, newerPos, olderPos, "history should be newest first")
	}
}

func TestExecutionRepository_GetMissing(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := execution.NewRepository(db, getTestLogger())

	_, err := repo.Get(context.Background(), "00000000-0000-0000-0000-000000000000")
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}
