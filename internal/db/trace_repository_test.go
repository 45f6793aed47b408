package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdelfino/steplab/internal/db"
	"github.com/jdelfino/steplab/internal/testutil"
	"github.com/jdelfino/steplab/internal/trace"
)

func sampleTrace(steps int) *trace.ExecutionTrace {
	tr := &trace.ExecutionTrace{TotalSteps: steps}
	for i := 0; i < steps; i++ {
		tr.Steps = append(tr.Steps, trace.TraceStep{Line: i + 1, Stdout: "hi\n"})
	}
	return tr
}

func TestTraceRepositoryCreateAndGet(t *testing.T) {
	database, cleanup := testutil.NewTestDB(t)
	defer cleanup()

	repo := db.NewTraceRepository(database)
	ctx := context.Background()

	rec := &db.TraceRecord{
		SessionID: "sess-1",
		Code:      "print('hi')",
		Stdin:     "alice\n",
		Trace:     sampleTrace(2),
	}
	require.NoError(t, repo.Create(ctx, rec))
	require.NotEmpty(t, rec.ID, "Create assigns an ID")
	assert.Equal(t, 2, rec.TotalSteps, "summary columns derived from the trace")

	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, "print('hi')", got.Code)
	assert.Equal(t, "alice\n", got.Stdin)
	require.NotNil(t, got.Trace)
	assert.Equal(t, 2, got.Trace.TotalSteps)
	assert.Equal(t, "hi\n", got.Trace.Steps[0].Stdout)
}

func TestTraceRepositoryGetNotFound(t *testing.T) {
	database, cleanup := testutil.NewTestDB(t)
	defer cleanup()

	repo := db.NewTraceRepository(database)
	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, db.ErrTraceNotFound)
}

func TestTraceRepositoryCreateDuplicateID(t *testing.T) {
	database, cleanup := testutil.NewTestDB(t)
	defer cleanup()

	repo := db.NewTraceRepository(database)
	ctx := context.Background()

	rec := &db.TraceRecord{ID: "fixed", Code: "x = 1", Trace: sampleTrace(1)}
	require.NoError(t, repo.Create(ctx, rec))

	dup := &db.TraceRecord{ID: "fixed", Code: "x = 2", Trace: sampleTrace(1)}
	assert.ErrorIs(t, repo.Create(ctx, dup), db.ErrTraceAlreadyExists)
}

func TestTraceRepositoryCreateRequiresTrace(t *testing.T) {
	database, cleanup := testutil.NewTestDB(t)
	defer cleanup()

	repo := db.NewTraceRepository(database)
	err := repo.Create(context.Background(), &db.TraceRecord{Code: "x = 1"})
	assert.Error(t, err)
}

func TestTraceRepositoryListBySession(t *testing.T) {
	database, cleanup := testutil.NewTestDB(t)
	defer cleanup()

	repo := db.NewTraceRepository(database)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &db.TraceRecord{
			SessionID: "sess-1",
			Code:      "run",
			Trace:     sampleTrace(i + 1),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, repo.Create(ctx, &db.TraceRecord{
		SessionID: "sess-2",
		Code:      "other",
		Trace:     sampleTrace(1),
		CreatedAt: base,
	}))

	records, err := repo.ListBySession(ctx, "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 3, records[0].TotalSteps, "newest first")
	assert.Nil(t, records[0].Trace, "listings omit the trace document")

	limited, err := repo.ListBySession(ctx, "sess-1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestTraceRepositoryListRecent(t *testing.T) {
	database, cleanup := testutil.NewTestDB(t)
	defer cleanup()

	repo := db.NewTraceRepository(database)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &db.TraceRecord{
			SessionID: "sess-1",
			Code:      "run",
			Trace:     sampleTrace(1),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	records, err := repo.ListRecent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestTraceRepositoryPrune(t *testing.T) {
	database, cleanup := testutil.NewTestDB(t)
	defer cleanup()

	repo := db.NewTraceRepository(database)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var newest string
	for i := 0; i < 5; i++ {
		rec := &db.TraceRecord{
			Code:      "run",
			Trace:     sampleTrace(1),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, repo.Create(ctx, rec))
		newest = rec.ID
	}

	removed, err := repo.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = repo.Get(ctx, newest)
	assert.NoError(t, err, "pruning keeps the newest traces")
}

func TestTraceRepositoryDelete(t *testing.T) {
	database, cleanup := testutil.NewTestDB(t)
	defer cleanup()

	repo := db.NewTraceRepository(database)
	ctx := context.Background()

	rec := &db.TraceRecord{Code: "run", Trace: sampleTrace(1)}
	require.NoError(t, repo.Create(ctx, rec))

	require.NoError(t, repo.Delete(ctx, rec.ID))
	assert.ErrorIs(t, repo.Delete(ctx, rec.ID), db.ErrTraceNotFound)
}
