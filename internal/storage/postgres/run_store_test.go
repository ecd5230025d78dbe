package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/progression/internal/store"
)

var runColumns = []string{
	"id", "tracker_id", "name", "started_at", "updated_at", "finished_at", "status", "value", "signals",
}

func newMockStore(t *testing.T) (*RunStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	s, err := NewRunStoreWithPool(mock, "")
	require.NoError(t, err)
	return s, mock
}

func TestNewRunStoreWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewRunStoreWithPool(mock, "runs; DROP TABLE x")
	require.Error(t, err)
	_, err = NewRunStoreWithPool(nil, "")
	require.Error(t, err)

	s, err := NewRunStoreWithPool(mock, "custom_runs")
	require.NoError(t, err)
	require.Equal(t, "custom_runs", s.table)
}

func TestNewRunStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewRunStore(context.Background(), RunStoreConfig{})
	require.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS progress_runs").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStartRunInsertsRow(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	defer mock.Close()

	now := time.Unix(1700000000, 0).UTC()
	run := store.Run{ID: uuid.New(), TrackerID: uuid.New(), Name: "export", StartedAt: now}

	mock.ExpectExec("INSERT INTO progress_runs").
		WithArgs(run.ID, run.TrackerID, run.Name, now, store.RunRunning, 0.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.StartRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordProgressUpdatesRunningRow(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	defer mock.Close()

	runID := uuid.New()
	at := time.Unix(1700000100, 0).UTC()
	mock.ExpectExec("UPDATE progress_runs").
		WithArgs(0.75, int64(3), at, runID, store.RunRunning).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.RecordProgress(context.Background(), runID, 0.75, 3, at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinishRunWrapsErrors(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	defer mock.Close()

	runID := uuid.New()
	at := time.Unix(1700000200, 0).UTC()
	mock.ExpectExec("UPDATE progress_runs").
		WithArgs(at, store.RunCancelled, 0.4, runID, store.RunRunning).
		WillReturnError(errors.New("connection reset"))

	err := s.FinishRun(context.Background(), runID, at, store.RunCancelled, 0.4)
	require.ErrorContains(t, err, "finish run")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunScansRow(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	defer mock.Close()

	runID, trackerID := uuid.New(), uuid.New()
	started := time.Unix(1700000000, 0).UTC()
	finished := started.Add(time.Minute)
	mock.ExpectQuery("FROM progress_runs").
		WithArgs(runID).
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow(runID, trackerID, "import", started, finished, &finished, "completed", 1.0, int64(2)))

	run, err := s.GetRun(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, runID, run.ID)
	require.Equal(t, trackerID, run.TrackerID)
	require.Equal(t, store.RunCompleted, run.Status)
	require.NotNil(t, run.FinishedAt)
	require.True(t, finished.Equal(*run.FinishedAt))
	require.Equal(t, int64(2), run.Signals)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	defer mock.Close()

	runID := uuid.New()
	mock.ExpectQuery("FROM progress_runs").
		WithArgs(runID).
		WillReturnRows(pgxmock.NewRows(runColumns))

	_, err := s.GetRun(context.Background(), runID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	defer mock.Close()

	started := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows(runColumns).
		AddRow(uuid.New(), uuid.New(), "a", started, started, nil, "running", 0.2, int64(0)).
		AddRow(uuid.New(), uuid.New(), "b", started, started, nil, "running", 0.9, int64(1))
	mock.ExpectQuery("FROM progress_runs").
		WithArgs(pgxmock.AnyArg(), 20, 0).
		WillReturnRows(rows)

	status := store.RunRunning
	runs, err := s.ListRuns(context.Background(), &status, 20, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "b", runs[1].Name)
	require.Nil(t, runs[0].FinishedAt)
	require.Equal(t, store.RunRunning, runs[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
