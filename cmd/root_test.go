package cmd

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/progression/internal/app"
	"github.com/JakeFAU/progression/internal/config"
	"github.com/JakeFAU/progression/internal/store"
)

// recordingFactory builds quiet apps and remembers the last one.
type recordingFactory struct {
	last *app.App
	cfg  config.Config
}

func (f *recordingFactory) build(ctx context.Context, cfg config.Config) (App, error) {
	a, err := app.New(ctx, cfg, app.WithLogger(zap.NewNop()))
	if err != nil {
		return nil, err
	}
	f.last, f.cfg = a, cfg
	return a, nil
}

func execute(t *testing.T, f *recordingFactory, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(f.build)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCommandCompletesRuns(t *testing.T) {
	t.Parallel()

	f := &recordingFactory{}
	out, err := execute(t, f, "run", "--runs", "2", "--steps", "3", "--name", "cli")
	require.NoError(t, err)
	require.Contains(t, out, "completed=2 cancelled=0")
	require.Equal(t, "cli", f.cfg.Simulate.Name)

	runs, err := f.last.Ledger().ListRuns(context.Background(), nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, run := range runs {
		require.Equal(t, store.RunCompleted, run.Status)
		require.Equal(t, "cli", run.Name)
		require.EqualValues(t, 1, run.Signals)
	}
}

func TestRunCommandCancelsAtThreshold(t *testing.T) {
	t.Parallel()

	f := &recordingFactory{}
	out, err := execute(t, f, "run", "--runs", "1", "--steps", "4", "--cancel-at", "0.5")
	require.NoError(t, err)
	require.Contains(t, out, "completed=0 cancelled=1")

	status := store.RunCancelled
	runs, err := f.last.Ledger().ListRuns(context.Background(), &status, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.InDelta(t, 0.5, runs[0].Value, 1e-9)
}

func TestRunCommandReadsConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "progression.yaml")
	require.NoError(t, os.WriteFile(path, []byte("simulate:\n  runs: 4\n  steps: 2\nledger:\n  driver: memory\n"), 0o600))

	f := &recordingFactory{}
	out, err := execute(t, f, "--config", path, "run", "--runs", "1")
	require.NoError(t, err)
	require.Contains(t, out, "completed=1")
	require.Equal(t, 2, f.cfg.Simulate.Steps)
	require.Equal(t, 1, f.cfg.Simulate.Runs)
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	f := &recordingFactory{}
	_, err := execute(t, f, "run", "--cancel-at", "2")
	require.ErrorContains(t, err, "simulate.cancel_at")
	require.Nil(t, f.last)

	_, err = execute(t, f, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "run")
	require.ErrorContains(t, err, "load config")
}

func TestResolveAppMissing(t *testing.T) {
	t.Parallel()

	_, err := resolveApp(context.Background())
	require.Error(t, err)
}

func TestServeAnswersUntilCancelled(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Server: config.ServerConfig{Port: 8080, ShutdownTimeout: time.Second},
		Ledger: config.LedgerConfig{Driver: config.LedgerMemory},
	}
	a, err := app.New(context.Background(), cfg, app.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, a, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}
}

func TestRunCommandFansOutTrackers(t *testing.T) {
	t.Parallel()

	f := &recordingFactory{}
	out, err := execute(t, f, "run", "--trackers", "3", "--workers", "2", "--runs", "2", "--steps", "2", "--interval", "1ms")
	require.NoError(t, err)
	require.Contains(t, out, "completed=6 cancelled=0")

	runs, err := f.last.Ledger().ListRuns(context.Background(), nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 6)
	names := map[string]int{}
	for _, run := range runs {
		names[run.Name]++
		require.Equal(t, 7, int(run.ID.Version()))
	}
	require.Equal(t, map[string]int{"demo-1": 2, "demo-2": 2, "demo-3": 2}, names)
}

func TestTrackerJobs(t *testing.T) {
	t.Parallel()

	jobs := trackerJobs(config.SimulateConfig{Name: "solo", Runs: 2, Steps: 5})
	require.Len(t, jobs, 1)
	require.Equal(t, "solo", jobs[0].Name)
	require.Equal(t, 5, jobs[0].Steps)
}

func TestRunCommandPrintsReport(t *testing.T) {
	t.Parallel()

	f := &recordingFactory{}
	out, err := execute(t, f, "run", "--runs", "2", "--steps", "2", "--name", "bars", "--report")
	require.NoError(t, err)
	require.Contains(t, out, "bars\n")
	require.Contains(t, out, "100.0% done")
	require.Contains(t, out, "2 runs, 2 completed, 0 cancelled")
	require.Contains(t, out, "completed=2 cancelled=0")

	plain, err := execute(t, &recordingFactory{}, "run", "--runs", "1", "--steps", "1")
	require.NoError(t, err)
	require.NotContains(t, plain, "runs, ")
}
