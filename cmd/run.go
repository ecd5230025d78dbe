package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/JakeFAU/progression/internal/clock/system"
	"github.com/JakeFAU/progression/internal/config"
	"github.com/JakeFAU/progression/internal/dispatcher"
	"github.com/JakeFAU/progression/internal/id/uuid"
	"github.com/JakeFAU/progression/internal/policy/ratelimit"
	"github.com/JakeFAU/progression/internal/report"
	"github.com/JakeFAU/progression/internal/simulate"
	"github.com/JakeFAU/progression/internal/worker"
)

// newRunCmd creates the 'run' subcommand, which drives pooled trackers through
// batches of simulated runs and reports what happened.
func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive trackers through simulated runs",
		RunE:  runSimulateCommand,
	}
	cmd.Flags().String("name", "demo", "tracker name")
	cmd.Flags().Int("runs", 3, "number of runs per tracker")
	cmd.Flags().Int("steps", 10, "evaluations per run")
	cmd.Flags().Duration("interval", 0, "pause between steps")
	cmd.Flags().Float64("cancel-at", 0, "cancel each run once its value reaches this fraction (0 disables)")
	cmd.Flags().Int("trackers", 1, "number of trackers to drive")
	cmd.Flags().Int("workers", 1, "number of trackers driven concurrently")
	cmd.Flags().Bool("report", false, "print a bar per run (default: only on a terminal)")
	bindFlag(v, cmd, "simulate.name", "name")
	bindFlag(v, cmd, "simulate.runs", "runs")
	bindFlag(v, cmd, "simulate.steps", "steps")
	bindFlag(v, cmd, "simulate.interval", "interval")
	bindFlag(v, cmd, "simulate.cancel_at", "cancel-at")
	bindFlag(v, cmd, "simulate.trackers", "trackers")
	bindFlag(v, cmd, "simulate.workers", "workers")
	return cmd
}

func runSimulateCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := appInstance.Config().Simulate
	summary, err := runBatch(ctx, appInstance)
	appInstance.Logger().Info("simulation finished",
		zap.String("name", cfg.Name),
		zap.Int("trackers", cfg.Trackers),
		zap.Int("completed", summary.Completed),
		zap.Int("cancelled", summary.Cancelled),
		zap.Bool("interrupted", simulate.IsInterrupted(err)))
	out := cmd.OutOrStdout()
	if wantReport(cmd, out) {
		if perr := report.NewPrinter(barWidth(out)).Print(out, cfg.Name, summary); perr != nil {
			appInstance.Logger().Warn("report rendering failed", zap.Error(perr))
		}
	}
	fmt.Fprintf(out, "completed=%d cancelled=%d\n", summary.Completed, summary.Cancelled)
	if err != nil && !simulate.IsInterrupted(err) {
		return fmt.Errorf("run simulation: %w", err)
	}
	return nil
}

// wantReport honours --report when given and otherwise checks for a terminal.
func wantReport(cmd *cobra.Command, out io.Writer) bool {
	if cmd.Flags().Changed("report") {
		on, _ := cmd.Flags().GetBool("report")
		return on
	}
	f, ok := out.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// barWidth sizes report bars to a third of the terminal, or zero for the default.
func barWidth(out io.Writer) int {
	f, ok := out.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width / 3
}

// runBatch drives simulate.trackers trackers on simulate.workers workers.
func runBatch(ctx context.Context, a App) (simulate.Summary, error) {
	cfg := a.Config().Simulate
	logger := a.Logger().Named("simulate")
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Rate,
		DefaultBurst: cfg.Burst,
		Overrides:    cfg.Rates,
		OnDelay: func(key string, waited time.Duration) {
			logger.Debug("simulation paced", zap.String("name", key), zap.Duration("waited", waited))
		},
	})
	return dispatcher.Batch(ctx, trackerJobs(cfg), cfg.Workers, worker.Config{
		Pool:    a.Pool(),
		Emitter: a.Emitter(),
		Clock:   system.New(),
		Limiter: limiter,
		RunIDs:  uuid.New().RunID,
		Logger:  logger,
	})
}

// trackerJobs expands the simulate section into one job per tracker.
func trackerJobs(cfg config.SimulateConfig) []simulate.Config {
	n := cfg.Trackers
	if n <= 0 {
		n = 1
	}
	jobs := make([]simulate.Config, 0, n)
	for i := 0; i < n; i++ {
		name := cfg.Name
		if n > 1 {
			name = fmt.Sprintf("%s-%d", cfg.Name, i+1)
		}
		jobs = append(jobs, simulate.Config{
			Name:     name,
			Runs:     cfg.Runs,
			Steps:    cfg.Steps,
			Interval: cfg.Interval,
			CancelAt: cfg.CancelAt,
		})
	}
	return jobs
}
