// Package cmd defines and implements the CLI commands for the progression executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/progression/internal/app"
	"github.com/JakeFAU/progression/internal/config"
	"github.com/JakeFAU/progression/internal/logging"
	"github.com/JakeFAU/progression/internal/progress"
	"github.com/JakeFAU/progression/internal/store"
	"github.com/JakeFAU/progression/internal/telemetry"
)

const closeTimeout = 10 * time.Second

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a test app.
type App interface {
	Close(ctx context.Context) error
	Config() config.Config
	Logger() *zap.Logger
	Ledger() store.RunRepository
	Emitter() progress.Emitter
	Pool() *progress.Pool
	Registry() *prometheus.Registry
	HTTPMetrics() *telemetry.HTTPMetrics
}

// appFactory builds the App once configuration has been resolved.
type appFactory func(ctx context.Context, cfg config.Config) (App, error)

func defaultAppFactory(ctx context.Context, cfg config.Config) (App, error) {
	return app.New(ctx, cfg)
}

// newRootCmd creates and configures the root command. Flags of every
// subcommand are bound into v so they override file and environment values.
func newRootCmd(newApp appFactory) *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "progression",
		Short: "Drive and observe progress trackers.",
		Long: `progression runs trackers through their start, evaluate, complete,
cancel and reset lifecycle and reports every notification to structured logs,
Prometheus metrics and a run ledger that can be queried over HTTP.`,
		SilenceUsage: true,

		// Build and inject the application before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWith(v, cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		// Drain the hub and release services once the subcommand returns.
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), closeTimeout)
			defer cancel()
			if err := appInstance.Close(ctx); err != nil {
				return fmt.Errorf("close application: %w", err)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.AddCommand(newRunCmd(v), newServeCmd(v))
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// bindFlag maps a command flag onto a config key.
func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	cobra.CheckErr(v.BindPFlag(key, cmd.Flags().Lookup(flag)))
}

// Execute is the main entry point.
func Execute() {
	logger, err := logging.New(false, "")
	if err != nil {
		logger = zap.NewNop()
	}
	if err := newRootCmd(defaultAppFactory).Execute(); err != nil {
		logger.Fatal("command execution failed", zap.Error(err))
	}
}
