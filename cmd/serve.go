package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/progression/internal/api"
	"github.com/JakeFAU/progression/internal/simulate"
)

// newServeCmd creates the 'serve' subcommand, which exposes health, metrics
// and the run ledger over HTTP.
func newServeCmd(v *viper.Viper) *cobra.Command {
	var withSimulation bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health, metrics and the run ledger over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			addr := fmt.Sprintf(":%d", appInstance.Config().Server.Port)
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", addr, err)
			}
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return serve(gctx, appInstance, ln) })
			if withSimulation {
				g.Go(func() error {
					simulateLoop(gctx, appInstance)
					return nil
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().Int("port", 8080, "HTTP listen port")
	cmd.Flags().BoolVar(&withSimulation, "simulate", false, "keep driving simulated runs in the background")
	bindFlag(v, cmd, "server.port", "port")
	return cmd
}

// serve runs the HTTP server on ln until ctx is done, then shuts it down.
func serve(ctx context.Context, a App, ln net.Listener) error {
	logger := a.Logger()
	server := api.NewServer(a.Ledger(), logger.Named("api"),
		api.WithGatherer(a.Registry()),
		api.WithHTTPMetrics(a.HTTPMetrics()))
	srv := &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")

	timeout := a.Config().Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// simulateLoop starts a simulated batch every simulate.every until ctx is done.
func simulateLoop(ctx context.Context, a App) {
	every := a.Config().Simulate.Every
	if every <= 0 {
		every = 5 * time.Second
	}
	logger := a.Logger().Named("simulate")
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if _, err := runBatch(ctx, a); err != nil && !simulate.IsInterrupted(err) {
			logger.Warn("background simulation failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
