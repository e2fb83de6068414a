package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	goSentinel "github.com/MrEthical07/goSentinel"
	"github.com/MrEthical07/goSentinel/admin"
	"github.com/MrEthical07/goSentinel/internal/watch"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine and its admin API",
	Long: `Run the engine, its background sweeps and the admin API.

Examples:
  # Serve with defaults and a config file
  sentinel serve --config sentinel.yaml

  # Reload the trigger policy whenever policy.yaml changes
  sentinel serve --config sentinel.yaml --watch policy.yaml

  # Also publish OpenTelemetry instruments at /metrics/otel
  sentinel serve --otel`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides http.addr)")
	serveCmd.Flags().String("watch", "", "policy file to hot-reload on change")
	serveCmd.Flags().Duration("debounce", watch.DefaultDebounce, "quiet period before a reload")
	serveCmd.Flags().Bool("otel", false, "publish OpenTelemetry metrics at "+OTelPath)
}

func runServe(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	policyFile, _ := cmd.Flags().GetString("watch")
	debounce, _ := cmd.Flags().GetDuration("debounce")
	withOTel, _ := cmd.Flags().GetBool("otel")

	cfg, logger, engine, err := openEngine()
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Error("engine close failed", zap.Error(err))
		}
	}()
	if addr == "" {
		addr = cfg.HTTP.Addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if policyFile != "" {
		data, err := os.ReadFile(policyFile)
		if err != nil {
			return fmt.Errorf("read policy: %w", err)
		}
		if _, err := engine.ReloadPolicy(data); err != nil {
			return fmt.Errorf("load policy: %w", err)
		}
		w := watch.New(logger.Named("policy"), policyFile, debounce, func(b []byte) error {
			_, err := engine.ReloadPolicy(b)
			return err
		})
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
	}

	if cfg.HTTP.AdminToken == "" {
		logger.Warn("admin token not configured; admin routes will refuse every request",
			zap.String("env", goSentinel.EnvPrefix+"ADMIN_TOKEN"))
	}

	router := admin.NewRouter(engine, logger.Named("http"), cfg.HTTP)
	if withOTel {
		om, err := startOTel(engine)
		if err != nil {
			return err
		}
		defer func() {
			if err := om.Shutdown(context.Background()); err != nil {
				logger.Warn("otel shutdown failed", zap.Error(err))
			}
		}()
		router.Method(http.MethodGet, OTelPath, om.handler)
		logger.Info("otel metrics enabled", zap.String("path", OTelPath))
	}

	engine.Start(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin API listening", zap.String("addr", addr), zap.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	if err := engine.FlushAnchors(shutdownCtx); err != nil {
		logger.Warn("pending anchors not flushed", zap.Error(err))
	}
	logger.Info("stopped")
	return nil
}
