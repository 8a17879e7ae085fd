// Command bgerr-server runs a storage engine host whose background error
// state is exported as gRPC health and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health"
	"gopkg.in/yaml.v3"

	"github.com/jathurchan/bgerr/config"
	"github.com/jathurchan/bgerr/engine"
	"github.com/jathurchan/bgerr/errhandler"
	"github.com/jathurchan/bgerr/logger"
	"github.com/jathurchan/bgerr/metrics"
	"github.com/jathurchan/bgerr/server"
)

// engineService is the health service name reported for the engine.
const engineService = "bgerr.Engine"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "bgerr-server",
		Short: "Run the storage engine host with background error recovery",
		Long: `bgerr-server opens the engine data directory, serves gRPC health
(NOT_SERVING while writes are stopped by a background error) and exposes
Prometheus metrics.

Configuration is read from --config, then overridden by BGERR_* environment
variables, e.g. BGERR_RECOVERY_MAX_RETRY_ATTEMPTS=5.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, cmd.ErrOrStderr())
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML configuration file")
	cmd.AddCommand(newConfigCmd(&configPath))
	return cmd
}

func newConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			return enc.Close()
		},
	}
}

// run serves until ctx is cancelled or a listener fails, then shuts down
// the gRPC server, the metrics endpoint and the engine, in that order.
func run(ctx context.Context, cfg *config.Config, logOut io.Writer) error {
	log := logger.NewZerologLogger(logOut, cfg.Log.Level, cfg.Log.Console)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hs := health.NewServer()
	reporter := server.NewHealthReporter(hs, engineService, log)

	eng, err := engine.Open(engine.Config{
		DataDir:           cfg.Engine.DataDir,
		MinFreeBytes:      cfg.Engine.MinFreeBytes,
		MaxBackgroundJobs: cfg.Engine.MaxBackgroundJobs,
		Recovery:          cfg.RecoveryOptions(),
	}, engine.Dependencies{
		Logger:    log,
		Metrics:   metrics.NewPrometheus(reg),
		Listeners: []errhandler.EventListener{reporter},
	})
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return errors.Join(fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err), eng.Close())
	}
	srv := server.New(server.Config{RetryDelay: cfg.Recovery.BackoffBase}, eng, hs, log)

	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		metricsSrv = &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, server.ErrServerStopped) {
			return err
		}
		return nil
	})
	if metricsSrv != nil {
		g.Go(func() error {
			log.Infow("Metrics endpoint listening", "address", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Infow("Shutting down", "timeout", cfg.Server.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		errs = append(errs, srv.Stop(shutdownCtx))
		if metricsSrv != nil {
			errs = append(errs, metricsSrv.Shutdown(shutdownCtx))
		}
		errs = append(errs, eng.Close())
		return errors.Join(errs...)
	})
	return g.Wait()
}
