// Command manager runs the Worker Manager daemon: process supervision and
// memory-aware admission for inference workers.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vibe-homelab/vision-insight-api/internal/catalog"
	"github.com/vibe-homelab/vision-insight-api/internal/config"
	"github.com/vibe-homelab/vision-insight-api/internal/logging"
	"github.com/vibe-homelab/vision-insight-api/internal/managerapi"
	"github.com/vibe-homelab/vision-insight-api/internal/memprobe"
	"github.com/vibe-homelab/vision-insight-api/internal/supervisor"
)

func main() {
	var configPath string
	var listenAddr string
	var vlmBinary string
	var diffusionBinary string
	var logDir string

	root := &cobra.Command{
		Use:   "manager",
		Short: "Worker Manager: supervises inference worker subprocesses under a memory budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, listenAddr, vlmBinary, diffusionBinary, logDir)
		},
	}
	root.Flags().StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file")
	root.Flags().StringVar(&listenAddr, "listen", "", "override the manager listen address (default :8100 or $MANAGER_PORT)")
	root.Flags().StringVar(&vlmBinary, "vlm-binary", "mockworker", "worker executable launched for vlm-kind models")
	root.Flags().StringVar(&diffusionBinary, "diffusion-binary", "mockworker", "worker executable launched for diffusion-kind models")
	root.Flags().StringVar(&logDir, "log-dir", "logs", "directory for per-alias worker log files")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		logging.New().WithField("component", "manager").Fatal(err)
	}
}

func run(ctx context.Context, configPath, listenAddr, vlmBinary, diffusionBinary, logDir string) error {
	log := logging.New()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.EnvOverrides(os.Getenv)

	addr := listenAddr
	if addr == "" {
		port := 8100
		if envPort, ok := portFromEnv("MANAGER_PORT"); ok {
			port = envPort
		}
		addr = fmt.Sprintf(":%d", port)
	}

	cat := catalog.New(cfg.Models)
	prober := memprobe.New()

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		log.WithField("error", err.Error()).Warn("failed to create log directory; worker logs will not be persisted to disk")
		logDir = ""
	}

	policy := supervisor.Policy{
		IdleTimeout:              time.Duration(cfg.Workers.IdleTimeoutSec) * time.Second,
		MaxRequestsBeforeRestart: uint64(cfg.Workers.MaxRequestsBeforeRestart),
		SweepInterval:            time.Duration(cfg.Workers.SweepIntervalSec) * time.Second,
		SpawnReadyTimeout:        time.Duration(cfg.Workers.StartupTimeoutSec) * time.Second,
		SafetyMarginGB:           cfg.Memory.SafetyMarginGB,
		DrainOnEvict:             cfg.Workers.DrainOnEvict,
		DrainTimeout:             time.Duration(cfg.Workers.DrainTimeoutSec) * time.Second,
		LogDir:                   logDir,
		Ports:                    cfg.Workers.Ports,
	}

	launcher := &supervisor.BinaryLauncher{
		Binaries: map[catalog.Kind]string{
			catalog.KindVLM:       vlmBinary,
			catalog.KindDiffusion: diffusionBinary,
		},
	}

	sup := supervisor.New(cat, prober, launcher, policy, log)
	handler := managerapi.New(sup, log, prometheus.DefaultRegisterer)

	server := &http.Server{
		Addr:    addr,
		Handler: handler.Routes(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("addr", addr).Info("manager listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("manager server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return sup.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, stopping manager")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithField("error", err.Error()).Warn("manager server shutdown error")
		}
		sup.StopAll(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("manager stopped")
	return nil
}

// portFromEnv parses an environment variable as a TCP port, returning ok=false
// if unset or invalid.
func portFromEnv(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
