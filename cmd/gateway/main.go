// Command gateway runs the stateless Gateway daemon: OpenAI-shaped public
// routes that resolve a model alias, ask the Worker Manager to spawn/touch
// it, and forward the request to the resulting worker.
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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vibe-homelab/vision-insight-api/internal/catalog"
	"github.com/vibe-homelab/vision-insight-api/internal/config"
	"github.com/vibe-homelab/vision-insight-api/internal/dispatch"
	"github.com/vibe-homelab/vision-insight-api/internal/gatewayapi"
	"github.com/vibe-homelab/vision-insight-api/internal/logging"
)

func main() {
	var configPath string
	var listenAddr string
	var managerURL string
	var workerHost string

	root := &cobra.Command{
		Use:   "gateway",
		Short: "Gateway: stateless public dispatch for the inference worker fleet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, listenAddr, managerURL, workerHost)
		},
	}
	root.Flags().StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file")
	root.Flags().StringVar(&listenAddr, "listen", "", "override the gateway listen address (default gateway.host:gateway.port from config, else 0.0.0.0:8000)")
	root.Flags().StringVar(&managerURL, "manager-url", "", "override the Worker Manager base URL (default from $WORKER_MANAGER_HOST/$WORKER_MANAGER_PORT)")
	root.Flags().StringVar(&workerHost, "worker-host", "", "override how the gateway reaches spawned workers (default $WORKER_HOST or host.docker.internal)")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		logging.New().WithField("component", "gateway").Fatal(err)
	}
}

func run(ctx context.Context, configPath, listenAddr, managerURL, workerHost string) error {
	log := logging.New()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if managerURL == "" {
		managerURL = resolveManagerURL()
	}
	if workerHost == "" {
		workerHost = envOr("WORKER_HOST", "host.docker.internal")
	}

	addr := listenAddr
	if addr == "" {
		port := cfg.Gateway.Port
		if port == 0 {
			port = 8000
		}
		host := cfg.Gateway.Host
		if host == "" {
			host = "0.0.0.0"
		}
		addr = fmt.Sprintf("%s:%d", host, port)
	}

	cat := catalog.New(cfg.Models)
	disp := dispatch.New(managerURL, workerHost, cat, log)
	handler := gatewayapi.New(disp, log, cfg.Gateway.APIKey)

	server := &http.Server{
		Addr:    addr,
		Handler: handler.Routes(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("addr", addr).WithField("manager_url", managerURL).Info("gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, stopping gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithField("error", err.Error()).Warn("gateway server shutdown error")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("gateway stopped")
	return nil
}

// resolveManagerURL builds the Manager's base URL from WORKER_MANAGER_HOST
// / WORKER_MANAGER_PORT, defaulting to localhost:8100.
func resolveManagerURL() string {
	host := envOr("WORKER_MANAGER_HOST", "localhost")
	port := 8100
	if v := os.Getenv("WORKER_MANAGER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			port = n
		}
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
