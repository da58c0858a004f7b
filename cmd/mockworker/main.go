// Command mockworker is a minimal black-box inference worker implementing
// the consumed contract (GET /health, POST /chat|/analyze|/generate|/edit)
// with canned responses, so the supervisor and gateway can be exercised
// end-to-end without a real VLM or diffusion backend.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vibe-homelab/vision-insight-api/internal/catalog"
	"github.com/vibe-homelab/vision-insight-api/internal/logging"
)

func main() {
	var alias string
	var modelPath string
	var port uint16
	var kind string

	root := &cobra.Command{
		Use:   "mockworker",
		Short: "a black-box inference worker stand-in serving canned responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), alias, modelPath, port, kind)
		},
	}
	root.Flags().StringVar(&alias, "alias", "", "the worker alias it was spawned for")
	root.Flags().StringVar(&modelPath, "model_path", "", "the configured model path or identifier")
	root.Flags().Uint16Var(&port, "port", 0, "TCP port to listen on")
	root.Flags().StringVar(&kind, "kind", "vlm", "model kind: vlm or diffusion, used only for the startup memory estimate")
	_ = root.MarkFlagRequired("alias")
	_ = root.MarkFlagRequired("model_path")
	_ = root.MarkFlagRequired("port")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		logging.New().WithField("component", "mockworker").Fatal(err)
	}
}

func run(ctx context.Context, alias, modelPath string, port uint16, kind string) error {
	log := logging.New().WithField("alias", alias)

	entryKind := catalog.KindVLM
	if kind == string(catalog.KindDiffusion) {
		entryKind = catalog.KindDiffusion
	}
	estimatedGB := catalog.EstimateMemoryGB(catalog.Entry{Alias: alias, Kind: entryKind, Path: modelPath})
	estimatedBytes := int64(estimatedGB * 1024 * 1024 * 1024)

	log.WithFields(map[string]any{
		"model_path":       modelPath,
		"kind":             kind,
		"port":             port,
		"estimated_memory": units.BytesSize(float64(estimatedBytes)),
	}).Info("worker starting")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/chat", handleChat)
	mux.HandleFunc("/analyze", handleAnalyze)
	mux.HandleFunc("/generate", handleGenerate)
	mux.HandleFunc("/edit", handleEdit)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("worker server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("worker stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func handleChat(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"choices": []map[string]any{
			{
				"message": map[string]string{
					"role":    "assistant",
					"content": "This is a mock response from the worker.",
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{"total_tokens": 10, "latency": 0.1},
	})
}

func handleAnalyze(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"result":     "This is a mock analysis result.",
		"confidence": 0.99,
	})
}

func handleGenerate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"images": []map[string]string{{"b64_json": "bW9jaw=="}},
	})
}

func handleEdit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"images": []map[string]string{{"b64_json": "bW9jaw=="}},
	})
}
