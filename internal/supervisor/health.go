package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// healthCheck performs a single GET against a worker's /health endpoint.
func healthCheck(ctx context.Context, client *http.Client, port uint16) bool {
	url := fmt.Sprintf("http://%s:%d/health", "localhost", port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// waitReady polls a worker's health endpoint at 1 Hz until it responds 200
// or timeout elapses.
func waitReady(ctx context.Context, client *http.Client, port uint16, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	if healthCheck(ctx, client, port) {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if healthCheck(ctx, client, port) {
				return nil
			}
			if time.Now().After(deadline) {
				return ErrStartupFailed
			}
		}
	}
}
