package health

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
)

// CheckSource verifies that a configured source address can actually supply
// bytes before the driver loop starts spinning. "-" (stdin) is always
// reachable. "tcp://host:port" is dialed and immediately closed. Anything
// else is treated as a filesystem path and merely needs to exist.
func CheckSource(ctx context.Context, sourceAddr string) error {
	if sourceAddr == "" {
		return fmt.Errorf("no source configured")
	}
	if sourceAddr == "-" {
		return nil
	}
	if addr, ok := strings.CutPrefix(sourceAddr, "tcp://"); ok {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("source unreachable: %w", err)
		}
		conn.Close()
		return nil
	}
	if _, err := os.Stat(sourceAddr); err != nil {
		return fmt.Errorf("source path: %w", err)
	}
	return nil
}

// CheckMetricsEndpoint fetches /metrics off a listen address of the form
// ":9100" or "host:9100" and returns nil if it responds 200.
func CheckMetricsEndpoint(ctx context.Context, metricsAddr string) error {
	if metricsAddr == "" {
		return fmt.Errorf("no metrics address configured")
	}
	host := metricsAddr
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}
	url := "http://" + host + "/metrics"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("metrics unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("metrics returned HTTP %d", resp.StatusCode)
	}
	return nil
}
