package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckSource_stdin(t *testing.T) {
	if err := CheckSource(context.Background(), "-"); err != nil {
		t.Fatalf("CheckSource(-): %v", err)
	}
}

func TestCheckSource_empty(t *testing.T) {
	if err := CheckSource(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty source")
	}
}

func TestCheckSource_tcpReachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()
	addr := "tcp://" + ln.Addr().String()
	if err := CheckSource(context.Background(), addr); err != nil {
		t.Fatalf("CheckSource(%s): %v", addr, err)
	}
}

func TestCheckSource_tcpUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := "tcp://" + ln.Addr().String()
	ln.Close() // nothing listening now
	if err := CheckSource(context.Background(), addr); err == nil {
		t.Fatal("expected error for unreachable TCP source")
	}
}

func TestCheckSource_filePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.ts")
	if err := os.WriteFile(path, []byte{0x47}, 0644); err != nil {
		t.Fatal(err)
	}
	if err := CheckSource(context.Background(), path); err != nil {
		t.Fatalf("CheckSource(%s): %v", path, err)
	}
}

func TestCheckSource_filePathMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.ts")
	if err := CheckSource(context.Background(), path); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestCheckMetricsEndpoint_ok(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	if err := CheckMetricsEndpoint(context.Background(), addr); err != nil {
		t.Fatalf("CheckMetricsEndpoint: %v", err)
	}
}

func TestCheckMetricsEndpoint_badStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	if err := CheckMetricsEndpoint(context.Background(), addr); err == nil {
		t.Fatal("expected error for 503")
	}
}

func TestCheckMetricsEndpoint_empty(t *testing.T) {
	if err := CheckMetricsEndpoint(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty address")
	}
}
