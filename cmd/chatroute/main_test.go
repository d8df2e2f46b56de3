package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/matiasleandrokruk/chatroute/internal/infra/config"
)

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	code := run([]string{"version"}, &out, &bytes.Buffer{})

	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(out.String(), "chatroute version") {
		t.Fatalf("expected version output, got %q", out.String())
	}
}

func TestRun_Help_PrintsUsage(t *testing.T) {
	var out bytes.Buffer
	code := run([]string{"--help"}, &out, &bytes.Buffer{})

	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	for _, want := range []string{"Usage:", "serve", "migrate"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("help output missing %q: %q", want, out.String())
		}
	}
}

func TestRun_UnknownCommand_Fails(t *testing.T) {
	var errOut bytes.Buffer
	code := run([]string{"frobnicate"}, &bytes.Buffer{}, &errOut)

	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(errOut.String(), "unknown command") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestRun_Migrate_Idempotent(t *testing.T) {
	t.Setenv("DATABASE_PATH", filepath.Join(t.TempDir(), "chatroute.db"))
	t.Setenv("CHATROUTE_CONFIG", "")

	var out bytes.Buffer
	if code := run([]string{"migrate"}, &out, &bytes.Buffer{}); code != 0 {
		t.Fatalf("first migrate exit code = %d", code)
	}
	if strings.Contains(out.String(), "applied 0 migration") {
		t.Fatalf("first migrate applied nothing: %q", out.String())
	}

	out.Reset()
	if code := run([]string{"migrate"}, &out, &bytes.Buffer{}); code != 0 {
		t.Fatalf("second migrate exit code = %d", code)
	}
	if !strings.Contains(out.String(), "applied 0 migration") {
		t.Fatalf("second migrate output = %q", out.String())
	}
}

func TestServe_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	cfg := config.Defaults()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "chatroute.db")
	err := serve(context.Background(), cfg, zap.NewNop())
	if err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("serve() error = %v; want JWT_SECRET error", err)
	}
}

func TestServe_StartsAndShutsDown(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-32-bytes-minimum-ok!")

	cfg := config.Defaults()
	cfg.Host = "127.0.0.1"
	cfg.Port = freePort(t)
	cfg.DatabasePath = filepath.Join(t.TempDir(), "chatroute.db")
	cfg.OllamaBaseURL = "http://127.0.0.1:1"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, zap.NewNop()) }()

	url := fmt.Sprintf("http://%s/health", cfg.Addr())
	var resp *http.Response
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		r, err := http.Get(url)
		if err == nil {
			resp = r
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if resp == nil {
		cancel()
		t.Fatal("server never answered /health")
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d; want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve() error = %v; want nil after cancel", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}
