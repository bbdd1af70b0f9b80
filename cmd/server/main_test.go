package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/p-n-ai/pai-learn/internal/platform/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	course := "id: intro\ntitle: Intro\nlessons:\n  - id: intro-1\n"
	if err := os.WriteFile(filepath.Join(dir, "intro.yaml"), []byte(course), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return &config.Config{
		Server:    config.ServerConfig{Host: "127.0.0.1", Port: 0, ShutdownTimeout: 2 * time.Second},
		Storage:   config.StorageConfig{Driver: config.DriverMemory},
		Auth:      config.AuthConfig{JWTSecret: "secret"},
		Content:   config.ContentConfig{Path: dir},
		Analytics: config.AnalyticsConfig{RecentEnrollments: 5, RecentlyViewed: 5},
		Reconcile: config.ReconcileConfig{Schedule: "@every 1h"},
	}
}

func TestNewHTTPServer(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{Host: "0.0.0.0", Port: 8080}}
	srv := newHTTPServer(cfg, http.NewServeMux())

	if srv.Addr != "0.0.0.0:8080" {
		t.Errorf("Addr = %q, want 0.0.0.0:8080", srv.Addr)
	}
	if srv.ReadTimeout != 10*time.Second || srv.WriteTimeout != 30*time.Second || srv.IdleTimeout != 60*time.Second {
		t.Errorf("timeouts = %v/%v/%v", srv.ReadTimeout, srv.WriteTimeout, srv.IdleTimeout)
	}
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}

func TestRun_BadContent(t *testing.T) {
	cfg := testConfig(t)
	cfg.Content.Path = filepath.Join(t.TempDir(), "missing")

	if err := run(t.Context(), cfg); err == nil {
		t.Error("run() should fail without content")
	}
}
