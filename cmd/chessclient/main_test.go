package main

import (
	"testing"

	"github.com/park285/nochess-client/pkg/chessdto"
)

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("NOCHESS_SERVER_URL", "http://env-host:1")
	t.Setenv("NOCHESS_STREAM_URL", "")
	t.Setenv("NOCHESS_STREAM_TRANSPORT", "")
	t.Setenv("NOCHESS_MODE", "beginner")

	if err := rootCmd.ParseFlags([]string{"--server", "http://flag-host:8000/", "--mode", "hard", "--timeout", "2s"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if err := loadConfig(rootCmd); err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.ServerURL != "http://flag-host:8000" {
		t.Fatalf("server %q", cfg.ServerURL)
	}
	if cfg.StreamURL != "ws://flag-host:8000/ws/analysis/{session}" {
		t.Fatalf("stream url should follow the flag server, got %q", cfg.StreamURL)
	}
	if cfg.Mode != chessdto.ModeAdvanced {
		t.Fatalf("mode %q", cfg.Mode)
	}
	if cfg.RequestTimeout.Seconds() != 2 {
		t.Fatalf("timeout %v", cfg.RequestTimeout)
	}
}
