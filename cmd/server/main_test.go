package main

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"tiltbot/internal/config"
	"tiltbot/internal/sim"
)

func TestRootFlags(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.ParseFlags([]string{"--port", "6000", "--max-speed", "5", "--headless"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	for name, want := range map[string]string{"port": "6000", "max-speed": "5", "headless": "true", "friction": "0.92"} {
		if got := cmd.Flags().Lookup(name).Value.String(); got != want {
			t.Fatalf("flag %s = %q, want %q", name, got, want)
		}
	}
}

func TestRunHeadlessStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Headless = true
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Log.Level = "error"

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := run(ctx, cfg); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Headless = true
	cfg.TickRate = -1
	if err := run(context.Background(), cfg); err == nil {
		t.Fatal("expected invalid config to fail")
	}
}

func TestHeartbeatLogsOncePerSecond(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := heartbeat(60, zap.New(core).Sugar())
	for tick := uint64(1); tick <= 120; tick++ {
		sink.Render(sim.Frame{Tick: tick})
	}
	if logs.Len() != 2 {
		t.Fatalf("expected 2 heartbeat entries, got %d", logs.Len())
	}
}
