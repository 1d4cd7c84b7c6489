package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.log")
	logger, err := New("debug", path, false)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Infow("hello", "tick", 1)
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Fatalf("expected json log entry, got %q", data)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New("loud", "", false); err == nil {
		t.Fatal("expected unknown level to fail")
	}
}
