package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("SHARED_STATE_LISTEN_PORT")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenPort != 3490 {
		t.Fatalf("expected default listen port 3490, got %d", cfg.ListenPort)
	}
	if cfg.MaxSyncFanout != 8 {
		t.Fatalf("expected default fanout 8, got %d", cfg.MaxSyncFanout)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	os.Setenv("SHARED_STATE_HOOKS_DIR", "/tmp/custom-hooks")
	defer os.Unsetenv("SHARED_STATE_HOOKS_DIR")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.HooksDir != "/tmp/custom-hooks" {
		t.Fatalf("expected env override, got %q", cfg.HooksDir)
	}
}
