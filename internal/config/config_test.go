package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.BaseDir != "/srv/kienzlefax" {
		t.Errorf("base = %s", cfg.BaseDir)
	}
	if cfg.MaxInflight != 2 {
		t.Errorf("max inflight = %d", cfg.MaxInflight)
	}
	if cfg.PollInterval() != time.Second {
		t.Errorf("poll = %v", cfg.PollInterval())
	}
	if cfg.FinalizeTimeout() != 30*time.Minute {
		t.Errorf("finalize timeout = %v", cfg.FinalizeTimeout())
	}
	if cfg.CancelPostWait() != 3*time.Second {
		t.Errorf("cancel post-wait = %v", cfg.CancelPostWait())
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.yaml")
	body := "base_dir: /tmp/fax\nmax_inflight: 4\nfaxstat_refresh_sec: 5\n"
	if err := os.WriteFile(path, []byte(body), 0640); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseDir != "/tmp/fax" {
		t.Errorf("base = %s", cfg.BaseDir)
	}
	if cfg.MaxInflight != 4 {
		t.Errorf("max inflight = %d", cfg.MaxInflight)
	}
	if cfg.FaxstatRefresh() != 5*time.Second {
		t.Errorf("refresh = %v", cfg.FaxstatRefresh())
	}
	// Untouched fields keep defaults.
	if cfg.FaxHost != "localhost" || cfg.SendfaxBin != "sendfax" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("max_inflight: 0\n"), 0640); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("want validation error for max_inflight 0")
	}

	broken := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(broken, []byte(":\n  - ["), 0640); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(broken); err == nil {
		t.Error("want parse error")
	}

	if _, err := Load(filepath.Join(dir, "absent.yaml")); err == nil {
		t.Error("want read error")
	}
}
