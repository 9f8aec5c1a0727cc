package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_EnvOnlyDefaults(t *testing.T) {
	t.Setenv("ZKP_LEDGER_BASE_URL", "http://ledger:3001")
	t.Setenv("ZKP_ORCHESTRATOR_SETTLEMENT_GRACE", "5s")

	cfg, err := Load("does-not-exist.yaml", true)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Ledger.BaseURL != "http://ledger:3001" {
		t.Fatalf("base_url=%q", cfg.Ledger.BaseURL)
	}
	if cfg.Orchestrator.SettlementGrace != 5*time.Second {
		t.Fatalf("grace=%v want 5s", cfg.Orchestrator.SettlementGrace)
	}
	if cfg.Orchestrator.CreationSyncAttempts != 20 || cfg.Orchestrator.CreationSyncInterval != 3*time.Second {
		t.Fatalf("creation sync=%d/%v", cfg.Orchestrator.CreationSyncAttempts, cfg.Orchestrator.CreationSyncInterval)
	}
	if cfg.Journal.Enabled || cfg.Journal.Retention != 0 || cfg.Journal.Buffer != 1024 {
		t.Fatalf("journal=%+v", cfg.Journal)
	}
	if !cfg.PaaS.AuthDisabled || cfg.Receipt.MaxBytes != 10<<20 {
		t.Fatalf("paas=%+v receipt=%+v", cfg.PaaS, cfg.Receipt)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("journal:\n  enabled: true\n  retention: 48h\ncron:\n  enabled: false\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Journal.Enabled || cfg.Journal.Retention != 48*time.Hour || cfg.Cron.Enabled {
		t.Fatalf("journal=%+v cron=%+v", cfg.Journal, cfg.Cron)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), false); err == nil {
		t.Fatalf("missing file should fail without envOnly")
	}
}
