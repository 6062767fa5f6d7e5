package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("QUASI_DATA_DIR", dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BoardURL == "" || cfg.BindAddr == "" {
		t.Fatalf("expected non-empty defaults, got %+v", cfg)
	}
	if cfg.Presentation.PreferredUsername != "quasi-board" {
		t.Fatalf("expected default presentation, got %+v", cfg.Presentation)
	}
}

func TestLoadAppliesBoardYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	overlay := `
preferred_username: "acme-board"
summary: "Acme's contribution board"
genesis_tasks:
  - id: QUASI-100
    title: Custom fallback task
    url: https://acme.example/issues/100
    labels: [custom]
`
	if err := os.WriteFile(filepath.Join(dir, "board.yaml"), []byte(overlay), 0o644); err != nil {
		t.Fatalf("write board.yaml: %v", err)
	}
	t.Setenv("QUASI_DATA_DIR", dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Presentation.PreferredUsername != "acme-board" {
		t.Fatalf("expected overlay to override preferred_username, got %s", cfg.Presentation.PreferredUsername)
	}
	if len(cfg.GenesisTasks) != 1 || cfg.GenesisTasks[0].ID != "QUASI-100" {
		t.Fatalf("expected the overlay's genesis task list, got %+v", cfg.GenesisTasks)
	}
}

func TestValidateRejectsEmptyBindAddr(t *testing.T) {
	cfg := &Config{BoardURL: "http://x", DataDir: "./data", BindAddr: ""}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for empty bind addr")
	}
}
