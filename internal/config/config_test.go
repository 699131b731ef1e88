package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_ConfigYAML(t *testing.T) {
	path := filepath.Join("..", "..", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Database.Host == "" {
		t.Fatalf("expected database.host to be set")
	}
	if cfg.RabbitMQ.Port == 0 {
		t.Fatalf("expected rabbitmq.port to be set")
	}
	tax, sc, err := cfg.POS.Rates()
	if err != nil {
		t.Fatalf("Rates returned error: %v", err)
	}
	if tax.String() != "0.18" || sc.String() != "0.1" {
		t.Fatalf("unexpected rates %s / %s", tax, sc)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "database:\n  host: filehost\n  port: 5432\npos:\n  tax_rate: 0.05\n")
	t.Setenv("POS_DB_HOST", "envhost")
	t.Setenv("POS_TAX_RATE", "0.07")
	t.Setenv("POS_HTTP_PORT", "8080")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Database.Host != "envhost" {
		t.Errorf("Database.Host = %q, want envhost", cfg.Database.Host)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want 5432", cfg.Database.Port)
	}
	if cfg.POS.TaxRate != "0.07" {
		t.Errorf("TaxRate = %q, want 0.07", cfg.POS.TaxRate)
	}
	if cfg.HTTPAddr() != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr())
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.HTTP.Port != 3000 || cfg.RabbitMQ.Port != 5672 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if !strings.HasPrefix(cfg.DatabaseURL(), "postgres://") {
		t.Fatalf("unexpected database url %q", cfg.DatabaseURL())
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown section", "cache:\n  size: 1\n", "unknown section"},
		{"unknown key", "database:\n  schema: x\n", "unknown database key"},
		{"bad port", "rabbitmq:\n  port: abc\n", "invalid port"},
		{"rate above one", "pos:\n  tax_rate: 1.5\n", "between 0 and 1"},
		{"negative rate", "pos:\n  service_charge_rate: -0.1\n", "between 0 and 1"},
		{"unknown currency", "pos:\n  currency: XYZ\n", "invalid pos.currency"},
		{"bad locale", "pos:\n  locale: not_a_locale!\n", "invalid pos.locale"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
