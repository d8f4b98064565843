package internal

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
	if cfg.App.HTTP.Address() != ":8080" {
		t.Errorf("address = %q", cfg.App.HTTP.Address())
	}
}

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenMode(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}

	cfg.Token = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("empty token: %v", err)
	}

	if err := (&AuthConfig{Mode: "magic", Token: "x"}).Validate(); err == nil {
		t.Error("invalid mode should fail validation")
	}
}

func TestDatabaseConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     DatabaseConfig
		wantErr bool
	}{
		{"sqlite", DatabaseConfig{Driver: "sqlite3", DSN: "x.db"}, false},
		{"postgres", DatabaseConfig{Driver: "postgres", DSN: "postgres://localhost/lifelog", MaxOpenConns: 10}, false},
		{"unknown driver", DatabaseConfig{Driver: "mysql", DSN: "x"}, true},
		{"missing dsn", DatabaseConfig{Driver: "sqlite3"}, true},
		{"negative pool", DatabaseConfig{Driver: "sqlite3", DSN: "x.db", MaxOpenConns: -1}, true},
		{"negative lifetime", DatabaseConfig{Driver: "sqlite3", DSN: "x.db", ConnMaxLifetime: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestQueryConfig_Validate(t *testing.T) {
	base := NewDefaultConfig().Query

	cfg := base
	cfg.Mode = ""
	if err := cfg.Validate(); err != nil || cfg.Mode != QueryModeStructured {
		t.Errorf("empty mode: err=%v mode=%q", err, cfg.Mode)
	}

	cfg = base
	cfg.Mode = "text_to_sql"
	if err := cfg.Validate(); err == nil {
		t.Error("unsupported mode should fail")
	}

	cfg = base
	cfg.DefaultLimit = cfg.MaxLimit + 1
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "exceeds max_limit") {
		t.Errorf("default above max: %v", err)
	}

	cfg = base
	cfg.HydrationParallelism = -1
	if err := cfg.Validate(); err == nil {
		t.Error("negative parallelism should fail")
	}

	if n := len(base.EngineOptions()); n != 4 {
		t.Errorf("engine options = %d, want 4", n)
	}
}

func TestMetricsConfig_Validate(t *testing.T) {
	if err := (&MetricsConfig{Enabled: false}).Validate(); err != nil {
		t.Errorf("disabled metrics need no path: %v", err)
	}
	if err := (&MetricsConfig{Enabled: true}).Validate(); err == nil {
		t.Error("enabled metrics without path should fail")
	}
}

func TestFullConfig_SectionsValidated(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	if err := cfg.Validate(); err == nil {
		t.Error("full config validate should catch auth error")
	}

	cfg = NewDefaultConfig()
	cfg.Database.Driver = ""
	if err := cfg.Validate(); err == nil {
		t.Error("full config validate should catch database error")
	}
}
