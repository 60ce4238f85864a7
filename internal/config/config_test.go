package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("jwt.secret", "s")

	cfg, err := fromViper(v)
	if err != nil {
		t.Fatalf("fromViper: %v", err)
	}
	if cfg.Server.Address != ":8080" || cfg.Storage.Driver != "file" || cfg.Auth.Provider != "jwt" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.App.MaxReportSeconds != 300 || cfg.App.ExpiryInterval != 30*time.Second {
		t.Errorf("app defaults = %+v", cfg.App)
	}
	if cfg.App.Timezone != time.UTC {
		t.Errorf("timezone = %v", cfg.App.Timezone)
	}
	if len(cfg.WebSocket.AllowedOrigins) != 0 {
		t.Errorf("websocket origins = %v", cfg.WebSocket.AllowedOrigins)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		set     map[string]any
		wantErr string
	}{
		{"jwt without secret", map[string]any{}, "jwt.secret"},
		{"firebase without project", map[string]any{"auth.provider": "firebase"}, "firebase.project_id"},
		{"unknown provider", map[string]any{"auth.provider": "saml"}, "auth.provider"},
		{"mongo without uri", map[string]any{"jwt.secret": "s", "storage.driver": "mongo"}, "mongo.uri"},
		{"postgres without url", map[string]any{"jwt.secret": "s", "storage.driver": "postgres"}, "database.url"},
		{"unknown driver", map[string]any{"jwt.secret": "s", "storage.driver": "redis"}, "storage.driver"},
		{"bad heartbeat cap", map[string]any{"jwt.secret": "s", "usage.max_report_seconds": 0}, "max_report_seconds"},
		{"valid postgres", map[string]any{"jwt.secret": "s", "storage.driver": "POSTGRES", "database.url": "postgres://x"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			setDefaults(v)
			for k, val := range tt.set {
				v.Set(k, val)
			}
			_, err := fromViper(v)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestBadTimezone(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("jwt.secret", "s")
	v.Set("app.timezone", "Mars/Olympus")
	if _, err := fromViper(v); err == nil {
		t.Fatal("expected timezone error")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "focusguard.yaml")
	body := "jwt:\n  secret: from-file\ncors:\n  allowed_origins: \"https://a.example, https://b.example\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SERVER_ADDRESS", ":9999")
	t.Setenv("APP_TIMEZONE", "Europe/Berlin")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.JWTSecret != "from-file" {
		t.Errorf("secret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Server.Address != ":9999" {
		t.Errorf("address = %q", cfg.Server.Address)
	}
	if cfg.App.Timezone.String() != "Europe/Berlin" {
		t.Errorf("timezone = %v", cfg.App.Timezone)
	}
	if got := cfg.CORS.AllowedOrigins; len(got) != 2 || got[1] != "https://b.example" {
		t.Errorf("cors origins = %v", got)
	}
}

func TestSlogLevel(t *testing.T) {
	for in, want := range map[string]string{"debug": "DEBUG", "warning": "WARN", "error": "ERROR", "": "INFO"} {
		if got := (LogConfig{Level: in}).SlogLevel().String(); got != want {
			t.Errorf("SlogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
