package config

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// clearEnv unsets every variable Load reads; empty values count as unset
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "SERVER_READ_TIMEOUT", "SERVER_WRITE_TIMEOUT", "SERVER_SHUTDOWN_TIMEOUT", "CORS_ALLOWED_ORIGINS",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
		"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_MAX_LIFETIME", "MIGRATIONS_PATH",
		"JWT_SECRET", "JWT_ISSUER", "JWT_TOKEN_TTL",
		"SAMPLE_DEFAULT_SIZE", "SAMPLE_DEFAULT_GOLD_SIZE", "STATUS_CACHE_TTL",
		"IMPORT_BATCH_SIZE", "MAX_UPLOAD_SIZE", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := &Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  "*",
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           "5432",
			User:           "postgres",
			Password:       "postgres",
			Name:           "crowd_labeling",
			SSLMode:        "disable",
			MaxOpenConns:   25,
			MaxIdleConns:   5,
			MaxLifetime:    5 * time.Minute,
			MigrationsPath: "./migrations",
		},
		Auth: AuthConfig{
			JWTSecret: "s3cret",
			Issuer:    "crowd-labeling-api",
			TokenTTL:  time.Hour,
		},
		Sampling: SamplingConfig{
			DefaultSize:     5,
			DefaultGoldSize: 1,
			StatusCacheTTL:  30 * time.Second,
		},
		Import: ImportConfig{
			BatchSize:     1000,
			MaxUploadSize: 32 * 1024 * 1024,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "9090")
	t.Setenv("SAMPLE_DEFAULT_SIZE", "10")
	t.Setenv("SAMPLE_DEFAULT_GOLD_SIZE", "3")
	t.Setenv("STATUS_CACHE_TTL", "2m")
	t.Setenv("JWT_TOKEN_TTL", "24h")
	t.Setenv("IMPORT_BATCH_SIZE", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	got := struct {
		Port      string
		Sampling  SamplingConfig
		TokenTTL  time.Duration
		BatchSize int
	}{cfg.Server.Port, cfg.Sampling, cfg.Auth.TokenTTL, cfg.Import.BatchSize}

	want := struct {
		Port      string
		Sampling  SamplingConfig
		TokenTTL  time.Duration
		BatchSize int
	}{
		Port:      "9090",
		Sampling:  SamplingConfig{DefaultSize: 10, DefaultGoldSize: 3, StatusCacheTTL: 2 * time.Minute},
		TokenTTL:  24 * time.Hour,
		BatchSize: 1000, // unparsable values fall back to the default
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("overrides mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_RequiresSecret(t *testing.T) {
	clearEnv(t)

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("expected JWT_SECRET error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Host: "localhost", Name: "crowd"},
			Auth:     AuthConfig{JWTSecret: "s", TokenTTL: time.Hour},
			Sampling: SamplingConfig{DefaultSize: 5, DefaultGoldSize: 1},
			Import:   ImportConfig{BatchSize: 100},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing host", func(c *Config) { c.Database.Host = "" }, "DB_HOST"},
		{"missing name", func(c *Config) { c.Database.Name = "" }, "DB_NAME"},
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }, "JWT_SECRET"},
		{"zero ttl", func(c *Config) { c.Auth.TokenTTL = 0 }, "JWT_TOKEN_TTL"},
		{"negative size", func(c *Config) { c.Sampling.DefaultSize = -1 }, "negative"},
		{"gold exceeds size", func(c *Config) { c.Sampling.DefaultGoldSize = 6 }, "SAMPLE_DEFAULT_GOLD_SIZE"},
		{"zero batch", func(c *Config) { c.Import.BatchSize = 0 }, "IMPORT_BATCH_SIZE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestGetDSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: "5433", User: "u", Password: "p", Name: "n", SSLMode: "require"}

	want := "host=db port=5433 user=u password=p dbname=n sslmode=require"
	if got := cfg.GetDSN(); got != want {
		t.Errorf("GetDSN() = %q, want %q", got, want)
	}
}
