package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// validConfig returns a configuration that passes Validate.
func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080, BaseURL: "http://localhost:8080"},
		Database: DatabaseConfig{Host: "localhost", Port: 5432, Name: "model_registry", User: "registry"},
		Storage: StorageConfig{
			DefaultBackend: "s3",
			S3:             S3StorageConfig{Bucket: "models", Region: "us-east-1"},
		},
		Registry: RegistryConfig{ObjectNamespace: "hf", DefaultExpires: 3600},
		Usage:    UsageConfig{DefaultWindowDays: 30, MaxWindowDays: 366},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
	}
}

// ---------------------------------------------------------------------------
// DatabaseConfig.GetDSN / ServerConfig.GetAddress
// ---------------------------------------------------------------------------

func TestGetDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.example.com",
		Port:     5433,
		User:     "admin",
		Password: "pass",
		Name:     "model_registry",
		SSLMode:  "disable",
	}
	want := "host=db.example.com port=5433 user=admin password=pass dbname=model_registry sslmode=disable"
	if got := cfg.GetDSN(); got != want {
		t.Errorf("GetDSN() = %q, want %q", got, want)
	}
}

func TestGetAddress(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{"default", ServerConfig{Host: "0.0.0.0", Port: 8080}, "0.0.0.0:8080"},
		{"empty host", ServerConfig{Host: "", Port: 8080}, ":8080"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetAddress(); got != tt.want {
				t.Errorf("GetAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAdminConfigured(t *testing.T) {
	if (&AuthConfig{}).AdminConfigured() {
		t.Error("empty auth config should not report an admin token")
	}
	if !(&AuthConfig{AdminToken: "t"}).AdminConfigured() {
		t.Error("plain admin token should count as configured")
	}
	if !(&AuthConfig{AdminTokenHash: "$2a$10$abc"}).AdminConfigured() {
		t.Error("admin token hash should count as configured")
	}
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"missing db host", func(c *Config) { c.Database.Host = "" }, "database.host"},
		{"unknown backend", func(c *Config) { c.Storage.DefaultBackend = "ftp" }, "invalid storage backend"},
		{"s3 without bucket", func(c *Config) { c.Storage.S3.Bucket = "" }, "storage.s3.bucket"},
		{"gcs without bucket", func(c *Config) { c.Storage.DefaultBackend = "gcs" }, "storage.gcs.bucket"},
		{"azure incomplete", func(c *Config) { c.Storage.DefaultBackend = "azure" }, "storage.azure"},
		{"local without path", func(c *Config) { c.Storage.DefaultBackend = "local" }, "storage.local.base_path"},
		{"local without secret", func(c *Config) {
			c.Storage.DefaultBackend = "local"
			c.Storage.Local.BasePath = "/tmp/models"
		}, "storage.local.url_secret"},
		{"empty namespace", func(c *Config) { c.Registry.ObjectNamespace = "" }, "object_namespace"},
		{"expires too low", func(c *Config) { c.Registry.DefaultExpires = 59 }, "default_expires"},
		{"expires too high", func(c *Config) { c.Registry.DefaultExpires = 86401 }, "default_expires"},
		{"export without interval", func(c *Config) {
			c.Registry.ManifestExport.Enabled = true
		}, "manifest_export.interval"},
		{"window days zero", func(c *Config) { c.Usage.DefaultWindowDays = 0 }, "default_window_days"},
		{"max window below default", func(c *Config) { c.Usage.MaxWindowDays = 7 }, "max_window_days"},
		{"rate limit without rpm", func(c *Config) { c.Security.RateLimiting.Enabled = true }, "requests_per_minute"},
		{"tls without cert", func(c *Config) { c.Security.TLS.Enabled = true }, "cert_file"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "invalid logging level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

// writeTempConfig creates a temp YAML file and registers a cleanup to remove it.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "config-test-*.yaml")
	if err != nil {
		t.Fatal("CreateTemp:", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	if _, err := f.WriteString(content); err != nil {
		t.Fatal("WriteString:", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_WithConfigFile(t *testing.T) {
	const content = `
server:
  port: 9999
database:
  host: "dbhost"
storage:
  default_backend: "local"
  local:
    base_path: "./test-storage"
    url_secret: "test-secret"
registry:
  object_namespace: "mirror"
  manifest_export:
    enabled: true
    interval: "15m"
logging:
  level: "debug"
`
	cfg, err := Load(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Database.Host != "dbhost" {
		t.Errorf("Database.Host = %q, want dbhost", cfg.Database.Host)
	}
	if cfg.Registry.ObjectNamespace != "mirror" {
		t.Errorf("Registry.ObjectNamespace = %q, want mirror", cfg.Registry.ObjectNamespace)
	}
	if cfg.Registry.ManifestExport.Interval != 15*time.Minute {
		t.Errorf("ManifestExport.Interval = %v, want 15m", cfg.Registry.ManifestExport.Interval)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, "logging:\n  level: info\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("default server port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Registry.ObjectNamespace != "hf" {
		t.Errorf("default namespace = %q, want hf", cfg.Registry.ObjectNamespace)
	}
	if cfg.Registry.DefaultExpires != 3600 {
		t.Errorf("default expires = %d, want 3600", cfg.Registry.DefaultExpires)
	}
	if len(cfg.Registry.OverrideTargets) != 2 {
		t.Errorf("default override targets = %v, want [minio s3]", cfg.Registry.OverrideTargets)
	}
	if cfg.Usage.DefaultWindowDays != 30 {
		t.Errorf("default usage window = %d, want 30", cfg.Usage.DefaultWindowDays)
	}
	if !cfg.Auth.SelfRegistration {
		t.Error("self registration should default to enabled")
	}
	if cfg.Auth.APIKeys.Prefix != "sk-" {
		t.Errorf("api key prefix = %q, want sk-", cfg.Auth.APIKeys.Prefix)
	}
	if cfg.Database.ConnectAttempts != 5 || cfg.Database.ConnectBackoff != 2*time.Second {
		t.Errorf("connect retry = %d x %v, want 5 x 2s", cfg.Database.ConnectAttempts, cfg.Database.ConnectBackoff)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MRG_DATABASE_HOST", "env-db")
	t.Setenv("MRG_AUTH_ADMIN_TOKEN", "${CONFIG_TEST_ADMIN}")
	t.Setenv("CONFIG_TEST_ADMIN", "expanded-admin")

	cfg, err := Load(writeTempConfig(t, "database:\n  host: file-db\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Host != "env-db" {
		t.Errorf("Database.Host = %q, want env-db", cfg.Database.Host)
	}
	if cfg.Auth.AdminToken != "expanded-admin" {
		t.Errorf("AdminToken = %q, want expanded-admin", cfg.Auth.AdminToken)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeTempConfig(t, "server: [unclosed"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	_, err := Load(writeTempConfig(t, "registry:\n  default_expires: 10\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Fatalf("Load() = %v, want invalid configuration error", err)
	}
}
