package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("RELEVANCE_GRPC_PORT", "9090")
	os.Setenv("RELEVANCE_LOG_LEVEL", "debug")
	os.Setenv("RELEVANCE_RUNNER_WORKERS", "4")
	defer func() {
		os.Unsetenv("RELEVANCE_GRPC_PORT")
		os.Unsetenv("RELEVANCE_LOG_LEVEL")
		os.Unsetenv("RELEVANCE_RUNNER_WORKERS")
	}()

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
	}
	if cfg.Runner.Workers != 4 {
		t.Errorf("Runner.Workers = %d, want 4", cfg.Runner.Workers)
	}
	if !cfg.Runner.Enabled {
		t.Error("Runner.Enabled = false, want enabled by default")
	}
}

func TestWorkbenchSwitch(t *testing.T) {
	t.Setenv("RELEVANCE_WORKBENCH_ENABLED", "false")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Runner.Enabled {
		t.Error("Runner.Enabled = true, want false from environment")
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("runner:\n  enabled: false\n"), 0644); err != nil {
		t.Fatal(err)
	}
	os.Unsetenv("RELEVANCE_WORKBENCH_ENABLED")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Runner.Enabled {
		t.Error("Runner.Enabled = true, want false from file")
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
host: "127.0.0.1"
port: 7000
storage:
  type: badger
  path: /var/lib/relevance
lock:
  type: redis
  redis_url: "redis://cache:6379/2"
search:
  engine: http
  url: "http://opensearch:9200"
  timeout: 5s
judgment:
  max_rank: 10
  rounding_digits: 2
hybrid:
  normalizations: [min_max]
  combinations: [arithmetic_mean]
  weight_step: 0.25
log:
  level: warn
  format: json
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Host != "127.0.0.1" {
		t.Errorf("Host = %s, want 127.0.0.1", cfg.Host)
	}
	if cfg.Port != 7000 {
		t.Errorf("Port = %d, want 7000", cfg.Port)
	}
	if cfg.Storage.Type != "badger" || cfg.Storage.Path != "/var/lib/relevance" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Lock.Type != "redis" || cfg.Lock.RedisURL != "redis://cache:6379/2" {
		t.Errorf("Lock = %+v", cfg.Lock)
	}
	if cfg.Search.Timeout != 5*time.Second {
		t.Errorf("Search.Timeout = %v, want 5s", cfg.Search.Timeout)
	}
	if cfg.Judgment.MaxRank != 10 || cfg.Judgment.RoundingDigits != 2 {
		t.Errorf("Judgment = %+v", cfg.Judgment)
	}
	if len(cfg.Hybrid.Normalizations) != 1 || cfg.Hybrid.WeightStep != 0.25 {
		t.Errorf("Hybrid = %+v", cfg.Hybrid)
	}
	// Untouched sections keep defaults.
	if cfg.Runner.Workers != 16 {
		t.Errorf("Runner.Workers = %d, want default 16", cfg.Runner.Workers)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load() with a missing file should fail")
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid port",
			modify:  func(c *Config) { c.Port = 0 },
			wantErr: true,
		},
		{
			name:    "metrics port out of range",
			modify:  func(c *Config) { c.MetricsPort = 70000 },
			wantErr: true,
		},
		{
			name:    "metrics port clashes with grpc port",
			modify:  func(c *Config) { c.MetricsPort = c.Port },
			wantErr: true,
		},
		{
			name:    "metrics disabled",
			modify:  func(c *Config) { c.MetricsPort = 0 },
			wantErr: false,
		},
		{
			name:    "invalid storage type",
			modify:  func(c *Config) { c.Storage.Type = "postgres" },
			wantErr: true,
		},
		{
			name: "file storage without path",
			modify: func(c *Config) {
				c.Storage.Type = "file"
				c.Storage.Path = ""
			},
			wantErr: true,
		},
		{
			name:    "invalid lock type",
			modify:  func(c *Config) { c.Lock.Type = "zookeeper" },
			wantErr: true,
		},
		{
			name:    "invalid engine",
			modify:  func(c *Config) { c.Search.Engine = "solr" },
			wantErr: true,
		},
		{
			name: "kafka bus without brokers",
			modify: func(c *Config) {
				c.Bus.Type = "kafka"
				c.Bus.KafkaBrokers = " "
			},
			wantErr: true,
		},
		{
			name:    "zero workers",
			modify:  func(c *Config) { c.Runner.Workers = 0 },
			wantErr: true,
		},
		{
			name:    "max rank zero",
			modify:  func(c *Config) { c.Judgment.MaxRank = 0 },
			wantErr: true,
		},
		{
			name:    "rounding digits out of range",
			modify:  func(c *Config) { c.Judgment.RoundingDigits = 11 },
			wantErr: true,
		},
		{
			name:    "weight step out of range",
			modify:  func(c *Config) { c.Hybrid.WeightStep = 0 },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.Log.Level = "invalid" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			setDefaults(cfg)
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestListenAddrs(t *testing.T) {
	cfg := &Config{Host: "localhost", Port: 50061, MetricsPort: 9091}

	if addr := cfg.GRPCAddr(); addr != "localhost:50061" {
		t.Errorf("GRPCAddr() = %s, want localhost:50061", addr)
	}
	if addr := cfg.MetricsAddr(); addr != "localhost:9091" {
		t.Errorf("MetricsAddr() = %s, want localhost:9091", addr)
	}
}
