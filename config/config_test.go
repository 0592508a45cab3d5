package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Budget.WindowMS != 60000 {
		t.Errorf("Budget.WindowMS = %d, want 60000", cfg.Budget.WindowMS)
	}
	if cfg.Budget.Window() != time.Minute {
		t.Errorf("Budget.Window() = %v, want 1m", cfg.Budget.Window())
	}
	if cfg.Budget.UserLimit != 60 {
		t.Errorf("Budget.UserLimit = %d, want 60", cfg.Budget.UserLimit)
	}
	if cfg.Budget.GlobalLimit != 1000 {
		t.Errorf("Budget.GlobalLimit = %d, want 1000", cfg.Budget.GlobalLimit)
	}
	if cfg.Store.Backend != BackendMemory {
		t.Errorf("Store.Backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Store.Sweep.MaxIdleMS != 0 {
		t.Errorf("Store.Sweep.MaxIdleMS = %d, want 0", cfg.Store.Sweep.MaxIdleMS)
	}
	if cfg.Generator.MaxResponseBytes != 1<<20 {
		t.Errorf("Generator.MaxResponseBytes = %d", cfg.Generator.MaxResponseBytes)
	}
	if cfg.Service.Name != "mealgen" {
		t.Errorf("Service.Name = %q, want mealgen", cfg.Service.Name)
	}
}

func TestDefault_MatchesLoad(t *testing.T) {
	cfg := Default()
	if cfg.Budget.UserLimit != 60 || cfg.Store.Redis.Prefix != "mealgen:cache:" {
		t.Errorf("Default() = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MEALGEN_BUDGET_WINDOW_MS", "30000")
	t.Setenv("MEALGEN_BUDGET_USER_LIMIT", "5")
	t.Setenv("MEALGEN_BUDGET_GLOBAL_LIMIT", "50")
	t.Setenv("MEALGEN_OBSERVE_LOGGING_LEVEL", "debug")
	t.Setenv("MEALGEN_STORE_SWEEP_MAX_IDLE_MS", "3600000")

	cfg, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Budget.WindowMS != 30000 {
		t.Errorf("Budget.WindowMS = %d, want 30000", cfg.Budget.WindowMS)
	}
	if cfg.Budget.UserLimit != 5 {
		t.Errorf("Budget.UserLimit = %d, want 5", cfg.Budget.UserLimit)
	}
	if cfg.Budget.GlobalLimit != 50 {
		t.Errorf("Budget.GlobalLimit = %d, want 50", cfg.Budget.GlobalLimit)
	}
	if cfg.Observe.Logging.Level != "debug" {
		t.Errorf("Observe.Logging.Level = %q, want debug", cfg.Observe.Logging.Level)
	}
	if cfg.Store.Sweep.MaxIdleMS != 3600000 {
		t.Errorf("Store.Sweep.MaxIdleMS = %d", cfg.Store.Sweep.MaxIdleMS)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "mealgen.yaml", `
service:
  name: mealgen-test
budget:
  user_limit: 3
store:
  backend: sqlite
  dsn: "file::memory:"
generator:
  endpoint: http://generator.local/v1/meals
  max_failures: 2
observe:
  metrics:
    enabled: true
    exporter: prometheus
`)

	cfg, err := Load(LoadOptions{File: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.Name != "mealgen-test" {
		t.Errorf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.Budget.UserLimit != 3 {
		t.Errorf("Budget.UserLimit = %d, want 3", cfg.Budget.UserLimit)
	}
	if cfg.Budget.GlobalLimit != 1000 {
		t.Errorf("Budget.GlobalLimit = %d, want default 1000", cfg.Budget.GlobalLimit)
	}
	if cfg.Store.Backend != BackendSQLite || cfg.Store.DSN != "file::memory:" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Generator.MaxFailures != 2 {
		t.Errorf("Generator.MaxFailures = %d, want 2", cfg.Generator.MaxFailures)
	}
	if !cfg.Observe.Metrics.Enabled || cfg.Observe.Metrics.Exporter != "prometheus" {
		t.Errorf("Observe.Metrics = %+v", cfg.Observe.Metrics)
	}
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	path := writeFile(t, "mealgen.yaml", "budget:\n  user_limit: 3\n")
	t.Setenv("MEALGEN_BUDGET_USER_LIMIT", "7")

	cfg, err := Load(LoadOptions{File: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Budget.UserLimit != 7 {
		t.Errorf("Budget.UserLimit = %d, want 7", cfg.Budget.UserLimit)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(LoadOptions{File: filepath.Join(t.TempDir(), "absent.yaml")})
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestLoad_EnvFile(t *testing.T) {
	// Register cleanup for variables godotenv will set.
	t.Setenv("MEALGEN_BUDGET_GLOBAL_LIMIT", "")
	os.Unsetenv("MEALGEN_BUDGET_GLOBAL_LIMIT")
	t.Setenv("MEALGEN_TEST_PG_PASSWORD", "")
	os.Unsetenv("MEALGEN_TEST_PG_PASSWORD")

	envFile := writeFile(t, ".env", "MEALGEN_BUDGET_GLOBAL_LIMIT=250\nMEALGEN_TEST_PG_PASSWORD=s3cret\n")
	t.Setenv("MEALGEN_STORE_BACKEND", "postgres")
	t.Setenv("MEALGEN_STORE_DSN", "postgres://mealgen:${MEALGEN_TEST_PG_PASSWORD}@db/mealgen")

	cfg, err := Load(LoadOptions{EnvFile: envFile})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Budget.GlobalLimit != 250 {
		t.Errorf("Budget.GlobalLimit = %d, want 250", cfg.Budget.GlobalLimit)
	}
	if cfg.Store.DSN != "postgres://mealgen:s3cret@db/mealgen" {
		t.Errorf("Store.DSN = %q", cfg.Store.DSN)
	}
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	if _, err := Load(LoadOptions{EnvFile: filepath.Join(t.TempDir(), ".env")}); err != nil {
		t.Errorf("Load() error = %v", err)
	}
}

func TestLoad_StrictExpansion(t *testing.T) {
	t.Setenv("MEALGEN_GENERATOR_API_KEY", "${MEALGEN_TEST_UNSET_KEY}")

	_, err := Load(LoadOptions{})
	if !errors.Is(err, ErrMissingEnv) {
		t.Fatalf("Load() error = %v, want ErrMissingEnv", err)
	}
	if !strings.Contains(err.Error(), "MEALGEN_TEST_UNSET_KEY") {
		t.Errorf("error %q does not name the variable", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "mongo" }},
		{"sqlite without dsn", func(c *Config) { c.Store.Backend = BackendSQLite }},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = BackendPostgres }},
		{"redis without address", func(c *Config) {
			c.Store.Backend = BackendRedis
			c.Store.Redis.Address = ""
		}},
		{"negative window", func(c *Config) { c.Budget.WindowMS = -1 }},
		{"negative user limit", func(c *Config) { c.Budget.UserLimit = -5 }},
		{"negative timeout", func(c *Config) { c.Generator.TimeoutMS = -1 }},
		{"negative response cap", func(c *Config) { c.Generator.MaxResponseBytes = -1 }},
		{"bad metrics exporter", func(c *Config) {
			c.Observe.Metrics.Enabled = true
			c.Observe.Metrics.Exporter = "graphite"
		}},
		{"bad log level", func(c *Config) { c.Observe.Logging.Level = "verbose" }},
		{"empty service name", func(c *Config) { c.Service.Name = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestValidate_ZeroLimitsAllowed(t *testing.T) {
	cfg := Default()
	cfg.Budget.WindowMS = 0
	cfg.Budget.UserLimit = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestObserveConfig(t *testing.T) {
	cfg := Default()
	cfg.Service.Version = "1.2.3"
	cfg.Observe.Logging.File = "/var/log/mealgen.log"

	obs := cfg.ObserveConfig()
	if obs.ServiceName != "mealgen" || obs.Version != "1.2.3" {
		t.Errorf("ObserveConfig() service = %q %q", obs.ServiceName, obs.Version)
	}
	if obs.Logging.File != "/var/log/mealgen.log" || obs.Logging.MaxSizeMB != 100 {
		t.Errorf("ObserveConfig().Logging = %+v", obs.Logging)
	}
}

func TestExpandEnvStrict(t *testing.T) {
	t.Setenv("PRESENT", "ok")
	t.Setenv("X", "y")

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "plain", want: "plain"},
		{in: "a=${PRESENT}", want: "a=ok"},
		{in: "$$${X}", want: "$y"},
		{in: "a=${PRESENT} b=${MEALGEN_TEST_MISSING}", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ExpandEnvStrict(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrMissingEnv) {
				t.Errorf("ExpandEnvStrict(%q) error = %v, want ErrMissingEnv", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ExpandEnvStrict(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ExpandEnvStrict(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
