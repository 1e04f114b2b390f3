package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// chdirTemp keeps Load from picking up a .env file in the package directory.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	for _, k := range []string{"MODE", "PORT", "PAIRS", "DB_PATH", "DATABASE_PATH", "API_JWT_SECRET", "USE_MOCK_FEED", "WARMUP_LIMIT"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != ModeServe || cfg.Port != "8080" || cfg.LogLevel != "info" {
		t.Errorf("basic defaults = %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Pairs, []string{"BTCUSDT", "ETHUSDT"}) {
		t.Errorf("pairs = %v", cfg.Pairs)
	}
	if !cfg.UseMockFeed || cfg.JWTSecret != "" {
		t.Errorf("feed/auth defaults = %+v", cfg)
	}
	if cfg.WarmupLimit != 500 || cfg.MaxWindow != 500 || cfg.PollEvery != 5*time.Minute {
		t.Errorf("window defaults = %+v", cfg)
	}
	if cfg.DBPath != "./data/signals.db" {
		t.Errorf("db path = %q", cfg.DBPath)
	}
}

func TestLoadOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("MODE", "Analyze")
	t.Setenv("PAIRS", " btcusdt, ,solusdt ")
	t.Setenv("CANDLES_CSV", "/tmp/candles.csv")
	t.Setenv("WARMUP_LIMIT", "120")
	t.Setenv("MAX_WINDOW", "not-a-number")
	t.Setenv("POLL_INTERVAL", "30s")
	t.Setenv("DB_PATH", "")
	t.Setenv("DATABASE_PATH", "/var/lib/signals.db")
	t.Setenv("API_JWT_SECRET", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != ModeAnalyze || cfg.CandlesCSV != "/tmp/candles.csv" {
		t.Errorf("mode = %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Pairs, []string{"BTCUSDT", "SOLUSDT"}) {
		t.Errorf("pairs = %v", cfg.Pairs)
	}
	if cfg.WarmupLimit != 120 || cfg.MaxWindow != 500 || cfg.PollEvery != 30*time.Second {
		t.Errorf("numbers = %+v", cfg)
	}
	if cfg.DBPath != "/var/lib/signals.db" || cfg.JWTSecret != "s3cret" {
		t.Errorf("db/auth = %+v", cfg)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("PORT", "")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PORT=9999\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv does not override variables that are already set, even empty ones.
	os.Unsetenv("PORT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9999" {
		t.Fatalf("port = %q, want 9999 from .env", cfg.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"serve", Config{Mode: ModeServe, Pairs: []string{"BTCUSDT"}}, true},
		{"analyze csv", Config{Mode: ModeAnalyze, Pairs: []string{"BTCUSDT"}, CandlesCSV: "x.csv", UseMockFeed: true}, true},
		{"analyze exchange", Config{Mode: ModeAnalyze, Pairs: []string{"BTCUSDT"}}, true},
		{"analyze mock", Config{Mode: ModeAnalyze, Pairs: []string{"BTCUSDT"}, UseMockFeed: true}, false},
		{"bad mode", Config{Mode: "trade", Pairs: []string{"BTCUSDT"}}, false},
		{"no pairs", Config{Mode: ModeServe}, false},
		{"negative window", Config{Mode: ModeServe, Pairs: []string{"BTCUSDT"}, MaxWindow: -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err == nil) != tt.ok {
				t.Fatalf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}
