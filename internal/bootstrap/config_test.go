package bootstrap

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"PAIR_SCAN_WIDTH", "CALL_DURATION_BUDGET", "STREAM_KEEPALIVE", "NOTIFIER", "DATABASE_DRIVER"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	if cfg.PairScanWidth != 10 {
		t.Errorf("expected scan width 10, got %d", cfg.PairScanWidth)
	}
	if cfg.CallDurationBudget != 45*time.Second {
		t.Errorf("expected 45s budget, got %v", cfg.CallDurationBudget)
	}
	if cfg.StreamKeepAlive != 15*time.Second {
		t.Errorf("expected 15s keepalive, got %v", cfg.StreamKeepAlive)
	}
	if cfg.Notifier != "redis" || cfg.DatabaseDriver != "postgres" {
		t.Errorf("unexpected backends: %s %s", cfg.Notifier, cfg.DatabaseDriver)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("PAIR_SCAN_WIDTH", "25")
	t.Setenv("CALL_DURATION_BUDGET", "90s")
	t.Setenv("PAIR_RATE_PER_SECOND", "0.5")
	t.Setenv("STALE_CALL_AFTER", "not-a-duration")

	cfg := LoadConfig()
	if cfg.PairScanWidth != 25 {
		t.Errorf("expected 25, got %d", cfg.PairScanWidth)
	}
	if cfg.CallDurationBudget != 90*time.Second {
		t.Errorf("expected 90s, got %v", cfg.CallDurationBudget)
	}
	if cfg.PairRatePerSecond != 0.5 {
		t.Errorf("expected 0.5, got %v", cfg.PairRatePerSecond)
	}
	if cfg.StaleCallAfter != 5*time.Minute {
		t.Errorf("invalid duration should fall back to default, got %v", cfg.StaleCallAfter)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestProvideDatabase_UnknownDriver(t *testing.T) {
	if _, err := ProvideDatabase(&Config{DatabaseDriver: "oracle"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestProvideNotifier_Local(t *testing.T) {
	res, err := ProvideNotifier(&Config{Notifier: "local"}, nil, slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Notifier == nil || res.Counter == nil {
		t.Fatal("expected notifier and counter")
	}
	if _, err := ProvideNotifier(&Config{Notifier: "kafka"}, nil, slog.Default()); err == nil {
		t.Error("expected error for unsupported notifier")
	}
}
