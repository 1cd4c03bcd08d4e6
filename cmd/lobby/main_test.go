package main

import (
	"testing"
	"time"

	"github.com/eleven-am/spark-backend/internal/callsession"
	"github.com/eleven-am/spark-backend/internal/notify"
)

func TestEnvDefaults(t *testing.T) {
	tests := []struct {
		name     string
		interval string
		attempts string
		skew     string
		want     []any
	}{
		{"unset", "", "", "", []any{notify.DefaultPollInterval, notify.DefaultPollMaxAttempts, callsession.DefaultSkewTolerance}},
		{"overridden", "2s", "4", "500ms", []any{2 * time.Second, 4, 500 * time.Millisecond}},
		{"malformed", "soon", "many", "x", []any{notify.DefaultPollInterval, notify.DefaultPollMaxAttempts, callsession.DefaultSkewTolerance}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("POLL_INTERVAL", tt.interval)
			t.Setenv("POLL_MAX_ATTEMPTS", tt.attempts)
			t.Setenv("CLOCK_SKEW_TOLERANCE", tt.skew)

			got := []any{
				envDuration("POLL_INTERVAL", notify.DefaultPollInterval),
				envInt("POLL_MAX_ATTEMPTS", notify.DefaultPollMaxAttempts),
				envDuration("CLOCK_SKEW_TOLERANCE", callsession.DefaultSkewTolerance),
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("value %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDriverConfig_CarriesSkew(t *testing.T) {
	cfg := driverConfig(time.Second)
	if cfg.Session.SkewTolerance != time.Second {
		t.Errorf("SkewTolerance = %v, want 1s", cfg.Session.SkewTolerance)
	}
	if cfg.PollInterval != callsession.DefaultDriverConfig().PollInterval {
		t.Errorf("PollInterval = %v, want the driver default", cfg.PollInterval)
	}
}
