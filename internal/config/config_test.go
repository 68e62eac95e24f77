package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "HOUSE_EDGE_PERCENT")
	unsetEnvWithCleanup(t, "MIN_RESERVE_PERCENT")
	unsetEnvWithCleanup(t, "MAX_PAYOUT_PERCENT")
	unsetEnvWithCleanup(t, "MAX_RISK_PERCENT")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.HouseEdgePercent != 5 {
		t.Fatalf("expected default HouseEdgePercent 5, got %d", cfg.HouseEdgePercent)
	}
	if cfg.MinReservePercent != 20 {
		t.Fatalf("expected default MinReservePercent 20, got %d", cfg.MinReservePercent)
	}
	if cfg.MaxPayoutPercent != 10 {
		t.Fatalf("expected default MaxPayoutPercent 10, got %d", cfg.MaxPayoutPercent)
	}
	if cfg.MaxRiskPercent != 50 {
		t.Fatalf("expected default MaxRiskPercent 50, got %d", cfg.MaxRiskPercent)
	}
}

func TestLoadConfig_CoercesOutOfRangePercents(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "HOUSE_EDGE_PERCENT", "-3")
	setEnvWithCleanup(t, "MAX_PAYOUT_PERCENT", "0")
	setEnvWithCleanup(t, "MAX_RISK_PERCENT", "75")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.HouseEdgePercent != 0 {
		t.Fatalf("expected negative house edge coerced to 0, got %d", cfg.HouseEdgePercent)
	}
	if cfg.MaxPayoutPercent != 10 {
		t.Fatalf("expected non-positive max payout replaced with default 10, got %d", cfg.MaxPayoutPercent)
	}
	if cfg.MaxRiskPercent != 50 {
		t.Fatalf("expected out-of-range max risk replaced with 50, got %d", cfg.MaxRiskPercent)
	}
}

func TestLoadConfig_PortEnvOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8080")
	setEnvWithCleanup(t, "PORT", "9090")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Fatalf("expected PORT to override SERVER_PORT, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_TrimsPaymentLinkBaseURL(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "PAYMENT_LINK_BASE_URL", "https://pay.example.com/")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PaymentLinkBaseURL != "https://pay.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.PaymentLinkBaseURL)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
