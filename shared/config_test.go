package shared

import (
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("SD_TEST_STR", "value")
	t.Setenv("SD_TEST_INT", "42")
	t.Setenv("SD_TEST_BAD_INT", "forty-two")
	t.Setenv("SD_TEST_BOOL", "true")

	if got := GetEnvOrDefault("SD_TEST_STR", "x"); got != "value" {
		t.Errorf("expected value, got %q", got)
	}
	if got := GetEnvOrDefault("SD_TEST_UNSET", "x"); got != "x" {
		t.Errorf("expected default, got %q", got)
	}
	if got := GetEnvIntOrDefault("SD_TEST_INT", 1); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	if got := GetEnvIntOrDefault("SD_TEST_BAD_INT", 7); got != 7 {
		t.Errorf("unparsable ints fall back to the default, got %d", got)
	}
	if !GetEnvBoolOrDefault("SD_TEST_BOOL", false) {
		t.Error("expected true")
	}
}

func TestLoadProverConfig(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("MAX_RECV_DATA", "32768")
	t.Setenv("NOTARY_TIMEOUT_SECONDS", "5")

	cfg, _ := LoadProverConfig()
	if cfg.ListenAddr != ":9999" || cfg.MaxRecvData != 32768 || cfg.NotaryTimeout != 5*time.Second {
		t.Errorf("environment not applied: %+v", cfg)
	}
	if cfg.MaxSentData != 4096 {
		t.Errorf("expected default sent ceiling, got %d", cfg.MaxSentData)
	}
}
