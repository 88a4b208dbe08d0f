package config

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Deploy.MaxAttempts != 30 {
		t.Errorf("Deploy.MaxAttempts = %d, want 30", cfg.Deploy.MaxAttempts)
	}
	if cfg.Deploy.Interval() != time.Second {
		t.Errorf("Deploy.Interval() = %v, want 1s", cfg.Deploy.Interval())
	}
	if cfg.Listen.Addr() != "127.0.0.1:8080" {
		t.Errorf("Listen.Addr() = %q", cfg.Listen.Addr())
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("KINTONE_BASE_URL", "https://example.cybozu.com")
	t.Setenv("KINTONE_USERNAME", "admin")
	t.Setenv("KINTONE_PASSWORD", "secret")
	t.Setenv("DEPLOY_MAX_ATTEMPTS", "5")
	t.Setenv("DEPLOY_INTERVAL_MS", "250")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	if cfg.Kintone.BaseURL != "https://example.cybozu.com" {
		t.Errorf("Kintone.BaseURL = %q", cfg.Kintone.BaseURL)
	}
	if cfg.Deploy.MaxAttempts != 5 {
		t.Errorf("Deploy.MaxAttempts = %d, want 5", cfg.Deploy.MaxAttempts)
	}
	if cfg.Deploy.Interval() != 250*time.Millisecond {
		t.Errorf("Deploy.Interval() = %v, want 250ms", cfg.Deploy.Interval())
	}
	if err := cfg.Kintone.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestKintoneConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		cfg         KintoneConfig
		expectError bool
	}{
		{"password pair", KintoneConfig{BaseURL: "https://x.cybozu.com", Username: "u", Password: "p"}, false},
		{"api token", KintoneConfig{BaseURL: "https://x.cybozu.com", APIToken: "tok"}, false},
		{"missing base url", KintoneConfig{Username: "u", Password: "p"}, true},
		{"missing password", KintoneConfig{BaseURL: "https://x.cybozu.com", Username: "u"}, true},
		{"no credentials", KintoneConfig{BaseURL: "https://x.cybozu.com"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.expectError && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}
