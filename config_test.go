package authcore

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "test defaults valid",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "short token secret invalid",
			mutate: func(c *Config) {
				c.Token.Secret = []byte("short")
			},
			wantValid: false,
		},
		{
			name: "refresh not longer than access invalid",
			mutate: func(c *Config) {
				c.Token.RefreshTTL = c.Token.AccessTTL
			},
			wantValid: false,
		},
		{
			name: "blank audience invalid",
			mutate: func(c *Config) {
				c.Token.Audience = ""
			},
			wantValid: false,
		},
		{
			name: "short hash key invalid",
			mutate: func(c *Config) {
				c.Identity.HashKey = "too-short"
			},
			wantValid: false,
		},
		{
			name: "non hex encryption key invalid",
			mutate: func(c *Config) {
				c.Identity.EncryptionKey = "zz"
			},
			wantValid: false,
		},
		{
			name: "sub minute lock invalid",
			mutate: func(c *Config) {
				c.Lockout.BlockDuration = 30 * time.Second
			},
			wantValid: false,
		},
		{
			name: "relative frontend url invalid",
			mutate: func(c *Config) {
				c.PasswordReset.FrontendURL = "/reset"
			},
			wantValid: false,
		},
		{
			name: "sub minute otp ttl invalid",
			mutate: func(c *Config) {
				c.OTP.TTL = 10 * time.Second
			},
			wantValid: false,
		},
		{
			name: "blank verified role invalid",
			mutate: func(c *Config) {
				c.Roles.Verified = " "
			},
			wantValid: false,
		},
		{
			name: "audit disabled with zero buffer valid",
			mutate: func(c *Config) {
				c.Audit.Enabled = false
				c.Audit.BufferSize = 0
			},
			wantValid: true,
		},
		{
			name: "node id out of range invalid",
			mutate: func(c *Config) {
				c.Resolver.NodeID = 1024
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected invalid config")
			}
		})
	}
}

func TestDefaultConfigRequiresSecrets(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("defaults without secrets must not validate")
	}
}

func TestBuilderRequiresDependencies(t *testing.T) {
	_, rdb := newTestRedis(t)

	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected error without redis")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without database")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	h := newTestHarness(t, nil)

	b := New().
		WithConfig(testConfig()).
		WithRedis(h.rdb).
		WithDB(h.db).
		WithProfileStore(h.profiles).
		WithMailer(h.mail)
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}
