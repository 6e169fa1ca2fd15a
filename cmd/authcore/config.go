package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rutapp/authcore"
	"github.com/rutapp/authcore/database"
)

// envConfig is the process configuration. Engine tuning not listed here
// keeps its DefaultConfig value.
type envConfig struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogDev   bool   `env:"LOG_DEV"`

	DBDriver string `env:"AUTHCORE_DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"AUTHCORE_DB_DSN"    envDefault:"file:authcore.db?_pragma=busy_timeout(5000)"`

	// RedisAddr empty starts an embedded miniredis for smoke and loadtest.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"`

	TokenSecret           string        `env:"AUTHCORE_TOKEN_SECRET"`
	TokenIssuer           string        `env:"AUTHCORE_TOKEN_ISSUER"     envDefault:"authcore"`
	TokenAudience         string        `env:"AUTHCORE_TOKEN_AUDIENCE"   envDefault:"authcore-clients"`
	AccessTTL             time.Duration `env:"AUTHCORE_ACCESS_TTL"       envDefault:"15m"`
	RefreshTTL            time.Duration `env:"AUTHCORE_REFRESH_TTL"      envDefault:"168h"`
	IdentityHashKey       string        `env:"AUTHCORE_IDENTITY_HASH_KEY"`
	IdentityEncryptionKey string        `env:"AUTHCORE_IDENTITY_ENCRYPTION_KEY"`

	FrontendURL    string `env:"AUTHCORE_FRONTEND_URL"    envDefault:"http://localhost:3000"`
	ProductionMode bool   `env:"AUTHCORE_PRODUCTION_MODE" envDefault:"true"`
	RevealMail     bool   `env:"AUTHCORE_REVEAL_MAIL"`
}

func loadEnvConfig() (envConfig, error) {
	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		return envConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c envConfig) database() database.Config {
	return database.Config{
		Driver: c.DBDriver,
		DSN:    c.DBDSN,
	}
}

// engineConfig maps the environment onto the engine configuration. With
// ephemeral set, missing secrets are generated for the lifetime of the
// process; tokens and mappings created that way do not survive a restart.
func (c envConfig) engineConfig(ephemeral bool) (authcore.Config, error) {
	cfg := authcore.DefaultConfig()
	cfg.Token.Issuer = c.TokenIssuer
	cfg.Token.Audience = c.TokenAudience
	cfg.Token.AccessTTL = c.AccessTTL
	cfg.Token.RefreshTTL = c.RefreshTTL
	cfg.PasswordReset.FrontendURL = c.FrontendURL
	cfg.Security.ProductionMode = c.ProductionMode

	secret, hashKey, encKey := c.TokenSecret, c.IdentityHashKey, c.IdentityEncryptionKey
	if ephemeral {
		var err error
		if secret == "" {
			if secret, err = randomHex(32); err != nil {
				return authcore.Config{}, err
			}
		}
		if hashKey == "" {
			if hashKey, err = randomHex(32); err != nil {
				return authcore.Config{}, err
			}
		}
		if encKey == "" {
			if encKey, err = randomHex(32); err != nil {
				return authcore.Config{}, err
			}
		}
	}
	cfg.Token.Secret = []byte(secret)
	cfg.Identity.HashKey = hashKey
	cfg.Identity.EncryptionKey = encKey

	if err := cfg.Validate(); err != nil {
		return authcore.Config{}, err
	}
	return cfg, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
