package authcore

import (
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config is the complete engine configuration. Start from DefaultConfig and
// fill in the secrets.
type Config struct {
	Token         TokenConfig
	Identity      IdentityConfig
	Lockout       LockoutConfig
	PasswordReset PasswordResetConfig
	OTP           OTPConfig
	Password      PasswordConfig
	Roles         RolesConfig
	Audit         AuditConfig
	Cache         CacheConfig
	Resolver      ResolverConfig
	Security      SecurityConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls access and refresh tokens. Secret derives both the
// signing and the sealing key.
type TokenConfig struct {
	Secret     []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
}

/*
====================================
IDENTITY CONFIG
====================================
*/

// IdentityConfig holds the two independent mapping secrets.
type IdentityConfig struct {
	// HashKey keys the deterministic correlation hash. At least 32 bytes.
	HashKey string
	// EncryptionKey is 64 hex characters (32 bytes) for the mapping AEAD.
	EncryptionKey string
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

type LockoutConfig struct {
	MaxFailedAttempts int
	BlockDuration     time.Duration
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

type PasswordResetConfig struct {
	TokenTTL    time.Duration
	MaxRequests int
	Window      time.Duration
	// FrontendURL is the base of the emailed link: {FrontendURL}/reset-password?token=...
	FrontendURL string
}

/*
====================================
OTP CONFIG
====================================
*/

type OTPConfig struct {
	TTL          time.Duration
	MaxAttempts  int
	MaxResends   int
	ResendWindow time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the argon2id parameters and the length policy.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
	MaxLength   int
}

/*
====================================
ROLES, AUDIT, CACHE, RESOLVER
====================================
*/

type RolesConfig struct {
	// Default is assigned at registration.
	Default string
	// Verified replaces Default once the email is confirmed.
	Verified string
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type CacheConfig struct {
	KeyPrefix string
}

type ResolverConfig struct {
	MaxScanRows int
	NodeID      int64
}

/*
====================================
SECURITY CONFIG
====================================
*/

type SecurityConfig struct {
	// ProductionMode hides account existence in the password-reset flows.
	ProductionMode bool
}

// DefaultConfig returns the production defaults with empty secrets.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			Issuer:     "authcore",
			Audience:   "authcore-clients",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts: 5,
			BlockDuration:     15 * time.Minute,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL:    30 * time.Minute,
			MaxRequests: 3,
			Window:      time.Hour,
			FrontendURL: "http://localhost:3000",
		},
		OTP: OTPConfig{
			TTL:          15 * time.Minute,
			MaxAttempts:  3,
			MaxResends:   3,
			ResendWindow: 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   8,
			MaxLength:   128,
		},
		Roles: RolesConfig{
			Default:  "user",
			Verified: "passenger",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Cache: CacheConfig{
			KeyPrefix: "ac",
		},
		Resolver: ResolverConfig{
			MaxScanRows: 100000,
			NodeID:      1,
		},
		Security: SecurityConfig{
			ProductionMode: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	// Token
	if len(c.Token.Secret) < 32 {
		return errors.New("Token Secret must be at least 32 bytes")
	}
	if c.Token.Issuer == "" || c.Token.Audience == "" {
		return errors.New("Token Issuer and Audience are required")
	}
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("Token RefreshTTL must exceed AccessTTL")
	}

	// Identity
	if len(c.Identity.HashKey) < 32 {
		return errors.New("Identity HashKey must be at least 32 bytes")
	}
	if key, err := hex.DecodeString(c.Identity.EncryptionKey); err != nil || len(key) != 32 {
		return errors.New("Identity EncryptionKey must be 64 hex characters")
	}

	// Lockout
	if c.Lockout.MaxFailedAttempts <= 0 {
		return errors.New("Lockout MaxFailedAttempts must be > 0")
	}
	if c.Lockout.BlockDuration < time.Minute {
		return errors.New("Lockout BlockDuration must be >= 1m")
	}

	// Password reset
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}
	if c.PasswordReset.MaxRequests <= 0 {
		return errors.New("PasswordReset MaxRequests must be > 0")
	}
	if c.PasswordReset.Window <= 0 {
		return errors.New("PasswordReset Window must be > 0")
	}
	if u, err := url.Parse(c.PasswordReset.FrontendURL); err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("PasswordReset FrontendURL must be an absolute URL")
	}

	// OTP
	if c.OTP.TTL < time.Minute {
		return errors.New("OTP TTL must be >= 1m")
	}
	if c.OTP.MaxAttempts <= 0 || c.OTP.MaxResends <= 0 {
		return errors.New("OTP MaxAttempts and MaxResends must be > 0")
	}
	if c.OTP.ResendWindow <= 0 {
		return errors.New("OTP ResendWindow must be > 0")
	}

	// Roles
	if strings.TrimSpace(c.Roles.Default) == "" || strings.TrimSpace(c.Roles.Verified) == "" {
		return errors.New("Roles Default and Verified are required")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	if c.Cache.KeyPrefix == "" {
		return errors.New("Cache KeyPrefix is required")
	}
	if c.Resolver.MaxScanRows <= 0 {
		return errors.New("Resolver MaxScanRows must be > 0")
	}
	if c.Resolver.NodeID < 0 || c.Resolver.NodeID > 1023 {
		return errors.New("Resolver NodeID must be in [0, 1023]")
	}

	return nil
}
