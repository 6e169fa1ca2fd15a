package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rutapp/authcore/internal"
)

const minSecretBytes = 32

// ErrTokenInvalid covers malformed, forged, expired and wrong-type tokens.
var ErrTokenInvalid = errors.New("token invalid")

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

// Config defines token lifetimes, key material and the fixed issuer/audience.
type Config struct {
	Secret     []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
	Clock      clockwork.Clock
}

// AccessClaims is the payload of an access token. Subject is the business id.
type AccessClaims struct {
	Type       TokenType `json:"typ"`
	Role       string    `json:"role"`
	Verified   bool      `json:"verified"`
	Alias      string    `json:"alias,omitempty"`
	PublicID   string    `json:"pid,omitempty"`
	IssuedAtMs int64     `json:"iat_ms"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. AccessJTI points at the
// access token issued in the same pair.
type RefreshClaims struct {
	Type       TokenType `json:"typ"`
	AccessJTI  string    `json:"ajti"`
	IssuedAtMs int64     `json:"iat_ms"`
	jwt.RegisteredClaims
}

// AccessInput carries the display claims of a new access token.
type AccessInput struct {
	Subject  string
	Role     string
	Verified bool
	Alias    string
	PublicID string
}

// Manager is safe for concurrent use.
type Manager struct {
	config Config
	keys   *keys
}

// NewManager validates cfg and derives the signing and sealing keys.
func NewManager(cfg Config) (*Manager, error) {
	switch {
	case len(cfg.Secret) < minSecretBytes:
		return nil, fmt.Errorf("token secret must be at least %d bytes", minSecretBytes)
	case cfg.Issuer == "":
		return nil, errors.New("token issuer is required")
	case cfg.Audience == "":
		return nil, errors.New("token audience is required")
	case cfg.AccessTTL <= 0:
		return nil, errors.New("invalid access TTL configuration")
	case cfg.RefreshTTL <= cfg.AccessTTL:
		return nil, errors.New("refresh TTL must exceed access TTL")
	case cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute:
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	k, err := deriveKeys(cfg.Secret)
	if err != nil {
		return nil, err
	}
	return &Manager{config: cfg, keys: k}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// CreateAccess issues a sealed access token.
func (m *Manager) CreateAccess(in AccessInput) (string, *AccessClaims, error) {
	now := m.config.Clock.Now()
	claims := &AccessClaims{
		Type:             TypeAccess,
		Role:             in.Role,
		Verified:         in.Verified,
		Alias:            in.Alias,
		PublicID:         in.PublicID,
		IssuedAtMs:       now.UnixMilli(),
		RegisteredClaims: m.registered(in.Subject, now, m.config.AccessTTL),
	}

	token, err := m.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// CreateRefresh issues a sealed refresh token bound to accessJTI.
func (m *Manager) CreateRefresh(subject, accessJTI string) (string, *RefreshClaims, error) {
	now := m.config.Clock.Now()
	claims := &RefreshClaims{
		Type:             TypeRefresh,
		AccessJTI:        accessJTI,
		IssuedAtMs:       now.UnixMilli(),
		RegisteredClaims: m.registered(subject, now, m.config.RefreshTTL),
	}

	token, err := m.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// ParseAccess opens and validates an access token.
func (m *Manager) ParseAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.Type != TypeAccess {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrTokenInvalid, claims.Type)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrTokenInvalid)
	}
	return claims, nil
}

// ParseRefresh opens and validates a refresh token.
func (m *Manager) ParseRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.Type != TypeRefresh {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrTokenInvalid, claims.Type)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrTokenInvalid)
	}
	return claims, nil
}

func (m *Manager) registered(subject string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		ID:        internal.NewTokenID(),
		Issuer:    m.config.Issuer,
		Audience:  jwt.ClaimStrings{m.config.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (m *Manager) sign(claims jwt.Claims) (string, error) {
	jws, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.keys.sign)
	if err != nil {
		return "", err
	}
	return m.keys.seal(jws)
}

func (m *Manager) parse(token string, claims jwt.Claims) error {
	jws, err := m.keys.open(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithLeeway(m.config.Leeway),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.config.Clock.Now),
	)
	parsed, err := parser.ParseWithClaims(jws, claims, func(t *jwt.Token) (interface{}, error) {
		return m.keys.sign, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return ErrTokenInvalid
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return nil
}
