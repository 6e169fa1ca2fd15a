package authcore

import (
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rutapp/authcore/identity"
	internalaudit "github.com/rutapp/authcore/internal/audit"
	"github.com/rutapp/authcore/internal/authdb"
	"github.com/rutapp/authcore/internal/limiters"
	"github.com/rutapp/authcore/internal/stores"
	"github.com/rutapp/authcore/jwt"
	"github.com/rutapp/authcore/otp"
	"github.com/rutapp/authcore/password"
	"github.com/rutapp/authcore/session"
	"go.uber.org/zap"
)

// Builder assembles an Engine. Configure it once during start-up; a
// Builder can build only one Engine.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	db     *sqlx.DB

	profiles  ProfileStore
	mailer    Mailer
	auditSink AuditSink
	logger    *zap.Logger
	clock     clockwork.Clock

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the cache store for tokens, codes and reset state.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDB sets the relational store holding auth identities, mappings and,
// through the profile store, business identities. All three must live in
// the same database so registration can be one transaction.
func (b *Builder) WithDB(db *sqlx.DB) *Builder {
	b.db = db
	return b
}

func (b *Builder) WithProfileStore(store ProfileStore) *Builder {
	b.profiles = store
	return b
}

func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the operational logger. Defaults to zap.NewNop.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces the wall clock, typically with a clockwork.FakeClock.
func (b *Builder) WithClock(clock clockwork.Clock) *Builder {
	b.clock = clock
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.db == nil {
		return nil, errors.New("database required")
	}
	if b.profiles == nil {
		return nil, errors.New("profile store required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := b.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	// -------- IDENTITY --------
	hasher, err := identity.NewHasher(cfg.Identity.HashKey, cfg.Identity.EncryptionKey)
	if err != nil {
		return nil, err
	}
	resolver, err := identity.NewResolver(b.db, hasher, identity.ResolverConfig{
		MaxScanRows: cfg.Resolver.MaxScanRows,
		NodeID:      cfg.Resolver.NodeID,
	}, logger)
	if err != nil {
		return nil, err
	}

	// -------- TOKENS --------
	tokens, err := jwt.NewManager(jwt.Config{
		Secret:     cloneBytes(cfg.Token.Secret),
		Issuer:     cfg.Token.Issuer,
		Audience:   cfg.Token.Audience,
		AccessTTL:  cfg.Token.AccessTTL,
		RefreshTTL: cfg.Token.RefreshTTL,
		Leeway:     cfg.Token.Leeway,
		Clock:      clock,
	})
	if err != nil {
		return nil, err
	}

	// -------- OTP --------
	otpEngine, err := otp.NewEngine(b.redis, otp.Config{
		TTL:          cfg.OTP.TTL,
		MaxAttempts:  cfg.OTP.MaxAttempts,
		MaxResends:   cfg.OTP.MaxResends,
		ResendWindow: cfg.OTP.ResendWindow,
		KeyPrefix:    cfg.Cache.KeyPrefix,
	})
	if err != nil {
		return nil, err
	}

	passwords, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		MinLength:   cfg.Password.MinLength,
		MaxLength:   cfg.Password.MaxLength,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cfg,
		db:         b.db,
		identities: authdb.NewRepository(b.db),
		resolver:   resolver,
		otp:        otpEngine,
		tokens:     tokens,
		sessions:   session.NewStore(b.redis, cfg.Cache.KeyPrefix),
		resets:     stores.NewPasswordResetStore(b.redis, cfg.Cache.KeyPrefix),
		resetLimiter: limiters.NewResetRequestLimiter(b.redis, limiters.ResetRequestConfig{
			MaxRequests: cfg.PasswordReset.MaxRequests,
			Window:      cfg.PasswordReset.Window,
			KeyPrefix:   cfg.Cache.KeyPrefix,
		}),
		passwords: passwords,
		profiles:  b.profiles,
		mailer:    b.mailer,
		clock:     clock,
		logger:    logger.Named("authcore"),
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink, logger)

	b.built = true

	return engine, nil
}
