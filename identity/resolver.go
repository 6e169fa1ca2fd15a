package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jmoiron/sqlx"
	"github.com/rutapp/authcore/database"
	"go.uber.org/zap"
)

const defaultMaxScanRows = 100000

var (
	// ErrNotFound is returned when no mapping row matches.
	ErrNotFound = errors.New("identity: mapping not found")
	// ErrConflict is returned when a mapping with the same hash already exists.
	ErrConflict = errors.New("identity: mapping already exists")
	// ErrScanLimit is returned when a scan reaches MaxScanRows without a match.
	ErrScanLimit = errors.New("identity: mapping scan limit reached")
)

// Mapping is one row of identity_mappings.
type Mapping struct {
	ID                  string    `db:"id"`
	AuthIDEncrypted     string    `db:"auth_id_encrypted"`
	BusinessIDEncrypted string    `db:"business_id_encrypted"`
	DeterministicHash   string    `db:"deterministic_hash"`
	CreatedAt           time.Time `db:"created_at"`
}

// ResolvedPair is a decrypted mapping.
type ResolvedPair struct {
	AuthID     string
	BusinessID string
	Hash       string
}

// ResolverConfig tunes the resolver.
type ResolverConfig struct {
	// MaxScanRows bounds linear resolution. Zero selects the default.
	MaxScanRows int
	// NodeID is the snowflake node used for mapping row ids (0-1023).
	NodeID int64
}

// Resolver owns the identity_mappings table.
type Resolver struct {
	db          *sqlx.DB
	hasher      *Hasher
	node        *snowflake.Node
	maxScanRows int
	logger      *zap.Logger
}

// NewResolver builds a resolver over db. A nil logger discards output.
func NewResolver(db *sqlx.DB, hasher *Hasher, cfg ResolverConfig, logger *zap.Logger) (*Resolver, error) {
	if db == nil {
		return nil, errors.New("identity: database required")
	}
	if hasher == nil {
		return nil, errors.New("identity: hasher required")
	}
	if cfg.MaxScanRows < 0 {
		return nil, errors.New("identity: MaxScanRows must be >= 0")
	}
	if cfg.MaxScanRows == 0 {
		cfg.MaxScanRows = defaultMaxScanRows
	}

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("identity: snowflake node: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Resolver{
		db:          db,
		hasher:      hasher,
		node:        node,
		maxScanRows: cfg.MaxScanRows,
		logger:      logger.Named("identity"),
	}, nil
}

// Hasher returns the hasher used for this resolver's rows.
func (r *Resolver) Hasher() *Hasher {
	return r.hasher
}

// CreateMapping seals both identifiers and inserts the row through q, which
// must be the transaction that creates the identities themselves.
func (r *Resolver) CreateMapping(ctx context.Context, q sqlx.ExtContext, authID, businessID string, attrs Attributes) (*Mapping, error) {
	authEnc, err := r.hasher.Encrypt(authID)
	if err != nil {
		return nil, fmt.Errorf("identity: seal auth id: %w", err)
	}
	businessEnc, err := r.hasher.Encrypt(businessID)
	if err != nil {
		return nil, fmt.Errorf("identity: seal business id: %w", err)
	}

	m := &Mapping{
		ID:                  r.node.Generate().String(),
		AuthIDEncrypted:     authEnc,
		BusinessIDEncrypted: businessEnc,
		DeterministicHash:   r.hasher.DeterministicHash(attrs),
		CreatedAt:           CanonicalTimestamp(attrs.CreatedAt),
	}

	_, err = sqlx.NamedExecContext(ctx, q, `INSERT INTO identity_mappings
	(id, auth_id_encrypted, business_id_encrypted, deterministic_hash, created_at)
	VALUES (:id, :auth_id_encrypted, :business_id_encrypted, :deterministic_hash, :created_at)`, m)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("identity: insert mapping: %w", err)
	}
	return m, nil
}

// ResolveBusinessID finds the business id paired with authID.
func (r *Resolver) ResolveBusinessID(ctx context.Context, authID string) (string, error) {
	m, err := r.scan(ctx, r.db, authColumn, authID)
	if err != nil {
		return "", err
	}
	return r.hasher.Decrypt(m.BusinessIDEncrypted)
}

// ResolveAuthID finds the auth id paired with businessID.
func (r *Resolver) ResolveAuthID(ctx context.Context, businessID string) (string, error) {
	m, err := r.scan(ctx, r.db, businessColumn, businessID)
	if err != nil {
		return "", err
	}
	return r.hasher.Decrypt(m.AuthIDEncrypted)
}

// DeterministicHashFor returns the correlation hash stored for authID.
func (r *Resolver) DeterministicHashFor(ctx context.Context, authID string) (string, error) {
	m, err := r.scan(ctx, r.db, authColumn, authID)
	if err != nil {
		return "", err
	}
	return m.DeterministicHash, nil
}

// ResolveByHash is the indexed path: one row, both columns decrypted.
func (r *Resolver) ResolveByHash(ctx context.Context, hash string) (*ResolvedPair, error) {
	var m Mapping
	err := r.db.GetContext(ctx, &m, r.db.Rebind(`SELECT id, auth_id_encrypted, business_id_encrypted, deterministic_hash, created_at
	FROM identity_mappings WHERE deterministic_hash = ?`), hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("identity: lookup by hash: %w", err)
	}

	authID, err := r.hasher.Decrypt(m.AuthIDEncrypted)
	if err != nil {
		return nil, err
	}
	businessID, err := r.hasher.Decrypt(m.BusinessIDEncrypted)
	if err != nil {
		return nil, err
	}

	return &ResolvedPair{
		AuthID:     authID,
		BusinessID: businessID,
		Hash:       m.DeterministicHash,
	}, nil
}

// DeleteMapping removes the row for authID using q, which may be a
// transaction. Used for full-account erasure.
func (r *Resolver) DeleteMapping(ctx context.Context, q sqlx.ExtContext, authID string) error {
	m, err := r.scan(ctx, q, authColumn, authID)
	if err != nil {
		return err
	}

	res, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM identity_mappings WHERE id = ?`), m.ID)
	if err != nil {
		return fmt.Errorf("identity: delete mapping: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type column int

const (
	authColumn column = iota
	businessColumn
)

func (r *Resolver) scan(ctx context.Context, q sqlx.QueryerContext, col column, target string) (*Mapping, error) {
	rows, err := q.QueryxContext(ctx, `SELECT id, auth_id_encrypted, business_id_encrypted, deterministic_hash, created_at FROM identity_mappings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("identity: scan mappings: %w", err)
	}
	defer rows.Close()

	scanned, skipped := 0, 0
	for rows.Next() {
		if scanned >= r.maxScanRows {
			r.logger.Warn("mapping scan reached ceiling", zap.Int("max_scan_rows", r.maxScanRows))
			return nil, ErrScanLimit
		}
		scanned++

		var m Mapping
		if err := rows.StructScan(&m); err != nil {
			return nil, fmt.Errorf("identity: scan mapping row: %w", err)
		}

		sealed := m.AuthIDEncrypted
		if col == businessColumn {
			sealed = m.BusinessIDEncrypted
		}
		plain, err := r.hasher.Decrypt(sealed)
		if err != nil {
			skipped++
			continue
		}
		if plain == target {
			return &m, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("identity: scan mappings: %w", err)
	}

	if skipped > 0 {
		r.logger.Debug("mapping scan skipped undecryptable rows", zap.Int("skipped", skipped), zap.Int("scanned", scanned))
	}
	return nil, ErrNotFound
}
