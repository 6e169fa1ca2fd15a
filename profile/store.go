package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/rutapp/authcore/database"
	"github.com/segmentio/ksuid"
)

const (
	publicIDPrefix   = "USR_"
	aliasPrefix      = "Pasajero"
	fallbackName     = "Usuario"
	generateAttempts = 10
)

// ErrIdentifierExhausted is returned when no free alias or public id was
// found within the attempt budget.
var ErrIdentifierExhausted = errors.New("profile: could not generate a unique identifier")

// Attributes are the fields supplied at registration.
type Attributes struct {
	FirstName string
	LastName  string
	Phone     string
}

// Profile is a business identity.
type Profile struct {
	ID        string    `db:"id"`
	PublicID  string    `db:"public_id"`
	Alias     string    `db:"alias"`
	FirstName string    `db:"first_name"`
	LastName  string    `db:"last_name"`
	Phone     string    `db:"phone"`
	IsDeleted bool      `db:"is_deleted"`
	CreatedAt time.Time `db:"created_at"`
}

// SQLStore keeps profiles in business_users.
type SQLStore struct {
	db    *sqlx.DB
	clock clockwork.Clock
}

func NewSQLStore(db *sqlx.DB, clock clockwork.Clock) *SQLStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SQLStore{db: db, clock: clock}
}

// EnsureSchema creates business_users if absent.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS business_users (
	id VARCHAR(36) PRIMARY KEY,
	public_id VARCHAR(16) NOT NULL UNIQUE,
	alias VARCHAR(32) NOT NULL UNIQUE,
	first_name VARCHAR(100) NOT NULL DEFAULT '',
	last_name VARCHAR(100) NOT NULL DEFAULT '',
	phone VARCHAR(32) NOT NULL DEFAULT '',
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	created_at %s NOT NULL
)`, database.TimestampType(s.db.DriverName()))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create business_users: %w", err)
	}
	return nil
}

// CreateProfile inserts a profile through q. Uniqueness probes for the
// public id and alias also go through q so they see the caller's transaction.
func (s *SQLStore) CreateProfile(ctx context.Context, q sqlx.ExtContext, attrs Attributes) (*Profile, error) {
	publicID, err := s.unique(ctx, q, "public_id", newPublicID)
	if err != nil {
		return nil, err
	}
	alias, err := s.unique(ctx, q, "alias", newAlias)
	if err != nil {
		return nil, err
	}

	p := &Profile{
		ID:        uuid.NewString(),
		PublicID:  publicID,
		Alias:     alias,
		FirstName: strings.TrimSpace(attrs.FirstName),
		LastName:  strings.TrimSpace(attrs.LastName),
		Phone:     strings.TrimSpace(attrs.Phone),
		CreatedAt: s.clock.Now().UTC(),
	}
	_, err = sqlx.NamedExecContext(ctx, q, `INSERT INTO business_users
	(id, public_id, alias, first_name, last_name, phone, is_deleted, created_at)
	VALUES (:id, :public_id, :alias, :first_name, :last_name, :phone, :is_deleted, :created_at)`, p)
	if err != nil {
		return nil, fmt.Errorf("insert business user: %w", err)
	}
	return p, nil
}

// FindByID returns the live profile or nil when it is absent or soft-deleted.
func (s *SQLStore) FindByID(ctx context.Context, businessID string) (*Profile, error) {
	var p Profile
	err := s.db.GetContext(ctx, &p, s.db.Rebind(`SELECT id, public_id, alias, first_name, last_name, phone, is_deleted, created_at
	FROM business_users WHERE id = ? AND is_deleted = ?`), businessID, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load business user: %w", err)
	}
	return &p, nil
}

// DisplayName prefers the full name, then the alias, then a generic label.
func (s *SQLStore) DisplayName(ctx context.Context, businessID string) (string, error) {
	p, err := s.FindByID(ctx, businessID)
	if err != nil {
		return "", err
	}
	if p == nil {
		return fallbackName, nil
	}
	if p.FirstName != "" {
		return strings.TrimSpace(p.FirstName + " " + p.LastName), nil
	}
	if p.Alias != "" {
		return p.Alias, nil
	}
	return fallbackName, nil
}

// SoftDelete flags the profile as deleted.
func (s *SQLStore) SoftDelete(ctx context.Context, businessID string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE business_users SET is_deleted = ? WHERE id = ?`), true, businessID)
	if err != nil {
		return fmt.Errorf("delete business user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLStore) unique(ctx context.Context, q sqlx.ExtContext, column string, gen func() string) (string, error) {
	query := q.Rebind(`SELECT COUNT(*) FROM business_users WHERE ` + column + ` = ?`)
	for i := 0; i < generateAttempts; i++ {
		candidate := gen()
		var n int
		if err := sqlx.GetContext(ctx, q, &n, query, candidate); err != nil {
			return "", fmt.Errorf("probe business user %s: %w", column, err)
		}
		if n == 0 {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrIdentifierExhausted, column)
}

func newPublicID() string {
	id := ksuid.New().String()
	return publicIDPrefix + strings.ToUpper(id[len(id)-8:])
}

func newAlias() string {
	return fmt.Sprintf("%s%d", aliasPrefix, 1000+rand.IntN(9000))
}
