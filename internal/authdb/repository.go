package authdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rutapp/authcore/database"
)

const (
	StateUnverified = "UNVERIFIED"
	StateVerified   = "VERIFIED"
)

var (
	ErrNotFound = errors.New("auth identity not found")
	ErrConflict = errors.New("auth identity already exists")
	// ErrStale is returned when an optimistic update lost a race.
	ErrStale = errors.New("auth identity changed concurrently")
)

// Identity is one row of auth_identities.
type Identity struct {
	ID                string       `db:"id"`
	Email             string       `db:"email"`
	PasswordHash      string       `db:"password_hash"`
	Role              string       `db:"role"`
	VerificationState string       `db:"verification_state"`
	FailedAttempts    int          `db:"failed_attempts"`
	LastFailedAttempt sql.NullTime `db:"last_failed_attempt"`
	LockedUntil       sql.NullTime `db:"locked_until"`
	Version           int64        `db:"version"`
	CreatedAt         time.Time    `db:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at"`
}

// Verified reports whether the identity completed email verification.
func (i *Identity) Verified() bool {
	return i.VerificationState == StateVerified
}

// LockedAt reports whether the identity is locked at now.
func (i *Identity) LockedAt(now time.Time) bool {
	return i.LockedUntil.Valid && i.LockedUntil.Time.After(now)
}

// LockoutState is the outcome of recording a failed login. Locked is set
// only by the failure that crossed the threshold.
type LockoutState struct {
	FailedAttempts int
	Locked         bool
	LockedUntil    time.Time
}

// Repository reads and writes auth identities.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates auth_identities if absent.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	ts := database.TimestampType(r.db.DriverName())
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS auth_identities (
	id VARCHAR(36) PRIMARY KEY,
	email VARCHAR(320) NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role VARCHAR(32) NOT NULL,
	verification_state VARCHAR(16) NOT NULL,
	failed_attempts INTEGER NOT NULL DEFAULT 0,
	last_failed_attempt %[1]s NULL,
	locked_until %[1]s NULL,
	version BIGINT NOT NULL DEFAULT 1,
	created_at %[1]s NOT NULL,
	updated_at %[1]s NOT NULL
)`, ts)
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create auth_identities: %w", err)
	}
	return nil
}

// Insert writes a new identity through q, normally the registration transaction.
func (r *Repository) Insert(ctx context.Context, q sqlx.ExtContext, id *Identity) error {
	_, err := sqlx.NamedExecContext(ctx, q, `INSERT INTO auth_identities
	(id, email, password_hash, role, verification_state, failed_attempts, version, created_at, updated_at)
	VALUES (:id, :email, :password_hash, :role, :verification_state, 0, 1, :created_at, :updated_at)`, id)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert auth identity: %w", err)
	}
	return nil
}

const selectIdentity = `SELECT id, email, password_hash, role, verification_state, failed_attempts,
	last_failed_attempt, locked_until, version, created_at, updated_at FROM auth_identities `

func (r *Repository) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	return r.findOne(ctx, selectIdentity+`WHERE email = ?`, email)
}

func (r *Repository) FindByID(ctx context.Context, id string) (*Identity, error) {
	return r.findOne(ctx, selectIdentity+`WHERE id = ?`, id)
}

// EmailExists reports whether email is taken.
func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, r.db.Rebind(`SELECT COUNT(*) FROM auth_identities WHERE email = ?`), email); err != nil {
		return false, fmt.Errorf("count auth identity: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) findOne(ctx context.Context, query string, arg any) (*Identity, error) {
	var id Identity
	if err := r.db.GetContext(ctx, &id, r.db.Rebind(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load auth identity: %w", err)
	}
	return &id, nil
}

// RecordFailedLogin increments the failure counter in one statement. When
// the increment reaches threshold the identity is locked until now+block
// and the counter restarts at zero.
func (r *Repository) RecordFailedLogin(ctx context.Context, id string, now time.Time, threshold int, block time.Duration) (*LockoutState, error) {
	now = now.UTC()
	until := now.Add(block)
	var attempts int
	err := r.db.GetContext(ctx, &attempts, r.db.Rebind(`UPDATE auth_identities SET
	failed_attempts = CASE WHEN failed_attempts + 1 >= ? THEN 0 ELSE failed_attempts + 1 END,
	locked_until = CASE WHEN failed_attempts + 1 >= ? THEN ? ELSE locked_until END,
	last_failed_attempt = ?,
	updated_at = ?
	WHERE id = ?
	RETURNING failed_attempts`),
		threshold, threshold, until, now, now, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("record failed login: %w", err)
	}

	// The counter only returns to zero on the transition into LOCKED.
	if attempts == 0 {
		return &LockoutState{Locked: true, LockedUntil: until}, nil
	}
	return &LockoutState{FailedAttempts: attempts}, nil
}

// ResetLockout clears the failure counter and any lock.
func (r *Repository) ResetLockout(ctx context.Context, id string, now time.Time) error {
	return r.execOne(ctx, r.db, `UPDATE auth_identities SET
	failed_attempts = 0, last_failed_attempt = NULL, locked_until = NULL, updated_at = ?
	WHERE id = ?`, now.UTC(), id)
}

// UpdatePassword replaces the hash if the row is still at expectedVersion.
func (r *Repository) UpdatePassword(ctx context.Context, id string, expectedVersion int64, hash string, now time.Time) error {
	err := r.execOne(ctx, r.db, `UPDATE auth_identities SET
	password_hash = ?, version = version + 1, updated_at = ?
	WHERE id = ? AND version = ?`, hash, now.UTC(), id, expectedVersion)
	if errors.Is(err, ErrNotFound) {
		return ErrStale
	}
	return err
}

// MarkVerified sets the identity VERIFIED with role through q.
func (r *Repository) MarkVerified(ctx context.Context, q sqlx.ExtContext, id, role string, now time.Time) error {
	return r.execOne(ctx, q, `UPDATE auth_identities SET
	verification_state = ?, role = ?, version = version + 1, updated_at = ?
	WHERE id = ?`, StateVerified, role, now.UTC(), id)
}

func (r *Repository) execOne(ctx context.Context, q sqlx.ExecerContext, query string, args ...any) error {
	res, err := q.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("update auth identity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update auth identity: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
