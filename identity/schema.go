package identity

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rutapp/authcore/database"
)

// EnsureSchema creates the mapping table and its hash index if absent.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS identity_mappings (
	id TEXT PRIMARY KEY,
	auth_id_encrypted TEXT NOT NULL,
	business_id_encrypted TEXT NOT NULL,
	deterministic_hash VARCHAR(32) NOT NULL,
	created_at %s NOT NULL
)`, database.TimestampType(db.DriverName()))

	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create identity_mappings: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS identity_mappings_hash_idx ON identity_mappings (deterministic_hash)`); err != nil {
		return fmt.Errorf("create identity_mappings_hash_idx: %w", err)
	}
	return nil
}
