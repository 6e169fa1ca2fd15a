package identity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rutapp/authcore/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T, cfg ResolverConfig) (*Resolver, *sqlx.DB) {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Driver: database.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, EnsureSchema(ctx, db))

	r, err := NewResolver(db, newTestHasher(t), cfg, nil)
	require.NoError(t, err)
	return r, db
}

func createPair(t *testing.T, r *Resolver, db *sqlx.DB, email string) (string, string, *Mapping) {
	t.Helper()

	authID, businessID := uuid.NewString(), uuid.NewString()
	var m *Mapping
	err := database.WithTx(context.Background(), db, func(tx *sqlx.Tx) error {
		var err error
		m, err = r.CreateMapping(context.Background(), tx, authID, businessID, Attributes{
			Email:     email,
			CreatedAt: time.Now(),
		})
		return err
	})
	require.NoError(t, err)
	return authID, businessID, m
}

func TestResolverRoundTrip(t *testing.T) {
	r, db := newTestResolver(t, ResolverConfig{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		createPair(t, r, db, uuid.NewString()+"@x.com")
	}
	authID, businessID, m := createPair(t, r, db, "a@x.com")

	gotBusiness, err := r.ResolveBusinessID(ctx, authID)
	require.NoError(t, err)
	assert.Equal(t, businessID, gotBusiness)

	gotAuth, err := r.ResolveAuthID(ctx, gotBusiness)
	require.NoError(t, err)
	assert.Equal(t, authID, gotAuth)

	hash, err := r.DeterministicHashFor(ctx, authID)
	require.NoError(t, err)
	assert.Equal(t, m.DeterministicHash, hash)

	pair, err := r.ResolveByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, &ResolvedPair{AuthID: authID, BusinessID: businessID, Hash: hash}, pair)
}

func TestResolverStoresNoPlaintextIdentifiers(t *testing.T) {
	r, db := newTestResolver(t, ResolverConfig{})
	authID, businessID, _ := createPair(t, r, db, "a@x.com")

	var row Mapping
	require.NoError(t, db.Get(&row, `SELECT * FROM identity_mappings`))
	assert.NotContains(t, row.AuthIDEncrypted, authID)
	assert.NotContains(t, row.BusinessIDEncrypted, businessID)
	assert.NotEqual(t, row.AuthIDEncrypted, row.BusinessIDEncrypted)
}

func TestResolverNotFound(t *testing.T) {
	r, db := newTestResolver(t, ResolverConfig{})
	ctx := context.Background()
	createPair(t, r, db, "a@x.com")

	_, err := r.ResolveBusinessID(ctx, uuid.NewString())
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.ResolveAuthID(ctx, uuid.NewString())
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.ResolveByHash(ctx, "00000000000000000000000000000000")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolverSkipsUndecryptableRows(t *testing.T) {
	r, db := newTestResolver(t, ResolverConfig{})
	ctx := context.Background()

	_, err := db.Exec(`INSERT INTO identity_mappings (id, auth_id_encrypted, business_id_encrypted, deterministic_hash, created_at)
	VALUES ('garbage', 'not-a-ciphertext', 'also-not', 'ffffffffffffffffffffffffffffffff', ?)`, time.Now().UTC())
	require.NoError(t, err)

	authID, businessID, _ := createPair(t, r, db, "a@x.com")

	got, err := r.ResolveBusinessID(ctx, authID)
	require.NoError(t, err)
	assert.Equal(t, businessID, got)

	_, err = r.ResolveByHash(ctx, "ffffffffffffffffffffffffffffffff")
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestCreateMappingDuplicateHashConflicts(t *testing.T) {
	r, db := newTestResolver(t, ResolverConfig{})
	ctx := context.Background()
	attrs := Attributes{Email: "a@x.com", CreatedAt: time.Unix(1700000000, 0)}

	_, err := r.CreateMapping(ctx, db, uuid.NewString(), uuid.NewString(), attrs)
	require.NoError(t, err)
	_, err = r.CreateMapping(ctx, db, uuid.NewString(), uuid.NewString(), attrs)
	require.ErrorIs(t, err, ErrConflict)
}

func TestCreateMappingRollsBackWithTransaction(t *testing.T) {
	r, db := newTestResolver(t, ResolverConfig{})
	ctx := context.Background()
	authID := uuid.NewString()

	err := database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := r.CreateMapping(ctx, tx, authID, uuid.NewString(), Attributes{Email: "a@x.com", CreatedAt: time.Now()}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = r.ResolveBusinessID(ctx, authID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteMapping(t *testing.T) {
	r, db := newTestResolver(t, ResolverConfig{})
	ctx := context.Background()
	authID, _, m := createPair(t, r, db, "a@x.com")
	otherAuth, otherBusiness, _ := createPair(t, r, db, "b@x.com")

	require.NoError(t, r.DeleteMapping(ctx, db, authID))

	_, err := r.ResolveBusinessID(ctx, authID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.ResolveByHash(ctx, m.DeterministicHash)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, r.DeleteMapping(ctx, db, authID), ErrNotFound)

	got, err := r.ResolveBusinessID(ctx, otherAuth)
	require.NoError(t, err)
	assert.Equal(t, otherBusiness, got)
}

func TestResolverScanCeiling(t *testing.T) {
	r, db := newTestResolver(t, ResolverConfig{MaxScanRows: 2})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		createPair(t, r, db, uuid.NewString()+"@x.com")
	}

	_, err := r.ResolveBusinessID(ctx, uuid.NewString())
	require.ErrorIs(t, err, ErrScanLimit)
}

func TestResolverScansInKeyOrder(t *testing.T) {
	r, db := newTestResolver(t, ResolverConfig{MaxScanRows: 1})
	ctx := context.Background()

	// inserted first, but sorts after every generated id
	_, err := db.Exec(`INSERT INTO identity_mappings (id, auth_id_encrypted, business_id_encrypted, deterministic_hash, created_at)
	VALUES ('zzzz', 'not-a-ciphertext', 'also-not', 'ffffffffffffffffffffffffffffffff', ?)`, time.Now().UTC())
	require.NoError(t, err)

	authID, businessID, _ := createPair(t, r, db, "a@x.com")

	got, err := r.ResolveBusinessID(ctx, authID)
	require.NoError(t, err)
	assert.Equal(t, businessID, got)

	_, err = r.ResolveBusinessID(ctx, uuid.NewString())
	require.ErrorIs(t, err, ErrScanLimit)
}

func TestNewResolverValidates(t *testing.T) {
	_, err := NewResolver(nil, nil, ResolverConfig{}, nil)
	require.Error(t, err)

	_, db := newTestResolver(t, ResolverConfig{})
	_, err = NewResolver(db, newTestHasher(t), ResolverConfig{MaxScanRows: -1}, nil)
	require.Error(t, err)
	_, err = NewResolver(db, newTestHasher(t), ResolverConfig{NodeID: 5000}, nil)
	require.Error(t, err)
}
