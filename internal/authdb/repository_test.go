package authdb

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rutapp/authcore/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Driver: database.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewRepository(db)
	require.NoError(t, repo.EnsureSchema(ctx))
	require.NoError(t, repo.EnsureSchema(ctx))
	return repo
}

func insertIdentity(t *testing.T, repo *Repository, email string) *Identity {
	t.Helper()

	now := time.Now().UTC()
	id := &Identity{
		ID:                uuid.NewString(),
		Email:             email,
		PasswordHash:      "$argon2id$stub",
		Role:              "user",
		VerificationState: StateUnverified,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, repo.Insert(context.Background(), repo.db, id))
	return id
}

func TestInsertAndFind(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	created := insertIdentity(t, repo, "a@x.com")

	byEmail, err := repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)
	assert.Equal(t, StateUnverified, byEmail.VerificationState)
	assert.False(t, byEmail.Verified())
	assert.EqualValues(t, 1, byEmail.Version)
	assert.False(t, byEmail.LockedUntil.Valid)

	byID, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", byID.Email)

	exists, err := repo.EmailExists(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = repo.FindByEmail(ctx, "b@x.com")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = repo.FindByID(ctx, uuid.NewString())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInsertDuplicateEmailConflicts(t *testing.T) {
	repo := newTestRepository(t)
	insertIdentity(t, repo, "a@x.com")

	now := time.Now().UTC()
	err := repo.Insert(context.Background(), repo.db, &Identity{
		ID:                uuid.NewString(),
		Email:             "a@x.com",
		PasswordHash:      "x",
		Role:              "user",
		VerificationState: StateUnverified,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	require.ErrorIs(t, err, ErrConflict)
}

func TestRecordFailedLoginLocksAtThreshold(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	id := insertIdentity(t, repo, "a@x.com")
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 1; i < 5; i++ {
		state, err := repo.RecordFailedLogin(ctx, id.ID, now, 5, 15*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, state.FailedAttempts)
		assert.False(t, state.Locked)
	}

	state, err := repo.RecordFailedLogin(ctx, id.ID, now, 5, 15*time.Minute)
	require.NoError(t, err)
	assert.True(t, state.Locked)
	assert.Equal(t, 0, state.FailedAttempts)
	assert.Equal(t, now.Add(15*time.Minute), state.LockedUntil)

	stored, err := repo.FindByID(ctx, id.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.FailedAttempts)
	require.True(t, stored.LockedUntil.Valid)
	assert.True(t, stored.LockedAt(now.Add(14*time.Minute)))
	assert.False(t, stored.LockedAt(now.Add(16*time.Minute)))
	assert.True(t, stored.LastFailedAttempt.Valid)
}

func TestRecordFailedLoginIsAtomic(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	id := insertIdentity(t, repo, "a@x.com")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.RecordFailedLogin(ctx, id.ID, time.Now(), 10, time.Minute)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := repo.FindByID(ctx, id.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.FailedAttempts)
}

func TestRecordFailedLoginUnknownIdentity(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.RecordFailedLogin(context.Background(), uuid.NewString(), time.Now(), 5, time.Minute)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResetLockoutClearsEverything(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	id := insertIdentity(t, repo, "a@x.com")
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		_, err := repo.RecordFailedLogin(ctx, id.ID, now, 3, time.Hour)
		require.NoError(t, err)
	}
	require.NoError(t, repo.ResetLockout(ctx, id.ID, now))

	stored, err := repo.FindByID(ctx, id.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.FailedAttempts)
	assert.False(t, stored.LockedUntil.Valid)
	assert.False(t, stored.LastFailedAttempt.Valid)
}

func TestUpdatePasswordChecksVersion(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	id := insertIdentity(t, repo, "a@x.com")

	require.NoError(t, repo.UpdatePassword(ctx, id.ID, 1, "new-hash", time.Now()))
	require.ErrorIs(t, repo.UpdatePassword(ctx, id.ID, 1, "stale-hash", time.Now()), ErrStale)

	stored, err := repo.FindByID(ctx, id.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", stored.PasswordHash)
	assert.EqualValues(t, 2, stored.Version)
}

func TestMarkVerified(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	id := insertIdentity(t, repo, "a@x.com")

	require.NoError(t, repo.MarkVerified(ctx, repo.db, id.ID, "passenger", time.Now()))

	stored, err := repo.FindByID(ctx, id.ID)
	require.NoError(t, err)
	assert.True(t, stored.Verified())
	assert.Equal(t, "passenger", stored.Role)

	require.ErrorIs(t, repo.MarkVerified(ctx, repo.db, uuid.NewString(), "passenger", time.Now()), ErrNotFound)
}
