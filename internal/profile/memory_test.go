// File: internal/profile/memory_test.go
package profile

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lingualearn_backend/internal/common"
	"lingualearn_backend/internal/identity"
)

func TestMemoryStore_EnsureProfile_CreatesOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	ident := &identity.Identity{UID: "u1", Email: "a@x.com"}

	require.NoError(t, store.EnsureProfile(ctx, ident, nil))
	first, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, store.EnsureProfile(ctx, ident, nil))
	second, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, 1, store.Len())
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.False(t, second.LastLoginAt.Before(first.LastLoginAt))
}

func TestMemoryStore_EnsureProfile_RejectsMissingUID(t *testing.T) {
	store := NewMemoryStore()

	err := store.EnsureProfile(context.Background(), nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrBadRequest)

	err = store.EnsureProfile(context.Background(), &identity.Identity{Email: "a@x.com"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrBadRequest)
}

func TestMemoryStore_EnsureProfile_ConcurrentCallersOneDocument(t *testing.T) {
	store := NewMemoryStore()
	ident := &identity.Identity{UID: "u1", Email: "a@x.com"}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.EnsureProfile(context.Background(), ident, nil))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.Len())
	p, err := store.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.CurrentLevel)
}

func TestMemoryStore_GetProfile_UnknownUID(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.GetProfile(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMemoryStore_UpdateProfile(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.EnsureProfile(ctx, &identity.Identity{UID: "u1", Email: "a@x.com"}, nil))

	xp := 250
	require.NoError(t, store.UpdateProfile(ctx, "u1", &Patch{XPPoints: &xp}))

	p, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 250, p.XPPoints)

	// Empty patches are a no-op even for unknown users.
	assert.NoError(t, store.UpdateProfile(ctx, "missing", &Patch{}))

	err = store.UpdateProfile(ctx, "missing", &Patch{XPPoints: &xp})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMemoryStore_GetProfile_ReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.EnsureProfile(ctx, &identity.Identity{UID: "u1", Email: "a@x.com"}, nil))

	p, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	p.XPPoints = 999

	again, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, again.XPPoints)
}
