package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astroreports/internal/domain"
)

func TestProfileUpsertAndGet(t *testing.T) {
	db, clock := openTestDB(t)
	store := NewProfileStore(db)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.GetByUserID(ctx, "user-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	p := &domain.Profile{UserID: "user-1", Name: "Sari", Locale: "id", Birth: personB}
	require.NoError(t, store.Upsert(ctx, p))
	created := p.CreatedAt

	clock.Advance(time.Hour)
	p.Name = "Sari W."
	require.NoError(t, store.Upsert(ctx, p))
	assert.True(t, p.CreatedAt.Equal(created), "created_at survives updates")
	assert.True(t, p.UpdatedAt.After(created))

	got, err := store.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Sari W.", got.Name)
	assert.Equal(t, personB, got.Birth)

	exists, err = store.Exists(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, exists)
}
