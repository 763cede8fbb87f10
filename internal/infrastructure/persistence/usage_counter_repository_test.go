package persistence

import (
	"context"
	"testing"

	"github.com/agentmarket/backend/internal/domain/access"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupUsageCounterTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&access.UsageCounter{})
	require.NoError(t, err)

	return db
}

func TestGormUsageCounterRepository_Increment(t *testing.T) {
	db := setupUsageCounterTestDB(t)
	repo := NewGormUsageCounterRepository(db)
	ctx := context.Background()

	buyerID := uuid.New()
	agentID := uuid.New()
	day := "2026-05-01"

	t.Run("creates the bucket on first increment", func(t *testing.T) {
		used, err := repo.Increment(ctx, buyerID, agentID, day)
		require.NoError(t, err)
		assert.Equal(t, int64(1), used)
	})

	t.Run("increments an existing bucket", func(t *testing.T) {
		for want := int64(2); want <= 5; want++ {
			used, err := repo.Increment(ctx, buyerID, agentID, day)
			require.NoError(t, err)
			assert.Equal(t, want, used)
		}
	})

	t.Run("buckets are isolated per day", func(t *testing.T) {
		used, err := repo.Increment(ctx, buyerID, agentID, "2026-05-02")
		require.NoError(t, err)
		assert.Equal(t, int64(1), used)

		previous, err := repo.Used(ctx, buyerID, agentID, day)
		require.NoError(t, err)
		assert.Equal(t, int64(5), previous)
	})

	t.Run("buckets are isolated per agent", func(t *testing.T) {
		used, err := repo.Increment(ctx, buyerID, uuid.New(), day)
		require.NoError(t, err)
		assert.Equal(t, int64(1), used)
	})

	t.Run("rejects malformed day key", func(t *testing.T) {
		_, err := repo.Increment(ctx, buyerID, agentID, "05/01/2026")
		assert.Error(t, err)
	})
}

func TestGormUsageCounterRepository_GetAndUsed(t *testing.T) {
	db := setupUsageCounterTestDB(t)
	repo := NewGormUsageCounterRepository(db)
	ctx := context.Background()

	buyerID := uuid.New()
	agentID := uuid.New()
	day := "2026-05-01"

	t.Run("absent bucket reads as zero", func(t *testing.T) {
		counter, err := repo.Get(ctx, buyerID, agentID, day)
		require.NoError(t, err)
		assert.Nil(t, counter)

		used, err := repo.Used(ctx, buyerID, agentID, day)
		require.NoError(t, err)
		assert.Equal(t, int64(0), used)
	})

	t.Run("reflects increments", func(t *testing.T) {
		_, err := repo.Increment(ctx, buyerID, agentID, day)
		require.NoError(t, err)
		_, err = repo.Increment(ctx, buyerID, agentID, day)
		require.NoError(t, err)

		counter, err := repo.Get(ctx, buyerID, agentID, day)
		require.NoError(t, err)
		require.NotNil(t, counter)
		assert.Equal(t, int64(2), counter.Used)
	})
}
