package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/premiumeclipse/essencefurro/internal/domain"
)

func TestStatsRepo_SeededWithZeros(t *testing.T) {
	repo := NewStatsRepo(setupTestDB(t))

	stats, err := repo.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Stats{}, stats)
}

func TestStatsRepo_Replace(t *testing.T) {
	repo := NewStatsRepo(setupTestDB(t))
	ctx := context.Background()
	updatedAt := time.Date(2025, 4, 9, 12, 0, 0, 0, time.UTC)

	saved, err := repo.Replace(ctx, domain.Stats{Servers: 12, Users: 3400, CommandsRun: 77, Uptime: 86400, UpdatedAt: updatedAt})
	require.NoError(t, err)
	assert.Equal(t, int64(3400), saved.Users)
	assert.True(t, saved.UpdatedAt.Equal(updatedAt))

	got, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved, got)
}

func TestStatsRepo_ReplaceRejectsNegative(t *testing.T) {
	repo := NewStatsRepo(setupTestDB(t))

	_, err := repo.Replace(context.Background(), domain.Stats{Servers: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidStats)
}
