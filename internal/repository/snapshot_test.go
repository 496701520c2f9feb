package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/neon-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/neon-tictactoe/internal/entity"
	"github.com/rocketscienceinc/neon-tictactoe/testing/suite"
)

func newSnapshot(gameID string, version uint64) *entity.Snapshot {
	return &entity.Snapshot{
		GameID:        gameID,
		Version:       version,
		Mode:          entity.ModeLocal,
		Board:         entity.Board{entity.PlayerX},
		CurrentPlayer: entity.PlayerO,
		Status:        "Player O's Turn",
		UpdatedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestSnapshotRepository_Publish(t *testing.T) {
	t.Run("Stores the latest snapshot", func(t *testing.T) {
		ctx, st := suite.New(t)
		repo := NewSnapshotRepository(st.Logger, st.Redis)

		// Given: two snapshots of the same game
		require.NoError(t, repo.Publish(ctx, newSnapshot("game-1", 1)))
		require.NoError(t, repo.Publish(ctx, newSnapshot("game-1", 2)))

		// When: reading back
		latest, err := repo.GetLatest(ctx)

		// Then: only the last one is kept
		require.NoError(t, err)
		assert.Equal(t, "game-1", latest.GameID)
		assert.Equal(t, uint64(2), latest.Version)
		assert.Equal(t, entity.PlayerX, latest.Board[0])
		assert.Equal(t, entity.ModeLocal, latest.Mode)
	})

	t.Run("Reports a missing snapshot", func(t *testing.T) {
		ctx, st := suite.New(t)
		repo := NewSnapshotRepository(st.Logger, st.Redis)

		latest, err := repo.GetLatest(ctx)

		require.ErrorIs(t, err, apperror.ErrSnapshotNotFound)
		assert.Nil(t, latest)
	})
}

func TestSnapshotRepository_Subscribe(t *testing.T) {
	ctx, st := suite.New(t)
	repo := NewSnapshotRepository(st.Logger, st.Redis)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Given: a subscriber on the state channel
	snapshots, err := repo.Subscribe(subCtx)
	require.NoError(t, err)

	// When: a newer, a stale and a new game snapshot are published
	require.NoError(t, repo.Publish(ctx, newSnapshot("game-1", 2)))
	require.NoError(t, repo.Publish(ctx, newSnapshot("game-1", 1)))
	require.NoError(t, repo.Publish(ctx, newSnapshot("game-2", 3)))

	// Then: the stale one is skipped
	first := <-snapshots
	second := <-snapshots
	assert.Equal(t, uint64(2), first.Version)
	assert.Equal(t, "game-2", second.GameID)

	cancel()
	select {
	case _, open := <-snapshots:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("subscription was not closed")
	}
}
