package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/neon-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/neon-tictactoe/internal/entity"
)

var errNetworkDown = errors.New("network down")

type mockGenerator struct {
	mock.Mock
}

func (that *mockGenerator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	args := that.Called(ctx, prompt)

	return args.String(0), args.Error(1)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// partialBoard has cells 0, 1, 4 and 8 occupied.
func partialBoard() entity.Board {
	return entity.Board{
		entity.PlayerX, entity.PlayerO, entity.EmptyCell,
		entity.EmptyCell, entity.PlayerX, entity.EmptyCell,
		entity.EmptyCell, entity.EmptyCell, entity.PlayerO,
	}
}

func TestSuggester_SuggestMove(t *testing.T) {
	ctx := context.Background()

	t.Run("Uses a valid answer from the generator", func(t *testing.T) {
		// Given: a generator answering with an empty cell
		generator := &mockGenerator{}
		generator.On("GenerateContent", mock.Anything, BuildPrompt(partialBoard())).Return(" 6\n", nil).Once()
		suggester := NewSuggester(newTestLogger(), generator, time.Second)

		// When: asking for a move
		cell, err := suggester.SuggestMove(ctx, partialBoard())

		// Then: the generator's cell is used
		require.NoError(t, err)
		assert.Equal(t, 6, cell)
		generator.AssertExpectations(t)
	})

	t.Run("Failing generator always falls back to an empty cell", func(t *testing.T) {
		// Given: a generator that always fails
		generator := &mockGenerator{}
		generator.On("GenerateContent", mock.Anything, mock.Anything).Return("", errNetworkDown)
		suggester := NewSuggester(newTestLogger(), generator, time.Second)
		board := partialBoard()

		// When: asking repeatedly
		for range 200 {
			cell, err := suggester.SuggestMove(ctx, board)

			// Then: every answer is an empty cell
			require.NoError(t, err)
			require.True(t, board.IsEmptyCell(cell), "cell %d is occupied", cell)
		}
	})

	t.Run("Occupied answer falls back to an empty cell", func(t *testing.T) {
		generator := &mockGenerator{}
		generator.On("GenerateContent", mock.Anything, mock.Anything).Return("4", nil)
		suggester := NewSuggester(newTestLogger(), generator, time.Second)
		suggester.intn = func(int) int { return 0 }

		cell, err := suggester.SuggestMove(ctx, partialBoard())

		require.NoError(t, err)
		assert.Equal(t, 2, cell)
	})

	t.Run("Unparseable answer falls back to an empty cell", func(t *testing.T) {
		generator := &mockGenerator{}
		generator.On("GenerateContent", mock.Anything, mock.Anything).Return("the centre", nil)
		suggester := NewSuggester(newTestLogger(), generator, time.Second)
		suggester.intn = func(n int) int { return n - 1 }

		cell, err := suggester.SuggestMove(ctx, partialBoard())

		require.NoError(t, err)
		assert.Equal(t, 7, cell)
	})

	t.Run("Out of range answer falls back to an empty cell", func(t *testing.T) {
		generator := &mockGenerator{}
		generator.On("GenerateContent", mock.Anything, mock.Anything).Return("42", nil)
		suggester := NewSuggester(newTestLogger(), generator, time.Second)
		board := partialBoard()

		cell, err := suggester.SuggestMove(ctx, board)

		require.NoError(t, err)
		assert.True(t, board.IsEmptyCell(cell))
	})

	t.Run("Missing credential falls back without calling anything", func(t *testing.T) {
		// Given: no generator configured
		suggester := NewSuggester(newTestLogger(), nil, time.Second)
		board := partialBoard()

		// When: asking for a move
		cell, err := suggester.SuggestMove(ctx, board)

		// Then: a random empty cell is returned
		require.NoError(t, err)
		assert.True(t, board.IsEmptyCell(cell))
	})

	t.Run("Full board has no available moves", func(t *testing.T) {
		generator := &mockGenerator{}
		suggester := NewSuggester(newTestLogger(), generator, time.Second)
		board := entity.Board{"X", "O", "X", "X", "O", "O", "O", "X", "X"}

		_, err := suggester.SuggestMove(ctx, board)

		require.ErrorIs(t, err, apperror.ErrNoAvailableMoves)
		generator.AssertNotCalled(t, "GenerateContent", mock.Anything, mock.Anything)
	})
}

func TestParseMove(t *testing.T) {
	t.Run("Extracts the first integer", func(t *testing.T) {
		for text, expected := range map[string]int{
			"4":                 4,
			" 7 \n":             7,
			"Move: 3":           3,
			"2, or maybe 5":     2,
			"index 8 (corner)":  8,
			"-1 is not allowed": -1,
		} {
			cell, err := ParseMove(text)

			require.NoError(t, err, text)
			assert.Equal(t, expected, cell, text)
		}
	})

	t.Run("Rejects answers without digits", func(t *testing.T) {
		_, err := ParseMove("centre")

		require.ErrorIs(t, err, apperror.ErrSuggesterUnavailable)
	})
}

func TestBuildPrompt(t *testing.T) {
	// When: describing a partially played board
	prompt := BuildPrompt(partialBoard())

	// Then: marks and empty indexes appear in board order with the fixed instruction
	assert.Contains(t, prompt, "X,O,2,3,X,5,6,7,O")
	assert.Contains(t, prompt, "Return ONLY the integer index (0-8)")
	assert.Contains(t, prompt, "You are Player 'O'")
}
