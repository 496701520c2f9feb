package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rocketscienceinc/neon-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/neon-tictactoe/internal/entity"
)

var firstInteger = regexp.MustCompile(`-?\d+`)

// Generator sends a single prompt to the inference service and returns its raw text answer.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

type Suggester struct {
	logger    *slog.Logger
	generator Generator
	timeout   time.Duration
	intn      func(n int) int
}

// NewSuggester builds a suggester. A nil generator means no credential is configured, in which
// case every suggestion falls back to a random empty cell.
func NewSuggester(logger *slog.Logger, generator Generator, timeout time.Duration) *Suggester {
	return &Suggester{
		logger:    logger.With("component", "suggester"),
		generator: generator,
		timeout:   timeout,
		intn:      rand.IntN,
	}
}

// SuggestMove returns an empty cell for O. Any failure of the inference call is recovered with a
// uniformly random empty cell.
func (that *Suggester) SuggestMove(ctx context.Context, board entity.Board) (int, error) {
	log := that.logger.With("method", "SuggestMove")

	available := board.EmptyCells()
	if len(available) == 0 {
		return 0, apperror.ErrNoAvailableMoves
	}

	cell, err := that.ask(ctx, board)
	if err != nil {
		if errors.Is(err, apperror.ErrMissingCredential) {
			log.Warn("no credential configured, falling back to random move")
		} else {
			log.Error("suggestion rejected, falling back to random move", "error", err)
		}

		return available[that.intn(len(available))], nil
	}

	return cell, nil
}

func (that *Suggester) ask(ctx context.Context, board entity.Board) (int, error) {
	if that.generator == nil {
		return 0, fmt.Errorf("%w: %w", apperror.ErrSuggesterUnavailable, apperror.ErrMissingCredential)
	}

	if that.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, that.timeout)
		defer cancel()
	}

	text, err := that.generator.GenerateContent(ctx, BuildPrompt(board))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", apperror.ErrSuggesterUnavailable, err)
	}

	cell, err := ParseMove(text)
	if err != nil {
		return 0, err
	}

	if !board.IsEmptyCell(cell) {
		return 0, fmt.Errorf("%w: cell %d is not available", apperror.ErrInvalidMove, cell)
	}

	return cell, nil
}

// BuildPrompt describes the board with occupied cells as marks and empty cells as their index.
func BuildPrompt(board entity.Board) string {
	cells := make([]string, len(board))
	for i, mark := range board {
		if mark == entity.EmptyCell {
			cells[i] = strconv.Itoa(i)
			continue
		}
		cells[i] = string(mark)
	}

	return fmt.Sprintf(`You are playing Tic-Tac-Toe. You are Player 'O'.
The current board state is represented below (0-8 indices).
Cells occupied by 'X' or 'O' are marked. Empty cells show their index number (0-8).

%s

Task: Return ONLY the integer index (0-8) of the best possible move to win or block the opponent.
Do not explain. Just the number.`, strings.Join(cells, ","))
}

// ParseMove extracts the first integer from a free-form answer.
func ParseMove(text string) (int, error) {
	match := firstInteger.FindString(text)
	if match == "" {
		return 0, fmt.Errorf("%w: no integer in response %q", apperror.ErrSuggesterUnavailable, text)
	}

	cell, err := strconv.Atoi(match)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", apperror.ErrSuggesterUnavailable, err)
	}

	return cell, nil
}
