package usecase

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/rocketscienceinc/neon-tictactoe/internal/entity"
	"github.com/rocketscienceinc/neon-tictactoe/internal/tictactoe"
)

type MoveSource int

const (
	SourceLocal MoveSource = iota
	SourceRemote
)

func (s MoveSource) String() string {
	if s == SourceRemote {
		return "remote"
	}

	return "local"
}

type moveSender interface {
	SendMove(ctx context.Context, cell int)
}

// Arbitrator is the only writer of the game state. Every move, whatever its origin, goes through
// ApplyMove and is checked against the latest state under one lock.
type Arbitrator struct {
	logger *slog.Logger
	sender moveSender

	mu       sync.Mutex
	gameID   string
	mode     entity.Mode
	state    entity.GameState
	onChange func()
}

func NewArbitrator(logger *slog.Logger, sender moveSender) *Arbitrator {
	return &Arbitrator{
		logger: logger.With("component", "arbitrator"),
		sender: sender,
		gameID: uuid.NewString(),
		mode:   entity.ModeMenu,
		state:  entity.NewGameState(),
	}
}

// OnChange registers a callback run after every accepted move, outside the lock.
func (that *Arbitrator) OnChange(fn func()) {
	that.mu.Lock()
	that.onChange = fn
	that.mu.Unlock()
}

func (that *Arbitrator) State() (string, entity.GameState) {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.gameID, that.state
}

// Reset starts a new game under mode and returns its id.
func (that *Arbitrator) Reset(mode entity.Mode) string {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.gameID = uuid.NewString()
	that.mode = mode
	that.state = entity.NewGameState()

	return that.gameID
}

// ApplyMove applies cell to the current game. Rejected moves are silent no-ops.
func (that *Arbitrator) ApplyMove(ctx context.Context, cell int, source MoveSource) bool {
	return that.apply(ctx, "", entity.EmptyCell, cell, source)
}

// ApplyMoveFor is ApplyMove for a move computed against gameID; it is dropped when another game
// has started since.
func (that *Arbitrator) ApplyMoveFor(ctx context.Context, gameID string, cell int, source MoveSource) bool {
	return that.apply(ctx, gameID, entity.EmptyCell, cell, source)
}

// ApplyMoveAs is ApplyMoveFor restricted to the turn of mark. An empty gameID matches any game.
func (that *Arbitrator) ApplyMoveAs(
	ctx context.Context, gameID string, mark entity.Mark, cell int, source MoveSource,
) bool {
	return that.apply(ctx, gameID, mark, cell, source)
}

func (that *Arbitrator) apply(ctx context.Context, gameID string, mark entity.Mark, cell int, source MoveSource) bool {
	log := that.logger.With("method", "ApplyMove")

	that.mu.Lock()
	if gameID != "" && gameID != that.gameID {
		that.mu.Unlock()
		log.Debug("stale move dropped", "cell", cell, "game_id", gameID)
		return false
	}

	if mark != entity.EmptyCell && mark != that.state.NextMark {
		that.mu.Unlock()
		log.Debug("move out of turn", "cell", cell, "mark", mark)
		return false
	}

	next, applied := tictactoe.ApplyMove(that.state, cell)
	if !applied {
		that.mu.Unlock()
		log.Debug("move ignored", "cell", cell, "source", source)
		return false
	}

	that.state = next
	forward := that.mode == entity.ModePeripheral && source == SourceLocal
	onChange := that.onChange
	that.mu.Unlock()

	log.Debug("move applied", "cell", cell, "source", source, "result", entity.ResultLabel(next.Result))

	if forward && that.sender != nil {
		that.sender.SendMove(ctx, cell)
	}

	if onChange != nil {
		onChange()
	}

	return true
}
