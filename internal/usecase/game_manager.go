package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rocketscienceinc/neon-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/neon-tictactoe/internal/entity"
)

const (
	StatusDraw         = "It's a Draw!"
	StatusThinking     = "AI is thinking..."
	StatusNoPeripheral = "Connect a peripheral to play"
)

type peripheralLink interface {
	Connect(ctx context.Context, onDisconnect func()) (string, error)
	Disconnect()
	Reset()
	SetMoveHandler(handler func(cell int))
	SendMove(ctx context.Context, cell int)
	State() entity.PeripheralConnectionState
}

type moveSuggester interface {
	SuggestMove(ctx context.Context, board entity.Board) (int, error)
}

type snapshotPublisher interface {
	Publish(ctx context.Context, snapshot *entity.Snapshot) error
}

// GameManager routes user intents to the active mode and publishes the resulting snapshots.
type GameManager struct {
	logger     *slog.Logger
	arbitrator *Arbitrator
	link       peripheralLink
	suggester  moveSuggester
	thinkDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	mode           entity.Mode
	version        uint64
	thinkingGameID string
	cancelThinking context.CancelFunc
	publishers     []snapshotPublisher
}

func NewGameManager(
	logger *slog.Logger, link peripheralLink, suggester moveSuggester, thinkDelay time.Duration,
) *GameManager {
	ctx, cancel := context.WithCancel(context.Background())

	manager := &GameManager{
		logger:     logger.With("component", "game_manager"),
		arbitrator: NewArbitrator(logger, link),
		link:       link,
		suggester:  suggester,
		thinkDelay: thinkDelay,
		ctx:        ctx,
		cancel:     cancel,
		mode:       entity.ModeMenu,
	}

	manager.arbitrator.OnChange(manager.handleChange)
	link.SetMoveHandler(manager.handleRemoteMove)

	return manager
}

// AddPublisher registers a receiver for every snapshot published from now on.
func (that *GameManager) AddPublisher(publisher snapshotPublisher) {
	that.mu.Lock()
	that.publishers = append(that.publishers, publisher)
	that.mu.Unlock()
}

func (that *GameManager) Mode() entity.Mode {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.mode
}

// SelectMode leaves the current mode and starts a new game in mode.
func (that *GameManager) SelectMode(ctx context.Context, mode entity.Mode) {
	if mode == entity.ModeMenu {
		that.ReturnToMenu(ctx)
		return
	}

	previous := that.Mode()
	if previous == entity.ModePeripheral || mode == entity.ModePeripheral {
		that.link.Reset()
	}

	that.mu.Lock()
	that.resetGame(mode)
	that.mu.Unlock()

	that.logger.With("method", "SelectMode").Info("mode selected", "from", previous, "to", mode)

	that.publish()
}

func (that *GameManager) ReturnToMenu(_ context.Context) {
	if that.Mode() == entity.ModePeripheral {
		that.link.Disconnect()
	}

	that.mu.Lock()
	that.resetGame(entity.ModeMenu)
	that.mu.Unlock()

	that.publish()
}

// NewGame clears the board and keeps the mode.
func (that *GameManager) NewGame(_ context.Context) {
	that.mu.Lock()
	that.resetGame(that.mode)
	that.mu.Unlock()

	that.publish()
}

// Play applies a move of the local player. Moves the active mode does not accept are ignored.
func (that *GameManager) Play(ctx context.Context, cell int) bool {
	that.mu.Lock()
	mode := that.mode
	thinking := that.thinkingGameID != ""
	that.mu.Unlock()

	mark := entity.EmptyCell

	switch mode {
	case entity.ModeLocal:
	case entity.ModeAssisted:
		if thinking {
			return false
		}
		mark = entity.PlayerX
	case entity.ModePeripheral:
		if !that.link.State().Connected {
			return false
		}
		mark = entity.PlayerX
	default:
		return false
	}

	return that.arbitrator.ApplyMoveAs(ctx, "", mark, cell, SourceLocal)
}

// ConnectPeripheral starts a fresh game and runs the lobby handshake.
func (that *GameManager) ConnectPeripheral(ctx context.Context) (string, error) {
	log := that.logger.With("method", "ConnectPeripheral")

	// The board is cleared before subscribing so that a move the peer sends right after the
	// handshake lands on the new game.
	that.mu.Lock()
	if that.mode != entity.ModePeripheral {
		that.mu.Unlock()
		return "", fmt.Errorf("%w: connect requires peripheral mode", apperror.ErrWrongMode)
	}
	that.resetGame(entity.ModePeripheral)
	that.mu.Unlock()

	name, err := that.link.Connect(ctx, that.handleLinkLost)
	if err != nil {
		that.publish()
		return "", fmt.Errorf("failed to connect peripheral: %w", err)
	}

	log.Info("peripheral ready", "peer", name)

	that.publish()

	return name, nil
}

func (that *GameManager) DisconnectPeripheral(_ context.Context) error {
	if that.Mode() != entity.ModePeripheral {
		return fmt.Errorf("%w: disconnect requires peripheral mode", apperror.ErrWrongMode)
	}

	that.link.Disconnect()
	that.publish()

	return nil
}

// Snapshot returns the current state without publishing it.
func (that *GameManager) Snapshot() *entity.Snapshot {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.snapshot()
}

// Close stops pending suggestions and releases the peripheral link.
func (that *GameManager) Close() {
	that.mu.Lock()
	that.cancel()
	that.mu.Unlock()

	that.wg.Wait()
	that.link.Disconnect()
}

// resetGame must be called with mu held.
func (that *GameManager) resetGame(mode entity.Mode) {
	if that.cancelThinking != nil {
		that.cancelThinking()
		that.cancelThinking = nil
	}

	that.thinkingGameID = ""
	that.mode = mode
	that.arbitrator.Reset(mode)
}

func (that *GameManager) handleChange() {
	that.maybeRequestSuggestion()
	that.publish()
}

func (that *GameManager) handleRemoteMove(cell int) {
	if that.Mode() != entity.ModePeripheral {
		that.logger.With("method", "handleRemoteMove").Debug("remote move outside peripheral mode", "cell", cell)
		return
	}

	that.arbitrator.ApplyMove(that.ctx, cell, SourceRemote)
}

func (that *GameManager) handleLinkLost() {
	that.mu.Lock()
	if that.mode == entity.ModePeripheral {
		that.resetGame(entity.ModeMenu)
	}
	that.mu.Unlock()

	that.logger.With("method", "handleLinkLost").Warn("peripheral lost, back to menu")

	that.publish()
}

func (that *GameManager) maybeRequestSuggestion() {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.mode != entity.ModeAssisted || that.ctx.Err() != nil {
		return
	}

	gameID, state := that.arbitrator.State()
	if state.IsFinished() || state.NextMark != entity.PlayerO || that.thinkingGameID == gameID {
		return
	}

	ctx, cancel := context.WithCancel(that.ctx)
	that.thinkingGameID = gameID
	that.cancelThinking = cancel

	that.wg.Add(1)
	go that.suggest(ctx, cancel, gameID, state.Board)
}

func (that *GameManager) suggest(ctx context.Context, cancel context.CancelFunc, gameID string, board entity.Board) {
	defer that.wg.Done()
	defer cancel()

	log := that.logger.With("method", "suggest", "game_id", gameID)

	timer := time.NewTimer(that.thinkDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		that.finishThinking(gameID)
		return
	case <-timer.C:
	}

	cell, err := that.suggester.SuggestMove(ctx, board)

	that.finishThinking(gameID)

	if ctx.Err() != nil {
		log.Debug("suggestion cancelled")
		return
	}

	if err != nil {
		log.Error("no suggestion", "error", err)
		that.publish()
		return
	}

	if !that.arbitrator.ApplyMoveAs(ctx, gameID, entity.PlayerO, cell, SourceRemote) {
		log.Debug("suggestion discarded", "cell", cell)
		that.publish()
	}
}

func (that *GameManager) finishThinking(gameID string) {
	that.mu.Lock()
	if that.thinkingGameID == gameID {
		that.thinkingGameID = ""
		that.cancelThinking = nil
	}
	that.mu.Unlock()
}

func (that *GameManager) publish() {
	log := that.logger.With("method", "publish")

	that.mu.Lock()
	that.version++
	snapshot := that.snapshot()
	publishers := append([]snapshotPublisher(nil), that.publishers...)
	that.mu.Unlock()

	for _, publisher := range publishers {
		if err := publisher.Publish(that.ctx, snapshot); err != nil {
			log.Error("failed to publish snapshot", "error", err)
		}
	}
}

// snapshot must be called with mu held.
func (that *GameManager) snapshot() *entity.Snapshot {
	gameID, state := that.arbitrator.State()
	connection := that.link.State()
	thinking := that.thinkingGameID != "" && that.thinkingGameID == gameID

	return &entity.Snapshot{
		GameID:        gameID,
		Version:       that.version,
		Mode:          that.mode,
		Board:         state.Board,
		CurrentPlayer: state.NextMark,
		Result:        entity.ResultLabel(state.Result),
		WinningLine:   entity.WinningLine(state.Result),
		Status:        statusText(that.mode, state, connection),
		Thinking:      thinking,
		Connection:    connection,
		UpdatedAt:     time.Now().UTC(),
	}
}

func statusText(mode entity.Mode, state entity.GameState, connection entity.PeripheralConnectionState) string {
	switch {
	case mode == entity.ModeMenu:
		return ""
	case state.Result.Outcome == entity.OutcomeDraw:
		return StatusDraw
	case state.Result.Outcome == entity.OutcomeWin:
		return fmt.Sprintf("Winner: %s", state.Result.Winner)
	case mode == entity.ModePeripheral && !connection.Connected:
		return StatusNoPeripheral
	case mode == entity.ModeAssisted && state.NextMark == entity.PlayerO:
		return StatusThinking
	default:
		return fmt.Sprintf("Player %s's Turn", state.NextMark)
	}
}
