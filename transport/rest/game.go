package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rocketscienceinc/neon-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/neon-tictactoe/internal/entity"
)

type modeRequest struct {
	Mode string `json:"mode"`
}

type moveRequest struct {
	Cell *int `json:"cell"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type gameHandler struct {
	logger *slog.Logger
	game   gameManager
}

func newGameHandler(logger *slog.Logger, game gameManager) *gameHandler {
	return &gameHandler{
		logger: logger.With("component", "rest_game"),
		game:   game,
	}
}

func (that *gameHandler) state(w http.ResponseWriter, _ *http.Request) {
	that.writeJSON(w, http.StatusOK, that.game.Snapshot())
}

func (that *gameHandler) selectMode(w http.ResponseWriter, r *http.Request) {
	var request modeRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		that.writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	mode, err := entity.ParseMode(request.Mode)
	if err != nil {
		that.writeError(w, err)
		return
	}

	that.game.SelectMode(r.Context(), mode)
	that.writeJSON(w, http.StatusOK, that.game.Snapshot())
}

func (that *gameHandler) menu(w http.ResponseWriter, r *http.Request) {
	that.game.ReturnToMenu(r.Context())
	that.writeJSON(w, http.StatusOK, that.game.Snapshot())
}

func (that *gameHandler) newGame(w http.ResponseWriter, r *http.Request) {
	that.game.NewGame(r.Context())
	that.writeJSON(w, http.StatusOK, that.game.Snapshot())
}

// move answers with the snapshot even when the active mode ignored the move.
func (that *gameHandler) move(w http.ResponseWriter, r *http.Request) {
	var request moveRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		that.writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	if request.Cell == nil || *request.Cell < 0 || *request.Cell >= entity.BoardSize {
		that.writeError(w, fmt.Errorf("%w: cell must be between 0 and %d", apperror.ErrInvalidMove, entity.BoardSize-1))
		return
	}

	that.game.Play(r.Context(), *request.Cell)
	that.writeJSON(w, http.StatusOK, that.game.Snapshot())
}

func (that *gameHandler) connect(w http.ResponseWriter, r *http.Request) {
	if _, err := that.game.ConnectPeripheral(r.Context()); err != nil {
		that.writeError(w, err)
		return
	}

	that.writeJSON(w, http.StatusOK, that.game.Snapshot())
}

func (that *gameHandler) disconnect(w http.ResponseWriter, r *http.Request) {
	if err := that.game.DisconnectPeripheral(r.Context()); err != nil {
		that.writeError(w, err)
		return
	}

	that.writeJSON(w, http.StatusOK, that.game.Snapshot())
}

func (that *gameHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		that.logger.With("method", "writeJSON").Error("failed to write response", "error", err)
	}
}

func (that *gameHandler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		that.logger.With("method", "writeError").Error("request failed", "error", err)
	}

	that.writeJSON(w, status, errorResponse{Error: err.Error()})
}

var errBadRequest = errors.New("malformed request body")

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, apperror.ErrUnknownMode),
		errors.Is(err, apperror.ErrWrongMode),
		errors.Is(err, apperror.ErrInvalidMove),
		errors.Is(err, apperror.ErrUserCancelled):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrConnectInProgress),
		errors.Is(err, apperror.ErrConnectionLost):
		return http.StatusConflict
	case errors.Is(err, apperror.ErrCapabilityUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
