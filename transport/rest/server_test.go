package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/neon-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/neon-tictactoe/internal/entity"
	"github.com/rocketscienceinc/neon-tictactoe/internal/usecase"
)

// absentLink behaves like a link whose driver finds no peer.
type absentLink struct {
	err error
}

func (that *absentLink) Connect(context.Context, func()) (string, error) { return "", that.err }
func (that *absentLink) Disconnect()                                     {}
func (that *absentLink) Reset()                                          {}
func (that *absentLink) SetMoveHandler(func(cell int))                   {}
func (that *absentLink) SendMove(context.Context, int)                   {}
func (that *absentLink) State() entity.PeripheralConnectionState {
	return entity.PeripheralConnectionState{}
}

type nopSuggester struct{}

func (nopSuggester) SuggestMove(_ context.Context, board entity.Board) (int, error) {
	return board.EmptyCells()[0], nil
}

func newTestServer(t *testing.T, linkErr error) http.Handler {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := usecase.NewGameManager(logger, &absentLink{err: linkErr}, nopSuggester{}, 0)
	t.Cleanup(manager.Close)

	return New(logger, manager).Handler()
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	request := httptest.NewRequest(method, path, strings.NewReader(body))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	return recorder
}

func decodeSnapshot(t *testing.T, recorder *httptest.ResponseRecorder) entity.Snapshot {
	t.Helper()

	var snapshot entity.Snapshot
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &snapshot))

	return snapshot
}

func TestServer_Ping(t *testing.T) {
	handler := newTestServer(t, nil)

	recorder := doRequest(t, handler, http.MethodGet, "/ping", "")

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "pong", recorder.Body.String())
}

func TestServer_Game(t *testing.T) {
	t.Run("Starts in the menu", func(t *testing.T) {
		handler := newTestServer(t, nil)

		recorder := doRequest(t, handler, http.MethodGet, "/state", "")

		require.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, entity.ModeMenu, decodeSnapshot(t, recorder).Mode)
	})

	t.Run("Plays a local game", func(t *testing.T) {
		// Given: local mode
		handler := newTestServer(t, nil)
		recorder := doRequest(t, handler, http.MethodPost, "/mode", `{"mode":"local"}`)
		require.Equal(t, http.StatusOK, recorder.Code)

		// When: X takes the centre
		recorder = doRequest(t, handler, http.MethodPost, "/game/move", `{"cell":4}`)

		// Then: the returned snapshot shows the move
		require.Equal(t, http.StatusOK, recorder.Code)
		snapshot := decodeSnapshot(t, recorder)
		assert.Equal(t, entity.PlayerX, snapshot.Board[4])
		assert.Equal(t, entity.PlayerO, snapshot.CurrentPlayer)
		assert.Equal(t, "Player O's Turn", snapshot.Status)

		recorder = doRequest(t, handler, http.MethodPost, "/game/new", "")
		assert.Equal(t, entity.Board{}, decodeSnapshot(t, recorder).Board)

		recorder = doRequest(t, handler, http.MethodPost, "/menu", "")
		assert.Equal(t, entity.ModeMenu, decodeSnapshot(t, recorder).Mode)
	})

	t.Run("Rejects bad input", func(t *testing.T) {
		handler := newTestServer(t, nil)

		for _, tc := range []struct {
			path string
			body string
		}{
			{"/mode", `{"mode":"tournament"}`},
			{"/mode", `not json`},
			{"/game/move", `{"cell":9}`},
			{"/game/move", `{"cell":-1}`},
			{"/game/move", `{}`},
		} {
			recorder := doRequest(t, handler, http.MethodPost, tc.path, tc.body)

			assert.Equal(t, http.StatusBadRequest, recorder.Code, tc.body)
			assert.Contains(t, recorder.Body.String(), `"error"`, tc.body)
		}
	})
}

func TestServer_Peripheral(t *testing.T) {
	t.Run("Lobby actions outside peripheral mode are rejected", func(t *testing.T) {
		handler := newTestServer(t, nil)

		recorder := doRequest(t, handler, http.MethodPost, "/peripheral/connect", "")

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("Connection errors map to status codes", func(t *testing.T) {
		for err, status := range map[error]int{
			apperror.ErrDeviceNotFound:        http.StatusNotFound,
			apperror.ErrCapabilityUnavailable: http.StatusServiceUnavailable,
			apperror.ErrConnectInProgress:     http.StatusConflict,
		} {
			handler := newTestServer(t, err)
			doRequest(t, handler, http.MethodPost, "/mode", `{"mode":"peripheral"}`)

			recorder := doRequest(t, handler, http.MethodPost, "/peripheral/connect", "")

			assert.Equal(t, status, recorder.Code, err.Error())
		}
	})

	t.Run("Disconnect answers with the lobby", func(t *testing.T) {
		handler := newTestServer(t, nil)
		doRequest(t, handler, http.MethodPost, "/mode", `{"mode":"peripheral"}`)

		recorder := doRequest(t, handler, http.MethodPost, "/peripheral/disconnect", "")

		require.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, usecase.StatusNoPeripheral, decodeSnapshot(t, recorder).Status)
	})
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(fmt.Errorf("wrapped: %w", apperror.ErrWrongMode)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}
