package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/neon-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/neon-tictactoe/internal/entity"
)

var ErrUnknownAction = errors.New("unknown action")

type gameManager interface {
	Snapshot() *entity.Snapshot
	SelectMode(ctx context.Context, mode entity.Mode)
	ReturnToMenu(ctx context.Context)
	NewGame(ctx context.Context)
	Play(ctx context.Context, cell int) bool
	ConnectPeripheral(ctx context.Context) (string, error)
	DisconnectPeripheral(ctx context.Context) error
}

type Server struct {
	logger       *slog.Logger
	game         gameManager
	hub          *Hub
	upgrader     websocket.Upgrader
	pingInterval time.Duration

	handlers map[string]func(ctx context.Context, message *Message, client *Client) error
}

func New(logger *slog.Logger, game gameManager, hub *Hub) *Server {
	server := &Server{
		logger: logger.With("component", "websocket"),
		game:   game,
		hub:    hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		pingInterval: idlePingInterval,

		handlers: make(map[string]func(context.Context, *Message, *Client) error),
	}

	server.handlers[actionGameTurn] = server.handleGameTurn
	server.handlers[actionGameNew] = server.handleNewGame
	server.handlers[actionModeSelect] = server.handleModeSelect
	server.handlers[actionMenu] = server.handleMenu
	server.handlers[actionPeripheralConnect] = server.handlePeripheralConnect
	server.handlers[actionPeripheralDisconnect] = server.handlePeripheralDisconnect

	return server
}

// ServeHTTP upgrades the request, sends the current snapshot and then serves client actions
// until the socket closes.
func (that *Server) ServeHTTP(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "ServeHTTP")

	conn, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newClient()
	that.hub.Register(client)
	defer that.hub.Unregister(client)

	if data, err := stateMessage(that.game.Snapshot()); err == nil {
		client.enqueue(data)
	}

	go func() {
		if err := writeWithHeartbeat(conn, client.send, that.pingInterval); err != nil {
			log.Debug("writer stopped", "error", err)
		}
		cancel()
		_ = conn.Close()
	}()

	log.Info("WebSocket connection established", "remote", req.RemoteAddr)

	that.handleMessages(ctx, conn, client)
}

func (that *Server) handleMessages(ctx context.Context, conn *websocket.Conn, client *Client) {
	log := that.logger.With("method", "handleMessages")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("connection closed", "error", err)
			}
			return
		}

		var message Message
		if err = json.Unmarshal(data, &message); err != nil {
			log.Error("failed to unmarshal message", "error", err)
			that.sendError(client, "", fmt.Errorf("malformed message: %w", err))
			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			that.sendError(client, message.Action, fmt.Errorf("%w: %q", ErrUnknownAction, message.Action))
			continue
		}

		if err = handler(ctx, &message, client); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
			that.sendError(client, message.Action, err)
		}
	}
}

func (that *Server) handleGameTurn(ctx context.Context, message *Message, _ *Client) error {
	payload, err := decodePayload(message)
	if err != nil {
		return err
	}

	if payload.Cell == nil || *payload.Cell < 0 || *payload.Cell >= entity.BoardSize {
		return fmt.Errorf("%w: cell must be between 0 and %d", apperror.ErrInvalidMove, entity.BoardSize-1)
	}

	that.game.Play(ctx, *payload.Cell)

	return nil
}

func (that *Server) handleNewGame(ctx context.Context, _ *Message, _ *Client) error {
	that.game.NewGame(ctx)

	return nil
}

func (that *Server) handleModeSelect(ctx context.Context, message *Message, _ *Client) error {
	payload, err := decodePayload(message)
	if err != nil {
		return err
	}

	mode, err := entity.ParseMode(payload.Mode)
	if err != nil {
		return err
	}

	that.game.SelectMode(ctx, mode)

	return nil
}

func (that *Server) handleMenu(ctx context.Context, _ *Message, _ *Client) error {
	that.game.ReturnToMenu(ctx)

	return nil
}

// handlePeripheralConnect runs the handshake in the background so the client can still cancel it.
func (that *Server) handlePeripheralConnect(ctx context.Context, message *Message, client *Client) error {
	go func() {
		if _, err := that.game.ConnectPeripheral(ctx); err != nil {
			that.logger.With("method", "handlePeripheralConnect").Warn("connect failed", "error", err)
			that.sendError(client, message.Action, err)
		}
	}()

	return nil
}

func (that *Server) handlePeripheralDisconnect(ctx context.Context, _ *Message, _ *Client) error {
	return that.game.DisconnectPeripheral(ctx)
}

func (that *Server) sendError(client *Client, action string, err error) {
	data, encodeErr := encode(action, ErrorPayload{Error: err.Error()})
	if encodeErr != nil {
		that.logger.With("method", "sendError").Error("failed to encode error", "error", encodeErr)
		return
	}

	client.enqueue(data)
}

func decodePayload(message *Message) (*Payload, error) {
	var payload Payload
	if len(message.Payload) == 0 {
		return &payload, nil
	}

	if err := json.Unmarshal(message.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return &payload, nil
}
