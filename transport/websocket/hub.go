package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rocketscienceinc/neon-tictactoe/internal/entity"
)

const (
	broadcastBuffer = 16
	clientBuffer    = 16
)

var ErrBroadcastFull = errors.New("broadcast queue is full")

// Hub fans snapshots out to every connected client. Slow clients lose messages rather than
// blocking the game.
type Hub struct {
	logger *slog.Logger

	mu        sync.Mutex
	clients   map[*Client]struct{}
	broadcast chan []byte
}

type Client struct {
	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:    logger.With("component", "ws_hub"),
		clients:   make(map[*Client]struct{}),
		broadcast: make(chan []byte, broadcastBuffer),
	}
}

func (that *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			that.closeAll()
			return
		case data := <-that.broadcast:
			that.mu.Lock()
			for client := range that.clients {
				client.enqueue(data)
			}
			that.mu.Unlock()
		}
	}
}

// Publish queues snapshot for every client registered when it is delivered.
func (that *Hub) Publish(_ context.Context, snapshot *entity.Snapshot) error {
	data, err := stateMessage(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	select {
	case that.broadcast <- data:
		return nil
	default:
		return ErrBroadcastFull
	}
}

func (that *Hub) Register(client *Client) {
	that.mu.Lock()
	that.clients[client] = struct{}{}
	that.mu.Unlock()
}

func (that *Hub) Unregister(client *Client) {
	that.mu.Lock()
	if _, ok := that.clients[client]; ok {
		delete(that.clients, client)
		client.close()
	}
	that.mu.Unlock()
}

func (that *Hub) clientCount() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.clients)
}

func (that *Hub) closeAll() {
	that.mu.Lock()
	for client := range that.clients {
		delete(that.clients, client)
		client.close()
	}
	that.mu.Unlock()
}

func newClient() *Client {
	return &Client{send: make(chan []byte, clientBuffer)}
}

// enqueue drops data when the client is gone or its buffer is full.
func (that *Client) enqueue(data []byte) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return
	}

	select {
	case that.send <- data:
	default:
	}
}

func (that *Client) close() {
	that.mu.Lock()
	defer that.mu.Unlock()

	if !that.closed {
		that.closed = true
		close(that.send)
	}
}
