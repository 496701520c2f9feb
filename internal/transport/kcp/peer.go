package kcp

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xtaci/kcp-go/v5"
)

var ErrInvalidMovePayload = errors.New("move payload must be a single byte")

// Listener is the peripheral side of the protocol.
type Listener struct {
	logger   *slog.Logger
	listener *kcp.Listener
	service  uuid.UUID
	name     string

	keepalive keepalive
}

func Listen(logger *slog.Logger, addr, serviceUUID, name string) (*Listener, error) {
	service, err := uuid.Parse(serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid service uuid: %w", err)
	}

	listener, err := kcp.ListenWithOptions(addr, nil, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return &Listener{
		logger:    logger.With("component", "kcp-peer"),
		listener:  listener,
		service:   service,
		name:      name,
		keepalive: defaultKeepalive(),
	}, nil
}

func (that *Listener) Addr() net.Addr {
	return that.listener.Addr()
}

// Accept waits for a central that asks for the game service. Centrals asking for another
// service are dropped without an answer.
func (that *Listener) Accept() (*Peer, error) {
	log := that.logger.With("method", "Accept")

	for {
		session, err := that.listener.AcceptKCP()
		if err != nil {
			return nil, fmt.Errorf("failed to accept session: %w", err)
		}

		buf := make([]byte, maxMessageSize)
		n, err := readMessage(session, buf, that.keepalive.timeout)
		if err != nil || !bytes.Equal(buf[:n], that.service[:]) {
			log.Warn("dropping central without game service", "remote", session.RemoteAddr(), "error", err)
			_ = session.Close()
			continue
		}

		if _, err = session.Write([]byte(that.name)); err != nil {
			_ = session.Close()
			return nil, fmt.Errorf("failed to answer handshake: %w", err)
		}

		log.Info("central connected", "remote", session.RemoteAddr())

		peer := &Peer{
			session: session,
			timeout: that.keepalive.timeout,
			done:    make(chan struct{}),
		}
		go sendHeartbeats(session, that.keepalive.interval, peer.done)

		return peer, nil
	}
}

func (that *Listener) Close() error {
	if err := that.listener.Close(); err != nil {
		return fmt.Errorf("failed to close listener: %w", err)
	}

	return nil
}

// Peer is one accepted central.
type Peer struct {
	session *kcp.UDPSession
	timeout time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

// ReadMove blocks until the central sends a move. A central that stays silent past the link
// timeout is gone.
func (that *Peer) ReadMove() (int, error) {
	buf := make([]byte, maxMessageSize)

	n, err := readMessage(that.session, buf, that.timeout)
	if err != nil {
		return 0, fmt.Errorf("failed to read move: %w", err)
	}

	if n != 1 {
		return 0, fmt.Errorf("%w: got %d bytes", ErrInvalidMovePayload, n)
	}

	return int(buf[0]), nil
}

func (that *Peer) SendMove(cell int) error {
	if _, err := that.session.Write([]byte{byte(cell)}); err != nil {
		return fmt.Errorf("failed to send move: %w", err)
	}

	return nil
}

func (that *Peer) Close() error {
	that.closeOnce.Do(func() { close(that.done) })

	if err := that.session.Close(); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	return nil
}
