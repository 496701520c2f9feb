// Package kcp carries the single-byte move protocol over reliable UDP sessions so that a
// peripheral can be emulated on another machine or process.
//
// Handshake: the central sends the 16 raw bytes of the game service UUID as one message; a peer
// offering that service answers with its name as one message. Every later message is a single
// byte holding a cell index.
package kcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/xtaci/kcp-go/v5"

	"github.com/rocketscienceinc/neon-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/neon-tictactoe/internal/peripheral"
)

const (
	maxMessageSize = 256

	defaultHandshakeTimeout = 5 * time.Second
)

var ErrAlreadySubscribed = errors.New("channel already has a subscriber")

type Dialer struct {
	logger           *slog.Logger
	addr             string
	service          uuid.UUID
	handshakeTimeout time.Duration
	keepalive        keepalive
}

func NewDialer(logger *slog.Logger, addr, serviceUUID string, handshakeTimeout time.Duration) (*Dialer, error) {
	service, err := uuid.Parse(serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid service uuid: %w", err)
	}

	if handshakeTimeout <= 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}

	return &Dialer{
		logger:           logger.With("component", "kcp-dialer"),
		addr:             addr,
		service:          service,
		handshakeTimeout: handshakeTimeout,
		keepalive:        defaultKeepalive(),
	}, nil
}

func (that *Dialer) Dial(ctx context.Context, onLost func()) (peripheral.Channel, error) {
	log := that.logger.With("method", "Dial")

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrUserCancelled, err)
	}

	session, err := kcp.DialWithOptions(that.addr, nil, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrCapabilityUnavailable, err)
	}

	name, err := that.handshake(ctx, session)
	if err != nil {
		_ = session.Close()

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", apperror.ErrUserCancelled, ctxErr)
		}

		return nil, err
	}

	log.Info("peer answered handshake", "peer", name, "addr", that.addr)

	result := &channel{
		logger:    that.logger,
		session:   session,
		name:      name,
		onLost:    onLost,
		keepalive: that.keepalive,
		done:      make(chan struct{}),
	}
	go sendHeartbeats(session, that.keepalive.interval, result.done)

	return result, nil
}

func (that *Dialer) handshake(ctx context.Context, session *kcp.UDPSession) (string, error) {
	if _, err := session.Write(that.service[:]); err != nil {
		return "", fmt.Errorf("failed to send service discovery: %w", err)
	}

	if err := session.SetReadDeadline(time.Now().Add(that.handshakeTimeout)); err != nil {
		return "", fmt.Errorf("failed to set handshake deadline: %w", err)
	}

	// abort the handshake when the caller gives up
	stop := context.AfterFunc(ctx, func() {
		_ = session.SetReadDeadline(time.Now())
	})

	buf := make([]byte, maxMessageSize)
	n, err := session.Read(buf)
	stop()
	if err != nil {
		return "", fmt.Errorf("%w: no answer from %s: %w", apperror.ErrDeviceNotFound, that.addr, err)
	}

	if err = session.SetReadDeadline(time.Time{}); err != nil {
		return "", fmt.Errorf("failed to clear handshake deadline: %w", err)
	}

	return strings.TrimSpace(string(buf[:n])), nil
}

type channel struct {
	logger  *slog.Logger
	session *kcp.UDPSession
	name    string
	onLost  func()

	keepalive keepalive
	done      chan struct{}

	subscribed atomic.Bool
	closed     atomic.Bool
	lostOnce   sync.Once
}

func (that *channel) PeerName() string {
	return that.name
}

func (that *channel) Subscribe(fn func(payload []byte)) error {
	if !that.subscribed.CompareAndSwap(false, true) {
		return ErrAlreadySubscribed
	}

	go that.readLoop(fn)

	return nil
}

func (that *channel) Write(_ context.Context, payload []byte) error {
	if _, err := that.session.Write(payload); err != nil {
		return fmt.Errorf("failed to write move: %w", err)
	}

	return nil
}

func (that *channel) Close() error {
	if !that.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(that.done)

	if err := that.session.Close(); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	return nil
}

func (that *channel) readLoop(fn func(payload []byte)) {
	buf := make([]byte, maxMessageSize)

	for {
		n, err := readMessage(that.session, buf, that.keepalive.timeout)
		if err != nil {
			if !that.closed.Load() && that.onLost != nil {
				that.logger.Warn("session read failed", "peer", that.name, "error", err)
				that.lostOnce.Do(that.onLost)
			}
			return
		}

		fn(append([]byte(nil), buf[:n]...))
	}
}
