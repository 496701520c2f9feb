package peripheral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rocketscienceinc/neon-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/neon-tictactoe/internal/entity"
)

const (
	UnknownPeerName   = "Unknown Device"
	DisconnectedError = "Device Disconnected"

	maxCell = entity.BoardSize - 1
)

type LinkState string

const (
	StateDisconnected LinkState = "disconnected"
	StateConnecting   LinkState = "connecting"
	StateConnected    LinkState = "connected"
)

// Dialer opens a channel to a peer advertising the game service. onLost is invoked by the driver
// when the link drops without Close having been called.
type Dialer interface {
	Dial(ctx context.Context, onLost func()) (Channel, error)
}

// Channel is an established move exchange with a single peer.
type Channel interface {
	PeerName() string
	Subscribe(fn func(payload []byte)) error
	Write(ctx context.Context, payload []byte) error
	Close() error
}

// Link is the single owner of the peripheral connection state.
type Link struct {
	logger *slog.Logger
	dialer Dialer

	mu           sync.Mutex
	state        LinkState
	conn         entity.PeripheralConnectionState
	channel      Channel
	session      uint64
	abortReason  error
	abortDial    context.CancelFunc
	handler      func(cell int)
	onDisconnect func()
}

func NewLink(logger *slog.Logger, dialer Dialer) *Link {
	return &Link{
		logger: logger.With("component", "peripheral"),
		dialer: dialer,
		state:  StateDisconnected,
	}
}

// Connect performs the handshake and subscribes to inbound moves. onDisconnect fires at most
// once, and only for an unsolicited link loss.
func (that *Link) Connect(ctx context.Context, onDisconnect func()) (string, error) {
	log := that.logger.With("method", "Connect")

	that.mu.Lock()
	if that.state == StateConnecting {
		that.mu.Unlock()
		return "", apperror.ErrConnectInProgress
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	previous := that.detach()
	that.session++
	session := that.session
	that.abortReason = nil
	that.abortDial = cancel
	that.state = StateConnecting
	that.conn = entity.PeripheralConnectionState{}
	that.mu.Unlock()

	closeChannel(log, previous)

	channel, err := that.dialer.Dial(ctx, func() { that.handleLost(session) })
	if err == nil {
		err = channel.Subscribe(func(payload []byte) { that.handleNotification(session, payload) })
		if err != nil {
			closeChannel(log, channel)
			err = fmt.Errorf("failed to subscribe to move notifications: %w", err)
		}
	}

	if err != nil {
		err = classifyDialError(ctx, err)
		log.Error("peripheral connection failed", "error", err)

		that.mu.Lock()
		if that.session == session {
			that.abortDial = nil
			that.state = StateDisconnected
			that.conn = entity.PeripheralConnectionState{LastError: err.Error()}
		}
		that.mu.Unlock()

		return "", err
	}

	name := channel.PeerName()
	if name == "" {
		name = UnknownPeerName
	}

	that.mu.Lock()
	if that.session != session {
		reason := that.abortReason
		that.mu.Unlock()
		closeChannel(log, channel)
		return "", fmt.Errorf("connection to %s aborted: %w", name, reason)
	}
	that.abortDial = nil
	that.channel = channel
	that.state = StateConnected
	that.onDisconnect = onDisconnect
	that.conn = entity.PeripheralConnectionState{Connected: true, PeerName: name}
	that.mu.Unlock()

	log.Info("peripheral connected", "peer", name)

	return name, nil
}

// Disconnect tears the subscription down unconditionally and aborts a handshake in progress. It
// is safe to call repeatedly.
func (that *Link) Disconnect() {
	that.mu.Lock()
	if that.abortDial != nil {
		that.abortDial()
		that.abortDial = nil
	}
	channel := that.detach()
	that.session++
	that.abortReason = apperror.ErrUserCancelled
	that.state = StateDisconnected
	that.conn = entity.PeripheralConnectionState{}
	that.mu.Unlock()

	closeChannel(that.logger.With("method", "Disconnect"), channel)
}

// Reset clears the mirrored connection state, including the last error.
func (that *Link) Reset() {
	that.Disconnect()
}

// SetMoveHandler registers the callback for inbound moves, replacing any previous one.
func (that *Link) SetMoveHandler(handler func(cell int)) {
	that.mu.Lock()
	that.handler = handler
	that.mu.Unlock()
}

// SendMove writes cell as a single byte. Failures are logged and swallowed.
func (that *Link) SendMove(ctx context.Context, cell int) {
	log := that.logger.With("method", "SendMove")

	if cell < 0 || cell > maxCell {
		log.Warn("refusing to send out of range cell", "cell", cell)
		return
	}

	that.mu.Lock()
	channel := that.channel
	that.mu.Unlock()

	if channel == nil {
		return
	}

	if err := channel.Write(ctx, []byte{byte(cell)}); err != nil {
		log.Error("failed to send move", "cell", cell, "error", err)
	}
}

func (that *Link) State() entity.PeripheralConnectionState {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.conn
}

func (that *Link) linkState() LinkState {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.state
}

func (that *Link) handleNotification(session uint64, payload []byte) {
	log := that.logger.With("method", "handleNotification")

	if len(payload) == 0 {
		log.Warn("empty move notification dropped")
		return
	}

	cell := int(payload[0])
	if cell > maxCell {
		log.Warn("out of range move notification dropped", "value", cell)
		return
	}

	that.mu.Lock()
	handler := that.handler
	current := that.session == session && that.state != StateDisconnected
	that.mu.Unlock()

	if !current || handler == nil {
		return
	}

	handler(cell)
}

func (that *Link) handleLost(session uint64) {
	that.mu.Lock()
	if that.session != session {
		that.mu.Unlock()
		return
	}

	if that.state == StateConnecting {
		// Connect observes the bumped session and reports the loss.
		that.session++
		that.abortReason = apperror.ErrConnectionLost
		that.state = StateDisconnected
		that.conn = entity.PeripheralConnectionState{LastError: DisconnectedError}
		that.mu.Unlock()
		return
	}

	channel := that.detach()
	onDisconnect := that.onDisconnect
	that.onDisconnect = nil
	that.session++
	that.state = StateDisconnected
	that.conn = entity.PeripheralConnectionState{LastError: DisconnectedError}
	that.mu.Unlock()

	log := that.logger.With("method", "handleLost")
	log.Warn("peripheral link lost", "error", apperror.ErrConnectionLost)

	closeChannel(log, channel)

	if onDisconnect != nil {
		onDisconnect()
	}
}

// detach must be called with mu held.
func (that *Link) detach() Channel {
	channel := that.channel
	that.channel = nil
	that.onDisconnect = nil

	return channel
}

func closeChannel(log *slog.Logger, channel Channel) {
	if channel == nil {
		return
	}

	if err := channel.Close(); err != nil {
		log.Error("failed to close peripheral channel", "error", err)
	}
}

func classifyDialError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, apperror.ErrCapabilityUnavailable),
		errors.Is(err, apperror.ErrDeviceNotFound),
		errors.Is(err, apperror.ErrUserCancelled):
		return err
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("%w: %w", apperror.ErrUserCancelled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", apperror.ErrDeviceNotFound, err)
	default:
		return fmt.Errorf("failed to connect to peripheral: %w", err)
	}
}
