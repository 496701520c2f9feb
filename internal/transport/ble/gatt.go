package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/rocketscienceinc/neon-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/neon-tictactoe/internal/peripheral"
)

const defaultScanTimeout = 15 * time.Second

var errScanStopped = errors.New("scan stopped without a match")

// Dialer is a GATT central that looks for a single peer advertising the game service.
type Dialer struct {
	logger         *slog.Logger
	adapter        *bluetooth.Adapter
	service        bluetooth.UUID
	characteristic bluetooth.UUID
	scanTimeout    time.Duration

	mu      sync.Mutex
	enabled bool
	lost    map[string]func()
}

func NewDialer(logger *slog.Logger, serviceUUID, characteristicUUID string, scanTimeout time.Duration) (*Dialer, error) {
	service, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid service uuid: %w", err)
	}

	characteristic, err := bluetooth.ParseUUID(characteristicUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid characteristic uuid: %w", err)
	}

	if scanTimeout <= 0 {
		scanTimeout = defaultScanTimeout
	}

	return &Dialer{
		logger:         logger.With("component", "ble-dialer"),
		adapter:        bluetooth.DefaultAdapter,
		service:        service,
		characteristic: characteristic,
		scanTimeout:    scanTimeout,
		lost:           make(map[string]func()),
	}, nil
}

func (that *Dialer) Dial(ctx context.Context, onLost func()) (peripheral.Channel, error) {
	log := that.logger.With("method", "Dial")

	if err := that.enable(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrCapabilityUnavailable, err)
	}

	result, err := that.scan(ctx)
	if err != nil {
		return nil, err
	}

	device, err := that.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", result.Address.String(), err)
	}

	characteristic, err := that.discover(device)
	if err != nil {
		if disconnectErr := device.Disconnect(); disconnectErr != nil {
			log.Error("failed to disconnect after discovery failure", "error", disconnectErr)
		}
		return nil, err
	}

	address := device.Address.String()
	that.track(address, onLost)

	log.Info("peripheral discovered", "address", address, "name", result.LocalName())

	return &channel{
		device:         device,
		characteristic: characteristic,
		name:           result.LocalName(),
		release:        func() { that.untrack(address) },
	}, nil
}

func (that *Dialer) enable() error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.enabled {
		return nil
	}

	if err := that.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable adapter: %w", err)
	}

	that.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if !connected {
			that.handleDisconnected(device.Address.String())
		}
	})
	that.enabled = true

	return nil
}

func (that *Dialer) scan(parent context.Context) (bluetooth.ScanResult, error) {
	ctx, cancel := context.WithTimeout(parent, that.scanTimeout)
	defer cancel()

	found := make(chan bluetooth.ScanResult, 1)
	done := make(chan error, 1)

	go func() {
		done <- that.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !result.HasServiceUUID(that.service) {
				return
			}

			select {
			case found <- result:
			default:
			}

			_ = adapter.StopScan()
		})
	}()

	select {
	case result := <-found:
		<-done
		return result, nil
	case err := <-done:
		select {
		case result := <-found:
			return result, nil
		default:
		}
		if err != nil {
			return bluetooth.ScanResult{}, fmt.Errorf("%w: %w", apperror.ErrCapabilityUnavailable, err)
		}
		return bluetooth.ScanResult{}, fmt.Errorf("%w: %w", apperror.ErrDeviceNotFound, errScanStopped)
	case <-ctx.Done():
		_ = that.adapter.StopScan()
		<-done

		if parent.Err() != nil {
			return bluetooth.ScanResult{}, fmt.Errorf("%w: %w", apperror.ErrUserCancelled, parent.Err())
		}
		return bluetooth.ScanResult{}, fmt.Errorf("%w: %w", apperror.ErrDeviceNotFound, ctx.Err())
	}
}

func (that *Dialer) discover(device bluetooth.Device) (bluetooth.DeviceCharacteristic, error) {
	services, err := device.DiscoverServices([]bluetooth.UUID{that.service})
	if err != nil {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("%w: service discovery failed: %w", apperror.ErrDeviceNotFound, err)
	}
	if len(services) == 0 {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("%w: game service missing", apperror.ErrDeviceNotFound)
	}

	characteristics, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{that.characteristic})
	if err != nil {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("%w: characteristic discovery failed: %w", apperror.ErrDeviceNotFound, err)
	}
	if len(characteristics) == 0 {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("%w: move characteristic missing", apperror.ErrDeviceNotFound)
	}

	return characteristics[0], nil
}

func (that *Dialer) track(address string, onLost func()) {
	that.mu.Lock()
	that.lost[address] = onLost
	that.mu.Unlock()
}

func (that *Dialer) untrack(address string) {
	that.mu.Lock()
	delete(that.lost, address)
	that.mu.Unlock()
}

func (that *Dialer) handleDisconnected(address string) {
	that.mu.Lock()
	onLost, ok := that.lost[address]
	delete(that.lost, address)
	that.mu.Unlock()

	if ok && onLost != nil {
		that.logger.Warn("peripheral dropped the connection", "address", address)
		onLost()
	}
}

type channel struct {
	device         bluetooth.Device
	characteristic bluetooth.DeviceCharacteristic
	name           string
	release        func()

	closed atomic.Bool
}

func (that *channel) PeerName() string {
	return that.name
}

func (that *channel) Subscribe(fn func(payload []byte)) error {
	if err := that.characteristic.EnableNotifications(fn); err != nil {
		return fmt.Errorf("failed to enable notifications: %w", err)
	}

	return nil
}

func (that *channel) Write(_ context.Context, payload []byte) error {
	if _, err := that.characteristic.WriteWithoutResponse(payload); err != nil {
		return fmt.Errorf("failed to write characteristic: %w", err)
	}

	return nil
}

func (that *channel) Close() error {
	if !that.closed.CompareAndSwap(false, true) {
		return nil
	}

	// stop tracking first so the disconnect is not reported as a link loss
	that.release()

	if err := that.device.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect device: %w", err)
	}

	return nil
}
