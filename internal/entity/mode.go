package entity

import (
	"fmt"

	"github.com/rocketscienceinc/neon-tictactoe/internal/apperror"
)

type Mode string

const (
	ModeMenu       Mode = "menu"
	ModeLocal      Mode = "local"
	ModeAssisted   Mode = "assisted"
	ModePeripheral Mode = "peripheral"
)

func ParseMode(value string) (Mode, error) {
	switch mode := Mode(value); mode {
	case ModeMenu, ModeLocal, ModeAssisted, ModePeripheral:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q", apperror.ErrUnknownMode, value)
	}
}

// PeripheralConnectionState mirrors the peripheral link for display. Empty strings mean absent.
type PeripheralConnectionState struct {
	Connected bool   `json:"connected"`
	PeerName  string `json:"peer_name,omitempty"`
	LastError string `json:"last_error,omitempty"`
}
