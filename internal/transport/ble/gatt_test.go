package ble

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testService        = "12345678-1234-1234-1234-123456789abc"
	testCharacteristic = "87654321-4321-4321-4321-cba987654321"
)

func TestNewDialer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("Parses the game service identifiers", func(t *testing.T) {
		// When: creating a dialer with valid identifiers and no scan timeout
		dialer, err := NewDialer(logger, testService, testCharacteristic, 0)

		// Then: the identifiers round-trip and the default timeout applies
		require.NoError(t, err)
		assert.Equal(t, testService, dialer.service.String())
		assert.Equal(t, testCharacteristic, dialer.characteristic.String())
		assert.Equal(t, defaultScanTimeout, dialer.scanTimeout)
	})

	t.Run("Rejects a malformed service identifier", func(t *testing.T) {
		_, err := NewDialer(logger, "game-service", testCharacteristic, time.Second)

		require.Error(t, err)
	})

	t.Run("Rejects a malformed characteristic identifier", func(t *testing.T) {
		_, err := NewDialer(logger, testService, "move", time.Second)

		require.Error(t, err)
	})
}
