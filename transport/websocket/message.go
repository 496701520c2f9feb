package websocket

import (
	"encoding/json"

	"github.com/rocketscienceinc/neon-tictactoe/internal/entity"
)

const (
	actionState                = "state"
	actionPing                 = "ping"
	actionGameTurn             = "game:turn"
	actionGameNew              = "game:new"
	actionModeSelect           = "mode:select"
	actionMenu                 = "menu"
	actionPeripheralConnect    = "peripheral:connect"
	actionPeripheralDisconnect = "peripheral:disconnect"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Payload struct {
	Cell *int   `json:"cell,omitempty"`
	Mode string `json:"mode,omitempty"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

func stateMessage(snapshot *entity.Snapshot) ([]byte, error) {
	return encode(actionState, snapshot)
}

func encode(action string, payload any) ([]byte, error) {
	message := Message{Action: action}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		message.Payload = raw
	}

	return json.Marshal(message)
}
