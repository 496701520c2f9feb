package entity

import "time"

const ResultDraw = "draw"

// Snapshot is the read-only view of a session handed to the view layer.
type Snapshot struct {
	GameID        string                    `json:"game_id"`
	Version       uint64                    `json:"version"`
	Mode          Mode                      `json:"mode"`
	Board         Board                     `json:"board"`
	CurrentPlayer Mark                      `json:"current_player"`
	Result        string                    `json:"result,omitempty"`
	WinningLine   []int                     `json:"winning_line,omitempty"`
	Status        string                    `json:"status"`
	Thinking      bool                      `json:"thinking"`
	Connection    PeripheralConnectionState `json:"connection"`
	UpdatedAt     time.Time                 `json:"updated_at"`
}

// ResultLabel renders a result as "", "X", "O" or "draw".
func ResultLabel(result Result) string {
	switch result.Outcome {
	case OutcomeWin:
		return string(result.Winner)
	case OutcomeDraw:
		return ResultDraw
	default:
		return ""
	}
}

func WinningLine(result Result) []int {
	if result.Outcome != OutcomeWin {
		return nil
	}

	return []int{result.Line[0], result.Line[1], result.Line[2]}
}
