package tictactoe

import (
	"github.com/rocketscienceinc/neon-tictactoe/internal/entity"
)

// Evaluate checks the winning triples in their fixed order and reports the first completed one.
// A full board without a completed triple is a draw.
func Evaluate(board entity.Board) entity.Result {
	for _, combo := range entity.WinCombos {
		a, b, c := board[combo[0]], board[combo[1]], board[combo[2]]
		if a != entity.EmptyCell && a == b && b == c {
			return entity.Result{
				Outcome: entity.OutcomeWin,
				Winner:  a,
				Line:    combo,
			}
		}
	}

	// the game will continue until all the squares are full
	if !board.IsFull() {
		return entity.Result{}
	}

	return entity.Result{Outcome: entity.OutcomeDraw}
}

// ApplyMove places the next mark on cell. The input state is returned unchanged, together with
// false, when the cell is out of range or occupied, or when the game already has a result.
func ApplyMove(state entity.GameState, cell int) (entity.GameState, bool) {
	if state.IsFinished() || !state.Board.IsEmptyCell(cell) {
		return state, false
	}

	next := state
	next.Board[cell] = state.NextMark
	next.Result = Evaluate(next.Board)
	next.NextMark = entity.ToggleMark(state.NextMark)

	return next, true
}
