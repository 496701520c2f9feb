package entity

type Mark string

const (
	PlayerX   Mark = "X"
	PlayerO   Mark = "O"
	EmptyCell Mark = ""
)

const BoardSize = 9

type Outcome string

const (
	OutcomeNone Outcome = ""
	OutcomeWin  Outcome = "win"
	OutcomeDraw Outcome = "draw"
)

// WinCombos lists every winning triple: rows, then columns, then diagonals.
var WinCombos = [8][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Board is a row-major 3x3 grid.
type Board [BoardSize]Mark

// IsEmptyCell reports whether cell is on the board and unoccupied.
func (that Board) IsEmptyCell(cell int) bool {
	if cell < 0 || cell >= BoardSize {
		return false
	}

	return that[cell] == EmptyCell
}

func (that Board) EmptyCells() []int {
	cells := make([]int, 0, BoardSize)
	for i, mark := range that {
		if mark == EmptyCell {
			cells = append(cells, i)
		}
	}

	return cells
}

func (that Board) IsFull() bool {
	for _, mark := range that {
		if mark == EmptyCell {
			return false
		}
	}

	return true
}

// Result is the outcome of evaluating a board. Line is only meaningful for OutcomeWin.
type Result struct {
	Outcome Outcome
	Winner  Mark
	Line    [3]int
}

func (that Result) IsNone() bool {
	return that.Outcome == OutcomeNone
}

type GameState struct {
	Board    Board
	NextMark Mark
	Result   Result
}

func NewGameState() GameState {
	return GameState{
		NextMark: PlayerX,
	}
}

func (that GameState) IsFinished() bool {
	return !that.Result.IsNone()
}

func ToggleMark(mark Mark) Mark {
	if mark == PlayerX {
		return PlayerO
	}

	return PlayerX
}
