package xiangqi

import "fmt"

// Board dimensions. Row 0 is Black's back rank, row 9 is Red's.
const (
	Rows = 10
	Cols = 9
)

// Side identifies the owner of a piece or the side to move.
type Side int8

const (
	NoSide Side = iota
	Red
	Black
)

// Opponent returns the other side. NoSide has no opponent.
func (s Side) Opponent() Side {
	switch s {
	case Red:
		return Black
	case Black:
		return Red
	default:
		return NoSide
	}
}

func (s Side) String() string {
	switch s {
	case Red:
		return "red"
	case Black:
		return "black"
	default:
		return "none"
	}
}

// Label is the short Korean name shown to players (홍/흑).
func (s Side) Label() string {
	switch s {
	case Red:
		return "홍"
	case Black:
		return "흑"
	default:
		return s.String()
	}
}

// ParseSide accepts "red"/"r"/"w" and "black"/"b".
func ParseSide(s string) Side {
	switch s {
	case "red", "r", "w", "RED":
		return Red
	case "black", "b", "BLACK":
		return Black
	default:
		return NoSide
	}
}

// forward is the row delta of a soldier advancing toward the enemy back rank.
func (s Side) forward() int {
	if s == Red {
		return -1
	}
	return 1
}

// Position is a board intersection. Out-of-range values are representable;
// check IsValid before indexing a board with one.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func Pos(row, col int) Position { return Position{Row: row, Col: col} }

func (p Position) IsValid() bool {
	return p.Row >= 0 && p.Row < Rows && p.Col >= 0 && p.Col < Cols
}

// InPalace reports whether p lies in the 3x3 palace of side.
func (p Position) InPalace(side Side) bool {
	if p.Col < 3 || p.Col > 5 {
		return false
	}
	switch side {
	case Red:
		return p.Row >= 7 && p.Row <= 9
	case Black:
		return p.Row >= 0 && p.Row <= 2
	default:
		return false
	}
}

// OnOwnSide reports whether p is on side's half of the board (river not crossed).
func (p Position) OnOwnSide(side Side) bool {
	if !p.IsValid() {
		return false
	}
	switch side {
	case Red:
		return p.Row >= 5
	case Black:
		return p.Row <= 4
	default:
		return false
	}
}

// OnRiver reports whether p sits on one of the two river banks.
func (p Position) OnRiver() bool {
	return p.IsValid() && (p.Row == 4 || p.Row == 5)
}

func (p Position) offset(dr, dc int) Position {
	return Position{Row: p.Row + dr, Col: p.Col + dc}
}

func (p Position) String() string { return fmt.Sprintf("(%d,%d)", p.Row, p.Col) }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
