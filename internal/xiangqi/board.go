package xiangqi

import "errors"

var (
	ErrInvalidPosition = errors.New("position off board")
	ErrNoPiece         = errors.New("no piece at origin")
	ErrUnreachable     = errors.New("piece cannot reach destination")
)

// Board is a 10x9 grid held by value. Assigning or copying a Board yields an
// independent board; no cell is shared between copies.
type Board struct {
	cells [Rows][Cols]Piece
}

// Move records one applied move. Captured is the zero Piece when the
// destination was empty.
type Move struct {
	From     Position `json:"from"`
	To       Position `json:"to"`
	Moved    Piece    `json:"moved"`
	Captured Piece    `json:"captured"`
}

func (m Move) IsCapture() bool { return !m.Captured.IsZero() }

func NewBoard() Board { return Board{} }

var backRank = [Cols]Kind{Chariot, Horse, Elephant, Advisor, General, Advisor, Elephant, Horse, Chariot}

// OpeningBoard returns the standard starting position.
func OpeningBoard() Board {
	var b Board
	for c, k := range backRank {
		b.Place(Pos(0, c), Piece{Kind: k, Side: Black})
		b.Place(Pos(9, c), Piece{Kind: k, Side: Red})
	}
	for _, c := range []int{1, 7} {
		b.Place(Pos(2, c), Piece{Kind: Cannon, Side: Black})
		b.Place(Pos(7, c), Piece{Kind: Cannon, Side: Red})
	}
	for c := 0; c < Cols; c += 2 {
		b.Place(Pos(3, c), Piece{Kind: Soldier, Side: Black})
		b.Place(Pos(6, c), Piece{Kind: Soldier, Side: Red})
	}
	return b
}

// PieceAt returns the piece on pos and whether there is one.
func (b *Board) PieceAt(pos Position) (Piece, bool) {
	if !pos.IsValid() {
		return Piece{}, false
	}
	p := b.cells[pos.Row][pos.Col]
	return p, !p.IsZero()
}

func (b *Board) Occupied(pos Position) bool {
	_, ok := b.PieceAt(pos)
	return ok
}

// Place puts p on pos, overwriting the cell. A zero Piece clears the cell.
// The stored piece's Pos is always pos.
func (b *Board) Place(pos Position, p Piece) {
	if !pos.IsValid() {
		return
	}
	if p.IsZero() {
		b.cells[pos.Row][pos.Col] = Piece{}
		return
	}
	p.Pos = pos
	b.cells[pos.Row][pos.Col] = p
}

// ApplyMove moves the piece on from to to when the piece can reach it,
// capturing whatever stood on to.
func (b *Board) ApplyMove(from, to Position) (Move, error) {
	if !from.IsValid() || !to.IsValid() {
		return Move{}, ErrInvalidPosition
	}
	p, ok := b.PieceAt(from)
	if !ok {
		return Move{}, ErrNoPiece
	}
	if !p.CanReach(to, b) {
		return Move{}, ErrUnreachable
	}
	captured, _ := b.PieceAt(to)
	b.Place(to, p)
	b.Place(from, Piece{})
	return Move{From: from, To: to, Moved: p, Captured: captured}, nil
}

// UndoMove is the structural inverse of the ApplyMove that produced m.
func (b *Board) UndoMove(m Move) {
	b.Place(m.From, m.Moved)
	b.Place(m.To, m.Captured)
}

// force applies from->to without movement checks. Used for simulation.
func (b *Board) force(from, to Position) Move {
	p, _ := b.PieceAt(from)
	captured, _ := b.PieceAt(to)
	b.Place(to, p)
	b.Place(from, Piece{})
	return Move{From: from, To: to, Moved: p, Captured: captured}
}

// PiecesOf lists side's pieces in row-major order.
func (b *Board) PiecesOf(side Side) []Piece {
	var out []Piece
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			if p := b.cells[r][c]; !p.IsZero() && p.Side == side {
				out = append(out, p)
			}
		}
	}
	return out
}

// King returns side's General.
func (b *Board) King(side Side) (Piece, bool) {
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			if p := b.cells[r][c]; p.Kind == General && p.Side == side {
				return p, true
			}
		}
	}
	return Piece{}, false
}

// Copy returns an independent board.
func (b *Board) Copy() Board { return *b }

// AllPseudoLegalMoves pairs every possible destination of side's pieces
// with whatever would be captured there.
func (b *Board) AllPseudoLegalMoves(side Side) []Move {
	var out []Move
	for _, p := range b.PiecesOf(side) {
		for _, to := range p.PossibleMoves(b) {
			captured, _ := b.PieceAt(to)
			out = append(out, Move{From: p.Pos, To: to, Moved: p, Captured: captured})
		}
	}
	return out
}

// Grid exposes the cells for serialisation.
func (b *Board) Grid() [Rows][Cols]Piece { return b.cells }

// Count returns the number of pieces on the board.
func (b *Board) Count() int {
	n := 0
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			if !b.cells[r][c].IsZero() {
				n++
			}
		}
	}
	return n
}

// between counts pieces strictly between a and b on a shared row or column.
// ok is false when a and b are not on one line or are the same point.
func (b *Board) between(from, to Position) (n int, ok bool) {
	if from == to || (from.Row != to.Row && from.Col != to.Col) {
		return 0, false
	}
	dr, dc := sign(to.Row-from.Row), sign(to.Col-from.Col)
	for p := from.offset(dr, dc); p != to; p = p.offset(dr, dc) {
		if !p.IsValid() {
			return 0, false
		}
		if b.Occupied(p) {
			n++
		}
	}
	return n, true
}
