package xiangqi

// Result is the rule-engine verdict for a position.
type Result int8

const (
	Ongoing Result = iota
	RedWin
	BlackWin
	Draw
)

func (r Result) String() string {
	switch r {
	case RedWin:
		return "red_win"
	case BlackWin:
		return "black_win"
	case Draw:
		return "draw"
	default:
		return "playing"
	}
}

// WinFor returns the winning result for side.
func WinFor(side Side) Result {
	if side == Red {
		return RedWin
	}
	return BlackWin
}

// Reasons attached to a terminal verdict.
const (
	ReasonCheckmate            = "checkmate"
	ReasonStalemate            = "stalemate"
	ReasonInsufficientMaterial = "insufficient_material"
	ReasonNoGeneral            = "no_general"
)

// IsInCheck reports whether any enemy piece can reach side's General.
func IsInCheck(b *Board, side Side) bool {
	king, ok := b.King(side)
	if !ok {
		return false
	}
	for _, p := range b.PiecesOf(side.Opponent()) {
		if p.CanReach(king.Pos, b) {
			return true
		}
	}
	return false
}

// KingsFacing reports whether both Generals share a file with nothing between.
func KingsFacing(b *Board) bool {
	red, ok1 := b.King(Red)
	black, ok2 := b.King(Black)
	if !ok1 || !ok2 || red.Pos.Col != black.Pos.Col {
		return false
	}
	n, ok := b.between(red.Pos, black.Pos)
	return ok && n == 0
}

// IsLegalMove runs the movement test and then simulates the move on a scratch
// copy: the mover must not be left in check and the Generals must not face.
func IsLegalMove(b *Board, from, to Position) bool {
	p, ok := b.PieceAt(from)
	if !ok || !p.CanReach(to, b) {
		return false
	}
	scratch := b.Copy()
	scratch.force(from, to)
	return !IsInCheck(&scratch, p.Side) && !KingsFacing(&scratch)
}

// LegalMoves returns side's pseudo-legal moves that pass IsLegalMove.
func LegalMoves(b *Board, side Side) []Move {
	var out []Move
	for _, m := range b.AllPseudoLegalMoves(side) {
		if IsLegalMove(b, m.From, m.To) {
			out = append(out, m)
		}
	}
	return out
}

// LegalMovesFrom restricts LegalMoves to the piece standing on from.
func LegalMovesFrom(b *Board, from Position) []Move {
	p, ok := b.PieceAt(from)
	if !ok {
		return nil
	}
	var out []Move
	for _, to := range p.PossibleMoves(b) {
		if IsLegalMove(b, from, to) {
			captured, _ := b.PieceAt(to)
			out = append(out, Move{From: from, To: to, Moved: p, Captured: captured})
		}
	}
	return out
}

func hasLegalMove(b *Board, side Side) bool {
	for _, m := range b.AllPseudoLegalMoves(side) {
		if IsLegalMove(b, m.From, m.To) {
			return true
		}
	}
	return false
}

func IsCheckmate(b *Board, side Side) bool {
	return IsInCheck(b, side) && !hasLegalMove(b, side)
}

// IsStalemate: not in check and no legal move. Scored as a draw.
func IsStalemate(b *Board, side Side) bool {
	return !IsInCheck(b, side) && !hasLegalMove(b, side)
}

// InsufficientMaterial is true when only the two Generals remain.
func InsufficientMaterial(b *Board) bool {
	for _, side := range []Side{Red, Black} {
		for _, p := range b.PiecesOf(side) {
			if p.Kind != General {
				return false
			}
		}
	}
	return true
}

// Evaluate returns the verdict for sideToMove together with its reason.
func Evaluate(b *Board, sideToMove Side) (Result, string) {
	if _, ok := b.King(sideToMove); !ok {
		return WinFor(sideToMove.Opponent()), ReasonNoGeneral
	}
	if _, ok := b.King(sideToMove.Opponent()); !ok {
		return WinFor(sideToMove), ReasonNoGeneral
	}
	if InsufficientMaterial(b) {
		return Draw, ReasonInsufficientMaterial
	}
	if hasLegalMove(b, sideToMove) {
		return Ongoing, ""
	}
	if IsInCheck(b, sideToMove) {
		return WinFor(sideToMove.Opponent()), ReasonCheckmate
	}
	return Draw, ReasonStalemate
}

// Status is Evaluate without the reason.
func Status(b *Board, sideToMove Side) Result {
	r, _ := Evaluate(b, sideToMove)
	return r
}
