package xiangqi

// Kind is the piece variant. The zero value marks an empty cell.
type Kind int8

const (
	NoKind Kind = iota
	General
	Advisor
	Elephant
	Horse
	Chariot
	Cannon
	Soldier
)

var kindNames = [...]string{
	NoKind:   "none",
	General:  "general",
	Advisor:  "advisor",
	Elephant: "elephant",
	Horse:    "horse",
	Chariot:  "chariot",
	Cannon:   "cannon",
	Soldier:  "soldier",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "none"
	}
	return kindNames[k]
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) Kind {
	for k, name := range kindNames {
		if name == s && k != int(NoKind) {
			return Kind(k)
		}
	}
	return NoKind
}

// Piece is a value: kind, owner and the cell it stands on.
// A Piece with Kind == NoKind is "no piece".
type Piece struct {
	Kind Kind     `json:"kind"`
	Side Side     `json:"side"`
	Pos  Position `json:"pos"`
}

// IsZero reports whether p denotes an empty cell.
func (p Piece) IsZero() bool { return p.Kind == NoKind }

// PossibleMoves returns the pseudo-legal destinations of p on b, ignoring
// whether the move would leave p's own General in check.
func (p Piece) PossibleMoves(b *Board) []Position {
	if p.IsZero() || b == nil {
		return nil
	}
	r := rules[p.Kind]
	var out []Position
	for _, to := range r.candidates(p) {
		if r.reach(p, to, b) {
			out = append(out, to)
		}
	}
	return out
}

// CanReach is the authoritative single-target movement test.
func (p Piece) CanReach(to Position, b *Board) bool {
	if p.IsZero() || b == nil || to == p.Pos {
		return false
	}
	return rules[p.Kind].reach(p, to, b)
}

type moveRule struct {
	candidates func(p Piece) []Position
	reach      func(p Piece, to Position, b *Board) bool
}

// rules dispatches on Kind.
var rules = [...]moveRule{
	NoKind:   {candidates: func(Piece) []Position { return nil }, reach: func(Piece, Position, *Board) bool { return false }},
	General:  {candidates: stepCandidates(orthogonalSteps), reach: generalReach},
	Advisor:  {candidates: stepCandidates(diagonalSteps), reach: advisorReach},
	Elephant: {candidates: stepCandidates(elephantSteps), reach: elephantReach},
	Horse:    {candidates: stepCandidates(horseSteps), reach: horseReach},
	Chariot:  {candidates: lineCandidates, reach: chariotReach},
	Cannon:   {candidates: lineCandidates, reach: cannonReach},
	Soldier:  {candidates: stepCandidates(orthogonalSteps), reach: soldierReach},
}

var (
	orthogonalSteps = [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}
	diagonalSteps   = [][2]int{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}}
	elephantSteps   = [][2]int{{-2, -2}, {-2, 2}, {2, -2}, {2, 2}}
	horseSteps      = [][2]int{{-2, -1}, {-2, 1}, {-1, -2}, {-1, 2}, {1, -2}, {1, 2}, {2, -1}, {2, 1}}
)

func stepCandidates(steps [][2]int) func(p Piece) []Position {
	return func(p Piece) []Position {
		out := make([]Position, 0, len(steps))
		for _, d := range steps {
			if to := p.Pos.offset(d[0], d[1]); to.IsValid() {
				out = append(out, to)
			}
		}
		return out
	}
}

func lineCandidates(p Piece) []Position {
	out := make([]Position, 0, Rows+Cols-2)
	for r := 0; r < Rows; r++ {
		if r != p.Pos.Row {
			out = append(out, Pos(r, p.Pos.Col))
		}
	}
	for c := 0; c < Cols; c++ {
		if c != p.Pos.Col {
			out = append(out, Pos(p.Pos.Row, c))
		}
	}
	return out
}

// landable: destination on the board and either empty or enemy-held.
func landable(p Piece, to Position, b *Board) bool {
	if !to.IsValid() {
		return false
	}
	occ, ok := b.PieceAt(to)
	return !ok || occ.Side != p.Side
}

func generalReach(p Piece, to Position, b *Board) bool {
	dr, dc := to.Row-p.Pos.Row, to.Col-p.Pos.Col
	if abs(dr)+abs(dc) != 1 || !to.InPalace(p.Side) {
		return false
	}
	return landable(p, to, b)
}

func advisorReach(p Piece, to Position, b *Board) bool {
	dr, dc := to.Row-p.Pos.Row, to.Col-p.Pos.Col
	if abs(dr) != 1 || abs(dc) != 1 || !to.InPalace(p.Side) {
		return false
	}
	return landable(p, to, b)
}

func elephantReach(p Piece, to Position, b *Board) bool {
	dr, dc := to.Row-p.Pos.Row, to.Col-p.Pos.Col
	if abs(dr) != 2 || abs(dc) != 2 || !to.OnOwnSide(p.Side) {
		return false
	}
	if b.Occupied(p.Pos.offset(dr/2, dc/2)) {
		return false
	}
	return landable(p, to, b)
}

func horseReach(p Piece, to Position, b *Board) bool {
	dr, dc := to.Row-p.Pos.Row, to.Col-p.Pos.Col
	var leg Position
	switch {
	case abs(dr) == 2 && abs(dc) == 1:
		leg = p.Pos.offset(dr/2, 0)
	case abs(dr) == 1 && abs(dc) == 2:
		leg = p.Pos.offset(0, dc/2)
	default:
		return false
	}
	if b.Occupied(leg) {
		return false
	}
	return landable(p, to, b)
}

func chariotReach(p Piece, to Position, b *Board) bool {
	n, ok := b.between(p.Pos, to)
	if !ok || n != 0 {
		return false
	}
	return landable(p, to, b)
}

func cannonReach(p Piece, to Position, b *Board) bool {
	n, ok := b.between(p.Pos, to)
	if !ok || !to.IsValid() {
		return false
	}
	target, occupied := b.PieceAt(to)
	if !occupied {
		return n == 0
	}
	return n == 1 && target.Side != p.Side
}

func soldierReach(p Piece, to Position, b *Board) bool {
	dr, dc := to.Row-p.Pos.Row, to.Col-p.Pos.Col
	switch {
	case dc == 0 && dr == p.Side.forward():
	case dr == 0 && abs(dc) == 1 && !p.Pos.OnOwnSide(p.Side):
	default:
		return false
	}
	return landable(p, to, b)
}
