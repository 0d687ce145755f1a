package xiangqi

import (
	"errors"
	"strings"
	"unicode"
)

var ErrInvalidFEN = errors.New("invalid FEN")

// OpeningFEN is the starting position with Red to move.
const OpeningFEN = "rnbakabnr/9/1c5c1/p1p1p1p1p/9/9/P1P1P1P1P/1C5C1/9/RNBAKABNR w"

var kindLetters = map[Kind]rune{
	General:  'k',
	Advisor:  'a',
	Elephant: 'b',
	Horse:    'n',
	Chariot:  'r',
	Cannon:   'c',
	Soldier:  'p',
}

func pieceRune(p Piece) rune {
	r := kindLetters[p.Kind]
	if p.Side == Red {
		return unicode.ToUpper(r)
	}
	return r
}

func runePiece(ch rune) (Piece, bool) {
	side := Black
	if unicode.IsUpper(ch) {
		side = Red
	}
	lower := unicode.ToLower(ch)
	// some producers write e/h for elephant/horse
	switch lower {
	case 'e':
		lower = 'b'
	case 'h':
		lower = 'n'
	}
	for k, r := range kindLetters {
		if r == lower {
			return Piece{Kind: k, Side: side}, true
		}
	}
	return Piece{}, false
}

// EncodeFEN writes the board rows from Black's back rank down, then the side to move.
func EncodeFEN(b *Board, toMove Side) string {
	var sb strings.Builder
	for r := 0; r < Rows; r++ {
		if r > 0 {
			sb.WriteByte('/')
		}
		empty := 0
		for c := 0; c < Cols; c++ {
			p, ok := b.PieceAt(Pos(r, c))
			if !ok {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteByte(byte('0' + empty))
				empty = 0
			}
			sb.WriteRune(pieceRune(p))
		}
		if empty > 0 {
			sb.WriteByte(byte('0' + empty))
		}
	}
	sb.WriteByte(' ')
	if toMove == Black {
		sb.WriteByte('b')
	} else {
		sb.WriteByte('w')
	}
	return sb.String()
}

// DecodeFEN parses a position. A missing side field means Red to move.
func DecodeFEN(fen string) (Board, Side, error) {
	fields := strings.Fields(fen)
	if len(fields) == 0 {
		return Board{}, NoSide, ErrInvalidFEN
	}
	rows := strings.Split(fields[0], "/")
	if len(rows) != Rows {
		return Board{}, NoSide, ErrInvalidFEN
	}
	var b Board
	for r, row := range rows {
		c := 0
		for _, ch := range row {
			if ch >= '1' && ch <= '9' {
				c += int(ch - '0')
				continue
			}
			p, ok := runePiece(ch)
			if !ok || c >= Cols {
				return Board{}, NoSide, ErrInvalidFEN
			}
			b.Place(Pos(r, c), p)
			c++
		}
		if c != Cols {
			return Board{}, NoSide, ErrInvalidFEN
		}
	}
	toMove := Red
	if len(fields) > 1 {
		switch fields[1] {
		case "w", "r":
		case "b":
			toMove = Black
		default:
			return Board{}, NoSide, ErrInvalidFEN
		}
	}
	return b, toMove, nil
}
