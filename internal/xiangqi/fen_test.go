package xiangqi

import "testing"

func TestOpeningFENRoundTrip(t *testing.T) {
	b := OpeningBoard()
	if got := EncodeFEN(&b, Red); got != OpeningFEN {
		t.Fatalf("EncodeFEN: %q", got)
	}
	d, side, err := DecodeFEN(OpeningFEN)
	if err != nil {
		t.Fatalf("DecodeFEN: %v", err)
	}
	if side != Red || d != b {
		t.Fatalf("decoded board differs from opening board")
	}
}

func TestDecodeFENRejectsGarbage(t *testing.T) {
	for _, fen := range []string{
		"",
		"rnbakabnr/9/9 w",
		"rnbakabnrr/9/1c5c1/p1p1p1p1p/9/9/P1P1P1P1P/1C5C1/9/RNBAKABNR w",
		"rnbakabnr/9/1c5c1/p1p1p1p1p/9/9/P1P1P1P1P/1C5C1/9/RNBAKABNX w",
		"rnbakabnr/9/1c5c1/p1p1p1p1p/9/9/P1P1P1P1P/1C5C1/9/RNBAKABNR x",
	} {
		if _, _, err := DecodeFEN(fen); err != ErrInvalidFEN {
			t.Fatalf("DecodeFEN(%q): expected ErrInvalidFEN, got %v", fen, err)
		}
	}
}

func TestNotation(t *testing.T) {
	b := OpeningBoard()
	m, err := b.ApplyMove(Pos(7, 1), Pos(0, 1))
	if err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	if got := m.Notation(); got != "炮(7,1)吃(0,1)" {
		t.Fatalf("capture notation: %q", got)
	}
	m, err = b.ApplyMove(Pos(3, 0), Pos(4, 0))
	if err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	if got := m.Notation(); got != "卒(3,0)到(4,0)" {
		t.Fatalf("quiet notation: %q", got)
	}
}
