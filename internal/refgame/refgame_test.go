package refgame

import "testing"

func TestInitialPositionNotTerminal(t *testing.T) {
	eng := Engine{}
	s := eng.InitialState(0)
	values := make([]float64, 2)
	if eng.IsTerminal(s, values) {
		t.Fatalf("initial position reported terminal")
	}
	if got := eng.CurrentPlayer(s); got != 0 {
		t.Fatalf("expected White to move first, got player %d", got)
	}
	if n := len(eng.ValidActions(s)); n == 0 {
		t.Fatalf("initial position has no legal moves")
	}
}

func TestKingCaptureEndsGame(t *testing.T) {
	var b Board
	b[square(0, 2)] = pieceFor(0, King)
	b[square(4, 0)] = pieceFor(1, King)
	b[square(4, 2)] = pieceFor(1, Rook)
	p := Position{Board: b, SideToMove: 1, Hash: zobristHash(b, 1)}

	eng := Engine{}
	capture := Move{From: square(4, 2), To: square(0, 2)}
	eng.ApplyAction(capture, &p)

	values := make([]float64, 2)
	if !eng.IsTerminal(p, values) {
		t.Fatalf("expected terminal position after king capture")
	}
	if values[0] != 0 || values[1] != 1 {
		t.Fatalf("expected Black win after capturing White's king, got %v", values)
	}
}

func TestPawnPromotesToRook(t *testing.T) {
	var b Board
	b[square(0, 0)] = pieceFor(0, King)
	b[square(4, 0)] = pieceFor(1, King)
	b[square(BoardSize-2, 1)] = pieceFor(0, Pawn)
	p := Position{Board: b, SideToMove: 0, Hash: zobristHash(b, 0)}

	next := p.ApplyMove(Move{From: square(BoardSize-2, 1), To: square(BoardSize-1, 1)})
	if got := next.Board[square(BoardSize-1, 1)]; got.Type() != Rook || got.Side() != 0 {
		t.Fatalf("expected White pawn to promote to a rook, got %v", got)
	}
}

func TestZobristHashMatchesIncrementalUpdate(t *testing.T) {
	p := NewPosition()
	moves := PseudoLegalMoves(p)
	if len(moves) == 0 {
		t.Fatalf("no opening moves generated")
	}
	next := p.ApplyMove(moves[0])
	want := zobristHash(next.Board, next.SideToMove)
	if next.Hash != want {
		t.Fatalf("incremental hash %x does not match recomputed hash %x", next.Hash, want)
	}
}

func TestActionToIdxEncodesFromAndTo(t *testing.T) {
	eng := Engine{}
	m := Move{From: 3, To: 12}
	idx := eng.ActionToIdx(m)
	if idx != 3*NumSquares+12 {
		t.Fatalf("unexpected action index %d", idx)
	}
}

func TestObsToIdxLengthMatchesNumElements(t *testing.T) {
	eng := Engine{}
	obs := eng.ObsToIdx(eng.InitialState(0))
	if len(obs) != eng.NumElements() {
		t.Fatalf("ObsToIdx returned %d elements, want %d", len(obs), eng.NumElements())
	}
}

func TestObsToMetaIdxLengthMatchesNumMeta(t *testing.T) {
	eng := Engine{}
	meta := eng.ObsToMetaIdx(eng.InitialState(0))
	if len(meta) != eng.NumMeta() {
		t.Fatalf("ObsToMetaIdx returned %d elements, want %d", len(meta), eng.NumMeta())
	}
}
