package refgame

import "boardmcts/internal/mctsapi"

const (
	maxValidActions = 48
	actionSpace     = NumSquares * NumSquares
	historySize     = 8
	drawPlyLimit    = 40

	piecePlanesPerSide = 4 // Pawn, Knight, Rook, King
	numElements         = NumSquares*piecePlanesPerSide*2 + 1

	// numMeta is a single normalized halfmove-clock-style fact: this
	// variant has no castling rights or en passant to track, so
	// PlySinceEvent (the same counter IsTerminal uses for the draw rule)
	// is the only meta fact there is.
	numMeta = 1
)

// Engine adapts the board/move/position types above to
// mctsapi.Engine[Position, Move].
type Engine struct{}

var _ mctsapi.Engine[Position, Move] = Engine{}

func (Engine) InitialState(playerID int) Position { return NewPosition() }

func (Engine) CurrentPlayer(s Position) int { return s.SideToMove }

func (Engine) ValidActions(s Position) []Move { return PseudoLegalMoves(s) }

func (Engine) ApplyAction(a Move, s *Position) { *s = s.ApplyMove(a) }

// IsTerminal implements the "king captured ends the game" rule: no
// check or checkmate detection is needed, only whether both kings are
// still on the board. A long quiet sequence (no capture or pawn move)
// beyond drawPlyLimit is scored a draw, guaranteeing termination in
// finite depth.
func (Engine) IsTerminal(s Position, values []float64) bool {
	whiteKing := s.Board.KingExists(0)
	blackKing := s.Board.KingExists(1)

	switch {
	case !whiteKing && !blackKing:
		values[0], values[1] = 0.5, 0.5
		return true
	case !whiteKing:
		values[0], values[1] = 0, 1
		return true
	case !blackKing:
		values[0], values[1] = 1, 0
		return true
	}

	if s.PlySinceEvent >= drawPlyLimit {
		values[0], values[1] = 0.5, 0.5
		return true
	}

	if len(PseudoLegalMoves(s)) == 0 {
		// No legal response (every piece pinned to immobile squares, or
		// the side to move has nothing left but its king cornered):
		// scored as a draw rather than guessing a winner, since capturing
		// the king is this engine's only win condition.
		values[0], values[1] = 0.5, 0.5
		return true
	}

	return false
}

// ObsToIdx encodes the board as one-hot occupancy planes per (piece
// type, side), flattened square-major, plus a trailing side-to-move
// scalar.
func (Engine) ObsToIdx(s Position) []float32 {
	out := make([]float32, numElements)
	for sq := 0; sq < NumSquares; sq++ {
		p := s.Board[sq]
		if p == Empty {
			continue
		}
		planeIdx := int(p.Type()) - 1 // Pawn=0 .. King=3
		if p.Side() == 1 {
			planeIdx += piecePlanesPerSide
		}
		out[planeIdx*NumSquares+sq] = 1
	}
	if s.SideToMove == 1 {
		out[numElements-1] = 1
	}
	return out
}

func (Engine) ActionToIdx(a Move) int { return int(a.From)*NumSquares + int(a.To) }

func (Engine) NumPlayers() int { return 2 }

func (Engine) MaxValidActions() int { return maxValidActions }

func (Engine) ActionSpace() int { return actionSpace }

func (Engine) HistorySize() int { return historySize }

func (Engine) NumElements() int { return numElements }

func (Engine) NumMeta() int { return numMeta }

// ObsToMetaIdx encodes the draw-rule ply counter, normalized to
// drawPlyLimit so the value stays in [0, 1] the way the occupancy planes
// do.
func (Engine) ObsToMetaIdx(s Position) []float32 {
	return []float32{float32(s.PlySinceEvent) / float32(drawPlyLimit)}
}
