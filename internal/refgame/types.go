// Package refgame implements a compact two-player, perfect-information
// board game — a reduced chess variant on a 5x5 board with king, rook,
// knight and pawn — as a concrete mctsapi.Engine[Position, Move]. Piece
// codes are a signed int8 (sign gives side, magnitude gives type), the
// board is a fixed array, and Position carries an incrementally
// maintained Zobrist hash, keeping the whole engine easy to reason about
// as a reference implementation of the Engine contract.
package refgame

const (
	BoardSize  = 5
	NumSquares = BoardSize * BoardSize

	Empty = Piece(0)

	Pawn   = Piece(1)
	Knight = Piece(2)
	Rook   = Piece(3)
	King   = Piece(4)
)

// Piece is signed: positive values belong to White (player 0), negative
// to Black (player 1). Abs(p) gives the piece type.
type Piece int8

func (p Piece) Type() Piece {
	if p < 0 {
		return -p
	}
	return p
}

// Side returns the owning player id (0 or 1); undefined for Empty.
func (p Piece) Side() int {
	if p < 0 {
		return 1
	}
	return 0
}

func pieceFor(side int, t Piece) Piece {
	if side == 1 {
		return -t
	}
	return t
}

// Board is the 25-square array, row-major, square 0 = a1 (White's back
// rank), square 24 = e5 (Black's back rank).
type Board [NumSquares]Piece

// Move is a from/to square pair. Promotions are implicit: a pawn
// reaching the opponent's back rank always promotes to a rook.
type Move struct {
	From, To int8
}

// Position is the engine's state type: board, side to move, and an
// incrementally maintained Zobrist hash plus a ply counter used for the
// fifty-move-style draw rule (spec's "must terminate in finite depth").
type Position struct {
	Board      Board
	SideToMove int
	Hash       uint64
	PlySinceEvent int
}

func rank(sq int8) int { return int(sq) / BoardSize }
func file(sq int8) int { return int(sq) % BoardSize }
func square(r, f int) int8 { return int8(r*BoardSize + f) }
func onBoard(r, f int) bool { return r >= 0 && r < BoardSize && f >= 0 && f < BoardSize }
