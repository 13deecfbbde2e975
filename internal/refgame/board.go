package refgame

// InitialBoard lays out the reduced 5x5 army: rook-knight-king-knight-rook
// back ranks with a full pawn row in front of each.
func InitialBoard() Board {
	var b Board
	backRank := [BoardSize]Piece{Rook, Knight, King, Knight, Rook}
	for f := 0; f < BoardSize; f++ {
		b[square(0, f)] = pieceFor(0, backRank[f])
		b[square(1, f)] = pieceFor(0, Pawn)
		b[square(BoardSize-2, f)] = pieceFor(1, Pawn)
		b[square(BoardSize-1, f)] = pieceFor(1, backRank[f])
	}
	return b
}

// KingExists reports whether side still has a king on the board — the
// sole win condition. There is no check/checkmate logic: a king is
// simply captured like any other piece, ending the game.
func (b Board) KingExists(side int) bool {
	want := pieceFor(side, King)
	for _, p := range b {
		if p == want {
			return true
		}
	}
	return false
}

// NewPosition returns the starting position with White (player 0) to
// move.
func NewPosition() Position {
	b := InitialBoard()
	return Position{
		Board:      b,
		SideToMove: 0,
		Hash:       zobristHash(b, 0),
	}
}

// ApplyMove returns the position reached by playing m, updating the
// Zobrist hash incrementally (xor out the moved/captured pieces' old
// contributions, xor in the new ones) rather than recomputing it from
// scratch.
func (p Position) ApplyMove(m Move) Position {
	next := p
	moving := p.Board[m.From]
	captured := p.Board[m.To]

	next.Hash ^= zobristPieceKeys[m.From][pieceCodeIdx(moving)]
	if captured != Empty {
		next.Hash ^= zobristPieceKeys[m.To][pieceCodeIdx(captured)]
	}

	resultPiece := moving
	if moving.Type() == Pawn {
		backRank := BoardSize - 1
		if moving.Side() == 1 {
			backRank = 0
		}
		if rank(m.To) == backRank {
			resultPiece = pieceFor(moving.Side(), Rook)
		}
	}

	next.Board[m.From] = Empty
	next.Board[m.To] = resultPiece
	next.Hash ^= zobristPieceKeys[m.To][pieceCodeIdx(resultPiece)]

	next.Hash ^= zobristSideKey
	next.SideToMove = 1 - p.SideToMove

	if captured != Empty || moving.Type() == Pawn {
		next.PlySinceEvent = 0
	} else {
		next.PlySinceEvent = p.PlySinceEvent + 1
	}
	return next
}
