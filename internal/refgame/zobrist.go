package refgame

// Zobrist hashing uses a fixed table of random-looking constants keyed by
// (square, piece code), xored in and out as pieces move, plus a
// side-to-move key. The table is generated with a small deterministic
// splitmix64 sequence rather than imported randomness, so the hash is
// stable across runs without a runtime seed.

var zobristPieceKeys [NumSquares][9]uint64 // piece code -4..4 offset by +4
var zobristSideKey uint64

func init() {
	state := uint64(0x9E3779B97F4A7C15)
	next := func() uint64 {
		state += 0x9E3779B97F4A7C15
		z := state
		z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
		z = (z ^ (z >> 27)) * 0x94D049BB133111EB
		return z ^ (z >> 31)
	}
	for sq := 0; sq < NumSquares; sq++ {
		for code := 0; code < 9; code++ {
			zobristPieceKeys[sq][code] = next()
		}
	}
	zobristSideKey = next()
}

func pieceCodeIdx(p Piece) int { return int(p) + 4 }

func zobristHash(b Board, sideToMove int) uint64 {
	var h uint64
	for sq := 0; sq < NumSquares; sq++ {
		if b[sq] != Empty {
			h ^= zobristPieceKeys[sq][pieceCodeIdx(b[sq])]
		}
	}
	if sideToMove == 1 {
		h ^= zobristSideKey
	}
	return h
}
