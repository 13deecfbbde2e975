// Package mctsapi defines the collaborator contracts the search core is
// built against: the game rules engine and the neural network evaluator.
// Neither is implemented here; internal/refgame and internal/nneval supply
// concrete instances used by tests and cmd/searchdemo.
package mctsapi

// Engine is the game-rules collaborator described in spec section 6. It is
// generic over the engine's own state (S) and action (A) representation so
// the search core never needs to know how a particular game encodes a
// board.
type Engine[S any, A comparable] interface {
	// InitialState returns the state observed by playerID at the start of
	// a game.
	InitialState(playerID int) S

	// CurrentPlayer returns the id of the player to move in s.
	CurrentPlayer(s S) int

	// ValidActions returns the finite set of legal actions in s, bounded
	// by MaxValidActions.
	ValidActions(s S) []A

	// ApplyAction mutates *s in place by applying a.
	ApplyAction(a A, s *S)

	// IsTerminal reports whether s is a terminal state, filling values[p]
	// for every player p when it is.
	IsTerminal(s S, values []float64) bool

	// ObsToIdx encodes s into the flat representation the evaluator
	// expects as one history slot.
	ObsToIdx(s S) []float32

	// ActionToIdx maps a to the evaluator's global policy index.
	ActionToIdx(a A) int

	// NumPlayers is the fixed number of players (2 for the chess-style
	// reference frontend).
	NumPlayers() int

	// MaxValidActions bounds the number of outgoing edges any node may
	// have; it sizes the edge-array window per node.
	MaxValidActions() int

	// ActionSpace is the size of the evaluator's global policy vector.
	ActionSpace() int

	// HistorySize is the number of (state, action) pairs supplied to the
	// evaluator as context per inference call.
	HistorySize() int

	// NumElements is the encoded observation length (len(ObsToIdx(s))).
	// It covers the board/piece-occupancy half of a history slot only —
	// see HistorySlotWidth for the full per-slot tensor width, which also
	// carries meta facts and a one-hot action encoding.
	NumElements() int

	// NumMeta is the length of ObsToMetaIdx's output: scalar game facts
	// that aren't part of the board encoding proper (castling rights, en
	// passant, a halfmove-style clock, repetition counters — whatever the
	// game tracks outside piece placement). Zero for games with no such
	// facts.
	NumMeta() int

	// ObsToMetaIdx encodes s's meta facts into a flat vector of length
	// NumMeta, for concatenation into a history slot alongside ObsToIdx.
	ObsToMetaIdx(s S) []float32
}

// HistorySlotWidth is the full width of one history-tensor slot: the
// state encoding (NumElements), the meta-fact encoding (NumMeta), and a
// one-hot action encoding (ActionSpace), concatenated in that order.
// Every slot carries all three segments — state, meta, or action may be
// zero-padded depending on what that slot represents (see
// internal/simulate.BuildHistory) — so every history tensor the
// evaluator consumes has this fixed per-slot width.
func HistorySlotWidth[S any, A comparable](e Engine[S, A]) int {
	return e.NumElements() + e.NumMeta() + e.ActionSpace()
}

// InferenceResult is one evaluator output: a policy over the global action
// space and a value per player, both from the perspective given by the
// state that produced the corresponding history.
type InferenceResult struct {
	Policy []float32
	Values []float64
}

// Evaluator is the neural-network collaborator described in spec section
// 6. ForwardBatch is a blocking call; batch size must not exceed the
// configured batch_size.
type Evaluator interface {
	ForwardBatch(histories [][]float32) ([]InferenceResult, error)
}
