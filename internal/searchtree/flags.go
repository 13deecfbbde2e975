package searchtree

import "sync/atomic"

// nodeFlags is a per-node bitset: EXPANDED, PINNED, TERMINAL, EXPANDING,
// read and written with sync/atomic and transitioned with a single
// CompareAndSwap.
type nodeFlags = uint32

const (
	flagExpanded  nodeFlags = 1 << iota // edges published, node selectable
	flagPinned                          // excluded from free_subtree (root-pruning retention)
	flagTerminal                        // no outgoing edges; values are the engine's terminal values
	flagExpanding                       // exactly one worker owns expansion of this node
)

// tryLockExpansion lets only the worker that flips flags from 0 to
// EXPANDING expand the node.
func tryLockExpansion(flags *atomic.Uint32) bool {
	return flags.CompareAndSwap(0, flagExpanding)
}

// publishExpanded clears EXPANDING and sets EXPANDED, publishing with
// release ordering so EXPANDED is never visible before all child slots
// are populated. sync/atomic stores on the same word already imply that
// ordering under the Go memory model, so a plain atomic store after
// every edge write is sufficient.
func publishExpanded(flags *atomic.Uint32, terminal bool) {
	v := flagExpanded
	if terminal {
		v |= flagTerminal
	}
	flags.Store(v)
}

func isExpanded(flags *atomic.Uint32) bool {
	return flags.Load()&flagExpanded != 0
}

func isTerminal(flags *atomic.Uint32) bool {
	return flags.Load()&flagTerminal != 0
}

func isExpanding(flags *atomic.Uint32) bool {
	return flags.Load()&flagExpanding != 0
}

func isPinned(flags *atomic.Uint32) bool {
	return flags.Load()&flagPinned != 0
}

func setPinned(flags *atomic.Uint32, pinned bool) {
	for {
		old := flags.Load()
		var next uint32
		if pinned {
			next = old | flagPinned
		} else {
			next = old &^ flagPinned
		}
		if flags.CompareAndSwap(old, next) {
			return
		}
	}
}

// cancelExpansion reverts a failed expansion attempt back to the
// not-yet-expanded state so a later worker may retry.
func cancelExpansion(flags *atomic.Uint32) {
	flags.Store(0)
}
