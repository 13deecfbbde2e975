package searchtree

import "runtime"

// gosched yields the calling goroutine's timeslice, used by bounded
// spin-wait loops.
func gosched() {
	runtime.Gosched()
}
