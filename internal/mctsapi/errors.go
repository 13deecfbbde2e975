package mctsapi

import "fmt"

// ConfigError reports a missing or out-of-range configuration option.
// Fatal at setup time; propagated straight to the controller.
type ConfigError struct {
	Option string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("mctsapi: config option %q: %s", e.Option, e.Reason)
}

// OutOfMemoryError reports NodePool exhaustion during expansion. Local to
// the worker that hit it: the would-be leaf is left unexpanded (a later
// descent may retry it), its virtual loss reverted, and the search
// continues with a reduced tree.
type OutOfMemoryError struct {
	NodeIdx uint32
}

func (e *OutOfMemoryError) Error() string {
	return fmt.Sprintf("mctsapi: node pool exhausted expanding node %d", e.NodeIdx)
}

// SearchLivenessTimeout reports a wait_for_idle (or barrier) deadline
// exceeded. The barrier is force-released and counters reset; the
// controller may retry or abort the move.
type SearchLivenessTimeout struct {
	SearchID string
	Waited   string
}

func (e *SearchLivenessTimeout) Error() string {
	return fmt.Sprintf("mctsapi: search %s: liveness timeout after %s", e.SearchID, e.Waited)
}

// InvalidLifecycleError reports reroot invoked while a search is active.
// Fatal — it indicates a controller bug, not a recoverable condition.
type InvalidLifecycleError struct {
	Operation string
}

func (e *InvalidLifecycleError) Error() string {
	return fmt.Sprintf("mctsapi: invalid lifecycle transition: %s while search active", e.Operation)
}

// EvaluatorError reports an inference call failure. The coordinator clears
// all pending batches; workers observe empty result queues and retry the
// simulation round.
type EvaluatorError struct {
	Cause error
}

func (e *EvaluatorError) Error() string {
	return fmt.Sprintf("mctsapi: evaluator call failed: %v", e.Cause)
}

func (e *EvaluatorError) Unwrap() error { return e.Cause }

// EngineContractViolation reports valid_actions returning something
// inconsistent with apply_action or terminal detection. Fatal, logged
// with a state snapshot by the caller.
type EngineContractViolation struct {
	Detail       string
	StateSnippet string
}

func (e *EngineContractViolation) Error() string {
	return fmt.Sprintf("mctsapi: engine contract violation: %s (state=%s)", e.Detail, e.StateSnippet)
}
