package mctsapi

import "time"

// Config collects every tunable knob the search core exposes: tree
// sizing and liveness bounds, PUCT/virtual-loss parameters, the worker
// and batching topology, and the reroot/pruning policy.
type Config struct {
	MaxNodes  int
	MaxDepth  int
	CPuct     float32
	VirtualLoss float32

	HistorySize int
	ReuseTree   bool

	// MemoryThreshold is the fraction of MaxNodes above which expansion
	// aborts with OutOfMemoryError instead of allocating.
	MemoryThreshold float64

	NumSearchThreads          int
	NumInferenceThreadsPerGPU int
	NumBackpropThreads        int

	BatchSize  int
	QueueScale float64
	FastDrain  bool

	NumSimulations int
	Temperature    float32

	// KeepK bounds root-pruning retention to the top-K children by visit
	// count. Zero disables pruning.
	KeepK int

	// FPUReductionMax is the first-play-urgency knob applied to unvisited
	// edges during selection. Zero reproduces a flat Q=0 for those edges.
	FPUReductionMax float32

	// BarrierAnnounceDelay bounds how long the InferenceCoordinator waits
	// to collect further worker submissions before running a batch with
	// whatever has arrived so far.
	BarrierAnnounceDelay time.Duration

	// WaitForIdleTimeout and ExpansionSpinTimeout are liveness safeguards:
	// the former, plus one microsecond per requested simulation, bounds how
	// long ExecuteSearch waits for its workers before forcing a stop; the
	// latter bounds how long a worker may spin on a losing expansion race
	// before giving up.
	WaitForIdleTimeout   time.Duration
	ExpansionSpinTimeout time.Duration
}

// DefaultConfig returns sensible defaults for every Config field.
func DefaultConfig() Config {
	return Config{
		MaxNodes:                  1 << 20,
		MaxDepth:                  256,
		CPuct:                     1.1,
		VirtualLoss:               1.0,
		HistorySize:               8,
		ReuseTree:                 true,
		MemoryThreshold:           0.95,
		NumSearchThreads:          8,
		NumInferenceThreadsPerGPU: 1,
		NumBackpropThreads:        1,
		BatchSize:                 64,
		QueueScale:                2.0,
		FastDrain:                 false,
		NumSimulations:            800,
		Temperature:               0,
		KeepK:                     0,
		FPUReductionMax:           0,
		BarrierAnnounceDelay:      100 * time.Microsecond,
		WaitForIdleTimeout:        10 * time.Second,
		ExpansionSpinTimeout:      50 * time.Millisecond,
	}
}

// Validate reports the first out-of-range or missing option it finds as
// a ConfigError, fatal at setup.
func (c Config) Validate() error {
	switch {
	case c.MaxNodes <= 0:
		return &ConfigError{Option: "max_nodes", Reason: "must be positive"}
	case c.MaxDepth <= 0:
		return &ConfigError{Option: "max_depth", Reason: "must be positive"}
	case c.CPuct <= 0:
		return &ConfigError{Option: "c_puct", Reason: "must be positive"}
	case c.VirtualLoss < 0:
		return &ConfigError{Option: "virtual_loss", Reason: "must be non-negative"}
	case c.HistorySize <= 0:
		return &ConfigError{Option: "history_size", Reason: "must be positive"}
	case c.MemoryThreshold <= 0 || c.MemoryThreshold > 1:
		return &ConfigError{Option: "memory_threshold", Reason: "must be in (0, 1]"}
	case c.NumSearchThreads <= 0:
		return &ConfigError{Option: "num_search_threads", Reason: "must be positive"}
	case c.BatchSize <= 0:
		return &ConfigError{Option: "batch_size", Reason: "must be positive"}
	case c.NumSimulations <= 0:
		return &ConfigError{Option: "num_simulations", Reason: "must be positive"}
	case c.Temperature < 0:
		return &ConfigError{Option: "temperature", Reason: "must be non-negative"}
	case c.KeepK < 0:
		return &ConfigError{Option: "keep_k", Reason: "must be non-negative"}
	case c.FPUReductionMax < 0:
		return &ConfigError{Option: "fpu_reduction_max", Reason: "must be non-negative"}
	}
	return nil
}
