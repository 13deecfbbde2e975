// Package nneval adapts an ONNX Runtime session into the mctsapi.Evaluator
// interface: persistent input/policy/value tensors reused across calls,
// and a TensorRT -> CUDA -> DirectML -> CPU execution-provider fallback
// chain. Batching is the InferenceCoordinator's job (internal/simulate),
// so ForwardBatch runs synchronously against whatever batch it is handed
// rather than owning its own queue and batch-collection goroutine.
package nneval

import (
	"fmt"
	"math"
	"path/filepath"

	ort "github.com/yalue/onnxruntime_go"
	"github.com/rs/zerolog"

	"boardmcts/internal/mctsapi"
)

// Config describes the fixed tensor shapes a model expects, derived from
// the game engine's HistorySize/ActionSpace/NumPlayers. NumElements is
// the full per-history-slot input width (mctsapi.HistorySlotWidth: state,
// meta facts and one-hot action), not the engine's state-only NumElements.
type Config struct {
	ModelPath string
	LibPath   string

	MaxBatchSize int
	HistorySize  int
	NumElements  int
	ActionSpace  int
	NumPlayers   int
}

// Evaluator is the ONNX Runtime-backed mctsapi.Evaluator.
type Evaluator struct {
	session *ort.AdvancedSession
	cfg     Config
	log     zerolog.Logger

	input  []float32
	policy []float32
	value  []float32

	inputs  []ort.Value
	outputs []ort.Value
}

// New loads the model and negotiates an execution provider, trying each
// of the fallback chain in turn.
func New(cfg Config, log zerolog.Logger) (*Evaluator, error) {
	inputSize := cfg.MaxBatchSize * cfg.HistorySize * cfg.NumElements
	policySize := cfg.MaxBatchSize * cfg.ActionSpace
	valueSize := cfg.MaxBatchSize * cfg.NumPlayers

	input := make([]float32, inputSize)
	policy := make([]float32, policySize)
	value := make([]float32, valueSize)

	inputShape := ort.NewShape(int64(cfg.MaxBatchSize), int64(cfg.HistorySize), int64(cfg.NumElements))
	policyShape := ort.NewShape(int64(cfg.MaxBatchSize), int64(cfg.ActionSpace))
	valueShape := ort.NewShape(int64(cfg.MaxBatchSize), int64(cfg.NumPlayers))

	inputTensor, err := ort.NewTensor(inputShape, input)
	if err != nil {
		return nil, fmt.Errorf("nneval: allocating input tensor: %w", err)
	}
	policyTensor, err := ort.NewTensor(policyShape, policy)
	if err != nil {
		return nil, fmt.Errorf("nneval: allocating policy tensor: %w", err)
	}
	valueTensor, err := ort.NewTensor(valueShape, value)
	if err != nil {
		return nil, fmt.Errorf("nneval: allocating value tensor: %w", err)
	}

	inputs := []ort.Value{inputTensor}
	outputs := []ort.Value{policyTensor, valueTensor}
	inputNames := []string{"history"}
	outputNames := []string{"policy", "value"}

	if !ort.IsInitialized() {
		absLibPath, _ := filepath.Abs(cfg.LibPath)
		ort.SetSharedLibraryPath(absLibPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("nneval: initializing onnxruntime environment: %w", err)
		}
	}

	providers := []struct {
		name  string
		setup func(*ort.SessionOptions) error
	}{
		{"TensorRT", func(so *ort.SessionOptions) error {
			opts, err := ort.NewTensorRTProviderOptions()
			if err != nil {
				return err
			}
			defer opts.Destroy()
			return so.AppendExecutionProviderTensorRT(opts)
		}},
		{"CUDA", func(so *ort.SessionOptions) error {
			opts, err := ort.NewCUDAProviderOptions()
			if err != nil {
				return err
			}
			defer opts.Destroy()
			return so.AppendExecutionProviderCUDA(opts)
		}},
		{"DirectML", func(so *ort.SessionOptions) error {
			return so.AppendExecutionProviderDirectML(0)
		}},
		{"CPU", func(so *ort.SessionOptions) error { return nil }},
	}

	var session *ort.AdvancedSession
	for _, p := range providers {
		so, err := ort.NewSessionOptions()
		if err != nil {
			continue
		}
		if err := p.setup(so); err != nil {
			log.Warn().Str("provider", p.name).Err(err).Msg("nneval: provider setup failed")
			so.Destroy()
			continue
		}
		s, err := ort.NewAdvancedSession(cfg.ModelPath, inputNames, outputNames, inputs, outputs, so)
		if err != nil {
			log.Warn().Str("provider", p.name).Err(err).Msg("nneval: session creation failed")
			so.Destroy()
			continue
		}
		log.Info().Str("provider", p.name).Msg("nneval: session initialised")
		session = s
		so.Destroy()
		break
	}
	if session == nil {
		return nil, fmt.Errorf("nneval: failed to initialise a session with any execution provider")
	}

	return &Evaluator{
		session: session,
		cfg:     cfg,
		log:     log,
		input:   input,
		policy:  policy,
		value:   value,
		inputs:  inputs,
		outputs: outputs,
	}, nil
}

// Close releases the ONNX Runtime session and tensors.
func (e *Evaluator) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	for _, v := range e.inputs {
		v.Destroy()
	}
	for _, v := range e.outputs {
		v.Destroy()
	}
}

// ForwardBatch implements mctsapi.Evaluator. It is not safe to call
// concurrently from multiple goroutines against the same Evaluator —
// the InferenceCoordinator serialises calls via its semaphore.
func (e *Evaluator) ForwardBatch(histories [][]float32) ([]mctsapi.InferenceResult, error) {
	if len(histories) == 0 {
		return nil, nil
	}
	if len(histories) > e.cfg.MaxBatchSize {
		return nil, fmt.Errorf("nneval: batch of %d exceeds max_batch_size %d", len(histories), e.cfg.MaxBatchSize)
	}

	stride := e.cfg.HistorySize * e.cfg.NumElements
	for i, h := range histories {
		if len(h) != stride {
			return nil, fmt.Errorf("nneval: history %d has length %d, want %d", i, len(h), stride)
		}
		copy(e.input[i*stride:(i+1)*stride], h)
	}
	for i := len(histories) * stride; i < len(e.input); i++ {
		e.input[i] = 0
	}

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("nneval: session run: %w", err)
	}

	results := make([]mctsapi.InferenceResult, len(histories))
	for i := range histories {
		policy := make([]float32, e.cfg.ActionSpace)
		copy(policy, e.policy[i*e.cfg.ActionSpace:(i+1)*e.cfg.ActionSpace])

		logits := e.value[i*e.cfg.NumPlayers : (i+1)*e.cfg.NumPlayers]
		values := softmax(logits)

		results[i] = mctsapi.InferenceResult{Policy: policy, Values: values}
	}
	return results, nil
}

func softmax(logits []float32) []float64 {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}
	exp := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		exp[i] = math.Exp(float64(v - maxLogit))
		sum += exp[i]
	}
	out := make([]float64, len(logits))
	for i := range exp {
		out[i] = exp[i] / sum
	}
	return out
}
