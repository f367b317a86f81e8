package intelligence

import (
	"context"
	"math/rand"
	"sync"
)

// OperatorDeps bundles the collaborators every operator may need. Operators
// never hold these themselves — the coordinator injects a shared deps value
// per call instead of each operator carrying its own capability fields.
type OperatorDeps struct {
	Gateway        Gateway
	Validator      Validator
	Catalog        Catalog
	FailureTracker *FailureTracker
	RNG            *rand.Rand
	RNGMu          *sync.Mutex
}

func (d *OperatorDeps) randFloat64() float64 {
	d.RNGMu.Lock()
	defer d.RNGMu.Unlock()
	return d.RNG.Float64()
}

func (d *OperatorDeps) randIntn(n int) int {
	if n <= 0 {
		return 0
	}
	d.RNGMu.Lock()
	defer d.RNGMu.Unlock()
	return d.RNG.Intn(n)
}

// OperatorResult is what every operator returns on success: the produced
// config (memory already preserved per §4.3) and any usd cost incurred by an
// LLM-driven mutation.
type OperatorResult struct {
	Config  WorkflowConfig
	CostUsd float64
}

// Operator is the uniform contract of §4.4: pure on its inputs, returns a
// modified WorkflowConfig or fails non-fatally. Crossover takes two parents;
// every other operator takes exactly one — callers pass parents accordingly
// and an operator that receives the wrong arity returns an OperatorFailure.
type Operator interface {
	Type() OperatorType
	Apply(ctx context.Context, deps *OperatorDeps, parents []WorkflowConfig, intensity float64) (OperatorResult, error)
}

// ctxDone returns a CancelledError if ctx has been cancelled, nil otherwise.
// Repeated at every suspension point, the same check
// mutation-engine-v2.go's own ctx.Done()/ctx.Err() guard makes inline.
func ctxDone(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return &CancelledError{}
	default:
		return nil
	}
}

func deepCopyNode(n Node) Node {
	cp := n
	if n.MCPTools != nil {
		cp.MCPTools = append([]string(nil), n.MCPTools...)
	}
	if n.CodeTools != nil {
		cp.CodeTools = append([]string(nil), n.CodeTools...)
	}
	if n.HandOffs != nil {
		cp.HandOffs = append([]string(nil), n.HandOffs...)
	}
	if n.Memory != nil {
		mm := make(map[string]string, len(n.Memory))
		for k, v := range n.Memory {
			mm[k] = v
		}
		cp.Memory = mm
	}
	return cp
}

// deepCopyConfig produces an independent copy so operators never alias the
// parent's slices/maps (§9: "operators receive an immutable WorkflowConfig
// and return a new one").
func deepCopyConfig(cfg WorkflowConfig) WorkflowConfig {
	out := WorkflowConfig{EntryNodeID: cfg.EntryNodeID}
	out.Nodes = make([]Node, len(cfg.Nodes))
	for i, n := range cfg.Nodes {
		out.Nodes[i] = deepCopyNode(n)
	}
	if cfg.Memory != nil {
		mm := make(map[string]string, len(cfg.Memory))
		for k, v := range cfg.Memory {
			mm[k] = v
		}
		out.Memory = mm
	}
	return out
}

// nonEntryNodeIndices returns indices of nodes that are not the entry node,
// unless the workflow has exactly one node (§4.4 ModelMutation: "entry node
// allowed only when the workflow has exactly one node").
func nonEntryNodeIndices(cfg WorkflowConfig) []int {
	if len(cfg.Nodes) == 1 {
		return []int{0}
	}
	var idx []int
	for i, n := range cfg.Nodes {
		if n.ID != cfg.EntryNodeID {
			idx = append(idx, i)
		}
	}
	return idx
}

// leafIndices returns indices of nodes with no outgoing hand-offs, excluding
// the entry node (§4.4 DeleteNode).
func leafIndices(cfg WorkflowConfig) []int {
	var idx []int
	for i, n := range cfg.Nodes {
		if len(n.HandOffs) == 0 && n.ID != cfg.EntryNodeID {
			idx = append(idx, i)
		}
	}
	return idx
}
