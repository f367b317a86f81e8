package intelligence

import (
	"context"
	"fmt"
)

// mutationWeight is the fixed table of §4.5.
type mutationWeight struct {
	kind   OperatorType
	weight float64
}

var defaultMutationWeights = []mutationWeight{
	{OpModel, 0.22},
	{OpPrompt, 0.18},
	{OpTool, 0.18},
	{OpCultural, 0.15},
	{OpStructure, 0.13},
	{OpAddNode, 0.07},
	{OpDeleteNode, 0.07},
}

// CulturalMutation rewrites a node's system prompt against the run's
// configured mutation instructions rather than a generic rewrite prompt —
// the "iterative" mode's sole strategy, driven by operator feedback
// accumulated outside the GP loop rather than structural randomness.
type CulturalMutation struct {
	Instructions string
}

func (CulturalMutation) Type() OperatorType { return OpCultural }

func (c CulturalMutation) Apply(ctx context.Context, deps *OperatorDeps, parents []WorkflowConfig, intensity float64) (OperatorResult, error) {
	if err := ctxDone(ctx); err != nil {
		return OperatorResult{}, err
	}
	if len(parents) != 1 {
		return OperatorResult{}, &OperatorFailure{Operator: OpCultural, Err: fmt.Errorf("expected 1 parent, got %d", len(parents))}
	}
	cfg := deepCopyConfig(parents[0])
	if len(cfg.Nodes) == 0 {
		return OperatorResult{}, &OperatorFailure{Operator: OpCultural, Err: fmt.Errorf("empty workflow")}
	}
	idx := deps.randIntn(len(cfg.Nodes))
	instruction := fmt.Sprintf("Apply this guidance to the agent's system prompt: %s\n\nCurrent prompt:\n%s", c.Instructions, cfg.Nodes[idx].SystemPrompt)
	resp, err := deps.Gateway.SendAI(ctx, GatewayRequest{
		Model:    cfg.Nodes[idx].Model,
		Messages: []GatewayMessage{{Role: "user", Content: instruction}},
		Mode:     "text",
	})
	if err != nil || !resp.Success {
		return OperatorResult{}, &OperatorFailure{Operator: OpCultural, Err: fmt.Errorf("cultural mutation failed: %v %s", err, resp.Error)}
	}
	cfg.Nodes[idx].SystemPrompt = resp.Text
	cfg = PreserveMutationMemory(parents[0], cfg)
	return OperatorResult{Config: cfg, CostUsd: resp.UsdCost}, nil
}

// MutationCoordinator performs weighted random selection and dispatch over
// the operator set (§4.5), plus post-op validation and memory enforcement.
type MutationCoordinator struct {
	Mode      EvolutionMode
	Deps      *OperatorDeps
	Validator Validator
	Tracker   *FailureTracker
	weights   []mutationWeight
	ops       map[OperatorType]Operator
}

// NewMutationCoordinator builds a coordinator for the given mode, wiring the
// full operator set and the cultural-mutation instructions from config.
func NewMutationCoordinator(mode EvolutionMode, deps *OperatorDeps, validator Validator, tracker *FailureTracker, mutationInstructions string) *MutationCoordinator {
	return &MutationCoordinator{
		Mode:      mode,
		Deps:      deps,
		Validator: validator,
		Tracker:   tracker,
		weights:   defaultMutationWeights,
		ops: map[OperatorType]Operator{
			OpModel:      ModelMutation{},
			OpPrompt:     PromptMutation{},
			OpTool:       ToolMutation{},
			OpCultural:   CulturalMutation{Instructions: mutationInstructions},
			OpStructure:  StructureMutation{},
			OpAddNode:    AddNode{},
			OpDeleteNode: DeleteNode{},
		},
	}
}

// availableWeights filters the fixed table to the operators exposed under
// the active mode (GP excludes cultural; iterative exposes only cultural)
// and renormalizes.
func (mc *MutationCoordinator) availableWeights() []mutationWeight {
	var kept []mutationWeight
	for _, w := range mc.weights {
		switch mc.Mode {
		case ModeGP:
			if w.kind == OpCultural {
				continue
			}
		case ModeIterative:
			if w.kind != OpCultural {
				continue
			}
		}
		kept = append(kept, w)
	}
	total := 0.0
	for _, w := range kept {
		total += w.weight
	}
	if total == 0 {
		return kept
	}
	out := make([]mutationWeight, len(kept))
	for i, w := range kept {
		out[i] = mutationWeight{kind: w.kind, weight: w.weight / total}
	}
	return out
}

// selectOperatorType samples the renormalized weight table by inverse-CDF
// using the coordinator's seeded RNG.
func (mc *MutationCoordinator) selectOperatorType() (OperatorType, error) {
	weights := mc.availableWeights()
	if len(weights) == 0 {
		return "", fmt.Errorf("no operators available for mode %s", mc.Mode)
	}
	r := mc.Deps.randFloat64()
	cum := 0.0
	for _, w := range weights {
		cum += w.weight
		if r < cum {
			return w.kind, nil
		}
	}
	return weights[len(weights)-1].kind, nil
}

// MutateConfig runs one weighted-selected operator against a single parent
// config and returns the resulting config plus any incurred cost, without
// wrapping the result in a genome. Used by genome creation paths that only
// need a config (e.g. baseWorkflow-seeded initialization).
func (mc *MutationCoordinator) MutateConfig(ctx context.Context, parent WorkflowConfig, intensity float64) (WorkflowConfig, float64, error) {
	kind, err := mc.selectOperatorType()
	if err != nil {
		return WorkflowConfig{}, 0, &OperatorFailure{Operator: OpMutation, Err: err}
	}
	op, ok := mc.ops[kind]
	if !ok {
		return WorkflowConfig{}, 0, &OperatorFailure{Operator: kind, Err: fmt.Errorf("operator %s not wired", kind)}
	}
	mc.Tracker.RecordAttempt(FailureMutation)
	result, err := op.Apply(ctx, mc.Deps, []WorkflowConfig{parent}, intensity)
	if err != nil {
		mc.Tracker.RecordFailure(FailureMutation)
		return WorkflowConfig{}, 0, &OperatorFailure{Operator: kind, Err: err}
	}
	cost := result.CostUsd

	if intensity > 0.6 && mc.Deps.randFloat64() < intensity {
		if modelResult, mErr := ModelMutation{}.Apply(ctx, mc.Deps, []WorkflowConfig{result.Config}, intensity); mErr == nil {
			result.Config = modelResult.Config
			cost += modelResult.CostUsd
		}
	}

	if err := EnforceMemoryPreservation([]WorkflowConfig{parent}, result.Config); err != nil {
		return WorkflowConfig{}, 0, err
	}

	repaired, err := mc.Validator.ValidateAndRepair(ctx, result.Config, RepairOptions{MaxRetries: 2})
	if err != nil {
		mc.Tracker.RecordFailure(FailureMutation)
		return WorkflowConfig{}, 0, &OperatorFailure{Operator: kind, Err: err}
	}
	return repaired, cost, nil
}

// Mutate is MutateConfig wrapped into a new Genome for the breeding path
// (§4.8): the child inherits the single parent's workflow-version id as its
// lineage and the operation tag "mutation".
func (mc *MutationCoordinator) Mutate(ctx context.Context, parent *Genome, intensity float64) (*Genome, float64, error) {
	cfg, cost, err := mc.MutateConfig(ctx, parent.Value.Config, intensity)
	if err != nil {
		return nil, 0, err
	}
	child := FromConfig(cfg, []string{parent.Value.WorkflowVersionID}, OpMutation, parent.Input, parent.EvoContext)
	child.AddCost(cost)
	return child, cost, nil
}
