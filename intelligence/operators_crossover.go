package intelligence

import (
	"context"
	"fmt"
)

var crossoverTypes = []string{"behavioralBlend", "structureCrossover", "patternFusion", "hybrid"}

func crossoverInstruction(kind string, a, b WorkflowConfig) string {
	switch kind {
	case "behavioralBlend":
		return fmt.Sprintf("Blend the behaviors of these two workflows into one, entry nodes %s and %s, keeping the strongest agent roles from each.", a.EntryNodeID, b.EntryNodeID)
	case "structureCrossover":
		return fmt.Sprintf("Combine the topology of workflow A (entry %s, %d nodes) with the agent roles of workflow B (entry %s, %d nodes) into a single coherent workflow.", a.EntryNodeID, len(a.Nodes), b.EntryNodeID, len(b.Nodes))
	case "patternFusion":
		return "Fuse the structural patterns of both parent workflows, choosing hand-off wiring that preserves the strengths of each."
	default: // hybrid
		return "Produce a hybrid workflow that alternates between the two parent workflows' agent strategies depending on sub-task."
	}
}

// Crossover implements §4.4's Crossover operator: given exactly two parents,
// selects a crossover type, composes an instruction block, invokes the
// formalize-workflow capability, then verifies/repairs. Memory from both
// parents is preserved and enforced.
type Crossover struct{}

func (Crossover) Type() OperatorType { return OpCrossover }

func (Crossover) Apply(ctx context.Context, deps *OperatorDeps, parents []WorkflowConfig, intensity float64) (OperatorResult, error) {
	if err := ctxDone(ctx); err != nil {
		return OperatorResult{}, err
	}
	if len(parents) != 2 {
		return OperatorResult{}, &OperatorFailure{Operator: OpCrossover, Err: fmt.Errorf("crossover requires exactly 2 parents, got %d", len(parents))}
	}
	kind := crossoverTypes[deps.randIntn(len(crossoverTypes))]
	instruction := crossoverInstruction(kind, parents[0], parents[1])

	formalized, err := deps.Validator.FormalizeWorkflow(ctx, instruction, nil, FormalizeOptions{VerifyWorkflow: true, RepairWorkflowAfterGeneration: true})
	if err != nil {
		return OperatorResult{}, &OperatorFailure{Operator: OpCrossover, Err: err}
	}
	repaired, err := deps.Validator.ValidateAndRepair(ctx, formalized, RepairOptions{MaxRetries: 2})
	if err != nil {
		return OperatorResult{}, &OperatorFailure{Operator: OpCrossover, Err: err}
	}
	repaired = PreserveCrossoverMemory(parents[0], parents[1], repaired)
	return OperatorResult{Config: repaired}, nil
}
