package intelligence

import (
	"context"
	"fmt"
)

// ModelMutation picks a random non-entry node and replaces its model by a
// uniformly random choice from the active model pool, excluding the
// currently-set model (§4.4).
type ModelMutation struct{}

func (ModelMutation) Type() OperatorType { return OpModel }

func (ModelMutation) Apply(ctx context.Context, deps *OperatorDeps, parents []WorkflowConfig, intensity float64) (OperatorResult, error) {
	if err := ctxDone(ctx); err != nil {
		return OperatorResult{}, err
	}
	if len(parents) != 1 {
		return OperatorResult{}, &OperatorFailure{Operator: OpModel, Err: fmt.Errorf("expected 1 parent, got %d", len(parents))}
	}
	cfg := deepCopyConfig(parents[0])
	candidates := nonEntryNodeIndices(cfg)
	if len(candidates) == 0 {
		return OperatorResult{}, &OperatorFailure{Operator: OpModel, Err: fmt.Errorf("no eligible node to mutate")}
	}
	idx := candidates[deps.randIntn(len(candidates))]
	names, err := deps.Catalog.GetActiveModelNames(ctx)
	if err != nil {
		return OperatorResult{}, &OperatorFailure{Operator: OpModel, Err: err}
	}
	var pool []string
	for _, m := range names {
		if m != cfg.Nodes[idx].Model {
			pool = append(pool, m)
		}
	}
	if len(pool) == 0 {
		return OperatorResult{}, &OperatorFailure{Operator: OpModel, Err: fmt.Errorf("no alternative active models available")}
	}
	cfg.Nodes[idx].Model = pool[deps.randIntn(len(pool))]
	cfg = PreserveMutationMemory(parents[0], cfg)
	return OperatorResult{Config: cfg}, nil
}

// PromptMutation asks the LLM to rewrite one node's system prompt, scaled by
// intensity, and returns the incurred usd cost (§4.4).
type PromptMutation struct{}

func (PromptMutation) Type() OperatorType { return OpPrompt }

func (PromptMutation) Apply(ctx context.Context, deps *OperatorDeps, parents []WorkflowConfig, intensity float64) (OperatorResult, error) {
	if err := ctxDone(ctx); err != nil {
		return OperatorResult{}, err
	}
	if len(parents) != 1 {
		return OperatorResult{}, &OperatorFailure{Operator: OpPrompt, Err: fmt.Errorf("expected 1 parent, got %d", len(parents))}
	}
	cfg := deepCopyConfig(parents[0])
	if len(cfg.Nodes) == 0 {
		return OperatorResult{}, &OperatorFailure{Operator: OpPrompt, Err: fmt.Errorf("empty workflow")}
	}
	idx := deps.randIntn(len(cfg.Nodes))
	target := cfg.Nodes[idx]
	instruction := fmt.Sprintf(
		"Rewrite this agent's system prompt, changing roughly %.0f%% of its content while preserving intent:\n%s",
		intensity*100, target.SystemPrompt)
	resp, err := deps.Gateway.SendAI(ctx, GatewayRequest{
		Model:    target.Model,
		Messages: []GatewayMessage{{Role: "user", Content: instruction}},
		Mode:     "text",
	})
	if err != nil || !resp.Success {
		return OperatorResult{}, &OperatorFailure{Operator: OpPrompt, Err: fmt.Errorf("prompt rewrite failed: %v %s", err, resp.Error)}
	}
	cfg.Nodes[idx].SystemPrompt = resp.Text
	cfg = PreserveMutationMemory(parents[0], cfg)
	return OperatorResult{Config: cfg, CostUsd: resp.UsdCost}, nil
}

// toolAction is the structured result ToolMutation asks the LLM to emit.
type toolAction struct {
	Action string `json:"action"` // add | remove | move
	Tool   string `json:"tool"`
	Kind   string `json:"kind"` // mcp | code
	Target string `json:"target_node_id"`
	Source string `json:"source_node_id"`
	Dest   string `json:"dest_node_id"`
}

// ToolMutation asks the LLM for a structured add/remove/move action over a
// tool and applies it to the config (§4.4). Tools not present in the
// catalog are rejected.
type ToolMutation struct{}

func (ToolMutation) Type() OperatorType { return OpTool }

func decodeToolAction(data map[string]any) toolAction {
	get := func(k string) string {
		if v, ok := data[k].(string); ok {
			return v
		}
		return ""
	}
	return toolAction{
		Action: get("action"),
		Tool:   get("tool"),
		Kind:   get("kind"),
		Target: get("target_node_id"),
		Source: get("source_node_id"),
		Dest:   get("dest_node_id"),
	}
}

func toolSlice(n *Node, kind string) *[]string {
	if kind == "code" {
		return &n.CodeTools
	}
	return &n.MCPTools
}

func removeTool(slice []string, tool string) []string {
	out := slice[:0]
	for _, t := range slice {
		if t != tool {
			out = append(out, t)
		}
	}
	return out
}

func (ToolMutation) Apply(ctx context.Context, deps *OperatorDeps, parents []WorkflowConfig, intensity float64) (OperatorResult, error) {
	if err := ctxDone(ctx); err != nil {
		return OperatorResult{}, err
	}
	if len(parents) != 1 {
		return OperatorResult{}, &OperatorFailure{Operator: OpTool, Err: fmt.Errorf("expected 1 parent, got %d", len(parents))}
	}
	cfg := deepCopyConfig(parents[0])
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action":          map[string]any{"enum": []string{"add", "remove", "move"}},
			"tool":            map[string]any{"type": "string"},
			"kind":            map[string]any{"enum": []string{"mcp", "code"}},
			"target_node_id":  map[string]any{"type": "string"},
			"source_node_id":  map[string]any{"type": "string"},
			"dest_node_id":    map[string]any{"type": "string"},
		},
	}
	resp, err := deps.Gateway.SendAI(ctx, GatewayRequest{
		Mode:   "structured",
		Schema: schema,
		Messages: []GatewayMessage{{Role: "user", Content: "Propose a single tool add/remove/move to improve this workflow."}},
	})
	if err != nil || !resp.Success {
		return OperatorResult{}, &OperatorFailure{Operator: OpTool, Err: fmt.Errorf("tool action request failed: %v %s", err, resp.Error)}
	}
	action := decodeToolAction(resp.Data)
	known, err := deps.Catalog.IsToolKnown(ctx, action.Tool)
	if err != nil {
		return OperatorResult{}, &OperatorFailure{Operator: OpTool, Err: err}
	}
	if !known {
		return OperatorResult{}, &OperatorFailure{Operator: OpTool, Err: fmt.Errorf("tool %q not in catalog", action.Tool)}
	}
	switch action.Action {
	case "add":
		applied := false
		for i := range cfg.Nodes {
			if action.Target == "" || cfg.Nodes[i].ID == action.Target {
				slice := toolSlice(&cfg.Nodes[i], action.Kind)
				*slice = append(*slice, action.Tool)
				applied = true
			}
		}
		if !applied {
			return OperatorResult{}, &OperatorFailure{Operator: OpTool, Err: fmt.Errorf("target node %q not found", action.Target)}
		}
	case "remove":
		applied := false
		for i := range cfg.Nodes {
			if action.Target == "" || cfg.Nodes[i].ID == action.Target {
				slice := toolSlice(&cfg.Nodes[i], action.Kind)
				*slice = removeTool(*slice, action.Tool)
				applied = true
			}
		}
		if !applied {
			return OperatorResult{}, &OperatorFailure{Operator: OpTool, Err: fmt.Errorf("target node %q not found", action.Target)}
		}
	case "move":
		srcIdx, dstIdx := cfg.NodeIndex(action.Source), cfg.NodeIndex(action.Dest)
		if srcIdx < 0 || dstIdx < 0 {
			return OperatorResult{}, &OperatorFailure{Operator: OpTool, Err: fmt.Errorf("move requires valid source/dest node ids")}
		}
		srcSlice := toolSlice(&cfg.Nodes[srcIdx], action.Kind)
		*srcSlice = removeTool(*srcSlice, action.Tool)
		dstSlice := toolSlice(&cfg.Nodes[dstIdx], action.Kind)
		*dstSlice = append(*dstSlice, action.Tool)
	default:
		return OperatorResult{}, &OperatorFailure{Operator: OpTool, Err: fmt.Errorf("unknown tool action %q", action.Action)}
	}
	cfg = PreserveMutationMemory(parents[0], cfg)
	return OperatorResult{Config: cfg, CostUsd: resp.UsdCost}, nil
}

var structuralPatterns = []string{"sequential", "parallel", "branching", "merge"}

// StructureMutation selects a random topology pattern and asks the LLM to
// restructure hand-offs while preserving connectivity; a failed repair
// leaves the config unchanged (§4.4).
type StructureMutation struct{}

func (StructureMutation) Type() OperatorType { return OpStructure }

func (StructureMutation) Apply(ctx context.Context, deps *OperatorDeps, parents []WorkflowConfig, intensity float64) (OperatorResult, error) {
	if err := ctxDone(ctx); err != nil {
		return OperatorResult{}, err
	}
	if len(parents) != 1 {
		return OperatorResult{}, &OperatorFailure{Operator: OpStructure, Err: fmt.Errorf("expected 1 parent, got %d", len(parents))}
	}
	pattern := structuralPatterns[deps.randIntn(len(structuralPatterns))]
	instruction := fmt.Sprintf("Restructure this workflow's node hand-offs into a %s pattern, preserving every node and its connectivity.", pattern)
	repaired, err := deps.Validator.FormalizeWorkflow(ctx, instruction, nil, FormalizeOptions{VerifyWorkflow: true, RepairWorkflowAfterGeneration: true})
	if err != nil {
		return OperatorResult{Config: deepCopyConfig(parents[0])}, &OperatorFailure{Operator: OpStructure, Err: err}
	}
	repaired = PreserveMutationMemory(parents[0], repaired)
	return OperatorResult{Config: repaired}, nil
}

// AddNode requests the LLM insert a specialized node; the result is
// validated and repaired by the Validator capability (§4.4).
type AddNode struct{}

func (AddNode) Type() OperatorType { return OpAddNode }

func (AddNode) Apply(ctx context.Context, deps *OperatorDeps, parents []WorkflowConfig, intensity float64) (OperatorResult, error) {
	if err := ctxDone(ctx); err != nil {
		return OperatorResult{}, err
	}
	if len(parents) != 1 {
		return OperatorResult{}, &OperatorFailure{Operator: OpAddNode, Err: fmt.Errorf("expected 1 parent, got %d", len(parents))}
	}
	instruction := "Insert one new specialized agent node into this workflow, wiring its hand-offs into the existing topology."
	proposed, err := deps.Validator.FormalizeWorkflow(ctx, instruction, nil, FormalizeOptions{VerifyWorkflow: true, RepairWorkflowAfterGeneration: true})
	if err != nil {
		return OperatorResult{}, &OperatorFailure{Operator: OpAddNode, Err: err}
	}
	repaired, err := deps.Validator.ValidateAndRepair(ctx, proposed, RepairOptions{MaxRetries: 2})
	if err != nil {
		return OperatorResult{}, &OperatorFailure{Operator: OpAddNode, Err: err}
	}
	repaired = PreserveMutationMemory(parents[0], repaired)
	return OperatorResult{Config: repaired}, nil
}

// DeleteNode selects a random leaf (no outgoing hand-offs, not the entry
// node), removes it, and preserves its memory per §4.3.
type DeleteNode struct{}

func (DeleteNode) Type() OperatorType { return OpDeleteNode }

func (DeleteNode) Apply(ctx context.Context, deps *OperatorDeps, parents []WorkflowConfig, intensity float64) (OperatorResult, error) {
	if err := ctxDone(ctx); err != nil {
		return OperatorResult{}, err
	}
	if len(parents) != 1 {
		return OperatorResult{}, &OperatorFailure{Operator: OpDeleteNode, Err: fmt.Errorf("expected 1 parent, got %d", len(parents))}
	}
	cfg := deepCopyConfig(parents[0])
	leaves := leafIndices(cfg)
	if len(leaves) == 0 {
		return OperatorResult{}, &OperatorFailure{Operator: OpDeleteNode, Err: fmt.Errorf("no eligible leaf node to delete")}
	}
	victimIdx := leaves[deps.randIntn(len(leaves))]
	victim := cfg.Nodes[victimIdx]

	remaining := make([]Node, 0, len(cfg.Nodes)-1)
	for i, n := range cfg.Nodes {
		if i != victimIdx {
			remaining = append(remaining, n)
		}
	}
	for i := range remaining {
		remaining[i].HandOffs = removeTool(remaining[i].HandOffs, victim.ID)
	}
	cfg.Nodes = remaining

	if len(victim.Memory) > 0 {
		if len(remaining) > 0 {
			remaining[0].Memory = preserveNodeMemory(remaining[0].Memory, victim.Memory)
		} else {
			var err error
			cfg, err = ArchiveDeletedNodeMemory(cfg, victim)
			if err != nil {
				return OperatorResult{}, &OperatorFailure{Operator: OpDeleteNode, Err: err}
			}
		}
	}
	cfg = PreserveMutationMemory(parents[0], cfg)
	return OperatorResult{Config: cfg}, nil
}
