// Package validator implements the intelligence.Validator capability: the
// structural DAG checks (unique ids, resolvable hand-offs, exactly one
// entry, reachability), field-level validation via
// github.com/go-playground/validator/v10, a conservative structural
// repairer, and an LLM-backed FormalizeWorkflow for idea-to-workflow
// synthesis and crossover/structure-mutation instruction realization.
package validator

import (
	"context"
	"encoding/json"
	"fmt"

	playground "github.com/go-playground/validator/v10"

	"github.com/aswarm-evolve/workflow-gp/intelligence"
)

// nodeConstraints mirrors the node-level field rules mbflow applies via
// struct tags in its executor config types.
type nodeConstraints struct {
	ID          string `validate:"required"`
	Model       string `validate:"required"`
	Description string `validate:"max=4000"`
}

// Validator implements intelligence.Validator.
type Validator struct {
	gateway intelligence.Gateway
	pv      *playground.Validate
}

// New builds a Validator that calls out to gateway for FormalizeWorkflow.
func New(gateway intelligence.Gateway) *Validator {
	return &Validator{gateway: gateway, pv: playground.New()}
}

var _ intelligence.Validator = (*Validator)(nil)

func structuralErrors(cfg intelligence.WorkflowConfig) []string {
	var errs []string
	seen := make(map[string]bool, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		if seen[n.ID] {
			errs = append(errs, fmt.Sprintf("duplicate node id %q", n.ID))
		}
		seen[n.ID] = true
	}
	if _, ok := cfg.NodeByID(cfg.EntryNodeID); !ok {
		errs = append(errs, fmt.Sprintf("entry node %q does not exist", cfg.EntryNodeID))
	}
	for _, n := range cfg.Nodes {
		for _, h := range n.HandOffs {
			if _, ok := seen[h]; !ok {
				errs = append(errs, fmt.Sprintf("node %q hands off to unknown node %q", n.ID, h))
			}
		}
	}
	reachable := reachableFrom(cfg, cfg.EntryNodeID)
	for _, n := range cfg.Nodes {
		if !reachable[n.ID] {
			errs = append(errs, fmt.Sprintf("node %q is unreachable from the entry node", n.ID))
		}
	}
	return errs
}

func reachableFrom(cfg intelligence.WorkflowConfig, start string) map[string]bool {
	visited := map[string]bool{}
	var stack []string
	if _, ok := cfg.NodeByID(start); ok {
		stack = append(stack, start)
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		n, ok := cfg.NodeByID(id)
		if !ok {
			continue
		}
		for _, h := range n.HandOffs {
			if !visited[h] {
				stack = append(stack, h)
			}
		}
	}
	return visited
}

func fieldErrors(pv *playground.Validate, cfg intelligence.WorkflowConfig) []string {
	var errs []string
	for _, n := range cfg.Nodes {
		if err := pv.Struct(nodeConstraints{ID: n.ID, Model: n.Model, Description: n.Description}); err != nil {
			errs = append(errs, fmt.Sprintf("node %q: %v", n.ID, err))
		}
	}
	return errs
}

// VerifyWorkflow implements intelligence.Validator.
func (v *Validator) VerifyWorkflow(ctx context.Context, cfg intelligence.WorkflowConfig, opts intelligence.VerifyOptions) (intelligence.VerifyResult, error) {
	errs := structuralErrors(cfg)
	errs = append(errs, fieldErrors(v.pv, cfg)...)
	result := intelligence.VerifyResult{IsValid: len(errs) == 0, Errors: errs}
	if !result.IsValid && opts.ThrowOnError {
		return result, fmt.Errorf("workflow verification failed: %v", errs)
	}
	return result, nil
}

// repair conservatively fixes the structural violations VerifyWorkflow
// finds: dangling hand-offs are dropped, orphaned (unreachable) nodes are
// re-pointed at the entry node. It never invents new nodes — that is the
// external "formalize" capability's job.
func repair(cfg intelligence.WorkflowConfig) intelligence.WorkflowConfig {
	known := make(map[string]bool, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		known[n.ID] = true
	}
	for i := range cfg.Nodes {
		var kept []string
		for _, h := range cfg.Nodes[i].HandOffs {
			if known[h] {
				kept = append(kept, h)
			}
		}
		cfg.Nodes[i].HandOffs = kept
	}
	if _, ok := cfg.NodeByID(cfg.EntryNodeID); !ok && len(cfg.Nodes) > 0 {
		cfg.EntryNodeID = cfg.Nodes[0].ID
	}
	reachable := reachableFrom(cfg, cfg.EntryNodeID)
	for i, n := range cfg.Nodes {
		if !reachable[n.ID] && n.ID != cfg.EntryNodeID {
			if entryIdx := cfg.NodeIndex(cfg.EntryNodeID); entryIdx >= 0 {
				cfg.Nodes[entryIdx].HandOffs = append(cfg.Nodes[entryIdx].HandOffs, n.ID)
			}
		}
		_ = i
	}
	return cfg
}

// ValidateAndRepair implements intelligence.Validator: verify, repair,
// re-verify, up to opts.MaxRetries times.
func (v *Validator) ValidateAndRepair(ctx context.Context, cfg intelligence.WorkflowConfig, opts intelligence.RepairOptions) (intelligence.WorkflowConfig, error) {
	current := cfg
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		result, _ := v.VerifyWorkflow(ctx, current, intelligence.VerifyOptions{})
		if result.IsValid {
			return current, nil
		}
		if opts.OnFail != nil {
			opts.OnFail(attempt, result.Errors)
		}
		if attempt == opts.MaxRetries {
			return current, fmt.Errorf("workflow still invalid after %d repair attempts: %v", attempt, result.Errors)
		}
		current = repair(current)
	}
	return current, nil
}

// formalizeSchema is the structured schema FormalizeWorkflow asks the
// gateway to fill in.
var formalizeSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"entry_node_id": map[string]any{"type": "string"},
		"nodes":         map[string]any{"type": "array"},
	},
}

// FormalizeWorkflow implements intelligence.Validator: it asks the gateway
// to realize a natural-language instruction as a WorkflowConfig, optionally
// verifying and repairing the result before returning it.
func (v *Validator) FormalizeWorkflow(ctx context.Context, instruction string, analysis *intelligence.ProblemAnalysis, opts intelligence.FormalizeOptions) (intelligence.WorkflowConfig, error) {
	resp, err := v.gateway.SendAI(ctx, intelligence.GatewayRequest{
		Mode:   "structured",
		Schema: formalizeSchema,
		Messages: []intelligence.GatewayMessage{
			{Role: "system", Content: "Emit a WorkflowConfig JSON object matching the schema: entry_node_id, nodes[]{id,description,system_prompt,model,mcp_tools,code_tools,hand_offs,memory}."},
			{Role: "user", Content: instruction},
		},
	})
	if err != nil || !resp.Success {
		return intelligence.WorkflowConfig{}, fmt.Errorf("formalize workflow failed: %v %s", err, resp.Error)
	}
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return intelligence.WorkflowConfig{}, err
	}
	var cfg intelligence.WorkflowConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return intelligence.WorkflowConfig{}, fmt.Errorf("formalize workflow returned unparseable config: %w", err)
	}

	if opts.RepairWorkflowAfterGeneration {
		cfg, err = v.ValidateAndRepair(ctx, cfg, intelligence.RepairOptions{MaxRetries: 2})
		if err != nil {
			return cfg, err
		}
	}
	if opts.VerifyWorkflow {
		result, verr := v.VerifyWorkflow(ctx, cfg, intelligence.VerifyOptions{ThrowOnError: true})
		if verr != nil {
			return cfg, verr
		}
		_ = result
	}
	return cfg, nil
}
