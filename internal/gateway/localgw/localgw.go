// Package localgw implements intelligence.Gateway entirely in-process,
// generalizing SimpleMutationEngine/SimplePopulationManager
// (mutation-engine-v2.go, population-manager.go) — both generate variation
// locally via a seeded *rand.Rand rather than calling out to any external
// service. Here that same local-synthesis style stands in for the LLM
// gateway: it drives prompt rewrites, tool-action proposals, and
// idea-to-workflow formalization with templated, randomized output instead
// of a live model call. It is meant for tests, CI, and cmd/evolve's
// self-contained demo run.
package localgw

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/aswarm-evolve/workflow-gp/intelligence"
)

// Gateway is a deterministic, seedable stand-in for a real LLM gateway.
type Gateway struct {
	mu     sync.Mutex
	rng    *rand.Rand
	Models []string
	Tools  []string
}

// New builds a Gateway that draws nodes from models/tools when synthesizing
// workflows and proposing tool mutations.
func New(seed int64, models, tools []string) *Gateway {
	return &Gateway{rng: rand.New(rand.NewSource(seed)), Models: models, Tools: tools}
}

var _ intelligence.Gateway = (*Gateway)(nil)

func (g *Gateway) intn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n <= 0 {
		return 0
	}
	return g.rng.Intn(n)
}

func (g *Gateway) pickModel() string {
	if len(g.Models) == 0 {
		return "local-model"
	}
	return g.Models[g.intn(len(g.Models))]
}

func (g *Gateway) pickTool() string {
	if len(g.Tools) == 0 {
		return "noop-tool"
	}
	return g.Tools[g.intn(len(g.Tools))]
}

// SendAI implements intelligence.Gateway. It inspects the request shape
// (mode, and whether the schema has an entry_node_id property) to decide what kind of canned response
// to synthesize, branching on config the same way test doubles do rather
// than on a live response.
func (g *Gateway) SendAI(ctx context.Context, req intelligence.GatewayRequest) (intelligence.GatewayResponse, error) {
	if err := ctx.Err(); err != nil {
		return intelligence.GatewayResponse{}, err
	}
	if req.Mode != "structured" {
		return g.sendText(req), nil
	}
	if props, ok := req.Schema["properties"].(map[string]any); ok {
		if _, ok := props["entry_node_id"]; ok {
			return g.formalizeWorkflow(req), nil
		}
	}
	return g.toolAction(req), nil
}

func (g *Gateway) sendText(req intelligence.GatewayRequest) intelligence.GatewayResponse {
	var prompt string
	for _, m := range req.Messages {
		prompt += m.Content + "\n"
	}
	suffix := fmt.Sprintf(" Revision #%d: stay focused on the assigned sub-task and hand off promptly.", g.intn(1000))
	return intelligence.GatewayResponse{Success: true, Text: strings.TrimSpace(prompt) + suffix, UsdCost: 0.0005}
}

func (g *Gateway) toolAction(req intelligence.GatewayRequest) intelligence.GatewayResponse {
	actions := []string{"add", "remove"}
	action := actions[g.intn(len(actions))]
	kind := "mcp"
	if g.intn(2) == 1 {
		kind = "code"
	}
	data := map[string]any{
		"action": action,
		"tool":   g.pickTool(),
		"kind":   kind,
	}
	return intelligence.GatewayResponse{Success: true, Data: data, UsdCost: 0.0003}
}

// formalizeWorkflow synthesizes a small, valid, linear workflow: a chain of
// 2-4 nodes each handing off to the next, drawing models/tools from the
// gateway's pools. Good enough to exercise the evolution loop end to end
// without ever producing an invalid config the validator has to reject.
func (g *Gateway) formalizeWorkflow(req intelligence.GatewayRequest) intelligence.GatewayResponse {
	nodeCount := 2 + g.intn(3)
	nodes := make([]map[string]any, nodeCount)
	ids := make([]string, nodeCount)
	for i := 0; i < nodeCount; i++ {
		ids[i] = fmt.Sprintf("agent-%d-%d", g.intn(1_000_000), i)
	}
	var instruction string
	for _, m := range req.Messages {
		instruction += m.Content + " "
	}
	for i := 0; i < nodeCount; i++ {
		var handOffs []string
		if i < nodeCount-1 {
			handOffs = []string{ids[i+1]}
		}
		nodes[i] = map[string]any{
			"id":            ids[i],
			"description":   fmt.Sprintf("Agent %d handling stage %d of: %s", i, i, strings.TrimSpace(instruction)),
			"system_prompt": fmt.Sprintf("You are stage %d. Complete your sub-task and hand off to the next agent if one remains.", i),
			"model":         g.pickModel(),
			"mcp_tools":     []string{g.pickTool()},
			"code_tools":    []string{},
			"hand_offs":     handOffs,
		}
	}
	data := map[string]any{
		"entry_node_id": ids[0],
		"nodes":         nodes,
	}
	return intelligence.GatewayResponse{Success: true, Data: data, UsdCost: 0.002}
}
