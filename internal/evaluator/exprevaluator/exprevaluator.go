// Package exprevaluator implements a deterministic intelligence.Evaluator
// over github.com/expr-lang/expr, the same expression engine mbflow compiles
// and caches conditions with. It makes no network or LLM call and serves
// tests, CI, and the S1-S6 scenario fixtures: fitness is a pure function
// of structural features of the candidate WorkflowConfig.
package exprevaluator

import (
	"context"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/aswarm-evolve/workflow-gp/intelligence"
)

// DefaultExpression rewards workflows with more nodes (linearly up to 8),
// scales the score down as the average prompt length goes from 600 to 1200
// characters, and zeroes it when hand-offs per node exceed 3. Tool counts
// and node memory do not enter it. It is intentionally simple: this
// evaluator exists to drive the evolution loop's bookkeeping, not to model
// a real task.
const DefaultExpression = `
	(nodeCount >= 1 ? 1.0 : 0.0) *
	clampedNodeScore *
	(1.0 - avgPromptOverflow) *
	(1.0 - handoffPenalty)
`

// programCache compiles each distinct expression once, the same
// compile-once idiom as mbflow's own expr.Program condition cache.
type programCache struct {
	mu    sync.RWMutex
	byKey map[string]*vm.Program
}

func newProgramCache() *programCache {
	return &programCache{byKey: map[string]*vm.Program{}}
}

func (c *programCache) compile(key string, env map[string]any) (*vm.Program, error) {
	c.mu.RLock()
	p, ok := c.byKey[key]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}
	prog, err := expr.Compile(key, expr.Env(env))
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.byKey[key] = prog
	c.mu.Unlock()
	return prog, nil
}

// Evaluator implements intelligence.Evaluator by compiling and running an
// expr-lang expression against structural features of the candidate config.
type Evaluator struct {
	Expression string
	CostPerEval float64
	cache       *programCache
}

// New builds an Evaluator. An empty expression falls back to DefaultExpression.
func New(expression string, costPerEval float64) *Evaluator {
	if expression == "" {
		expression = DefaultExpression
	}
	return &Evaluator{Expression: expression, CostPerEval: costPerEval, cache: newProgramCache()}
}

var _ intelligence.Evaluator = (*Evaluator)(nil)

func featuresOf(cfg intelligence.WorkflowConfig) map[string]any {
	nodeCount := len(cfg.Nodes)
	totalPromptLen := 0
	totalTools := 0
	totalHandoffs := 0
	for _, n := range cfg.Nodes {
		totalPromptLen += len(n.SystemPrompt)
		totalTools += len(n.MCPTools) + len(n.CodeTools)
		totalHandoffs += len(n.HandOffs)
	}
	avgPromptLen := 0.0
	if nodeCount > 0 {
		avgPromptLen = float64(totalPromptLen) / float64(nodeCount)
	}
	avgPromptOverflow := 0.0
	if avgPromptLen > 600 {
		avgPromptOverflow = 1.0
		if avgPromptLen < 1200 {
			avgPromptOverflow = (avgPromptLen - 600) / 600
		}
	}
	clampedNodeScore := float64(nodeCount) / 8.0
	if clampedNodeScore > 1 {
		clampedNodeScore = 1
	}
	handoffPenalty := 0.0
	if nodeCount > 0 {
		ratio := float64(totalHandoffs) / float64(nodeCount)
		if ratio > 3 {
			handoffPenalty = 1.0
		}
	}
	return map[string]any{
		"nodeCount":         nodeCount,
		"totalTools":        totalTools,
		"totalHandoffs":     totalHandoffs,
		"avgPromptLen":      avgPromptLen,
		"avgPromptOverflow": avgPromptOverflow,
		"clampedNodeScore":  clampedNodeScore,
		"handoffPenalty":    handoffPenalty,
	}
}

// Evaluate implements intelligence.Evaluator.
func (e *Evaluator) Evaluate(ctx context.Context, genome intelligence.WorkflowGenome, input intelligence.EvaluationInput, evoCtx intelligence.EvolutionContext) (intelligence.EvaluatorResult, error) {
	if err := ctx.Err(); err != nil {
		return intelligence.EvaluatorResult{}, err
	}
	env := featuresOf(genome.Config)
	prog, err := e.cache.compile(e.Expression, env)
	if err != nil {
		return intelligence.EvaluatorResult{Success: false, Error: err.Error()}, nil
	}
	out, err := expr.Run(prog, env)
	if err != nil {
		return intelligence.EvaluatorResult{Success: false, Error: err.Error()}, nil
	}
	score, ok := out.(float64)
	if !ok {
		return intelligence.EvaluatorResult{Success: false, Error: fmt.Sprintf("expression returned non-numeric result: %T", out)}, nil
	}
	fitness := intelligence.FitnessOfWorkflow{
		Score:        score,
		TotalCostUsd: e.CostPerEval,
		Accuracy:     score,
	}
	return intelligence.EvaluatorResult{
		Success: true,
		Fitness: &fitness,
		UsdCost: e.CostPerEval,
	}, nil
}
