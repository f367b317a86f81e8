package intelligence

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Genome is a WorkflowGenome plus the evaluation/evolution bookkeeping of
// §3's Genome entity.
type Genome struct {
	Value            WorkflowGenome
	Input            EvaluationInput
	EvoContext       EvolutionContext
	Results          GenomeEvaluationResults
	CumulativeCostUsd float64
	IsEvaluated      bool
}

// Hash returns the stable genome hash (§4.6).
func (g *Genome) Hash() (string, error) {
	return GenomeHash(g.Value.WorkflowVersionID, g.Value.Config)
}

// SetFitnessAndFeedback sets isEvaluated=true and records fitness+feedback.
func (g *Genome) SetFitnessAndFeedback(fitness FitnessOfWorkflow, feedback string, costUsd float64) {
	g.IsEvaluated = true
	g.Results = GenomeEvaluationResults{
		WorkflowVersionID: g.Value.WorkflowVersionID,
		HasBeenEvaluated:  true,
		EvaluatedAt:       time.Now(),
		Fitness:           fitness,
		CostOfEvaluation:  costUsd,
		Feedback:          &feedback,
	}
	g.CumulativeCostUsd += costUsd
}

// ClearEvaluationState clears fitness/feedback without advancing context.
func (g *Genome) ClearEvaluationState() {
	g.IsEvaluated = false
	g.Results = GenomeEvaluationResults{WorkflowVersionID: g.Value.WorkflowVersionID}
}

// Reset clears fitness/feedback and advances the genome's evolution context.
func (g *Genome) Reset(ctx EvolutionContext) {
	g.ClearEvaluationState()
	g.EvoContext = ctx
}

// AddCost accrues a cost increment outside of a full evaluation (e.g. a
// prompt-mutation LLM call charged before the child is ever evaluated).
func (g *Genome) AddCost(usd float64) {
	g.CumulativeCostUsd += usd
}

func newWorkflowVersionID() string {
	return "wfv-" + uuid.NewString()
}

// FromConfig wraps an existing workflow config into a genome with a new
// workflow-version id (§4.6 from_config).
func FromConfig(cfg WorkflowConfig, parentIDs []string, op OperatorType, input EvaluationInput, evoCtx EvolutionContext) *Genome {
	return &Genome{
		Value: WorkflowGenome{
			Config:                   cfg,
			ParentWorkflowVersionIDs: parentIDs,
			WorkflowVersionID:        newWorkflowVersionID(),
			Operation:                op,
		},
		Input:      input,
		EvoContext: evoCtx,
		Results: GenomeEvaluationResults{
			HasBeenEvaluated: false,
		},
	}
}

// GenomeFactory creates genomes via the LLM gateway/validator for the
// create_random / create_prepared paths of §4.6. It holds exactly the
// collaborators those paths need, injected fields rather than a
// god-object engine reference.
type GenomeFactory struct {
	Gateway            Gateway
	Validator          Validator
	Coordinator        *MutationCoordinator
	StructuralPatterns []string
	RNG                *rand.Rand
	RNGMu              *sync.Mutex
}

// DefaultStructuralPatterns is the set of topology templates create_random
// draws from when synthesizing a brand-new workflow (§4.6).
var DefaultStructuralPatterns = []string{"sequential", "parallel", "branching", "merge", "hub-and-spoke"}

func (f *GenomeFactory) pickPattern() string {
	patterns := f.StructuralPatterns
	if len(patterns) == 0 {
		patterns = DefaultStructuralPatterns
	}
	f.RNGMu.Lock()
	defer f.RNGMu.Unlock()
	return patterns[f.RNG.Intn(len(patterns))]
}

// CreateRandom implements §4.6 create_random. If initialPopulationMethod ==
// baseWorkflow and a base workflow is supplied, it builds a genome from it
// and applies the MutationCoordinator with Poisson(1,4,5) intensity;
// otherwise it asks the LLM to synthesize a new workflow from the goal plus
// a randomly chosen structural pattern plus the problem analysis.
func (f *GenomeFactory) CreateRandom(ctx context.Context, method InitialPopulationMethod, baseWorkflow *WorkflowConfig, analysis *ProblemAnalysis, input EvaluationInput, evoCtx EvolutionContext) (*Genome, float64, error) {
	if method == PopulationBaseWorkflow && baseWorkflow != nil {
		base := FromConfig(*baseWorkflow, nil, OpInit, input, evoCtx)
		f.RNGMu.Lock()
		intensity := float64(Poisson(f.RNG, 1, 4, 5)) / 5.0
		f.RNGMu.Unlock()
		child, cost, err := f.Coordinator.MutateConfig(ctx, base.Value.Config, intensity)
		if err != nil {
			return base, 0, nil
		}
		g := FromConfig(child, []string{base.Value.WorkflowVersionID}, OpInit, input, evoCtx)
		g.AddCost(cost)
		return g, cost, nil
	}
	return f.synthesize(ctx, analysis, input, evoCtx)
}

// CreatePrepared implements §4.6 create_prepared: identical to CreateRandom
// but forces the idea-to-workflow prompt to consume a deeper problem
// analysis, so a nil analysis is a configuration error rather than silently
// falling back to a shallow one.
func (f *GenomeFactory) CreatePrepared(ctx context.Context, analysis *ProblemAnalysis, input EvaluationInput, evoCtx EvolutionContext) (*Genome, float64, error) {
	if analysis == nil {
		return nil, 0, &ConfigurationError{Msg: "create_prepared requires a problem analysis"}
	}
	return f.synthesize(ctx, analysis, input, evoCtx)
}

func (f *GenomeFactory) synthesize(ctx context.Context, analysis *ProblemAnalysis, input EvaluationInput, evoCtx EvolutionContext) (*Genome, float64, error) {
	pattern := f.pickPattern()
	instruction := fmt.Sprintf("Design a workflow of LLM agents to achieve: %s. Preferred structural pattern: %s.", input.Goal, pattern)
	if analysis != nil {
		instruction += fmt.Sprintf(" Problem analysis: %s", analysis.Summary)
	}
	cfg, err := f.Validator.FormalizeWorkflow(ctx, instruction, analysis, FormalizeOptions{VerifyWorkflow: true, RepairWorkflowAfterGeneration: true})
	if err != nil {
		return nil, 0, &OperatorFailure{Operator: OpInit, Err: err}
	}
	g := FromConfig(cfg, nil, OpInit, input, evoCtx)
	return g, 0, nil
}
