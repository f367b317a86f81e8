package intelligence

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// EvolutionResult is what Evolve returns on completion (success or a normal
// stop-predicate halt — only an aborting error path returns err != nil).
type EvolutionResult struct {
	RunID       string
	BestGenome  *Genome
	FinalStatus RunStatus
	TotalCost   float64
	History     []PopulationStats
}

// EvolutionEngine orchestrates the full loop of §4.12: it exclusively owns
// Population, RunService, StatsTracker, and VerificationCache for its
// lifetime (§3 Ownership).
type EvolutionEngine struct {
	Settings EvolutionSettings

	Gateway     Gateway
	Validator   Validator
	Catalog     Catalog
	Evaluator   Evaluator
	Persistence Persistence
	Telemetry   Telemetry

	rng   *rand.Rand
	rngMu sync.Mutex

	failureTracker *FailureTracker
	cache          *VerificationCache
	runService     *RunService
	stats          *StatsTracker
	coordinator    *MutationCoordinator
	factory        *GenomeFactory
	selection      *Selection
}

// NewEvolutionEngine validates settings and wires every subcomponent from
// the injected capabilities, never reaching for a package-level singleton
// (Design Notes §9).
func NewEvolutionEngine(settings EvolutionSettings, gateway Gateway, validator Validator, catalog Catalog, evaluator Evaluator, persistence Persistence, telemetry Telemetry) (*EvolutionEngine, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	seed := settings.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	e := &EvolutionEngine{
		Settings:       settings,
		Gateway:        gateway,
		Validator:      validator,
		Catalog:        catalog,
		Evaluator:      evaluator,
		Persistence:    persistence,
		Telemetry:      telemetry,
		rng:            rand.New(rand.NewSource(seed)),
		failureTracker: NewFailureTracker(),
		cache:          NewVerificationCache(),
		runService:     &RunService{Store: persistence},
		stats:          NewStatsTracker(settings),
	}
	deps := &OperatorDeps{
		Gateway:        gateway,
		Validator:      validator,
		Catalog:        catalog,
		FailureTracker: e.failureTracker,
		RNG:            e.rng,
		RNGMu:          &e.rngMu,
	}
	e.coordinator = NewMutationCoordinator(settings.EvolutionMode, deps, validator, e.failureTracker, settings.MutationParams.MutationInstructions)
	e.factory = &GenomeFactory{
		Gateway:     gateway,
		Validator:   validator,
		Coordinator: e.coordinator,
		RNG:         e.rng,
		RNGMu:       &e.rngMu,
	}
	e.selection = &Selection{
		Settings:    settings,
		Coordinator: e.coordinator,
		Factory:     e.factory,
		Validator:   validator,
		Cache:       e.cache,
		Tracker:     e.failureTracker,
		RNG:         e.rng,
		RNGMu:       &e.rngMu,
	}
	return e, nil
}

func (e *EvolutionEngine) logf(format string, args ...any) {
	if e.Telemetry != nil {
		e.Telemetry.Logf(format, args...)
	}
}

// evaluateOne runs the per-genome retry contract of §4.12: up to two
// retries (three total attempts), exponential backoff 2^attempt*1000ms
// between attempts, cancellation observed mid-attempt short-circuits the
// retry path entirely.
func (e *EvolutionEngine) evaluateOne(ctx context.Context, g *Genome, evoCtx EvolutionContext) {
	g.EvoContext = evoCtx
	e.failureTracker.RecordAttempt(FailureEvaluation)
	for attempt := 0; attempt < 3; attempt++ {
		if err := ctxDone(ctx); err != nil {
			e.failureTracker.RecordFailure(FailureEvaluation)
			return
		}
		result, err := e.Evaluator.Evaluate(ctx, g.Value, g.Input, evoCtx)
		if err == nil && result.Success && result.Fitness != nil {
			g.SetFitnessAndFeedback(*result.Fitness, result.Feedback, result.UsdCost)
			return
		}
		g.ClearEvaluationState()
		if attempt < 2 {
			select {
			case <-ctx.Done():
				e.failureTracker.RecordFailure(FailureEvaluation)
				return
			case <-time.After(time.Duration(1<<uint(attempt)) * time.Second):
			}
		}
	}
	e.failureTracker.RecordFailure(FailureEvaluation)
}

// evaluateGeneration evaluates every unevaluated genome concurrently under
// MaxConcurrentEvaluations, waiting for all to settle before returning
// (§4.12, §5: "nothing in the evolution loop may proceed until every
// scheduled evaluation has settled").
func (e *EvolutionEngine) evaluateGeneration(ctx context.Context, genomes []*Genome, evoCtx EvolutionContext) {
	var pending []*Genome
	for _, g := range genomes {
		if !g.IsEvaluated {
			pending = append(pending, g)
		}
	}
	ParallelMap(ctx, pending, e.Settings.MaxConcurrentEvaluations, func(ctx context.Context, g *Genome) struct{} {
		e.evaluateOne(ctx, g, evoCtx)
		return struct{}{}
	})
}

func scoresOf(genomes []*Genome) []float64 {
	var out []float64
	for _, g := range genomes {
		if g.IsEvaluated {
			out = append(out, g.Results.Fitness.Score)
		}
	}
	return out
}

func costOf(genomes []*Genome) float64 {
	sum := 0.0
	for _, g := range genomes {
		if g.IsEvaluated {
			sum += g.Results.CostOfEvaluation
		}
	}
	return sum
}

// Evolve runs the complete evolution loop of §4.12: createRun → initialize
// → evaluate → prune → stats → complete generation, then breed/evaluate/
// prune/stats/complete for each subsequent generation until a stop
// predicate or the generation budget is exhausted.
func (e *EvolutionEngine) Evolve(ctx context.Context, input EvaluationInput, analysis *ProblemAnalysis, baseWorkflow *WorkflowConfig, continueRunID string) (*EvolutionResult, error) {
	createReq := CreateRunRequest{
		GoalText:      input.Goal,
		Config:        e.Settings,
		Status:        RunRunning,
		EvolutionType: e.Settings.EvolutionMode,
	}
	if err := e.runService.CreateRun(ctx, createReq, continueRunID); err != nil {
		return nil, err
	}

	pop := NewPopulation(e.Settings.InitialPopulationMethod, input, analysis, baseWorkflow, e.factory, e.failureTracker)

	startGen := e.runService.GenerationNumber + 1
	if err := e.runService.CreateNewGeneration(ctx, startGen); err != nil {
		return nil, e.abort(ctx, err, false)
	}
	pop.Generation = startGen

	cancelled := false
	if err := pop.Initialize(ctx, e.Settings.PopulationSize, e.Settings.MaxConcurrentEvaluations, e.currentContext(pop), e.Telemetry); err != nil {
		return nil, e.abort(ctx, err, false)
	}

	if err := e.runGenerationCycle(ctx, pop); err != nil {
		if _, ok := err.(*CancelledError); ok {
			cancelled = true
		} else {
			return nil, e.abort(ctx, err, false)
		}
	}

	for gen := startGen + 1; !cancelled && gen < e.Settings.Generations && !e.stats.ShouldStop(); gen++ {
		if err := ctxDone(ctx); err != nil {
			cancelled = true
			break
		}
		if err := e.runService.CreateNewGeneration(ctx, gen); err != nil {
			return nil, e.abort(ctx, err, false)
		}
		pop.Generation = gen
		offspring := e.selection.CreateNextGeneration(ctx, pop.Genomes, e.currentContext(pop))
		pop.SetGenomes(offspring)
		pop.ResetGenomes(e.currentContext(pop))

		if err := e.runGenerationCycle(ctx, pop); err != nil {
			if _, ok := err.(*CancelledError); ok {
				cancelled = true
				break
			}
			return nil, e.abort(ctx, err, false)
		}
	}

	status := e.stats.FinalStatus(cancelled)
	best, _ := pop.GetBest()
	var bestID string
	if best != nil {
		bestID = best.Value.WorkflowVersionID
	}
	if err := e.runService.CompleteGeneration(ctx, bestID, "evolution complete", nil, lastStats(e.stats.History)); err != nil {
		e.logf("failed to record final generation stats: %v", err)
	}
	if err := e.runService.CompleteRun(ctx, status, fmt.Sprintf("completed %d generations, total cost %.4f", len(e.stats.History), e.stats.TotalCost)); err != nil {
		e.logf("failed to close run %s: %v", e.runService.RunID, err)
	}
	e.logf("run %s finished: status=%s generations=%d totalCost=%.4f", e.runService.RunID, status, len(e.stats.History), e.stats.TotalCost)

	return &EvolutionResult{
		RunID:       e.runService.RunID,
		BestGenome:  best,
		FinalStatus: status,
		TotalCost:   e.stats.TotalCost,
		History:     e.stats.History,
	}, nil
}

func lastStats(history []PopulationStats) PopulationStats {
	if len(history) == 0 {
		return PopulationStats{}
	}
	return history[len(history)-1]
}

func (e *EvolutionEngine) currentContext(pop *Population) EvolutionContext {
	return EvolutionContext{
		RunID:            e.runService.RunID,
		GenerationID:     e.runService.GenerationID,
		GenerationNumber: pop.Generation,
	}
}

// runGenerationCycle evaluates, prunes, records stats, and closes out the
// current generation — the inner cycle repeated by both the initial
// generation and every subsequent bred generation (§4.12).
func (e *EvolutionEngine) runGenerationCycle(ctx context.Context, pop *Population) error {
	evoCtx := e.currentContext(pop)
	e.evaluateGeneration(ctx, pop.Genomes, evoCtx)
	if err := ctxDone(ctx); err != nil {
		return err
	}
	if err := pop.RemoveUnevaluated(ctx, evoCtx); err != nil {
		return err
	}
	if err := pop.PruneSimilar(e.Settings.PruneSimilarityThreshold); err != nil {
		return err
	}
	scores := scoresOf(pop.Genomes)
	gen := pop.Generation
	evalCost := costOf(pop.Genomes)
	e.stats.RecordGeneration(gen, scores, evalCost, len(scores))

	best, err := pop.GetBest()
	var bestID string
	if err == nil {
		bestID = best.Value.WorkflowVersionID
	}
	return e.runService.CompleteGeneration(ctx, bestID, "generation complete", nil, lastStats(e.stats.History))
}

// abort marks the run failed (or interrupted, if cancel is true) and
// surfaces err to the caller (§7 propagation policy).
func (e *EvolutionEngine) abort(ctx context.Context, err error, cancel bool) error {
	status := RunFailed
	if cancel {
		status = RunInterrupted
	}
	if e.runService.RunID != "" {
		_ = e.runService.CompleteRun(ctx, status, err.Error())
	}
	e.logf("run %s aborted: %v", e.runService.RunID, err)
	return err
}
