package intelligence

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func newTestFactory(formalizeOut WorkflowConfig) (*GenomeFactory, *fakeValidator) {
	val := &fakeValidator{formalizeOut: formalizeOut}
	gw := &fakeGateway{}
	return &GenomeFactory{Gateway: gw, Validator: val, RNG: newSeededRNG(1), RNGMu: &sync.Mutex{}}, val
}

func TestPopulationInitializeSucceeds(t *testing.T) {
	factory, _ := newTestFactory(linearConfig(2))
	pop := NewPopulation(PopulationRandom, EvaluationInput{Goal: "demo"}, nil, nil, factory, NewFailureTracker())
	if err := pop.Initialize(context.Background(), 6, 3, EvolutionContext{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pop.Genomes) != 6 {
		t.Fatalf("expected 6 genomes, got %d", len(pop.Genomes))
	}
}

func TestPopulationInitializeLogsOnMassFailure(t *testing.T) {
	val := &fakeValidator{formalizeErr: errors.New("gateway unreachable")}
	factory := &GenomeFactory{Gateway: &fakeGateway{}, Validator: val, RNG: newSeededRNG(1), RNGMu: &sync.Mutex{}}
	pop := NewPopulation(PopulationRandom, EvaluationInput{Goal: "demo"}, nil, nil, factory, NewFailureTracker())
	telemetry := &fakeTelemetry{}
	if err := pop.Initialize(context.Background(), 4, 2, EvolutionContext{}, telemetry); err != nil {
		t.Fatalf("Initialize itself should not fail, got %v", err)
	}
	if len(pop.Genomes) != 0 {
		t.Fatalf("expected 0 genomes when every creation fails, got %d", len(pop.Genomes))
	}
	telemetry.mu.Lock()
	n := len(telemetry.logs)
	telemetry.mu.Unlock()
	if n == 0 {
		t.Fatalf("expected a telemetry log when fewer than 50%% of genomes are created")
	}
}

func evaluatedGenome(score float64) *Genome {
	g := FromConfig(linearConfig(1), nil, OpInit, EvaluationInput{}, EvolutionContext{})
	g.SetFitnessAndFeedback(FitnessOfWorkflow{Score: score}, "", 0)
	return g
}

func TestPopulationGetBestAndWorst(t *testing.T) {
	pop := &Population{Genomes: []*Genome{evaluatedGenome(0.2), evaluatedGenome(0.9), evaluatedGenome(0.5)}}
	best, err := pop.GetBest()
	if err != nil || best.Results.Fitness.Score != 0.9 {
		t.Fatalf("GetBest = %v, %v; want score 0.9", best, err)
	}
	worst, err := pop.GetWorst()
	if err != nil || worst.Results.Fitness.Score != 0.2 {
		t.Fatalf("GetWorst = %v, %v; want score 0.2", worst, err)
	}
}

func TestPopulationGetBestFailsWithNoEvaluated(t *testing.T) {
	pop := &Population{Genomes: []*Genome{FromConfig(linearConfig(1), nil, OpInit, EvaluationInput{}, EvolutionContext{})}}
	if _, err := pop.GetBest(); err == nil {
		t.Fatal("expected PopulationError when no genomes are evaluated")
	}
}

func TestPopulationGetTopOrdersDescending(t *testing.T) {
	pop := &Population{Genomes: []*Genome{evaluatedGenome(0.1), evaluatedGenome(0.9), evaluatedGenome(0.5)}}
	top := pop.GetTop(2)
	if len(top) != 2 || top[0].Results.Fitness.Score != 0.9 || top[1].Results.Fitness.Score != 0.5 {
		t.Fatalf("unexpected top-2 order: %+v", top)
	}
}

func TestPopulationRemoveUnevaluatedReplenishes(t *testing.T) {
	factory, _ := newTestFactory(linearConfig(1))
	pop := NewPopulation(PopulationRandom, EvaluationInput{}, nil, nil, factory, NewFailureTracker())
	pop.Genomes = []*Genome{evaluatedGenome(0.5), evaluatedGenome(0.6)}
	if err := pop.RemoveUnevaluated(context.Background(), EvolutionContext{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pop.Genomes) < MinViablePopulation {
		t.Fatalf("expected replenishment up to %d, got %d", MinViablePopulation, len(pop.Genomes))
	}
}

func TestPopulationRemoveUnevaluatedFailsBelowFloor(t *testing.T) {
	val := &fakeValidator{formalizeErr: errors.New("no capacity")}
	factory := &GenomeFactory{Gateway: &fakeGateway{}, Validator: val, RNG: newSeededRNG(1), RNGMu: &sync.Mutex{}}
	pop := NewPopulation(PopulationRandom, EvaluationInput{}, nil, nil, factory, NewFailureTracker())
	pop.Genomes = []*Genome{evaluatedGenome(0.5)}
	err := pop.RemoveUnevaluated(context.Background(), EvolutionContext{})
	var popErr *PopulationError
	if !errors.As(err, &popErr) {
		t.Fatalf("expected PopulationError when replenishment can't reach the floor, got %v", err)
	}
}

func TestPopulationPruneSimilarKeepsHighestFitness(t *testing.T) {
	identicalCfg := linearConfig(2)
	low := FromConfig(identicalCfg, nil, OpInit, EvaluationInput{}, EvolutionContext{})
	low.SetFitnessAndFeedback(FitnessOfWorkflow{Score: 0.3}, "", 0)
	high := FromConfig(identicalCfg, nil, OpInit, EvaluationInput{}, EvolutionContext{})
	high.SetFitnessAndFeedback(FitnessOfWorkflow{Score: 0.8}, "", 0)
	distinct := FromConfig(linearConfig(5), nil, OpInit, EvaluationInput{}, EvolutionContext{})
	distinct.SetFitnessAndFeedback(FitnessOfWorkflow{Score: 0.1}, "", 0)

	pop := &Population{Genomes: []*Genome{low, high, distinct}}
	if err := pop.PruneSimilar(0.01); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pop.Genomes) != 2 {
		t.Fatalf("expected the near-duplicate pair pruned to 1, got %d genomes", len(pop.Genomes))
	}
	for _, g := range pop.Genomes {
		if g == low {
			t.Fatal("expected the lower-fitness duplicate to be pruned")
		}
	}
}

func TestPopulationResetGenomesClearsEvaluation(t *testing.T) {
	pop := &Population{Genomes: []*Genome{evaluatedGenome(0.5)}}
	next := EvolutionContext{RunID: "r", GenerationID: "g", GenerationNumber: 2}
	pop.ResetGenomes(next)
	if pop.Genomes[0].IsEvaluated {
		t.Fatal("expected genomes to be unevaluated after reset")
	}
	if pop.Genomes[0].EvoContext != next {
		t.Fatalf("expected EvoContext advanced to %+v, got %+v", next, pop.Genomes[0].EvoContext)
	}
}
