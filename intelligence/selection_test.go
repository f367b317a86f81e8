package intelligence

import (
	"context"
	"testing"
)

func testSelection(settings EvolutionSettings) (*Selection, *fakeValidator) {
	val := &fakeValidator{formalizeOut: linearConfig(2)}
	gw := &fakeGateway{formalize: linearConfig(2)}
	cat := newFakeCatalog([]string{"model-a", "model-b"})
	tracker := NewFailureTracker()
	deps := newOperatorDeps(42, gw, val, cat, tracker)
	coord := NewMutationCoordinator(settings.EvolutionMode, deps, val, tracker, "")
	factory := &GenomeFactory{Gateway: gw, Validator: val, Coordinator: coord, RNG: deps.RNG, RNGMu: deps.RNGMu}
	sel := &Selection{
		Settings:    settings,
		Coordinator: coord,
		Factory:     factory,
		Validator:   val,
		Cache:       NewVerificationCache(),
		Tracker:     tracker,
		RNG:         deps.RNG,
		RNGMu:       deps.RNGMu,
	}
	return sel, val
}

func TestSelectElite(t *testing.T) {
	valid := []*Genome{evaluatedGenome(0.2), evaluatedGenome(0.9), evaluatedGenome(0.5)}
	elite := selectElite(valid, 2)
	if len(elite) != 2 || elite[0].Results.Fitness.Score != 0.9 || elite[1].Results.Fitness.Score != 0.5 {
		t.Fatalf("unexpected elite selection: %+v", elite)
	}
}

func TestSelectEliteClampsToPopulationSize(t *testing.T) {
	valid := []*Genome{evaluatedGenome(0.5)}
	elite := selectElite(valid, 5)
	if len(elite) != 1 {
		t.Fatalf("expected elite clamped to 1, got %d", len(elite))
	}
}

func TestValidParentsFiltersUnevaluatedAndNonPositive(t *testing.T) {
	zero := evaluatedGenome(0)
	neg := evaluatedGenome(-0.1)
	unevaluated := FromConfig(linearConfig(1), nil, OpInit, EvaluationInput{}, EvolutionContext{})
	good := evaluatedGenome(0.4)
	out := validParents([]*Genome{zero, neg, unevaluated, good})
	if len(out) != 1 || out[0] != good {
		t.Fatalf("expected only the positive evaluated genome to survive, got %d", len(out))
	}
}

func TestSelectNextParentsUsesEliteThenTournament(t *testing.T) {
	settings := DefaultEvolutionSettings()
	settings.EliteSize = 1
	settings.TournamentSize = 2
	sel, _ := testSelection(settings)
	pop := []*Genome{evaluatedGenome(0.9), evaluatedGenome(0.1), evaluatedGenome(0.5), evaluatedGenome(0.3)}
	parents := sel.SelectNextParents(pop, 3)
	if len(parents) != 3 {
		t.Fatalf("expected 3 parents, got %d", len(parents))
	}
	if parents[0].Results.Fitness.Score != 0.9 {
		t.Fatalf("expected the elite genome first, got score %v", parents[0].Results.Fitness.Score)
	}
}

func TestDistinctParentsReturnsNilWhenTooFewCandidates(t *testing.T) {
	sel, _ := testSelection(DefaultEvolutionSettings())
	valid := []*Genome{evaluatedGenome(0.5)}
	if got := sel.distinctParents(valid, 2); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestDistinctParentsAreUnique(t *testing.T) {
	sel, _ := testSelection(DefaultEvolutionSettings())
	valid := []*Genome{evaluatedGenome(0.1), evaluatedGenome(0.2), evaluatedGenome(0.3)}
	chosen := sel.distinctParents(valid, 2)
	if len(chosen) != 2 {
		t.Fatalf("expected 2 distinct parents, got %d", len(chosen))
	}
	if chosen[0].Value.WorkflowVersionID == chosen[1].Value.WorkflowVersionID {
		t.Fatal("expected distinct parent workflow version ids")
	}
}

func TestGenerateOffspringRespectsOffspringCount(t *testing.T) {
	settings := DefaultEvolutionSettings()
	settings.OffspringCount = 3
	settings.CrossoverRate = 0.5
	settings.MutationRate = 0.5
	sel, _ := testSelection(settings)
	valid := []*Genome{evaluatedGenome(0.5), evaluatedGenome(0.6), evaluatedGenome(0.7)}
	offspring := sel.GenerateOffspring(context.Background(), valid, EvolutionContext{})
	if len(offspring) > settings.OffspringCount {
		t.Fatalf("produced more offspring than requested: %d > %d", len(offspring), settings.OffspringCount)
	}
}

func TestGenerateOffspringZeroWhenNoValidParents(t *testing.T) {
	sel, _ := testSelection(DefaultEvolutionSettings())
	unevaluated := []*Genome{FromConfig(linearConfig(1), nil, OpInit, EvaluationInput{}, EvolutionContext{})}
	if out := sel.GenerateOffspring(context.Background(), unevaluated, EvolutionContext{}); out != nil {
		t.Fatalf("expected no offspring with no valid parents, got %d", len(out))
	}
}

func TestCreateNextGenerationTruncatesToPopulationSize(t *testing.T) {
	settings := DefaultEvolutionSettings()
	settings.PopulationSize = 3
	settings.OffspringCount = 4
	sel, _ := testSelection(settings)
	pop := []*Genome{evaluatedGenome(0.9), evaluatedGenome(0.1), evaluatedGenome(0.5), evaluatedGenome(0.2)}
	next := sel.CreateNextGeneration(context.Background(), pop, EvolutionContext{})
	if len(next) != settings.PopulationSize {
		t.Fatalf("expected truncation to %d, got %d", settings.PopulationSize, len(next))
	}
	if next[0].Results.Fitness.Score != 0.9 {
		t.Fatalf("expected highest-fitness survivor first, got %v", next[0].Results.Fitness.Score)
	}
}

func TestCreateNextGenerationPrefersEvaluatedOverUnevaluated(t *testing.T) {
	settings := DefaultEvolutionSettings()
	settings.PopulationSize = 2
	settings.OffspringCount = 0
	sel, _ := testSelection(settings)
	unevaluated := FromConfig(linearConfig(1), nil, OpInit, EvaluationInput{}, EvolutionContext{})
	pop := []*Genome{unevaluated, evaluatedGenome(0.1)}
	next := sel.CreateNextGeneration(context.Background(), pop, EvolutionContext{})
	if !next[0].IsEvaluated {
		t.Fatalf("expected evaluated genomes ranked ahead of unevaluated ones")
	}
}
