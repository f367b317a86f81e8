package intelligence

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

func TestFromConfigAssignsFreshVersionID(t *testing.T) {
	cfg := linearConfig(2)
	g1 := FromConfig(cfg, nil, OpInit, EvaluationInput{}, EvolutionContext{})
	g2 := FromConfig(cfg, nil, OpInit, EvaluationInput{}, EvolutionContext{})
	if g1.Value.WorkflowVersionID == g2.Value.WorkflowVersionID {
		t.Fatal("expected FromConfig to mint a distinct workflow version id each call")
	}
	if g1.IsEvaluated {
		t.Fatal("a freshly created genome should not be marked evaluated")
	}
}

func TestGenomeSetFitnessAndFeedback(t *testing.T) {
	g := FromConfig(linearConfig(1), nil, OpInit, EvaluationInput{}, EvolutionContext{})
	g.SetFitnessAndFeedback(FitnessOfWorkflow{Score: 0.8}, "good", 0.05)
	if !g.IsEvaluated {
		t.Fatal("expected IsEvaluated to be true after SetFitnessAndFeedback")
	}
	if g.Results.Fitness.Score != 0.8 {
		t.Errorf("fitness score = %v, want 0.8", g.Results.Fitness.Score)
	}
	if g.CumulativeCostUsd != 0.05 {
		t.Errorf("cumulative cost = %v, want 0.05", g.CumulativeCostUsd)
	}
	g.SetFitnessAndFeedback(FitnessOfWorkflow{Score: 0.9}, "better", 0.02)
	if g.CumulativeCostUsd != 0.07 {
		t.Errorf("cumulative cost should accumulate across evaluations, got %v, want 0.07", g.CumulativeCostUsd)
	}
}

func TestGenomeClearEvaluationStateIdempotent(t *testing.T) {
	g := FromConfig(linearConfig(1), nil, OpInit, EvaluationInput{}, EvolutionContext{})
	g.SetFitnessAndFeedback(FitnessOfWorkflow{Score: 0.5}, "fb", 0.01)
	g.ClearEvaluationState()
	if g.IsEvaluated {
		t.Fatal("expected IsEvaluated false after ClearEvaluationState")
	}
	firstResults := g.Results
	g.ClearEvaluationState()
	if g.Results.WorkflowVersionID != firstResults.WorkflowVersionID || g.Results.HasBeenEvaluated != firstResults.HasBeenEvaluated {
		t.Fatalf("ClearEvaluationState is not idempotent: %+v != %+v", g.Results, firstResults)
	}
	if g.CumulativeCostUsd != 0.01 {
		t.Errorf("ClearEvaluationState must not touch cumulative cost, got %v", g.CumulativeCostUsd)
	}
}

func TestGenomeResetAdvancesContext(t *testing.T) {
	g := FromConfig(linearConfig(1), nil, OpInit, EvaluationInput{}, EvolutionContext{GenerationNumber: 0})
	g.SetFitnessAndFeedback(FitnessOfWorkflow{Score: 0.5}, "fb", 0.01)
	next := EvolutionContext{RunID: "run-1", GenerationID: "gen-2", GenerationNumber: 1}
	g.Reset(next)
	if g.IsEvaluated {
		t.Fatal("Reset should clear evaluation state")
	}
	if g.EvoContext != next {
		t.Fatalf("EvoContext = %+v, want %+v", g.EvoContext, next)
	}
}

func TestWorkflowConfigJSONRoundTrip(t *testing.T) {
	cfg := linearConfig(3)
	cfg.Nodes[0].Memory = map[string]string{"k": "v"}
	cfg.Memory = map[string]string{"deleted_x": "{}"}

	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out WorkflowConfig
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.EntryNodeID != cfg.EntryNodeID {
		t.Errorf("entry node id = %q, want %q", out.EntryNodeID, cfg.EntryNodeID)
	}
	if len(out.Nodes) != len(cfg.Nodes) {
		t.Fatalf("node count = %d, want %d", len(out.Nodes), len(cfg.Nodes))
	}
	if out.Nodes[0].Memory["k"] != "v" {
		t.Errorf("node memory lost across round trip: %+v", out.Nodes[0])
	}
	if out.Memory["deleted_x"] != "{}" {
		t.Errorf("workflow memory lost across round trip: %+v", out.Memory)
	}
}

func TestGenomeFactoryCreateRandomBaseWorkflowAppliesMutation(t *testing.T) {
	base := linearConfig(3)
	val := &fakeValidator{}
	gw := &fakeGateway{textResp: "a rewritten prompt"}
	cat := newFakeCatalog([]string{"model-a", "model-b"})
	tracker := NewFailureTracker()
	deps := newOperatorDeps(1, gw, val, cat, tracker)
	coord := NewMutationCoordinator(ModeGP, deps, val, tracker, "")
	factory := &GenomeFactory{Gateway: gw, Validator: val, Coordinator: coord, RNG: deps.RNG, RNGMu: deps.RNGMu}

	g, _, err := factory.CreateRandom(context.Background(), PopulationBaseWorkflow, &base, nil, EvaluationInput{Goal: "demo"}, EvolutionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g == nil {
		t.Fatal("expected a genome")
	}
	if g.Value.Operation != OpInit {
		t.Errorf("operation = %q, want init", g.Value.Operation)
	}
}

func TestGenomeFactoryCreateRandomSynthesizesWhenNoBase(t *testing.T) {
	out := linearConfig(2)
	val := &fakeValidator{formalizeOut: out}
	gw := &fakeGateway{}
	factory := &GenomeFactory{Gateway: gw, Validator: val, RNG: newSeededRNG(1), RNGMu: &sync.Mutex{}}
	g, _, err := factory.CreateRandom(context.Background(), PopulationRandom, nil, nil, EvaluationInput{Goal: "demo"}, EvolutionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(g.Value.Config.Nodes) != 2 {
		t.Fatalf("expected synthesized config to carry through, got %d nodes", len(g.Value.Config.Nodes))
	}
	if val.formalizeCalls != 1 {
		t.Errorf("expected FormalizeWorkflow to be called once, got %d", val.formalizeCalls)
	}
}

func TestGenomeFactoryCreatePreparedRequiresAnalysis(t *testing.T) {
	factory := &GenomeFactory{RNG: newSeededRNG(1), RNGMu: &sync.Mutex{}}
	_, _, err := factory.CreatePrepared(context.Background(), nil, EvaluationInput{}, EvolutionContext{})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError for nil analysis, got %v", err)
	}
}
