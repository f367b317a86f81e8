package intelligence

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
)

func newSeededRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// fakeGateway is a scripted Gateway double for unit tests: it never calls
// out anywhere and its responses are driven entirely by the struct fields
// the test sets.
type fakeGateway struct {
	mu        sync.Mutex
	calls     int
	textResp  string
	toolResp  map[string]any
	formalize WorkflowConfig
	failAll   bool
}

func (g *fakeGateway) SendAI(ctx context.Context, req GatewayRequest) (GatewayResponse, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.failAll {
		return GatewayResponse{Success: false, Error: "fake gateway failure"}, nil
	}
	if req.Mode != "structured" {
		text := g.textResp
		if text == "" {
			text = "rewritten prompt"
		}
		return GatewayResponse{Success: true, Text: text, UsdCost: 0.001}, nil
	}
	if props, ok := req.Schema["properties"].(map[string]any); ok {
		if _, ok := props["entry_node_id"]; ok {
			data, err := configToData(g.formalize)
			if err != nil {
				return GatewayResponse{Success: false, Error: err.Error()}, nil
			}
			return GatewayResponse{Success: true, Data: data, UsdCost: 0.002}, nil
		}
	}
	if g.toolResp != nil {
		return GatewayResponse{Success: true, Data: g.toolResp, UsdCost: 0.0005}, nil
	}
	return GatewayResponse{Success: false, Error: "fake gateway: no structured response configured"}, nil
}

func configToData(cfg WorkflowConfig) (map[string]any, error) {
	nodes := make([]any, len(cfg.Nodes))
	for i, n := range cfg.Nodes {
		nodes[i] = map[string]any{
			"id":            n.ID,
			"description":   n.Description,
			"system_prompt": n.SystemPrompt,
			"model":         n.Model,
			"mcp_tools":     n.MCPTools,
			"code_tools":    n.CodeTools,
			"hand_offs":     n.HandOffs,
			"memory":        n.Memory,
		}
	}
	return map[string]any{"entry_node_id": cfg.EntryNodeID, "nodes": nodes, "memory": cfg.Memory}, nil
}

// fakeValidator always accepts whatever it is given, optionally recording
// calls. Good enough for tests that exercise breeding/operator plumbing
// rather than the validator's own repair logic (see internal/validator for
// that).
type fakeValidator struct {
	mu             sync.Mutex
	verifyCalls    int
	repairCalls    int
	formalizeCalls int
	invalid        bool
	formalizeOut   WorkflowConfig
	formalizeErr   error
}

func (v *fakeValidator) VerifyWorkflow(ctx context.Context, cfg WorkflowConfig, opts VerifyOptions) (VerifyResult, error) {
	v.mu.Lock()
	v.verifyCalls++
	v.mu.Unlock()
	if v.invalid {
		return VerifyResult{IsValid: false, Errors: []string{"fake: always invalid"}}, nil
	}
	return VerifyResult{IsValid: true}, nil
}

func (v *fakeValidator) ValidateAndRepair(ctx context.Context, cfg WorkflowConfig, opts RepairOptions) (WorkflowConfig, error) {
	v.mu.Lock()
	v.repairCalls++
	v.mu.Unlock()
	if v.invalid {
		return cfg, fmt.Errorf("fake: cannot repair")
	}
	return cfg, nil
}

func (v *fakeValidator) FormalizeWorkflow(ctx context.Context, instruction string, analysis *ProblemAnalysis, opts FormalizeOptions) (WorkflowConfig, error) {
	v.mu.Lock()
	v.formalizeCalls++
	v.mu.Unlock()
	if v.formalizeErr != nil {
		return WorkflowConfig{}, v.formalizeErr
	}
	return v.formalizeOut, nil
}

// fakeCatalog is a fixed model/tool registry.
type fakeCatalog struct {
	models []string
	tools  map[string]bool
}

func newFakeCatalog(models []string, tools ...string) *fakeCatalog {
	set := make(map[string]bool, len(tools))
	for _, t := range tools {
		set[t] = true
	}
	return &fakeCatalog{models: models, tools: set}
}

func (c *fakeCatalog) GetActiveModelNames(ctx context.Context) ([]string, error) {
	return c.models, nil
}

func (c *fakeCatalog) IsToolKnown(ctx context.Context, name string) (bool, error) {
	return c.tools[name], nil
}

// fakeEvaluator returns scripted results off a queue, one per call; once the
// queue is drained it repeats the last entry.
type fakeEvaluator struct {
	mu      sync.Mutex
	queue   []EvaluatorResult
	queueErr []error
	calls   int
}

func (e *fakeEvaluator) Evaluate(ctx context.Context, genome WorkflowGenome, input EvaluationInput, evoCtx EvolutionContext) (EvaluatorResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.calls
	if idx >= len(e.queue) {
		idx = len(e.queue) - 1
	}
	e.calls++
	var err error
	if idx < len(e.queueErr) {
		err = e.queueErr[idx]
	}
	return e.queue[idx], err
}

// fakeTelemetry records every Logf call for assertions.
type fakeTelemetry struct {
	mu   sync.Mutex
	logs []string
}

func (t *fakeTelemetry) Logf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logs = append(t.logs, fmt.Sprintf(format, args...))
}

func linearConfig(nodeCount int) WorkflowConfig {
	cfg := WorkflowConfig{}
	for i := 0; i < nodeCount; i++ {
		id := fmt.Sprintf("node-%d", i)
		var handOffs []string
		if i < nodeCount-1 {
			handOffs = []string{fmt.Sprintf("node-%d", i+1)}
		}
		cfg.Nodes = append(cfg.Nodes, Node{
			ID:           id,
			Description:  fmt.Sprintf("stage %d", i),
			SystemPrompt: fmt.Sprintf("you are stage %d", i),
			Model:        "model-a",
			HandOffs:     handOffs,
		})
	}
	if nodeCount > 0 {
		cfg.EntryNodeID = "node-0"
	}
	return cfg
}

// fakePersistence is a scripted Persistence double. failFirstN causes the
// first N calls to any method, read-only ones included, to return a PersistenceTransient
// error, modeling a transient backend hiccup that withRetry should absorb.
type fakePersistence struct {
	mu               sync.Mutex
	calls            int
	failFirstN       int
	terminalErr      error
	lastCompleted    *CompletedGeneration
	createRunCalls   int
	completedRuns    []RunStatus
	createdVersions  []CreateWorkflowVersionRequest
}

func (p *fakePersistence) maybeFail() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.terminalErr != nil {
		return p.terminalErr
	}
	if p.calls <= p.failFirstN {
		return &PersistenceTransient{Err: fmt.Errorf("fake: transient backend hiccup")}
	}
	return nil
}

func (p *fakePersistence) CreateRun(ctx context.Context, req CreateRunRequest) (string, error) {
	if err := p.maybeFail(); err != nil {
		return "", err
	}
	p.mu.Lock()
	p.createRunCalls++
	p.mu.Unlock()
	return "run-fake-1", nil
}

func (p *fakePersistence) CreateGeneration(ctx context.Context, runID string, number int) (string, error) {
	if err := p.maybeFail(); err != nil {
		return "", err
	}
	return fmt.Sprintf("gen-fake-%d", number), nil
}

func (p *fakePersistence) GenerationExists(ctx context.Context, runID string, number int) (bool, error) {
	if err := p.maybeFail(); err != nil {
		return false, err
	}
	return false, nil
}

func (p *fakePersistence) GetGenerationIDByNumber(ctx context.Context, runID string, number int) (string, bool, error) {
	if err := p.maybeFail(); err != nil {
		return "", false, err
	}
	return "", false, nil
}

func (p *fakePersistence) GetLastCompletedGeneration(ctx context.Context, runID string) (*CompletedGeneration, error) {
	if err := p.maybeFail(); err != nil {
		return nil, err
	}
	return p.lastCompleted, nil
}

func (p *fakePersistence) CompleteGeneration(ctx context.Context, req CompleteGenerationRequest, stats PopulationStats) error {
	return p.maybeFail()
}

func (p *fakePersistence) CompleteRun(ctx context.Context, runID string, status RunStatus, notes string) error {
	if err := p.maybeFail(); err != nil {
		return err
	}
	p.mu.Lock()
	p.completedRuns = append(p.completedRuns, status)
	p.mu.Unlock()
	return nil
}

func (p *fakePersistence) CreateWorkflowVersion(ctx context.Context, req CreateWorkflowVersionRequest) error {
	if err := p.maybeFail(); err != nil {
		return err
	}
	p.mu.Lock()
	p.createdVersions = append(p.createdVersions, req)
	p.mu.Unlock()
	return nil
}

func newOperatorDeps(seed int64, gw Gateway, val Validator, cat Catalog, tracker *FailureTracker) *OperatorDeps {
	return &OperatorDeps{
		Gateway:        gw,
		Validator:      val,
		Catalog:        cat,
		FailureTracker: tracker,
		RNG:            newSeededRNG(seed),
		RNGMu:          &sync.Mutex{},
	}
}
