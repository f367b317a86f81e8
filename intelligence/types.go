// Package intelligence implements the workflow genetic-programming evolution engine:
// population lifecycle, breeding operators, verification, and run bookkeeping.
package intelligence

import (
	"context"
	"time"
)

// ---------- Workflow data model (§3) ----------
//
// WorkflowConfig is opaque to the core engine beyond the invariants it
// enforces: unique node ids, hand-offs that resolve to existing nodes,
// exactly one entry node, and memory values treated as opaque strings.

// Node is a single agent in a workflow graph.
type Node struct {
	ID           string            `json:"id"`
	Description  string            `json:"description"`
	SystemPrompt string            `json:"system_prompt"`
	Model        string            `json:"model"`
	MCPTools     []string          `json:"mcp_tools,omitempty"`
	CodeTools    []string          `json:"code_tools,omitempty"`
	HandOffs     []string          `json:"hand_offs,omitempty"`
	Memory       map[string]string `json:"memory,omitempty"`
}

// WorkflowConfig is the entry node id plus an ordered sequence of nodes.
type WorkflowConfig struct {
	EntryNodeID string            `json:"entry_node_id"`
	Nodes       []Node            `json:"nodes"`
	Memory      map[string]string `json:"memory,omitempty"`
}

// NodeByID returns the node with the given id, or false if absent.
func (w WorkflowConfig) NodeByID(id string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// NodeIndex returns the index of the node with the given id, or -1.
func (w WorkflowConfig) NodeIndex(id string) int {
	for i, n := range w.Nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// OperatorType tags how a genome came to exist, and which breeding operator
// produced it. Shared between genome lineage and OperatorFailure.
type OperatorType string

const (
	OpInit      OperatorType = "init"
	OpCrossover OperatorType = "crossover"
	OpMutation  OperatorType = "mutation"
	OpImmigrant OperatorType = "immigrant"
)

// Mutation-kind tags used by the weighted operator table (§4.5) and by
// OperatorFailure to name which strategy failed. Distinct from the lineage
// tags above: a genome's Operation is always one of the four lineage tags,
// but a breeding-slot failure names the specific strategy that produced it.
const (
	OpModel      OperatorType = "model"
	OpPrompt     OperatorType = "prompt"
	OpTool       OperatorType = "tool"
	OpCultural   OperatorType = "cultural"
	OpStructure  OperatorType = "structure"
	OpAddNode    OperatorType = "addNode"
	OpDeleteNode OperatorType = "deleteNode"
)

// WorkflowGenome is a WorkflowConfig plus lineage bookkeeping.
type WorkflowGenome struct {
	Config                   WorkflowConfig `json:"config"`
	ParentWorkflowVersionIDs []string       `json:"parent_workflow_version_ids,omitempty"`
	WorkflowVersionID        string         `json:"workflow_version_id"`
	Operation                OperatorType   `json:"operation"`
}

// FitnessOfWorkflow is the score an evaluator hands back for a candidate workflow.
type FitnessOfWorkflow struct {
	Score            float64 `json:"score"`
	TotalCostUsd     float64 `json:"total_cost_usd"`
	TotalTimeSeconds float64 `json:"total_time_seconds"`
	Accuracy         float64 `json:"accuracy"`
}

// GenomeEvaluationResults is the current evaluation state of a genome.
type GenomeEvaluationResults struct {
	WorkflowVersionID string            `json:"workflow_version_id"`
	HasBeenEvaluated  bool              `json:"has_been_evaluated"`
	EvaluatedAt       time.Time         `json:"evaluated_at"`
	Fitness           FitnessOfWorkflow `json:"fitness"`
	CostOfEvaluation  float64           `json:"cost_of_evaluation"`
	Errors            []string          `json:"errors,omitempty"`
	Feedback          *string           `json:"feedback,omitempty"`
}

// EvolutionContext is the triple every genome carries: (runId, generationId, generationNumber).
type EvolutionContext struct {
	RunID            string `json:"run_id"`
	GenerationID     string `json:"generation_id"`
	GenerationNumber int    `json:"generation_number"`
}

// EvaluationInput bundles the objective a genome is evaluated against.
type EvaluationInput struct {
	Goal       string `json:"goal"`
	DatasetRef string `json:"dataset_ref"`
	WorkflowID string `json:"workflow_id"`
}

// ProblemAnalysis is the optional, deeper-for-"prepared" context fed to
// idea-to-workflow synthesis.
type ProblemAnalysis struct {
	Summary    string            `json:"summary"`
	Complexity float64           `json:"complexity"`
	Notes      map[string]string `json:"notes,omitempty"`
}

// RunStatus is the lifecycle state of a Run.
type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunInterrupted RunStatus = "interrupted"
	RunFailed      RunStatus = "failed"
)

// InitialPopulationMethod selects how Population.Initialize seeds its first generation.
type InitialPopulationMethod string

const (
	PopulationRandom       InitialPopulationMethod = "random"
	PopulationBaseWorkflow InitialPopulationMethod = "baseWorkflow"
	PopulationPrepared     InitialPopulationMethod = "prepared"
)

// EvolutionMode gates which operators the MutationCoordinator may select.
type EvolutionMode string

const (
	ModeGP        EvolutionMode = "GP"
	ModeIterative EvolutionMode = "iterative"
)

// ---------- External capabilities (§6) ----------
//
// These interfaces are the only way the core engine talks to the outside
// world. The engine never reaches past them; concrete adapters live under
// internal/.

// GatewayMessage is a single chat turn sent to the LLM gateway.
type GatewayMessage struct {
	Role    string
	Content string
}

// GatewayRequest mirrors the sendAI contract of §6.
type GatewayRequest struct {
	Model    string
	Messages []GatewayMessage
	Mode     string // "text" or "structured"
	Schema   map[string]any
}

// GatewayResponse is the result-or-error sum type every gateway call returns.
type GatewayResponse struct {
	Success bool
	Data    map[string]any // populated when Mode == "structured"
	Text    string         // populated when Mode == "text"
	UsdCost float64
	Error   string
}

// Gateway is the LLM capability consumed by operators and genome synthesis.
type Gateway interface {
	SendAI(ctx context.Context, req GatewayRequest) (GatewayResponse, error)
}

// VerifyOptions controls Validator.VerifyWorkflow.
type VerifyOptions struct {
	ThrowOnError bool
	Verbose      bool
}

// VerifyResult is the verifier's verdict.
type VerifyResult struct {
	IsValid bool
	Errors  []string
}

// RepairOptions controls Validator.ValidateAndRepair.
type RepairOptions struct {
	MaxRetries int
	OnFail     func(attempt int, errs []string)
}

// FormalizeOptions controls Validator.FormalizeWorkflow.
type FormalizeOptions struct {
	VerifyWorkflow                bool
	RepairWorkflowAfterGeneration bool
}

// Validator is the workflow validator/repair capability.
type Validator interface {
	VerifyWorkflow(ctx context.Context, cfg WorkflowConfig, opts VerifyOptions) (VerifyResult, error)
	ValidateAndRepair(ctx context.Context, cfg WorkflowConfig, opts RepairOptions) (WorkflowConfig, error)
	FormalizeWorkflow(ctx context.Context, instruction string, analysis *ProblemAnalysis, opts FormalizeOptions) (WorkflowConfig, error)
}

// Catalog is the read-only model/tool registry lookup.
type Catalog interface {
	GetActiveModelNames(ctx context.Context) ([]string, error)
	IsToolKnown(ctx context.Context, name string) (bool, error)
}

// EvaluatorResult is the result-or-error sum type the evaluator returns.
type EvaluatorResult struct {
	Success  bool
	Fitness  *FitnessOfWorkflow
	Feedback string
	UsdCost  float64
	Error    string
}

// Evaluator is the external fitness evaluator capability.
type Evaluator interface {
	Evaluate(ctx context.Context, genome WorkflowGenome, input EvaluationInput, evoCtx EvolutionContext) (EvaluatorResult, error)
}

// CreateRunRequest is the persistence-layer shape of a new run.
type CreateRunRequest struct {
	GoalText      string
	Config        EvolutionSettings
	Status        RunStatus
	EvolutionType EvolutionMode
	Notes         string
}

// CompletedGeneration is what GetLastCompletedGeneration returns for resume.
type CompletedGeneration struct {
	RunID            string
	GenerationNumber int
	GenerationID     string
}

// CompleteGenerationRequest is the persistence-layer shape of closing a generation.
type CompleteGenerationRequest struct {
	GenerationID          string
	BestWorkflowVersionID string
	Comment               string
	Feedback              *string
}

// CreateWorkflowVersionRequest upserts a workflow-version row.
type CreateWorkflowVersionRequest struct {
	WorkflowVersionID string
	WorkflowID        string
	CommitMessage     string
	DSL               WorkflowConfig
	GenerationID      string
	Operation         OperatorType
}

// Persistence is the optional persistence capability (§6, §4.10). A nil
// Persistence means RunService operates in no-persistence mode.
type Persistence interface {
	CreateRun(ctx context.Context, req CreateRunRequest) (string, error)
	CreateGeneration(ctx context.Context, runID string, number int) (string, error)
	GenerationExists(ctx context.Context, runID string, number int) (bool, error)
	GetGenerationIDByNumber(ctx context.Context, runID string, number int) (string, bool, error)
	GetLastCompletedGeneration(ctx context.Context, runID string) (*CompletedGeneration, error)
	CompleteGeneration(ctx context.Context, req CompleteGenerationRequest, stats PopulationStats) error
	CompleteRun(ctx context.Context, runID string, status RunStatus, notes string) error
	CreateWorkflowVersion(ctx context.Context, req CreateWorkflowVersionRequest) error
}

// Telemetry is the injected logging capability (Design Notes §9: no
// module-level singletons). StdTelemetry wraps the standard library
// logger.
type Telemetry interface {
	Logf(format string, args ...any)
}