// Package k8sstore adapts the intelligence.Persistence capability to
// Kubernetes custom resources, generalizing the status-subresource-update
// pattern AntibodyController used for Antibody CRs to three new kinds:
// EvolutionRun, EvolutionGeneration, and WorkflowVersion.
package k8sstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/aswarm-evolve/workflow-gp/intelligence"
)

const (
	labelRun           = "workflow-gp.aswarm-evolve.io/run"
	labelGenerationNum = "workflow-gp.aswarm-evolve.io/generation-number"
	labelGeneration    = "workflow-gp.aswarm-evolve.io/generation"
)

// ---------- EvolutionRun ----------

type EvolutionRunSpec struct {
	GoalText      string                        `json:"goalText"`
	Config        intelligence.EvolutionSettings `json:"config"`
	EvolutionType intelligence.EvolutionMode     `json:"evolutionType"`
}

type EvolutionRunStatus struct {
	Phase intelligence.RunStatus `json:"phase,omitempty"`
	Notes string                 `json:"notes,omitempty"`
}

// EvolutionRun is the CR tracking a single evolve() invocation.
type EvolutionRun struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`
	Spec              EvolutionRunSpec   `json:"spec"`
	Status            EvolutionRunStatus `json:"status,omitempty"`
}

// DeepCopyObject implements runtime.Object via a JSON round trip; these CR
// shapes carry no cyclic or unexported state, so this is equivalent to a
// generated deepcopy and avoids hand-written field-by-field copiers.
func (r *EvolutionRun) DeepCopyObject() runtime.Object {
	out := &EvolutionRun{}
	raw, _ := json.Marshal(r)
	_ = json.Unmarshal(raw, out)
	return out
}

// EvolutionRunList satisfies client.ObjectList for List calls.
type EvolutionRunList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []EvolutionRun `json:"items"`
}

func (l *EvolutionRunList) DeepCopyObject() runtime.Object {
	out := &EvolutionRunList{}
	raw, _ := json.Marshal(l)
	_ = json.Unmarshal(raw, out)
	return out
}

// ---------- EvolutionGeneration ----------

type EvolutionGenerationSpec struct {
	RunName string `json:"runName"`
	Number  int    `json:"number"`
}

type EvolutionGenerationStatus struct {
	Completed             bool                         `json:"completed"`
	BestWorkflowVersionID string                       `json:"bestWorkflowVersionId,omitempty"`
	Comment               string                       `json:"comment,omitempty"`
	Stats                 intelligence.PopulationStats `json:"stats,omitempty"`
}

type EvolutionGeneration struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`
	Spec              EvolutionGenerationSpec   `json:"spec"`
	Status            EvolutionGenerationStatus `json:"status,omitempty"`
}

func (g *EvolutionGeneration) DeepCopyObject() runtime.Object {
	out := &EvolutionGeneration{}
	raw, _ := json.Marshal(g)
	_ = json.Unmarshal(raw, out)
	return out
}

type EvolutionGenerationList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []EvolutionGeneration `json:"items"`
}

func (l *EvolutionGenerationList) DeepCopyObject() runtime.Object {
	out := &EvolutionGenerationList{}
	raw, _ := json.Marshal(l)
	_ = json.Unmarshal(raw, out)
	return out
}

// ---------- WorkflowVersion ----------

type WorkflowVersionSpec struct {
	WorkflowID     string                       `json:"workflowId"`
	CommitMessage  string                       `json:"commitMessage"`
	DSL            intelligence.WorkflowConfig  `json:"dsl"`
	GenerationName string                       `json:"generationName"`
	Operation      intelligence.OperatorType    `json:"operation"`
}

type WorkflowVersion struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`
	Spec              WorkflowVersionSpec `json:"spec"`
}

func (w *WorkflowVersion) DeepCopyObject() runtime.Object {
	out := &WorkflowVersion{}
	raw, _ := json.Marshal(w)
	_ = json.Unmarshal(raw, out)
	return out
}

// GroupVersionKind values registered by AddToScheme.
var (
	GVRun             = schema.GroupVersionKind{Group: "workflow-gp.aswarm-evolve.io", Version: "v1alpha1", Kind: "EvolutionRun"}
	GVGeneration      = schema.GroupVersionKind{Group: "workflow-gp.aswarm-evolve.io", Version: "v1alpha1", Kind: "EvolutionGeneration"}
	GVWorkflowVersion = schema.GroupVersionKind{Group: "workflow-gp.aswarm-evolve.io", Version: "v1alpha1", Kind: "WorkflowVersion"}
)

// AddToScheme registers the three kinds with scheme so a controller-runtime
// client built over it can Get/List/Create/Update them.
func AddToScheme(scheme *runtime.Scheme) {
	gv := schema.GroupVersion{Group: "workflow-gp.aswarm-evolve.io", Version: "v1alpha1"}
	scheme.AddKnownTypes(gv, &EvolutionRun{}, &EvolutionRunList{}, &EvolutionGeneration{}, &EvolutionGenerationList{}, &WorkflowVersion{})
	metav1.AddToGroupVersion(scheme, gv)
}

// Store implements intelligence.Persistence against a controller-runtime
// client, the same Get/mutate/Status().Update flow AntibodyController uses.
type Store struct {
	Client    client.Client
	Namespace string
}

// New builds a Store scoped to namespace.
func New(c client.Client, namespace string) *Store {
	return &Store{Client: c, Namespace: namespace}
}

var _ intelligence.Persistence = (*Store)(nil)

func (s *Store) key(name string) types.NamespacedName {
	return types.NamespacedName{Name: name, Namespace: s.Namespace}
}

// classify wraps err as intelligence.PersistenceTransient when it looks like
// a retryable apiserver condition (conflict, server timeout, throttling,
// internal error); AlreadyExists and NotFound are left unwrapped so
// withRetry's errors.As check treats them as terminal (§4.10, §7).
func classify(err error) error {
	if err == nil {
		return nil
	}
	if apierrors.IsConflict(err) || apierrors.IsServerTimeout(err) || apierrors.IsTimeout(err) ||
		apierrors.IsTooManyRequests(err) || apierrors.IsInternalError(err) || apierrors.IsServiceUnavailable(err) {
		return &intelligence.PersistenceTransient{Err: err}
	}
	return err
}

// CreateRun implements intelligence.Persistence.
func (s *Store) CreateRun(ctx context.Context, req intelligence.CreateRunRequest) (string, error) {
	id := uuid.NewString()
	run := &EvolutionRun{
		ObjectMeta: metav1.ObjectMeta{Name: id, Namespace: s.Namespace, Labels: map[string]string{labelRun: id}},
		Spec: EvolutionRunSpec{
			GoalText:      req.GoalText,
			Config:        req.Config,
			EvolutionType: req.EvolutionType,
		},
		Status: EvolutionRunStatus{Phase: req.Status, Notes: req.Notes},
	}
	if err := s.Client.Create(ctx, run); err != nil {
		return "", fmt.Errorf("k8sstore: create run: %w", classify(err))
	}
	return id, nil
}

// CreateGeneration implements intelligence.Persistence.
func (s *Store) CreateGeneration(ctx context.Context, runID string, number int) (string, error) {
	id := uuid.NewString()
	gen := &EvolutionGeneration{
		ObjectMeta: metav1.ObjectMeta{
			Name:      id,
			Namespace: s.Namespace,
			Labels: map[string]string{
				labelRun:           runID,
				labelGenerationNum: fmt.Sprintf("%d", number),
			},
		},
		Spec: EvolutionGenerationSpec{RunName: runID, Number: number},
	}
	if err := s.Client.Create(ctx, gen); err != nil {
		return "", fmt.Errorf("k8sstore: create generation: %w", classify(err))
	}
	return id, nil
}

// GenerationExists implements intelligence.Persistence.
func (s *Store) GenerationExists(ctx context.Context, runID string, number int) (bool, error) {
	_, ok, err := s.GetGenerationIDByNumber(ctx, runID, number)
	return ok, err
}

// GetGenerationIDByNumber implements intelligence.Persistence.
func (s *Store) GetGenerationIDByNumber(ctx context.Context, runID string, number int) (string, bool, error) {
	var list EvolutionGenerationList
	sel := client.MatchingLabels{labelRun: runID, labelGenerationNum: fmt.Sprintf("%d", number)}
	if err := s.Client.List(ctx, &list, client.InNamespace(s.Namespace), sel); err != nil {
		return "", false, fmt.Errorf("k8sstore: list generations: %w", classify(err))
	}
	if len(list.Items) == 0 {
		return "", false, nil
	}
	return list.Items[0].Name, true, nil
}

// GetLastCompletedGeneration implements intelligence.Persistence.
func (s *Store) GetLastCompletedGeneration(ctx context.Context, runID string) (*intelligence.CompletedGeneration, error) {
	var list EvolutionGenerationList
	if err := s.Client.List(ctx, &list, client.InNamespace(s.Namespace), client.MatchingLabels{labelRun: runID}); err != nil {
		return nil, fmt.Errorf("k8sstore: list generations: %w", classify(err))
	}
	var best *EvolutionGeneration
	for i := range list.Items {
		g := &list.Items[i]
		if g.Status.Completed && (best == nil || g.Spec.Number > best.Spec.Number) {
			best = g
		}
	}
	if best == nil {
		return nil, nil
	}
	return &intelligence.CompletedGeneration{RunID: runID, GenerationNumber: best.Spec.Number, GenerationID: best.Name}, nil
}

// CompleteGeneration implements intelligence.Persistence.
func (s *Store) CompleteGeneration(ctx context.Context, req intelligence.CompleteGenerationRequest, stats intelligence.PopulationStats) error {
	gen := &EvolutionGeneration{}
	if err := s.Client.Get(ctx, s.key(req.GenerationID), gen); err != nil {
		return fmt.Errorf("k8sstore: fetch generation %s: %w", req.GenerationID, classify(err))
	}
	gen.Status.Completed = true
	gen.Status.BestWorkflowVersionID = req.BestWorkflowVersionID
	gen.Status.Comment = req.Comment
	gen.Status.Stats = stats
	if err := s.Client.Status().Update(ctx, gen); err != nil {
		return fmt.Errorf("k8sstore: status update generation %s: %w", req.GenerationID, classify(err))
	}
	return nil
}

// CompleteRun implements intelligence.Persistence.
func (s *Store) CompleteRun(ctx context.Context, runID string, status intelligence.RunStatus, notes string) error {
	run := &EvolutionRun{}
	if err := s.Client.Get(ctx, s.key(runID), run); err != nil {
		return fmt.Errorf("k8sstore: fetch run %s: %w", runID, classify(err))
	}
	run.Status.Phase = status
	run.Status.Notes = notes
	if err := s.Client.Status().Update(ctx, run); err != nil {
		return fmt.Errorf("k8sstore: status update run %s: %w", runID, classify(err))
	}
	return nil
}

// CreateWorkflowVersion implements intelligence.Persistence.
func (s *Store) CreateWorkflowVersion(ctx context.Context, req intelligence.CreateWorkflowVersionRequest) error {
	wv := &WorkflowVersion{
		ObjectMeta: metav1.ObjectMeta{
			Name:      req.WorkflowVersionID,
			Namespace: s.Namespace,
			Labels:    map[string]string{labelGeneration: req.GenerationID},
		},
		Spec: WorkflowVersionSpec{
			WorkflowID:     req.WorkflowID,
			CommitMessage:  req.CommitMessage,
			DSL:            req.DSL,
			GenerationName: req.GenerationID,
			Operation:      req.Operation,
		},
	}
	if err := s.Client.Create(ctx, wv); err != nil {
		return fmt.Errorf("k8sstore: create workflow version %s: %w", req.WorkflowVersionID, classify(err))
	}
	return nil
}
