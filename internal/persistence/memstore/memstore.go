// Package memstore is an in-memory intelligence.Persistence implementation
// for tests and local runs without an external store: the same capability surface as
// k8sstore, backed by plain maps instead of custom resources.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/aswarm-evolve/workflow-gp/intelligence"
)

type runRecord struct {
	req    intelligence.CreateRunRequest
	status intelligence.RunStatus
	notes  string
}

type generationRecord struct {
	id        string
	runID     string
	number    int
	completed bool
	req       intelligence.CompleteGenerationRequest
	stats     intelligence.PopulationStats
}

// Store is a mutex-guarded in-memory Persistence.
type Store struct {
	mu          sync.Mutex
	runs        map[string]*runRecord
	generations map[string]*generationRecord
	byRunNumber map[string]map[int]string // runID -> generation number -> generationID
	versions    map[string]intelligence.CreateWorkflowVersionRequest
}

// New builds an empty Store.
func New() *Store {
	return &Store{
		runs:        map[string]*runRecord{},
		generations: map[string]*generationRecord{},
		byRunNumber: map[string]map[int]string{},
		versions:    map[string]intelligence.CreateWorkflowVersionRequest{},
	}
}

var _ intelligence.Persistence = (*Store)(nil)

// CreateRun implements intelligence.Persistence.
func (s *Store) CreateRun(ctx context.Context, req intelligence.CreateRunRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.runs[id] = &runRecord{req: req, status: req.Status}
	s.byRunNumber[id] = map[int]string{}
	return id, nil
}

// CreateGeneration implements intelligence.Persistence.
func (s *Store) CreateGeneration(ctx context.Context, runID string, number int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		return "", fmt.Errorf("memstore: unknown run %s", runID)
	}
	id := uuid.NewString()
	s.generations[id] = &generationRecord{id: id, runID: runID, number: number}
	s.byRunNumber[runID][number] = id
	return id, nil
}

// GenerationExists implements intelligence.Persistence.
func (s *Store) GenerationExists(ctx context.Context, runID string, number int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byRunNumber[runID][number]
	return ok, nil
}

// GetGenerationIDByNumber implements intelligence.Persistence.
func (s *Store) GetGenerationIDByNumber(ctx context.Context, runID string, number int) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byRunNumber[runID][number]
	return id, ok, nil
}

// GetLastCompletedGeneration implements intelligence.Persistence.
func (s *Store) GetLastCompletedGeneration(ctx context.Context, runID string) (*intelligence.CompletedGeneration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *generationRecord
	for number, id := range s.byRunNumber[runID] {
		gen := s.generations[id]
		if gen != nil && gen.completed && (best == nil || number > best.number) {
			best = gen
		}
	}
	if best == nil {
		return nil, nil
	}
	return &intelligence.CompletedGeneration{RunID: runID, GenerationNumber: best.number, GenerationID: best.id}, nil
}

// CompleteGeneration implements intelligence.Persistence.
func (s *Store) CompleteGeneration(ctx context.Context, req intelligence.CompleteGenerationRequest, stats intelligence.PopulationStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen, ok := s.generations[req.GenerationID]
	if !ok {
		return fmt.Errorf("memstore: unknown generation %s", req.GenerationID)
	}
	gen.completed = true
	gen.req = req
	gen.stats = stats
	return nil
}

// CompleteRun implements intelligence.Persistence.
func (s *Store) CompleteRun(ctx context.Context, runID string, status intelligence.RunStatus, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("memstore: unknown run %s", runID)
	}
	run.status = status
	run.notes = notes
	return nil
}

// CreateWorkflowVersion implements intelligence.Persistence.
func (s *Store) CreateWorkflowVersion(ctx context.Context, req intelligence.CreateWorkflowVersionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[req.WorkflowVersionID] = req
	return nil
}
