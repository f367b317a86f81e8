package intelligence

import (
	"errors"
	"testing"
)

func TestPreserveMutationMemoryChildWins(t *testing.T) {
	parent := WorkflowConfig{Nodes: []Node{
		{ID: "a", Memory: map[string]string{"k1": "parent-v1", "k2": "parent-v2"}},
	}}
	child := WorkflowConfig{Nodes: []Node{
		{ID: "a", Memory: map[string]string{"k1": "child-v1"}},
	}}
	out := PreserveMutationMemory(parent, child)
	if out.Nodes[0].Memory["k1"] != "child-v1" {
		t.Errorf("k1 = %q, want child value to win", out.Nodes[0].Memory["k1"])
	}
	if out.Nodes[0].Memory["k2"] != "parent-v2" {
		t.Errorf("k2 = %q, want parent value carried over", out.Nodes[0].Memory["k2"])
	}
}

func TestPreserveCrossoverMemoryOrdering(t *testing.T) {
	p1 := WorkflowConfig{Nodes: []Node{{ID: "a", Memory: map[string]string{"k": "p1"}}}}
	p2 := WorkflowConfig{Nodes: []Node{{ID: "a", Memory: map[string]string{"k": "p2"}}}}
	child := WorkflowConfig{Nodes: []Node{{ID: "a"}}}
	out := PreserveCrossoverMemory(p1, p2, child)
	if out.Nodes[0].Memory["k"] != "p1" {
		t.Errorf("k = %q, want parent1 to win over parent2: it is resolved first and existing child values win", out.Nodes[0].Memory["k"])
	}
}

func TestEnforceMemoryPreservationDetectsLoss(t *testing.T) {
	parent := WorkflowConfig{Nodes: []Node{{ID: "a", Memory: map[string]string{"secret": "v"}}}}
	child := WorkflowConfig{Nodes: []Node{{ID: "a"}}}
	err := EnforceMemoryPreservation([]WorkflowConfig{parent}, child)
	var lost *MemoryLostError
	if !errors.As(err, &lost) {
		t.Fatalf("expected MemoryLostError, got %v", err)
	}
	if lost.Key != "secret" || lost.NodeID != "a" {
		t.Errorf("unexpected error fields: %+v", lost)
	}
}

func TestEnforceMemoryPreservationAllowsArchivedDeletion(t *testing.T) {
	parent := WorkflowConfig{Nodes: []Node{{ID: "a", Memory: map[string]string{"secret": "v"}}}}
	child := WorkflowConfig{Memory: map[string]string{"deleted_a": `{"secret":"v"}`}}
	if err := EnforceMemoryPreservation([]WorkflowConfig{parent}, child); err != nil {
		t.Fatalf("expected no error when memory is archived under deleted_<id>, got %v", err)
	}
}

func TestEnforceMemoryPreservationOkWhenNoMemory(t *testing.T) {
	parent := WorkflowConfig{Nodes: []Node{{ID: "a"}}}
	child := WorkflowConfig{Nodes: []Node{{ID: "b"}}}
	if err := EnforceMemoryPreservation([]WorkflowConfig{parent}, child); err != nil {
		t.Fatalf("expected no error when parent node carried no memory, got %v", err)
	}
}

func TestArchiveDeletedNodeMemoryRoundTrips(t *testing.T) {
	node := Node{ID: "victim", Memory: map[string]string{"k": "v"}}
	cfg, err := ArchiveDeletedNodeMemory(WorkflowConfig{}, node)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snapshot, ok := cfg.Memory["deleted_victim"]
	if !ok {
		t.Fatal("expected deleted_victim key in workflow memory")
	}
	if snapshot == "" {
		t.Error("expected non-empty memory snapshot")
	}
}

func TestArchiveDeletedNodeMemoryNoopWithoutMemory(t *testing.T) {
	cfg, err := ArchiveDeletedNodeMemory(WorkflowConfig{}, Node{ID: "victim"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Memory) != 0 {
		t.Errorf("expected no memory keys added for a node with no memory, got %v", cfg.Memory)
	}
}
