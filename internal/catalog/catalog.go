// Package catalog provides an in-memory intelligence.Catalog implementation
// for tests and no-Redis environments.
package catalog

import (
	"context"
	"sync"

	"github.com/aswarm-evolve/workflow-gp/intelligence"
)

// Static is a fixed, in-memory model/tool registry.
type Static struct {
	mu     sync.RWMutex
	models []string
	tools  map[string]bool
}

// NewStatic builds a Static catalog from a model list and tool set.
func NewStatic(models []string, tools []string) *Static {
	toolSet := make(map[string]bool, len(tools))
	for _, t := range tools {
		toolSet[t] = true
	}
	return &Static{models: append([]string(nil), models...), tools: toolSet}
}

var _ intelligence.Catalog = (*Static)(nil)

// GetActiveModelNames implements intelligence.Catalog.
func (s *Static) GetActiveModelNames(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.models...), nil
}

// IsToolKnown implements intelligence.Catalog.
func (s *Static) IsToolKnown(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tools[name], nil
}

// SetModels replaces the active model list, e.g. from a periodic refresh.
func (s *Static) SetModels(models []string) {
	s.mu.Lock()
	s.models = append([]string(nil), models...)
	s.mu.Unlock()
}
