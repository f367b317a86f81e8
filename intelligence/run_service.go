package intelligence

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// RunService wraps the optional Persistence capability, generating opaque
// identifiers locally when persistence is nil (§4.10, §9's "behavior without
// persistence must be equivalent in the core state machine, differing only
// in identifier allocation").
type RunService struct {
	Store       Persistence
	RunID       string
	GenerationID string
	GenerationNumber int
}

func newRunID() string        { return "run-" + uuid.NewString() }
func newGenerationID() string { return "gen-" + uuid.NewString() }

// CreateRun starts a new run, optionally resuming from continueRunID's last
// completed generation.
func (rs *RunService) CreateRun(ctx context.Context, req CreateRunRequest, continueRunID string) error {
	if continueRunID != "" {
		if rs.Store == nil {
			return &RunTrackingError{Msg: "cannot resume a run without a persistence capability"}
		}
		last, err := withRetry(ctx, func() (*CompletedGeneration, error) {
			return rs.Store.GetLastCompletedGeneration(ctx, continueRunID)
		})
		if err != nil {
			return err
		}
		if last == nil {
			return &RunTrackingError{Msg: fmt.Sprintf("run %s has no completed generations to resume from", continueRunID)}
		}
		rs.RunID = last.RunID
		rs.GenerationID = last.GenerationID
		rs.GenerationNumber = last.GenerationNumber
		return nil
	}

	if rs.Store == nil {
		rs.RunID = newRunID()
		rs.GenerationID = ""
		rs.GenerationNumber = -1
		return nil
	}
	id, err := withRetry(ctx, func() (string, error) { return rs.Store.CreateRun(ctx, req) })
	if err != nil {
		return err
	}
	rs.RunID = id
	rs.GenerationNumber = -1
	return nil
}

// CreateNewGeneration inserts a fresh generation row (or allocates a local
// id without persistence) and advances GenerationNumber/GenerationID.
func (rs *RunService) CreateNewGeneration(ctx context.Context, number int) error {
	if rs.Store == nil {
		rs.GenerationID = newGenerationID()
		rs.GenerationNumber = number
		return nil
	}
	id, err := withRetry(ctx, func() (string, error) { return rs.Store.CreateGeneration(ctx, rs.RunID, number) })
	if err != nil {
		return err
	}
	rs.GenerationID = id
	rs.GenerationNumber = number
	return nil
}

// CompleteGeneration records the best workflow-version id and stats for the
// current generation.
func (rs *RunService) CompleteGeneration(ctx context.Context, bestWorkflowVersionID, comment string, feedback *string, stats PopulationStats) error {
	if rs.Store == nil {
		return nil
	}
	_, err := withRetry(ctx, func() (struct{}, error) {
		return struct{}{}, rs.Store.CompleteGeneration(ctx, CompleteGenerationRequest{
			GenerationID:          rs.GenerationID,
			BestWorkflowVersionID: bestWorkflowVersionID,
			Comment:               comment,
			Feedback:              feedback,
		}, stats)
	})
	return err
}

// CompleteRun sets the final status and notes for the run.
func (rs *RunService) CompleteRun(ctx context.Context, status RunStatus, notes string) error {
	if rs.Store == nil {
		return nil
	}
	_, err := withRetry(ctx, func() (struct{}, error) {
		return struct{}{}, rs.Store.CompleteRun(ctx, rs.RunID, status, notes)
	})
	return err
}

// EnsureWorkflowVersion upserts a workflow-version row for a newly created genome.
func (rs *RunService) EnsureWorkflowVersion(ctx context.Context, g *Genome, commitMessage string) error {
	if rs.Store == nil {
		return nil
	}
	_, err := withRetry(ctx, func() (struct{}, error) {
		return struct{}{}, rs.Store.CreateWorkflowVersion(ctx, CreateWorkflowVersionRequest{
			WorkflowVersionID: g.Value.WorkflowVersionID,
			WorkflowID:        g.Input.WorkflowID,
			CommitMessage:     commitMessage,
			DSL:               g.Value.Config,
			GenerationID:      rs.GenerationID,
			Operation:         g.Value.Operation,
		})
	})
	return err
}

// withRetry retries transient persistence errors up to 3 attempts with
// exponential backoff × attempt (§4.10). Unique-key and not-found errors
// (anything not wrapped as PersistenceTransient) are terminal immediately.
func withRetry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		result, err := op()
		if err == nil {
			return result, nil
		}
		var transient *PersistenceTransient
		if !errors.As(err, &transient) {
			return zero, err
		}
		lastErr = err
		if attempt == 3 {
			break
		}
		select {
		case <-ctx.Done():
			return zero, &CancelledError{}
		case <-time.After(time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond * time.Duration(attempt)):
		}
	}
	return zero, lastErr
}
