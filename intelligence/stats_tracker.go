package intelligence

import "time"

// StatsTracker accumulates per-generation PopulationStats and evaluates the
// stop predicates of §4.11.
type StatsTracker struct {
	Settings   EvolutionSettings
	History    []PopulationStats
	TotalCost  float64
	EvalCount  int
	StartedAt  time.Time
}

// NewStatsTracker constructs a tracker whose wall clock starts now.
func NewStatsTracker(settings EvolutionSettings) *StatsTracker {
	return &StatsTracker{Settings: settings, StartedAt: time.Now()}
}

// RecordGeneration appends a generation's stats and accrues cost/eval-count.
func (t *StatsTracker) RecordGeneration(generation int, scores []float64, evaluationCost float64, evaluationsThisGen int) PopulationStats {
	best, worst, avg, stdDev := CalculateStats(scores)
	t.TotalCost += evaluationCost
	t.EvalCount += evaluationsThisGen

	elapsedHours := time.Since(t.StartedAt).Hours()
	evalsPerHour := 0.0
	if elapsedHours > 0 {
		evalsPerHour = float64(t.EvalCount) / elapsedHours
	}

	improvement := 0.0
	if len(t.History) > 0 {
		improvement = best - t.History[len(t.History)-1].BestFitness
	}

	stats := PopulationStats{
		Generation:         generation,
		BestFitness:        best,
		WorstFitness:       worst,
		AvgFitness:         avg,
		FitnessStdDev:      stdDev,
		EvaluationCost:     evaluationCost,
		EvaluationsPerHour: round2(evalsPerHour),
		ImprovementRate:    round2(improvement),
	}
	t.History = append(t.History, stats)
	return stats
}

// ShouldStop evaluates the four stop predicates of §4.11: cost, time, rate,
// convergence. Any one halts evolution.
func (t *StatsTracker) ShouldStop() bool {
	if t.TotalCost >= t.Settings.MaxCostUSD {
		return true
	}
	if time.Since(t.StartedAt).Minutes() > t.Settings.MaximumTimeMinutes {
		return true
	}
	// maxEvaluationsPerHour is described as an hourly throttle in the
	// source but enforced as an absolute ceiling on the evaluation
	// counter; we follow that absolute interpretation and document the
	// discrepancy here rather than resolve it silently (§9 Open Questions).
	if t.EvalCount >= t.Settings.MaxEvaluationsPerHour {
		return true
	}
	if t.converged() {
		return true
	}
	return false
}

// converged reports whether the last 5 generations all show improvements < 0.001.
func (t *StatsTracker) converged() bool {
	if len(t.History) < 5 {
		return false
	}
	window := t.History[len(t.History)-5:]
	for _, g := range window {
		if g.ImprovementRate >= 0.001 {
			return false
		}
	}
	return true
}

// FinalStatus reports the run's terminal status. A stop predicate firing
// (cost, time, rate, convergence) or exhausting the generation budget both
// count as a normal completion per §8 S3/S6; only an observed cancellation
// ends the run as interrupted (§7 propagation policy).
func (t *StatsTracker) FinalStatus(cancelled bool) RunStatus {
	if cancelled {
		return RunInterrupted
	}
	return RunCompleted
}
