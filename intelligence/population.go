package intelligence

import (
	"context"
	"fmt"
	"sort"
)

// MinViablePopulation is the floor §4.7 enforces after remove_unevaluated.
const MinViablePopulation = 4

// Population owns the genome set for a run (§3, §4.7): an ordered list of
// genomes, the generation number, and the inputs needed to replenish it.
type Population struct {
	Genomes     []*Genome
	Generation  int
	Input       EvaluationInput
	Analysis    *ProblemAnalysis
	Method      InitialPopulationMethod
	BaseWorkflow *WorkflowConfig
	Factory     *GenomeFactory
	Tracker     *FailureTracker
}

// NewPopulation constructs an empty population bound to the given
// replenishment inputs.
func NewPopulation(method InitialPopulationMethod, input EvaluationInput, analysis *ProblemAnalysis, base *WorkflowConfig, factory *GenomeFactory, tracker *FailureTracker) *Population {
	return &Population{
		Input:        input,
		Analysis:     analysis,
		Method:       method,
		BaseWorkflow: base,
		Factory:      factory,
		Tracker:      tracker,
	}
}

func (p *Population) createOne(ctx context.Context, evoCtx EvolutionContext) (*Genome, error) {
	switch p.Method {
	case PopulationPrepared:
		g, _, err := p.Factory.CreatePrepared(ctx, p.Analysis, p.Input, evoCtx)
		return g, err
	default:
		g, _, err := p.Factory.CreateRandom(ctx, p.Method, p.BaseWorkflow, p.Analysis, p.Input, evoCtx)
		return g, err
	}
}

// Initialize produces populationSize candidate genomes in parallel,
// dispatching on Method. Failures are tolerated; if fewer than 50% succeed,
// a critical message is logged through telemetry and nil is still returned,
// so the population carries whatever succeeded (§4.7).
func (p *Population) Initialize(ctx context.Context, size int, maxConcurrency int, evoCtx EvolutionContext, telemetry Telemetry) error {
	type outcome struct {
		genome *Genome
		err    error
	}
	slots := make([]int, size)
	for i := range slots {
		slots[i] = i
	}
	results := ParallelMap(ctx, slots, maxConcurrency, func(ctx context.Context, _ int) outcome {
		g, err := p.createOne(ctx, evoCtx)
		return outcome{genome: g, err: err}
	})
	p.Genomes = p.Genomes[:0]
	succeeded := 0
	for _, r := range results {
		if r.err != nil || r.genome == nil {
			continue
		}
		p.Genomes = append(p.Genomes, r.genome)
		succeeded++
	}
	if size > 0 && float64(succeeded)/float64(size) < 0.5 {
		if telemetry != nil {
			telemetry.Logf("population initialization critical: only %d/%d genomes created", succeeded, size)
		}
	}
	return nil
}

func evaluatedGenomes(genomes []*Genome) []*Genome {
	var out []*Genome
	for _, g := range genomes {
		if g.IsEvaluated {
			out = append(out, g)
		}
	}
	return out
}

// GetBest returns the highest-fitness evaluated genome. Fails if none are evaluated.
func (p *Population) GetBest() (*Genome, error) {
	evaluated := evaluatedGenomes(p.Genomes)
	if len(evaluated) == 0 {
		return nil, &PopulationError{Msg: "no evaluated genomes"}
	}
	best := evaluated[0]
	for _, g := range evaluated[1:] {
		if g.Results.Fitness.Score > best.Results.Fitness.Score {
			best = g
		}
	}
	return best, nil
}

// GetWorst returns the lowest-fitness evaluated genome.
func (p *Population) GetWorst() (*Genome, error) {
	evaluated := evaluatedGenomes(p.Genomes)
	if len(evaluated) == 0 {
		return nil, &PopulationError{Msg: "no evaluated genomes"}
	}
	worst := evaluated[0]
	for _, g := range evaluated[1:] {
		if g.Results.Fitness.Score < worst.Results.Fitness.Score {
			worst = g
		}
	}
	return worst, nil
}

// GetTop returns the top n evaluated genomes by fitness, descending.
func (p *Population) GetTop(n int) []*Genome {
	evaluated := append([]*Genome(nil), evaluatedGenomes(p.Genomes)...)
	sort.Slice(evaluated, func(i, j int) bool {
		return evaluated[i].Results.Fitness.Score > evaluated[j].Results.Fitness.Score
	})
	if n > len(evaluated) {
		n = len(evaluated)
	}
	return evaluated[:n]
}

// RemoveUnevaluated drops isEvaluated==false genomes, replenishing with
// fresh genomes up to MinViablePopulation if needed, and fails with
// PopulationError if the final size is still below 2 (§4.7, §8.2).
func (p *Population) RemoveUnevaluated(ctx context.Context, evoCtx EvolutionContext) error {
	var kept []*Genome
	for _, g := range p.Genomes {
		if g.IsEvaluated {
			kept = append(kept, g)
		}
	}
	p.Genomes = kept

	if len(p.Genomes) < MinViablePopulation {
		deficit := MinViablePopulation - len(p.Genomes)
		for i := 0; i < deficit; i++ {
			g, err := p.createOne(ctx, evoCtx)
			if err != nil || g == nil {
				continue
			}
			p.Genomes = append(p.Genomes, g)
		}
	}
	if len(p.Genomes) < 2 {
		return &PopulationError{Msg: fmt.Sprintf("population collapsed to %d genomes after replenishment", len(p.Genomes))}
	}
	return nil
}

// PruneSimilar groups genomes whose structural fingerprint distance is <=
// threshold, keeping the highest-fitness member of each group (§4.7).
func (p *Population) PruneSimilar(threshold float64) error {
	if len(p.Genomes) == 0 {
		return nil
	}
	fingerprints := make([][]float64, len(p.Genomes))
	for i, g := range p.Genomes {
		fp := StructuralFingerprint(g.Value.Config)
		fingerprints[i] = fp[:]
	}
	removed := make(map[int]bool)
	for i := range p.Genomes {
		if removed[i] {
			continue
		}
		similar, err := FindSimilar(fingerprints, i, threshold)
		if err != nil {
			return err
		}
		for _, j := range similar {
			if removed[j] {
				continue
			}
			if p.Genomes[j].Results.Fitness.Score > p.Genomes[i].Results.Fitness.Score {
				removed[i] = true
			} else {
				removed[j] = true
			}
		}
	}
	var kept []*Genome
	for i, g := range p.Genomes {
		if !removed[i] {
			kept = append(kept, g)
		}
	}
	p.Genomes = kept
	return nil
}

// ResetGenomes advances every genome's context to the engine's current
// (runId, generationId, generationNumber) and marks them unevaluated (§4.7).
func (p *Population) ResetGenomes(evoCtx EvolutionContext) {
	for _, g := range p.Genomes {
		g.Reset(evoCtx)
	}
}

// SetGenomes is the single writer of the population vector (Design Notes
// §9): survivor selection calls this once per generation rather than
// mutating p.Genomes piecemeal from multiple goroutines.
func (p *Population) SetGenomes(genomes []*Genome) {
	p.Genomes = genomes
}
