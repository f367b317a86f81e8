package intelligence

import (
	"context"
	"math/rand"
	"sort"
	"sync"
)

// Selection implements §4.8's parent selection, batched offspring
// generation, verification filtering, and μ+λ survivor truncation.
type Selection struct {
	Settings    EvolutionSettings
	Coordinator *MutationCoordinator
	Factory     *GenomeFactory
	Validator   Validator
	Cache       *VerificationCache
	Tracker     *FailureTracker
	RNG         *rand.Rand
	RNGMu       *sync.Mutex
}

func (s *Selection) randFloat64() float64 {
	s.RNGMu.Lock()
	defer s.RNGMu.Unlock()
	return s.RNG.Float64()
}

func (s *Selection) randIntn(n int) int {
	if n <= 0 {
		return 0
	}
	s.RNGMu.Lock()
	defer s.RNGMu.Unlock()
	return s.RNG.Intn(n)
}

// validParents returns evaluated genomes with positive fitness — the pool
// §4.7's breeding invariant requires at least numberOfParentsCreatingOffspring
// of.
func validParents(genomes []*Genome) []*Genome {
	var out []*Genome
	for _, g := range genomes {
		if g.IsEvaluated && g.Results.Fitness.Score > 0 {
			out = append(out, g)
		}
	}
	return out
}

// selectElite returns the top eliteSize valid genomes by fitness.
func selectElite(valid []*Genome, eliteSize int) []*Genome {
	sorted := append([]*Genome(nil), valid...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Results.Fitness.Score > sorted[j].Results.Fitness.Score })
	if eliteSize > len(sorted) {
		eliteSize = len(sorted)
	}
	return sorted[:eliteSize]
}

// tournamentPick runs one tournament of tournamentSize candidates drawn with
// replacement, winner = max fitness, ties broken by first-seen.
func (s *Selection) tournamentPick(valid []*Genome, tournamentSize int) *Genome {
	if len(valid) == 0 {
		return nil
	}
	var winner *Genome
	for i := 0; i < tournamentSize; i++ {
		cand := valid[s.randIntn(len(valid))]
		if winner == nil || cand.Results.Fitness.Score > winner.Results.Fitness.Score {
			winner = cand
		}
	}
	return winner
}

// SelectNextParents implements §4.8 parent selection: elite carryover plus
// tournament selection until enough parents are drawn.
func (s *Selection) SelectNextParents(population []*Genome, count int) []*Genome {
	valid := validParents(population)
	if len(valid) == 0 {
		return nil
	}
	parents := selectElite(valid, s.Settings.EliteSize)
	for len(parents) < count {
		pick := s.tournamentPick(valid, s.Settings.TournamentSize)
		if pick == nil {
			break
		}
		parents = append(parents, pick)
	}
	if len(parents) > count {
		parents = parents[:count]
	}
	return parents
}

func (s *Selection) distinctParents(valid []*Genome, n int) []*Genome {
	if len(valid) < n {
		return nil
	}
	chosen := make([]*Genome, 0, n)
	seen := make(map[string]bool, n)
	attempts := 0
	for len(chosen) < n && attempts < n*10 {
		attempts++
		cand := valid[s.randIntn(len(valid))]
		if seen[cand.Value.WorkflowVersionID] {
			continue
		}
		seen[cand.Value.WorkflowVersionID] = true
		chosen = append(chosen, cand)
	}
	if len(chosen) < n {
		return nil
	}
	return chosen
}

// breedOne draws one offspring slot: crossover, mutation, or immigration
// according to the configured rates (§4.8).
func (s *Selection) breedOne(ctx context.Context, valid []*Genome, evoCtx EvolutionContext) (*Genome, error) {
	r := s.randFloat64()
	switch {
	case r < s.Settings.CrossoverRate:
		parents := s.distinctParents(valid, s.Settings.NumberOfParentsCreatingOffspring)
		if parents == nil {
			return nil, &OperatorFailure{Operator: OpCrossover, Err: errNotEnoughParents}
		}
		s.Tracker.RecordAttempt(FailureCrossover)
		cfgs := make([]WorkflowConfig, len(parents))
		ids := make([]string, len(parents))
		for i, p := range parents {
			cfgs[i] = p.Value.Config
			ids[i] = p.Value.WorkflowVersionID
		}
		deps := s.Coordinator.Deps
		result, err := (Crossover{}).Apply(ctx, deps, cfgs, 1.0)
		if err != nil {
			s.Tracker.RecordFailure(FailureCrossover)
			return nil, err
		}
		if err := EnforceMemoryPreservation(cfgs, result.Config); err != nil {
			s.Tracker.RecordFailure(FailureCrossover)
			return nil, err
		}
		child := FromConfig(result.Config, ids, OpCrossover, parents[0].Input, evoCtx)
		child.AddCost(result.CostUsd)
		return child, nil

	case r < s.Settings.CrossoverRate+s.Settings.MutationRate:
		parent := valid[s.randIntn(len(valid))]
		s.Tracker.RecordAttempt(FailureMutation)
		child, _, err := s.Coordinator.Mutate(ctx, parent, 0.5)
		if err != nil {
			s.Tracker.RecordFailure(FailureMutation)
			return nil, err
		}
		return child, nil

	default:
		parent := valid[s.randIntn(len(valid))]
		s.Tracker.RecordAttempt(FailureImmigrant)
		g, _, err := s.Factory.CreateRandom(ctx, PopulationRandom, nil, nil, parent.Input, evoCtx)
		if err != nil {
			s.Tracker.RecordFailure(FailureImmigrant)
			return nil, err
		}
		// Immigrant children inherit parentWorkflowVersionIds from the
		// drawn parent so lineage is preserved even when immigration is
		// used (§4.8).
		g.Value.ParentWorkflowVersionIDs = []string{parent.Value.WorkflowVersionID}
		return g, nil
	}
}

var errNotEnoughParents = &PopulationError{Msg: "not enough distinct valid parents for crossover"}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// GenerateOffspring draws up to min(max(50, λ·20), 1000) total attempts to
// fill λ=offspringCount slots, verifying each candidate against the cache
// and tripping a circuit breaker once invalid count reaches max(50, λ·5)
// (§4.8, §4.9).
func (s *Selection) GenerateOffspring(ctx context.Context, population []*Genome, evoCtx EvolutionContext) []*Genome {
	valid := validParents(population)
	lambda := s.Settings.OffspringCount
	if lambda == 0 || len(valid) == 0 {
		return nil
	}
	maxAttempts := minInt(maxInt(50, lambda*20), 1000)
	invalidLimit := maxInt(50, lambda*5)

	var offspring []*Genome
	invalidCount := 0
	for attempt := 0; attempt < maxAttempts && len(offspring) < lambda; attempt++ {
		if err := ctxDone(ctx); err != nil {
			break
		}
		child, err := s.breedOne(ctx, valid, evoCtx)
		if err != nil || child == nil {
			continue
		}
		if invalidCount >= invalidLimit {
			continue
		}
		valid2, verifyErrs := s.verify(ctx, child.Value.Config)
		if !valid2 {
			invalidCount++
			_ = verifyErrs
			continue
		}
		offspring = append(offspring, child)
	}
	return offspring
}

func (s *Selection) verify(ctx context.Context, cfg WorkflowConfig) (bool, []string) {
	key, err := GenomeHash("", cfg)
	if err != nil {
		return false, []string{err.Error()}
	}
	if valid, errs, ok := s.Cache.Get(key); ok {
		return valid, errs
	}
	result, err := s.Validator.VerifyWorkflow(ctx, cfg, VerifyOptions{})
	if err != nil {
		s.Cache.Put(key, false, []string{err.Error()})
		return false, []string{err.Error()}
	}
	s.Cache.Put(key, result.IsValid, result.Errors)
	return result.IsValid, result.Errors
}

// CreateNextGeneration implements the full breeding step of §4.8: generate
// offspring, then truncation-select survivors (μ+λ): concatenate population
// with valid offspring, sort by (isEvaluated desc, fitness desc), take the
// first populationSize.
func (s *Selection) CreateNextGeneration(ctx context.Context, population []*Genome, evoCtx EvolutionContext) []*Genome {
	offspring := s.GenerateOffspring(ctx, population, evoCtx)
	combined := append(append([]*Genome(nil), population...), offspring...)
	sort.SliceStable(combined, func(i, j int) bool {
		if combined[i].IsEvaluated != combined[j].IsEvaluated {
			return combined[i].IsEvaluated
		}
		return combined[i].Results.Fitness.Score > combined[j].Results.Fitness.Score
	})
	if len(combined) > s.Settings.PopulationSize {
		combined = combined[:s.Settings.PopulationSize]
	}
	return combined
}
