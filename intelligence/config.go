package intelligence

import "fmt"

// MutationParams holds free-form guidance passed into LLM-driven operators.
type MutationParams struct {
	MutationInstructions string `json:"mutation_instructions"`
}

// EvolutionSettings is the configuration surface of an evolution run (§6).
type EvolutionSettings struct {
	PopulationSize                   int                      `json:"population_size" yaml:"populationSize"`
	Generations                      int                      `json:"generations" yaml:"generations"`
	EliteSize                        int                      `json:"elite_size" yaml:"eliteSize"`
	TournamentSize                   int                      `json:"tournament_size" yaml:"tournamentSize"`
	CrossoverRate                    float64                  `json:"crossover_rate" yaml:"crossoverRate"`
	MutationRate                     float64                  `json:"mutation_rate" yaml:"mutationRate"`
	OffspringCount                   int                      `json:"offspring_count" yaml:"offspringCount"`
	NumberOfParentsCreatingOffspring int                      `json:"number_of_parents_creating_offspring" yaml:"numberOfParentsCreatingOffspring"`
	MaxCostUSD                       float64                  `json:"max_cost_usd" yaml:"maxCostUSD"`
	MaximumTimeMinutes               float64                  `json:"maximum_time_minutes" yaml:"maximumTimeMinutes"`
	MaxEvaluationsPerHour            int                      `json:"max_evaluations_per_hour" yaml:"maxEvaluationsPerHour"`
	InitialPopulationMethod          InitialPopulationMethod  `json:"initial_population_method" yaml:"initialPopulationMethod"`
	EvolutionMode                    EvolutionMode            `json:"evolution_mode" yaml:"evolutionMode"`
	MutationParams                   MutationParams           `json:"mutation_params" yaml:"mutationParams"`
	MaxConcurrentEvaluations         int                      `json:"max_concurrent_evaluations" yaml:"maxConcurrentEvaluations"`
	PruneSimilarityThreshold         float64                  `json:"prune_similarity_threshold" yaml:"pruneSimilarityThreshold"`
	Seed                             int64                    `json:"seed" yaml:"seed"`
}

// Validate checks EvolutionSettings against the invariants of §6. It follows
// mbflow's executor/config pattern: a typed struct with a single Validate
// method and descriptive errors, called once at construction time.
func (s EvolutionSettings) Validate() error {
	switch {
	case s.PopulationSize <= 0:
		return &ConfigurationError{Msg: fmt.Sprintf("populationSize must be > 0, got %d", s.PopulationSize)}
	case s.Generations <= 0:
		return &ConfigurationError{Msg: fmt.Sprintf("generations must be > 0, got %d", s.Generations)}
	case s.EliteSize < 0:
		return &ConfigurationError{Msg: fmt.Sprintf("eliteSize must be >= 0, got %d", s.EliteSize)}
	case s.TournamentSize <= 0:
		return &ConfigurationError{Msg: fmt.Sprintf("tournamentSize must be > 0, got %d", s.TournamentSize)}
	case s.CrossoverRate < 0 || s.CrossoverRate > 1:
		return &ConfigurationError{Msg: fmt.Sprintf("crossoverRate must be in [0,1], got %f", s.CrossoverRate)}
	case s.MutationRate < 0 || s.MutationRate > 1:
		return &ConfigurationError{Msg: fmt.Sprintf("mutationRate must be in [0,1], got %f", s.MutationRate)}
	case s.CrossoverRate+s.MutationRate > 1:
		return &ConfigurationError{Msg: fmt.Sprintf("crossoverRate+mutationRate must be <= 1, got %f", s.CrossoverRate+s.MutationRate)}
	case s.OffspringCount < 0:
		return &ConfigurationError{Msg: fmt.Sprintf("offspringCount must be >= 0, got %d", s.OffspringCount)}
	case s.NumberOfParentsCreatingOffspring <= 0:
		return &ConfigurationError{Msg: fmt.Sprintf("numberOfParentsCreatingOffspring must be > 0, got %d", s.NumberOfParentsCreatingOffspring)}
	case s.MaxCostUSD < 0:
		return &ConfigurationError{Msg: fmt.Sprintf("maxCostUSD must be >= 0, got %f", s.MaxCostUSD)}
	case s.MaximumTimeMinutes <= 0:
		return &ConfigurationError{Msg: fmt.Sprintf("maximumTimeMinutes must be > 0, got %f", s.MaximumTimeMinutes)}
	case s.MaxEvaluationsPerHour <= 0:
		return &ConfigurationError{Msg: fmt.Sprintf("maxEvaluationsPerHour must be > 0, got %d", s.MaxEvaluationsPerHour)}
	}
	switch s.InitialPopulationMethod {
	case PopulationRandom, PopulationBaseWorkflow, PopulationPrepared:
	default:
		return &ConfigurationError{Msg: fmt.Sprintf("initialPopulationMethod %q is not one of random|baseWorkflow|prepared", s.InitialPopulationMethod)}
	}
	switch s.EvolutionMode {
	case ModeGP, ModeIterative:
	default:
		return &ConfigurationError{Msg: fmt.Sprintf("evolutionMode %q is not one of GP|iterative", s.EvolutionMode)}
	}
	if s.MaxConcurrentEvaluations <= 0 {
		return &ConfigurationError{Msg: fmt.Sprintf("maxConcurrentEvaluations must be > 0, got %d", s.MaxConcurrentEvaluations)}
	}
	return nil
}

// DefaultEvolutionSettings returns a small, fast-converging configuration
// suitable for tests and the cmd/evolve demo.
func DefaultEvolutionSettings() EvolutionSettings {
	return EvolutionSettings{
		PopulationSize:                   8,
		Generations:                      10,
		EliteSize:                        2,
		TournamentSize:                   3,
		CrossoverRate:                    0.5,
		MutationRate:                     0.35,
		OffspringCount:                   6,
		NumberOfParentsCreatingOffspring: 2,
		MaxCostUSD:                       5.0,
		MaximumTimeMinutes:               30,
		MaxEvaluationsPerHour:            10000,
		InitialPopulationMethod:          PopulationRandom,
		EvolutionMode:                    ModeGP,
		MaxConcurrentEvaluations:         4,
		PruneSimilarityThreshold:         0.05,
	}
}
