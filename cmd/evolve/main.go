// Command evolve runs a complete EvolutionEngine.Evolve loop against a toy
// goal, wiring in-memory/local adapters so the whole state machine —
// population init, breeding, verification, evaluation, stats, run
// bookkeeping — can be exercised without any external service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/aswarm-evolve/workflow-gp/internal/catalog"
	"github.com/aswarm-evolve/workflow-gp/internal/evaluator/exprevaluator"
	"github.com/aswarm-evolve/workflow-gp/internal/gateway/localgw"
	"github.com/aswarm-evolve/workflow-gp/internal/gateway/openaigw"
	"github.com/aswarm-evolve/workflow-gp/internal/persistence/memstore"
	"github.com/aswarm-evolve/workflow-gp/internal/validator"
	"github.com/aswarm-evolve/workflow-gp/intelligence"
)

var (
	goal           = flag.String("goal", "Answer customer support tickets accurately and cite sources.", "objective the population evolves toward")
	populationSize = flag.Int("population", 8, "genomes per generation")
	generations    = flag.Int("generations", 6, "maximum generation budget")
	maxCostUSD     = flag.Float64("max-cost", 2.0, "hard USD budget for the run")
	seed           = flag.Int64("seed", 1, "RNG seed for reproducible demo runs")
)

func main() {
	_ = godotenv.Load()
	flag.Parse()

	models := []string{"local-small", "local-medium", "local-large"}
	tools := []string{"web-search", "calculator", "doc-retriever", "code-interpreter"}
	cat := catalog.NewStatic(models, tools)

	var gw intelligence.Gateway
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		gw = openaigw.New(apiKey, nil)
		log.Printf("using openaigw against the live OpenAI API")
	} else {
		gw = localgw.New(*seed, models, tools)
		log.Printf("OPENAI_API_KEY not set, using the self-contained local gateway")
	}

	val := validator.New(gw)
	eval := exprevaluator.New("", 0.01)
	store := memstore.New()
	telemetry := intelligence.NewStdTelemetry(nil)

	settings := intelligence.DefaultEvolutionSettings()
	settings.PopulationSize = *populationSize
	settings.Generations = *generations
	settings.MaxCostUSD = *maxCostUSD
	settings.Seed = *seed

	engine, err := intelligence.NewEvolutionEngine(settings, gw, val, cat, eval, store, telemetry)
	if err != nil {
		log.Fatalf("invalid evolution settings: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-shutdown
		log.Printf("received %s, cancelling evolution run", sig)
		cancel()
	}()

	input := intelligence.EvaluationInput{
		Goal:       *goal,
		DatasetRef: "demo-dataset",
		WorkflowID: "demo-workflow",
	}

	start := time.Now()
	result, err := engine.Evolve(ctx, input, nil, nil, "")
	if err != nil {
		log.Fatalf("evolution aborted: %v", err)
	}

	fmt.Printf("run %s finished in %s: status=%s generations=%d totalCost=$%.4f\n",
		result.RunID, time.Since(start).Round(time.Millisecond), result.FinalStatus, len(result.History), result.TotalCost)
	if result.BestGenome != nil {
		fmt.Printf("best workflow %s: score=%.3f nodes=%d\n",
			result.BestGenome.Value.WorkflowVersionID,
			result.BestGenome.Results.Fitness.Score,
			len(result.BestGenome.Value.Config.Nodes))
	}
	for _, gen := range result.History {
		fmt.Printf("  gen %d: best=%.3f avg=%.3f worst=%.3f std=%.3f cost=$%.4f\n",
			gen.Generation, gen.BestFitness, gen.AvgFitness, gen.WorstFitness, gen.FitnessStdDev, gen.EvaluationCost)
	}
}
