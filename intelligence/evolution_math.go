package intelligence

import (
	"math"
	"math/rand"
	"strings"
)

// FingerprintLength is the fixed dimensionality of structural fingerprints (§4.1).
const FingerprintLength = 9

// Poisson draws a non-negative integer from a Poisson(lambda) distribution
// using Knuth's algorithm, optionally clamped to [min, max]. Callers must
// hold whatever lock guards rng themselves.
func Poisson(rng *rand.Rand, lambda float64, clamp ...int) int {
	l := math.Exp(-lambda)
	k := 0
	p := 1.0
	for {
		k++
		p *= rng.Float64()
		if p <= l {
			break
		}
	}
	n := k - 1
	if len(clamp) == 2 {
		min, max := clamp[0], clamp[1]
		if n < min {
			n = min
		}
		if n > max {
			n = max
		}
	}
	return n
}

// PopulationStats is the per-generation summary §4.11 calculate_stats produces.
type PopulationStats struct {
	Generation         int     `json:"generation"`
	BestFitness        float64 `json:"best_fitness"`
	WorstFitness       float64 `json:"worst_fitness"`
	AvgFitness         float64 `json:"avg_fitness"`
	FitnessStdDev      float64 `json:"fitness_std_dev"`
	EvaluationCost     float64 `json:"evaluation_cost"`
	EvaluationsPerHour float64 `json:"evaluations_per_hour"`
	ImprovementRate    float64 `json:"improvement_rate"`
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// CalculateStats computes {bestFitness, worstFitness, avgFitness, stdDev}
// over a slice of fitness scores, each rounded to two decimals. Zero-sized
// input yields all zeros.
func CalculateStats(scores []float64) (best, worst, avg, stdDev float64) {
	if len(scores) == 0 {
		return 0, 0, 0, 0
	}
	best, worst = scores[0], scores[0]
	sum := 0.0
	for _, s := range scores {
		if s > best {
			best = s
		}
		if s < worst {
			worst = s
		}
		sum += s
	}
	avg = sum / float64(len(scores))
	variance := 0.0
	for _, s := range scores {
		d := s - avg
		variance += d * d
	}
	variance /= float64(len(scores))
	return round2(best), round2(worst), round2(avg), round2(math.Sqrt(variance))
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

func countSentences(s string) int {
	n := strings.FieldsFunc(s, func(r rune) bool { return r == '.' || r == '!' || r == '?' })
	count := 0
	for _, part := range n {
		if strings.TrimSpace(part) != "" {
			count++
		}
	}
	if count == 0 && strings.TrimSpace(s) != "" {
		return 1
	}
	return count
}

// StructuralFingerprint builds the fixed-length feature vector of §4.1 from
// aggregated node statistics. Normalization constants are fixed contracts.
func StructuralFingerprint(cfg WorkflowConfig) [FingerprintLength]float64 {
	var (
		descLen, descWords, descSentences int
		promptLen, promptWords            int
		mcpTools, codeTools, handOffs     int
	)
	for _, n := range cfg.Nodes {
		descLen += len(n.Description)
		descWords += countWords(n.Description)
		descSentences += countSentences(n.Description)
		promptLen += len(n.SystemPrompt)
		promptWords += countWords(n.SystemPrompt)
		mcpTools += len(n.MCPTools)
		codeTools += len(n.CodeTools)
		handOffs += len(n.HandOffs)
	}
	return [FingerprintLength]float64{
		float64(len(cfg.Nodes)) / 10,
		float64(descLen) / 1000,
		float64(descWords) / 100,
		float64(descSentences) / 10,
		float64(promptLen) / 1000,
		float64(promptWords) / 100,
		float64(mcpTools) / 10,
		float64(codeTools) / 10,
		float64(handOffs) / 5,
	}
}

// FingerprintDistance is the Euclidean distance between two fingerprints. It
// fails with ShapeMismatchError if the lengths differ — kept as a slice-typed
// entry point so callers computing distances against stored/serialized
// fingerprints of unknown provenance get the same check the array type would
// otherwise make unreachable.
func FingerprintDistance(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, &ShapeMismatchError{LenA: len(a), LenB: len(b)}
	}
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// FindSimilar returns the indices of genomes within distance <= threshold of
// target's fingerprint, excluding targetIdx itself.
func FindSimilar(fingerprints [][]float64, targetIdx int, threshold float64) ([]int, error) {
	var out []int
	target := fingerprints[targetIdx]
	for i, fp := range fingerprints {
		if i == targetIdx {
			continue
		}
		d, err := FingerprintDistance(target, fp)
		if err != nil {
			return nil, err
		}
		if d <= threshold {
			out = append(out, i)
		}
	}
	return out, nil
}
