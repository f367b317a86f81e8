package intelligence

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestPoissonClampBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		n := Poisson(rng, 3.0, 1, 6)
		if n < 1 || n > 6 {
			t.Fatalf("Poisson clamp violated: got %d, want [1,6]", n)
		}
	}
}

func TestPoissonUnclampedNonNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 500; i++ {
		if n := Poisson(rng, 1.5); n < 0 {
			t.Fatalf("Poisson returned negative value %d", n)
		}
	}
}

func TestCalculateStatsEmpty(t *testing.T) {
	best, worst, avg, stdDev := CalculateStats(nil)
	if best != 0 || worst != 0 || avg != 0 || stdDev != 0 {
		t.Fatalf("empty input should yield all zeros, got %v %v %v %v", best, worst, avg, stdDev)
	}
}

func TestCalculateStatsRounding(t *testing.T) {
	scores := []float64{0.1, 0.5, 0.9}
	best, worst, avg, stdDev := CalculateStats(scores)
	if best != 0.9 {
		t.Errorf("best = %v, want 0.9", best)
	}
	if worst != 0.1 {
		t.Errorf("worst = %v, want 0.1", worst)
	}
	if avg != 0.5 {
		t.Errorf("avg = %v, want 0.5", avg)
	}
	wantStdDev := round2(math.Sqrt(((0.4 * 0.4) + 0 + (0.4 * 0.4)) / 3))
	if stdDev != wantStdDev {
		t.Errorf("stdDev = %v, want %v", stdDev, wantStdDev)
	}
}

func TestStructuralFingerprintLength(t *testing.T) {
	cfg := linearConfig(3)
	fp := StructuralFingerprint(cfg)
	if len(fp) != FingerprintLength {
		t.Fatalf("fingerprint length = %d, want %d", len(fp), FingerprintLength)
	}
	if fp[0] != 0.3 {
		t.Errorf("nodeCount feature = %v, want 0.3 (3 nodes / 10)", fp[0])
	}
}

func TestFingerprintDistanceShapeMismatch(t *testing.T) {
	_, err := FingerprintDistance([]float64{1, 2, 3}, []float64{1, 2})
	if err == nil {
		t.Fatal("expected ShapeMismatchError, got nil")
	}
	var shapeErr *ShapeMismatchError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("expected *ShapeMismatchError, got %T: %v", err, err)
	}
}

func TestFingerprintDistanceZeroForIdentical(t *testing.T) {
	a := []float64{1, 2, 3}
	d, err := FingerprintDistance(a, append([]float64(nil), a...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 0 {
		t.Errorf("distance between identical vectors = %v, want 0", d)
	}
}

func TestFindSimilarExcludesSelf(t *testing.T) {
	fingerprints := [][]float64{
		{0, 0, 0},
		{0, 0, 0.01},
		{5, 5, 5},
	}
	similar, err := FindSimilar(fingerprints, 0, 0.1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(similar) != 1 || similar[0] != 1 {
		t.Fatalf("FindSimilar(0, 0.1) = %v, want [1]", similar)
	}
}
