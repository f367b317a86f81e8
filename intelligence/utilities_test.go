package intelligence

import "testing"

func TestGenomeHashDeterministic(t *testing.T) {
	cfg := linearConfig(2)
	h1, err := GenomeHash("wfv-1", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h2, err := GenomeHash("wfv-1", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("GenomeHash is not deterministic: %q != %q", h1, h2)
	}
}

func TestGenomeHashDiffersOnContent(t *testing.T) {
	h1, _ := GenomeHash("wfv-1", linearConfig(2))
	h2, _ := GenomeHash("wfv-1", linearConfig(3))
	if h1 == h2 {
		t.Fatal("expected different configs to hash differently")
	}
}

func TestGenomeHashDiffersOnVersionID(t *testing.T) {
	cfg := linearConfig(2)
	h1, _ := GenomeHash("wfv-1", cfg)
	h2, _ := GenomeHash("wfv-2", cfg)
	if h1 == h2 {
		t.Fatal("expected different workflow version ids to hash differently")
	}
}

func TestDeterministicSeedStable(t *testing.T) {
	a := DeterministicSeed("parent-1", 3)
	b := DeterministicSeed("parent-1", 3)
	if a != b {
		t.Fatalf("DeterministicSeed(parent-1, 3) not stable: %d != %d", a, b)
	}
	c := DeterministicSeed("parent-1", 4)
	if a == c {
		t.Fatal("expected different indices to produce different seeds")
	}
	d := DeterministicSeed("parent-2", 3)
	if a == d {
		t.Fatal("expected different parent ids to produce different seeds")
	}
	if a < 0 || c < 0 || d < 0 {
		t.Fatal("DeterministicSeed must always return a non-negative value")
	}
}
