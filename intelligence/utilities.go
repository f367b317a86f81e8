package intelligence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// GenomeHash computes "genome-" + workflowVersionId + "-" + sha256(canonical
// JSON of value) (§4.6). encoding/json.Marshal is already canonical for our
// purposes: struct fields serialize in declaration order and map keys are
// sorted lexicographically, so no bespoke field-by-field writer is needed
// the way ComputeSpecHash builds one by hand field-by-field.
func GenomeHash(workflowVersionID string, value WorkflowConfig) (string, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return "genome-" + workflowVersionID + "-" + hex.EncodeToString(sum[:]), nil
}

// DeterministicSeed derives a stable int64 seed from a parent id and an
// offspring index, the same shape as SeedForOffspring: same parent and
// index always produce the same seed, so tests can reproduce a specific
// mutation draw.
func DeterministicSeed(parentID string, index int) int64 {
	h := sha256.New()
	h.Write([]byte(parentID))
	h.Write([]byte{byte(index), byte(index >> 8), byte(index >> 16), byte(index >> 24)})
	sum := h.Sum(nil)
	var seed int64
	for i := 0; i < 8; i++ {
		seed = seed<<8 | int64(sum[i])
	}
	if seed < 0 {
		seed = -seed
	}
	return seed
}
