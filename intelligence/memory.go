package intelligence

import "encoding/json"

// preserveNodeMemory merges src's memory into dst's, src values losing on
// conflict (child's own values win) — the "child wins" rule of §4.3.
func preserveNodeMemory(dst, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	out := make(map[string]string, len(dst)+len(src))
	for k, v := range src {
		out[k] = v
	}
	for k, v := range dst {
		out[k] = v
	}
	return out
}

// PreserveMutationMemory implements the mutation-preservation rule: for every
// node id present in parent, if a node with the same id exists in child,
// child node memory becomes parent.memory ∪ child.memory with child values
// winning on conflict.
func PreserveMutationMemory(parent, child WorkflowConfig) WorkflowConfig {
	byID := make(map[string]int, len(child.Nodes))
	for i, n := range child.Nodes {
		byID[n.ID] = i
	}
	for _, pn := range parent.Nodes {
		if idx, ok := byID[pn.ID]; ok {
			child.Nodes[idx].Memory = preserveNodeMemory(child.Nodes[idx].Memory, pn.Memory)
		}
	}
	return child
}

// PreserveCrossoverMemory composes PreserveMutationMemory over both parents,
// parent1 resolved before parent2 (§4.3: "parent1 precedes parent2 in
// resolution order").
func PreserveCrossoverMemory(parent1, parent2, child WorkflowConfig) WorkflowConfig {
	child = PreserveMutationMemory(parent1, child)
	child = PreserveMutationMemory(parent2, child)
	return child
}

// EnforceMemoryPreservation verifies that, for every parent node's memory
// key, that key is reachable in the child — either in the same-id child node
// or, if the node was removed, under the workflow-level memory key
// deleted_<nodeId> or in the memory of any surviving child node. Returns
// MemoryLostError naming the first violation found.
func EnforceMemoryPreservation(parents []WorkflowConfig, child WorkflowConfig) error {
	childByID := make(map[string]Node, len(child.Nodes))
	survivingKeys := make(map[string]bool)
	for _, n := range child.Nodes {
		childByID[n.ID] = n
		for k := range n.Memory {
			survivingKeys[k] = true
		}
	}
	for _, parent := range parents {
		for _, pn := range parent.Nodes {
			if len(pn.Memory) == 0 {
				continue
			}
			if cn, ok := childByID[pn.ID]; ok {
				for k := range pn.Memory {
					if _, present := cn.Memory[k]; !present {
						return &MemoryLostError{Key: k, NodeID: pn.ID}
					}
				}
				continue
			}
			deletedKey := "deleted_" + pn.ID
			if _, present := child.Memory[deletedKey]; present {
				continue
			}
			for k := range pn.Memory {
				if !survivingKeys[k] {
					return &MemoryLostError{Key: k, NodeID: pn.ID}
				}
			}
		}
	}
	return nil
}

// ArchiveDeletedNodeMemory snapshots a removed node's memory into the
// workflow-level memory map under deleted_<nodeId>, used by DeleteNode when
// no surviving node can absorb the memory directly (§4.3 Deletion path).
func ArchiveDeletedNodeMemory(cfg WorkflowConfig, node Node) (WorkflowConfig, error) {
	if len(node.Memory) == 0 {
		return cfg, nil
	}
	snapshot, err := json.Marshal(node.Memory)
	if err != nil {
		return cfg, err
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]string)
	}
	cfg.Memory["deleted_"+node.ID] = string(snapshot)
	return cfg, nil
}
