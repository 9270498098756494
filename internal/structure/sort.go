package structure

import (
	"sort"

	"github.com/google/uuid"
)

// SetParentIDs resolves every node's parent_external_node_id against the
// document and writes the parent's internal UUID into parent_node_id
// in place. It returns the children of each node keyed by the parent's
// internal UUID (child values are indexes into nodes).
//
// Nodes whose parent reference does not resolve are left untouched and do
// not appear in the child mapping; validation has already rejected real
// orphans, so this only elides nodes whose parent was itself filtered.
func SetParentIDs(nodes []ThingNode) map[uuid.UUID][]int {
	byKey := make(map[externalKey]int, len(nodes))
	for i := range nodes {
		byKey[externalKey{nodes[i].StakeholderKey, nodes[i].ExternalID}] = i
	}

	childrenByNodeID := make(map[uuid.UUID][]int)
	for i := range nodes {
		if nodes[i].ParentExternalNodeID == nil {
			continue
		}
		parentKey := externalKey{nodes[i].StakeholderKey, *nodes[i].ParentExternalNodeID}
		pi, ok := byKey[parentKey]
		if !ok {
			continue
		}
		parentID := nodes[pi].ID
		nodes[i].ParentNodeID = &parentID
		childrenByNodeID[parentID] = append(childrenByNodeID[parentID], i)
	}
	return childrenByNodeID
}

// SortThingNodes returns the nodes flattened root-first by BFS level.
// Within one level the roots keep document order and the children of each
// parent are ordered lexicographically by external_id. As a side effect
// the in-memory parent_node_id of every resolvable node is set (see
// SetParentIDs); the authoritative rewrite happens in the storage layer
// once post-upsert UUIDs are known.
func SortThingNodes(nodes []ThingNode) []ThingNode {
	childrenByNodeID := SetParentIDs(nodes)

	var level []int
	for i := range nodes {
		if nodes[i].ParentExternalNodeID == nil {
			level = append(level, i)
		}
	}

	flattened := make([]ThingNode, 0, len(nodes))
	for len(level) > 0 {
		next := make([]int, 0)
		for _, i := range level {
			flattened = append(flattened, nodes[i])
			children := childrenByNodeID[nodes[i].ID]
			sort.Slice(children, func(a, b int) bool {
				return nodes[children[a]].ExternalID < nodes[children[b]].ExternalID
			})
			next = append(next, children...)
		}
		level = next
	}
	return flattened
}
