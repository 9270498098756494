package structure

import (
	"errors"
	"fmt"
)

// Sentinel errors for document ingestion. ErrParse marks malformed JSON,
// ErrValidation marks a well-formed document that violates an invariant.
var (
	ErrParse      = errors.New("parse error")
	ErrValidation = errors.New("validation error")
)

type externalKey struct {
	stakeholderKey string
	externalID     string
}

// Validate enforces every document-scope invariant before the structure
// may reach the persistence layer. Checks run in a fixed order and the
// first failure is reported; no database is touched.
func (cs *CompleteStructure) Validate() error {
	if err := cs.validateFields(); err != nil {
		return err
	}
	if len(cs.ElementTypes) == 0 {
		return fmt.Errorf("%w: the structure must include at least one element type to be valid",
			ErrValidation)
	}
	if err := cs.validateParentReferences(); err != nil {
		return err
	}
	if err := cs.validateUniqueExternalKeys(); err != nil {
		return err
	}
	if err := cs.validateThingNodeRefLists(); err != nil {
		return err
	}
	if err := cs.validateStakeholderConsistency(); err != nil {
		return err
	}
	if err := cs.validateNoCircularReferences(); err != nil {
		return err
	}
	return cs.validateSourceSinkReferences()
}

// validateFields runs the per-entity checks: non-empty identity fields,
// known enum values and filter declarations.
func (cs *CompleteStructure) validateFields() error {
	for i := range cs.ElementTypes {
		et := &cs.ElementTypes[i]
		if err := checkCommonFields("element type", et.ExternalID, et.StakeholderKey, et.Name); err != nil {
			return err
		}
	}
	for i := range cs.ThingNodes {
		tn := &cs.ThingNodes[i]
		if err := checkCommonFields("thing node", tn.ExternalID, tn.StakeholderKey, tn.Name); err != nil {
			return err
		}
		if tn.ElementTypeExternalID == "" {
			return fmt.Errorf("%w: thing node %q has no element_type_external_id",
				ErrValidation, tn.ExternalID)
		}
	}
	for i := range cs.Sources {
		src := &cs.Sources[i]
		if err := checkCommonFields("source", src.ExternalID, src.StakeholderKey, src.Name); err != nil {
			return err
		}
		if !src.Type.Valid() {
			return fmt.Errorf("%w: source %q has unknown type %q", ErrValidation, src.ExternalID, src.Type)
		}
		if err := checkFilters("source", src.ExternalID, src.PassthroughFilters); err != nil {
			return err
		}
	}
	for i := range cs.Sinks {
		snk := &cs.Sinks[i]
		if err := checkCommonFields("sink", snk.ExternalID, snk.StakeholderKey, snk.Name); err != nil {
			return err
		}
		if !snk.Type.Valid() {
			return fmt.Errorf("%w: sink %q has unknown type %q", ErrValidation, snk.ExternalID, snk.Type)
		}
		if err := checkFilters("sink", snk.ExternalID, snk.PassthroughFilters); err != nil {
			return err
		}
	}
	return nil
}

func checkCommonFields(kind, externalID, stakeholderKey, name string) error {
	switch {
	case externalID == "":
		return fmt.Errorf("%w: the field external_id cannot be empty (%s %q)", ErrValidation, kind, name)
	case stakeholderKey == "":
		return fmt.Errorf("%w: the field stakeholder_key cannot be empty (%s %q)",
			ErrValidation, kind, externalID)
	case name == "":
		return fmt.Errorf("%w: the field name cannot be empty (%s %q)", ErrValidation, kind, externalID)
	}
	return nil
}

func checkFilters(kind, externalID string, filters []Filter) error {
	seen := make(map[string]struct{}, len(filters))
	for i := range filters {
		f := &filters[i]
		if err := f.validate(); err != nil {
			return fmt.Errorf("%v (%s %q)", err, kind, externalID)
		}
		if _, dup := seen[f.InternalName]; dup {
			return fmt.Errorf("%w: the internal_name %s is shared by atleast two filters "+
				"provided for the %s %q, it must be unique",
				ErrValidation, f.InternalName, kind, externalID)
		}
		seen[f.InternalName] = struct{}{}
	}
	return nil
}

// validateParentReferences requires every non-nil parent_external_node_id
// to resolve to another thing node of the document.
func (cs *CompleteStructure) validateParentReferences() error {
	externalIDs := make(map[string]struct{}, len(cs.ThingNodes))
	for i := range cs.ThingNodes {
		externalIDs[cs.ThingNodes[i].ExternalID] = struct{}{}
	}
	for i := range cs.ThingNodes {
		tn := &cs.ThingNodes[i]
		if tn.ParentExternalNodeID == nil {
			continue
		}
		if _, ok := externalIDs[*tn.ParentExternalNodeID]; !ok {
			return fmt.Errorf("%w: node %q has an invalid parent_external_node_id %q "+
				"that does not reference any existing thing node",
				ErrValidation, tn.Name, *tn.ParentExternalNodeID)
		}
	}
	return nil
}

// validateUniqueExternalKeys requires (stakeholder_key, external_id) to be
// unique within each of the four collections.
func (cs *CompleteStructure) validateUniqueExternalKeys() error {
	check := func(listName string, keys []externalKey) error {
		seen := make(map[externalKey]struct{}, len(keys))
		for _, k := range keys {
			if _, dup := seen[k]; dup {
				return fmt.Errorf("%w: the stakeholder key and external id pair (%s, %s) exists "+
					"at least twice in the %s list, each key-id pair must be unique within its list",
					ErrValidation, k.stakeholderKey, k.externalID, listName)
			}
			seen[k] = struct{}{}
		}
		return nil
	}

	etKeys := make([]externalKey, 0, len(cs.ElementTypes))
	for i := range cs.ElementTypes {
		etKeys = append(etKeys, externalKey{cs.ElementTypes[i].StakeholderKey, cs.ElementTypes[i].ExternalID})
	}
	if err := check("element_types", etKeys); err != nil {
		return err
	}

	tnKeys := make([]externalKey, 0, len(cs.ThingNodes))
	for i := range cs.ThingNodes {
		tnKeys = append(tnKeys, externalKey{cs.ThingNodes[i].StakeholderKey, cs.ThingNodes[i].ExternalID})
	}
	if err := check("thing_nodes", tnKeys); err != nil {
		return err
	}

	srcKeys := make([]externalKey, 0, len(cs.Sources))
	for i := range cs.Sources {
		srcKeys = append(srcKeys, externalKey{cs.Sources[i].StakeholderKey, cs.Sources[i].ExternalID})
	}
	if err := check("sources", srcKeys); err != nil {
		return err
	}

	snkKeys := make([]externalKey, 0, len(cs.Sinks))
	for i := range cs.Sinks {
		snkKeys = append(snkKeys, externalKey{cs.Sinks[i].StakeholderKey, cs.Sinks[i].ExternalID})
	}
	return check("sinks", snkKeys)
}

// validateThingNodeRefLists forbids duplicates inside a single source's or
// sink's thing_node_external_ids list.
func (cs *CompleteStructure) validateThingNodeRefLists() error {
	check := func(listName, externalID string, refs []string) error {
		seen := make(map[string]struct{}, len(refs))
		for _, ref := range refs {
			if _, dup := seen[ref]; dup {
				return fmt.Errorf("%w: the thing_node_external_ids attribute of the element "+
					"with id %s in the %s list contains at least the duplicate id %s, "+
					"each id within thing_node_external_ids must be unique",
					ErrValidation, externalID, listName, ref)
			}
			seen[ref] = struct{}{}
		}
		return nil
	}
	for i := range cs.Sources {
		if err := check("sources", cs.Sources[i].ExternalID, cs.Sources[i].ThingNodeExternalIDs); err != nil {
			return err
		}
	}
	for i := range cs.Sinks {
		if err := check("sinks", cs.Sinks[i].ExternalID, cs.Sinks[i].ThingNodeExternalIDs); err != nil {
			return err
		}
	}
	return nil
}

// validateStakeholderConsistency traverses each tree rooted at a root node
// and requires every reachable node to share the root's stakeholder_key.
func (cs *CompleteStructure) validateStakeholderConsistency() error {
	childrenByExternalID := make(map[string][]*ThingNode)
	for i := range cs.ThingNodes {
		tn := &cs.ThingNodes[i]
		if tn.ParentExternalNodeID != nil {
			childrenByExternalID[*tn.ParentExternalNodeID] = append(
				childrenByExternalID[*tn.ParentExternalNodeID], tn)
		}
	}

	for i := range cs.ThingNodes {
		root := &cs.ThingNodes[i]
		if root.ParentExternalNodeID != nil {
			continue
		}
		expected := root.StakeholderKey

		// Iterative DFS with a visited set so cycles cannot loop forever.
		stack := []*ThingNode{root}
		visited := make(map[string]struct{})
		for len(stack) > 0 {
			node := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, ok := visited[node.ExternalID]; ok {
				continue
			}
			visited[node.ExternalID] = struct{}{}
			if node.StakeholderKey != expected {
				return fmt.Errorf("%w: inconsistent stakeholder_key at node %s, expected %s, found %s",
					ErrValidation, node.ExternalID, expected, node.StakeholderKey)
			}
			stack = append(stack, childrenByExternalID[node.ExternalID]...)
		}
	}
	return nil
}

// validateNoCircularReferences walks parent chains from every node and
// fails when a chain revisits a node.
func (cs *CompleteStructure) validateNoCircularReferences() error {
	byExternalID := make(map[string]*ThingNode, len(cs.ThingNodes))
	for i := range cs.ThingNodes {
		byExternalID[cs.ThingNodes[i].ExternalID] = &cs.ThingNodes[i]
	}

	for i := range cs.ThingNodes {
		onChain := make(map[string]struct{})
		node := &cs.ThingNodes[i]
		for node != nil {
			if _, seen := onChain[node.ExternalID]; seen {
				return fmt.Errorf("%w: Circular reference detected in node %s",
					ErrValidation, node.ExternalID)
			}
			onChain[node.ExternalID] = struct{}{}
			if node.ParentExternalNodeID == nil {
				break
			}
			node = byExternalID[*node.ParentExternalNodeID]
		}
	}
	return nil
}

// validateSourceSinkReferences requires every thing_node_external_ids
// entry of every source and sink to name a thing node of the document.
func (cs *CompleteStructure) validateSourceSinkReferences() error {
	thingNodeIDs := make(map[string]struct{}, len(cs.ThingNodes))
	for i := range cs.ThingNodes {
		thingNodeIDs[cs.ThingNodes[i].ExternalID] = struct{}{}
	}
	for i := range cs.Sources {
		for _, ref := range cs.Sources[i].ThingNodeExternalIDs {
			if _, ok := thingNodeIDs[ref]; !ok {
				return fmt.Errorf("%w: source %q references non-existing thing node %q",
					ErrValidation, cs.Sources[i].ExternalID, ref)
			}
		}
	}
	for i := range cs.Sinks {
		for _, ref := range cs.Sinks[i].ThingNodeExternalIDs {
			if _, ok := thingNodeIDs[ref]; !ok {
				return fmt.Errorf("%w: sink %q references non-existing thing node %q",
					ErrValidation, cs.Sinks[i].ExternalID, ref)
			}
		}
	}
	return nil
}
