package structure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

// validTree returns a two-level structure that passes validation.
func validTree() *CompleteStructure {
	cs := &CompleteStructure{
		ElementTypes: []ElementType{
			{ExternalID: "et-plant", StakeholderKey: "WW", Name: "Plant"},
			{ExternalID: "et-tank", StakeholderKey: "WW", Name: "Storage Tank"},
		},
		ThingNodes: []ThingNode{
			{ExternalID: "plant-1", StakeholderKey: "WW", Name: "Waterworks 1",
				ElementTypeExternalID: "et-plant"},
			{ExternalID: "tank-1", StakeholderKey: "WW", Name: "Storage Tank 1",
				ParentExternalNodeID: strPtr("plant-1"), ElementTypeExternalID: "et-tank"},
		},
		Sources: []Source{
			{ExternalID: "src-1", StakeholderKey: "WW", Name: "Energy usage",
				Type: TypeTimeseriesFloat, Visible: true, DisplayPath: "Waterworks 1",
				AdapterKey: "demo-adapter", SourceID: "b-100", RefID: "b-100",
				ThingNodeExternalIDs: []string{"tank-1"}},
		},
		Sinks: []Sink{
			{ExternalID: "snk-1", StakeholderKey: "WW", Name: "Anomaly score",
				Type: TypeTimeseriesFloat, Visible: true, DisplayPath: "Waterworks 1",
				AdapterKey: "demo-adapter", SinkID: "b-200", RefID: "b-200",
				ThingNodeExternalIDs: []string{"tank-1"}},
		},
	}
	cs.normalize()
	return cs
}

func TestValidateAcceptsValidTree(t *testing.T) {
	require.NoError(t, validTree().Validate())
}

func TestValidateRejections(t *testing.T) {
	t.Run("empty external_id", func(t *testing.T) {
		cs := validTree()
		cs.ThingNodes[0].ExternalID = ""
		err := cs.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Contains(t, err.Error(), "external_id cannot be empty")
	})

	t.Run("empty stakeholder_key", func(t *testing.T) {
		cs := validTree()
		cs.Sources[0].StakeholderKey = ""
		require.ErrorContains(t, cs.Validate(), "stakeholder_key cannot be empty")
	})

	t.Run("no element types", func(t *testing.T) {
		cs := validTree()
		cs.ElementTypes = nil
		cs.ThingNodes = nil
		cs.Sources = nil
		cs.Sinks = nil
		require.ErrorContains(t, cs.Validate(), "at least one element type")
	})

	t.Run("unknown source type", func(t *testing.T) {
		cs := validTree()
		cs.Sources[0].Type = "timeseries(complex)"
		require.ErrorContains(t, cs.Validate(), "unknown type")
	})

	t.Run("unresolvable parent reference", func(t *testing.T) {
		cs := validTree()
		cs.ThingNodes[1].ParentExternalNodeID = strPtr("missing-node")
		require.ErrorContains(t, cs.Validate(),
			"does not reference any existing thing node")
	})

	t.Run("duplicate external key pair", func(t *testing.T) {
		cs := validTree()
		cs.ThingNodes = append(cs.ThingNodes, ThingNode{
			ExternalID: "tank-1", StakeholderKey: "WW", Name: "Duplicate tank",
			ParentExternalNodeID: strPtr("plant-1"), ElementTypeExternalID: "et-tank",
		})
		cs.normalize()
		require.ErrorContains(t, cs.Validate(), "exists at least twice in the thing_nodes list")
	})

	t.Run("duplicate entry in thing_node_external_ids", func(t *testing.T) {
		cs := validTree()
		cs.Sources[0].ThingNodeExternalIDs = []string{"tank-1", "tank-1"}
		require.ErrorContains(t, cs.Validate(), "duplicate id tank-1")
	})

	t.Run("inconsistent stakeholder key in subtree", func(t *testing.T) {
		cs := validTree()
		cs.ThingNodes[1].StakeholderKey = "OTHER"
		// Keep the external key lists valid; only the hierarchy check
		// should fire.
		cs.Sources[0].ThingNodeExternalIDs = nil
		cs.Sinks[0].ThingNodeExternalIDs = nil
		err := cs.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "inconsistent stakeholder_key at node tank-1")
	})

	t.Run("circular parent chain", func(t *testing.T) {
		cs := validTree()
		cs.ThingNodes[0].ParentExternalNodeID = strPtr("tank-1")
		err := cs.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Circular reference detected")
	})

	t.Run("self referencing node", func(t *testing.T) {
		cs := validTree()
		cs.ThingNodes[0].ParentExternalNodeID = strPtr("plant-1")
		err := cs.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Circular reference detected in node plant-1")
	})

	t.Run("source references missing thing node", func(t *testing.T) {
		cs := validTree()
		cs.Sources[0].ThingNodeExternalIDs = []string{"no-such-node"}
		require.ErrorContains(t, cs.Validate(), "references non-existing thing node")
	})

	t.Run("sink references missing thing node", func(t *testing.T) {
		cs := validTree()
		cs.Sinks[0].ThingNodeExternalIDs = []string{"no-such-node"}
		require.ErrorContains(t, cs.Validate(), "references non-existing thing node")
	})

	t.Run("duplicate filter internal names", func(t *testing.T) {
		cs := validTree()
		cs.Sources[0].PassthroughFilters = []Filter{
			{Name: "Upper Threshold", Type: FilterTypeFreeText},
			{Name: "upper threshold", Type: FilterTypeFreeText},
		}
		cs.normalize()
		require.ErrorContains(t, cs.Validate(), "shared by atleast two filters")
	})
}
