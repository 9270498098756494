package sqldb

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vstruct/vstruct/internal/storage"
	"github.com/vstruct/vstruct/internal/structure"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Dialect: DialectSQLite, DSN: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

const testDoc = `{
	"element_types": [
		{"external_id": "et-plant", "stakeholder_key": "WW", "name": "Plant"},
		{"external_id": "et-tank", "stakeholder_key": "WW", "name": "Storage Tank"}
	],
	"thing_nodes": [
		{"external_id": "plant-1", "stakeholder_key": "WW", "name": "Waterworks 1",
		 "element_type_external_id": "et-plant"},
		{"external_id": "tank-1", "stakeholder_key": "WW", "name": "Storage Tank 1",
		 "parent_external_node_id": "plant-1", "element_type_external_id": "et-tank"},
		{"external_id": "tank-2", "stakeholder_key": "WW", "name": "Storage Tank 2",
		 "parent_external_node_id": "plant-1", "element_type_external_id": "et-tank"}
	],
	"sources": [
		{"external_id": "src-1", "stakeholder_key": "WW", "name": "Energy usage",
		 "type": "timeseries(float)", "display_path": "Waterworks 1",
		 "adapter_key": "demo-adapter", "source_id": "b-100", "ref_id": "b-100",
		 "preset_filters": {"metric": "energy"},
		 "passthrough_filters": [{"name": "Upper Threshold", "type": "free_text", "required": false}],
		 "thing_node_external_ids": ["tank-1"]}
	],
	"sinks": [
		{"external_id": "snk-1", "stakeholder_key": "WW", "name": "Anomaly score",
		 "type": "timeseries(float)", "display_path": "Waterworks 1",
		 "adapter_key": "demo-adapter", "sink_id": "b-200", "ref_id": "b-200",
		 "thing_node_external_ids": ["tank-1"]}
	]
}`

func upsertDocument(t *testing.T, s *Store, doc string) *structure.CompleteStructure {
	t.Helper()
	cs, err := structure.Parse([]byte(doc))
	require.NoError(t, err)
	structure.SortThingNodes(cs.ThingNodes)

	ctx := context.Background()
	err = s.RunInTransaction(ctx, func(tx storage.Tx) error {
		elementTypes, err := tx.UpsertElementTypes(ctx, cs.ElementTypes)
		if err != nil {
			return err
		}
		thingNodes, err := tx.UpsertThingNodes(ctx, cs.ThingNodes, elementTypes)
		if err != nil {
			return err
		}
		if err := tx.UpsertSources(ctx, cs.Sources, thingNodes); err != nil {
			return err
		}
		return tx.UpsertSinks(ctx, cs.Sinks, thingNodes)
	})
	require.NoError(t, err)
	return cs
}

func findNode(t *testing.T, s *Store, parentID *uuid.UUID, name string) structure.ThingNode {
	t.Helper()
	nodes, _, _, err := s.GetChildren(context.Background(), parentID)
	require.NoError(t, err)
	for _, tn := range nodes {
		if tn.Name == name {
			return tn
		}
	}
	t.Fatalf("node %q not found", name)
	return structure.ThingNode{}
}

func TestStoreRoundTrip(t *testing.T) {
	s := openTestStore(t)
	upsertDocument(t, s, testDoc)
	ctx := context.Background()

	roots, sources, sinks, err := s.GetChildren(ctx, nil)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "Waterworks 1", roots[0].Name)
	assert.Nil(t, roots[0].ParentNodeID)
	assert.Empty(t, sources)
	assert.Empty(t, sinks)

	tanks, _, _, err := s.GetChildren(ctx, &roots[0].ID)
	require.NoError(t, err)
	require.Len(t, tanks, 2)
	for _, tank := range tanks {
		require.NotNil(t, tank.ParentNodeID)
		assert.Equal(t, roots[0].ID, *tank.ParentNodeID)
	}

	tank1 := findNode(t, s, &roots[0].ID, "Storage Tank 1")
	leafNodes, leafSources, leafSinks, err := s.GetChildren(ctx, &tank1.ID)
	require.NoError(t, err)
	assert.Empty(t, leafNodes)
	require.Len(t, leafSources, 1)
	require.Len(t, leafSinks, 1)
	assert.Equal(t, "Energy usage", leafSources[0].Name)
	assert.Equal(t, map[string]any{"metric": "energy"}, leafSources[0].PresetFilters)
	require.Len(t, leafSources[0].PassthroughFilters, 1)
	assert.Equal(t, "upper_threshold", leafSources[0].PassthroughFilters[0].InternalName)
	assert.Equal(t, "Anomaly score", leafSinks[0].Name)
}

func TestStoreIdempotence(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	upsertDocument(t, s, testDoc)
	roots, _, _, err := s.GetChildren(ctx, nil)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	firstRootID := roots[0].ID
	firstTankID := findNode(t, s, &firstRootID, "Storage Tank 1").ID

	// Same document again; internal UUIDs must survive.
	upsertDocument(t, s, testDoc)
	roots, _, _, err = s.GetChildren(ctx, nil)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, firstRootID, roots[0].ID)
	assert.Equal(t, firstTankID, findNode(t, s, &roots[0].ID, "Storage Tank 1").ID)

	tanks, _, _, err := s.GetChildren(ctx, &roots[0].ID)
	require.NoError(t, err)
	assert.Len(t, tanks, 2)
}

func TestStoreGetChildrenUnknownParent(t *testing.T) {
	s := openTestStore(t)
	upsertDocument(t, s, testDoc)

	unknown := uuid.New()
	_, _, _, err := s.GetChildren(context.Background(), &unknown)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStoreSingleFetches(t *testing.T) {
	s := openTestStore(t)
	upsertDocument(t, s, testDoc)
	ctx := context.Background()

	roots, _, _, err := s.GetChildren(ctx, nil)
	require.NoError(t, err)
	tank := findNode(t, s, &roots[0].ID, "Storage Tank 1")
	_, srcs, snks, err := s.GetChildren(ctx, &tank.ID)
	require.NoError(t, err)
	require.Len(t, srcs, 1)
	require.Len(t, snks, 1)

	t.Run("thing node by id", func(t *testing.T) {
		tn, err := s.ThingNodeByID(ctx, tank.ID)
		require.NoError(t, err)
		assert.Equal(t, tank.Name, tn.Name)
	})

	t.Run("source by id", func(t *testing.T) {
		src, err := s.SourceByID(ctx, srcs[0].ID)
		require.NoError(t, err)
		assert.Equal(t, "Energy usage", src.Name)
	})

	t.Run("sink by id", func(t *testing.T) {
		snk, err := s.SinkByID(ctx, snks[0].ID)
		require.NoError(t, err)
		assert.Equal(t, "Anomaly score", snk.Name)
	})

	t.Run("missing id yields not found", func(t *testing.T) {
		_, err := s.ThingNodeByID(ctx, uuid.New())
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.SourceByID(ctx, uuid.New())
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.SinkByID(ctx, uuid.New())
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("batched fetch", func(t *testing.T) {
		missing := uuid.New()
		sourceMap, err := s.SourcesByIDs(ctx, []uuid.UUID{srcs[0].ID, missing})
		require.NoError(t, err)
		require.Len(t, sourceMap, 1)
		assert.Contains(t, sourceMap, srcs[0].ID)

		sinkMap, err := s.SinksByIDs(ctx, []uuid.UUID{snks[0].ID})
		require.NoError(t, err)
		assert.Len(t, sinkMap, 1)
	})
}

func TestStoreSubstringSearch(t *testing.T) {
	s := openTestStore(t)
	upsertDocument(t, s, testDoc)
	ctx := context.Background()

	t.Run("case insensitive match", func(t *testing.T) {
		srcs, err := s.SourcesByNameSubstring(ctx, "ENERGY")
		require.NoError(t, err)
		require.Len(t, srcs, 1)
		assert.Equal(t, "Energy usage", srcs[0].Name)
	})

	t.Run("no match", func(t *testing.T) {
		srcs, err := s.SourcesByNameSubstring(ctx, "pressure")
		require.NoError(t, err)
		assert.Empty(t, srcs)
	})

	t.Run("sink search", func(t *testing.T) {
		snks, err := s.SinksByNameSubstring(ctx, "anomaly")
		require.NoError(t, err)
		assert.Len(t, snks, 1)
	})
}

func TestStoreDeleteAndEmpty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	empty, err := s.StructureTablesEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	upsertDocument(t, s, testDoc)
	empty, err = s.StructureTablesEmpty(ctx)
	require.NoError(t, err)
	assert.False(t, empty)

	require.NoError(t, s.DeleteStructure(ctx))
	empty, err = s.StructureTablesEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	roots, _, _, err := s.GetChildren(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, roots)
}

func TestStoreAllSourcesAndSinks(t *testing.T) {
	s := openTestStore(t)
	upsertDocument(t, s, testDoc)
	ctx := context.Background()

	srcs, err := s.AllSources(ctx)
	require.NoError(t, err)
	assert.Len(t, srcs, 1)

	snks, err := s.AllSinks(ctx)
	require.NoError(t, err)
	assert.Len(t, snks, 1)
}

func TestOpenRejectsUnknownDialect(t *testing.T) {
	_, err := Open(Config{Dialect: "oracle", DSN: "x"}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database dialect")
}
