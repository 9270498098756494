package sqldb

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/vstruct/vstruct/internal/storage"
	"github.com/vstruct/vstruct/internal/structure"
)

// sqlTx implements storage.Tx on one open transaction.
type sqlTx struct {
	tx     *sqlx.Tx
	logger *zap.Logger
}

// RunInTransaction implements storage.Store.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapConnError("begin transaction", err)
	}
	t := &sqlTx{tx: tx, logger: s.logger}
	if err := fn(t); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("transaction rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrapWriteError("commit transaction", err)
	}
	return nil
}

// valuesPlaceholders renders "(?, …), (?, …)" for nRows rows of nCols
// columns each; Rebind translates the markers per dialect.
func valuesPlaceholders(nCols, nRows int) string {
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", nCols), ", ") + ")"
	rows := make([]string, nRows)
	for i := range rows {
		rows[i] = row
	}
	return strings.Join(rows, ",\n       ")
}

const elementTypeColumns = "id, external_id, stakeholder_key, name, description"

// UpsertElementTypes implements storage.Tx.
func (t *sqlTx) UpsertElementTypes(
	ctx context.Context, elementTypes []structure.ElementType,
) (map[storage.ExternalKey]structure.ElementType, error) {
	result := make(map[storage.ExternalKey]structure.ElementType, len(elementTypes))
	if len(elementTypes) == 0 {
		return result, nil
	}

	args := make([]any, 0, len(elementTypes)*5)
	for i := range elementTypes {
		et := &elementTypes[i]
		args = append(args, et.ID, et.ExternalID, et.StakeholderKey, et.Name, nullString(et.Description))
	}

	query := `INSERT INTO structure_element_type (` + elementTypeColumns + `)
VALUES ` + valuesPlaceholders(5, len(elementTypes)) + `
ON CONFLICT (external_id, stakeholder_key) DO UPDATE SET
    name = excluded.name,
    description = excluded.description
RETURNING ` + elementTypeColumns

	rows, err := t.tx.QueryxContext(ctx, t.tx.Rebind(query), args...)
	if err != nil {
		return nil, wrapWriteError("upsert element types", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r elementTypeRow
		if err := rows.StructScan(&r); err != nil {
			return nil, wrapWriteError("scan upserted element type", err)
		}
		m := r.toModel()
		result[storage.ExternalKey{StakeholderKey: m.StakeholderKey, ExternalID: m.ExternalID}] = m
	}
	if err := rows.Err(); err != nil {
		return nil, wrapWriteError("upsert element types", err)
	}
	t.logger.Debug("upserted element types", zap.Int("count", len(result)))
	return result, nil
}

const thingNodeColumns = "id, external_id, stakeholder_key, name, description, " +
	"parent_external_node_id, parent_node_id, element_type_external_id, element_type_id, meta_data"

// UpsertThingNodes implements storage.Tx. Rows are inserted with a NULL
// parent pointer; the pointer is rewritten afterwards against the
// returned row set, once every node's post-upsert UUID is known.
func (t *sqlTx) UpsertThingNodes(
	ctx context.Context,
	thingNodes []structure.ThingNode,
	elementTypes map[storage.ExternalKey]structure.ElementType,
) (map[storage.ExternalKey]structure.ThingNode, error) {
	result := make(map[storage.ExternalKey]structure.ThingNode, len(thingNodes))

	args := make([]any, 0, len(thingNodes)*10)
	included := 0
	for i := range thingNodes {
		tn := &thingNodes[i]
		et, ok := elementTypes[storage.ExternalKey{StakeholderKey: tn.StakeholderKey, ExternalID: tn.ElementTypeExternalID}]
		if !ok {
			// Validation guarantees the reference resolves inside one
			// document; this only fires when the element type list was
			// filtered upstream.
			t.logger.Warn("element type not found for thing node, skipping",
				zap.String("thing_node", tn.ExternalID),
				zap.String("element_type_external_id", tn.ElementTypeExternalID))
			continue
		}
		included++
		args = append(args,
			tn.ID, tn.ExternalID, tn.StakeholderKey, tn.Name, nullString(tn.Description),
			nullStringPtr(tn.ParentExternalNodeID), nil,
			tn.ElementTypeExternalID, et.ID, jsonRaw(tn.MetaData))
	}
	if included == 0 {
		return result, nil
	}

	query := `INSERT INTO structure_thing_node (` + thingNodeColumns + `)
VALUES ` + valuesPlaceholders(10, included) + `
ON CONFLICT (external_id, stakeholder_key) DO UPDATE SET
    name = excluded.name,
    description = excluded.description,
    parent_external_node_id = excluded.parent_external_node_id,
    element_type_external_id = excluded.element_type_external_id,
    element_type_id = excluded.element_type_id,
    meta_data = excluded.meta_data
RETURNING ` + thingNodeColumns

	rows, err := t.tx.QueryxContext(ctx, t.tx.Rebind(query), args...)
	if err != nil {
		return nil, wrapWriteError("upsert thing nodes", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r thingNodeRow
		if err := rows.StructScan(&r); err != nil {
			return nil, wrapWriteError("scan upserted thing node", err)
		}
		m := r.toModel()
		result[storage.ExternalKey{StakeholderKey: m.StakeholderKey, ExternalID: m.ExternalID}] = m
	}
	if err := rows.Err(); err != nil {
		return nil, wrapWriteError("upsert thing nodes", err)
	}

	if err := t.rewriteParentPointers(ctx, result); err != nil {
		return nil, err
	}
	t.logger.Debug("upserted thing nodes", zap.Int("count", len(result)))
	return result, nil
}

// rewriteParentPointers sets parent_node_id for every returned node whose
// parent_external_node_id resolves inside the returned set. Unresolvable
// references are skipped; validation already rejected real orphans.
func (t *sqlTx) rewriteParentPointers(
	ctx context.Context, thingNodes map[storage.ExternalKey]structure.ThingNode,
) error {
	update := t.tx.Rebind(`UPDATE structure_thing_node SET parent_node_id = ? WHERE id = ?`)
	for key, tn := range thingNodes {
		if tn.ParentExternalNodeID == nil {
			continue
		}
		parent, ok := thingNodes[storage.ExternalKey{
			StakeholderKey: tn.StakeholderKey,
			ExternalID:     *tn.ParentExternalNodeID,
		}]
		if !ok {
			continue
		}
		if _, err := t.tx.ExecContext(ctx, update, parent.ID, tn.ID); err != nil {
			return wrapWriteError("rewrite parent pointer", err)
		}
		parentID := parent.ID
		tn.ParentNodeID = &parentID
		thingNodes[key] = tn
	}
	return nil
}

const sourceColumns = "id, external_id, stakeholder_key, name, type, visible, display_path, " +
	"adapter_key, source_id, ref_key, ref_id, meta_data, preset_filters, passthrough_filters, " +
	"thing_node_external_ids"

// UpsertSources implements storage.Tx.
func (t *sqlTx) UpsertSources(
	ctx context.Context,
	sources []structure.Source,
	thingNodes map[storage.ExternalKey]structure.ThingNode,
) error {
	if len(sources) == 0 {
		return nil
	}

	args := make([]any, 0, len(sources)*15)
	for i := range sources {
		src := &sources[i]
		args = append(args,
			src.ID, src.ExternalID, src.StakeholderKey, src.Name, string(src.Type), src.Visible,
			src.DisplayPath, src.AdapterKey, src.SourceID, nullStringPtr(src.RefKey), src.RefID,
			jsonRaw(src.MetaData), jsonMap(src.PresetFilters), jsonFilters(src.PassthroughFilters),
			jsonStrings(src.ThingNodeExternalIDs))
	}

	query := `INSERT INTO structure_source (` + sourceColumns + `)
VALUES ` + valuesPlaceholders(15, len(sources)) + `
ON CONFLICT (external_id, stakeholder_key) DO UPDATE SET
    name = excluded.name,
    type = excluded.type,
    visible = excluded.visible,
    display_path = excluded.display_path,
    adapter_key = excluded.adapter_key,
    source_id = excluded.source_id,
    ref_key = excluded.ref_key,
    ref_id = excluded.ref_id,
    meta_data = excluded.meta_data,
    preset_filters = excluded.preset_filters,
    passthrough_filters = excluded.passthrough_filters,
    thing_node_external_ids = excluded.thing_node_external_ids
RETURNING ` + sourceColumns

	rows, err := t.tx.QueryxContext(ctx, t.tx.Rebind(query), args...)
	if err != nil {
		return wrapWriteError("upsert sources", err)
	}
	defer rows.Close()
	var upserted []structure.Source
	for rows.Next() {
		var r sourceRow
		if err := rows.StructScan(&r); err != nil {
			return wrapWriteError("scan upserted source", err)
		}
		upserted = append(upserted, r.toModel())
	}
	if err := rows.Err(); err != nil {
		return wrapWriteError("upsert sources", err)
	}

	for i := range upserted {
		if err := t.rebuildSourceAssociations(ctx, &upserted[i], thingNodes); err != nil {
			return err
		}
	}
	t.logger.Debug("upserted sources", zap.Int("count", len(upserted)))
	return nil
}

const sinkColumns = "id, external_id, stakeholder_key, name, type, visible, display_path, " +
	"adapter_key, sink_id, ref_key, ref_id, meta_data, preset_filters, passthrough_filters, " +
	"thing_node_external_ids"

// UpsertSinks implements storage.Tx.
func (t *sqlTx) UpsertSinks(
	ctx context.Context,
	sinks []structure.Sink,
	thingNodes map[storage.ExternalKey]structure.ThingNode,
) error {
	if len(sinks) == 0 {
		return nil
	}

	args := make([]any, 0, len(sinks)*15)
	for i := range sinks {
		snk := &sinks[i]
		args = append(args,
			snk.ID, snk.ExternalID, snk.StakeholderKey, snk.Name, string(snk.Type), snk.Visible,
			snk.DisplayPath, snk.AdapterKey, snk.SinkID, nullStringPtr(snk.RefKey), snk.RefID,
			jsonRaw(snk.MetaData), jsonMap(snk.PresetFilters), jsonFilters(snk.PassthroughFilters),
			jsonStrings(snk.ThingNodeExternalIDs))
	}

	query := `INSERT INTO structure_sink (` + sinkColumns + `)
VALUES ` + valuesPlaceholders(15, len(sinks)) + `
ON CONFLICT (external_id, stakeholder_key) DO UPDATE SET
    name = excluded.name,
    type = excluded.type,
    visible = excluded.visible,
    display_path = excluded.display_path,
    adapter_key = excluded.adapter_key,
    sink_id = excluded.sink_id,
    ref_key = excluded.ref_key,
    ref_id = excluded.ref_id,
    meta_data = excluded.meta_data,
    preset_filters = excluded.preset_filters,
    passthrough_filters = excluded.passthrough_filters,
    thing_node_external_ids = excluded.thing_node_external_ids
RETURNING ` + sinkColumns

	rows, err := t.tx.QueryxContext(ctx, t.tx.Rebind(query), args...)
	if err != nil {
		return wrapWriteError("upsert sinks", err)
	}
	defer rows.Close()
	var upserted []structure.Sink
	for rows.Next() {
		var r sinkRow
		if err := rows.StructScan(&r); err != nil {
			return wrapWriteError("scan upserted sink", err)
		}
		upserted = append(upserted, r.toModel())
	}
	if err := rows.Err(); err != nil {
		return wrapWriteError("upsert sinks", err)
	}

	for i := range upserted {
		if err := t.rebuildSinkAssociations(ctx, &upserted[i], thingNodes); err != nil {
			return err
		}
	}
	t.logger.Debug("upserted sinks", zap.Int("count", len(upserted)))
	return nil
}

// rebuildSourceAssociations replaces the source's link set with the
// resolution of thing_node_external_ids against the upserted node map.
// References that do not resolve are dropped here; validation already
// rejected documents where that could happen.
func (t *sqlTx) rebuildSourceAssociations(
	ctx context.Context,
	src *structure.Source,
	thingNodes map[storage.ExternalKey]structure.ThingNode,
) error {
	if _, err := t.tx.ExecContext(ctx,
		t.tx.Rebind(`DELETE FROM structure_thingnode_source_association WHERE source_id = ?`),
		src.ID); err != nil {
		return wrapAssociationError("clear source associations", err)
	}
	insert := t.tx.Rebind(`INSERT INTO structure_thingnode_source_association (thingnode_id, source_id) VALUES (?, ?)`)
	for _, ref := range src.ThingNodeExternalIDs {
		tn, ok := thingNodes[storage.ExternalKey{StakeholderKey: src.StakeholderKey, ExternalID: ref}]
		if !ok {
			continue
		}
		if _, err := t.tx.ExecContext(ctx, insert, tn.ID, src.ID); err != nil {
			return wrapAssociationError("link source to thing node", err)
		}
	}
	return nil
}

// rebuildSinkAssociations mirrors rebuildSourceAssociations.
func (t *sqlTx) rebuildSinkAssociations(
	ctx context.Context,
	snk *structure.Sink,
	thingNodes map[storage.ExternalKey]structure.ThingNode,
) error {
	if _, err := t.tx.ExecContext(ctx,
		t.tx.Rebind(`DELETE FROM structure_thingnode_sink_association WHERE sink_id = ?`),
		snk.ID); err != nil {
		return wrapAssociationError("clear sink associations", err)
	}
	insert := t.tx.Rebind(`INSERT INTO structure_thingnode_sink_association (thingnode_id, sink_id) VALUES (?, ?)`)
	for _, ref := range snk.ThingNodeExternalIDs {
		tn, ok := thingNodes[storage.ExternalKey{StakeholderKey: snk.StakeholderKey, ExternalID: ref}]
		if !ok {
			continue
		}
		if _, err := t.tx.ExecContext(ctx, insert, tn.ID, snk.ID); err != nil {
			return wrapAssociationError("link sink to thing node", err)
		}
	}
	return nil
}
