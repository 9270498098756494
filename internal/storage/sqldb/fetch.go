package sqldb

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/vstruct/vstruct/internal/storage"
	"github.com/vstruct/vstruct/internal/structure"
)

// fetchBatchSize bounds the IN-list length of the batched lookups.
const fetchBatchSize = 500

// DeleteStructure implements storage.Store. Tables are emptied in an
// order that respects foreign keys, in one transaction.
func (s *Store) DeleteStructure(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapConnError("begin delete transaction", err)
	}
	for _, table := range []string{
		"structure_thingnode_source_association",
		"structure_thingnode_sink_association",
		"structure_source",
		"structure_sink",
		"structure_thing_node",
		"structure_element_type",
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("rollback after delete failure failed", zap.Error(rbErr))
			}
			return wrapWriteError("delete from "+table, err)
		}
		s.logger.Debug("deleted records from table", zap.String("table", table))
	}
	if err := tx.Commit(); err != nil {
		return wrapWriteError("commit structure deletion", err)
	}
	return nil
}

// StructureTablesEmpty implements storage.Store.
func (s *Store) StructureTablesEmpty(ctx context.Context) (bool, error) {
	for _, table := range []string{
		"structure_element_type",
		"structure_thing_node",
		"structure_source",
		"structure_sink",
	} {
		var exists bool
		if err := s.db.GetContext(ctx, &exists,
			"SELECT EXISTS (SELECT 1 FROM "+table+")"); err != nil {
			return false, wrapReadError("check "+table+" empty", err)
		}
		if exists {
			return false, nil
		}
	}
	return true, nil
}

// GetChildren implements storage.Store.
func (s *Store) GetChildren(
	ctx context.Context, parentID *uuid.UUID,
) ([]structure.ThingNode, []structure.Source, []structure.Sink, error) {
	if parentID == nil {
		var rows []thingNodeRow
		err := s.db.SelectContext(ctx, &rows,
			`SELECT `+thingNodeColumns+` FROM structure_thing_node WHERE parent_node_id IS NULL`)
		if err != nil {
			return nil, nil, nil, wrapReadError("fetch root thing nodes", err)
		}
		nodes := make([]structure.ThingNode, 0, len(rows))
		for _, r := range rows {
			nodes = append(nodes, r.toModel())
		}
		return nodes, []structure.Source{}, []structure.Sink{}, nil
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists,
		s.db.Rebind(`SELECT EXISTS (SELECT 1 FROM structure_thing_node WHERE id = ?)`),
		*parentID); err != nil {
		return nil, nil, nil, wrapReadError("check parent thing node", err)
	}
	if !exists {
		return nil, nil, nil, fmt.Errorf(
			"the provided ID %s has no corresponding node in the database: %w",
			*parentID, storage.ErrNotFound)
	}

	var nodeRows []thingNodeRow
	if err := s.db.SelectContext(ctx, &nodeRows,
		s.db.Rebind(`SELECT `+thingNodeColumns+` FROM structure_thing_node WHERE parent_node_id = ?`),
		*parentID); err != nil {
		return nil, nil, nil, wrapReadError("fetch child thing nodes", err)
	}
	nodes := make([]structure.ThingNode, 0, len(nodeRows))
	for _, r := range nodeRows {
		nodes = append(nodes, r.toModel())
	}

	var srcRows []sourceRow
	if err := s.db.SelectContext(ctx, &srcRows, s.db.Rebind(
		`SELECT `+prefixColumns("s", sourceColumns)+`
FROM structure_source s
JOIN structure_thingnode_source_association a ON a.source_id = s.id
WHERE a.thingnode_id = ?`), *parentID); err != nil {
		return nil, nil, nil, wrapReadError("fetch sources of thing node", err)
	}
	sources := make([]structure.Source, 0, len(srcRows))
	for _, r := range srcRows {
		sources = append(sources, r.toModel())
	}

	var snkRows []sinkRow
	if err := s.db.SelectContext(ctx, &snkRows, s.db.Rebind(
		`SELECT `+prefixColumns("s", sinkColumns)+`
FROM structure_sink s
JOIN structure_thingnode_sink_association a ON a.sink_id = s.id
WHERE a.thingnode_id = ?`), *parentID); err != nil {
		return nil, nil, nil, wrapReadError("fetch sinks of thing node", err)
	}
	sinks := make([]structure.Sink, 0, len(snkRows))
	for _, r := range snkRows {
		sinks = append(sinks, r.toModel())
	}

	return nodes, sources, sinks, nil
}

// prefixColumns qualifies a comma-separated column list with a table
// alias for join queries.
func prefixColumns(alias, columns string) string {
	cols := strings.Split(columns, ",")
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, alias+"."+strings.TrimSpace(c))
	}
	return strings.Join(parts, ", ")
}

// ThingNodeByID implements storage.Store.
func (s *Store) ThingNodeByID(ctx context.Context, id uuid.UUID) (*structure.ThingNode, error) {
	var r thingNodeRow
	err := s.db.GetContext(ctx, &r,
		s.db.Rebind(`SELECT `+thingNodeColumns+` FROM structure_thing_node WHERE id = ?`), id)
	if err != nil {
		return nil, wrapReadError(fmt.Sprintf("fetch thing node %s", id), err)
	}
	m := r.toModel()
	return &m, nil
}

// SourceByID implements storage.Store.
func (s *Store) SourceByID(ctx context.Context, id uuid.UUID) (*structure.Source, error) {
	var r sourceRow
	err := s.db.GetContext(ctx, &r,
		s.db.Rebind(`SELECT `+sourceColumns+` FROM structure_source WHERE id = ?`), id)
	if err != nil {
		return nil, wrapReadError(fmt.Sprintf("fetch source %s", id), err)
	}
	m := r.toModel()
	return &m, nil
}

// SinkByID implements storage.Store.
func (s *Store) SinkByID(ctx context.Context, id uuid.UUID) (*structure.Sink, error) {
	var r sinkRow
	err := s.db.GetContext(ctx, &r,
		s.db.Rebind(`SELECT `+sinkColumns+` FROM structure_sink WHERE id = ?`), id)
	if err != nil {
		return nil, wrapReadError(fmt.Sprintf("fetch sink %s", id), err)
	}
	m := r.toModel()
	return &m, nil
}

// SourcesByIDs implements storage.Store.
func (s *Store) SourcesByIDs(
	ctx context.Context, ids []uuid.UUID,
) (map[uuid.UUID]structure.Source, error) {
	result := make(map[uuid.UUID]structure.Source, len(ids))
	for batch := range batches(ids, fetchBatchSize) {
		query, args, err := sqlx.In(
			`SELECT `+sourceColumns+` FROM structure_source WHERE id IN (?)`, batch)
		if err != nil {
			return nil, wrapReadError("build source batch query", err)
		}
		var rows []sourceRow
		if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
			return nil, wrapReadError("fetch sources by ids", err)
		}
		for _, r := range rows {
			m := r.toModel()
			result[m.ID] = m
		}
	}
	return result, nil
}

// SinksByIDs implements storage.Store.
func (s *Store) SinksByIDs(
	ctx context.Context, ids []uuid.UUID,
) (map[uuid.UUID]structure.Sink, error) {
	result := make(map[uuid.UUID]structure.Sink, len(ids))
	for batch := range batches(ids, fetchBatchSize) {
		query, args, err := sqlx.In(
			`SELECT `+sinkColumns+` FROM structure_sink WHERE id IN (?)`, batch)
		if err != nil {
			return nil, wrapReadError("build sink batch query", err)
		}
		var rows []sinkRow
		if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
			return nil, wrapReadError("fetch sinks by ids", err)
		}
		for _, r := range rows {
			m := r.toModel()
			result[m.ID] = m
		}
	}
	return result, nil
}

// AllSources implements storage.Store.
func (s *Store) AllSources(ctx context.Context) ([]structure.Source, error) {
	var rows []sourceRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT `+sourceColumns+` FROM structure_source ORDER BY name`); err != nil {
		return nil, wrapReadError("fetch all sources", err)
	}
	sources := make([]structure.Source, 0, len(rows))
	for _, r := range rows {
		sources = append(sources, r.toModel())
	}
	return sources, nil
}

// AllSinks implements storage.Store.
func (s *Store) AllSinks(ctx context.Context) ([]structure.Sink, error) {
	var rows []sinkRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT `+sinkColumns+` FROM structure_sink ORDER BY name`); err != nil {
		return nil, wrapReadError("fetch all sinks", err)
	}
	sinks := make([]structure.Sink, 0, len(rows))
	for _, r := range rows {
		sinks = append(sinks, r.toModel())
	}
	return sinks, nil
}

// SourcesByNameSubstring implements storage.Store.
func (s *Store) SourcesByNameSubstring(
	ctx context.Context, query string,
) ([]structure.Source, error) {
	var rows []sourceRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
		`SELECT `+sourceColumns+` FROM structure_source
WHERE lower(name) LIKE '%' || lower(?) || '%'`), query); err != nil {
		return nil, wrapReadError("search sources by name", err)
	}
	sources := make([]structure.Source, 0, len(rows))
	for _, r := range rows {
		sources = append(sources, r.toModel())
	}
	return sources, nil
}

// SinksByNameSubstring implements storage.Store.
func (s *Store) SinksByNameSubstring(
	ctx context.Context, query string,
) ([]structure.Sink, error) {
	var rows []sinkRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
		`SELECT `+sinkColumns+` FROM structure_sink
WHERE lower(name) LIKE '%' || lower(?) || '%'`), query); err != nil {
		return nil, wrapReadError("search sinks by name", err)
	}
	sinks := make([]structure.Sink, 0, len(rows))
	for _, r := range rows {
		sinks = append(sinks, r.toModel())
	}
	return sinks, nil
}

// batches yields the ids in chunks of at most size elements.
func batches(ids []uuid.UUID, size int) func(func([]uuid.UUID) bool) {
	return func(yield func([]uuid.UUID) bool) {
		for start := 0; start < len(ids); start += size {
			end := min(start+size, len(ids))
			if !yield(ids[start:end]) {
				return
			}
		}
	}
}
