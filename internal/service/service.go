// Package service implements the catalog use cases on top of the storage
// contract: full-document updates, deletion, hierarchy browsing and
// single-entity lookups.
package service

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vstruct/vstruct/internal/storage"
	"github.com/vstruct/vstruct/internal/structure"
)

// Service executes catalog operations against a Store.
type Service struct {
	store  storage.Store
	logger *zap.Logger
}

// New returns a Service backed by store.
func New(store storage.Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// LoadFromJSONFile reads, parses and validates a complete structure from
// a JSON file on disk.
func LoadFromJSONFile(path string) (*structure.CompleteStructure, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read structure file %s: %w", path, err)
	}
	return structure.Parse(data)
}

// UpdateStructure persists a complete structure document in one
// transaction. Existing rows matching on (external_id, stakeholder_key)
// are updated in place and keep their internal UUIDs; everything else is
// inserted. Rows absent from the document are left untouched.
func (s *Service) UpdateStructure(ctx context.Context, cs *structure.CompleteStructure) error {
	// The sorter sets each node's parent_node_id from its external
	// parent reference. The sorted order itself is not needed for the
	// upsert; the conflict target is the external key.
	structure.SortThingNodes(cs.ThingNodes)

	err := s.store.RunInTransaction(ctx, func(tx storage.Tx) error {
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
	if err != nil {
		return err
	}
	s.logger.Info("structure update complete",
		zap.Int("element_types", len(cs.ElementTypes)),
		zap.Int("thing_nodes", len(cs.ThingNodes)),
		zap.Int("sources", len(cs.Sources)),
		zap.Int("sinks", len(cs.Sinks)))
	return nil
}

// DeleteStructure removes every row from all structure tables.
func (s *Service) DeleteStructure(ctx context.Context) error {
	if err := s.store.DeleteStructure(ctx); err != nil {
		return err
	}
	s.logger.Info("structure deleted")
	return nil
}

// TablesEmpty reports whether the structure tables hold no entities.
func (s *Service) TablesEmpty(ctx context.Context) (bool, error) {
	return s.store.StructureTablesEmpty(ctx)
}

// GetChildren returns the direct children of a thing node together with
// the sources and sinks attached to it. A nil parentID selects the root
// level.
func (s *Service) GetChildren(
	ctx context.Context, parentID *uuid.UUID,
) ([]structure.ThingNode, []structure.Source, []structure.Sink, error) {
	return s.store.GetChildren(ctx, parentID)
}

// ThingNodeByID fetches a single thing node by internal UUID.
func (s *Service) ThingNodeByID(ctx context.Context, id uuid.UUID) (*structure.ThingNode, error) {
	return s.store.ThingNodeByID(ctx, id)
}

// SourceByID fetches a single source by internal UUID.
func (s *Service) SourceByID(ctx context.Context, id uuid.UUID) (*structure.Source, error) {
	return s.store.SourceByID(ctx, id)
}

// SinkByID fetches a single sink by internal UUID.
func (s *Service) SinkByID(ctx context.Context, id uuid.UUID) (*structure.Sink, error) {
	return s.store.SinkByID(ctx, id)
}

// SourcesByIDs fetches sources by internal UUID; absent IDs are missing
// from the returned map.
func (s *Service) SourcesByIDs(
	ctx context.Context, ids []uuid.UUID,
) (map[uuid.UUID]structure.Source, error) {
	return s.store.SourcesByIDs(ctx, ids)
}

// SinksByIDs mirrors SourcesByIDs for sinks.
func (s *Service) SinksByIDs(
	ctx context.Context, ids []uuid.UUID,
) (map[uuid.UUID]structure.Sink, error) {
	return s.store.SinksByIDs(ctx, ids)
}

// AllSources returns every source ordered by name.
func (s *Service) AllSources(ctx context.Context) ([]structure.Source, error) {
	return s.store.AllSources(ctx)
}

// AllSinks returns every sink ordered by name.
func (s *Service) AllSinks(ctx context.Context) ([]structure.Sink, error) {
	return s.store.AllSinks(ctx)
}

// SourcesByNameSubstring returns sources whose name contains the query,
// case-insensitively.
func (s *Service) SourcesByNameSubstring(
	ctx context.Context, query string,
) ([]structure.Source, error) {
	return s.store.SourcesByNameSubstring(ctx, query)
}

// SinksByNameSubstring mirrors SourcesByNameSubstring for sinks.
func (s *Service) SinksByNameSubstring(
	ctx context.Context, query string,
) ([]structure.Sink, error) {
	return s.store.SinksByNameSubstring(ctx, query)
}
