// Package storage defines the interface for catalog storage backends and
// the sentinel error taxonomy they surface.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/vstruct/vstruct/internal/structure"
)

// Sentinel errors surfaced by storage backends. Callers branch with
// errors.Is; the wrapped chain keeps the driver error for logging.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrIntegrity indicates a unique or foreign key violation.
	ErrIntegrity = errors.New("integrity violation")

	// ErrConnection indicates the database is unreachable.
	ErrConnection = errors.New("database connection error")

	// ErrAssociation indicates the thing node association rebuild failed.
	ErrAssociation = errors.New("association error")

	// ErrUpdate is the catch-all for non-integrity write failures.
	ErrUpdate = errors.New("update error")
)

// ExternalKey is the author-controlled identity on which upserts match.
type ExternalKey struct {
	StakeholderKey string
	ExternalID     string
}

// Tx exposes the write operations that run inside one structure-update
// transaction. The upserts return post-upsert rows keyed by external
// identity so dependents can bind to the stable internal UUIDs.
type Tx interface {
	// UpsertElementTypes bulk-upserts element types keyed on
	// (external_id, stakeholder_key) and returns the post-upsert rows.
	UpsertElementTypes(ctx context.Context, elementTypes []structure.ElementType) (map[ExternalKey]structure.ElementType, error)

	// UpsertThingNodes bulk-upserts thing nodes, rewrites their
	// element_type_id and parent_node_id against the given element type
	// map and the returned row set, and returns the post-upsert rows.
	UpsertThingNodes(ctx context.Context, thingNodes []structure.ThingNode, elementTypes map[ExternalKey]structure.ElementType) (map[ExternalKey]structure.ThingNode, error)

	// UpsertSources bulk-upserts sources and rebuilds their thing node
	// associations against the given thing node map.
	UpsertSources(ctx context.Context, sources []structure.Source, thingNodes map[ExternalKey]structure.ThingNode) error

	// UpsertSinks mirrors UpsertSources for sinks.
	UpsertSinks(ctx context.Context, sinks []structure.Sink, thingNodes map[ExternalKey]structure.ThingNode) error
}

// Store is the persistence contract of the structure service.
type Store interface {
	// RunInTransaction executes fn inside a single transaction. A nil
	// return from fn commits; any error rolls back and is returned.
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error

	// DeleteStructure empties all six structure tables in an order that
	// respects foreign keys, as one transaction.
	DeleteStructure(ctx context.Context) error

	// StructureTablesEmpty reports whether all four entity tables hold
	// no rows.
	StructureTablesEmpty(ctx context.Context) (bool, error)

	// GetChildren returns the direct child thing nodes of parentID plus
	// the sources and sinks attached to that node. A nil parentID
	// returns root nodes and empty source/sink lists. A parentID with
	// no matching node yields ErrNotFound.
	GetChildren(ctx context.Context, parentID *uuid.UUID) ([]structure.ThingNode, []structure.Source, []structure.Sink, error)

	ThingNodeByID(ctx context.Context, id uuid.UUID) (*structure.ThingNode, error)
	SourceByID(ctx context.Context, id uuid.UUID) (*structure.Source, error)
	SinkByID(ctx context.Context, id uuid.UUID) (*structure.Sink, error)

	// SourcesByIDs fetches sources by internal UUID, batched with a
	// bounded IN-list. Absent IDs are simply missing from the result.
	SourcesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]structure.Source, error)
	SinksByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]structure.Sink, error)

	AllSources(ctx context.Context) ([]structure.Source, error)
	AllSinks(ctx context.Context) ([]structure.Sink, error)

	// SourcesByNameSubstring returns sources whose display name contains
	// the query as a case-insensitive substring.
	SourcesByNameSubstring(ctx context.Context, query string) ([]structure.Source, error)
	SinksByNameSubstring(ctx context.Context, query string) ([]structure.Sink, error)

	Close() error
}
