package wiring

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vstruct/vstruct/internal/structure"
)

// ErrResolution indicates a wiring referenced an endpoint that the
// structure service does not know.
var ErrResolution = errors.New(
	"Atleast one source or sink referenced in the wirings was not found " +
		"in the structure service database, during the wiring resolution")

// EndpointFetcher is the subset of the catalog service the resolver
// needs: batched source and sink lookups by internal UUID.
type EndpointFetcher interface {
	SourcesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]structure.Source, error)
	SinksByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]structure.Sink, error)
}

// Resolver rewrites wirings addressed to the virtual structure adapter
// into wirings addressed to the backing adapters.
type Resolver struct {
	fetcher EndpointFetcher
	logger  *zap.Logger
}

// NewResolver returns a Resolver reading endpoints from fetcher.
func NewResolver(fetcher EndpointFetcher, logger *zap.Logger) *Resolver {
	return &Resolver{fetcher: fetcher, logger: logger}
}

// ResolveWirings rewrites ww in place. Wirings whose adapter_id is not
// the virtual structure adapter pass through untouched. A reference that
// does not resolve to a stored source or sink fails the whole call.
func (r *Resolver) ResolveWirings(ctx context.Context, ww *WorkflowWiring) error {
	inputIdx := make(map[int]uuid.UUID)
	sourceIDs := make([]uuid.UUID, 0, len(ww.InputWirings))
	for i, iw := range ww.InputWirings {
		if iw.AdapterID != VirtualStructureAdapterID {
			continue
		}
		id, err := uuid.Parse(iw.RefID)
		if err != nil {
			return fmt.Errorf("%w: input wiring %s carries malformed ref_id %q",
				ErrResolution, iw.WorkflowInputName, iw.RefID)
		}
		inputIdx[i] = id
		sourceIDs = append(sourceIDs, id)
	}

	outputIdx := make(map[int]uuid.UUID)
	sinkIDs := make([]uuid.UUID, 0, len(ww.OutputWirings))
	for i, ow := range ww.OutputWirings {
		if ow.AdapterID != VirtualStructureAdapterID {
			continue
		}
		id, err := uuid.Parse(ow.RefID)
		if err != nil {
			return fmt.Errorf("%w: output wiring %s carries malformed ref_id %q",
				ErrResolution, ow.WorkflowOutputName, ow.RefID)
		}
		outputIdx[i] = id
		sinkIDs = append(sinkIDs, id)
	}

	if len(inputIdx) == 0 && len(outputIdx) == 0 {
		return nil
	}

	sources := map[uuid.UUID]structure.Source{}
	if len(sourceIDs) > 0 {
		var err error
		if sources, err = r.fetcher.SourcesByIDs(ctx, sourceIDs); err != nil {
			return fmt.Errorf("fetching sources for wiring resolution: %w", err)
		}
	}
	sinks := map[uuid.UUID]structure.Sink{}
	if len(sinkIDs) > 0 {
		var err error
		if sinks, err = r.fetcher.SinksByIDs(ctx, sinkIDs); err != nil {
			return fmt.Errorf("fetching sinks for wiring resolution: %w", err)
		}
	}

	for i, id := range inputIdx {
		src, ok := sources[id]
		if !ok {
			return ErrResolution
		}
		resolveInputWiring(&ww.InputWirings[i], src)
	}
	for i, id := range outputIdx {
		snk, ok := sinks[id]
		if !ok {
			return ErrResolution
		}
		resolveOutputWiring(&ww.OutputWirings[i], snk)
	}

	r.logger.Debug("resolved virtual structure wirings",
		zap.Int("inputs", len(inputIdx)), zap.Int("outputs", len(outputIdx)))
	return nil
}

// resolveInputWiring rewrites one input wiring in place against its
// stored source. Only adapter_id, ref_id and filters change, plus
// ref_key and ref_id_type for metadata(any) wirings, which address a
// thing node attribute instead of a concrete endpoint. The wiring's
// type and all other caller-supplied fields stay untouched. The branch
// keys on the wiring's own type, not the stored one.
func resolveInputWiring(iw *InputWiring, src structure.Source) {
	iw.AdapterID = src.AdapterKey
	if iw.Type == string(structure.TypeMetadataAny) {
		iw.RefID = src.RefID
		iw.RefKey = src.RefKey
		iw.RefIDType = RefIDTypeThingNode
	} else {
		iw.RefID = src.SourceID
	}
	iw.Filters = mergeFilters(iw.Filters, src.PresetFilters)
}

// resolveOutputWiring mirrors resolveInputWiring for sinks.
func resolveOutputWiring(ow *OutputWiring, snk structure.Sink) {
	ow.AdapterID = snk.AdapterKey
	if ow.Type == string(structure.TypeMetadataAny) {
		ow.RefID = snk.RefID
		ow.RefKey = snk.RefKey
		ow.RefIDType = RefIDTypeThingNode
	} else {
		ow.RefID = snk.SinkID
	}
	ow.Filters = mergeFilters(ow.Filters, snk.PresetFilters)
}
