package server

import (
	"github.com/google/uuid"

	"github.com/vstruct/vstruct/internal/structure"
)

// AdapterID is the identifier the frontend reports under /info and that
// wirings use to address this adapter.
const AdapterID = "virtual-structure-adapter"

// AdapterName is the human-readable adapter name.
const AdapterName = "Virtual Structure Adapter"

// structureID is the fixed id of the /structure response envelope.
const structureID = "vst-adapter"

type infoResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

type thingNodeDTO struct {
	ID          uuid.UUID  `json:"id"`
	ParentID    *uuid.UUID `json:"parentId"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
}

func toThingNodeDTO(tn structure.ThingNode) thingNodeDTO {
	return thingNodeDTO{
		ID:          tn.ID,
		ParentID:    tn.ParentNodeID,
		Name:        tn.Name,
		Description: tn.Description,
	}
}

// sourceDTO and sinkDTO expose catalog endpoints to the frontend.
// thingNodeId repeats the entity's own id; the hierarchy position comes
// from the /structure browsing responses, not from this field.
type sourceDTO struct {
	ID          uuid.UUID                   `json:"id"`
	ThingNodeID uuid.UUID                   `json:"thingNodeId"`
	Name        string                      `json:"name"`
	Type        structure.ExternalType      `json:"type"`
	Visible     bool                        `json:"visible"`
	Path        string                      `json:"path"`
	MetadataKey *string                     `json:"metadataKey"`
	Filters     map[string]structure.Filter `json:"filters"`
}

func toSourceDTO(src structure.Source) sourceDTO {
	return sourceDTO{
		ID:          src.ID,
		ThingNodeID: src.ID,
		Name:        src.Name,
		Type:        src.Type,
		Visible:     src.Visible,
		Path:        src.DisplayPath,
		MetadataKey: src.RefKey,
		Filters:     filterMap(src.PassthroughFilters),
	}
}

type sinkDTO struct {
	ID          uuid.UUID                   `json:"id"`
	ThingNodeID uuid.UUID                   `json:"thingNodeId"`
	Name        string                      `json:"name"`
	Type        structure.ExternalType      `json:"type"`
	Visible     bool                        `json:"visible"`
	Path        string                      `json:"path"`
	MetadataKey *string                     `json:"metadataKey"`
	Filters     map[string]structure.Filter `json:"filters"`
}

func toSinkDTO(snk structure.Sink) sinkDTO {
	return sinkDTO{
		ID:          snk.ID,
		ThingNodeID: snk.ID,
		Name:        snk.Name,
		Type:        snk.Type,
		Visible:     snk.Visible,
		Path:        snk.DisplayPath,
		MetadataKey: snk.RefKey,
		Filters:     filterMap(snk.PassthroughFilters),
	}
}

// filterMap keys the passthrough filters by internal name, keeping the
// full filter object as the value.
func filterMap(filters []structure.Filter) map[string]structure.Filter {
	m := make(map[string]structure.Filter, len(filters))
	for _, f := range filters {
		m[f.InternalName] = f
	}
	return m
}

type structureResponse struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	ThingNodes []thingNodeDTO `json:"thingNodes"`
	Sources    []sourceDTO    `json:"sources"`
	Sinks      []sinkDTO      `json:"sinks"`
}

type multipleSourcesResponse struct {
	ResultCount int         `json:"resultCount"`
	Sources     []sourceDTO `json:"sources"`
}

type multipleSinksResponse struct {
	ResultCount int       `json:"resultCount"`
	Sinks       []sinkDTO `json:"sinks"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}
