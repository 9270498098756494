// Package structure defines the in-memory catalog model: element types,
// thing nodes, sources and sinks, together with whole-document validation
// and the hierarchy sorter.
//
// A catalog is authored as a single JSON document (CompleteStructure).
// Authors identify entities by the external key pair
// (stakeholder_key, external_id); the internal UUIDs are assigned here on
// first parse and preserved across re-imports by the storage layer.
package structure

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ExternalType is the closed set of wire-format kinds a source or sink
// can carry.
type ExternalType string

const (
	TypeMetadataInt      ExternalType = "metadata(int)"
	TypeMetadataFloat    ExternalType = "metadata(float)"
	TypeMetadataString   ExternalType = "metadata(string)"
	TypeMetadataBool     ExternalType = "metadata(bool)"
	TypeMetadataAny      ExternalType = "metadata(any)"
	TypeTimeseriesFloat  ExternalType = "timeseries(float)"
	TypeTimeseriesInt    ExternalType = "timeseries(int)"
	TypeTimeseriesString ExternalType = "timeseries(string)"
	TypeTimeseriesBool   ExternalType = "timeseries(bool)"
	TypeTimeseriesNum    ExternalType = "timeseries(numeric)"
	TypeTimeseriesAny    ExternalType = "timeseries(any)"
	TypeMultiTSFrame     ExternalType = "multitsframe"
	TypeDataframe        ExternalType = "dataframe"
)

// Valid reports whether t is one of the known external types.
func (t ExternalType) Valid() bool {
	switch t {
	case TypeMetadataInt, TypeMetadataFloat, TypeMetadataString, TypeMetadataBool,
		TypeMetadataAny, TypeTimeseriesFloat, TypeTimeseriesInt, TypeTimeseriesString,
		TypeTimeseriesBool, TypeTimeseriesNum, TypeTimeseriesAny,
		TypeMultiTSFrame, TypeDataframe:
		return true
	}
	return false
}

// FilterType is the closed set of filter kinds.
type FilterType string

const FilterTypeFreeText FilterType = "free_text"

var (
	filterNameRe         = regexp.MustCompile(`^[\w\s]+$`)
	filterInternalNameRe = regexp.MustCompile(`^\w+$`)
)

// Filter declares a runtime-settable parameter of a source or sink.
type Filter struct {
	Name         string     `json:"name"`
	InternalName string     `json:"internal_name,omitempty"`
	Type         FilterType `json:"type"`
	Required     bool       `json:"required"`
}

// deriveInternalName fills InternalName from Name when the author did not
// provide one: strip, lowercase, join whitespace-separated words with
// underscores. The wiring resolver identifies filters by this name, so the
// derivation must stay deterministic.
func (f *Filter) deriveInternalName() {
	if f.InternalName != "" {
		return
	}
	f.InternalName = strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(f.Name))), "_")
}

func (f *Filter) validate() error {
	if strings.TrimSpace(f.Name) == "" || !filterNameRe.MatchString(f.Name) {
		return fmt.Errorf("%w: the name of the filter must be set to a non-empty string "+
			"that only contains alphanumeric characters, underscores and spaces", ErrValidation)
	}
	if !filterInternalNameRe.MatchString(f.InternalName) {
		return fmt.Errorf("%w: the internal_name of the filter can only contain "+
			"alphanumeric characters and underscores", ErrValidation)
	}
	if f.Type != FilterTypeFreeText {
		return fmt.Errorf("%w: unknown filter type %q", ErrValidation, f.Type)
	}
	return nil
}

// ElementType is a categorical label attached to thing nodes.
type ElementType struct {
	ID             uuid.UUID `json:"id,omitempty"`
	ExternalID     string    `json:"external_id"`
	StakeholderKey string    `json:"stakeholder_key"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
}

// ThingNode is an interior or leaf node of the user-authored hierarchy.
//
// ParentNodeID and ElementTypeID are derived internal references; authors
// only write the external variants. The storage layer rewrites both once
// the internal UUIDs of the referenced rows are known.
type ThingNode struct {
	ID                    uuid.UUID       `json:"id,omitempty"`
	ExternalID            string          `json:"external_id"`
	StakeholderKey        string          `json:"stakeholder_key"`
	Name                  string          `json:"name"`
	Description           string          `json:"description,omitempty"`
	ParentExternalNodeID  *string         `json:"parent_external_node_id,omitempty"`
	ParentNodeID          *uuid.UUID      `json:"parent_node_id,omitempty"`
	ElementTypeExternalID string          `json:"element_type_external_id"`
	ElementTypeID         uuid.UUID       `json:"element_type_id,omitempty"`
	MetaData              json.RawMessage `json:"meta_data,omitempty"`
}

// Source references a data-producing endpoint of a backing adapter.
type Source struct {
	ID                   uuid.UUID       `json:"id,omitempty"`
	ExternalID           string          `json:"external_id"`
	StakeholderKey       string          `json:"stakeholder_key"`
	Name                 string          `json:"name"`
	Type                 ExternalType    `json:"type"`
	Visible              bool            `json:"visible"`
	DisplayPath          string          `json:"display_path"`
	AdapterKey           string          `json:"adapter_key"`
	SourceID             string          `json:"source_id"`
	RefKey               *string         `json:"ref_key,omitempty"`
	RefID                string          `json:"ref_id"`
	MetaData             json.RawMessage `json:"meta_data,omitempty"`
	PresetFilters        map[string]any  `json:"preset_filters"`
	PassthroughFilters   []Filter        `json:"passthrough_filters,omitempty"`
	ThingNodeExternalIDs []string        `json:"thing_node_external_ids,omitempty"`
}

// Sink mirrors Source for data-consuming endpoints.
type Sink struct {
	ID                   uuid.UUID       `json:"id,omitempty"`
	ExternalID           string          `json:"external_id"`
	StakeholderKey       string          `json:"stakeholder_key"`
	Name                 string          `json:"name"`
	Type                 ExternalType    `json:"type"`
	Visible              bool            `json:"visible"`
	DisplayPath          string          `json:"display_path"`
	AdapterKey           string          `json:"adapter_key"`
	SinkID               string          `json:"sink_id"`
	RefKey               *string         `json:"ref_key,omitempty"`
	RefID                string          `json:"ref_id"`
	MetaData             json.RawMessage `json:"meta_data,omitempty"`
	PresetFilters        map[string]any  `json:"preset_filters"`
	PassthroughFilters   []Filter        `json:"passthrough_filters,omitempty"`
	ThingNodeExternalIDs []string        `json:"thing_node_external_ids,omitempty"`
}

// UnmarshalJSON keeps the visible flag defaulting to true when absent.
func (s *Source) UnmarshalJSON(data []byte) error {
	type alias Source
	aux := struct {
		Visible *bool `json:"visible"`
		*alias
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Visible = aux.Visible == nil || *aux.Visible
	return nil
}

// UnmarshalJSON keeps the visible flag defaulting to true when absent.
func (s *Sink) UnmarshalJSON(data []byte) error {
	type alias Sink
	aux := struct {
		Visible *bool `json:"visible"`
		*alias
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Visible = aux.Visible == nil || *aux.Visible
	return nil
}

// CompleteStructure is the whole-document form of the catalog.
type CompleteStructure struct {
	ElementTypes []ElementType `json:"element_types"`
	ThingNodes   []ThingNode   `json:"thing_nodes"`
	Sources      []Source      `json:"sources"`
	Sinks        []Sink        `json:"sinks"`
}

// Parse decodes a CompleteStructure from its JSON document form,
// normalizes it (UUID assignment, filter internal-name derivation) and
// runs full validation. Malformed JSON yields ErrParse, an invariant
// violation yields ErrValidation.
func Parse(data []byte) (*CompleteStructure, error) {
	var cs CompleteStructure
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("%w: decoding complete structure: %v", ErrParse, err)
	}
	cs.normalize()
	if err := cs.Validate(); err != nil {
		return nil, err
	}
	return &cs, nil
}

// normalize assigns internal UUIDs where none were given and derives
// filter internal names. Runs before validation so that uniqueness checks
// see the derived names.
func (cs *CompleteStructure) normalize() {
	for i := range cs.ElementTypes {
		if cs.ElementTypes[i].ID == uuid.Nil {
			cs.ElementTypes[i].ID = uuid.New()
		}
	}
	for i := range cs.ThingNodes {
		if cs.ThingNodes[i].ID == uuid.Nil {
			cs.ThingNodes[i].ID = uuid.New()
		}
	}
	for i := range cs.Sources {
		if cs.Sources[i].ID == uuid.Nil {
			cs.Sources[i].ID = uuid.New()
		}
		if cs.Sources[i].PresetFilters == nil {
			cs.Sources[i].PresetFilters = map[string]any{}
		}
		for j := range cs.Sources[i].PassthroughFilters {
			cs.Sources[i].PassthroughFilters[j].deriveInternalName()
		}
	}
	for i := range cs.Sinks {
		if cs.Sinks[i].ID == uuid.Nil {
			cs.Sinks[i].ID = uuid.New()
		}
		if cs.Sinks[i].PresetFilters == nil {
			cs.Sinks[i].PresetFilters = map[string]any{}
		}
		for j := range cs.Sinks[i].PassthroughFilters {
			cs.Sinks[i].PassthroughFilters[j].deriveInternalName()
		}
	}
}
