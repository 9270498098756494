// Package wiring models workflow wirings and resolves references to the
// virtual structure adapter into references to the backing adapters.
package wiring

// VirtualStructureAdapterID is the adapter identifier under which the
// structure service registers itself. Wirings addressed to it are
// resolved to the backing adapter before execution.
const VirtualStructureAdapterID = "virtual-structure-adapter"

// RefIDTypeThingNode marks a wiring whose reference points at a thing
// node rather than a concrete source or sink. Used for metadata(any)
// endpoints, where the backing adapter addresses the attribute via the
// node and a key.
const RefIDTypeThingNode = "THINGNODE"

// InputWiring binds one workflow input to an adapter endpoint.
type InputWiring struct {
	WorkflowInputName string         `json:"workflow_input_name"`
	AdapterID         string         `json:"adapter_id"`
	RefID             string         `json:"ref_id,omitempty"`
	RefIDType         string         `json:"ref_id_type,omitempty"`
	RefKey            *string        `json:"ref_key,omitempty"`
	Type              string         `json:"type,omitempty"`
	Filters           map[string]any `json:"filters,omitempty"`
}

// OutputWiring binds one workflow output to an adapter endpoint.
type OutputWiring struct {
	WorkflowOutputName string         `json:"workflow_output_name"`
	AdapterID          string         `json:"adapter_id"`
	RefID              string         `json:"ref_id,omitempty"`
	RefIDType          string         `json:"ref_id_type,omitempty"`
	RefKey             *string        `json:"ref_key,omitempty"`
	Type               string         `json:"type,omitempty"`
	Filters            map[string]any `json:"filters,omitempty"`
}

// WorkflowWiring is the full set of input and output bindings of one
// workflow execution.
type WorkflowWiring struct {
	InputWirings  []InputWiring  `json:"input_wirings"`
	OutputWirings []OutputWiring `json:"output_wirings"`
}

// mergeFilters combines the caller's filters with the endpoint's preset
// filters. Presets win on key collisions.
func mergeFilters(callerFilters, presetFilters map[string]any) map[string]any {
	merged := make(map[string]any, len(callerFilters)+len(presetFilters))
	for k, v := range callerFilters {
		merged[k] = v
	}
	for k, v := range presetFilters {
		merged[k] = v
	}
	return merged
}
