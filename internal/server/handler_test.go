package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vstruct/vstruct/internal/service"
	"github.com/vstruct/vstruct/internal/storage/sqldb"
	"github.com/vstruct/vstruct/internal/structure"
)

const prefix = "/adapters/virtual_structure"

// pumpSystemDoc is a four-level tree: plant, two units below it, a pump
// system below unit 1 and three sources plus one sink on the pump
// system.
const pumpSystemDoc = `{
	"element_types": [
		{"external_id": "et-plant", "stakeholder_key": "WW", "name": "Plant"},
		{"external_id": "et-unit", "stakeholder_key": "WW", "name": "Unit"},
		{"external_id": "et-pump", "stakeholder_key": "WW", "name": "Pump System"}
	],
	"thing_nodes": [
		{"external_id": "plant-1", "stakeholder_key": "WW", "name": "Waterworks 1",
		 "element_type_external_id": "et-plant"},
		{"external_id": "unit-1", "stakeholder_key": "WW", "name": "Storage Tank 1",
		 "parent_external_node_id": "plant-1", "element_type_external_id": "et-unit"},
		{"external_id": "unit-2", "stakeholder_key": "WW", "name": "Storage Tank 2",
		 "parent_external_node_id": "plant-1", "element_type_external_id": "et-unit"},
		{"external_id": "pump-1", "stakeholder_key": "WW", "name": "Pump System 1",
		 "parent_external_node_id": "unit-1", "element_type_external_id": "et-pump"}
	],
	"sources": [
		{"external_id": "src-1", "stakeholder_key": "WW",
		 "name": "Energy usage with preset filter",
		 "type": "timeseries(float)", "display_path": "Waterworks 1",
		 "adapter_key": "demo-adapter", "source_id": "b-100", "ref_id": "b-100",
		 "preset_filters": {"metric": "energy"},
		 "thing_node_external_ids": ["pump-1"]},
		{"external_id": "src-2", "stakeholder_key": "WW", "name": "Pump speed",
		 "type": "timeseries(float)", "display_path": "Waterworks 1",
		 "adapter_key": "demo-adapter", "source_id": "b-101", "ref_id": "b-101",
		 "passthrough_filters": [{"name": "Upper Threshold", "type": "free_text", "required": false}],
		 "thing_node_external_ids": ["pump-1"]},
		{"external_id": "src-3", "stakeholder_key": "WW", "name": "Pump pressure",
		 "type": "timeseries(float)", "display_path": "Waterworks 1",
		 "adapter_key": "demo-adapter", "source_id": "b-102", "ref_id": "b-102",
		 "thing_node_external_ids": ["pump-1"]}
	],
	"sinks": [
		{"external_id": "snk-1", "stakeholder_key": "WW",
		 "name": "Anomaly score for the energy usage of the pump system in Storage Tank",
		 "type": "timeseries(float)", "display_path": "Waterworks 1",
		 "adapter_key": "demo-adapter", "sink_id": "b-200", "ref_id": "b-200",
		 "thing_node_external_ids": ["pump-1"]}
	]
}`

func newTestServer(t *testing.T, auth Middleware, secret string) (*httptest.Server, *service.Service) {
	t.Helper()
	store, err := sqldb.Open(sqldb.Config{Dialect: sqldb.DialectSQLite, DSN: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := service.New(store, zap.NewNop())
	h := NewHandler(svc, zap.NewNop(), "0.1.0-test", auth, secret)
	ts := httptest.NewServer(h.Routes(prefix))
	t.Cleanup(ts.Close)
	return ts, svc
}

func loadDoc(t *testing.T, svc *service.Service, doc string) {
	t.Helper()
	cs, err := structure.Parse([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, svc.UpdateStructure(t.Context(), cs))
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestInfoEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, nil, "")

	var info struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	status := getJSON(t, ts.URL+prefix+"/info", &info)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "virtual-structure-adapter", info.ID)
	assert.Equal(t, "Virtual Structure Adapter", info.Name)
	assert.Equal(t, "0.1.0-test", info.Version)
}

func TestStructureBrowsing(t *testing.T) {
	ts, svc := newTestServer(t, nil, "")
	loadDoc(t, svc, pumpSystemDoc)

	type structureResp struct {
		ID         string         `json:"id"`
		Name       string         `json:"name"`
		ThingNodes []thingNodeDTO `json:"thingNodes"`
		Sources    []sourceDTO    `json:"sources"`
		Sinks      []sinkDTO      `json:"sinks"`
	}

	t.Run("root level", func(t *testing.T) {
		var resp structureResp
		status := getJSON(t, ts.URL+prefix+"/structure", &resp)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "vst-adapter", resp.ID)
		assert.Equal(t, "Virtual Structure Adapter", resp.Name)
		require.Len(t, resp.ThingNodes, 1)
		assert.Equal(t, "Waterworks 1", resp.ThingNodes[0].Name)
		assert.Nil(t, resp.ThingNodes[0].ParentID)
	})

	t.Run("descend four levels", func(t *testing.T) {
		var root structureResp
		require.Equal(t, http.StatusOK, getJSON(t, ts.URL+prefix+"/structure", &root))
		require.Len(t, root.ThingNodes, 1)
		assert.Empty(t, root.Sinks)
		assert.Empty(t, root.Sources)

		var units structureResp
		require.Equal(t, http.StatusOK, getJSON(t,
			fmt.Sprintf("%s%s/structure?parentId=%s", ts.URL, prefix, root.ThingNodes[0].ID), &units))
		require.Len(t, units.ThingNodes, 2)
		assert.Empty(t, units.Sinks)
		assert.Empty(t, units.Sources)

		var unit1 thingNodeDTO
		for _, tn := range units.ThingNodes {
			if tn.Name == "Storage Tank 1" {
				unit1 = tn
			}
		}
		require.NotEmpty(t, unit1.Name)

		var pumps structureResp
		require.Equal(t, http.StatusOK, getJSON(t,
			fmt.Sprintf("%s%s/structure?parentId=%s", ts.URL, prefix, unit1.ID), &pumps))
		require.Len(t, pumps.ThingNodes, 1)
		assert.Empty(t, pumps.Sinks)
		assert.Empty(t, pumps.Sources)

		var leaf structureResp
		require.Equal(t, http.StatusOK, getJSON(t,
			fmt.Sprintf("%s%s/structure?parentId=%s", ts.URL, prefix, pumps.ThingNodes[0].ID), &leaf))
		assert.Empty(t, leaf.ThingNodes)
		require.Len(t, leaf.Sinks, 1)
		require.Len(t, leaf.Sources, 3)
		assert.Equal(t,
			"Anomaly score for the energy usage of the pump system in Storage Tank",
			leaf.Sinks[0].Name)
	})

	t.Run("unknown parent id yields 404", func(t *testing.T) {
		status := getJSON(t,
			ts.URL+prefix+"/structure?parentId=b8a4a1b8-f7f9-4cf9-b462-ec0830a4ac4a", nil)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("malformed parent id yields 422", func(t *testing.T) {
		status := getJSON(t, ts.URL+prefix+"/structure?parentId=not-a-uuid", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, status)
	})
}

func TestEntityEndpoints(t *testing.T) {
	ts, svc := newTestServer(t, nil, "")
	loadDoc(t, svc, pumpSystemDoc)

	sources, err := svc.AllSources(t.Context())
	require.NoError(t, err)
	require.Len(t, sources, 3)
	sinks, err := svc.AllSinks(t.Context())
	require.NoError(t, err)
	require.Len(t, sinks, 1)

	t.Run("source by id", func(t *testing.T) {
		var dto sourceDTO
		status := getJSON(t, fmt.Sprintf("%s%s/sources/%s", ts.URL, prefix, sources[0].ID), &dto)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, sources[0].Name, dto.Name)
		// thingNodeId mirrors the entity's own id.
		assert.Equal(t, dto.ID, dto.ThingNodeID)
		assert.True(t, dto.Visible)
	})

	t.Run("source filters keyed by internal name", func(t *testing.T) {
		var withFilter *sourceDTO
		for _, src := range sources {
			if src.Name == "Pump speed" {
				var dto sourceDTO
				require.Equal(t, http.StatusOK, getJSON(t,
					fmt.Sprintf("%s%s/sources/%s", ts.URL, prefix, src.ID), &dto))
				withFilter = &dto
			}
		}
		require.NotNil(t, withFilter)
		require.Contains(t, withFilter.Filters, "upper_threshold")
		assert.Equal(t, "Upper Threshold", withFilter.Filters["upper_threshold"].Name)
	})

	t.Run("sink by id", func(t *testing.T) {
		var dto sinkDTO
		status := getJSON(t, fmt.Sprintf("%s%s/sinks/%s", ts.URL, prefix, sinks[0].ID), &dto)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, sinks[0].Name, dto.Name)
	})

	t.Run("unknown ids yield 404", func(t *testing.T) {
		for _, path := range []string{"thingNodes", "sources", "sinks"} {
			status := getJSON(t, fmt.Sprintf(
				"%s%s/%s/b8a4a1b8-f7f9-4cf9-b462-ec0830a4ac4a", ts.URL, prefix, path), nil)
			assert.Equal(t, http.StatusNotFound, status, path)
		}
	})

	t.Run("metadata routes return empty lists", func(t *testing.T) {
		for _, path := range []string{"thingNodes", "sources", "sinks"} {
			url := fmt.Sprintf("%s%s/%s/%s/metadata/", ts.URL, prefix, path, sources[0].ID)
			var metadata []any
			status := getJSON(t, url, &metadata)
			assert.Equal(t, http.StatusOK, status, path)
			assert.Empty(t, metadata)
		}
	})
}

func TestSearchEndpoints(t *testing.T) {
	ts, svc := newTestServer(t, nil, "")
	loadDoc(t, svc, pumpSystemDoc)

	t.Run("absent filter yields empty result", func(t *testing.T) {
		var resp multipleSourcesResponse
		status := getJSON(t, ts.URL+prefix+"/sources", &resp)
		require.Equal(t, http.StatusOK, status)
		assert.Zero(t, resp.ResultCount)
		assert.Empty(t, resp.Sources)
	})

	t.Run("case insensitive source search", func(t *testing.T) {
		var resp multipleSourcesResponse
		status := getJSON(t, ts.URL+prefix+"/sources?filter=PUMP", &resp)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, 2, resp.ResultCount)
	})

	t.Run("sink search", func(t *testing.T) {
		var resp multipleSinksResponse
		status := getJSON(t, ts.URL+prefix+"/sinks?filter=anomaly", &resp)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, 1, resp.ResultCount)
	})
}

func TestAuthGuard(t *testing.T) {
	guard := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	ts, _ := newTestServer(t, guard, "")

	t.Run("info is open", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+prefix+"/info", nil))
	})

	t.Run("structure is guarded", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, getJSON(t, ts.URL+prefix+"/structure", nil))
	})

	t.Run("structure with credentials", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, ts.URL+prefix+"/structure", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer token")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func putUpdate(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestMaintenanceUpdate(t *testing.T) {
	const secret = "letmein"

	t.Run("valid update returns 204", func(t *testing.T) {
		ts, svc := newTestServer(t, nil, secret)
		resp := putUpdate(t, ts.URL+prefix+"/structure/update", map[string]any{
			"maintenance_payload": map[string]any{"maintenance_secret": secret},
			"new_structure":       json.RawMessage(pumpSystemDoc),
		})
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		roots, _, _, err := svc.GetChildren(t.Context(), nil)
		require.NoError(t, err)
		assert.Len(t, roots, 1)
	})

	t.Run("wrong secret returns 403", func(t *testing.T) {
		ts, svc := newTestServer(t, nil, secret)
		resp := putUpdate(t, ts.URL+prefix+"/structure/update", map[string]any{
			"maintenance_payload": map[string]any{"maintenance_secret": "guess"},
			"new_structure":       json.RawMessage(pumpSystemDoc),
		})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		empty, err := svc.TablesEmpty(t.Context())
		require.NoError(t, err)
		assert.True(t, empty)
	})

	t.Run("invalid structure returns 422", func(t *testing.T) {
		ts, _ := newTestServer(t, nil, secret)
		resp := putUpdate(t, ts.URL+prefix+"/structure/update", map[string]any{
			"maintenance_payload": map[string]any{"maintenance_secret": secret},
			"new_structure":       map[string]any{"element_types": []any{}},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("delete existing structure flag replaces", func(t *testing.T) {
		ts, svc := newTestServer(t, nil, secret)
		loadDoc(t, svc, pumpSystemDoc)

		replacement := `{
			"element_types": [{"external_id": "et-x", "stakeholder_key": "PP", "name": "X"}],
			"thing_nodes": [{"external_id": "x-1", "stakeholder_key": "PP", "name": "Replacement Root",
				"element_type_external_id": "et-x"}],
			"sources": [], "sinks": []
		}`
		resp := putUpdate(t, ts.URL+prefix+"/structure/update?delete_existing_structure=true",
			map[string]any{
				"maintenance_payload": map[string]any{"maintenance_secret": secret},
				"new_structure":       json.RawMessage(replacement),
			})
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		roots, _, _, err := svc.GetChildren(t.Context(), nil)
		require.NoError(t, err)
		require.Len(t, roots, 1)
		assert.Equal(t, "Replacement Root", roots[0].Name)
	})

	t.Run("absent flag defaults to replacing", func(t *testing.T) {
		ts, svc := newTestServer(t, nil, secret)
		loadDoc(t, svc, pumpSystemDoc)

		replacement := `{
			"element_types": [{"external_id": "et-y", "stakeholder_key": "PP", "name": "Y"}],
			"thing_nodes": [{"external_id": "y-1", "stakeholder_key": "PP", "name": "Default Root",
				"element_type_external_id": "et-y"}],
			"sources": [], "sinks": []
		}`
		resp := putUpdate(t, ts.URL+prefix+"/structure/update", map[string]any{
			"maintenance_payload": map[string]any{"maintenance_secret": secret},
			"new_structure":       json.RawMessage(replacement),
		})
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		roots, _, _, err := svc.GetChildren(t.Context(), nil)
		require.NoError(t, err)
		require.Len(t, roots, 1)
		assert.Equal(t, "Default Root", roots[0].Name)
	})

	t.Run("explicit false merges into existing structure", func(t *testing.T) {
		ts, svc := newTestServer(t, nil, secret)
		loadDoc(t, svc, pumpSystemDoc)

		addition := `{
			"element_types": [{"external_id": "et-z", "stakeholder_key": "PP", "name": "Z"}],
			"thing_nodes": [{"external_id": "z-1", "stakeholder_key": "PP", "name": "Second Root",
				"element_type_external_id": "et-z"}],
			"sources": [], "sinks": []
		}`
		resp := putUpdate(t, ts.URL+prefix+"/structure/update?delete_existing_structure=false",
			map[string]any{
				"maintenance_payload": map[string]any{"maintenance_secret": secret},
				"new_structure":       json.RawMessage(addition),
			})
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		roots, _, _, err := svc.GetChildren(t.Context(), nil)
		require.NoError(t, err)
		assert.Len(t, roots, 2)
	})

	t.Run("malformed flag returns 422", func(t *testing.T) {
		ts, _ := newTestServer(t, nil, secret)
		resp := putUpdate(t, ts.URL+prefix+"/structure/update?delete_existing_structure=maybe",
			map[string]any{
				"maintenance_payload": map[string]any{"maintenance_secret": secret},
				"new_structure":       json.RawMessage(pumpSystemDoc),
			})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("unconfigured secret disables maintenance", func(t *testing.T) {
		ts, _ := newTestServer(t, nil, "")
		resp := putUpdate(t, ts.URL+prefix+"/structure/update", map[string]any{
			"maintenance_payload": map[string]any{"maintenance_secret": ""},
			"new_structure":       json.RawMessage(pumpSystemDoc),
		})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}
