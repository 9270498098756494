package sqldb

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/vstruct/vstruct/internal/structure"
)

// JSON column helpers. Values are stored as serialized JSON text so the
// same scan code serves JSONB columns on PostgreSQL and TEXT columns on
// SQLite.

type jsonMap map[string]any

func (m jsonMap) Value() (driver.Value, error) {
	if m == nil {
		m = map[string]any{}
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *jsonMap) Scan(src any) error {
	return scanJSON(src, m)
}

type jsonFilters []structure.Filter

func (f jsonFilters) Value() (driver.Value, error) {
	if f == nil {
		return nil, nil
	}
	b, err := json.Marshal([]structure.Filter(f))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (f *jsonFilters) Scan(src any) error {
	return scanJSON(src, f)
}

type jsonStrings []string

func (s jsonStrings) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *jsonStrings) Scan(src any) error {
	return scanJSON(src, s)
}

// jsonRaw keeps free-form meta_data opaque in both directions.
type jsonRaw json.RawMessage

func (r jsonRaw) Value() (driver.Value, error) {
	if len(r) == 0 {
		return nil, nil
	}
	return string(r), nil
}

func (r *jsonRaw) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*r = nil
		return nil
	case []byte:
		*r = append((*r)[:0], v...)
		return nil
	case string:
		*r = jsonRaw(v)
		return nil
	}
	return fmt.Errorf("cannot scan %T into json column", src)
}

func scanJSON(src, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	}
	return fmt.Errorf("cannot scan %T into json column", src)
}

// Row types mirror the table columns one to one; the model conversions
// keep the mapping explicit instead of hiding it behind an ORM.

type elementTypeRow struct {
	ID             uuid.UUID      `db:"id"`
	ExternalID     string         `db:"external_id"`
	StakeholderKey string         `db:"stakeholder_key"`
	Name           string         `db:"name"`
	Description    sql.NullString `db:"description"`
}

func (r elementTypeRow) toModel() structure.ElementType {
	return structure.ElementType{
		ID:             r.ID,
		ExternalID:     r.ExternalID,
		StakeholderKey: r.StakeholderKey,
		Name:           r.Name,
		Description:    r.Description.String,
	}
}

type thingNodeRow struct {
	ID                    uuid.UUID      `db:"id"`
	ExternalID            string         `db:"external_id"`
	StakeholderKey        string         `db:"stakeholder_key"`
	Name                  string         `db:"name"`
	Description           sql.NullString `db:"description"`
	ParentExternalNodeID  sql.NullString `db:"parent_external_node_id"`
	ParentNodeID          uuid.NullUUID  `db:"parent_node_id"`
	ElementTypeExternalID string         `db:"element_type_external_id"`
	ElementTypeID         uuid.UUID      `db:"element_type_id"`
	MetaData              jsonRaw        `db:"meta_data"`
}

func (r thingNodeRow) toModel() structure.ThingNode {
	tn := structure.ThingNode{
		ID:                    r.ID,
		ExternalID:            r.ExternalID,
		StakeholderKey:        r.StakeholderKey,
		Name:                  r.Name,
		Description:           r.Description.String,
		ElementTypeExternalID: r.ElementTypeExternalID,
		ElementTypeID:         r.ElementTypeID,
		MetaData:              json.RawMessage(r.MetaData),
	}
	if r.ParentExternalNodeID.Valid {
		v := r.ParentExternalNodeID.String
		tn.ParentExternalNodeID = &v
	}
	if r.ParentNodeID.Valid {
		v := r.ParentNodeID.UUID
		tn.ParentNodeID = &v
	}
	return tn
}

type sourceRow struct {
	ID                   uuid.UUID      `db:"id"`
	ExternalID           string         `db:"external_id"`
	StakeholderKey       string         `db:"stakeholder_key"`
	Name                 string         `db:"name"`
	Type                 string         `db:"type"`
	Visible              bool           `db:"visible"`
	DisplayPath          string         `db:"display_path"`
	AdapterKey           string         `db:"adapter_key"`
	SourceID             string         `db:"source_id"`
	RefKey               sql.NullString `db:"ref_key"`
	RefID                string         `db:"ref_id"`
	MetaData             jsonRaw        `db:"meta_data"`
	PresetFilters        jsonMap        `db:"preset_filters"`
	PassthroughFilters   jsonFilters    `db:"passthrough_filters"`
	ThingNodeExternalIDs jsonStrings    `db:"thing_node_external_ids"`
}

func (r sourceRow) toModel() structure.Source {
	src := structure.Source{
		ID:                   r.ID,
		ExternalID:           r.ExternalID,
		StakeholderKey:       r.StakeholderKey,
		Name:                 r.Name,
		Type:                 structure.ExternalType(r.Type),
		Visible:              r.Visible,
		DisplayPath:          r.DisplayPath,
		AdapterKey:           r.AdapterKey,
		SourceID:             r.SourceID,
		RefID:                r.RefID,
		MetaData:             json.RawMessage(r.MetaData),
		PresetFilters:        map[string]any(r.PresetFilters),
		PassthroughFilters:   []structure.Filter(r.PassthroughFilters),
		ThingNodeExternalIDs: []string(r.ThingNodeExternalIDs),
	}
	if src.PresetFilters == nil {
		src.PresetFilters = map[string]any{}
	}
	if r.RefKey.Valid {
		v := r.RefKey.String
		src.RefKey = &v
	}
	return src
}

type sinkRow struct {
	ID                   uuid.UUID      `db:"id"`
	ExternalID           string         `db:"external_id"`
	StakeholderKey       string         `db:"stakeholder_key"`
	Name                 string         `db:"name"`
	Type                 string         `db:"type"`
	Visible              bool           `db:"visible"`
	DisplayPath          string         `db:"display_path"`
	AdapterKey           string         `db:"adapter_key"`
	SinkID               string         `db:"sink_id"`
	RefKey               sql.NullString `db:"ref_key"`
	RefID                string         `db:"ref_id"`
	MetaData             jsonRaw        `db:"meta_data"`
	PresetFilters        jsonMap        `db:"preset_filters"`
	PassthroughFilters   jsonFilters    `db:"passthrough_filters"`
	ThingNodeExternalIDs jsonStrings    `db:"thing_node_external_ids"`
}

func (r sinkRow) toModel() structure.Sink {
	snk := structure.Sink{
		ID:                   r.ID,
		ExternalID:           r.ExternalID,
		StakeholderKey:       r.StakeholderKey,
		Name:                 r.Name,
		Type:                 structure.ExternalType(r.Type),
		Visible:              r.Visible,
		DisplayPath:          r.DisplayPath,
		AdapterKey:           r.AdapterKey,
		SinkID:               r.SinkID,
		RefID:                r.RefID,
		MetaData:             json.RawMessage(r.MetaData),
		PresetFilters:        map[string]any(r.PresetFilters),
		PassthroughFilters:   []structure.Filter(r.PassthroughFilters),
		ThingNodeExternalIDs: []string(r.ThingNodeExternalIDs),
	}
	if snk.PresetFilters == nil {
		snk.PresetFilters = map[string]any{}
	}
	if r.RefKey.Valid {
		v := r.RefKey.String
		snk.RefKey = &v
	}
	return snk
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
