package sqldb

// One table per entity, two association tables. Upserts key on the
// external identity (external_id, stakeholder_key); the id column is the
// stable internal UUID assigned on first insert.

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS structure_element_type (
    id UUID PRIMARY KEY,
    external_id VARCHAR(255) NOT NULL,
    stakeholder_key VARCHAR(36) NOT NULL,
    name VARCHAR(255) NOT NULL UNIQUE,
    description VARCHAR(1024),
    UNIQUE (external_id, stakeholder_key)
);
CREATE INDEX IF NOT EXISTS idx_element_type_stakeholder_external
    ON structure_element_type (stakeholder_key, external_id);

CREATE TABLE IF NOT EXISTS structure_thing_node (
    id UUID PRIMARY KEY,
    external_id VARCHAR(255) NOT NULL,
    stakeholder_key VARCHAR(36) NOT NULL,
    name VARCHAR(255) NOT NULL UNIQUE,
    description VARCHAR(1024),
    parent_external_node_id VARCHAR(255),
    parent_node_id UUID REFERENCES structure_thing_node (id),
    element_type_external_id VARCHAR(255) NOT NULL,
    element_type_id UUID NOT NULL REFERENCES structure_element_type (id),
    meta_data JSONB,
    UNIQUE (external_id, stakeholder_key)
);
CREATE INDEX IF NOT EXISTS idx_thing_node_stakeholder_external
    ON structure_thing_node (stakeholder_key, external_id);

CREATE TABLE IF NOT EXISTS structure_source (
    id UUID PRIMARY KEY,
    external_id VARCHAR(255) NOT NULL,
    stakeholder_key VARCHAR(36) NOT NULL,
    name VARCHAR(255) NOT NULL UNIQUE,
    type VARCHAR(255) NOT NULL,
    visible BOOLEAN NOT NULL DEFAULT TRUE,
    display_path VARCHAR(255) NOT NULL,
    adapter_key VARCHAR(255) NOT NULL,
    source_id VARCHAR(255) NOT NULL,
    ref_key VARCHAR(255),
    ref_id VARCHAR(255) NOT NULL,
    meta_data JSONB,
    preset_filters JSONB NOT NULL,
    passthrough_filters JSONB,
    thing_node_external_ids JSONB,
    UNIQUE (external_id, stakeholder_key)
);
CREATE INDEX IF NOT EXISTS idx_source_stakeholder_external
    ON structure_source (stakeholder_key, external_id);

CREATE TABLE IF NOT EXISTS structure_sink (
    id UUID PRIMARY KEY,
    external_id VARCHAR(255) NOT NULL,
    stakeholder_key VARCHAR(36) NOT NULL,
    name VARCHAR(255) NOT NULL UNIQUE,
    type VARCHAR(255) NOT NULL,
    visible BOOLEAN NOT NULL DEFAULT TRUE,
    display_path VARCHAR(255) NOT NULL,
    adapter_key VARCHAR(255) NOT NULL,
    sink_id VARCHAR(255) NOT NULL,
    ref_key VARCHAR(255),
    ref_id VARCHAR(255) NOT NULL,
    meta_data JSONB,
    preset_filters JSONB NOT NULL,
    passthrough_filters JSONB,
    thing_node_external_ids JSONB,
    UNIQUE (external_id, stakeholder_key)
);
CREATE INDEX IF NOT EXISTS idx_sink_stakeholder_external
    ON structure_sink (stakeholder_key, external_id);

CREATE TABLE IF NOT EXISTS structure_thingnode_source_association (
    thingnode_id UUID NOT NULL REFERENCES structure_thing_node (id),
    source_id UUID NOT NULL REFERENCES structure_source (id),
    PRIMARY KEY (thingnode_id, source_id)
);

CREATE TABLE IF NOT EXISTS structure_thingnode_sink_association (
    thingnode_id UUID NOT NULL REFERENCES structure_thing_node (id),
    sink_id UUID NOT NULL REFERENCES structure_sink (id),
    PRIMARY KEY (thingnode_id, sink_id)
);
`

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS structure_element_type (
    id TEXT PRIMARY KEY,
    external_id TEXT NOT NULL,
    stakeholder_key TEXT NOT NULL,
    name TEXT NOT NULL UNIQUE,
    description TEXT,
    UNIQUE (external_id, stakeholder_key)
);
CREATE INDEX IF NOT EXISTS idx_element_type_stakeholder_external
    ON structure_element_type (stakeholder_key, external_id);

CREATE TABLE IF NOT EXISTS structure_thing_node (
    id TEXT PRIMARY KEY,
    external_id TEXT NOT NULL,
    stakeholder_key TEXT NOT NULL,
    name TEXT NOT NULL UNIQUE,
    description TEXT,
    parent_external_node_id TEXT,
    parent_node_id TEXT REFERENCES structure_thing_node (id),
    element_type_external_id TEXT NOT NULL,
    element_type_id TEXT NOT NULL REFERENCES structure_element_type (id),
    meta_data TEXT,
    UNIQUE (external_id, stakeholder_key)
);
CREATE INDEX IF NOT EXISTS idx_thing_node_stakeholder_external
    ON structure_thing_node (stakeholder_key, external_id);

CREATE TABLE IF NOT EXISTS structure_source (
    id TEXT PRIMARY KEY,
    external_id TEXT NOT NULL,
    stakeholder_key TEXT NOT NULL,
    name TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL,
    visible INTEGER NOT NULL DEFAULT 1,
    display_path TEXT NOT NULL,
    adapter_key TEXT NOT NULL,
    source_id TEXT NOT NULL,
    ref_key TEXT,
    ref_id TEXT NOT NULL,
    meta_data TEXT,
    preset_filters TEXT NOT NULL,
    passthrough_filters TEXT,
    thing_node_external_ids TEXT,
    UNIQUE (external_id, stakeholder_key)
);
CREATE INDEX IF NOT EXISTS idx_source_stakeholder_external
    ON structure_source (stakeholder_key, external_id);

CREATE TABLE IF NOT EXISTS structure_sink (
    id TEXT PRIMARY KEY,
    external_id TEXT NOT NULL,
    stakeholder_key TEXT NOT NULL,
    name TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL,
    visible INTEGER NOT NULL DEFAULT 1,
    display_path TEXT NOT NULL,
    adapter_key TEXT NOT NULL,
    sink_id TEXT NOT NULL,
    ref_key TEXT,
    ref_id TEXT NOT NULL,
    meta_data TEXT,
    preset_filters TEXT NOT NULL,
    passthrough_filters TEXT,
    thing_node_external_ids TEXT,
    UNIQUE (external_id, stakeholder_key)
);
CREATE INDEX IF NOT EXISTS idx_sink_stakeholder_external
    ON structure_sink (stakeholder_key, external_id);

CREATE TABLE IF NOT EXISTS structure_thingnode_source_association (
    thingnode_id TEXT NOT NULL REFERENCES structure_thing_node (id),
    source_id TEXT NOT NULL REFERENCES structure_source (id),
    PRIMARY KEY (thingnode_id, source_id)
);

CREATE TABLE IF NOT EXISTS structure_thingnode_sink_association (
    thingnode_id TEXT NOT NULL REFERENCES structure_thing_node (id),
    sink_id TEXT NOT NULL REFERENCES structure_sink (id),
    PRIMARY KEY (thingnode_id, sink_id)
);
`
