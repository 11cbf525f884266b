package sqlstore

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS items (
    id           INTEGER PRIMARY KEY,
    title        TEXT NOT NULL,
    type         TEXT NOT NULL,
    publish_at   DATETIME NOT NULL,
    retrieved_at DATETIME NOT NULL,
    assigned_to  TEXT,
    completed    INTEGER NOT NULL DEFAULT 0,
    reviewed     INTEGER NOT NULL DEFAULT 0,
    points       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_items_type ON items(type);

CREATE TABLE IF NOT EXISTS content (
    id      INTEGER PRIMARY KEY,
    message TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS plans (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    item_id      INTEGER NOT NULL,
    item_title   TEXT NOT NULL,
    plan_content TEXT NOT NULL,
    created_at   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_plans_item ON plans(item_id);

CREATE TABLE IF NOT EXISTS locations (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    latitude    REAL,
    longitude   REAL,
    updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS current_area_statuses (
    name         TEXT PRIMARY KEY,
    status       TEXT NOT NULL,
    last_updated DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS area_status_history (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    area        TEXT NOT NULL,
    status      TEXT NOT NULL,
    recorded_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_area_status_history_area ON area_status_history(area, recorded_at);

CREATE TABLE IF NOT EXISTS upstream_response_times (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    endpoint         TEXT NOT NULL DEFAULT '',
    recorded_at      DATETIME NOT NULL,
    response_time_ms REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_upstream_response_times_at ON upstream_response_times(recorded_at);

CREATE TABLE IF NOT EXISTS api_response_times (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    endpoint         TEXT NOT NULL DEFAULT '',
    recorded_at      DATETIME NOT NULL,
    response_time_ms REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_api_response_times_at ON api_response_times(recorded_at);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS items (
    id           BIGINT PRIMARY KEY,
    title        TEXT NOT NULL,
    type         TEXT NOT NULL,
    publish_at   TIMESTAMPTZ NOT NULL,
    retrieved_at TIMESTAMPTZ NOT NULL,
    assigned_to  TEXT,
    completed    BOOLEAN NOT NULL DEFAULT FALSE,
    reviewed     BOOLEAN NOT NULL DEFAULT FALSE,
    points       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_items_type ON items(type);

CREATE TABLE IF NOT EXISTS content (
    id      BIGINT PRIMARY KEY,
    message TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS plans (
    id           BIGSERIAL PRIMARY KEY,
    item_id      BIGINT NOT NULL,
    item_title   TEXT NOT NULL,
    plan_content TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_plans_item ON plans(item_id);

CREATE TABLE IF NOT EXISTS locations (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    latitude    DOUBLE PRECISION,
    longitude   DOUBLE PRECISION,
    updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS current_area_statuses (
    name         TEXT PRIMARY KEY,
    status       TEXT NOT NULL,
    last_updated TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS area_status_history (
    id          BIGSERIAL PRIMARY KEY,
    area        TEXT NOT NULL,
    status      TEXT NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_area_status_history_area ON area_status_history(area, recorded_at);

CREATE TABLE IF NOT EXISTS upstream_response_times (
    id               BIGSERIAL PRIMARY KEY,
    endpoint         TEXT NOT NULL DEFAULT '',
    recorded_at      TIMESTAMPTZ NOT NULL,
    response_time_ms DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_upstream_response_times_at ON upstream_response_times(recorded_at);

CREATE TABLE IF NOT EXISTS api_response_times (
    id               BIGSERIAL PRIMARY KEY,
    endpoint         TEXT NOT NULL DEFAULT '',
    recorded_at      TIMESTAMPTZ NOT NULL,
    response_time_ms DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_api_response_times_at ON api_response_times(recorded_at);
`

// dumpTables are the tables exported by Dump, in display order.
var dumpTables = []string{
	"items",
	"content",
	"plans",
	"locations",
	"current_area_statuses",
	"area_status_history",
}
