package postgres

// migration is one versioned schema change, applied in order by Migrate.
type migration struct {
	version string
	name    string
	sql     string
}

var migrations = []migration{
	{
		version: "20250301000001",
		name:    "create_ferry_event_types",
		sql: `
CREATE TABLE IF NOT EXISTS ferry_event_types (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL UNIQUE,
    description     TEXT NOT NULL DEFAULT '',
    group_name      TEXT NOT NULL DEFAULT '',
    schema          JSONB,
    schema_version  TEXT NOT NULL DEFAULT '',
    version         TEXT NOT NULL DEFAULT '',
    example         JSONB,
    is_deprecated   BOOLEAN NOT NULL DEFAULT FALSE,
    deprecated_at   TIMESTAMPTZ,
    metadata        JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`,
	},
	{
		version: "20250301000002",
		name:    "create_ferry_endpoints",
		sql: `
CREATE TABLE IF NOT EXISTS ferry_endpoints (
    id                    TEXT PRIMARY KEY,
    owner_id              TEXT NOT NULL DEFAULT '',
    name                  TEXT NOT NULL DEFAULT '',
    url                   TEXT NOT NULL DEFAULT '',
    description           TEXT NOT NULL DEFAULT '',
    status                TEXT NOT NULL DEFAULT 'active',
    event_patterns        TEXT[] NOT NULL DEFAULT '{}',
    auth_type             TEXT NOT NULL DEFAULT 'hmac',
    secret                TEXT NOT NULL DEFAULT '',
    signature_algorithm   TEXT NOT NULL DEFAULT 'sha256',
    headers               JSONB NOT NULL DEFAULT '{}',
    retry_policy          JSONB NOT NULL DEFAULT '{}',
    rate_limit            JSONB NOT NULL DEFAULT '{}',
    total_deliveries      BIGINT NOT NULL DEFAULT 0,
    successful_deliveries BIGINT NOT NULL DEFAULT 0,
    failed_deliveries     BIGINT NOT NULL DEFAULT 0,
    metadata              JSONB NOT NULL DEFAULT '{}',
    created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_ferry_endpoints_owner ON ferry_endpoints (owner_id);
CREATE INDEX IF NOT EXISTS idx_ferry_endpoints_status ON ferry_endpoints (status);
`,
	},
	{
		version: "20250301000003",
		name:    "create_ferry_events",
		sql: `
CREATE TABLE IF NOT EXISTS ferry_events (
    id          TEXT PRIMARY KEY,
    type        TEXT NOT NULL DEFAULT '',
    data        JSONB,
    occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_ferry_events_type ON ferry_events (type);
CREATE INDEX IF NOT EXISTS idx_ferry_events_occurred ON ferry_events (occurred_at);
`,
	},
	{
		version: "20250301000004",
		name:    "create_ferry_tasks",
		sql: `
CREATE TABLE IF NOT EXISTS ferry_tasks (
    id               TEXT PRIMARY KEY,
    event_id         TEXT NOT NULL,
    endpoint_id      TEXT NOT NULL,
    state            TEXT NOT NULL DEFAULT 'queued',
    attempt          INT NOT NULL DEFAULT 0,
    max_attempts     INT NOT NULL DEFAULT 0,
    next_attempt_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    retry_of         TEXT,
    last_error       TEXT NOT NULL DEFAULT '',
    last_status_code INT NOT NULL DEFAULT 0,
    completed_at     TIMESTAMPTZ,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_ferry_tasks_pair ON ferry_tasks (endpoint_id, event_id);
CREATE INDEX IF NOT EXISTS idx_ferry_tasks_state ON ferry_tasks (state, created_at);
CREATE INDEX IF NOT EXISTS idx_ferry_tasks_event ON ferry_tasks (event_id);
`,
	},
	{
		version: "20250301000005",
		name:    "create_ferry_attempts",
		sql: `
CREATE TABLE IF NOT EXISTS ferry_attempts (
    id                TEXT PRIMARY KEY,
    task_id           TEXT NOT NULL,
    endpoint_id       TEXT NOT NULL,
    event_id          TEXT NOT NULL,
    attempt_number    INT NOT NULL DEFAULT 0,
    request_headers   JSONB NOT NULL DEFAULT '{}',
    request_body_hash TEXT NOT NULL DEFAULT '',
    status_code       INT NOT NULL DEFAULT 0,
    response_time_ms  INT NOT NULL DEFAULT 0,
    response_body     TEXT NOT NULL DEFAULT '',
    error_message     TEXT NOT NULL DEFAULT '',
    outcome           TEXT NOT NULL,
    attempted_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_ferry_attempts_endpoint ON ferry_attempts (endpoint_id, attempted_at DESC);
CREATE INDEX IF NOT EXISTS idx_ferry_attempts_task ON ferry_attempts (task_id, attempt_number);
CREATE INDEX IF NOT EXISTS idx_ferry_attempts_time ON ferry_attempts (attempted_at);
`,
	},
}
