// Package postgres provides the production Store implementation on
// PostgreSQL via pgx. Dequeue uses FOR UPDATE SKIP LOCKED so multiple
// engine instances can share one queue without double-delivery.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianlabs/ferry"
	"github.com/meridianlabs/ferry/catalog"
	"github.com/meridianlabs/ferry/delivery"
	"github.com/meridianlabs/ferry/endpoint"
	"github.com/meridianlabs/ferry/event"
	"github.com/meridianlabs/ferry/id"
	"github.com/meridianlabs/ferry/ledger"
	ferrystore "github.com/meridianlabs/ferry/store"
)

// compile-time interface check.
var _ ferrystore.Store = (*Store)(nil)

// Store implements store.Store on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a connection pool for the given DSN and verifies it.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("ferry/postgres: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ferry/postgres: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ferry/postgres: ping: %w", err)
	}

	return &Store{pool: pool}, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool returns the underlying connection pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate applies all pending schema migrations, tracking versions in
// ferry_schema_migrations.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ferry_schema_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`)
	if err != nil {
		return fmt.Errorf("%w: create migrations table: %v", ferry.ErrMigrationFailed, err)
	}

	for _, m := range migrations {
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("%w: %s: %v", ferry.ErrMigrationFailed, m.name, err)
		}
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	tag, err := tx.Exec(ctx,
		`INSERT INTO ferry_schema_migrations (version, name) VALUES ($1, $2)
		 ON CONFLICT (version) DO NOTHING`, m.version, m.name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil // already applied
	}

	if _, err := tx.Exec(ctx, m.sql); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ──────────────────────────────────────────────────
// catalog.Store
// ──────────────────────────────────────────────────

func (s *Store) RegisterType(ctx context.Context, et *catalog.EventType) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO ferry_event_types (id, name, description, group_name, schema,
    schema_version, version, example, is_deprecated, deprecated_at, metadata,
    created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (name) DO UPDATE SET
    description    = EXCLUDED.description,
    group_name     = EXCLUDED.group_name,
    schema         = EXCLUDED.schema,
    schema_version = EXCLUDED.schema_version,
    version        = EXCLUDED.version,
    example        = EXCLUDED.example,
    is_deprecated  = FALSE,
    deprecated_at  = NULL,
    metadata       = EXCLUDED.metadata,
    updated_at     = EXCLUDED.updated_at`,
		et.ID, et.Definition.Name, et.Definition.Description, et.Definition.Group,
		et.Definition.Schema, et.Definition.SchemaVersion, et.Definition.Version,
		et.Definition.Example, et.IsDeprecated, et.DeprecatedAt, et.Metadata,
		et.CreatedAt, et.UpdatedAt)
	return err
}

func (s *Store) GetType(ctx context.Context, name string) (*catalog.EventType, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+eventTypeColumns+` FROM ferry_event_types WHERE name = $1`, name)
	et, err := scanEventType(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ferry.ErrEventTypeNotFound
		}
		return nil, err
	}
	return et, nil
}

func (s *Store) GetTypeByID(ctx context.Context, etID id.ID) (*catalog.EventType, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+eventTypeColumns+` FROM ferry_event_types WHERE id = $1`, etID)
	et, err := scanEventType(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ferry.ErrEventTypeNotFound
		}
		return nil, err
	}
	return et, nil
}

func (s *Store) ListTypes(ctx context.Context, opts catalog.ListOpts) ([]*catalog.EventType, error) {
	q := `SELECT ` + eventTypeColumns + ` FROM ferry_event_types WHERE 1=1`
	var args []any
	if opts.Group != "" {
		args = append(args, opts.Group)
		q += fmt.Sprintf(" AND group_name = $%d", len(args))
	}
	if !opts.IncludeDeprecated {
		q += " AND is_deprecated = FALSE"
	}
	q += " ORDER BY name ASC"
	q += paginate(&args, opts.Offset, opts.Limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*catalog.EventType
	for rows.Next() {
		et, err := scanEventType(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, et)
	}
	return result, rows.Err()
}

func (s *Store) DeleteType(ctx context.Context, name string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
UPDATE ferry_event_types
SET is_deprecated = TRUE, deprecated_at = $1, updated_at = $1
WHERE name = $2 AND is_deprecated = FALSE`, now, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ferry.ErrEventTypeNotFound
	}
	return nil
}

// ──────────────────────────────────────────────────
// endpoint.Store
// ──────────────────────────────────────────────────

func (s *Store) CreateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO ferry_endpoints (id, owner_id, name, url, description, status,
    event_patterns, auth_type, secret, signature_algorithm, headers,
    retry_policy, rate_limit, total_deliveries, successful_deliveries,
    failed_deliveries, metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		ep.ID, ep.OwnerID, ep.Name, ep.URL, ep.Description, string(ep.Status),
		ep.EventPatterns, string(ep.AuthType), ep.Secret,
		string(ep.SignatureAlgorithm), ep.Headers, ep.RetryPolicy, ep.RateLimit,
		ep.TotalDeliveries, ep.SuccessfulDeliveries, ep.FailedDeliveries,
		ep.Metadata, ep.CreatedAt, ep.UpdatedAt)
	return err
}

func (s *Store) GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+endpointColumns+` FROM ferry_endpoints WHERE id = $1`, epID)
	ep, err := scanEndpoint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ferry.ErrEndpointNotFound
		}
		return nil, err
	}
	return ep, nil
}

func (s *Store) UpdateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE ferry_endpoints SET
    owner_id = $2, name = $3, url = $4, description = $5, status = $6,
    event_patterns = $7, auth_type = $8, secret = $9, signature_algorithm = $10,
    headers = $11, retry_policy = $12, rate_limit = $13, metadata = $14,
    updated_at = NOW()
WHERE id = $1`,
		ep.ID, ep.OwnerID, ep.Name, ep.URL, ep.Description, string(ep.Status),
		ep.EventPatterns, string(ep.AuthType), ep.Secret,
		string(ep.SignatureAlgorithm), ep.Headers, ep.RetryPolicy, ep.RateLimit,
		ep.Metadata)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ferry.ErrEndpointNotFound
	}
	return nil
}

func (s *Store) DeleteEndpoint(ctx context.Context, epID id.ID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ferry_endpoints WHERE id = $1`, epID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ferry.ErrEndpointNotFound
	}
	return nil
}

func (s *Store) ListEndpoints(ctx context.Context, ownerID string, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	q := `SELECT ` + endpointColumns + ` FROM ferry_endpoints WHERE 1=1`
	var args []any
	if ownerID != "" {
		args = append(args, ownerID)
		q += fmt.Sprintf(" AND owner_id = $%d", len(args))
	}
	if opts.Status != nil {
		args = append(args, string(*opts.Status))
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	q += " ORDER BY created_at ASC"
	q += paginate(&args, opts.Offset, opts.Limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*endpoint.Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ep)
	}
	return result, rows.Err()
}

// Resolve fetches all active endpoints and matches patterns in application
// code: the pattern grammar is Ferry's, not SQL's.
func (s *Store) Resolve(ctx context.Context, eventType string) ([]*endpoint.Endpoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+endpointColumns+` FROM ferry_endpoints WHERE status = $1 ORDER BY id`,
		string(endpoint.StatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*endpoint.Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		if catalog.MatchAny(ep.EventPatterns, eventType) {
			result = append(result, ep)
		}
	}
	return result, rows.Err()
}

func (s *Store) SetStatus(ctx context.Context, epID id.ID, status endpoint.Status) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE ferry_endpoints SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(status), epID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ferry.ErrEndpointNotFound
	}
	return nil
}

func (s *Store) IncrementCounters(ctx context.Context, epID id.ID, total, successful, failed int64) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE ferry_endpoints SET
    total_deliveries      = total_deliveries + $1,
    successful_deliveries = successful_deliveries + $2,
    failed_deliveries     = failed_deliveries + $3,
    updated_at            = NOW()
WHERE id = $4`, total, successful, failed, epID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ferry.ErrEndpointNotFound
	}
	return nil
}

// ──────────────────────────────────────────────────
// event.Store
// ──────────────────────────────────────────────────

func (s *Store) CreateEvent(ctx context.Context, evt *event.Event) error {
	tag, err := s.pool.Exec(ctx, `
INSERT INTO ferry_events (id, type, data, occurred_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING`,
		evt.ID, evt.Type, evt.Data, evt.OccurredAt, evt.CreatedAt, evt.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ferry.ErrDuplicateEvent
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM ferry_events WHERE id = $1`, evtID)
	evt, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ferry.ErrEventNotFound
		}
		return nil, err
	}
	return evt, nil
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM ferry_events WHERE 1=1`
	var args []any
	if opts.Type != "" {
		args = append(args, opts.Type)
		q += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if opts.From != nil {
		args = append(args, *opts.From)
		q += fmt.Sprintf(" AND occurred_at >= $%d", len(args))
	}
	if opts.To != nil {
		args = append(args, *opts.To)
		q += fmt.Sprintf(" AND occurred_at <= $%d", len(args))
	}
	q += " ORDER BY occurred_at DESC"
	q += paginate(&args, opts.Offset, opts.Limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, evt)
	}
	return result, rows.Err()
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

const insertTaskSQL = `
INSERT INTO ferry_tasks (id, event_id, endpoint_id, state, attempt,
    max_attempts, next_attempt_at, retry_of, last_error, last_status_code,
    completed_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

func (s *Store) EnqueueTask(ctx context.Context, t *delivery.Task) error {
	_, err := s.pool.Exec(ctx, insertTaskSQL, taskArgs(t)...)
	return err
}

func (s *Store) EnqueueTasks(ctx context.Context, ts []*delivery.Task) error {
	if len(ts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range ts {
		batch.Queue(insertTaskSQL, taskArgs(t)...)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

func taskArgs(t *delivery.Task) []any {
	return []any{
		t.ID, t.EventID, t.EndpointID, string(t.State), t.Attempt,
		t.MaxAttempts, t.NextAttemptAt, t.RetryOf, t.LastError,
		t.LastStatusCode, t.CompletedAt, t.CreatedAt, t.UpdatedAt,
	}
}

// Dequeue claims up to limit queued tasks by flipping them to sending.
// FOR UPDATE SKIP LOCKED lets concurrent engines claim disjoint sets.
func (s *Store) Dequeue(ctx context.Context, limit int) ([]*delivery.Task, error) {
	rows, err := s.pool.Query(ctx, `
UPDATE ferry_tasks
SET state = $1, updated_at = NOW()
WHERE id IN (
    SELECT id FROM ferry_tasks
    WHERE state = $2
    ORDER BY created_at ASC
    LIMIT $3
    FOR UPDATE SKIP LOCKED
)
RETURNING `+taskColumns,
		string(delivery.StateSending), string(delivery.StateQueued), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*delivery.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		// The claim flipped the row to sending; present the task as still
		// queued so the engine owns the transition.
		t.State = delivery.StateQueued
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *Store) UpdateTask(ctx context.Context, t *delivery.Task) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE ferry_tasks SET
    state = $2, attempt = $3, next_attempt_at = $4, last_error = $5,
    last_status_code = $6, completed_at = $7, updated_at = NOW()
WHERE id = $1`,
		t.ID, string(t.State), t.Attempt, t.NextAttemptAt, t.LastError,
		t.LastStatusCode, t.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ferry.ErrTaskNotFound
	}
	return nil
}

func (s *Store) ReleaseTask(ctx context.Context, taskID id.ID) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE ferry_tasks SET state = $1, updated_at = NOW()
WHERE id = $2 AND state = $3`,
		string(delivery.StateQueued), taskID, string(delivery.StateSending))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ferry.ErrTaskNotFound
	}
	return nil
}

func (s *Store) RequeueTask(ctx context.Context, taskID id.ID) error {
	// Idempotent: a task already picked up or completed is left alone.
	_, err := s.pool.Exec(ctx, `
UPDATE ferry_tasks SET state = $1, updated_at = NOW()
WHERE id = $2 AND state = $3`,
		string(delivery.StateQueued), taskID, string(delivery.StateRetrying))
	return err
}

func (s *Store) GetTask(ctx context.Context, taskID id.ID) (*delivery.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM ferry_tasks WHERE id = $1`, taskID)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ferry.ErrTaskNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *Store) TaskForEvent(ctx context.Context, epID, evtID id.ID) (*delivery.Task, error) {
	row := s.pool.QueryRow(ctx, `
SELECT `+taskColumns+` FROM ferry_tasks
WHERE endpoint_id = $1 AND event_id = $2
ORDER BY created_at DESC
LIMIT 1`, epID, evtID)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ferry.ErrTaskNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *Store) ListTasksByEndpoint(ctx context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM ferry_tasks WHERE endpoint_id = $1`
	args := []any{epID}
	if opts.State != nil {
		args = append(args, string(*opts.State))
		q += fmt.Sprintf(" AND state = $%d", len(args))
	}
	q += " ORDER BY created_at DESC"
	q += paginate(&args, opts.Offset, opts.Limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*delivery.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *Store) ListTasksByEvent(ctx context.Context, evtID id.ID) ([]*delivery.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM ferry_tasks WHERE event_id = $1 ORDER BY id`, evtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*delivery.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *Store) ListRetryingTasks(ctx context.Context) ([]*delivery.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM ferry_tasks WHERE state = $1`,
		string(delivery.StateRetrying))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*delivery.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *Store) CountTasksByState(ctx context.Context, state delivery.State) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM ferry_tasks WHERE state = $1`, string(state)).Scan(&n)
	return n, err
}

// ──────────────────────────────────────────────────
// ledger.Store
// ──────────────────────────────────────────────────

func (s *Store) AppendAttempt(ctx context.Context, rec *ledger.AttemptRecord) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO ferry_attempts (id, task_id, endpoint_id, event_id, attempt_number,
    request_headers, request_body_hash, status_code, response_time_ms,
    response_body, error_message, outcome, attempted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.TaskID, rec.EndpointID, rec.EventID, rec.AttemptNumber,
		rec.RequestHeaders, rec.RequestBodyHash, rec.StatusCode,
		rec.ResponseTimeMs, rec.ResponseBody, rec.Error, string(rec.Outcome),
		rec.Timestamp)
	return err
}

func (s *Store) ListAttemptsByEndpoint(ctx context.Context, epID id.ID, opts ledger.ListOpts) ([]*ledger.AttemptRecord, error) {
	q := `SELECT ` + attemptColumns + ` FROM ferry_attempts WHERE endpoint_id = $1 ORDER BY attempted_at DESC`
	args := []any{epID}
	q += paginate(&args, opts.Offset, opts.Limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*ledger.AttemptRecord
	for rows.Next() {
		rec, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *Store) ListAttemptsByTask(ctx context.Context, taskID id.ID) ([]*ledger.AttemptRecord, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+attemptColumns+` FROM ferry_attempts
WHERE task_id = $1
ORDER BY attempt_number ASC, attempted_at ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*ledger.AttemptRecord
	for rows.Next() {
		rec, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *Store) PurgeAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM ferry_attempts WHERE attempted_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// paginate appends LIMIT/OFFSET clauses and their args.
func paginate(args *[]any, offset, limit int) string {
	var q string
	if limit > 0 {
		*args = append(*args, limit)
		q += fmt.Sprintf(" LIMIT $%d", len(*args))
	}
	if offset > 0 {
		*args = append(*args, offset)
		q += fmt.Sprintf(" OFFSET $%d", len(*args))
	}
	return q
}
