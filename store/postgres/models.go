package postgres

import (
	"github.com/meridianlabs/ferry/catalog"
	"github.com/meridianlabs/ferry/delivery"
	"github.com/meridianlabs/ferry/endpoint"
	"github.com/meridianlabs/ferry/event"
	"github.com/meridianlabs/ferry/ledger"
	"github.com/meridianlabs/ferry/signature"
)

// Column lists shared by SELECT and RETURNING clauses. Kept next to the scan
// functions so order mismatches are caught in one place.
const (
	eventTypeColumns = `id, name, description, group_name, schema, schema_version,
		version, example, is_deprecated, deprecated_at, metadata, created_at, updated_at`

	endpointColumns = `id, owner_id, name, url, description, status, event_patterns,
		auth_type, secret, signature_algorithm, headers, retry_policy, rate_limit,
		total_deliveries, successful_deliveries, failed_deliveries, metadata,
		created_at, updated_at`

	eventColumns = `id, type, data, occurred_at, created_at, updated_at`

	taskColumns = `id, event_id, endpoint_id, state, attempt, max_attempts,
		next_attempt_at, retry_of, last_error, last_status_code, completed_at,
		created_at, updated_at`

	attemptColumns = `id, task_id, endpoint_id, event_id, attempt_number,
		request_headers, request_body_hash, status_code, response_time_ms,
		response_body, error_message, outcome, attempted_at`
)

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEventType(row scanner) (*catalog.EventType, error) {
	et := new(catalog.EventType)
	err := row.Scan(
		&et.ID,
		&et.Definition.Name,
		&et.Definition.Description,
		&et.Definition.Group,
		&et.Definition.Schema,
		&et.Definition.SchemaVersion,
		&et.Definition.Version,
		&et.Definition.Example,
		&et.IsDeprecated,
		&et.DeprecatedAt,
		&et.Metadata,
		&et.CreatedAt,
		&et.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return et, nil
}

func scanEndpoint(row scanner) (*endpoint.Endpoint, error) {
	ep := new(endpoint.Endpoint)
	var status, authType, sigAlg string
	err := row.Scan(
		&ep.ID,
		&ep.OwnerID,
		&ep.Name,
		&ep.URL,
		&ep.Description,
		&status,
		&ep.EventPatterns,
		&authType,
		&ep.Secret,
		&sigAlg,
		&ep.Headers,
		&ep.RetryPolicy,
		&ep.RateLimit,
		&ep.TotalDeliveries,
		&ep.SuccessfulDeliveries,
		&ep.FailedDeliveries,
		&ep.Metadata,
		&ep.CreatedAt,
		&ep.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	ep.Status = endpoint.Status(status)
	ep.AuthType = endpoint.AuthType(authType)
	ep.SignatureAlgorithm = signature.Algorithm(sigAlg)
	return ep, nil
}

func scanEvent(row scanner) (*event.Event, error) {
	evt := new(event.Event)
	err := row.Scan(
		&evt.ID,
		&evt.Type,
		&evt.Data,
		&evt.OccurredAt,
		&evt.CreatedAt,
		&evt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return evt, nil
}

func scanTask(row scanner) (*delivery.Task, error) {
	t := new(delivery.Task)
	var state string
	err := row.Scan(
		&t.ID,
		&t.EventID,
		&t.EndpointID,
		&state,
		&t.Attempt,
		&t.MaxAttempts,
		&t.NextAttemptAt,
		&t.RetryOf,
		&t.LastError,
		&t.LastStatusCode,
		&t.CompletedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.State = delivery.State(state)
	return t, nil
}

func scanAttempt(row scanner) (*ledger.AttemptRecord, error) {
	rec := new(ledger.AttemptRecord)
	var outcome string
	err := row.Scan(
		&rec.ID,
		&rec.TaskID,
		&rec.EndpointID,
		&rec.EventID,
		&rec.AttemptNumber,
		&rec.RequestHeaders,
		&rec.RequestBodyHash,
		&rec.StatusCode,
		&rec.ResponseTimeMs,
		&rec.ResponseBody,
		&rec.Error,
		&outcome,
		&rec.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	rec.Outcome = ledger.Outcome(outcome)
	return rec, nil
}
