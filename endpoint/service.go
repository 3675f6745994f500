package endpoint

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/meridianlabs/ferry/id"
	"github.com/meridianlabs/ferry/internal/entity"
	"github.com/meridianlabs/ferry/signature"
)

// Service provides endpoint management operations.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new endpoint service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger.With("component", "endpoint"),
	}
}

// Create registers a new webhook endpoint. New endpoints start active.
func (svc *Service) Create(ctx context.Context, in Input) (*Endpoint, error) {
	if err := validateURL(in.URL); err != nil {
		return nil, err
	}

	if in.OwnerID == "" {
		return nil, &ValidationError{Field: "owner_id", Message: "required"}
	}

	if len(in.EventPatterns) == 0 {
		return nil, &ValidationError{Field: "event_patterns", Message: "at least one event pattern required"}
	}

	authType := in.AuthType
	if authType == "" {
		authType = AuthHMAC
	}
	if !authType.Valid() {
		return nil, &ValidationError{Field: "auth_type", Message: "unknown auth type"}
	}

	alg := in.SignatureAlgorithm
	if alg == "" {
		alg = signature.AlgorithmSHA256
	}
	if !alg.Valid() {
		return nil, &ValidationError{Field: "signature_algorithm", Message: "unknown algorithm"}
	}

	secret := in.Secret
	if secret == "" {
		if authType == AuthHMAC {
			secret = signature.GenerateSecret()
		} else if authType != AuthNone {
			return nil, &ValidationError{Field: "secret", Message: "required for auth type " + string(authType)}
		}
	}

	policy := DefaultRetryPolicy()
	if in.RetryPolicy != nil {
		policy = *in.RetryPolicy
		if err := validateRetryPolicy(policy); err != nil {
			return nil, err
		}
	}

	var limit RateLimit
	if in.RateLimit != nil {
		limit = *in.RateLimit
		if err := validateRateLimit(limit); err != nil {
			return nil, err
		}
		if limit.OverflowAction == "" {
			limit.OverflowAction = OverflowQueue
		}
	}

	ep := &Endpoint{
		Entity:             entity.New(),
		ID:                 id.NewEndpointID(),
		OwnerID:            in.OwnerID,
		Name:               in.Name,
		URL:                in.URL,
		Description:        in.Description,
		Status:             StatusActive,
		EventPatterns:      in.EventPatterns,
		AuthType:           authType,
		Secret:             secret,
		SignatureAlgorithm: alg,
		Headers:            in.Headers,
		RetryPolicy:        policy,
		RateLimit:          limit,
		Metadata:           in.Metadata,
	}

	if err := svc.store.CreateEndpoint(ctx, ep); err != nil {
		return nil, err
	}

	svc.logger.InfoContext(ctx, "endpoint created",
		"endpoint_id", ep.ID.String(),
		"url", ep.URL,
		"patterns", ep.EventPatterns,
	)

	return ep, nil
}

// Get returns an endpoint by ID.
func (svc *Service) Get(ctx context.Context, epID id.ID) (*Endpoint, error) {
	return svc.store.GetEndpoint(ctx, epID)
}

// Update modifies an existing endpoint. Zero-valued fields are left unchanged.
func (svc *Service) Update(ctx context.Context, epID id.ID, in Input) (*Endpoint, error) {
	ep, err := svc.store.GetEndpoint(ctx, epID)
	if err != nil {
		return nil, err
	}

	if in.URL != "" {
		if err := validateURL(in.URL); err != nil {
			return nil, err
		}
		ep.URL = in.URL
	}
	if in.Name != "" {
		ep.Name = in.Name
	}
	if in.Description != "" {
		ep.Description = in.Description
	}
	if len(in.EventPatterns) > 0 {
		ep.EventPatterns = in.EventPatterns
	}
	if in.AuthType != "" {
		if !in.AuthType.Valid() {
			return nil, &ValidationError{Field: "auth_type", Message: "unknown auth type"}
		}
		ep.AuthType = in.AuthType
	}
	if in.Secret != "" {
		ep.Secret = in.Secret
	}
	if in.SignatureAlgorithm != "" {
		if !in.SignatureAlgorithm.Valid() {
			return nil, &ValidationError{Field: "signature_algorithm", Message: "unknown algorithm"}
		}
		ep.SignatureAlgorithm = in.SignatureAlgorithm
	}
	if in.Headers != nil {
		ep.Headers = in.Headers
	}
	if in.RetryPolicy != nil {
		if err := validateRetryPolicy(*in.RetryPolicy); err != nil {
			return nil, err
		}
		ep.RetryPolicy = *in.RetryPolicy
	}
	if in.RateLimit != nil {
		if err := validateRateLimit(*in.RateLimit); err != nil {
			return nil, err
		}
		ep.RateLimit = *in.RateLimit
		if ep.RateLimit.OverflowAction == "" {
			ep.RateLimit.OverflowAction = OverflowQueue
		}
	}
	if in.Metadata != nil {
		ep.Metadata = in.Metadata
	}
	if ep.AuthType == AuthHMAC && ep.Secret == "" {
		return nil, &ValidationError{Field: "secret", Message: "required for auth type hmac"}
	}

	if err := svc.store.UpdateEndpoint(ctx, ep); err != nil {
		return nil, err
	}

	return ep, nil
}

// Delete removes an endpoint.
func (svc *Service) Delete(ctx context.Context, epID id.ID) error {
	return svc.store.DeleteEndpoint(ctx, epID)
}

// List returns endpoints for an owner.
func (svc *Service) List(ctx context.Context, ownerID string, opts ListOpts) ([]*Endpoint, error) {
	return svc.store.ListEndpoints(ctx, ownerID, opts)
}

// Pause suspends routing to an endpoint until Resume is called.
func (svc *Service) Pause(ctx context.Context, epID id.ID) error {
	return svc.store.SetStatus(ctx, epID, StatusPaused)
}

// Resume reactivates a paused, failed, or disabled endpoint.
func (svc *Service) Resume(ctx context.Context, epID id.ID) error {
	return svc.store.SetStatus(ctx, epID, StatusActive)
}

// Disable permanently switches an endpoint off. In-flight deliveries
// complete, but no further retries are scheduled.
func (svc *Service) Disable(ctx context.Context, epID id.ID) error {
	return svc.store.SetStatus(ctx, epID, StatusDisabled)
}

// PauseAll pauses every active endpoint for an owner and returns how many
// endpoints were transitioned.
func (svc *Service) PauseAll(ctx context.Context, ownerID string) (int, error) {
	return svc.bulkSetStatus(ctx, ownerID, StatusActive, StatusPaused)
}

// ResumeAll reactivates every paused endpoint for an owner and returns how
// many endpoints were transitioned.
func (svc *Service) ResumeAll(ctx context.Context, ownerID string) (int, error) {
	return svc.bulkSetStatus(ctx, ownerID, StatusPaused, StatusActive)
}

func (svc *Service) bulkSetStatus(ctx context.Context, ownerID string, from, to Status) (int, error) {
	eps, err := svc.store.ListEndpoints(ctx, ownerID, ListOpts{Status: &from})
	if err != nil {
		return 0, err
	}

	count := 0
	for _, ep := range eps {
		if err := svc.store.SetStatus(ctx, ep.ID, to); err != nil {
			return count, err
		}
		count++
	}

	svc.logger.InfoContext(ctx, "bulk status change",
		"owner_id", ownerID,
		"from", string(from),
		"to", string(to),
		"count", count,
	)

	return count, nil
}

// RotateSecret generates a new signing secret for an endpoint.
func (svc *Service) RotateSecret(ctx context.Context, epID id.ID) (string, error) {
	ep, err := svc.store.GetEndpoint(ctx, epID)
	if err != nil {
		return "", err
	}

	newSecret := signature.GenerateSecret()

	ep.Secret = newSecret
	if err := svc.store.UpdateEndpoint(ctx, ep); err != nil {
		return "", err
	}

	svc.logger.InfoContext(ctx, "endpoint secret rotated", "endpoint_id", epID.String())

	return newSecret, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &ValidationError{Field: "url", Message: "must be an absolute URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "scheme must be http or https"}
	}
	return nil
}

func validateRetryPolicy(p RetryPolicy) error {
	if p.MaxAttempts < 0 {
		return &ValidationError{Field: "retry_policy.max_attempts", Message: "must be >= 0"}
	}
	if !p.Backoff.Valid() {
		return &ValidationError{Field: "retry_policy.backoff", Message: "must be linear or exponential"}
	}
	if p.InitialDelayMs <= 0 {
		return &ValidationError{Field: "retry_policy.initial_delay_ms", Message: "must be > 0"}
	}
	if p.MaxDelayMs < p.InitialDelayMs {
		return &ValidationError{Field: "retry_policy.max_delay_ms", Message: "must be >= initial_delay_ms"}
	}
	return nil
}

func validateRateLimit(l RateLimit) error {
	if !l.Enabled {
		return nil
	}
	if l.RequestsPerMinute <= 0 {
		return &ValidationError{Field: "rate_limit.requests_per_minute", Message: "must be > 0"}
	}
	if l.OverflowAction != "" && !l.OverflowAction.Valid() {
		return &ValidationError{Field: "rate_limit.overflow_action", Message: "must be queue, drop, or error"}
	}
	return nil
}

// ValidationError indicates invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "endpoint validation: " + e.Field + ": " + e.Message
}
