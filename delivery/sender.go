package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/meridianlabs/ferry/endpoint"
	"github.com/meridianlabs/ferry/event"
	"github.com/meridianlabs/ferry/ledger"
	"github.com/meridianlabs/ferry/signature"
)

const maxResponseBody = 1024 // 1KB cap on response body storage

// SenderConfig configures the HTTP sender.
type SenderConfig struct {
	// Timeout bounds each attempt. Clamped to [10s, 120s], default 30s.
	Timeout time.Duration

	// SignatureHeader carries the HMAC signature. Default "X-Webhook-Signature".
	SignatureHeader string

	// TimestampHeader carries the signing timestamp. Default "X-Webhook-Timestamp".
	TimestampHeader string
}

func (c *SenderConfig) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Timeout < 10*time.Second {
		c.Timeout = 10 * time.Second
	}
	if c.Timeout > 120*time.Second {
		c.Timeout = 120 * time.Second
	}
	if c.SignatureHeader == "" {
		c.SignatureHeader = signature.DefaultHeader
	}
	if c.TimestampHeader == "" {
		c.TimestampHeader = signature.DefaultTimestampHeader
	}
}

// envelope is the canonical JSON delivery body.
type envelope struct {
	Event     string `json:"event"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// Sender performs HTTP webhook delivery.
type Sender struct {
	client *http.Client
	config SenderConfig
}

// NewSender creates a sender.
func NewSender(cfg SenderConfig) *Sender {
	cfg.applyDefaults()
	return &Sender{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
	}
}

// Send delivers an event to an endpoint and returns the result.
func (s *Sender) Send(ctx context.Context, ep *endpoint.Endpoint, evt *event.Event, t *Task) Result {
	ts := time.Now().Unix()

	body, err := json.Marshal(envelope{
		Event:     evt.Type,
		Data:      evt.Data,
		Timestamp: ts,
	})
	if err != nil {
		return Result{Error: fmt.Sprintf("marshal payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}

	// Standard headers.
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Ferry/1.0")
	req.Header.Set("X-Ferry-Event-ID", evt.ID.String())
	req.Header.Set("X-Ferry-Event-Type", evt.Type)
	req.Header.Set("X-Ferry-Task-ID", t.ID.String())

	s.applyAuth(req, ep, body, ts)

	// Custom endpoint headers.
	for k, v := range ep.Headers {
		req.Header.Set(k, v)
	}

	result := Result{
		RequestHeaders: redactHeaders(req.Header),
		BodyHash:       ledger.HashBody(body),
	}

	start := time.Now()
	resp, err := s.client.Do(req) //nolint:gosec // G704: URL is a user-configured webhook destination; SSRF is by design.
	result.LatencyMs = int(time.Since(start).Milliseconds())

	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if readErr != nil {
		result.Error = fmt.Sprintf("read response: %v", readErr)
		return result
	}

	result.Response = string(respBody)
	return result
}

// applyAuth sets the authentication headers for the endpoint's auth scheme.
func (s *Sender) applyAuth(req *http.Request, ep *endpoint.Endpoint, body []byte, ts int64) {
	switch ep.AuthType {
	case endpoint.AuthAPIKey:
		req.Header.Set("X-API-Key", ep.Secret)
	case endpoint.AuthBearer:
		req.Header.Set("Authorization", "Bearer "+ep.Secret)
	case endpoint.AuthBasic:
		// Secret holds "user:password".
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(ep.Secret)))
	case endpoint.AuthHMAC:
		sig := signature.Sign(body, ep.Secret, ep.SignatureAlgorithm, ts)
		req.Header.Set(s.config.SignatureHeader, sig)
		req.Header.Set(s.config.TimestampHeader, strconv.FormatInt(ts, 10))
	case endpoint.AuthNone:
	}
}

// sensitiveHeaders are never written to the ledger in plaintext.
var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
}

// redactHeaders flattens request headers for the ledger, masking credentials.
func redactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if sensitiveHeaders[strings.ToLower(k)] {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = strings.Join(vs, ", ")
	}
	return out
}

// parseRetryAfter reads an integer-seconds Retry-After value. HTTP-date
// forms are ignored; callers fall back to computed backoff.
func parseRetryAfter(v string) int {
	if v == "" {
		return 0
	}
	sec, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || sec < 0 {
		return 0
	}
	return sec
}
