package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/meridianlabs/ferry"
	"github.com/meridianlabs/ferry/api"
	"github.com/meridianlabs/ferry/store/memory"
)

// testServer creates a Handler backed by a memory store and returns the test
// server plus the Ferry behind it.
func testServer(t *testing.T) (*httptest.Server, *ferry.Ferry) {
	t.Helper()

	f, err := ferry.New(
		ferry.WithStore(memory.New()),
		ferry.WithLogger(slog.Default()),
	)
	if err != nil {
		t.Fatalf("new ferry: %v", err)
	}

	h := api.NewHandler(f, slog.Default())
	return httptest.NewServer(h), f
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

// --- Event types ---

func TestEventTypes_CRUD(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()

	resp := doJSON(t, "POST", srv.URL+"/event-types", map[string]any{
		"name":        "order.created",
		"description": "Fired when an order is created",
		"group":       "order",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "GET", srv.URL+"/event-types/order.created", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	var et struct {
		Definition map[string]any `json:"definition"`
		Deprecated bool           `json:"deprecated"`
	}
	decodeBody(t, resp, &et)
	if et.Definition["name"] != "order.created" {
		t.Errorf("expected name order.created, got %v", et.Definition["name"])
	}

	resp = doJSON(t, "GET", srv.URL+"/event-types", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.StatusCode)
	}
	var list struct {
		Count int `json:"count"`
	}
	decodeBody(t, resp, &list)
	if list.Count != 1 {
		t.Errorf("expected 1 event type, got %d", list.Count)
	}

	resp = doJSON(t, "DELETE", srv.URL+"/event-types/order.created", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Deletion deprecates rather than erases; the type stays readable.
	resp = doJSON(t, "GET", srv.URL+"/event-types/order.created", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get after delete: expected 200, got %d", resp.StatusCode)
	}
	decodeBody(t, resp, &et)
	if !et.Deprecated {
		t.Error("deleted type should be deprecated")
	}
}

// --- Endpoints ---

func createTestEndpoint(t *testing.T, srv *httptest.Server, patterns ...string) map[string]any {
	t.Helper()
	if len(patterns) == 0 {
		patterns = []string{"order.*"}
	}
	resp := doJSON(t, "POST", srv.URL+"/endpoints", map[string]any{
		"owner_id":       "owner-1",
		"name":           "billing hook",
		"url":            "https://hooks.example.com/billing",
		"event_patterns": patterns,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create endpoint: expected 201, got %d", resp.StatusCode)
	}
	var ep map[string]any
	decodeBody(t, resp, &ep)
	return ep
}

func TestEndpoints_CRUD(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()

	ep := createTestEndpoint(t, srv)
	epID, _ := ep["id"].(string)
	if epID == "" {
		t.Fatal("expected endpoint id in create response")
	}
	if ep["secret"] == "" {
		t.Error("create response should include the generated secret")
	}
	if ep["status"] != "active" {
		t.Errorf("new endpoint should be active, got %v", ep["status"])
	}

	// Reads never leak the secret.
	resp := doJSON(t, "GET", srv.URL+"/endpoints/"+epID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	var got map[string]any
	decodeBody(t, resp, &got)
	if _, leaked := got["secret"]; leaked {
		t.Error("endpoint read must not include the secret")
	}

	resp = doJSON(t, "PUT", srv.URL+"/endpoints/"+epID, map[string]any{
		"name": "billing hook v2",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", resp.StatusCode)
	}
	decodeBody(t, resp, &got)
	if got["name"] != "billing hook v2" {
		t.Errorf("expected updated name, got %v", got["name"])
	}

	resp = doJSON(t, "GET", srv.URL+"/endpoints?owner_id=owner-1", nil)
	var list struct {
		Count int `json:"count"`
	}
	decodeBody(t, resp, &list)
	if list.Count != 1 {
		t.Errorf("expected 1 endpoint, got %d", list.Count)
	}

	resp = doJSON(t, "DELETE", srv.URL+"/endpoints/"+epID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestEndpoints_InvalidInput(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()

	resp := doJSON(t, "POST", srv.URL+"/endpoints", map[string]any{
		"owner_id":       "owner-1",
		"url":            "not-a-url",
		"event_patterns": []string{"*"},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad url, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "GET", srv.URL+"/endpoints/not-an-id", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestEndpoints_PauseResume(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()

	ep := createTestEndpoint(t, srv)
	epID := ep["id"].(string)

	resp := doJSON(t, "POST", srv.URL+"/endpoints/"+epID+"/pause", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("pause: expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "GET", srv.URL+"/endpoints/"+epID, nil)
	var got map[string]any
	decodeBody(t, resp, &got)
	if got["status"] != "paused" {
		t.Errorf("expected paused, got %v", got["status"])
	}

	resp = doJSON(t, "POST", srv.URL+"/endpoints/"+epID+"/resume", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("resume: expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "GET", srv.URL+"/endpoints/"+epID, nil)
	decodeBody(t, resp, &got)
	if got["status"] != "active" {
		t.Errorf("expected active, got %v", got["status"])
	}
}

func TestEndpoints_RotateSecret(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()

	ep := createTestEndpoint(t, srv)
	epID := ep["id"].(string)
	oldSecret := ep["secret"].(string)

	resp := doJSON(t, "POST", srv.URL+"/endpoints/"+epID+"/rotate-secret", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rotate: expected 200, got %d", resp.StatusCode)
	}
	var rotated map[string]string
	decodeBody(t, resp, &rotated)
	if rotated["secret"] == "" || rotated["secret"] == oldSecret {
		t.Error("rotation should return a fresh secret")
	}
}

func TestEndpoints_BulkPauseResume(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()

	createTestEndpoint(t, srv, "order.*")
	createTestEndpoint(t, srv, "invoice.*")

	resp := doJSON(t, "POST", srv.URL+"/endpoints/pause-all?owner_id=owner-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pause-all: expected 200, got %d", resp.StatusCode)
	}
	var res map[string]int
	decodeBody(t, resp, &res)
	if res["updated"] != 2 {
		t.Errorf("expected 2 paused, got %d", res["updated"])
	}

	resp = doJSON(t, "POST", srv.URL+"/endpoints/resume-all?owner_id=owner-1", nil)
	decodeBody(t, resp, &res)
	if res["updated"] != 2 {
		t.Errorf("expected 2 resumed, got %d", res["updated"])
	}

	resp = doJSON(t, "POST", srv.URL+"/endpoints/pause-all", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("pause-all without owner: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

// --- Events and tasks ---

func TestPublishEvent_FansOutTasks(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()

	createTestEndpoint(t, srv, "order.*")

	resp := doJSON(t, "POST", srv.URL+"/events", map[string]any{
		"type": "order.completed",
		"data": map[string]any{"order_id": "ord_123"},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("publish: expected 202, got %d", resp.StatusCode)
	}
	var pub map[string]string
	decodeBody(t, resp, &pub)
	evtID := pub["event_id"]
	if evtID == "" {
		t.Fatal("expected event_id in publish response")
	}

	resp = doJSON(t, "GET", srv.URL+"/events/"+evtID+"/tasks", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tasks by event: expected 200, got %d", resp.StatusCode)
	}
	var tasks struct {
		Count int `json:"count"`
		Tasks []map[string]any
	}
	decodeBody(t, resp, &tasks)
	if tasks.Count != 1 {
		t.Fatalf("expected 1 task, got %d", tasks.Count)
	}
	if tasks.Tasks[0]["state"] != "queued" {
		t.Errorf("new task should be queued, got %v", tasks.Tasks[0]["state"])
	}
}

func TestPublishEvent_RequiresType(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()

	resp := doJSON(t, "POST", srv.URL+"/events", map[string]any{
		"data": map[string]any{"x": 1},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing type, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRetryTask_OnlyFailedTasks(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()

	createTestEndpoint(t, srv, "order.*")
	resp := doJSON(t, "POST", srv.URL+"/events", map[string]any{
		"type": "order.completed",
		"data": map[string]any{},
	})
	var pub map[string]string
	decodeBody(t, resp, &pub)

	resp = doJSON(t, "GET", srv.URL+"/events/"+pub["event_id"]+"/tasks", nil)
	var tasks struct {
		Tasks []map[string]any
	}
	decodeBody(t, resp, &tasks)
	taskID := tasks.Tasks[0]["id"].(string)

	// A queued task is not retryable.
	resp = doJSON(t, "POST", srv.URL+"/tasks/"+taskID+"/retry", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("retry of queued task: expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestGetTask_NotFound(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()

	resp := doJSON(t, "GET", srv.URL+"/tasks/task_00000000000000000000000000", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

// --- Stats ---

func TestStats(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()

	createTestEndpoint(t, srv, "*")
	resp := doJSON(t, "POST", srv.URL+"/events", map[string]any{
		"type": "order.completed",
		"data": map[string]any{},
	})
	resp.Body.Close()

	resp = doJSON(t, "GET", srv.URL+"/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", resp.StatusCode)
	}
	var stats struct {
		Endpoints map[string]int   `json:"endpoints"`
		Tasks     map[string]int64 `json:"tasks"`
	}
	decodeBody(t, resp, &stats)
	if stats.Tasks["queued"] != 1 {
		t.Errorf("expected 1 queued task, got %d", stats.Tasks["queued"])
	}
	if stats.Endpoints["active"] != 1 {
		t.Errorf("expected 1 active endpoint, got %d", stats.Endpoints["active"])
	}
}
