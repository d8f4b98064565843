package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/lifelog/internal/apperr"
	"github.com/starford/lifelog/internal/query"
	"github.com/starford/lifelog/internal/schema"
	"github.com/starford/lifelog/internal/testutil"
)

var clock = time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)

// testEnv sets up a temp SQLite DB, engine, and router for testing. An
// empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*testutil.Fixtures, http.Handler) {
	t.Helper()
	db := testutil.TestDB(t)
	model := schema.MustDefault()
	eng := query.New(db.SQL(), db.Dialect(), model, query.WithClock(func() time.Time { return clock }))
	router := NewRouter(NewHandler(eng, model.Describe()), authToken != "", authToken)
	return testutil.NewFixtures(t, db), router
}

func post(t *testing.T, router http.Handler, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestQueryEndpoint(t *testing.T) {
	fx, router := testEnv(t, "")
	gym := fx.Location("Gym", "gym", "Berlin")
	id := fx.Event(testutil.Event{Title: "lift", Start: clock.Add(-time.Hour), EventType: "workout", LocationID: gym})
	fx.Workout(id, "strength", 8, 300)
	fx.Tag(id, "gym")
	fx.Event(testutil.Event{Title: "read", Start: clock.Add(-2 * time.Hour)})

	w := post(t, router, "/query", map[string]any{
		"filters": map[string]any{"workout.intensity": map[string]any{"gte": 5}},
		"hydrate": []string{"location", "tags", "specialization"},
	}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Rows []map[string]any `json:"rows"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(resp.Rows))
	}
	row := resp.Rows[0]
	if row["title"] != "lift" {
		t.Errorf("title = %v", row["title"])
	}
	spec, _ := row["specialization"].(map[string]any)
	if spec["kind"] != "workout" || spec["intensity"] != float64(8) {
		t.Errorf("specialization = %v", spec)
	}
	loc, _ := row["location"].(map[string]any)
	if loc["name"] != "Gym" {
		t.Errorf("location = %v", loc)
	}
	if tags, _ := row["tags"].([]any); len(tags) != 1 || tags[0] != "gym" {
		t.Errorf("tags = %v", row["tags"])
	}
}

func TestQueryEndpoint_ValidationError(t *testing.T) {
	_, router := testEnv(t, "")

	w := post(t, router, "/query", map[string]any{"filters": map[string]any{"foo.bar": 1}}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp errResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Field != "foo.bar" {
		t.Errorf("field = %q, want foo.bar", resp.Field)
	}
}

func TestQueryEndpoint_EnvelopeValidation(t *testing.T) {
	_, router := testEnv(t, "")

	w := post(t, router, "/query", map[string]any{"limit": -1}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Field != "limit" {
		t.Errorf("field = %q, want limit", resp.Field)
	}

	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", rec.Code)
	}
}

func TestQueryEndpoint_NotFound(t *testing.T) {
	_, router := testEnv(t, "")

	w := post(t, router, "/query", map[string]any{"target_entity": "meeting"}, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown entity = %d, want 404", w.Code)
	}
	w = post(t, router, "/query", map[string]any{"hydrate": []string{"friends"}}, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown relationship = %d, want 404", w.Code)
	}
}

func TestAggregateEndpoint(t *testing.T) {
	fx, router := testEnv(t, "")
	for _, c := range []string{"work", "work", "personal"} {
		fx.Event(testutil.Event{Start: clock.Add(-time.Hour), Category: c})
	}

	w := post(t, router, "/aggregate", map[string]any{
		"filters":  map[string]any{"date_range": "today"},
		"group_by": []string{"category"},
		"metrics":  []string{"count"},
		"order_by": []string{"-count"},
	}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Rows []map[string]any `json:"rows"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Rows) != 2 || resp.Rows[0]["category"] != "work" || resp.Rows[0]["count"] != float64(2) {
		t.Errorf("rows = %v", resp.Rows)
	}

	w = post(t, router, "/aggregate", map[string]any{"group_by": []string{"category"}}, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing metrics = %d, want 400", w.Code)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	req := httptest.NewRequest(http.MethodGet, "/schema", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var entities []schema.EntityInfo
	if err := json.Unmarshal(w.Body.Bytes(), &entities); err != nil {
		t.Fatal(err)
	}
	if len(entities) != 3 {
		t.Errorf("entities = %d, want 3", len(entities))
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	w := post(t, router, "/query", map[string]any{}, "secret123")
	if w.Code != http.StatusOK {
		t.Errorf("authed query = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	req := httptest.NewRequest(http.MethodGet, "/schema", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	w := post(t, router, "/query", map[string]any{}, "wrong")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

type failingEngine struct{ err error }

func (f failingEngine) Query(context.Context, query.QueryRequest) (*query.Result, error) {
	return nil, f.err
}

func (f failingEngine) Aggregate(context.Context, query.AggregateRequest) (*query.AggregateResult, error) {
	return nil, f.err
}

func TestExecutionErrorsAreOpaque(t *testing.T) {
	cause := errors.New(`near "SELEC": syntax error in SELECT secret FROM events`)
	router := NewRouter(NewHandler(failingEngine{err: apperr.Execution("query", cause)}, nil), false, "")

	w := post(t, router, "/query", map[string]any{}, "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("secret")) {
		t.Errorf("body leaks driver detail: %s", w.Body.String())
	}

	timeout := apperr.Execution("query", context.DeadlineExceeded)
	router = NewRouter(NewHandler(failingEngine{err: timeout}, nil), false, "")
	w = post(t, router, "/query", map[string]any{}, "")
	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("timeout status = %d, want 504", w.Code)
	}
}
