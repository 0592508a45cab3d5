package generation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jonwraymond/mealgen/constraint"
	"github.com/jonwraymond/mealgen/meal"
)

const validResponse = `{"payload":{"name":"grilled salmon","steps":["sear","rest"]},` +
	`"macros":{"calories":540.5,"protein_g":42,"carbs_g":18,"fat_g":30}}`

func newUpstream(t *testing.T, status int, body string, inspect func(*http.Request, []byte)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		if inspect != nil {
			inspect(r, data)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGenerator(t *testing.T, endpoint string) *HTTPGenerator {
	t.Helper()
	g, err := NewHTTPGenerator(HTTPConfig{
		Endpoint: endpoint,
		Headers:  map[string]string{"Authorization": "Bearer test"},
	})
	if err != nil {
		t.Fatalf("NewHTTPGenerator() error = %v", err)
	}
	return g
}

func TestHTTPGenerator_Success(t *testing.T) {
	var (
		gotReq     wireRequest
		gotHeaders http.Header
		gotMethod  string
	)
	srv := newUpstream(t, http.StatusOK, validResponse, func(r *http.Request, body []byte) {
		gotMethod = r.Method
		gotHeaders = r.Header.Clone()
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Errorf("request body: %v", err)
		}
	})

	cs := constraint.Default()
	cs.Allergies = []string{"peanut"}
	out, err := newTestGenerator(t, srv.URL).Generate(context.Background(), Request{
		Constraints: cs,
		MealType:    meal.Dinner,
		Params:      map[string]any{"cuisine": "nordic"},
		RunID:       "run-42",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if got := gotHeaders.Get(RequestIDHeader); got != "run-42" {
		t.Errorf("%s = %q, want run-42", RequestIDHeader, got)
	}
	if got := gotHeaders.Get("Authorization"); got != "Bearer test" {
		t.Errorf("Authorization = %q", got)
	}
	if gotReq.MealType != meal.Dinner || gotReq.RunID != "run-42" {
		t.Errorf("request = %+v", gotReq)
	}
	if len(gotReq.Constraints.Allergies) != 1 || gotReq.Constraints.Allergies[0] != "peanut" {
		t.Errorf("allergies = %v", gotReq.Constraints.Allergies)
	}
	if gotReq.Constraints.Targets.Calories != constraint.DefaultCalories {
		t.Errorf("targets = %+v", gotReq.Constraints.Targets)
	}
	if gotReq.Params["cuisine"] != "nordic" {
		t.Errorf("params = %v", gotReq.Params)
	}

	want := meal.Macros{Calories: 540.5, ProteinG: 42, CarbsG: 18, FatG: 30}
	if out.Macros != want {
		t.Errorf("Macros = %+v, want %+v", out.Macros, want)
	}
	var payload map[string]any
	if err := json.Unmarshal(out.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["name"] != "grilled salmon" {
		t.Errorf("payload = %s", out.Payload)
	}
}

func TestHTTPGenerator_AssignsRunID(t *testing.T) {
	var header, bodyID string
	srv := newUpstream(t, http.StatusOK, validResponse, func(r *http.Request, body []byte) {
		header = r.Header.Get(RequestIDHeader)
		var wr wireRequest
		_ = json.Unmarshal(body, &wr)
		bodyID = wr.RunID
	})

	if _, err := newTestGenerator(t, srv.URL).Generate(context.Background(), Request{MealType: meal.Lunch}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if header == "" || header != bodyID {
		t.Errorf("run id header = %q, body = %q", header, bodyID)
	}
}

func TestHTTPGenerator_EmptyListsAreArrays(t *testing.T) {
	var raw map[string]json.RawMessage
	srv := newUpstream(t, http.StatusOK, validResponse, func(_ *http.Request, body []byte) {
		var wr map[string]json.RawMessage
		_ = json.Unmarshal(body, &wr)
		_ = json.Unmarshal(wr["constraints"], &raw)
	})

	_, err := newTestGenerator(t, srv.URL).Generate(context.Background(), Request{MealType: meal.Snack})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	for _, key := range []string{"allergies", "avoid_tags", "prefer_tags"} {
		if string(raw[key]) != "[]" {
			t.Errorf("%s = %s, want []", key, raw[key])
		}
	}
}

func TestHTTPGenerator_UpstreamStatus(t *testing.T) {
	srv := newUpstream(t, http.StatusServiceUnavailable, `{"error":"overloaded"}`, nil)

	_, err := newTestGenerator(t, srv.URL).Generate(context.Background(), Request{MealType: meal.Lunch})

	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("Generate() error = %v, want *UpstreamError", err)
	}
	if upErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d", upErr.StatusCode)
	}
	if !strings.Contains(upErr.Error(), "overloaded") {
		t.Errorf("Error() = %q", upErr.Error())
	}
}

func TestHTTPGenerator_InvalidResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>`},
		{"missing payload", `{"macros":{"calories":1,"protein_g":1,"carbs_g":1,"fat_g":1}}`},
		{"null payload", `{"payload":null,"macros":{"calories":1,"protein_g":1,"carbs_g":1,"fat_g":1}}`},
		{"missing macros", `{"payload":{}}`},
		{"negative macro", `{"payload":{},"macros":{"calories":-1,"protein_g":1,"carbs_g":1,"fat_g":1}}`},
		{"string macro", `{"payload":{},"macros":{"calories":"lots","protein_g":1,"carbs_g":1,"fat_g":1}}`},
		{"missing macro field", `{"payload":{},"macros":{"calories":1,"protein_g":1,"carbs_g":1}}`},
		{"array root", `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newUpstream(t, http.StatusOK, tt.body, nil)
			_, err := newTestGenerator(t, srv.URL).Generate(context.Background(), Request{MealType: meal.Lunch})
			if !errors.Is(err, ErrInvalidResponse) {
				t.Errorf("Generate() error = %v, want ErrInvalidResponse", err)
			}
		})
	}
}

func TestHTTPGenerator_ResponseTooLarge(t *testing.T) {
	big := `{"payload":"` + strings.Repeat("x", 2048) + `","macros":{"calories":1,"protein_g":1,"carbs_g":1,"fat_g":1}}`
	srv := newUpstream(t, http.StatusOK, big, nil)
	g, err := NewHTTPGenerator(HTTPConfig{Endpoint: srv.URL, MaxResponseBytes: 1024})
	if err != nil {
		t.Fatalf("NewHTTPGenerator() error = %v", err)
	}

	if _, err := g.Generate(context.Background(), Request{MealType: meal.Lunch}); !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("Generate() error = %v, want ErrInvalidResponse", err)
	}
}

func TestHTTPGenerator_ScalarPayload(t *testing.T) {
	srv := newUpstream(t, http.StatusOK, `{"payload":"plain text","macros":{"calories":0,"protein_g":0,"carbs_g":0,"fat_g":0}}`, nil)

	out, err := newTestGenerator(t, srv.URL).Generate(context.Background(), Request{MealType: meal.Lunch})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if string(out.Payload) != `"plain text"` {
		t.Errorf("Payload = %s", out.Payload)
	}
}

func TestHTTPGenerator_ContextCancelled(t *testing.T) {
	srv := newUpstream(t, http.StatusOK, validResponse, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestGenerator(t, srv.URL).Generate(ctx, Request{MealType: meal.Lunch})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Generate() error = %v, want context.Canceled", err)
	}
}

func TestNewHTTPGenerator_RequiresEndpoint(t *testing.T) {
	if _, err := NewHTTPGenerator(HTTPConfig{Endpoint: "  "}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewHTTPGenerator() error = %v, want ErrInvalidConfig", err)
	}
}
