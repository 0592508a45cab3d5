package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/jonwraymond/mealgen/constraint"
	"github.com/jonwraymond/mealgen/meal"
)

// DefaultMaxResponseBytes caps the upstream response body.
const DefaultMaxResponseBytes = 1 << 20

// RequestIDHeader carries the run ID to the upstream.
const RequestIDHeader = "X-Request-ID"

// responseSchema is the contract every upstream response must satisfy.
var responseSchema = map[string]any{
	"type":     "object",
	"required": []any{"payload", "macros"},
	"properties": map[string]any{
		"payload": map[string]any{
			"not": map[string]any{"type": "null"},
		},
		"macros": map[string]any{
			"type":     "object",
			"required": []any{"calories", "protein_g", "carbs_g", "fat_g"},
			"properties": map[string]any{
				"calories":  nonNegativeNumber,
				"protein_g": nonNegativeNumber,
				"carbs_g":   nonNegativeNumber,
				"fat_g":     nonNegativeNumber,
			},
		},
	},
}

var nonNegativeNumber = map[string]any{"type": "number", "minimum": 0}

var responseLoader = gojsonschema.NewGoLoader(responseSchema)

// HTTPConfig configures an HTTPGenerator.
type HTTPConfig struct {
	// Endpoint is the upstream URL requests are POSTed to.
	Endpoint string

	// Client performs requests. Default: a client with a 90s timeout.
	Client *http.Client

	// Headers are added to every request (e.g. authorization).
	Headers map[string]string

	// MaxResponseBytes caps the response body read.
	// Default: DefaultMaxResponseBytes
	MaxResponseBytes int64
}

// HTTPGenerator calls an upstream generation service over HTTP.
type HTTPGenerator struct {
	endpoint string
	client   *http.Client
	headers  map[string]string
	maxBytes int64
}

// NewHTTPGenerator creates an HTTPGenerator.
func NewHTTPGenerator(cfg HTTPConfig) (*HTTPGenerator, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("%w: endpoint is required", ErrInvalidConfig)
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxResponseBytes
	}
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	return &HTTPGenerator{
		endpoint: cfg.Endpoint,
		client:   client,
		headers:  headers,
		maxBytes: maxBytes,
	}, nil
}

type wireConstraints struct {
	Allergies  []string                  `json:"allergies"`
	AvoidTags  []string                  `json:"avoid_tags"`
	PreferTags []string                  `json:"prefer_tags"`
	Targets    meal.Macros               `json:"targets"`
	Carbs      constraint.CarbBreakdown  `json:"carbs"`
	Directive  *constraint.CarbDirective `json:"directive,omitempty"`
}

type wireRequest struct {
	RunID       string          `json:"run_id"`
	MealType    meal.Type       `json:"meal_type"`
	Constraints wireConstraints `json:"constraints"`
	Params      map[string]any  `json:"params,omitempty"`
}

type wireResponse struct {
	Payload json.RawMessage `json:"payload"`
	Macros  meal.Macros     `json:"macros"`
}

// Generate POSTs req to the upstream and validates the response.
func (g *HTTPGenerator) Generate(ctx context.Context, req Request) (Output, error) {
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	c := req.Constraints
	body, err := json.Marshal(wireRequest{
		RunID:    runID,
		MealType: req.MealType,
		Constraints: wireConstraints{
			Allergies:  nonNil(c.Allergies),
			AvoidTags:  nonNil(c.AvoidTags),
			PreferTags: nonNil(c.PreferTags),
			Targets:    c.Targets,
			Carbs:      c.Carbs,
			Directive:  c.Directive,
		},
		Params: req.Params,
	})
	if err != nil {
		return Output{}, fmt.Errorf("generation: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return Output{}, fmt.Errorf("generation: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range g.headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set(RequestIDHeader, runID)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Output{}, fmt.Errorf("generation: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, g.maxBytes+1))
	if err != nil {
		return Output{}, fmt.Errorf("generation: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Output{}, &UpstreamError{StatusCode: resp.StatusCode, Body: snippet(data)}
	}
	if int64(len(data)) > g.maxBytes {
		return Output{}, fmt.Errorf("%w: response exceeds %d bytes", ErrInvalidResponse, g.maxBytes)
	}
	return decodeResponse(data)
}

func decodeResponse(data []byte) (Output, error) {
	result, err := gojsonschema.Validate(responseLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return Output{}, fmt.Errorf("%w: %s", ErrInvalidResponse, strings.Join(errs, "; "))
	}

	var wr wireResponse
	if err := json.Unmarshal(data, &wr); err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return Output{
		Payload: []byte(wr.Payload),
		Macros:  wr.Macros,
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func snippet(b []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
