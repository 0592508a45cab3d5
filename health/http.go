package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Probe timeouts.
const (
	ReadinessTimeout = 5 * time.Second
	DetailedTimeout  = 10 * time.Second
)

// Info identifies the service in detailed responses.
type Info struct {
	Service string
	Version string
}

// LivenessHandler returns an HTTP handler for liveness probes.
// It reports the process is up without running any checks.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

// ReadinessHandler returns an HTTP handler for readiness probes.
// Degraded components still report ready.
func ReadinessHandler(agg *Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), ReadinessTimeout)
		defer cancel()

		status := agg.OverallStatus(agg.CheckAll(ctx))

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(httpStatus(status))
		switch status {
		case StatusHealthy:
			_, _ = w.Write([]byte("OK"))
		case StatusDegraded:
			_, _ = w.Write([]byte("DEGRADED"))
		default:
			_, _ = w.Write([]byte("UNHEALTHY"))
		}
	}
}

// HealthResponse is the JSON response for the detailed health endpoint.
type HealthResponse struct {
	Status    string                   `json:"status"`
	Service   string                   `json:"service,omitempty"`
	Version   string                   `json:"version,omitempty"`
	Timestamp string                   `json:"timestamp"`
	Checks    map[string]CheckResponse `json:"checks,omitempty"`
}

// CheckResponse is the JSON response for a single health check.
type CheckResponse struct {
	Status   string         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Duration string         `json:"duration,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func newCheckResponse(result Result) CheckResponse {
	check := CheckResponse{
		Status:   result.Status.String(),
		Message:  result.Message,
		Duration: result.Duration.String(),
		Details:  result.Details,
	}
	if result.Error != nil {
		check.Error = result.Error.Error()
	}
	return check
}

// DetailedHandler returns an HTTP handler reporting every check.
func DetailedHandler(agg *Aggregator, info Info) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), DetailedTimeout)
		defer cancel()

		results := agg.CheckAll(ctx)
		status := agg.OverallStatus(results)

		response := HealthResponse{
			Status:    status.String(),
			Service:   info.Service,
			Version:   info.Version,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    make(map[string]CheckResponse, len(results)),
		}
		for name, result := range results {
			response.Checks[name] = newCheckResponse(result)
		}

		writeJSON(w, httpStatus(status), response)
	}
}

// SingleCheckHandler returns an HTTP handler for the check named by the
// {name} path value.
func SingleCheckHandler(agg *Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), ReadinessTimeout)
		defer cancel()

		result, err := agg.Check(ctx, r.PathValue("name"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, httpStatus(result.Status), newCheckResponse(result))
	}
}

// RegisterHandlers registers the health endpoints on mux.
func RegisterHandlers(mux *http.ServeMux, agg *Aggregator, info Info) {
	mux.HandleFunc("GET /healthz", LivenessHandler())
	mux.HandleFunc("GET /readyz", ReadinessHandler(agg))
	mux.HandleFunc("GET /health", DetailedHandler(agg, info))
	mux.HandleFunc("GET /health/{name}", SingleCheckHandler(agg))
}

func httpStatus(s Status) int {
	if s == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
