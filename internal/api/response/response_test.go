package response_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/swellwatch/swellwatch/internal/api/middleware"
	"github.com/swellwatch/swellwatch/internal/api/models"
	"github.com/swellwatch/swellwatch/internal/api/response"
	"github.com/swellwatch/swellwatch/internal/buoy"
)

// requestWithContext creates an HTTP request that has been processed by the RequestID middleware
// to populate the context with a request ID.
func requestWithContext(t *testing.T, method, path string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(method, path, http.NoBody)
	rec := httptest.NewRecorder()

	var processedReq *http.Request
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		processedReq = r
	}))
	handler.ServeHTTP(rec, req)

	return processedReq, httptest.NewRecorder()
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	var problem models.Problem
	if err := json.NewDecoder(rec.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode Problem response: %v", err)
	}
	return problem
}

func TestJSON_UnencodableValueIsLoggedServerError(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodGet, "/api/buoy-status/all")
	var logs bytes.Buffer
	req = req.WithContext(zerolog.New(&logs).WithContext(req.Context()))

	response.JSON(rec, req, http.StatusOK, []map[string]any{
		{"station": "46266", "wave_height_m": 1.2},
		{"station": "46225", "wind_speed_ms": math.NaN()},
	})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected Content-Type application/problem+json, got %q", ct)
	}

	problem := decodeProblem(t, rec)
	if problem.Type != models.ProblemTypeInternal {
		t.Errorf("expected type %q, got %q", models.ProblemTypeInternal, problem.Type)
	}
	if !strings.Contains(logs.String(), "failed to encode response") {
		t.Errorf("expected encode failure to be logged, got %q", logs.String())
	}
}

func TestJSON_NilBody(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodPost, "/api/cache/clear")

	response.JSON(rec, req, http.StatusNoContent, nil)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rec.Body.String())
	}
}

func TestJSON_IncludesRequestID(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodGet, "/api/buoy-status")

	response.JSON(rec, req, http.StatusOK, map[string]string{"station": "46266"})

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	requestID := rec.Header().Get("X-Request-Id")
	if len(requestID) < 10 {
		t.Errorf("expected request ID to be a valid ID, got %q", requestID)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}
}

func TestJSON_WithoutRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/buoy-status", http.NoBody)
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusOK, map[string]string{"station": "46266"})

	if requestID := rec.Header().Get("X-Request-Id"); requestID != "" {
		t.Errorf("expected no X-Request-Id header when not in context, got %q", requestID)
	}
}

func TestJSON_NilData(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodGet, "/test")

	response.JSON(rec, req, http.StatusOK, nil)

	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body for nil data, got %q", rec.Body.String())
	}
}

func TestBadRequest_IncludesTraceID(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodGet, "/api/buoy-status/46266/history")

	response.BadRequest(rec, req, "validation failed", []models.FieldError{
		{Field: "hours", Message: "must be an integer"},
	})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}

	problem := decodeProblem(t, rec)
	if problem.TraceID == "" {
		t.Error("expected traceId to be set in Problem response")
	}
	if problem.Instance != "/api/buoy-status/46266/history" {
		t.Errorf("unexpected instance %q", problem.Instance)
	}
	if len(problem.Errors) != 1 {
		t.Errorf("expected one field error, got %d", len(problem.Errors))
	}
}

func TestHelpers_StatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, *http.Request, string)
		status int
	}{
		{"not found", response.NotFound, http.StatusNotFound},
		{"no data", response.NoData, http.StatusNotFound},
		{"internal", response.InternalError, http.StatusInternalServerError},
		{"unavailable", response.ServiceUnavailable, http.StatusServiceUnavailable},
		{"bad gateway", response.BadGateway, http.StatusBadGateway},
		{"gateway timeout", response.GatewayTimeout, http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := requestWithContext(t, http.MethodGet, "/api/test")

			tt.write(rec, req, "detail")

			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}
			problem := decodeProblem(t, rec)
			if problem.Status != tt.status {
				t.Errorf("expected problem status %d, got %d", tt.status, problem.Status)
			}
			if problem.Detail != "detail" {
				t.Errorf("expected detail to be preserved, got %q", problem.Detail)
			}
		})
	}
}

func TestStationError_Mapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{
			name:   "unknown station",
			err:    fmt.Errorf("%w: 99999", buoy.ErrStationNotFound),
			status: http.StatusNotFound,
			detail: "station not found: 99999",
		},
		{
			name:   "invalid hours",
			err:    fmt.Errorf("%w: hours must be between 1 and 1080", buoy.ErrInvalidHours),
			status: http.StatusBadRequest,
		},
		{
			name:   "no data",
			err:    buoy.ErrNoData,
			status: http.StatusNotFound,
			detail: "No valid data rows found",
		},
		{
			name:   "fetch timeout",
			err:    &buoy.FetchError{StationID: "46266", Feed: buoy.FeedBuoy, Timeout: true},
			status: http.StatusGatewayTimeout,
			detail: "Request timeout",
		},
		{
			name:   "upstream status",
			err:    &buoy.FetchError{StationID: "46266", Feed: buoy.FeedBuoy, StatusCode: http.StatusServiceUnavailable},
			status: http.StatusBadGateway,
			detail: "HTTP 503",
		},
		{
			name:   "parse failure",
			err:    &buoy.ParseError{StationID: "46266", Feed: buoy.FeedBuoy, Reason: "missing header line"},
			status: http.StatusBadGateway,
			detail: "Unreadable upstream data: missing header line",
		},
		{
			name:   "deadline",
			err:    context.DeadlineExceeded,
			status: http.StatusGatewayTimeout,
			detail: "Request timeout",
		},
		{
			name:   "unexpected",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := requestWithContext(t, http.MethodGet, "/api/buoy-status/46266")

			response.StationError(rec, req, tt.err)

			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
				t.Errorf("expected problem content type, got %q", ct)
			}
			problem := decodeProblem(t, rec)
			if tt.detail != "" && problem.Detail != tt.detail {
				t.Errorf("expected detail %q, got %q", tt.detail, problem.Detail)
			}
		})
	}
}

func TestRequestIDPropagation(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("X-Request-Id", "client-request-123")
	rec := httptest.NewRecorder()

	var processedReq *http.Request
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		processedReq = r
	}))
	handler.ServeHTTP(rec, req)

	if requestID := middleware.GetRequestID(processedReq.Context()); requestID != "client-request-123" {
		t.Errorf("expected client request ID to be preserved, got %q", requestID)
	}

	rec = httptest.NewRecorder()
	response.JSON(rec, processedReq, http.StatusOK, map[string]string{"status": "ok"})

	if got := rec.Header().Get("X-Request-Id"); got != "client-request-123" {
		t.Errorf("expected response X-Request-Id to match client's, got %q", got)
	}
}

func TestGetRequestID_EmptyContext(t *testing.T) {
	if requestID := middleware.GetRequestID(context.Background()); requestID != "" {
		t.Errorf("expected empty request ID for background context, got %q", requestID)
	}
}
