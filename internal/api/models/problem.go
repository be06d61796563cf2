package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 error body, served as application/problem+json.
// TraceID echoes the X-Request-Id header; Errors is only set for 400s.
type Problem struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	TraceID  string       `json:"traceId"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ProblemType constants for standard error types.
const (
	ProblemTypeValidation       = "https://swellwatch.dev/problems/validation-error"
	ProblemTypeNotFound         = "https://swellwatch.dev/problems/not-found"
	ProblemTypeMethodNotAllowed = "https://swellwatch.dev/problems/method-not-allowed"
	ProblemTypeNoData           = "https://swellwatch.dev/problems/no-data"
	ProblemTypeTooManyRequests  = "https://swellwatch.dev/problems/too-many-requests"
	ProblemTypeInternal         = "https://swellwatch.dev/problems/internal-error"
	ProblemTypeUpstream         = "https://swellwatch.dev/problems/upstream-error"
	ProblemTypeUpstreamTimeout  = "https://swellwatch.dev/problems/upstream-timeout"
	ProblemTypeUnavailable      = "https://swellwatch.dev/problems/service-unavailable"
)

// NewProblem creates a new Problem with the given parameters.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{
		Type:    problemType,
		Title:   title,
		Status:  status,
		TraceID: traceID,
	}
}

// WithDetail adds a detail message to the Problem.
func (p *Problem) WithDetail(detail string) *Problem {
	p.Detail = detail
	return p
}

// WithInstance adds the request instance URI to the Problem.
func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

// WithErrors adds field errors to the Problem.
func (p *Problem) WithErrors(errors []FieldError) *Problem {
	p.Errors = errors
	return p
}

// Write writes the Problem as JSON to the ResponseWriter.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("X-Request-Id", p.TraceID)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// problemTitles holds the fixed title and status of each problem type.
var problemTitles = map[string]struct {
	title  string
	status int
}{
	ProblemTypeValidation:       {"Validation error", http.StatusBadRequest},
	ProblemTypeNotFound:         {"Not found", http.StatusNotFound},
	ProblemTypeMethodNotAllowed: {"Method not allowed", http.StatusMethodNotAllowed},
	ProblemTypeNoData:           {"No data", http.StatusNotFound},
	ProblemTypeTooManyRequests:  {"Too many requests", http.StatusTooManyRequests},
	ProblemTypeInternal:         {"Internal server error", http.StatusInternalServerError},
	ProblemTypeUpstream:         {"Bad gateway", http.StatusBadGateway},
	ProblemTypeUpstreamTimeout:  {"Gateway timeout", http.StatusGatewayTimeout},
	ProblemTypeUnavailable:      {"Service unavailable", http.StatusServiceUnavailable},
}

// NewTypedProblem builds a Problem of a known type with its standard title
// and status. Unknown types become internal errors.
func NewTypedProblem(problemType, traceID, detail string) *Problem {
	known, ok := problemTitles[problemType]
	if !ok {
		problemType = ProblemTypeInternal
		known = problemTitles[ProblemTypeInternal]
	}
	return NewProblem(problemType, known.title, known.status, traceID).WithDetail(detail)
}

// NewBadRequest creates a 400 problem listing the invalid fields.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	return NewTypedProblem(ProblemTypeValidation, traceID, detail).WithErrors(errors)
}

// NewNotFound creates a 404 problem for an unknown station or route.
func NewNotFound(traceID, detail string) *Problem {
	return NewTypedProblem(ProblemTypeNotFound, traceID, detail)
}

// NewNoData creates a 404 problem for a station whose feed has no usable rows.
func NewNoData(traceID, detail string) *Problem {
	return NewTypedProblem(ProblemTypeNoData, traceID, detail)
}

// NewTooManyRequests creates a 429 problem.
func NewTooManyRequests(traceID, detail string) *Problem {
	return NewTypedProblem(ProblemTypeTooManyRequests, traceID, detail)
}

// NewInternalError creates a 500 problem.
func NewInternalError(traceID, detail string) *Problem {
	return NewTypedProblem(ProblemTypeInternal, traceID, detail)
}

// NewServiceUnavailable creates a 503 problem.
func NewServiceUnavailable(traceID, detail string) *Problem {
	return NewTypedProblem(ProblemTypeUnavailable, traceID, detail)
}

// NewBadGateway creates a 502 problem for a failed or unparseable feed.
func NewBadGateway(traceID, detail string) *Problem {
	return NewTypedProblem(ProblemTypeUpstream, traceID, detail)
}

// NewGatewayTimeout creates a 504 problem for a feed that did not answer in time.
func NewGatewayTimeout(traceID, detail string) *Problem {
	return NewTypedProblem(ProblemTypeUpstreamTimeout, traceID, detail)
}
