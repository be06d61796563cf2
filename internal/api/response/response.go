// Package response provides utilities for HTTP response handling.
package response

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/swellwatch/swellwatch/internal/api/middleware"
	"github.com/swellwatch/swellwatch/internal/api/models"
	"github.com/swellwatch/swellwatch/internal/buoy"
)

// JSON writes a JSON response with the given status code.
// Includes X-Request-Id header for correlation. The body is encoded before
// the status is sent, so a value that cannot be encoded becomes a logged 500
// instead of an empty 200.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	var body []byte
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).
				Int("status", status).
				Str("path", r.URL.Path).
				Msg("failed to encode response")
			InternalError(w, r, "response could not be encoded")
			return
		}
		body = append(encoded, '\n')
	}

	requestID := middleware.GetRequestID(r.Context())
	if requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if _, err := w.Write(body); err != nil {
		zerolog.Ctx(r.Context()).Debug().Err(err).Msg("failed to write response")
	}
}

// Error writes a Problem+JSON error response.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// BadRequest writes a 400 Bad Request error response.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	traceID := middleware.GetRequestID(r.Context())
	Error(w, r, models.NewBadRequest(traceID, detail, errors))
}

// NotFound writes a 404 Not Found error response.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := middleware.GetRequestID(r.Context())
	Error(w, r, models.NewNotFound(traceID, detail))
}

// NoData writes a 404 response for a station without usable rows.
func NoData(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := middleware.GetRequestID(r.Context())
	Error(w, r, models.NewNoData(traceID, detail))
}

// InternalError writes a 500 Internal Server Error response.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := middleware.GetRequestID(r.Context())
	Error(w, r, models.NewInternalError(traceID, detail))
}

// ServiceUnavailable writes a 503 Service Unavailable error response.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := middleware.GetRequestID(r.Context())
	Error(w, r, models.NewServiceUnavailable(traceID, detail))
}

// BadGateway writes a 502 Bad Gateway error response.
func BadGateway(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := middleware.GetRequestID(r.Context())
	Error(w, r, models.NewBadGateway(traceID, detail))
}

// GatewayTimeout writes a 504 Gateway Timeout error response.
func GatewayTimeout(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := middleware.GetRequestID(r.Context())
	Error(w, r, models.NewGatewayTimeout(traceID, detail))
}

// StationError writes the problem response matching a station pipeline failure.
func StationError(w http.ResponseWriter, r *http.Request, err error) {
	var fetchErr *buoy.FetchError
	var parseErr *buoy.ParseError
	detail := buoy.Message(err)

	switch {
	case errors.Is(err, buoy.ErrStationNotFound):
		NotFound(w, r, err.Error())
	case errors.Is(err, buoy.ErrInvalidHours):
		BadRequest(w, r, err.Error(), []models.FieldError{
			{Field: "hours", Message: "must be between 1 and 1080", Code: "OUT_OF_RANGE"},
		})
	case errors.Is(err, buoy.ErrNoData):
		NoData(w, r, detail)
	case errors.As(err, &fetchErr):
		if fetchErr.Timeout {
			GatewayTimeout(w, r, detail)
			return
		}
		BadGateway(w, r, detail)
	case errors.As(err, &parseErr):
		BadGateway(w, r, detail)
	case errors.Is(err, context.DeadlineExceeded):
		GatewayTimeout(w, r, detail)
	default:
		InternalError(w, r, "an unexpected error occurred")
	}
}
