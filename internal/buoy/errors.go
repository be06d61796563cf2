package buoy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Buoy errors.
var (
	ErrStationNotFound = errors.New("station not found")
	ErrNoData          = errors.New("no valid data rows found")
	ErrInvalidHours    = errors.New("invalid history window")
)

// ErrorKind classifies failures for clients and metrics.
type ErrorKind string

const (
	KindFetch   ErrorKind = "fetch"
	KindParse   ErrorKind = "parse"
	KindNoData  ErrorKind = "no_data"
	KindUnknown ErrorKind = "unknown"
)

// FetchError means the upstream feed could not be retrieved.
type FetchError struct {
	StationID  string
	Feed       Feed
	StatusCode int  // set when upstream answered with a non-2xx status
	Timeout    bool // set when the request deadline elapsed
	Empty      bool // set when upstream answered 2xx with no content
	Err        error
}

func (e *FetchError) Error() string {
	prefix := fmt.Sprintf("fetch %s %s", e.Feed, e.StationID)
	switch {
	case e.Timeout:
		return prefix + ": request timeout"
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: HTTP %d", prefix, e.StatusCode)
	case e.Empty:
		return prefix + ": empty response body"
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	default:
		return prefix + ": failed"
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Outcome returns a short label for metrics.
func (e *FetchError) Outcome() string {
	switch {
	case e.Timeout:
		return "timeout"
	case e.StatusCode != 0:
		return "http_error"
	case e.Empty:
		return "empty"
	default:
		return "network"
	}
}

// IsNotFound reports whether upstream answered 404, which NDBC does for
// stations that are offline or have no realtime file.
func (e *FetchError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// ParseError means the upstream body could not be understood.
type ParseError struct {
	StationID string
	Feed      Feed
	Line      int // 1-based, zero when not tied to a line
	Reason    string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s %s: line %d: %s", e.Feed, e.StationID, e.Line, e.Reason)
	}
	return fmt.Sprintf("parse %s %s: %s", e.Feed, e.StationID, e.Reason)
}

// Message returns the short client-facing description of a station failure.
func Message(err error) string {
	var fetchErr *FetchError
	var parseErr *ParseError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fetchErr):
		switch {
		case fetchErr.Timeout:
			return "Request timeout"
		case fetchErr.StatusCode != 0:
			return fmt.Sprintf("HTTP %d", fetchErr.StatusCode)
		case fetchErr.Empty:
			return "Empty response"
		default:
			return "Upstream unreachable"
		}
	case errors.As(err, &parseErr):
		return "Unreadable upstream data: " + parseErr.Reason
	case errors.Is(err, ErrNoData):
		return "No valid data rows found"
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timeout"
	default:
		return "Station unavailable"
	}
}

// KindOf classifies err.
func KindOf(err error) ErrorKind {
	var fetchErr *FetchError
	var parseErr *ParseError
	switch {
	case errors.As(err, &fetchErr):
		return KindFetch
	case errors.As(err, &parseErr):
		return KindParse
	case errors.Is(err, ErrNoData):
		return KindNoData
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindFetch
	default:
		return KindUnknown
	}
}
