// Package station holds the fixed registry of monitored buoy stations.
package station

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidStation is returned when a station entry is malformed.
	ErrInvalidStation = errors.New("invalid station")
	// ErrDuplicateStation is returned when two entries share an ID.
	ErrDuplicateStation = errors.New("duplicate station id")
)

// Station is a monitored offshore buoy.
type Station struct {
	ID   string
	Name string
	Lat  float64
	Lon  float64

	// WindFallbackID names a nearby coastal station whose wind feed is used
	// when this buoy reports no wind of its own. Empty means none.
	WindFallbackID string
}

// HasWindFallback reports whether a coastal wind station is configured.
func (s Station) HasWindFallback() bool {
	return s.WindFallbackID != ""
}

func (s Station) validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidStation)
	}
	if s.Lat < -90 || s.Lat > 90 {
		return fmt.Errorf("%w: %s latitude %v out of range", ErrInvalidStation, s.ID, s.Lat)
	}
	if s.Lon < -180 || s.Lon > 180 {
		return fmt.Errorf("%w: %s longitude %v out of range", ErrInvalidStation, s.ID, s.Lon)
	}
	if s.WindFallbackID == s.ID {
		return fmt.Errorf("%w: %s lists itself as wind fallback", ErrInvalidStation, s.ID)
	}
	return nil
}

// Registry is an immutable, ordered set of stations.
// It is safe for concurrent use because nothing mutates it after construction.
type Registry struct {
	stations []Station
	byID     map[string]int
}

// NewRegistry validates the entries and builds a registry preserving their order.
func NewRegistry(stations []Station) (*Registry, error) {
	r := &Registry{
		stations: make([]Station, 0, len(stations)),
		byID:     make(map[string]int, len(stations)),
	}

	for _, s := range stations {
		if err := s.validate(); err != nil {
			return nil, err
		}
		if _, exists := r.byID[s.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStation, s.ID)
		}
		r.byID[s.ID] = len(r.stations)
		r.stations = append(r.stations, s)
	}

	return r, nil
}

// MustNewRegistry is like NewRegistry but panics on invalid input.
func MustNewRegistry(stations []Station) *Registry {
	r, err := NewRegistry(stations)
	if err != nil {
		panic(err)
	}
	return r
}

// All returns a copy of the stations in registry order.
func (r *Registry) All() []Station {
	result := make([]Station, len(r.stations))
	copy(result, r.stations)
	return result
}

// Get looks up a station by ID.
func (r *Registry) Get(id string) (Station, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return Station{}, false
	}
	return r.stations[idx], true
}

// Contains reports whether id is a registered station.
func (r *Registry) Contains(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// Len returns the number of stations.
func (r *Registry) Len() int {
	return len(r.stations)
}

// IDs returns the station IDs in registry order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.stations))
	for i, s := range r.stations {
		ids[i] = s.ID
	}
	return ids
}
