package station

// Coastal stations with a cwind feed, used for buoys without an anemometer.
const (
	coastalLaJolla     = "LJPC1"
	coastalSantaMonica = "ICAC1"
)

// DefaultPrimaryID is the station served by the primary status endpoint.
const DefaultPrimaryID = "46266"

// DefaultStations returns the California buoys monitored out of the box,
// south to north along the San Diego coast and then up the state.
func DefaultStations() []Station {
	return []Station{
		{ID: "46266", Name: "Del Mar Nearshore", Lat: 32.933, Lon: -117.317, WindFallbackID: coastalLaJolla},
		{ID: "46225", Name: "Torrey Pines Outer", Lat: 32.866, Lon: -117.283, WindFallbackID: coastalLaJolla},
		{ID: "46259", Name: "Mission Bay", Lat: 32.749, Lon: -117.258, WindFallbackID: coastalLaJolla},
		{ID: "46232", Name: "Point Loma South", Lat: 32.65, Lon: -117.3, WindFallbackID: coastalLaJolla},
		{ID: "46236", Name: "Imperial Beach", Lat: 32.55, Lon: -117.15, WindFallbackID: coastalLaJolla},
		{ID: "46258", Name: "San Pedro Channel", Lat: 33.475, Lon: -118.533, WindFallbackID: coastalSantaMonica},
		{ID: "46222", Name: "Santa Monica Basin", Lat: 33.75, Lon: -118.833, WindFallbackID: coastalSantaMonica},
		{ID: "46086", Name: "Pt. Dume / Santa Barbara", Lat: 34.25, Lon: -120.45},
		{ID: "46011", Name: "Santa Maria", Lat: 34.935, Lon: -121.93},
		{ID: "46027", Name: "Cape Mendocino", Lat: 40.75, Lon: -124.5},
		{ID: "46014", Name: "Pt. Arena", Lat: 39.22, Lon: -123.97},
		{ID: "46026", Name: "San Francisco Bar", Lat: 37.75, Lon: -122.83},
		{ID: "46012", Name: "Monterey Bay", Lat: 36.75, Lon: -122.43},
		{ID: "46013", Name: "Bodega Bay", Lat: 38.24, Lon: -123.31},
	}
}

// DefaultRegistry returns a registry of DefaultStations.
func DefaultRegistry() *Registry {
	return MustNewRegistry(DefaultStations())
}
