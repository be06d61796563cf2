package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swellwatch/swellwatch/internal/api"
	"github.com/swellwatch/swellwatch/internal/buoy"
	"github.com/swellwatch/swellwatch/internal/buoy/ndbc"
	"github.com/swellwatch/swellwatch/internal/observability"
	"github.com/swellwatch/swellwatch/internal/provider/resilience"
	"github.com/swellwatch/swellwatch/internal/station"
)

const (
	stdmetHeader = "#YY  MM DD hh mm WDIR WSPD GST  WVHT   DPD   APD MWD   PRES  ATMP  WTMP  DEWP  VIS PTDY  TIDE\n" +
		"#yr  mo dy hr mn degT m/s  m/s     m   sec   sec degT   hPa  degC  degC  degC  nmi  hPa    ft\n"

	cwindHeader = "#YY  MM DD hh mm WDIR WSPD GDR GST GTIME\n" +
		"#yr  mo dy hr mn degT m/s degT m/s hhmm\n"
)

var upstreamFeeds = map[string]string{
	"/46266.txt": stdmetHeader +
		"2025 10 21 12 30  MM   MM   MM    MM    MM    MM  MM 1015.2  18.1  15.3    MM   MM   MM    MM\n" +
		"2025 10 21 12 00  MM   MM   MM   1.5  12.0   8.5 285 1015.0  18.0  15.2    MM   MM   MM    MM\n" +
		"2025 10 21 11 30 270  3.1  4.2   1.4  11.0   8.1 280     MM  17.9  15.2  12.0   MM +0.3    MM\n" +
		"2025 10 21 11 00  MM   MM   MM   1.3  11.0   8.0 280 1014.8  17.8  15.1    MM   MM   MM    MM\n" +
		"2025 10 20 12 00  MM   MM   MM   1.0  10.0   7.5 275 1013.9  17.5  15.0    MM   MM   MM    MM\n",
	"/46225.txt": stdmetHeader +
		"2025 10 21 12 00 300  5.0  6.5   1.1  13.0   9.0 290 1015.5   NaN  16.0    MM   MM   MM    MM\n",
	"/LJPC1.cwind": cwindHeader +
		"2025 10 21 12 10 275 4.6 280 6.2 1205\n",
}

type upstream struct {
	server *httptest.Server

	mu    sync.Mutex
	calls map[string]int
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{calls: make(map[string]int)}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.calls[r.URL.Path]++
		u.mu.Unlock()

		body, ok := upstreamFeeds[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(u.server.Close)
	return u
}

func (u *upstream) callCount(path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls[path]
}

type testEnv struct {
	router   http.Handler
	upstream *upstream
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	up := newUpstream(t)

	stations, err := station.NewRegistry([]station.Station{
		{ID: "46266", Name: "Torrey Pines Outer", Lat: 32.933, Lon: -117.391, WindFallbackID: "LJPC1"},
		{ID: "46225", Name: "Torrey Pines Inner", Lat: 32.930, Lon: -117.279, WindFallbackID: "LJPC1"},
		{ID: "46012", Name: "Half Moon Bay", Lat: 37.356, Lon: -122.881},
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsWith(reg)
	feeds := resilience.NewRegistry()

	client := ndbc.NewClient(ndbc.ClientConfig{
		BuoyURLTemplate:        up.server.URL + "/{station}.txt",
		CoastalWindURLTemplate: up.server.URL + "/{station}.cwind",
		Timeout:                2 * time.Second,
		Registry:               feeds,
		Metrics:                metrics,
		Logger:                 zerolog.Nop(),
	})

	service := buoy.NewService(buoy.ServiceConfig{
		Provider: client,
		Stations: stations,
		Clock:    clockwork.NewFakeClockAt(time.Date(2025, 10, 21, 13, 0, 0, 0, time.UTC)),
		Logger:   zerolog.Nop(),
		Metrics:  metrics,
	})

	router := api.NewRouter(api.RouterConfig{
		Version:          "test",
		BuildTime:        "now",
		Logger:           zerolog.Nop(),
		Service:          service,
		PrimaryStationID: "46266",
		Feeds:            feeds,
		Gatherer:         reg,
	})

	return &testEnv{router: router, upstream: up}
}

func (e *testEnv) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, http.NoBody)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestRouter_PrimaryStation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/buoy-status")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "46266", body["station"])
	assert.Equal(t, "Torrey Pines Outer", body["name"])
	assert.Equal(t, "2025-10-21T12:00:00Z", body["timestamp_utc"])
	assert.Equal(t, 1.5, body["wave_height_m"])
	assert.Equal(t, 12.0, body["dominant_period_sec"])
	assert.InDelta(t, 3.64, body["surf_face_height_m"], 0.01)
	assert.InDelta(t, 27.0, body["wave_energy_index"], 1e-9)
	assert.Equal(t, "rising", body["wave_trend"])
	assert.Nil(t, body["dew_point_c"])

	assert.Equal(t, "fallback", body["wind_source"])
	assert.Equal(t, "LJPC1", body["wind_station"])
	assert.Equal(t, 4.6, body["wind_speed_ms"])
	assert.Equal(t, 275.0, body["wind_dir_deg"])
	assert.Equal(t, 6.2, body["wind_gust_ms"])
	assert.Equal(t, "2025-10-21T12:10:00Z", body["wind_observed_at"])
	assert.NotContains(t, body, "error")
}

func TestRouter_StationIsCached(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodGet, "/api/buoy-status/46266")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 1, env.upstream.callCount("/46266.txt"))
	assert.Equal(t, 1, env.upstream.callCount("/LJPC1.cwind"))

	rec := env.do(t, http.MethodPost, "/api/cache/clear")
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := decode[map[string]any](t, rec)
	assert.Equal(t, "Cache cleared", cleared["message"])
	assert.NotEmpty(t, cleared["timestamp"])

	rec = env.do(t, http.MethodGet, "/api/buoy-status/46266")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, env.upstream.callCount("/46266.txt"))
}

func TestRouter_NativeWind(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/buoy-status/46225")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "native", body["wind_source"])
	assert.Equal(t, 5.0, body["wind_speed_ms"])
	assert.Nil(t, body["wave_trend"])
	assert.Equal(t, 0, env.upstream.callCount("/LJPC1.cwind"))
}

func TestRouter_StationErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantDetail string
	}{
		{
			name:       "upstream failure",
			path:       "/api/buoy-status/46012",
			wantStatus: http.StatusBadGateway,
			wantDetail: "HTTP 503",
		},
		{
			name:       "unknown station",
			path:       "/api/buoy-status/99999",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "zero hours",
			path:       "/api/buoy-status/46266/history?hours=0",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "hours beyond realtime window",
			path:       "/api/buoy-status/46266/history?hours=1081",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "non-numeric hours",
			path:       "/api/buoy-status/46266/history?hours=abc",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.path)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

			problem := decode[map[string]any](t, rec)
			assert.Equal(t, float64(tt.wantStatus), problem["status"])
			if tt.wantDetail != "" {
				assert.Equal(t, tt.wantDetail, problem["detail"])
			}
		})
	}

	// Failures are not cached.
	env.do(t, http.MethodGet, "/api/buoy-status/46012")
	assert.Equal(t, 2, env.upstream.callCount("/46012.txt"))
}

func TestRouter_ListAll(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/buoy-status/all")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[[]map[string]any](t, rec)
	require.Len(t, body, 3)

	assert.Equal(t, "46266", body[0]["station"])
	assert.Equal(t, "46225", body[1]["station"])
	assert.Equal(t, "46012", body[2]["station"])

	assert.Equal(t, 1.5, body[0]["wave_height_m"])
	assert.Equal(t, "native", body[1]["wind_source"])
	assert.Contains(t, body[1], "air_temp_c")
	assert.Nil(t, body[1]["air_temp_c"], "NaN reads as missing")
	assert.Equal(t, 16.0, body[1]["water_temp_c"])

	failed := body[2]
	assert.Equal(t, "HTTP 503", failed["error"])
	assert.Equal(t, "fetch", failed["error_kind"])
	assert.Equal(t, "Half Moon Bay", failed["name"])
	assert.NotContains(t, failed, "wave_height_m")
}

func TestRouter_History(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/buoy-status/46266/history")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[map[string]any](t, rec)
	assert.Equal(t, 24.0, body["hours"])
	assert.Equal(t, 4.0, body["count"])

	observations, ok := body["observations"].([]any)
	require.True(t, ok)
	require.Len(t, observations, 4)

	first := observations[0].(map[string]any)
	last := observations[3].(map[string]any)
	assert.Equal(t, "2025-10-21T11:00:00Z", first["timestamp_utc"])
	assert.Equal(t, "2025-10-21T12:30:00Z", last["timestamp_utc"])
	assert.Nil(t, last["wave_height_m"])
	assert.Nil(t, last["wave_trend"])
	assert.Equal(t, 1015.2, last["pressure_hpa"])
	assert.Equal(t, 1014.8, first["pressure_hpa"])

	withDew := observations[1].(map[string]any)
	assert.Equal(t, 12.0, withDew["dew_point_c"])
	assert.Nil(t, withDew["pressure_hpa"])

	rec = env.do(t, http.MethodGet, "/api/buoy-status/46266/history?hours=48")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[map[string]any](t, rec)
	assert.Equal(t, 5.0, body["count"])
}

func TestRouter_ListStations(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/stations")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "46266", body["primary"])

	stations, ok := body["stations"].([]any)
	require.True(t, ok)
	require.Len(t, stations, 3)
	assert.Equal(t, "LJPC1", stations[0].(map[string]any)["wind_fallback_station"])
	assert.Nil(t, stations[2].(map[string]any)["wind_fallback_station"])
	assert.Zero(t, env.upstream.callCount("/46266.txt"))
}

func TestRouter_Ops(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/ops/health")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]any](t, rec)
	assert.Equal(t, "OK", health["status"])

	rec = env.do(t, http.MethodGet, "/api/ops/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	env.do(t, http.MethodGet, "/api/buoy-status")

	rec = env.do(t, http.MethodGet, "/api/ops/status")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[map[string]any](t, rec)
	assert.Equal(t, "OK", status["status"])

	providers, ok := status["providers"].([]any)
	require.True(t, ok)
	assert.Len(t, providers, 2)
}

func TestRouter_Metrics(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodGet, "/api/buoy-status")

	rec := env.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `swellwatch_fetch_requests_total{feed="buoy",outcome="success"} 1`)
	assert.Contains(t, rec.Body.String(), `swellwatch_wind_resolutions_total{source="fallback"} 1`)
}

func TestRouter_UnknownRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = env.do(t, http.MethodDelete, "/api/buoy-status/46266")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	problem := decode[map[string]any](t, rec)
	assert.True(t, strings.HasPrefix(problem["detail"].(string), "DELETE"))
}

func TestRouter_CORSAndSecurityHeaders(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/stations", http.NoBody)
	req.Header.Set("Origin", "https://surf.example.com")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
