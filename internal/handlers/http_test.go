package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ppg-vitals/internal/analytics"
	"ppg-vitals/internal/cache"
	"ppg-vitals/internal/measurement"
	"ppg-vitals/internal/models"
	"ppg-vitals/internal/synth"
)

type testEnv struct {
	server   *httptest.Server
	analyzer *analytics.Analyzer
	store    *cache.RedisCache
	hub      *Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := cache.NewRedisCache(context.Background(), mr.Addr(), "", 0, time.Hour, 10)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	a := analytics.NewAnalyzer(measurement.DefaultConfig(), analytics.Options{Workers: 2, QueueSize: 1000}, zap.NewNop())
	a.Start()
	t.Cleanup(a.Stop)

	hub := NewHub(zap.NewNop())
	t.Cleanup(hub.Close)

	mux := http.NewServeMux()
	NewHandler(a, store, hub, zap.NewNop()).Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, analyzer: a, store: store, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSessions_Lifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/sessions?device_id=dev-1&mode=face", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var started models.StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	assert.Equal(t, "started", started.Status)
	assert.Equal(t, "face", started.Mode)

	resp = env.do(t, http.MethodGet, "/sessions?device_id=dev-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var session measurement.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	assert.Equal(t, measurement.PhaseCalibrating, session.Phase)
	assert.NotEmpty(t, session.ID)

	resp = env.do(t, http.MethodDelete, "/sessions?device_id=dev-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/sessions?device_id=dev-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessions_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"missing device", http.MethodPost, "/sessions?mode=finger", http.StatusBadRequest},
		{"unknown mode", http.MethodPost, "/sessions?device_id=d&mode=ear", http.StatusBadRequest},
		{"wrong method", http.MethodPut, "/sessions?device_id=d", http.StatusMethodNotAllowed},
		{"failure via get", http.MethodGet, "/sessions/failure?device_id=d", http.StatusMethodNotAllowed},
		{"failure without device", http.MethodPost, "/sessions/failure", http.StatusBadRequest},
		{"history without device", http.MethodGet, "/history", http.StatusBadRequest},
		{"history bad limit", http.MethodGet, "/history?device_id=d&limit=-1", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, tt.method, tt.path, nil)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestSubmitSamples_Validation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/samples", models.SampleBatch{Samples: synth.Flat(100, 30, 1)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/samples", models.SampleBatch{DeviceID: "d"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/samples", models.SampleBatch{DeviceID: "d", Samples: synth.Flat(40000, 30, 1)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/samples", strings.NewReader("{oops"))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)

	resp = env.do(t, http.MethodGet, "/samples", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestSubmitBatch_BodyTooLarge(t *testing.T) {
	h := NewHandler(nil, nil, NewHub(zap.NewNop()), zap.NewNop())

	tests := []struct {
		name    string
		handler http.HandlerFunc
		body    string
	}{
		{
			name:    "samples",
			handler: h.SubmitSamples,
			body:    `{"device_id":"d","pad":"` + strings.Repeat("x", models.MaxSamplesBodyBytes) + `"}`,
		},
		{
			name:    "frames",
			handler: h.SubmitFrames,
			body:    `{"device_id":"d","pad":"` + strings.Repeat("x", models.MaxFramesBodyBytes) + `"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler(rec, httptest.NewRequest(http.MethodPost, "/"+tt.name, strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		})
	}
}

func TestSubmitSamples_CompletesMeasurement(t *testing.T) {
	env := newTestEnv(t)

	conn, _, err := websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(env.server.URL, "http")+"/ws?device_id=dev-2", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return env.hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	resp := env.do(t, http.MethodPost, "/sessions?device_id=dev-2", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	samples := synth.NewPPGSim(synth.DefaultOptions()).Samples(15000)
	for start := 0; start < len(samples); start += 150 {
		end := min(start+150, len(samples))
		resp := env.do(t, http.MethodPost, "/samples", models.SampleBatch{DeviceID: "dev-2", Samples: samples[start:end]})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}

	// события доставляются в хаб так же, как в main
	var complete analytics.Event
	deadline := time.After(5 * time.Second)
	for complete.Type != analytics.EventComplete {
		select {
		case e := <-env.analyzer.GetResultsChan():
			env.hub.Broadcast(e)
			complete = e
		case <-deadline:
			t.Fatal("no complete event")
		}
	}
	require.NotNil(t, complete.Measurement)
	require.NoError(t, env.store.StoreMeasurement(context.Background(), *complete.Measurement))

	// клиент получил хотя бы первое событие фазы
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var first analytics.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "dev-2", first.DeviceID)
	assert.Equal(t, analytics.EventPhase, first.Type)

	resp = env.do(t, http.MethodGet, "/history?device_id=dev-2&limit=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Count        int                       `json:"count"`
		Measurements []measurement.Measurement `json:"measurements"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, 1, body.Count)
	assert.InDelta(t, 72, body.Measurements[0].HeartRateBpm, 3)
}

func TestReportFailure(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/sessions?device_id=dev-3&mode=sound", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/sessions/failure?device_id=dev-3&reason=microphone+busy", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case e := <-env.analyzer.GetResultsChan():
			if e.Type != analytics.EventRetry {
				continue
			}
			require.NotNil(t, e.Retry)
			assert.Equal(t, measurement.ReasonAcquisition, e.Retry.Reason)
			assert.ErrorContains(t, e.Retry.Err, "microphone busy")
			return
		case <-deadline:
			t.Fatal("no retry event")
		}
	}
}

func TestHealthAndStats(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Contains(t, stats, "analyzer")
	assert.Contains(t, stats, "redis")
	assert.EqualValues(t, 0, stats["ws_clients"])
}

func TestHealthCheck_RedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	store, err := cache.NewRedisCache(context.Background(), mr.Addr(), "", 0, time.Hour, 10)
	require.NoError(t, err)
	defer store.Close()
	mr.Close()

	a := analytics.NewAnalyzer(measurement.DefaultConfig(), analytics.Options{}, zap.NewNop())
	h := NewHandler(a, store, NewHub(zap.NewNop()), zap.NewNop())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}

func TestHub_FiltersByDevice(t *testing.T) {
	env := newTestEnv(t)
	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws"

	mine, _, err := websocket.DefaultDialer.Dial(wsURL+"?device_id=a", nil)
	require.NoError(t, err)
	defer mine.Close()
	all, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer all.Close()
	require.Eventually(t, func() bool { return env.hub.Count() == 2 }, time.Second, 10*time.Millisecond)

	env.hub.Broadcast(analytics.Event{Type: analytics.EventPhase, DeviceID: "b"})
	env.hub.Broadcast(analytics.Event{Type: analytics.EventPhase, DeviceID: "a", Phase: measurement.PhaseMeasuring})

	var got analytics.Event
	require.NoError(t, mine.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, mine.ReadJSON(&got))
	assert.Equal(t, "a", got.DeviceID)
	assert.Equal(t, measurement.PhaseMeasuring, got.Phase)

	require.NoError(t, all.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, all.ReadJSON(&got))
	assert.Equal(t, "b", got.DeviceID)
	require.NoError(t, all.ReadJSON(&got))
	assert.Equal(t, "a", got.DeviceID)
}
