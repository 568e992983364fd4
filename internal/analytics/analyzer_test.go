package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ppg-vitals/internal/capture"
	"ppg-vitals/internal/measurement"
	"ppg-vitals/internal/synth"
)

func newTestAnalyzer(t *testing.T, cfg measurement.Config, opts Options) *Analyzer {
	t.Helper()
	a := NewAnalyzer(cfg, opts, zap.NewNop())
	a.Start()
	t.Cleanup(a.Stop)
	return a
}

// waitFor читает события, пока не встретит событие нужного типа
func waitFor(t *testing.T, ch <-chan Event, want EventType) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			require.True(t, ok, "results channel closed")
			if e.Type == want {
				return e
			}
		case <-timeout:
			t.Fatalf("no %s event", want)
		}
	}
}

func TestAnalyzer_FullMeasurement(t *testing.T) {
	a := newTestAnalyzer(t, measurement.DefaultConfig(), Options{Workers: 4, QueueSize: 1000})

	require.NoError(t, a.Submit(Command{Type: CommandStart, DeviceID: "dev-1", Mode: capture.ModeFinger}))

	samples := synth.NewPPGSim(synth.DefaultOptions()).Samples(15000)
	for start := 0; start < len(samples); start += 30 {
		end := min(start+30, len(samples))
		require.NoError(t, a.Submit(Command{Type: CommandSamples, DeviceID: "dev-1", Samples: samples[start:end]}))
	}

	e := waitFor(t, a.GetResultsChan(), EventComplete)
	require.NotNil(t, e.Measurement)
	assert.Equal(t, "dev-1", e.DeviceID)
	assert.InDelta(t, 72, e.Measurement.HeartRateBpm, 3)
	assert.Greater(t, e.Measurement.ConfidencePercent, 50)

	session, ok, err := a.Session(context.Background(), "dev-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, measurement.PhaseComplete, session.Phase)
	assert.Equal(t, 0, a.GetStats()["active_sessions"])
}

func TestAnalyzer_CompleteSurvivesFullResults(t *testing.T) {
	a := newTestAnalyzer(t, measurement.DefaultConfig(), Options{Workers: 1, QueueSize: 64})

	require.NoError(t, a.Submit(Command{Type: CommandStart, DeviceID: "dev-slow", Mode: capture.ModeFinger}))
	samples := synth.NewPPGSim(synth.DefaultOptions()).Samples(15000)
	for start := 0; start < len(samples); start += 30 {
		end := min(start+30, len(samples))
		require.NoError(t, a.Submit(Command{Type: CommandSamples, DeviceID: "dev-slow", Samples: samples[start:end]}))
	}

	// никто не читает события: канал переполняется, прогресс теряется
	require.Eventually(t, func() bool {
		return a.GetStats()["dropped_events"].(int64) > 0
	}, 5*time.Second, 10*time.Millisecond)

	e := waitFor(t, a.GetResultsChan(), EventComplete)
	require.NotNil(t, e.Measurement)
	assert.InDelta(t, 72, e.Measurement.HeartRateBpm, 3)
}

func TestEventType_Terminal(t *testing.T) {
	assert.True(t, EventComplete.Terminal())
	assert.True(t, EventRetry.Terminal())
	assert.False(t, EventProgress.Terminal())
	assert.False(t, EventMetricUpdate.Terminal())
	assert.False(t, EventPhase.Terminal())
}

func TestAnalyzer_SamplesWithoutSessionDropped(t *testing.T) {
	a := newTestAnalyzer(t, measurement.DefaultConfig(), Options{Workers: 2, QueueSize: 10})

	samples := synth.Flat(1000, 30, 100)
	require.NoError(t, a.Submit(Command{Type: CommandSamples, DeviceID: "dev-2", Samples: samples}))

	_, ok, err := a.Session(context.Background(), "dev-2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(len(samples)), a.GetStats()["dropped_samples"])
}

func TestAnalyzer_FramesUseSessionMode(t *testing.T) {
	a := newTestAnalyzer(t, measurement.DefaultConfig(), Options{Workers: 1, QueueSize: 10})
	require.NoError(t, a.Submit(Command{Type: CommandStart, DeviceID: "dev-3", Mode: capture.ModeFinger}))

	frames := make([]capture.Frame, 10)
	for i := range frames {
		px := make([]byte, 4*4*4)
		for p := 0; p < 16; p++ {
			px[p*4] = byte(150 + i)
		}
		frames[i] = capture.Frame{Timestamp: float64(i) * 33, Width: 4, Height: 4, Pixels: px}
	}
	// кадр без пикселей отбрасывается, остальные доходят до контроллера
	frames = append(frames, capture.Frame{Timestamp: 400})
	require.NoError(t, a.Submit(Command{Type: CommandFrames, DeviceID: "dev-3", Frames: frames}))

	session, ok, err := a.Session(context.Background(), "dev-3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10, session.Samples)
	assert.Equal(t, measurement.PhaseCalibrating, session.Phase)
	assert.Equal(t, 1, a.GetStats()["active_sessions"])
}

func TestAnalyzer_StopAndFailure(t *testing.T) {
	a := newTestAnalyzer(t, measurement.DefaultConfig(), Options{Workers: 1, QueueSize: 100})

	require.NoError(t, a.Submit(Command{Type: CommandStart, DeviceID: "dev-4", Mode: capture.ModeFace}))
	require.NoError(t, a.Submit(Command{Type: CommandFailure, DeviceID: "dev-4", Err: errors.New("permission denied")}))

	e := waitFor(t, a.GetResultsChan(), EventRetry)
	require.NotNil(t, e.Retry)
	assert.Equal(t, measurement.ReasonAcquisition, e.Retry.Reason)
	assert.ErrorIs(t, e.Retry.Err, measurement.ErrAcquisitionFailure)

	// остановка без сессии ничего не меняет
	require.NoError(t, a.Submit(Command{Type: CommandStop, DeviceID: "dev-4"}))
	_, ok, err := a.Session(context.Background(), "dev-4")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAnalyzer_TickExpiresSessions(t *testing.T) {
	cfg := measurement.DefaultConfig()
	cfg.MaxSessionAgeMs = 100
	a := newTestAnalyzer(t, cfg, Options{Workers: 1, QueueSize: 100, TickInterval: 10 * time.Millisecond})

	require.NoError(t, a.Submit(Command{
		Type:     CommandStart,
		DeviceID: "dev-5",
		Mode:     capture.ModeFinger,
		At:       time.Now().Add(-time.Second),
	}))

	e := waitFor(t, a.GetResultsChan(), EventRetry)
	assert.Equal(t, measurement.ReasonExpired, e.Retry.Reason)
}

func TestAnalyzer_QueueFull(t *testing.T) {
	a := NewAnalyzer(measurement.DefaultConfig(), Options{Workers: 1, QueueSize: 1}, zap.NewNop())

	// воркеры не запущены: очередь не разбирается
	require.NoError(t, a.Submit(Command{Type: CommandStart, DeviceID: "dev-6"}))
	err := a.Submit(Command{Type: CommandSamples, DeviceID: "dev-6", Samples: synth.Flat(100, 30, 1)})

	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, int64(4), a.GetStats()["dropped_samples"])
	assert.Equal(t, 1, a.GetStats()["queue_size"])
}

func TestAnalyzer_SubmitAfterStop(t *testing.T) {
	a := NewAnalyzer(measurement.DefaultConfig(), Options{Workers: 2, QueueSize: 10}, zap.NewNop())
	a.Start()
	a.Stop()
	a.Stop()

	assert.ErrorIs(t, a.Submit(Command{Type: CommandStart, DeviceID: "dev-7"}), ErrStopped)
	_, ok := <-a.GetResultsChan()
	assert.False(t, ok)
}

func TestAnalyzer_RoutingIsStable(t *testing.T) {
	a := NewAnalyzer(measurement.DefaultConfig(), Options{Workers: 8, QueueSize: 1}, zap.NewNop())

	for _, id := range []string{"a", "b", "device-42"} {
		assert.Same(t, a.route(id), a.route(id))
	}
}
