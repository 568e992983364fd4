package signal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(n int, periodSamples, amplitude, offset float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = offset + amplitude*math.Sin(2*math.Pi*float64(i)/periodSamples)
	}
	return out
}

func TestNormalize_Bounds(t *testing.T) {
	in := []float64{3, 7, 5, -1, 11, 4}

	out, err := Normalize(in)
	require.NoError(t, err)
	require.Len(t, out, len(in))

	zeros, ones := 0, 0
	for _, v := range out {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
		if v == 0 {
			zeros++
		}
		if v == 1 {
			ones++
		}
	}
	assert.Equal(t, 1, zeros)
	assert.Equal(t, 1, ones)
	assert.InDelta(t, 0.5, out[2], 1e-12)
}

func TestNormalize_Degenerate(t *testing.T) {
	out, err := Normalize([]float64{4, 4, 4, 4})

	assert.ErrorIs(t, err, ErrDegenerateSignal)
	assert.Equal(t, []float64{0, 0, 0, 0}, out)
}

func TestNormalize_Empty(t *testing.T) {
	out, err := Normalize(nil)

	assert.NoError(t, err)
	assert.Empty(t, out)
}

func TestMovingAverage_Trailing(t *testing.T) {
	out := MovingAverage([]float64{2, 4, 6, 8, 10}, 3)

	assert.InDeltaSlice(t, []float64{2, 3, 4, 6, 8}, out, 1e-12)
}

func TestMovingAverage_NoLookAhead(t *testing.T) {
	in := []float64{1, 1, 1, 1, 100}
	out := MovingAverage(in, 2)

	// последний отсчёт не влияет на предыдущие
	assert.InDeltaSlice(t, []float64{1, 1, 1, 1, 50.5}, out, 1e-12)
}

func TestBandpass_RemovesDrift(t *testing.T) {
	n := 300
	in := sine(n, 30, 1, 0) // 1 Гц при 30 Гц
	for i := range in {
		in[i] += 0.002 * float64(i) // медленный дрейф
	}

	out := Bandpass(in, PulseLowHz, PulseHighHz, 30)
	require.Len(t, out, n)

	// после переходного процесса средний уровень близок к нулю
	tail := out[150:]
	mean := 0.0
	for _, v := range tail {
		mean += v
	}
	mean /= float64(len(tail))
	assert.InDelta(t, 0, mean, 0.05)
}

func TestButterworth_PassesPulseBand(t *testing.T) {
	n := 600
	in := sine(n, 25, 1, 5) // 1.2 Гц

	out := Butterworth(in, PulseLowHz, PulseHighHz, 30)
	require.Len(t, out, n)

	peak := 0.0
	for _, v := range out[300:] {
		peak = math.Max(peak, math.Abs(v))
	}
	assert.InDelta(t, 1.0, peak, 0.1)
}

func TestButterworth_RejectsHighFrequency(t *testing.T) {
	n := 600
	in := sine(n, 3, 1, 0) // 10 Гц

	out := Butterworth(in, PulseLowHz, PulseHighHz, 30)

	peak := 0.0
	for _, v := range out[300:] {
		peak = math.Max(peak, math.Abs(v))
	}
	assert.Less(t, peak, 0.2)
}

func TestCondition_FiniteAndParallel(t *testing.T) {
	for _, enhanced := range []bool{false, true} {
		c := Condition(sine(300, 30, 10, 120), PulseLowHz, PulseHighHz, 30, enhanced)

		require.Len(t, c.Filtered, len(c.Raw))
		assert.False(t, c.Degenerate)
		for _, v := range c.Filtered {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		}
	}
}

func TestCondition_Flat(t *testing.T) {
	flat := make([]float64, 100)
	for i := range flat {
		flat[i] = 128
	}

	c := Condition(flat, PulseLowHz, PulseHighHz, 30, true)

	assert.True(t, c.Degenerate)
	assert.Len(t, c.Filtered, 100)
	for _, v := range c.Filtered {
		assert.Zero(t, v)
	}
}

func TestWindow_EvictsOldest(t *testing.T) {
	w := NewWindow(3)
	for i := 0; i < 5; i++ {
		w.Push(FrameSample{Timestamp: float64(i) * 100, Value: float64(i), Channel: ChannelRed})
	}

	assert.Equal(t, 3, w.Len())
	assert.Equal(t, []float64{2, 3, 4}, w.Values())
	assert.Equal(t, 200.0, w.SpanMs())

	last, ok := w.Last()
	require.True(t, ok)
	assert.Equal(t, 4.0, last.Value)
}

func TestWindow_SampleRate(t *testing.T) {
	w := NewWindow(300)
	assert.Equal(t, 30.0, w.SampleRate(30))

	for i := 0; i < 31; i++ {
		w.Push(FrameSample{Timestamp: float64(i) * 40, Value: 1})
	}
	assert.InDelta(t, 25.0, w.SampleRate(30), 1e-9)

	w.Reset()
	assert.Equal(t, 0, w.Len())
	_, ok := w.Last()
	assert.False(t, ok)
}

func TestChannel_Valid(t *testing.T) {
	assert.True(t, ChannelRed.Valid())
	assert.True(t, ChannelAudio.Valid())
	assert.False(t, Channel("infrared").Valid())
}
