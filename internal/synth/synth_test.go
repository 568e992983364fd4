package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ppg-vitals/internal/signal"
)

func localMaxima(samples []signal.FrameSample) int {
	count := 0
	for i := 1; i < len(samples)-1; i++ {
		if samples[i].Value >= samples[i-1].Value && samples[i].Value > samples[i+1].Value {
			count++
		}
	}
	return count
}

func TestPPGSim_BeatCount(t *testing.T) {
	opts := DefaultOptions()
	opts.Jitter = 0
	opts.Noise = 0
	opts.BreathDepth = 0

	samples := NewPPGSim(opts).Samples(10000)

	require.Len(t, samples, 301)
	assert.InDelta(t, 10000.0, samples[300].Timestamp, 1e-6)
	assert.InDelta(t, 12, localMaxima(samples), 1)
}

func TestPPGSim_SeedReproducible(t *testing.T) {
	a := NewPPGSim(DefaultOptions()).Samples(3000)
	b := NewPPGSim(DefaultOptions()).Samples(3000)

	assert.Equal(t, a, b)
}

func TestPPGSim_ChannelDefault(t *testing.T) {
	s := NewPPGSim(Options{HeartRateBpm: 60}).Next()

	assert.Equal(t, signal.ChannelRed, s.Channel)
	assert.Zero(t, s.Timestamp)
}

func TestFlat(t *testing.T) {
	samples := Flat(1000, 30, 128)

	require.Len(t, samples, 31)
	for _, s := range samples {
		assert.Equal(t, 128.0, s.Value)
	}
}

func TestBreathSim_Envelope(t *testing.T) {
	samples := NewBreathSim(10, 15, 0, 1).Samples(8000)

	// 15 вдохов/мин: вдох длится 2 с, затем 2 с тишины
	require.Len(t, samples, 81)
	assert.Equal(t, signal.ChannelAudio, samples[0].Channel)
	assert.InDelta(t, 0.22, samples[10].Value, 1e-6) // пик вдоха на 1 с
	assert.InDelta(t, 0.02, samples[30].Value, 1e-6) // выдох
}
