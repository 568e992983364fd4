package synth

import (
	"math"
	"math/rand"

	"ppg-vitals/internal/signal"
)

// BreathSim энергия аудио (RMS) при дыхании у микрофона
type BreathSim struct {
	rateHz     float64
	breathsPer float64
	noise      float64
	rng        *rand.Rand
	n          int
}

// Samples аудио-отсчёты на durationMs миллисекунд включительно
func (b *BreathSim) Samples(durationMs float64) []signal.FrameSample {
	var out []signal.FrameSample
	for {
		s := b.Next()
		out = append(out, s)
		if s.Timestamp >= durationMs {
			return out
		}
	}
}

// NewBreathSim создает генератор аудио-энергии с частотой rateHz отсчётов/с
func NewBreathSim(rateHz, breathsPerMin, noise float64, seed int64) *BreathSim {
	return &BreathSim{
		rateHz:     rateHz,
		breathsPer: breathsPerMin,
		noise:      noise,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Next следующий аудио-отсчёт
func (b *BreathSim) Next() signal.FrameSample {
	t := float64(b.n) / b.rateHz
	b.n++

	// огибающая вдоха: половина синуса, тишина на выдохе
	env := math.Max(0, math.Sin(2*math.Pi*t*b.breathsPer/60))
	v := 0.02 + 0.2*env
	if b.noise > 0 {
		v += math.Abs(b.rng.NormFloat64() * b.noise)
	}
	return signal.FrameSample{Timestamp: t * 1000, Value: v, Channel: signal.ChannelAudio}
}
