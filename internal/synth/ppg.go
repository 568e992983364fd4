// Package synth генерирует синтетические PPG и дыхательные сигналы
// для симулятора и тестов. Сигналы не клинические.
package synth

import (
	"math"
	"math/rand"

	"ppg-vitals/internal/signal"
)

// Options параметры генератора
type Options struct {
	SampleRateHz  float64
	HeartRateBpm  float64
	Jitter        float64 // относительный разброс интервалов, 0.03 = ±3%
	Noise         float64 // СКО гауссова шума в единицах яркости
	DC            float64 // средняя яркость
	Amplitude     float64 // пульсовая амплитуда
	BreathsPerMin float64
	BreathDepth   float64 // амплитуда дыхательной модуляции базовой линии
	Channel       signal.Channel
	Seed          int64
}

// DefaultOptions палец на камере, 72 уд/мин, 30 кадров/с
func DefaultOptions() Options {
	return Options{
		SampleRateHz:  30,
		HeartRateBpm:  72,
		Jitter:        0.03,
		Noise:         0.05,
		DC:            180,
		Amplitude:     2,
		BreathsPerMin: 15,
		BreathDepth:   0.5,
		Channel:       signal.ChannelRed,
		Seed:          1,
	}
}

// PPGSim генератор пульсовой волны с фазовым аккумулятором.
// Вершина волны приходится на целую фазу; длительность каждого удара
// выбирается заново с разбросом Jitter.
type PPGSim struct {
	opts        Options
	rng         *rand.Rand
	phase       float64
	beatSeconds float64
	breathPhase float64
	n           int
}

// NewPPGSim создает генератор
func NewPPGSim(opts Options) *PPGSim {
	if opts.SampleRateHz <= 0 {
		opts.SampleRateHz = 30
	}
	if opts.Channel == "" {
		opts.Channel = signal.ChannelRed
	}
	s := &PPGSim{
		opts:  opts,
		rng:   rand.New(rand.NewSource(opts.Seed)),
		phase: 0.5, // старт со впадины
	}
	s.beatSeconds = s.nextBeat()
	return s
}

func (s *PPGSim) nextBeat() float64 {
	if s.opts.HeartRateBpm <= 0 {
		return math.Inf(1)
	}
	base := 60 / s.opts.HeartRateBpm
	return base * (1 + s.opts.Jitter*(2*s.rng.Float64()-1))
}

// Next возвращает следующий отсчёт и продвигает время
func (s *PPGSim) Next() signal.FrameSample {
	dt := 1 / s.opts.SampleRateHz

	v := s.opts.DC +
		s.opts.Amplitude*math.Cos(2*math.Pi*s.phase) +
		s.opts.BreathDepth*math.Sin(2*math.Pi*s.breathPhase)
	if s.opts.Noise > 0 {
		v += s.rng.NormFloat64() * s.opts.Noise
	}

	sample := signal.FrameSample{
		Timestamp: float64(s.n) * dt * 1000,
		Value:     v,
		Channel:   s.opts.Channel,
	}

	s.n++
	s.phase += dt / s.beatSeconds
	if s.phase >= 1 {
		s.phase -= 1
		s.beatSeconds = s.nextBeat()
	}
	s.breathPhase += dt * s.opts.BreathsPerMin / 60
	if s.breathPhase >= 1 {
		s.breathPhase -= 1
	}
	return sample
}

// Samples генерирует отсчёты на durationMs миллисекунд включительно
func (s *PPGSim) Samples(durationMs float64) []signal.FrameSample {
	var out []signal.FrameSample
	for {
		sample := s.Next()
		out = append(out, sample)
		if sample.Timestamp >= durationMs {
			return out
		}
	}
}

// Flat отсчёты постоянной яркости (палец не приложен, камера закрыта)
func Flat(durationMs, sampleRateHz, value float64) []signal.FrameSample {
	var out []signal.FrameSample
	dt := 1000 / sampleRateHz
	for i := 0; ; i++ {
		ts := float64(i) * dt
		out = append(out, signal.FrameSample{Timestamp: ts, Value: value, Channel: signal.ChannelRed})
		if ts >= durationMs {
			return out
		}
	}
}
