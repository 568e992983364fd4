package measurement

import (
	"ppg-vitals/internal/capture"
	"ppg-vitals/internal/peaks"
	"ppg-vitals/internal/quality"
	"ppg-vitals/internal/signal"
	"ppg-vitals/internal/vitals"
)

// Estimate показатели по текущему окну
type Estimate struct {
	HeartRateBpm int                `json:"heart_rate_bpm"`
	Confidence   int                `json:"confidence"`
	Accepted     bool               `json:"accepted"`
	Peaks        int                `json:"peaks"`
	HRV          *vitals.HRV        `json:"hrv,omitempty"`
	SpO2         vitals.SpO2Reading `json:"spo2"`
	Respiration  vitals.Respiration `json:"respiration"`
	Quality      quality.Report     `json:"quality"`
}

func (e Estimate) hrv() (vitals.HRV, bool) {
	if e.HRV == nil {
		return vitals.HRV{}, false
	}
	return *e.HRV, true
}

func (e Estimate) heartScore() (int, string) {
	hrv, ok := e.hrv()
	return vitals.HeartScore(e.HeartRateBpm, hrv, ok)
}

func (e Estimate) stress() (int, string) {
	hrv, ok := e.hrv()
	return vitals.StressLevel(e.HeartRateBpm, hrv, ok)
}

func (e Estimate) emotion() string {
	hrv, ok := e.hrv()
	return vitals.Emotion(e.HeartRateBpm, hrv, ok)
}

// analyze прогоняет окно через весь конвейер: нормализация, фильтр, пики,
// частота, производные показатели и качество
func (c *Controller) analyze() Estimate {
	if c.session.Mode == capture.ModeSound {
		return c.analyzeSound()
	}

	values := c.video.Values()
	fs := c.video.SampleRate(c.cfg.SamplingRateHz)
	cond := signal.Condition(values, signal.PulseLowHz, signal.PulseHighHz, fs, c.cfg.EnhancedProcessing)

	var beats []float64
	if !cond.Degenerate {
		// пики ищутся по отфильтрованному сигналу, приведённому к 0–1
		if pulse, err := signal.Normalize(cond.Filtered); err == nil {
			beats = peaks.FindPeaks(pulse, peaks.MinDistance(fs, float64(c.cfg.MaxHr)), c.cfg.AdaptiveThreshold)
		}
	}

	est := Estimate{Peaks: len(beats)}
	if c.cfg.EnhancedProcessing {
		est.HeartRateBpm, est.Confidence = vitals.HeartRateEnhanced(beats, len(values), fs)
	} else {
		est.HeartRateBpm, est.Confidence = vitals.HeartRate(beats, len(values), fs)
	}
	est.Accepted = est.HeartRateBpm >= c.cfg.MinHr &&
		est.HeartRateBpm <= c.cfg.MaxHr &&
		est.Confidence > c.cfg.MinConfidence

	if hrv, ok := vitals.CalculateHRV(beats, fs); ok {
		est.HRV = &hrv
	}
	if c.videoChannel == signal.ChannelRed && !cond.Degenerate {
		est.SpO2 = vitals.EstimateSpO2(cond.Raw, vitals.SpO2Options{Jitter: c.cfg.SpO2Jitter, Rand: c.rng})
	}
	est.Respiration = c.respiration(cond, fs)
	est.Quality = quality.Assess(quality.Input{
		Normalized: cond.Raw,
		Degenerate: cond.Degenerate,
		Confidence: est.Confidence,
		Peaks:      len(beats),
		Intervals:  peaks.Intervals(beats),
	}, quality.DefaultThresholds())
	return est
}

// respiration по микрофону, если аудио хватает, иначе по дыхательной полосе видео
func (c *Controller) respiration(cond signal.ConditionedSignal, fs float64) vitals.Respiration {
	if c.audio.SpanMs() >= audioRespirationMs {
		return vitals.EstimateRespiration(c.audio.Values(), c.audio.SampleRate(c.cfg.SamplingRateHz))
	}
	if cond.Degenerate {
		return vitals.Respiration{}
	}
	breath := signal.Filter(cond.Raw, signal.BreathLowHz, signal.BreathHighHz, fs, c.cfg.EnhancedProcessing)
	return vitals.EstimateRespiration(breath, fs)
}

// analyzeSound режим микрофона: есть только дыхание
func (c *Controller) analyzeSound() Estimate {
	est := Estimate{Quality: quality.Report{Flags: []string{}}}
	if c.audio.SpanMs() >= audioRespirationMs {
		est.Respiration = vitals.EstimateRespiration(c.audio.Values(), c.audio.SampleRate(c.cfg.SamplingRateHz))
	}
	est.Accepted = est.Respiration.RateBpm > 0
	if !est.Accepted {
		est.Quality.Flags = append(est.Quality.Flags, quality.FlagLowSignal)
	}
	return est
}
