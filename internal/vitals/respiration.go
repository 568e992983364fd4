package vitals

import (
	"math"

	"ppg-vitals/internal/peaks"
	"ppg-vitals/internal/signal"
)

// Паттерны дыхания
const (
	BreathingNormal    = "normal"
	BreathingSlow      = "slow"
	BreathingRapid     = "rapid"
	BreathingIrregular = "irregular"
)

const (
	respMinRate       = 8
	respMaxRate       = 30
	respNormalLow     = 12
	respNormalHigh    = 20
	respIrregularCV   = 0.3
	respMinSeconds    = 4.0
	respSmoothSeconds = 0.25
)

// Respiration частота дыхания (вдохов/мин) и паттерн
type Respiration struct {
	RateBpm int    `json:"rate_bpm"`
	Pattern string `json:"pattern"`
	Breaths int    `json:"breaths"`
}

// EstimateRespiration ищет пики в сглаженном нормализованном сигнале (энергия аудио
// или низкочастотная составляющая видео). Нулевой RateBpm означает недостаточно данных.
func EstimateRespiration(values []float64, sampleRateHz float64) Respiration {
	if sampleRateHz <= 0 || len(values) == 0 {
		return Respiration{}
	}
	duration := float64(len(values)) / sampleRateHz
	if duration < respMinSeconds {
		return Respiration{}
	}

	// нечётное окно: у симметричной вершины нет плато
	k := int(math.Max(1, math.Round(sampleRateHz*respSmoothSeconds)))
	if k%2 == 0 {
		k++
	}
	normalized, err := signal.Normalize(signal.MovingAverage(values, k))
	if err != nil {
		return Respiration{}
	}

	breaths := peaks.FindPeaks(normalized, peaks.MinDistance(sampleRateHz, respMaxRate), true)
	if len(breaths) == 0 {
		return Respiration{}
	}

	rate := clampFloat(float64(len(breaths))/duration*60, respMinRate, respMaxRate)
	out := Respiration{
		RateBpm: int(math.Round(rate)),
		Breaths: len(breaths),
	}
	out.Pattern = classifyBreathing(out.RateBpm, peaks.Intervals(breaths))
	return out
}

func classifyBreathing(rate int, intervals []float64) string {
	if len(intervals) >= 2 {
		mean, std := meanStd(intervals)
		if mean > 0 && std/mean > respIrregularCV {
			return BreathingIrregular
		}
	}
	switch {
	case rate < respNormalLow:
		return BreathingSlow
	case rate > respNormalHigh:
		return BreathingRapid
	default:
		return BreathingNormal
	}
}
