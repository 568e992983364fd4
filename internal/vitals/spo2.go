package vitals

import (
	"math"
	"math/rand"
)

// SpO2 здесь не настоящая пульсоксиметрия (нет инфракрасного канала):
// R = AC/DC нормализованного красного канала, SpO2 ≈ 110 − 25·R.
// Значение приближённое и не годится для диагностики.
const (
	spo2Intercept = 110.0
	spo2Slope     = 25.0
	spo2Min       = 70.0
	spo2Max       = 100.0

	// подтяжка к нормальному диапазону
	spo2NormalLow    = 95.0
	spo2NormalCenter = 97.0
	spo2BiasWeight   = 0.3

	spo2MinFrames      = 30
	spo2FullFrames     = 300
	spo2StrongAC       = 0.25
	spo2ImplausibleR   = 1.2
	spo2ImplausibleCut = 0.5
)

// SpO2Reading оценка сатурации
type SpO2Reading struct {
	Percent    int     `json:"percent"`
	Confidence int     `json:"confidence"`
	Ratio      float64 `json:"ratio"`
}

// SpO2Options параметры оценки. Jitter > 0 включает шум сенсора из Rand.
type SpO2Options struct {
	Jitter float64
	Rand   *rand.Rand
}

// EstimateSpO2 оценивает SpO2 по нормализованному красному каналу.
// Нулевой Percent означает недостаточно данных.
func EstimateSpO2(normalized []float64, opts SpO2Options) SpO2Reading {
	if len(normalized) < spo2MinFrames {
		return SpO2Reading{}
	}

	dc, ac := meanStd(normalized)
	if dc <= 0 || ac <= 0 {
		return SpO2Reading{}
	}

	r := ac / dc
	value := spo2Intercept - spo2Slope*r
	if value < spo2NormalLow {
		value += (spo2NormalCenter - value) * spo2BiasWeight
	}
	if opts.Jitter > 0 && opts.Rand != nil {
		value += (opts.Rand.Float64()*2 - 1) * opts.Jitter
	}
	value = clampFloat(value, spo2Min, spo2Max)

	confidence := 100 *
		math.Min(1, float64(len(normalized))/spo2FullFrames) *
		math.Min(1, ac/spo2StrongAC)
	if r > spo2ImplausibleR {
		confidence *= spo2ImplausibleCut
	}

	return SpO2Reading{
		Percent:    int(math.Round(value)),
		Confidence: clampInt(int(math.Round(confidence)), 0, 100),
		Ratio:      r,
	}
}
