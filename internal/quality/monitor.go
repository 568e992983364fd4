package quality

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Флаги качества, показываются пользователю
const (
	FlagLowSignal   = "Low signal quality"
	FlagTooFewBeats = "Too few beats detected"
	FlagIrregular   = "Irregular heartbeat intervals"
)

// maxSNR потолок для сигнала без измеримого шума, дБ
const maxSNR = 40.0

// Thresholds пороги монитора качества
type Thresholds struct {
	LowConfidence int
	MinSNR        float64 // дБ
	MinBeats      int
	IrregularCV   float64
}

// DefaultThresholds пороги по умолчанию
func DefaultThresholds() Thresholds {
	return Thresholds{
		LowConfidence: 30,
		MinSNR:        3,
		MinBeats:      4,
		IrregularCV:   0.25,
	}
}

// Input снимок окна для оценки качества
type Input struct {
	Normalized []float64
	Degenerate bool
	Confidence int
	Peaks      int
	Intervals  []float64 // сырые интервалы, включая выбросы
}

// Report результат оценки
type Report struct {
	SNR   float64  `json:"snr_db"`
	Flags []string `json:"flags"`
}

// Has проверяет наличие флага
func (r Report) Has(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// SNR оценка отношения сигнал/шум в дБ. Шум оценивается по вторым разностям:
// для белого шума дисперсия второй разности равна 6σ².
func SNR(normalized []float64) float64 {
	if len(normalized) < 3 {
		return 0
	}

	_, signalStd := stat.PopMeanStdDev(normalized, nil)
	if !(signalStd > 0) {
		return 0
	}

	sumSq := 0.0
	for i := 1; i < len(normalized)-1; i++ {
		d := normalized[i-1] - 2*normalized[i] + normalized[i+1]
		sumSq += d * d
	}
	noiseStd := math.Sqrt(sumSq/float64(len(normalized)-2)) / math.Sqrt(6)
	if noiseStd == 0 {
		return maxSNR
	}

	return math.Min(maxSNR, 20*math.Log10(signalStd/noiseStd))
}

// Assess вычисляет SNR и структурные флаги качества
func Assess(in Input, th Thresholds) Report {
	report := Report{Flags: []string{}}
	if !in.Degenerate {
		report.SNR = SNR(in.Normalized)
	}

	if in.Degenerate || in.Confidence < th.LowConfidence || report.SNR < th.MinSNR {
		report.Flags = append(report.Flags, FlagLowSignal)
	}
	if in.Peaks < th.MinBeats {
		report.Flags = append(report.Flags, FlagTooFewBeats)
	}
	if len(in.Intervals) >= 2 {
		mean, std := stat.PopMeanStdDev(in.Intervals, nil)
		if mean > 0 && std/mean > th.IrregularCV {
			report.Flags = append(report.Flags, FlagIrregular)
		}
	}
	return report
}
