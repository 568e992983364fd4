package vitals

import (
	"math"

	"ppg-vitals/internal/peaks"
)

// HRV метрики вариабельности сердечного ритма, мс и %
type HRV struct {
	SDNN  float64 `json:"sdnn"`
	RMSSD float64 `json:"rmssd"`
	PNN50 float64 `json:"pnn50"`
}

const (
	hrvMinPeaks = 4
	nn50Ms      = 50.0
)

// IntervalsMs переводит интервалы в отсчётах в миллисекунды
func IntervalsMs(intervals []float64, fps float64) []float64 {
	out := make([]float64, len(intervals))
	for i, iv := range intervals {
		out[i] = iv / fps * 1000
	}
	return out
}

// CalculateHRV считает SDNN, RMSSD и pNN50 по отфильтрованным интервалам.
// ok == false, если пиков меньше четырёх.
func CalculateHRV(peakIdx []float64, fps float64) (HRV, bool) {
	if len(peakIdx) < hrvMinPeaks || fps <= 0 {
		return HRV{}, false
	}

	valid := FilterIntervals(peaks.Intervals(peakIdx), fps)
	if len(valid) < 2 {
		return HRV{}, false
	}
	ms := IntervalsMs(valid, fps)

	_, sdnn := meanStd(ms)

	sumSq := 0.0
	nn50 := 0
	for i := 1; i < len(ms); i++ {
		d := ms[i] - ms[i-1]
		sumSq += d * d
		if math.Abs(d) > nn50Ms {
			nn50++
		}
	}
	diffs := float64(len(ms) - 1)

	return HRV{
		SDNN:  sdnn,
		RMSSD: math.Sqrt(sumSq / diffs),
		PNN50: 100 * float64(nn50) / diffs,
	}, true
}
