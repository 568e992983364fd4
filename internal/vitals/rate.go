package vitals

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"ppg-vitals/internal/peaks"
)

// Параметры оценки частоты
const (
	OutlierK = 2.0 // допуск в стандартных отклонениях

	// физиологический диапазон интервала, секунды (150–40 уд/мин)
	MinIntervalSeconds = 0.4
	MaxIntervalSeconds = 1.5

	basicMinPeaks        = 3
	basicMinIntervals    = 2
	enhancedMinPeaks     = 4
	enhancedMinIntervals = 3
)

// HeartRate базовая оценка ЧСС. (0, 0) означает недостаточно данных.
func HeartRate(peakIdx []float64, totalFrames int, fps float64) (bpm int, confidence int) {
	return estimateRate(peakIdx, totalFrames, fps, basicMinPeaks, basicMinIntervals)
}

// HeartRateEnhanced оценка ЧСС с более строгими требованиями к количеству пиков
func HeartRateEnhanced(peakIdx []float64, totalFrames int, fps float64) (bpm int, confidence int) {
	return estimateRate(peakIdx, totalFrames, fps, enhancedMinPeaks, enhancedMinIntervals)
}

func estimateRate(peakIdx []float64, totalFrames int, fps float64, minPeaks, minIntervals int) (int, int) {
	if len(peakIdx) < minPeaks || totalFrames <= 0 || fps <= 0 {
		return 0, 0
	}

	valid := FilterIntervals(peaks.Intervals(peakIdx), fps)
	if len(valid) < minIntervals {
		return 0, 0
	}

	mean, std := meanStd(valid)
	if mean <= 0 {
		return 0, 0
	}
	bpm := int(math.Round(fps * 60 / mean))
	if bpm <= 0 {
		return 0, 0
	}

	variability := std / mean
	observed := float64(len(peakIdx)) / (float64(totalFrames) / fps)
	expected := float64(bpm) / 60
	densityError := math.Abs(1 - observed/expected)

	confidence := 100 * (1 - variability) * (1 - densityError)
	return bpm, clampInt(int(math.Round(confidence)), 0, 100)
}

// FilterIntervals отбрасывает выбросы: дальше OutlierK·stddev от среднего
// или вне физиологического диапазона. Исходный срез не меняется.
func FilterIntervals(intervals []float64, fps float64) []float64 {
	if len(intervals) == 0 || fps <= 0 {
		return nil
	}

	mean, std := meanStd(intervals)
	lo, hi := MinIntervalSeconds*fps, MaxIntervalSeconds*fps

	valid := make([]float64, 0, len(intervals))
	for _, iv := range intervals {
		if math.Abs(iv-mean) > OutlierK*std {
			continue
		}
		if iv < lo || iv > hi {
			continue
		}
		valid = append(valid, iv)
	}
	return valid
}

// meanStd среднее и популяционное стандартное отклонение; пустой срез даёт нули
func meanStd(x []float64) (float64, float64) {
	if len(x) == 0 {
		return 0, 0
	}
	mean, std := stat.PopMeanStdDev(x, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
