package peaks

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	// FixedThreshold порог для нормализованного сигнала 0–1
	FixedThreshold = 0.5
	// AdaptiveK множитель стандартного отклонения в адаптивном пороге
	AdaptiveK = 0.8
	// neighbors сколько соседей с каждой стороны должно быть ниже пика
	neighbors = 2
)

// Threshold порог обнаружения: mean + 0.8·stddev или фиксированный
func Threshold(signal []float64, adaptive bool) float64 {
	if !adaptive {
		return FixedThreshold
	}
	if len(signal) == 0 {
		return 0
	}
	mean, std := stat.PopMeanStdDev(signal, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean + AdaptiveK*std
}

// FindPeaks находит локальные максимумы выше порога, разнесённые минимум на minDistance отсчётов.
// Индексы дробные: вершина уточняется параболой по трём точкам.
func FindPeaks(signal []float64, minDistance int, adaptive bool) []float64 {
	if len(signal) < 2*neighbors+1 {
		return nil
	}
	if minDistance < 1 {
		minDistance = 1
	}

	threshold := Threshold(signal, adaptive)

	var peaks []float64
	last := 0.0
	for i := neighbors; i < len(signal)-neighbors; i++ {
		v := signal[i]
		if v <= threshold || !isLocalMax(signal, i) {
			continue
		}

		pos := float64(i) + refine(signal[i-1], v, signal[i+1])
		if len(peaks) > 0 && pos-last < float64(minDistance) {
			continue
		}
		peaks = append(peaks, pos)
		last = pos
	}
	return peaks
}

func isLocalMax(signal []float64, i int) bool {
	for d := 1; d <= neighbors; d++ {
		if signal[i] <= signal[i-d] || signal[i] <= signal[i+d] {
			return false
		}
	}
	return true
}

// refine смещение вершины параболы через (i-1, i, i+1); для коллинеарной тройки 0
func refine(a, b, c float64) float64 {
	den := a - 2*b + c
	if den == 0 {
		return 0
	}
	delta := (a - c) / (2 * den)
	if delta > 0.5 {
		return 0.5
	}
	if delta < -0.5 {
		return -0.5
	}
	return delta
}

// Intervals разности соседних индексов пиков (в отсчётах)
func Intervals(peaks []float64) []float64 {
	if len(peaks) < 2 {
		return nil
	}
	out := make([]float64, len(peaks)-1)
	for i := 1; i < len(peaks); i++ {
		out[i-1] = peaks[i] - peaks[i-1]
	}
	return out
}

// MinDistance минимальное расстояние между пиками для заданной максимальной частоты
func MinDistance(sampleRateHz, maxPerMinute float64) int {
	if sampleRateHz <= 0 || maxPerMinute <= 0 {
		return 1
	}
	d := int(sampleRateHz * 60 / maxPerMinute)
	if d < 1 {
		return 1
	}
	return d
}
