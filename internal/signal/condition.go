package signal

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrDegenerateSignal окно без размаха (max == min), нормализация невозможна
var ErrDegenerateSignal = errors.New("degenerate signal: zero amplitude window")

// Полоса пульса по умолчанию, Гц
const (
	PulseLowHz  = 0.5
	PulseHighHz = 3.0
)

// Полоса дыхания для видеоканала, Гц
const (
	BreathLowHz  = 0.1
	BreathHighHz = 0.5
)

// ConditionedSignal нормализованный и отфильтрованный сигнал.
// len(Filtered) == len(Raw), все значения конечны.
type ConditionedSignal struct {
	Raw        []float64
	Filtered   []float64
	Degenerate bool
}

// Len длина сигнала
func (c ConditionedSignal) Len() int { return len(c.Raw) }

// Normalize линейно отображает окно в [0,1]: min -> 0, max -> 1.
// Для плоского окна возвращает нули вместе с ErrDegenerateSignal.
func Normalize(window []float64) ([]float64, error) {
	out := make([]float64, len(window))
	if len(window) == 0 {
		return out, nil
	}

	lo, hi := floats.Min(window), floats.Max(window)
	span := hi - lo
	if span == 0 || math.IsNaN(span) || math.IsInf(span, 0) {
		return out, ErrDegenerateSignal
	}

	for i, v := range window {
		out[i] = (v - lo) / span
	}
	return out, nil
}

// MovingAverage скользящее среднее по хвостовому окну min(k, i+1), без заглядывания вперёд
func MovingAverage(window []float64, k int) []float64 {
	out := make([]float64, len(window))
	if k < 1 {
		k = 1
	}

	sum := 0.0
	for i, v := range window {
		sum += v
		if i >= k {
			sum -= window[i-k]
		}
		n := min(k, i+1)
		out[i] = sum / float64(n)
	}
	return out
}

// Bandpass однопроходный полосовой фильтр: ФВЧ первого порядка (дрейф освещения),
// затем ФНЧ первого порядка (шум сенсора). Коэффициенты из RC = 1/(2πf).
func Bandpass(window []float64, lowHz, highHz, sampleRateHz float64) []float64 {
	out := make([]float64, len(window))
	if len(window) == 0 {
		return out
	}
	if sampleRateHz <= 0 || lowHz <= 0 || highHz <= lowHz {
		copy(out, window)
		return out
	}

	dt := 1 / sampleRateHz
	rcHigh := 1 / (2 * math.Pi * lowHz)
	alpha := rcHigh / (rcHigh + dt)
	rcLow := 1 / (2 * math.Pi * highHz)
	beta := dt / (rcLow + dt)

	// ФВЧ стартует с нулевой базовой линии
	hp := 0.0
	lp := 0.0
	for i := range window {
		if i > 0 {
			hp = alpha * (hp + window[i] - window[i-1])
		}
		lp += beta * (hp - lp)
		out[i] = lp
	}
	return out
}

// biquad звено второго порядка (прямая форма I)
type biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

func (q *biquad) step(x float64) float64 {
	y := q.b0*x + q.b1*q.x1 + q.b2*q.x2 - q.a1*q.y1 - q.a2*q.y2
	q.x2, q.x1 = q.x1, x
	q.y2, q.y1 = q.y1, y
	return y
}

// newButterworth звено Баттерворта 2-го порядка (билинейное преобразование, Q = 1/√2)
func newButterworth(cutoffHz, sampleRateHz float64, highPass bool) *biquad {
	w0 := 2 * math.Pi * cutoffHz / sampleRateHz
	cosw := math.Cos(w0)
	alpha := math.Sin(w0) / math.Sqrt2
	a0 := 1 + alpha

	q := &biquad{
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
	if highPass {
		q.b0 = (1 + cosw) / 2 / a0
		q.b1 = -(1 + cosw) / a0
		q.b2 = q.b0
	} else {
		q.b0 = (1 - cosw) / 2 / a0
		q.b1 = (1 - cosw) / a0
		q.b2 = q.b0
	}
	return q
}

// Butterworth полосовой фильтр: каскад ФВЧ и ФНЧ Баттерворта второго порядка.
// Сигнал сдвигается на первый отсчёт, чтобы ФВЧ не давал ступеньку на старте.
func Butterworth(window []float64, lowHz, highHz, sampleRateHz float64) []float64 {
	out := make([]float64, len(window))
	if len(window) == 0 {
		return out
	}
	if sampleRateHz <= 0 || lowHz <= 0 || highHz <= lowHz {
		copy(out, window)
		return out
	}

	nyquist := sampleRateHz / 2
	if highHz >= nyquist {
		highHz = 0.9 * nyquist
	}
	if lowHz >= highHz {
		copy(out, window)
		return out
	}

	hp := newButterworth(lowHz, sampleRateHz, true)
	lp := newButterworth(highHz, sampleRateHz, false)
	base := window[0]
	for i, v := range window {
		out[i] = lp.step(hp.step(v - base))
	}
	return out
}

// Condition нормализует окно и выделяет полосу [lowHz, highHz].
// Плоское окно даёт нулевой сигнал с флагом Degenerate.
func Condition(window []float64, lowHz, highHz, sampleRateHz float64, enhanced bool) ConditionedSignal {
	raw, err := Normalize(window)
	if err != nil {
		return ConditionedSignal{Raw: raw, Filtered: make([]float64, len(raw)), Degenerate: true}
	}

	return ConditionedSignal{Raw: raw, Filtered: Filter(raw, lowHz, highHz, sampleRateHz, enhanced)}
}

// Filter выделяет полосу [lowHz, highHz]: Баттерворт при enhanced, иначе фильтры первого порядка.
// NaN и Inf в результате заменяются нулями.
func Filter(values []float64, lowHz, highHz, sampleRateHz float64, enhanced bool) []float64 {
	var filtered []float64
	if enhanced {
		filtered = Butterworth(values, lowHz, highHz, sampleRateHz)
	} else {
		filtered = Bandpass(values, lowHz, highHz, sampleRateHz)
	}
	sanitize(filtered)
	return filtered
}

// sanitize заменяет NaN/Inf нулями
func sanitize(values []float64) {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			values[i] = 0
		}
	}
}
