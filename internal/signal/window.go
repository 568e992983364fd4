package signal

// Channel источник отсчёта
type Channel string

const (
	ChannelRed   Channel = "red"
	ChannelGreen Channel = "green"
	ChannelAudio Channel = "audio"
)

// Valid сообщает, известен ли канал
func (c Channel) Valid() bool {
	switch c {
	case ChannelRed, ChannelGreen, ChannelAudio:
		return true
	}
	return false
}

// FrameSample один отсчёт на кадр камеры или аудио-буфер
type FrameSample struct {
	Timestamp float64 `json:"timestamp"` // монотонные миллисекунды
	Value     float64 `json:"value"`
	Channel   Channel `json:"channel"`
}

// Window кольцевой буфер отсчётов фиксированной ёмкости
type Window struct {
	samples []FrameSample
	start   int
	count   int
}

// NewWindow создает окно на capacity отсчётов
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{samples: make([]FrameSample, capacity)}
}

// Push добавляет отсчёт, вытесняя самый старый при переполнении
func (w *Window) Push(s FrameSample) {
	capacity := len(w.samples)
	if w.count < capacity {
		w.samples[(w.start+w.count)%capacity] = s
		w.count++
		return
	}
	w.samples[w.start] = s
	w.start = (w.start + 1) % capacity
}

// Len количество отсчётов в окне
func (w *Window) Len() int { return w.count }

// Reset очищает окно
func (w *Window) Reset() {
	w.start = 0
	w.count = 0
}

func (w *Window) at(i int) FrameSample {
	return w.samples[(w.start+i)%len(w.samples)]
}

// Values возвращает значения отсчётов от старого к новому
func (w *Window) Values() []float64 {
	out := make([]float64, w.count)
	for i := range out {
		out[i] = w.at(i).Value
	}
	return out
}

// Last последний добавленный отсчёт
func (w *Window) Last() (FrameSample, bool) {
	if w.count == 0 {
		return FrameSample{}, false
	}
	return w.at(w.count - 1), true
}

// SpanMs время между первым и последним отсчётом в миллисекундах
func (w *Window) SpanMs() float64 {
	if w.count < 2 {
		return 0
	}
	return w.at(w.count-1).Timestamp - w.at(0).Timestamp
}

// SampleRate фактическая частота дискретизации по меткам времени.
// При нулевом интервале возвращается fallback.
func (w *Window) SampleRate(fallback float64) float64 {
	span := w.SpanMs()
	if span <= 0 {
		return fallback
	}
	return float64(w.count-1) * 1000 / span
}
