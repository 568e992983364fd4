package capture

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"ppg-vitals/internal/signal"
)

// Mode способ съёмки: палец на камере, лицо или звук дыхания
type Mode string

const (
	ModeFinger Mode = "finger"
	ModeFace   Mode = "face"
	ModeSound  Mode = "sound"
)

var (
	// ErrUnknownMode неизвестный режим съёмки
	ErrUnknownMode = errors.New("unknown capture mode")
	// ErrEmptyFrame кадр без данных для выбранного режима
	ErrEmptyFrame = errors.New("frame has no data for capture mode")
)

// ParseMode разбирает режим; пустая строка означает палец
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeFinger:
		return ModeFinger, nil
	case ModeFace:
		return ModeFace, nil
	case ModeSound:
		return ModeSound, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Frame сырой кадр от внешнего источника: RGBA пиксели и/или PCM отсчёты
type Frame struct {
	Timestamp float64   `json:"timestamp"` // мс
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Pixels    []byte    `json:"pixels,omitempty"` // RGBA, 4 байта на пиксель
	Audio     []float32 `json:"audio,omitempty"`  // PCM [-1, 1]
}

// region прямоугольник интереса в долях кадра
type region struct {
	x0, y0, x1, y1 float64
}

var (
	fingerROI = region{0.25, 0.25, 0.75, 0.75}
	faceROI   = region{0.35, 0.10, 0.65, 0.30} // лоб
)

// ExtractSample превращает кадр в один отсчёт согласно режиму
func ExtractSample(mode Mode, frame Frame) (signal.FrameSample, error) {
	switch mode {
	case ModeFinger:
		v, err := meanChannel(frame, fingerROI, 0)
		if err != nil {
			return signal.FrameSample{}, err
		}
		return signal.FrameSample{Timestamp: frame.Timestamp, Value: v, Channel: signal.ChannelRed}, nil
	case ModeFace:
		v, err := meanChannel(frame, faceROI, 1)
		if err != nil {
			return signal.FrameSample{}, err
		}
		return signal.FrameSample{Timestamp: frame.Timestamp, Value: v, Channel: signal.ChannelGreen}, nil
	case ModeSound:
		if len(frame.Audio) == 0 {
			return signal.FrameSample{}, ErrEmptyFrame
		}
		return signal.FrameSample{Timestamp: frame.Timestamp, Value: rms(frame.Audio), Channel: signal.ChannelAudio}, nil
	}
	return signal.FrameSample{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

// meanChannel среднее значение канала (0 = R, 1 = G, 2 = B) в области интереса
func meanChannel(frame Frame, roi region, channel int) (float64, error) {
	// Width*Height*4 <= len(Pixels) без переполнения
	pixels := len(frame.Pixels) / 4
	if frame.Width <= 0 || frame.Height <= 0 || frame.Width > pixels || frame.Height > pixels/frame.Width {
		return 0, ErrEmptyFrame
	}

	x0 := int(roi.x0 * float64(frame.Width))
	x1 := max(int(roi.x1*float64(frame.Width)), x0+1)
	y0 := int(roi.y0 * float64(frame.Height))
	y1 := max(int(roi.y1*float64(frame.Height)), y0+1)

	sum := 0.0
	n := 0
	for y := y0; y < y1 && y < frame.Height; y++ {
		row := y * frame.Width * 4
		for x := x0; x < x1 && x < frame.Width; x++ {
			sum += float64(frame.Pixels[row+x*4+channel])
			n++
		}
	}
	if n == 0 {
		return 0, ErrEmptyFrame
	}
	return sum / float64(n), nil
}

func rms(samples []float32) float64 {
	sumSq := 0.0
	for _, s := range samples {
		v := float64(s)
		sumSq += v * v
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}
