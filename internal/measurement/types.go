// Package measurement управляет сессией измерения: калибровка, измерение,
// анализ и выдача результата слушателю.
package measurement

import (
	"errors"
	"time"

	"ppg-vitals/internal/capture"
	"ppg-vitals/internal/vitals"
)

var (
	// ErrAcquisitionFailure камера или микрофон недоступны
	ErrAcquisitionFailure = errors.New("acquisition failure")
	// ErrNoSession нет активной сессии измерения
	ErrNoSession = errors.New("no active measurement session")
)

// Phase фаза сессии
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseCalibrating Phase = "calibrating"
	PhaseMeasuring   Phase = "measuring"
	PhaseAnalyzing   Phase = "analyzing"
	PhaseComplete    Phase = "complete"
)

// Active фаза принимает отсчёты
func (p Phase) Active() bool {
	return p == PhaseCalibrating || p == PhaseMeasuring
}

// Config параметры измерения
type Config struct {
	DurationMs         float64
	CalibrationMs      float64
	SamplingRateHz     float64
	MinHr              int
	MaxHr              int
	AdaptiveThreshold  bool
	EnhancedProcessing bool
	HistoryCapacity    int
	WindowCapacity     int
	MinConfidence      int // принимается confidence строго выше
	MaxSessionAgeMs    float64
	SpO2Jitter         float64
	SpO2WarmupMs       float64 // отсчитывается от начала фазы measuring
	HeartScoreWarmupMs float64 // отсчитывается от начала фазы measuring
	ReportIntervalMs   float64 // 0 = обновление на каждый кадр
}

// DefaultConfig параметры по умолчанию
func DefaultConfig() Config {
	return Config{
		DurationMs:         15000,
		CalibrationMs:      3000,
		SamplingRateHz:     30,
		MinHr:              40,
		MaxHr:              200,
		AdaptiveThreshold:  true,
		EnhancedProcessing: true,
		HistoryCapacity:    10,
		WindowCapacity:     300,
		MinConfidence:      50,
		MaxSessionAgeMs:    60000,
		SpO2WarmupMs:       3000,
		HeartScoreWarmupMs: 5000,
		ReportIntervalMs:   250,
	}
}

// Measurement завершённое измерение. Не изменяется после создания.
type Measurement struct {
	ID                 string       `json:"id"`
	SessionID          string       `json:"session_id"`
	DeviceID           string       `json:"device_id"`
	Mode               capture.Mode `json:"mode"`
	Timestamp          time.Time    `json:"timestamp"`
	HeartRateBpm       int          `json:"heart_rate_bpm"`
	ConfidencePercent  int          `json:"confidence_percent"`
	SpO2Percent        *int         `json:"spo2_percent,omitempty"`
	RespirationRateBpm *int         `json:"respiration_rate_bpm,omitempty"`
	BreathingPattern   string       `json:"breathing_pattern,omitempty"`
	HRV                *vitals.HRV  `json:"hrv,omitempty"`
	HeartScore         *int         `json:"heart_score,omitempty"`
	HeartCategory      string       `json:"heart_category,omitempty"`
	StressScore        *int         `json:"stress_score,omitempty"`
	StressLevel        string       `json:"stress_level,omitempty"`
	Emotion            string       `json:"emotion,omitempty"`
	QualityFlags       []string     `json:"quality_flags"`
}

// MetricUpdate промежуточные показатели во время измерения.
// nil поле означает, что показатель ещё не готов.
type MetricUpdate struct {
	SessionID       string      `json:"session_id"`
	ElapsedMs       float64     `json:"elapsed_ms"`
	HeartRate       *int        `json:"heart_rate,omitempty"`
	Confidence      *int        `json:"confidence,omitempty"`
	SpO2            *int        `json:"spo2,omitempty"`
	RespirationRate *int        `json:"respiration_rate,omitempty"`
	HRV             *vitals.HRV `json:"hrv,omitempty"`
	HeartScore      *int        `json:"heart_score,omitempty"`
	StressLevel     string      `json:"stress_level,omitempty"`
	SNR             float64     `json:"snr_db"`
	QualityFlags    []string    `json:"quality_flags"`
}

// Retry сессия завершилась без результата, пользователю предлагается повторить
type Retry struct {
	SessionID    string   `json:"session_id,omitempty"`
	Reason       string   `json:"reason"`
	QualityFlags []string `json:"quality_flags,omitempty"`
	Err          error    `json:"-"`
}

// Причины повтора
const (
	ReasonLowSignal   = "Low signal quality, please retry"
	ReasonExpired     = "Measurement session expired, please retry"
	ReasonAcquisition = "Camera or microphone unavailable"
)

// Listener получатель событий контроллера. Вызывается из горутины,
// владеющей контроллером; не должен блокироваться.
type Listener interface {
	OnPhase(phase Phase)
	OnProgress(percent int)
	OnMetricUpdate(update MetricUpdate)
	OnQualityWarning(flags []string)
	OnComplete(m Measurement)
	OnRetry(r Retry)
}

// NopListener игнорирует все события
type NopListener struct{}

func (NopListener) OnPhase(Phase)               {}
func (NopListener) OnProgress(int)              {}
func (NopListener) OnMetricUpdate(MetricUpdate) {}
func (NopListener) OnQualityWarning([]string)   {}
func (NopListener) OnComplete(Measurement)      {}
func (NopListener) OnRetry(Retry)               {}
