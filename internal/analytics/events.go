package analytics

import (
	"time"

	"ppg-vitals/internal/measurement"
)

// EventType тип события измерения
type EventType string

const (
	EventPhase          EventType = "phase"
	EventProgress       EventType = "progress"
	EventMetricUpdate   EventType = "metric_update"
	EventQualityWarning EventType = "quality_warning"
	EventComplete       EventType = "complete"
	EventRetry          EventType = "retry"
)

// Terminal событие завершает сессию
func (t EventType) Terminal() bool {
	return t == EventComplete || t == EventRetry
}

// Event событие контроллера устройства для потребителей (метрики, Redis, websocket, NATS)
type Event struct {
	Type        EventType                 `json:"type"`
	DeviceID    string                    `json:"device_id"`
	Timestamp   time.Time                 `json:"timestamp"`
	Phase       measurement.Phase         `json:"phase,omitempty"`
	Progress    *int                      `json:"progress,omitempty"`
	Update      *measurement.MetricUpdate `json:"update,omitempty"`
	Warnings    []string                  `json:"warnings,omitempty"`
	Measurement *measurement.Measurement  `json:"measurement,omitempty"`
	Retry       *measurement.Retry        `json:"retry,omitempty"`
}

// sink переводит вызовы Listener в события анализатора.
// Вызывается только из горутины воркера устройства.
type sink struct {
	analyzer *Analyzer
	deviceID string
	active   bool
}

func (s *sink) event(t EventType) Event {
	return Event{Type: t, DeviceID: s.deviceID, Timestamp: time.Now()}
}

func (s *sink) OnPhase(p measurement.Phase) {
	switch {
	case p.Active() && !s.active:
		s.active = true
		s.analyzer.activeSessions.Add(1)
	case !p.Active() && s.active && p != measurement.PhaseAnalyzing:
		s.active = false
		s.analyzer.activeSessions.Add(-1)
	}

	e := s.event(EventPhase)
	e.Phase = p
	s.analyzer.emit(e)
}

func (s *sink) OnProgress(percent int) {
	e := s.event(EventProgress)
	e.Progress = &percent
	s.analyzer.emit(e)
}

func (s *sink) OnMetricUpdate(u measurement.MetricUpdate) {
	e := s.event(EventMetricUpdate)
	e.Update = &u
	s.analyzer.emit(e)
}

func (s *sink) OnQualityWarning(flags []string) {
	e := s.event(EventQualityWarning)
	e.Warnings = flags
	s.analyzer.emit(e)
}

func (s *sink) OnComplete(m measurement.Measurement) {
	e := s.event(EventComplete)
	e.Measurement = &m
	s.analyzer.emit(e)
}

func (s *sink) OnRetry(r measurement.Retry) {
	e := s.event(EventRetry)
	e.Retry = &r
	s.analyzer.emit(e)
}
