package measurement

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ppg-vitals/internal/capture"
	"ppg-vitals/internal/signal"
)

// ErrInvalidSample отсчёт с неизвестным каналом, нечисловым значением или из прошлого
var ErrInvalidSample = errors.New("invalid frame sample")

// минимум аудио для оценки дыхания по микрофону, мс
const audioRespirationMs = 4000

// Session состояние текущего измерения
type Session struct {
	ID           string       `json:"id"`
	Mode         capture.Mode `json:"mode"`
	Phase        Phase        `json:"phase"`
	StartedAt    time.Time    `json:"started_at"`
	ElapsedMs    float64      `json:"elapsed_ms"`
	Samples      int          `json:"samples"`
	Best         *Estimate    `json:"best,omitempty"`
	QualityFlags []string     `json:"quality_flags"`
}

// Controller конечный автомат измерения для одного устройства.
// Не потокобезопасен: владеет им одна горутина.
type Controller struct {
	deviceID string
	cfg      Config
	listener Listener
	logger   *zap.Logger
	history  *History
	rng      *rand.Rand

	session *Session
	video   *signal.Window
	audio   *signal.Window

	started      bool
	t0           float64
	lastTs       float64
	progress     int
	reported     bool
	lastReport   float64
	videoChannel signal.Channel
}

// NewController создает контроллер в состоянии idle
func NewController(deviceID string, cfg Config, listener Listener, logger *zap.Logger) *Controller {
	if listener == nil {
		listener = NopListener{}
	}
	return &Controller{
		deviceID: deviceID,
		cfg:      cfg,
		listener: listener,
		logger:   logger.With(zap.String("device_id", deviceID)),
		history:  NewHistory(cfg.HistoryCapacity),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// DeviceID идентификатор устройства
func (c *Controller) DeviceID() string { return c.deviceID }

// History история завершённых измерений
func (c *Controller) History() *History { return c.history }

// Phase текущая фаза
func (c *Controller) Phase() Phase {
	if c.session == nil {
		return PhaseIdle
	}
	return c.session.Phase
}

// Session копия состояния сессии
func (c *Controller) Session() (Session, bool) {
	if c.session == nil {
		return Session{}, false
	}
	s := *c.session
	s.QualityFlags = slices.Clone(c.session.QualityFlags)
	if c.session.Best != nil {
		best := *c.session.Best
		s.Best = &best
	}
	return s, true
}

// Start начинает новую сессию, отбрасывая текущую
func (c *Controller) Start(mode capture.Mode, startedAt time.Time) string {
	if c.session != nil && c.session.Phase.Active() {
		c.logger.Info("Replacing active session", zap.String("session_id", c.session.ID))
	}

	c.session = &Session{
		ID:           uuid.NewString(),
		Mode:         mode,
		Phase:        PhaseCalibrating,
		StartedAt:    startedAt,
		QualityFlags: []string{},
	}
	c.video = signal.NewWindow(c.cfg.WindowCapacity)
	c.audio = signal.NewWindow(c.cfg.WindowCapacity)
	c.started = false
	c.progress = -1
	c.reported = false
	c.videoChannel = ""

	c.logger.Info("Measurement started",
		zap.String("session_id", c.session.ID),
		zap.String("mode", string(mode)),
	)
	c.listener.OnPhase(PhaseCalibrating)
	return c.session.ID
}

// Stop отменяет сессию. Повторный вызов ничего не делает.
func (c *Controller) Stop() {
	if c.session == nil {
		return
	}
	c.logger.Info("Measurement stopped",
		zap.String("session_id", c.session.ID),
		zap.String("phase", string(c.session.Phase)),
	)
	c.drop()
	c.listener.OnPhase(PhaseIdle)
}

// FailAcquisition камера или микрофон недоступны: сессия сбрасывается,
// пользователь получает сообщение. Автоматического повтора нет.
func (c *Controller) FailAcquisition(cause error) {
	sessionID := ""
	if c.session != nil {
		sessionID = c.session.ID
		c.drop()
		c.listener.OnPhase(PhaseIdle)
	}

	err := fmt.Errorf("%w: %v", ErrAcquisitionFailure, cause)
	c.logger.Warn("Acquisition failed", zap.Error(err))
	c.listener.OnRetry(Retry{
		SessionID: sessionID,
		Reason:    ReasonAcquisition,
		Err:       err,
	})
}

// Tick проверяет предельный возраст сессии по настенным часам
func (c *Controller) Tick(now time.Time) {
	if c.session == nil || !c.session.Phase.Active() || c.cfg.MaxSessionAgeMs <= 0 {
		return
	}
	age := now.Sub(c.session.StartedAt)
	if age <= time.Duration(c.cfg.MaxSessionAgeMs*float64(time.Millisecond)) {
		return
	}
	c.retry(Retry{Reason: ReasonExpired, QualityFlags: c.session.QualityFlags})
}

// Update обрабатывает один отсчёт. Переходы фаз определяются временем,
// прошедшим с первого отсчёта сессии.
func (c *Controller) Update(s signal.FrameSample) error {
	if c.session == nil || !c.session.Phase.Active() {
		return ErrNoSession
	}
	if !s.Channel.Valid() || !finite(s.Value) || !finite(s.Timestamp) {
		return ErrInvalidSample
	}

	switch {
	case !c.started:
		c.started = true
		c.t0 = s.Timestamp
	case s.Timestamp < c.lastTs:
		return ErrInvalidSample
	case s.Timestamp-c.lastTs > c.windowSpanMs():
		c.logger.Warn("Sample gap exceeds window, buffers reset",
			zap.Float64("gap_ms", s.Timestamp-c.lastTs),
		)
		c.video.Reset()
		c.audio.Reset()
	}
	c.lastTs = s.Timestamp

	if s.Channel == signal.ChannelAudio {
		c.audio.Push(s)
	} else {
		c.video.Push(s)
		c.videoChannel = s.Channel
	}

	elapsed := s.Timestamp - c.t0
	c.session.Samples++
	c.session.ElapsedMs = elapsed
	c.reportProgress(elapsed)

	switch {
	case elapsed >= c.cfg.DurationMs:
		c.finish(elapsed)
	case elapsed < c.cfg.CalibrationMs:
		// калибровка: окно копится, показатели не сообщаются
	default:
		if c.session.Phase == PhaseCalibrating {
			c.setPhase(PhaseMeasuring)
		}
		c.measure(elapsed)
	}
	return nil
}

func (c *Controller) measure(elapsed float64) {
	est := c.analyze()

	if est.Accepted && (c.session.Best == nil || est.Confidence > c.session.Best.Confidence) {
		best := est
		c.session.Best = &best
	}

	if !slices.Equal(est.Quality.Flags, c.session.QualityFlags) {
		c.session.QualityFlags = est.Quality.Flags
		if len(est.Quality.Flags) > 0 {
			c.listener.OnQualityWarning(slices.Clone(est.Quality.Flags))
		}
	}

	if c.reported && elapsed-c.lastReport < c.cfg.ReportIntervalMs {
		return
	}
	c.reported = true
	c.lastReport = elapsed
	c.listener.OnMetricUpdate(c.metricUpdate(est, elapsed))
}

func (c *Controller) metricUpdate(est Estimate, elapsed float64) MetricUpdate {
	u := MetricUpdate{
		SessionID:    c.session.ID,
		ElapsedMs:    elapsed,
		SNR:          est.Quality.SNR,
		QualityFlags: slices.Clone(est.Quality.Flags),
		HRV:          est.HRV,
	}
	if est.HeartRateBpm > 0 {
		u.HeartRate = intPtr(est.HeartRateBpm)
		u.Confidence = intPtr(est.Confidence)
	}
	measuring := elapsed - c.cfg.CalibrationMs
	if measuring >= c.cfg.SpO2WarmupMs && est.SpO2.Percent > 0 {
		u.SpO2 = intPtr(est.SpO2.Percent)
	}
	if est.Respiration.RateBpm > 0 {
		u.RespirationRate = intPtr(est.Respiration.RateBpm)
	}
	if measuring >= c.cfg.HeartScoreWarmupMs && est.Accepted && est.HeartRateBpm > 0 {
		score, _ := est.heartScore()
		u.HeartScore = intPtr(score)
		_, u.StressLevel = est.stress()
	}
	return u
}

// finish финальный анализ окна и выбор результата
func (c *Controller) finish(elapsed float64) {
	c.setPhase(PhaseAnalyzing)
	final := c.analyze()

	var chosen *Estimate
	switch {
	case final.Accepted:
		chosen = &final
	case c.session.Best != nil:
		chosen = c.session.Best
	}
	if chosen == nil {
		c.retry(Retry{Reason: ReasonLowSignal, QualityFlags: final.Quality.Flags})
		return
	}

	m := c.buildMeasurement(*chosen, elapsed)
	c.history.Add(m)
	c.session.Phase = PhaseComplete
	c.video, c.audio = nil, nil

	c.logger.Info("Measurement complete",
		zap.String("session_id", m.SessionID),
		zap.Int("heart_rate_bpm", m.HeartRateBpm),
		zap.Int("confidence", m.ConfidencePercent),
	)
	c.listener.OnPhase(PhaseComplete)
	c.listener.OnComplete(m)
}

func (c *Controller) buildMeasurement(est Estimate, elapsed float64) Measurement {
	m := Measurement{
		ID:                uuid.NewString(),
		SessionID:         c.session.ID,
		DeviceID:          c.deviceID,
		Mode:              c.session.Mode,
		Timestamp:         c.session.StartedAt.Add(time.Duration(elapsed * float64(time.Millisecond))),
		HeartRateBpm:      est.HeartRateBpm,
		ConfidencePercent: est.Confidence,
		HRV:               est.HRV,
		QualityFlags:      slices.Clone(est.Quality.Flags),
	}
	if est.SpO2.Percent > 0 {
		m.SpO2Percent = intPtr(est.SpO2.Percent)
	}
	if est.Respiration.RateBpm > 0 {
		m.RespirationRateBpm = intPtr(est.Respiration.RateBpm)
		m.BreathingPattern = est.Respiration.Pattern
	}
	if est.HeartRateBpm > 0 {
		score, category := est.heartScore()
		m.HeartScore = intPtr(score)
		m.HeartCategory = category
		stress, level := est.stress()
		m.StressScore = intPtr(stress)
		m.StressLevel = level
		m.Emotion = est.emotion()
	}
	return m
}

// retry завершает сессию без результата
func (c *Controller) retry(r Retry) {
	r.SessionID = c.session.ID
	r.QualityFlags = slices.Clone(r.QualityFlags)
	c.logger.Info("Measurement needs retry",
		zap.String("session_id", r.SessionID),
		zap.String("reason", r.Reason),
		zap.Strings("quality_flags", r.QualityFlags),
	)
	c.drop()
	c.listener.OnPhase(PhaseIdle)
	c.listener.OnRetry(r)
}

func (c *Controller) setPhase(p Phase) {
	c.session.Phase = p
	c.logger.Debug("Phase changed", zap.String("session_id", c.session.ID), zap.String("phase", string(p)))
	c.listener.OnPhase(p)
}

func (c *Controller) reportProgress(elapsed float64) {
	percent := int(math.Max(0, math.Min(100, elapsed*100/c.cfg.DurationMs)))
	if percent == c.progress {
		return
	}
	c.progress = percent
	c.listener.OnProgress(percent)
}

// drop забывает сессию и буферы целиком
func (c *Controller) drop() {
	c.session = nil
	c.video, c.audio = nil, nil
}

// windowSpanMs длительность окна при номинальной частоте
func (c *Controller) windowSpanMs() float64 {
	return float64(c.cfg.WindowCapacity) * 1000 / c.cfg.SamplingRateHz
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func intPtr(v int) *int { return &v }
