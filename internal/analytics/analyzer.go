package analytics

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"ppg-vitals/internal/capture"
	"ppg-vitals/internal/measurement"
	"ppg-vitals/internal/metrics"
	"ppg-vitals/internal/signal"
)

var (
	// ErrQueueFull очередь воркера переполнена, команда отброшена
	ErrQueueFull = errors.New("analyzer queue is full")
	// ErrStopped анализатор остановлен
	ErrStopped = errors.New("analyzer is stopped")
)

// CommandType тип команды для контроллера устройства
type CommandType string

const (
	CommandStart   CommandType = "start"
	CommandStop    CommandType = "stop"
	CommandSamples CommandType = "samples"
	CommandFrames  CommandType = "frames"
	CommandFailure CommandType = "failure"
	commandQuery   CommandType = "query"
)

// Command команда, адресованная устройству
type Command struct {
	Type     CommandType
	DeviceID string
	Mode     capture.Mode
	Samples  []signal.FrameSample
	Frames   []capture.Frame
	Err      error
	At       time.Time

	reply chan<- sessionReply
}

type sessionReply struct {
	session measurement.Session
	ok      bool
}

// Options параметры пула воркеров
type Options struct {
	Workers      int
	QueueSize    int
	TickInterval time.Duration // проверка возраста сессий
}

// worker владеет контроллерами своих устройств; к ним обращается только его горутина
type worker struct {
	commands    chan Command
	controllers map[string]*measurement.Controller
}

// Analyzer распределяет устройства по воркерам: каждое устройство всегда
// обрабатывается одной горутиной, поэтому контроллеры не требуют блокировок
type Analyzer struct {
	cfg          measurement.Config
	logger       *zap.Logger
	workers      []*worker
	tickInterval time.Duration
	resultsChan  chan Event
	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup

	devices        atomic.Int64
	activeSessions atomic.Int64
	processed      atomic.Int64
	droppedSamples atomic.Int64
	droppedEvents  atomic.Int64
}

// NewAnalyzer создает анализатор
func NewAnalyzer(cfg measurement.Config, opts Options, logger *zap.Logger) *Analyzer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}

	a := &Analyzer{
		cfg:          cfg,
		logger:       logger,
		workers:      make([]*worker, opts.Workers),
		tickInterval: opts.TickInterval,
		resultsChan:  make(chan Event, opts.QueueSize),
		stopChan:     make(chan struct{}),
	}
	for i := range a.workers {
		a.workers[i] = &worker{
			commands:    make(chan Command, opts.QueueSize),
			controllers: make(map[string]*measurement.Controller),
		}
	}
	return a
}

// Start запускает воркеры
func (a *Analyzer) Start() {
	for _, w := range a.workers {
		a.wg.Add(1)
		go a.run(w)
	}
}

// Stop останавливает воркеры и закрывает канал событий
func (a *Analyzer) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopChan)
		a.wg.Wait()
		close(a.resultsChan)
	})
}

// GetResultsChan возвращает канал событий
func (a *Analyzer) GetResultsChan() <-chan Event {
	return a.resultsChan
}

// Submit ставит команду в очередь воркера устройства без блокировки
func (a *Analyzer) Submit(cmd Command) error {
	if cmd.At.IsZero() {
		cmd.At = time.Now()
	}
	select {
	case <-a.stopChan:
		return ErrStopped
	default:
	}

	select {
	case a.route(cmd.DeviceID).commands <- cmd:
		return nil
	default:
		if cmd.Type == CommandSamples {
			a.droppedSamples.Add(int64(len(cmd.Samples)))
		} else if cmd.Type == CommandFrames {
			a.droppedSamples.Add(int64(len(cmd.Frames)))
		}
		return ErrQueueFull
	}
}

// Session возвращает состояние текущей сессии устройства
func (a *Analyzer) Session(ctx context.Context, deviceID string) (measurement.Session, bool, error) {
	reply := make(chan sessionReply, 1)
	if err := a.Submit(Command{Type: commandQuery, DeviceID: deviceID, reply: reply}); err != nil {
		return measurement.Session{}, false, err
	}

	select {
	case r := <-reply:
		return r.session, r.ok, nil
	case <-ctx.Done():
		return measurement.Session{}, false, ctx.Err()
	case <-a.stopChan:
		return measurement.Session{}, false, ErrStopped
	}
}

func (a *Analyzer) route(deviceID string) *worker {
	return a.workers[xxhash.Sum64String(deviceID)%uint64(len(a.workers))]
}

func (a *Analyzer) run(w *worker) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopChan:
			return
		case cmd := <-w.commands:
			a.handle(w, cmd)
		case now := <-ticker.C:
			for _, c := range w.controllers {
				c.Tick(now)
			}
		}
	}
}

func (a *Analyzer) handle(w *worker, cmd Command) {
	start := time.Now()
	defer func() {
		a.processed.Add(1)
		metrics.CommandLatency.WithLabelValues(string(cmd.Type)).Observe(time.Since(start).Seconds())
	}()

	if cmd.Type == commandQuery {
		var r sessionReply
		if c, ok := w.controllers[cmd.DeviceID]; ok {
			r.session, r.ok = c.Session()
		}
		cmd.reply <- r
		return
	}

	c := a.controller(w, cmd.DeviceID)
	switch cmd.Type {
	case CommandStart:
		c.Start(cmd.Mode, cmd.At)
	case CommandStop:
		c.Stop()
	case CommandFailure:
		c.FailAcquisition(cmd.Err)
	case CommandSamples:
		for i, s := range cmd.Samples {
			if !a.update(c, s) {
				a.droppedSamples.Add(int64(len(cmd.Samples) - i))
				return
			}
		}
	case CommandFrames:
		session, ok := c.Session()
		if !ok {
			a.droppedSamples.Add(int64(len(cmd.Frames)))
			return
		}
		for i, f := range cmd.Frames {
			s, err := capture.ExtractSample(session.Mode, f)
			if err != nil {
				metrics.InvalidSamples.WithLabelValues(cmd.DeviceID).Inc()
				continue
			}
			if !a.update(c, s) {
				a.droppedSamples.Add(int64(len(cmd.Frames) - i))
				return
			}
		}
	}
}

// update передаёт отсчёт контроллеру; false, если сессии больше нет
func (a *Analyzer) update(c *measurement.Controller, s signal.FrameSample) bool {
	err := c.Update(s)
	switch {
	case err == nil:
		metrics.SamplesProcessed.Inc()
	case errors.Is(err, measurement.ErrNoSession):
		return false
	default:
		metrics.InvalidSamples.WithLabelValues(c.DeviceID()).Inc()
	}
	return true
}

func (a *Analyzer) controller(w *worker, deviceID string) *measurement.Controller {
	c, ok := w.controllers[deviceID]
	if !ok {
		c = measurement.NewController(deviceID, a.cfg, &sink{analyzer: a, deviceID: deviceID}, a.logger)
		w.controllers[deviceID] = c
		a.devices.Add(1)
	}
	return c
}

// emit отправляет событие. Промежуточные события при полном канале теряются,
// complete и retry ждут потребителя до остановки анализатора.
func (a *Analyzer) emit(e Event) {
	if e.Type.Terminal() {
		select {
		case a.resultsChan <- e:
		case <-a.stopChan:
			a.droppedEvents.Add(1)
		}
		return
	}

	select {
	case a.resultsChan <- e:
	default:
		a.droppedEvents.Add(1)
	}
}

// GetStats возвращает статистику анализатора
func (a *Analyzer) GetStats() map[string]interface{} {
	queued := 0
	for _, w := range a.workers {
		queued += len(w.commands)
	}

	return map[string]interface{}{
		"devices_tracked": int(a.devices.Load()),
		"active_sessions": int(a.activeSessions.Load()),
		"workers":         len(a.workers),
		"queue_size":      queued,
		"processed":       a.processed.Load(),
		"dropped_samples": a.droppedSamples.Load(),
		"dropped_events":  a.droppedEvents.Load(),
	}
}
