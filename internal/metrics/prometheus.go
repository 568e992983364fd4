package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal общее количество запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration продолжительность запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// SamplesReceived отсчёты, принятые через HTTP или NATS
	SamplesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppg_samples_received_total",
			Help: "Total number of frame samples received",
		},
		[]string{"source"},
	)

	// SamplesProcessed отсчёты, обработанные контроллерами
	SamplesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ppg_samples_processed_total",
			Help: "Total number of frame samples processed by measurement controllers",
		},
	)

	// InvalidSamples отброшенные некорректные отсчёты и кадры
	InvalidSamples = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppg_invalid_samples_total",
			Help: "Total number of rejected samples or frames",
		},
		[]string{"device_id"},
	)

	// CommandLatency задержка обработки команды воркером
	CommandLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ppg_command_latency_seconds",
			Help:    "Measurement command processing latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"command"},
	)

	// SessionsStarted начатые измерения
	SessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppg_sessions_started_total",
			Help: "Total number of measurement sessions started",
		},
		[]string{"mode"},
	)

	// SessionsFinished завершённые измерения по исходу
	SessionsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppg_sessions_finished_total",
			Help: "Total number of measurement sessions finished",
		},
		[]string{"outcome"},
	)

	// QualityWarnings предупреждения о качестве сигнала
	QualityWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppg_quality_warnings_total",
			Help: "Total number of signal quality warnings",
		},
		[]string{"flag"},
	)

	// HeartRate текущая оценка ЧСС
	HeartRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ppg_heart_rate_bpm",
			Help: "Current heart rate estimate",
		},
		[]string{"device_id"},
	)

	// Confidence текущая уверенность оценки
	Confidence = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ppg_confidence_percent",
			Help: "Current heart rate confidence",
		},
		[]string{"device_id"},
	)

	// ActiveSessions активные измерения
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ppg_active_sessions",
			Help: "Number of measurement sessions in progress",
		},
	)

	// ActiveDevices устройства с контроллером
	ActiveDevices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_devices",
			Help: "Number of devices with a measurement controller",
		},
	)

	// QueueSize размер очереди обработки
	QueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "processing_queue_size",
			Help: "Current size of the processing queue",
		},
	)

	// RedisOperations операции с Redis
	RedisOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total number of Redis operations",
		},
		[]string{"operation", "status"},
	)

	// EventsPublished события, отправленные подписчикам
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppg_events_published_total",
			Help: "Total number of measurement events published",
		},
		[]string{"transport", "status"},
	)
)
