package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ppg-vitals/internal/analytics"
	"ppg-vitals/internal/cache"
	"ppg-vitals/internal/config"
	"ppg-vitals/internal/handlers"
	logpkg "ppg-vitals/internal/logger"
	"ppg-vitals/internal/measurement"
	"ppg-vitals/internal/metrics"
	"ppg-vitals/internal/stream"
)

const serviceName = "ppg-vitals"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting PPG vitals service...")

	// Инициализация Redis
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	redisCache, err := cache.NewRedisCache(ctx,
		cfg.Redis.Addr,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.Retention,
		cfg.Measurement.HistoryCapacity,
	)
	cancel()
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisCache.Close()
	logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// Инициализация анализатора
	analyzer := analytics.NewAnalyzer(cfg.Measurement, analytics.Options{
		Workers:   cfg.Analyzer.Workers,
		QueueSize: cfg.Analyzer.QueueSize,
	}, logger)
	analyzer.Start()
	logger.Info("Analyzer started",
		zap.Int("workers", cfg.Analyzer.Workers),
		zap.Float64("duration_ms", cfg.Measurement.DurationMs),
		zap.Bool("enhanced", cfg.Measurement.EnhancedProcessing),
	)

	// NATS опционален
	var (
		nc        *nats.Conn
		ingest    *stream.Ingest
		publisher *stream.Publisher
	)
	if cfg.NATS.URL != "" {
		nc, err = stream.Connect(cfg.NATS.URL, cfg.NATS.ClientName, cfg.NATS.ReconnectDelay, logger)
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		ingest = stream.NewIngest(analyzer, logger)
		if err := ingest.Subscribe(nc, cfg.NATS.FramesSubject); err != nil {
			logger.Fatal("Failed to subscribe", zap.Error(err))
		}
		publisher = stream.NewPublisher(nc, cfg.NATS.EventsSubject)
		logger.Info("Connected to NATS",
			zap.String("url", cfg.NATS.URL),
			zap.String("frames_subject", cfg.NATS.FramesSubject),
			zap.String("events_subject", cfg.NATS.EventsSubject),
		)
	}

	hub := handlers.NewHub(logger)

	// Запускаем goroutine для обработки событий измерений
	var stores sync.WaitGroup
	done := make(chan struct{})
	go func() {
		processAnalysisResults(analyzer, redisCache, hub, publisher, &stores, logger)
		close(done)
	}()

	// Настройка HTTP router
	mux := http.NewServeMux()
	handlers.NewHandler(analyzer, redisCache, hub, logger).Routes(mux)

	// Prometheus metrics endpoint
	mux.Handle("/prometheus", promhttp.Handler())

	// HTTP сервер
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		logger.Info("Server listening", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Периодическое обновление метрик
	go updateMetrics(analyzer)

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	if ingest != nil {
		ingest.Unsubscribe()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	hub.Close()

	// анализатор закрывает канал событий, обработчик дописывает хвост
	analyzer.Stop()
	<-done
	// записи истории должны завершиться до закрытия Redis
	stores.Wait()

	if nc != nil {
		if err := nc.Drain(); err != nil {
			logger.Warn("NATS drain failed", zap.Error(err))
		}
	}

	logger.Info("Server stopped gracefully")
}

// processAnalysisResults обрабатывает события измерений
func processAnalysisResults(
	analyzer *analytics.Analyzer,
	redisCache *cache.RedisCache,
	hub *handlers.Hub,
	publisher *stream.Publisher,
	stores *sync.WaitGroup,
	logger *zap.Logger,
) {
	for e := range analyzer.GetResultsChan() {
		switch e.Type {
		case analytics.EventMetricUpdate:
			if e.Update.HeartRate != nil {
				metrics.HeartRate.WithLabelValues(e.DeviceID).Set(float64(*e.Update.HeartRate))
			}
			if e.Update.Confidence != nil {
				metrics.Confidence.WithLabelValues(e.DeviceID).Set(float64(*e.Update.Confidence))
			}

		case analytics.EventQualityWarning:
			for _, flag := range e.Warnings {
				metrics.QualityWarnings.WithLabelValues(flag).Inc()
			}

		case analytics.EventComplete:
			m := *e.Measurement
			metrics.SessionsFinished.WithLabelValues("complete").Inc()
			metrics.HeartRate.WithLabelValues(e.DeviceID).Set(float64(m.HeartRateBpm))
			metrics.Confidence.WithLabelValues(e.DeviceID).Set(float64(m.ConfidencePercent))
			logger.Info("Measurement complete",
				zap.String("device_id", m.DeviceID),
				zap.String("session_id", m.SessionID),
				zap.Int("heart_rate_bpm", m.HeartRateBpm),
				zap.Int("confidence", m.ConfidencePercent),
			)

			// Сохраняем измерение в Redis
			stores.Add(1)
			go func() {
				defer stores.Done()
				storeMeasurement(redisCache, m, logger)
			}()

		case analytics.EventRetry:
			metrics.SessionsFinished.WithLabelValues(retryOutcome(e.Retry.Reason)).Inc()
			logger.Info("Measurement needs retry",
				zap.String("device_id", e.DeviceID),
				zap.String("reason", e.Retry.Reason),
				zap.Strings("quality_flags", e.Retry.QualityFlags),
				zap.Error(e.Retry.Err),
			)
		}

		hub.Broadcast(e)

		if publisher != nil {
			if err := publisher.Publish(e); err != nil {
				logger.Warn("Failed to publish event", zap.String("device_id", e.DeviceID), zap.Error(err))
			}
		}
	}
}

func storeMeasurement(redisCache *cache.RedisCache, m measurement.Measurement, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := redisCache.StoreMeasurement(ctx, m); err != nil {
		metrics.RedisOperations.WithLabelValues("store_measurement", "error").Inc()
		logger.Error("Failed to store measurement", zap.String("device_id", m.DeviceID), zap.Error(err))
		return
	}
	metrics.RedisOperations.WithLabelValues("store_measurement", "success").Inc()

	if err := redisCache.IncrementCounter(ctx, "measurements:complete"); err != nil {
		metrics.RedisOperations.WithLabelValues("increment_counter", "error").Inc()
		return
	}
	metrics.RedisOperations.WithLabelValues("increment_counter", "success").Inc()
}

// retryOutcome метка исхода для причины повтора
func retryOutcome(reason string) string {
	switch reason {
	case measurement.ReasonExpired:
		return "expired"
	case measurement.ReasonAcquisition:
		return "acquisition_failure"
	}
	return "low_signal"
}

// updateMetrics периодически обновляет метрики
func updateMetrics(analyzer *analytics.Analyzer) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		stats := analyzer.GetStats()

		if devicesTracked, ok := stats["devices_tracked"].(int); ok {
			metrics.ActiveDevices.Set(float64(devicesTracked))
		}

		if active, ok := stats["active_sessions"].(int); ok {
			metrics.ActiveSessions.Set(float64(active))
		}

		if queueSize, ok := stats["queue_size"].(int); ok {
			metrics.QueueSize.Set(float64(queueSize))
		}
	}
}
