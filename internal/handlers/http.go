package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"ppg-vitals/internal/analytics"
	"ppg-vitals/internal/capture"
	"ppg-vitals/internal/measurement"
	"ppg-vitals/internal/metrics"
	"ppg-vitals/internal/models"
)

// Engine очередь команд измерения
type Engine interface {
	Submit(cmd analytics.Command) error
	Session(ctx context.Context, deviceID string) (measurement.Session, bool, error)
	GetStats() map[string]interface{}
}

// HistoryStore внешнее хранилище истории
type HistoryStore interface {
	GetHistory(ctx context.Context, deviceID string, limit int) ([]measurement.Measurement, error)
	Ping(ctx context.Context) error
	GetStats() map[string]interface{}
}

// Handler обработчик HTTP запросов
type Handler struct {
	engine  Engine
	history HistoryStore
	hub     *Hub
	logger  *zap.Logger
}

// NewHandler создает новый обработчик
func NewHandler(engine Engine, history HistoryStore, hub *Hub, logger *zap.Logger) *Handler {
	return &Handler{
		engine:  engine,
		history: history,
		hub:     hub,
		logger:  logger,
	}
}

// Routes регистрирует маршруты API
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/sessions", h.Sessions)
	mux.HandleFunc("/sessions/failure", h.ReportFailure)
	mux.HandleFunc("/samples", h.SubmitSamples)
	mux.HandleFunc("/frames", h.SubmitFrames)
	mux.HandleFunc("/history", h.GetHistory)
	mux.HandleFunc("/health", h.HealthCheck)
	mux.HandleFunc("/stats", h.GetStats)
	mux.HandleFunc("/ws", h.hub.ServeWS)
}

// Sessions обрабатывает /sessions: POST начинает, DELETE останавливает, GET показывает сессию
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer observe(r, "/sessions", start)

	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		h.fail(w, r, "/sessions", http.StatusBadRequest, "device_id parameter is required")
		return
	}

	switch r.Method {
	case http.MethodPost:
		mode, err := capture.ParseMode(r.URL.Query().Get("mode"))
		if err != nil {
			h.fail(w, r, "/sessions", http.StatusBadRequest, err.Error())
			return
		}
		if !h.submit(w, r, "/sessions", analytics.Command{Type: analytics.CommandStart, DeviceID: deviceID, Mode: mode}) {
			return
		}
		metrics.SessionsStarted.WithLabelValues(string(mode)).Inc()
		h.respond(w, r, "/sessions", http.StatusAccepted, models.StatusResponse{
			Status:   "started",
			DeviceID: deviceID,
			Mode:     string(mode),
		})

	case http.MethodDelete:
		if !h.submit(w, r, "/sessions", analytics.Command{Type: analytics.CommandStop, DeviceID: deviceID}) {
			return
		}
		h.respond(w, r, "/sessions", http.StatusOK, models.StatusResponse{Status: "stopped", DeviceID: deviceID})

	case http.MethodGet:
		session, ok, err := h.engine.Session(r.Context(), deviceID)
		if err != nil {
			h.fail(w, r, "/sessions", http.StatusServiceUnavailable, "analyzer unavailable")
			return
		}
		if !ok {
			h.fail(w, r, "/sessions", http.StatusNotFound, "no session for device")
			return
		}
		h.respond(w, r, "/sessions", http.StatusOK, session)

	default:
		h.fail(w, r, "/sessions", http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// ReportFailure обрабатывает POST /sessions/failure: камера или микрофон недоступны
func (h *Handler) ReportFailure(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer observe(r, "/sessions/failure", start)

	if r.Method != http.MethodPost {
		h.fail(w, r, "/sessions/failure", http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		h.fail(w, r, "/sessions/failure", http.StatusBadRequest, "device_id parameter is required")
		return
	}
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "device unavailable"
	}

	cmd := analytics.Command{Type: analytics.CommandFailure, DeviceID: deviceID, Err: errors.New(reason)}
	if !h.submit(w, r, "/sessions/failure", cmd) {
		return
	}
	h.respond(w, r, "/sessions/failure", http.StatusAccepted, models.StatusResponse{Status: "reported", DeviceID: deviceID})
}

// SubmitSamples обрабатывает POST /samples
func (h *Handler) SubmitSamples(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer observe(r, "/samples", start)

	if r.Method != http.MethodPost {
		h.fail(w, r, "/samples", http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var batch models.SampleBatch
	if err := decodeBody(w, r, models.MaxSamplesBodyBytes, &batch); err != nil {
		h.fail(w, r, "/samples", decodeStatus(err), err.Error())
		return
	}
	if err := validateBatch(batch.DeviceID, len(batch.Samples)); err != nil {
		h.fail(w, r, "/samples", http.StatusBadRequest, err.Error())
		return
	}

	cmd := analytics.Command{Type: analytics.CommandSamples, DeviceID: batch.DeviceID, Samples: batch.Samples}
	if !h.submit(w, r, "/samples", cmd) {
		return
	}
	metrics.SamplesReceived.WithLabelValues("http").Add(float64(len(batch.Samples)))
	h.respond(w, r, "/samples", http.StatusAccepted, models.StatusResponse{
		Status:   "accepted",
		DeviceID: batch.DeviceID,
		Accepted: len(batch.Samples),
	})
}

// SubmitFrames обрабатывает POST /frames: кадры превращаются в отсчёты по режиму сессии
func (h *Handler) SubmitFrames(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer observe(r, "/frames", start)

	if r.Method != http.MethodPost {
		h.fail(w, r, "/frames", http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var batch models.FrameBatch
	if err := decodeBody(w, r, models.MaxFramesBodyBytes, &batch); err != nil {
		h.fail(w, r, "/frames", decodeStatus(err), err.Error())
		return
	}
	if err := validateBatch(batch.DeviceID, len(batch.Frames)); err != nil {
		h.fail(w, r, "/frames", http.StatusBadRequest, err.Error())
		return
	}

	cmd := analytics.Command{Type: analytics.CommandFrames, DeviceID: batch.DeviceID, Frames: batch.Frames}
	if !h.submit(w, r, "/frames", cmd) {
		return
	}
	metrics.SamplesReceived.WithLabelValues("http_frames").Add(float64(len(batch.Frames)))
	h.respond(w, r, "/frames", http.StatusAccepted, models.StatusResponse{
		Status:   "accepted",
		DeviceID: batch.DeviceID,
		Accepted: len(batch.Frames),
	})
}

// GetHistory обрабатывает GET /history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer observe(r, "/history", start)

	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		h.fail(w, r, "/history", http.StatusBadRequest, "device_id parameter is required")
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			h.fail(w, r, "/history", http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = v
	}

	items, err := h.history.GetHistory(r.Context(), deviceID, limit)
	if err != nil {
		metrics.RedisOperations.WithLabelValues("get_history", "error").Inc()
		h.logger.Error("Failed to read history", zap.String("device_id", deviceID), zap.Error(err))
		h.fail(w, r, "/history", http.StatusInternalServerError, "Failed to retrieve history")
		return
	}
	metrics.RedisOperations.WithLabelValues("get_history", "success").Inc()

	h.respond(w, r, "/history", http.StatusOK, map[string]interface{}{
		"device_id":    deviceID,
		"count":        len(items),
		"measurements": items,
	})
}

// HealthCheck обрабатывает GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	redisOK := h.history.Ping(r.Context()) == nil

	status := "healthy"
	httpStatus := http.StatusOK
	if !redisOK {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]interface{}{
		"status":    status,
		"redis":     redisOK,
		"timestamp": time.Now(),
	})
}

// GetStats обрабатывает GET /stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer observe(r, "/stats", start)

	h.respond(w, r, "/stats", http.StatusOK, map[string]interface{}{
		"analyzer":   h.engine.GetStats(),
		"redis":      h.history.GetStats(),
		"ws_clients": h.hub.Count(),
		"timestamp":  time.Now(),
	})
}

// submit ставит команду в очередь; при ошибке пишет ответ и возвращает false
func (h *Handler) submit(w http.ResponseWriter, r *http.Request, endpoint string, cmd analytics.Command) bool {
	err := h.engine.Submit(cmd)
	if err == nil {
		return true
	}

	h.logger.Warn("Command rejected",
		zap.String("device_id", cmd.DeviceID),
		zap.String("command", string(cmd.Type)),
		zap.Error(err),
	)
	h.fail(w, r, endpoint, http.StatusServiceUnavailable, err.Error())
	return false
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, endpoint string, status int, v interface{}) {
	metrics.RequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
	writeJSON(w, status, v)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, endpoint string, status int, msg string) {
	metrics.RequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
	http.Error(w, msg, status)
}

func observe(r *http.Request, endpoint string, start time.Time) {
	metrics.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
}

// decodeBody читает JSON тело не длиннее limit байт
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return errors.New("invalid JSON")
	}
	return nil
}

func decodeStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func validateBatch(deviceID string, n int) error {
	switch {
	case deviceID == "":
		return errors.New("device_id is required")
	case n == 0:
		return errors.New("batch is empty")
	case n > models.MaxBatchSize:
		return fmt.Errorf("batch exceeds %d items", models.MaxBatchSize)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
