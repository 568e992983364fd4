package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ppg-vitals/internal/analytics"
)

const writeTimeout = 200 * time.Millisecond

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub рассылает события измерений подписчикам websocket.
// Подписка с пустым device_id получает события всех устройств.
type Hub struct {
	mu     sync.Mutex
	conns  map[*websocket.Conn]string
	logger *zap.Logger
}

// NewHub создает пустой хаб
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		conns:  make(map[*websocket.Conn]string),
		logger: logger,
	}
}

func (h *Hub) add(c *websocket.Conn, deviceID string) {
	h.mu.Lock()
	h.conns[c] = deviceID
	h.mu.Unlock()
}

func (h *Hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

// snapshot подписчики устройства deviceID
func (h *Hub) snapshot(deviceID string) []*websocket.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*websocket.Conn, 0, len(h.conns))
	for c, filter := range h.conns {
		if filter == "" || filter == deviceID {
			clients = append(clients, c)
		}
	}
	return clients
}

// Count число подключенных клиентов
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Broadcast отправляет событие подписчикам. Вызывается из одной горутины.
func (h *Hub) Broadcast(e analytics.Event) {
	clients := h.snapshot(e.DeviceID)
	if len(clients) == 0 {
		return
	}

	b, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}

	for _, c := range clients {
		_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			_ = c.Close()
			h.remove(c)
		}
	}
}

// ServeWS обрабатывает GET /ws?device_id=
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	deviceID := r.URL.Query().Get("device_id")
	h.add(c, deviceID)
	h.logger.Debug("Websocket client connected", zap.String("device_id", deviceID))

	// читаем до закрытия соединения клиентом
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
	_ = c.Close()
}

// Close закрывает все соединения
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		_ = c.Close()
		delete(h.conns, c)
	}
}
