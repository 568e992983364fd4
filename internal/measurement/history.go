package measurement

import "sync"

// History ограниченный список измерений, старые вытесняются
type History struct {
	mu       sync.RWMutex
	items    []Measurement
	capacity int
}

// NewHistory создает историю на capacity записей
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{
		items:    make([]Measurement, 0, capacity),
		capacity: capacity,
	}
}

// Add добавляет измерение
func (h *History) Add(m Measurement) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.items) == h.capacity {
		copy(h.items, h.items[1:])
		h.items = h.items[:len(h.items)-1]
	}
	h.items = append(h.items, m)
}

// List копия истории от старых к новым
func (h *History) List() []Measurement {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Measurement, len(h.items))
	copy(out, h.items)
	return out
}

// Len количество записей
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items)
}
