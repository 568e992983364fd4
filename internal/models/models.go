package models

import (
	"ppg-vitals/internal/capture"
	"ppg-vitals/internal/signal"
)

const (
	// MaxBatchSize максимальное число отсчётов или кадров в одном запросе
	MaxBatchSize = 1000
	// MaxSamplesBodyBytes предельный размер тела POST /samples
	MaxSamplesBodyBytes = 1 << 20
	// MaxFramesBodyBytes предельный размер тела POST /frames
	MaxFramesBodyBytes = 32 << 20
)

// SampleBatch пакет отсчётов от устройства
type SampleBatch struct {
	DeviceID string               `json:"device_id"`
	Samples  []signal.FrameSample `json:"samples"`
}

// FrameBatch пакет сырых кадров от устройства
type FrameBatch struct {
	DeviceID string          `json:"device_id"`
	Frames   []capture.Frame `json:"frames"`
}

// Control команда управления сессией через шину
type Control struct {
	Action   string `json:"action"` // start, stop, failure
	DeviceID string `json:"device_id"`
	Mode     string `json:"mode,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// StatusResponse ответ на принятую команду
type StatusResponse struct {
	Status   string `json:"status"`
	DeviceID string `json:"device_id"`
	Mode     string `json:"mode,omitempty"`
	Accepted int    `json:"accepted,omitempty"`
}
