package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"ppg-vitals/internal/capture"
	"ppg-vitals/internal/models"
	"ppg-vitals/internal/signal"
	"ppg-vitals/internal/stream"
)

// sender транспорт до сервиса
type sender interface {
	Start(ctx context.Context, deviceID string, mode capture.Mode) error
	Send(ctx context.Context, deviceID string, samples []signal.FrameSample) error
	Close()
}

type httpSender struct {
	base   string
	client *http.Client
}

func newHTTPSender(base string) *httpSender {
	return &httpSender{base: base, client: &http.Client{Timeout: 5 * time.Second}}
}

func (s *httpSender) Start(ctx context.Context, deviceID string, mode capture.Mode) error {
	q := url.Values{"device_id": {deviceID}, "mode": {string(mode)}}
	return s.post(ctx, "/sessions?"+q.Encode(), nil)
}

func (s *httpSender) Send(ctx context.Context, deviceID string, samples []signal.FrameSample) error {
	return s.post(ctx, "/samples", models.SampleBatch{DeviceID: deviceID, Samples: samples})
}

func (s *httpSender) post(ctx context.Context, path string, body interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}

func (s *httpSender) Close() {}

type natsSender struct {
	nc      *nats.Conn
	subject string
}

func newNATSSender(natsURL, subject string, log *zap.Logger) (*natsSender, error) {
	nc, err := stream.Connect(natsURL, "ppg-simulator", 500*time.Millisecond, log)
	if err != nil {
		return nil, err
	}
	return &natsSender{nc: nc, subject: subject}, nil
}

func (s *natsSender) Start(_ context.Context, deviceID string, mode capture.Mode) error {
	data, err := json.Marshal(models.Control{Action: "start", DeviceID: deviceID, Mode: string(mode)})
	if err != nil {
		return err
	}
	if err := s.nc.Publish(stream.ControlSubject(s.subject), data); err != nil {
		return err
	}
	// команда старта должна дойти раньше отсчётов
	return s.nc.Flush()
}

func (s *natsSender) Send(_ context.Context, deviceID string, samples []signal.FrameSample) error {
	data, err := stream.EncodeSamples(deviceID, samples)
	if err != nil {
		return err
	}
	return s.nc.Publish(s.subject, data)
}

func (s *natsSender) Close() {
	_ = s.nc.Drain()
}
