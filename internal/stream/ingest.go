package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"ppg-vitals/internal/analytics"
	"ppg-vitals/internal/capture"
	"ppg-vitals/internal/metrics"
	"ppg-vitals/internal/models"
)

// Submitter принимает команды измерения
type Submitter interface {
	Submit(cmd analytics.Command) error
}

// Ingest принимает отсчёты, кадры и команды из NATS
type Ingest struct {
	submitter Submitter
	logger    *zap.Logger
	subs      []*nats.Subscription
}

// NewIngest создает приемник
func NewIngest(submitter Submitter, logger *zap.Logger) *Ingest {
	return &Ingest{submitter: submitter, logger: logger}
}

// Subscribe подписывается на subject отсчётов, сырых кадров и команд
func (in *Ingest) Subscribe(nc *nats.Conn, framesSubject string) error {
	handlers := map[string]nats.MsgHandler{
		framesSubject:                 in.handleSamples,
		RawSubject(framesSubject):     in.handleFrames,
		ControlSubject(framesSubject): in.handleControl,
	}
	for subject, handler := range handlers {
		sub, err := nc.Subscribe(subject, handler)
		if err != nil {
			in.Unsubscribe()
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		in.subs = append(in.subs, sub)
	}
	return nil
}

// Unsubscribe снимает подписки
func (in *Ingest) Unsubscribe() {
	for _, sub := range in.subs {
		_ = sub.Unsubscribe()
	}
	in.subs = nil
}

func (in *Ingest) handleSamples(msg *nats.Msg) {
	batch, err := DecodeSamples(msg.Data)
	if err != nil {
		in.logger.Warn("Dropping sample batch", zap.Error(err))
		return
	}
	metrics.SamplesReceived.WithLabelValues("nats").Add(float64(len(batch.Samples)))
	in.submit(analytics.Command{Type: analytics.CommandSamples, DeviceID: batch.DeviceID, Samples: batch.Samples})
}

func (in *Ingest) handleFrames(msg *nats.Msg) {
	var batch models.FrameBatch
	if err := json.Unmarshal(msg.Data, &batch); err != nil || batch.DeviceID == "" {
		in.logger.Warn("Dropping frame batch", zap.Error(err))
		return
	}
	metrics.SamplesReceived.WithLabelValues("nats_frames").Add(float64(len(batch.Frames)))
	in.submit(analytics.Command{Type: analytics.CommandFrames, DeviceID: batch.DeviceID, Frames: batch.Frames})
}

func (in *Ingest) handleControl(msg *nats.Msg) {
	var ctl models.Control
	if err := json.Unmarshal(msg.Data, &ctl); err != nil {
		in.logger.Warn("Dropping control message", zap.Error(err))
		return
	}
	cmd, err := controlCommand(ctl)
	if err != nil {
		in.logger.Warn("Dropping control message", zap.String("device_id", ctl.DeviceID), zap.Error(err))
		return
	}
	if in.submit(cmd) && cmd.Type == analytics.CommandStart {
		metrics.SessionsStarted.WithLabelValues(string(cmd.Mode)).Inc()
	}
}

func (in *Ingest) submit(cmd analytics.Command) bool {
	if err := in.submitter.Submit(cmd); err != nil {
		in.logger.Warn("Command rejected",
			zap.String("device_id", cmd.DeviceID),
			zap.String("command", string(cmd.Type)),
			zap.Error(err),
		)
		return false
	}
	return true
}

// controlCommand переводит команду шины в команду анализатора
func controlCommand(ctl models.Control) (analytics.Command, error) {
	if ctl.DeviceID == "" {
		return analytics.Command{}, errors.New("device_id is required")
	}

	switch ctl.Action {
	case "start":
		mode, err := capture.ParseMode(ctl.Mode)
		if err != nil {
			return analytics.Command{}, err
		}
		return analytics.Command{Type: analytics.CommandStart, DeviceID: ctl.DeviceID, Mode: mode}, nil
	case "stop":
		return analytics.Command{Type: analytics.CommandStop, DeviceID: ctl.DeviceID}, nil
	case "failure":
		reason := ctl.Reason
		if reason == "" {
			reason = "device unavailable"
		}
		return analytics.Command{Type: analytics.CommandFailure, DeviceID: ctl.DeviceID, Err: errors.New(reason)}, nil
	}
	return analytics.Command{}, fmt.Errorf("unknown action %q", ctl.Action)
}
