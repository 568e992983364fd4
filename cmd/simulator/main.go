package main

import (
	"context"
	"flag"
	"os"
	osSignal "os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ppg-vitals/internal/capture"
	"ppg-vitals/internal/logger"
	"ppg-vitals/internal/signal"
	"ppg-vitals/internal/synth"
)

// source генератор отсчётов
type source interface {
	Next() signal.FrameSample
}

func main() {
	var (
		transport = flag.String("transport", "http", "http or nats")
		server    = flag.String("server", "http://127.0.0.1:8080", "service base url")
		natsURL   = flag.String("nats", "nats://127.0.0.1:4222", "NATS url")
		subject   = flag.String("subject", "ppg.frames", "frames subject")
		device    = flag.String("device", "sim-1", "device id")
		mode      = flag.String("mode", "finger", "finger, face or sound")
		fs        = flag.Float64("fs", 30, "sampling rate Hz")
		hr        = flag.Float64("hr", 72, "heart rate bpm")
		breaths   = flag.Float64("breaths", 15, "breaths per minute")
		noise     = flag.Float64("noise", 0.05, "noise amplitude")
		batch     = flag.Int("batch", 15, "samples per message")
		duration  = flag.Duration("duration", 16*time.Second, "stream duration")
		fast      = flag.Bool("fast", false, "send without real-time pacing")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	)
	flag.Parse()

	log, err := logger.NewLogger("info", "console", "ppg-simulator")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	captureMode, err := capture.ParseMode(*mode)
	if err != nil {
		log.Fatal("Bad mode", zap.Error(err))
	}

	var sink sender
	switch *transport {
	case "http":
		sink = newHTTPSender(*server)
	case "nats":
		sink, err = newNATSSender(*natsURL, *subject, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
	default:
		log.Fatal("Unknown transport", zap.String("transport", *transport))
	}
	defer sink.Close()

	var src source
	if captureMode == capture.ModeSound {
		src = synth.NewBreathSim(*fs, *breaths, *noise, *seed)
	} else {
		opts := synth.DefaultOptions()
		opts.SampleRateHz = *fs
		opts.HeartRateBpm = *hr
		opts.BreathsPerMin = *breaths
		opts.Noise = *noise
		opts.Seed = *seed
		if captureMode == capture.ModeFace {
			opts.Channel = signal.ChannelGreen
		}
		src = synth.NewPPGSim(opts)
	}

	// запас на задержки доставки в режиме реального времени
	ctx, cancel := context.WithTimeout(context.Background(), *duration+5*time.Second)
	defer cancel()
	ch := make(chan os.Signal, 1)
	osSignal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()

	if err := sink.Start(ctx, *device, captureMode); err != nil {
		log.Fatal("Failed to start session", zap.Error(err))
	}
	log.Info("Session started",
		zap.String("device_id", *device),
		zap.String("mode", string(captureMode)),
		zap.String("transport", *transport),
	)

	sent := run(ctx, sink, src, *device, *batch, *fs, float64(duration.Milliseconds()), *fast, log)
	log.Info("Simulator stopping", zap.Int("samples_sent", sent))
}

// run отправляет отсчёты пакетами, пока синтетическое время не достигнет durationMs или не отменён ctx
func run(ctx context.Context, sink sender, src source, deviceID string, batch int, fs, durationMs float64, fast bool, log *zap.Logger) int {
	period := time.Duration(float64(time.Second) / fs)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	buffer := make([]signal.FrameSample, 0, batch)
	sent := 0
	for {
		if !fast {
			select {
			case <-ctx.Done():
				return sent
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			return sent
		}

		s := src.Next()
		buffer = append(buffer, s)
		last := s.Timestamp >= durationMs
		if len(buffer) < batch && !last {
			continue
		}

		if err := sink.Send(ctx, deviceID, buffer); err != nil {
			if ctx.Err() != nil {
				return sent
			}
			log.Warn("Failed to send batch", zap.Error(err))
		} else {
			sent += len(buffer)
		}
		buffer = buffer[:0]

		if last {
			return sent
		}
	}
}
