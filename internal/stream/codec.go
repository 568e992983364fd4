package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"ppg-vitals/internal/models"
	"ppg-vitals/internal/signal"
)

// Формат пакета отсчётов (little endian):
//
//	[1] версия
//	[1] канал
//	[2] длина device_id
//	[n] device_id
//	далее записи по 12 байт: [8] timestamp float64, [4] value float32
const (
	codecVersion = 1
	headerSize   = 4
	recordSize   = 12
)

var (
	// ErrMalformedBatch пакет не разбирается
	ErrMalformedBatch = errors.New("malformed sample batch")
	// ErrMixedChannels в одном пакете отсчёты разных каналов
	ErrMixedChannels = errors.New("batch mixes channels")
)

var channelCodes = map[signal.Channel]byte{
	signal.ChannelRed:   1,
	signal.ChannelGreen: 2,
	signal.ChannelAudio: 3,
}

func channelByCode(code byte) (signal.Channel, bool) {
	for ch, c := range channelCodes {
		if c == code {
			return ch, true
		}
	}
	return "", false
}

// EncodeSamples упаковывает отсчёты одного канала в бинарный пакет
func EncodeSamples(deviceID string, samples []signal.FrameSample) ([]byte, error) {
	if deviceID == "" || len(deviceID) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: bad device_id length %d", ErrMalformedBatch, len(deviceID))
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrMalformedBatch)
	}

	ch := samples[0].Channel
	code, ok := channelCodes[ch]
	if !ok {
		return nil, fmt.Errorf("%w: unknown channel %q", ErrMalformedBatch, ch)
	}

	out := make([]byte, headerSize+len(deviceID)+recordSize*len(samples))
	out[0] = codecVersion
	out[1] = code
	binary.LittleEndian.PutUint16(out[2:], uint16(len(deviceID)))
	copy(out[headerSize:], deviceID)

	off := headerSize + len(deviceID)
	for _, s := range samples {
		if s.Channel != ch {
			return nil, ErrMixedChannels
		}
		binary.LittleEndian.PutUint64(out[off:], math.Float64bits(s.Timestamp))
		binary.LittleEndian.PutUint32(out[off+8:], math.Float32bits(float32(s.Value)))
		off += recordSize
	}
	return out, nil
}

// DecodeSamples разбирает бинарный пакет отсчётов
func DecodeSamples(data []byte) (models.SampleBatch, error) {
	if len(data) < headerSize {
		return models.SampleBatch{}, fmt.Errorf("%w: short header", ErrMalformedBatch)
	}
	if data[0] != codecVersion {
		return models.SampleBatch{}, fmt.Errorf("%w: version %d", ErrMalformedBatch, data[0])
	}
	ch, ok := channelByCode(data[1])
	if !ok {
		return models.SampleBatch{}, fmt.Errorf("%w: channel code %d", ErrMalformedBatch, data[1])
	}

	idLen := int(binary.LittleEndian.Uint16(data[2:]))
	body := data[headerSize:]
	if idLen == 0 || len(body) < idLen || (len(body)-idLen)%recordSize != 0 {
		return models.SampleBatch{}, fmt.Errorf("%w: bad length %d", ErrMalformedBatch, len(data))
	}

	batch := models.SampleBatch{DeviceID: string(body[:idLen])}
	records := body[idLen:]
	batch.Samples = make([]signal.FrameSample, 0, len(records)/recordSize)
	for off := 0; off < len(records); off += recordSize {
		batch.Samples = append(batch.Samples, signal.FrameSample{
			Timestamp: math.Float64frombits(binary.LittleEndian.Uint64(records[off:])),
			Value:     float64(math.Float32frombits(binary.LittleEndian.Uint32(records[off+8:]))),
			Channel:   ch,
		})
	}
	return batch, nil
}
