package stream

import (
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Connect подключается к NATS с бесконечным переподключением
func Connect(url, name string, reconnectWait time.Duration, logger *zap.Logger) (*nats.Conn, error) {
	return nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
}

// ControlSubject subject команд управления сессиями
func ControlSubject(framesSubject string) string {
	return framesSubject + ".control"
}

// RawSubject subject пакетов сырых кадров
func RawSubject(framesSubject string) string {
	return framesSubject + ".raw"
}

// EventSubject subject событий устройства
func EventSubject(eventsSubject, deviceID string) string {
	return eventsSubject + "." + deviceID
}
