package eventsvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-guardian/core"
)

// NATSPublisher publishes JSON events on NATS subjects.
type NATSPublisher struct {
	conn   *nats.Conn
	logger core.Logger
}

var _ core.EventPublisher = (*NATSPublisher)(nil)

func NewNATSPublisher(conf *core.Config, logger core.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(
		conf.NATS.URL,
		nats.Name(conf.AppName),
		nats.Timeout(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats: disconnected", err)
			}
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to nats")
	}
	return &NATSPublisher{conn: conn, logger: logger}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, subject string, payload interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshalling event")
	}
	return errors.Wrap(p.conn.Publish(subject, data), "publishing event")
}

// Close flushes buffered events before closing the connection.
func (p *NATSPublisher) Close() error {
	err := p.conn.Drain()
	return errors.Wrap(err, "draining nats connection")
}
