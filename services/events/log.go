package eventsvc

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-guardian/core"
)

// Event is a published event, as recorded by LogPublisher.
type Event struct {
	Subject string
	Data    []byte
}

// LogPublisher logs events instead of sending them anywhere; used when NATS is not configured & in tests.
type LogPublisher struct {
	logger core.Logger

	mu     sync.Mutex
	events []Event
}

var _ core.EventPublisher = (*LogPublisher)(nil)

func NewLogPublisher(logger core.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshalling event")
	}
	p.mu.Lock()
	p.events = append(p.events, Event{Subject: subject, Data: data})
	p.mu.Unlock()
	p.logger.Info("event " + subject + ": " + string(data))
	return nil
}

// Events returns the events published on subject, or all events if subject is empty.
func (p *LogPublisher) Events(subject string) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	evts := make([]Event, 0, len(p.events))
	for _, evt := range p.events {
		if subject == "" || evt.Subject == subject {
			evts = append(evts, evt)
		}
	}
	return evts
}
