package presence

import (
	"context"
	"sync"

	"github.com/mcoot/sailsync/internal/model"
	"github.com/mcoot/sailsync/internal/realtime"
)

type published struct {
	to        realtime.Recipients
	eventType model.EventType
	payload   any
}

// recordingPublisher keeps every published event in order
type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(ctx context.Context, to realtime.Recipients, eventType model.EventType, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{to: to, eventType: eventType, payload: payload})
	return nil
}

// receivedBy returns the events conn would have been sent
func (p *recordingPublisher) receivedBy(conn model.ConnectionID) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.to.Includes(conn) {
			out = append(out, e)
		}
	}
	return out
}

func (p *recordingPublisher) typesFor(conn model.ConnectionID) []model.EventType {
	var out []model.EventType
	for _, e := range p.receivedBy(conn) {
		out = append(out, e.eventType)
	}
	return out
}

func (p *recordingPublisher) last(eventType model.EventType) (published, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].eventType == eventType {
			return p.events[i], true
		}
	}
	return published{}, false
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}
