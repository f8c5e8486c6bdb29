package core

import (
	"time"

	"github.com/google/uuid"
)

type EventPacket struct {
	Event     IEvent
	Uid       string    // Unique identifier for tracking the event packet.
	Relayer   string    // Identifier of the component that emitted the event.
	Timestamp time.Time // When the event was emitted.
}

func NewEventPacket(event IEvent, relayer string) *EventPacket {
	return &EventPacket{
		Event:     event,
		Uid:       uuid.New().String(),
		Relayer:   relayer,
		Timestamp: time.Now(),
	}
}

// EventSink receives event packets. Implementations must not block for long;
// they are called from the client's event loop.
type EventSink interface {
	Publish(packet *EventPacket)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(packet *EventPacket)

func (f EventSinkFunc) Publish(packet *EventPacket) { f(packet) }

// FanOut publishes every packet to each of its sinks in order.
type FanOut []EventSink

func (f FanOut) Publish(packet *EventPacket) {
	for _, s := range f {
		if s != nil {
			s.Publish(packet)
		}
	}
}
