package models

import (
	"encoding/json"
	"time"
)

// Reserved event types on the wire. Channel events use the
// "<channel>:new" convention (impulse:new, bablo:new, ...).
const (
	EventConnected    = "connected"
	EventPong         = "pong"
	EventError        = "error"
	EventSubscribed   = "subscribed"
	EventUnsubscribed = "unsubscribed"
	EventActivityZone = "activity:zone"
)

// Client frame types.
const (
	FramePing        = "ping"
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
)

// Event is a single outbound frame. It is produced once per upstream
// message and broadcast to matching connections without mutation.
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent builds an event stamped with the current UTC time.
func NewEvent(eventType string, data interface{}) Event {
	return Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Marshal serializes the event for the wire.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// ClientFrame is a JSON control frame from the client. The bare string
// "ping" is also accepted and handled before JSON decoding.
type ClientFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// EventTypeForChannel maps a backbone channel name to the outbound
// event type carried by frames from that channel.
func EventTypeForChannel(channel string) string {
	return channel + ":new"
}
