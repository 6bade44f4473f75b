package event

import (
	"encoding/json"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Direction tells which queue an event travels through.
type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

// Well-known flags.
const (
	// FlagSkipDialogEngine tells later incoming middleware the event was
	// already answered.
	FlagSkipDialogEngine = "skip-dialog-engine"
)

// Destination identifies a conversation: the bot, the channel it talks
// on, the user (target) and optionally a thread.
type Destination struct {
	BotID    string `json:"botId"`
	Channel  string `json:"channel"`
	Target   string `json:"target"`
	ThreadID string `json:"threadId,omitempty"`
}

// Event is one inbound or outbound message.
//
// Events are passed by pointer through the queues and middleware. Fields
// other than Flags must not change once the event has been sent.
type Event struct {
	ID              string          `json:"id" validate:"required"`
	Type            string          `json:"type" validate:"required"`
	BotID           string          `json:"botId" validate:"required"`
	Channel         string          `json:"channel" validate:"required"`
	Target          string          `json:"target" validate:"required"`
	ThreadID        string          `json:"threadId,omitempty"`
	Direction       Direction       `json:"direction" validate:"required,oneof=incoming outgoing"`
	Payload         map[string]any  `json:"payload" validate:"required"`
	Preview         string          `json:"preview,omitempty"`
	IncomingEventID string          `json:"incomingEventId,omitempty"`
	CreatedOn       time.Time       `json:"createdOn" validate:"required"`
	Flags           map[string]bool `json:"flags"`

	mu sync.RWMutex
}

// Option customizes an event built by New.
type Option func(*Event)

// WithID overrides the generated event ID.
func WithID(id string) Option {
	return func(e *Event) {
		if id != "" {
			e.ID = id
		}
	}
}

// WithPreview sets the human-readable preview.
func WithPreview(preview string) Option {
	return func(e *Event) {
		e.Preview = preview
	}
}

// WithIncomingEventID links an outgoing event to the event it answers.
func WithIncomingEventID(id string) Option {
	return func(e *Event) {
		e.IncomingEventID = id
	}
}

// WithCreatedOn overrides the creation time.
func WithCreatedOn(t time.Time) Option {
	return func(e *Event) {
		e.CreatedOn = t
	}
}

// WithFlag sets a flag at creation time.
func WithFlag(name string, value bool) Option {
	return func(e *Event) {
		e.Flags[name] = value
	}
}

// New creates an event addressed to dest. The preview defaults to the
// payload's "text" entry when it is a string.
//
// Example:
//
//	evt := event.New(dest, event.Incoming, "text", map[string]any{"text": "hi"})
func New(dest Destination, direction Direction, eventType string, payload map[string]any, opts ...Option) *Event {
	if payload == nil {
		payload = make(map[string]any)
	}
	e := &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		BotID:     dest.BotID,
		Channel:   dest.Channel,
		Target:    dest.Target,
		ThreadID:  dest.ThreadID,
		Direction: direction,
		Payload:   payload,
		CreatedOn: time.Now(),
		Flags:     make(map[string]bool),
	}
	if text, ok := payload["text"].(string); ok {
		e.Preview = text
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// JobID returns the event ID so queue logs and dead letters can be
// correlated with the event.
func (e *Event) JobID() string {
	return e.ID
}

// Destination returns where the event is addressed.
func (e *Event) Destination() Destination {
	return Destination{
		BotID:    e.BotID,
		Channel:  e.Channel,
		Target:   e.Target,
		ThreadID: e.ThreadID,
	}
}

// SetFlag sets a flag. Safe for concurrent use.
func (e *Event) SetFlag(name string, value bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Flags == nil {
		e.Flags = make(map[string]bool)
	}
	e.Flags[name] = value
}

// HasFlag reports whether a flag is set. Safe for concurrent use.
func (e *Event) HasFlag(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Flags[name]
}

// eventJSON is the wire form of Event, without its lock.
type eventJSON struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	BotID           string          `json:"botId"`
	Channel         string          `json:"channel"`
	Target          string          `json:"target"`
	ThreadID        string          `json:"threadId,omitempty"`
	Direction       Direction       `json:"direction"`
	Payload         map[string]any  `json:"payload"`
	Preview         string          `json:"preview,omitempty"`
	IncomingEventID string          `json:"incomingEventId,omitempty"`
	CreatedOn       time.Time       `json:"createdOn"`
	Flags           map[string]bool `json:"flags"`
}

// MarshalJSON encodes the event, reading Flags under the event lock so it
// is safe while other goroutines call SetFlag.
func (e *Event) MarshalJSON() ([]byte, error) {
	e.mu.RLock()
	flags := maps.Clone(e.Flags)
	e.mu.RUnlock()

	return json.Marshal(eventJSON{
		ID:              e.ID,
		Type:            e.Type,
		BotID:           e.BotID,
		Channel:         e.Channel,
		Target:          e.Target,
		ThreadID:        e.ThreadID,
		Direction:       e.Direction,
		Payload:         e.Payload,
		Preview:         e.Preview,
		IncomingEventID: e.IncomingEventID,
		CreatedOn:       e.CreatedOn,
		Flags:           flags,
	})
}

// Key returns the queue partition key of an event:
// botId::channel::target, plus ::threadId when the event has a thread.
func Key(e *Event) string {
	return DestinationKey(e.Destination())
}

// DestinationKey returns the partition key of a conversation.
func DestinationKey(d Destination) string {
	key := d.BotID + "::" + d.Channel + "::" + d.Target
	if d.ThreadID != "" {
		key += "::" + d.ThreadID
	}
	return key
}
