// Package event defines the conversational event carried by the engine's
// queues.
//
// # Events
//
// An Event is addressed to a Destination (bot, channel, target and an
// optional thread) and travels either Incoming (user to bot) or Outgoing
// (bot to user):
//
//	dest := event.Destination{BotID: "bot", Channel: "web", Target: "user-1"}
//	evt := event.New(dest, event.Incoming, "text", map[string]any{"text": "hello"})
//
// # Partitioning
//
// Key maps an event to its conversation. Two events with the same key
// are processed strictly in order; events for different conversations
// are independent:
//
//	q := eventq.New("incoming", event.Key)
//
// # Validation
//
// Validate checks required fields and the direction before an event is
// enqueued. Errors wrap ErrInvalidEvent.
package event
