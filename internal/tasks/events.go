package tasks

import "github.com/mozbugbox/bitiwo/internal/models"

// Event is a notification about a state change. Concrete event types
// are the *Event structs below; consumers type-switch on them.
type Event any

// MemberAddedEvent fires after a member and its initial videos are in
// the store.
type MemberAddedEvent struct {
	MID  int64
	Name string
}

// MemberRemovedEvent fires after a member and its videos are deleted.
type MemberRemovedEvent struct {
	MID int64
}

// VideosAddedEvent fires after a batch of new videos is stored for a
// member. Videos are in the order they were received, newest first.
type VideosAddedEvent struct {
	MID    int64
	Videos []models.Video
}

// VideoVisitedEvent fires when a video's visited flag changes.
type VideoVisitedEvent struct {
	BVID    string
	Visited bool
}

// MemberStatusEvent fires when a member's unseen count or watermark may
// have changed.
type MemberStatusEvent struct {
	MID int64
}

// Bus dispatches events synchronously to subscribers. Publish must only
// be called from the owner loop, so subscribers never need locking.
type Bus struct {
	handlers []func(Event)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all events. Not safe to call
// concurrently with Publish.
func (b *Bus) Subscribe(handler func(Event)) {
	b.handlers = append(b.handlers, handler)
}

// Publish delivers the event to every subscriber, in subscription order.
func (b *Bus) Publish(event Event) {
	for _, handler := range b.handlers {
		handler(event)
	}
}
