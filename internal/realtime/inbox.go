package realtime

import (
	"context"
	"log"
	"sync"
)

const DefaultInboxSize = 100

// Inbox is the local notification sink: scheduled notifications are kept newest first
// until cleared.
type Inbox struct {
	mu    sync.Mutex
	items []Notification
	limit int
}

func NewInbox(limit int) *Inbox {
	if limit <= 0 {
		limit = DefaultInboxSize
	}
	return &Inbox{limit: limit}
}

func (i *Inbox) Schedule(_ context.Context, n Notification) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.items = append([]Notification{n}, i.items...)
	if len(i.items) > i.limit {
		i.items = i.items[:i.limit]
	}
	log.Printf("realtime: notification %s scheduled: %q", n.ID, n.Title)
	return nil
}

func (i *Inbox) List() []Notification {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]Notification, len(i.items))
	copy(out, i.items)
	return out
}

func (i *Inbox) Clear() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := len(i.items)
	i.items = nil
	return n
}
