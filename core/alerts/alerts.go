// Package alerts carries user-actionable failures (a send that did not go
// through, a foreground refresh that failed) to whoever renders dialogs.
package alerts

import (
	"context"
	"sync"
	"time"
)

type Alert struct {
	Source  string    `json:"source"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type Notifier interface {
	Alert(ctx context.Context, a Alert)
}

const defaultInboxSize = 50

// Inbox buffers alerts until the front end drains them. Oldest alerts are
// dropped once the buffer is full.
type Inbox struct {
	mu    sync.Mutex
	items []Alert
	max   int
}

func NewInbox(max int) *Inbox {
	if max <= 0 {
		max = defaultInboxSize
	}
	return &Inbox{max: max}
}

func (i *Inbox) Alert(ctx context.Context, a Alert) {
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.items = append(i.items, a)
	if over := len(i.items) - i.max; over > 0 {
		i.items = append([]Alert(nil), i.items[over:]...)
	}
}

func (i *Inbox) Drain() []Alert {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := i.items
	i.items = nil
	if out == nil {
		return []Alert{}
	}
	return out
}

func (i *Inbox) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.items)
}

// Discard drops every alert.
type Discard struct{}

func (Discard) Alert(context.Context, Alert) {}
