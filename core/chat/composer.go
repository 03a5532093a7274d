package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"

	"staffdesk/core/alerts"
	"staffdesk/core/portalapi"
)

var (
	ErrEmptyDraft = errors.New("chat: message is empty")
	ErrNoRoom     = errors.New("chat: no room selected")
)

type sendFunc func(ctx context.Context, roomID int64, text string) (*portalapi.Message, error)

// Composer holds the text being typed. The draft is only cleared after the
// portal accepts the message; a failed send leaves it in place for a retry.
type Composer struct {
	send     sendFunc
	notifier alerts.Notifier
	clock    clockwork.Clock

	mu      sync.Mutex
	draft   string
	sending bool
}

func NewComposer(send sendFunc, notifier alerts.Notifier, clock clockwork.Clock) *Composer {
	if notifier == nil {
		notifier = alerts.Discard{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Composer{send: send, notifier: notifier, clock: clock}
}

func (c *Composer) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

func (c *Composer) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

func (c *Composer) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// Send posts the current draft to roomID. Text typed while the request was
// in flight is kept even when the send succeeds.
func (c *Composer) Send(ctx context.Context, roomID int64) (*portalapi.Message, error) {
	c.mu.Lock()
	draft := c.draft
	text := strings.TrimSpace(draft)
	if text == "" {
		c.mu.Unlock()
		return nil, ErrEmptyDraft
	}
	if roomID <= 0 {
		c.mu.Unlock()
		return nil, ErrNoRoom
	}
	c.sending = true
	c.mu.Unlock()

	msg, err := c.send(ctx, roomID, text)

	c.mu.Lock()
	c.sending = false
	if err == nil && c.draft == draft {
		c.draft = ""
	}
	c.mu.Unlock()

	if err != nil {
		c.notifier.Alert(ctx, alerts.Alert{Source: "chat.send", Message: err.Error(), At: c.clock.Now().UTC()})
		return nil, err
	}
	return msg, nil
}
