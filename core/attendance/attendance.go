package attendance

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"staffdesk/core/polling"
	"staffdesk/core/portalapi"
)

const (
	Route       = "attendance"
	CalendarKey = "calendar"

	// DefaultRollover refreshes the calendar just after local midnight.
	DefaultRollover = "0 0 * * *"
)

type Source interface {
	Calendar(ctx context.Context, month string) ([]portalapi.CalendarEntry, error)
}

func entryKey(e portalapi.CalendarEntry) string {
	return strconv.FormatInt(e.ID, 10) + ":" + e.Date + ":" + e.Kind + ":" + e.Status
}

type Snapshot struct {
	Month    string                    `json:"month"`
	Revision uint64                    `json:"revision"`
	Loaded   bool                      `json:"loaded"`
	Entries  []portalapi.CalendarEntry `json:"entries"`
	Totals   map[string]int            `json:"totals"`
}

// View shows the actor's attendance for the current month. The month is
// derived from the clock on every fetch, so the midnight trigger moves the
// calendar forward when the month rolls over.
type View struct {
	clock clockwork.Clock
	loc   *time.Location

	mu      sync.Mutex
	month   string
	entries *polling.Collection[portalapi.CalendarEntry]
}

func NewView(s *polling.Synchronizer, src Source, clock clockwork.Clock, loc *time.Location, rollover string) (*View, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.UTC
	}
	if rollover == "" {
		rollover = DefaultRollover
	}
	v := &View{clock: clock, loc: loc}
	v.month = v.currentMonth()
	v.entries = polling.Track[portalapi.CalendarEntry](s, CalendarKey, func(ctx context.Context) ([]portalapi.CalendarEntry, error) {
		month := v.currentMonth()
		entries, err := src.Calendar(ctx, month)
		if err != nil {
			return nil, err
		}
		v.mu.Lock()
		v.month = month
		v.mu.Unlock()
		return entries, nil
	}, entryKey)
	if err := s.Schedule(rollover, CalendarKey); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *View) currentMonth() string {
	return v.clock.Now().In(v.loc).Format("2006-01")
}

func (v *View) Month() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.month
}

func (v *View) Snapshot() Snapshot {
	entries := v.entries.Snapshot()
	totals := make(map[string]int)
	for _, e := range entries {
		totals[e.Kind]++
	}
	if entries == nil {
		entries = []portalapi.CalendarEntry{}
	}
	return Snapshot{
		Month:    v.Month(),
		Revision: v.entries.Revision(),
		Loaded:   v.entries.Loaded(),
		Entries:  entries,
		Totals:   totals,
	}
}
