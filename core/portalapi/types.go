package portalapi

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"staffdesk/core/authz"
)

// NullableID is a group reference as the portal serializes it: null, a
// number, a numeric string, or "". Zero and empty values are unassigned.
type NullableID int64

func (n *NullableID) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*n = 0
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = 0
			return nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return errors.Errorf("portalapi: invalid id %q", s)
		}
		*n = normalizeID(v)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return errors.Wrap(err, "portalapi: invalid id")
	}
	v, err := strconv.ParseInt(num.String(), 10, 64)
	if err != nil {
		return errors.Errorf("portalapi: invalid id %s", num)
	}
	*n = normalizeID(v)
	return nil
}

func (n NullableID) MarshalJSON() ([]byte, error) {
	if n <= 0 {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(int64(n), 10)), nil
}

func (n NullableID) Group() authz.GroupID {
	return authz.GroupID(n)
}

func normalizeID(v int64) NullableID {
	if v <= 0 {
		return 0
	}
	return NullableID(v)
}

func groupIDs(in []NullableID) []authz.GroupID {
	out := make([]authz.GroupID, 0, len(in))
	for _, id := range in {
		if id > 0 {
			out = append(out, id.Group())
		}
	}
	return out
}

// ChainFields is embedded by every record that carries an approval chain.
type ChainFields struct {
	CheckerID   NullableID `json:"checker_id"`
	Approver1ID NullableID `json:"approver_1_id"`
	Approver2ID NullableID `json:"approver_2_id"`
	Approver3ID NullableID `json:"approver_3_id"`
}

func (c ChainFields) Chain() authz.Chain {
	return authz.Chain{
		Checker:   c.CheckerID.Group(),
		Approver1: c.Approver1ID.Group(),
		Approver2: c.Approver2ID.Group(),
		Approver3: c.Approver3ID.Group(),
	}
}

type Group struct {
	ID       int64      `json:"id"`
	Name     string     `json:"name"`
	ParentID NullableID `json:"parent_id"`
	ChainFields
}

func (g Group) Entity() authz.Entity {
	return authz.Entity{ID: g.ID, OwnerGroupID: authz.GroupID(g.ID), Chain: g.Chain()}
}

type DelegationGroup struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Member struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

type Profile struct {
	ID                 int64        `json:"id"`
	Username           string       `json:"username"`
	Name               string       `json:"name"`
	Roles              []string     `json:"roles"`
	IsSystemAdmin      bool         `json:"is_system_admin"`
	GroupIDs           []NullableID `json:"group_ids"`
	DelegationGroupIDs []NullableID `json:"delegation_group_ids"`
}

func (p Profile) MemberGroups() []authz.GroupID {
	return groupIDs(p.GroupIDs)
}

func (p Profile) DelegationGroups() []authz.GroupID {
	return groupIDs(p.DelegationGroupIDs)
}

// Application is a leave or overtime request awaiting approval.
type Application struct {
	ID        int64      `json:"id"`
	Kind      string     `json:"type"`
	Status    string     `json:"status"`
	UserID    int64      `json:"user_id"`
	GroupID   NullableID `json:"group_id"`
	StartDate string     `json:"start_date"`
	EndDate   string     `json:"end_date"`
	ChainFields
}

func (a Application) Entity() authz.Entity {
	return authz.Entity{ID: a.ID, OwnerGroupID: a.GroupID.Group(), Chain: a.Chain()}
}

type Room struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	GroupID       NullableID `json:"group_id"`
	UnreadCount   int        `json:"unread_count"`
	LastMessageAt *time.Time `json:"last_message_at"`
	ChainFields
}

func (r Room) Entity() authz.Entity {
	return authz.Entity{ID: r.ID, OwnerGroupID: r.GroupID.Group(), Chain: r.Chain()}
}

type Message struct {
	ID        int64     `json:"id"`
	RoomID    int64     `json:"room_id"`
	SenderID  int64     `json:"sender_id"`
	Body      string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type CalendarEntry struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"user_id"`
	Date   string `json:"date"`
	Kind   string `json:"type"`
	Status string `json:"status"`
}
