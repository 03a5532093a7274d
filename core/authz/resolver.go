// Package authz resolves what the signed-in actor may do with an entity
// governed by an approval chain. It is an advisory fast path for UI
// affordances; the portal API remains the enforcement point.
package authz

// GroupID identifies a delegation or department group. Zero means unassigned.
type GroupID int64

type Slot string

const (
	SlotChecker   Slot = "checker"
	SlotApprover1 Slot = "approver_1"
	SlotApprover2 Slot = "approver_2"
	SlotApprover3 Slot = "approver_3"
)

// Chain is the approval chain configured on a governed entity.
type Chain struct {
	Checker   GroupID `json:"checker_id"`
	Approver1 GroupID `json:"approver_1_id"`
	Approver2 GroupID `json:"approver_2_id"`
	Approver3 GroupID `json:"approver_3_id"`
}

// Get returns the group assigned to slot, or zero.
func (c Chain) Get(slot Slot) GroupID {
	switch slot {
	case SlotChecker:
		return c.Checker
	case SlotApprover1:
		return c.Approver1
	case SlotApprover2:
		return c.Approver2
	case SlotApprover3:
		return c.Approver3
	}
	return 0
}

var approverSlots = [...]Slot{SlotApprover1, SlotApprover2, SlotApprover3}

// Empty reports whether no slot is assigned.
func (c Chain) Empty() bool {
	return c.Checker <= 0 && c.Approver1 <= 0 && c.Approver2 <= 0 && c.Approver3 <= 0
}

type Actor struct {
	ID                 int64
	DelegationGroupIDs []GroupID
	MemberGroupIDs     []GroupID
	IsSystemAdmin      bool
}

func (a Actor) inDelegation(id GroupID) bool {
	if id <= 0 {
		return false
	}
	for _, g := range a.DelegationGroupIDs {
		if g == id {
			return true
		}
	}
	return false
}

// Entity is anything whose mutation needs chain authorization: a department
// group, a chat room, a leave or overtime application.
type Entity struct {
	ID           int64
	OwnerGroupID GroupID
	Chain        Chain
}

type Capability struct {
	CanView    bool `json:"can_view"`
	CanEdit    bool `json:"can_edit"`
	CanApprove bool `json:"can_approve"`
}

func Full() Capability {
	return Capability{CanView: true, CanEdit: true, CanApprove: true}
}

// FailClosed is the capability used whenever authorization data is missing.
func FailClosed() Capability {
	return Capability{}
}

// ResolveCapability derives the actor's capability from the chain alone.
// Admins short-circuit; approver slots grant edit and approve; the checker
// slot grants view only.
func ResolveCapability(actor Actor, chain Chain) Capability {
	if actor.IsSystemAdmin {
		return Full()
	}
	if IsChainMember(actor, chain, false) {
		return Full()
	}
	if actor.inDelegation(chain.Get(SlotChecker)) {
		return Capability{CanView: true}
	}
	return FailClosed()
}

// IsChainMember reports whether any of the actor's delegation groups sits in
// an approver slot, or also the checker slot when includeChecker is set.
func IsChainMember(actor Actor, chain Chain, includeChecker bool) bool {
	if len(actor.DelegationGroupIDs) == 0 {
		return false
	}
	for _, slot := range approverSlots {
		if actor.inDelegation(chain.Get(slot)) {
			return true
		}
	}
	return includeChecker && actor.inDelegation(chain.Get(SlotChecker))
}

// IsDirectMember reports membership in the entity's own department group.
func IsDirectMember(actor Actor, owner GroupID) bool {
	if owner <= 0 {
		return false
	}
	for _, g := range actor.MemberGroupIDs {
		if g == owner {
			return true
		}
	}
	return false
}

// Resolve composes the chain capability with direct membership, which only
// ever widens visibility.
func Resolve(actor Actor, entity Entity) Capability {
	c := ResolveCapability(actor, entity.Chain)
	if !c.CanView && IsDirectMember(actor, entity.OwnerGroupID) {
		c.CanView = true
	}
	return c
}
