package rbac

import (
	"fmt"
	"strings"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

type Permission string

const (
	PermSystemAdmin     Permission = "system.admin"
	PermApprovalsView   Permission = "approvals.view"
	PermChatUse         Permission = "chat.use"
	PermContactsView    Permission = "contacts.view"
	PermAttendanceView  Permission = "attendance.view"
	PermMaintenanceEdit Permission = "maintenance.edit"
)

type Role struct {
	Name        string
	Permissions []Permission
}

// DefaultRoles mirrors the role names the portal hands out in user profiles.
func DefaultRoles() []Role {
	return []Role{
		{Name: "admin", Permissions: []Permission{"*"}},
		{Name: "manager", Permissions: []Permission{PermApprovalsView, PermChatUse, PermContactsView, PermAttendanceView}},
		{Name: "employee", Permissions: []Permission{PermApprovalsView, PermChatUse, PermContactsView, PermAttendanceView}},
		{Name: "maintainer", Permissions: []Permission{PermMaintenanceEdit, PermContactsView}},
	}
}

const modelText = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (p.obj == r.obj || p.obj == "*")
`

type Policy struct {
	mu       sync.RWMutex
	enforcer *casbin.Enforcer
}

func NewPolicy(roles []Role) (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("rbac: model: %w", err)
	}
	enf, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac: enforcer: %w", err)
	}
	p := &Policy{enforcer: enf}
	if err := p.Replace(roles); err != nil {
		return nil, err
	}
	return p, nil
}

// MustNewPolicy panics on a malformed built-in model; intended for tests and
// bootstrap with DefaultRoles.
func MustNewPolicy(roles []Role) *Policy {
	p, err := NewPolicy(roles)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Policy) Replace(roles []Role) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enforcer.ClearPolicy()
	for _, role := range roles {
		name := normalizeRole(role.Name)
		if name == "" {
			continue
		}
		for _, perm := range role.Permissions {
			if _, err := p.enforcer.AddPolicy(name, string(perm)); err != nil {
				return fmt.Errorf("rbac: add policy %s/%s: %w", name, perm, err)
			}
		}
	}
	return nil
}

func (p *Policy) Allowed(roles []string, perm Permission) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, role := range roles {
		name := normalizeRole(role)
		if name == "" {
			continue
		}
		ok, err := p.enforcer.Enforce(name, string(perm))
		if err == nil && ok {
			return true
		}
	}
	return false
}

func (p *Policy) IsSystemAdmin(roles []string) bool {
	return p.Allowed(roles, PermSystemAdmin)
}

func normalizeRole(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
