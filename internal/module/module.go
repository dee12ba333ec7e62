package module

import (
	"sort"
	"time"

	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/grants"
)

type Source string

const (
	SourceRole   Source = "role"
	SourceDirect Source = "direct"
)

// EffectiveModule is one module a user may open right now.
type EffectiveModule struct {
	ModuleID  int64             `json:"module_id"`
	Module    access.ModuleName `json:"module"`
	Source    Source            `json:"source"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
}

func (m EffectiveModule) Path() string {
	return m.Module.Path()
}

// Merge collapses entries by module id, keeping the one that lasts longer
// (no expiry outlasts any date, ties keep the role source), ordered by module name.
func Merge(fromRoles, direct []EffectiveModule) []EffectiveModule {
	merged := make(map[int64]EffectiveModule, len(fromRoles)+len(direct))
	add := func(m EffectiveModule) {
		existing, ok := merged[m.ModuleID]
		if !ok || outlasts(m.ExpiresAt, existing.ExpiresAt) {
			merged[m.ModuleID] = m
		}
	}
	for _, m := range fromRoles {
		add(m)
	}
	for _, m := range direct {
		add(m)
	}

	out := make([]EffectiveModule, 0, len(merged))
	for _, m := range merged {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].ModuleID < out[j].ModuleID
	})
	return out
}

func outlasts(a, b *time.Time) bool {
	if b == nil {
		return false
	}
	return a == nil || a.After(*b)
}

// FromGrants builds the effective set as of t. Role-sourced entries carry the
// expiry of the membership that reaches them.
func FromGrants(roles []grants.UserRole, roleModules []grants.RoleModuleAssignment, direct []grants.UserModuleAssignment, t time.Time) []EffectiveModule {
	byRole := make(map[int64][]grants.Module)
	for _, rm := range roleModules {
		if rm.IsActive && rm.Module.IsActive {
			byRole[rm.RoleID] = append(byRole[rm.RoleID], rm.Module)
		}
	}

	var fromRoles []EffectiveModule
	for _, membership := range grants.EffectiveRoles(roles, t) {
		for _, m := range byRole[membership.Role.ID] {
			fromRoles = append(fromRoles, EffectiveModule{
				ModuleID:  m.ID,
				Module:    m.Name,
				Source:    SourceRole,
				ExpiresAt: membership.ExpiresAt,
			})
		}
	}

	var fromUser []EffectiveModule
	for _, a := range direct {
		if !a.EffectiveAt(t) {
			continue
		}
		fromUser = append(fromUser, EffectiveModule{
			ModuleID:  a.Module.ID,
			Module:    a.Module.Name,
			Source:    SourceDirect,
			ExpiresAt: a.ExpiresAt,
		})
	}

	return Merge(fromRoles, fromUser)
}

func StillEffective(list []EffectiveModule, t time.Time) []EffectiveModule {
	out := make([]EffectiveModule, 0, len(list))
	for _, m := range list {
		if m.ExpiresAt == nil || m.ExpiresAt.After(t) {
			out = append(out, m)
		}
	}
	return out
}

// Contains reports whether name is in the list.
func Contains(list []EffectiveModule, name access.ModuleName) bool {
	for _, m := range list {
		if m.Module == name {
			return true
		}
	}
	return false
}
