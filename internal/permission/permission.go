package permission

import (
	"sort"
	"strconv"
	"time"

	"github.com/frahmantamala/care-access/internal/grants"
)

type Source string

const (
	SourceRole   Source = "role"
	SourceDirect Source = "direct"
)

// EffectivePermission is one permission a user holds right now, after merging all sources.
type EffectivePermission struct {
	Permission string     `json:"permission"`
	Source     Source     `json:"source"`
	FacilityID *int64     `json:"facility_id,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Covers reports whether the entry answers a check for facility at t.
// Entries without a facility hold everywhere; scoped entries only match their own facility.
func (e EffectivePermission) Covers(name string, facility *int64, t time.Time) bool {
	if e.Permission != name {
		return false
	}
	if e.ExpiresAt != nil && !e.ExpiresAt.After(t) {
		return false
	}
	if e.FacilityID == nil {
		return true
	}
	return facility != nil && *facility == *e.FacilityID
}

func facilityKey(facility *int64) string {
	if facility == nil {
		return ""
	}
	return strconv.FormatInt(*facility, 10)
}

// Merge combines role-derived and direct entries. Entries sharing a permission and facility
// collapse into one carrying the later expiry; on equal expiry the role source is kept.
// The result is ordered by permission name, then facility with the unscoped entry first.
func Merge(fromRoles, direct []EffectivePermission) []EffectivePermission {
	merged := make(map[string]EffectivePermission, len(fromRoles)+len(direct))
	order := make([]string, 0, len(fromRoles)+len(direct))

	add := func(p EffectivePermission) {
		key := p.Permission + "|" + facilityKey(p.FacilityID)
		existing, ok := merged[key]
		if !ok {
			merged[key] = p
			order = append(order, key)
			return
		}
		if outlasts(p.ExpiresAt, existing.ExpiresAt) {
			merged[key] = p
		}
	}
	for _, p := range fromRoles {
		add(p)
	}
	for _, p := range direct {
		add(p)
	}

	out := make([]EffectivePermission, 0, len(order))
	for _, key := range order {
		out = append(out, merged[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Permission != out[j].Permission {
			return out[i].Permission < out[j].Permission
		}
		return lessFacility(out[i].FacilityID, out[j].FacilityID)
	})
	return out
}

// outlasts is true when a expires strictly later than b. Nil never expires.
func outlasts(a, b *time.Time) bool {
	if b == nil {
		return false
	}
	if a == nil {
		return true
	}
	return a.After(*b)
}

func lessFacility(a, b *int64) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	return *a < *b
}

// FromGrants builds the effective list from raw store rows as of t.
func FromGrants(roles []grants.UserRole, rolePerms []grants.RolePermission, direct []grants.UserPermissionGrant, t time.Time) []EffectivePermission {
	byRole := make(map[int64][]grants.Permission)
	for _, rp := range rolePerms {
		byRole[rp.RoleID] = append(byRole[rp.RoleID], rp.Permission)
	}

	var fromRoles []EffectivePermission
	for _, m := range grants.EffectiveRoles(roles, t) {
		for _, p := range byRole[m.Role.ID] {
			fromRoles = append(fromRoles, EffectivePermission{
				Permission: p.Name,
				Source:     SourceRole,
				FacilityID: m.FacilityID,
				ExpiresAt:  m.ExpiresAt,
			})
		}
	}

	var fromGrants []EffectivePermission
	for _, g := range direct {
		if !g.EffectiveAt(t) {
			continue
		}
		fromGrants = append(fromGrants, EffectivePermission{
			Permission: g.Permission.Name,
			Source:     SourceDirect,
			FacilityID: g.FacilityID,
			ExpiresAt:  g.ExpiresAt,
		})
	}

	return Merge(fromRoles, fromGrants)
}

// StillEffective drops entries that expired since the list was built.
func StillEffective(list []EffectivePermission, t time.Time) []EffectivePermission {
	out := make([]EffectivePermission, 0, len(list))
	for _, p := range list {
		if p.ExpiresAt == nil || p.ExpiresAt.After(t) {
			out = append(out, p)
		}
	}
	return out
}
