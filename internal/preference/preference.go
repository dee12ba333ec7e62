package preference

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/google/uuid"
)

type Dashboard string

const (
	DashboardUnified        Dashboard = "unified"
	DashboardModuleSpecific Dashboard = "module_specific"
)

func ParseDashboard(raw string) (Dashboard, error) {
	switch d := Dashboard(raw); d {
	case DashboardUnified, DashboardModuleSpecific:
		return d, nil
	}
	return "", fmt.Errorf("unknown dashboard %q", raw)
}

// Preferences drive routing after login.
type Preferences struct {
	DefaultModule      *access.ModuleName `json:"default_module,omitempty"`
	LastActiveModule   *access.ModuleName `json:"last_active_module,omitempty"`
	PreferredDashboard Dashboard          `json:"preferred_dashboard"`
	AutoRoute          bool               `json:"auto_route"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Update is a partial change; nil fields are left as they are.
type Update struct {
	DefaultModule      *access.ModuleName
	LastActiveModule   *access.ModuleName
	PreferredDashboard *Dashboard
	AutoRoute          *bool
}

func (u Update) Apply(p Preferences) Preferences {
	if u.DefaultModule != nil {
		m := *u.DefaultModule
		p.DefaultModule = &m
	}
	if u.LastActiveModule != nil {
		m := *u.LastActiveModule
		p.LastActiveModule = &m
	}
	if u.PreferredDashboard != nil {
		p.PreferredDashboard = *u.PreferredDashboard
	}
	if u.AutoRoute != nil {
		p.AutoRoute = *u.AutoRoute
	}
	return p
}

func (u Update) IsEmpty() bool {
	return u.DefaultModule == nil && u.LastActiveModule == nil && u.PreferredDashboard == nil && u.AutoRoute == nil
}

// Defaults derives first-login preferences from the role set.
func Defaults(roles []access.RoleName) Preferences {
	if access.IsSuperAdmin(roles) {
		dashboard := access.ModuleDashboard
		return Preferences{
			DefaultModule:      &dashboard,
			PreferredDashboard: DashboardUnified,
			AutoRoute:          true,
		}
	}
	m := access.DefaultModuleFor(roles)
	return Preferences{
		DefaultModule:      &m,
		PreferredDashboard: DashboardModuleSpecific,
		AutoRoute:          true,
	}
}

// Progress is the breadcrumb of the last visit to a module.
type Progress struct {
	Module       access.ModuleName `json:"module"`
	LastPath     string            `json:"last_path,omitempty"`
	FormSnapshot json.RawMessage   `json:"form_snapshot,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// Upsert replaces any entry for the same module, then keeps the limit most recent, newest first.
func Upsert(list []Progress, entry Progress, limit int) []Progress {
	out := make([]Progress, 0, len(list)+1)
	for _, p := range list {
		if p.Module != entry.Module {
			out = append(out, p)
		}
	}
	out = append(out, entry)
	SortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func SortNewestFirst(list []Progress) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].Timestamp.Equal(list[j].Timestamp) {
			return list[i].Timestamp.After(list[j].Timestamp)
		}
		return list[i].Module < list[j].Module
	})
}

// Find returns the entry recorded for module.
func Find(list []Progress, module access.ModuleName) (Progress, bool) {
	for _, p := range list {
		if p.Module == module {
			return p, true
		}
	}
	return Progress{}, false
}

func PreferencesKey(user uuid.UUID) string {
	return "user-preferences-" + user.String()
}

func ProgressKey(user uuid.UUID) string {
	return "module-progress-" + user.String()
}
