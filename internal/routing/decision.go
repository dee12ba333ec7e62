package routing

import (
	"sort"

	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/module"
	"github.com/frahmantamala/care-access/internal/preference"
)

// Rule names the decision rule that produced a route.
type Rule string

const (
	RuleSuperAdmin    Rule = "super_admin"
	RuleResume        Rule = "resume_progress"
	RuleDefaultModule Rule = "default_module"
	RuleFirstModule   Rule = "first_module"
	RuleDashboard     Rule = "dashboard"
	RuleFallback      Rule = "error_fallback"
)

type Decision struct {
	Path   string             `json:"path"`
	Rule   Rule               `json:"rule"`
	Module *access.ModuleName `json:"module,omitempty"`
}

func dashboard(rule Rule) Decision {
	return Decision{Path: access.DashboardPath, Rule: rule}
}

func toModule(m access.ModuleName, path string, rule Rule) Decision {
	if path == "" {
		path = m.Path()
	}
	return Decision{Path: path, Rule: rule, Module: &m}
}

// Inputs is everything a decision depends on.
type Inputs struct {
	Roles       []access.RoleName
	Modules     []module.EffectiveModule
	Preferences preference.Preferences
	Progress    []preference.Progress
	// Accessible answers whether a module may be opened. Nil means membership in Modules.
	Accessible func(access.ModuleName) bool
}

func (in Inputs) accessible(m access.ModuleName) bool {
	if in.Accessible != nil {
		return in.Accessible(m)
	}
	return module.Contains(in.Modules, m)
}

// Decide applies the rules in order; the first match wins. The same inputs always give the same route.
func Decide(in Inputs) Decision {
	last := in.Preferences.LastActiveModule

	if access.IsSuperAdmin(in.Roles) {
		if last != nil && in.accessible(*last) {
			return toModule(*last, "", RuleSuperAdmin)
		}
		return dashboard(RuleSuperAdmin)
	}

	if last != nil && in.accessible(*last) {
		if p, ok := preference.Find(in.Progress, *last); ok {
			return toModule(*last, p.LastPath, RuleResume)
		}
	}

	if def := in.Preferences.DefaultModule; def != nil && in.accessible(*def) {
		return toModule(*def, "", RuleDefaultModule)
	}

	if len(in.Modules) > 0 {
		ordered := append([]module.EffectiveModule(nil), in.Modules...)
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Module < ordered[j].Module })
		return toModule(ordered[0].Module, "", RuleFirstModule)
	}

	return dashboard(RuleDashboard)
}
