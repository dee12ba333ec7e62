package routing_test

import (
	"time"

	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/module"
	"github.com/frahmantamala/care-access/internal/preference"
	"github.com/frahmantamala/care-access/internal/routing"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func mod(name access.ModuleName) *access.ModuleName {
	return &name
}

func effective(names ...access.ModuleName) []module.EffectiveModule {
	out := make([]module.EffectiveModule, 0, len(names))
	for i, n := range names {
		out = append(out, module.EffectiveModule{ModuleID: int64(i + 1), Module: n, Source: module.SourceRole})
	}
	return out
}

var _ = Describe("Decide", func() {
	at := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)

	DescribeTable("applies the first matching rule",
		func(in routing.Inputs, path string, rule routing.Rule) {
			d := routing.Decide(in)
			Expect(d.Path).To(Equal(path))
			Expect(d.Rule).To(Equal(rule))
		},
		Entry("super-admin resumes an accessible last module",
			routing.Inputs{
				Roles:       []access.RoleName{access.RoleSuperAdmin},
				Preferences: preference.Preferences{LastActiveModule: mod(access.ModuleReports)},
				Accessible:  func(access.ModuleName) bool { return true },
			}, "/reports", routing.RuleSuperAdmin),
		Entry("super-admin without a last module lands on the dashboard",
			routing.Inputs{
				Roles:   []access.RoleName{access.RoleSuperAdmin},
				Modules: effective(access.ModulePatients),
			}, "/dashboard", routing.RuleSuperAdmin),
		Entry("super-admin ignores saved progress paths",
			routing.Inputs{
				Roles:       []access.RoleName{access.RoleSuperAdmin},
				Modules:     effective(access.ModuleReports),
				Preferences: preference.Preferences{LastActiveModule: mod(access.ModuleReports)},
				Progress:    []preference.Progress{{Module: access.ModuleReports, LastPath: "/reports/q3", Timestamp: at}},
			}, "/reports", routing.RuleSuperAdmin),
		Entry("resume the saved path of the last module",
			routing.Inputs{
				Modules:     effective(access.ModulePatients, access.ModuleReports),
				Preferences: preference.Preferences{LastActiveModule: mod(access.ModuleReports), DefaultModule: mod(access.ModulePatients)},
				Progress:    []preference.Progress{{Module: access.ModuleReports, LastPath: "/reports/q3", Timestamp: at}},
			}, "/reports/q3", routing.RuleResume),
		Entry("resume falls back to the module path without a saved path",
			routing.Inputs{
				Modules:     effective(access.ModuleReports),
				Preferences: preference.Preferences{LastActiveModule: mod(access.ModuleReports)},
				Progress:    []preference.Progress{{Module: access.ModuleReports, Timestamp: at}},
			}, "/reports", routing.RuleResume),
		Entry("a last module without progress falls through to the default",
			routing.Inputs{
				Modules:     effective(access.ModulePatients, access.ModuleReports),
				Preferences: preference.Preferences{LastActiveModule: mod(access.ModuleReports), DefaultModule: mod(access.ModulePatients)},
			}, "/patients", routing.RuleDefaultModule),
		Entry("an inaccessible last module falls through to the default",
			routing.Inputs{
				Modules:     effective(access.ModulePatients),
				Preferences: preference.Preferences{LastActiveModule: mod(access.ModuleReports), DefaultModule: mod(access.ModulePatients)},
				Progress:    []preference.Progress{{Module: access.ModuleReports, LastPath: "/reports/q3", Timestamp: at}},
			}, "/patients", routing.RuleDefaultModule),
		Entry("an inaccessible default falls through to the first module by name",
			routing.Inputs{
				Modules:     effective(access.ModuleReports, access.ModuleFacilities),
				Preferences: preference.Preferences{DefaultModule: mod(access.ModuleOnboarding)},
			}, "/facilities", routing.RuleFirstModule),
		Entry("nothing accessible ends on the dashboard",
			routing.Inputs{
				Preferences: preference.Preferences{DefaultModule: mod(access.ModulePatients)},
			}, "/dashboard", routing.RuleDashboard),
	)

	It("is deterministic regardless of module order", func() {
		a := routing.Decide(routing.Inputs{Modules: effective(access.ModuleReports, access.ModuleFacilities, access.ModulePatients)})
		b := routing.Decide(routing.Inputs{Modules: effective(access.ModulePatients, access.ModuleReports, access.ModuleFacilities)})
		Expect(a).To(Equal(b))
		Expect(a.Path).To(Equal("/facilities"))
	})
})
