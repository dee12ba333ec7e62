package module_test

import (
	"time"

	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/grants"
	"github.com/frahmantamala/care-access/internal/module"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Effective modules", func() {
	now := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	nurse := grants.Role{ID: 1, Name: access.RoleRegisteredNurse}
	patients := grants.Module{ID: 10, Name: access.ModulePatients, IsActive: true}
	reports := grants.Module{ID: 11, Name: access.ModuleReports, IsActive: true}
	archived := grants.Module{ID: 12, Name: "archive", IsActive: false}

	It("prefers the assignment without expiry over a dated one", func() {
		out := module.Merge(
			[]module.EffectiveModule{{ModuleID: 10, Module: access.ModulePatients, Source: module.SourceRole, ExpiresAt: &future}},
			[]module.EffectiveModule{{ModuleID: 10, Module: access.ModulePatients, Source: module.SourceDirect}},
		)
		Expect(out).To(ConsistOf(module.EffectiveModule{ModuleID: 10, Module: access.ModulePatients, Source: module.SourceDirect}))
	})

	It("orders the set by module name", func() {
		out := module.Merge(nil, []module.EffectiveModule{
			{ModuleID: 11, Module: access.ModuleReports},
			{ModuleID: 10, Module: access.ModulePatients},
			{ModuleID: 13, Module: access.ModuleFacilities},
		})
		names := []access.ModuleName{out[0].Module, out[1].Module, out[2].Module}
		Expect(names).To(Equal([]access.ModuleName{access.ModuleFacilities, access.ModulePatients, access.ModuleReports}))
	})

	It("unions role and direct sources and skips what is not in force", func() {
		out := module.FromGrants(
			[]grants.UserRole{{Role: nurse, IsActive: true}},
			[]grants.RoleModuleAssignment{
				{RoleID: nurse.ID, Module: patients, IsActive: true},
				{RoleID: nurse.ID, Module: archived, IsActive: true},
				{RoleID: nurse.ID, Module: reports, IsActive: false},
			},
			[]grants.UserModuleAssignment{
				{Module: reports, ExpiresAt: &past, IsActive: true},
				{Module: archived, IsActive: true},
			},
			now)
		Expect(out).To(HaveLen(1))
		Expect(out[0].Module).To(Equal(access.ModulePatients))
		Expect(out[0].Path()).To(Equal("/patients"))
	})

	It("drops role modules when the membership has expired", func() {
		out := module.FromGrants(
			[]grants.UserRole{{Role: nurse, ExpiresAt: &past, IsActive: true}},
			[]grants.RoleModuleAssignment{{RoleID: nurse.ID, Module: patients, IsActive: true}},
			nil, now)
		Expect(out).To(BeEmpty())
	})
})
