package permission_test

import (
	"time"

	"github.com/frahmantamala/care-access/internal/grants"
	"github.com/frahmantamala/care-access/internal/permission"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Merge", func() {
	now := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	soon := now.Add(time.Hour)
	later := now.Add(24 * time.Hour)
	facility := int64(7)

	It("keeps the entry that lasts longer for the same permission and facility", func() {
		out := permission.Merge(
			[]permission.EffectivePermission{{Permission: "patients.read", Source: permission.SourceRole, ExpiresAt: &soon}},
			[]permission.EffectivePermission{{Permission: "patients.read", Source: permission.SourceDirect, ExpiresAt: &later}},
		)
		Expect(out).To(HaveLen(1))
		Expect(out[0].Source).To(Equal(permission.SourceDirect))
		Expect(out[0].ExpiresAt).To(Equal(&later))
	})

	It("treats a missing expiry as outlasting any date", func() {
		out := permission.Merge(
			[]permission.EffectivePermission{{Permission: "patients.read", Source: permission.SourceRole}},
			[]permission.EffectivePermission{{Permission: "patients.read", Source: permission.SourceDirect, ExpiresAt: &later}},
		)
		Expect(out).To(HaveLen(1))
		Expect(out[0].Source).To(Equal(permission.SourceRole))
		Expect(out[0].ExpiresAt).To(BeNil())
	})

	It("keeps the role source on equal expiry", func() {
		out := permission.Merge(
			[]permission.EffectivePermission{{Permission: "reports.read", Source: permission.SourceRole}},
			[]permission.EffectivePermission{{Permission: "reports.read", Source: permission.SourceDirect}},
		)
		Expect(out).To(ConsistOf(permission.EffectivePermission{Permission: "reports.read", Source: permission.SourceRole}))
	})

	It("keeps facility-scoped entries apart and orders them deterministically", func() {
		out := permission.Merge(
			[]permission.EffectivePermission{
				{Permission: "users.manage", Source: permission.SourceRole, FacilityID: &facility},
				{Permission: "patients.read", Source: permission.SourceRole},
			},
			[]permission.EffectivePermission{{Permission: "users.manage", Source: permission.SourceDirect}},
		)
		Expect(out).To(HaveLen(3))
		Expect(out[0].Permission).To(Equal("patients.read"))
		Expect(out[1].FacilityID).To(BeNil())
		Expect(out[2].FacilityID).To(Equal(&facility))
	})
})

var _ = Describe("EffectivePermission.Covers", func() {
	now := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	seven, eight := int64(7), int64(8)

	It("matches unscoped entries for any facility", func() {
		p := permission.EffectivePermission{Permission: "patients.read"}
		Expect(p.Covers("patients.read", nil, now)).To(BeTrue())
		Expect(p.Covers("patients.read", &seven, now)).To(BeTrue())
		Expect(p.Covers("patients.write", nil, now)).To(BeFalse())
	})

	It("matches scoped entries only for their facility", func() {
		p := permission.EffectivePermission{Permission: "patients.read", FacilityID: &seven}
		Expect(p.Covers("patients.read", &seven, now)).To(BeTrue())
		Expect(p.Covers("patients.read", &eight, now)).To(BeFalse())
		Expect(p.Covers("patients.read", nil, now)).To(BeFalse())
	})

	It("never matches at or after expiry", func() {
		p := permission.EffectivePermission{Permission: "patients.read", ExpiresAt: &now}
		Expect(p.Covers("patients.read", nil, now)).To(BeFalse())
	})
})

var _ = Describe("FromGrants", func() {
	now := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	facility := int64(4)

	nurse := grants.Role{ID: 1, Name: "registeredNurse"}
	manager := grants.Role{ID: 2, Name: "caseManager"}
	read := grants.Permission{ID: 10, Name: "patients.read"}
	reports := grants.Permission{ID: 11, Name: "reports.read"}
	facilities := grants.Permission{ID: 12, Name: "facilities.read"}

	rolePerms := []grants.RolePermission{
		{RoleID: nurse.ID, Permission: read},
		{RoleID: manager.ID, Permission: facilities},
	}

	It("inherits facility and expiry from the membership", func() {
		out := permission.FromGrants(
			[]grants.UserRole{{Role: nurse, FacilityID: &facility, ExpiresAt: &future, IsActive: true}},
			rolePerms, nil, now)
		Expect(out).To(ConsistOf(permission.EffectivePermission{
			Permission: "patients.read", Source: permission.SourceRole, FacilityID: &facility, ExpiresAt: &future,
		}))
	})

	It("ignores expired and inactive memberships and grants", func() {
		out := permission.FromGrants(
			[]grants.UserRole{
				{Role: nurse, ExpiresAt: &past, IsActive: true},
				{Role: manager, IsActive: false},
			},
			rolePerms,
			[]grants.UserPermissionGrant{
				{Permission: reports, ExpiresAt: &past, IsActive: true},
				{Permission: reports, IsActive: false},
			},
			now)
		Expect(out).To(BeEmpty())
	})

	It("adds direct grants to role-derived ones", func() {
		out := permission.FromGrants(
			[]grants.UserRole{{Role: nurse, IsActive: true}},
			rolePerms,
			[]grants.UserPermissionGrant{{Permission: reports, ExpiresAt: &future, IsActive: true}},
			now)
		Expect(out).To(HaveLen(2))
		Expect(out[0].Permission).To(Equal("patients.read"))
		Expect(out[1].Permission).To(Equal("reports.read"))
		Expect(out[1].Source).To(Equal(permission.SourceDirect))
	})
})
