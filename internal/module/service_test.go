package module_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/grants"
	"github.com/frahmantamala/care-access/internal/grants/grantstest"
	"github.com/frahmantamala/care-access/internal/module"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestModule(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Module Suite")
}

var testLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

type recordingReporter struct {
	mu    sync.Mutex
	count int
}

func (r *recordingReporter) ReportResolutionError(context.Context, string, string, uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
}

func (r *recordingReporter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

var _ = Describe("Module Resolver", func() {
	var (
		store    *grantstest.Store
		reporter *recordingReporter
		resolver *module.Resolver
		ctx      context.Context
		user     uuid.UUID
		now      time.Time

		nurse    grants.Role
		patients grants.Module
		reports  grants.Module
	)

	BeforeEach(func() {
		store = grantstest.NewStore()
		reporter = &recordingReporter{}
		now = time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
		resolver = module.NewResolver(store, module.Config{CacheTTL: time.Minute, CacheSize: 100}, nil, reporter, nil, testLogger).
			WithClock(func() time.Time { return now })
		ctx = context.Background()
		user = uuid.New()

		nurse = store.AddRole(access.RoleRegisteredNurse)
		patients = store.AddModule(access.ModulePatients, true)
		reports = store.AddModule(access.ModuleReports, true)
		Expect(store.CreateRoleModuleAssignment(ctx, nurse.ID, patients.ID)).To(Succeed())
	})

	Describe("HasModuleAccess", func() {
		It("follows role assignments", func() {
			store.AssignRole(user, nurse, nil, nil)
			Expect(resolver.HasModuleAccess(ctx, user, access.ModulePatients)).To(BeTrue())
			Expect(resolver.HasModuleAccess(ctx, user, access.ModuleReports)).To(BeFalse())
		})

		It("lets a super-administrator into every module, even unknown ones", func() {
			store.AssignRole(user, store.AddRole(access.RoleSuperAdmin), nil, nil)
			Expect(resolver.HasModuleAccess(ctx, user, access.ModuleReports)).To(BeTrue())
			Expect(resolver.HasModuleAccess(ctx, user, "nonexistent")).To(BeTrue())
		})

		It("does not extend a facility-scoped super-administrator to modules", func() {
			facility := int64(2)
			store.AssignRole(user, store.AddRole(access.RoleSuperAdmin), &facility, nil)
			Expect(resolver.HasModuleAccess(ctx, user, access.ModuleReports)).To(BeFalse())
		})

		It("excludes an expired direct assignment that is still active", func() {
			past := now.Add(-time.Minute)
			store.AssignModule(user, reports, &past, true)
			Expect(resolver.HasModuleAccess(ctx, user, access.ModuleReports)).To(BeFalse())
		})

		It("fails closed and reports when the store is down", func() {
			store.AssignRole(user, nurse, nil, nil)
			store.SetShouldFail(true, nil)
			Expect(resolver.HasModuleAccess(ctx, user, access.ModulePatients)).To(BeFalse())
			Expect(reporter.Count()).To(Equal(1))
		})
	})

	Describe("EffectiveModules", func() {
		It("collapses a module held by role and directly into one entry", func() {
			future := now.Add(time.Hour)
			store.AssignRole(user, nurse, nil, nil)
			store.AssignModule(user, patients, &future, true)
			store.AssignModule(user, reports, nil, true)

			list, err := resolver.EffectiveModules(ctx, user)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(Equal([]module.EffectiveModule{
				{ModuleID: patients.ID, Module: access.ModulePatients, Source: module.SourceRole},
				{ModuleID: reports.ID, Module: access.ModuleReports, Source: module.SourceDirect},
			}))
		})

		It("is cached per user", func() {
			store.AssignRole(user, nurse, nil, nil)
			_, err := resolver.EffectiveModules(ctx, user)
			Expect(err).NotTo(HaveOccurred())
			reads := store.Reads.Load()

			_, err = resolver.EffectiveModules(ctx, user)
			Expect(err).NotTo(HaveOccurred())
			Expect(resolver.HasModuleAccess(ctx, user, access.ModulePatients)).To(BeTrue())
			Expect(store.Reads.Load()).To(Equal(reads + 1))
		})
	})

	Describe("mutations", func() {
		It("reflects a direct assignment and its revocation immediately", func() {
			Expect(resolver.HasModuleAccess(ctx, user, access.ModuleReports)).To(BeFalse())

			_, err := resolver.AssignModuleToUser(ctx, user, access.ModuleReports, module.AssignInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(resolver.HasModuleAccess(ctx, user, access.ModuleReports)).To(BeTrue())

			n, err := resolver.RevokeModuleFromUser(ctx, user, access.ModuleReports, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(1)))
			Expect(resolver.HasModuleAccess(ctx, user, access.ModuleReports)).To(BeFalse())
		})

		It("invalidates every holder when a module is assigned to a role", func() {
			other := uuid.New()
			store.AssignRole(user, nurse, nil, nil)
			store.AssignRole(other, nurse, nil, nil)
			Expect(resolver.HasModuleAccess(ctx, user, access.ModuleReports)).To(BeFalse())
			Expect(resolver.HasModuleAccess(ctx, other, access.ModuleReports)).To(BeFalse())

			Expect(resolver.AssignModuleToRole(ctx, access.RoleRegisteredNurse, access.ModuleReports, nil)).To(Succeed())

			Expect(resolver.HasModuleAccess(ctx, user, access.ModuleReports)).To(BeTrue())
			Expect(resolver.HasModuleAccess(ctx, other, access.ModuleReports)).To(BeTrue())
		})

		It("rejects unknown roles, unknown modules and past expiries", func() {
			Expect(resolver.AssignModuleToRole(ctx, "ghost", access.ModuleReports, nil)).To(MatchError(internal.ErrRoleNotFound))
			_, err := resolver.AssignModuleToUser(ctx, user, "ghost", module.AssignInput{})
			Expect(err).To(MatchError(internal.ErrModuleNotFound))

			past := now.Add(-time.Hour)
			_, err = resolver.AssignModuleToUser(ctx, user, access.ModuleReports, module.AssignInput{ExpiresAt: &past})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeInvalidExpiry))
		})
	})

	Describe("catalog", func() {
		It("hides deactivated modules and drops them from every user's set", func() {
			store.AssignRole(user, nurse, nil, nil)
			Expect(resolver.HasModuleAccess(ctx, user, access.ModulePatients)).To(BeTrue())

			Expect(resolver.DeactivateModule(ctx, access.ModulePatients, nil)).To(Succeed())
			Expect(resolver.HasModuleAccess(ctx, user, access.ModulePatients)).To(BeFalse())

			active, err := resolver.ListModules(ctx, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(HaveLen(1))
			all, err := resolver.ListModules(ctx, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(2))

			Expect(resolver.ActivateModule(ctx, access.ModulePatients, nil)).To(Succeed())
			Expect(resolver.HasModuleAccess(ctx, user, access.ModulePatients)).To(BeTrue())
		})

		It("refuses duplicate module names", func() {
			_, err := resolver.CreateModule(ctx, "billing", "Billing")
			Expect(err).NotTo(HaveOccurred())
			_, err = resolver.CreateModule(ctx, "billing", "Billing")
			Expect(err).To(MatchError(internal.ErrModuleExists))
		})
	})
})
