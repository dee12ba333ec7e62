package module_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/grants/grantstest"
	"github.com/frahmantamala/care-access/internal/module"
	"github.com/frahmantamala/care-access/internal/transport"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Module Handler", func() {
	var (
		store  *grantstest.Store
		router *chi.Mux
		caller uuid.UUID
		target uuid.UUID
	)

	do := func(method, path string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		req = req.WithContext(internal.ContextWithUserID(req.Context(), caller))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		store = grantstest.NewStore()
		store.AddRole(access.RoleCaseManager)
		store.AddModule(access.ModuleFacilities, true)
		store.AddModule(access.ModuleReports, true)
		caller = uuid.New()
		target = uuid.New()

		resolver := module.NewResolver(store, module.Config{}, nil, &recordingReporter{}, nil, testLogger)
		handler := module.NewHandler(&transport.BaseHandler{Logger: testLogger}, resolver)
		router = chi.NewRouter()
		router.Get("/modules", handler.GetModules)
		router.Get("/me/modules", handler.GetMyModules)
		router.Get("/me/modules/{module}/access", handler.CheckModuleAccess)
		router.Post("/admin/modules", handler.CreateModule)
		router.Delete("/admin/modules/{module}", handler.DeactivateModule)
		router.Post("/admin/modules/{module}/activate", handler.ActivateModule)
		router.Get("/admin/users/{userID}/modules", handler.GetUserModules)
		router.Post("/admin/users/{userID}/modules", handler.AssignModuleToUser)
		router.Delete("/admin/users/{userID}/modules/{module}", handler.RevokeModuleFromUser)
		router.Post("/admin/roles/{role}/modules", handler.AssignModuleToRole)
	})

	It("lists the active catalog", func() {
		Expect(do(http.MethodDelete, "/admin/modules/reports", nil).Code).To(Equal(http.StatusNoContent))

		w := do(http.MethodGet, "/modules", nil)
		Expect(w.Code).To(Equal(http.StatusOK))
		var resp module.ModulesResponse
		Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
		Expect(resp.Modules).To(HaveLen(1))
		Expect(resp.Modules[0].Name).To(Equal(access.ModuleFacilities))
	})

	It("assigns a module directly and reports access", func() {
		w := do(http.MethodPost, "/admin/users/"+caller.String()+"/modules", module.AssignModuleRequest{Module: "reports"})
		Expect(w.Code).To(Equal(http.StatusCreated))

		w = do(http.MethodGet, "/me/modules/reports/access", nil)
		Expect(w.Code).To(Equal(http.StatusOK))
		var resp module.AccessResponse
		Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
		Expect(resp.Allowed).To(BeTrue())
		Expect(resp.Path).To(Equal("/reports"))

		Expect(do(http.MethodDelete, "/admin/users/"+caller.String()+"/modules/reports", nil).Code).To(Equal(http.StatusNoContent))
		w = do(http.MethodGet, "/me/modules", nil)
		var mine module.EffectiveModulesResponse
		Expect(json.NewDecoder(w.Body).Decode(&mine)).To(Succeed())
		Expect(mine.Modules).To(BeEmpty())
	})

	It("entitles role holders", func() {
		cm, _ := store.RoleByName(context.Background(), access.RoleCaseManager)
		store.AssignRole(target, *cm, nil, nil)

		w := do(http.MethodPost, "/admin/roles/caseManager/modules", module.AssignRoleModuleRequest{Module: "facilities"})
		Expect(w.Code).To(Equal(http.StatusNoContent))

		w = do(http.MethodGet, "/admin/users/"+target.String()+"/modules", nil)
		var resp module.EffectiveModulesResponse
		Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
		Expect(resp.Modules).To(HaveLen(1))
		Expect(resp.Modules[0].Source).To(Equal(module.SourceRole))
	})

	It("maps catalog errors to HTTP statuses", func() {
		Expect(do(http.MethodPost, "/admin/modules", module.CreateModuleRequest{Name: "reports"}).Code).To(Equal(http.StatusConflict))
		Expect(do(http.MethodPost, "/admin/modules", module.CreateModuleRequest{Name: "9bad"}).Code).To(Equal(http.StatusBadRequest))
		Expect(do(http.MethodDelete, "/admin/modules/ghost", nil).Code).To(Equal(http.StatusNotFound))
		Expect(do(http.MethodPost, "/admin/roles/ghost/modules", module.AssignRoleModuleRequest{Module: "reports"}).Code).To(Equal(http.StatusNotFound))
		Expect(do(http.MethodPost, "/admin/modules", module.CreateModuleRequest{Name: "billing"}).Code).To(Equal(http.StatusCreated))
	})
})
