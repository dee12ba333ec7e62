package role_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/grants/grantstest"
	"github.com/frahmantamala/care-access/internal/role"
	"github.com/frahmantamala/care-access/internal/transport"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Role Handler", func() {
	var (
		store  *grantstest.Store
		router *chi.Mux
		admin  uuid.UUID
		target uuid.UUID
	)

	do := func(method, path string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		req = req.WithContext(internal.ContextWithUserID(req.Context(), admin))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		store = grantstest.NewStore()
		store.AddRole(access.RoleRegisteredNurse)
		admin = uuid.New()
		target = uuid.New()

		handler := role.NewHandler(&transport.BaseHandler{Logger: testLogger}, role.NewService(store, nil, testLogger))
		router = chi.NewRouter()
		router.Get("/roles", handler.ListRoles)
		router.Get("/me/roles", handler.GetMyRoles)
		router.Get("/admin/users/{userID}/roles", handler.GetUserRoles)
		router.Post("/admin/users/{userID}/roles", handler.AssignRole)
		router.Delete("/admin/users/{userID}/roles/{role}", handler.RemoveRole)
	})

	It("assigns, lists and removes a membership", func() {
		w := do(http.MethodPost, "/admin/users/"+target.String()+"/roles", role.AssignRoleRequest{Role: "registeredNurse"})
		Expect(w.Code).To(Equal(http.StatusCreated))

		w = do(http.MethodGet, "/admin/users/"+target.String()+"/roles", nil)
		Expect(w.Code).To(Equal(http.StatusOK))
		var resp role.MembershipsResponse
		Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
		Expect(resp.Memberships).To(HaveLen(1))
		Expect(resp.Memberships[0].Role).To(Equal(access.RoleRegisteredNurse))

		w = do(http.MethodDelete, "/admin/users/"+target.String()+"/roles/registeredNurse", nil)
		Expect(w.Code).To(Equal(http.StatusNoContent))
	})

	It("rejects malformed user ids and role names", func() {
		w := do(http.MethodPost, "/admin/users/not-a-uuid/roles", role.AssignRoleRequest{Role: "registeredNurse"})
		Expect(w.Code).To(Equal(http.StatusBadRequest))

		w = do(http.MethodPost, "/admin/users/"+target.String()+"/roles", role.AssignRoleRequest{Role: "bad name"})
		Expect(w.Code).To(Equal(http.StatusBadRequest))

		w = do(http.MethodPost, "/admin/users/"+target.String()+"/roles", map[string]string{})
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 404 for unknown roles", func() {
		w := do(http.MethodPost, "/admin/users/"+target.String()+"/roles", role.AssignRoleRequest{Role: "auditor"})
		Expect(w.Code).To(Equal(http.StatusNotFound))
	})

	It("lists the caller's own roles", func() {
		w := do(http.MethodPost, "/admin/users/"+admin.String()+"/roles", role.AssignRoleRequest{Role: "registeredNurse"})
		Expect(w.Code).To(Equal(http.StatusCreated))

		w = do(http.MethodGet, "/me/roles", nil)
		Expect(w.Code).To(Equal(http.StatusOK))
		var resp role.RolesResponse
		Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
		Expect(resp.Roles).To(ConsistOf(access.RoleRegisteredNurse))
	})

	It("requires an authenticated caller", func() {
		req := httptest.NewRequest(http.MethodGet, "/me/roles", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		Expect(w.Code).To(Equal(http.StatusUnauthorized))
	})
})
