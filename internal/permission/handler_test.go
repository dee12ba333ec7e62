package permission_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/grants/grantstest"
	"github.com/frahmantamala/care-access/internal/permission"
	"github.com/frahmantamala/care-access/internal/transport"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Permission Handler", func() {
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
		if caller != uuid.Nil {
			req = req.WithContext(internal.ContextWithUserID(req.Context(), caller))
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		store = grantstest.NewStore()
		nurse := store.AddRole(access.RoleRegisteredNurse, "patients.read")
		store.AddPermission("reports.read")
		caller = uuid.New()
		target = uuid.New()
		store.AssignRole(caller, nurse, nil, nil)

		resolver := permission.NewResolver(store, permission.Config{CacheTTL: time.Minute}, nil, &recordingReporter{}, nil, testLogger)
		handler := permission.NewHandler(&transport.BaseHandler{Logger: testLogger}, resolver)
		router = chi.NewRouter()
		router.Get("/me/permissions", handler.GetMyPermissions)
		router.Get("/me/permissions/check", handler.CheckPermission)
		router.Post("/me/permissions/validate", handler.ValidatePermissions)
		router.Get("/admin/users/{userID}/permissions", handler.GetUserPermissions)
		router.Post("/admin/users/{userID}/permissions", handler.GrantPermission)
		router.Delete("/admin/users/{userID}/permissions/{permission}", handler.RevokePermission)
		router.Post("/admin/permissions/{permission}/refresh", handler.RefreshPermission)
	})

	It("lists the caller's effective permissions", func() {
		w := do(http.MethodGet, "/me/permissions", nil)
		Expect(w.Code).To(Equal(http.StatusOK))

		var resp permission.EffectivePermissionsResponse
		Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
		Expect(resp.Permissions).To(ConsistOf(permission.EffectivePermission{Permission: "patients.read", Source: permission.SourceRole}))
	})

	It("answers a point check", func() {
		w := do(http.MethodGet, "/me/permissions/check?permission=patients.read&facility_id=3", nil)
		Expect(w.Code).To(Equal(http.StatusOK))

		var resp permission.CheckResponse
		Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
		Expect(resp.Allowed).To(BeTrue())
		Expect(*resp.FacilityID).To(Equal(int64(3)))
	})

	It("rejects a check without a name or with a bad facility", func() {
		Expect(do(http.MethodGet, "/me/permissions/check", nil).Code).To(Equal(http.StatusBadRequest))
		Expect(do(http.MethodGet, "/me/permissions/check?permission=x&facility_id=-1", nil).Code).To(Equal(http.StatusBadRequest))
	})

	It("validates several names at once", func() {
		w := do(http.MethodPost, "/me/permissions/validate", permission.ValidateRequest{Permissions: []string{"patients.read", "reports.read"}})
		Expect(w.Code).To(Equal(http.StatusOK))

		var resp permission.ValidateResponse
		Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
		Expect(resp.Results).To(Equal(map[string]bool{"patients.read": true, "reports.read": false}))
	})

	It("rejects an empty validation request", func() {
		w := do(http.MethodPost, "/me/permissions/validate", permission.ValidateRequest{})
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("grants and revokes a direct permission", func() {
		w := do(http.MethodPost, "/admin/users/"+target.String()+"/permissions", permission.GrantRequest{Permission: "reports.read"})
		Expect(w.Code).To(Equal(http.StatusCreated))

		w = do(http.MethodGet, "/admin/users/"+target.String()+"/permissions", nil)
		var resp permission.EffectivePermissionsResponse
		Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
		Expect(resp.Permissions).To(HaveLen(1))
		Expect(resp.Permissions[0].Source).To(Equal(permission.SourceDirect))

		w = do(http.MethodDelete, "/admin/users/"+target.String()+"/permissions/reports.read", nil)
		Expect(w.Code).To(Equal(http.StatusNoContent))
	})

	It("returns 404 for an unknown permission", func() {
		w := do(http.MethodPost, "/admin/users/"+target.String()+"/permissions", permission.GrantRequest{Permission: "nope"})
		Expect(w.Code).To(Equal(http.StatusNotFound))
	})

	It("refreshes cached answers for every holder of a permission", func() {
		Expect(do(http.MethodGet, "/me/permissions/check?permission=patients.read", nil).Code).To(Equal(http.StatusOK))

		w := do(http.MethodPost, "/admin/permissions/patients.read/refresh", nil)
		Expect(w.Code).To(Equal(http.StatusOK))

		var resp permission.RefreshResponse
		Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
		Expect(resp).To(Equal(permission.RefreshResponse{Permission: "patients.read", Holders: 1}))
	})

	It("rejects refreshing a malformed or unknown permission", func() {
		Expect(do(http.MethodPost, "/admin/permissions/a|b/refresh", nil).Code).To(Equal(http.StatusBadRequest))
		Expect(do(http.MethodPost, "/admin/permissions/nope/refresh", nil).Code).To(Equal(http.StatusNotFound))
	})

	It("returns 401 without an authenticated user", func() {
		caller = uuid.Nil
		Expect(do(http.MethodGet, "/me/permissions", nil).Code).To(Equal(http.StatusUnauthorized))
	})

	It("returns 500 when permissions cannot be resolved", func() {
		store.SetShouldFail(true, nil)
		Expect(do(http.MethodGet, "/me/permissions", nil).Code).To(Equal(http.StatusInternalServerError))
	})
})
