package preference_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/preference"
	"github.com/frahmantamala/care-access/internal/transport"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Preference Handler", func() {
	var (
		router *chi.Mux
		caller uuid.UUID
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
		caller = uuid.New()
		store := preference.NewStore(preference.NewMemoryKV(), &stubRoles{roles: []access.RoleName{access.RoleRegisteredNurse}}, preference.Config{}, testLogger)
		handler := preference.NewHandler(&transport.BaseHandler{Logger: testLogger}, store)
		router = chi.NewRouter()
		router.Get("/me/preferences", handler.GetPreferences)
		router.Patch("/me/preferences", handler.UpdatePreferences)
		router.Get("/me/progress", handler.GetProgress)
		router.Post("/me/progress", handler.RecordProgress)
	})

	It("returns role-derived defaults", func() {
		w := do(http.MethodGet, "/me/preferences", nil)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring(`"default_module":"patients"`))
	})

	It("applies a partial update", func() {
		dashboard := "unified"
		w := do(http.MethodPatch, "/me/preferences", preference.UpdatePreferencesRequest{PreferredDashboard: &dashboard})
		Expect(w.Code).To(Equal(http.StatusOK))

		var prefs preference.Preferences
		Expect(json.NewDecoder(w.Body).Decode(&prefs)).To(Succeed())
		Expect(prefs.PreferredDashboard).To(Equal(preference.DashboardUnified))
		Expect(prefs.AutoRoute).To(BeTrue())
	})

	It("rejects empty and malformed updates", func() {
		Expect(do(http.MethodPatch, "/me/preferences", preference.UpdatePreferencesRequest{}).Code).To(Equal(http.StatusBadRequest))
		bad := "sideways"
		Expect(do(http.MethodPatch, "/me/preferences", preference.UpdatePreferencesRequest{PreferredDashboard: &bad}).Code).To(Equal(http.StatusBadRequest))
		module := "../etc"
		Expect(do(http.MethodPatch, "/me/preferences", preference.UpdatePreferencesRequest{DefaultModule: &module}).Code).To(Equal(http.StatusBadRequest))
	})

	It("records and lists progress", func() {
		w := do(http.MethodPost, "/me/progress", preference.RecordProgressRequest{Module: "patients", Path: "/patients/42"})
		Expect(w.Code).To(Equal(http.StatusOK))

		w = do(http.MethodGet, "/me/progress", nil)
		var resp preference.ProgressResponse
		Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
		Expect(resp.Progress).To(HaveLen(1))
		Expect(resp.Progress[0].LastPath).To(Equal("/patients/42"))
	})

	It("requires an authenticated user", func() {
		caller = uuid.Nil
		Expect(do(http.MethodGet, "/me/progress", nil).Code).To(Equal(http.StatusUnauthorized))
	})
})
