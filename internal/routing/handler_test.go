package routing_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/grants/grantstest"
	"github.com/frahmantamala/care-access/internal/module"
	"github.com/frahmantamala/care-access/internal/preference"
	"github.com/frahmantamala/care-access/internal/role"
	"github.com/frahmantamala/care-access/internal/routing"
	"github.com/frahmantamala/care-access/internal/transport"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Routing Handler", func() {
	var (
		router *chi.Mux
		caller uuid.UUID
	)

	do := func(method, path string, body interface{}, user uuid.UUID) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		if user != uuid.Nil {
			req = req.WithContext(internal.ContextWithUserID(req.Context(), user))
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		caller = uuid.New()
		store := grantstest.NewStore()
		nurse := store.AddRole(access.RoleRegisteredNurse)
		patients := store.AddModule(access.ModulePatients, true)
		Expect(store.CreateRoleModuleAssignment(context.Background(), nurse.ID, patients.ID)).To(Succeed())
		store.AssignRole(caller, nurse, nil, nil)

		roles := role.NewService(store, nil, testLogger)
		modules := module.NewResolver(store, module.Config{CacheTTL: time.Minute}, nil, nil, nil, testLogger)
		prefs := preference.NewStore(preference.NewMemoryKV(), roles, preference.Config{}, testLogger)
		engine := routing.NewEngine(roles, modules, prefs, nil, routing.Config{}, nil, testLogger)

		handler := routing.NewHandler(&transport.BaseHandler{Logger: testLogger}, engine)
		router = chi.NewRouter()
		router.Get("/me/route", handler.GetBestRoute)
		router.Post("/me/route", handler.PerformRouting)
		router.Get("/me/route/session", handler.GetSession)
		router.Post("/me/navigation", handler.ReportNavigation)
	})

	It("computes the best route", func() {
		w := do(http.MethodGet, "/me/route", nil, caller)
		Expect(w.Code).To(Equal(http.StatusOK))

		var d routing.Decision
		Expect(json.NewDecoder(w.Body).Decode(&d)).To(Succeed())
		Expect(d.Path).To(Equal("/patients"))
		Expect(d.Rule).To(Equal(routing.RuleDefaultModule))
	})

	It("routes once and reports the session", func() {
		w := do(http.MethodPost, "/me/route", routing.PerformRoutingRequest{Location: "/"}, caller)
		Expect(w.Code).To(Equal(http.StatusOK))
		var result routing.Result
		Expect(json.NewDecoder(w.Body).Decode(&result)).To(Succeed())
		Expect(result.Outcome).To(Equal(routing.OutcomeNavigated))

		w = do(http.MethodPost, "/me/route", routing.PerformRoutingRequest{Location: "/"}, caller)
		Expect(json.NewDecoder(w.Body).Decode(&result)).To(Succeed())
		Expect(result.Outcome).To(Equal(routing.OutcomeCompleted))

		w = do(http.MethodPost, "/me/route", routing.PerformRoutingRequest{Location: "/", NewSession: true}, caller)
		Expect(json.NewDecoder(w.Body).Decode(&result)).To(Succeed())
		Expect(result.Outcome).To(Equal(routing.OutcomeNavigated))

		w = do(http.MethodGet, "/me/route/session", nil, caller)
		var view routing.SessionView
		Expect(json.NewDecoder(w.Body).Decode(&view)).To(Succeed())
		Expect(view.State).To(Equal(routing.StateNavigated))
		Expect(view.Location).To(Equal("/patients"))
	})

	It("rejects a relative location", func() {
		w := do(http.MethodPost, "/me/route", routing.PerformRoutingRequest{Location: "patients"}, caller)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("records navigation into a module", func() {
		w := do(http.MethodPost, "/me/navigation", routing.NavigationRequest{Module: "patients", Path: "/patients/42"}, caller)
		Expect(w.Code).To(Equal(http.StatusOK))

		var resp routing.NavigationResponse
		Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
		Expect(resp.Session.Location).To(Equal("/patients/42"))
		Expect(resp.Progress).To(HaveLen(1))

		w = do(http.MethodGet, "/me/route", nil, caller)
		var d routing.Decision
		Expect(json.NewDecoder(w.Body).Decode(&d)).To(Succeed())
		Expect(d.Path).To(Equal("/patients/42"))
	})

	It("rejects an unknown module name", func() {
		w := do(http.MethodPost, "/me/navigation", routing.NavigationRequest{Module: "Not A Module"}, caller)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("requires a user", func() {
		Expect(do(http.MethodGet, "/me/route", nil, uuid.Nil).Code).To(Equal(http.StatusUnauthorized))
	})
})
