package rest_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/frahmantamala/care-access/api"
	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/internal/auth"
	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/grants/grantstest"
	"github.com/frahmantamala/care-access/internal/module"
	"github.com/frahmantamala/care-access/internal/permission"
	"github.com/frahmantamala/care-access/internal/preference"
	"github.com/frahmantamala/care-access/internal/role"
	"github.com/frahmantamala/care-access/internal/routing"
	"github.com/frahmantamala/care-access/internal/transport"
	"github.com/frahmantamala/care-access/internal/transport/middleware"
	"github.com/frahmantamala/care-access/internal/transport/rest"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestRest(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "REST Suite")
}

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

const secret = "router-test-secret-of-at-least-32-bytes"

var _ = Describe("Router", func() {
	var (
		router  *chi.Mux
		tokens  *auth.JWTTokenGenerator
		db      *sql.DB
		mock    sqlmock.Sqlmock
		admin   uuid.UUID
		nurse   uuid.UUID
		limiter internal.RateLimitConfig
	)

	build := func() {
		store := grantstest.NewStore()
		superAdmin := store.AddRole(access.RoleSuperAdmin)
		nurseRole := store.AddRole(access.RoleRegisteredNurse)
		patients := store.AddModule(access.ModulePatients, true)
		store.AddModule(access.ModuleUsers, true)
		Expect(store.CreateRoleModuleAssignment(context.Background(), nurseRole.ID, patients.ID)).To(Succeed())
		store.AssignRole(admin, superAdmin, nil, nil)
		store.AssignRole(nurse, nurseRole, nil, nil)

		base := transport.NewBaseHandler(testLogger)
		roles := role.NewService(store, nil, testLogger)
		perms := permission.NewResolver(store, permission.Config{}, nil, nil, nil, testLogger)
		modules := module.NewResolver(store, module.Config{}, nil, nil, nil, testLogger)
		prefs := preference.NewStore(preference.NewMemoryKV(), roles, preference.Config{}, testLogger)
		engine := routing.NewEngine(roles, modules, prefs, nil, routing.Config{}, nil, testLogger)

		validator, err := middleware.NewOpenAPIValidator(context.Background(), api.OpenAPISpec)
		Expect(err).NotTo(HaveOccurred())

		router = chi.NewRouter()
		rest.RegisterAllRoutes(router, rest.Handlers{
			Auth:       auth.NewHandler(base, tokens),
			Role:       role.NewHandler(base, roles),
			Permission: permission.NewHandler(base, perms),
			Module:     module.NewHandler(base, modules),
			Preference: preference.NewHandler(base, prefs),
			Routing:    routing.NewHandler(base, engine),
		}, rest.Options{
			Health:          map[string]rest.Check{"postgres": db.PingContext},
			Permissions:     perms,
			Modules:         modules,
			AdminPermission: internal.DefaultAdminPerm,
			RateLimit:       limiter,
			OpenAPI:         validator,
			Logger:          testLogger,
		})
	}

	do := func(method, path string, body interface{}, user uuid.UUID) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		if user != uuid.Nil {
			signed, _, err := tokens.GenerateAccessToken(user)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Bearer "+signed)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		var err error
		db, mock, err = sqlmock.New(sqlmock.MonitorPingsOption(true))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(db.Close)

		tokens = auth.NewJWTTokenGenerator(secret, time.Minute)
		admin = uuid.New()
		nurse = uuid.New()
		limiter = internal.RateLimitConfig{}
		build()
	})

	Describe("health", func() {
		It("is healthy when the database answers", func() {
			mock.ExpectPing()
			w := do(http.MethodGet, "/api/v1/health", nil, uuid.Nil)
			Expect(w.Code).To(Equal(http.StatusOK))

			var resp rest.HealthResponse
			Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
			Expect(resp.Components).To(HaveKeyWithValue("postgres", HaveField("Status", rest.HealthHealthy)))
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})

		It("reports an unreachable database", func() {
			mock.ExpectPing().WillReturnError(errors.New("connection refused"))
			w := do(http.MethodGet, "/api/v1/health", nil, uuid.Nil)
			Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(w.Body.String()).To(ContainSubstring("connection refused"))
		})

		It("answers ping without a token", func() {
			Expect(do(http.MethodGet, "/api/v1/ping", nil, uuid.Nil).Code).To(Equal(http.StatusOK))
		})
	})

	It("serves the API document", func() {
		w := do(http.MethodGet, "/openapi.yml", nil, uuid.Nil)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring("Care Access API"))
	})

	It("echoes a request id", func() {
		w := do(http.MethodGet, "/api/v1/ping", nil, uuid.Nil)
		Expect(w.Header().Get(middleware.RequestIDHeader)).NotTo(BeEmpty())
	})

	It("requires a token for user routes", func() {
		Expect(do(http.MethodGet, "/api/v1/me/route", nil, uuid.Nil).Code).To(Equal(http.StatusUnauthorized))
	})

	It("routes an authenticated user", func() {
		w := do(http.MethodGet, "/api/v1/me", nil, nurse)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring(nurse.String()))

		w = do(http.MethodPost, "/api/v1/me/route", routing.PerformRoutingRequest{Location: "/"}, nurse)
		Expect(w.Code).To(Equal(http.StatusOK))
		var result routing.Result
		Expect(json.NewDecoder(w.Body).Decode(&result)).To(Succeed())
		Expect(result.Session.Decision.Path).To(Equal("/patients"))
	})

	It("rejects requests the API document does not allow", func() {
		w := do(http.MethodPost, "/api/v1/me/route", map[string]string{"location": "patients"}, nurse)
		Expect(w.Code).To(Equal(http.StatusBadRequest))

		w = do(http.MethodGet, "/api/v1/me/permissions/check?permission=x&facility_id=zero", nil, nurse)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	Describe("admin routes", func() {
		It("forbids users without the admin permission", func() {
			w := do(http.MethodPost, "/api/v1/admin/modules", module.CreateModuleRequest{Name: "billing"}, nurse)
			Expect(w.Code).To(Equal(http.StatusForbidden))
		})

		It("lets a super admin manage modules and users", func() {
			w := do(http.MethodPost, "/api/v1/admin/modules", module.CreateModuleRequest{Name: "billing"}, admin)
			Expect(w.Code).To(Equal(http.StatusCreated))

			w = do(http.MethodPost, "/api/v1/admin/users/"+nurse.String()+"/modules", module.AssignModuleRequest{Module: "billing"}, admin)
			Expect(w.Code).To(Equal(http.StatusCreated))

			w = do(http.MethodGet, "/api/v1/me/modules/billing/access", nil, nurse)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring(`"allowed":true`))
		})
	})

	It("limits request rate per user", func() {
		limiter = internal.RateLimitConfig{Enabled: true, Requests: 2, Window: time.Minute}
		build()

		Expect(do(http.MethodGet, "/api/v1/me/roles", nil, nurse).Code).To(Equal(http.StatusOK))
		Expect(do(http.MethodGet, "/api/v1/me/roles", nil, nurse).Code).To(Equal(http.StatusOK))
		Expect(do(http.MethodGet, "/api/v1/me/roles", nil, nurse).Code).To(Equal(http.StatusTooManyRequests))
		Expect(do(http.MethodGet, "/api/v1/me/roles", nil, admin).Code).To(Equal(http.StatusOK))
	})
})
