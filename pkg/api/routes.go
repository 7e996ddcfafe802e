package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// resource groups the handlers of a REST collection. Nil handlers are
// not routed.
type resource struct {
	list   http.HandlerFunc
	create http.HandlerFunc
	get    http.HandlerFunc
	update http.HandlerFunc
	remove http.HandlerFunc
	// item mounts extra routes under /{id}.
	item func(r chi.Router)
}

// mount registers the collection at path and its items at path/{id}.
// PUT and PATCH share the update handler, which tells them apart by
// method.
func (res resource) mount(r chi.Router, path string) {
	r.Route(path, func(r chi.Router) {
		if res.list != nil {
			r.Get("/", res.list)
		}

		if res.create != nil {
			r.Post("/", res.create)
		}

		r.Route("/{id}", func(r chi.Router) {
			if res.get != nil {
				r.Get("/", res.get)
			}

			if res.update != nil {
				r.Put("/", res.update)
				r.Patch("/", res.update)
			}

			if res.remove != nil {
				r.Delete("/", res.remove)
			}

			if res.item != nil {
				res.item(r)
			}
		})
	})
}

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.StripSlashes)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	if s.cfg.Server.Metrics {
		s.initMetrics()
		r.Use(s.metrics.middleware)
		r.Method(http.MethodGet, "/metrics", s.metricsHandler())
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/auth", func(r chi.Router) {
			if s.cfg.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(s.cfg.Server.RateLimit.Auth))
			}

			r.Post("/login", s.handleLogin)
			r.Post("/logout", s.handleLogout)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Get("/me", s.handleMe)

				r.Post("/api-keys", s.handleCreateAPIKey)
				r.Get("/api-keys", s.handleListMyAPIKeys)
				r.Delete("/api-keys/{id}", s.handleDeleteMyAPIKey)
			})
		})

		// Resource endpoints.
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			if s.cfg.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(s.cfg.Server.RateLimit.Authenticated))
			}

			r.Use(s.requireWriter)

			// Inventory.
			resource{
				list:   s.handleListCapabilities,
				create: s.handleCreateCapability,
				get:    s.handleGetCapability,
				update: s.handleUpdateCapability,
				remove: s.handleDeleteCapability,
			}.mount(r, "/capabilities")

			resource{
				list:   s.handleListRelays,
				create: s.handleCreateRelay,
				get:    s.handleGetRelay,
				update: s.handleUpdateRelay,
				remove: s.handleDeleteRelay,
			}.mount(r, "/relays")

			resource{
				list:   s.handleListTestPCs,
				create: s.handleCreateTestPC,
				get:    s.handleGetTestPC,
				update: s.handleUpdateTestPC,
				remove: s.handleDeleteTestPC,
			}.mount(r, "/test-pcs")

			resource{
				list:   s.handleListBoards,
				create: s.handleCreateBoard,
				get:    s.handleGetBoard,
				update: s.handleUpdateBoard,
				remove: s.handleDeleteBoard,
				item: func(r chi.Router) {
					r.Get("/logs", s.handleListBoardLogs)
					r.Post("/logs", s.handleCreateBoardLog)
				},
			}.mount(r, "/boards")

			resource{
				list: s.handleListPCStats,
				get:  s.handleGetPCStats,
			}.mount(r, "/pc-stats")

			// Test cases.
			resource{
				list:   s.handleListTestCases,
				create: s.handleCreateTestCase,
				get:    s.handleGetTestCase,
				update: s.handleUpdateTestCase,
				remove: s.handleDeleteTestCase,
			}.mount(r, "/test-cases")

			resource{
				list:   s.handleListTestTypes,
				create: s.handleCreateTestType,
				get:    s.handleGetTestType,
				update: s.handleUpdateTestType,
				remove: s.handleDeleteTestType,
			}.mount(r, "/test-types")

			resource{
				list:   s.handleListLabels,
				create: s.handleCreateLabel,
				get:    s.handleGetLabel,
				update: s.handleUpdateLabel,
				remove: s.handleDeleteLabel,
			}.mount(r, "/labels")

			// Execution.
			r.Group(func(r chi.Router) {
				r.Use(s.requireTestRunner)

				resource{
					list:   s.handleListTestRuns,
					create: s.handleCreateTestRun,
					get:    s.handleGetTestRun,
					update: s.handleUpdateTestRun,
					remove: s.handleDeleteTestRun,
					item: func(r chi.Router) {
						r.Post("/results", s.handleCreateTestResult)
					},
				}.mount(r, "/test-runs")

				resource{
					list:   s.handleListTestScenarios,
					create: s.handleCreateTestScenario,
					get:    s.handleGetTestScenario,
					update: s.handleUpdateTestScenario,
					remove: s.handleDeleteTestScenario,
				}.mount(r, "/test-scenarios")
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Use(s.requireRole("admin"))

			if s.cfg.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(s.cfg.Server.RateLimit.Authenticated))
			}

			r.Get("/users", s.handleListUsers)
			r.Post("/users", s.handleCreateUser)
			r.Put("/users/{id}", s.handleUpdateUser)
			r.Delete("/users/{id}", s.handleDeleteUser)

			r.Get("/sessions", s.handleListSessions)
			r.Delete("/sessions/{id}", s.handleDeleteSessionByID)

			r.Get("/api-keys", s.handleListAllAPIKeys)
			r.Delete("/api-keys/{id}", s.handleDeleteAPIKey)

			r.Get("/test-results", s.handleAdminTestResults)
			r.Get("/board-logs", s.handleAdminBoardLogs)
		})
	})

	return r
}

// corsMiddleware returns a CORS handler configured from the API config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods: []string{
			"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS",
		},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	origins := s.cfg.Server.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Reflect the requesting origin so credentials work from any origin.
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
