package admin

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	goSentinel "github.com/MrEthical07/goSentinel"
	"github.com/MrEthical07/goSentinel/metrics/export/prometheus"
)

// RequestTimeout bounds every admin request.
const RequestTimeout = 60 * time.Second

var (
	errUnauthorized  = errors.New("admin token required")
	errAdminDisabled = errors.New("admin token not configured")
)

type handler struct {
	engine *goSentinel.Engine
	logger *zap.Logger
}

// NewRouter builds the admin API over engine. Every route except /healthz and
// /metrics requires "Authorization: Bearer <cfg.AdminToken>"; with no token
// configured those routes answer 401. CORS headers are only sent for
// cfg.AllowedOrigins.
func NewRouter(engine *goSentinel.Engine, logger *zap.Logger, cfg goSentinel.HTTPConfig) chi.Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{engine: engine, logger: logger}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(accessLog(logger, engine))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))

	if origins := cfg.AllowedOrigins; len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: !containsWildcard(origins),
			MaxAge:           300,
		}))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.respondWithJSON(w, http.StatusNotFound, errorResponse(nil, "Route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.respondWithJSON(w, http.StatusMethodNotAllowed, errorResponse(nil, "Method not allowed"))
	})

	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", prometheus.NewCollector(engine).Handler())

	r.Group(func(r chi.Router) {
		r.Use(h.requireToken(cfg.AdminToken))

		r.Get("/stats", h.stats)

		r.Route("/blocked", func(r chi.Router) {
			r.Get("/", h.listBlocked)
			r.Post("/", h.block)
			r.Get("/{ip}", h.lookupBlock)
			r.Delete("/{ip}", h.unblock)
		})
		r.Get("/suspicious", h.listSuspicious)
		r.Delete("/suspicious", h.clearSuspicious)
		r.Delete("/suspicious/{ip}", h.unflag)
		r.Delete("/attempts", h.clearAttempts)

		r.Get("/policy", h.getPolicy)
		r.Put("/policy", h.putPolicy)

		r.Route("/accounts/{userID}", func(r chi.Router) {
			r.Get("/", h.accountStatus)
			r.Post("/unlock", h.unlockAccount)
			r.Post("/failed-login", h.failedLogin)
			r.Post("/login", h.login)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.createSession)
			r.Post("/refresh", h.refreshSession)
			r.Post("/validate", h.validateSession)
			r.Post("/cleanup", h.cleanupSessions)
			r.Delete("/{userID}", h.expireSession)
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/", h.listEvents)
			r.Post("/", h.recordEvent)
			r.Post("/verify", h.verifyRecent)
			r.Get("/{id}", h.getEvent)
			r.Patch("/{id}/triage", h.triageEvent)
			r.Get("/{id}/verify", h.verifyEvent)
		})

		r.Route("/ledger", func(r chi.Router) {
			r.Get("/stats", h.ledgerStats)
			r.Get("/verify", h.verifyLedger)
			r.Get("/anchors", h.ledgerAnchors)
			r.Get("/anchors/{id}", h.lookupAnchor)
		})
	})

	return r
}

func (h *handler) requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				h.respondWithJSON(w, http.StatusUnauthorized, errorResponse(errAdminDisabled, "Admin API disabled"))
			})
		}
		want := []byte(token)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), want) != 1 {
				h.respondWithJSON(w, http.StatusUnauthorized, errorResponse(errUnauthorized, "Authentication required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func accessLog(logger *zap.Logger, engine *goSentinel.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info("admin request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("client_ip", engine.ClientIP(r.RemoteAddr, r.Header)),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "ok"))
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.Stats(r.Context())
	if err != nil {
		h.respondWithError(w, err, "Failed to collect stats")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(s, ""))
}
