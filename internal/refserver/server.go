package refserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hurrycache/hurrycache/internal/logger"
	"github.com/hurrycache/hurrycache/pkg/auth"
)

// Server is the reference metadata service: spec.md §6's CAS plane and
// cache plane, routed with chi exactly as the teacher's control plane is
// (internal/controlplane/api/router.go), authenticated with a bearer JWT
// instead of the teacher's username/password session.
type Server struct {
	store  Store
	bearer *auth.BearerProvider
}

// New constructs a Server backed by store, authenticating callers against
// tokens issued by bearer.
func New(store Store, bearer *auth.BearerProvider) *Server {
	return &Server{store: store, bearer: bearer}
}

// Router builds the chi router for the whole service.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cas", func(r chi.Router) {
			r.Use(s.requireBearer)
			r.Post("/bulk-check", s.handleBulkCheck)
			r.Post("/bulk-write", s.handleBulkWrite)
			r.Post("/bulk-read", s.handleBulkRead)
			r.Head("/{key}", s.handleHeadObject)
			r.Get("/{key}", s.handleGetObject)
			r.Put("/{key}", s.handlePutObject)
		})

		r.Route("/cache/cargo", func(r chi.Router) {
			r.Use(s.requireBearer)
			r.Post("/save", s.handleSave)
			r.Post("/restore", s.handleRestore)
			r.Post("/reset", s.handleReset)
			r.Get("/reset/preview", s.handleResetPreview)
		})
	})

	return r
}

// orgIDKey is the context key the requireBearer middleware stores the
// authenticated caller's organization ID under.
type contextKey string

const orgIDKey contextKey = "org_id"

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		result, err := s.bearer.Authenticate(r.Context(), []byte(token))
		if err != nil || !result.Authenticated {
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}

		ctx := withOrgID(r.Context(), result.Identity.OrgID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		return ""
	}
	return h[len(prefix):]
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debug("refserver request completed",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}
