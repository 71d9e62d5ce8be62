package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/liamcoop/vouchermacro/business"
	"github.com/liamcoop/vouchermacro/internal/config"
	"github.com/liamcoop/vouchermacro/internal/logger"
	"github.com/liamcoop/vouchermacro/macro"
	"github.com/liamcoop/vouchermacro/store"
)

// maxUploadBytes bounds template and fragment uploads.
const maxUploadBytes = 10 << 20

type Server struct {
	store     store.Store
	templates *store.TemplateCache
	manager   *business.Manager
	ping      func(context.Context) error
	router    *chi.Mux
}

// NewServer wires the HTTP API over an existing store. ping reports database
// health and may be nil.
func NewServer(s store.Store, templates *store.TemplateCache, manager *business.Manager, ping func(context.Context) error) *Server {
	srv := &Server{
		store:     s,
		templates: templates,
		manager:   manager,
		ping:      ping,
	}
	srv.setupRoutes()
	return srv
}

// NewServerWithDB builds the PostgreSQL-backed server and loads every
// business policy.
func NewServerWithDB(ctx context.Context, db *sql.DB, cfg *config.Config) (*Server, error) {
	s := store.NewPostgresStore(db)
	templates := store.NewTemplateCache(s, cfg.GetCacheTTL())
	manager := business.NewManager(s, templates, business.Config{
		TemplateName:  cfg.Macro.TemplateName,
		ArtifactName:  cfg.Macro.ArtifactName,
		PublicBaseURL: cfg.Server.PublicBaseURL,
	}, logger.Logger)

	if err := manager.LoadAll(ctx); err != nil {
		return nil, fmt.Errorf("failed to load businesses: %w", err)
	}

	return NewServer(s, templates, manager, db.PingContext), nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)

	r.Route("/api/v1/businesses", func(r chi.Router) {
		r.Get("/", s.handleListBusinesses)

		r.Route("/{business}", func(r chi.Router) {
			r.Get("/", s.handleGetBusiness)
			r.Put("/", s.handlePutBusiness)
			r.Delete("/", s.handleDeleteBusiness)
			r.Get("/ledgers", s.handleListLedgers)
			r.Post("/macro", s.handleProvision)
		})
	})

	r.Put("/api/v1/templates/{name}", s.handlePutTemplate)
	r.Put("/api/v1/fragments/{kind}/{index}", s.handlePutFragment)
	r.Get("/api/v1/artifacts/{artifactId}", s.handleGetArtifact)

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs each request through the service logger and feeds the
// HTTP status counters.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.RecordHTTPStatus(status)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
				"requestId", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Error: err.Error()})
			return
		}
	}

	list, err := s.manager.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list businesses", err)
		return
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:     "healthy",
		Businesses: len(list),
		Stats:      logger.Snapshot(),
	})
}

func (s *Server) handleListBusinesses(w http.ResponseWriter, r *http.Request) {
	list, err := s.manager.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list businesses", err)
		return
	}
	if list == nil {
		list = []*store.Business{}
	}
	respondJSON(w, http.StatusOK, BusinessesListResponse{Businesses: list})
}

func (s *Server) handleGetBusiness(w http.ResponseWriter, r *http.Request) {
	b, err := s.manager.Get(r.Context(), businessParam(r))
	if err != nil {
		respondError(w, statusFor(err), "failed to get business", err)
		return
	}
	respondJSON(w, http.StatusOK, b)
}

func (s *Server) handlePutBusiness(w http.ResponseWriter, r *http.Request) {
	var req RegisterBusinessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	b, err := s.manager.Register(r.Context(), businessParam(r), req.Identity, req.Policy)
	if err != nil {
		respondError(w, statusFor(err), "failed to register business", err)
		return
	}
	respondJSON(w, http.StatusOK, b)
}

func (s *Server) handleDeleteBusiness(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Delete(r.Context(), businessParam(r)); err != nil {
		respondError(w, statusFor(err), "failed to delete business", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListLedgers(w http.ResponseWriter, r *http.Request) {
	name := businessParam(r)
	ledgers, err := s.manager.Ledgers(r.Context(), name)
	if err != nil {
		respondError(w, statusFor(err), "failed to list ledgers", err)
		return
	}
	if ledgers == nil {
		ledgers = []*store.Ledger{}
	}
	respondJSON(w, http.StatusOK, LedgersResponse{Business: name, Ledgers: ledgers})
}

func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	var req business.ProvisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	req.Business = businessParam(r)

	res, err := s.manager.Provision(r.Context(), req)
	if res != nil && res.Compile != nil {
		logger.RecordCompile(res.Compile.Success)
	}
	if err != nil {
		if res != nil && res.Compile != nil {
			respondJSON(w, statusFor(err), res)
			return
		}
		respondError(w, statusFor(err), "failed to provision macro", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handlePutTemplate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "failed to read template", err)
		return
	}
	if len(body) == 0 {
		respondError(w, http.StatusBadRequest, "template is empty", nil)
		return
	}

	if err := s.store.PutTemplate(r.Context(), name, string(body)); err != nil {
		respondError(w, statusFor(err), "failed to store template", err)
		return
	}
	s.templates.InvalidateTemplate(name)

	respondJSON(w, http.StatusOK, TemplateResponse{
		Name:         name,
		Bytes:        len(body),
		Placeholders: macro.CountPlaceholders(string(body)),
	})
}

func (s *Server) handlePutFragment(w http.ResponseWriter, r *http.Request) {
	kind, err := macro.ParseFragmentKind(chi.URLParam(r, "kind"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid fragment kind", err)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid fragment index", err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "failed to read fragment", err)
		return
	}

	if err := s.store.PutFragment(r.Context(), kind, index, string(body)); err != nil {
		respondError(w, statusFor(err), "failed to store fragment", err)
		return
	}
	s.templates.InvalidateFragments()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetArtifact(r.Context(), chi.URLParam(r, "artifactId"))
	if err != nil {
		respondError(w, statusFor(err), "artifact not found", err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.Content)
}

func businessParam(r *http.Request) string {
	name := chi.URLParam(r, "business")
	if unescaped, err := url.PathUnescape(name); err == nil {
		return unescaped
	}
	return name
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, macro.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, macro.ErrTemplateMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	if status >= 500 {
		logger.Error(message, "status", status, "error", err)
	}
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}
