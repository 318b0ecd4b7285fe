package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gocka/domain/core"
	"gocka/domain/stats"
	"gocka/internal"
	apperrors "gocka/internal/errors"
	"gocka/ports"
)

// maxBodyBytes bounds POST bodies; a million-element sequence fits comfortably
const maxBodyBytes = 8 << 20

// DefaultMaxResamples caps the resample count a client may request
const DefaultMaxResamples = 100000

// Server exposes the estimator and the stored reports over HTTP
type Server struct {
	router       *chi.Mux
	estimator    ports.EstimatorPort
	rngPort      ports.RNGPort
	repo         ports.ReportRepository
	params       stats.BootstrapParams
	seed         int64
	maxResamples int
	logger       *internal.Logger
}

// Config holds API server configuration
type Config struct {
	Params       stats.BootstrapParams // Defaults for POST /bootstrap
	Seed         int64
	MaxResamples int // Upper bound for POST /bootstrap, DefaultMaxResamples when zero
}

// NewServer creates the API server. repo may be nil, in which case the run
// and report endpoints are not mounted.
func NewServer(estimator ports.EstimatorPort, rngPort ports.RNGPort, repo ports.ReportRepository, config Config, logger *internal.Logger) *Server {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	if config.MaxResamples <= 0 {
		config.MaxResamples = DefaultMaxResamples
	}
	s := &Server{
		router:       chi.NewRouter(),
		estimator:    estimator,
		rngPort:      rngPort,
		repo:         repo,
		params:       config.Params,
		seed:         config.Seed,
		maxResamples: config.MaxResamples,
		logger:       logger.With("API"),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Post("/bootstrap", s.handleBootstrap)

	if s.repo != nil {
		s.router.Get("/runs", s.handleListRuns)
		s.router.Get("/runs/{runID}/reports", s.handleRunReports)
		s.router.Get("/reports/{reportID}/errors", s.handleReportErrors)
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// BootstrapRequest is the body of POST /bootstrap. Zero fields use the server defaults.
type BootstrapRequest struct {
	Results    []int   `json:"results"`
	Resamples  int     `json:"resamples,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Seed       *int64  `json:"seed,omitempty"`
}

func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	var req BootstrapRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, apperrors.InvalidInput(fmt.Sprintf("invalid request body: %v", err)))
		return
	}

	params := s.params
	if req.Resamples != 0 {
		params.Resamples = req.Resamples
	}
	if req.Confidence != 0 {
		params.Confidence = req.Confidence
	}
	if params.Resamples > s.maxResamples {
		s.writeError(w, apperrors.InvalidInput(fmt.Sprintf("resamples must be at most %d", s.maxResamples)))
		return
	}
	seed := s.seed
	if req.Seed != nil {
		seed = *req.Seed
	}

	src, err := s.rngPort.SeededStream(r.Context(), "bootstrap", seed)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rep, err := s.estimator.Estimate(r.Context(), req.Results, params, src)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, apperrors.InvalidInput("limit must be a positive integer"))
			return
		}
		limit = n
	}

	runs, err := s.repo.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (s *Server) handleRunReports(w http.ResponseWriter, r *http.Request) {
	runID, err := core.ParseRunID(chi.URLParam(r, "runID"))
	if err != nil {
		s.writeError(w, apperrors.InvalidInput(err.Error()))
		return
	}

	reports, err := s.repo.GetReports(r.Context(), runID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(reports) == 0 {
		s.writeError(w, apperrors.NotFound(fmt.Sprintf("run %s", runID)))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"run_id": runID, "reports": reports})
}

func (s *Server) handleReportErrors(w http.ResponseWriter, r *http.Request) {
	reportID, err := core.ParseReportID(chi.URLParam(r, "reportID"))
	if err != nil {
		s.writeError(w, apperrors.InvalidInput(err.Error()))
		return
	}

	rows, err := s.repo.GetErrorRows(r.Context(), reportID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"report_id": reportID, "rows": rows})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  apperrors.CodeFor(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
