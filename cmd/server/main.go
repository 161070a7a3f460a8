package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/dispatch/conditions"
	"github.com/liamcoop/dispatch/dispatch"
	"github.com/liamcoop/dispatch/internal/logger"
)

type Server struct {
	db           *sql.DB
	repo         *dispatch.PostgresDetectorRepository
	registry     *dispatch.SourceTypeRegistry
	engine       *dispatch.Engine
	evaluator    *conditions.Evaluator
	promRegistry *prometheus.Registry
	router       *chi.Mux
}

func NewServer(databaseURL string, sourceTypes []string) (*Server, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewServerWithDB(db, sourceTypes)
}

// NewServerWithDB builds a server on an existing database connection.
// Each server carries its own metrics registry so several can coexist
// in one process.
func NewServerWithDB(db *sql.DB, sourceTypes []string) (*Server, error) {
	registry := dispatch.NewSourceTypeRegistry()
	for _, t := range sourceTypes {
		if err := registry.Register(t, dispatch.DefaultSourceTypeHandler); err != nil {
			return nil, fmt.Errorf("failed to register source type: %w", err)
		}
	}

	promRegistry := prometheus.NewRegistry()
	repo := dispatch.NewPostgresDetectorRepository(db)
	emitter := dispatch.NewPrometheusEmitter(promRegistry)

	engine, err := dispatch.NewEngine(registry, repo, emitter)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch engine: %w", err)
	}

	evaluator, err := conditions.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create condition evaluator: %w", err)
	}

	s := &Server{
		db:           db,
		repo:         repo,
		registry:     registry,
		engine:       engine,
		evaluator:    evaluator,
		promRegistry: promRegistry,
	}

	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)

	r.Post("/api/v1/dispatch", s.handleDispatch)

	r.Route("/api/v1/data-sources", func(r chi.Router) {
		r.Get("/", s.handleListDataSources)
		r.Post("/", s.handleCreateDataSource)

		r.Route("/{dataSourceId}", func(r chi.Router) {
			r.Get("/", s.handleGetDataSource)
			r.Put("/", s.handleUpdateDataSource)
			r.Delete("/", s.handleDeleteDataSource)
			r.Post("/detectors/{detectorId}", s.handleAttachDetector)
		})
	})

	r.Route("/api/v1/detectors", func(r chi.Router) {
		r.Post("/", s.handleCreateDetector)
		r.Delete("/", s.handleDeleteDetectors)

		r.Route("/{detectorId}", func(r chi.Router) {
			r.Get("/", s.handleGetDetector)
			r.Put("/", s.handleUpdateDetector)
		})
	})

	r.Handle("/metrics", promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}))

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"sourceTypes": s.registry.Types(),
	})
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Type == "" {
		respondError(w, http.StatusBadRequest, "type is required", nil)
		return
	}

	packets := make([]dispatch.DataPacket, 0, len(req.Packets))
	for _, p := range req.Packets {
		packets = append(packets, dispatch.DataPacket{SourceID: p.SourceID, Payload: p.Payload})
	}

	startTime := time.Now()

	results, err := s.engine.ProcessDataSources(r.Context(), packets, req.Type)
	if err != nil {
		if errors.Is(err, dispatch.ErrUnregisteredType) {
			respondError(w, http.StatusBadRequest, "unregistered source type", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "dispatch failed", err)
		return
	}

	response := DispatchResponse{
		Results: make([]PacketResult, 0, len(results)),
	}
	for _, pair := range results {
		pr := PacketResult{
			SourceID:  pair.Packet.SourceID,
			Detectors: make([]DetectorResult, 0, len(pair.Detectors)),
		}
		for _, d := range pair.Detectors {
			triggered, err := s.evaluator.EvaluateGroup(d.WorkflowConditionGroup, pair.Packet.Payload)
			if err != nil {
				// A misconfigured group should not fail the whole
				// batch; report the detector as not triggered.
				logger.Warn("condition group evaluation failed",
					"detector_id", d.ID, "error", err)
				triggered = false
			}
			pr.Detectors = append(pr.Detectors, DetectorResult{
				ID:        d.ID,
				Name:      d.Name,
				Type:      d.Type,
				Triggered: triggered,
			})
		}
		response.Results = append(response.Results, pr)
	}
	response.DispatchTime = time.Since(startTime).String()

	respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleCreateDataSource(w http.ResponseWriter, r *http.Request) {
	var req CreateDataSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.SourceID == "" || req.Type == "" {
		respondError(w, http.StatusBadRequest, "sourceId and type are required", nil)
		return
	}

	ds := &dispatch.DataSource{
		ID:       uuid.New().String(),
		SourceID: req.SourceID,
		Type:     req.Type,
	}

	if err := s.repo.CreateDataSource(r.Context(), ds); err != nil {
		respondError(w, http.StatusBadRequest, "failed to create data source", err)
		return
	}

	respondJSON(w, http.StatusCreated, dataSourceResponse(ds))
}

func (s *Server) handleListDataSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.repo.ListDataSources(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list data sources", err)
		return
	}

	list := make([]DataSourceResponse, 0, len(sources))
	for _, ds := range sources {
		list = append(list, dataSourceResponse(ds))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"dataSources": list,
	})
}

func (s *Server) handleGetDataSource(w http.ResponseWriter, r *http.Request) {
	dataSourceID := chi.URLParam(r, "dataSourceId")

	ds, err := s.repo.GetDataSource(r.Context(), dataSourceID)
	if err != nil {
		respondError(w, http.StatusNotFound, "data source not found", err)
		return
	}

	respondJSON(w, http.StatusOK, dataSourceResponse(ds))
}

func (s *Server) handleUpdateDataSource(w http.ResponseWriter, r *http.Request) {
	dataSourceID := chi.URLParam(r, "dataSourceId")

	var req UpdateDataSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	ds, err := s.repo.GetDataSource(r.Context(), dataSourceID)
	if err != nil {
		respondError(w, http.StatusNotFound, "data source not found", err)
		return
	}

	if req.SourceID != "" {
		ds.SourceID = req.SourceID
	}
	if req.Type != "" {
		ds.Type = req.Type
	}

	if err := s.repo.UpdateDataSource(r.Context(), ds); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update data source", err)
		return
	}

	respondJSON(w, http.StatusOK, dataSourceResponse(ds))
}

func (s *Server) handleDeleteDataSource(w http.ResponseWriter, r *http.Request) {
	dataSourceID := chi.URLParam(r, "dataSourceId")

	if err := s.repo.DeleteDataSource(r.Context(), dataSourceID); err != nil {
		respondError(w, http.StatusNotFound, "data source not found", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAttachDetector(w http.ResponseWriter, r *http.Request) {
	dataSourceID := chi.URLParam(r, "dataSourceId")
	detectorID := chi.URLParam(r, "detectorId")

	if err := s.repo.AttachDetector(r.Context(), dataSourceID, detectorID); err != nil {
		respondError(w, http.StatusBadRequest, "failed to attach detector", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateDetector(w http.ResponseWriter, r *http.Request) {
	var req CreateDetectorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Name == "" || req.Type == "" {
		respondError(w, http.StatusBadRequest, "name and type are required", nil)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	d := &dispatch.Detector{
		ID:      uuid.New().String(),
		Name:    req.Name,
		Type:    req.Type,
		Enabled: enabled,
	}

	if req.ConditionGroup != nil {
		group := &dispatch.ConditionGroup{
			ID:        uuid.New().String(),
			LogicType: req.ConditionGroup.LogicType,
		}
		if group.LogicType == "" {
			group.LogicType = dispatch.LogicAny
		}
		for _, c := range req.ConditionGroup.Conditions {
			group.Conditions = append(group.Conditions, dispatch.Condition{
				ID:              uuid.New().String(),
				Type:            c.Type,
				Comparison:      c.Comparison,
				ConditionResult: c.ConditionResult,
			})
		}
		d.WorkflowConditionGroup = group
	}

	if err := s.repo.CreateDetector(r.Context(), d); err != nil {
		respondError(w, http.StatusBadRequest, "failed to create detector", err)
		return
	}

	respondJSON(w, http.StatusCreated, detectorResponse(d))
}

func (s *Server) handleGetDetector(w http.ResponseWriter, r *http.Request) {
	detectorID := chi.URLParam(r, "detectorId")

	d, err := s.repo.GetDetector(r.Context(), detectorID)
	if err != nil {
		respondError(w, http.StatusNotFound, "detector not found", err)
		return
	}

	respondJSON(w, http.StatusOK, detectorResponse(d))
}

func (s *Server) handleUpdateDetector(w http.ResponseWriter, r *http.Request) {
	detectorID := chi.URLParam(r, "detectorId")

	var req UpdateDetectorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	d, err := s.repo.GetDetector(r.Context(), detectorID)
	if err != nil {
		respondError(w, http.StatusNotFound, "detector not found", err)
		return
	}

	if req.Name != "" {
		d.Name = req.Name
	}
	if req.Type != "" {
		d.Type = req.Type
	}
	if req.Enabled != nil {
		d.Enabled = *req.Enabled
	}

	if err := s.repo.UpdateDetector(r.Context(), d); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update detector", err)
		return
	}

	respondJSON(w, http.StatusOK, detectorResponse(d))
}

func (s *Server) handleDeleteDetectors(w http.ResponseWriter, r *http.Request) {
	var req DeleteDetectorsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if len(req.IDs) == 0 {
		respondError(w, http.StatusBadRequest, "ids are required", nil)
		return
	}

	if err := s.repo.DeleteDetectors(r.Context(), req.IDs); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete detectors", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Helper functions

func dataSourceResponse(ds *dispatch.DataSource) DataSourceResponse {
	return DataSourceResponse{
		ID:        ds.ID,
		SourceID:  ds.SourceID,
		Type:      ds.Type,
		CreatedAt: ds.CreatedAt,
		UpdatedAt: ds.UpdatedAt,
	}
}

func detectorResponse(d *dispatch.Detector) DetectorResponse {
	return DetectorResponse{
		ID:        d.ID,
		Name:      d.Name,
		Type:      d.Type,
		Enabled:   d.Enabled,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

func main() {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Fatal("DATABASE_URL environment variable is required")
	}

	sourceTypes := []string{"metric-alert"}
	if env := os.Getenv("SOURCE_TYPES"); env != "" {
		sourceTypes = strings.Split(env, ",")
		for i := range sourceTypes {
			sourceTypes[i] = strings.TrimSpace(sourceTypes[i])
		}
	}

	server, err := NewServer(databaseURL, sourceTypes)
	if err != nil {
		logger.Fatal("Failed to create server", "error", err)
	}
	defer server.db.Close()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", port, "source_types", sourceTypes)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	if err := logger.Shutdown(ctx); err != nil {
		logger.Error("Logger shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}
