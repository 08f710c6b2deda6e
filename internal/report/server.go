// Package report exposes backtest results, gamma profiles, and allocator
// state over a JSON HTTP API.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/jfenner/gexengine/internal/allocator"
	"github.com/jfenner/gexengine/internal/models"
)

// Store accumulates results as runs complete. Safe for concurrent writers
// (sweep workers) and readers (HTTP handlers).
type Store struct {
	mu          sync.RWMutex
	runs        map[string]*models.BacktestRun
	profiles    map[string]*models.GammaProfile // keyed by date
	allocations map[string]allocator.BotStats
	weights     map[string]float64
}

// NewStore returns an empty results store.
func NewStore() *Store {
	return &Store{
		runs:        make(map[string]*models.BacktestRun),
		profiles:    make(map[string]*models.GammaProfile),
		allocations: make(map[string]allocator.BotStats),
		weights:     make(map[string]float64),
	}
}

// PutRun records a completed run under its configuration label.
func (s *Store) PutRun(run *models.BacktestRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.Config.Label()] = run
}

// PutProfile records a gamma profile under its date.
func (s *Store) PutProfile(p *models.GammaProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.Date.Format("2006-01-02")] = p
}

// SetAllocations replaces the allocator view.
func (s *Store) SetAllocations(stats map[string]allocator.BotStats, weights map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocations = stats
	s.weights = weights
}

// RunSummary is the list view of one run.
type RunSummary struct {
	Label       string            `json:"label"`
	Config      models.RunConfig  `json:"config"`
	FinalEquity float64           `json:"final_equity"`
	Stats       models.Statistics `json:"stats"`
}

// Server serves the results store over HTTP.
type Server struct {
	router *chi.Mux
	server *http.Server
	store  *Store
	logger *logrus.Logger
	port   int
}

// Config holds the server settings.
type Config struct {
	Port int
}

// NewServer wires the routes over a store.
func NewServer(cfg Config, store *Store, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		router: chi.NewRouter(),
		store:  store,
		logger: logger,
		port:   cfg.Port,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/runs", s.handleListRuns)
	s.router.Get("/api/runs/{label}", s.handleGetRun)
	s.router.Get("/api/profile", s.handleLatestProfile)
	s.router.Get("/api/profiles", s.handleListProfiles)
	s.router.Get("/api/profiles/{date}", s.handleGetProfile)
	s.router.Get("/api/allocations", s.handleGetAllocations)
}

// Start blocks serving HTTP until Shutdown or failure.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting report server on port %d", s.port)
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	s.store.mu.RLock()
	summaries := make([]RunSummary, 0, len(s.store.runs))
	for label, run := range s.store.runs {
		summaries = append(summaries, RunSummary{
			Label:       label,
			Config:      run.Config,
			FinalEquity: run.FinalEquity,
			Stats:       run.Stats,
		})
	}
	s.store.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Stats.SharpeRatio > summaries[j].Stats.SharpeRatio
	})
	s.writeJSON(w, summaries)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")

	s.store.mu.RLock()
	run, ok := s.store.runs[label]
	s.store.mu.RUnlock()
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, run)
}

func (s *Server) handleLatestProfile(w http.ResponseWriter, r *http.Request) {
	s.store.mu.RLock()
	latest := ""
	for date := range s.store.profiles {
		if date > latest {
			latest = date
		}
	}
	profile := s.store.profiles[latest]
	s.store.mu.RUnlock()

	if profile == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, profile)
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	s.store.mu.RLock()
	dates := make([]string, 0, len(s.store.profiles))
	for date := range s.store.profiles {
		dates = append(dates, date)
	}
	s.store.mu.RUnlock()

	sort.Strings(dates)
	s.writeJSON(w, dates)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")

	s.store.mu.RLock()
	profile, ok := s.store.profiles[date]
	s.store.mu.RUnlock()
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, profile)
}

func (s *Server) handleGetAllocations(w http.ResponseWriter, r *http.Request) {
	s.store.mu.RLock()
	resp := map[string]interface{}{
		"bots":    s.store.allocations,
		"weights": s.store.weights,
	}
	s.store.mu.RUnlock()
	s.writeJSON(w, resp)
}
