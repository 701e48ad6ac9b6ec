// Package web serves the risk form: the HTML page, a JSON API, a websocket
// for live input normalization and the rendered attribution artifacts.
//
// The server holds no per-user state. Every interaction builds a fresh
// RawInput, runs it through the shared Builder and prediction service, and
// renders the outcome.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"riskform/internal/features"
	"riskform/internal/ml"
	"riskform/internal/storage"
)

// Predictor runs the configured prediction mode on one row.
type Predictor interface {
	Predict(ctx context.Context, row features.FeatureRow) (*ml.Result, error)
	Mode() ml.Mode
}

// History stores completed predictions. Nil disables the history endpoints.
type History interface {
	Save(rec storage.Record) (storage.Record, error)
	Get(id string) (storage.Record, error)
	Recent(n int) ([]storage.Record, error)
	ExportCSV(w io.Writer, columns []string) error
}

// Metrics defines the metrics the web layer records.
type Metrics interface {
	ValidationErrorInc(kind string)
	WSConnectionsInc()
	WSConnectionsDec()
}

// Config wires a Server.
type Config struct {
	Builder        *features.Builder
	Predictor      Predictor
	History        History
	Tracker        *ml.AttributionTracker
	Metrics        Metrics
	MetricsHandler http.Handler // promhttp.Handler() when nil
	PlotDir        string       // attribution PNGs are not written when empty
	HistoryLimit   int
	Port           int
}

// Server is the HTTP surface of the service.
type Server struct {
	builder      *features.Builder
	predictor    Predictor
	history      History
	tracker      *ml.AttributionTracker
	metrics      Metrics
	plotDir      string
	historyLimit int

	artifacts *artifactCache
	page      *pageRenderer

	router    *mux.Router
	server    *http.Server
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	isRunning bool
	mu        sync.Mutex
}

func New(cfg Config) (*Server, error) {
	if cfg.Builder == nil {
		return nil, errors.New("builder is required")
	}
	if cfg.Predictor == nil {
		return nil, errors.New("predictor is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.MetricsHandler == nil {
		cfg.MetricsHandler = promhttp.Handler()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}

	page, err := newPageRenderer()
	if err != nil {
		return nil, err
	}

	s := &Server{
		builder:      cfg.Builder,
		predictor:    cfg.Predictor,
		history:      cfg.History,
		tracker:      cfg.Tracker,
		metrics:      cfg.Metrics,
		plotDir:      cfg.PlotDir,
		historyLimit: cfg.HistoryLimit,
		artifacts:    newArtifactCache(defaultArtifactCapacity),
		page:         page,
		upgrader:     websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:      make(map[*websocket.Conn]bool),
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleForm).Methods("GET")
	r.HandleFunc("/predict", s.handleFormSubmit).Methods("POST")
	r.HandleFunc("/api/predict", s.handlePredictAPI).Methods("POST")
	r.HandleFunc("/api/normalize", s.handleNormalizeAPI).Methods("POST")
	r.HandleFunc("/api/codebook", s.handleCodebookAPI).Methods("GET")
	r.HandleFunc("/api/attributions", s.handleAttributionsAPI).Methods("GET")
	r.HandleFunc("/api/predictions", s.handleHistoryAPI).Methods("GET")
	r.HandleFunc("/api/predictions.csv", s.handleHistoryExport).Methods("GET")
	r.HandleFunc("/api/predictions/{id}", s.handleHistoryGet).Methods("GET")
	r.HandleFunc("/plots/{id}.png", s.handlePlot).Methods("GET")
	r.HandleFunc("/charts/{id}", s.handleChart).Methods("GET")
	r.HandleFunc("/ws", s.handleWebSocket).Methods("GET")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", cfg.MetricsHandler).Methods("GET")
	s.router = r

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	return s, nil
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves in the background. Listen errors other than a clean shutdown
// are reported on the returned channel.
func (s *Server) Start() (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil, fmt.Errorf("server is already running")
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("address", s.server.Addr).Msg("Starting risk form server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Risk form server failed")
			errc <- err
		}
		close(errc)
	}()

	s.isRunning = true
	return errc, nil
}

// Stop closes live sockets, shuts the HTTP server down and removes the
// transient plot files.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		s.artifacts.clear()
		return nil
	}

	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
	}
	s.clients = make(map[*websocket.Conn]bool)
	s.clientsMu.Unlock()

	err := s.server.Shutdown(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to shutdown risk form server")
	}
	s.artifacts.clear()

	s.isRunning = false
	log.Info().Msg("Risk form server stopped")
	return err
}

type noopMetrics struct{}

func (noopMetrics) ValidationErrorInc(string) {}
func (noopMetrics) WSConnectionsInc()         {}
func (noopMetrics) WSConnectionsDec()         {}
