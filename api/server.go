package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gregtusar/ritarb/pkg/models"
	"github.com/gregtusar/ritarb/pkg/trader"
	"github.com/sirupsen/logrus"
)

// PositionSource is implemented by strategies that keep a position ledger.
type PositionSource interface {
	Positions() []models.ArbPosition
}

type Server struct {
	runner *trader.Runner
	logger *logrus.Logger
	port   string
	srv    *http.Server
}

func NewServer(runner *trader.Runner, logger *logrus.Logger, port string) *Server {
	return &Server{
		runner: runner,
		logger: logger,
		port:   port,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/report", s.handleReport)
	mux.HandleFunc("/api/positions", s.handlePositions)
	mux.HandleFunc("/api/edges", s.handleEdges)
	return corsMiddleware(mux)
}

func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Infof("Starting API server on port %s", s.port)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"strategy":  s.runner.Strategy().Name(),
		"cycles":    s.runner.Cycles(),
		"timestamp": time.Now().UTC(),
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, ok := s.runner.LastReport()
	if !ok {
		http.Error(w, "no cycle has run yet", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions := []models.ArbPosition{}
	if src, ok := s.runner.Strategy().(PositionSource); ok {
		positions = append(positions, src.Positions()...)
	}
	s.writeJSON(w, http.StatusOK, positions)
}

type edgesResponse struct {
	Strategy string             `json:"strategy"`
	Tick     int                `json:"tick"`
	Arb      *models.ArbEdges   `json:"arbitrage,omitempty"`
	Options  []models.OptionLeg `json:"options,omitempty"`
}

func (s *Server) handleEdges(w http.ResponseWriter, r *http.Request) {
	report, ok := s.runner.LastReport()
	if !ok {
		http.Error(w, "no cycle has run yet", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, edgesResponse{
		Strategy: report.Strategy,
		Tick:     report.Tick,
		Arb:      report.Edges,
		Options:  report.OptionLegs,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
