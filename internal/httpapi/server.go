package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"carteira/internal/backtest"
	"carteira/internal/benchmark"
	"carteira/internal/config"
	"carteira/internal/domain"
	"carteira/internal/marketdata"
)

// Server serves the simulation HTTP API.
type Server struct {
	data       *marketdata.Provider
	engine     *backtest.Engine
	benchmarks *benchmark.Service
	log        *slog.Logger
}

// NewServer creates a Server running simulations against the given provider.
func NewServer(data *marketdata.Provider, log *slog.Logger) *Server {
	return &Server{
		data:       data,
		engine:     backtest.New(data, log),
		benchmarks: benchmark.NewService(data),
		log:        log,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/assets/available", s.handleAvailableAssets)
	mux.HandleFunc("POST /api/backtest/run", s.handleRun)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleAvailableAssets(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	resp := AssetsResponse{
		Assets:  make([]AvailableAsset, 0),
		Quality: s.data.Quality(),
	}
	for _, ticker := range s.data.Universe() {
		asset := AvailableAsset{Ticker: ticker}
		if row, ok := s.data.LatestFinancialsRow(ticker, now); ok {
			asset.HasFinancials = true
			asset.LatestSnapshot = row.Date.Format(domain.DateLayout)
		}
		resp.Assets = append(resp.Assets, asset)
	}
	writeJSON(w, resp)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var cfg domain.StrategyConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	config.ApplyStrategyDefaults(&cfg)
	if err := config.ValidateStrategy(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runID := uuid.NewString()
	s.log.Info("simulation requested", "run_id", runID,
		"start", cfg.StartDate, "end", cfg.EndDate, "max_assets", cfg.MaxAssets)

	result, err := s.engine.Run(r.Context(), &cfg)
	if err != nil {
		s.log.Error("simulation failed", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	start, _ := cfg.Start()
	end, _ := cfg.End()
	curves := make(map[string][]domain.SeriesPoint)
	for _, name := range []string{marketdata.BenchmarkIBOV, marketdata.BenchmarkSelic, marketdata.BenchmarkIPCA} {
		if curve := s.benchmarks.Cumulative(name, start, end); curve != nil {
			curves[name] = curve
		}
	}

	writeJSON(w, RunResponse{
		RunID:      runID,
		StartDate:  cfg.StartDate,
		EndDate:    cfg.EndDate,
		Benchmarks: curves,
		Summary: RunSummary{
			FinalCapital:  result.FinalCapital,
			TotalInvested: result.TotalInvested,
			TotalReturn:   result.TotalReturn,
			CAGR:          result.CAGR,
			TotalTrades:   result.TotalTrades,
		},
		History:  result.History,
		Holdings: result.FinalHoldings,
		Trades:   result.TradeLog,
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
