package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/vitos/signal_trader/internal/domain"
	"github.com/vitos/signal_trader/internal/usecase"
	"go.uber.org/zap"
)

type statusResponse struct {
	Risk    domain.RiskSnapshot `json:"risk"`
	Halted  bool                `json:"halted"`
	DryRun  bool                `json:"dry_run"`
	Brokers []string            `json:"brokers"`
}

type tradesResponse struct {
	Day    string               `json:"day"`
	PnL    float64              `json:"pnl"`
	Filled int                  `json:"filled"`
	Failed int                  `json:"failed"`
	Trades []domain.TradeResult `json:"trades"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.gate.Snapshot()
	resp := statusResponse{
		Risk:   snap,
		Halted: snap.Halted(),
	}
	if s.dispatcher != nil {
		resp.DryRun = s.dispatcher.DryRun()
		for _, b := range s.dispatcher.Brokers() {
			resp.Brokers = append(resp.Brokers, b.Name())
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleTrades lists the ledger for ?day=yyyy-mm-dd, today (UTC) by default.
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	day := r.URL.Query().Get("day")
	if day == "" {
		day = usecase.DayKey(s.timeNow())
	} else if _, err := time.Parse("2006-01-02", day); err != nil {
		s.writeError(w, http.StatusBadRequest, "day must be yyyy-mm-dd")
		return
	}

	trades, err := s.ledger.ListTradeResults(r.Context(), day)
	if err != nil {
		s.logger.Error("Failed to list trades", zap.String("day", day), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}

	resp := tradesResponse{Day: day, Trades: trades}
	if resp.Trades == nil {
		resp.Trades = []domain.TradeResult{}
	}
	for _, t := range trades {
		switch t.Status {
		case domain.StatusFilled:
			resp.Filled++
			resp.PnL += t.RealizedPnL
		case domain.StatusFailed:
			resp.Failed++
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCooldown(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key := domain.NewInstrumentKey(vars["broker"], vars["instrument"])
	remaining := s.gate.CooldownRemaining(key)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":               key.String(),
		"remaining_seconds": remaining.Seconds(),
		"eligible":          s.gate.Check(key) == nil,
	})
}

// handleKill halts trading and, when a writable source is configured, flips it
// so other processes sharing the switch stop too.
func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = usecase.HaltManual
	}
	if s.kill != nil {
		if err := s.kill.Set(r.Context(), reason); err != nil {
			s.logger.Error("Failed to set kill switch", zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "failed to set kill switch")
			return
		}
	}
	s.gate.Trip(r.Context(), reason)
	s.logger.Warn("Kill requested over HTTP", zap.String("reason", reason))
	s.handleStatus(w, r)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if s.kill != nil {
		if err := s.kill.Clear(r.Context()); err != nil {
			s.logger.Error("Failed to clear kill switch", zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "failed to clear kill switch")
			return
		}
		s.gate.SetExternalKill(false)
	}
	s.gate.Resume(r.Context())
	s.logger.Warn("Resume requested over HTTP")
	s.handleStatus(w, r)
}

// handleMode switches between live and dry-run with ?dry_run=true|false.
func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no dispatcher")
		return
	}
	dryRun, err := strconv.ParseBool(r.URL.Query().Get("dry_run"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "dry_run must be true or false")
		return
	}
	s.dispatcher.SetDryRun(dryRun)
	s.handleStatus(w, r)
}
