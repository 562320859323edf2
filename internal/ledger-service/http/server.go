package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/live-bet-ledger/internal/ledger-service/dto"
	"github.com/radieske/live-bet-ledger/internal/ledger-service/odds"
	"github.com/radieske/live-bet-ledger/internal/ledger/domain"
	"github.com/radieske/live-bet-ledger/internal/ledger/penalty"
	"github.com/radieske/live-bet-ledger/internal/ledger/service"
	"github.com/radieske/live-bet-ledger/internal/shared/money"
	"github.com/radieske/live-bet-ledger/pkg/contracts/events"
)

// Ledger é a superfície de apostas consumida pela API
type Ledger interface {
	PlaceBet(ctx context.Context, req service.PlaceRequest) (domain.Bet, error)
	ChangeBet(ctx context.Context, req service.ChangeRequest) (service.ChangeResult, error)
	GetBet(ctx context.Context, betID string) (domain.Bet, error)
	GetBets(ctx context.Context, bettorID string) ([]domain.Bet, error)
	GetChanges(ctx context.Context, betID string) ([]domain.BetChange, error)
	GetBalance(ctx context.Context, bettorID string) (domain.Balance, error)
	PreviewPenalty(ctx context.Context, betID string, minute int) (penalty.Result, error)
	Fund(ctx context.Context, bettorID string, amount decimal.Decimal) (domain.Balance, error)
}

// OddsChecker valida a odd vista pelo cliente contra a cotação corrente
type OddsChecker interface {
	Check(ctx context.Context, matchID, kind, target string, seen decimal.Decimal) (decimal.Decimal, error)
}

// Publisher recebe os eventos de aposta (best effort)
type Publisher interface {
	PublishBetPlaced(ctx context.Context, e events.BetPlaced) error
	PublishBetChanged(ctx context.Context, e events.BetChanged) error
}

type Server struct {
	log      *zap.Logger
	ledger   Ledger
	odds     OddsChecker // opcional
	publ     Publisher   // opcional
	validate *validator.Validate
}

func NewServer(log *zap.Logger, l Ledger, o OddsChecker, p Publisher) *Server {
	return &Server{log: log, ledger: l, odds: o, publ: p, validate: validator.New()}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/v1/bets", s.placeBet)
	r.Get("/v1/bets/{id}", s.getBet)
	r.Post("/v1/bets/{id}/change", s.changeBet)
	r.Get("/v1/bets/{id}/penalty", s.previewPenalty) // ?minute=
	r.Get("/v1/bets/{id}/changes", s.listChanges)

	r.Get("/v1/bettors/{id}/bets", s.listBets)
	r.Get("/v1/bettors/{id}/balance", s.getBalance)
	r.Post("/v1/bettors/{id}/fund", s.fund)
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError traduz erros de domínio em status HTTP
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, domain.ErrValidation):
		status, code = http.StatusBadRequest, "validation"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInsufficientBalance):
		status, code = http.StatusConflict, "insufficient_balance"
	case errors.Is(err, domain.ErrExistingActiveBet):
		status, code = http.StatusConflict, "existing_active_bet"
	case errors.Is(err, domain.ErrInvalidStateTransition):
		status, code = http.StatusConflict, "invalid_state_transition"
	case errors.Is(err, domain.ErrAlreadySettled):
		status, code = http.StatusConflict, "already_settled"
	case errors.Is(err, domain.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.String("reqId", middleware.GetReqID(r.Context())), zap.Error(err))
	}
	writeJSON(w, status, dto.ErrorResponse{Error: err.Error(), Code: code})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json", Code: "validation"})
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Code: "validation"})
		return false
	}
	return true
}

// checkOdds devolve false (e já responde 409 com a odd corrente) se a odd mudou.
// Falha do cache não bloqueia a aposta.
func (s *Server) checkOdds(w http.ResponseWriter, r *http.Request, matchID, kind, target string, seen decimal.Decimal) bool {
	if s.odds == nil {
		return true
	}
	cur, err := s.odds.Check(r.Context(), matchID, kind, target, seen)
	if errors.Is(err, odds.ErrOddsChanged) {
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "odds changed", Code: "odds_changed", CurrentOdds: cur.String()})
		return false
	}
	if err != nil {
		s.log.Warn("odds check skipped", zap.String("matchId", matchID), zap.Error(err))
	}
	return true
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if !s.decode(w, r, &req) {
		return
	}
	oddsSeen := decimal.NewFromFloat(req.Odds)
	if !s.checkOdds(w, r, req.MatchID, req.Kind, req.Target, oddsSeen) {
		return
	}

	bet, err := s.ledger.PlaceBet(r.Context(), service.PlaceRequest{
		BettorID:    req.BettorID,
		MatchID:     req.MatchID,
		Kind:        domain.BetKind(req.Kind),
		Target:      req.Target,
		Stake:       money.FromFloat(req.Stake),
		Odds:        oddsSeen,
		Minute:      req.Minute,
		WindowIndex: req.WindowIndex,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if s.publ != nil {
		if err := s.publ.PublishBetPlaced(r.Context(), events.BetPlaced{
			BetID:       bet.ID,
			BettorID:    bet.BettorID,
			MatchID:     bet.MatchID,
			Kind:        string(bet.Kind),
			Target:      bet.CurrentTarget,
			Stake:       bet.OriginalAmount.StringFixed(2),
			Odds:        bet.Odds.String(),
			WindowIndex: bet.WindowIndex,
		}); err != nil {
			s.log.Warn("publish bet_placed", zap.String("betId", bet.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, dto.FromBet(bet))
}

func (s *Server) changeBet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req dto.ChangeBetRequest
	if !s.decode(w, r, &req) {
		return
	}
	cur, err := s.ledger.GetBet(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	newOdds := decimal.NewFromFloat(req.NewOdds)
	if !s.checkOdds(w, r, cur.MatchID, string(cur.Kind), req.NewTarget, newOdds) {
		return
	}

	out, err := s.ledger.ChangeBet(r.Context(), service.ChangeRequest{
		BetID:     id,
		NewTarget: req.NewTarget,
		NewOdds:   newOdds,
		Minute:    req.Minute,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if s.publ != nil {
		if err := s.publ.PublishBetChanged(r.Context(), events.BetChanged{
			BetID:         out.Bet.ID,
			BettorID:      out.Bet.BettorID,
			MatchID:       out.Bet.MatchID,
			FromTarget:    cur.CurrentTarget,
			ToTarget:      out.Bet.CurrentTarget,
			ChangeNumber:  out.Penalty.ChangeNumber,
			PenaltyAmount: out.Penalty.PenaltyAmount.StringFixed(2),
			NewAmount:     out.Bet.CurrentAmount.StringFixed(2),
			Minute:        req.Minute,
		}); err != nil {
			s.log.Warn("publish bet_changed", zap.String("betId", id), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, dto.ChangeBetResponse{Bet: dto.FromBet(out.Bet), Penalty: dto.FromPenalty(out.Penalty)})
}

func (s *Server) getBet(w http.ResponseWriter, r *http.Request) {
	b, err := s.ledger.GetBet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromBet(b))
}

func (s *Server) previewPenalty(w http.ResponseWriter, r *http.Request) {
	minute, err := strconv.Atoi(r.URL.Query().Get("minute"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "minute query param required", Code: "validation"})
		return
	}
	p, err := s.ledger.PreviewPenalty(r.Context(), chi.URLParam(r, "id"), minute)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromPenalty(p))
}

func (s *Server) listChanges(w http.ResponseWriter, r *http.Request) {
	changes, err := s.ledger.GetChanges(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]dto.BetChangeResponse, 0, len(changes))
	for _, c := range changes {
		out = append(out, dto.FromChange(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listBets(w http.ResponseWriter, r *http.Request) {
	bets, err := s.ledger.GetBets(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]dto.BetResponse, 0, len(bets))
	for _, b := range bets {
		out = append(out, dto.FromBet(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	b, err := s.ledger.GetBalance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromBalance(b))
}

func (s *Server) fund(w http.ResponseWriter, r *http.Request) {
	var req dto.FundRequest
	if !s.decode(w, r, &req) {
		return
	}
	b, err := s.ledger.Fund(r.Context(), chi.URLParam(r, "id"), money.FromFloat(req.Amount))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromBalance(b))
}
