package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"prizevault/crypto"
	"prizevault/native/prizepool"
	"prizevault/observability"
)

const requestLimit = 1 << 20 // 1 MiB

// Server exposes the pool engine over HTTP. The engine is not concurrency
// safe, so every handler holds the server mutex for the duration of the call.
type Server struct {
	mu       sync.Mutex
	engine   *prizepool.Engine
	operator crypto.Address
	logger   *slog.Logger
	metrics  *observability.PoolMetrics

	// advanceHeight lets the local daemon move the simulated chain forward.
	height uint64
}

func NewServer(engine *prizepool.Engine, operator crypto.Address, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:   engine,
		operator: operator,
		logger:   logger,
		metrics:  observability.Metrics(),
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/pool", s.getPool)
		r.Get("/pool/interest", s.getInterest)
		r.Get("/pool/draw", s.getDraw)
		r.Get("/entries/{address}", s.getEntry)

		r.Post("/tickets", s.buyTickets)
		r.Post("/deposit", s.deposit)
		r.Post("/withdraw", s.withdraw)

		r.Post("/commit", s.commitSecret)
		r.Post("/lock", s.lock)
		r.Post("/unlock", s.unlock)

		r.Post("/award/start", s.startAward)
		r.Post("/award/complete", s.completeAward)

		r.Post("/height", s.advanceHeight)
	})
	return r
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		method := r.Method + " " + r.URL.Path
		s.metrics.Observe(method, ww.Status(), time.Since(start))
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- read handlers ---

type poolResponse struct {
	State          string `json:"state"`
	Mode           string `json:"mode"`
	TotalDeposited string `json:"totalDeposited"`
	LockedAtBlock  uint64 `json:"lockedAtBlock,omitempty"`
	UnlockAtBlock  uint64 `json:"unlockAtBlock,omitempty"`
	SecretHash     string `json:"secretHash,omitempty"`
	SettledAmount  string `json:"settledAmount"`
	Winner         string `json:"winner,omitempty"`
	Prize          string `json:"prize"`
	TotalWeight    string `json:"totalWeight"`
}

func (s *Server) getPool(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.engine.PoolRecord()
	if err != nil {
		s.writeEngineError(w, "pool_get", err)
		return
	}
	mode := "single"
	if s.engine.Params().Mode == prizepool.ModePeriodic {
		mode = "periodic"
	}
	resp := poolResponse{
		State:          pool.State.String(),
		Mode:           mode,
		TotalDeposited: pool.TotalDeposited.String(),
		LockedAtBlock:  pool.LockedAtBlock,
		UnlockAtBlock:  pool.UnlockAtBlock,
		SettledAmount:  pool.FinalSettledAmount.String(),
		Prize:          pool.Prize.String(),
		TotalWeight:    s.engine.TotalWeight().String(),
	}
	if pool.SecretHash != ([32]byte{}) {
		resp.SecretHash = hex.EncodeToString(pool.SecretHash[:])
	}
	if pool.HasWinner {
		resp.Winner = crypto.NewAddress(crypto.PoolPrefix, pool.Winner[:]).String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getInterest(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	interest, err := s.engine.CurrentInterest()
	if err != nil {
		s.writeEngineError(w, "pool_interest", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"interest": interest.String()})
}

func (s *Server) getDraw(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	draw, err := s.engine.CurrentDraw()
	if err != nil {
		s.writeEngineError(w, "pool_draw", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":            draw.ID,
		"openedAtBlock": draw.OpenedAtBlock,
		"carriedPrize":  draw.CarriedPrize.String(),
		"requestId":     draw.RequestID,
	})
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	addr, err := crypto.DecodeAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.engine.EntryOf(addr)
	if err != nil {
		s.writeEngineError(w, "entry_get", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":   entry.Address.String(),
		"deposit":   entry.Deposit.String(),
		"withdrawn": entry.Withdrawn,
	})
}

// --- participant handlers ---

type ticketsRequest struct {
	Buyer string `json:"buyer"`
	Count uint64 `json:"count"`
}

func (s *Server) buyTickets(w http.ResponseWriter, r *http.Request) {
	var req ticketsRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	buyer, err := crypto.DecodeAddress(req.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	total, err := s.engine.BuyTickets(buyer, req.Count)
	if err != nil {
		s.writeEngineError(w, "tickets_buy", err)
		return
	}
	s.metrics.RecordDeposit()
	writeJSON(w, http.StatusOK, map[string]string{"totalPrice": total.String()})
}

type depositRequest struct {
	Buyer  string `json:"buyer"`
	Amount string `json:"amount"`
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	buyer, err := crypto.DecodeAddress(req.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.engine.Deposit(buyer, amount); err != nil {
		s.writeEngineError(w, "deposit", err)
		return
	}
	s.metrics.RecordDeposit()
	writeJSON(w, http.StatusOK, map[string]string{"deposited": amount.String()})
}

type withdrawRequest struct {
	Address string `json:"address"`
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	addr, err := crypto.DecodeAddress(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	amount, err := s.engine.Withdraw(addr)
	if err != nil {
		s.writeEngineError(w, "withdraw", err)
		return
	}
	s.metrics.RecordWithdrawal()
	writeJSON(w, http.StatusOK, map[string]string{"amount": amount.String()})
}

// --- operator handlers ---

type commitRequest struct {
	SecretHash string `json:"secretHash"`
}

func (s *Server) commitSecret(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	hash, err := parseHash(req.SecretHash)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.engine.CommitSecret(s.operator, hash); err != nil {
		s.writeEngineError(w, "commit", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "committed"})
}

func (s *Server) lock(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.engine.Lock(s.operator); err != nil {
		s.writeEngineError(w, "lock", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "locked"})
}

type unlockRequest struct {
	Secret string `json:"secret"`
}

func (s *Server) unlock(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	secret, err := parseHash(req.Secret)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.engine.Unlock(s.operator, secret); err != nil {
		s.writeEngineError(w, "unlock", err)
		return
	}
	s.metrics.RecordAward()
	writeJSON(w, http.StatusOK, map[string]string{"status": "complete"})
}

func (s *Server) startAward(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.engine.StartAward(); err != nil {
		s.writeEngineError(w, "award_start", err)
		return
	}
	draw, err := s.engine.CurrentDraw()
	if err != nil {
		s.writeEngineError(w, "award_start", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"requestId": draw.RequestID})
}

func (s *Server) completeAward(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.engine.CompleteAward(); err != nil {
		s.writeEngineError(w, "award_complete", err)
		return
	}
	s.metrics.RecordAward()
	writeJSON(w, http.StatusOK, map[string]string{"status": "awarded"})
}

type heightRequest struct {
	Height uint64 `json:"height"`
}

func (s *Server) advanceHeight(w http.ResponseWriter, r *http.Request) {
	var req heightRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Height < s.height {
		writeError(w, http.StatusBadRequest, fmt.Errorf("height may not decrease"))
		return
	}
	s.height = req.Height
	s.engine.SetBlockHeight(req.Height)
	writeJSON(w, http.StatusOK, map[string]uint64{"height": req.Height})
}

// --- helpers ---

func (s *Server) writeEngineError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("rpc operation failed", "op", op, "err", err)
	} else {
		s.logger.Debug("rpc operation rejected", "op", op, "err", err)
	}
	writeError(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, prizepool.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, prizepool.ErrNoEntry):
		return http.StatusNotFound
	case errors.Is(err, prizepool.ErrInvalidState),
		errors.Is(err, prizepool.ErrAlreadyWithdrawn),
		errors.Is(err, prizepool.ErrRandomnessAlreadyRequested),
		errors.Is(err, prizepool.ErrRandomnessNotReady),
		errors.Is(err, prizepool.ErrLockBoundaryNotReached),
		errors.Is(err, prizepool.ErrUnlockBoundaryNotReached),
		errors.Is(err, prizepool.ErrSecretNotCommitted):
		return http.StatusConflict
	case errors.Is(err, prizepool.ErrInvalidAmount),
		errors.Is(err, prizepool.ErrInsufficientBalance),
		errors.Is(err, prizepool.ErrPoolSizeExceeded),
		errors.Is(err, prizepool.ErrSecretMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeRequest(r *http.Request, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, requestLimit))
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	if len(body) == 0 {
		return fmt.Errorf("empty request body")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func parseAmount(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("amount is not a decimal integer: %q", value)
	}
	return amount, nil
}

func parseHash(value string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("invalid hex: %w", err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
