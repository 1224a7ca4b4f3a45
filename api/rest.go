package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/emochain/emochain/core"
)

// Server exposes the query and control surface of the engine. All chain
// and ledger reads go through snapshot accessors, so queries never block
// the producer.
type Server struct {
	chain    *core.Chain
	registry *core.Registry
	ledger   *core.Ledger
	econ     *core.Economics
	miner    *core.Miner
	bridge   *core.Bridge
	bus      *core.Bus
	log      *zap.Logger

	// Biometric ingestion is sensor-driven and may arrive at any rate;
	// excess snapshots are shed here before they reach the registry.
	biometrics *rate.Limiter
}

// NewServer wires the HTTP surface to the engine components.
func NewServer(chain *core.Chain, registry *core.Registry, ledger *core.Ledger,
	econ *core.Economics, miner *core.Miner, bridge *core.Bridge, bus *core.Bus,
	log *zap.Logger) *Server {
	return &Server{
		chain:      chain,
		registry:   registry,
		ledger:     ledger,
		econ:       econ,
		miner:      miner,
		bridge:     bridge,
		bus:        bus,
		log:        log,
		biometrics: rate.NewLimiter(rate.Limit(100), 200),
	}
}

// Router builds the REST routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/chain/height", s.handleHeight).Methods(http.MethodGet)
	r.HandleFunc("/chain/latest", s.handleLatest).Methods(http.MethodGet)
	r.HandleFunc("/chain/blocks", s.handleBlocks).Methods(http.MethodGet)
	r.HandleFunc("/chain/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/chain/verify", s.handleVerify).Methods(http.MethodGet)

	r.HandleFunc("/balances", s.handleBalances).Methods(http.MethodGet)
	r.HandleFunc("/balances/{address}", s.handleBalance).Methods(http.MethodGet)
	r.HandleFunc("/economics", s.handleEconomics).Methods(http.MethodGet)

	r.HandleFunc("/validators", s.handleListValidators).Methods(http.MethodGet)
	r.HandleFunc("/validators", s.handleRegisterValidator).Methods(http.MethodPost)
	r.HandleFunc("/validators/{id}", s.handleDeregisterValidator).Methods(http.MethodDelete)
	r.HandleFunc("/validators/{id}/biometrics", s.handleBiometrics).Methods(http.MethodPost)

	r.HandleFunc("/transactions", s.handleSubmitTransaction).Methods(http.MethodPost)
	r.HandleFunc("/transactions/pending", s.handlePending).Methods(http.MethodGet)

	r.HandleFunc("/consensus/blocks", s.handleConsensusBlock).Methods(http.MethodPost)

	r.HandleFunc("/mining", s.handleMiningStatus).Methods(http.MethodGet)
	r.HandleFunc("/mining/start", s.handleMiningStart).Methods(http.MethodPost)
	r.HandleFunc("/mining/stop", s.handleMiningStop).Methods(http.MethodPost)

	r.HandleFunc("/ws", s.handleWebSocket)
	return r
}

func (s *Server) handleHeight(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{"height": s.chain.Height()})
}

func (s *Server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.chain.Latest())
}

func (s *Server) handleBlocks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.chain.Blocks())
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.chain.Stats())
}

func (s *Server) handleVerify(w http.ResponseWriter, _ *http.Request) {
	discrepancies := s.chain.VerifyIntegrity()
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":         len(discrepancies) == 0,
		"discrepancies": discrepancies,
	})
}

func (s *Server) handleBalances(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.chain.AllBalances())
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	writeJSON(w, http.StatusOK, map[string]any{
		"address": address,
		"balance": s.chain.BalanceOf(address),
	})
}

func (s *Server) handleEconomics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.econ.Snapshot())
}

func (s *Server) handleListValidators(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleRegisterValidator(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID       string                 `json:"id"`
		Snapshot core.BiometricSnapshot `json:"snapshot"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "invalid registration payload")
		return
	}
	writeJSON(w, http.StatusCreated, s.registry.Register(req.ID, req.Snapshot))
}

func (s *Server) handleDeregisterValidator(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.registry.Deregister(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deregistered"})
}

func (s *Server) handleBiometrics(w http.ResponseWriter, r *http.Request) {
	if !s.biometrics.Allow() {
		writeError(w, http.StatusTooManyRequests, "biometric ingestion rate exceeded")
		return
	}
	id := mux.Vars(r)["id"]
	var snap core.BiometricSnapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		writeError(w, http.StatusBadRequest, "invalid snapshot payload")
		return
	}
	v, err := s.registry.Update(id, snap)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From   string  `json:"from"`
		To     string  `json:"to"`
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction payload")
		return
	}
	tx, err := s.chain.SubmitTransaction(req.From, req.To, req.Amount)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, core.ErrInsufficientBalance) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, tx)
}

func (s *Server) handlePending(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"pending": s.chain.PendingCount()})
}

func (s *Server) handleConsensusBlock(w http.ResponseWriter, r *http.Request) {
	var b core.Block
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, "invalid block payload")
		return
	}
	res, err := s.bridge.AddConsensusBlock(&b)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"status":  "error",
			"message": err.Error(),
			"errors":  res.Errors,
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMiningStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"mining": s.miner.Mining()})
}

func (s *Server) handleMiningStart(w http.ResponseWriter, _ *http.Request) {
	if err := s.miner.Start(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "mining"})
}

func (s *Server) handleMiningStop(w http.ResponseWriter, _ *http.Request) {
	s.miner.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": message})
}
