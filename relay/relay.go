// Package relay serves the toolkit over HTTP: a short lived store of
// previous transactions, a mailbox where co-signers drop signatures for a
// draft, and verification endpoints for BSM, Sigma and draft signatures.
package relay

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/BoldBitcoinWallet/bsvkit/bsm"
	"github.com/BoldBitcoinWallet/bsvkit/config"
	"github.com/BoldBitcoinWallet/bsvkit/logs"
	"github.com/BoldBitcoinWallet/bsvkit/sigma"
	"github.com/BoldBitcoinWallet/bsvkit/txbuilder"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
)

var (
	log      = logs.Logger("relay")
	validate = validator.New()
)

const (
	DefaultTTL     = 5 * time.Minute
	cleanupPeriod  = 10 * time.Minute
	maxRequestBody = 4 << 20
)

// Signature is a co-signer's signature for one input of a draft.
type Signature struct {
	ID        string `json:"id,omitempty"`
	PrevTxID  string `json:"prev_txid" validate:"required,len=64,hexadecimal"`
	PrevIndex uint32 `json:"prev_index"`
	Signature string `json:"signature" validate:"required,hexadecimal"`
	From      string `json:"from,omitempty" validate:"max=256"`
}

func (s Signature) same(o Signature) bool {
	return s.PrevTxID == o.PrevTxID && s.PrevIndex == o.PrevIndex && s.Signature == o.Signature
}

func (s Signature) request() (txbuilder.SignatureRequest, error) {
	h, err := chainhash.NewHashFromStr(s.PrevTxID)
	if err != nil {
		return txbuilder.SignatureRequest{}, err
	}
	sig, err := hex.DecodeString(s.Signature)
	if err != nil {
		return txbuilder.SignatureRequest{}, err
	}
	return txbuilder.SignatureRequest{PrevTxID: *h, PrevIndex: s.PrevIndex, Signature: sig}, nil
}

type TxRequest struct {
	Hex string `json:"hex" validate:"required,hexadecimal"`
}

type TxResponse struct {
	TxID string `json:"txid"`
	Hex  string `json:"hex,omitempty"`
}

type BSMVerifyRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature" validate:"required,base64"`
	Address   string `json:"address" validate:"required"`
}

type SigmaVerifyRequest struct {
	Hex      string `json:"hex" validate:"required,hexadecimal"`
	Vout     int    `json:"vout" validate:"gte=0"`
	Instance int    `json:"instance" validate:"gte=0"`
	Vin      *int   `json:"vin,omitempty"`
	Address  string `json:"address,omitempty"`
}

type VerifyResponse struct {
	Valid   bool   `json:"valid"`
	Address string `json:"address,omitempty"`
	Error   string `json:"error,omitempty"`
}

type FeeRequest struct {
	Hex  string   `json:"hex" validate:"required,hexadecimal"`
	Rate *float64 `json:"rate,omitempty" validate:"omitempty,gte=0"`
}

type FeeResponse struct {
	Size    int   `json:"size"`
	Fee     int64 `json:"fee"`
	SafeFee int64 `json:"safe_fee"`
}

type ApplyResponse struct {
	Signed bool   `json:"signed"`
	TxID   string `json:"txid"`
	Hex    string `json:"hex"`
}

type CheckResponse struct {
	Signed   bool `json:"signed"`
	Resolved int  `json:"resolved"`
}

// Server holds the relay state. The zero value is not usable; use New.
type Server struct {
	cfg      *config.Config
	net      *chaincfg.Params
	txs      *txbuilder.PrevTxStore
	sigs     *cache.Cache
	mutex    sync.Mutex
	registry *prometheus.Registry
	metrics  *Metrics

	srv *http.Server
}

// New creates a server. A nil cfg uses the defaults.
func New(cfg *config.Config) *Server {
	if cfg == nil {
		cfg = &config.Config{}
	}
	cfg.ApplyDefaults()
	registry := prometheus.NewRegistry()
	return &Server{
		cfg:      cfg,
		net:      cfg.NetParams(),
		txs:      txbuilder.NewPrevTxStore(DefaultTTL),
		sigs:     cache.New(DefaultTTL, cleanupPeriod),
		registry: registry,
		metrics:  NewMetrics(registry),
	}
}

// Store is the previous transaction store backing the /tx routes.
func (s *Server) Store() *txbuilder.PrevTxStore {
	return s.txs
}

// Router returns the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/tx", s.postTx).Methods("POST")
	r.HandleFunc("/tx/{txid}", s.getTx).Methods("GET")
	r.HandleFunc("/tx/{txid}", s.deleteTx).Methods("DELETE")

	r.HandleFunc("/sigs/{txid}", s.postSignature).Methods("POST")
	r.HandleFunc("/sigs/{txid}", s.getSignatures).Methods("GET")
	r.HandleFunc("/sigs/{txid}", s.deleteSignatures).Methods("DELETE")
	r.HandleFunc("/sigs/{txid}/apply", s.applySignatures).Methods("POST")

	r.HandleFunc("/verify/bsm", s.verifyBSM).Methods("POST")
	r.HandleFunc("/verify/sigma", s.verifySigma).Methods("POST")
	r.HandleFunc("/verify/tx", s.checkTx).Methods("POST")
	r.HandleFunc("/fee", s.fee).Methods("POST")

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods("GET")
	r.Use(s.metrics.middleware)

	return r
}

// Handler is the router with CORS enabled for browser wallets.
func (s *Server) Handler() http.Handler {
	return cors.Default().Handler(s.Router())
}

// ListenAndServe serves on the configured address until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.cfg.RelayAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logs.Logf(log, "relay listening on %s", s.cfg.RelayAddr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logs.Logln(log, "relay stopped on", s.cfg.RelayAddr)
		return nil
	})
	return g.Wait()
}

// ---- Helpers ----
func getTxID(r *http.Request) (chainhash.Hash, error) {
	h, err := chainhash.NewHashFromStr(mux.Vars(r)["txid"])
	if err != nil {
		return chainhash.Hash{}, err
	}
	return *h, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(v); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(v); err != nil {
		http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("failed to write response: %v", err)
	}
}

func parseTx(h string) (*txbuilder.Tx, error) {
	tx, _, err := txbuilder.ParseAnyHex(h)
	return tx, err
}

// ---- Transaction Handlers ----
func (s *Server) postTx(w http.ResponseWriter, r *http.Request) {
	var req TxRequest
	if !decode(w, r, &req) {
		return
	}
	tx, err := parseTx(req.Hex)
	if err != nil {
		http.Error(w, "invalid transaction", http.StatusBadRequest)
		return
	}
	id := s.txs.Put(tx.MsgTx())
	s.metrics.StoredTxs.Set(float64(s.txs.Len()))
	respond(w, http.StatusCreated, TxResponse{TxID: id.String()})
	logs.Logln(log, "stored transaction", id)
}

func (s *Server) getTx(w http.ResponseWriter, r *http.Request) {
	id, err := getTxID(r)
	if err != nil {
		http.Error(w, "invalid txid", http.StatusBadRequest)
		return
	}
	msg, found := s.txs.Get(id)
	if !found {
		http.Error(w, "transaction not found", http.StatusNotFound)
		return
	}
	tx, err := txbuilder.FromMsgTx(msg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h, err := tx.Hex()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respond(w, http.StatusOK, TxResponse{TxID: id.String(), Hex: h})
}

func (s *Server) deleteTx(w http.ResponseWriter, r *http.Request) {
	id, err := getTxID(r)
	if err != nil {
		http.Error(w, "invalid txid", http.StatusBadRequest)
		return
	}
	if !s.txs.Delete(id) {
		http.Error(w, "transaction not found", http.StatusNotFound)
		return
	}
	s.metrics.StoredTxs.Set(float64(s.txs.Len()))
	w.WriteHeader(http.StatusOK)
	log.Debugf("deleted transaction %s", id)
}

// ---- Signature Mailbox Handlers ----
func (s *Server) postSignature(w http.ResponseWriter, r *http.Request) {
	id, err := getTxID(r)
	if err != nil {
		http.Error(w, "invalid txid", http.StatusBadRequest)
		return
	}
	var sig Signature
	if !decode(w, r, &sig) {
		return
	}
	if _, err := sig.request(); err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	var sigs []Signature
	if data, found := s.sigs.Get(id.String()); found {
		sigs = data.([]Signature)
	}
	for _, have := range sigs {
		if have.same(sig) {
			respond(w, http.StatusOK, map[string]string{"id": have.ID})
			return
		}
	}
	sig.ID = uuid.NewString()
	sigs = append(sigs, sig)
	s.sigs.Set(id.String(), sigs, cache.DefaultExpiration)
	s.metrics.Signatures.Inc()

	respond(w, http.StatusCreated, map[string]string{"id": sig.ID})
	logs.Logf(log, "signature for %s:%d added to draft %s", sig.PrevTxID, sig.PrevIndex, id)
}

func (s *Server) getSignatures(w http.ResponseWriter, r *http.Request) {
	id, err := getTxID(r)
	if err != nil {
		http.Error(w, "invalid txid", http.StatusBadRequest)
		return
	}
	sigs, found := s.signatures(id)
	if !found {
		http.Error(w, "no signatures found", http.StatusNotFound)
		return
	}
	respond(w, http.StatusOK, sigs)
}

func (s *Server) deleteSignatures(w http.ResponseWriter, r *http.Request) {
	id, err := getTxID(r)
	if err != nil {
		http.Error(w, "invalid txid", http.StatusBadRequest)
		return
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.sigs.Delete(id.String())
	w.WriteHeader(http.StatusOK)
}

func (s *Server) signatures(id chainhash.Hash) ([]Signature, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	data, found := s.sigs.Get(id.String())
	if !found {
		return nil, false
	}
	return append([]Signature(nil), data.([]Signature)...), true
}

// ---- Verification Handlers ----
func (s *Server) verifyBSM(w http.ResponseWriter, r *http.Request) {
	var req BSMVerifyRequest
	if !decode(w, r, &req) {
		return
	}
	err := bsm.VerifyBase64([]byte(req.Message), req.Signature, req.Address)
	resp := VerifyResponse{Valid: err == nil, Address: req.Address}
	if err != nil {
		resp.Error = err.Error()
	}
	s.metrics.verified("bsm", resp.Valid)
	respond(w, http.StatusOK, resp)
}

func (s *Server) verifySigma(w http.ResponseWriter, r *http.Request) {
	var req SigmaVerifyRequest
	if !decode(w, r, &req) {
		return
	}
	tx, err := parseTx(req.Hex)
	if err != nil {
		http.Error(w, "invalid transaction", http.StatusBadRequest)
		return
	}
	vin := sigma.UseTargetVout
	if req.Vin != nil {
		vin = *req.Vin
	}
	sg := sigma.New(tx, req.Vout, req.Instance, vin, sigma.WithNetParams(s.net))
	valid, err := sg.Verify(req.Address)
	resp := VerifyResponse{Valid: valid}
	if sig := sg.Sig(); sig != nil {
		resp.Address = sig.Address
	}
	if err != nil {
		resp.Error = err.Error()
	}
	s.metrics.verified("sigma", resp.Valid)
	respond(w, http.StatusOK, resp)
}

// checkTx reports whether every input of a draft carries a valid signature.
// Previous transactions known to the store are resolved first.
func (s *Server) checkTx(w http.ResponseWriter, r *http.Request) {
	var req TxRequest
	if !decode(w, r, &req) {
		return
	}
	tx, err := parseTx(req.Hex)
	if err != nil {
		http.Error(w, "invalid transaction", http.StatusBadRequest)
		return
	}
	resolved := tx.ResolvePrevTxs(s.txs)
	signed, err := tx.CheckSignatures()
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.metrics.verified("tx", signed)
	respond(w, http.StatusOK, CheckResponse{Signed: signed, Resolved: resolved})
}

// applySignatures installs the mailbox signatures of draft {txid} into the
// posted draft and returns the result.
func (s *Server) applySignatures(w http.ResponseWriter, r *http.Request) {
	id, err := getTxID(r)
	if err != nil {
		http.Error(w, "invalid txid", http.StatusBadRequest)
		return
	}
	var req TxRequest
	if !decode(w, r, &req) {
		return
	}
	tx, err := parseTx(req.Hex)
	if err != nil {
		http.Error(w, "invalid transaction", http.StatusBadRequest)
		return
	}
	sigs, found := s.signatures(id)
	if !found {
		http.Error(w, "no signatures found", http.StatusNotFound)
		return
	}
	reqs := make([]txbuilder.SignatureRequest, 0, len(sigs))
	for _, sig := range sigs {
		sr, err := sig.request()
		if err != nil {
			continue
		}
		reqs = append(reqs, sr)
	}
	tx.ResolvePrevTxs(s.txs)
	signed, err := tx.Sign(nil, reqs, false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	h, err := tx.Hex()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respond(w, http.StatusOK, ApplyResponse{Signed: signed, TxID: tx.TxHash().String(), Hex: h})
	logs.Logf(log, "applied %d signatures to draft %s", len(reqs), id)
}

func (s *Server) fee(w http.ResponseWriter, r *http.Request) {
	var req FeeRequest
	if !decode(w, r, &req) {
		return
	}
	tx, err := parseTx(req.Hex)
	if err != nil {
		http.Error(w, "invalid transaction", http.StatusBadRequest)
		return
	}
	rate := s.cfg.FeeSatsPerByte
	if req.Rate != nil {
		rate = *req.Rate
	}
	respond(w, http.StatusOK, FeeResponse{
		Size:    tx.Size(),
		Fee:     int64(tx.EstimateFee(rate)),
		SafeFee: int64(tx.SafeEstimateFee(rate)),
	})
}
