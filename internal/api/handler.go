package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quartzpay/refillgate/internal/models"
	"github.com/quartzpay/refillgate/internal/pricing"
	"github.com/quartzpay/refillgate/internal/settle"
)

// PaymentHeader carries the hex-encoded signed payment submission on
// POST /refill.
const PaymentHeader = "X-Payment"

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refill_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "refill_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "endpoint"})

	settlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refill_settlements_total",
		Help: "Terminal settlement states of POST /refill",
	}, []string{"state"})
)

type Handler struct {
	coord   *settle.Coordinator
	table   *pricing.Table
	name    string
	version string
	network string
}

func NewHandler(coord *settle.Coordinator, table *pricing.Table, name, version, network string) *Handler {
	return &Handler{coord: coord, table: table, name: name, version: version, network: network}
}

// Routes registers the service endpoints on r.
func (h *Handler) Routes(r *mux.Router) {
	r.HandleFunc("/", h.Info).Methods("GET")
	r.HandleFunc("/tokens", h.Tokens).Methods("GET")
	r.HandleFunc("/quote", h.Quote).Methods("GET")
	r.HandleFunc("/refill", h.Refill).Methods("POST")
	r.HandleFunc("/health", h.Health).Methods("GET")
}

func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, models.ServiceInfo{
		Name:    h.name,
		Version: h.version,
		Network: h.network,
		Assets:  h.table.Symbols(),
	}, "GET", "/")
}

func (h *Handler) Tokens(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.table.Tokens(), "GET", "/tokens")
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, models.HealthResponse{
		Status:        "ok",
		Timestamp:     time.Now().UTC(),
		RefillCapable: h.coord.RefillCapable(),
	}, "GET", "/health")
}

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("GET", "/quote"))
	defer timer.ObserveDuration()

	asset := r.URL.Query().Get("asset")
	amountStr := r.URL.Query().Get("amount")
	if asset == "" || amountStr == "" {
		respondWithError(w, http.StatusBadRequest, "asset and amount query parameters are required", "GET", "/quote")
		return
	}
	amount, err := strconv.ParseUint(amountStr, 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "amount must be a positive integer", "GET", "/quote")
		return
	}

	quote, err := h.table.Quote(asset, amount)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error(), "GET", "/quote")
		return
	}
	respondWithJSON(w, http.StatusOK, quote, "GET", "/quote")
}

func (h *Handler) Refill(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/refill"))
	defer timer.ObserveDuration()

	var req models.RefillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed JSON body", "POST", "/refill")
		return
	}

	submission, err := paymentSubmission(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error(), "POST", "/refill")
		return
	}

	res := h.coord.Settle(r.Context(), req, submission, RequestID(r.Context()))
	settlementsTotal.WithLabelValues(string(res.State)).Inc()

	switch res.State {
	case settle.StateRejectedInput:
		respondWithError(w, http.StatusBadRequest, res.Err.Error(), "POST", "/refill")

	case settle.StateUnavailable:
		respondWithError(w, http.StatusServiceUnavailable, res.Err.Error(), "POST", "/refill")

	case settle.StateChallenged:
		respondWithJSON(w, http.StatusPaymentRequired, res.Challenge, "POST", "/refill")

	case settle.StatePaymentRejected:
		respondWithJSON(w, http.StatusPaymentRequired, map[string]string{
			"error":   "payment rejected",
			"details": res.Err.Error(),
		}, "POST", "/refill")

	case settle.StateRefillFailed:
		respondWithJSON(w, http.StatusInternalServerError, map[string]string{
			"error":       "refill failed after payment was collected",
			"details":     res.Err.Error(),
			"paymentTxid": res.Payment.TxID,
			"manualRecoveryNotice": "your payment was received but the refill could not be delivered; " +
				"keep the payment txid and contact the operator for manual recovery",
		}, "POST", "/refill")

	case settle.StateSettled:
		respondWithJSON(w, http.StatusOK, models.RefillResponse{
			Payment: models.PaymentInfo{TxID: res.Payment.TxID, Amount: res.Payment.Amount},
			Refill: models.RefillInfo{
				TxID:             res.Refill.TxID,
				Asset:            strings.ToUpper(req.Asset),
				Amount:           req.Amount,
				RecipientAddress: req.RecipientAddress,
			},
		}, "POST", "/refill")

	default:
		respondWithError(w, http.StatusInternalServerError, "internal error", "POST", "/refill")
	}
}

var errBadPaymentHeader = errors.New("payment header must be hex-encoded transaction bytes")

// paymentSubmission decodes the optional payment header. An absent or
// empty header means an unpaid request.
func paymentSubmission(r *http.Request) ([]byte, error) {
	value := strings.TrimSpace(r.Header.Get(PaymentHeader))
	if value == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(value, "0x"))
	if err != nil || len(raw) == 0 {
		return nil, errBadPaymentHeader
	}
	return raw, nil
}

func respondWithError(w http.ResponseWriter, code int, message, method, endpoint string) {
	respondWithJSON(w, code, map[string]string{"error": message}, method, endpoint)
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
