package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/quartzpay/refillgate/internal/challenge"
	"github.com/quartzpay/refillgate/internal/ledger"
	"github.com/quartzpay/refillgate/internal/models"
	"github.com/quartzpay/refillgate/internal/pricing"
	"github.com/quartzpay/refillgate/internal/reconcile"
	"github.com/quartzpay/refillgate/internal/settle"
)

const fundingKeyHex = "edf9aee84d9b7abc145504dde6726c64f369d37ee34ded868fabd876c26570bc"

type fakeLedger struct {
	svc        *ledger.Service
	failRefill bool
	broadcasts int
}

func (f *fakeLedger) Deserialize(raw []byte) (*ledger.Transaction, error) {
	return f.svc.Deserialize(raw)
}

func (f *fakeLedger) Broadcast(_ context.Context, tx *ledger.Transaction) (string, error) {
	if f.failRefill && tx.Memo != "payment" {
		return "", errors.New("node rejected transaction: NotEnoughFunds")
	}
	f.broadcasts++
	return ledger.TxID(tx.Raw), nil
}

func (f *fakeLedger) BuildTransfer(recipient string, amount uint64, key *ledger.Key, nonce uint64, memo string) (*ledger.Transaction, error) {
	return f.svc.BuildTransfer(recipient, amount, key, nonce, memo)
}

func (f *fakeLedger) AccountNonce(context.Context, string) (uint64, error) {
	return 0, nil
}

func testAddr(seed byte) string {
	var hash [20]byte
	for i := range hash {
		hash[i] = seed + byte(i)
	}
	return ledger.EncodeAddress(ledger.AddressVersionTestnet, hash)
}

type fixture struct {
	router  *mux.Router
	fake    *fakeLedger
	journal *reconcile.MemoryJournal
}

func newFixture(t *testing.T, withFunding bool) *fixture {
	t.Helper()
	fake := &fakeLedger{svc: ledger.NewService(nil, ledger.NetworkTestnet)}

	table, err := pricing.NewTable([]pricing.AssetConfig{{
		Symbol: "STX", Name: "Stacks",
		Rate:       decimal.RequireFromString("0.95"),
		FeePercent: decimal.RequireFromString("5"),
		MinAmount:  1_000_000, MaxAmount: 1_000_000_000_000,
	}})
	if err != nil {
		t.Fatal(err)
	}

	key, err := ledger.ParseKey(fundingKeyHex)
	if err != nil {
		t.Fatal(err)
	}
	var executor *settle.Executor
	if withFunding {
		executor = settle.NewExecutor(fake, key, key.Address(ledger.NetworkTestnet))
	}

	journal := reconcile.NewMemoryJournal()
	issuer := challenge.NewIssuer(testAddr(0x10), ledger.NetworkTestnet, 0)
	coord := settle.NewCoordinator(table, issuer, settle.NewVerifier(fake), executor, journal)

	h := NewHandler(coord, table, "refillgate", "1.0.0", ledger.NetworkTestnet)
	r := mux.NewRouter()
	h.Routes(r)

	return &fixture{router: r, fake: fake, journal: journal}
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) postRefill(t *testing.T, body models.RefillRequest, payment string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("POST", "/refill", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if payment != "" {
		req.Header.Set(PaymentHeader, payment)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// paymentHex builds a hex-encoded signed payment of amount.
func paymentHex(t *testing.T, f *fixture, amount uint64) string {
	t.Helper()
	key, err := ledger.ParseKey(fundingKeyHex)
	if err != nil {
		t.Fatal(err)
	}
	tx, err := f.fake.BuildTransfer(testAddr(0x10), amount, key, 5, "payment")
	if err != nil {
		t.Fatal(err)
	}
	return fmt.Sprintf("%x", tx.Raw)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("bad JSON response %q: %v", w.Body.String(), err)
	}
}

func TestInfoEndpoint(t *testing.T) {
	f := newFixture(t, true)
	w := f.get(t, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var info models.ServiceInfo
	decode(t, w, &info)
	if info.Name != "refillgate" || len(info.Assets) != 1 || info.Assets[0] != "STX" {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestTokensEndpoint(t *testing.T) {
	f := newFixture(t, true)
	w := f.get(t, "/tokens")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var tokens []models.TokenInfo
	decode(t, w, &tokens)
	if len(tokens) != 1 {
		t.Fatalf("got %d tokens", len(tokens))
	}
	tok := tokens[0]
	if tok.Symbol != "STX" || tok.Rate != "0.95" || tok.MinAmount != 1_000_000 || tok.MaxAmount != 1_000_000_000_000 {
		t.Errorf("unexpected token: %+v", tok)
	}
}

func TestHealthReportsRefillCapability(t *testing.T) {
	for _, withFunding := range []bool{true, false} {
		f := newFixture(t, withFunding)
		w := f.get(t, "/health")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var health models.HealthResponse
		decode(t, w, &health)
		if health.Status != "ok" || health.RefillCapable != withFunding {
			t.Errorf("withFunding=%v: %+v", withFunding, health)
		}
	}
}

func TestQuoteEndpoint(t *testing.T) {
	f := newFixture(t, true)

	w := f.get(t, "/quote?asset=STX&amount=1000000")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var quote models.Quote
	decode(t, w, &quote)
	if quote.RequiredPayment != 1_052_632 {
		t.Errorf("RequiredPayment = %d, want 1052632", quote.RequiredPayment)
	}
	if quote.Asset != "STX" || quote.Rate != "0.95" {
		t.Errorf("unexpected quote: %+v", quote)
	}
}

func TestQuoteEndpointErrors(t *testing.T) {
	f := newFixture(t, true)

	tests := []struct {
		name string
		path string
	}{
		{"missing params", "/quote"},
		{"missing amount", "/quote?asset=STX"},
		{"non-numeric amount", "/quote?asset=STX&amount=abc"},
		{"negative amount", "/quote?asset=STX&amount=-5"},
		{"unsupported asset", "/quote?asset=DOGE&amount=1000000"},
		{"below minimum", "/quote?asset=STX&amount=999999"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.get(t, tt.path)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			var body map[string]string
			decode(t, w, &body)
			if body["error"] == "" {
				t.Error("error message missing")
			}
		})
	}
}

func TestRefillBelowMinimumRejectedWithoutChallenge(t *testing.T) {
	f := newFixture(t, true)

	w := f.postRefill(t, models.RefillRequest{
		Asset: "STX", Amount: 1000, RecipientAddress: testAddr(0x20),
	}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if strings.Contains(w.Body.String(), "nonce") {
		t.Error("bounds rejection must not issue a challenge")
	}
}

func TestRefillUnpaidReturnsChallenge(t *testing.T) {
	f := newFixture(t, true)
	req := models.RefillRequest{Asset: "STX", Amount: 1_000_000, RecipientAddress: testAddr(0x20)}

	w := f.postRefill(t, req, "")
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", w.Code)
	}
	var ch models.PaymentChallenge
	decode(t, w, &ch)
	if ch.MaxAmountRequired != 1_052_632 {
		t.Errorf("maxAmountRequired = %d, want 1052632", ch.MaxAmountRequired)
	}
	if ch.PayTo != testAddr(0x10) || ch.Network != ledger.NetworkTestnet {
		t.Errorf("unexpected challenge: %+v", ch)
	}
	if !ch.ExpiresAt.After(ch.IssuedAt) {
		t.Error("challenge must expire after issuance")
	}

	w2 := f.postRefill(t, req, "")
	var ch2 models.PaymentChallenge
	decode(t, w2, &ch2)
	if ch2.Nonce == ch.Nonce {
		t.Error("each challenge must carry a fresh nonce")
	}
}

func TestRefillPaidSettles(t *testing.T) {
	f := newFixture(t, true)

	w := f.postRefill(t, models.RefillRequest{
		Asset: "stx", Amount: 1_000_000, RecipientAddress: testAddr(0x20),
	}, paymentHex(t, f, 1_052_632))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp models.RefillResponse
	decode(t, w, &resp)
	if resp.Payment.TxID == "" || resp.Refill.TxID == "" {
		t.Fatalf("txids missing: %+v", resp)
	}
	if resp.Payment.Amount != 1_052_632 {
		t.Errorf("payment amount = %d", resp.Payment.Amount)
	}
	if resp.Refill.Asset != "STX" || resp.Refill.Amount != 1_000_000 || resp.Refill.RecipientAddress != testAddr(0x20) {
		t.Errorf("unexpected refill info: %+v", resp.Refill)
	}
	if f.fake.broadcasts != 2 {
		t.Errorf("broadcasts = %d, want 2", f.fake.broadcasts)
	}
}

func TestRefillShortPaymentRejected(t *testing.T) {
	f := newFixture(t, true)

	w := f.postRefill(t, models.RefillRequest{
		Asset: "STX", Amount: 1_000_000, RecipientAddress: testAddr(0x20),
	}, paymentHex(t, f, 1_052_631))
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", w.Code)
	}
	var body map[string]string
	decode(t, w, &body)
	if body["error"] == "" || !strings.Contains(body["details"], "insufficient payment") {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestRefillFailureAfterPayment(t *testing.T) {
	f := newFixture(t, true)
	f.fake.failRefill = true

	w := f.postRefill(t, models.RefillRequest{
		Asset: "STX", Amount: 1_000_000, RecipientAddress: testAddr(0x20),
	}, paymentHex(t, f, 1_052_632))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}

	var body map[string]string
	decode(t, w, &body)
	if body["paymentTxid"] == "" {
		t.Error("response must include the payment txid")
	}
	if body["manualRecoveryNotice"] == "" {
		t.Error("response must include the manual recovery notice")
	}
	if strings.Contains(strings.ToLower(body["error"]), "success") {
		t.Error("response must not claim success")
	}

	recs := f.journal.Records()
	if len(recs) != 1 {
		t.Fatalf("got %d reconciliation records, want 1", len(recs))
	}
	if recs[0].PaymentTxID != body["paymentTxid"] {
		t.Error("journal record and response disagree on payment txid")
	}
}

func TestRefillWithoutFundingKeyIs503(t *testing.T) {
	f := newFixture(t, false)

	w := f.postRefill(t, models.RefillRequest{
		Asset: "STX", Amount: 1_000_000, RecipientAddress: testAddr(0x20),
	}, paymentHex(t, f, 1_052_632))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if f.fake.broadcasts != 0 {
		t.Error("no verification may happen while refill is disabled")
	}
}

func TestRefillBadPaymentHeader(t *testing.T) {
	f := newFixture(t, true)

	w := f.postRefill(t, models.RefillRequest{
		Asset: "STX", Amount: 1_000_000, RecipientAddress: testAddr(0x20),
	}, "zz-not-hex")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestRefillMalformedBody(t *testing.T) {
	f := newFixture(t, true)
	req := httptest.NewRequest("POST", "/refill", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
