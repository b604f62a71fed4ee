package models

import "time"

// Quote prices a refill request in the reference asset. Derived per
// request, never persisted.
type Quote struct {
	Asset           string `json:"asset"`
	RequestedAmount uint64 `json:"requestedAmount"`
	RequiredPayment uint64 `json:"requiredPayment"`
	Rate            string `json:"rate"`
	FeePercent      string `json:"feePercent"`
}

// PaymentChallenge is the 402 response body returned when a refill is
// requested without an accompanying payment submission. The nonce and
// expiry are advisory to the caller: the next submission is re-priced
// from its own request body.
type PaymentChallenge struct {
	MaxAmountRequired uint64    `json:"maxAmountRequired"`
	Resource          string    `json:"resource"`
	PayTo             string    `json:"payTo"`
	Network           string    `json:"network"`
	Nonce             string    `json:"nonce"`
	IssuedAt          time.Time `json:"issuedAt"`
	ExpiresAt         time.Time `json:"expiresAt"`
	Quote             Quote     `json:"quote"`
}

// RefillRequest is the payload from the client.
type RefillRequest struct {
	Asset            string `json:"asset"`
	Amount           uint64 `json:"amount"`
	RecipientAddress string `json:"recipientAddress"`
}

// PaymentInfo reports the verified payment leg of a settlement.
type PaymentInfo struct {
	TxID   string `json:"txid"`
	Amount uint64 `json:"amount"`
}

// RefillInfo reports the refill leg of a settlement.
type RefillInfo struct {
	TxID             string `json:"txid"`
	Asset            string `json:"asset"`
	Amount           uint64 `json:"amount"`
	RecipientAddress string `json:"recipientAddress"`
}

// RefillResponse is the canonical 200 body for a fully settled request.
type RefillResponse struct {
	Payment PaymentInfo `json:"payment"`
	Refill  RefillInfo  `json:"refill"`
}

// TokenInfo describes one accepted asset in the /tokens listing.
type TokenInfo struct {
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	Rate      string `json:"rate"`
	MinAmount uint64 `json:"minAmount"`
	MaxAmount uint64 `json:"maxAmount"`
}

// ServiceInfo is the GET / metadata body.
type ServiceInfo struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Network string   `json:"network"`
	Assets  []string `json:"assets"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	RefillCapable bool      `json:"refillCapable"`
}
