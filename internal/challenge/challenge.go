// Package challenge builds the priced, time-boxed payment demands
// returned when a refill is requested without payment.
package challenge

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/quartzpay/refillgate/internal/models"
)

// DefaultTTL is the fixed validity window for a challenge.
const DefaultTTL = 5 * time.Minute

const nonceBytes = 16

// Issuer builds payment challenges for a fixed payee and network. No
// state is kept across issuances; the nonce and expiry are advisory to
// the caller.
type Issuer struct {
	PayTo   string
	Network string
	TTL     time.Duration

	now func() time.Time
}

// NewIssuer builds an issuer. A zero ttl selects DefaultTTL.
func NewIssuer(payTo, network string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{PayTo: payTo, Network: network, TTL: ttl, now: time.Now}
}

// Issue creates a challenge for a quoted request.
func (i *Issuer) Issue(quote models.Quote, resource string) (models.PaymentChallenge, error) {
	nonce, err := newNonce()
	if err != nil {
		return models.PaymentChallenge{}, err
	}
	issued := i.now().UTC()
	return models.PaymentChallenge{
		MaxAmountRequired: quote.RequiredPayment,
		Resource:          resource,
		PayTo:             i.PayTo,
		Network:           i.Network,
		Nonce:             nonce,
		IssuedAt:          issued,
		ExpiresAt:         issued.Add(i.TTL),
		Quote:             quote,
	}, nil
}

// newNonce returns 128 bits of cryptographic randomness as bare hex.
func newNonce() (string, error) {
	var buf [nonceBytes]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("challenge: nonce generation failed: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
