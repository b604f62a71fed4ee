// Package settle implements the two-phase settlement core: verifying a
// caller-submitted payment by broadcasting it, then issuing the refill
// transfer from the service's funding account. The two legs are not
// atomic; a refill failure after a collected payment is recorded for
// manual reconciliation.
package settle

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/quartzpay/refillgate/internal/ledger"
)

var (
	ErrMalformedSubmission = errors.New("malformed payment submission")
	ErrWrongPayloadType    = errors.New("payment is not a plain token transfer")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrBroadcastRejected   = errors.New("payment broadcast rejected")
)

// Payment is the outcome of a successful verification.
type Payment struct {
	TxID   string
	Amount uint64
}

// Verifier validates and broadcasts payment submissions. Broadcast
// acceptance by the node is the payment oracle; no confirmation or
// balance check is made, and a submission is evaluated exactly once.
type Verifier struct {
	ledger ledger.Client
}

func NewVerifier(lc ledger.Client) *Verifier {
	return &Verifier{ledger: lc}
}

// Verify checks a raw signed submission against the required minimum
// and submits it to the node. Overpayment is accepted; the excess is
// neither refunded nor tracked.
func (v *Verifier) Verify(ctx context.Context, raw []byte, requiredMin uint64) (*Payment, error) {
	tx, err := v.ledger.Deserialize(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSubmission, err)
	}

	if tx.PayloadType != ledger.PayloadTokenTransfer {
		return nil, fmt.Errorf("%w: payload type 0x%02x", ErrWrongPayloadType, tx.PayloadType)
	}

	if tx.Amount < requiredMin {
		return nil, fmt.Errorf("%w: got %d, need at least %d", ErrInsufficientPayment, tx.Amount, requiredMin)
	}

	txid, err := v.ledger.Broadcast(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBroadcastRejected, err)
	}

	zap.L().Info("payment accepted",
		zap.String("txid", txid),
		zap.Uint64("amount", tx.Amount),
		zap.Uint64("required", requiredMin))

	return &Payment{TxID: txid, Amount: tx.Amount}, nil
}
