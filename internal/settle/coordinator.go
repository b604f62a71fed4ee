package settle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quartzpay/refillgate/internal/challenge"
	"github.com/quartzpay/refillgate/internal/ledger"
	"github.com/quartzpay/refillgate/internal/models"
	"github.com/quartzpay/refillgate/internal/pricing"
	"github.com/quartzpay/refillgate/internal/reconcile"
)

var (
	ErrInvalidRecipient = errors.New("invalid recipient address")
	ErrRefillDisabled   = errors.New("refill delivery disabled: no funding credential configured")
)

// State is the terminal state of one settlement attempt.
type State string

const (
	StateRejectedInput   State = "rejected_input"
	StateUnavailable     State = "refill_unavailable"
	StateChallenged      State = "challenged"
	StatePaymentRejected State = "payment_rejected"
	StateRefillFailed    State = "refill_rejected_post_payment"
	StateSettled         State = "settled"
)

// Result is the terminal outcome of one settlement attempt. Exactly one
// of Challenge / Payment+Refill is populated on the success paths; on
// StateRefillFailed both Payment and Record are set so the caller can
// surface the payment proof.
type Result struct {
	State     State
	Challenge *models.PaymentChallenge
	Payment   *Payment
	Refill    *Refill
	Record    *reconcile.Record
	Err       error
}

// Coordinator drives a refill request through quote, challenge,
// verification, and refill. It is stateless across requests: a
// submission is priced from its own request body, never resumed from a
// previously issued challenge.
type Coordinator struct {
	pricing  *pricing.Table
	issuer   *challenge.Issuer
	verifier *Verifier
	executor *Executor // nil when no funding key is configured
	journal  reconcile.Journal
}

func NewCoordinator(table *pricing.Table, issuer *challenge.Issuer, verifier *Verifier, executor *Executor, journal reconcile.Journal) *Coordinator {
	return &Coordinator{
		pricing:  table,
		issuer:   issuer,
		verifier: verifier,
		executor: executor,
		journal:  journal,
	}
}

// RefillCapable reports whether a funding credential is configured.
func (c *Coordinator) RefillCapable() bool { return c.executor != nil }

// Settle runs one settlement attempt. submission is the raw signed
// payment bytes, empty when the request is unpaid.
func (c *Coordinator) Settle(ctx context.Context, req models.RefillRequest, submission []byte, requestID string) *Result {
	if !ledger.ValidAddress(req.RecipientAddress) {
		return &Result{State: StateRejectedInput,
			Err: fmt.Errorf("%w: %q", ErrInvalidRecipient, req.RecipientAddress)}
	}
	quote, err := c.pricing.Quote(req.Asset, req.Amount)
	if err != nil {
		return &Result{State: StateRejectedInput, Err: err}
	}

	if len(submission) == 0 {
		ch, err := c.issuer.Issue(quote, "/refill")
		if err != nil {
			return &Result{State: StateRejectedInput, Err: err}
		}
		return &Result{State: StateChallenged, Challenge: &ch}
	}

	// The funding gate precedes verification: never collect a payment
	// that has no path to a refill.
	if c.executor == nil {
		return &Result{State: StateUnavailable, Err: ErrRefillDisabled}
	}

	payment, err := c.verifier.Verify(ctx, submission, quote.RequiredPayment)
	if err != nil {
		return &Result{State: StatePaymentRejected, Err: err}
	}

	refill, err := c.executor.Execute(ctx, req.Amount, req.RecipientAddress)
	if err != nil {
		rec := c.record(ctx, req, payment, requestID, err)
		return &Result{State: StateRefillFailed, Payment: payment, Record: &rec, Err: err}
	}

	zap.L().Info("settlement complete",
		zap.String("request_id", requestID),
		zap.String("payment_txid", payment.TxID),
		zap.String("refill_txid", refill.TxID),
		zap.String("asset", quote.Asset),
		zap.Uint64("amount", req.Amount))

	return &Result{State: StateSettled, Payment: payment, Refill: refill}
}

// record captures the inconsistent terminal state: payment collected,
// refill not executed. The journal write must not be dropped; if it
// fails, the full record is still in the error log for recovery.
func (c *Coordinator) record(ctx context.Context, req models.RefillRequest, payment *Payment, requestID string, cause error) reconcile.Record {
	rec := reconcile.Record{
		ID:               uuid.NewString(),
		RequestID:        requestID,
		PaymentTxID:      payment.TxID,
		RecipientAddress: req.RecipientAddress,
		Asset:            req.Asset,
		RequestedAmount:  req.Amount,
		PaidAmount:       payment.Amount,
		FailureReason:    cause.Error(),
		CreatedAt:        time.Now().UTC(),
	}

	fields := []zap.Field{
		zap.String("record_id", rec.ID),
		zap.String("request_id", rec.RequestID),
		zap.String("payment_txid", rec.PaymentTxID),
		zap.String("recipient", rec.RecipientAddress),
		zap.String("asset", rec.Asset),
		zap.Uint64("requested_amount", rec.RequestedAmount),
		zap.Uint64("paid_amount", rec.PaidAmount),
		zap.String("failure_reason", rec.FailureReason),
	}
	zap.L().Error("refill failed after verified payment; manual reconciliation required", fields...)

	if err := c.journal.Append(ctx, rec); err != nil {
		zap.L().Error("reconciliation journal write failed", append(fields, zap.Error(err))...)
	}
	return rec
}
