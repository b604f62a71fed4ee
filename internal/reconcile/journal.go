// Package reconcile records settlements whose payment leg succeeded but
// whose refill leg did not. These records are the input to a manual
// operator workflow; they must never be dropped.
package reconcile

import (
	"context"
	"sync"
	"time"
)

// Record is durable evidence of a collected payment with no matching
// refill. Append-only; resolution happens outside this service.
type Record struct {
	ID               string    `json:"id"`
	RequestID        string    `json:"requestId"`
	PaymentTxID      string    `json:"paymentTxid"`
	RecipientAddress string    `json:"recipientAddress"`
	Asset            string    `json:"asset"`
	RequestedAmount  uint64    `json:"requestedAmount"`
	PaidAmount       uint64    `json:"paidAmount"`
	FailureReason    string    `json:"failureReason"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Journal is an append-only store of reconciliation records.
type Journal interface {
	Append(ctx context.Context, rec Record) error
}

// MemoryJournal keeps records in memory. Test use only.
type MemoryJournal struct {
	mu      sync.Mutex
	records []Record
}

func NewMemoryJournal() *MemoryJournal { return &MemoryJournal{} }

func (j *MemoryJournal) Append(_ context.Context, rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, rec)
	return nil
}

// Records returns a copy of everything appended so far.
func (j *MemoryJournal) Records() []Record {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Record, len(j.records))
	copy(out, j.records)
	return out
}
