package settle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/quartzpay/refillgate/internal/ledger"
)

var ErrRefillRejected = errors.New("refill broadcast rejected")

// refillMemo tags refill transfers on-chain.
const refillMemo = "refillgate refill"

// Executor issues refill transfers from the single funding account.
// Submissions are serialized and sequence numbers allocated locally so
// concurrent refills never race for the same account sequence slot; the
// counter is re-synced from the node after any failed broadcast.
type Executor struct {
	ledger         ledger.Client
	key            *ledger.Key
	fundingAddress string

	mu     sync.Mutex
	next   uint64
	synced bool
}

// Refill is the outcome of a successful refill broadcast.
type Refill struct {
	TxID string
}

func NewExecutor(lc ledger.Client, key *ledger.Key, fundingAddress string) *Executor {
	return &Executor{ledger: lc, key: key, fundingAddress: fundingAddress}
}

// Execute builds, signs, and broadcasts the refill transfer. A failure
// here is fatal for the request; the caller owns recording it.
func (e *Executor) Execute(ctx context.Context, amount uint64, recipient string) (*Refill, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.synced {
		n, err := e.ledger.AccountNonce(ctx, e.fundingAddress)
		if err != nil {
			return nil, fmt.Errorf("%w: sequence lookup: %v", ErrRefillRejected, err)
		}
		e.next = n
		e.synced = true
	}

	tx, err := e.ledger.BuildTransfer(recipient, amount, e.key, e.next, refillMemo)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefillRejected, err)
	}

	txid, err := e.ledger.Broadcast(ctx, tx)
	if err != nil {
		e.synced = false
		return nil, fmt.Errorf("%w: %v", ErrRefillRejected, err)
	}
	e.next++

	zap.L().Info("refill broadcast",
		zap.String("txid", txid),
		zap.String("recipient", recipient),
		zap.Uint64("amount", amount))

	return &Refill{TxID: txid}, nil
}
