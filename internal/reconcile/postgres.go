package reconcile

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGJournal stores records in postgres. See cmd/migrate for the schema.
type PGJournal struct {
	db *pgxpool.Pool
}

// NewPGJournal connects to postgres and verifies the connection.
func NewPGJournal(ctx context.Context, connString string) (*PGJournal, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("reconcile: unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("reconcile: unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("reconcile: unable to ping database: %w", err)
	}

	return &PGJournal{db: pool}, nil
}

func (j *PGJournal) Append(ctx context.Context, rec Record) error {
	_, err := j.db.Exec(ctx,
		`INSERT INTO reconciliation_records
		   (id, request_id, payment_txid, recipient_address, asset,
		    requested_amount, paid_amount, failure_reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.RequestID, rec.PaymentTxID, rec.RecipientAddress, rec.Asset,
		rec.RequestedAmount, rec.PaidAmount, rec.FailureReason, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("reconcile: insert record: %w", err)
	}
	return nil
}

// Pending lists unresolved records, oldest first, for operator tooling.
func (j *PGJournal) Pending(ctx context.Context, limit int) ([]Record, error) {
	rows, err := j.db.Query(ctx,
		`SELECT id, request_id, payment_txid, recipient_address, asset,
		        requested_amount, paid_amount, failure_reason, created_at
		   FROM reconciliation_records
		  WHERE resolved_at IS NULL
		  ORDER BY created_at
		  LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("reconcile: query pending: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.PaymentTxID,
			&rec.RecipientAddress, &rec.Asset, &rec.RequestedAmount,
			&rec.PaidAmount, &rec.FailureReason, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("reconcile: scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (j *PGJournal) Close() {
	j.db.Close()
}
