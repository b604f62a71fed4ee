// Command migrate creates the reconciliation journal schema.
package main

import (
	"context"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
)

const schema = `
CREATE TABLE IF NOT EXISTS reconciliation_records (
    id                TEXT PRIMARY KEY,
    request_id        TEXT NOT NULL,
    payment_txid      TEXT NOT NULL,
    recipient_address TEXT NOT NULL,
    asset             TEXT NOT NULL,
    requested_amount  BIGINT NOT NULL,
    paid_amount       BIGINT NOT NULL,
    failure_reason    TEXT NOT NULL,
    created_at        TIMESTAMPTZ NOT NULL,
    resolved_at       TIMESTAMPTZ,
    resolved_by       TEXT
);

CREATE INDEX IF NOT EXISTS idx_reconciliation_pending
    ON reconciliation_records (created_at)
    WHERE resolved_at IS NULL;
`

func main() {
	dbURL := os.Getenv("DB_SOURCE")
	if dbURL == "" {
		log.Fatal("DB_SOURCE environment variable is required")
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, schema); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	var count int
	conn.QueryRow(ctx, "SELECT COUNT(*) FROM reconciliation_records WHERE resolved_at IS NULL").Scan(&count)
	log.Printf("Schema ready. %d unresolved reconciliation records.", count)
}
