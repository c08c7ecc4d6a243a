// Package db keeps reconciliation runs and exported ledger entries in SQLite.
package db

// Schema defines the SQL statements to create database tables.
const Schema = `
-- One row per reconcile invocation.
CREATE TABLE IF NOT EXISTS reconciliation_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    context_key TEXT NOT NULL,
    role TEXT NOT NULL,
    period_from TEXT NOT NULL DEFAULT '',  -- YYYY-MM-DD, empty when open
    period_to TEXT NOT NULL DEFAULT '',
    receipt_count INTEGER NOT NULL,
    reversal_count INTEGER NOT NULL,
    receipts_total TEXT NOT NULL,          -- decimal text
    reversals_total TEXT NOT NULL,
    net TEXT NOT NULL,
    table_errors INTEGER NOT NULL DEFAULT 0,
    store_attempts INTEGER NOT NULL DEFAULT 0,
    store_retries INTEGER NOT NULL DEFAULT 0,
    ran_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_context
    ON reconciliation_runs(context_key, ran_at);

-- Transactions already written to a ledger file.
CREATE TABLE IF NOT EXISTS exported_transactions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    context_key TEXT NOT NULL,
    kind TEXT NOT NULL,                    -- 'receipt' or 'reversal'
    record_id TEXT NOT NULL,
    txn_date TEXT NOT NULL,                -- YYYY-MM-DD
    amount TEXT NOT NULL,                  -- decimal text
    ledger_file TEXT NOT NULL,
    exported_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(context_key, kind, record_id)
);

CREATE INDEX IF NOT EXISTS idx_exported_date
    ON exported_transactions(context_key, txn_date);

CREATE TABLE IF NOT EXISTS sync_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// InitializeSchema creates all tables if they don't exist.
func InitializeSchema(conn *Connection) error {
	_, err := conn.Exec(Schema)
	return err
}
