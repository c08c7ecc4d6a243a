package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Kind distinguishes exported receipts from reversals.
type Kind string

const (
	KindReceipt  Kind = "receipt"
	KindReversal Kind = "reversal"
)

const dateLayout = "2006-01-02"

// Run is one recorded reconcile invocation.
type Run struct {
	ID             int64
	ContextKey     string
	Role           string
	From, To       time.Time // zero when the bound is open
	ReceiptCount   int
	ReversalCount  int
	ReceiptsTotal  decimal.Decimal
	ReversalsTotal decimal.Decimal
	Net            decimal.Decimal
	TableErrors    int
	StoreAttempts  int
	StoreRetries   int
	RanAt          time.Time
}

// Export is one transaction written to a ledger file.
type Export struct {
	ID         int64
	ContextKey string
	Kind       Kind
	RecordID   string
	Date       time.Time
	Amount     decimal.Decimal
	LedgerFile string
	ExportedAt time.Time
}

// History manages run and export bookkeeping.
type History struct {
	conn *Connection
}

// NewHistory creates a new History instance.
func NewHistory(conn *Connection) *History {
	return &History{conn: conn}
}

// RecordRun stores a run and returns its id.
func (h *History) RecordRun(run Run) (int64, error) {
	res, err := h.conn.Exec(`
		INSERT INTO reconciliation_runs
			(context_key, role, period_from, period_to, receipt_count, reversal_count,
			 receipts_total, reversals_total, net, table_errors, store_attempts, store_retries)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ContextKey,
		run.Role,
		formatDate(run.From),
		formatDate(run.To),
		run.ReceiptCount,
		run.ReversalCount,
		run.ReceiptsTotal.String(),
		run.ReversalsTotal.String(),
		run.Net.String(),
		run.TableErrors,
		run.StoreAttempts,
		run.StoreRetries,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record run: %w", err)
	}
	return res.LastInsertId()
}

// LatestRun returns the most recent run for a context, or nil when there is none.
func (h *History) LatestRun(contextKey string) (*Run, error) {
	row := h.conn.QueryRow(`
		SELECT id, context_key, role, period_from, period_to, receipt_count, reversal_count,
		       receipts_total, reversals_total, net, table_errors, store_attempts, store_retries, ran_at
		FROM reconciliation_runs
		WHERE context_key = ?
		ORDER BY id DESC
		LIMIT 1`, contextKey)

	var (
		run                     Run
		from, to                string
		receipts, reversals, nt string
	)
	err := row.Scan(
		&run.ID,
		&run.ContextKey,
		&run.Role,
		&from,
		&to,
		&run.ReceiptCount,
		&run.ReversalCount,
		&receipts,
		&reversals,
		&nt,
		&run.TableErrors,
		&run.StoreAttempts,
		&run.StoreRetries,
		&run.RanAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	if run.From, err = parseDate(from); err != nil {
		return nil, err
	}
	if run.To, err = parseDate(to); err != nil {
		return nil, err
	}
	if run.ReceiptsTotal, err = decimal.NewFromString(receipts); err != nil {
		return nil, fmt.Errorf("invalid receipts total %q: %w", receipts, err)
	}
	if run.ReversalsTotal, err = decimal.NewFromString(reversals); err != nil {
		return nil, fmt.Errorf("invalid reversals total %q: %w", reversals, err)
	}
	if run.Net, err = decimal.NewFromString(nt); err != nil {
		return nil, fmt.Errorf("invalid net %q: %w", nt, err)
	}
	return &run, nil
}

// RecordExport marks a transaction as exported.
// If the record already exists (same context + kind + record id), it updates it.
func (h *History) RecordExport(e Export) error {
	return recordExport(h.conn, e)
}

// RecordExports stores a batch of exports and metadata values in one
// transaction, so either all of them are kept or none.
func (h *History) RecordExports(exports []Export, metadata map[string]string) error {
	if len(exports) == 0 && len(metadata) == 0 {
		return nil
	}
	return h.conn.Transaction(func(tx *sql.Tx) error {
		for _, e := range exports {
			if err := recordExport(tx, e); err != nil {
				return err
			}
		}
		for k, v := range metadata {
			if err := setMetadata(tx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func recordExport(ex execer, e Export) error {
	_, err := ex.Exec(`
		INSERT INTO exported_transactions (context_key, kind, record_id, txn_date, amount, ledger_file)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(context_key, kind, record_id) DO UPDATE SET
			txn_date = excluded.txn_date,
			amount = excluded.amount,
			ledger_file = excluded.ledger_file,
			exported_at = CURRENT_TIMESTAMP`,
		e.ContextKey,
		string(e.Kind),
		e.RecordID,
		formatDate(e.Date),
		e.Amount.String(),
		e.LedgerFile,
	)
	if err != nil {
		return fmt.Errorf("failed to record export %s %s: %w", e.Kind, e.RecordID, err)
	}
	return nil
}

// IsExported reports whether a transaction has been exported.
func (h *History) IsExported(contextKey string, kind Kind, recordID string) (bool, error) {
	var count int
	err := h.conn.QueryRow(`
		SELECT COUNT(*) FROM exported_transactions
		WHERE context_key = ? AND kind = ? AND record_id = ?`,
		contextKey, string(kind), recordID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check if exported: %w", err)
	}
	return count > 0, nil
}

// ExportedIDs returns the exported record ids of one kind for bulk filtering.
func (h *History) ExportedIDs(contextKey string, kind Kind) (map[string]bool, error) {
	rows, err := h.conn.Query(`
		SELECT record_id FROM exported_transactions
		WHERE context_key = ? AND kind = ?`,
		contextKey, string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get exported IDs: %w", err)
	}
	defer rows.Close()

	ids := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan record ID: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// Exports lists a context's exports, newest transaction date first.
func (h *History) Exports(contextKey string) ([]Export, error) {
	rows, err := h.conn.Query(`
		SELECT id, context_key, kind, record_id, txn_date, amount, ledger_file, exported_at
		FROM exported_transactions
		WHERE context_key = ?
		ORDER BY txn_date DESC, id DESC`, contextKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get exports: %w", err)
	}
	defer rows.Close()

	var exports []Export
	for rows.Next() {
		var (
			e            Export
			kind, d, amt string
		)
		if err := rows.Scan(&e.ID, &e.ContextKey, &kind, &e.RecordID, &d, &amt, &e.LedgerFile, &e.ExportedAt); err != nil {
			return nil, fmt.Errorf("failed to scan export: %w", err)
		}
		e.Kind = Kind(kind)
		if e.Date, err = parseDate(d); err != nil {
			return nil, err
		}
		if e.Amount, err = decimal.NewFromString(amt); err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", amt, err)
		}
		exports = append(exports, e)
	}
	return exports, rows.Err()
}

// DeleteExport forgets an export so the transaction is written again on the
// next export run.
func (h *History) DeleteExport(contextKey string, kind Kind, recordID string) (bool, error) {
	result, err := h.conn.Exec(`
		DELETE FROM exported_transactions
		WHERE context_key = ? AND kind = ? AND record_id = ?`,
		contextKey, string(kind), recordID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete export: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Stats represents history statistics.
type Stats struct {
	TotalRuns      int
	TotalReceipts  int
	TotalReversals int
	LastExport     sql.NullString
}

// GetStats retrieves history statistics, across all contexts when contextKey is empty.
func (h *History) GetStats(contextKey string) (*Stats, error) {
	var stats Stats

	where, args := "", []any{}
	if contextKey != "" {
		where, args = " WHERE context_key = ?", []any{contextKey}
	}

	if err := h.conn.QueryRow(`SELECT COUNT(*) FROM reconciliation_runs`+where, args...).Scan(&stats.TotalRuns); err != nil {
		return nil, fmt.Errorf("failed to get run count: %w", err)
	}

	err := h.conn.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN kind = 'receipt' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'reversal' THEN 1 ELSE 0 END), 0),
			MAX(exported_at)
		FROM exported_transactions`+where, args...,
	).Scan(&stats.TotalReceipts, &stats.TotalReversals, &stats.LastExport)
	if err != nil {
		return nil, fmt.Errorf("failed to get export counts: %w", err)
	}

	return &stats, nil
}

// GetMetadata retrieves a metadata value, or "" when unset.
func (h *History) GetMetadata(key string) (string, error) {
	var value string
	err := h.conn.QueryRow(`SELECT value FROM sync_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata: %w", err)
	}
	return value, nil
}

// SetMetadata sets a metadata value.
func (h *History) SetMetadata(key, value string) error {
	return setMetadata(h.conn, key, value)
}

func setMetadata(ex execer, key, value string) error {
	_, err := ex.Exec(`
		INSERT INTO sync_metadata (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set metadata %s: %w", key, err)
	}
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored date %q: %w", s, err)
	}
	return t, nil
}
