// Package beancount provides repository pattern for Beancount file operations.
package beancount

import "github.com/shopspring/decimal"

// Transaction represents a Beancount transaction.
type Transaction struct {
	Date      string            // YYYY-MM-DD
	Narration string            // Transaction description
	Payee     string            // Payee name (optional)
	Tags      []string          // Tags (e.g., ["reversal"])
	Links     []string          // Links (optional)
	Metadata  map[string]string // Metadata key-value pairs
	Postings  []Posting         // Transaction postings
}

// YearMonth returns the YYYY-MM month file key of the transaction.
func (t Transaction) YearMonth() string {
	if len(t.Date) < 7 {
		return ""
	}
	return t.Date[:7]
}

// Posting represents a posting in a Beancount transaction.
type Posting struct {
	Account  string          // Account name (e.g., "Assets:Section:Cash")
	Amount   decimal.Decimal // Positive for debit, negative for credit
	Currency string          // Currency code (e.g., "EUR")
	Comment  string          // Posting comment (optional)
}
