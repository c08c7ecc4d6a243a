package converter

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pigeonworks-llc/section-ledger/pkg/beancount"
	"github.com/pigeonworks-llc/section-ledger/pkg/reconcile"
)

// ReversalTag marks entries produced from reversals.
const ReversalTag = "reversal"

// ErrUndated is returned for transactions without a date; they have no month file.
var ErrUndated = errors.New("transaction has no date")

const amountColumn = 60

// Converter converts reconciled transactions to Beancount format.
type Converter struct {
	mapper   *Mapper
	currency string
}

// NewConverter creates a new Converter. The currency falls back to the mapping
// file's currency and then to EUR.
func NewConverter(mapper *Mapper, currency string) *Converter {
	if currency == "" {
		currency = mapper.Currency()
	}
	if currency == "" {
		currency = "EUR"
	}
	return &Converter{mapper: mapper, currency: currency}
}

// Currency returns the posting currency.
func (c *Converter) Currency() string {
	return c.currency
}

// ConvertReceipt debits the payment method's asset account and credits the
// category's income account.
func (c *Converter) ConvertReceipt(txn reconcile.Transaction) (beancount.Transaction, error) {
	return c.convert(txn, false)
}

// ConvertReversal mirrors ConvertReceipt: money leaves the asset account and the
// income is reduced.
func (c *Converter) ConvertReversal(txn reconcile.Transaction) (beancount.Transaction, error) {
	return c.convert(txn, true)
}

func (c *Converter) convert(txn reconcile.Transaction, reversal bool) (beancount.Transaction, error) {
	if !txn.HasDate() {
		return beancount.Transaction{}, fmt.Errorf("%w: record %s", ErrUndated, txn.RecordID)
	}

	amount := txn.Amount.Abs()
	if reversal {
		amount = amount.Neg()
	}

	out := beancount.Transaction{
		Date:      txn.Date.Format("2006-01-02"),
		Narration: narration(txn, reversal),
		Payee:     txn.SubjectLabel,
		Metadata:  map[string]string{"record": txn.RecordID},
		Postings: []beancount.Posting{
			{
				Account:  c.mapper.AssetAccount(txn.PaymentMethod),
				Amount:   amount,
				Currency: c.currency,
				Comment:  txn.PaymentMethod,
			},
			{
				Account:  c.mapper.IncomeAccount(txn.Category),
				Amount:   amount.Neg(),
				Currency: c.currency,
			},
		},
	}
	if txn.ResponsibleLabel != "" {
		out.Metadata["responsible"] = txn.ResponsibleLabel
	}
	if reversal {
		out.Tags = []string{ReversalTag}
	}
	return out, nil
}

// FormatTransaction formats a Beancount transaction as a string.
func (c *Converter) FormatTransaction(txn beancount.Transaction) string {
	var sb strings.Builder

	sb.WriteString(txn.Date)
	sb.WriteString(" *")
	if txn.Payee != "" {
		fmt.Fprintf(&sb, " %s", quote(txn.Payee))
	}
	fmt.Fprintf(&sb, " %s", quote(txn.Narration))
	for _, tag := range txn.Tags {
		sb.WriteString(" #" + tag)
	}
	for _, link := range txn.Links {
		sb.WriteString(" ^" + link)
	}
	sb.WriteString("\n")

	keys := make([]string, 0, len(txn.Metadata))
	for k := range txn.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "  %s: %s\n", k, quote(txn.Metadata[k]))
	}

	for _, posting := range txn.Postings {
		sb.WriteString("  ")
		sb.WriteString(posting.Account)

		amount := posting.Amount.StringFixed(2)
		// Right-align amounts (typical Beancount style)
		spaces := max(1, amountColumn-len(posting.Account)-len(amount))
		sb.WriteString(strings.Repeat(" ", spaces))
		fmt.Fprintf(&sb, "%s %s", amount, posting.Currency)

		if posting.Comment != "" {
			fmt.Fprintf(&sb, " ; %s", posting.Comment)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func narration(txn reconcile.Transaction, reversal bool) string {
	kind := "Receipt"
	if reversal {
		kind = "Reversal"
	}
	if txn.Category == "" {
		return kind
	}
	return kind + ": " + txn.Category
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + strings.ReplaceAll(s, "\n", " ") + `"`
}
