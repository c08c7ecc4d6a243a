package reconcile

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pigeonworks-llc/section-ledger/pkg/table"
)

// Ledger is the outcome of one reconciliation pass.
type Ledger struct {
	Receipts  []Transaction
	Reversals []Transaction
	// ReversalSource is the table reversals were read from; Derived is true when
	// that is the receipts table itself.
	ReversalSource string
	Derived        bool
}

// Ledger reconciles receipts and reversals with one set of lookups.
func (r *Reconciler) Ledger(tables *table.Tables) Ledger {
	lk := r.Lookups(tables)
	source, derived := r.reversalSource(tables)
	return Ledger{
		Receipts:       r.ReceiptsWith(tables, lk),
		Reversals:      r.ReversalsWith(tables, lk),
		ReversalSource: source,
		Derived:        derived,
	}
}

// Between keeps the transactions dated within [from, to]. A zero bound is open.
func (l Ledger) Between(from, to time.Time) Ledger {
	l.Receipts = FilterPeriod(l.Receipts, from, to)
	l.Reversals = FilterPeriod(l.Reversals, from, to)
	return l
}

// FilterPeriod keeps transactions dated within [from, to], comparing calendar
// days. Undated transactions are dropped when either bound is set.
func FilterPeriod(txns []Transaction, from, to time.Time) []Transaction {
	if from.IsZero() && to.IsZero() {
		return txns
	}
	from, to = day(from), day(to)

	var out []Transaction
	for _, t := range txns {
		if !t.HasDate() {
			continue
		}
		d := day(t.Date)
		if !from.IsZero() && d.Before(from) {
			continue
		}
		if !to.IsZero() && d.After(to) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func day(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Summary aggregates a Ledger. Breakdowns are net: receipts minus reversals.
type Summary struct {
	ReceiptsTotal   decimal.Decimal
	ReversalsTotal  decimal.Decimal
	Net             decimal.Decimal
	ByPaymentMethod map[string]decimal.Decimal
	ByCategory      map[string]decimal.Decimal
	ReceiptCount    int
	ReversalCount   int
	// AverageReceipt is ReceiptsTotal over ReceiptCount, zero without receipts.
	AverageReceipt decimal.Decimal
	// ByDay holds dated transactions totalled per calendar day, oldest first.
	ByDay []DayTotal
}

// DayTotal is what was received and reversed on one day.
type DayTotal struct {
	Date      time.Time
	Receipts  decimal.Decimal
	Reversals decimal.Decimal
}

// Unlabelled is the breakdown key for transactions without a value.
const Unlabelled = "(none)"

// Summarize totals a Ledger.
func Summarize(l Ledger) Summary {
	s := Summary{
		ByPaymentMethod: map[string]decimal.Decimal{},
		ByCategory:      map[string]decimal.Decimal{},
		ReceiptCount:    len(l.Receipts),
		ReversalCount:   len(l.Reversals),
	}

	add := func(t Transaction, amount decimal.Decimal) {
		s.ByPaymentMethod[label(t.PaymentMethod)] = s.ByPaymentMethod[label(t.PaymentMethod)].Add(amount)
		s.ByCategory[label(t.Category)] = s.ByCategory[label(t.Category)].Add(amount)
	}
	days := map[time.Time]*DayTotal{}
	onDay := func(t Transaction) *DayTotal {
		if !t.HasDate() {
			return nil
		}
		d := day(t.Date)
		if days[d] == nil {
			days[d] = &DayTotal{Date: d}
		}
		return days[d]
	}

	for _, t := range l.Receipts {
		s.ReceiptsTotal = s.ReceiptsTotal.Add(t.Amount)
		add(t, t.Amount)
		if dt := onDay(t); dt != nil {
			dt.Receipts = dt.Receipts.Add(t.Amount)
		}
	}
	for _, t := range l.Reversals {
		s.ReversalsTotal = s.ReversalsTotal.Add(t.Amount)
		add(t, t.Amount.Neg())
		if dt := onDay(t); dt != nil {
			dt.Reversals = dt.Reversals.Add(t.Amount)
		}
	}
	s.Net = s.ReceiptsTotal.Sub(s.ReversalsTotal)
	if s.ReceiptCount > 0 {
		s.AverageReceipt = s.ReceiptsTotal.Div(decimal.NewFromInt(int64(s.ReceiptCount)))
	}

	for _, dt := range days {
		s.ByDay = append(s.ByDay, *dt)
	}
	sort.Slice(s.ByDay, func(i, j int) bool { return s.ByDay[i].Date.Before(s.ByDay[j].Date) })
	return s
}

// Net is what stayed on the day.
func (d DayTotal) Net() decimal.Decimal { return d.Receipts.Sub(d.Reversals) }

// PreviousPeriod returns the period of the same number of days ending the day
// before from. Both bounds must be set.
func PreviousPeriod(from, to time.Time) (time.Time, time.Time, bool) {
	if from.IsZero() || to.IsZero() {
		return time.Time{}, time.Time{}, false
	}
	from, to = day(from), day(to)
	if to.Before(from) {
		return time.Time{}, time.Time{}, false
	}
	days := int(to.Sub(from).Hours()/24) + 1
	prevTo := from.AddDate(0, 0, -1)
	return prevTo.AddDate(0, 0, -(days - 1)), prevTo, true
}

// Comparison pairs a period's summary with the previous period's.
type Comparison struct {
	Current      Summary
	Previous     Summary
	PreviousFrom time.Time
	PreviousTo   time.Time
}

// Compare summarizes [from, to] and the period just before it.
func (l Ledger) Compare(from, to time.Time) (Comparison, bool) {
	prevFrom, prevTo, ok := PreviousPeriod(from, to)
	if !ok {
		return Comparison{}, false
	}
	return Comparison{
		Current:      Summarize(l.Between(from, to)),
		Previous:     Summarize(l.Between(prevFrom, prevTo)),
		PreviousFrom: prevFrom,
		PreviousTo:   prevTo,
	}, true
}

// PercentChange is the change from previous to current in percent, rounded to
// one decimal place. It reports false when previous is zero.
func PercentChange(current, previous decimal.Decimal) (decimal.Decimal, bool) {
	if previous.IsZero() {
		return decimal.Zero, false
	}
	return current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)).Round(1), true
}

// Keys returns the keys of a breakdown, sorted.
func Keys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func label(s string) string {
	if s == "" {
		return Unlabelled
	}
	return s
}
