// Package reconcile turns raw receipt and reversal records into canonical
// transactions.
package reconcile

import (
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pigeonworks-llc/section-ledger/pkg/columns"
	"github.com/pigeonworks-llc/section-ledger/pkg/names"
	"github.com/pigeonworks-llc/section-ledger/pkg/normalize"
	"github.com/pigeonworks-llc/section-ledger/pkg/table"
)

// Transaction is one reconciled receipt or reversal. Amount is never negative;
// the list a transaction belongs to carries its direction.
type Transaction struct {
	RecordID         string
	SubjectID        string
	SubjectLabel     string
	Amount           decimal.Decimal
	Category         string
	PaymentMethod    string
	Date             time.Time // zero when the record has no usable date
	ResponsibleLabel string
}

// HasDate reports whether the transaction carries a date.
func (t Transaction) HasDate() bool { return !t.Date.IsZero() }

// Lookups are the id→name maps built from one fetch.
type Lookups struct {
	Subjects    names.Map
	Permissions names.Map
	General     names.Map
}

// Reconciler applies a Schema to fetched tables.
type Reconciler struct {
	schema Schema
	logger *slog.Logger
}

// New creates a Reconciler. A nil logger uses slog.Default().
func New(schema Schema, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if schema.Separator == "" {
		schema.Separator = normalize.DefaultSeparator
	}
	return &Reconciler{schema: schema, logger: logger}
}

// Schema returns the schema in use.
func (r *Reconciler) Schema() Schema { return r.schema }

// Lookups builds the name maps for tables.
func (r *Reconciler) Lookups(tables *table.Tables) Lookups {
	lk := Lookups{
		Subjects:    names.Map{},
		Permissions: names.Map{},
		General:     names.BuildNameMap(tables),
	}
	if rs, ok := tables.Get(r.schema.SubjectsTable); ok {
		lk.Subjects = names.BuildColumnMap(rs, r.schema.SubjectNameColumns)
	}
	if _, ok := tables.Get(r.schema.PermissionsTable); ok {
		lk.Permissions = names.BuildNameMap(tables.Only(r.schema.PermissionsTable))
	}
	return lk
}

// Receipts reconciles the receipts table.
func (r *Reconciler) Receipts(tables *table.Tables) []Transaction {
	return r.ReceiptsWith(tables, r.Lookups(tables))
}

// Reversals reconciles the reversal table, or the reversal rows of the receipts
// table when no reversal table has records.
func (r *Reconciler) Reversals(tables *table.Tables) []Transaction {
	return r.ReversalsWith(tables, r.Lookups(tables))
}

// ReceiptsWith is Receipts with precomputed lookups. When reversals are derived
// from the receipts table, rows carrying a reversal signal are left out so that
// net totals do not count them twice.
func (r *Reconciler) ReceiptsWith(tables *table.Tables, lk Lookups) []Transaction {
	rs, ok := tables.Get(r.schema.ReceiptsTable)
	if !ok || rs.Empty() {
		return nil
	}

	if _, derived := r.reversalSource(tables); derived {
		rs = rs.Filter(func(rec table.Record) bool { return !r.isReversal(rec) })
	}

	cols := r.resolve(rs, r.schema.Receipt)
	cols.lookup = r.responsibleLookupColumn(rs, cols.responsible)

	out := r.convert(rs, cols, lk)
	r.logger.Debug("receipts reconciled", "table", r.schema.ReceiptsTable, "records", len(rs), "transactions", len(out))
	return out
}

// ReversalsWith is Reversals with precomputed lookups.
func (r *Reconciler) ReversalsWith(tables *table.Tables, lk Lookups) []Transaction {
	source, derived := r.reversalSource(tables)
	if source == "" {
		return nil
	}

	rs, _ := tables.Get(source)
	if derived {
		rs = rs.Filter(r.isReversal)
		if rs.Empty() {
			return nil
		}
	}

	cols := r.resolve(rs, r.schema.Reversal)
	cols.skipZero = derived
	out := r.convert(rs, cols, lk)
	r.logger.Debug("reversals reconciled", "table", source, "derived", derived, "records", len(rs), "transactions", len(out))
	return out
}

// ReversalSource reports which table reversals come from and whether they are
// derived from the receipts table.
func (r *Reconciler) ReversalSource(tables *table.Tables) (tableName string, derived bool) {
	return r.reversalSource(tables)
}

func (r *Reconciler) reversalSource(tables *table.Tables) (string, bool) {
	for _, name := range r.schema.ReversalTables {
		if rs, ok := tables.Get(name); ok && !rs.Empty() {
			return name, false
		}
	}
	if rs, ok := tables.Get(r.schema.ReceiptsTable); ok && !rs.Empty() {
		return r.schema.ReceiptsTable, true
	}
	return "", false
}

// isReversal ORs every reversal signal a receipts row can carry.
func (r *Reconciler) isReversal(rec table.Record) bool {
	keyword := normalize.Fold(r.schema.MovementKeyword)
	for _, col := range exactColumns(rec, r.schema.MovementColumns) {
		if keyword != "" && strings.Contains(normalize.Fold(normalize.Flatten(rec.Field(col))), keyword) {
			return true
		}
	}
	for _, col := range exactColumns(rec, r.schema.FlagColumns) {
		if normalize.CoerceBoolean(rec.Field(col)) {
			return true
		}
	}
	if col := columns.ResolveExactColumns(fieldNames(rec), []string{r.schema.ReversedAmountColumn}); col != "" {
		if v, ok := normalize.CoerceAmount(rec.Field(col)); ok && !v.IsZero() {
			return true
		}
	}
	if col := columns.ResolveExactColumns(fieldNames(rec), []string{r.schema.ReceivedAmountColumn}); col != "" {
		if v, ok := normalize.CoerceAmount(rec.Field(col)); ok && v.IsNegative() {
			return true
		}
	}
	return false
}

// exactColumns returns, for each candidate, the record's column matching it exactly.
func exactColumns(rec table.Record, candidates []string) []string {
	have := fieldNames(rec)
	var out []string
	for _, c := range candidates {
		if col := columns.ResolveExactColumns(have, []string{c}); col != "" {
			out = append(out, col)
		}
	}
	return out
}

func fieldNames(rec table.Record) []string {
	cols := make([]string, 0, len(rec.Fields))
	for name := range rec.Fields {
		cols = append(cols, name)
	}
	sort.Strings(cols)
	return cols
}

type resolved struct {
	subject, date, method, responsible, category string
	// amounts holds the resolved amount column followed by every other
	// candidate present by exact name; a record uses the first that coerces.
	amounts []string
	// skipZero makes a record prefer the first non-zero amount, falling back
	// to zero only when no column holds anything else.
	skipZero bool
	lookup   string
}

func (r *Reconciler) resolve(rs table.RecordSet, f Fields) resolved {
	cols := rs.Columns()
	return resolved{
		subject:     columns.ResolveColumns(cols, f.Subject),
		amounts:     amountColumns(cols, f.Amount),
		date:        columns.ResolveColumns(cols, f.Date),
		method:      columns.ResolveColumns(cols, f.PaymentMethod),
		responsible: columns.ResolveColumns(cols, f.Responsible),
		category:    columns.ResolveColumns(cols, f.Category),
	}
}

// responsibleLookupColumn picks a sibling of the responsible column that holds
// display names, preferring names, then lookups, then anything else.
func (r *Reconciler) responsibleLookupColumn(rs table.RecordSet, responsible string) string {
	prefix := normalize.Fold(r.schema.ResponsibleLookupPrefix)
	if prefix == "" {
		return ""
	}
	excluded := map[string]bool{normalize.Fold(responsible): true}
	for _, c := range r.schema.ResponsibleLookupExclude {
		excluded[normalize.Fold(c)] = true
	}

	var candidates []string
	for _, col := range rs.Columns() {
		folded := normalize.Fold(col)
		if excluded[folded] || !strings.HasPrefix(folded, prefix) {
			continue
		}
		candidates = append(candidates, col)
	}
	if len(candidates) == 0 {
		return ""
	}

	score := func(col string) int {
		folded := normalize.Fold(col)
		switch {
		case strings.Contains(folded, "nome"), strings.Contains(folded, "name"):
			return 0
		case strings.Contains(folded, "lookup"):
			return 1
		}
		return 2
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := score(candidates[i]), score(candidates[j])
		if si != sj {
			return si < sj
		}
		return normalize.Fold(candidates[i]) < normalize.Fold(candidates[j])
	})
	return candidates[0]
}

func amountColumns(cols, candidates []string) []string {
	primary := columns.ResolveColumns(cols, candidates)
	if primary == "" {
		return nil
	}
	out := []string{primary}
	for _, c := range candidates {
		col := columns.ResolveExactColumns(cols, []string{c})
		if col != "" && !slices.Contains(out, col) {
			out = append(out, col)
		}
	}
	return out
}

func recordAmount(rec table.Record, cols []string, skipZero bool) (decimal.Decimal, bool) {
	found := false
	for _, col := range cols {
		v, ok := normalize.CoerceAmount(rec.Field(col))
		if !ok {
			continue
		}
		if !skipZero || !v.IsZero() {
			return v, true
		}
		found = true
	}
	return decimal.Decimal{}, found
}

func (r *Reconciler) convert(rs table.RecordSet, cols resolved, lk Lookups) []Transaction {
	if len(cols.amounts) == 0 {
		return nil
	}
	sep := r.schema.Separator

	out := make([]Transaction, 0, len(rs))
	for _, rec := range rs {
		amount, ok := recordAmount(rec, cols.amounts, cols.skipZero)
		if !ok {
			continue
		}

		txn := Transaction{
			RecordID: rec.ID,
			Amount:   amount.Abs(),
		}
		if cols.subject != "" {
			cell := rec.Field(cols.subject)
			txn.SubjectID = normalize.FlattenList(cell, sep)
			txn.SubjectLabel = normalize.MapList(cell, lk.Subjects, sep)
		}
		if cols.method != "" {
			txn.PaymentMethod = normalize.FlattenList(normalize.FirstScalar(rec.Field(cols.method)), sep)
		}
		if cols.date != "" {
			if d, ok := normalize.CoerceDate(rec.Field(cols.date)); ok {
				txn.Date = d
			}
		}
		if cols.category != "" {
			txn.Category = normalize.FlattenList(rec.Field(cols.category), sep)
		}
		txn.ResponsibleLabel = r.responsible(rec, cols, lk)

		out = append(out, txn)
	}
	return out
}

// responsible prefers a non-empty sibling lookup column, then the first map that
// knows any of the referenced ids, then the raw text.
func (r *Reconciler) responsible(rec table.Record, cols resolved, lk Lookups) string {
	sep := r.schema.Separator
	if cols.lookup != "" {
		if v := strings.TrimSpace(normalize.FlattenList(rec.Field(cols.lookup), sep)); v != "" {
			return v
		}
	}
	if cols.responsible == "" {
		return ""
	}

	cell := rec.Field(cols.responsible)
	for _, m := range []names.Map{lk.Permissions, lk.General, lk.Subjects} {
		if knowsAny(cell, m) {
			return normalize.MapList(cell, m, sep)
		}
	}
	return normalize.FlattenList(cell, sep)
}

func knowsAny(c table.Cell, m names.Map) bool {
	if len(m) == 0 {
		return false
	}
	if c.Kind() != table.KindList {
		_, ok := m[normalize.Flatten(c)]
		return ok
	}
	for _, item := range c.Items() {
		if knowsAny(item, m) {
			return true
		}
	}
	return false
}
