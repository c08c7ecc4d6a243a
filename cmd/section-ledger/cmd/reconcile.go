package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/pigeonworks-llc/section-ledger/pkg/db"
	"github.com/pigeonworks-llc/section-ledger/pkg/pathutil"
	"github.com/pigeonworks-llc/section-ledger/pkg/reconcile"
	"github.com/pigeonworks-llc/section-ledger/pkg/store"
)

var (
	contextKey string
	roleName   string
	dateFrom   string
	dateTo     string
	listTxns   bool
)

// reconcileCmd represents the reconcile command.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile receipts and reversals for one context",
	Long: `Fetch the tables of one tenant context, reconcile receipts and reversals,
and print totals by payment method and category.

This command:
1. Selects the context (--context, or the only one configured)
2. Fetches the role's tables with retries
3. Reconciles receipts and reversals
4. Prints the summary for the period
5. Records the run in the history database

Example:
  section-ledger reconcile --context agrupamento_123_lobitos
  section-ledger reconcile --role tesoureiro --from 2024-01-01 --to 2024-03-31 --list`,
	Run: runReconcile,
}

func init() {
	for _, c := range []*cobra.Command{reconcileCmd, exportCmd} {
		c.Flags().StringVar(&contextKey, "context", "", "tenant context key (default: the only configured context)")
		c.Flags().StringVar(&roleName, "role", string(store.RoleAdmin), "role whose tables are loaded (pais, tesoureiro, admin)")
		c.Flags().StringVar(&dateFrom, "from", "", "start date (YYYY-MM-DD)")
		c.Flags().StringVar(&dateTo, "to", "", "end date (YYYY-MM-DD)")
	}
	reconcileCmd.Flags().BoolVar(&listTxns, "list", false, "print every transaction")
}

func runReconcile(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	role, err := store.ParseRole(roleName)
	exitOnError(err, "invalid role")
	from, to := parseDay("from", dateFrom), parseDay("to", dateTo)

	reg := newRegistry(cfg)
	session, tc := selectContext(reg, contextKey)
	st, metrics := newStore(cfg, session, reg)

	slog.Info("Starting reconciliation", "context", tc.Key, "role", role, "from", dateFrom, "to", dateTo)

	full, errs := fetchLedger(cmd.Context(), st, role)
	ledger := full.Between(from, to)
	summary := reconcile.Summarize(ledger)

	fmt.Printf("\n=== %s ===\n", tc.Label())
	if ledger.ReversalSource != "" {
		source := ledger.ReversalSource
		if ledger.Derived {
			source += " (derived)"
		}
		fmt.Printf("Reversals from: %s\n", source)
	}
	printSummary(summary)
	if c, ok := full.Compare(from, to); ok {
		printComparison(c)
	}
	if listTxns {
		printDays(summary.ByDay)
		printTransactions("Receipts", ledger.Receipts)
		printTransactions("Reversals", ledger.Reversals)
	}
	counts := storeCounts(metrics)
	fmt.Printf("Store calls: %d (%d retried, %d failed)\n", counts.Attempts, counts.Retries, counts.Permanent)
	if len(errs) > 0 {
		fmt.Printf("\n%d table(s) could not be loaded; totals may be incomplete\n", len(errs))
	}

	paths := pathutil.New(pathutil.Config{Root: cfg.Ledger.Root, DatabasePath: cfg.Ledger.DBPath})
	conn, err := db.Open(paths.DatabasePath())
	exitOnError(err, "failed to open database")
	defer conn.Close()

	_, err = db.NewHistory(conn).RecordRun(db.Run{
		ContextKey:     tc.Key,
		Role:           string(role),
		From:           from,
		To:             to,
		ReceiptCount:   summary.ReceiptCount,
		ReversalCount:  summary.ReversalCount,
		ReceiptsTotal:  summary.ReceiptsTotal,
		ReversalsTotal: summary.ReversalsTotal,
		Net:            summary.Net,
		TableErrors:    len(errs),
		StoreAttempts:  counts.Attempts,
		StoreRetries:   counts.Retries,
	})
	exitOnError(err, "failed to record run")

	slog.Info("Reconciliation completed",
		"context", tc.Key,
		"receipts", summary.ReceiptCount,
		"reversals", summary.ReversalCount,
		"net", summary.Net.StringFixed(2),
		"store_attempts", counts.Attempts,
		"store_retries", counts.Retries,
	)
}

func printSummary(s reconcile.Summary) {
	fmt.Printf("Receipts:  %4d  %12s\n", s.ReceiptCount, s.ReceiptsTotal.StringFixed(2))
	fmt.Printf("Reversals: %4d  %12s\n", s.ReversalCount, s.ReversalsTotal.StringFixed(2))
	fmt.Printf("Net:              %12s\n", s.Net.StringFixed(2))
	fmt.Printf("Average receipt:  %12s\n", s.AverageReceipt.StringFixed(2))

	printBreakdown("By payment method", s.ByPaymentMethod)
	printBreakdown("By category", s.ByCategory)
	fmt.Println()
}

func printComparison(c reconcile.Comparison) {
	fmt.Printf("Previous period %s to %s:\n", c.PreviousFrom.Format("2006-01-02"), c.PreviousTo.Format("2006-01-02"))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, row := range []struct {
		name          string
		current, prev decimal.Decimal
	}{
		{"Receipts", c.Current.ReceiptsTotal, c.Previous.ReceiptsTotal},
		{"Reversals", c.Current.ReversalsTotal, c.Previous.ReversalsTotal},
		{"Net", c.Current.Net, c.Previous.Net},
		{"Average receipt", c.Current.AverageReceipt, c.Previous.AverageReceipt},
	} {
		change := "-"
		if pct, ok := reconcile.PercentChange(row.current, row.prev); ok {
			change = fmt.Sprintf("%+.1f%%", pct.InexactFloat64())
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t\n", row.name, row.prev.StringFixed(2), change)
	}
	_ = w.Flush()
	fmt.Println()
}

func printDays(days []reconcile.DayTotal) {
	if len(days) == 0 {
		return
	}
	fmt.Println("\nBy day:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "  DATE\tRECEIPTS\tREVERSALS\tNET\t")
	for _, d := range days {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t\n",
			d.Date.Format("2006-01-02"), d.Receipts.StringFixed(2), d.Reversals.StringFixed(2), d.Net().StringFixed(2))
	}
	_ = w.Flush()
}

func printBreakdown(title string, m map[string]decimal.Decimal) {
	if len(m) == 0 {
		return
	}
	fmt.Printf("\n%s:\n", title)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, k := range reconcile.Keys(m) {
		fmt.Fprintf(w, "  %s\t%s\t\n", k, m[k].StringFixed(2))
	}
	_ = w.Flush()
}

func printTransactions(title string, txns []reconcile.Transaction) {
	fmt.Printf("\n%s (%d):\n", title, len(txns))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  DATE\tRECORD\tSUBJECT\tAMOUNT\tMETHOD\tCATEGORY\tRESPONSIBLE")
	for _, t := range txns {
		d := "-"
		if t.HasDate() {
			d = t.Date.Format("2006-01-02")
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d, t.RecordID, t.SubjectLabel, t.Amount.StringFixed(2), t.PaymentMethod, t.Category, t.ResponsibleLabel)
	}
	_ = w.Flush()
}
