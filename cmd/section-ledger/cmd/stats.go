package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pigeonworks-llc/section-ledger/pkg/db"
	"github.com/pigeonworks-llc/section-ledger/pkg/export"
	"github.com/pigeonworks-llc/section-ledger/pkg/pathutil"
)

var statsContext string

// statsCmd represents the stats command.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display reconciliation and export statistics",
	Long: `Display statistics from the history database.

Shows:
- Number of recorded reconciliation runs
- Number of exported receipts and reversals
- Last export timestamp
- The latest run's totals (with --context)

Example:
  section-ledger stats
  section-ledger stats --context agrupamento_123_lobitos`,
	Run: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsContext, "context", "", "limit to one context key")
}

func runStats(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if err := cfg.Validate("ledger.root"); err != nil {
		exitOnError(err, "invalid configuration")
	}

	paths := pathutil.New(pathutil.Config{Root: cfg.Ledger.Root, DatabasePath: cfg.Ledger.DBPath})
	slog.Debug("Opening database", "path", paths.DatabasePath())

	conn, err := db.Open(paths.DatabasePath())
	exitOnError(err, "failed to open database")
	defer conn.Close()
	history := db.NewHistory(conn)

	stats, err := history.GetStats(statsContext)
	exitOnError(err, "failed to get statistics")

	fmt.Println("\n=== Ledger Statistics ===")
	fmt.Printf("Reconciliation runs: %d\n", stats.TotalRuns)
	fmt.Printf("Exported receipts:   %d\n", stats.TotalReceipts)
	fmt.Printf("Exported reversals:  %d\n", stats.TotalReversals)
	if stats.LastExport.Valid {
		fmt.Printf("Last export:         %s\n", stats.LastExport.String)
	} else {
		fmt.Printf("Last export:         (never)\n")
	}

	if statsContext != "" {
		run, err := history.LatestRun(statsContext)
		exitOnError(err, "failed to get latest run")
		if run != nil {
			fmt.Printf("\nLatest run (%s, role %s):\n", run.RanAt.Format("2006-01-02 15:04"), run.Role)
			fmt.Printf("  Receipts:  %d  %s\n", run.ReceiptCount, run.ReceiptsTotal.StringFixed(2))
			fmt.Printf("  Reversals: %d  %s\n", run.ReversalCount, run.ReversalsTotal.StringFixed(2))
			fmt.Printf("  Net:       %s\n", run.Net.StringFixed(2))
			fmt.Printf("  Store:     %d calls, %d retried, %d table error(s)\n", run.StoreAttempts, run.StoreRetries, run.TableErrors)
		}
		if last, err := history.GetMetadata(export.LastExportKey(statsContext)); err == nil && last != "" {
			fmt.Printf("Context last export: %s\n", last)
		}
	}
	fmt.Println()
}
