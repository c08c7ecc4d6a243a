package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pigeonworks-llc/section-ledger/pkg/db"
	"github.com/pigeonworks-llc/section-ledger/pkg/pathutil"
)

var (
	exportsContext string
	forgetKind     string
	forgetIDs      []string
)

// exportsCmd represents the exports command.
var exportsCmd = &cobra.Command{
	Use:   "exports",
	Short: "List or forget exported transactions of one context",
	Long: `List the transactions already written to a context's ledger files.

With --forget the given record ids are removed from the history, so the next
export writes them again. The ledger files themselves are not edited.

Example:
  section-ledger exports --context agrupamento_123_lobitos
  section-ledger exports --context agrupamento_123_lobitos --kind reversal --forget recB`,
	Run: runExports,
}

func init() {
	exportsCmd.Flags().StringVar(&exportsContext, "context", "", "tenant context key")
	exportsCmd.Flags().StringVar(&forgetKind, "kind", string(db.KindReceipt), "kind of the forgotten records (receipt, reversal)")
	exportsCmd.Flags().StringSliceVar(&forgetIDs, "forget", nil, "record ids to forget")
	_ = exportsCmd.MarkFlagRequired("context")
}

func runExports(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if err := cfg.Validate("ledger.root"); err != nil {
		exitOnError(err, "invalid configuration")
	}
	kind, err := parseKind(forgetKind)
	exitOnError(err, "invalid --kind")

	paths := pathutil.New(pathutil.Config{Root: cfg.Ledger.Root, DatabasePath: cfg.Ledger.DBPath})
	conn, err := db.Open(paths.DatabasePath())
	exitOnError(err, "failed to open database")
	defer conn.Close()
	history := db.NewHistory(conn)

	if len(forgetIDs) > 0 {
		for _, id := range forgetIDs {
			deleted, err := history.DeleteExport(exportsContext, kind, id)
			exitOnError(err, "failed to forget export")
			if deleted {
				fmt.Printf("Forgot %s %s\n", kind, id)
			} else {
				fmt.Printf("Not exported: %s %s\n", kind, id)
			}
		}
		return
	}

	exports, err := history.Exports(exportsContext)
	exitOnError(err, "failed to list exports")
	if len(exports) == 0 {
		fmt.Println("No exported transactions.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tKIND\tRECORD\tAMOUNT\tFILE\tEXPORTED")
	for _, e := range exports {
		d := "-"
		if !e.Date.IsZero() {
			d = e.Date.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d, e.Kind, e.RecordID, e.Amount.StringFixed(2), e.LedgerFile, e.ExportedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

func parseKind(s string) (db.Kind, error) {
	switch k := db.Kind(s); k {
	case db.KindReceipt, db.KindReversal:
		return k, nil
	}
	return "", fmt.Errorf("unknown kind %q", s)
}
