package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pigeonworks-llc/section-ledger/pkg/converter"
	"github.com/pigeonworks-llc/section-ledger/pkg/db"
	"github.com/pigeonworks-llc/section-ledger/pkg/export"
	"github.com/pigeonworks-llc/section-ledger/pkg/pathutil"
	"github.com/pigeonworks-llc/section-ledger/pkg/store"
)

var dryRun bool

// exportCmd represents the export command.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Append reconciled transactions to Beancount files",
	Long: `Reconcile one context and append new receipts and reversals to the
section's monthly Beancount files.

This command:
1. Fetches and reconciles the context's tables
2. Filters out already exported transactions
3. Converts them with the account mapping
4. Appends to {root}/{group}/{section}/YYYY/YYYY-MM.beancount
5. Records exports in SQLite

Example:
  section-ledger export --context agrupamento_123_lobitos --from 2024-01-01 --to 2024-01-31
  section-ledger export --dry-run`,
	Run: runExport,
}

func init() {
	exportCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print entries without writing files")
}

func runExport(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if err := cfg.Validate("ledger.root", "ledger.currency"); err != nil {
		exitOnError(err, "invalid configuration")
	}
	role, err := store.ParseRole(roleName)
	exitOnError(err, "invalid role")
	from, to := parseDay("from", dateFrom), parseDay("to", dateTo)

	mapper := converter.NewMapperFromConfig(converter.DefaultMappingConfig())
	if cfg.Ledger.MappingFile != "" {
		if m, err := converter.NewMapper(cfg.Ledger.MappingFile); err == nil {
			mapper = m
		} else {
			slog.Warn("Using default account mapping", "file", cfg.Ledger.MappingFile, "error", err)
		}
	}

	reg := newRegistry(cfg)
	session, tc := selectContext(reg, contextKey)
	st, metrics := newStore(cfg, session, reg)

	slog.Info("Starting export", "context", tc.Key, "from", dateFrom, "to", dateTo, "dry_run", dryRun)

	full, errs := fetchLedger(cmd.Context(), st, role)
	counts := storeCounts(metrics)
	slog.Info("Tables fetched", "store_attempts", counts.Attempts, "store_retries", counts.Retries, "table_errors", len(errs))
	if len(errs) > 0 && !dryRun {
		exitOnError(fmt.Errorf("%d table(s) failed to load", len(errs)), "refusing to export a partial ledger")
	}

	paths := pathutil.New(pathutil.Config{Root: cfg.Ledger.Root, DatabasePath: cfg.Ledger.DBPath})
	conn, err := db.Open(paths.DatabasePath())
	exitOnError(err, "failed to open database")
	defer conn.Close()
	history := db.NewHistory(conn)

	exporter := export.New(converter.NewConverter(mapper, cfg.Ledger.Currency), history, paths, slog.Default())
	res, err := exporter.Export(tc, full.Between(from, to), dryRun)
	exitOnError(err, "export failed")

	if dryRun {
		fmt.Printf("[DRY RUN] %d new entries for %s\n\n", res.Written, tc.Label())
		for _, entry := range res.Entries {
			fmt.Println(entry)
		}
		return
	}

	fmt.Printf("\n=== Export: %s ===\n", tc.Label())
	fmt.Printf("Written:          %d\n", res.Written)
	fmt.Printf("Already exported: %d\n", res.AlreadyExported)
	fmt.Printf("Undated skipped:  %d\n", res.Undated)
	for _, f := range res.Files {
		fmt.Printf("Updated:          %s\n", f)
	}
	fmt.Println()
}
