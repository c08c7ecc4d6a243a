// Package cmd provides CLI commands for section-ledger.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/pigeonworks-llc/section-ledger/pkg/airtable"
	"github.com/pigeonworks-llc/section-ledger/pkg/config"
	"github.com/pigeonworks-llc/section-ledger/pkg/reconcile"
	"github.com/pigeonworks-llc/section-ledger/pkg/retry"
	"github.com/pigeonworks-llc/section-ledger/pkg/store"
	"github.com/pigeonworks-llc/section-ledger/pkg/tenant"
)

var (
	cfgFile string
	debug   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "section-ledger",
	Short: "Reconcile section receipts and reversals per tenant",
	Long: `section-ledger reads receipt and reversal records from each section's
table store base, reconciles them into canonical transactions, and keeps
per-section Beancount ledgers.

It supports:
- Several tenants (group + section) from one credential pool
- Retrying transient table store failures
- Summaries by payment method and category
- Exporting to monthly Beancount files without duplicates
- A local table store emulator for development

Example:
  section-ledger contexts
  section-ledger reconcile --context agrupamento_123_lobitos --from 2024-01-01 --to 2024-01-31
  section-ledger export --context agrupamento_123_lobitos --dry-run
  section-ledger emulate --seed testdata/seed.yaml`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logLevel := slog.LevelInfo
		if debug {
			logLevel = slog.LevelDebug
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))
		slog.SetDefault(logger)
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(contextsCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(exportsCmd)
	rootCmd.AddCommand(emulateCmd)
}

// exitOnError logs and exits when err is non-nil.
func exitOnError(err error, msg string) {
	if err != nil {
		slog.Error(msg, "error", err)
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	exitOnError(err, "failed to load configuration")
	if cfg.Debug && !debug {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	return cfg
}

func newRegistry(cfg *config.Config) *tenant.Registry {
	return tenant.NewRegistry(tenant.FilePool(cfg.Tenants.File, os.Environ()))
}

// selectContext picks the tenant for this invocation: the given key, or the
// only configured context when key is empty.
func selectContext(reg *tenant.Registry, key string) (*tenant.Session, tenant.Context) {
	if _, err := reg.List(); err != nil {
		exitOnError(err, "failed to load tenant pool")
	}

	session := tenant.NewSessionManager().Open()
	var (
		tc  tenant.Context
		err error
	)
	if key != "" {
		tc, err = session.Select(reg, key)
	} else {
		tc, err = session.EnsureSelected(reg)
	}
	exitOnError(err, "failed to select context")

	slog.Debug("context selected", "session", session.ID(), "context", tc.Key, "label", tc.Label())
	return session, tc
}

// newStore builds the store for the session's context. Its counters go to a
// registry of their own so the command can report them when it finishes.
func newStore(cfg *config.Config, session *tenant.Session, reg *tenant.Registry) (*store.Store, *prometheus.Registry) {
	token, baseID, err := session.Credentials(reg)
	exitOnError(err, "failed to resolve credentials")

	client := airtable.NewClient(airtable.ClientConfig{
		APIURL:            cfg.Store.APIURL,
		Token:             token,
		Timeout:           cfg.Store.HTTPTimeout,
		RequestsPerSecond: cfg.Store.RequestsPerSecond,
	})

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.Store.MaxAttempts
	policy.InitialBackoff = cfg.Store.InitialBackoff

	metrics := prometheus.NewRegistry()
	st := store.New(client, baseID,
		store.WithPolicy(policy),
		store.WithLogger(slog.Default()),
		store.WithMetrics(store.NewMetrics(metrics)),
	)
	return st, metrics
}

// storeCounts reads back the store counters, logging instead of failing.
func storeCounts(g prometheus.Gatherer) store.Counts {
	counts, err := store.GatherCounts(g)
	if err != nil {
		slog.Warn("failed to read store counters", "error", err)
	}
	return counts
}

// fetchLedger fetches the role's tables and reconciles them. Table failures are
// logged and returned; the ledger is built from whatever was fetched.
func fetchLedger(ctx context.Context, st *store.Store, role store.Role) (reconcile.Ledger, []error) {
	tables, errs := st.FetchAll(ctx, store.TablesForRole(role), store.OptionalTables())
	for _, err := range errs {
		slog.Warn("table unavailable", "error", err)
	}

	return reconcile.New(reconcile.DefaultSchema(), slog.Default()).Ledger(tables), errs
}

func parseDay(flag, value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", value)
	exitOnError(err, fmt.Sprintf("invalid --%s date (want YYYY-MM-DD)", flag))
	return t
}
