package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pigeonworks-llc/section-ledger/internal/emulator"
	"github.com/pigeonworks-llc/section-ledger/pkg/tenant"
)

var (
	emulateAddr   string
	emulateDBPath string
	seedFile      string
	openAccess    bool
)

// emulateCmd represents the emulate command.
var emulateCmd = &cobra.Command{
	Use:   "emulate",
	Short: "Run a local table store emulator",
	Long: `Serve the table store API from a local bbolt file.

Each base only accepts the tokens the tenant pool assigns to it, so the
same pool can drive both the emulator and the other commands. Point
LEDGER_API_URL at the emulator to use it.

Example:
  section-ledger emulate --seed testdata/seed.yaml
  LEDGER_API_URL=http://localhost:8089 section-ledger reconcile`,
	Run: runEmulate,
}

func init() {
	emulateCmd.Flags().StringVar(&emulateAddr, "addr", "", "listen address (default EMULATOR_ADDR or :8089)")
	emulateCmd.Flags().StringVar(&emulateDBPath, "db", "", "bbolt file (default EMULATOR_DB_PATH)")
	emulateCmd.Flags().StringVar(&seedFile, "seed", "", "YAML fixture loaded at startup")
	emulateCmd.Flags().BoolVar(&openAccess, "open", false, "accept any bearer token")
}

func runEmulate(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if emulateAddr != "" {
		cfg.Emulator.Addr = emulateAddr
	}
	if emulateDBPath != "" {
		cfg.Emulator.DBPath = emulateDBPath
	}
	if err := cfg.Validate("emulator.addr", "emulator.dbPath"); err != nil {
		exitOnError(err, "invalid configuration")
	}

	st, err := emulator.Open(cfg.Emulator.DBPath)
	exitOnError(err, "failed to initialize store")
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("failed to close store", "error", err)
		}
	}()
	slog.Info("database initialized", "db_path", cfg.Emulator.DBPath)

	if seedFile != "" {
		seed, err := emulator.LoadSeedFile(seedFile)
		exitOnError(err, "failed to load seed")
		exitOnError(st.Apply(seed), "failed to apply seed")
		slog.Info("seed applied", "file", seedFile, "bases", len(seed))
	}

	tokens := map[string][]string{}
	if !openAccess {
		contexts, err := newRegistry(cfg).List()
		exitOnError(err, "failed to load tenant pool")
		tokens = baseTokens(contexts)
	}

	srv := emulator.NewServer(st, emulator.Config{Tokens: tokens, Logger: slog.Default()})
	server := &http.Server{
		Addr:         cfg.Emulator.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting table store emulator", "addr", cfg.Emulator.Addr, "bases", len(tokens))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		exitOnError(err, "server error")
	}
	slog.Info("server stopped")
}

// baseTokens groups tenant tokens by base, so sections sharing a base can all read it.
func baseTokens(contexts []tenant.Context) map[string][]string {
	out := map[string][]string{}
	for _, c := range contexts {
		out[c.BaseID] = append(out[c.BaseID], c.Token)
	}
	return out
}
