// Package export appends reconciled transactions to per-tenant Beancount files,
// writing each receipt or reversal at most once.
package export

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/pigeonworks-llc/section-ledger/pkg/beancount"
	"github.com/pigeonworks-llc/section-ledger/pkg/converter"
	"github.com/pigeonworks-llc/section-ledger/pkg/db"
	"github.com/pigeonworks-llc/section-ledger/pkg/pathutil"
	"github.com/pigeonworks-llc/section-ledger/pkg/reconcile"
	"github.com/pigeonworks-llc/section-ledger/pkg/tenant"
)

// Journal is the export bookkeeping the exporter needs.
type Journal interface {
	ExportedIDs(contextKey string, kind db.Kind) (map[string]bool, error)
	RecordExports(exports []db.Export, metadata map[string]string) error
}

// Result summarizes one export run.
type Result struct {
	Written         int
	AlreadyExported int
	Undated         int
	Files           []string // relative to the tenant's ledger root
	Entries         []string // formatted entries, in write order
}

// Exporter writes ledgers for tenants under a shared root.
type Exporter struct {
	conv    *converter.Converter
	journal Journal
	paths   *pathutil.PathResolver
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an Exporter. A nil logger uses slog.Default().
func New(conv *converter.Converter, journal Journal, paths *pathutil.PathResolver, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{conv: conv, journal: journal, paths: paths, logger: logger, now: time.Now}
}

// LastExportKey is the metadata key holding a context's last export time.
func LastExportKey(contextKey string) string {
	return "last_export:" + contextKey
}

type pending struct {
	kind db.Kind
	txn  reconcile.Transaction
}

// Export writes every transaction of l not yet exported for tc. With dryRun the
// entries are formatted and returned but nothing is written or recorded.
func (e *Exporter) Export(tc tenant.Context, l reconcile.Ledger, dryRun bool) (*Result, error) {
	var work []pending
	for _, batch := range []struct {
		kind db.Kind
		txns []reconcile.Transaction
	}{
		{db.KindReceipt, l.Receipts},
		{db.KindReversal, l.Reversals},
	} {
		done, err := e.journal.ExportedIDs(tc.Key, batch.kind)
		if err != nil {
			return nil, err
		}
		for _, txn := range batch.txns {
			if done[txn.RecordID] {
				continue
			}
			work = append(work, pending{kind: batch.kind, txn: txn})
		}
	}

	res := &Result{
		AlreadyExported: len(l.Receipts) + len(l.Reversals) - len(work),
	}

	sort.SliceStable(work, func(i, j int) bool {
		a, b := work[i].txn, work[j].txn
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.RecordID < b.RecordID
	})

	paths := e.paths.ForTenant(tc.GroupID, tc.SectionSlug)
	repo := beancount.NewFileSystemRepository(paths, tc.Label())

	// Entries already appended are recorded even when a later append fails,
	// so a rerun does not write them twice.
	var written []db.Export
	flush := func(metadata map[string]string) error {
		if dryRun {
			return nil
		}
		return e.journal.RecordExports(written, metadata)
	}

	for _, p := range work {
		entry, err := e.convert(p)
		if errors.Is(err, converter.ErrUndated) {
			res.Undated++
			e.logger.Warn("skipping undated transaction", "context", tc.Key, "kind", p.kind, "record", p.txn.RecordID)
			continue
		}
		if err != nil {
			return res, errors.Join(err, flush(nil))
		}

		text := e.conv.FormatTransaction(entry)
		res.Entries = append(res.Entries, text)
		if dryRun {
			res.Written++
			continue
		}

		file, err := repo.AppendTransaction(entry.YearMonth(), text)
		if err != nil {
			return res, errors.Join(fmt.Errorf("append %s %s: %w", p.kind, p.txn.RecordID, err), flush(nil))
		}
		rel := paths.Rel(file)
		written = append(written, db.Export{
			ContextKey: tc.Key,
			Kind:       p.kind,
			RecordID:   p.txn.RecordID,
			Date:       p.txn.Date,
			Amount:     p.txn.Amount,
			LedgerFile: rel,
		})
		res.Written++
		if !slices.Contains(res.Files, rel) {
			res.Files = append(res.Files, rel)
		}
	}
	sort.Strings(res.Files)

	if len(written) > 0 {
		stamp := map[string]string{LastExportKey(tc.Key): e.now().UTC().Format(time.RFC3339)}
		if err := flush(stamp); err != nil {
			return res, err
		}
	}

	e.logger.Info("export finished",
		"context", tc.Key,
		"written", res.Written,
		"already_exported", res.AlreadyExported,
		"undated", res.Undated,
		"dry_run", dryRun,
	)
	return res, nil
}

func (e *Exporter) convert(p pending) (beancount.Transaction, error) {
	if p.kind == db.KindReversal {
		return e.conv.ConvertReversal(p.txn)
	}
	return e.conv.ConvertReceipt(p.txn)
}
