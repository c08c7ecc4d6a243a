// Package store wraps the table store client with the retry policy and the
// error taxonomy the reconciliation pipeline relies on.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pigeonworks-llc/section-ledger/pkg/airtable"
	"github.com/pigeonworks-llc/section-ledger/pkg/retry"
	"github.com/pigeonworks-llc/section-ledger/pkg/table"
)

// Operation names used in errors, logs and metrics.
const (
	OpFetch  = "fetch"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpTables = "tables"
)

// ErrUnavailable marks a call that kept failing transiently until the retry
// policy gave up.
var ErrUnavailable = errors.New("table store unavailable")

// TableError is returned by every Store operation.
type TableError struct {
	Table string
	Op    string
	Err   error
}

func (e *TableError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *TableError) Unwrap() error { return e.Err }

// IsOptionalMiss reports whether err means the table is absent or unreadable
// with the current credentials, as opposed to a failing store.
func IsOptionalMiss(err error) bool {
	var apiErr *airtable.APIError
	if errors.As(err, &apiErr) && apiErr.Type == airtable.ModelNotFound {
		return true
	}
	switch retry.StatusCode(err) {
	case http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// API is the subset of *airtable.Client the store drives.
type API interface {
	ListRecords(ctx context.Context, baseID, tableName string, opts airtable.ListOptions) (table.RecordSet, error)
	CreateRecord(ctx context.Context, baseID, tableName string, fields map[string]any) (table.Record, error)
	UpdateRecord(ctx context.Context, baseID, tableName, recordID string, fields map[string]any) (table.Record, error)
	DeleteRecord(ctx context.Context, baseID, tableName, recordID string) error
	ListTables(ctx context.Context, baseID string) ([]string, error)
}

// Store is the retrying gateway to one tenant's base.
type Store struct {
	api     API
	baseID  string
	policy  retry.Policy
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithPolicy replaces the default retry policy.
func WithPolicy(p retry.Policy) Option {
	return func(s *Store) { s.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the counters updated on every attempt.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates a Store for baseID.
func New(api API, baseID string, opts ...Option) *Store {
	s := &Store{
		api:    api,
		baseID: baseID,
		policy: retry.DefaultPolicy(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BaseID returns the base the store reads.
func (s *Store) BaseID() string { return s.baseID }

// Fetch returns every record of tableName matching opts.
func (s *Store) Fetch(ctx context.Context, tableName string, opts airtable.ListOptions) (table.RecordSet, error) {
	return call(ctx, s, OpFetch, tableName, func(ctx context.Context) (table.RecordSet, error) {
		return s.api.ListRecords(ctx, s.baseID, tableName, opts)
	})
}

// Create inserts a record.
func (s *Store) Create(ctx context.Context, tableName string, fields map[string]any) (table.Record, error) {
	return call(ctx, s, OpCreate, tableName, func(ctx context.Context) (table.Record, error) {
		return s.api.CreateRecord(ctx, s.baseID, tableName, fields)
	})
}

// Update patches a record.
func (s *Store) Update(ctx context.Context, tableName, recordID string, fields map[string]any) (table.Record, error) {
	return call(ctx, s, OpUpdate, tableName, func(ctx context.Context) (table.Record, error) {
		return s.api.UpdateRecord(ctx, s.baseID, tableName, recordID, fields)
	})
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, tableName, recordID string) error {
	_, err := call(ctx, s, OpDelete, tableName, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.api.DeleteRecord(ctx, s.baseID, tableName, recordID)
	})
	return err
}

// TableNames lists the tables of the base.
func (s *Store) TableNames(ctx context.Context) ([]string, error) {
	return call(ctx, s, OpTables, "", func(ctx context.Context) ([]string, error) {
		return s.api.ListTables(ctx, s.baseID)
	})
}

func call[T any](ctx context.Context, s *Store, op, tableName string, fn func(context.Context) (T, error)) (T, error) {
	policy := s.policy
	retryable := policy.Retryable
	if retryable == nil {
		retryable = retry.Retryable
	}
	next := policy.OnRetry
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		if next != nil {
			next(attempt, wait, err)
		}
		s.metrics.retry(op)
		s.logger.Warn("table store call failed, retrying",
			"op", op,
			"table", tableName,
			"attempt", attempt,
			"wait", wait,
			"status", retry.StatusCode(err),
			"error", err,
		)
	}

	v, err := retry.DoValue(ctx, policy, func(ctx context.Context) (T, error) {
		v, err := fn(ctx)
		switch {
		case err == nil:
			s.metrics.attempt(op, outcomeSuccess)
		case retryable(err):
			s.metrics.attempt(op, outcomeTransient)
		default:
			s.metrics.attempt(op, outcomePermanent)
		}
		return v, err
	})
	if err == nil {
		return v, nil
	}

	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		err = fmt.Errorf("%w: %w", ErrUnavailable, exhausted)
	}
	s.logger.Error("table store call failed",
		"op", op,
		"table", tableName,
		"status", retry.StatusCode(err),
		"error", err,
	)
	return v, &TableError{Table: tableName, Op: op, Err: err}
}

// FetchAll loads names in order. A table listed in optional that the base does
// not expose comes back empty without error; any other failure also yields an
// empty set and is reported in the returned slice.
func (s *Store) FetchAll(ctx context.Context, names []string, optional map[string]bool) (*table.Tables, []error) {
	tables := table.NewTables()
	var warnings []error

	for _, name := range names {
		records, err := s.Fetch(ctx, name, airtable.ListOptions{})
		if err != nil {
			tables.Put(name, table.RecordSet{})
			if optional[name] && IsOptionalMiss(err) {
				s.logger.Debug("optional table not available", "table", name)
				continue
			}
			warnings = append(warnings, err)
			continue
		}

		s.logger.Debug("table fetched", "table", name, "records", len(records))
		tables.Put(name, records)
	}
	return tables, warnings
}
