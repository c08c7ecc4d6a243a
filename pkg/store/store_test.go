package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pigeonworks-llc/section-ledger/pkg/airtable"
	"github.com/pigeonworks-llc/section-ledger/pkg/retry"
	"github.com/pigeonworks-llc/section-ledger/pkg/table"
)

// fakeAPI fails each table with a queue of errors, then serves its records.
type fakeAPI struct {
	records map[string]table.RecordSet
	errs    map[string][]error
	calls   map[string]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		records: map[string]table.RecordSet{},
		errs:    map[string][]error{},
		calls:   map[string]int{},
	}
}

func (f *fakeAPI) next(tableName string) error {
	f.calls[tableName]++
	queue := f.errs[tableName]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	if len(queue) > 1 {
		f.errs[tableName] = queue[1:]
	}
	return err
}

func (f *fakeAPI) ListRecords(_ context.Context, _, tableName string, _ airtable.ListOptions) (table.RecordSet, error) {
	if err := f.next(tableName); err != nil {
		return nil, err
	}
	return f.records[tableName], nil
}

func (f *fakeAPI) CreateRecord(_ context.Context, _, tableName string, fields map[string]any) (table.Record, error) {
	if err := f.next(tableName); err != nil {
		return table.Record{}, err
	}
	rec := table.Record{ID: "recNew", Fields: map[string]table.Cell{}}
	for k, v := range fields {
		rec.Fields[k] = table.Of(v)
	}
	return rec, nil
}

func (f *fakeAPI) UpdateRecord(_ context.Context, _, tableName, recordID string, _ map[string]any) (table.Record, error) {
	if err := f.next(tableName); err != nil {
		return table.Record{}, err
	}
	return table.Record{ID: recordID}, nil
}

func (f *fakeAPI) DeleteRecord(_ context.Context, _, tableName, _ string) error {
	return f.next(tableName)
}

func (f *fakeAPI) ListTables(context.Context, string) ([]string, error) {
	if err := f.next(""); err != nil {
		return nil, err
	}
	return []string{"Escuteiros"}, nil
}

func apiError(status int, errType string) error {
	return &airtable.APIError{StatusCode: status, Type: errType}
}

func newTestStore(api API, reg prometheus.Registerer) (*Store, *[]time.Duration) {
	waits := &[]time.Duration{}
	policy := retry.Policy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		Sleep: func(_ context.Context, d time.Duration) error {
			*waits = append(*waits, d)
			return nil
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(api, "appTest", WithPolicy(policy), WithLogger(logger), WithMetrics(NewMetrics(reg))), waits
}

func TestFetchRetriesRateLimitUntilExhausted(t *testing.T) {
	api := newFakeAPI()
	api.errs["Recebimento"] = []error{apiError(http.StatusTooManyRequests, "RATE_LIMIT_REACHED")}
	reg := prometheus.NewRegistry()
	s, waits := newTestStore(api, reg)

	_, err := s.Fetch(context.Background(), "Recebimento", airtable.ListOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	var tableErr *TableError
	require.ErrorAs(t, err, &tableErr)
	assert.Equal(t, "Recebimento", tableErr.Table)
	assert.Equal(t, OpFetch, tableErr.Op)
	assert.Equal(t, http.StatusTooManyRequests, retry.StatusCode(err))

	assert.Equal(t, 3, api.calls["Recebimento"])
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, *waits)
	assert.Equal(t, 3.0, testutil.ToFloat64(s.metrics.attempts.WithLabelValues(OpFetch, outcomeTransient)))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.retries.WithLabelValues(OpFetch)))
}

func TestCallerRetryHookStillRuns(t *testing.T) {
	api := newFakeAPI()
	api.errs["Recebimento"] = []error{apiError(http.StatusServiceUnavailable, ""), nil}

	var seen []int
	policy := retry.Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		Sleep:          func(context.Context, time.Duration) error { return nil },
		OnRetry: func(attempt int, _ time.Duration, err error) {
			seen = append(seen, attempt)
			assert.Equal(t, http.StatusServiceUnavailable, retry.StatusCode(err))
		},
	}
	reg := prometheus.NewRegistry()
	s := New(api, "appTest", WithPolicy(policy), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), WithMetrics(NewMetrics(reg)))

	_, err := s.Fetch(context.Background(), "Recebimento", airtable.ListOptions{})

	require.NoError(t, err)
	assert.Equal(t, []int{1}, seen)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.retries.WithLabelValues(OpFetch)))
}

func TestGatherCounts(t *testing.T) {
	api := newFakeAPI()
	api.errs["Recebimento"] = []error{apiError(http.StatusTooManyRequests, "RATE_LIMIT_REACHED")}
	api.errs["Quotas"] = []error{apiError(http.StatusNotFound, airtable.ModelNotFound)}
	api.records["Escuteiros"] = table.RecordSet{{ID: "rec1"}}
	reg := prometheus.NewRegistry()
	s, _ := newTestStore(api, reg)

	_, errs := s.FetchAll(context.Background(), []string{"Escuteiros", "Recebimento", "Quotas"}, map[string]bool{"Quotas": true})
	require.Len(t, errs, 1)

	counts, err := GatherCounts(reg)
	require.NoError(t, err)
	assert.Equal(t, Counts{Attempts: 5, Transient: 3, Permanent: 1, Retries: 2}, counts)

	empty, err := GatherCounts(prometheus.NewRegistry())
	require.NoError(t, err)
	assert.Zero(t, empty)
}

func TestFetchNotFoundIsNotRetried(t *testing.T) {
	api := newFakeAPI()
	api.errs["Quotas"] = []error{apiError(http.StatusNotFound, airtable.ModelNotFound)}
	s, waits := newTestStore(api, prometheus.NewRegistry())

	_, err := s.Fetch(context.Background(), "Quotas", airtable.ListOptions{})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.True(t, IsOptionalMiss(err))
	assert.Equal(t, 1, api.calls["Quotas"])
	assert.Empty(t, *waits)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.attempts.WithLabelValues(OpFetch, outcomePermanent)))
}

func TestFetchRecoversFromTransientFailure(t *testing.T) {
	api := newFakeAPI()
	api.records["Escuteiros"] = table.RecordSet{{ID: "rec1"}}
	api.errs["Escuteiros"] = []error{apiError(http.StatusBadGateway, ""), nil}
	s, _ := newTestStore(api, prometheus.NewRegistry())

	records, err := s.Fetch(context.Background(), "Escuteiros", airtable.ListOptions{})

	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 2, api.calls["Escuteiros"])
}

func TestWriteOperations(t *testing.T) {
	api := newFakeAPI()
	s, _ := newTestStore(api, nil)
	ctx := context.Background()

	rec, err := s.Create(ctx, "Recebimento", map[string]any{"Valor Recebido": 10})
	require.NoError(t, err)
	assert.Equal(t, "10", rec.Field("Valor Recebido").Text())

	rec, err = s.Update(ctx, "Recebimento", "rec9", map[string]any{"Valor Recebido": 12})
	require.NoError(t, err)
	assert.Equal(t, "rec9", rec.ID)

	api.errs["Recebimento"] = []error{apiError(http.StatusUnprocessableEntity, "INVALID_VALUE_FOR_COLUMN")}
	err = s.Delete(ctx, "Recebimento", "rec9")
	var tableErr *TableError
	require.ErrorAs(t, err, &tableErr)
	assert.Equal(t, OpDelete, tableErr.Op)

	names, err := s.TableNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Escuteiros"}, names)
}

func TestFetchAll(t *testing.T) {
	api := newFakeAPI()
	api.records["Escuteiros"] = table.RecordSet{{ID: "rec1"}}
	api.records["Recebimento"] = table.RecordSet{{ID: "rec2"}, {ID: "rec3"}}
	api.errs["Quotas"] = []error{apiError(http.StatusForbidden, airtable.ModelNotFound)}
	api.errs["Permissoes"] = []error{apiError(http.StatusForbidden, airtable.ModelNotFound)}
	s, _ := newTestStore(api, nil)

	names := []string{"Escuteiros", "Quotas", "Recebimento", "Permissoes"}
	tables, warnings := s.FetchAll(context.Background(), names, OptionalTables())

	assert.Equal(t, names, tables.Names())
	quotas, ok := tables.Get("Quotas")
	require.True(t, ok)
	assert.Empty(t, quotas)
	rec, _ := tables.Get("Recebimento")
	assert.Len(t, rec, 2)

	// Permissoes is required, so its miss is reported.
	require.Len(t, warnings, 1)
	var tableErr *TableError
	require.ErrorAs(t, warnings[0], &tableErr)
	assert.Equal(t, "Permissoes", tableErr.Table)
}

func TestIsOptionalMiss(t *testing.T) {
	assert.True(t, IsOptionalMiss(apiError(http.StatusNotFound, "")))
	assert.True(t, IsOptionalMiss(apiError(http.StatusUnprocessableEntity, airtable.ModelNotFound)))
	assert.False(t, IsOptionalMiss(apiError(http.StatusInternalServerError, "")))
	assert.False(t, IsOptionalMiss(errors.New("boom")))
}

func TestRoles(t *testing.T) {
	r, err := ParseRole(" Tesoureiro ")
	require.NoError(t, err)
	assert.Equal(t, RoleTreasurer, r)

	_, err = ParseRole("guest")
	assert.Error(t, err)

	admin := TablesForRole(RoleAdmin)
	for _, role := range []Role{RoleParent, RoleTreasurer} {
		for _, name := range TablesForRole(role) {
			assert.Contains(t, admin, name)
		}
	}
	assert.True(t, OptionalTables()["Quotas"])
	assert.False(t, OptionalTables()["Recebimento"])
}
