package airtable

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pigeonworks-llc/section-ledger/internal/emulator"
	"github.com/pigeonworks-llc/section-ledger/pkg/retry"
)

const testBase = "appTest"

func setupEmulator(t *testing.T, pageSize int) (*Client, *emulator.Server) {
	t.Helper()

	st, err := emulator.Open(filepath.Join(t.TempDir(), "emulator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	var records []emulator.SeedRecord
	for _, name := range []string{"Ana", "Bruno", "Carla", "Duarte", "Eva"} {
		records = append(records, emulator.SeedRecord{Fields: map[string]any{"Nome": name}})
	}
	require.NoError(t, st.Apply(emulator.Seed{testBase: {
		"Escuteiros":  records,
		"Recebimento": nil,
	}}))

	srv := emulator.NewServer(st, emulator.Config{
		PageSize: pageSize,
		Tokens:   map[string][]string{testBase: {"secret"}},
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client := NewClient(ClientConfig{APIURL: ts.URL, Token: "secret", RequestsPerSecond: -1})
	return client, srv
}

func TestListRecordsFollowsOffsets(t *testing.T) {
	client, _ := setupEmulator(t, 2)

	records, err := client.ListRecords(context.Background(), testBase, "Escuteiros", ListOptions{})
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, "Ana", records[0].Field("Nome").Text())
	assert.Equal(t, "Eva", records[4].Field("Nome").Text())
}

func TestListRecordsMaxRecords(t *testing.T) {
	client, _ := setupEmulator(t, 2)

	records, err := client.ListRecords(context.Background(), testBase, "Escuteiros", ListOptions{MaxRecords: 3})
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestListRecordsWithFormula(t *testing.T) {
	client, _ := setupEmulator(t, 100)

	records, err := client.ListRecords(context.Background(), testBase, "Escuteiros", ListOptions{
		Formula: EqualsIgnoreCase([]string{"Nome"}, "CARLA"),
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Carla", records[0].Field("Nome").Text())
}

func TestRecordLifecycle(t *testing.T) {
	client, _ := setupEmulator(t, 100)
	ctx := context.Background()

	created, err := client.CreateRecord(ctx, testBase, "Recebimento", map[string]any{
		"Valor Recebido":    10,
		"Meio de Pagamento": "Cash",
		"Escuteiros":        []string{"rec1"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "10", created.Field("Valor Recebido").Text())
	assert.Equal(t, 1, created.Field("Escuteiros").Len())

	updated, err := client.UpdateRecord(ctx, testBase, "Recebimento", created.ID, map[string]any{"Valor Recebido": 12})
	require.NoError(t, err)
	assert.Equal(t, "12", updated.Field("Valor Recebido").Text())
	assert.Equal(t, "Cash", updated.Field("Meio de Pagamento").Text())

	require.NoError(t, client.DeleteRecord(ctx, testBase, "Recebimento", created.ID))

	records, err := client.ListRecords(ctx, testBase, "Recebimento", ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestListTables(t *testing.T) {
	client, _ := setupEmulator(t, 100)

	names, err := client.ListTables(context.Background(), testBase)
	require.NoError(t, err)
	assert.Equal(t, []string{"Escuteiros", "Recebimento"}, names)
}

func TestErrorsCarryStatusAndType(t *testing.T) {
	client, srv := setupEmulator(t, 100)
	ctx := context.Background()

	_, err := client.ListRecords(ctx, testBase, "Quotas", ListOptions{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, ModelNotFound, apiErr.Type)
	assert.False(t, retry.Retryable(err))

	srv.Faults().Inject(emulator.Fault{Status: http.StatusTooManyRequests}, 1)
	_, err = client.ListRecords(ctx, testBase, "Escuteiros", ListOptions{})
	assert.Equal(t, http.StatusTooManyRequests, retry.StatusCode(err))
	assert.True(t, retry.Retryable(err))

	bad := NewClient(ClientConfig{APIURL: client.baseURL, Token: "wrong", RequestsPerSecond: -1})
	_, err = bad.ListRecords(ctx, testBase, "Escuteiros", ListOptions{})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}

func TestParseErrorAcceptsStringError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"NOT_FOUND"}`))
	}))
	defer ts.Close()

	client := NewClient(ClientConfig{APIURL: ts.URL, Token: "t", RequestsPerSecond: -1})
	_, err := client.ListTables(context.Background(), "app")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "NOT_FOUND", apiErr.Type)
	assert.Equal(t, "table store error (status 404): NOT_FOUND", apiErr.Error())
}

func TestQueryEncoding(t *testing.T) {
	q := ListOptions{
		Fields:     []string{"Nome", "Email"},
		Formula:    "LOWER({Email})='a'",
		MaxRecords: 10,
		Sort:       []Sort{{Field: "Date", Direction: "desc"}},
	}.query()

	assert.Equal(t, []string{"Nome", "Email"}, q["fields[]"])
	assert.Equal(t, "10", q.Get("maxRecords"))
	assert.Equal(t, "Date", q.Get("sort[0][field]"))
	assert.Equal(t, "desc", q.Get("sort[0][direction]"))
}

func TestFormulaBuilders(t *testing.T) {
	assert.Equal(t, `'it\'s'`, Quote("it's"))
	assert.Equal(t, `'a\\b'`, Quote(`a\b`))
	assert.Equal(t, `LOWER({Email})='ana'`, EqualsIgnoreCase([]string{"Email"}, "Ana"))
	assert.Equal(t, `OR(LOWER({Email})='ana',LOWER({Nome})='ana')`, EqualsIgnoreCase([]string{"Email", "Nome"}, "ANA"))
	assert.Empty(t, EqualsIgnoreCase(nil, "x"))
}
