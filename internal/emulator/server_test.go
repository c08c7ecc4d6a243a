package emulator

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, seed Seed, cfg Config) (*httptest.Server, *Server) {
	t.Helper()

	st, err := Open(filepath.Join(t.TempDir(), "emulator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Apply(seed))

	srv := NewServer(st, cfg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, srv
}

func get(t *testing.T, rawURL, token string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(body) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(body, &out))
	}
	return resp, out
}

func scoutSeed() Seed {
	return Seed{
		"appScouts": {
			"Escuteiros": {
				{ID: "rec1", Fields: map[string]any{"Nome do Escuteiro": "Ana", "Email": "ana@example.com"}},
				{ID: "rec2", Fields: map[string]any{"Nome do Escuteiro": "Bruno"}},
				{ID: "rec3", Fields: map[string]any{"Nome do Escuteiro": "Carla"}},
			},
			"Recebimento": {},
		},
	}
}

func TestListRecordsPaginates(t *testing.T) {
	ts, _ := newTestServer(t, scoutSeed(), Config{PageSize: 2})

	resp, body := get(t, ts.URL+"/v0/appScouts/Escuteiros", "tok")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["records"], 2)
	assert.Equal(t, "2", body["offset"])

	_, body = get(t, ts.URL+"/v0/appScouts/Escuteiros?offset=2", "tok")
	records := body["records"].([]any)
	require.Len(t, records, 1)
	assert.Equal(t, "rec3", records[0].(map[string]any)["id"])
	assert.NotContains(t, body, "offset")
}

func TestListRecordsFiltersByFormula(t *testing.T) {
	ts, _ := newTestServer(t, scoutSeed(), Config{})

	formula := url.QueryEscape(`OR(LOWER({Email})='bruno',LOWER({Nome do Escuteiro})='bruno')`)
	resp, body := get(t, ts.URL+"/v0/appScouts/Escuteiros?filterByFormula="+formula, "tok")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	records := body["records"].([]any)
	require.Len(t, records, 1)
	assert.Equal(t, "rec2", records[0].(map[string]any)["id"])

	resp, _ = get(t, ts.URL+"/v0/appScouts/Escuteiros?filterByFormula="+url.QueryEscape("SUM(1,2)"), "tok")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestListRecordsProjectsFields(t *testing.T) {
	ts, _ := newTestServer(t, scoutSeed(), Config{})

	_, body := get(t, ts.URL+"/v0/appScouts/Escuteiros?fields%5B%5D=Email&maxRecords=1", "tok")
	records := body["records"].([]any)
	require.Len(t, records, 1)
	assert.Equal(t, map[string]any{"Email": "ana@example.com"}, records[0].(map[string]any)["fields"])
}

func TestAuthentication(t *testing.T) {
	ts, _ := newTestServer(t, scoutSeed(), Config{Tokens: map[string][]string{"appScouts": {"good"}}})

	resp, _ := get(t, ts.URL+"/v0/appScouts/Escuteiros", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := get(t, ts.URL+"/v0/appScouts/Escuteiros", "bad")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, ModelNotFound, body["error"].(map[string]any)["type"])

	resp, _ = get(t, ts.URL+"/v0/appScouts/Escuteiros", "good")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnknownTable(t *testing.T) {
	ts, _ := newTestServer(t, scoutSeed(), Config{})

	resp, body := get(t, ts.URL+"/v0/appScouts/Quotas", "tok")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, ModelNotFound, body["error"].(map[string]any)["type"])
}

func TestInjectedFaultsAreConsumedInOrder(t *testing.T) {
	ts, srv := newTestServer(t, scoutSeed(), Config{})
	srv.Faults().Inject(Fault{Status: http.StatusTooManyRequests}, 1)
	srv.Faults().Inject(Fault{Table: "Escuteiros", Status: http.StatusBadGateway}, 1)

	resp, body := get(t, ts.URL+"/v0/appScouts/Recebimento", "tok")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMIT_REACHED", body["error"].(map[string]any)["type"])

	// The table-scoped fault does not fire for another table.
	resp, _ = get(t, ts.URL+"/v0/appScouts/Recebimento", "tok")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, srv.Faults().Pending())

	resp, _ = get(t, ts.URL+"/v0/appScouts/Escuteiros", "tok")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Zero(t, srv.Faults().Pending())
}

func TestListTables(t *testing.T) {
	ts, _ := newTestServer(t, scoutSeed(), Config{})

	resp, body := get(t, ts.URL+"/v0/meta/bases/appScouts/tables", "tok")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var names []string
	for _, tbl := range body["tables"].([]any) {
		names = append(names, tbl.(map[string]any)["name"].(string))
	}
	assert.Equal(t, []string{"Escuteiros", "Recebimento"}, names)
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t, scoutSeed(), Config{})

	resp, _ := get(t, ts.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	get(t, ts.URL+"/v0/appScouts/Escuteiros", "tok")

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `emulator_requests_total{method="GET",status="200"}`)
}
