package emulator

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pigeonworks-llc/section-ledger/pkg/table"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStoreCRUD(t *testing.T) {
	st := openStore(t)
	require.NoError(t, st.EnsureTable("app1", "Recebimento"))

	created, err := st.Create("app1", "Recebimento", table.Record{
		Fields: map[string]table.Cell{"Valor Recebido": table.Number(10), "Meio de Pagamento": table.String("Cash")},
	})
	require.NoError(t, err)
	assert.Regexp(t, `^rec[0-9a-f]{14}$`, created.ID)
	assert.False(t, created.CreatedTime.IsZero())

	updated, err := st.Update("app1", "Recebimento", created.ID, map[string]table.Cell{
		"Valor Recebido":    table.Number(12.5),
		"Meio de Pagamento": table.Absent(),
	})
	require.NoError(t, err)
	assert.Equal(t, "12.5", updated.Field("Valor Recebido").Text())
	assert.True(t, updated.Field("Meio de Pagamento").IsAbsent())

	got, err := st.Get("app1", "Recebimento", created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Fields, got.Fields)

	require.NoError(t, st.Delete("app1", "Recebimento", created.ID))
	_, err = st.Get("app1", "Recebimento", created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreListKeepsInsertionOrder(t *testing.T) {
	st := openStore(t)
	require.NoError(t, st.Apply(Seed{"app1": {"T": {
		{ID: "recZ", Fields: map[string]any{"n": 1}},
		{ID: "recA", Fields: map[string]any{"n": 2}},
		{ID: "recM", Fields: map[string]any{"n": 3}},
	}}}))

	records, err := st.List("app1", "T")
	require.NoError(t, err)
	var ids []string
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"recZ", "recA", "recM"}, ids)
}

func TestStoreMissingTable(t *testing.T) {
	st := openStore(t)

	_, err := st.List("nope", "T")
	assert.ErrorIs(t, err, ErrTableNotFound)

	require.NoError(t, st.EnsureTable("app1", "T"))
	_, err = st.List("app1", "Other")
	assert.ErrorIs(t, err, ErrTableNotFound)
	_, err = st.Tables("nope")
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestParseFormula(t *testing.T) {
	rec := table.Record{ID: "r", Fields: map[string]table.Cell{
		"Email": table.String("Ana@Example.com"),
		"Nome":  table.String(`O'Neil`),
	}}

	tests := []struct {
		formula string
		want    bool
	}{
		{"", true},
		{`LOWER({Email})='ana@example.com'`, true},
		{`LOWER({Email})='bruno@example.com'`, false},
		{`OR(LOWER({Email})='x',LOWER({Nome})='o\'neil')`, true},
	}
	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			match, err := parseFormula(tt.formula)
			require.NoError(t, err)
			assert.Equal(t, tt.want, match(rec))
		})
	}

	_, err := parseFormula(`AND(LOWER({Email})='x', TRUE())`)
	assert.ErrorIs(t, err, errUnsupportedFormula)
}
