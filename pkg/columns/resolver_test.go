package columns

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pigeonworks-llc/section-ledger/pkg/table"
)

func recordSetWith(columns ...string) table.RecordSet {
	fields := make(map[string]table.Cell, len(columns))
	for _, col := range columns {
		fields[col] = table.String("x")
	}
	return table.RecordSet{{ID: "rec1", Fields: fields}}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		columns    []string
		candidates []string
		expected   string
	}{
		{
			name:       "lowercase column matches later candidate",
			columns:    []string{"valor"},
			candidates: []string{"Valor Estornado", "Valor"},
			expected:   "valor",
		},
		{
			name:       "exact later candidate beats substring earlier candidate",
			columns:    []string{"Valor Recebido Total", "Valor"},
			candidates: []string{"Valor Recebido", "Valor"},
			expected:   "Valor",
		},
		{
			name:       "substring pass follows candidate order",
			columns:    []string{"Data do Estorno (auto)", "Meio de Pagamento usado"},
			candidates: []string{"Meio de Pagamento", "Data do Estorno"},
			expected:   "Meio de Pagamento usado",
		},
		{
			name:       "whitespace and case insensitive",
			columns:    []string{"  Quem   Recebeu? "},
			candidates: []string{"quem recebeu?"},
			expected:   "  Quem   Recebeu? ",
		},
		{
			name:       "no match",
			columns:    []string{"Notas"},
			candidates: []string{"Valor"},
			expected:   "",
		},
		{
			name:       "empty candidates",
			columns:    []string{"Valor"},
			candidates: nil,
			expected:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Resolve(recordSetWith(tt.columns...), tt.candidates))
		})
	}
}

func TestResolveEmptyRecordSet(t *testing.T) {
	assert.Equal(t, "", Resolve(nil, []string{"Valor"}))
	assert.Equal(t, "", ResolveExact(table.RecordSet{}, []string{"Valor"}))
}

func TestResolveExactIgnoresSubstrings(t *testing.T) {
	rs := recordSetWith("Estorno?", "Valor Estornado")

	assert.Equal(t, "Estorno?", ResolveExact(rs, []string{"É Estorno", "Estorno?"}))
	assert.Equal(t, "", ResolveExact(rs, []string{"Estorno"}))
}

func TestFindByKeywords(t *testing.T) {
	columns := []string{"Data da cobrança", "Tipo de Quota", "Período"}

	tests := []struct {
		name     string
		groups   [][]string
		expected string
	}{
		{"accent insensitive", [][]string{{"periodo"}}, "Período"},
		{"all tokens required", [][]string{{"data", "cobranca"}}, "Data da cobrança"},
		{"falls through groups", [][]string{{"valor"}, {"tipo"}}, "Tipo de Quota"},
		{"none", [][]string{{"valor"}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FindByKeywords(columns, tt.groups))
		})
	}
}
