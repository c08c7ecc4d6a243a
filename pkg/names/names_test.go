package names

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pigeonworks-llc/section-ledger/pkg/table"
)

func rec(id string, fields map[string]table.Cell) table.Record {
	return table.Record{ID: id, Fields: fields}
}

func TestBuildNameMapColumnRanking(t *testing.T) {
	tables := table.NewTables()
	tables.Put("Permissoes", table.RecordSet{
		rec("usr1", map[string]table.Cell{
			"Email":      table.String("rui@example.pt"),
			"Nome Sócio": table.String("Rui"),
			"Role":       table.String("tesoureiro"),
			"Ativo":      table.Bool(true),
		}),
	})

	m := BuildNameMap(tables)

	assert.Equal(t, Map{"usr1": "Rui"}, m)
}

func TestBuildNameMapExactNameBeatsSubstring(t *testing.T) {
	tables := table.NewTables()
	tables.Put("Recipes", table.RecordSet{
		rec("r1", map[string]table.Cell{
			"Nome do Prato": table.String("Sopa"),
			"Name":          table.String("Soup"),
		}),
	})

	assert.Equal(t, "Soup", BuildNameMap(tables)["r1"])
}

func TestBuildNameMapFirstProductiveColumnWins(t *testing.T) {
	tables := table.NewTables()
	tables.Put("Escuteiros", table.RecordSet{
		rec("rec1", map[string]table.Cell{"Nome": table.String("Ana"), "Email": table.String("ana@x.pt")}),
		rec("rec2", map[string]table.Cell{"Email": table.String("rui@x.pt")}),
	})

	m := BuildNameMap(tables)

	assert.Equal(t, "Ana", m["rec1"])
	_, ok := m.Lookup("rec2")
	assert.False(t, ok, "later columns are not scanned once one column was productive")
}

func TestBuildNameMapFlattensLists(t *testing.T) {
	tables := table.NewTables()
	tables.Put("Pedidos", table.RecordSet{
		rec("p1", map[string]table.Cell{"Name": table.Strings("Ana", "Rui")}),
	})

	assert.Equal(t, "Ana, Rui", BuildNameMap(tables)["p1"])
}

func TestBuildNameMapFirstSeenWins(t *testing.T) {
	first := table.RecordSet{rec("rec1", map[string]table.Cell{"Nome": table.String("Ana")})}
	second := table.RecordSet{rec("rec1", map[string]table.Cell{"Name": table.String("Outra")})}

	tables := table.NewTables()
	tables.Put("Escuteiros", first)
	tables.Put("Permissoes", second)

	assert.Equal(t, "Ana", BuildNameMap(tables)["rec1"])
}

func TestBuildNameMapOrderIndependentWithoutCollisions(t *testing.T) {
	a := table.RecordSet{rec("rec1", map[string]table.Cell{"Nome": table.String("Ana")})}
	b := table.RecordSet{rec("usr1", map[string]table.Cell{"Name": table.String("Rui")})}

	forward := table.NewTables()
	forward.Put("A", a)
	forward.Put("B", b)

	backward := table.NewTables()
	backward.Put("B", b)
	backward.Put("A", a)

	assert.Equal(t, BuildNameMap(forward), BuildNameMap(backward))
}

func TestBuildNameMapSkipsTablesWithoutIDs(t *testing.T) {
	tables := table.NewTables()
	tables.Put("Sem ids", table.RecordSet{{Fields: map[string]table.Cell{"Nome": table.String("X")}}})
	tables.Put("Vazia", nil)

	assert.Empty(t, BuildNameMap(tables))
}

func TestBuildColumnMap(t *testing.T) {
	rs := table.RecordSet{
		rec("rec1", map[string]table.Cell{"Nome do Escuteiro": table.String("Ana"), "Nome": table.String("A.")}),
		rec("rec2", map[string]table.Cell{"Nome": table.String("R.")}),
	}

	m := BuildColumnMap(rs, []string{"Nome do Escuteiro", "Escuteiro", "Nome"})

	assert.Equal(t, Map{"rec1": "Ana"}, m)
	assert.Empty(t, BuildColumnMap(rs, []string{"Apelido"}))
}
