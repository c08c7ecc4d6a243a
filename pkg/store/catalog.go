package store

import (
	"fmt"
	"strings"
)

// Role selects which tables a reconciliation pass loads.
type Role string

// Known roles.
const (
	RoleParent    Role = "pais"
	RoleTreasurer Role = "tesoureiro"
	RoleAdmin     Role = "admin"
)

var tablesByRole = map[Role][]string{
	RoleParent: {
		"Pedidos",
		"Calendario",
		"Voluntariado Pais",
		"Escuteiros",
		"Recipes",
		"Publicar Menu do Scouts",
	},
	RoleTreasurer: {
		"Escuteiros",
		"Recebimento",
		"Estorno de Recebimento",
		"Estornos de Recebimento",
		"Permissoes",
		"Publicar Menu do Scouts",
		"Quotas",
		"Tipo de Cotas",
	},
	RoleAdmin: {
		"Pedidos",
		"Calendario",
		"Voluntariado Pais",
		"Escuteiros",
		"Recipes",
		"Recebimento",
		"Estorno de Recebimento",
		"Estornos de Recebimento",
		"Permissoes",
		"Publicar Menu do Scouts",
		"Quotas",
		"Tipo de Cotas",
	},
}

// optionalTables may be missing from a base without that being worth a warning.
var optionalTables = []string{"Quotas", "Tipo de Cotas", "Estornos de Recebimento"}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tablesByRole[r]; !ok {
		return "", fmt.Errorf("unknown role %q (want pais, tesoureiro or admin)", s)
	}
	return r, nil
}

// TablesForRole returns the tables a role loads, in fetch order.
func TablesForRole(r Role) []string {
	return append([]string(nil), tablesByRole[r]...)
}

// OptionalTables returns the set of tables tolerated as missing.
func OptionalTables() map[string]bool {
	set := make(map[string]bool, len(optionalTables))
	for _, name := range optionalTables {
		set[name] = true
	}
	return set
}
