package reconcile

// Fields lists, most specific first, the column names tried for each canonical field.
type Fields struct {
	Subject       []string
	Amount        []string
	Date          []string
	PaymentMethod []string
	Responsible   []string
	Category      []string
}

// Schema names the tables and columns of a deployment.
type Schema struct {
	ReceiptsTable    string
	SubjectsTable    string
	PermissionsTable string
	// ReversalTables are tried in order; the first non-empty one is used.
	ReversalTables []string

	// SubjectNameColumns is where the subjects table keeps display names.
	SubjectNameColumns []string

	Receipt  Fields
	Reversal Fields

	// Signals used to spot reversals among receipts when no reversal table exists.
	MovementColumns      []string
	MovementKeyword      string
	FlagColumns          []string
	ReversedAmountColumn string
	ReceivedAmountColumn string

	// ResponsibleLookupPrefix finds a sibling lookup column holding the
	// responsible's display name, e.g. "Quem Recebeu (nome)".
	ResponsibleLookupPrefix  string
	ResponsibleLookupExclude []string

	Separator string
}

var paymentMethodColumns = []string{
	"Meio de Pagamento",
	"Método de Pagamento",
	"Metodo de Pagamento",
	"Método",
	"Metodo",
}

var subjectColumns = []string{
	"Escuteiros",
	"Escuteiro",
	"Escuteiro(s)",
	"Escuteiros Relacionados",
}

// DefaultSchema returns the layout of the scout group bases.
func DefaultSchema() Schema {
	return Schema{
		ReceiptsTable:    "Recebimento",
		SubjectsTable:    "Escuteiros",
		PermissionsTable: "Permissoes",
		ReversalTables: []string{
			"Estorno de Recebimento",
			"Estornos de Recebimento",
			"Estorno Recebimento",
			"Estorno",
			"Estornos",
		},
		SubjectNameColumns: []string{"Nome do Escuteiro", "Escuteiro", "Nome"},
		Receipt: Fields{
			Subject:       subjectColumns,
			Amount:        []string{"Valor Recebido", "Valor", "Valor (€)"},
			Date:          []string{"Date", "Data", "Data do Recebimento"},
			PaymentMethod: paymentMethodColumns,
			Responsible:   []string{"Quem Recebeu?", "Quem Recebeu", "Registado Por", "Responsável", "Criado Por"},
			Category:      []string{"Tag_Recebimento", "Tag Recebimento", "Categoria", "Motivo", "Tag"},
		},
		Reversal: Fields{
			Subject:       subjectColumns,
			Amount:        []string{"Valor Estornado", "Valor Estorno", "Valor do Estorno", "Valor", "Valor (€)", "Valor Recebido"},
			Date:          []string{"Data do Estorno", "Date", "Data"},
			PaymentMethod: paymentMethodColumns,
			Responsible:   []string{"Quem Estornou?", "Quem Estornou", "Quem Recebeu?", "Registado Por", "Responsável", "Criado Por"},
			Category:      []string{"Tag_Cancelamento", "Tag Cancelamento", "Motivo do Estorno", "Motivo Estorno", "Motivo", "Tag"},
		},
		MovementColumns:          []string{"Tipo de Movimento", "Tipo", "Categoria", "Movimento", "Motivo"},
		MovementKeyword:          "estorno",
		FlagColumns:              []string{"É Estorno", "E Estorno", "Estorno?", "Estorno", "é_estorno"},
		ReversedAmountColumn:     "Valor Estornado",
		ReceivedAmountColumn:     "Valor Recebido",
		ResponsibleLookupPrefix:  "quem recebeu",
		ResponsibleLookupExclude: []string{"Quem Recebeu?", "Quem recebeu?_OLD"},
		Separator:                ", ",
	}
}
