// Package converter turns reconciled transactions into Beancount entries.
package converter

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/pigeonworks-llc/section-ledger/pkg/normalize"
)

// AccountMapping maps one label seen in the table store to a Beancount account.
type AccountMapping struct {
	Name      string   `yaml:"name"`
	Aliases   []string `yaml:"aliases"`
	Beancount string   `yaml:"beancount"`
}

// AccountGroup is the mapping for one side of a posting.
type AccountGroup struct {
	Default  string           `yaml:"default"`
	Prefix   string           `yaml:"prefix"` // used for unmapped labels
	Mappings []AccountMapping `yaml:"mappings"`
}

// AccountMappingConfig represents the complete account mapping configuration.
type AccountMappingConfig struct {
	Currency       string       `yaml:"currency"`
	PaymentMethods AccountGroup `yaml:"payment_methods"`
	Categories     AccountGroup `yaml:"categories"`
}

// Mapper maps payment methods to asset accounts and categories to income accounts.
type Mapper struct {
	config     AccountMappingConfig
	methods    map[string]string
	categories map[string]string
}

// DefaultMappingConfig is used when no mapping file is configured.
func DefaultMappingConfig() AccountMappingConfig {
	return AccountMappingConfig{
		PaymentMethods: AccountGroup{Default: "Assets:Section:Unassigned", Prefix: "Assets:Section"},
		Categories:     AccountGroup{Default: "Income:Section:Other", Prefix: "Income:Section"},
	}
}

// NewMapper creates a new Mapper from a YAML configuration file.
func NewMapper(configPath string) (*Mapper, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseMapper(data)
}

// ParseMapper builds a Mapper from YAML. Missing defaults and prefixes are
// taken from DefaultMappingConfig.
func ParseMapper(data []byte) (*Mapper, error) {
	config := DefaultMappingConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return NewMapperFromConfig(config), nil
}

// NewMapperFromConfig builds a Mapper from an in-memory configuration.
func NewMapperFromConfig(config AccountMappingConfig) *Mapper {
	defaults := DefaultMappingConfig()
	fill(&config.PaymentMethods, defaults.PaymentMethods)
	fill(&config.Categories, defaults.Categories)

	return &Mapper{
		config:     config,
		methods:    index(config.PaymentMethods.Mappings),
		categories: index(config.Categories.Mappings),
	}
}

func fill(g *AccountGroup, def AccountGroup) {
	if g.Default == "" {
		g.Default = def.Default
	}
	if g.Prefix == "" {
		g.Prefix = def.Prefix
	}
}

func index(mappings []AccountMapping) map[string]string {
	m := make(map[string]string)
	for _, mapping := range mappings {
		for _, label := range append([]string{mapping.Name}, mapping.Aliases...) {
			if key := normalize.Fold(label); key != "" {
				m[key] = mapping.Beancount
			}
		}
	}
	return m
}

// Currency returns the configured currency, or "" when the file sets none.
func (m *Mapper) Currency() string {
	return m.config.Currency
}

// AssetAccount returns the account a payment method posts to. Unmapped methods
// get an account under the configured prefix; an empty method gets the default.
func (m *Mapper) AssetAccount(method string) string {
	return resolve(m.methods, m.config.PaymentMethods, method)
}

// IncomeAccount returns the account a category posts to.
func (m *Mapper) IncomeAccount(category string) string {
	return resolve(m.categories, m.config.Categories, category)
}

// HasPaymentMethod checks if a payment method is explicitly mapped.
func (m *Mapper) HasPaymentMethod(method string) bool {
	_, ok := m.methods[normalize.Fold(method)]
	return ok
}

// HasCategory checks if a category is explicitly mapped.
func (m *Mapper) HasCategory(category string) bool {
	_, ok := m.categories[normalize.Fold(category)]
	return ok
}

func resolve(mapped map[string]string, group AccountGroup, label string) string {
	if account, ok := mapped[normalize.Fold(label)]; ok {
		return account
	}
	component := sanitizeAccountName(label)
	if component == "" {
		return group.Default
	}
	return group.Prefix + ":" + component
}

// sanitizeAccountName turns a free-text label into one Beancount account
// component: accents stripped, words capitalized and joined.
// Example: "MB Way" -> "MBWay", "quota anual" -> "QuotaAnual"
func sanitizeAccountName(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, name)
	if err != nil {
		plain = name
	}

	words := strings.FieldsFunc(plain, func(r rune) bool {
		return !(r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)))
	})
	var b strings.Builder
	for _, w := range words {
		b.WriteString(strings.ToUpper(w[:1]))
		b.WriteString(w[1:])
	}
	return b.String()
}
