package emulator

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/pigeonworks-llc/section-ledger/pkg/table"
)

// SeedRecord is one fixture record. ID may be empty.
type SeedRecord struct {
	ID     string         `yaml:"id"`
	Fields map[string]any `yaml:"fields"`
}

// Seed maps base ID to table name to records.
type Seed map[string]map[string][]SeedRecord

// LoadSeedFile reads a YAML fixture file.
func LoadSeedFile(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return seed, nil
}

// Apply creates every table of the seed and inserts its records.
// Tables are created even when they hold no records.
func (s *Store) Apply(seed Seed) error {
	for _, baseID := range sortedKeys(seed) {
		tables := seed[baseID]
		for _, tableName := range sortedKeys(tables) {
			if err := s.EnsureTable(baseID, tableName); err != nil {
				return err
			}
			for _, sr := range tables[tableName] {
				rec := table.Record{ID: sr.ID, Fields: make(map[string]table.Cell, len(sr.Fields))}
				for name, v := range sr.Fields {
					rec.Fields[name] = table.Of(v)
				}
				if _, err := s.Create(baseID, tableName, rec); err != nil {
					return fmt.Errorf("failed to seed %s/%s: %w", baseID, tableName, err)
				}
			}
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
