package tenant

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// BlockPrefix marks the pool blocks that describe a tenant.
const BlockPrefix = "airtable_"

// EnvPrefix introduces pool entries read from the environment:
// LEDGER_TENANT__<BLOCK>__<FIELD>=value.
const EnvPrefix = "LEDGER_TENANT__"

// Pool maps a block key to its flat set of fields.
type Pool map[string]map[string]any

// Recognized block fields. Each accepts a short name and the legacy long name.
const (
	fieldToken        = "TOKEN"
	fieldBaseID       = "BASE_ID"
	fieldGroupID      = "GROUP_ID"
	fieldSectionSlug  = "SECTION_SLUG"
	fieldGroupLabel   = "GROUP_LABEL"
	fieldSectionLabel = "SECTION_LABEL"
)

var fieldAliases = map[string]string{
	"TOKEN":             fieldToken,
	"AIRTABLE_TOKEN":    fieldToken,
	"BASE_ID":           fieldBaseID,
	"AIRTABLE_BASE_ID":  fieldBaseID,
	"GROUP_ID":          fieldGroupID,
	"AGRUPAMENTO_ID":    fieldGroupID,
	"SECTION_SLUG":      fieldSectionSlug,
	"SECAO_SLUG":        fieldSectionSlug,
	"GROUP_LABEL":       fieldGroupLabel,
	"AGRUPAMENTO_LABEL": fieldGroupLabel,
	"SECTION_LABEL":     fieldSectionLabel,
	"SECAO_LABEL":       fieldSectionLabel,
}

const defaultSegment = "default"

// LoadPoolFile reads a YAML credential pool.
func LoadPoolFile(path string) (Pool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tenant pool: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse tenant pool: %w", err)
	}

	pool := make(Pool, len(raw))
	for key, v := range raw {
		// Non-map blocks are kept as nil and skipped by BuildContexts.
		block, _ := v.(map[string]any)
		pool[key] = block
	}
	return pool, nil
}

// PoolFromEnv collects LEDGER_TENANT__<BLOCK>__<FIELD> variables from environ
// (as returned by os.Environ). Block keys are lowercased.
func PoolFromEnv(environ []string) Pool {
	pool := Pool{}
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		block, field, ok := strings.Cut(strings.TrimPrefix(name, EnvPrefix), "__")
		if !ok || block == "" || field == "" {
			continue
		}
		block = strings.ToLower(block)
		if pool[block] == nil {
			pool[block] = map[string]any{}
		}
		pool[block][strings.ToUpper(field)] = value
	}
	return pool
}

// Merge returns a pool holding the blocks of p overlaid by other, field by field.
func (p Pool) Merge(other Pool) Pool {
	out := make(Pool, len(p)+len(other))
	for _, src := range []Pool{p, other} {
		for key, block := range src {
			if out[key] == nil {
				out[key] = map[string]any{}
			}
			for f, v := range block {
				out[key][f] = v
			}
		}
	}
	return out
}

// BuildContexts turns a pool into tenant contexts sorted by group then section
// label, case-insensitively. Blocks without a token or base ID are skipped.
func BuildContexts(pool Pool) []Context {
	keys := make([]string, 0, len(pool))
	for key := range pool {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	contexts := make([]Context, 0, len(keys))
	for _, key := range keys {
		if !strings.HasPrefix(key, BlockPrefix) {
			continue
		}
		if ctx, ok := buildContext(key, pool[key]); ok {
			contexts = append(contexts, ctx)
		}
	}

	sort.SliceStable(contexts, func(i, j int) bool {
		gi, gj := strings.ToLower(contexts[i].GroupLabel), strings.ToLower(contexts[j].GroupLabel)
		if gi != gj {
			return gi < gj
		}
		return strings.ToLower(contexts[i].SectionLabel) < strings.ToLower(contexts[j].SectionLabel)
	})
	return contexts
}

func buildContext(key string, block map[string]any) (Context, bool) {
	if block == nil {
		return Context{}, false
	}

	known := map[string]string{}
	extras := map[string]string{}
	for name, v := range block {
		upper := strings.ToUpper(strings.TrimSpace(name))
		value := stringify(v)
		if canonical, ok := fieldAliases[upper]; ok {
			if value != "" {
				known[canonical] = value
			}
			continue
		}
		extras[upper] = value
	}

	token, baseID := known[fieldToken], known[fieldBaseID]
	if token == "" || baseID == "" {
		return Context{}, false
	}

	derivedGroup, derivedSlug := splitKey(key)
	groupID := orDefault(known[fieldGroupID], derivedGroup)
	sectionSlug := orDefault(known[fieldSectionSlug], derivedSlug)

	return Context{
		Key:          key,
		GroupLabel:   orDefault(known[fieldGroupLabel], "Agrupamento "+slugToLabel(groupID)),
		SectionLabel: orDefault(known[fieldSectionLabel], slugToLabel(sectionSlug)),
		GroupID:      groupID,
		SectionSlug:  sectionSlug,
		Token:        token,
		BaseID:       baseID,
		extras:       extras,
	}, true
}

// splitKey derives group ID and section slug from a block key such as
// airtable_lisboa_alcantara_norte (group "lisboa", slug "alcantara_norte").
func splitKey(key string) (group, slug string) {
	parts := strings.Split(key, "_")
	switch {
	case len(parts) >= 3:
		group, slug = parts[1], strings.Join(parts[2:], "_")
	case len(parts) == 2:
		group, slug = parts[1], parts[1]
	}
	return orDefault(group, defaultSegment), orDefault(slug, defaultSegment)
}

// slugToLabel replaces - and _ with spaces and title-cases each word.
func slugToLabel(slug string) string {
	titleCaser := cases.Title(language.Und)
	words := strings.Fields(strings.NewReplacer("-", " ", "_", " ").Replace(slug))
	if len(words) == 0 {
		return titleCaser.String(slug)
	}
	for i, w := range words {
		words[i] = titleCaser.String(w)
	}
	return strings.Join(words, " ")
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	}
	return fmt.Sprint(v)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
