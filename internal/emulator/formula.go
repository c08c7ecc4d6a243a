package emulator

import (
	"errors"
	"regexp"
	"strings"

	"github.com/pigeonworks-llc/section-ledger/pkg/normalize"
	"github.com/pigeonworks-llc/section-ledger/pkg/table"
)

// errUnsupportedFormula is returned for predicates outside the supported subset.
var errUnsupportedFormula = errors.New("unsupported formula")

// equalsTerm matches LOWER({Field})='value' with backslash escapes in value.
var equalsTerm = regexp.MustCompile(`LOWER\(\{([^}]*)\}\)\s*=\s*'((?:[^'\\]|\\.)*)'`)

type predicate func(rec table.Record) bool

// parseFormula understands the case-insensitive equality predicates the client
// builds: a single LOWER({F})='v' term, or several of them inside OR(...).
func parseFormula(formula string) (predicate, error) {
	formula = strings.TrimSpace(formula)
	if formula == "" {
		return func(table.Record) bool { return true }, nil
	}

	body := formula
	if strings.HasPrefix(body, "OR(") && strings.HasSuffix(body, ")") {
		body = body[len("OR(") : len(body)-1]
	}

	matches := equalsTerm.FindAllStringSubmatchIndex(body, -1)
	if len(matches) == 0 {
		return nil, errUnsupportedFormula
	}

	type term struct{ field, value string }
	terms := make([]term, 0, len(matches))
	rest := body
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		terms = append(terms, term{
			field: body[m[2]:m[3]],
			value: unescape(body[m[4]:m[5]]),
		})
		rest = rest[:m[0]] + rest[m[1]:]
	}
	if strings.Trim(rest, ", ") != "" {
		return nil, errUnsupportedFormula
	}

	return func(rec table.Record) bool {
		for _, t := range terms {
			if strings.ToLower(normalize.Flatten(rec.Field(t.field))) == t.value {
				return true
			}
		}
		return false
	}, nil
}

func unescape(s string) string {
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if !escaped && r == '\\' {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}
