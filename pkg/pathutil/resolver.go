// Package pathutil provides centralized path management for ledger files and the history database.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// PathResolver manages paths for one ledger tree and its history database.
type PathResolver struct {
	root         string
	databasePath string
}

// Config represents the configuration for PathResolver.
type Config struct {
	// Root is the directory holding every tenant's ledger files (e.g. ~/ledger).
	Root string
	// DatabasePath is the SQLite history file.
	DatabasePath string
}

// New creates a new PathResolver with the given configuration.
// If DatabasePath is empty, it defaults to {Root}/.sync/ledger.db
func New(config Config) *PathResolver {
	dbPath := config.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(config.Root, ".sync", "ledger.db")
	}
	return &PathResolver{root: config.Root, databasePath: dbPath}
}

// Root returns the ledger root directory.
func (p *PathResolver) Root() string {
	return p.root
}

// DatabasePath returns the database file path.
func (p *PathResolver) DatabasePath() string {
	return p.databasePath
}

// ForTenant returns a resolver rooted at {Root}/{group}/{section}. The database
// path is shared.
// Example: ~/ledger/agr-123/lobitos
func (p *PathResolver) ForTenant(group, section string) *PathResolver {
	return &PathResolver{
		root:         filepath.Join(p.root, Segment(group), Segment(section)),
		databasePath: p.databasePath,
	}
}

// YearDir returns the directory path for a year.
// Example: ~/ledger/agr-123/lobitos/2024
func (p *PathResolver) YearDir(year string) string {
	return filepath.Join(p.root, year)
}

// MonthFilePath returns the file path for a month.
// yearMonth should be in YYYY-MM format.
// Example: ~/ledger/agr-123/lobitos/2024/2024-01.beancount
func (p *PathResolver) MonthFilePath(yearMonth string) (string, error) {
	parts := strings.Split(yearMonth, "-")
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 2 {
		return "", fmt.Errorf("invalid year-month format: %s. Expected YYYY-MM", yearMonth)
	}
	return filepath.Join(p.YearDir(parts[0]), yearMonth+".beancount"), nil
}

// Rel returns path relative to the resolver root, or path unchanged when it is
// outside the root.
func (p *PathResolver) Rel(path string) string {
	rel, err := filepath.Rel(p.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// EnsureDir creates a directory if it doesn't exist.
func (p *PathResolver) EnsureDir(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dirPath, err)
	}
	return nil
}

// EnsureParentDir ensures the parent directory of a file exists.
func (p *PathResolver) EnsureParentDir(filePath string) error {
	return p.EnsureDir(filepath.Dir(filePath))
}

// FileExists checks if a file exists.
func (p *PathResolver) FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}

// Segment turns a tenant id or slug into a safe directory name: accents are
// stripped, letters lowercased, and runs of anything other than letters, digits,
// '-' or '_' collapse to a single '-'. An empty result becomes "default".
func Segment(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, s)
	if err != nil {
		plain = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(plain) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if out == "" {
		return "default"
	}
	return out
}
