package beancount

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pigeonworks-llc/section-ledger/pkg/pathutil"
)

// Repository defines the interface for Beancount file operations.
type Repository interface {
	// AppendTransaction appends a transaction to a monthly file and returns the file path.
	AppendTransaction(yearMonth, transaction string, comment ...string) (string, error)

	// ReadMonthFile reads the content of a monthly file
	ReadMonthFile(yearMonth string) (string, error)

	// MonthFileExists checks if a monthly file exists
	MonthFileExists(yearMonth string) bool

	// MonthFilesInYear lists the months of a year that have a file, sorted
	MonthFilesInYear(year string) ([]string, error)

	// EnsureMonthFile ensures a monthly file exists with header
	EnsureMonthFile(yearMonth string) error
}

// FileSystemRepository is a file system implementation of Repository.
type FileSystemRepository struct {
	pathResolver *pathutil.PathResolver
	title        string
	now          func() time.Time
}

// NewFileSystemRepository creates a new FileSystemRepository. title names the
// ledger in new file headers.
func NewFileSystemRepository(pathResolver *pathutil.PathResolver, title string) *FileSystemRepository {
	return &FileSystemRepository{
		pathResolver: pathResolver,
		title:        title,
		now:          time.Now,
	}
}

// AppendTransaction appends a transaction to a monthly file.
// It creates the file if it doesn't exist.
func (r *FileSystemRepository) AppendTransaction(yearMonth, transaction string, comment ...string) (string, error) {
	filePath, err := r.pathResolver.MonthFilePath(yearMonth)
	if err != nil {
		return "", fmt.Errorf("failed to get month file path: %w", err)
	}

	if err := r.EnsureMonthFile(yearMonth); err != nil {
		return "", fmt.Errorf("failed to ensure month file: %w", err)
	}

	var b strings.Builder
	if len(comment) > 0 && comment[0] != "" {
		fmt.Fprintf(&b, "; %s\n", comment[0])
	}
	b.WriteString(transaction)
	if !strings.HasSuffix(transaction, "\n") {
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to open file for appending: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(b.String()); err != nil {
		return "", fmt.Errorf("failed to write to file: %w", err)
	}
	return filePath, nil
}

// ReadMonthFile reads the content of a monthly file.
// Returns empty string if file doesn't exist.
func (r *FileSystemRepository) ReadMonthFile(yearMonth string) (string, error) {
	filePath, err := r.pathResolver.MonthFilePath(yearMonth)
	if err != nil {
		return "", fmt.Errorf("failed to get month file path: %w", err)
	}

	if !r.pathResolver.FileExists(filePath) {
		return "", nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}

// MonthFileExists checks if a monthly file exists.
func (r *FileSystemRepository) MonthFileExists(yearMonth string) bool {
	filePath, err := r.pathResolver.MonthFilePath(yearMonth)
	if err != nil {
		return false
	}
	return r.pathResolver.FileExists(filePath)
}

// MonthFilesInYear returns year-month keys (e.g., ["2024-01", "2024-02"]).
func (r *FileSystemRepository) MonthFilesInYear(year string) ([]string, error) {
	yearDir := r.pathResolver.YearDir(year)
	if !r.pathResolver.FileExists(yearDir) {
		return []string{}, nil
	}

	entries, err := os.ReadDir(yearDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read year directory: %w", err)
	}

	var months []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".beancount" {
			continue
		}
		months = append(months, strings.TrimSuffix(name, ".beancount"))
	}
	sort.Strings(months)
	return months, nil
}

// EnsureMonthFile ensures a monthly file exists with header.
// If the file already exists, this is a no-op.
func (r *FileSystemRepository) EnsureMonthFile(yearMonth string) error {
	filePath, err := r.pathResolver.MonthFilePath(yearMonth)
	if err != nil {
		return fmt.Errorf("failed to get month file path: %w", err)
	}

	if r.pathResolver.FileExists(filePath) {
		return nil
	}

	if err := r.pathResolver.EnsureParentDir(filePath); err != nil {
		return fmt.Errorf("failed to ensure parent directory: %w", err)
	}

	if err := os.WriteFile(filePath, []byte(r.header(yearMonth)), 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func (r *FileSystemRepository) header(yearMonth string) string {
	title := r.title
	if title == "" {
		title = "Ledger"
	}
	return fmt.Sprintf("; %s %s\n; Generated at %s\n\n", title, yearMonth, r.now().Format(time.RFC3339))
}
