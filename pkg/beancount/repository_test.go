package beancount

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pigeonworks-llc/section-ledger/pkg/pathutil"
)

func newTestRepository(t *testing.T) (*FileSystemRepository, string) {
	t.Helper()
	root := t.TempDir()
	repo := NewFileSystemRepository(pathutil.New(pathutil.Config{Root: root}), "Agrupamento 123 · Lobitos")
	repo.now = func() time.Time { return time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC) }
	return repo, root
}

func TestAppendTransaction(t *testing.T) {
	repo, root := newTestRepository(t)

	assert.False(t, repo.MonthFileExists("2024-01"))

	path, err := repo.AppendTransaction("2024-01", "2024-01-05 * \"first\"", "exported")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "2024", "2024-01.beancount"), path)

	_, err = repo.AppendTransaction("2024-01", "2024-01-06 * \"second\"\n")
	require.NoError(t, err)

	got, err := repo.ReadMonthFile("2024-01")
	require.NoError(t, err)
	assert.Equal(t,
		"; Agrupamento 123 · Lobitos 2024-01\n; Generated at 2024-02-01T09:00:00Z\n\n"+
			"; exported\n2024-01-05 * \"first\"\n\n"+
			"2024-01-06 * \"second\"\n\n",
		got)
}

func TestReadMissingMonthFile(t *testing.T) {
	repo, _ := newTestRepository(t)

	got, err := repo.ReadMonthFile("2023-12")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = repo.ReadMonthFile("december")
	assert.Error(t, err)
}

func TestMonthFilesInYear(t *testing.T) {
	repo, root := newTestRepository(t)

	months, err := repo.MonthFilesInYear("2024")
	require.NoError(t, err)
	assert.Empty(t, months)

	for _, m := range []string{"2024-03", "2024-01"} {
		require.NoError(t, repo.EnsureMonthFile(m))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "2024", "notes.txt"), nil, 0o644))

	months, err = repo.MonthFilesInYear("2024")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01", "2024-03"}, months)
}

func TestEnsureMonthFileKeepsContent(t *testing.T) {
	repo, _ := newTestRepository(t)

	_, err := repo.AppendTransaction("2024-05", "x")
	require.NoError(t, err)
	require.NoError(t, repo.EnsureMonthFile("2024-05"))

	got, err := repo.ReadMonthFile("2024-05")
	require.NoError(t, err)
	assert.Contains(t, got, "x\n")
}

func TestTransactionYearMonth(t *testing.T) {
	assert.Equal(t, "2024-01", Transaction{Date: "2024-01-05"}.YearMonth())
	assert.Empty(t, Transaction{}.YearMonth())
}
