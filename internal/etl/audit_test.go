package etl

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditWriter_PathLayout(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	started := time.Date(2024, 3, 1, 14, 7, 0, 0, time.UTC)

	a, err := NewAuditWriter(base, "abc123", started)
	require.NoError(t, err)
	defer a.Close()

	want := filepath.Join(base, "etl", "20240301_1407", "registros_abc123.csv")
	assert.Equal(t, want, a.Path())

	_, err = os.Stat(want)
	assert.NoError(t, err)
}

func TestAuditWriter_AppendsRowsInReadOrder(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	a, err := NewAuditWriter(base, "t1", time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	rut := "12345678-9"
	recs := []*LicenseRecord{
		{IDLic: 1, Folio: "A-1", FechaEmision: time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC)},
		{IDLic: 2, Folio: "A-2", FechaEmision: time.Date(2024, 3, 1, 9, 6, 0, 0, time.UTC), RutMedico: &rut},
	}
	for _, rec := range recs {
		require.NoError(t, a.Append(rec))
	}
	require.NoError(t, a.Close())

	f, err := os.Open(a.Path())
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, auditHeader, rows[0])
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "A-1", rows[1][4])
	assert.Equal(t, "2", rows[2][0])
	assert.Equal(t, rut, rows[2][19])
	assert.Empty(t, rows[1][19])
}

func TestAuditWriter_CloseTwiceReturnsError(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	a, err := NewAuditWriter(base, "t2", time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.NoError(t, a.Close())

	err = a.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close audit file")
}

func TestAuditWriter_BadBaseDir(t *testing.T) {
	t.Parallel()

	// A regular file where the directory should go.
	base := t.TempDir()
	blocker := filepath.Join(base, "etl")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := NewAuditWriter(base, "t1", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create audit dir")
}
