package etl

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sourceRows builds a mock result set with one row per id. Every nullable
// column is null; only the non-null columns carry values.
func sourceRows(ids ...int64) *pgxmock.Rows {
	rows := pgxmock.NewRows(auditHeader)
	for _, id := range ids {
		vals := make([]any, len(auditHeader))
		vals[0] = id
		vals[4] = fmt.Sprintf("A-%d", id)
		vals[5] = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		rows.AddRow(vals...)
	}
	return rows
}

func TestExtractWindow_Paging(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	w := Window{
		Start: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC),
	}
	mock.ExpectQuery("FROM lme.sabana_fiscalizador_lme").
		WithArgs(w.Start, w.End).
		WillReturnRows(sourceRows(1, 2, 3, 4, 5))

	ex := NewExtractor(mock, 2, 0)

	var sizes []int
	var ids []int64
	err = ex.ExtractWindow(context.Background(), w, func(page []*LicenseRecord) error {
		sizes = append(sizes, len(page))
		for _, rec := range page {
			ids = append(ids, rec.IDLic)
		}
		return nil
	})
	require.NoError(t, err)

	// Full pages of pageSize plus a short final page, in cursor order.
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExtractWindow_EmptyWindow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	w := Window{
		Start: time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 1, 4, 0, 0, 0, time.UTC),
	}
	mock.ExpectQuery("FROM lme.sabana_fiscalizador_lme").
		WithArgs(w.Start, w.End).
		WillReturnRows(sourceRows())

	ex := NewExtractor(mock, 10, 0)
	called := false
	err = ex.ExtractWindow(context.Background(), w, func(page []*LicenseRecord) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExtractWindow_EmitErrorStopsIteration(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	w := Window{
		Start: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC),
	}
	mock.ExpectQuery("FROM lme.sabana_fiscalizador_lme").
		WithArgs(w.Start, w.End).
		WillReturnRows(sourceRows(1, 2, 3))

	ex := NewExtractor(mock, 1, 0)
	boom := fmt.Errorf("downstream full")
	calls := 0
	err = ex.ExtractWindow(context.Background(), w, func(page []*LicenseRecord) error {
		calls++
		return boom
	})
	// The callback's error comes back unwrapped so the caller can match it.
	assert.Equal(t, boom, err)
	assert.Equal(t, 1, calls)
}

func TestExtractWindow_QueryError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	w := Window{
		Start: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC),
	}
	mock.ExpectQuery("FROM lme.sabana_fiscalizador_lme").
		WithArgs(w.Start, w.End).
		WillReturnError(fmt.Errorf("relation does not exist"))

	ex := NewExtractor(mock, 10, 0)
	err = ex.ExtractWindow(context.Background(), w, func([]*LicenseRecord) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query window 2024-03-01 10:00")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewExtractorDefaultsPageSize(t *testing.T) {
	t.Parallel()

	ex := NewExtractor(nil, 0, 0)
	assert.Equal(t, 10, ex.pageSize)
	ex = NewExtractor(nil, -3, 0)
	assert.Equal(t, 10, ex.pageSize)
}

func TestEmpleadorAdscritoFlag(t *testing.T) {
	t.Parallel()

	no := "No"
	si := "Si"
	assert.Equal(t, 0, (&LicenseRecord{EmpleadorAdscrito: &no}).EmpleadorAdscritoFlag())
	assert.Equal(t, 1, (&LicenseRecord{EmpleadorAdscrito: &si}).EmpleadorAdscritoFlag())
	assert.Equal(t, 1, (&LicenseRecord{}).EmpleadorAdscritoFlag())
}

func TestAuditRowMatchesHeader(t *testing.T) {
	t.Parallel()

	edad := 42
	rec := &LicenseRecord{
		IDLic:          77,
		Folio:          "B-77",
		FechaEmision:   time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
		EdadTrabajador: &edad,
	}
	row := rec.auditRow()
	require.Len(t, row, len(auditHeader))
	assert.Equal(t, "77", row[0])
	assert.Equal(t, "B-77", row[4])
	assert.Equal(t, "2024-03-01 09:30:00", row[5])
	assert.Equal(t, "42", row[13])
	assert.Equal(t, "", row[1])
}
