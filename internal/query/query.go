// Package query exposes the read API over the tables the extraction pipeline
// populates. Every operation is a thin wrapper around an externally owned SQL
// file executed with bound parameters.
package query

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/andes-analytics/lme-etl/internal/db"
)

const dateLayout = "2006-01-02"

// ErrInvalidDate marks date-format validation failures so handlers can map
// them to client errors.
var ErrInvalidDate = eris.New("query: invalid date")

// Service runs parameterized read queries loaded from sqlDir. The SQL files
// are consumed unchanged; this package only loads and executes them.
type Service struct {
	pool   db.Pool
	sqlDir string

	mu    sync.Mutex
	cache map[string]string
}

// NewService creates a read query service over the analytics pool.
func NewService(pool db.Pool, sqlDir string) *Service {
	return &Service{pool: pool, sqlDir: sqlDir, cache: make(map[string]string)}
}

// loadSQL reads a query file from sqlDir, caching the contents.
func (s *Service) loadSQL(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.cache[name]; ok {
		return q, nil
	}
	raw, err := os.ReadFile(filepath.Join(s.sqlDir, name))
	if err != nil {
		return "", eris.Wrapf(err, "query: load %s", name)
	}
	s.cache[name] = string(raw)
	return string(raw), nil
}

// ParseDates validates a YYYY-MM-DD date range.
func ParseDates(startDate, endDate string) (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrapf(ErrInvalidDate, "fecha_inicio %q (want YYYY-MM-DD)", startDate)
	}
	end, err := time.Parse(dateLayout, endDate)
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrapf(ErrInvalidDate, "fecha_fin %q (want YYYY-MM-DD)", endDate)
	}
	return start, end, nil
}

// collect runs a loaded query and maps each result row by column name.
func (s *Service) collect(ctx context.Context, file string, args ...any) ([]map[string]any, error) {
	sql, err := s.loadSQL(file)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "query: execute %s", file)
	}
	results, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, eris.Wrapf(err, "query: collect %s", file)
	}
	return results, nil
}

// TotalsByDoctor returns per-diagnosis certificate totals for the doctor who
// issued the given folio, within a date range.
func (s *Service) TotalsByDoctor(ctx context.Context, folio, startDate, endDate string) ([]map[string]any, error) {
	start, end, err := ParseDates(startDate, endDate)
	if err != nil {
		return nil, err
	}
	return s.collect(ctx, "licencias_1.sql", start, end, folio)
}

// ByDoctor lists certificates issued by a doctor within a date range.
func (s *Service) ByDoctor(ctx context.Context, rutMedico, startDate, endDate string) ([]map[string]any, error) {
	start, end, err := ParseDates(startDate, endDate)
	if err != nil {
		return nil, err
	}
	return s.collect(ctx, "licencias_2.sql", rutMedico, start, end)
}

// WithoutGrounds lists certificates lacking medical grounds in a date range.
func (s *Service) WithoutGrounds(ctx context.Context, startDate, endDate string) ([]map[string]any, error) {
	start, end, err := ParseDates(startDate, endDate)
	if err != nil {
		return nil, err
	}
	return s.collect(ctx, "licencias_3.sql", start, end)
}

// ByFolio returns the certificate with the given public folio, or nil.
func (s *Service) ByFolio(ctx context.Context, folio string) (map[string]any, error) {
	results, err := s.collect(ctx, "licencias_7.sql", folio)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

// ByWorker lists certificates issued to a worker within a date range.
func (s *Service) ByWorker(ctx context.Context, rutTrabajador, startDate, endDate string) ([]map[string]any, error) {
	start, end, err := ParseDates(startDate, endDate)
	if err != nil {
		return nil, err
	}
	return s.collect(ctx, "licencias_8.sql", rutTrabajador, start, end)
}

// FundamentoIndicator returns the medical-grounds indicator rows for a folio.
func (s *Service) FundamentoIndicator(ctx context.Context, folio string) ([]map[string]any, error) {
	return s.collect(ctx, "licencias_4.sql", folio)
}

// ByDiagnosis lists certificates carrying a principal diagnosis code within a
// date range.
func (s *Service) ByDiagnosis(ctx context.Context, codDiagnostico, startDate, endDate string) ([]map[string]any, error) {
	start, end, err := ParseDates(startDate, endDate)
	if err != nil {
		return nil, err
	}
	return s.collect(ctx, "licencias_5.sql", codDiagnostico, start, end)
}

// ByRegion lists certificates by rest-period comuna within a date range.
func (s *Service) ByRegion(ctx context.Context, comunaReposo, startDate, endDate string) ([]map[string]any, error) {
	start, end, err := ParseDates(startDate, endDate)
	if err != nil {
		return nil, err
	}
	return s.collect(ctx, "licencias_6.sql", comunaReposo, start, end)
}

// ByPronouncementDiagnosis lists certificates whose adjudication carries the
// given diagnosis code, within a date range.
func (s *Service) ByPronouncementDiagnosis(ctx context.Context, codigo, startDate, endDate string) ([]map[string]any, error) {
	start, end, err := ParseDates(startDate, endDate)
	if err != nil {
		return nil, err
	}
	return s.collect(ctx, "licencias_9.sql", codigo, start, end)
}
