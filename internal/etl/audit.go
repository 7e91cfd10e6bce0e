package etl

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
)

// AuditWriter appends every source row of one run to a CSV file, independent
// of the destination writes, for audit and replay. One file per run; the path
// encodes the run start timestamp and the task id.
type AuditWriter struct {
	path string
	f    *os.File
	w    *csv.Writer
}

// NewAuditWriter creates the run's audit file under
// <baseDir>/etl/<yyyymmdd_hhmm>/registros_<taskID>.csv and writes the header.
func NewAuditWriter(baseDir, taskID string, startedAt time.Time) (*AuditWriter, error) {
	dir := filepath.Join(baseDir, "etl", startedAt.Format("20060102_1504"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "etl: create audit dir %s", dir)
	}

	path := filepath.Join(dir, "registros_"+taskID+".csv")
	f, err := os.Create(path)
	if err != nil {
		return nil, eris.Wrapf(err, "etl: create audit file %s", path)
	}

	w := csv.NewWriter(f)
	if err := w.Write(auditHeader); err != nil {
		f.Close()
		return nil, eris.Wrap(err, "etl: write audit header")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, eris.Wrap(err, "etl: flush audit header")
	}

	return &AuditWriter{path: path, f: f, w: w}, nil
}

// Path returns the audit file location.
func (a *AuditWriter) Path() string {
	return a.path
}

// Append writes one record in read order. A failed append is returned to the
// caller and aborts the run.
func (a *AuditWriter) Append(rec *LicenseRecord) error {
	if err := a.w.Write(rec.auditRow()); err != nil {
		return eris.Wrapf(err, "etl: append audit row id_lic %d", rec.IDLic)
	}
	a.w.Flush()
	if err := a.w.Error(); err != nil {
		return eris.Wrapf(err, "etl: flush audit row id_lic %d", rec.IDLic)
	}
	return nil
}

// Close flushes and closes the audit file.
func (a *AuditWriter) Close() error {
	a.w.Flush()
	if err := a.w.Error(); err != nil {
		a.f.Close()
		return eris.Wrap(err, "etl: flush audit file")
	}
	return eris.Wrap(a.f.Close(), "etl: close audit file")
}
