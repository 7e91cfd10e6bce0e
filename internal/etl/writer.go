package etl

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/andes-analytics/lme-etl/internal/db"
)

// insertLicenseSQL writes the enriched fact row. The id_lic conflict clause
// is the correctness backstop for rows re-read across overlapping windows.
const insertLicenseSQL = `
INSERT INTO lm_dev.licencias (
    id_lic, operador, ccaf, entidad_pagadora, folio, fecha_emision,
    empleador_adscrito, codigo_interno_prestador, comuna_prestador,
    fecha_ultimo_estado, ultimo_estado, rut_trabajador, sexo_trabajador,
    edad_trabajador, tipo_reposo, dias_reposo, fecha_inicio_reposo,
    comuna_reposo, tipo_licencia, rut_medico, tipo_licencia_pronunciamiento,
    codigo_continuacion_pronunciamiento, dias_autorizados_pronunciamiento,
    codigo_diagnostico_pronunciamiento, codigo_autorizacion_pronunciamiento,
    causa_rechazo_pronunciamiento, tipo_reposo_pronunciamiento,
    derecho_a_subsidio_pronunciamiento, rut_empleador, calidad_trabajador,
    actividad_laboral_trabajador, ocupacion, entidad_pagadora_zona_c,
    fecha_recepcion_empleador, regimen_previsional, entidad_pagadora_subsidio,
    comuna_laboral, comuna_uso_compin, cantidad_de_pronunciamientos,
    cantidad_de_zonas_d, secuencia_estados, cod_diagnostico_principal,
    cod_diagnostico_secundario, periodo, tiene_fundamento
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
    $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30,
    $31, $32, $33, $34, $35, $36, $37, $38, $39, $40, $41, $42, $43, $44, $45
)
ON CONFLICT (id_lic) DO NOTHING`

const classificationExistsSQL = `
SELECT EXISTS(SELECT 1 FROM lm_dev.diagnostico_especialidad WHERE id_lic = $1)`

const insertClassificationSQL = `
INSERT INTO lm_dev.diagnostico_especialidad (
    id_lic, cod_diagnostico_principal, id_especialidad_profesional
) VALUES ($1, $2, $3)`

// Writer enriches one source row at a time and writes it into the analytics
// schema. seenIDs is private to one run: it skips redundant round-trips for
// ids already written in this run, while the database constraint stays the
// correctness backstop.
type Writer struct {
	pool     db.Pool
	resolver *Resolver
	seenIDs  map[int64]bool
	log      *zap.Logger
}

// NewWriter creates a Writer for one extraction run.
func NewWriter(pool db.Pool, resolver *Resolver) *Writer {
	return &Writer{
		pool:     pool,
		resolver: resolver,
		seenIDs:  make(map[int64]bool),
		log:      zap.L().With(zap.String("component", "etl.writer")),
	}
}

// WriteRecord resolves the record's dimensions and inserts the fact and
// classification rows in one transaction committed per row. Uniqueness
// violations are benign duplicates; any other failure is returned and aborts
// the run.
func (w *Writer) WriteRecord(ctx context.Context, rec *LicenseRecord) error {
	specialtyID, err := w.resolver.ResolveSpecialty(ctx, rec.EspecialidadProfesional)
	if err != nil {
		return err
	}
	profTypeID, err := w.resolver.ResolveProfessionalType(ctx, rec.TipoProfesional)
	if err != nil {
		return err
	}
	if err := w.resolver.ResolveDoctorLinks(ctx, rec.RutMedico, specialtyID, profTypeID); err != nil {
		return err
	}

	if w.seenIDs[rec.IDLic] {
		w.log.Debug("id_lic already written this run", zap.Int64("id_lic", rec.IDLic))
		return nil
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return eris.Wrapf(err, "etl: begin write id_lic %d", rec.IDLic)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, insertLicenseSQL,
		rec.IDLic, rec.Operador, rec.CCAF, rec.EntidadPagadora, rec.Folio,
		rec.FechaEmision, rec.EmpleadorAdscritoFlag(),
		rec.CodigoInternoPrestador, rec.ComunaPrestador,
		rec.FechaUltimoEstado, rec.UltimoEstado, rec.RutTrabajador,
		rec.SexoTrabajador, rec.EdadTrabajador, rec.TipoReposo,
		rec.DiasReposo, rec.FechaInicioReposo, rec.ComunaReposo,
		rec.TipoLicencia, rec.RutMedico, rec.TipoLicenciaPron,
		rec.CodigoContinuacionPron, rec.DiasAutorizadosPron,
		rec.CodigoDiagnosticoPron, rec.CodigoAutorizacionPron,
		rec.CausaRechazoPron, rec.TipoReposoPron, rec.DerechoASubsidioPron,
		rec.RutEmpleador, rec.CalidadTrabajador, rec.ActividadLaboral,
		rec.Ocupacion, rec.EntidadPagadoraZonaC, rec.FechaRecepcionEmpleador,
		rec.RegimenPrevisional, rec.EntidadPagadoraSubsidio,
		rec.ComunaLaboral, rec.ComunaUsoCompin, rec.CantidadPronunciamientos,
		rec.CantidadZonasD, rec.SecuenciaEstados, rec.CodDiagnosticoPrincipal,
		rec.CodDiagnosticoSecundario, rec.Periodo, rec.TieneFundamento,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			w.log.Info("duplicate id_lic ignored",
				zap.Int64("id_lic", rec.IDLic), zap.String("folio", rec.Folio))
			w.seenIDs[rec.IDLic] = true
			return nil
		}
		return eris.Wrapf(err, "etl: insert licencia id_lic %d folio %s", rec.IDLic, rec.Folio)
	}

	// At most one classification row per id_lic: exists-check before insert,
	// inside the same commit boundary as the fact row.
	var exists bool
	if err := tx.QueryRow(ctx, classificationExistsSQL, rec.IDLic).Scan(&exists); err != nil {
		return eris.Wrapf(err, "etl: check classification id_lic %d", rec.IDLic)
	}
	if !exists {
		_, err = tx.Exec(ctx, insertClassificationSQL,
			rec.IDLic, rec.CodDiagnosticoPrincipal, specialtyID)
		if err != nil {
			if db.IsUniqueViolation(err) {
				w.log.Info("duplicate classification ignored", zap.Int64("id_lic", rec.IDLic))
				w.seenIDs[rec.IDLic] = true
				return nil
			}
			return eris.Wrapf(err, "etl: insert classification id_lic %d", rec.IDLic)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrapf(err, "etl: commit id_lic %d", rec.IDLic)
	}

	w.seenIDs[rec.IDLic] = true
	w.log.Debug("row written", zap.Int64("id_lic", rec.IDLic), zap.String("folio", rec.Folio))
	return nil
}
