package etl

import (
	"strconv"
	"time"
)

// LicenseRecord is one row pulled from lme.sabana_fiscalizador_lme joined
// with lme.fundamento_lme. It is read-only from the pipeline's perspective;
// nullable source columns are pointers.
type LicenseRecord struct {
	IDLic                    int64
	Operador                 *string
	CCAF                     *string
	EntidadPagadora          *string
	Folio                    string
	FechaEmision             time.Time
	EmpleadorAdscrito        *string
	CodigoInternoPrestador   *string
	ComunaPrestador          *string
	FechaUltimoEstado        *time.Time
	UltimoEstado             *string
	RutTrabajador            *string
	SexoTrabajador           *string
	EdadTrabajador           *int
	TipoReposo               *string
	DiasReposo               *int
	FechaInicioReposo        *time.Time
	ComunaReposo             *string
	TipoLicencia             *string
	RutMedico                *string
	EspecialidadProfesional  *string
	TipoProfesional          *string
	TipoLicenciaPron         *string
	CodigoContinuacionPron   *string
	DiasAutorizadosPron      *int
	CodigoDiagnosticoPron    *string
	CodigoAutorizacionPron   *string
	CausaRechazoPron         *string
	TipoReposoPron           *string
	DerechoASubsidioPron     *string
	RutEmpleador             *string
	CalidadTrabajador        *string
	ActividadLaboral         *string
	Ocupacion                *string
	EntidadPagadoraZonaC     *string
	FechaRecepcionEmpleador  *time.Time
	RegimenPrevisional       *string
	EntidadPagadoraSubsidio  *string
	ComunaLaboral            *string
	ComunaUsoCompin          *string
	CantidadPronunciamientos *int
	CantidadZonasD           *int
	SecuenciaEstados         *string
	CodDiagnosticoPrincipal  *string
	CodDiagnosticoSecundario *string
	Periodo                  *string
	TieneFundamento          *string
}

// EmpleadorAdscritoFlag maps the boolean-like source field to its destination
// value: the literal "No" becomes 0, everything else (including null) 1.
func (r *LicenseRecord) EmpleadorAdscritoFlag() int {
	if r.EmpleadorAdscrito != nil && *r.EmpleadorAdscrito == "No" {
		return 0
	}
	return 1
}

// scanTargets returns the scan destinations in source query column order.
func (r *LicenseRecord) scanTargets() []any {
	return []any{
		&r.IDLic, &r.Operador, &r.CCAF, &r.EntidadPagadora, &r.Folio,
		&r.FechaEmision, &r.EmpleadorAdscrito, &r.CodigoInternoPrestador,
		&r.ComunaPrestador, &r.FechaUltimoEstado, &r.UltimoEstado,
		&r.RutTrabajador, &r.SexoTrabajador, &r.EdadTrabajador,
		&r.TipoReposo, &r.DiasReposo, &r.FechaInicioReposo, &r.ComunaReposo,
		&r.TipoLicencia, &r.RutMedico, &r.EspecialidadProfesional,
		&r.TipoProfesional, &r.TipoLicenciaPron, &r.CodigoContinuacionPron,
		&r.DiasAutorizadosPron, &r.CodigoDiagnosticoPron,
		&r.CodigoAutorizacionPron, &r.CausaRechazoPron, &r.TipoReposoPron,
		&r.DerechoASubsidioPron, &r.RutEmpleador, &r.CalidadTrabajador,
		&r.ActividadLaboral, &r.Ocupacion, &r.EntidadPagadoraZonaC,
		&r.FechaRecepcionEmpleador, &r.RegimenPrevisional,
		&r.EntidadPagadoraSubsidio, &r.ComunaLaboral, &r.ComunaUsoCompin,
		&r.CantidadPronunciamientos, &r.CantidadZonasD, &r.SecuenciaEstados,
		&r.CodDiagnosticoPrincipal, &r.CodDiagnosticoSecundario, &r.Periodo,
		&r.TieneFundamento,
	}
}

// auditHeader lists the columns written to the per-run audit CSV, in source
// query order.
var auditHeader = []string{
	"id_lic", "operador", "ccaf", "entidad_pagadora", "folio",
	"fecha_emision", "empleador_adscrito", "codigo_interno_prestador",
	"comuna_prestador", "fecha_ultimo_estado", "ultimo_estado",
	"rut_trabajador", "sexo_trabajador", "edad_trabajador", "tipo_reposo",
	"dias_reposo", "fecha_inicio_reposo", "comuna_reposo", "tipo_licencia",
	"rut_medico", "especialidad_profesional", "tipo_profesional",
	"tipo_licencia_pronunciamiento", "codigo_continuacion_pronunciamiento",
	"dias_autorizados_pronunciamiento", "codigo_diagnostico_pronunciamiento",
	"codigo_autorizacion_pronunciamiento", "causa_rechazo_pronunciamiento",
	"tipo_reposo_pronunciamiento", "derecho_a_subsidio_pronunciamiento",
	"rut_empleador", "calidad_trabajador", "actividad_laboral_trabajador",
	"ocupacion", "entidad_pagadora_zona_c", "fecha_recepcion_empleador",
	"regimen_previsional", "entidad_pagadora_subsidio", "comuna_laboral",
	"comuna_uso_compin", "cantidad_de_pronunciamientos", "cantidad_de_zonas_d",
	"secuencia_estados", "cod_diagnostico_principal",
	"cod_diagnostico_secundario", "periodo", "tiene_fundamento",
}

// auditRow renders the record as CSV fields matching auditHeader.
func (r *LicenseRecord) auditRow() []string {
	return []string{
		strconv.FormatInt(r.IDLic, 10), strp(r.Operador), strp(r.CCAF),
		strp(r.EntidadPagadora), r.Folio,
		r.FechaEmision.Format("2006-01-02 15:04:05"),
		strp(r.EmpleadorAdscrito), strp(r.CodigoInternoPrestador),
		strp(r.ComunaPrestador), timep(r.FechaUltimoEstado),
		strp(r.UltimoEstado), strp(r.RutTrabajador), strp(r.SexoTrabajador),
		intp(r.EdadTrabajador), strp(r.TipoReposo), intp(r.DiasReposo),
		timep(r.FechaInicioReposo), strp(r.ComunaReposo),
		strp(r.TipoLicencia), strp(r.RutMedico),
		strp(r.EspecialidadProfesional), strp(r.TipoProfesional),
		strp(r.TipoLicenciaPron), strp(r.CodigoContinuacionPron),
		intp(r.DiasAutorizadosPron), strp(r.CodigoDiagnosticoPron),
		strp(r.CodigoAutorizacionPron), strp(r.CausaRechazoPron),
		strp(r.TipoReposoPron), strp(r.DerechoASubsidioPron),
		strp(r.RutEmpleador), strp(r.CalidadTrabajador),
		strp(r.ActividadLaboral), strp(r.Ocupacion),
		strp(r.EntidadPagadoraZonaC), timep(r.FechaRecepcionEmpleador),
		strp(r.RegimenPrevisional), strp(r.EntidadPagadoraSubsidio),
		strp(r.ComunaLaboral), strp(r.ComunaUsoCompin),
		intp(r.CantidadPronunciamientos), intp(r.CantidadZonasD),
		strp(r.SecuenciaEstados), strp(r.CodDiagnosticoPrincipal),
		strp(r.CodDiagnosticoSecundario), strp(r.Periodo),
		strp(r.TieneFundamento),
	}
}

func strp(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intp(i *int) string {
	if i == nil {
		return ""
	}
	return strconv.Itoa(*i)
}

func timep(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
