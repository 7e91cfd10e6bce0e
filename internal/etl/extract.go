package etl

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/andes-analytics/lme-etl/internal/db"
)

// sourceQuery pulls one hour window of certificates joined with the medical
// grounds table. Window bounds are bound parameters; ordering fixes the
// cursor order rows are handed downstream in.
const sourceQuery = `
SELECT
    s.id_lic, s.operador, s.ccaf, s.entidad_pagadora, s.folio,
    s.fecha_emision, s.empleador_adscrito, s.codigo_interno_prestador,
    s.comuna_prestador, s.fecha_ultimo_estado, s.ultimo_estado,
    s.rut_trabajador, s.sexo_trabajador, s.edad_trabajador, s.tipo_reposo,
    s.dias_reposo, s.fecha_inicio_reposo, s.comuna_reposo, s.tipo_licencia,
    s.rut_medico, s.especialidad_profesional, s.tipo_profesional,
    s.zbtipo_licencia_entidad AS tipo_licencia_pronunciamiento,
    s.zbcodigo_continuacion AS codigo_continuacion_pronunciamiento,
    s.zbdias_autorizados AS dias_autorizados_pronunciamiento,
    s.zbcodigo_diagnostico AS codigo_diagnostico_pronunciamiento,
    s.zbcodigo_autorizacion AS codigo_autorizacion_pronunciamiento,
    s.zbcausa_rechazo AS causa_rechazo_pronunciamiento,
    s.zbtipo_reposo AS tipo_reposo_pronunciamiento,
    s.zbderecho_a_subsidio AS derecho_a_subsidio_pronunciamiento,
    s.rut_empleador, s.calidad_trabajador, s.actividad_laboral_trabajador,
    s.ocupacion, s.entidad_pagadora2 AS entidad_pagadora_zona_c,
    s.fecha_recepcion_empleador, s.regimen_previsional,
    s.entidad_pagadora_subsidio, s.comuna_laboral, s.comuna_uso_compin,
    s.cantidad_de_pronunciamientos, s.cantidad_de_zonas_d,
    s.secuencia_estados, s.cod_diagnostico_principal,
    s.cod_diagnostico_secundario, s.periodo, f.tiene_fundamento
FROM lme.sabana_fiscalizador_lme s
LEFT JOIN lme.fundamento_lme f
    ON f.folio = s.folio AND f.rut_trabajador = s.rut_trabajador
WHERE s.fecha_emision >= $1 AND s.fecha_emision < $2
ORDER BY s.fecha_emision, s.id_lic`

// Extractor streams source rows out of the operational database in bounded
// pages. One query per one-hour window keeps individual result sets small
// without server-side cursors across the whole range.
type Extractor struct {
	pool     db.Pool
	pageSize int
	limiter  *rate.Limiter
	log      *zap.Logger
}

// NewExtractor creates an Extractor reading from the source pool. ratePerSec
// caps window queries per second against the operational table; zero or
// negative disables the cap.
func NewExtractor(pool db.Pool, pageSize int, ratePerSec float64) *Extractor {
	if pageSize <= 0 {
		pageSize = 10
	}
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &Extractor{
		pool:     pool,
		pageSize: pageSize,
		limiter:  rate.NewLimiter(limit, 1),
		log:      zap.L().With(zap.String("component", "etl.extractor")),
	}
}

// ExtractWindow queries one window and hands rows to emit in fixed-size
// pages, in source cursor order. The final page may be short. Any error from
// emit stops the iteration and is returned unchanged.
func (e *Extractor) ExtractWindow(ctx context.Context, w Window, emit func(page []*LicenseRecord) error) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "etl: rate limit wait")
	}

	rows, err := e.pool.Query(ctx, sourceQuery, w.Start, w.End)
	if err != nil {
		return eris.Wrapf(err, "etl: query window %s", w.Start.Format("2006-01-02 15:04"))
	}
	defer rows.Close()

	page := make([]*LicenseRecord, 0, e.pageSize)
	for rows.Next() {
		rec := &LicenseRecord{}
		if err := rows.Scan(rec.scanTargets()...); err != nil {
			return eris.Wrap(err, "etl: scan source row")
		}
		page = append(page, rec)
		if len(page) == e.pageSize {
			if err := emit(page); err != nil {
				return err
			}
			page = make([]*LicenseRecord, 0, e.pageSize)
		}
	}
	if err := rows.Err(); err != nil {
		return eris.Wrapf(err, "etl: iterate window %s", w.Start.Format("2006-01-02 15:04"))
	}
	if len(page) > 0 {
		if err := emit(page); err != nil {
			return err
		}
	}
	return nil
}
