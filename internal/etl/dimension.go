package etl

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/andes-analytics/lme-etl/internal/db"
)

// notInformed is the substitute description for missing or placeholder
// dimension values.
const notInformed = "no informada"

// Resolver resolves and creates the normalized reference dimensions
// (specialty, professional type) and their link rows to a doctor. The seen
// sets are private to one run: they short-circuit repeat work but are never
// authoritative over the store, so existence checks still run on cache miss.
type Resolver struct {
	pool  db.Pool
	caser cases.Caser
	log   *zap.Logger

	seenDoctors        map[string]bool
	seenSpecialtyLinks map[string]bool
	seenProfTypeLinks  map[string]bool
}

// NewResolver creates a Resolver bound to the destination pool. Each run gets
// its own Resolver; never share one across concurrent runs.
func NewResolver(pool db.Pool) *Resolver {
	return &Resolver{
		pool:               pool,
		caser:              cases.Title(language.Spanish),
		log:                zap.L().With(zap.String("component", "etl.resolver")),
		seenDoctors:        make(map[string]bool),
		seenSpecialtyLinks: make(map[string]bool),
		seenProfTypeLinks:  make(map[string]bool),
	}
}

// Normalize maps a raw dimension description to its canonical form: nil,
// empty and the "-" placeholder collapse to "No Informada"; everything else
// is trimmed and title-cased.
func (r *Resolver) Normalize(raw *string) string {
	desc := notInformed
	if raw != nil {
		if v := strings.TrimSpace(*raw); v != "" && v != "-" {
			desc = v
		}
	}
	return r.caser.String(desc)
}

// ResolveSpecialty returns the dimension id for a raw specialty description,
// creating the row if needed.
func (r *Resolver) ResolveSpecialty(ctx context.Context, raw *string) (int64, error) {
	return r.resolveDimension(ctx, "especialidad_profesional",
		"id_especialidad_profesional", "descripcion_especialidad_profesional",
		r.Normalize(raw))
}

// ResolveProfessionalType returns the dimension id for a raw professional
// type description, creating the row if needed.
func (r *Resolver) ResolveProfessionalType(ctx context.Context, raw *string) (int64, error) {
	return r.resolveDimension(ctx, "profesionalidad",
		"id_profesionalidad", "descripcion_profesionalidad", r.Normalize(raw))
}

// resolveDimension performs one lookup/insert pair as a single committed
// transaction. After an insert the id is re-read rather than taken from
// RETURNING, so a concurrent writer that won the race still yields the
// surviving row's id.
func (r *Resolver) resolveDimension(ctx context.Context, table, idCol, descCol, desc string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "etl: begin resolve %s", table)
	}
	defer tx.Rollback(ctx)

	selectSQL := fmt.Sprintf("SELECT %s FROM lm_dev.%s WHERE %s = $1", idCol, table, descCol)

	var id int64
	err = tx.QueryRow(ctx, selectSQL, desc).Scan(&id)
	if err == pgx.ErrNoRows {
		insertSQL := fmt.Sprintf(
			"INSERT INTO lm_dev.%s (%s) VALUES ($1) ON CONFLICT (%s) DO NOTHING",
			table, descCol, descCol)
		if _, err := tx.Exec(ctx, insertSQL, desc); err != nil {
			return 0, eris.Wrapf(err, "etl: insert %s %q", table, desc)
		}
		err = tx.QueryRow(ctx, selectSQL, desc).Scan(&id)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "etl: resolve %s %q", table, desc)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "etl: commit resolve %s", table)
	}
	return id, nil
}

// ResolveDoctorLinks ensures the doctor row and its associations to the
// specialty and professional-type dimensions exist. Skipped entirely when the
// doctor identifier is absent. Duplicate associations are no-ops.
func (r *Resolver) ResolveDoctorLinks(ctx context.Context, rutMedico *string, specialtyID, profTypeID int64) error {
	if rutMedico == nil {
		return nil
	}
	rut := *rutMedico

	if !r.seenDoctors[rut] {
		err := r.ensureLink(ctx,
			"SELECT EXISTS(SELECT 1 FROM lm_dev.medicos WHERE rut_medico = $1)",
			"INSERT INTO lm_dev.medicos (rut_medico) VALUES ($1) ON CONFLICT DO NOTHING",
			rut)
		if err != nil {
			return eris.Wrapf(err, "etl: ensure doctor %s", rut)
		}
		r.seenDoctors[rut] = true
	}

	specKey := fmt.Sprintf("%d:%s", specialtyID, rut)
	if !r.seenSpecialtyLinks[specKey] {
		err := r.ensureLink(ctx,
			"SELECT EXISTS(SELECT 1 FROM lm_dev.especialidad_profesional_medicos WHERE id_especialidad_profesional = $1 AND rut_medico = $2)",
			"INSERT INTO lm_dev.especialidad_profesional_medicos (id_especialidad_profesional, rut_medico) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			specialtyID, rut)
		if err != nil {
			return eris.Wrapf(err, "etl: link doctor %s to specialty %d", rut, specialtyID)
		}
		r.seenSpecialtyLinks[specKey] = true
	}

	profKey := fmt.Sprintf("%d:%s", profTypeID, rut)
	if !r.seenProfTypeLinks[profKey] {
		err := r.ensureLink(ctx,
			"SELECT EXISTS(SELECT 1 FROM lm_dev.profesionalidad_medicos WHERE id_profesionalidad = $1 AND rut_medico = $2)",
			"INSERT INTO lm_dev.profesionalidad_medicos (id_profesionalidad, rut_medico) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			profTypeID, rut)
		if err != nil {
			return eris.Wrapf(err, "etl: link doctor %s to professional type %d", rut, profTypeID)
		}
		r.seenProfTypeLinks[profKey] = true
	}

	return nil
}

// ensureLink checks existence and inserts when absent. The check runs even
// after a cache miss because concurrent runs may have inserted the row; a
// unique violation from the race is benign.
func (r *Resolver) ensureLink(ctx context.Context, existsSQL, insertSQL string, args ...any) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, existsSQL, args...).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := r.pool.Exec(ctx, insertSQL, args...); err != nil {
		if db.IsUniqueViolation(err) {
			r.log.Debug("duplicate link ignored")
			return nil
		}
		return err
	}
	return nil
}
