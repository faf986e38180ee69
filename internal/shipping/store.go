package shipping

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgTemplateStore implements TemplateStore on Postgres.
type PgTemplateStore struct {
	Pool *pgxpool.Pool
}

const templateColumns = `
	id, name, charge_basis, first_unit::text, first_fee::text,
	addition_unit::text, addition_fee::text, free_threshold::text`

func scanTemplate(row pgx.Row) (Template, error) {
	var tpl Template
	var threshold *string
	err := row.Scan(&tpl.ID, &tpl.Name, &tpl.Basis,
		&tpl.Rate.FirstUnit, &tpl.Rate.FirstFee,
		&tpl.Rate.AdditionUnit, &tpl.Rate.AdditionFee, &threshold)
	if errors.Is(err, pgx.ErrNoRows) {
		return Template{}, ErrTemplateNotFound
	}
	if err != nil {
		return Template{}, err
	}
	tpl.FreeThreshold = threshold
	return tpl, nil
}

// FindDefault loads the template flagged as the store default.
func (s PgTemplateStore) FindDefault(ctx context.Context) (Template, error) {
	return scanTemplate(s.Pool.QueryRow(ctx, `
		SELECT `+templateColumns+`
		FROM shipping_templates WHERE is_default LIMIT 1`))
}

// Find loads one template by id.
func (s PgTemplateStore) Find(ctx context.Context, id uuid.UUID) (Template, error) {
	return scanTemplate(s.Pool.QueryRow(ctx, `
		SELECT `+templateColumns+`
		FROM shipping_templates WHERE id = $1`, id))
}

// PgAreaStore implements AreaStore on Postgres. Area rows match on the
// province/city/district hierarchy; an empty column matches everything
// below it, and more specific rows win.
type PgAreaStore struct {
	Pool *pgxpool.Pool
}

// IsDeliverable reports whether any area row of the template covers the
// destination and is not an exclusion.
func (s PgAreaStore) IsDeliverable(ctx context.Context, templateID uuid.UUID, province, city, district string) (bool, error) {
	var deliverable bool
	err := s.Pool.QueryRow(ctx, `
		SELECT COALESCE(bool_or(NOT excluded), false)
		FROM shipping_template_areas
		WHERE template_id = $1
		  AND (province = '' OR province = $2)
		  AND (city = '' OR city = $3)
		  AND (district = '' OR district = $4)`,
		templateID, province, city, district).Scan(&deliverable)
	if err != nil {
		return false, err
	}
	return deliverable, nil
}

// FindBestMatch returns the most specific matching area row, or nil when
// only the template's base rate applies.
func (s PgAreaStore) FindBestMatch(ctx context.Context, templateID uuid.UUID, province, city, district string) (*AreaRate, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT province, city, district, has_custom_rate,
		       first_unit::text, first_fee::text, addition_unit::text, addition_fee::text,
		       free_threshold::text
		FROM shipping_template_areas
		WHERE template_id = $1 AND NOT excluded
		  AND (province = '' OR province = $2)
		  AND (city = '' OR city = $3)
		  AND (district = '' OR district = $4)
		ORDER BY (province <> '')::int + (city <> '')::int + (district <> '')::int DESC
		LIMIT 1`,
		templateID, province, city, district)
	var area AreaRate
	var threshold *string
	err := row.Scan(&area.Province, &area.City, &area.District, &area.HasCustomRate,
		&area.Rate.FirstUnit, &area.Rate.FirstFee,
		&area.Rate.AdditionUnit, &area.Rate.AdditionFee, &threshold)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	area.FreeThreshold = threshold
	return &area, nil
}
