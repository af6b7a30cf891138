// Package catalog serves the read-only lookups backing the payment flow:
// districts, authorities and the trámites/servicios offering.
package catalog

import (
	"context"
	"database/sql"

	"github.com/tramites-digitales/pagos-api/internal/domain"
)

// Repository reads catalog entities. Lookups by clave follow the
// exactly-one policy: zero matches and duplicate claves both come back
// as nil, never as an error the caller can distinguish.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DistrictByCode(ctx context.Context, code string) (*domain.District, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, clave, nombre, nombre_corto, es_distrito, es_activo, creado, modificado, estatus
		FROM distritos
		WHERE clave = $1
	`, code)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var found []*domain.District
	for rows.Next() {
		d := &domain.District{}
		if err := rows.Scan(&d.ID, &d.Code, &d.Name, &d.ShortName, &d.IsDistrict, &d.IsActive,
			&d.CreatedAt, &d.ModifiedAt, &d.Status); err != nil {
			return nil, err
		}
		found = append(found, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(found) != 1 {
		return nil, nil
	}
	return found[0], nil
}

func (r *Repository) AuthorityByCode(ctx context.Context, code string) (*domain.Authority, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.distrito_id, a.clave, a.descripcion, a.descripcion_corta,
		       a.es_jurisdiccional, a.es_activo, a.creado, a.modificado, a.estatus,
		       d.clave, d.nombre, d.nombre_corto
		FROM autoridades a
		JOIN distritos d ON d.id = a.distrito_id
		WHERE a.clave = $1
	`, code)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var found []*domain.Authority
	for rows.Next() {
		a := &domain.Authority{}
		if err := rows.Scan(&a.ID, &a.DistrictID, &a.Code, &a.Description, &a.ShortDescription,
			&a.IsJurisdictional, &a.IsActive, &a.CreatedAt, &a.ModifiedAt, &a.Status,
			&a.DistrictCode, &a.DistrictName, &a.DistrictShortName); err != nil {
			return nil, err
		}
		found = append(found, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(found) != 1 {
		return nil, nil
	}
	return found[0], nil
}

func (r *Repository) ServiceByCode(ctx context.Context, code string) (*domain.Service, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, clave, descripcion, costo, url, es_activo, creado, modificado, estatus
		FROM pag_tramites_servicios
		WHERE clave = $1
	`, code)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var found []*domain.Service
	for rows.Next() {
		s := &domain.Service{}
		if err := rows.Scan(&s.ID, &s.Code, &s.Description, &s.Cost, &s.URL, &s.IsActive,
			&s.CreatedAt, &s.ModifiedAt, &s.Status); err != nil {
			return nil, err
		}
		found = append(found, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(found) != 1 {
		return nil, nil
	}
	return found[0], nil
}

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

func (r *Repository) ListDistricts(ctx context.Context, page Page) ([]domain.District, int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, clave, nombre, nombre_corto, es_distrito, es_activo, creado, modificado, estatus,
		       COUNT(*) OVER() AS total
		FROM distritos
		WHERE es_activo = TRUE AND estatus = 'A' AND es_distrito = TRUE
		ORDER BY clave
		LIMIT $1 OFFSET $2
	`, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	districts := []domain.District{}
	var total int64
	for rows.Next() {
		var d domain.District
		if err := rows.Scan(&d.ID, &d.Code, &d.Name, &d.ShortName, &d.IsDistrict, &d.IsActive,
			&d.CreatedAt, &d.ModifiedAt, &d.Status, &total); err != nil {
			return nil, 0, err
		}
		districts = append(districts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return districts, total, nil
}

// ListAuthorities lists active authorities whose district is a real
// district (the ND fallback pair is excluded that way). districtCode
// optionally narrows to one district.
func (r *Repository) ListAuthorities(ctx context.Context, districtCode string, page Page) ([]domain.Authority, int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.distrito_id, a.clave, a.descripcion, a.descripcion_corta,
		       a.es_jurisdiccional, a.es_activo, a.creado, a.modificado, a.estatus,
		       d.clave, d.nombre, d.nombre_corto,
		       COUNT(*) OVER() AS total
		FROM autoridades a
		JOIN distritos d ON d.id = a.distrito_id
		WHERE a.es_activo = TRUE AND a.estatus = 'A'
		  AND d.es_distrito = TRUE
		  AND ($1 = '' OR d.clave = $1)
		ORDER BY a.clave
		LIMIT $2 OFFSET $3
	`, districtCode, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	authorities := []domain.Authority{}
	var total int64
	for rows.Next() {
		var a domain.Authority
		if err := rows.Scan(&a.ID, &a.DistrictID, &a.Code, &a.Description, &a.ShortDescription,
			&a.IsJurisdictional, &a.IsActive, &a.CreatedAt, &a.ModifiedAt, &a.Status,
			&a.DistrictCode, &a.DistrictName, &a.DistrictShortName, &total); err != nil {
			return nil, 0, err
		}
		authorities = append(authorities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return authorities, total, nil
}

func (r *Repository) ListServices(ctx context.Context, page Page) ([]domain.Service, int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, clave, descripcion, costo, url, es_activo, creado, modificado, estatus,
		       COUNT(*) OVER() AS total
		FROM pag_tramites_servicios
		WHERE es_activo = TRUE AND estatus = 'A'
		ORDER BY clave
		LIMIT $1 OFFSET $2
	`, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	services := []domain.Service{}
	var total int64
	for rows.Next() {
		var s domain.Service
		if err := rows.Scan(&s.ID, &s.Code, &s.Description, &s.Cost, &s.URL, &s.IsActive,
			&s.CreatedAt, &s.ModifiedAt, &s.Status, &total); err != nil {
			return nil, 0, err
		}
		services = append(services, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return services, total, nil
}
