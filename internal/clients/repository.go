// Package clients owns the citizen registry: lookups by the two unique
// keys (CURP, email) and the resolve-or-create flow used when a cart is
// opened.
package clients

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tramites-digitales/pagos-api/internal/domain"
)

// ErrDuplicate signals a uniqueness-constraint violation on insert:
// another request created the same citizen first.
var ErrDuplicate = errors.New("citizen already exists")

const citizenColumns = `
	id, nombres, apellido_primero, apellido_segundo, curp, telefono, email,
	contrasena_md5, contrasena_sha256, renovacion, limite_citas_pendientes,
	autoriza_mensajes, enviar_boletin, es_adulto_mayor, es_mujer,
	es_identidad, es_discapacidad, es_personal_interno,
	creado, modificado, estatus`

// Repository reads and writes cit_clientes rows.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func scanCitizen(rows *sql.Rows) (*domain.Citizen, error) {
	c := &domain.Citizen{}
	err := rows.Scan(&c.ID, &c.FirstNames, &c.FirstLastName, &c.SecondLastName,
		&c.CURP, &c.Phone, &c.Email, &c.PasswordMD5, &c.PasswordSHA256,
		&c.RenewalDate, &c.PendingVisitsLimit,
		&c.AcceptsMessages, &c.WantsNewsletter, &c.IsSeniorCitizen, &c.IsWoman,
		&c.IsIdentityProtected, &c.HasDisability, &c.IsInternalStaff,
		&c.CreatedAt, &c.ModifiedAt, &c.Status)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// one runs a lookup under the exactly-one policy: zero rows and
// duplicates both resolve to nil.
func (r *Repository) one(ctx context.Context, query string, arg any) (*domain.Citizen, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var found []*domain.Citizen
	for rows.Next() {
		c, err := scanCitizen(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(found) != 1 {
		return nil, nil
	}
	return found[0], nil
}

func (r *Repository) ByCURP(ctx context.Context, curp string) (*domain.Citizen, error) {
	return r.one(ctx, `SELECT `+citizenColumns+` FROM cit_clientes WHERE curp = $1`, curp)
}

func (r *Repository) ByEmail(ctx context.Context, email string) (*domain.Citizen, error) {
	return r.one(ctx, `SELECT `+citizenColumns+` FROM cit_clientes WHERE email = $1`, email)
}

// Create inserts the citizen and assigns its identifier. A unique
// violation on curp or email comes back as ErrDuplicate.
func (r *Repository) Create(ctx context.Context, citizen *domain.Citizen) error {
	citizen.ID = uuid.New().String()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cit_clientes (
			id, nombres, apellido_primero, apellido_segundo, curp, telefono, email,
			contrasena_md5, contrasena_sha256, renovacion, limite_citas_pendientes,
			autoriza_mensajes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, citizen.ID, citizen.FirstNames, citizen.FirstLastName, citizen.SecondLastName,
		citizen.CURP, citizen.Phone, citizen.Email,
		citizen.PasswordMD5, citizen.PasswordSHA256,
		citizen.RenewalDate, citizen.PendingVisitsLimit, citizen.AcceptsMessages)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		return err
	}
	return nil
}
