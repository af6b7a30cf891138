// Package payments owns the payment-order lifecycle: the pag_pagos
// ledger, the cart/settlement orchestration and their HTTP handlers.
package payments

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tramites-digitales/pagos-api/internal/domain"
)

var (
	// ErrOrderNotFound: no order carries the identifier.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderDeleted: the order exists but is soft-deleted.
	ErrOrderDeleted = errors.New("order is deleted")
	// ErrAlreadyProcessed: the order already left SOLICITADO; a retried
	// callback must never settle it twice.
	ErrAlreadyProcessed = errors.New("order already processed")
	// ErrReceiptAlreadySent guards the comprobante flag.
	ErrReceiptAlreadySent = errors.New("receipt already sent")
)

// Repository reads and writes pag_pagos rows.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts the order in SOLICITADO and assigns its identifier.
func (r *Repository) Create(ctx context.Context, order *domain.Order) error {
	order.ID = uuid.New().String()
	order.State = domain.OrderStateRequested

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pag_pagos (
			id, autoridad_id, distrito_id, cit_cliente_id, pag_tramite_servicio_id,
			caducidad, cantidad, descripcion, email, estado, total
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, order.ID, order.AuthorityID, order.DistrictID, order.CitizenID, order.ServiceID,
		order.ExpiresAt, order.Quantity, order.Description, order.Email,
		order.State, order.Total)
	return err
}

// ApplySettlement runs the guard-and-update of the state machine as one
// statement: only an active order still in SOLICITADO takes the
// transition, and estado, folio, resultado_tiempo and the verbatim
// payload land in the same write. Two concurrent callbacks for the same
// order cannot both pass; the loser gets ErrAlreadyProcessed.
func (r *Repository) ApplySettlement(ctx context.Context, orderID string, state domain.OrderState, folio string, settledAt time.Time, payloadXML string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE pag_pagos
		SET estado = $2, folio = $3, resultado_tiempo = $4, resultado_xml = $5, modificado = NOW()
		WHERE id = $1 AND estado = 'SOLICITADO' AND estatus = 'A'
	`, orderID, state, folio, settledAt, payloadXML)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 1 {
		return nil
	}

	// The guard rejected the update; find out why for the caller.
	var estado, estatus string
	err = r.db.QueryRowContext(ctx, `
		SELECT estado, estatus FROM pag_pagos WHERE id = $1
	`, orderID).Scan(&estado, &estatus)
	if err == sql.ErrNoRows {
		return ErrOrderNotFound
	}
	if err != nil {
		return err
	}
	if estatus != domain.StatusActive {
		return ErrOrderDeleted
	}
	return ErrAlreadyProcessed
}

// MarkReceiptSent flips ya_se_envio_comprobante exactly once.
func (r *Repository) MarkReceiptSent(ctx context.Context, orderID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE pag_pagos
		SET ya_se_envio_comprobante = TRUE, modificado = NOW()
		WHERE id = $1 AND ya_se_envio_comprobante = FALSE
	`, orderID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrReceiptAlreadySent
	}
	return nil
}

// Detail is the public projection of an order, joined with the catalog
// and citizen rows it references.
type Detail struct {
	ID                 string          `json:"id"`
	AuthorityCode      string          `json:"autoridad_clave"`
	AuthorityDesc      string          `json:"autoridad_descripcion"`
	AuthorityShortDesc string          `json:"autoridad_descripcion_corta"`
	DistrictCode       string          `json:"distrito_clave"`
	DistrictName       string          `json:"distrito_nombre"`
	DistrictShortName  string          `json:"distrito_nombre_corto"`
	FirstNames         string          `json:"nombres"`
	FirstLastName      string          `json:"apellido_primero"`
	SecondLastName     string          `json:"apellido_segundo"`
	CitizenEmail       string          `json:"cit_cliente_email"`
	ServiceCode        string          `json:"pag_tramite_servicio_clave"`
	ServiceDescription string          `json:"pag_tramite_servicio_descripcion"`
	Quantity           int             `json:"cantidad"`
	Description        string          `json:"descripcion"`
	Email              string          `json:"email"`
	State              string          `json:"estado"`
	Folio              string          `json:"folio"`
	SettledAt          *time.Time      `json:"resultado_tiempo"`
	Total              decimal.Decimal `json:"total"`

	Status string `json:"-"`
}

// CitizenFullName joins the citizen's names, tolerating a missing
// second last name.
func (d *Detail) CitizenFullName() string {
	return strings.TrimSpace(d.FirstNames + " " + d.FirstLastName + " " + d.SecondLastName)
}

// GetDetail fetches the projection by order identifier; absent orders
// come back as nil.
func (r *Repository) GetDetail(ctx context.Context, orderID string) (*Detail, error) {
	d := &Detail{}
	err := r.db.QueryRowContext(ctx, `
		SELECT p.id, a.clave, a.descripcion, a.descripcion_corta,
		       d.clave, d.nombre, d.nombre_corto,
		       c.nombres, c.apellido_primero, c.apellido_segundo, c.email,
		       ts.clave, ts.descripcion,
		       p.cantidad, p.descripcion, p.email, p.estado, p.folio,
		       p.resultado_tiempo, p.total, p.estatus
		FROM pag_pagos p
		JOIN autoridades a ON a.id = p.autoridad_id
		JOIN distritos d ON d.id = p.distrito_id
		JOIN cit_clientes c ON c.id = p.cit_cliente_id
		JOIN pag_tramites_servicios ts ON ts.id = p.pag_tramite_servicio_id
		WHERE p.id = $1
	`, orderID).Scan(&d.ID, &d.AuthorityCode, &d.AuthorityDesc, &d.AuthorityShortDesc,
		&d.DistrictCode, &d.DistrictName, &d.DistrictShortName,
		&d.FirstNames, &d.FirstLastName, &d.SecondLastName, &d.CitizenEmail,
		&d.ServiceCode, &d.ServiceDescription,
		&d.Quantity, &d.Description, &d.Email, &d.State, &d.Folio,
		&d.SettledAt, &d.Total, &d.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}
