package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderState enumerates the estados of a payment order. An order starts
// as SOLICITADO and moves exactly once to PAGADO or FALLIDO when the bank
// callback arrives. CANCELADO and ENTREGADO belong to back-office tooling
// and are never set by this API.
type OrderState string

const (
	OrderStateRequested OrderState = "SOLICITADO"
	OrderStateCancelled OrderState = "CANCELADO"
	OrderStatePaid      OrderState = "PAGADO"
	OrderStateFailed    OrderState = "FALLIDO"
	OrderStateDelivered OrderState = "ENTREGADO"
)

// Valid reports whether s is a known estado.
func (s OrderState) Valid() bool {
	switch s {
	case OrderStateRequested, OrderStateCancelled, OrderStatePaid, OrderStateFailed, OrderStateDelivered:
		return true
	}
	return false
}

// Order is a payment order (pago) for a single service. Total is fixed at
// creation as service cost times quantity and never recomputed. Folio,
// SettledAt and SettlementXML are written together, exactly once, when the
// bank result is applied.
type Order struct {
	ID          string     `json:"id"`
	AuthorityID string     `json:"-"`
	DistrictID  string     `json:"-"`
	CitizenID   string     `json:"-"`
	ServiceID   string     `json:"-"`
	ExpiresAt   time.Time  `json:"caducidad"`
	Quantity    int        `json:"cantidad"`
	Description string     `json:"descripcion"`
	Email       string     `json:"email"`
	State       OrderState `json:"estado"`
	Folio       string     `json:"folio"`
	SettledAt   *time.Time `json:"resultado_tiempo,omitempty"`

	// SettlementXML keeps the decrypted bank payload verbatim for audits.
	SettlementXML string `json:"-"`

	Total       decimal.Decimal `json:"total"`
	ReceiptSent bool            `json:"-"`
	Audit
}
