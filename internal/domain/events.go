package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSettledEvent is published after a bank callback settles an order as
// PAGADO. The receipts worker consumes it to deliver the comprobante email.
type OrderSettledEvent struct {
	OrderID            string          `json:"order_id"`
	Folio              string          `json:"folio"`
	State              OrderState      `json:"estado"`
	Total              decimal.Decimal `json:"total"`
	Email              string          `json:"email"`
	CitizenName        string          `json:"nombre"`
	ServiceDescription string          `json:"descripcion"`
	SettledAt          time.Time       `json:"resultado_tiempo"`
}
