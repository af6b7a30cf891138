// Package banking defines the contract with the external bank payment
// gateway. The core never sees the gateway's wire format or crypto; it
// only builds pay-link requests and consumes decrypted results.
package banking

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrGateway marks every failure coming out of the bank boundary:
// network, crypto or payload shape. The wrapped message carries the
// human-readable cause surfaced to the caller.
var ErrGateway = errors.New("bank gateway")

// ResponseApproved is the respuesta code the bank sends for a settled
// payment; any other code settles the order as FALLIDO.
const ResponseApproved = "approved"

// PayLinkRequest carries everything the bank needs to issue a pay link.
type PayLinkRequest struct {
	OrderID       string
	CitizenID     string
	Email         string
	ServiceDetail string
	Amount        decimal.Decimal
}

// Result is the decrypted settlement callback.
type Result struct {
	OrderID      string
	ResponseCode string
	Folio        string

	// XML keeps the decrypted payload verbatim for storage.
	XML string
}

// Approved reports whether the bank settled the payment successfully.
func (r *Result) Approved() bool {
	return r.ResponseCode == ResponseApproved
}

// Gateway is the boundary to the bank. Implementations must be safe for
// concurrent use; both calls are blocking network/crypto operations
// cancellable through ctx.
type Gateway interface {
	CreatePayLink(ctx context.Context, req PayLinkRequest) (string, error)
	DecryptResult(ctx context.Context, encrypted string) (*Result, error)
}
