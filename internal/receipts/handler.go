// Package receipts consumes settlement events and delivers the payment
// receipt email, at most once per order.
package receipts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tramites-digitales/pagos-api/internal/domain"
	"github.com/tramites-digitales/pagos-api/internal/payments"
)

// Marker claims the comprobante flag of one order.
type Marker interface {
	MarkReceiptSent(ctx context.Context, orderID string) error
}

type Handler struct {
	orders          Marker
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewHandler(orders Marker, emailServiceURL string, client *http.Client, logger *slog.Logger) *Handler {
	return &Handler{
		orders:          orders,
		emailServiceURL: emailServiceURL,
		httpClient:      client,
		logger:          logger,
	}
}

// Handle processes one settlement event. The flag is claimed before the
// email goes out, so a replayed event can never mail twice; an event
// that loses the claim is simply skipped.
func (h *Handler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderSettledEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order settled event: %w", err)
	}

	h.logger.Info("processing settlement", "order_id", event.OrderID, "folio", event.Folio)

	if event.State != domain.OrderStatePaid {
		h.logger.Warn("skipping event for unpaid order", "order_id", event.OrderID, "estado", event.State)
		return nil
	}

	err := h.orders.MarkReceiptSent(ctx, event.OrderID)
	if errors.Is(err, payments.ErrReceiptAlreadySent) {
		h.logger.Info("receipt already sent, skipping", "order_id", event.OrderID)
		return nil
	}
	if err != nil {
		h.logger.Error("failed to claim receipt flag", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("mark receipt sent: %w", err)
	}

	if err := h.sendReceiptEmail(ctx, event); err != nil {
		// The claim stands; the order is flagged and the failure is
		// surfaced in the logs for manual followup.
		h.logger.Error("failed to send receipt email", "error", err, "order_id", event.OrderID)
		return nil
	}

	h.logger.Info("receipt delivered", "order_id", event.OrderID, "email", event.Email)
	return nil
}

func (h *Handler) sendReceiptEmail(ctx context.Context, event domain.OrderSettledEvent) error {
	body := map[string]string{
		"to":      event.Email,
		"subject": "Comprobante de pago " + event.Folio,
		"body": fmt.Sprintf("%s: su pago de %s por %s fue recibido. Folio %s.",
			event.CitizenName, event.ServiceDescription, event.Total.StringFixed(2), event.Folio),
	}

	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
