package payments

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tramites-digitales/pagos-api/internal/httpx"
	"github.com/tramites-digitales/pagos-api/internal/sanitize"
)

// Handler exposes the payment-order operations over HTTP.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// HandleOpenCart handles POST /pag_pagos/carro.
func (h *Handler) HandleOpenCart(w http.ResponseWriter, r *http.Request) {
	var req CartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, h.logger, "El cuerpo de la petición no es válido")
		return
	}

	cart, err := h.service.OpenCart(r.Context(), req)
	if err != nil {
		h.answerFailure(w, err)
		return
	}

	httpx.WriteData(w, h.logger, "Pago creado listo para enviar al banco", cart)
}

type resultRequest struct {
	EncryptedXML string `json:"xml_encriptado"`
}

// HandleBankResult handles POST /pag_pagos/resultado.
func (h *Handler) HandleBankResult(w http.ResponseWriter, r *http.Request) {
	var req resultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, h.logger, "El cuerpo de la petición no es válido")
		return
	}

	detail, err := h.service.ApplyResult(r.Context(), req.EncryptedXML)
	if err != nil {
		h.answerFailure(w, err)
		return
	}

	httpx.WriteData(w, h.logger, "Pago actualizado con información del banco", detail)
}

// HandleGet handles GET /pag_pagos/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := sanitize.UUID(r.PathValue("id"))
	if err != nil {
		httpx.WriteBadRequest(w, h.logger, "El ID no es válido")
		return
	}

	detail, err := h.service.GetOrder(r.Context(), id.String())
	if err != nil {
		h.answerFailure(w, err)
		return
	}

	httpx.WriteData(w, h.logger, "Detalle de un pago", detail)
}

// answerFailure maps a domain failure to success=false and anything
// else to a logged generic failure, still success=false.
func (h *Handler) answerFailure(w http.ResponseWriter, err error) {
	var failure *Failure
	if errors.As(err, &failure) {
		if failure.err != nil {
			h.logger.Error("payment operation failed", "error", failure.err, "message", failure.Message)
		}
		httpx.WriteFailure(w, h.logger, failure.Message)
		return
	}
	h.logger.Error("payment operation failed", "error", err)
	httpx.WriteFailure(w, h.logger, "No se pudo completar la operación")
}
