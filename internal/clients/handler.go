package clients

import (
	"log/slog"
	"net/http"

	"github.com/tramites-digitales/pagos-api/internal/httpx"
	"github.com/tramites-digitales/pagos-api/internal/sanitize"
)

type Handler struct {
	store  Store
	logger *slog.Logger
}

func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// HandleGet answers the citizen detail addressed by email.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	email, err := sanitize.Email(r.PathValue("email"))
	if err != nil || email == "" {
		httpx.WriteBadRequest(w, h.logger, "No es válido el email")
		return
	}

	citizen, err := h.store.ByEmail(r.Context(), email)
	if err != nil {
		h.logger.Error("failed to query citizen", "error", err)
		httpx.WriteFailure(w, h.logger, "Error al consultar el cliente")
		return
	}
	switch {
	case citizen == nil:
		httpx.WriteFailure(w, h.logger, "No existe ese cliente")
	case citizen.IsDeleted():
		httpx.WriteFailure(w, h.logger, "Este cliente está eliminado")
	default:
		httpx.WriteData(w, h.logger, "Detalle de un cliente", citizen)
	}
}
