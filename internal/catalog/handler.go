package catalog

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tramites-digitales/pagos-api/internal/domain"
	"github.com/tramites-digitales/pagos-api/internal/httpx"
	"github.com/tramites-digitales/pagos-api/internal/sanitize"
)

// Store is what the handlers need from the catalog repository.
type Store interface {
	DistrictByCode(ctx context.Context, code string) (*domain.District, error)
	AuthorityByCode(ctx context.Context, code string) (*domain.Authority, error)
	ServiceByCode(ctx context.Context, code string) (*domain.Service, error)
	ListDistricts(ctx context.Context, page Page) ([]domain.District, int64, error)
	ListAuthorities(ctx context.Context, districtCode string, page Page) ([]domain.Authority, int64, error)
	ListServices(ctx context.Context, page Page) ([]domain.Service, int64, error)
}

type Handler struct {
	store  Store
	logger *slog.Logger
}

func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

type listData struct {
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Items  any   `json:"items"`
}

func pageFromQuery(r *http.Request) Page {
	page := Page{Limit: defaultPageLimit}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		page.Limit = sanitize.Integer(raw, 1, maxPageLimit)
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		page.Offset = sanitize.Integer(raw, 0, int(^uint(0)>>1))
	}
	return page
}

func (h *Handler) HandleDistrict(w http.ResponseWriter, r *http.Request) {
	code := sanitize.Clave(r.PathValue("clave"))
	if code == "" {
		httpx.WriteBadRequest(w, h.logger, "No es válida la clave")
		return
	}

	district, err := h.store.DistrictByCode(r.Context(), code)
	if err != nil {
		h.logger.Error("failed to query district", "error", err, "clave", code)
		httpx.WriteFailure(w, h.logger, "Error al consultar el distrito")
		return
	}
	switch {
	case district == nil:
		httpx.WriteFailure(w, h.logger, "No existe ese distrito")
	case !district.IsActive:
		httpx.WriteFailure(w, h.logger, "No está activo ese distrito")
	case district.IsDeleted():
		httpx.WriteFailure(w, h.logger, "Este distrito está eliminado")
	default:
		httpx.WriteData(w, h.logger, "Detalle de un distrito", district)
	}
}

func (h *Handler) HandleDistricts(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)
	districts, total, err := h.store.ListDistricts(r.Context(), page)
	if err != nil {
		h.logger.Error("failed to list districts", "error", err)
		httpx.WriteFailure(w, h.logger, "Error al consultar los distritos")
		return
	}
	httpx.WriteData(w, h.logger, "Paginado de distritos", listData{
		Total: total, Limit: page.Limit, Offset: page.Offset, Items: districts,
	})
}

func (h *Handler) HandleAuthority(w http.ResponseWriter, r *http.Request) {
	code := sanitize.Clave(r.PathValue("clave"))
	if code == "" {
		httpx.WriteBadRequest(w, h.logger, "No es válida la clave")
		return
	}

	authority, err := h.store.AuthorityByCode(r.Context(), code)
	if err != nil {
		h.logger.Error("failed to query authority", "error", err, "clave", code)
		httpx.WriteFailure(w, h.logger, "Error al consultar la autoridad")
		return
	}
	switch {
	case authority == nil:
		httpx.WriteFailure(w, h.logger, "No existe esa autoridad")
	case !authority.IsActive:
		httpx.WriteFailure(w, h.logger, "No está activa esa autoridad")
	case authority.IsDeleted():
		httpx.WriteFailure(w, h.logger, "Esta autoridad está eliminada")
	default:
		httpx.WriteData(w, h.logger, "Detalle de una autoridad", authority)
	}
}

func (h *Handler) HandleAuthorities(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)
	districtCode := sanitize.Clave(r.URL.Query().Get("distrito_clave"))

	authorities, total, err := h.store.ListAuthorities(r.Context(), districtCode, page)
	if err != nil {
		h.logger.Error("failed to list authorities", "error", err)
		httpx.WriteFailure(w, h.logger, "Error al consultar las autoridades")
		return
	}
	httpx.WriteData(w, h.logger, "Paginado de autoridades", listData{
		Total: total, Limit: page.Limit, Offset: page.Offset, Items: authorities,
	})
}

func (h *Handler) HandleService(w http.ResponseWriter, r *http.Request) {
	code := sanitize.Clave(r.PathValue("clave"))
	if code == "" {
		httpx.WriteBadRequest(w, h.logger, "No es válida la clave")
		return
	}

	service, err := h.store.ServiceByCode(r.Context(), code)
	if err != nil {
		h.logger.Error("failed to query service", "error", err, "clave", code)
		httpx.WriteFailure(w, h.logger, "Error al consultar el trámite o servicio")
		return
	}
	switch {
	case service == nil:
		httpx.WriteFailure(w, h.logger, "No existe ese trámite o servicio")
	case !service.IsActive:
		httpx.WriteFailure(w, h.logger, "No está activo ese trámite o servicio")
	case service.IsDeleted():
		httpx.WriteFailure(w, h.logger, "Ese trámite o servicio está eliminado")
	default:
		httpx.WriteData(w, h.logger, "Detalle de un trámite o servicio", service)
	}
}

func (h *Handler) HandleServices(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)
	services, total, err := h.store.ListServices(r.Context(), page)
	if err != nil {
		h.logger.Error("failed to list services", "error", err)
		httpx.WriteFailure(w, h.logger, "Error al consultar los trámites y servicios")
		return
	}
	httpx.WriteData(w, h.logger, "Paginado de trámites y servicios", listData{
		Total: total, Limit: page.Limit, Offset: page.Offset, Items: services,
	})
}
