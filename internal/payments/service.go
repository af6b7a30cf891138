package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tramites-digitales/pagos-api/internal/banking"
	"github.com/tramites-digitales/pagos-api/internal/clients"
	"github.com/tramites-digitales/pagos-api/internal/domain"
	"github.com/tramites-digitales/pagos-api/internal/sanitize"
)

// Failure is a domain-level failure: the request was understood but must
// be answered as success=false with its message, never as an HTTP error.
type Failure struct {
	Message string
	err     error
}

func (f *Failure) Error() string { return f.Message }
func (f *Failure) Unwrap() error { return f.err }

func failf(err error, format string, args ...any) *Failure {
	return &Failure{Message: fmt.Sprintf(format, args...), err: err}
}

// Orders are payable for 30 days after creation.
const orderLifetime = 30 * 24 * time.Hour

// CatalogStore resolves the entities a cart references.
type CatalogStore interface {
	ServiceByCode(ctx context.Context, code string) (*domain.Service, error)
	AuthorityByCode(ctx context.Context, code string) (*domain.Authority, error)
	DistrictByCode(ctx context.Context, code string) (*domain.District, error)
}

// CitizenResolver resolves or creates the citizen behind a cart.
type CitizenResolver interface {
	ResolveOrCreate(ctx context.Context, fields clients.NewCitizen) (*domain.Citizen, error)
}

// OrderStore is the ledger the orchestrator writes through.
type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	ApplySettlement(ctx context.Context, orderID string, state domain.OrderState, folio string, settledAt time.Time, payloadXML string) error
	GetDetail(ctx context.Context, orderID string) (*Detail, error)
}

// Publisher emits settlement events for the receipts pipeline.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Service composes sanitization, catalog resolution, the citizen
// registry, the order ledger and the bank gateway into the two
// state-changing operations of the API.
type Service struct {
	catalog  CatalogStore
	citizens CitizenResolver
	orders   OrderStore
	gateway  banking.Gateway
	events   Publisher
	logger   *slog.Logger
}

// NewService wires the orchestrator. events may be nil when no broker is
// configured; settlements then simply skip the receipt event.
func NewService(catalog CatalogStore, citizens CitizenResolver, orders OrderStore, gateway banking.Gateway, events Publisher, logger *slog.Logger) *Service {
	return &Service{
		catalog:  catalog,
		citizens: citizens,
		orders:   orders,
		gateway:  gateway,
		events:   events,
		logger:   logger,
	}
}

// CartRequest is the wire body of POST /pag_pagos/carro.
type CartRequest struct {
	FirstLastName  string `json:"apellido_primero"`
	SecondLastName string `json:"apellido_segundo"`
	FirstNames     string `json:"nombres"`
	CURP           string `json:"curp"`
	Email          string `json:"email"`
	Phone          string `json:"telefono"`
	AuthorityCode  string `json:"autoridad_clave"`
	DistrictCode   string `json:"distrito_clave"`
	ServiceCode    string `json:"pag_tramite_servicio_clave"`
	Quantity       any    `json:"cantidad"`
	Description    string `json:"descripcion"`
}

// Cart is the data answered by a successful cart open.
type Cart struct {
	ID                 string          `json:"id"`
	AuthorityCode      string          `json:"autoridad_clave"`
	AuthorityDesc      string          `json:"autoridad_descripcion"`
	AuthorityShortDesc string          `json:"autoridad_descripcion_corta"`
	DistrictCode       string          `json:"distrito_clave"`
	DistrictName       string          `json:"distrito_nombre"`
	DistrictShortName  string          `json:"distrito_nombre_corto"`
	Email              string          `json:"email"`
	Quantity           int             `json:"cantidad"`
	Description        string          `json:"descripcion"`
	Total              decimal.Decimal `json:"total"`
	URL                string          `json:"url"`
}

// resolvedDistrict carries the district fields a cart answer needs,
// whether they came from an explicit lookup or from the authority row.
type resolvedDistrict struct {
	id        string
	code      string
	name      string
	shortName string
}

// OpenCart validates every field in a fixed order, resolves the
// referenced catalog entities and the citizen, opens the order in
// SOLICITADO and asks the bank for a pay link. The order and citizen
// deliberately survive a gateway failure: the order stays SOLICITADO
// and the citizen keeps their record, so the operation is retryable
// without losing anything.
func (s *Service) OpenCart(ctx context.Context, req CartRequest) (*Cart, error) {
	firstNames := sanitize.Text(req.FirstNames, sanitize.TextKeepEnie())
	if firstNames == "" {
		return nil, &Failure{Message: "El nombre no es válido"}
	}

	firstLastName := sanitize.Text(req.FirstLastName, sanitize.TextKeepEnie())
	if firstLastName == "" {
		return nil, &Failure{Message: "El primer apellido no es válido"}
	}

	// The second last name is optional.
	secondLastName := sanitize.Text(req.SecondLastName, sanitize.TextKeepEnie())

	curp, err := sanitize.CURP(req.CURP)
	if err != nil {
		return nil, &Failure{Message: "La CURP no es válida"}
	}

	email, err := sanitize.Email(req.Email)
	if err != nil {
		return nil, &Failure{Message: "El correo electrónico no es válido"}
	}

	phone := sanitize.Phone(req.Phone)

	serviceCode := sanitize.Clave(req.ServiceCode)
	if serviceCode == "" {
		return nil, &Failure{Message: "La clave del trámite o servicio no es válida"}
	}
	service, err := s.catalog.ServiceByCode(ctx, serviceCode)
	if err != nil {
		return nil, failf(err, "Error al consultar el trámite o servicio")
	}
	switch {
	case service == nil:
		return nil, &Failure{Message: "No existe ese trámite o servicio"}
	case !service.IsActive:
		return nil, &Failure{Message: "No está activo ese trámite o servicio"}
	case service.IsDeleted():
		return nil, &Failure{Message: "Ese trámite o servicio está eliminado"}
	}

	authority, fail := s.resolveAuthority(ctx, req.AuthorityCode)
	if fail != nil {
		return nil, fail
	}

	district, fail := s.resolveDistrict(ctx, req.DistrictCode, authority)
	if fail != nil {
		return nil, fail
	}

	quantity := sanitize.Integer(req.Quantity, 1, 100)

	description := sanitize.Text(req.Description, sanitize.TextKeepEnie())
	if description == "" {
		description = service.Description
	} else {
		description = service.Description + " - " + description
	}

	// Total is fixed here, once, and never recomputed.
	total := service.Cost.Mul(decimal.NewFromInt(int64(quantity)))
	if total.Sign() <= 0 {
		return nil, &Failure{Message: "El total no es válido"}
	}

	citizen, err := s.citizens.ResolveOrCreate(ctx, clients.NewCitizen{
		FirstNames:     firstNames,
		FirstLastName:  firstLastName,
		SecondLastName: secondLastName,
		CURP:           curp,
		Email:          email,
		Phone:          phone,
	})
	if err != nil {
		return nil, failf(err, "No se pudo crear el cliente")
	}

	order := &domain.Order{
		AuthorityID: authority.ID,
		DistrictID:  district.id,
		CitizenID:   citizen.ID,
		ServiceID:   service.ID,
		ExpiresAt:   time.Now().Add(orderLifetime),
		Quantity:    quantity,
		Description: description,
		Email:       email,
		Total:       total,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, failf(err, "No se pudo crear el pago")
	}

	url, err := s.gateway.CreatePayLink(ctx, banking.PayLinkRequest{
		OrderID:       order.ID,
		CitizenID:     citizen.ID,
		Email:         email,
		ServiceDetail: service.Description,
		Amount:        total,
	})
	if err != nil {
		// No rollback: the SOLICITADO order stays for a later retry.
		s.logger.Error("pay link request failed", "error", err, "order_id", order.ID)
		return nil, failf(err, "No se pudo crear el enlace de pago: %v", err)
	}

	s.logger.Info("cart opened", "order_id", order.ID, "service", service.Code, "total", total.StringFixed(2))

	return &Cart{
		ID:                 order.ID,
		AuthorityCode:      authority.Code,
		AuthorityDesc:      authority.Description,
		AuthorityShortDesc: authority.ShortDescription,
		DistrictCode:       district.code,
		DistrictName:       district.name,
		DistrictShortName:  district.shortName,
		Email:              email,
		Quantity:           quantity,
		Description:        description,
		Total:              total,
		URL:                url,
	}, nil
}

func (s *Service) resolveAuthority(ctx context.Context, rawCode string) (*domain.Authority, *Failure) {
	if strings.TrimSpace(rawCode) == "" {
		// No authority named: fall back to the ND placeholder.
		authority, err := s.catalog.AuthorityByCode(ctx, domain.FallbackAuthorityCode)
		if err != nil {
			return nil, failf(err, "Error al consultar la autoridad")
		}
		if authority == nil {
			return nil, &Failure{Message: "No existe esa autoridad"}
		}
		return authority, nil
	}

	code := sanitize.Clave(rawCode)
	if code == "" {
		return nil, &Failure{Message: "La clave de la autoridad no es válida"}
	}
	authority, err := s.catalog.AuthorityByCode(ctx, code)
	if err != nil {
		return nil, failf(err, "Error al consultar la autoridad")
	}
	switch {
	case authority == nil:
		return nil, &Failure{Message: "No existe esa autoridad"}
	case !authority.IsActive:
		return nil, &Failure{Message: "No está activa esa autoridad"}
	case authority.IsDeleted():
		return nil, &Failure{Message: "Esta autoridad está eliminada"}
	}
	return authority, nil
}

func (s *Service) resolveDistrict(ctx context.Context, rawCode string, authority *domain.Authority) (resolvedDistrict, *Failure) {
	if strings.TrimSpace(rawCode) == "" {
		// No district named: inherit the authority's.
		return resolvedDistrict{
			id:        authority.DistrictID,
			code:      authority.DistrictCode,
			name:      authority.DistrictName,
			shortName: authority.DistrictShortName,
		}, nil
	}

	code := sanitize.Clave(rawCode)
	if code == "" {
		return resolvedDistrict{}, &Failure{Message: "La clave del distrito no es válida"}
	}
	district, err := s.catalog.DistrictByCode(ctx, code)
	if err != nil {
		return resolvedDistrict{}, failf(err, "Error al consultar el distrito")
	}
	switch {
	case district == nil:
		return resolvedDistrict{}, &Failure{Message: "No existe ese distrito"}
	case !district.IsActive:
		return resolvedDistrict{}, &Failure{Message: "No está activo ese distrito"}
	case district.IsDeleted():
		return resolvedDistrict{}, &Failure{Message: "Este distrito está eliminado"}
	}
	return resolvedDistrict{
		id:        district.ID,
		code:      district.Code,
		name:      district.Name,
		shortName: district.ShortName,
	}, nil
}

// ApplyResult ingests the bank's encrypted settlement callback: decrypt,
// locate the order, run the guarded SOLICITADO→{PAGADO,FALLIDO}
// transition and answer the settlement summary. A retried callback for
// an already-settled order is rejected, never applied twice.
func (s *Service) ApplyResult(ctx context.Context, encrypted string) (*Detail, error) {
	if strings.TrimSpace(encrypted) == "" {
		return nil, &Failure{Message: "El XML está vacío"}
	}

	result, err := s.gateway.DecryptResult(ctx, encrypted)
	if err != nil {
		return nil, failf(err, "No se pudo procesar el XML: %v", err)
	}

	orderID, err := sanitize.UUID(result.OrderID)
	if err != nil {
		return nil, failf(err, "No se pudo procesar el XML: el pago_id no es válido")
	}

	state := domain.OrderStateFailed
	if result.Approved() {
		state = domain.OrderStatePaid
	}

	settledAt := time.Now()
	err = s.orders.ApplySettlement(ctx, orderID.String(), state, result.Folio, settledAt, result.XML)
	switch {
	case err == nil:
	case errors.Is(err, ErrOrderNotFound):
		return nil, &Failure{Message: "No existe ese pago"}
	case errors.Is(err, ErrOrderDeleted):
		return nil, &Failure{Message: "No es activo ese pago, está eliminado"}
	case errors.Is(err, ErrAlreadyProcessed):
		return nil, &Failure{Message: "No es un pago solicitado al banco, ya fue procesado"}
	default:
		return nil, failf(err, "No se pudo actualizar el pago")
	}

	detail, err := s.orders.GetDetail(ctx, orderID.String())
	if err != nil || detail == nil {
		return nil, failf(err, "No se pudo consultar el pago actualizado")
	}

	s.logger.Info("bank result applied", "order_id", detail.ID, "estado", detail.State, "folio", detail.Folio)

	if state == domain.OrderStatePaid && s.events != nil {
		event := domain.OrderSettledEvent{
			OrderID:            detail.ID,
			Folio:              detail.Folio,
			State:              state,
			Total:              detail.Total,
			Email:              detail.Email,
			CitizenName:        detail.CitizenFullName(),
			ServiceDescription: detail.ServiceDescription,
			SettledAt:          settledAt,
		}
		if err := s.events.Publish(ctx, detail.ID, event); err != nil {
			// Best effort: the settlement is committed either way.
			s.logger.Error("failed to publish settlement event", "error", err, "order_id", detail.ID)
		}
	}

	return detail, nil
}

// GetOrder answers the public projection of one order.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*Detail, error) {
	detail, err := s.orders.GetDetail(ctx, orderID)
	if err != nil {
		return nil, failf(err, "Error al consultar el pago")
	}
	if detail == nil {
		return nil, &Failure{Message: "No existe ese pago"}
	}
	if detail.Status != domain.StatusActive {
		return nil, &Failure{Message: "No es activo ese pago, está eliminado"}
	}
	return detail, nil
}
