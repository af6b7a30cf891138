package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tramites-digitales/pagos-api/internal/domain"
)

// ErrCreate is the domain error answered when a citizen can be neither
// resolved nor created; the whole cart-open operation must abort on it.
var ErrCreate = errors.New("client could not be created")

// Defaults for citizens created through the payments flow.
const (
	renewalPeriod            = 60 * 24 * time.Hour
	defaultPendingVisitLimit = 3
)

// Store is what the registry needs from the citizens repository.
type Store interface {
	ByCURP(ctx context.Context, curp string) (*domain.Citizen, error)
	ByEmail(ctx context.Context, email string) (*domain.Citizen, error)
	Create(ctx context.Context, citizen *domain.Citizen) error
}

// NewCitizen carries the already-sanitized identity fields for
// resolution or creation.
type NewCitizen struct {
	FirstNames     string
	FirstLastName  string
	SecondLastName string
	CURP           string
	Email          string
	Phone          string
}

// Registry resolves citizens across the two unique keys, creating one
// when neither matches.
type Registry struct {
	store  Store
	logger *slog.Logger
}

func NewRegistry(store Store, logger *slog.Logger) *Registry {
	return &Registry{store: store, logger: logger}
}

// ResolveOrCreate looks the citizen up by CURP, then by email, and
// creates the record when both miss. At most one citizen is created per
// call. When the insert loses a race against a concurrent request the
// lookups run once more before giving up with ErrCreate.
func (r *Registry) ResolveOrCreate(ctx context.Context, fields NewCitizen) (*domain.Citizen, error) {
	citizen, err := r.resolve(ctx, fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreate, err)
	}
	if citizen != nil {
		return citizen, nil
	}

	citizen = &domain.Citizen{
		FirstNames:         fields.FirstNames,
		FirstLastName:      fields.FirstLastName,
		SecondLastName:     fields.SecondLastName,
		CURP:               fields.CURP,
		Phone:              fields.Phone,
		Email:              fields.Email,
		RenewalDate:        time.Now().Add(renewalPeriod),
		PendingVisitsLimit: defaultPendingVisitLimit,
		AcceptsMessages:    true,
	}

	err = r.store.Create(ctx, citizen)
	if err == nil {
		r.logger.Info("citizen created", "citizen_id", citizen.ID, "curp", citizen.CURP)
		return citizen, nil
	}
	if !errors.Is(err, ErrDuplicate) {
		return nil, fmt.Errorf("%w: %v", ErrCreate, err)
	}

	// Lost the race: another request inserted the same citizen between
	// our lookups and the insert. Resolve again by the unique keys.
	citizen, err = r.resolve(ctx, fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreate, err)
	}
	if citizen == nil {
		return nil, ErrCreate
	}
	return citizen, nil
}

func (r *Registry) resolve(ctx context.Context, fields NewCitizen) (*domain.Citizen, error) {
	citizen, err := r.store.ByCURP(ctx, fields.CURP)
	if err != nil {
		return nil, err
	}
	if citizen != nil {
		return citizen, nil
	}
	return r.store.ByEmail(ctx, fields.Email)
}
