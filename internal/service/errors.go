package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/payment"
	"github.com/iliyamo/hotel-reservation/internal/repository"
)

// Engine error taxonomy.  Handlers map each of these to a stable reason
// code; wrap them with fmt.Errorf("...: %w") to add detail.
var (
	ErrInvalidInterval      = model.ErrInvalidInterval
	ErrInvalidRequest       = errors.New("invalid request")
	ErrResourceNotFound     = errors.New("resource not found")
	ErrNoUnits              = errors.New("no rooms of this type")
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrConcurrentConflict   = errors.New("concurrent allocation conflict")
	ErrCrossHolderPayment   = errors.New("reservations belong to different holders")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrNotTerminal          = repository.ErrNotTerminal
	ErrForbidden            = repository.ErrForbidden
	ErrInvalidReference     = payment.ErrInvalidReference
	ErrGatewayUnreachable   = payment.ErrGatewayUnreachable
	ErrGatewayRejected      = payment.ErrGatewayRejected
)

// CapacityError reports how many units were free when a request for more
// was refused.  It matches ErrInsufficientCapacity.
type CapacityError struct {
	Available int
	Requested int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity: available %d, requested %d", e.Available, e.Requested)
}

func (e *CapacityError) Is(target error) bool { return target == ErrInsufficientCapacity }

func insufficient(available, requested int) error {
	if available < 0 {
		available = 0
	}
	return &CapacityError{Available: available, Requested: requested}
}

// notFound translates repository.ErrNotFound into ErrResourceNotFound and
// passes every other error through.
func notFound(err error, what string, id uint64) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s %d", ErrResourceNotFound, what, id)
	}
	return err
}
