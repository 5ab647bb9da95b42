package planning

import (
	"context"
	"time"
)

// Store runs fn inside one transaction. If fn returns an error every write
// made through tx is discarded and that error is returned unchanged.
type Store interface {
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the view of storage available inside a transaction. Missing rows are
// reported as *NotFoundError.
type Tx interface {
	// Trip loads a trip without locking it.
	Trip(ctx context.Context, tripID uint) (TripRef, error)
	// LockTrip loads a trip and holds a write lock on it until the
	// transaction ends, serializing mutations of the same trip.
	LockTrip(ctx context.Context, tripID uint) (TripRef, error)
	// TripStops returns the trip's stops ordered by sequence.
	TripStops(ctx context.Context, tripID uint) ([]Entry, error)
	TripStop(ctx context.Context, tripStopID uint) (Entry, error)
	Stop(ctx context.Context, stopID uint) (StopRef, error)
	Order(ctx context.Context, orderID uint) (OrderRef, error)
	OrderStops(ctx context.Context, orderID uint) ([]StopRef, error)

	CreateTripStop(ctx context.Context, ts NewTripStop) (Entry, error)
	SetSequence(ctx context.Context, tripStopID uint, sequence int) error
	DeleteTripStop(ctx context.Context, tripStopID uint) error
	// UpdateTripStop overwrites the editable fields of a trip stop. The
	// sequence is only ever changed through SetSequence.
	UpdateTripStop(ctx context.Context, tripStopID uint, f TripStopFields) error
	MarkDriverNotified(ctx context.Context, tripID uint) error
}

type NewTripStop struct {
	TripID         uint
	StopID         uint
	Sequence       int
	PlannedArrival time.Time
	Notes          string
}

// TripStopFields are the columns of a trip stop that can be edited in place.
type TripStopFields struct {
	PlannedArrival  time.Time
	Notes           string
	IsCompleted     bool
	ActualArrival   *time.Time
	ActualDeparture *time.Time
}
