package planning

import (
	"context"
	"fmt"
	"time"

	"dispatch_tracker/internal/models"
)

// TempBandBase is the lowest sequence used to park stops during a reorder.
const TempBandBase = 10000

// Service sequences trip stops and enforces the order-pair rules. Every
// method runs in a single Store transaction and re-reads the trip from it.
type Service struct {
	store Store
}

// NewService returns a Service writing through store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Placement describes one stop to attach to a trip.
type Placement struct {
	TripID         uint
	StopID         uint
	Sequence       int
	PlannedArrival time.Time
	Notes          string
}

// Assignment moves one trip stop to a new sequence.
type Assignment struct {
	TripStopID uint
	Sequence   int
}

// OrderPlacement attaches both stops of an order to a trip.
type OrderPlacement struct {
	TripID       uint
	OrderID      uint
	PickupTime   time.Time
	DeliveryTime time.Time
	Notes        string
}

// PairResult is an order and the two trip stops created for it.
type PairResult struct {
	Order    OrderRef
	Pickup   Entry
	Delivery Entry
}

func loadSnapshot(ctx context.Context, tx Tx, tripID uint, lock bool) (Snapshot, error) {
	var (
		trip TripRef
		err  error
	)
	if lock {
		trip, err = tx.LockTrip(ctx, tripID)
	} else {
		trip, err = tx.Trip(ctx, tripID)
	}
	if err != nil {
		return Snapshot{}, err
	}
	entries, err := tx.TripStops(ctx, tripID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load trip stops: %w", err)
	}
	return Snapshot{Trip: trip, Entries: entries}, nil
}

// Snapshot returns the trip with its stops in sequence order.
func (s *Service) Snapshot(ctx context.Context, tripID uint) (Snapshot, error) {
	var snap Snapshot
	err := s.store.Atomic(ctx, func(tx Tx) error {
		var err error
		snap, err = loadSnapshot(ctx, tx, tripID, false)
		return err
	})
	return snap, err
}

// TripStop loads a single trip stop.
func (s *Service) TripStop(ctx context.Context, tripStopID uint) (Entry, error) {
	var e Entry
	err := s.store.Atomic(ctx, func(tx Tx) error {
		var err error
		e, err = tx.TripStop(ctx, tripStopID)
		return err
	})
	return e, err
}

// insertAt creates the trip stop at p.Sequence. If that sequence is taken,
// every stop at or above it moves up by one first, highest first, so the
// (trip, sequence) index never sees two equal values.
func insertAt(ctx context.Context, tx Tx, entries []Entry, p Placement) (Entry, error) {
	occupied := false
	for _, e := range entries {
		if e.Sequence == p.Sequence {
			occupied = true
			break
		}
	}
	if occupied {
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			if e.Sequence < p.Sequence {
				continue
			}
			if err := tx.SetSequence(ctx, e.TripStopID, e.Sequence+1); err != nil {
				return Entry{}, fmt.Errorf("shift trip stop %d: %w", e.TripStopID, err)
			}
		}
	}
	created, err := tx.CreateTripStop(ctx, NewTripStop{
		TripID:         p.TripID,
		StopID:         p.StopID,
		Sequence:       p.Sequence,
		PlannedArrival: p.PlannedArrival,
		Notes:          p.Notes,
	})
	if err != nil {
		return Entry{}, fmt.Errorf("create trip stop: %w", err)
	}
	return created, nil
}

// InsertAt attaches a stop at an exact sequence, shifting occupants up.
// No completeness check is made.
func (s *Service) InsertAt(ctx context.Context, p Placement) (Entry, error) {
	if p.Sequence < 1 {
		return Entry{}, &MalformedInputError{Field: "sequence", Reason: "must be a positive integer"}
	}
	var out Entry
	err := s.store.Atomic(ctx, func(tx Tx) error {
		snap, err := loadSnapshot(ctx, tx, p.TripID, true)
		if err != nil {
			return err
		}
		if _, err := tx.Stop(ctx, p.StopID); err != nil {
			return err
		}
		out, err = insertAt(ctx, tx, snap.Entries, p)
		return err
	})
	return out, err
}

// AddStop attaches a single stop after checking it does not leave its order
// half present. A zero Sequence appends after the current last stop.
func (s *Service) AddStop(ctx context.Context, p Placement) (Entry, error) {
	if p.Sequence < 0 {
		return Entry{}, &MalformedInputError{Field: "sequence", Reason: "must be a positive integer"}
	}
	var out Entry
	err := s.store.Atomic(ctx, func(tx Tx) error {
		snap, err := loadSnapshot(ctx, tx, p.TripID, true)
		if err != nil {
			return err
		}
		if err := validateNewStop(ctx, tx, snap, p.StopID); err != nil {
			return err
		}
		if p.Sequence == 0 {
			p.Sequence = snap.MaxSequence() + 1
		}
		out, err = insertAt(ctx, tx, snap.Entries, p)
		return err
	})
	return out, err
}

// DeleteAndCloseGap removes a trip stop and pulls every later stop of the
// same trip down by one, lowest first. It returns the removed entry.
func (s *Service) DeleteAndCloseGap(ctx context.Context, tripStopID uint) (Entry, error) {
	var removed Entry
	err := s.store.Atomic(ctx, func(tx Tx) error {
		target, err := tx.TripStop(ctx, tripStopID)
		if err != nil {
			return err
		}
		snap, err := loadSnapshot(ctx, tx, target.TripID, true)
		if err != nil {
			return err
		}
		found := false
		for _, e := range snap.Entries {
			if e.TripStopID == tripStopID {
				removed, found = e, true
				break
			}
		}
		if !found {
			return &NotFoundError{Kind: "trip stop", ID: tripStopID}
		}

		if err := tx.DeleteTripStop(ctx, tripStopID); err != nil {
			return fmt.Errorf("delete trip stop %d: %w", tripStopID, err)
		}
		for _, e := range snap.Entries {
			if e.Sequence <= removed.Sequence {
				continue
			}
			if err := tx.SetSequence(ctx, e.TripStopID, e.Sequence-1); err != nil {
				return fmt.Errorf("close gap at trip stop %d: %w", e.TripStopID, err)
			}
		}
		return nil
	})
	return removed, err
}

func checkAssignments(assignments []Assignment) error {
	if len(assignments) == 0 {
		return &MalformedInputError{Field: "sequences", Reason: "no trip stops provided"}
	}
	seenIDs := make(map[uint]bool, len(assignments))
	seenSeq := make(map[int]uint, len(assignments))
	for _, a := range assignments {
		if a.Sequence < 1 {
			return &MalformedInputError{
				Field:  "sequence",
				Reason: fmt.Sprintf("trip stop %d: must be a positive integer", a.TripStopID),
			}
		}
		if seenIDs[a.TripStopID] {
			return invalidf("Trip stop %d is listed more than once", a.TripStopID)
		}
		seenIDs[a.TripStopID] = true
		if other, dup := seenSeq[a.Sequence]; dup {
			return invalidf("Sequence %d is assigned to both trip stop %d and trip stop %d",
				a.Sequence, other, a.TripStopID)
		}
		seenSeq[a.Sequence] = a.TripStopID
	}
	return nil
}

// Reorder moves the named trip stops to new sequences in two passes: first
// into a parking band above every live and requested sequence, then to their
// targets. The result must keep each order's pickup before its delivery or
// nothing is written. It returns the trip's stops after the move.
func (s *Service) Reorder(ctx context.Context, tripID uint, assignments []Assignment) ([]Entry, error) {
	if err := checkAssignments(assignments); err != nil {
		return nil, err
	}
	var out []Entry
	err := s.store.Atomic(ctx, func(tx Tx) error {
		snap, err := loadSnapshot(ctx, tx, tripID, true)
		if err != nil {
			return err
		}
		out, err = moveStops(ctx, tx, snap, assignments)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// moveStops applies checked assignments to a locked snapshot and returns the
// reloaded stops.
func moveStops(ctx context.Context, tx Tx, snap Snapshot, assignments []Assignment) ([]Entry, error) {
	owned := make(map[uint]bool, len(snap.Entries))
	for _, e := range snap.Entries {
		owned[e.TripStopID] = true
	}
	moving := make(map[uint]bool, len(assignments))
	highest := snap.MaxSequence()
	for _, a := range assignments {
		if !owned[a.TripStopID] {
			return nil, invalidf("Some trip stops do not belong to this trip")
		}
		moving[a.TripStopID] = true
		if a.Sequence > highest {
			highest = a.Sequence
		}
	}
	// A target held by a stop that is not being moved would collide.
	for _, e := range snap.Entries {
		if moving[e.TripStopID] {
			continue
		}
		for _, a := range assignments {
			if a.Sequence == e.Sequence {
				return nil, invalidf("Sequence %d is already used by trip stop %d, which is not being reordered",
					a.Sequence, e.TripStopID)
			}
		}
	}

	band := TempBandBase
	if highest >= band {
		band = highest + 1
	}
	for i, a := range assignments {
		if err := tx.SetSequence(ctx, a.TripStopID, band+i); err != nil {
			return nil, fmt.Errorf("park trip stop %d: %w", a.TripStopID, err)
		}
	}
	for _, a := range assignments {
		if err := tx.SetSequence(ctx, a.TripStopID, a.Sequence); err != nil {
			return nil, fmt.Errorf("move trip stop %d: %w", a.TripStopID, err)
		}
	}

	entries, err := tx.TripStops(ctx, snap.Trip.ID)
	if err != nil {
		return nil, fmt.Errorf("reload trip stops: %w", err)
	}
	if err := CheckPickupBeforeDelivery(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// TripStopChange edits one trip stop. Nil fields are left as they are.
type TripStopChange struct {
	TripStopID      uint
	Sequence        *int
	PlannedArrival  *time.Time
	Notes           *string
	IsCompleted     *bool
	ActualArrival   *time.Time
	ActualDeparture *time.Time
	// At stamps the actual times a completion leaves unset.
	At time.Time
}

// UpdateTripStop applies a change to one trip stop. A new sequence follows
// the same collision and pickup-before-delivery rules as Reorder, and a
// rejected change writes nothing.
func (s *Service) UpdateTripStop(ctx context.Context, ch TripStopChange) (Entry, error) {
	if ch.Sequence != nil && *ch.Sequence < 1 {
		return Entry{}, &MalformedInputError{Field: "sequence", Reason: "must be a positive integer"}
	}
	var out Entry
	err := s.store.Atomic(ctx, func(tx Tx) error {
		current, err := tx.TripStop(ctx, ch.TripStopID)
		if err != nil {
			return err
		}
		snap, err := loadSnapshot(ctx, tx, current.TripID, true)
		if err != nil {
			return err
		}
		if ch.Sequence != nil && *ch.Sequence != current.Sequence {
			move := []Assignment{{TripStopID: current.TripStopID, Sequence: *ch.Sequence}}
			if _, err := moveStops(ctx, tx, snap, move); err != nil {
				return err
			}
		}

		f := applyChange(current, ch)
		if err := tx.UpdateTripStop(ctx, current.TripStopID, f); err != nil {
			return fmt.Errorf("update trip stop %d: %w", current.TripStopID, err)
		}
		out, err = tx.TripStop(ctx, current.TripStopID)
		return err
	})
	return out, err
}

// applyChange merges ch into the stored fields of e. Completing a stop fills
// in missing actual times from ch.At; reopening it clears the departure.
func applyChange(e Entry, ch TripStopChange) TripStopFields {
	f := TripStopFields{
		PlannedArrival:  e.PlannedArrival,
		Notes:           e.Notes,
		IsCompleted:     e.IsCompleted,
		ActualArrival:   e.ActualArrival,
		ActualDeparture: e.ActualDeparture,
	}
	if ch.PlannedArrival != nil {
		f.PlannedArrival = *ch.PlannedArrival
	}
	if ch.Notes != nil {
		f.Notes = *ch.Notes
	}
	if ch.ActualArrival != nil {
		f.ActualArrival = ch.ActualArrival
	}
	if ch.ActualDeparture != nil {
		f.ActualDeparture = ch.ActualDeparture
	}
	if ch.IsCompleted == nil || *ch.IsCompleted == e.IsCompleted {
		return f
	}
	f.IsCompleted = *ch.IsCompleted
	if !f.IsCompleted {
		if ch.ActualDeparture == nil {
			f.ActualDeparture = nil
		}
		return f
	}
	at := ch.At
	if f.ActualArrival == nil {
		f.ActualArrival = &at
	}
	if f.ActualDeparture == nil {
		f.ActualDeparture = &at
	}
	return f
}

// AddOrderToTrip appends an order's pickup and delivery stops to the end of
// the trip as one pair. The per-stop completeness check is skipped since the
// pair is complete by construction.
func (s *Service) AddOrderToTrip(ctx context.Context, p OrderPlacement) (PairResult, error) {
	var out PairResult
	err := s.store.Atomic(ctx, func(tx Tx) error {
		snap, err := loadSnapshot(ctx, tx, p.TripID, true)
		if err != nil {
			return err
		}
		order, err := tx.Order(ctx, p.OrderID)
		if err != nil {
			return err
		}
		stops, err := tx.OrderStops(ctx, p.OrderID)
		if err != nil {
			return fmt.Errorf("load stops of order %s: %w", order.Number, err)
		}
		pickup, ok := firstOfType(stops, models.StopPickup)
		if !ok {
			return invalidf("Order %s does not have a pickup stop.", order.Number)
		}
		delivery, ok := firstOfType(stops, models.StopDelivery)
		if !ok {
			return invalidf("Order %s does not have a delivery stop.", order.Number)
		}

		base := snap.MaxSequence()
		pickupNotes, deliveryNotes := p.Notes, p.Notes
		if p.Notes == "" {
			pickupNotes = "Pickup for " + order.Number
			deliveryNotes = "Delivery for " + order.Number
		}

		out.Order = order
		out.Pickup, err = tx.CreateTripStop(ctx, NewTripStop{
			TripID:         p.TripID,
			StopID:         pickup.ID,
			Sequence:       base + 1,
			PlannedArrival: p.PickupTime,
			Notes:          pickupNotes,
		})
		if err != nil {
			return fmt.Errorf("create pickup trip stop: %w", err)
		}
		out.Delivery, err = tx.CreateTripStop(ctx, NewTripStop{
			TripID:         p.TripID,
			StopID:         delivery.ID,
			Sequence:       base + 2,
			PlannedArrival: p.DeliveryTime,
			Notes:          deliveryNotes,
		})
		if err != nil {
			return fmt.Errorf("create delivery trip stop: %w", err)
		}
		return nil
	})
	return out, err
}

func firstOfType(stops []StopRef, t models.StopType) (StopRef, bool) {
	for _, st := range stops {
		if st.Type == t {
			return st, true
		}
	}
	return StopRef{}, false
}

func validateNewStop(ctx context.Context, tx Tx, snap Snapshot, stopID uint) error {
	stop, err := tx.Stop(ctx, stopID)
	if err != nil {
		return err
	}
	var siblings []StopRef
	if stop.OrderID != nil {
		siblings, err = tx.OrderStops(ctx, *stop.OrderID)
		if err != nil {
			return fmt.Errorf("load stops of order %s: %w", stop.OrderNumber, err)
		}
	}
	return CheckNewStop(snap, stop, siblings)
}

// IncompleteOrders reports the orders of the trip missing a pickup or delivery.
func (s *Service) IncompleteOrders(ctx context.Context, tripID uint) ([]OrderRef, error) {
	snap, err := s.Snapshot(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return IncompleteOrders(snap.Entries), nil
}

// ValidateCompleteness fails if any order on the trip is missing a stop.
func (s *Service) ValidateCompleteness(ctx context.Context, tripID uint) error {
	snap, err := s.Snapshot(ctx, tripID)
	if err != nil {
		return err
	}
	return CheckCompleteness(snap)
}

// ValidateNewStop checks, without writing, whether stopID could be added alone.
func (s *Service) ValidateNewStop(ctx context.Context, tripID, stopID uint) error {
	return s.store.Atomic(ctx, func(tx Tx) error {
		snap, err := loadSnapshot(ctx, tx, tripID, false)
		if err != nil {
			return err
		}
		return validateNewStop(ctx, tx, snap, stopID)
	})
}

// ValidatePickupBeforeDelivery fails if a delivery precedes its pickup.
func (s *Service) ValidatePickupBeforeDelivery(ctx context.Context, tripID uint) error {
	snap, err := s.Snapshot(ctx, tripID)
	if err != nil {
		return err
	}
	return CheckPickupBeforeDelivery(snap.Entries)
}

// NotifyDriver hands the trip's itinerary to send and marks the driver as
// notified. A trip is only ever notified once; if send fails the flag stays unset.
// send runs before the commit, so delivery is at least once: a commit failure
// leaves the flag unset and a retry sends again. Receivers dedupe on
// NotifyKey.
func (s *Service) NotifyDriver(ctx context.Context, tripID uint, send func(Snapshot) error) error {
	return s.store.Atomic(ctx, func(tx Tx) error {
		snap, err := loadSnapshot(ctx, tx, tripID, true)
		if err != nil {
			return err
		}
		if snap.Trip.DriverNotified {
			return invalidf("Driver already notified for trip '%s'", snap.Trip.Name)
		}
		if err := send(snap); err != nil {
			return fmt.Errorf("notify driver of trip %d: %w", tripID, err)
		}
		return tx.MarkDriverNotified(ctx, tripID)
	})
}

// NotifyKey identifies the driver notice of a trip. Every attempt for the
// same trip carries the same key.
func NotifyKey(tripID uint) string {
	return fmt.Sprintf("trip-%d-notify", tripID)
}
