package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dispatch_tracker/internal/models"
	"dispatch_tracker/internal/planning"
)

type memTripStop struct {
	id        uint
	tripID    uint
	stopID    uint
	sequence  int
	arrival   time.Time
	notes     string
	completed bool
	arrived   *time.Time
	departed  *time.Time
}

type memState struct {
	trips     map[uint]planning.TripRef
	stops     map[uint]planning.StopRef
	orders    map[uint]planning.OrderRef
	tripStops map[uint]memTripStop
}

func (s memState) clone() memState {
	c := memState{
		trips:     make(map[uint]planning.TripRef, len(s.trips)),
		stops:     make(map[uint]planning.StopRef, len(s.stops)),
		orders:    make(map[uint]planning.OrderRef, len(s.orders)),
		tripStops: make(map[uint]memTripStop, len(s.tripStops)),
	}
	for k, v := range s.trips {
		c.trips[k] = v
	}
	for k, v := range s.stops {
		c.stops[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.tripStops {
		c.tripStops[k] = v
	}
	return c
}

// Memory is an in-process planning.Store. One mutex serializes all
// transactions and a failed transaction restores the state it started from.
// It enforces the same (trip, sequence) uniqueness as the SQL schema.
type Memory struct {
	mu     sync.Mutex
	nextID uint
	state  memState

	// beforeCreate, when set, runs before every trip stop insert.
	beforeCreate func(planning.NewTripStop) error
}

func NewMemory() *Memory {
	return &Memory{state: memState{
		trips:     make(map[uint]planning.TripRef),
		stops:     make(map[uint]planning.StopRef),
		orders:    make(map[uint]planning.OrderRef),
		tripStops: make(map[uint]memTripStop),
	}}
}

func (m *Memory) id() uint {
	m.nextID++
	return m.nextID
}

// AddTrip stores trip under a fresh ID and returns it.
func (m *Memory) AddTrip(trip planning.TripRef) uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	trip.ID = m.id()
	m.state.trips[trip.ID] = trip
	return trip.ID
}

func (m *Memory) AddOrder(number string) uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id()
	m.state.orders[id] = planning.OrderRef{ID: id, Number: number}
	return id
}

// AddStop stores a stop, optionally owned by orderID.
func (m *Memory) AddStop(name string, t models.StopType, orderID *uint) uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id()
	m.state.stops[id] = planning.StopRef{ID: id, Name: name, Type: t, OrderID: orderID}
	return id
}

// SetBeforeCreate installs a hook that can fail trip stop inserts.
func (m *Memory) SetBeforeCreate(fn func(planning.NewTripStop) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beforeCreate = fn
}

func (m *Memory) Atomic(ctx context.Context, fn func(tx planning.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	saved, savedID := m.state.clone(), m.nextID
	if err := fn(&memTx{m: m}); err != nil {
		m.state, m.nextID = saved, savedID
		return err
	}
	return nil
}

type memTx struct {
	m *Memory
}

func (t *memTx) Trip(ctx context.Context, tripID uint) (planning.TripRef, error) {
	trip, ok := t.m.state.trips[tripID]
	if !ok {
		return planning.TripRef{}, &planning.NotFoundError{Kind: "trip", ID: tripID}
	}
	return trip, nil
}

func (t *memTx) LockTrip(ctx context.Context, tripID uint) (planning.TripRef, error) {
	return t.Trip(ctx, tripID)
}

func (t *memTx) stopRef(stopID uint) (planning.StopRef, bool) {
	st, ok := t.m.state.stops[stopID]
	if !ok {
		return planning.StopRef{}, false
	}
	if st.OrderID != nil {
		st.OrderNumber = t.m.state.orders[*st.OrderID].Number
	}
	return st, true
}

func (t *memTx) entry(ts memTripStop) planning.Entry {
	st, _ := t.stopRef(ts.stopID)
	return planning.Entry{
		TripStopID:     ts.id,
		TripID:         ts.tripID,
		Sequence:       ts.sequence,
		PlannedArrival: ts.arrival,
		Notes:          ts.notes,
		IsCompleted:    ts.completed,
		Stop:           st,

		ActualArrival:   ts.arrived,
		ActualDeparture: ts.departed,
	}
}

func (t *memTx) TripStops(ctx context.Context, tripID uint) ([]planning.Entry, error) {
	var out []planning.Entry
	for _, ts := range t.m.state.tripStops {
		if ts.tripID == tripID {
			out = append(out, t.entry(ts))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (t *memTx) TripStop(ctx context.Context, tripStopID uint) (planning.Entry, error) {
	ts, ok := t.m.state.tripStops[tripStopID]
	if !ok {
		return planning.Entry{}, &planning.NotFoundError{Kind: "trip stop", ID: tripStopID}
	}
	return t.entry(ts), nil
}

func (t *memTx) Stop(ctx context.Context, stopID uint) (planning.StopRef, error) {
	st, ok := t.stopRef(stopID)
	if !ok {
		return planning.StopRef{}, &planning.NotFoundError{Kind: "stop", ID: stopID}
	}
	return st, nil
}

func (t *memTx) Order(ctx context.Context, orderID uint) (planning.OrderRef, error) {
	o, ok := t.m.state.orders[orderID]
	if !ok {
		return planning.OrderRef{}, &planning.NotFoundError{Kind: "order", ID: orderID}
	}
	return o, nil
}

func (t *memTx) OrderStops(ctx context.Context, orderID uint) ([]planning.StopRef, error) {
	var out []planning.StopRef
	for id, st := range t.m.state.stops {
		if st.OrderID != nil && *st.OrderID == orderID {
			ref, _ := t.stopRef(id)
			out = append(out, ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) taken(tripID uint, sequence int, except uint) bool {
	for _, ts := range t.m.state.tripStops {
		if ts.tripID == tripID && ts.sequence == sequence && ts.id != except {
			return true
		}
	}
	return false
}

func (t *memTx) CreateTripStop(ctx context.Context, n planning.NewTripStop) (planning.Entry, error) {
	if t.m.beforeCreate != nil {
		if err := t.m.beforeCreate(n); err != nil {
			return planning.Entry{}, err
		}
	}
	if _, ok := t.m.state.trips[n.TripID]; !ok {
		return planning.Entry{}, &planning.NotFoundError{Kind: "trip", ID: n.TripID}
	}
	if _, ok := t.m.state.stops[n.StopID]; !ok {
		return planning.Entry{}, &planning.NotFoundError{Kind: "stop", ID: n.StopID}
	}
	if t.taken(n.TripID, n.Sequence, 0) {
		return planning.Entry{}, fmt.Errorf("trip %d sequence %d: %w", n.TripID, n.Sequence, ErrSequenceTaken)
	}
	ts := memTripStop{
		id:       t.m.id(),
		tripID:   n.TripID,
		stopID:   n.StopID,
		sequence: n.Sequence,
		arrival:  n.PlannedArrival,
		notes:    n.Notes,
	}
	t.m.state.tripStops[ts.id] = ts
	return t.entry(ts), nil
}

func (t *memTx) SetSequence(ctx context.Context, tripStopID uint, sequence int) error {
	ts, ok := t.m.state.tripStops[tripStopID]
	if !ok {
		return &planning.NotFoundError{Kind: "trip stop", ID: tripStopID}
	}
	if t.taken(ts.tripID, sequence, ts.id) {
		return fmt.Errorf("trip %d sequence %d: %w", ts.tripID, sequence, ErrSequenceTaken)
	}
	ts.sequence = sequence
	t.m.state.tripStops[tripStopID] = ts
	return nil
}

func (t *memTx) DeleteTripStop(ctx context.Context, tripStopID uint) error {
	if _, ok := t.m.state.tripStops[tripStopID]; !ok {
		return &planning.NotFoundError{Kind: "trip stop", ID: tripStopID}
	}
	delete(t.m.state.tripStops, tripStopID)
	return nil
}

func (t *memTx) UpdateTripStop(ctx context.Context, tripStopID uint, f planning.TripStopFields) error {
	ts, ok := t.m.state.tripStops[tripStopID]
	if !ok {
		return &planning.NotFoundError{Kind: "trip stop", ID: tripStopID}
	}
	ts.arrival = f.PlannedArrival
	ts.notes = f.Notes
	ts.completed = f.IsCompleted
	ts.arrived = f.ActualArrival
	ts.departed = f.ActualDeparture
	t.m.state.tripStops[tripStopID] = ts
	return nil
}

func (t *memTx) MarkDriverNotified(ctx context.Context, tripID uint) error {
	trip, ok := t.m.state.trips[tripID]
	if !ok {
		return &planning.NotFoundError{Kind: "trip", ID: tripID}
	}
	trip.DriverNotified = true
	t.m.state.trips[tripID] = trip
	return nil
}
