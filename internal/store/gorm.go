package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dispatch_tracker/internal/models"
	"dispatch_tracker/internal/planning"
)

// Gorm is the SQL-backed planning.Store.
type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (g *Gorm) Atomic(ctx context.Context, fn func(tx planning.Tx) error) error {
	tx := g.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(&gormTx{db: tx}); err != nil {
		if rbErr := tx.Rollback().Error; rbErr != nil {
			logrus.WithError(rbErr).Warn("store: rollback failed")
		}
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type gormTx struct {
	db *gorm.DB
}

func notFound(err error, kind string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &planning.NotFoundError{Kind: kind, ID: id}
	}
	return fmt.Errorf("load %s %d: %w", kind, id, err)
}

func tripRef(trip models.Trip, vehicle models.Vehicle) planning.TripRef {
	return planning.TripRef{
		ID:             trip.ID,
		Name:           trip.Name,
		Status:         trip.Status,
		PlannedStart:   trip.PlannedStart,
		Notes:          trip.Notes,
		DriverNotified: trip.DriverNotified,
		VehiclePlate:   vehicle.LicensePlate,
		DriverName:     vehicle.DriverName,
		DriverEmail:    vehicle.DriverEmail,
	}
}

func stopRef(s models.Stop) planning.StopRef {
	ref := planning.StopRef{
		ID:        s.ID,
		Name:      s.Name,
		Address:   s.Address,
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Type:      s.StopType,
		OrderID:   s.OrderID,
	}
	if s.Order != nil {
		ref.OrderNumber = s.Order.OrderNumber
	}
	return ref
}

func entry(ts models.TripStop) planning.Entry {
	return planning.Entry{
		TripStopID:     ts.ID,
		TripID:         ts.TripID,
		Sequence:       ts.Sequence,
		PlannedArrival: ts.PlannedArrivalTime,
		Notes:          ts.Notes,
		IsCompleted:    ts.IsCompleted,
		Stop:           stopRef(ts.Stop),

		ActualArrival:   ts.ActualArrivalDatetime,
		ActualDeparture: ts.ActualDepartureDatetime,
	}
}

func (t *gormTx) loadTrip(ctx context.Context, q *gorm.DB, tripID uint) (planning.TripRef, error) {
	var trip models.Trip
	if err := q.First(&trip, tripID).Error; err != nil {
		return planning.TripRef{}, notFound(err, "trip", tripID)
	}
	var vehicle models.Vehicle
	if err := t.db.WithContext(ctx).First(&vehicle, trip.VehicleID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return planning.TripRef{}, fmt.Errorf("load vehicle of trip %d: %w", tripID, err)
	}
	return tripRef(trip, vehicle), nil
}

func (t *gormTx) Trip(ctx context.Context, tripID uint) (planning.TripRef, error) {
	return t.loadTrip(ctx, t.db.WithContext(ctx), tripID)
}

// LockTrip takes a row lock on postgres. SQLite has a single writer and
// rejects FOR UPDATE, so the clause is left out there.
func (t *gormTx) LockTrip(ctx context.Context, tripID uint) (planning.TripRef, error) {
	q := t.db.WithContext(ctx)
	if t.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return t.loadTrip(ctx, q, tripID)
}

func (t *gormTx) withStops(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx).Preload("Stop").Preload("Stop.Order")
}

func (t *gormTx) TripStops(ctx context.Context, tripID uint) ([]planning.Entry, error) {
	var rows []models.TripStop
	if err := t.withStops(ctx).Where("trip_id = ?", tripID).Order("sequence").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list stops of trip %d: %w", tripID, err)
	}
	out := make([]planning.Entry, len(rows))
	for i, ts := range rows {
		out[i] = entry(ts)
	}
	return out, nil
}

func (t *gormTx) TripStop(ctx context.Context, tripStopID uint) (planning.Entry, error) {
	var ts models.TripStop
	if err := t.withStops(ctx).First(&ts, tripStopID).Error; err != nil {
		return planning.Entry{}, notFound(err, "trip stop", tripStopID)
	}
	return entry(ts), nil
}

func (t *gormTx) Stop(ctx context.Context, stopID uint) (planning.StopRef, error) {
	var s models.Stop
	if err := t.db.WithContext(ctx).Preload("Order").First(&s, stopID).Error; err != nil {
		return planning.StopRef{}, notFound(err, "stop", stopID)
	}
	return stopRef(s), nil
}

func (t *gormTx) Order(ctx context.Context, orderID uint) (planning.OrderRef, error) {
	var o models.Order
	if err := t.db.WithContext(ctx).First(&o, orderID).Error; err != nil {
		return planning.OrderRef{}, notFound(err, "order", orderID)
	}
	return planning.OrderRef{ID: o.ID, Number: o.OrderNumber}, nil
}

func (t *gormTx) OrderStops(ctx context.Context, orderID uint) ([]planning.StopRef, error) {
	var stops []models.Stop
	err := t.db.WithContext(ctx).Preload("Order").
		Where("order_id = ?", orderID).
		Order("id").
		Find(&stops).Error
	if err != nil {
		return nil, fmt.Errorf("list stops of order %d: %w", orderID, err)
	}
	out := make([]planning.StopRef, len(stops))
	for i, s := range stops {
		out[i] = stopRef(s)
	}
	return out, nil
}

func (t *gormTx) CreateTripStop(ctx context.Context, n planning.NewTripStop) (planning.Entry, error) {
	row := models.TripStop{
		TripID:             n.TripID,
		StopID:             n.StopID,
		Sequence:           n.Sequence,
		PlannedArrivalTime: n.PlannedArrival,
		Notes:              n.Notes,
	}
	if err := t.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error; err != nil {
		if IsUniqueViolation(err) {
			return planning.Entry{}, fmt.Errorf("trip %d sequence %d: %w", n.TripID, n.Sequence, ErrSequenceTaken)
		}
		return planning.Entry{}, err
	}
	return t.TripStop(ctx, row.ID)
}

func (t *gormTx) SetSequence(ctx context.Context, tripStopID uint, sequence int) error {
	res := t.db.WithContext(ctx).Model(&models.TripStop{}).
		Where("id = ?", tripStopID).
		Update("sequence", sequence)
	if res.Error != nil {
		if IsUniqueViolation(res.Error) {
			return fmt.Errorf("trip stop %d to sequence %d: %w", tripStopID, sequence, ErrSequenceTaken)
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &planning.NotFoundError{Kind: "trip stop", ID: tripStopID}
	}
	return nil
}

func (t *gormTx) DeleteTripStop(ctx context.Context, tripStopID uint) error {
	res := t.db.WithContext(ctx).Delete(&models.TripStop{}, tripStopID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &planning.NotFoundError{Kind: "trip stop", ID: tripStopID}
	}
	return nil
}

func (t *gormTx) UpdateTripStop(ctx context.Context, tripStopID uint, f planning.TripStopFields) error {
	res := t.db.WithContext(ctx).Model(&models.TripStop{}).
		Where("id = ?", tripStopID).
		Updates(map[string]any{
			"planned_arrival_time":      f.PlannedArrival,
			"notes":                     f.Notes,
			"is_completed":              f.IsCompleted,
			"actual_arrival_datetime":   f.ActualArrival,
			"actual_departure_datetime": f.ActualDeparture,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &planning.NotFoundError{Kind: "trip stop", ID: tripStopID}
	}
	return nil
}

func (t *gormTx) MarkDriverNotified(ctx context.Context, tripID uint) error {
	res := t.db.WithContext(ctx).Model(&models.Trip{}).
		Where("id = ?", tripID).
		Update("driver_notified", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &planning.NotFoundError{Kind: "trip", ID: tripID}
	}
	return nil
}
