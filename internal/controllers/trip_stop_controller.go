package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"dispatch_tracker/internal/cache"
	"dispatch_tracker/internal/events"
	"dispatch_tracker/internal/itinerary"
	"dispatch_tracker/internal/middleware"
	"dispatch_tracker/internal/models"
	"dispatch_tracker/internal/notify"
	"dispatch_tracker/internal/planning"
)

// TripAccess decides whether a company may see and change a trip.
type TripAccess interface {
	CanAccess(ctx context.Context, companyID, tripID uint) (bool, error)
}

// TripStopController serves the sequencing endpoints of a trip.
type TripStopController struct {
	Planner  *planning.Service
	Cache    *cache.ItineraryCache
	Events   events.Publisher
	Notifier notify.Notifier
	// Access is optional; nil lets every authenticated caller through.
	Access TripAccess
}

type stopResponse struct {
	ID          uint            `json:"id"`
	Name        string          `json:"name"`
	Address     string          `json:"address"`
	Latitude    *float64        `json:"latitude"`
	Longitude   *float64        `json:"longitude"`
	StopType    models.StopType `json:"stop_type"`
	OrderID     *uint           `json:"order_id"`
	OrderNumber string          `json:"order_number,omitempty"`
}

type tripStopResponse struct {
	ID                      uint         `json:"id"`
	Trip                    uint         `json:"trip"`
	Stop                    stopResponse `json:"stop"`
	Sequence                int          `json:"sequence"`
	PlannedArrivalTime      time.Time    `json:"planned_arrival_time"`
	ActualArrivalDatetime   *time.Time   `json:"actual_arrival_datetime"`
	ActualDepartureDatetime *time.Time   `json:"actual_departure_datetime"`
	Notes                   string       `json:"notes"`
	IsCompleted             bool         `json:"is_completed"`
}

func toTripStopResponse(e planning.Entry) tripStopResponse {
	return tripStopResponse{
		ID:   e.TripStopID,
		Trip: e.TripID,
		Stop: stopResponse{
			ID:          e.Stop.ID,
			Name:        e.Stop.Name,
			Address:     e.Stop.Address,
			Latitude:    e.Stop.Latitude,
			Longitude:   e.Stop.Longitude,
			StopType:    e.Stop.Type,
			OrderID:     e.Stop.OrderID,
			OrderNumber: e.Stop.OrderNumber,
		},
		Sequence:                e.Sequence,
		PlannedArrivalTime:      e.PlannedArrival,
		ActualArrivalDatetime:   e.ActualArrival,
		ActualDepartureDatetime: e.ActualDeparture,
		Notes:                   e.Notes,
		IsCompleted:             e.IsCompleted,
	}
}

func toTripStopResponses(entries []planning.Entry) []tripStopResponse {
	out := make([]tripStopResponse, len(entries))
	for i, e := range entries {
		out[i] = toTripStopResponse(e)
	}
	return out
}

// parseArrival accepts RFC3339, or a wall-clock time (HH:MM or HH:MM:SS)
// placed on day.
func parseArrival(field, raw string, day time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, raw); err == nil {
			y, m, d := day.Date()
			return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, day.Location()), nil
		}
	}
	return time.Time{}, &planning.MalformedInputError{Field: field, Reason: fmt.Sprintf("unrecognised time %q", raw)}
}

// authorize writes a 404 and returns false when the caller's company may
// not touch the trip.
func (tc *TripStopController) authorize(c *gin.Context, tripID uint) bool {
	if tc.Access == nil {
		return true
	}
	ok, err := tc.Access.CanAccess(c.Request.Context(), c.GetUint("company_id"), tripID)
	if err != nil {
		respondError(c, err)
		return false
	}
	if !ok {
		respondError(c, &planning.NotFoundError{Kind: "trip", ID: tripID})
		return false
	}
	return true
}

// changed invalidates the cached itinerary and publishes the event. Neither
// failure is reported to the caller; the mutation is already committed.
func (tc *TripStopController) changed(c *gin.Context, ev events.TripEvent) {
	ctx := c.Request.Context()
	log := middleware.Log(c).WithField("trip_id", ev.TripID)
	if err := tc.Cache.Invalidate(ctx, ev.TripID); err != nil {
		log.WithError(err).Warn("itinerary cache invalidation failed")
	}
	if tc.Events == nil {
		return
	}
	if err := tc.Events.Publish(ctx, ev); err != nil {
		log.WithError(err).WithField("kind", ev.Kind).Warn("trip event not published")
	}
}

func positions(entries ...planning.Entry) []events.StopPosition {
	out := make([]events.StopPosition, len(entries))
	for i, e := range entries {
		out[i] = events.StopPosition{TripStopID: e.TripStopID, Sequence: e.Sequence}
	}
	return out
}

// ListStops returns the trip's stops in sequence order, read through the cache.
func (tc *TripStopController) ListStops(c *gin.Context) {
	tripID, ok := idParam(c, "id")
	if !ok || !tc.authorize(c, tripID) {
		return
	}
	ctx := c.Request.Context()
	log := middleware.Log(c).WithField("trip_id", tripID)

	if data, hit, err := tc.Cache.Get(ctx, tripID); err != nil {
		log.WithError(err).Warn("itinerary cache read failed")
	} else if hit {
		c.Data(http.StatusOK, "application/json; charset=utf-8", data)
		return
	}
	gen, genErr := tc.Cache.Generation(ctx, tripID)
	if genErr != nil {
		log.WithError(genErr).Warn("itinerary cache generation read failed")
	}

	snap, err := tc.Planner.Snapshot(ctx, tripID)
	if err != nil {
		respondError(c, err)
		return
	}
	body, err := json.Marshal(gin.H{"results": toTripStopResponses(snap.Entries)})
	if err != nil {
		respondError(c, err)
		return
	}
	if genErr == nil {
		if stored, err := tc.Cache.Set(ctx, tripID, gen, body); err != nil {
			log.WithError(err).Warn("itinerary cache write failed")
		} else if !stored {
			log.Debug("itinerary changed while loading, not cached")
		}
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

type addStopInput struct {
	StopID             uint   `json:"stop_id" binding:"required"`
	Sequence           *int   `json:"sequence"`
	PlannedArrivalTime string `json:"planned_arrival_time"`
	Notes              string `json:"notes"`
}

// AddStop attaches one existing stop. Without a sequence the stop goes last.
func (tc *TripStopController) AddStop(c *gin.Context) {
	tripID, ok := idParam(c, "id")
	if !ok || !tc.authorize(c, tripID) {
		return
	}
	var input addStopInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid trip stop input: " + err.Error()})
		return
	}
	p := planning.Placement{TripID: tripID, StopID: input.StopID, Notes: input.Notes}
	if input.Sequence != nil {
		if *input.Sequence < 1 {
			respondError(c, &planning.MalformedInputError{Field: "sequence", Reason: "must be a positive integer"})
			return
		}
		p.Sequence = *input.Sequence
	}

	ctx := c.Request.Context()
	if input.PlannedArrivalTime != "" {
		snap, err := tc.Planner.Snapshot(ctx, tripID)
		if err != nil {
			respondError(c, err)
			return
		}
		if p.PlannedArrival, err = parseArrival("planned_arrival_time", input.PlannedArrivalTime, snap.Trip.PlannedStart); err != nil {
			respondError(c, err)
			return
		}
	}

	entry, err := tc.Planner.AddStop(ctx, p)
	if err != nil {
		respondError(c, err)
		return
	}
	tc.changed(c, events.TripEvent{Kind: events.StopAdded, TripID: tripID, Stops: positions(entry)})
	c.JSON(http.StatusCreated, toTripStopResponse(entry))
}

// DeleteStop removes a trip stop and closes the gap it leaves.
func (tc *TripStopController) DeleteStop(c *gin.Context) {
	tripStopID, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if tc.Access != nil {
		existing, err := tc.Planner.TripStop(ctx, tripStopID)
		if err != nil {
			respondError(c, err)
			return
		}
		if !tc.authorize(c, existing.TripID) {
			return
		}
	}

	removed, err := tc.Planner.DeleteAndCloseGap(ctx, tripStopID)
	if err != nil {
		respondError(c, err)
		return
	}
	tc.changed(c, events.TripEvent{Kind: events.StopRemoved, TripID: removed.TripID, Stops: positions(removed)})
	c.Status(http.StatusNoContent)
}

// tripStop loads the trip stop named by the :id parameter and checks the
// caller may see its trip. It writes the error response itself.
func (tc *TripStopController) tripStop(c *gin.Context) (planning.Entry, bool) {
	tripStopID, ok := idParam(c, "id")
	if !ok {
		return planning.Entry{}, false
	}
	e, err := tc.Planner.TripStop(c.Request.Context(), tripStopID)
	if err != nil {
		respondError(c, err)
		return planning.Entry{}, false
	}
	if !tc.authorize(c, e.TripID) {
		return planning.Entry{}, false
	}
	return e, true
}

// GetTripStop returns one trip stop.
func (tc *TripStopController) GetTripStop(c *gin.Context) {
	e, ok := tc.tripStop(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toTripStopResponse(e))
}

type updateStopInput struct {
	Sequence                *int    `json:"sequence"`
	PlannedArrivalTime      *string `json:"planned_arrival_time"`
	ActualArrivalDatetime   *string `json:"actual_arrival_datetime"`
	ActualDepartureDatetime *string `json:"actual_departure_datetime"`
	Notes                   *string `json:"notes"`
	IsCompleted             *bool   `json:"is_completed"`
}

// change converts the request into a planning change. Wall-clock times are
// placed on day.
func (in updateStopInput) change(id uint, day, now time.Time) (planning.TripStopChange, error) {
	ch := planning.TripStopChange{
		TripStopID:  id,
		Sequence:    in.Sequence,
		Notes:       in.Notes,
		IsCompleted: in.IsCompleted,
		At:          now,
	}
	times := []struct {
		field string
		raw   *string
		dst   **time.Time
	}{
		{"planned_arrival_time", in.PlannedArrivalTime, &ch.PlannedArrival},
		{"actual_arrival_datetime", in.ActualArrivalDatetime, &ch.ActualArrival},
		{"actual_departure_datetime", in.ActualDepartureDatetime, &ch.ActualDeparture},
	}
	for _, tm := range times {
		if tm.raw == nil {
			continue
		}
		parsed, err := parseArrival(tm.field, *tm.raw, day)
		if err != nil {
			return planning.TripStopChange{}, err
		}
		*tm.dst = &parsed
	}
	return ch, nil
}

// UpdateTripStop edits one trip stop. A sequence change is refused when it
// collides with another stop or puts a delivery before its pickup.
func (tc *TripStopController) UpdateTripStop(c *gin.Context) {
	existing, ok := tc.tripStop(c)
	if !ok {
		return
	}
	var input updateStopInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid trip stop input: " + err.Error()})
		return
	}
	ctx := c.Request.Context()
	day := existing.PlannedArrival
	if input.PlannedArrivalTime != nil || input.ActualArrivalDatetime != nil || input.ActualDepartureDatetime != nil {
		snap, err := tc.Planner.Snapshot(ctx, existing.TripID)
		if err != nil {
			respondError(c, err)
			return
		}
		day = snap.Trip.PlannedStart
	}
	ch, err := input.change(existing.TripStopID, day, time.Now().UTC())
	if err != nil {
		respondError(c, err)
		return
	}

	updated, err := tc.Planner.UpdateTripStop(ctx, ch)
	if err != nil {
		respondError(c, err)
		return
	}
	middleware.Log(c).WithFields(logrus.Fields{
		"trip_id":      updated.TripID,
		"trip_stop_id": updated.TripStopID,
		"sequence":     updated.Sequence,
		"is_completed": updated.IsCompleted,
	}).Info("trip stop updated")
	tc.changed(c, events.TripEvent{Kind: events.StopUpdated, TripID: updated.TripID, Stops: positions(updated)})
	c.JSON(http.StatusOK, toTripStopResponse(updated))
}

type reorderItem struct {
	ID       uint `json:"id"`
	Sequence *int `json:"sequence"`
	Order    *int `json:"order"` // legacy name for sequence
}

type reorderInput struct {
	Sequences []reorderItem `json:"sequences"`
	Orders    []reorderItem `json:"orders"` // legacy name for sequences
}

func (in reorderInput) assignments() ([]planning.Assignment, error) {
	items := in.Sequences
	if len(items) == 0 {
		items = in.Orders
	}
	if len(items) == 0 {
		return nil, &planning.MalformedInputError{Field: "sequences", Reason: "no trip stops provided"}
	}
	out := make([]planning.Assignment, len(items))
	for i, it := range items {
		seq := it.Sequence
		if seq == nil {
			seq = it.Order
		}
		if it.ID == 0 || seq == nil {
			return nil, &planning.MalformedInputError{
				Field:  fmt.Sprintf("sequences[%d]", i),
				Reason: "id and sequence are required",
			}
		}
		out[i] = planning.Assignment{TripStopID: it.ID, Sequence: *seq}
	}
	return out, nil
}

// Reorder moves trip stops to the sequences given, all or nothing.
func (tc *TripStopController) Reorder(c *gin.Context) {
	tripID, ok := idParam(c, "id")
	if !ok || !tc.authorize(c, tripID) {
		return
	}
	var input reorderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid data format"})
		return
	}
	assignments, err := input.assignments()
	if err != nil {
		respondError(c, err)
		return
	}
	middleware.Log(c).WithFields(logrus.Fields{"trip_id": tripID, "count": len(assignments)}).
		Info("reordering trip stops")

	entries, err := tc.Planner.Reorder(c.Request.Context(), tripID, assignments)
	if err != nil {
		respondError(c, err)
		return
	}
	tc.changed(c, events.TripEvent{Kind: events.StopsReordered, TripID: tripID, Stops: positions(entries...)})
	c.JSON(http.StatusOK, gin.H{"results": toTripStopResponses(entries)})
}

type addOrderInput struct {
	Order        uint   `json:"order"`
	OrderID      uint   `json:"order_id"`
	PickupTime   string `json:"pickup_time" binding:"required"`
	DeliveryTime string `json:"delivery_time" binding:"required"`
	Notes        string `json:"notes"`
}

// AddOrder appends both stops of an order to the trip.
func (tc *TripStopController) AddOrder(c *gin.Context) {
	tripID, ok := idParam(c, "id")
	if !ok || !tc.authorize(c, tripID) {
		return
	}
	var input addOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid data format"})
		return
	}
	orderID := input.Order
	if orderID == 0 {
		orderID = input.OrderID
	}
	if orderID == 0 {
		respondError(c, &planning.MalformedInputError{Field: "order", Reason: "required"})
		return
	}

	ctx := c.Request.Context()
	snap, err := tc.Planner.Snapshot(ctx, tripID)
	if err != nil {
		respondError(c, err)
		return
	}
	pickupAt, err := parseArrival("pickup_time", input.PickupTime, snap.Trip.PlannedStart)
	if err != nil {
		respondError(c, err)
		return
	}
	deliverAt, err := parseArrival("delivery_time", input.DeliveryTime, snap.Trip.PlannedStart)
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := tc.Planner.AddOrderToTrip(ctx, planning.OrderPlacement{
		TripID:       tripID,
		OrderID:      orderID,
		PickupTime:   pickupAt,
		DeliveryTime: deliverAt,
		Notes:        input.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	tc.changed(c, events.TripEvent{
		Kind:    events.OrderAdded,
		TripID:  tripID,
		OrderID: &orderID,
		Stops:   positions(res.Pickup, res.Delivery),
	})
	c.JSON(http.StatusCreated, gin.H{
		"message":            fmt.Sprintf("Successfully added order %s to trip", res.Order.Number),
		"pickup_trip_stop":   toTripStopResponse(res.Pickup),
		"delivery_trip_stop": toTripStopResponse(res.Delivery),
	})
}

// Completeness reports orders missing a pickup or delivery and whether the
// current ordering keeps every pickup ahead of its delivery.
func (tc *TripStopController) Completeness(c *gin.Context) {
	tripID, ok := idParam(c, "id")
	if !ok || !tc.authorize(c, tripID) {
		return
	}
	snap, err := tc.Planner.Snapshot(c.Request.Context(), tripID)
	if err != nil {
		respondError(c, err)
		return
	}

	incomplete := planning.IncompleteOrders(snap.Entries)
	numbers := make([]string, len(incomplete))
	for i, o := range incomplete {
		numbers[i] = o.Number
	}
	resp := gin.H{
		"trip":              tripID,
		"complete":          len(incomplete) == 0,
		"incomplete_orders": numbers,
		"ordering_valid":    true,
	}
	if err := planning.CheckCompleteness(snap); err != nil {
		resp["completeness_error"] = err.Error()
	}
	if err := planning.CheckPickupBeforeDelivery(snap.Entries); err != nil {
		resp["ordering_valid"] = false
		resp["ordering_error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// NotifyDriver queues the itinerary for the vehicle's driver, once per trip.
func (tc *TripStopController) NotifyDriver(c *gin.Context) {
	tripID, ok := idParam(c, "id")
	if !ok || !tc.authorize(c, tripID) {
		return
	}
	ctx := c.Request.Context()
	err := tc.Planner.NotifyDriver(ctx, tripID, func(snap planning.Snapshot) error {
		return tc.Notifier.Notify(ctx, tripID, itinerary.Render(snap))
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Driver notified successfully"})
}

// Route returns a GeoJSON line through the trip's stops.
func (tc *TripStopController) Route(c *gin.Context) {
	tripID, ok := idParam(c, "id")
	if !ok || !tc.authorize(c, tripID) {
		return
	}
	snap, err := tc.Planner.Snapshot(c.Request.Context(), tripID)
	if err != nil {
		respondError(c, err)
		return
	}
	feature, err := itinerary.RouteFeature(snap)
	if errors.Is(err, itinerary.ErrTooFewPoints) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, feature)
}

// ItineraryPDF renders the printable itinerary.
func (tc *TripStopController) ItineraryPDF(c *gin.Context) {
	tripID, ok := idParam(c, "id")
	if !ok || !tc.authorize(c, tripID) {
		return
	}
	snap, err := tc.Planner.Snapshot(c.Request.Context(), tripID)
	if err != nil {
		respondError(c, err)
		return
	}
	doc, err := itinerary.PDF(snap)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=trip-%d.pdf", tripID))
	c.Data(http.StatusOK, "application/pdf", doc)
}
