package planning

import (
	"fmt"
	"sort"

	"dispatch_tracker/internal/models"
)

type orderGroup struct {
	order OrderRef
	types map[models.StopType][]int
}

// groupByOrder buckets order-owned entries by order, keeping the order in
// which each order first appears. Stops without an order are skipped.
func groupByOrder(entries []Entry) []*orderGroup {
	var groups []*orderGroup
	index := make(map[uint]*orderGroup)
	for _, e := range entries {
		if e.Stop.OrderID == nil {
			continue
		}
		id := *e.Stop.OrderID
		g, ok := index[id]
		if !ok {
			g = &orderGroup{
				order: OrderRef{ID: id, Number: e.Stop.OrderNumber},
				types: make(map[models.StopType][]int),
			}
			index[id] = g
			groups = append(groups, g)
		}
		g.types[e.Stop.Type] = append(g.types[e.Stop.Type], e.Sequence)
	}
	return groups
}

// IncompleteOrders lists the orders that appear in entries without both a
// pickup and a delivery stop, sorted by order number.
func IncompleteOrders(entries []Entry) []OrderRef {
	var out []OrderRef
	for _, g := range groupByOrder(entries) {
		_, pickup := g.types[models.StopPickup]
		_, delivery := g.types[models.StopDelivery]
		if !pickup || !delivery {
			out = append(out, g.order)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Number != out[j].Number {
			return out[i].Number < out[j].Number
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CheckCompleteness fails when any order in the trip is missing one half of its pair.
func CheckCompleteness(snap Snapshot) error {
	incomplete := IncompleteOrders(snap.Entries)
	if len(incomplete) == 0 {
		return nil
	}
	numbers := make([]string, len(incomplete))
	for i, o := range incomplete {
		numbers[i] = o.Number
	}
	return invalidf("Trip '%s' contains incomplete orders. Orders %v are missing either pickup or delivery stops. "+
		"All orders must have both pickup and delivery stops in the trip.", snap.Trip.Name, numbers)
}

// CheckNewStop decides whether candidate may be attached to the trip on its
// own. orderStops are all stops of the candidate's order.
func CheckNewStop(snap Snapshot, candidate StopRef, orderStops []StopRef) error {
	if candidate.OrderID == nil {
		return nil
	}
	paired := candidate.Type.Opposite()

	var pair *StopRef
	for i := range orderStops {
		if orderStops[i].ID != candidate.ID && orderStops[i].Type == paired {
			pair = &orderStops[i]
			break
		}
	}
	if pair == nil {
		return invalidf("Order %s does not have a %s stop. Cannot add %s stop without its pair.",
			candidate.OrderNumber, paired, candidate.Type)
	}
	if !snap.contains(pair.ID) {
		return invalidf("Cannot add %s stop for order %s without also including its %s stop. "+
			"Trips must contain complete order journeys (both pickup and delivery).",
			candidate.Type, candidate.OrderNumber, paired)
	}
	return nil
}

// CheckPickupBeforeDelivery fails when, for any order with both stop types in
// the trip, the first delivery does not come strictly after the first pickup.
func CheckPickupBeforeDelivery(entries []Entry) error {
	sorted := append([]Entry(nil), entries...)
	sortBySequence(sorted)

	for _, g := range groupByOrder(sorted) {
		pickups := g.types[models.StopPickup]
		deliveries := g.types[models.StopDelivery]
		if len(pickups) == 0 || len(deliveries) == 0 {
			continue
		}
		minPickup, minDelivery := minInt(pickups), minInt(deliveries)
		if minPickup >= minDelivery {
			return &ValidationError{Msg: fmt.Sprintf(
				"Order %s has delivery stop (position %d) before or at same position as pickup stop (position %d). "+
					"Pickup must occur before delivery.", g.order.Number, minDelivery, minPickup)}
		}
	}
	return nil
}

func minInt(vals []int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
