// Package itinerary renders a sequenced trip for drivers: as an email-style
// message, a printable PDF and a GeoJSON line through its stops.
package itinerary

import (
	"fmt"
	"strings"

	"dispatch_tracker/internal/planning"
)

// Message is the driver notice for one trip.
type Message struct {
	To         string `json:"to"`
	DriverName string `json:"driver_name"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
}

func clock(e planning.Entry) string {
	if e.PlannedArrival.IsZero() {
		return "--:--"
	}
	return e.PlannedArrival.Format("15:04")
}

// StopLine is "N. name (type) - HH:MM".
func StopLine(e planning.Entry) string {
	return fmt.Sprintf("%d. %s (%s) - %s", e.Sequence, e.Stop.Name, e.Stop.Type, clock(e))
}

// Render builds the notice for snap. Entries are expected in sequence order.
func Render(snap planning.Snapshot) Message {
	trip := snap.Trip
	var b strings.Builder

	fmt.Fprintf(&b, "Hello %s,\n\n", trip.DriverName)
	b.WriteString("You have been assigned to a new trip:\n\n")
	fmt.Fprintf(&b, "Trip: %s\n", trip.Name)
	fmt.Fprintf(&b, "Vehicle: %s\n", trip.VehiclePlate)
	if !trip.PlannedStart.IsZero() {
		fmt.Fprintf(&b, "Start Date: %s\n", trip.PlannedStart.Format("2006-01-02"))
		fmt.Fprintf(&b, "Start Time: %s\n", trip.PlannedStart.Format("15:04"))
	}
	b.WriteString("\nStops:")
	for _, e := range snap.Entries {
		b.WriteString("\n" + StopLine(e))
		fmt.Fprintf(&b, "\n   Address: %s", e.Stop.Address)
		if e.Notes != "" {
			fmt.Fprintf(&b, "\n   Notes: %s", e.Notes)
		}
	}
	if trip.Notes != "" {
		fmt.Fprintf(&b, "\n\nTrip Notes: %s", trip.Notes)
	}

	return Message{
		To:         trip.DriverEmail,
		DriverName: trip.DriverName,
		Subject:    "Trip Assignment: " + trip.Name,
		Body:       b.String(),
	}
}
