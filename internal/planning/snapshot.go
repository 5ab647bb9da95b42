package planning

import (
	"sort"
	"time"

	"dispatch_tracker/internal/models"
)

// TripRef is the part of a trip the engine and the itinerary renderers read.
type TripRef struct {
	ID             uint
	Name           string
	Status         string
	PlannedStart   time.Time
	Notes          string
	DriverNotified bool

	VehiclePlate string
	DriverName   string
	DriverEmail  string
}

// StopRef is a stop as seen from a trip, with its owning order flattened in.
type StopRef struct {
	ID          uint
	Name        string
	Address     string
	Latitude    *float64
	Longitude   *float64
	Type        models.StopType
	OrderID     *uint
	OrderNumber string
}

// Entry is one TripStop row.
type Entry struct {
	TripStopID     uint
	TripID         uint
	Sequence       int
	PlannedArrival time.Time
	Notes          string
	IsCompleted    bool
	Stop           StopRef

	ActualArrival   *time.Time
	ActualDeparture *time.Time
}

// OrderRef names an order by its number.
type OrderRef struct {
	ID     uint
	Number string
}

// Snapshot is a trip and its stops at one point in time, ordered by sequence.
type Snapshot struct {
	Trip    TripRef
	Entries []Entry
}

// MaxSequence returns the highest sequence in use, or 0 for an empty trip.
func (s Snapshot) MaxSequence() int {
	return maxSequence(s.Entries)
}

func (s Snapshot) contains(stopID uint) bool {
	for _, e := range s.Entries {
		if e.Stop.ID == stopID {
			return true
		}
	}
	return false
}

func maxSequence(entries []Entry) int {
	highest := 0
	for _, e := range entries {
		if e.Sequence > highest {
			highest = e.Sequence
		}
	}
	return highest
}

func sortBySequence(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Sequence < entries[j].Sequence
	})
}
