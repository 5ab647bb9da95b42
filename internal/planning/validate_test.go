package planning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch_tracker/internal/models"
)

func uptr(v uint) *uint { return &v }

func stopFor(id uint, t models.StopType, orderID uint, number string) StopRef {
	s := StopRef{ID: id, Name: "stop", Type: t}
	if orderID != 0 {
		s.OrderID = uptr(orderID)
		s.OrderNumber = number
	}
	return s
}

func at(seq int, s StopRef) Entry {
	return Entry{TripStopID: uint(100 + seq), Sequence: seq, Stop: s}
}

func TestIncompleteOrders(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		want    []string
	}{
		{name: "empty trip"},
		{
			name: "standalone stops are ignored",
			entries: []Entry{
				at(1, stopFor(1, models.StopPickup, 0, "")),
				at(2, stopFor(2, models.StopDelivery, 0, "")),
			},
		},
		{
			name: "complete pair",
			entries: []Entry{
				at(1, stopFor(1, models.StopPickup, 7, "ORD-2025-0007")),
				at(2, stopFor(2, models.StopDelivery, 7, "ORD-2025-0007")),
			},
		},
		{
			name: "two halves missing, sorted by number",
			entries: []Entry{
				at(1, stopFor(5, models.StopDelivery, 9, "ORD-2025-0009")),
				at(2, stopFor(1, models.StopPickup, 7, "ORD-2025-0007")),
				at(3, stopFor(2, models.StopDelivery, 7, "ORD-2025-0007")),
				at(4, stopFor(3, models.StopPickup, 8, "ORD-2025-0008")),
			},
			want: []string{"ORD-2025-0008", "ORD-2025-0009"},
		},
		{
			name: "duplicate pickups without delivery",
			entries: []Entry{
				at(1, stopFor(1, models.StopPickup, 7, "ORD-2025-0007")),
				at(2, stopFor(1, models.StopPickup, 7, "ORD-2025-0007")),
			},
			want: []string{"ORD-2025-0007"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IncompleteOrders(tt.entries)
			var numbers []string
			for _, o := range got {
				numbers = append(numbers, o.Number)
			}
			assert.Equal(t, tt.want, numbers)
			assert.Equal(t, got, IncompleteOrders(tt.entries), "second call must agree")
		})
	}
}

func TestCheckCompleteness(t *testing.T) {
	snap := Snapshot{
		Trip: TripRef{ID: 1, Name: "Monday run"},
		Entries: []Entry{
			at(1, stopFor(1, models.StopPickup, 7, "ORD-2025-0007")),
		},
	}
	err := CheckCompleteness(snap)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "Trip 'Monday run' contains incomplete orders")
	assert.Contains(t, err.Error(), "ORD-2025-0007")

	snap.Entries = append(snap.Entries, at(2, stopFor(2, models.StopDelivery, 7, "ORD-2025-0007")))
	assert.NoError(t, CheckCompleteness(snap))
}

func TestCheckNewStop(t *testing.T) {
	pickup := stopFor(1, models.StopPickup, 7, "ORD-2025-0007")
	delivery := stopFor(2, models.StopDelivery, 7, "ORD-2025-0007")
	lone := stopFor(3, models.StopPickup, 8, "ORD-2025-0008")

	t.Run("stop without order always passes", func(t *testing.T) {
		snap := Snapshot{Entries: []Entry{at(1, pickup)}}
		assert.NoError(t, CheckNewStop(snap, stopFor(4, models.StopDelivery, 0, ""), nil))
	})

	t.Run("order has no opposite stop", func(t *testing.T) {
		err := CheckNewStop(Snapshot{}, lone, []StopRef{lone})
		require.Error(t, err)
		assert.True(t, IsValidation(err))
		assert.Contains(t, err.Error(), "does not have a delivery stop")
		assert.Contains(t, err.Error(), "ORD-2025-0008")
	})

	t.Run("opposite stop not in trip", func(t *testing.T) {
		err := CheckNewStop(Snapshot{}, delivery, []StopRef{pickup, delivery})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Cannot add delivery stop for order ORD-2025-0007 without also including its pickup stop")
	})

	t.Run("opposite stop already in trip", func(t *testing.T) {
		snap := Snapshot{Entries: []Entry{at(1, pickup)}}
		assert.NoError(t, CheckNewStop(snap, delivery, []StopRef{pickup, delivery}))
	})
}

func TestCheckPickupBeforeDelivery(t *testing.T) {
	p := stopFor(1, models.StopPickup, 7, "ORD-2025-0007")
	d := stopFor(2, models.StopDelivery, 7, "ORD-2025-0007")

	tests := []struct {
		name    string
		entries []Entry
		wantErr []string
	}{
		{name: "empty trip"},
		{name: "pickup first", entries: []Entry{at(1, p), at(2, d)}},
		{name: "only pickup present", entries: []Entry{at(3, p)}},
		{
			name:    "delivery first",
			entries: []Entry{at(1, d), at(2, p)},
			wantErr: []string{"ORD-2025-0007", "position 1", "position 2"},
		},
		{
			name:    "same position",
			entries: []Entry{at(4, p), at(4, d)},
			wantErr: []string{"position 4"},
		},
		{
			name:    "earliest pickup decides",
			entries: []Entry{at(5, p), at(3, d), at(1, p)},
		},
		{
			name:    "unsorted input is ordered first",
			entries: []Entry{at(9, d), at(2, p), at(1, d)},
			wantErr: []string{"position 1", "position 2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPickupBeforeDelivery(tt.entries)
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}
