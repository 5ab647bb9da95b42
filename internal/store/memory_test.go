package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch_tracker/internal/models"
	"dispatch_tracker/internal/planning"
)

func TestMemoryRejectsDuplicateSequence(t *testing.T) {
	m := NewMemory()
	trip := m.AddTrip(planning.TripRef{Name: "t"})
	a := m.AddStop("a", models.StopPickup, nil)
	b := m.AddStop("b", models.StopPickup, nil)
	ctx := context.Background()

	err := m.Atomic(ctx, func(tx planning.Tx) error {
		_, err := tx.CreateTripStop(ctx, planning.NewTripStop{TripID: trip, StopID: a, Sequence: 1})
		require.NoError(t, err)
		_, err = tx.CreateTripStop(ctx, planning.NewTripStop{TripID: trip, StopID: b, Sequence: 1})
		return err
	})
	require.ErrorIs(t, err, ErrSequenceTaken)

	// The whole transaction is gone, including the first insert.
	err = m.Atomic(ctx, func(tx planning.Tx) error {
		entries, err := tx.TripStops(ctx, trip)
		require.NoError(t, err)
		assert.Empty(t, entries)
		return nil
	})
	require.NoError(t, err)
}

func TestMemorySetSequenceCollision(t *testing.T) {
	m := NewMemory()
	trip := m.AddTrip(planning.TripRef{Name: "t"})
	a := m.AddStop("a", models.StopPickup, nil)
	b := m.AddStop("b", models.StopPickup, nil)
	ctx := context.Background()

	var first, second planning.Entry
	require.NoError(t, m.Atomic(ctx, func(tx planning.Tx) error {
		var err error
		if first, err = tx.CreateTripStop(ctx, planning.NewTripStop{TripID: trip, StopID: a, Sequence: 1}); err != nil {
			return err
		}
		second, err = tx.CreateTripStop(ctx, planning.NewTripStop{TripID: trip, StopID: b, Sequence: 2})
		return err
	}))

	err := m.Atomic(ctx, func(tx planning.Tx) error {
		return tx.SetSequence(ctx, second.TripStopID, first.Sequence)
	})
	assert.ErrorIs(t, err, ErrSequenceTaken)

	// Moving onto its own sequence is not a collision.
	assert.NoError(t, m.Atomic(ctx, func(tx planning.Tx) error {
		return tx.SetSequence(ctx, first.TripStopID, first.Sequence)
	}))
}

func TestMemoryLookupsReportNotFound(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	err := m.Atomic(ctx, func(tx planning.Tx) error {
		_, err := tx.Order(ctx, 7)
		return err
	})
	var nf *planning.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "order", nf.Kind)
	assert.Equal(t, uint(7), nf.ID)
}

func TestMemoryHonoursCancelledContext(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := m.Atomic(ctx, func(planning.Tx) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestMemoryUpdateTripStop(t *testing.T) {
	m := NewMemory()
	trip := m.AddTrip(planning.TripRef{Name: "t"})
	a := m.AddStop("a", models.StopPickup, nil)
	ctx := context.Background()
	arrived := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

	var created planning.Entry
	require.NoError(t, m.Atomic(ctx, func(tx planning.Tx) error {
		var err error
		created, err = tx.CreateTripStop(ctx, planning.NewTripStop{TripID: trip, StopID: a, Sequence: 3, Notes: "gate 2"})
		return err
	}))

	require.NoError(t, m.Atomic(ctx, func(tx planning.Tx) error {
		return tx.UpdateTripStop(ctx, created.TripStopID, planning.TripStopFields{
			Notes:         "gate 4",
			IsCompleted:   true,
			ActualArrival: &arrived,
		})
	}))
	require.NoError(t, m.Atomic(ctx, func(tx planning.Tx) error {
		e, err := tx.TripStop(ctx, created.TripStopID)
		require.NoError(t, err)
		assert.Equal(t, 3, e.Sequence)
		assert.Equal(t, "gate 4", e.Notes)
		assert.True(t, e.IsCompleted)
		assert.Equal(t, &arrived, e.ActualArrival)
		assert.Nil(t, e.ActualDeparture)
		return nil
	}))

	err := m.Atomic(ctx, func(tx planning.Tx) error {
		return tx.UpdateTripStop(ctx, 404, planning.TripStopFields{})
	})
	assert.True(t, planning.IsNotFound(err))
}
