package orders

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dispatch_tracker/internal/config"
	"dispatch_tracker/internal/models"
	"dispatch_tracker/internal/planning"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "orders.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))
	return db
}

var march = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

func TestNextNumber(t *testing.T) {
	db := openDB(t)

	n, err := NextNumber(db, march)
	require.NoError(t, err)
	assert.Equal(t, "ORD-2025-0001", n)

	for _, num := range []string{"ORD-2025-0009", "ORD-2025-0010", "ORD-2024-0500"} {
		require.NoError(t, db.Create(&models.Order{OrderNumber: num}).Error)
	}
	n, err = NextNumber(db, march)
	require.NoError(t, err)
	assert.Equal(t, "ORD-2025-0011", n)

	n, err = NextNumber(db, march.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, "ORD-2026-0001", n)
}

func TestNextNumberPastFourDigits(t *testing.T) {
	db := openDB(t)
	require.NoError(t, db.Create(&models.Order{OrderNumber: "ORD-2025-9999"}).Error)
	require.NoError(t, db.Create(&models.Order{OrderNumber: "ORD-2025-10000"}).Error)

	n, err := NextNumber(db, march)
	require.NoError(t, err)
	assert.Equal(t, "ORD-2025-10001", n)
}

func TestNextNumberCountsDeletedOrders(t *testing.T) {
	db := openDB(t)
	o := models.Order{OrderNumber: "ORD-2025-0004"}
	require.NoError(t, db.Create(&o).Error)
	require.NoError(t, db.Delete(&o).Error)

	n, err := NextNumber(db, march)
	require.NoError(t, err)
	assert.Equal(t, "ORD-2025-0005", n)
}

func TestCreateWithStops(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	o, err := Create(ctx, db, CreateInput{
		CustomerName:     "Wanjiru",
		GoodsDescription: "cement",
		PickupStop:       &StopInput{Name: "Quarry", StopType: "loading"},
		DeliveryStop:     &StopInput{Name: "Site"},
	}, march)
	require.NoError(t, err)
	assert.Equal(t, "ORD-2025-0001", o.OrderNumber)
	assert.Equal(t, "standard", o.GoodsType)
	require.Len(t, o.Stops, 2)
	assert.Equal(t, models.StopPickup, o.Stops[0].StopType)
	assert.Equal(t, models.StopDelivery, o.Stops[1].StopType)

	second, err := Create(ctx, db, CreateInput{CustomerName: "Otieno", GoodsDescription: "steel"}, march)
	require.NoError(t, err)
	assert.Equal(t, "ORD-2025-0002", second.OrderNumber)

	complete, err := Complete(ctx, db)
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, o.ID, complete[0].ID)
}

func TestCreateRejectsMismatchedStopType(t *testing.T) {
	db := openDB(t)
	_, err := Create(context.Background(), db, CreateInput{
		CustomerName:     "Wanjiru",
		GoodsDescription: "cement",
		PickupStop:       &StopInput{Name: "Quarry", StopType: "delivery"},
	}, march)
	require.Error(t, err)
	assert.True(t, planning.IsMalformed(err))

	var count int64
	require.NoError(t, db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestAvailableForTrip(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	free, err := Create(ctx, db, CreateInput{
		CustomerName: "A", GoodsDescription: "x",
		PickupStop: &StopInput{Name: "p"}, DeliveryStop: &StopInput{Name: "d"},
	}, march)
	require.NoError(t, err)
	busy, err := Create(ctx, db, CreateInput{
		CustomerName: "B", GoodsDescription: "y",
		PickupStop: &StopInput{Name: "p"}, DeliveryStop: &StopInput{Name: "d"},
	}, march)
	require.NoError(t, err)
	company := models.Company{Name: "Acme"}
	require.NoError(t, db.Create(&company).Error)
	user := models.User{Name: "Dee", Email: "dee@acme.test", CompanyID: &company.ID}
	require.NoError(t, db.Create(&user).Error)
	vehicle := models.Vehicle{CompanyID: company.ID, LicensePlate: "KBX 001"}
	require.NoError(t, db.Create(&vehicle).Error)
	trip := models.Trip{VehicleID: vehicle.ID, DispatcherID: user.ID, Name: "run"}
	require.NoError(t, db.Create(&trip).Error)
	require.NoError(t, db.Create(&models.TripStop{TripID: trip.ID, StopID: busy.Stops[0].ID, Sequence: 1}).Error)

	got, err := AvailableForTrip(ctx, db)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, free.ID, got[0].ID)
}
