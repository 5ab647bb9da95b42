package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"dispatch_tracker/internal/config"
	"dispatch_tracker/internal/models"
)

// DBTripAccess answers trip ownership through the trip's vehicle.
type DBTripAccess struct {
	DB *gorm.DB
}

func (a DBTripAccess) CanAccess(ctx context.Context, companyID, tripID uint) (bool, error) {
	var n int64
	err := a.DB.WithContext(ctx).Model(&models.Trip{}).
		Joins("JOIN vehicles ON vehicles.id = trips.vehicle_id").
		Where("trips.id = ? AND vehicles.company_id = ?", tripID, companyID).
		Count(&n).Error
	return n > 0, err
}

var tripStatuses = map[string]bool{
	models.TripDraft:      true,
	models.TripPlanned:    true,
	models.TripInProgress: true,
	models.TripCompleted:  true,
	models.TripCancelled:  true,
}

type tripInput struct {
	VehicleID    *uint      `json:"vehicle_id"`
	Name         *string    `json:"name"`
	Status       *string    `json:"status"`
	PlannedStart *time.Time `json:"planned_start"`
	Notes        *string    `json:"notes"`
}

// apply copies the given fields onto trip after checking the vehicle
// belongs to the caller's company.
func (in tripInput) apply(c *gin.Context, trip *models.Trip) bool {
	if in.VehicleID != nil {
		vehicle, err := companyVehicle(c, *in.VehicleID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Vehicle not found"})
			return false
		}
		if err != nil {
			respondError(c, err)
			return false
		}
		trip.VehicleID = vehicle.ID
	}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name cannot be empty"})
			return false
		}
		trip.Name = *in.Name
	}
	if in.Status != nil {
		if !tripStatuses[*in.Status] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return false
		}
		trip.Status = *in.Status
	}
	if in.PlannedStart != nil {
		trip.PlannedStart = *in.PlannedStart
	}
	if in.Notes != nil {
		trip.Notes = *in.Notes
	}
	return true
}

// CreateTrip opens a draft trip for one of the company's vehicles.
func CreateTrip(c *gin.Context) {
	var input tripInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid data"})
		return
	}
	if input.VehicleID == nil || input.Name == nil || input.PlannedStart == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vehicle_id, name and planned_start are required"})
		return
	}

	trip := models.Trip{DispatcherID: c.GetUint("user_id"), Status: models.TripDraft}
	if !input.apply(c, &trip) {
		return
	}
	if err := config.DB.WithContext(c.Request.Context()).Omit("Vehicle", "Dispatcher").Create(&trip).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"trip": trip})
}

func companyTrips(c *gin.Context) *gorm.DB {
	return config.DB.WithContext(c.Request.Context()).
		Joins("JOIN vehicles ON vehicles.id = trips.vehicle_id").
		Where("vehicles.company_id = ?", c.GetUint("company_id"))
}

// ListTrips lists the company's trips, optionally for one vehicle.
func ListTrips(c *gin.Context) {
	q := companyTrips(c)
	if raw := c.Query("vehicle"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vehicle"})
			return
		}
		q = q.Where("trips.vehicle_id = ?", id)
	}
	if status := c.Query("status"); status != "" {
		q = q.Where("trips.status = ?", status)
	}

	var trips []models.Trip
	if err := q.Order("trips.planned_start DESC").Find(&trips).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": trips})
}

func findTrip(c *gin.Context) (models.Trip, bool) {
	id, ok := idParam(c, "id")
	if !ok {
		return models.Trip{}, false
	}
	var trip models.Trip
	err := companyTrips(c).
		Preload("TripStops", func(db *gorm.DB) *gorm.DB { return db.Order("sequence") }).
		Preload("TripStops.Stop").
		First(&trip, "trips.id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Trip not found"})
		return trip, false
	}
	if err != nil {
		respondError(c, err)
		return trip, false
	}
	return trip, true
}

// GetTrip returns the trip with its stops in sequence order.
func GetTrip(c *gin.Context) {
	trip, ok := findTrip(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"trip": trip})
}

// UpdateTrip edits trip metadata. Stops are changed through the trip-stop endpoints.
func UpdateTrip(c *gin.Context) {
	trip, ok := findTrip(c)
	if !ok {
		return
	}
	var input tripInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if !input.apply(c, &trip) {
		return
	}
	now := time.Now()
	if trip.Status == models.TripInProgress && trip.ActualStartDatetime == nil {
		trip.ActualStartDatetime = &now
	}
	if trip.Status == models.TripCompleted && trip.ActualEndDatetime == nil {
		trip.ActualEndDatetime = &now
	}
	if err := config.DB.WithContext(c.Request.Context()).Omit("Vehicle", "Dispatcher", "TripStops").Save(&trip).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trip": trip})
}

// DeleteTrip removes a trip together with its trip stops. The stops themselves stay.
func DeleteTrip(c *gin.Context) {
	trip, ok := findTrip(c)
	if !ok {
		return
	}
	err := config.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("trip_id = ?", trip.ID).Delete(&models.TripStop{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Trip{}, trip.ID).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
