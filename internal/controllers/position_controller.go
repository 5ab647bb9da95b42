package controllers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"dispatch_tracker/internal/config"
	"dispatch_tracker/internal/middleware"
	"dispatch_tracker/internal/models"
)

type positionInput struct {
	VehicleID    uint     `json:"vehicle_id" binding:"required"`
	Latitude     *float64 `json:"latitude" binding:"required"`
	Longitude    *float64 `json:"longitude" binding:"required"`
	Speed        *float64 `json:"speed"`
	Heading      *float64 `json:"heading"`
	Altitude     *float64 `json:"altitude"`
	Odometer     *float64 `json:"odometer"`
	FuelLevel    *float64 `json:"fuel_level"`
	EngineStatus string   `json:"engine_status"`
	Timestamp    string   `json:"timestamp"`
}

type positionResponse struct {
	ID                  uint      `json:"id"`
	VehicleID           uint      `json:"vehicle_id"`
	VehicleLicensePlate string    `json:"vehicle_license_plate"`
	Latitude            float64   `json:"latitude"`
	Longitude           float64   `json:"longitude"`
	Speed               float64   `json:"speed"`
	Heading             float64   `json:"heading"`
	Altitude            *float64  `json:"altitude"`
	Odometer            *float64  `json:"odometer"`
	FuelLevel           *float64  `json:"fuel_level"`
	EngineStatus        string    `json:"engine_status"`
	Timestamp           time.Time `json:"timestamp"`
	CreatedAt           time.Time `json:"created_at"`
}

func toPositionResponse(p models.Position) positionResponse {
	return positionResponse{
		ID:                  p.ID,
		VehicleID:           p.VehicleID,
		VehicleLicensePlate: p.Vehicle.LicensePlate,
		Latitude:            p.Latitude,
		Longitude:           p.Longitude,
		Speed:               p.Speed,
		Heading:             p.Heading,
		Altitude:            p.Altitude,
		Odometer:            p.Odometer,
		FuelLevel:           p.FuelLevel,
		EngineStatus:        p.EngineStatus,
		Timestamp:           p.Timestamp,
		CreatedAt:           p.CreatedAt,
	}
}

// parseTimestamp reads an RFC3339 timestamp. Trackers often omit the zone;
// those readings are taken as UTC.
func parseTimestamp(raw string) (time.Time, error) {
	ts := strings.TrimSpace(raw)
	if len(ts) > 6 && !(strings.HasSuffix(ts, "Z") || strings.ContainsAny(ts[len(ts)-6:], "+-")) {
		ts += "Z"
	}
	return time.Parse(time.RFC3339Nano, ts)
}

// companyVehicle loads a vehicle owned by the caller's company.
func companyVehicle(c *gin.Context, vehicleID uint) (models.Vehicle, error) {
	var vehicle models.Vehicle
	err := config.DB.WithContext(c.Request.Context()).
		Where("id = ? AND company_id = ?", vehicleID, c.GetUint("company_id")).
		First(&vehicle).Error
	return vehicle, err
}

// CreatePosition records a GPS fix. Missing speed and heading are derived
// from the vehicle's previous fix.
func CreatePosition(c *gin.Context) {
	var input positionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid position input: " + err.Error()})
		return
	}
	if *input.Latitude < -90 || *input.Latitude > 90 || *input.Longitude < -180 || *input.Longitude > 180 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latitude or longitude out of range"})
		return
	}
	engine := strings.ToLower(strings.TrimSpace(input.EngineStatus))
	switch engine {
	case "":
		engine = models.EngineOff
	case models.EngineOn, models.EngineOff, models.EngineIdle:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid engine_status"})
		return
	}

	vehicle, err := companyVehicle(c, input.VehicleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Vehicle not found"})
			return
		}
		respondError(c, err)
		return
	}

	ts := time.Now().UTC()
	if input.Timestamp != "" {
		if ts, err = parseTimestamp(input.Timestamp); err != nil {
			middleware.Log(c).WithFields(logrus.Fields{
				"raw_timestamp": input.Timestamp,
				"parse_error":   err,
			}).Warn("position rejected: bad timestamp")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timestamp " + strconv.Quote(input.Timestamp)})
			return
		}
	}

	position := models.Position{
		VehicleID:    vehicle.ID,
		Latitude:     *input.Latitude,
		Longitude:    *input.Longitude,
		Altitude:     input.Altitude,
		Odometer:     input.Odometer,
		FuelLevel:    input.FuelLevel,
		EngineStatus: engine,
		Timestamp:    ts,
	}

	var last models.Position
	err = config.DB.WithContext(c.Request.Context()).
		Where("vehicle_id = ? AND timestamp <= ?", vehicle.ID, ts).
		Order("timestamp DESC").First(&last).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, err)
		return
	}

	var distance float64
	if last.ID != 0 {
		distance = calculateDistance(last.Latitude, last.Longitude, position.Latitude, position.Longitude)
	}
	position.Speed = derivedSpeed(input.Speed, last, position)
	position.Heading = derivedHeading(input.Heading, last, position, distance)
	movement := classifyMovement(distance, position.Speed, ts.Sub(last.Timestamp).Seconds(), last)

	if err := config.DB.WithContext(c.Request.Context()).Create(&position).Error; err != nil {
		respondError(c, err)
		return
	}
	position.Vehicle = vehicle

	middleware.Log(c).WithFields(logrus.Fields{
		"vehicle_id": vehicle.ID,
		"distance_m": math.Round(distance),
		"speed_kmh":  position.Speed,
		"movement":   movement,
	}).Debug("position recorded")

	c.JSON(http.StatusCreated, gin.H{
		"position": toPositionResponse(position),
		"movement": movement,
	})
}

// ListPositions returns the company's fixes, newest first, optionally for
// one vehicle.
func ListPositions(c *gin.Context) {
	q := config.DB.WithContext(c.Request.Context()).
		Preload("Vehicle").
		Joins("JOIN vehicles ON vehicles.id = positions.vehicle_id").
		Where("vehicles.company_id = ? AND vehicles.deleted_at IS NULL", c.GetUint("company_id"))
	if raw := c.Query("vehicle"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vehicle"})
			return
		}
		q = q.Where("positions.vehicle_id = ?", id)
	}

	var list []models.Position
	if err := q.Order("positions.timestamp DESC").Find(&list).Error; err != nil {
		respondError(c, err)
		return
	}
	out := make([]positionResponse, len(list))
	for i, p := range list {
		out[i] = toPositionResponse(p)
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}

// LatestPositions returns the most recent fix of each company vehicle.
func LatestPositions(c *gin.Context) {
	var list []models.Position
	err := config.DB.WithContext(c.Request.Context()).
		Preload("Vehicle").
		Joins("JOIN vehicles ON vehicles.id = positions.vehicle_id").
		Where("vehicles.company_id = ? AND vehicles.deleted_at IS NULL", c.GetUint("company_id")).
		Where("positions.timestamp = (SELECT MAX(p2.timestamp) FROM positions p2 WHERE p2.vehicle_id = positions.vehicle_id)").
		Order("positions.vehicle_id, positions.id DESC").
		Find(&list).Error
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]positionResponse, 0, len(list))
	seen := make(map[uint]bool, len(list))
	for _, p := range list {
		if seen[p.VehicleID] {
			continue
		}
		seen[p.VehicleID] = true
		out = append(out, toPositionResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}

const (
	minDistanceForMove = 5.0  // meters
	minTimeDiff        = 10.0 // seconds
	minSpeedForMoving  = 0.5  // km/h
	maxSpeedForStopped = 1.0  // km/h
	periodicInterval   = 60.0 // seconds
)

// classifyMovement labels a fix relative to the previous one.
func classifyMovement(distance, speed, timeDiff float64, last models.Position) string {
	if last.ID == 0 {
		return "initial"
	}
	if distance >= minDistanceForMove {
		return "move"
	}
	wasMoving := last.Speed >= minSpeedForMoving
	if wasMoving && speed < maxSpeedForStopped && timeDiff >= minTimeDiff {
		return "stopped"
	}
	if !wasMoving && speed >= minSpeedForMoving && timeDiff >= minTimeDiff {
		return "started"
	}
	if timeDiff >= periodicInterval {
		return "periodic"
	}
	return "insignificant"
}

func derivedSpeed(reported *float64, last, curr models.Position) float64 {
	if reported != nil {
		return *reported
	}
	if last.ID == 0 {
		return 0
	}
	return calculateSpeed(last, curr) * 3.6
}

func derivedHeading(reported *float64, last, curr models.Position, distance float64) float64 {
	if reported != nil {
		return normalizeHeading(*reported)
	}
	if last.ID == 0 || distance < minDistanceForMove {
		return last.Heading
	}
	return calculateBearing(last.Latitude, last.Longitude, curr.Latitude, curr.Longitude)
}

// normalizeHeading maps any angle in degrees onto [0, 360).
func normalizeHeading(h float64) float64 {
	return math.Mod(math.Mod(h, 360)+360, 360)
}

// calculateDistance is the haversine distance in meters.
func calculateDistance(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000 // Earth's radius in meters.
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return R * c
}

// calculateSpeed estimates the speed in meters per second.
func calculateSpeed(prev, curr models.Position) float64 {
	timeDiff := curr.Timestamp.Sub(prev.Timestamp).Seconds()
	if timeDiff <= 0 {
		return 0.0
	}
	return calculateDistance(prev.Latitude, prev.Longitude, curr.Latitude, curr.Longitude) / timeDiff
}

// calculateBearing is the initial bearing in degrees from north.
func calculateBearing(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)
	deltaLon := toRadians(lon2 - lon1)

	y := math.Sin(deltaLon) * math.Cos(lat2Rad)
	x := math.Cos(lat1Rad)*math.Sin(lat2Rad) -
		math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(deltaLon)

	return math.Mod(toDegrees(math.Atan2(y, x))+360, 360)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
