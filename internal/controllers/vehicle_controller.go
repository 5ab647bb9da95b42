package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"dispatch_tracker/internal/config"
	"dispatch_tracker/internal/models"
	"dispatch_tracker/internal/store"
)

type vehicleInput struct {
	LicensePlate *string  `json:"license_plate"`
	Make         *string  `json:"make"`
	Model        *string  `json:"model"`
	Year         *int     `json:"year"`
	Capacity     *float64 `json:"capacity"`
	DriverName   *string  `json:"driver_name"`
	DriverEmail  *string  `json:"driver_email" binding:"omitempty,email"`
	DriverPhone  *string  `json:"driver_phone"`
	IsActive     *bool    `json:"is_active"`
}

func (in vehicleInput) apply(v *models.Vehicle) {
	if in.LicensePlate != nil {
		v.LicensePlate = strings.ToUpper(strings.TrimSpace(*in.LicensePlate))
	}
	if in.Make != nil {
		v.Make = *in.Make
	}
	if in.Model != nil {
		v.VehicleModel = *in.Model
	}
	if in.Year != nil {
		v.Year = *in.Year
	}
	if in.Capacity != nil {
		v.CapacityTons = *in.Capacity
	}
	if in.DriverName != nil {
		v.DriverName = *in.DriverName
	}
	if in.DriverEmail != nil {
		v.DriverEmail = *in.DriverEmail
	}
	if in.DriverPhone != nil {
		v.DriverPhone = *in.DriverPhone
	}
	if in.IsActive != nil {
		v.IsActive = *in.IsActive
	}
}

func saveVehicle(c *gin.Context, db *gorm.DB, vehicle *models.Vehicle, status int) {
	if vehicle.LicensePlate == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "license_plate is required"})
		return
	}
	if vehicle.CapacityTons < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "capacity cannot be negative"})
		return
	}
	if err := db.Save(vehicle).Error; err != nil {
		if store.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "license plate already registered"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(status, gin.H{"vehicle": vehicle})
}

// CreateVehicle registers a vehicle for the caller's company; new vehicles are active.
func CreateVehicle(c *gin.Context) {
	var input vehicleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle input: " + err.Error()})
		return
	}
	companyID := c.GetUint("company_id")
	if companyID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User has no associated company"})
		return
	}

	vehicle := models.Vehicle{CompanyID: companyID, IsActive: true}
	input.apply(&vehicle)
	saveVehicle(c, config.DB.WithContext(c.Request.Context()), &vehicle, http.StatusCreated)
}

func GetMyVehicles(c *gin.Context) {
	q := config.DB.WithContext(c.Request.Context()).Where("company_id = ?", c.GetUint("company_id"))
	if c.Query("active") == "true" {
		q = q.Where("is_active = ?", true)
	}
	var vehicles []models.Vehicle
	if err := q.Order("license_plate").Find(&vehicles).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error fetching vehicles"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"vehicles": vehicles})
}

// findCompanyVehicle writes a 404 when the vehicle is missing or belongs
// to another company.
func findCompanyVehicle(c *gin.Context) (models.Vehicle, bool) {
	id, ok := idParam(c, "id")
	if !ok {
		return models.Vehicle{}, false
	}
	vehicle, err := companyVehicle(c, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
		return vehicle, false
	}
	if err != nil {
		respondError(c, err)
		return vehicle, false
	}
	return vehicle, true
}

func GetVehicle(c *gin.Context) {
	vehicle, ok := findCompanyVehicle(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"vehicle": vehicle})
}

func UpdateVehicle(c *gin.Context) {
	vehicle, ok := findCompanyVehicle(c)
	if !ok {
		return
	}
	var input vehicleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid update"})
		return
	}
	input.apply(&vehicle)
	saveVehicle(c, config.DB.WithContext(c.Request.Context()), &vehicle, http.StatusOK)
}

func DeleteVehicle(c *gin.Context) {
	vehicle, ok := findCompanyVehicle(c)
	if !ok {
		return
	}
	if err := config.DB.WithContext(c.Request.Context()).Delete(&vehicle).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Vehicle deleted"})
}
