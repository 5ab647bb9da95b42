package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"dispatch_tracker/internal/config"
	"dispatch_tracker/internal/models"
)

type stopInput struct {
	OrderID      *uint    `json:"order_id"`
	Name         string   `json:"name" binding:"required"`
	Address      string   `json:"address"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	StopType     string   `json:"stop_type" binding:"required"`
	ContactName  string   `json:"contact_name"`
	ContactPhone string   `json:"contact_phone"`
	Notes        string   `json:"notes"`
}

// CreateStop adds a stop, standalone or attached to an order. An order
// holds at most one stop of each type.
func CreateStop(c *gin.Context) {
	var input stopInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid stop input: " + err.Error()})
		return
	}
	stopType, err := models.ParseStopType(input.StopType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db := config.DB.WithContext(c.Request.Context())
	if input.OrderID != nil {
		var order models.Order
		err := db.Preload("Stops").First(&order, *input.OrderID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Order not found"})
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
		for _, s := range order.Stops {
			if s.StopType == stopType {
				c.JSON(http.StatusConflict, gin.H{"error": "Order " + order.OrderNumber + " already has a " + string(stopType) + " stop"})
				return
			}
		}
	}

	stop := models.Stop{
		OrderID:      input.OrderID,
		Name:         input.Name,
		Address:      input.Address,
		Latitude:     input.Latitude,
		Longitude:    input.Longitude,
		StopType:     stopType,
		ContactName:  input.ContactName,
		ContactPhone: input.ContactPhone,
		Notes:        input.Notes,
	}
	if err := db.Omit("Order").Create(&stop).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"stop": stop})
}

// ListStops lists stops, filtered by ?order= or ?type=.
func ListStops(c *gin.Context) {
	q := config.DB.WithContext(c.Request.Context()).Order("id")
	if raw := c.Query("order"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order"})
			return
		}
		q = q.Where("order_id = ?", id)
	}
	if raw := c.Query("type"); raw != "" {
		t, err := models.ParseStopType(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		q = q.Where("stop_type = ?", t)
	}

	var stops []models.Stop
	if err := q.Find(&stops).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": stops})
}
