package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"dispatch_tracker/internal/config"
	"dispatch_tracker/internal/middleware"
	"dispatch_tracker/internal/models"
	"dispatch_tracker/internal/orders"
)

type orderResponse struct {
	models.Order
	PickupStop   *models.Stop `json:"pickup_stop"`
	DeliveryStop *models.Stop `json:"delivery_stop"`
	Complete     bool         `json:"complete"`
}

func toOrderResponse(o models.Order) orderResponse {
	resp := orderResponse{Order: o, Complete: o.HasBothStops()}
	for i := range o.Stops {
		s := &o.Stops[i]
		switch {
		case s.StopType == models.StopPickup && resp.PickupStop == nil:
			resp.PickupStop = s
		case s.StopType == models.StopDelivery && resp.DeliveryStop == nil:
			resp.DeliveryStop = s
		}
	}
	resp.Order.Stops = nil
	return resp
}

func toOrderResponses(list []models.Order) []orderResponse {
	out := make([]orderResponse, len(list))
	for i, o := range list {
		out[i] = toOrderResponse(o)
	}
	return out
}

// CreateOrder stores an order with its optional pickup and delivery stops.
func CreateOrder(c *gin.Context) {
	var input orders.CreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order input: " + err.Error()})
		return
	}
	order, err := orders.Create(c.Request.Context(), config.DB, input, time.Now())
	if err != nil {
		respondError(c, err)
		return
	}
	middleware.Log(c).WithFields(logrus.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"stops":        len(order.Stops),
	}).Info("order created")
	c.JSON(http.StatusCreated, toOrderResponse(order))
}

// ListOrders lists orders. complete=true keeps orders with both stop types;
// available_for_trip=true keeps pending orders not yet on any trip.
func ListOrders(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		list []models.Order
		err  error
	)
	switch {
	case c.Query("available_for_trip") == "true":
		list, err = orders.AvailableForTrip(ctx, config.DB)
	case c.Query("complete") == "true":
		list, err = orders.Complete(ctx, config.DB)
	default:
		q := config.DB.WithContext(ctx).Preload("Stops").Order("id")
		if status := c.Query("status"); status != "" {
			q = q.Where("status = ?", status)
		}
		err = q.Find(&list).Error
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": toOrderResponses(list)})
}

func findOrder(c *gin.Context) (models.Order, bool) {
	id, ok := idParam(c, "id")
	if !ok {
		return models.Order{}, false
	}
	var order models.Order
	err := config.DB.WithContext(c.Request.Context()).Preload("Stops").First(&order, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return order, false
	}
	if err != nil {
		respondError(c, err)
		return order, false
	}
	return order, true
}

func GetOrder(c *gin.Context) {
	order, ok := findOrder(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

var orderStatuses = map[string]bool{
	models.OrderPending:   true,
	models.OrderAssigned:  true,
	models.OrderInTransit: true,
	models.OrderDelivered: true,
	models.OrderCancelled: true,
}

// UpdateOrderStatus moves an order to another lifecycle status.
func UpdateOrderStatus(c *gin.Context) {
	order, ok := findOrder(c)
	if !ok {
		return
	}
	var input struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !orderStatuses[input.Status] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	if err := config.DB.WithContext(c.Request.Context()).Model(&order).Update("status", input.Status).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

// DeleteOrder removes an order and its stops. Orders with a stop on a trip
// are kept so no trip is left holding half an order.
func DeleteOrder(c *gin.Context) {
	order, ok := findOrder(c)
	if !ok {
		return
	}
	db := config.DB.WithContext(c.Request.Context())
	var onTrips int64
	err := db.Model(&models.TripStop{}).
		Joins("JOIN stops ON stops.id = trip_stops.stop_id").
		Where("stops.order_id = ?", order.ID).
		Count(&onTrips).Error
	if err != nil {
		respondError(c, err)
		return
	}
	if onTrips > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Order " + order.OrderNumber + " has stops on a trip. Remove them from the trip first."})
		return
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", order.ID).Delete(&models.Stop{}).Error; err != nil {
			return err
		}
		return tx.Delete(&order).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
