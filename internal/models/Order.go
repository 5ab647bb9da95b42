package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	OrderPending   = "pending"
	OrderAssigned  = "assigned"
	OrderInTransit = "in_transit"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
)

// Order is a customer shipment. It is complete once it has exactly one
// pickup stop and one delivery stop.
type Order struct {
	gorm.Model
	OrderNumber string `json:"order_number" gorm:"uniqueIndex;size:50;not null"`
	Status      string `json:"status" gorm:"default:pending"`

	CustomerName    string `json:"customer_name"`
	CustomerCompany string `json:"customer_company"`
	CustomerEmail   string `json:"customer_email"`
	CustomerPhone   string `json:"customer_phone"`

	GoodsDescription    string   `json:"goods_description"`
	GoodsWeightKg       *float64 `json:"goods_weight,omitempty"`
	GoodsVolumeM3       *float64 `json:"goods_volume,omitempty"`
	GoodsType           string   `json:"goods_type" gorm:"default:standard"`
	SpecialInstructions string   `json:"special_instructions"`

	RequestedPickupDate   *time.Time `json:"requested_pickup_date,omitempty"`
	RequestedDeliveryDate *time.Time `json:"requested_delivery_date,omitempty"`

	Stops []Stop `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE;" json:"stops,omitempty"`
}

// HasBothStops reports whether the loaded stops contain a pickup and a delivery.
func (o *Order) HasBothStops() bool {
	var pickup, delivery bool
	for _, s := range o.Stops {
		switch s.StopType {
		case StopPickup:
			pickup = true
		case StopDelivery:
			delivery = true
		}
	}
	return pickup && delivery
}
