package models

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

type StopType string

const (
	StopPickup   StopType = "pickup"
	StopDelivery StopType = "delivery"
)

// Opposite returns the type a stop of this type is paired with.
func (t StopType) Opposite() StopType {
	if t == StopPickup {
		return StopDelivery
	}
	return StopPickup
}

// ParseStopType normalizes user input. "loading" and "unloading" are the
// deprecated names from the first schema and map onto pickup and delivery.
func ParseStopType(raw string) (StopType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pickup", "loading":
		return StopPickup, nil
	case "delivery", "unloading":
		return StopDelivery, nil
	default:
		return "", fmt.Errorf("invalid stop_type %q", raw)
	}
}

// Stop is a physical location visited for an order (or standalone when OrderID is nil).
type Stop struct {
	gorm.Model
	OrderID *uint  `json:"order_id" gorm:"index"`
	Order   *Order `gorm:"foreignKey:OrderID" json:"-"`

	Name         string   `json:"name" binding:"required"`
	Address      string   `json:"address"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	StopType     StopType `json:"stop_type" gorm:"size:10;not null"`
	ContactName  string   `json:"contact_name"`
	ContactPhone string   `json:"contact_phone"`
	Notes        string   `json:"notes"`
}
