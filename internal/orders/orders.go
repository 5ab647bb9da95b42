// Package orders creates customer orders and their pickup/delivery stops.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"dispatch_tracker/internal/models"
	"dispatch_tracker/internal/planning"
	"dispatch_tracker/internal/store"
)

const numberAttempts = 3

// NextNumber returns the next ORD-<year>-NNNN number for the year of now.
// Soft-deleted orders still count so numbers are never reused.
func NextNumber(tx *gorm.DB, now time.Time) (string, error) {
	prefix := fmt.Sprintf("ORD-%d-", now.Year())

	var last models.Order
	err := tx.Unscoped().
		Where("order_number LIKE ?", prefix+"%").
		Order("LENGTH(order_number) DESC").
		Order("order_number DESC").
		First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return prefix + "0001", nil
	}
	if err != nil {
		return "", fmt.Errorf("orders: read last number: %w", err)
	}

	n, err := strconv.Atoi(strings.TrimPrefix(last.OrderNumber, prefix))
	if err != nil {
		return "", fmt.Errorf("orders: malformed order number %q: %w", last.OrderNumber, err)
	}
	return fmt.Sprintf("%s%04d", prefix, n+1), nil
}

type StopInput struct {
	Name         string   `json:"name" binding:"required"`
	Address      string   `json:"address"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	StopType     string   `json:"stop_type"`
	ContactName  string   `json:"contact_name"`
	ContactPhone string   `json:"contact_phone"`
	Notes        string   `json:"notes"`
}

type CreateInput struct {
	CustomerName          string     `json:"customer_name" binding:"required"`
	CustomerCompany       string     `json:"customer_company"`
	CustomerEmail         string     `json:"customer_email"`
	CustomerPhone         string     `json:"customer_phone"`
	GoodsDescription      string     `json:"goods_description" binding:"required"`
	GoodsWeightKg         *float64   `json:"goods_weight"`
	GoodsVolumeM3         *float64   `json:"goods_volume"`
	GoodsType             string     `json:"goods_type"`
	SpecialInstructions   string     `json:"special_instructions"`
	RequestedPickupDate   *time.Time `json:"requested_pickup_date"`
	RequestedDeliveryDate *time.Time `json:"requested_delivery_date"`
	PickupStop            *StopInput `json:"pickup_stop"`
	DeliveryStop          *StopInput `json:"delivery_stop"`
}

func buildStop(in *StopInput, want models.StopType) (models.Stop, error) {
	t := want
	if in.StopType != "" {
		parsed, err := models.ParseStopType(in.StopType)
		if err != nil {
			return models.Stop{}, &planning.MalformedInputError{Field: string(want) + "_stop.stop_type", Reason: err.Error()}
		}
		if parsed != want {
			return models.Stop{}, &planning.MalformedInputError{
				Field:  string(want) + "_stop.stop_type",
				Reason: fmt.Sprintf("must be %s, got %s", want, parsed),
			}
		}
		t = parsed
	}
	return models.Stop{
		Name:         in.Name,
		Address:      in.Address,
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		StopType:     t,
		ContactName:  in.ContactName,
		ContactPhone: in.ContactPhone,
		Notes:        in.Notes,
	}, nil
}

// Create stores the order and any stops given with it in one transaction.
// A number taken concurrently by another request is retried.
func Create(ctx context.Context, db *gorm.DB, in CreateInput, now time.Time) (models.Order, error) {
	var stops []models.Stop
	if in.PickupStop != nil {
		s, err := buildStop(in.PickupStop, models.StopPickup)
		if err != nil {
			return models.Order{}, err
		}
		stops = append(stops, s)
	}
	if in.DeliveryStop != nil {
		s, err := buildStop(in.DeliveryStop, models.StopDelivery)
		if err != nil {
			return models.Order{}, err
		}
		stops = append(stops, s)
	}

	goodsType := in.GoodsType
	if goodsType == "" {
		goodsType = "standard"
	}

	var (
		order models.Order
		err   error
	)
	for attempt := 1; attempt <= numberAttempts; attempt++ {
		order = models.Order{
			Status:                models.OrderPending,
			CustomerName:          in.CustomerName,
			CustomerCompany:       in.CustomerCompany,
			CustomerEmail:         in.CustomerEmail,
			CustomerPhone:         in.CustomerPhone,
			GoodsDescription:      in.GoodsDescription,
			GoodsWeightKg:         in.GoodsWeightKg,
			GoodsVolumeM3:         in.GoodsVolumeM3,
			GoodsType:             goodsType,
			SpecialInstructions:   in.SpecialInstructions,
			RequestedPickupDate:   in.RequestedPickupDate,
			RequestedDeliveryDate: in.RequestedDeliveryDate,
			Stops:                 append([]models.Stop(nil), stops...),
		}
		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			number, err := NextNumber(tx, now)
			if err != nil {
				return err
			}
			order.OrderNumber = number
			return tx.Create(&order).Error
		})
		if err == nil || !store.IsUniqueViolation(err) {
			break
		}
		logrus.WithField("attempt", attempt).Warn("orders: order number collision, retrying")
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("orders: create: %w", err)
	}
	return order, nil
}

// Complete lists orders that have both a pickup and a delivery stop.
func Complete(ctx context.Context, db *gorm.DB) ([]models.Order, error) {
	var all []models.Order
	if err := db.WithContext(ctx).Preload("Stops").Order("id").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("orders: list: %w", err)
	}
	var out []models.Order
	for _, o := range all {
		if o.HasBothStops() {
			out = append(out, o)
		}
	}
	return out, nil
}

// AvailableForTrip lists pending orders none of whose stops is on a trip yet.
func AvailableForTrip(ctx context.Context, db *gorm.DB) ([]models.Order, error) {
	assigned := db.Model(&models.TripStop{}).Select("stop_id")
	busy := db.Model(&models.Stop{}).Select("order_id").Where("id IN (?) AND order_id IS NOT NULL", assigned)

	var out []models.Order
	err := db.WithContext(ctx).Preload("Stops").
		Where("status = ?", models.OrderPending).
		Where("id NOT IN (?)", busy).
		Order("id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("orders: list available: %w", err)
	}
	return out, nil
}
