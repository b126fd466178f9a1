package entities

import (
	"errors"
	"math"
	"time"

	"github.com/aarondl/null/v8"
)

type LineItem struct {
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// ErrAmountOverflow - сумма заказа не помещается в int64 или отрицательна.
var ErrAmountOverflow = errors.New("order amount is out of range")

func (li LineItem) Subtotal() (int64, error) {
	if li.UnitPrice < 0 || li.Quantity < 0 {
		return 0, ErrAmountOverflow
	}
	if li.Quantity > 0 && li.UnitPrice > math.MaxInt64/int64(li.Quantity) {
		return 0, ErrAmountOverflow
	}
	return li.UnitPrice * int64(li.Quantity), nil
}

// Address - снимок адреса на момент оформления заказа.
type Address struct {
	Label        string   `json:"label,omitempty"`
	Street       string   `json:"street"`
	City         string   `json:"city"`
	PostalCode   string   `json:"postal_code,omitempty"`
	Apartment    string   `json:"apartment,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
}

type StatusHistoryEntry struct {
	Status    OrderStatus `json:"status"`
	At        time.Time   `json:"at"`
	ActorRole ActorRole   `json:"actor_role"`
	ActorID   string      `json:"actor_id"`
}

type Order struct {
	ID              string               `json:"id"`
	CustomerID      string               `json:"customer_id"`
	RestaurantID    string               `json:"restaurant_id"`
	AgentID         null.String          `json:"agent_id"`
	LineItems       []LineItem           `json:"line_items"`
	TotalAmount     int64                `json:"total_amount"`
	DeliveryAddress Address              `json:"delivery_address"`
	Status          OrderStatus          `json:"status"`
	StatusHistory   []StatusHistoryEntry `json:"status_history"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// Version растёт на единицу с каждым применённым переходом.
func (o *Order) Version() int {
	return len(o.StatusHistory)
}

func (o *Order) LastHistoryEntry() (StatusHistoryEntry, bool) {
	if len(o.StatusHistory) == 0 {
		return StatusHistoryEntry{}, false
	}
	return o.StatusHistory[len(o.StatusHistory)-1], true
}

// PreviousStatus returns the status the order held before its latest transition.
func (o *Order) PreviousStatus() (OrderStatus, bool) {
	if len(o.StatusHistory) < 2 {
		return "", false
	}
	return o.StatusHistory[len(o.StatusHistory)-2].Status, true
}

func (o *Order) IsAssignedTo(agentID string) bool {
	return o.AgentID.Valid && agentID != "" && o.AgentID.String == agentID
}

// Clone returns a deep copy safe to hand to another goroutine.
func (o *Order) Clone() *Order {
	c := *o
	c.LineItems = append([]LineItem(nil), o.LineItems...)
	c.StatusHistory = append([]StatusHistoryEntry(nil), o.StatusHistory...)
	if o.DeliveryAddress.Latitude != nil {
		lat := *o.DeliveryAddress.Latitude
		c.DeliveryAddress.Latitude = &lat
	}
	if o.DeliveryAddress.Longitude != nil {
		lng := *o.DeliveryAddress.Longitude
		c.DeliveryAddress.Longitude = &lng
	}
	return &c
}

func CalculateTotal(items []LineItem) (int64, error) {
	var total int64
	for _, li := range items {
		sub, err := li.Subtotal()
		if err != nil {
			return 0, err
		}
		if total > math.MaxInt64-sub {
			return 0, ErrAmountOverflow
		}
		total += sub
	}
	return total, nil
}
