package dto

import (
	"time"

	"food-delivery/internal/entities"
)

type LineItemDTO struct {
	Name      string `json:"name" validate:"required,not_blank,max=255"`
	UnitPrice int64  `json:"unit_price" validate:"gte=0,lte=100000000"`
	Quantity  int    `json:"quantity" validate:"required,gte=1,lte=100"`
}

type AddressDTO struct {
	Label        string   `json:"label,omitempty" validate:"omitempty,max=64"`
	Street       string   `json:"street" validate:"required,min=3,max=255"`
	City         string   `json:"city" validate:"required,min=2,max=128"`
	PostalCode   string   `json:"postal_code,omitempty" validate:"omitempty,postal_code"`
	Apartment    string   `json:"apartment,omitempty" validate:"omitempty,max=32"`
	Instructions string   `json:"instructions,omitempty" validate:"omitempty,max=500"`
	Latitude     *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude    *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
}

type CreateOrderDTO struct {
	RestaurantID    string        `json:"restaurant_id" validate:"required,not_blank,max=64"`
	LineItems       []LineItemDTO `json:"line_items" validate:"required,min=1,max=50,dive"`
	DeliveryAddress AddressDTO    `json:"delivery_address" validate:"required"`
}

// ChangeStatusDTO - тело запроса администратора на принудительную смену статуса.
type ChangeStatusDTO struct {
	Status  string  `json:"status" validate:"required,order_status"`
	AgentID *string `json:"agent_id,omitempty" validate:"omitempty,min=1,max=64"`
}

type StatusHistoryDTO struct {
	Status    string    `json:"status"`
	At        time.Time `json:"at"`
	ActorRole string    `json:"actor_role"`
	ActorID   string    `json:"actor_id"`
}

type OrderDTO struct {
	ID              string             `json:"id"`
	CustomerID      string             `json:"customer_id"`
	RestaurantID    string             `json:"restaurant_id"`
	AgentID         *string            `json:"agent_id"`
	LineItems       []LineItemDTO      `json:"line_items"`
	TotalAmount     int64              `json:"total_amount"`
	DeliveryAddress AddressDTO         `json:"delivery_address"`
	Status          string             `json:"status"`
	NextStatuses    []string           `json:"next_statuses"`
	StatusHistory   []StatusHistoryDTO `json:"status_history"`
	Version         int                `json:"version"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func (d CreateOrderDTO) ToLineItems() []entities.LineItem {
	items := make([]entities.LineItem, 0, len(d.LineItems))
	for _, li := range d.LineItems {
		items = append(items, entities.LineItem{Name: li.Name, UnitPrice: li.UnitPrice, Quantity: li.Quantity})
	}
	return items
}

func (a AddressDTO) ToEntity() entities.Address {
	return entities.Address{
		Label:        a.Label,
		Street:       a.Street,
		City:         a.City,
		PostalCode:   a.PostalCode,
		Apartment:    a.Apartment,
		Instructions: a.Instructions,
		Latitude:     a.Latitude,
		Longitude:    a.Longitude,
	}
}

func NewOrderDTO(o *entities.Order) *OrderDTO {
	if o == nil {
		return nil
	}
	res := &OrderDTO{
		ID:           o.ID,
		CustomerID:   o.CustomerID,
		RestaurantID: o.RestaurantID,
		AgentID:      o.AgentID.Ptr(),
		TotalAmount:  o.TotalAmount,
		DeliveryAddress: AddressDTO{
			Label:        o.DeliveryAddress.Label,
			Street:       o.DeliveryAddress.Street,
			City:         o.DeliveryAddress.City,
			PostalCode:   o.DeliveryAddress.PostalCode,
			Apartment:    o.DeliveryAddress.Apartment,
			Instructions: o.DeliveryAddress.Instructions,
			Latitude:     o.DeliveryAddress.Latitude,
			Longitude:    o.DeliveryAddress.Longitude,
		},
		Status:        o.Status.String(),
		NextStatuses:  make([]string, 0, 2),
		LineItems:     make([]LineItemDTO, 0, len(o.LineItems)),
		StatusHistory: make([]StatusHistoryDTO, 0, len(o.StatusHistory)),
		Version:       o.Version(),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	for _, s := range entities.NextStatuses(o.Status) {
		res.NextStatuses = append(res.NextStatuses, s.String())
	}
	for _, li := range o.LineItems {
		res.LineItems = append(res.LineItems, LineItemDTO{Name: li.Name, UnitPrice: li.UnitPrice, Quantity: li.Quantity})
	}
	for _, h := range o.StatusHistory {
		res.StatusHistory = append(res.StatusHistory, StatusHistoryDTO{
			Status:    h.Status.String(),
			At:        h.At,
			ActorRole: string(h.ActorRole),
			ActorID:   h.ActorID,
		})
	}
	return res
}

func NewOrderDTOList(orders []*entities.Order) []OrderDTO {
	list := make([]OrderDTO, 0, len(orders))
	for _, o := range orders {
		list = append(list, *NewOrderDTO(o))
	}
	return list
}
