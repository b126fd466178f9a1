package events

import (
	"context"

	"food-delivery/internal/entities"
	"food-delivery/pkg/eventbus"
)

const OrderStatusChangedEventName = "order.status.changed"

// OrderStatusChangedEvent возникает после каждой записи статуса заказа,
// включая создание заказа в статусе PLACED.
type OrderStatusChangedEvent struct {
	Order *entities.Order
}

func (e OrderStatusChangedEvent) Name() string {
	return OrderStatusChangedEventName
}

// BusPublisher отдаёт обновления заказов в шину событий.
type BusPublisher struct {
	bus *eventbus.Bus
}

func NewBusPublisher(bus *eventbus.Bus) *BusPublisher {
	return &BusPublisher{bus: bus}
}

func (p *BusPublisher) PublishOrderUpdate(ctx context.Context, order *entities.Order) {
	if order == nil {
		return
	}
	p.bus.Publish(ctx, OrderStatusChangedEvent{Order: order.Clone()})
}
