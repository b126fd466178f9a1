package listeners

import (
	"context"

	"go.uber.org/zap"

	"food-delivery/internal/entities"
	"food-delivery/internal/events"
	"food-delivery/pkg/eventbus"
)

type orderBroadcaster interface {
	PublishOrderUpdate(ctx context.Context, order *entities.Order)
}

// RealtimeListener передаёт изменения заказов в WebSocket-рассылку.
type RealtimeListener struct {
	broadcaster orderBroadcaster
	logger      *zap.Logger
}

func NewRealtimeListener(broadcaster orderBroadcaster, logger *zap.Logger) *RealtimeListener {
	return &RealtimeListener{broadcaster: broadcaster, logger: logger}
}

func (l *RealtimeListener) Register(bus *eventbus.Bus) {
	bus.Subscribe(events.OrderStatusChangedEventName, l.handleOrderStatusChanged)
	l.logger.Info("RealtimeListener подписан на событие", zap.String("event", events.OrderStatusChangedEventName))
}

func (l *RealtimeListener) handleOrderStatusChanged(ctx context.Context, event eventbus.Event) error {
	e, ok := event.(events.OrderStatusChangedEvent)
	if !ok || e.Order == nil {
		return nil
	}
	l.broadcaster.PublishOrderUpdate(ctx, e.Order)
	return nil
}
