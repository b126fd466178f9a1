package listeners

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"food-delivery/internal/entities"
	"food-delivery/internal/events"
	"food-delivery/pkg/eventbus"
)

type messagePublisher interface {
	Publish(ctx context.Context, msg interface{}) error
}

// NotificationMessage уходит во внешний сервис уведомлений (e-mail, push).
type NotificationMessage struct {
	OrderID        string    `json:"order_id"`
	CustomerID     string    `json:"customer_id"`
	RestaurantID   string    `json:"restaurant_id"`
	AgentID        *string   `json:"agent_id"`
	Status         string    `json:"status"`
	PreviousStatus *string   `json:"previous_status"`
	ActorRole      string    `json:"actor_role"`
	ChangedAt      time.Time `json:"changed_at"`
}

func NewNotificationMessage(order *entities.Order) NotificationMessage {
	msg := NotificationMessage{
		OrderID:      order.ID,
		CustomerID:   order.CustomerID,
		RestaurantID: order.RestaurantID,
		AgentID:      order.AgentID.Ptr(),
		Status:       order.Status.String(),
		ChangedAt:    order.UpdatedAt,
	}
	if prev, ok := order.PreviousStatus(); ok {
		s := prev.String()
		msg.PreviousStatus = &s
	}
	if last, ok := order.LastHistoryEntry(); ok {
		msg.ActorRole = string(last.ActorRole)
		msg.ChangedAt = last.At
	}
	return msg
}

type NotificationListener struct {
	publisher messagePublisher
	logger    *zap.Logger
}

func NewNotificationListener(publisher messagePublisher, logger *zap.Logger) *NotificationListener {
	return &NotificationListener{publisher: publisher, logger: logger}
}

func (l *NotificationListener) Register(bus *eventbus.Bus) {
	bus.Subscribe(events.OrderStatusChangedEventName, l.handleOrderStatusChanged)
	l.logger.Info("NotificationListener подписан на событие", zap.String("event", events.OrderStatusChangedEventName))
}

func (l *NotificationListener) handleOrderStatusChanged(ctx context.Context, event eventbus.Event) error {
	e, ok := event.(events.OrderStatusChangedEvent)
	if !ok || e.Order == nil {
		return nil
	}

	msg := NewNotificationMessage(e.Order)
	if err := l.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("не удалось отправить уведомление по заказу %s: %w", e.Order.ID, err)
	}
	l.logger.Debug("Уведомление отправлено",
		zap.String("order_id", msg.OrderID),
		zap.String("status", msg.Status),
	)
	return nil
}
