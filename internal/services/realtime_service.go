package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"food-delivery/internal/authz"
	"food-delivery/internal/entities"
	"food-delivery/internal/repositories"
	apperrors "food-delivery/pkg/errors"
	"food-delivery/pkg/websocket"
)

type RealtimeServiceInterface interface {
	Connect(sub websocket.Subscriber)
	SubscribeToOrder(ctx context.Context, actor entities.Actor, connID, orderID string) error
	SubscribeToAgentPool(actor entities.Actor, connID string) error
	Unsubscribe(connID string, interest websocket.Interest)
	UnsubscribeAll(connID string)
}

// RealtimeService проверяет права на подписку и ведёт Registry.
type RealtimeService struct {
	registry  *websocket.Registry
	orderRepo repositories.OrderRepositoryInterface
	logger    *zap.Logger
}

func NewRealtimeService(registry *websocket.Registry, orderRepo repositories.OrderRepositoryInterface, logger *zap.Logger) RealtimeServiceInterface {
	return &RealtimeService{registry: registry, orderRepo: orderRepo, logger: logger}
}

func (s *RealtimeService) Connect(sub websocket.Subscriber) {
	s.registry.Register(sub)
}

func (s *RealtimeService) SubscribeToOrder(ctx context.Context, actor entities.Actor, connID, orderID string) error {
	if orderID == "" {
		return apperrors.NewInvalidInputError("order_id is required")
	}
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if !authz.CanViewOrder(actor, order) {
		return apperrors.ErrForbidden
	}
	if err := s.registry.Subscribe(connID, websocket.OrderInterest(order.ID)); err != nil {
		return subscribeError(err)
	}
	s.logger.Debug("Подписка на заказ", zap.String("conn_id", connID), zap.String("order_id", order.ID))
	return nil
}

func (s *RealtimeService) SubscribeToAgentPool(actor entities.Actor, connID string) error {
	if !authz.CanJoinAgentPool(actor) {
		return apperrors.ErrForbidden
	}
	if err := s.registry.Subscribe(connID, websocket.AgentPoolInterest); err != nil {
		return subscribeError(err)
	}
	s.logger.Debug("Подписка на пул курьеров", zap.String("conn_id", connID), zap.String("agent_id", actor.ID))
	return nil
}

func (s *RealtimeService) Unsubscribe(connID string, interest websocket.Interest) {
	s.registry.Unsubscribe(connID, interest)
}

func (s *RealtimeService) UnsubscribeAll(connID string) {
	s.registry.UnsubscribeAll(connID)
}

func subscribeError(err error) error {
	if errors.Is(err, websocket.ErrUnknownConnection) {
		return fmt.Errorf("%w: %w", apperrors.ErrBadRequest, err)
	}
	return err
}

type actorSubscriber interface {
	Actor() entities.Actor
}

// CanReceiveOrder повторяет проверку SubscribeToOrder для каждого обновления:
// курьер, проигравший захват, перестаёт видеть заказ. Подписчик без
// пользователя обновлений не получает.
func CanReceiveOrder(sub websocket.Subscriber, order *entities.Order) bool {
	owner, ok := sub.(actorSubscriber)
	if !ok {
		return false
	}
	return authz.CanViewOrder(owner.Actor(), order)
}
