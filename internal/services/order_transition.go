package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"food-delivery/internal/authz"
	"food-delivery/internal/entities"
	"food-delivery/internal/repositories"
	apperrors "food-delivery/pkg/errors"
)

// OrderUpdatePublisher получает заказ после каждой успешной записи статуса.
// Реализация не должна блокироваться.
type OrderUpdatePublisher interface {
	PublishOrderUpdate(ctx context.Context, order *entities.Order)
}

type TransitionRequest struct {
	OrderID string
	Actor   entities.Actor
	Target  entities.OrderStatus
	// AgentID - курьер, за которого администратор выполняет захват заказа.
	AgentID string
}

type TransitionEngineInterface interface {
	RequestTransition(ctx context.Context, req TransitionRequest) (*entities.Order, error)
}

// TransitionEngine - единственное место, где меняется статус заказа.
type TransitionEngine struct {
	orderRepo repositories.OrderRepositoryInterface
	publisher OrderUpdatePublisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewTransitionEngine(
	orderRepo repositories.OrderRepositoryInterface,
	publisher OrderUpdatePublisher,
	logger *zap.Logger,
) *TransitionEngine {
	return &TransitionEngine{
		orderRepo: orderRepo,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// RequestTransition проверяет запрос в порядке: заказ существует, участник
// имеет право, переход есть в графе, захват не проигран. Повторный запрос
// уже применённого перехода возвращает ErrInvalidTransition.
func (e *TransitionEngine) RequestTransition(ctx context.Context, req TransitionRequest) (*entities.Order, error) {
	if !req.Target.IsValid() {
		return nil, apperrors.NewInvalidInputError("unknown target status")
	}
	if !req.Actor.Role.IsValid() || req.Actor.ID == "" {
		return nil, apperrors.ErrUnauthorized
	}

	order, err := e.orderRepo.FindByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	if !authz.CanTransition(req.Actor, order, req.Target) {
		e.logger.Warn("Переход запрещён",
			zap.String("order_id", order.ID),
			zap.String("role", string(req.Actor.Role)),
			zap.String("actor_id", req.Actor.ID),
			zap.String("from", order.Status.String()),
			zap.String("to", req.Target.String()),
		)
		return nil, apperrors.ErrForbidden
	}

	claimant, err := claimantFor(req)
	if err != nil {
		return nil, err
	}
	if claimant != "" && claimedByOther(order, claimant) {
		return nil, apperrors.ErrAlreadyClaimed
	}

	if !entities.CanTransition(order.Status, req.Target) {
		return nil, apperrors.ErrInvalidTransition
	}

	cmd := repositories.TransitionCommand{
		OrderID:        order.ID,
		ExpectedStatus: order.Status,
		Target:         req.Target,
		AssignAgentID:  claimant,
		Entry: entities.StatusHistoryEntry{
			Status:    req.Target,
			At:        e.nextTimestamp(order),
			ActorRole: req.Actor.Role,
			ActorID:   req.Actor.ID,
		},
	}

	updated, err := e.orderRepo.ApplyTransition(ctx, cmd)
	if err != nil {
		if errors.Is(err, repositories.ErrStaleOrder) {
			return nil, e.classifyStale(ctx, order.ID, req.Target, claimant)
		}
		e.logger.Error("Не удалось записать переход", zap.String("order_id", order.ID), zap.Error(err))
		return nil, err
	}

	e.logger.Info("Статус заказа изменён",
		zap.String("order_id", updated.ID),
		zap.String("from", order.Status.String()),
		zap.String("to", updated.Status.String()),
		zap.String("role", string(req.Actor.Role)),
		zap.String("actor_id", req.Actor.ID),
	)

	if e.publisher != nil {
		e.publisher.PublishOrderUpdate(ctx, updated)
	}
	return updated, nil
}

// claimantFor returns the agent that a claim assigns, or "" for other targets.
func claimantFor(req TransitionRequest) (string, error) {
	if req.Target != entities.StatusAgentAssigned {
		return "", nil
	}
	if req.Actor.Role == entities.RoleAgent {
		return req.Actor.ID, nil
	}
	if req.AgentID == "" {
		return "", apperrors.NewInvalidInputError("agent_id is required to assign an agent")
	}
	return req.AgentID, nil
}

// Записи истории строго упорядочены по времени даже при сбитых часах.
func (e *TransitionEngine) nextTimestamp(order *entities.Order) time.Time {
	now := e.now().UTC()
	if last, ok := order.LastHistoryEntry(); ok && !now.After(last.At) {
		return last.At.Add(time.Microsecond)
	}
	return now
}

// classifyStale перечитывает заказ после проигранного условного обновления.
func (e *TransitionEngine) classifyStale(ctx context.Context, orderID string, target entities.OrderStatus, claimant string) error {
	current, err := e.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if target == entities.StatusAgentAssigned && claimedByOther(current, claimant) {
		e.logger.Info("Заказ уже захвачен другим курьером",
			zap.String("order_id", orderID),
			zap.String("agent_id", claimant),
		)
		return apperrors.ErrAlreadyClaimed
	}
	return apperrors.ErrInvalidTransition
}

// claimedByOther: заказ закреплён за другим курьером и ещё не завершён.
// Захват завершённого заказа отклоняется графом как InvalidTransition.
func claimedByOther(order *entities.Order, claimant string) bool {
	return !order.Status.IsTerminal() && order.AgentID.Valid && !order.IsAssignedTo(claimant)
}
