package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"food-delivery/internal/authz"
	"food-delivery/internal/dto"
	"food-delivery/internal/entities"
	"food-delivery/internal/repositories"
	apperrors "food-delivery/pkg/errors"
	"food-delivery/pkg/types"
)

const idempotencyKeyPrefix = "idempotency:create-order:"

type OrderServiceInterface interface {
	CreateOrder(ctx context.Context, actor entities.Actor, orderData dto.CreateOrderDTO, idempotencyKey string) (*dto.OrderDTO, error)
	GetOrder(ctx context.Context, actor entities.Actor, id string) (*dto.OrderDTO, error)
	ListOrders(ctx context.Context, actor entities.Actor, filter types.Filter) ([]dto.OrderDTO, uint64, error)
	ListAvailableJobs(ctx context.Context, actor entities.Actor, filter types.Filter) ([]dto.OrderDTO, uint64, error)
	ChangeStatus(ctx context.Context, actor entities.Actor, id string, target entities.OrderStatus, agentID string) (*dto.OrderDTO, error)
}

type OrderService struct {
	orderRepo      repositories.OrderRepositoryInterface
	cacheRepo      repositories.CacheRepositoryInterface
	engine         TransitionEngineInterface
	publisher      OrderUpdatePublisher
	idempotencyTTL time.Duration
	logger         *zap.Logger
	now            func() time.Time
}

func NewOrderService(
	orderRepo repositories.OrderRepositoryInterface,
	cacheRepo repositories.CacheRepositoryInterface,
	engine TransitionEngineInterface,
	publisher OrderUpdatePublisher,
	idempotencyTTL time.Duration,
	logger *zap.Logger,
) OrderServiceInterface {
	return &OrderService{
		orderRepo:      orderRepo,
		cacheRepo:      cacheRepo,
		engine:         engine,
		publisher:      publisher,
		idempotencyTTL: idempotencyTTL,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *OrderService) CreateOrder(ctx context.Context, actor entities.Actor, orderData dto.CreateOrderDTO, idempotencyKey string) (*dto.OrderDTO, error) {
	if actor.Role != entities.RoleCustomer || actor.ID == "" {
		return nil, apperrors.ErrForbidden
	}

	items := orderData.ToLineItems()
	total, err := entities.CalculateTotal(items)
	if err != nil {
		return nil, apperrors.NewInvalidInputError("order total is out of range")
	}

	orderID := uuid.NewString()
	cacheKey := ""
	if idempotencyKey != "" && s.cacheRepo != nil {
		cacheKey = idempotencyKeyPrefix + actor.ID + ":" + idempotencyKey
		reserved, err := s.cacheRepo.SetNX(ctx, cacheKey, orderID, s.idempotencyTTL)
		switch {
		case err != nil:
			// Без Redis заказ всё равно создаётся, но без защиты от повторов.
			s.logger.Warn("Ключ идемпотентности не сохранён", zap.String("key", cacheKey), zap.Error(err))
			cacheKey = ""
		case !reserved:
			return s.replayCreate(ctx, actor, cacheKey)
		}
	}

	now := s.now().UTC()
	order := &entities.Order{
		ID:              orderID,
		CustomerID:      actor.ID,
		RestaurantID:    orderData.RestaurantID,
		LineItems:       items,
		TotalAmount:     total,
		DeliveryAddress: orderData.DeliveryAddress.ToEntity(),
		Status:          entities.StatusPlaced,
		StatusHistory: []entities.StatusHistoryEntry{{
			Status:    entities.StatusPlaced,
			At:        now,
			ActorRole: actor.Role,
			ActorID:   actor.ID,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		s.logger.Error("Ошибка в orderRepo.Create", zap.String("order_id", orderID), zap.Error(err))
		s.releaseIdempotencyKey(ctx, cacheKey)
		return nil, err
	}

	s.logger.Info("Заказ создан",
		zap.String("order_id", order.ID),
		zap.String("customer_id", order.CustomerID),
		zap.String("restaurant_id", order.RestaurantID),
		zap.Int64("total_amount", order.TotalAmount),
	)
	if s.publisher != nil {
		s.publisher.PublishOrderUpdate(ctx, order)
	}
	return dto.NewOrderDTO(order), nil
}

func (s *OrderService) releaseIdempotencyKey(ctx context.Context, cacheKey string) {
	if cacheKey == "" {
		return
	}
	if err := s.cacheRepo.Del(ctx, cacheKey); err != nil {
		s.logger.Warn("Не удалось освободить ключ идемпотентности", zap.String("key", cacheKey), zap.Error(err))
	}
}

// replayCreate отдаёт заказ, уже созданный с тем же ключом.
func (s *OrderService) replayCreate(ctx context.Context, actor entities.Actor, cacheKey string) (*dto.OrderDTO, error) {
	existingID, err := s.cacheRepo.Get(ctx, cacheKey)
	if err != nil {
		if errors.Is(err, repositories.ErrCacheMiss) {
			return nil, apperrors.ErrIdempotencyConflict
		}
		return nil, fmt.Errorf("чтение ключа идемпотентности: %w", err)
	}

	order, err := s.orderRepo.FindByID(ctx, existingID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Первый запрос ещё не записал заказ.
			return nil, apperrors.ErrIdempotencyConflict
		}
		return nil, err
	}
	if order.CustomerID != actor.ID {
		return nil, apperrors.ErrIdempotencyConflict
	}
	s.logger.Info("Повторный запрос создания заказа", zap.String("order_id", order.ID))
	return dto.NewOrderDTO(order), nil
}

func (s *OrderService) GetOrder(ctx context.Context, actor entities.Actor, id string) (*dto.OrderDTO, error) {
	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanViewOrder(actor, order) {
		return nil, apperrors.ErrForbidden
	}
	return dto.NewOrderDTO(order), nil
}

func (s *OrderService) ListOrders(ctx context.Context, actor entities.Actor, filter types.Filter) ([]dto.OrderDTO, uint64, error) {
	var scope repositories.OrderScope
	switch actor.Role {
	case entities.RoleCustomer:
		scope.CustomerID = actor.ID
	case entities.RoleRestaurant:
		scope.RestaurantID = actor.ID
	case entities.RoleAgent:
		scope.AgentID = actor.ID
	case entities.RoleAdmin:
	default:
		return nil, 0, apperrors.ErrForbidden
	}
	if actor.ID == "" {
		return nil, 0, apperrors.ErrForbidden
	}

	orders, total, err := s.orderRepo.List(ctx, scope, filter)
	if err != nil {
		return nil, 0, err
	}
	return dto.NewOrderDTOList(orders), total, nil
}

// ListAvailableJobs - заказы, ожидающие курьера и ещё никем не взятые.
func (s *OrderService) ListAvailableJobs(ctx context.Context, actor entities.Actor, filter types.Filter) ([]dto.OrderDTO, uint64, error) {
	if !authz.CanJoinAgentPool(actor) {
		return nil, 0, apperrors.ErrForbidden
	}
	scope := repositories.OrderScope{
		Statuses:      []entities.OrderStatus{entities.StatusAwaitingAgent},
		UnclaimedOnly: true,
	}
	orders, total, err := s.orderRepo.List(ctx, scope, filter)
	if err != nil {
		return nil, 0, err
	}
	return dto.NewOrderDTOList(orders), total, nil
}

func (s *OrderService) ChangeStatus(ctx context.Context, actor entities.Actor, id string, target entities.OrderStatus, agentID string) (*dto.OrderDTO, error) {
	order, err := s.engine.RequestTransition(ctx, TransitionRequest{
		OrderID: id,
		Actor:   actor,
		Target:  target,
		AgentID: agentID,
	})
	if err != nil {
		return nil, err
	}
	return dto.NewOrderDTO(order), nil
}
