package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"food-delivery/internal/dto"
	"food-delivery/internal/entities"
	"food-delivery/internal/services"
	apperrors "food-delivery/pkg/errors"
	"food-delivery/pkg/utils"
)

const idempotencyHeader = "Idempotency-Key"

type OrderController struct {
	orderService services.OrderServiceInterface
	logger       *zap.Logger
}

func NewOrderController(
	orderService services.OrderServiceInterface,
	logger *zap.Logger,
) *OrderController {
	return &OrderController{
		orderService: orderService,
		logger:       logger,
	}
}

func (c *OrderController) CreateOrder(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	actor, err := utils.GetActorFromCtx(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	var data dto.CreateOrderDTO
	if err := ctx.Bind(&data); err != nil {
		return utils.ErrorResponse(ctx, apperrors.NewInvalidInputError("malformed request body"), c.logger)
	}
	if err := ctx.Validate(&data); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.orderService.CreateOrder(reqCtx, actor, data, ctx.Request().Header.Get(idempotencyHeader))
	if err != nil {
		c.logger.Warn("CreateOrder: заказ не создан", zap.String("actorID", actor.ID), zap.Error(err))
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Order placed", http.StatusCreated)
}

// ListOrders отдаёт заказы вызывающего: свои для клиента, ресторана и
// курьера, все для администратора.
func (c *OrderController) ListOrders(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	actor, err := utils.GetActorFromCtx(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	filter := utils.ParseFilterFromQuery(ctx.Request().URL.Query())
	res, total, err := c.orderService.ListOrders(reqCtx, actor, filter)
	if err != nil {
		c.logger.Error("Ошибка при получении списка заказов из сервиса", zap.Error(err))
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Orders fetched", http.StatusOK, total)
}

func (c *OrderController) ListAvailableJobs(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	actor, err := utils.GetActorFromCtx(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	filter := utils.ParseFilterFromQuery(ctx.Request().URL.Query())
	res, total, err := c.orderService.ListAvailableJobs(reqCtx, actor, filter)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Available orders fetched", http.StatusOK, total)
}

func (c *OrderController) GetOrder(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	actor, err := utils.GetActorFromCtx(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.orderService.GetOrder(reqCtx, actor, ctx.Param("id"))
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Order fetched", http.StatusOK)
}

// Transition - обработчик фиксированного перехода (accept, claim, deliver...).
func (c *OrderController) Transition(target entities.OrderStatus) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		return c.changeStatus(ctx, target, "")
	}
}

// ChangeStatus - ручная смена статуса администратором. Проходит через тот же
// движок переходов, поэтому подписчики получают обновление.
func (c *OrderController) ChangeStatus(ctx echo.Context) error {
	var data dto.ChangeStatusDTO
	if err := ctx.Bind(&data); err != nil {
		return utils.ErrorResponse(ctx, apperrors.NewInvalidInputError("malformed request body"), c.logger)
	}
	if err := ctx.Validate(&data); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	target, ok := entities.ParseOrderStatus(data.Status)
	if !ok {
		return utils.ErrorResponse(ctx, apperrors.NewInvalidInputError("unknown status %q", data.Status), c.logger)
	}
	agentID := ""
	if data.AgentID != nil {
		agentID = *data.AgentID
	}
	return c.changeStatus(ctx, target, agentID)
}

func (c *OrderController) changeStatus(ctx echo.Context, target entities.OrderStatus, agentID string) error {
	reqCtx := ctx.Request().Context()
	actor, err := utils.GetActorFromCtx(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.orderService.ChangeStatus(reqCtx, actor, ctx.Param("id"), target, agentID)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Order status updated", http.StatusOK)
}
