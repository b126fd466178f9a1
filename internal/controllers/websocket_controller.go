package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"food-delivery/internal/entities"
	"food-delivery/internal/services"
	apperrors "food-delivery/pkg/errors"
	appwebsocket "food-delivery/pkg/websocket"
)

const subscribeTimeout = 5 * time.Second

type actorResolver interface {
	ActorFromToken(token string) (entities.Actor, error)
}

type WebSocketController struct {
	upgrader   websocket.Upgrader
	realtime   services.RealtimeServiceInterface
	registry   *appwebsocket.Registry
	auth       actorResolver
	sendBuffer int
	logger     *zap.Logger
}

func NewWebSocketController(
	realtime services.RealtimeServiceInterface,
	registry *appwebsocket.Registry,
	auth actorResolver,
	allowedOrigins []string,
	sendBuffer int,
	logger *zap.Logger,
) *WebSocketController {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &WebSocketController{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins["*"] || origins[origin]
			},
		},
		realtime:   realtime,
		registry:   registry,
		auth:       auth,
		sendBuffer: sendBuffer,
		logger:     logger,
	}
}

// ServeWs: GET /ws?token=...[&order_id=...][&agent_pool=true]
func (c *WebSocketController) ServeWs(ctx echo.Context) error {
	token := ctx.QueryParam("token")
	if token == "" {
		return ctx.String(http.StatusUnauthorized, "Missing token")
	}
	actor, err := c.auth.ActorFromToken(token)
	if err != nil {
		return ctx.String(http.StatusUnauthorized, "Invalid token")
	}

	conn, err := c.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		c.logger.Error("WebSocket: не удалось улучшить соединение", zap.Error(err))
		return nil
	}

	client := appwebsocket.NewClient(conn, actor, c.registry, c.HandleControl, c.sendBuffer, c.logger)
	c.realtime.Connect(client)

	go client.WritePump()
	go client.ReadPump()

	if orderID := ctx.QueryParam("order_id"); orderID != "" {
		c.HandleControl(client, appwebsocket.ControlMessage{Action: appwebsocket.ActionSubscribe, OrderID: orderID})
	}
	if ctx.QueryParam("agent_pool") == "true" {
		c.HandleControl(client, appwebsocket.ControlMessage{Action: appwebsocket.ActionSubscribeAgentPool})
	}

	c.logger.Info("WebSocket: клиент подключен",
		zap.String("conn_id", client.ID()),
		zap.String("role", string(actor.Role)),
		zap.String("actor_id", actor.ID),
	)
	return nil
}

// HandleControl применяет кадр управления подписками и отвечает клиенту.
func (c *WebSocketController) HandleControl(client *appwebsocket.Client, msg appwebsocket.ControlMessage) {
	actor := client.Actor()

	switch msg.Action {
	case appwebsocket.ActionSubscribe:
		ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
		defer cancel()
		interest := appwebsocket.OrderInterest(msg.OrderID)
		if err := c.realtime.SubscribeToOrder(ctx, actor, client.ID(), msg.OrderID); err != nil {
			client.Reply(appwebsocket.TypeError, interest, realtimeErrorMessage(err))
			return
		}
		client.Reply(appwebsocket.TypeSubscribed, interest, "")

	case appwebsocket.ActionUnsubscribe:
		interest := appwebsocket.OrderInterest(msg.OrderID)
		c.realtime.Unsubscribe(client.ID(), interest)
		client.Reply(appwebsocket.TypeUnsubscribed, interest, "")

	case appwebsocket.ActionSubscribeAgentPool:
		if err := c.realtime.SubscribeToAgentPool(actor, client.ID()); err != nil {
			client.Reply(appwebsocket.TypeError, appwebsocket.AgentPoolInterest, realtimeErrorMessage(err))
			return
		}
		client.Reply(appwebsocket.TypeSubscribed, appwebsocket.AgentPoolInterest, "")

	case appwebsocket.ActionUnsubscribeAgentPool:
		c.realtime.Unsubscribe(client.ID(), appwebsocket.AgentPoolInterest)
		client.Reply(appwebsocket.TypeUnsubscribed, appwebsocket.AgentPoolInterest, "")

	default:
		client.Reply(appwebsocket.TypeError, "", "unknown action")
	}
}

func realtimeErrorMessage(err error) string {
	var invalid *apperrors.InvalidInputError
	switch {
	case errors.As(err, &invalid):
		return invalid.Message
	case errors.Is(err, apperrors.ErrNotFound):
		return apperrors.ErrNotFound.Error()
	case errors.Is(err, apperrors.ErrForbidden):
		return apperrors.ErrForbidden.Error()
	case errors.Is(err, apperrors.ErrStorageUnavailable):
		return apperrors.ErrStorageUnavailable.Error()
	}
	return "internal error"
}
