package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"food-delivery/internal/entities"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	defaultSendBuffer = 256
)

var (
	ErrSendBufferFull = errors.New("websocket: send buffer is full")
	ErrClientClosed   = errors.New("websocket: client is closed")
)

// MessageHandler обрабатывает входящие кадры управления подписками.
type MessageHandler func(c *Client, msg ControlMessage)

// Client - одно WebSocket-соединение участника.
type Client struct {
	id       string
	actor    entities.Actor
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	registry *Registry
	handler  MessageHandler
	logger   *zap.Logger
}

func NewClient(conn *websocket.Conn, actor entities.Actor, registry *Registry, handler MessageHandler, sendBuffer int, logger *zap.Logger) *Client {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	id := uuid.NewString()
	return &Client{
		id:       id,
		actor:    actor,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		registry: registry,
		handler:  handler,
		logger:   logger.With(zap.String("conn_id", id)),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Actor() entities.Actor { return c.actor }

// Deliver кладёт сообщение в буфер соединения. Полный буфер считается
// ошибкой доставки.
func (c *Client) Deliver(msg []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close останавливает WritePump; соединение закрывается им же.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Client) Reply(msgType string, interest Interest, message string) {
	msg, err := NewReply(msgType, interest, message)
	if err != nil {
		c.logger.Error("Ошибка сериализации ответа", zap.Error(err))
		return
	}
	if err := c.Deliver(msg); err != nil {
		c.logger.Warn("Ответ клиенту не доставлен", zap.Error(err))
		c.Close()
	}
}

// ReadPump читает кадры управления до разрыва соединения. При выходе все
// подписки соединения снимаются сразу.
func (c *Client) ReadPump() {
	defer func() {
		c.registry.UnsubscribeAll(c.id)
		c.Close()
		_ = c.conn.Close()
		c.logger.Info("Клиент отсоединён", zap.String("actor_id", c.actor.ID))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("Соединение закрыто с ошибкой", zap.Error(err))
			}
			return
		}

		var msg ControlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Reply(TypeError, "", "malformed message")
			continue
		}
		if c.handler != nil {
			c.handler(c, msg)
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
