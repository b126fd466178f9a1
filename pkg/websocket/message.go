package websocket

import (
	"encoding/json"
	"time"

	"food-delivery/internal/dto"
)

// Типы исходящих сообщений.
const (
	TypeOrderUpdated = "orderUpdated"
	TypeJobAvailable = "jobAvailable"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeError        = "error"
)

// Действия, которые клиент присылает по сокету.
const (
	ActionSubscribe            = "subscribe"
	ActionUnsubscribe          = "unsubscribe"
	ActionSubscribeAgentPool   = "subscribe_agent_pool"
	ActionUnsubscribeAgentPool = "unsubscribe_agent_pool"
)

// Envelope - "конверт" для всех сообщений, уходящих клиенту.
type Envelope struct {
	Type      string        `json:"type"`
	Order     *dto.OrderDTO `json:"order,omitempty"`
	OrderID   string        `json:"order_id,omitempty"`
	Interest  string        `json:"interest,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// ControlMessage - входящий кадр управления подписками.
type ControlMessage struct {
	Action  string `json:"action"`
	OrderID string `json:"order_id,omitempty"`
}

func encode(env Envelope) ([]byte, error) {
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	return json.Marshal(env)
}

func NewReply(msgType string, interest Interest, message string) ([]byte, error) {
	env := Envelope{Type: msgType, Message: message}
	if interest != "" {
		env.Interest = string(interest)
		if id, ok := interest.OrderID(); ok {
			env.OrderID = id
		}
	}
	return encode(env)
}
