package websocket

import (
	"context"
	"time"

	"go.uber.org/zap"

	"food-delivery/internal/dto"
	"food-delivery/internal/entities"
)

const (
	defaultQueueSize = 1024
	defaultRetention = 5 * time.Minute
)

type versionMark struct {
	version    int
	terminalAt time.Time
	touchedAt  time.Time
}

// AccessCheck решает, может ли подписчик дальше получать обновления заказа.
// Проверяется на каждом обновлении, потому что доступ меняется вместе со статусом.
type AccessCheck func(sub Subscriber, order *entities.Order) bool

type BroadcasterOption func(*Broadcaster)

func WithAccessCheck(check AccessCheck) BroadcasterOption {
	return func(b *Broadcaster) {
		b.canReceive = check
	}
}

// Broadcaster рассылает обновления заказов подписчикам из Registry.
// Вся рассылка идёт из одной горутины Run, поэтому обновления одного заказа
// уходят подписчику в порядке версий.
type Broadcaster struct {
	registry  *Registry
	queue     chan *entities.Order
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time

	canReceive AccessCheck

	// Трогается только из Run.
	versions map[string]versionMark
}

func NewBroadcaster(registry *Registry, logger *zap.Logger, queueSize int, retention time.Duration, opts ...BroadcasterOption) *Broadcaster {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if retention <= 0 {
		retention = defaultRetention
	}
	b := &Broadcaster{
		registry:  registry,
		queue:     make(chan *entities.Order, queueSize),
		retention: retention,
		logger:    logger,
		now:       time.Now,
		versions:  make(map[string]versionMark),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// PublishOrderUpdate ставит снимок заказа в очередь и сразу возвращается.
func (b *Broadcaster) PublishOrderUpdate(_ context.Context, order *entities.Order) {
	if order == nil {
		return
	}
	select {
	case b.queue <- order.Clone():
	default:
		b.logger.Warn("Очередь рассылки переполнена, обновление отброшено",
			zap.String("order_id", order.ID),
			zap.String("status", order.Status.String()),
			zap.Int("version", order.Version()),
		)
	}
}

// Run blocks until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.retention / 2)
	defer ticker.Stop()

	b.logger.Info("Broadcaster запущен")
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Broadcaster остановлен")
			return
		case order := <-b.queue:
			b.dispatch(order)
		case <-ticker.C:
			b.prune()
		}
	}
}

func (b *Broadcaster) dispatch(order *entities.Order) {
	version := order.Version()
	if mark, ok := b.versions[order.ID]; ok && version <= mark.version {
		b.logger.Debug("Устаревшее обновление заказа пропущено",
			zap.String("order_id", order.ID),
			zap.Int("version", version),
			zap.Int("last_version", mark.version),
		)
		return
	}
	now := b.now()
	mark := versionMark{version: version, touchedAt: now}
	if order.Status.IsTerminal() {
		mark.terminalAt = now
	}
	b.versions[order.ID] = mark

	payload := dto.NewOrderDTO(order)
	b.deliver(OrderInterest(order.ID), Envelope{Type: TypeOrderUpdated, Order: payload, OrderID: order.ID}, order)

	if order.Status == entities.StatusAwaitingAgent {
		b.deliver(AgentPoolInterest, Envelope{Type: TypeJobAvailable, Order: payload, OrderID: order.ID}, nil)
	}
}

// deliver рассылает env подписчикам interest. Если передан order, каждый
// подписчик сначала проходит canReceive, а не прошедший теряет подписку.
func (b *Broadcaster) deliver(interest Interest, env Envelope, order *entities.Order) {
	ids := b.registry.ListSubscribers(interest)
	if len(ids) == 0 {
		return
	}

	msg, err := encode(env)
	if err != nil {
		b.logger.Error("Ошибка сериализации сообщения для WebSocket", zap.Error(err))
		return
	}

	for _, id := range ids {
		sub, ok := b.registry.Subscriber(id)
		if !ok {
			continue
		}
		if order != nil && b.canReceive != nil && !b.canReceive(sub, order) {
			b.revoke(sub, interest, order)
			continue
		}
		if err := sub.Deliver(msg); err != nil {
			b.logger.Warn("Не удалось доставить сообщение, соединение закрывается",
				zap.String("conn_id", id),
				zap.String("interest", string(interest)),
				zap.Error(err),
			)
			b.registry.UnsubscribeAll(id)
			sub.Close()
		}
	}
}

func (b *Broadcaster) revoke(sub Subscriber, interest Interest, order *entities.Order) {
	b.registry.Unsubscribe(sub.ID(), interest)
	b.logger.Info("Доступ к заказу потерян, подписка снята",
		zap.String("conn_id", sub.ID()),
		zap.String("order_id", order.ID),
		zap.String("status", order.Status.String()),
	)

	notice, err := encode(Envelope{Type: TypeUnsubscribed, OrderID: order.ID, Interest: string(interest)})
	if err != nil {
		b.logger.Error("Ошибка сериализации сообщения для WebSocket", zap.Error(err))
		return
	}
	if err := sub.Deliver(notice); err != nil {
		b.registry.UnsubscribeAll(sub.ID())
		sub.Close()
	}
}

// prune забывает версии завершённых заказов и заказов, которые не
// обновлялись дольше retention.
func (b *Broadcaster) prune() {
	cutoff := b.now().Add(-b.retention)
	for id, mark := range b.versions {
		finished := !mark.terminalAt.IsZero() && mark.terminalAt.Before(cutoff)
		if finished || mark.touchedAt.Before(cutoff) {
			delete(b.versions, id)
		}
	}
}
