package services

import (
	"context"
	"sync"
	"time"

	"food-delivery/internal/entities"
	"food-delivery/internal/repositories"
	apperrors "food-delivery/pkg/errors"
	"food-delivery/pkg/types"
)

// fakeOrderRepo keeps orders in memory and applies transitions with the
// same compare-and-set rule as the Postgres repository.
type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*entities.Order

	findErr   error
	applyErr  error
	createErr error
	// beforeApply runs under no lock right before the conditional write.
	beforeApply func(cmd repositories.TransitionCommand)
	listScopes  []repositories.OrderScope
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*entities.Order)}
}

func (r *fakeOrderRepo) put(o *entities.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o.Clone()
}

func (r *fakeOrderRepo) get(id string) *entities.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[id]; ok {
		return o.Clone()
	}
	return nil
}

func (r *fakeOrderRepo) Create(_ context.Context, order *entities.Order) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.put(order)
	return nil
}

func (r *fakeOrderRepo) FindByID(_ context.Context, id string) (*entities.Order, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	if o := r.get(id); o != nil {
		return o, nil
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeOrderRepo) List(_ context.Context, scope repositories.OrderScope, _ types.Filter) ([]*entities.Order, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listScopes = append(r.listScopes, scope)

	out := make([]*entities.Order, 0)
	for _, o := range r.orders {
		if scope.CustomerID != "" && o.CustomerID != scope.CustomerID {
			continue
		}
		if scope.RestaurantID != "" && o.RestaurantID != scope.RestaurantID {
			continue
		}
		if scope.AgentID != "" && (!o.AgentID.Valid || o.AgentID.String != scope.AgentID) {
			continue
		}
		if scope.UnclaimedOnly && o.AgentID.Valid {
			continue
		}
		if len(scope.Statuses) > 0 && !containsStatus(scope.Statuses, o.Status) {
			continue
		}
		out = append(out, o.Clone())
	}
	return out, uint64(len(out)), nil
}

func containsStatus(list []entities.OrderStatus, s entities.OrderStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (r *fakeOrderRepo) ApplyTransition(_ context.Context, cmd repositories.TransitionCommand) (*entities.Order, error) {
	if r.beforeApply != nil {
		r.beforeApply(cmd)
	}
	if r.applyErr != nil {
		return nil, r.applyErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[cmd.OrderID]
	if !ok || o.Status != cmd.ExpectedStatus {
		return nil, repositories.ErrStaleOrder
	}
	if cmd.AssignAgentID != "" {
		if o.AgentID.Valid {
			return nil, repositories.ErrStaleOrder
		}
		o.AgentID.SetValid(cmd.AssignAgentID)
	}
	o.Status = cmd.Target
	o.StatusHistory = append(o.StatusHistory, cmd.Entry)
	o.UpdatedAt = cmd.Entry.At
	return o.Clone(), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	orders []*entities.Order
}

func (p *recordingPublisher) PublishOrderUpdate(_ context.Context, order *entities.Order) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, order.Clone())
}

func (p *recordingPublisher) published() []*entities.Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*entities.Order(nil), p.orders...)
}

type fakeCache struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string]string)}
}

func (c *fakeCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	v, ok := c.values[key]
	if !ok {
		return "", repositories.ErrCacheMiss
	}
	return v, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.values[key] = value.(string)
	return nil
}

func (c *fakeCache) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if _, ok := c.values[key]; ok {
		return false, nil
	}
	c.values[key] = value.(string)
	return true, nil
}

func (c *fakeCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.values, k)
	}
	return nil
}

var (
	customer   = entities.Actor{Role: entities.RoleCustomer, ID: "customer-1"}
	restaurant = entities.Actor{Role: entities.RoleRestaurant, ID: "restaurant-1"}
	admin      = entities.Actor{Role: entities.RoleAdmin, ID: "admin-1"}
)

func agent(id string) entities.Actor {
	return entities.Actor{Role: entities.RoleAgent, ID: id}
}

func placedOrder(id string) *entities.Order {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return &entities.Order{
		ID:           id,
		CustomerID:   customer.ID,
		RestaurantID: restaurant.ID,
		LineItems: []entities.LineItem{
			{Name: "Margherita", UnitPrice: 200, Quantity: 1},
			{Name: "Lemonade", UnitPrice: 125, Quantity: 2},
		},
		TotalAmount:     450,
		DeliveryAddress: entities.Address{Street: "1 Main St", City: "Springfield"},
		Status:          entities.StatusPlaced,
		StatusHistory: []entities.StatusHistoryEntry{
			{Status: entities.StatusPlaced, At: at, ActorRole: entities.RoleCustomer, ActorID: customer.ID},
		},
		CreatedAt: at,
		UpdatedAt: at,
	}
}
