package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"food-delivery/internal/dto"
	"food-delivery/internal/entities"
	apperrors "food-delivery/pkg/errors"
	"food-delivery/pkg/types"
)

func newOrderService(repo *fakeOrderRepo, cache *fakeCache) (*OrderService, *recordingPublisher) {
	pub := &recordingPublisher{}
	engine := NewTransitionEngine(repo, pub, zap.NewNop())
	svc := NewOrderService(repo, cache, engine, pub, time.Hour, zap.NewNop()).(*OrderService)
	return svc, pub
}

func createOrderDTO() dto.CreateOrderDTO {
	return dto.CreateOrderDTO{
		RestaurantID: restaurant.ID,
		LineItems: []dto.LineItemDTO{
			{Name: "Margherita", UnitPrice: 200, Quantity: 1},
			{Name: "Lemonade", UnitPrice: 125, Quantity: 2},
		},
		DeliveryAddress: dto.AddressDTO{Street: "1 Main St", City: "Springfield"},
	}
}

func TestOrderService_CreateOrder(t *testing.T) {
	repo := newFakeOrderRepo()
	svc, pub := newOrderService(repo, newFakeCache())

	created, err := svc.CreateOrder(context.Background(), customer, createOrderDTO(), "")
	require.NoError(t, err)

	assert.Equal(t, int64(450), created.TotalAmount)
	assert.Equal(t, "PLACED", created.Status)
	assert.Equal(t, customer.ID, created.CustomerID)
	assert.Nil(t, created.AgentID)
	assert.Equal(t, 1, created.Version)
	require.Len(t, created.StatusHistory, 1)
	assert.Equal(t, "customer", created.StatusHistory[0].ActorRole)
	assert.ElementsMatch(t, []string{"RESTAURANT_REVIEWING", "CANCELLED"}, created.NextStatuses)

	stored := repo.get(created.ID)
	require.NotNil(t, stored)
	assert.Equal(t, "Springfield", stored.DeliveryAddress.City)
	assert.Len(t, pub.published(), 1)
}

func TestOrderService_CreateOrderOnlyForCustomers(t *testing.T) {
	svc, _ := newOrderService(newFakeOrderRepo(), newFakeCache())

	_, err := svc.CreateOrder(context.Background(), restaurant, createOrderDTO(), "")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestOrderService_CreateOrderIdempotent(t *testing.T) {
	repo := newFakeOrderRepo()
	svc, pub := newOrderService(repo, newFakeCache())
	ctx := context.Background()

	first, err := svc.CreateOrder(ctx, customer, createOrderDTO(), "key-1")
	require.NoError(t, err)
	second, err := svc.CreateOrder(ctx, customer, createOrderDTO(), "key-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.orders, 1)
	assert.Len(t, pub.published(), 1)

	third, err := svc.CreateOrder(ctx, customer, createOrderDTO(), "key-2")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestOrderService_IdempotencyKeyReleasedOnFailure(t *testing.T) {
	repo := newFakeOrderRepo()
	cache := newFakeCache()
	svc, _ := newOrderService(repo, cache)
	ctx := context.Background()

	repo.createErr = fmt.Errorf("%w: insert", apperrors.ErrStorageUnavailable)
	_, err := svc.CreateOrder(ctx, customer, createOrderDTO(), "key-1")
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
	assert.Empty(t, cache.values)

	repo.createErr = nil
	created, err := svc.CreateOrder(ctx, customer, createOrderDTO(), "key-1")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
}

func TestOrderService_CreateOrderRejectsTotalOverflow(t *testing.T) {
	repo := newFakeOrderRepo()
	cache := newFakeCache()
	svc, pub := newOrderService(repo, cache)

	data := createOrderDTO()
	data.LineItems = []dto.LineItemDTO{{Name: "Caviar", UnitPrice: 1 << 62, Quantity: 4}}

	_, err := svc.CreateOrder(context.Background(), customer, data, "key-1")
	var invalid *apperrors.InvalidInputError
	require.ErrorAs(t, err, &invalid)

	assert.Empty(t, repo.orders)
	assert.Empty(t, pub.published())
	assert.Empty(t, cache.values, "ключ идемпотентности освобождён")
}

func TestOrderService_IdempotencyInFlight(t *testing.T) {
	repo := newFakeOrderRepo()
	cache := newFakeCache()
	svc, _ := newOrderService(repo, cache)

	// Ключ занят, а заказ ещё не записан.
	cache.values[idempotencyKeyPrefix+customer.ID+":key-1"] = "11111111-1111-1111-1111-111111111111"

	_, err := svc.CreateOrder(context.Background(), customer, createOrderDTO(), "key-1")
	assert.ErrorIs(t, err, apperrors.ErrIdempotencyConflict)
}

func TestOrderService_CreateOrderWithoutRedis(t *testing.T) {
	repo := newFakeOrderRepo()
	cache := newFakeCache()
	cache.err = errors.New("redis: connection refused")
	svc, _ := newOrderService(repo, cache)

	created, err := svc.CreateOrder(context.Background(), customer, createOrderDTO(), "key-1")
	require.NoError(t, err)
	assert.NotNil(t, repo.get(created.ID))
}

func TestOrderService_GetOrderVisibility(t *testing.T) {
	repo := newFakeOrderRepo()
	repo.put(placedOrder("o1"))
	svc, _ := newOrderService(repo, newFakeCache())
	ctx := context.Background()

	got, err := svc.GetOrder(ctx, customer, "o1")
	require.NoError(t, err)
	assert.Equal(t, "o1", got.ID)

	_, err = svc.GetOrder(ctx, entities.Actor{Role: entities.RoleCustomer, ID: "someone-else"}, "o1")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = svc.GetOrder(ctx, agent("agent-1"), "o1")
	assert.ErrorIs(t, err, apperrors.ErrForbidden, "курьер не видит заказ до готовности")

	_, err = svc.GetOrder(ctx, admin, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestOrderService_ListOrdersIsScoped(t *testing.T) {
	repo := newFakeOrderRepo()
	repo.put(placedOrder("o1"))
	foreign := placedOrder("o2")
	foreign.CustomerID = "customer-2"
	foreign.RestaurantID = "restaurant-2"
	repo.put(foreign)
	svc, _ := newOrderService(repo, newFakeCache())
	ctx := context.Background()
	filter := types.Filter{Limit: 10, Page: 1}

	list, total, err := svc.ListOrders(ctx, customer, filter)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)
	assert.Equal(t, "o1", list[0].ID)

	list, _, err = svc.ListOrders(ctx, entities.Actor{Role: entities.RoleRestaurant, ID: "restaurant-2"}, filter)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "o2", list[0].ID)

	_, total, err = svc.ListOrders(ctx, admin, filter)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), total)
}

func TestOrderService_ListAvailableJobs(t *testing.T) {
	repo := newFakeOrderRepo()
	waiting := placedOrder("o1")
	waiting.Status = entities.StatusAwaitingAgent
	repo.put(waiting)
	taken := placedOrder("o2")
	taken.Status = entities.StatusAgentAssigned
	taken.AgentID.SetValid("agent-7")
	repo.put(taken)
	repo.put(placedOrder("o3"))
	svc, _ := newOrderService(repo, newFakeCache())

	jobs, total, err := svc.ListAvailableJobs(context.Background(), agent("agent-1"), types.Filter{})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)
	assert.Equal(t, "o1", jobs[0].ID)

	_, _, err = svc.ListAvailableJobs(context.Background(), customer, types.Filter{})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestOrderService_ChangeStatusGoesThroughEngine(t *testing.T) {
	repo := newFakeOrderRepo()
	repo.put(placedOrder("o1"))
	svc, pub := newOrderService(repo, newFakeCache())

	updated, err := svc.ChangeStatus(context.Background(), admin, "o1", entities.StatusRestaurantReviewing, "")
	require.NoError(t, err)
	assert.Equal(t, "RESTAURANT_REVIEWING", updated.Status)
	assert.Equal(t, 2, updated.Version)
	require.Len(t, pub.published(), 1)
	assert.Equal(t, entities.StatusRestaurantReviewing, pub.published()[0].Status)
}
