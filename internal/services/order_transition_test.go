package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"food-delivery/internal/entities"
	"food-delivery/internal/repositories"
	apperrors "food-delivery/pkg/errors"
)

func newEngine(repo *fakeOrderRepo) (*TransitionEngine, *recordingPublisher) {
	pub := &recordingPublisher{}
	e := NewTransitionEngine(repo, pub, zap.NewNop())
	return e, pub
}

func transition(t *testing.T, e *TransitionEngine, id string, actor entities.Actor, target entities.OrderStatus) *entities.Order {
	t.Helper()
	o, err := e.RequestTransition(context.Background(), TransitionRequest{OrderID: id, Actor: actor, Target: target})
	require.NoError(t, err, "переход %s не применился", target)
	return o
}

func toAwaitingAgent(t *testing.T, e *TransitionEngine, id string) {
	t.Helper()
	transition(t, e, id, restaurant, entities.StatusRestaurantReviewing)
	transition(t, e, id, restaurant, entities.StatusPreparing)
	transition(t, e, id, restaurant, entities.StatusAwaitingAgent)
}

func TestTransitionEngine_ScenarioA_HappyPathAndLostClaim(t *testing.T) {
	repo := newFakeOrderRepo()
	repo.put(placedOrder("o1"))
	e, pub := newEngine(repo)

	toAwaitingAgent(t, e, "o1")

	claimed := transition(t, e, "o1", agent("agent-1"), entities.StatusAgentAssigned)
	assert.Equal(t, entities.StatusAgentAssigned, claimed.Status)
	require.True(t, claimed.AgentID.Valid)
	assert.Equal(t, "agent-1", claimed.AgentID.String)
	assert.Equal(t, int64(450), claimed.TotalAmount)

	_, err := e.RequestTransition(context.Background(), TransitionRequest{
		OrderID: "o1", Actor: agent("agent-2"), Target: entities.StatusAgentAssigned,
	})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyClaimed)

	stored := repo.get("o1")
	assert.Equal(t, "agent-1", stored.AgentID.String)
	assert.Equal(t, 5, stored.Version())
	assert.Len(t, pub.published(), 4)
}

func TestTransitionEngine_ScenarioB_CancelThenReview(t *testing.T) {
	repo := newFakeOrderRepo()
	repo.put(placedOrder("o1"))
	e, _ := newEngine(repo)

	cancelled := transition(t, e, "o1", customer, entities.StatusCancelled)
	assert.Equal(t, entities.StatusCancelled, cancelled.Status)

	_, err := e.RequestTransition(context.Background(), TransitionRequest{
		OrderID: "o1", Actor: restaurant, Target: entities.StatusRestaurantReviewing,
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.Equal(t, entities.StatusCancelled, repo.get("o1").Status)
}

func TestTransitionEngine_ScenarioC_ForeignRestaurant(t *testing.T) {
	repo := newFakeOrderRepo()
	o := placedOrder("o1")
	o.Status = entities.StatusRestaurantReviewing
	repo.put(o)
	e, pub := newEngine(repo)

	other := entities.Actor{Role: entities.RoleRestaurant, ID: "restaurant-2"}
	_, err := e.RequestTransition(context.Background(), TransitionRequest{
		OrderID: "o1", Actor: other, Target: entities.StatusPreparing,
	})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	assert.Equal(t, entities.StatusRestaurantReviewing, repo.get("o1").Status)
	assert.Empty(t, pub.published())
}

func TestTransitionEngine_ValidationOrder(t *testing.T) {
	repo := newFakeOrderRepo()
	repo.put(placedOrder("o1"))
	e, _ := newEngine(repo)
	ctx := context.Background()

	_, err := e.RequestTransition(ctx, TransitionRequest{OrderID: "missing", Actor: admin, Target: entities.StatusCancelled})
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "несуществующий заказ")

	// Клиент не может готовить заказ: запрет важнее отсутствия ребра.
	_, err = e.RequestTransition(ctx, TransitionRequest{OrderID: "o1", Actor: customer, Target: entities.StatusDelivered})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = e.RequestTransition(ctx, TransitionRequest{OrderID: "o1", Actor: restaurant, Target: entities.StatusAwaitingAgent})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	_, err = e.RequestTransition(ctx, TransitionRequest{OrderID: "o1", Actor: admin, Target: entities.OrderStatus("LOST")})
	var invalid *apperrors.InvalidInputError
	assert.ErrorAs(t, err, &invalid)
}

func TestTransitionEngine_ReissuedTransitionIsRejected(t *testing.T) {
	repo := newFakeOrderRepo()
	repo.put(placedOrder("o1"))
	e, pub := newEngine(repo)

	transition(t, e, "o1", restaurant, entities.StatusRestaurantReviewing)
	transition(t, e, "o1", restaurant, entities.StatusPreparing)
	transition(t, e, "o1", restaurant, entities.StatusAwaitingAgent)
	before := repo.get("o1")

	_, err := e.RequestTransition(context.Background(), TransitionRequest{
		OrderID: "o1", Actor: restaurant, Target: entities.StatusAwaitingAgent,
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.Equal(t, before, repo.get("o1"))
	assert.Len(t, pub.published(), 3)
}

func TestTransitionEngine_ConcurrentClaims(t *testing.T) {
	const agents = 25

	repo := newFakeOrderRepo()
	repo.put(placedOrder("o1"))
	e, _ := newEngine(repo)
	toAwaitingAgent(t, e, "o1")

	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make(chan error, agents)
	)
	for i := 0; i < agents; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := e.RequestTransition(context.Background(), TransitionRequest{
				OrderID: "o1", Actor: agent(fmt.Sprintf("agent-%d", i)), Target: entities.StatusAgentAssigned,
			})
			results <- err
		}(i)
	}
	close(start)
	wg.Wait()
	close(results)

	var won, lost int
	for err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, apperrors.ErrAlreadyClaimed):
			lost++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, agents-1, lost)

	stored := repo.get("o1")
	assert.Equal(t, entities.StatusAgentAssigned, stored.Status)
	assert.True(t, stored.AgentID.Valid)
	assert.Equal(t, 5, stored.Version())
}

func TestTransitionEngine_LostRaceAfterRead(t *testing.T) {
	repo := newFakeOrderRepo()
	o := placedOrder("o1")
	o.Status = entities.StatusAwaitingAgent
	repo.put(o)
	e, _ := newEngine(repo)

	// Другой курьер успевает между чтением и условной записью.
	once := sync.Once{}
	repo.beforeApply = func(cmd repositories.TransitionCommand) {
		once.Do(func() {
			repo.mu.Lock()
			defer repo.mu.Unlock()
			stored := repo.orders["o1"]
			stored.Status = entities.StatusAgentAssigned
			stored.AgentID.SetValid("agent-fast")
		})
	}

	_, err := e.RequestTransition(context.Background(), TransitionRequest{
		OrderID: "o1", Actor: agent("agent-slow"), Target: entities.StatusAgentAssigned,
	})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyClaimed)
}

func TestTransitionEngine_StaleNonClaimIsInvalidTransition(t *testing.T) {
	repo := newFakeOrderRepo()
	repo.put(placedOrder("o1"))
	e, _ := newEngine(repo)

	repo.beforeApply = func(cmd repositories.TransitionCommand) {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		repo.orders["o1"].Status = entities.StatusCancelled
	}

	_, err := e.RequestTransition(context.Background(), TransitionRequest{
		OrderID: "o1", Actor: restaurant, Target: entities.StatusRestaurantReviewing,
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestTransitionEngine_ClaimOnFinishedOrderIsInvalidTransition(t *testing.T) {
	for _, status := range []entities.OrderStatus{entities.StatusDelivered, entities.StatusCancelled} {
		t.Run(status.String(), func(t *testing.T) {
			repo := newFakeOrderRepo()
			o := placedOrder("o1")
			o.Status = status
			o.AgentID.SetValid("agent-1")
			repo.put(o)
			e, pub := newEngine(repo)

			_, err := e.RequestTransition(context.Background(), TransitionRequest{
				OrderID: "o1", Actor: agent("agent-2"), Target: entities.StatusAgentAssigned,
			})
			assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
			assert.NotErrorIs(t, err, apperrors.ErrAlreadyClaimed)
			assert.Equal(t, "agent-1", repo.get("o1").AgentID.String)
			assert.Empty(t, pub.published())
		})
	}
}

func TestTransitionEngine_StaleClaimOnFinishedOrderIsInvalidTransition(t *testing.T) {
	repo := newFakeOrderRepo()
	o := placedOrder("o1")
	o.Status = entities.StatusAwaitingAgent
	repo.put(o)
	e, _ := newEngine(repo)

	// Пока шёл запрос, заказ захватили и сразу отменили.
	repo.beforeApply = func(cmd repositories.TransitionCommand) {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		repo.orders["o1"].Status = entities.StatusCancelled
		repo.orders["o1"].AgentID.SetValid("agent-1")
	}

	_, err := e.RequestTransition(context.Background(), TransitionRequest{
		OrderID: "o1", Actor: agent("agent-2"), Target: entities.StatusAgentAssigned,
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestTransitionEngine_AgentRules(t *testing.T) {
	repo := newFakeOrderRepo()
	repo.put(placedOrder("o1"))
	e, _ := newEngine(repo)
	ctx := context.Background()
	toAwaitingAgent(t, e, "o1")
	transition(t, e, "o1", agent("agent-1"), entities.StatusAgentAssigned)

	_, err := e.RequestTransition(ctx, TransitionRequest{OrderID: "o1", Actor: agent("agent-2"), Target: entities.StatusPickedUp})
	assert.ErrorIs(t, err, apperrors.ErrForbidden, "чужой курьер не может забрать заказ")

	_, err = e.RequestTransition(ctx, TransitionRequest{OrderID: "o1", Actor: agent("agent-1"), Target: entities.StatusAgentAssigned})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition, "повторный захват своим курьером")

	transition(t, e, "o1", agent("agent-1"), entities.StatusPickedUp)
	delivered := transition(t, e, "o1", agent("agent-1"), entities.StatusDelivered)
	assert.Equal(t, entities.StatusDelivered, delivered.Status)
	assert.Equal(t, "agent-1", delivered.AgentID.String)
}

func TestTransitionEngine_CustomerCancellationWindow(t *testing.T) {
	repo := newFakeOrderRepo()
	o := placedOrder("o1")
	o.Status = entities.StatusPreparing
	repo.put(o)
	e, _ := newEngine(repo)

	_, err := e.RequestTransition(context.Background(), TransitionRequest{
		OrderID: "o1", Actor: customer, Target: entities.StatusCancelled,
	})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	cancelled := transition(t, e, "o1", admin, entities.StatusCancelled)
	assert.Equal(t, entities.StatusCancelled, cancelled.Status)

	_, err = e.RequestTransition(context.Background(), TransitionRequest{
		OrderID: "o1", Actor: customer, Target: entities.StatusCancelled,
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition, "повторная отмена")
}

func TestTransitionEngine_AdminClaimNeedsAgent(t *testing.T) {
	repo := newFakeOrderRepo()
	o := placedOrder("o1")
	o.Status = entities.StatusAwaitingAgent
	repo.put(o)
	e, _ := newEngine(repo)

	_, err := e.RequestTransition(context.Background(), TransitionRequest{
		OrderID: "o1", Actor: admin, Target: entities.StatusAgentAssigned,
	})
	var invalid *apperrors.InvalidInputError
	require.ErrorAs(t, err, &invalid)

	assigned, err := e.RequestTransition(context.Background(), TransitionRequest{
		OrderID: "o1", Actor: admin, Target: entities.StatusAgentAssigned, AgentID: "agent-9",
	})
	require.NoError(t, err)
	assert.Equal(t, "agent-9", assigned.AgentID.String)
	last, _ := assigned.LastHistoryEntry()
	assert.Equal(t, entities.RoleAdmin, last.ActorRole)
	assert.Equal(t, admin.ID, last.ActorID)
}

func TestTransitionEngine_StorageUnavailable(t *testing.T) {
	repo := newFakeOrderRepo()
	repo.put(placedOrder("o1"))
	repo.applyErr = fmt.Errorf("%w: connection refused", apperrors.ErrStorageUnavailable)
	e, pub := newEngine(repo)

	_, err := e.RequestTransition(context.Background(), TransitionRequest{
		OrderID: "o1", Actor: restaurant, Target: entities.StatusRestaurantReviewing,
	})
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
	assert.Empty(t, pub.published())
}

func TestTransitionEngine_HistoryTimestampsStrictlyIncrease(t *testing.T) {
	repo := newFakeOrderRepo()
	o := placedOrder("o1")
	repo.put(o)
	e, _ := newEngine(repo)
	// Часы сервера отстают от последней записи истории.
	frozen := o.StatusHistory[0].At.Add(-time.Hour)
	e.now = func() time.Time { return frozen }

	transition(t, e, "o1", restaurant, entities.StatusRestaurantReviewing)
	updated := transition(t, e, "o1", restaurant, entities.StatusPreparing)

	for i := 1; i < len(updated.StatusHistory); i++ {
		assert.True(t, updated.StatusHistory[i].At.After(updated.StatusHistory[i-1].At))
	}
}

func TestTransitionEngine_HistoryFollowsGraph(t *testing.T) {
	repo := newFakeOrderRepo()
	repo.put(placedOrder("o1"))
	e, _ := newEngine(repo)
	toAwaitingAgent(t, e, "o1")
	transition(t, e, "o1", agent("agent-1"), entities.StatusAgentAssigned)
	cancelled := transition(t, e, "o1", admin, entities.StatusCancelled)

	// Отмена после назначения сохраняет курьера.
	assert.Equal(t, "agent-1", cancelled.AgentID.String)

	history := cancelled.StatusHistory
	require.NotEmpty(t, history)
	assert.Equal(t, entities.StatusPlaced, history[0].Status)
	for i := 1; i < len(history); i++ {
		assert.True(t, entities.CanTransition(history[i-1].Status, history[i].Status),
			"%s -> %s", history[i-1].Status, history[i].Status)
	}
	assert.Equal(t, cancelled.Status, history[len(history)-1].Status)
}
