package seeders

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/google/uuid"

	"food-delivery/internal/entities"
	"food-delivery/pkg/service"
)

type orderCreator interface {
	Create(ctx context.Context, order *entities.Order) error
}

var (
	demoCustomers   = []string{"customer-1", "customer-2", "customer-3"}
	demoRestaurants = []string{"rest-1", "rest-2"}
	demoAgents      = []string{"agent-1", "agent-2"}

	demoMenu = []entities.LineItem{
		{Name: "Плов", UnitPrice: 450, Quantity: 1},
		{Name: "Самбуса", UnitPrice: 120, Quantity: 3},
		{Name: "Зелёный чай", UnitPrice: 80, Quantity: 2},
	}

	// Демонстрационные заказы продвигаются по основному пути жизненного цикла.
	demoPath = []entities.OrderStatus{
		entities.StatusPlaced,
		entities.StatusRestaurantReviewing,
		entities.StatusPreparing,
		entities.StatusAwaitingAgent,
		entities.StatusAgentAssigned,
		entities.StatusPickedUp,
		entities.StatusDelivered,
	}
)

// BuildDemoOrders собирает count заказов в разных статусах. Каждый пятый
// заказ отменяется клиентом сразу после оформления.
func BuildDemoOrders(count int, now time.Time) []*entities.Order {
	orders := make([]*entities.Order, 0, count)
	for i := 0; i < count; i++ {
		customer := demoCustomers[i%len(demoCustomers)]
		restaurant := demoRestaurants[i%len(demoRestaurants)]
		agent := demoAgents[i%len(demoAgents)]
		items := demoMenu[:1+i%len(demoMenu)]
		createdAt := now.Add(-time.Duration(count-i) * time.Hour).UTC()
		// Цены демо-меню фиксированы и не переполняют сумму.
		total, _ := entities.CalculateTotal(items)

		order := &entities.Order{
			ID:              uuid.NewString(),
			CustomerID:      customer,
			RestaurantID:    restaurant,
			LineItems:       append([]entities.LineItem(nil), items...),
			TotalAmount:     total,
			DeliveryAddress: entities.Address{Street: fmt.Sprintf("ул. Айни, %d", 10+i), City: "Душанбе"},
			CreatedAt:       createdAt,
		}

		path := demoPath[:1+i%len(demoPath)]
		if i%5 == 4 {
			path = []entities.OrderStatus{entities.StatusPlaced, entities.StatusCancelled}
		}
		for step, status := range path {
			actor := entities.Actor{Role: entities.RoleCustomer, ID: customer}
			switch {
			case status.HasAgent():
				actor = entities.Actor{Role: entities.RoleAgent, ID: agent}
				order.AgentID = null.StringFrom(agent)
			case status != entities.StatusPlaced && status != entities.StatusCancelled:
				actor = entities.Actor{Role: entities.RoleRestaurant, ID: restaurant}
			}
			order.StatusHistory = append(order.StatusHistory, entities.StatusHistoryEntry{
				Status:    status,
				At:        createdAt.Add(time.Duration(step) * 5 * time.Minute),
				ActorRole: actor.Role,
				ActorID:   actor.ID,
			})
		}

		last, _ := order.LastHistoryEntry()
		order.Status = last.Status
		order.UpdatedAt = last.At
		orders = append(orders, order)
	}
	return orders
}

// SeedDemoOrders сохраняет демонстрационные заказы.
func SeedDemoOrders(ctx context.Context, repo orderCreator, count int) error {
	log.Printf("▶️  Создание %d демонстрационных заказов...", count)
	for _, order := range BuildDemoOrders(count, time.Now()) {
		if err := repo.Create(ctx, order); err != nil {
			return fmt.Errorf("не удалось создать заказ %s: %w", order.ID, err)
		}
		log.Printf("    - %s %s (%s → %s)", order.ID, order.Status, order.CustomerID, order.RestaurantID)
	}
	log.Println("✅ Демонстрационные заказы созданы!")
	return nil
}

// DemoTokens выпускает токены для демонстрационных участников. Ключ -
// "роль:ID".
func DemoTokens(jwtSvc service.JWTService) (map[string]string, error) {
	actors := []entities.Actor{{Role: entities.RoleAdmin, ID: "admin-1"}}
	for _, id := range demoCustomers {
		actors = append(actors, entities.Actor{Role: entities.RoleCustomer, ID: id})
	}
	for _, id := range demoRestaurants {
		actors = append(actors, entities.Actor{Role: entities.RoleRestaurant, ID: id})
	}
	for _, id := range demoAgents {
		actors = append(actors, entities.Actor{Role: entities.RoleAgent, ID: id})
	}

	tokens := make(map[string]string, len(actors))
	for _, a := range actors {
		token, err := jwtSvc.GenerateAccessToken(a.ID, string(a.Role))
		if err != nil {
			return nil, fmt.Errorf("не удалось выпустить токен для %s: %w", a.ID, err)
		}
		tokens[string(a.Role)+":"+a.ID] = token
	}
	return tokens, nil
}
