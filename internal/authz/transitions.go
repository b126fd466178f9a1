package authz

import (
	"food-delivery/internal/entities"
)

// CanTransition решает, может ли участник запросить перевод заказа в target.
// Проверка не смотрит на граф переходов: несуществующее ребро отклоняется
// позже как InvalidTransition.
func CanTransition(actor entities.Actor, order *entities.Order, target entities.OrderStatus) bool {
	if actor.ID == "" || order == nil {
		return false
	}

	switch actor.Role {
	case entities.RoleAdmin:
		return true

	case entities.RoleRestaurant:
		if order.RestaurantID != actor.ID {
			return false
		}
		switch target {
		case entities.StatusRestaurantReviewing, entities.StatusPreparing, entities.StatusAwaitingAgent:
			return true
		case entities.StatusCancelled:
			// Ресторан отклоняет заказ только до начала готовки.
			return canCancelFrom(order.Status)
		}
		return false

	case entities.RoleCustomer:
		if order.CustomerID != actor.ID || target != entities.StatusCancelled {
			return false
		}
		return canCancelFrom(order.Status)

	case entities.RoleAgent:
		switch target {
		case entities.StatusAgentAssigned:
			return true
		case entities.StatusPickedUp, entities.StatusDelivered:
			if order.IsAssignedTo(actor.ID) {
				return true
			}
		}
		return false
	}

	return false
}

// canCancelFrom allows cancelling from early states and leaves terminal
// orders to the graph check, so a repeated cancel reads as InvalidTransition.
func canCancelFrom(current entities.OrderStatus) bool {
	if current.IsEarly() || current.IsTerminal() {
		return true
	}
	return false
}

// CanViewOrder - кто может читать заказ и подписываться на его обновления.
func CanViewOrder(actor entities.Actor, order *entities.Order) bool {
	if actor.ID == "" || order == nil {
		return false
	}
	switch actor.Role {
	case entities.RoleAdmin:
		return true
	case entities.RoleCustomer:
		return order.CustomerID == actor.ID
	case entities.RoleRestaurant:
		return order.RestaurantID == actor.ID
	case entities.RoleAgent:
		if order.IsAssignedTo(actor.ID) {
			return true
		}
		return order.Status == entities.StatusAwaitingAgent && !order.AgentID.Valid
	}
	return false
}

// CanJoinAgentPool reports whether the actor may receive new-job notifications.
func CanJoinAgentPool(actor entities.Actor) bool {
	return actor.ID != "" && (actor.Role == entities.RoleAgent || actor.Role == entities.RoleAdmin)
}
