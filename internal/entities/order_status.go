package entities

// OrderStatus - состояние заказа. Допустимые значения и переходы между ними
// описаны только здесь.
type OrderStatus string

const (
	StatusPlaced              OrderStatus = "PLACED"
	StatusRestaurantReviewing OrderStatus = "RESTAURANT_REVIEWING"
	StatusPreparing           OrderStatus = "PREPARING"
	StatusAwaitingAgent       OrderStatus = "AWAITING_AGENT"
	StatusAgentAssigned       OrderStatus = "AGENT_ASSIGNED"
	StatusPickedUp            OrderStatus = "PICKED_UP"
	StatusDelivered           OrderStatus = "DELIVERED"
	StatusCancelled           OrderStatus = "CANCELLED"
)

// AllStatuses in lifecycle order, Cancelled last.
var AllStatuses = []OrderStatus{
	StatusPlaced,
	StatusRestaurantReviewing,
	StatusPreparing,
	StatusAwaitingAgent,
	StatusAgentAssigned,
	StatusPickedUp,
	StatusDelivered,
	StatusCancelled,
}

var allowedTransitions = map[OrderStatus][]OrderStatus{
	StatusPlaced:              {StatusRestaurantReviewing, StatusCancelled},
	StatusRestaurantReviewing: {StatusPreparing, StatusCancelled},
	StatusPreparing:           {StatusAwaitingAgent, StatusCancelled},
	StatusAwaitingAgent:       {StatusAgentAssigned, StatusCancelled},
	StatusAgentAssigned:       {StatusPickedUp, StatusCancelled},
	StatusPickedUp:            {StatusDelivered, StatusCancelled},
	StatusDelivered:           {},
	StatusCancelled:           {},
}

type transitionKey struct {
	From OrderStatus
	To   OrderStatus
}

var transitionSet = func() map[transitionKey]bool {
	m := make(map[transitionKey]bool)
	for from, targets := range allowedTransitions {
		for _, to := range targets {
			m[transitionKey{From: from, To: to}] = true
		}
	}
	return m
}()

func (s OrderStatus) IsValid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// IsEarly - заказ ещё не ушёл на кухню; отмена клиентом разрешена только здесь.
func (s OrderStatus) IsEarly() bool {
	return s == StatusPlaced || s == StatusRestaurantReviewing
}

// HasAgent reports whether an order in this status must carry an agent.
func (s OrderStatus) HasAgent() bool {
	return s == StatusAgentAssigned || s == StatusPickedUp || s == StatusDelivered
}

func (s OrderStatus) String() string { return string(s) }

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to OrderStatus) bool {
	return transitionSet[transitionKey{From: from, To: to}]
}

// NextStatuses returns the destinations reachable in one step from s.
func NextStatuses(s OrderStatus) []OrderStatus {
	targets := allowedTransitions[s]
	out := make([]OrderStatus, len(targets))
	copy(out, targets)
	return out
}

// ParseOrderStatus accepts the wire value of a status.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	s := OrderStatus(raw)
	return s, s.IsValid()
}
