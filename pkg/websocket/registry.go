package websocket

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var ErrUnknownConnection = errors.New("websocket: unknown connection")

const orderInterestPrefix = "order:"

// Interest - то, на что подписано соединение: конкретный заказ или пул курьеров.
type Interest string

const AgentPoolInterest Interest = "agent-pool"

func OrderInterest(orderID string) Interest {
	return Interest(orderInterestPrefix + orderID)
}

// OrderID returns the order id of an order interest.
func (i Interest) OrderID() (string, bool) {
	if !strings.HasPrefix(string(i), orderInterestPrefix) {
		return "", false
	}
	return strings.TrimPrefix(string(i), orderInterestPrefix), true
}

// Subscriber - живое соединение. Deliver не должен блокироваться.
type Subscriber interface {
	ID() string
	Deliver(msg []byte) error
	Close()
}

// Registry хранит соединения и их подписки. Все мутации идут под одной
// блокировкой, поэтому читатель никогда не видит половину изменения.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]Subscriber
	byInterest  map[Interest]map[string]struct{}
	byConn      map[string]map[Interest]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]Subscriber),
		byInterest:  make(map[Interest]map[string]struct{}),
		byConn:      make(map[string]map[Interest]struct{}),
	}
}

func (r *Registry) Register(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[sub.ID()] = sub
	if _, ok := r.byConn[sub.ID()]; !ok {
		r.byConn[sub.ID()] = make(map[Interest]struct{})
	}
}

func (r *Registry) Subscribe(connID string, interest Interest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	interests, ok := r.byConn[connID]
	if !ok {
		return ErrUnknownConnection
	}
	interests[interest] = struct{}{}

	subs, ok := r.byInterest[interest]
	if !ok {
		subs = make(map[string]struct{})
		r.byInterest[interest] = subs
	}
	subs[connID] = struct{}{}
	return nil
}

func (r *Registry) Unsubscribe(connID string, interest Interest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if interests, ok := r.byConn[connID]; ok {
		delete(interests, interest)
	}
	r.dropLocked(connID, interest)
}

// UnsubscribeAll снимает все подписки соединения и забывает его.
func (r *Registry) UnsubscribeAll(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for interest := range r.byConn[connID] {
		r.dropLocked(connID, interest)
	}
	delete(r.byConn, connID)
	delete(r.connections, connID)
}

func (r *Registry) dropLocked(connID string, interest Interest) {
	subs, ok := r.byInterest[interest]
	if !ok {
		return
	}
	delete(subs, connID)
	if len(subs) == 0 {
		delete(r.byInterest, interest)
	}
}

// ListSubscribers returns a sorted snapshot of connection ids.
func (r *Registry) ListSubscribers(interest Interest) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subs := r.byInterest[interest]
	out := make([]string, 0, len(subs))
	for id := range subs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Subscriber(connID string) (Subscriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.connections[connID]
	return sub, ok
}

func (r *Registry) Interests(connID string) []Interest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	interests := r.byConn[connID]
	out := make([]Interest, 0, len(interests))
	for i := range interests {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// Len - количество зарегистрированных соединений.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
