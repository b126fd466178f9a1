package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"food-delivery/internal/entities"
	db "food-delivery/internal/infrastructure/bd"
	apperrors "food-delivery/pkg/errors"
	"food-delivery/pkg/types"
)

const (
	orderTable  = "orders"
	orderFields = `id::text, customer_id, restaurant_id, agent_id, line_items, total_amount, delivery_address, status, status_history, created_at, updated_at`
)

// ErrStaleOrder - условное обновление не затронуло ни одной строки:
// статус заказа успел измениться между чтением и записью.
var ErrStaleOrder = errors.New("order state changed concurrently")

// allowedOrderFilters - БЕЛЫЙ СПИСОК для фильтрации и сортировки
var allowedOrderFilters = map[string]string{
	"status":        "status",
	"customer_id":   "customer_id",
	"restaurant_id": "restaurant_id",
	"agent_id":      "agent_id",
	"total_amount":  "total_amount",
	"created_at":    "created_at",
	"updated_at":    "updated_at",
}

var orderSearchColumns = []string{"id::text", "customer_id", "restaurant_id"}

// OrderScope ограничивает выборку заказами, которые видит вызывающий.
type OrderScope struct {
	CustomerID    string
	RestaurantID  string
	AgentID       string
	Statuses      []entities.OrderStatus
	UnclaimedOnly bool
}

// TransitionCommand describes one conditional status write.
type TransitionCommand struct {
	OrderID        string
	ExpectedStatus entities.OrderStatus
	Target         entities.OrderStatus
	Entry          entities.StatusHistoryEntry
	// AssignAgentID is set only for the claim; the write then also requires agent_id IS NULL.
	AssignAgentID string
}

type OrderRepositoryInterface interface {
	Create(ctx context.Context, order *entities.Order) error
	FindByID(ctx context.Context, id string) (*entities.Order, error)
	List(ctx context.Context, scope OrderScope, filter types.Filter) ([]*entities.Order, uint64, error)
	ApplyTransition(ctx context.Context, cmd TransitionCommand) (*entities.Order, error)
}

type OrderRepository struct {
	storage *pgxpool.Pool
	logger  *zap.Logger
}

func NewOrderRepository(storage *pgxpool.Pool, logger *zap.Logger) OrderRepositoryInterface {
	return &OrderRepository{storage: storage, logger: logger}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func (r *OrderRepository) Create(ctx context.Context, order *entities.Order) error {
	lineItems, err := json.Marshal(order.LineItems)
	if err != nil {
		return fmt.Errorf("ошибка сериализации line_items: %w", err)
	}
	address, err := json.Marshal(order.DeliveryAddress)
	if err != nil {
		return fmt.Errorf("ошибка сериализации delivery_address: %w", err)
	}
	history, err := json.Marshal(order.StatusHistory)
	if err != nil {
		return fmt.Errorf("ошибка сериализации status_history: %w", err)
	}

	query, args, err := psql.Insert(orderTable).
		Columns("id", "customer_id", "restaurant_id", "agent_id", "line_items", "total_amount",
			"delivery_address", "status", "status_history", "created_at", "updated_at").
		Values(sq.Expr("?::uuid", order.ID), order.CustomerID, order.RestaurantID, order.AgentID,
			sq.Expr("?::jsonb", string(lineItems)), order.TotalAmount, sq.Expr("?::jsonb", string(address)),
			string(order.Status), sq.Expr("?::jsonb", string(history)), order.CreatedAt, order.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("ошибка сборки SQL для Create: %w", err)
	}

	if _, err := r.storage.Exec(ctx, query, args...); err != nil {
		return storageError("insert order", err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*entities.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.ErrNotFound
	}
	return r.findOne(ctx, r.storage, sq.Expr("id = ?::uuid", id))
}

func (r *OrderRepository) findOne(ctx context.Context, q Querier, where sq.Sqlizer) (*entities.Order, error) {
	query, args, err := psql.Select(orderFields).From(orderTable).Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки SQL для findOne: %w", err)
	}
	order, err := scanOrder(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

func (r *OrderRepository) List(ctx context.Context, scope OrderScope, filter types.Filter) ([]*entities.Order, uint64, error) {
	base := applyScope(psql.Select().From(orderTable), scope)

	countFilter := filter
	countFilter.Sort = nil
	countFilter.WithPagination = false
	countQuery, countArgs, err := db.ApplyListParams(base.Columns("COUNT(*)"), countFilter, allowedOrderFilters, orderSearchColumns...).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка сборки SQL для подсчёта заказов: %w", err)
	}
	var total uint64
	if err := r.storage.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, storageError("count orders", err)
	}

	builder := db.ApplyListParams(base.Columns(orderFields), filter, allowedOrderFilters, orderSearchColumns...)
	if len(filter.Sort) == 0 {
		builder = builder.OrderBy("created_at DESC")
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка сборки SQL для списка заказов: %w", err)
	}

	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, storageError("list orders", err)
	}
	defer rows.Close()

	orders := make([]*entities.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storageError("iterate orders", err)
	}
	return orders, total, nil
}

// ApplyTransition выполняет условное обновление одним запросом: статус меняется
// только если он всё ещё равен ExpectedStatus (а для захвата курьером - только
// если agent_id пуст). Ноль строк означает ErrStaleOrder.
func (r *OrderRepository) ApplyTransition(ctx context.Context, cmd TransitionCommand) (*entities.Order, error) {
	if _, err := uuid.Parse(cmd.OrderID); err != nil {
		return nil, apperrors.ErrNotFound
	}
	entry, err := json.Marshal([]entities.StatusHistoryEntry{cmd.Entry})
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации записи истории: %w", err)
	}

	builder := psql.Update(orderTable).
		Set("status", string(cmd.Target)).
		Set("status_history", sq.Expr("status_history || ?::jsonb", string(entry))).
		Set("updated_at", cmd.Entry.At).
		Where(sq.Expr("id = ?::uuid", cmd.OrderID)).
		Where(sq.Eq{"status": string(cmd.ExpectedStatus)})
	if cmd.AssignAgentID != "" {
		builder = builder.Set("agent_id", cmd.AssignAgentID).Where(sq.Eq{"agent_id": nil})
	}

	query, args, err := builder.Suffix("RETURNING " + orderFields).ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки SQL для ApplyTransition: %w", err)
	}

	order, err := scanOrder(r.storage.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("условное обновление заказа не применилось",
				zap.String("orderID", cmd.OrderID),
				zap.String("expected", cmd.ExpectedStatus.String()),
				zap.String("target", cmd.Target.String()))
			return nil, ErrStaleOrder
		}
		return nil, err
	}
	return order, nil
}

func applyScope(builder sq.SelectBuilder, scope OrderScope) sq.SelectBuilder {
	if scope.CustomerID != "" {
		builder = builder.Where(sq.Eq{"customer_id": scope.CustomerID})
	}
	if scope.RestaurantID != "" {
		builder = builder.Where(sq.Eq{"restaurant_id": scope.RestaurantID})
	}
	if scope.AgentID != "" {
		builder = builder.Where(sq.Eq{"agent_id": scope.AgentID})
	}
	if scope.UnclaimedOnly {
		builder = builder.Where(sq.Eq{"agent_id": nil})
	}
	if len(scope.Statuses) > 0 {
		statuses := make([]string, 0, len(scope.Statuses))
		for _, s := range scope.Statuses {
			statuses = append(statuses, string(s))
		}
		builder = builder.Where(sq.Eq{"status": statuses})
	}
	return builder
}

// scanOrder - универсальное сканирование одного заказа
func scanOrder(row pgx.Row) (*entities.Order, error) {
	var (
		o                              entities.Order
		status                         string
		lineItems, address, historyRaw []byte
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.RestaurantID, &o.AgentID,
		&lineItems, &o.TotalAmount, &address, &status, &historyRaw,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, storageError("scan order", err)
	}

	o.Status = entities.OrderStatus(status)
	if err := json.Unmarshal(lineItems, &o.LineItems); err != nil {
		return nil, fmt.Errorf("ошибка разбора line_items заказа %s: %w", o.ID, err)
	}
	if err := json.Unmarshal(address, &o.DeliveryAddress); err != nil {
		return nil, fmt.Errorf("ошибка разбора delivery_address заказа %s: %w", o.ID, err)
	}
	if err := json.Unmarshal(historyRaw, &o.StatusHistory); err != nil {
		return nil, fmt.Errorf("ошибка разбора status_history заказа %s: %w", o.ID, err)
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}

// storageError помечает сбои хранилища как ErrStorageUnavailable. Нарушения
// ограничений (класс 23) остаются обычными ошибками.
func storageError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 && pgErr.Code[:2] == "23" {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", apperrors.ErrStorageUnavailable, op, err)
}
