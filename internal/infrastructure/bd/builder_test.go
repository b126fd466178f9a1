package db

import (
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"food-delivery/pkg/types"
)

var allowed = map[string]string{
	"status":     "status",
	"created_at": "created_at",
	"total":      "total_amount",
}

func selectOrders() sq.SelectBuilder {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar).Select("id").From("orders")
}

func TestApplyListParams_FiltersAndSort(t *testing.T) {
	filter := types.Filter{
		Filter: map[string]interface{}{"status": "PLACED,PREPARING", "password": "x"},
		Sort:   map[string]string{"total": "desc", "created_at": "asc", "nope": "desc"},
		Limit:  20, Offset: 40, WithPagination: true,
	}

	query, args, err := ApplyListParams(selectOrders(), filter, allowed).ToSql()
	require.NoError(t, err)

	assert.Contains(t, query, "status IN ($1,$2)")
	assert.NotContains(t, query, "password")
	assert.Contains(t, query, "ORDER BY created_at ASC, total_amount DESC")
	assert.Contains(t, query, "LIMIT 20 OFFSET 40")
	assert.Equal(t, []interface{}{"PLACED", "PREPARING"}, args)
}

func TestApplyListParams_Search(t *testing.T) {
	filter := types.Filter{Search: "rest_1%"}

	query, args, err := ApplyListParams(selectOrders(), filter, allowed, "restaurant_id", "customer_id").ToSql()
	require.NoError(t, err)

	assert.Contains(t, query, "(restaurant_id ILIKE $1 OR customer_id ILIKE $2)")
	assert.Equal(t, []interface{}{`%rest\_1\%%`, `%rest\_1\%%`}, args)

	query, _, err = ApplyListParams(selectOrders(), filter, allowed).ToSql()
	require.NoError(t, err)
	assert.NotContains(t, query, "ILIKE")
}

func TestApplyListParams_NoPagination(t *testing.T) {
	query, _, err := ApplyListParams(selectOrders(), types.Filter{Limit: 10, Offset: 5}, allowed).ToSql()
	require.NoError(t, err)
	assert.NotContains(t, query, "LIMIT")
	assert.NotContains(t, query, "OFFSET")
}
