package db

import (
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"food-delivery/pkg/types"
)

// ApplyListParams переносит фильтры, поиск, сортировку и пагинацию из
// запроса в SELECT. Поля, которых нет в allowedMap, молча игнорируются.
// Поиск (ILIKE) идёт по searchCols; без них filter.Search не учитывается.
func ApplyListParams(builder sq.SelectBuilder, filter types.Filter, allowedMap map[string]string, searchCols ...string) sq.SelectBuilder {
	for _, field := range sortedKeys(filter.Filter) {
		dbCol, ok := allowedMap[field]
		if !ok {
			continue
		}
		val := filter.Filter[field]
		if s, ok := val.(string); ok && strings.Contains(s, ",") {
			builder = builder.Where(sq.Eq{dbCol: strings.Split(s, ",")})
			continue
		}
		builder = builder.Where(sq.Eq{dbCol: val})
	}

	if search := strings.TrimSpace(filter.Search); search != "" && len(searchCols) > 0 {
		pattern := "%" + escapeLike(search) + "%"
		or := make(sq.Or, 0, len(searchCols))
		for _, col := range searchCols {
			or = append(or, sq.ILike{col: pattern})
		}
		builder = builder.Where(or)
	}

	// Порядок ключей фиксирован, чтобы ORDER BY не зависел от обхода map.
	for _, field := range sortedKeys(filter.Sort) {
		dbCol, ok := allowedMap[field]
		if !ok {
			continue
		}
		dir := "ASC"
		if strings.EqualFold(filter.Sort[field], "desc") {
			dir = "DESC"
		}
		builder = builder.OrderBy(fmt.Sprintf("%s %s", dbCol, dir))
	}

	if filter.WithPagination {
		if filter.Limit > 0 {
			builder = builder.Limit(uint64(filter.Limit))
		}
		if filter.Offset > 0 {
			builder = builder.Offset(uint64(filter.Offset))
		}
	}

	return builder
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
