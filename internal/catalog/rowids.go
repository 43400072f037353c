package catalog

import (
	"context"
	"fmt"

	"github.com/roach88/vsptd/internal/memo"
	"github.com/roach88/vsptd/internal/store"
)

// rowIDQuery reads the WITHOUT ROWID flag of a main-schema table.
const rowIDQuery = `SELECT "wr" FROM pragma_table_list WHERE "schema" = 'main' AND "name" = ?`

type rowIDKey struct {
	table string
	data  store.Locator
}

// RowIDResolver reports whether a data store table has a rowid.
type RowIDResolver struct {
	conns *ConnectionCache
	cache *memo.Cache[rowIDKey, bool]
}

// NewRowIDResolver creates a resolver caching at most size tables.
func NewRowIDResolver(conns *ConnectionCache, size int, observe Observer) (*RowIDResolver, error) {
	var opts []memo.Option[rowIDKey, bool]
	if observe != nil {
		opts = append(opts, memo.WithObserver[rowIDKey, bool](observe))
	}
	cache, err := memo.New[rowIDKey, bool]("rowids", size, opts...)
	if err != nil {
		return nil, err
	}
	return &RowIDResolver{conns: conns, cache: cache}, nil
}

// HasRowID reports whether table in the data store has a rowid. Views and
// tables the store does not list count as having one.
func (r *RowIDResolver) HasRowID(ctx context.Context, table string, data store.Locator) (bool, error) {
	return r.cache.Get(ctx, rowIDKey{table: table, data: data}, func(ctx context.Context) (bool, error) {
		h, err := r.conns.Get(ctx, data)
		if err != nil {
			return false, err
		}
		defer h.Close()

		rows, err := h.QueryRows(ctx, rowIDQuery, table)
		if err != nil {
			return false, fmt.Errorf("inspect table %s: %w", table, err)
		}
		if len(rows) == 0 || len(rows[0]) == 0 {
			return true, nil
		}
		wr, _ := rows[0][0].(int64)
		return wr == 0, nil
	})
}

// Stats returns cache activity.
func (r *RowIDResolver) Stats() memo.Stats {
	return r.cache.Stats()
}
