package catalog

import (
	"context"
	"fmt"

	"github.com/roach88/vsptd/internal/memo"
	"github.com/roach88/vsptd/internal/queryir"
	"github.com/roach88/vsptd/internal/querysql"
	"github.com/roach88/vsptd/internal/ruleerr"
	"github.com/roach88/vsptd/internal/store"
)

type tableKey struct {
	agent string
	meta  store.Locator
}

// SchemaResolver maps an agent to the table it owns.
type SchemaResolver struct {
	conns  *ConnectionCache
	schema MetadataSchema
	cache  *memo.Cache[tableKey, string]
}

// NewSchemaResolver creates a resolver caching at most size tables.
func NewSchemaResolver(conns *ConnectionCache, schema MetadataSchema, size int, observe Observer) (*SchemaResolver, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	var opts []memo.Option[tableKey, string]
	if observe != nil {
		opts = append(opts, memo.WithObserver[tableKey, string](observe))
	}
	cache, err := memo.New[tableKey, string]("tables", size, opts...)
	if err != nil {
		return nil, err
	}
	return &SchemaResolver{conns: conns, schema: schema, cache: cache}, nil
}

// Table returns the validated table name for agent.
// An agent with no row in the agents table is UnknownAgent.
func (r *SchemaResolver) Table(ctx context.Context, agent string, meta store.Locator) (string, error) {
	return r.cache.Get(ctx, tableKey{agent: agent, meta: meta}, func(ctx context.Context) (string, error) {
		h, err := r.conns.Get(ctx, meta)
		if err != nil {
			return "", err
		}
		defer h.Close()

		st, err := querysql.NewSQLCompiler().Compile(r.schema.agentTableQuery(agent))
		if err != nil {
			return "", fmt.Errorf("compile agent lookup: %w", err)
		}
		rows, err := h.QueryRows(ctx, st.SQL, st.Params()...)
		if err != nil {
			return "", fmt.Errorf("lookup table for agent %s: %w", agent, err)
		}
		if len(rows) == 0 || len(rows[0]) == 0 || rows[0][0] == nil {
			return "", ruleerr.New(ruleerr.UnknownAgent, "agent has no table in the metadata store", agent)
		}

		table := text(rows[0][0])
		if err := queryir.ValidateIdentifier(table); err != nil {
			return "", err
		}
		return table, nil
	})
}

// Stats returns cache activity.
func (r *SchemaResolver) Stats() memo.Stats {
	return r.cache.Stats()
}
