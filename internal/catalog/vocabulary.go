package catalog

import (
	"context"
	"fmt"

	"github.com/roach88/vsptd/internal/memo"
	"github.com/roach88/vsptd/internal/querysql"
	"github.com/roach88/vsptd/internal/ruleerr"
	"github.com/roach88/vsptd/internal/store"
	"github.com/roach88/vsptd/internal/subst"
)

// ColumnResolver maps (prefix, name, agent) to a physical column using the
// ontology vocabulary in the metadata store. A missing mapping must be
// reported as UnresolvedColumn.
type ColumnResolver interface {
	ResolveColumn(ctx context.Context, prefix, name, agent string, meta store.Locator) (string, error)
}

// ColumnResolverFunc adapts a function to ColumnResolver.
type ColumnResolverFunc func(ctx context.Context, prefix, name, agent string, meta store.Locator) (string, error)

// ResolveColumn calls f.
func (f ColumnResolverFunc) ResolveColumn(ctx context.Context, prefix, name, agent string, meta store.Locator) (string, error) {
	return f(ctx, prefix, name, agent, meta)
}

// SQLVocabulary is the default ColumnResolver. It reads the vocabulary
// table named by the metadata schema.
type SQLVocabulary struct {
	conns  *ConnectionCache
	schema MetadataSchema
}

// NewSQLVocabulary creates a vocabulary reader over conns.
func NewSQLVocabulary(conns *ConnectionCache, schema MetadataSchema) *SQLVocabulary {
	return &SQLVocabulary{conns: conns, schema: schema}
}

// ResolveColumn implements ColumnResolver.
func (v *SQLVocabulary) ResolveColumn(ctx context.Context, prefix, name, agent string, meta store.Locator) (string, error) {
	h, err := v.conns.Get(ctx, meta)
	if err != nil {
		return "", err
	}
	defer h.Close()

	st, err := querysql.NewSQLCompiler().Compile(v.schema.vocabularyQuery(prefix, name, agent))
	if err != nil {
		return "", fmt.Errorf("compile vocabulary lookup: %w", err)
	}
	rows, err := h.QueryRows(ctx, st.SQL, st.Params()...)
	if err != nil {
		return "", fmt.Errorf("lookup column %s.%s: %w", prefix, name, err)
	}
	if len(rows) == 0 || rows[0][0] == nil || text(rows[0][0]) == "" {
		return "", ruleerr.New(ruleerr.UnresolvedColumn,
			fmt.Sprintf("no column for agent %s", agent), prefix+"."+name)
	}
	return text(rows[0][0]), nil
}

type columnKey struct {
	prefix, name, agent string
	meta                store.Locator
}

// VocabularyBinding memoizes a ColumnResolver by
// (prefix, name, agent, metadata locator).
type VocabularyBinding struct {
	resolver ColumnResolver
	cache    *memo.Cache[columnKey, string]
}

// NewVocabularyBinding wraps resolver with a cache of at most size entries.
func NewVocabularyBinding(resolver ColumnResolver, size int, observe Observer) (*VocabularyBinding, error) {
	var opts []memo.Option[columnKey, string]
	if observe != nil {
		opts = append(opts, memo.WithObserver[columnKey, string](observe))
	}
	cache, err := memo.New[columnKey, string]("columns", size, opts...)
	if err != nil {
		return nil, err
	}
	return &VocabularyBinding{resolver: resolver, cache: cache}, nil
}

// Column returns the column bound to (prefix, name) for agent.
func (b *VocabularyBinding) Column(ctx context.Context, prefix, name, agent string, meta store.Locator) (string, error) {
	key := columnKey{prefix: prefix, name: name, agent: agent, meta: meta}
	return b.cache.Get(ctx, key, func(ctx context.Context) (string, error) {
		return b.resolver.ResolveColumn(ctx, prefix, name, agent, meta)
	})
}

// Binder fixes agent and metadata store, giving the substitution engine
// its column lookup.
func (b *VocabularyBinding) Binder(agent string, meta store.Locator) subst.Binder {
	return subst.BinderFunc(func(ctx context.Context, prefix, name string) (string, error) {
		return b.Column(ctx, prefix, name, agent, meta)
	})
}

// Stats returns cache activity.
func (b *VocabularyBinding) Stats() memo.Stats {
	return b.cache.Stats()
}
