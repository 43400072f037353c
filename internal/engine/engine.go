package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/vsptd/internal/catalog"
	"github.com/roach88/vsptd/internal/condition"
	"github.com/roach88/vsptd/internal/config"
	"github.com/roach88/vsptd/internal/memo"
	"github.com/roach88/vsptd/internal/metrics"
	"github.com/roach88/vsptd/internal/querysql"
	"github.com/roach88/vsptd/internal/rule"
	"github.com/roach88/vsptd/internal/ruleerr"
	"github.com/roach88/vsptd/internal/subst"
	"github.com/roach88/vsptd/internal/triple"
)

// Evaluator decides whether a rule's condition holds.
// Bound references ($P.N) read primary; bare references read reference.
type Evaluator interface {
	Evaluate(cond string, primary, reference *triple.Pool) (bool, error)
}

// Default cache capacities.
const (
	DefaultTableCacheSize      = 4
	DefaultColumnCacheSize     = 8
	DefaultConnectionCacheSize = 8
)

// Engine evaluates rules.
//
// Thread-safety: Exec and Explain are safe for concurrent use. Store
// writes are serialized by the store itself.
type Engine struct {
	grammar   *rule.Grammar
	evaluator Evaluator
	subst     *subst.Substituter
	compiler  *querysql.SQLCompiler

	conns   *catalog.ConnectionCache
	tables  *catalog.SchemaResolver
	columns *catalog.VocabularyBinding
	rowids  *catalog.RowIDResolver

	// seq orders evaluations within this engine; the first is 1.
	seq     atomic.Int64
	ids     IDGenerator
	metrics *metrics.Metrics
	logger  *slog.Logger

	resultPrefix string
	resultName   string

	closed atomic.Bool
}

type settings struct {
	grammar      *rule.Grammar
	evaluator    Evaluator
	resolver     catalog.ColumnResolver
	opener       catalog.Opener
	schema       catalog.MetadataSchema
	tableSize    int
	columnSize   int
	connSize     int
	storeTimeout time.Duration
	resultPrefix string
	resultName   string
	ids          IDGenerator
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// Option configures an Engine.
type Option func(*settings)

// WithGrammar sets the rule keywords and connectives.
// Default: rule.Default.
func WithGrammar(g *rule.Grammar) Option {
	return func(s *settings) { s.grammar = g }
}

// WithEvaluator replaces the condition evaluator.
// Default: condition.New over the engine's grammar.
func WithEvaluator(ev Evaluator) Option {
	return func(s *settings) { s.evaluator = ev }
}

// WithColumnResolver replaces the vocabulary lookup. The engine still
// caches its answers.
// Default: catalog.SQLVocabulary over the metadata store.
func WithColumnResolver(r catalog.ColumnResolver) Option {
	return func(s *settings) { s.resolver = r }
}

// WithOpener replaces how store connections are opened.
// Default: catalog.OpenStore.
func WithOpener(o catalog.Opener) Option {
	return func(s *settings) { s.opener = o }
}

// WithMetadataSchema sets the metadata table and column names.
func WithMetadataSchema(schema catalog.MetadataSchema) Option {
	return func(s *settings) { s.schema = schema }
}

// WithCacheSizes sets the capacities of the table, column and connection
// caches.
func WithCacheSizes(tables, columns, connections int) Option {
	return func(s *settings) {
		s.tableSize, s.columnSize, s.connSize = tables, columns, connections
	}
}

// WithStoreTimeout bounds every store call, metadata lookups and whole
// transactions included. Zero disables the deadline.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *settings) { s.storeTimeout = d }
}

// WithResultAttribute sets the attribute a find projects (default E.NM).
// Results are returned under prefix, prefix1, prefix2, ...
func WithResultAttribute(prefix, name string) Option {
	return func(s *settings) { s.resultPrefix, s.resultName = prefix, name }
}

// WithIDGenerator replaces the evaluation ID generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *settings) { s.ids = g }
}

// WithMetrics records evaluations, cache activity and store latency in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// FromConfig translates a loaded configuration into options.
func FromConfig(cfg *config.Config) ([]Option, error) {
	g, err := rule.NewGrammar(cfg.Keywords)
	if err != nil {
		return nil, fmt.Errorf("keywords: %w", err)
	}
	return []Option{
		WithGrammar(g),
		WithMetadataSchema(cfg.Metadata),
		WithResultAttribute(cfg.Result.Prefix, cfg.Result.Name),
		WithCacheSizes(cfg.Cache.Tables, cfg.Cache.Columns, cfg.Cache.Connections),
		WithStoreTimeout(cfg.Store.Timeout),
	}, nil
}

// New creates an Engine with its own caches.
func New(opts ...Option) (*Engine, error) {
	s := settings{
		grammar:      rule.Default,
		schema:       catalog.DefaultMetadataSchema(),
		tableSize:    DefaultTableCacheSize,
		columnSize:   DefaultColumnCacheSize,
		connSize:     DefaultConnectionCacheSize,
		resultPrefix: "E",
		resultName:   "NM",
		ids:          UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&s)
	}

	if s.grammar == nil {
		s.grammar = rule.Default
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.evaluator == nil {
		s.evaluator = condition.New(s.grammar)
	}
	if !triple.IsPrefix(s.resultPrefix) || s.resultName == "" {
		return nil, fmt.Errorf("invalid result attribute %s.%s", s.resultPrefix, s.resultName)
	}
	if s.storeTimeout < 0 {
		return nil, fmt.Errorf("store timeout must not be negative")
	}

	var observe catalog.Observer
	connOpts := []catalog.ConnectionOption{catalog.WithCallTimeout(s.storeTimeout)}
	if s.metrics != nil {
		observe = s.metrics.ObserveCache
		connOpts = append(connOpts, catalog.WithCallObserver(s.metrics.ObserveStore))
	}

	conns, err := catalog.NewConnectionCache(s.connSize, s.opener, observe, connOpts...)
	if err != nil {
		return nil, fmt.Errorf("connection cache: %w", err)
	}
	tables, err := catalog.NewSchemaResolver(conns, s.schema, s.tableSize, observe)
	if err != nil {
		return nil, fmt.Errorf("table cache: %w", err)
	}
	if s.resolver == nil {
		s.resolver = catalog.NewSQLVocabulary(conns, s.schema)
	}
	columns, err := catalog.NewVocabularyBinding(s.resolver, s.columnSize, observe)
	if err != nil {
		return nil, fmt.Errorf("column cache: %w", err)
	}
	rowids, err := catalog.NewRowIDResolver(conns, s.tableSize, observe)
	if err != nil {
		return nil, fmt.Errorf("rowid cache: %w", err)
	}

	return &Engine{
		grammar:      s.grammar,
		evaluator:    s.evaluator,
		subst:        subst.New(s.grammar),
		compiler:     querysql.NewSQLCompiler(),
		conns:        conns,
		tables:       tables,
		columns:      columns,
		rowids:       rowids,
		ids:          s.ids,
		metrics:      s.metrics,
		logger:       s.logger,
		resultPrefix: s.resultPrefix,
		resultName:   s.resultName,
	}, nil
}

// Grammar returns the engine's rule grammar.
func (e *Engine) Grammar() *rule.Grammar {
	return e.grammar
}

// Exec evaluates one rule for ac.
//
// A false condition returns OutcomeNoMatch without touching any store.
// Any error aborts the rule; nothing it would have written is committed.
func (e *Engine) Exec(ctx context.Context, text string, ac *AgentContext) (res Result, err error) {
	if e.closed.Load() {
		return Result{}, ErrClosed
	}
	if ac == nil {
		return Result{}, ruleerr.New(ruleerr.InvalidContext, "agent context is nil", "")
	}

	res = Result{ID: e.ids.Generate(), Seq: e.seq.Add(1)}
	log := e.logger.With("eval", res.ID, "agent", ac.Agent())
	defer func() { e.record(log, res, err) }()

	cond, actionText, err := e.grammar.ParseEnvelope(text)
	if err != nil {
		return res, err
	}

	matched, err := e.evaluator.Evaluate(cond, ac.Primary(), ac.Reference())
	if err != nil {
		return res, fmt.Errorf("evaluate condition: %w", err)
	}
	if !matched {
		res.Outcome = OutcomeNoMatch
		return res, nil
	}

	action, err := e.grammar.Classify(actionText)
	if err != nil {
		return res, err
	}
	res.Action = action.Kind()

	plan, err := e.plan(ctx, action, ac)
	if err != nil {
		return res, err
	}
	return e.execute(ctx, plan, ac, res)
}

// Explanation describes what a rule would do, without running it.
type Explanation struct {
	Condition string
	Matched   bool
	Action    rule.Action
	Plan      *Plan
}

// Explain parses the rule, evaluates its condition and builds its
// statements. It reads the metadata store but never the data store.
// The plan is built even when the condition does not match. A find
// against a WITHOUT ROWID table shows the rowid tiebreaker that Exec
// drops, since telling the two apart needs the data store.
func (e *Engine) Explain(ctx context.Context, text string, ac *AgentContext) (*Explanation, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if ac == nil {
		return nil, ruleerr.New(ruleerr.InvalidContext, "agent context is nil", "")
	}

	cond, actionText, err := e.grammar.ParseEnvelope(text)
	if err != nil {
		return nil, err
	}
	matched, err := e.evaluator.Evaluate(cond, ac.Primary(), ac.Reference())
	if err != nil {
		return nil, fmt.Errorf("evaluate condition: %w", err)
	}
	action, err := e.grammar.Classify(actionText)
	if err != nil {
		return nil, err
	}
	plan, err := e.plan(ctx, action, ac)
	if err != nil {
		return nil, err
	}
	return &Explanation{Condition: cond, Matched: matched, Action: action, Plan: plan}, nil
}

// CacheStats reports activity of the engine's caches.
type CacheStats struct {
	Tables      memo.Stats
	Columns     memo.Stats
	RowIDs      memo.Stats
	Connections memo.Stats
}

// Stats returns cache activity.
func (e *Engine) Stats() CacheStats {
	return CacheStats{
		Tables:      e.tables.Stats(),
		Columns:     e.columns.Stats(),
		RowIDs:      e.rowids.Stats(),
		Connections: e.conns.Stats(),
	}
}

// Close releases every cached store connection. Further calls to Exec or
// Explain return ErrClosed.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.conns.Close()
	return nil
}

func (e *Engine) record(log *slog.Logger, res Result, err error) {
	if err != nil {
		e.metrics.ObserveFailure(failureCode(err))
		log.Warn("rule failed", "seq", res.Seq, "error", err)
		return
	}
	e.metrics.ObserveEvaluation(res.actionLabel(), string(res.Outcome))
	log.Info("rule evaluated", "seq", res.Seq, "action", res.actionLabel(), "outcome", string(res.Outcome))
}
