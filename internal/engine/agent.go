package engine

import (
	"fmt"
	"strings"

	"github.com/roach88/vsptd/internal/ruleerr"
	"github.com/roach88/vsptd/internal/store"
	"github.com/roach88/vsptd/internal/triple"
)

// AgentSpec describes the agent a rule runs for.
type AgentSpec struct {
	// Agent names the agent; its table comes from the metadata store.
	Agent string

	// Store is the agent's data store.
	Store store.Locator

	// Metadata is the store holding the agents table and the vocabulary.
	Metadata store.Locator

	// Triples is the primary fact pool in triplex form.
	Triples string

	// Reference is the reference fact pool in triplex form. May be empty.
	Reference string
}

// AgentContext is a validated, immutable AgentSpec.
// It is safe to share across goroutines and engines.
type AgentContext struct {
	agent     string
	store     store.Locator
	metadata  store.Locator
	primary   *triple.Pool
	reference *triple.Pool
}

// NewAgentContext validates spec and parses its pools.
//
// Errors:
//   - InvalidContext: empty agent name or locator path
//   - UnsupportedStoreKind: a locator kind that is unknown or not functional
//   - MalformedTriples: a pool that does not parse
func NewAgentContext(spec AgentSpec) (*AgentContext, error) {
	agent := triple.Normalize(strings.TrimSpace(spec.Agent))
	if agent == "" {
		return nil, ruleerr.New(ruleerr.InvalidContext, "agent name is empty", spec.Agent)
	}
	if err := checkLocator("store", spec.Store); err != nil {
		return nil, err
	}
	if err := checkLocator("metadata", spec.Metadata); err != nil {
		return nil, err
	}

	primary, err := triple.Parse(spec.Triples)
	if err != nil {
		return nil, fmt.Errorf("primary triples: %w", err)
	}
	reference, err := triple.Parse(spec.Reference)
	if err != nil {
		return nil, fmt.Errorf("reference triples: %w", err)
	}

	return &AgentContext{
		agent:     agent,
		store:     spec.Store,
		metadata:  spec.Metadata,
		primary:   primary,
		reference: reference,
	}, nil
}

func checkLocator(role string, loc store.Locator) error {
	if strings.TrimSpace(loc.Path) == "" {
		return ruleerr.New(ruleerr.InvalidContext, role+" locator is empty", loc.String())
	}
	if err := loc.Kind.Check(); err != nil {
		return fmt.Errorf("%s locator: %w", role, err)
	}
	return nil
}

// Agent returns the agent name.
func (c *AgentContext) Agent() string { return c.agent }

// Store returns the data store locator.
func (c *AgentContext) Store() store.Locator { return c.store }

// Metadata returns the metadata store locator.
func (c *AgentContext) Metadata() store.Locator { return c.metadata }

// Primary returns the primary fact pool.
func (c *AgentContext) Primary() *triple.Pool { return c.primary }

// Reference returns the reference fact pool.
func (c *AgentContext) Reference() *triple.Pool { return c.reference }

// WithPrimary returns a copy of c using pool as the primary facts.
// A nil pool is an empty pool.
func (c *AgentContext) WithPrimary(pool *triple.Pool) *AgentContext {
	if pool == nil {
		pool = triple.NewPool()
	}
	cp := *c
	cp.primary = pool
	return &cp
}
