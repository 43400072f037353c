package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/vsptd/internal/engine"
	"github.com/roach88/vsptd/internal/store"
)

// ContextFlags describe the agent a single rule runs for.
type ContextFlags struct {
	Agent     string
	DB        string
	DBKind    string
	Meta      string
	MetaKind  string
	Triples   string
	Reference string
}

func (f *ContextFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Agent, "agent", "", "agent name (required)")
	cmd.Flags().StringVar(&f.DB, "db", "", "path to the agent's data store (required)")
	cmd.Flags().StringVar(&f.DBKind, "db-kind", "SQLite", "data store kind (name or number)")
	cmd.Flags().StringVar(&f.Meta, "meta", "", "path to the metadata store (required)")
	cmd.Flags().StringVar(&f.MetaKind, "meta-kind", "SQLite", "metadata store kind (name or number)")
	cmd.Flags().StringVar(&f.Triples, "triples", "", "primary triplets, e.g. \"$L.D=35;$L.L=10;\"")
	cmd.Flags().StringVar(&f.Reference, "reference", "", "reference triplets")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("meta")
}

// context validates the flags into an agent context. Every failure is a
// command error.
func (f *ContextFlags) context() (*engine.AgentContext, error) {
	dbKind, err := store.ParseKind(f.DBKind)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --db-kind", err)
	}
	metaKind, err := store.ParseKind(f.MetaKind)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --meta-kind", err)
	}

	ac, err := engine.NewAgentContext(engine.AgentSpec{
		Agent:     f.Agent,
		Store:     store.Locator{Path: f.DB, Kind: dbKind},
		Metadata:  store.Locator{Path: f.Meta, Kind: metaKind},
		Triples:   f.Triples,
		Reference: f.Reference,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid context for agent %q", f.Agent), err)
	}
	return ac, nil
}
