package rule

import (
	"fmt"
	"strings"

	"github.com/roach88/vsptd/internal/ruleerr"
	"github.com/roach88/vsptd/internal/triple"
)

// ActionKind identifies the action variant of a THEN clause.
type ActionKind int

const (
	ActionFind ActionKind = iota + 1
	ActionInsert
	ActionDelete
)

// String returns the lowercase action name.
func (k ActionKind) String() string {
	switch k {
	case ActionFind:
		return "find"
	case ActionInsert:
		return "insert"
	case ActionDelete:
		return "delete"
	default:
		return fmt.Sprintf("action(%d)", int(k))
	}
}

// Direction is the sort direction of a find ordering clause.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// SQL returns the direction keyword.
func (d Direction) SQL() string {
	if d == Descending {
		return "DESC"
	}
	return "ASC"
}

// Ordering is the optional ordering clause of a find action.
type Ordering struct {
	// Reference is the raw ordering reference, e.g. "E.D".
	Reference string
	Direction Direction
}

// Action is the classified THEN clause.
//
// This is a sealed interface: Find, Insert and Delete are the only variants.
type Action interface {
	Kind() ActionKind
	action()
}

// Find locates rows matching Predicate and projects the result column.
type Find struct {
	Predicate string
	Order     *Ordering
}

// Insert adds a row built from all triplets sharing Prefix, unless it exists.
type Insert struct {
	Prefix string
}

// Delete removes rows matching all triplets sharing Prefix, if any exist.
type Delete struct {
	Prefix string
}

func (Find) Kind() ActionKind   { return ActionFind }
func (Insert) Kind() ActionKind { return ActionInsert }
func (Delete) Kind() ActionKind { return ActionDelete }

func (Find) action()   {}
func (Insert) action() {}
func (Delete) action() {}

// Rule is a fully parsed rule: envelope plus classified action.
type Rule struct {
	Text       string
	Condition  string
	ActionText string
	Action     Action
}

// ParseEnvelope splits a rule into its condition and action texts.
//
// The rule must match "<If> <condition> <Then> <action><Terminator>".
// Surrounding whitespace is ignored. The returned substrings are not
// otherwise modified.
func (g *Grammar) ParseEnvelope(text string) (condition, action string, err error) {
	m := g.envelope.FindStringSubmatch(triple.Normalize(strings.TrimSpace(text)))
	if m == nil {
		return "", "", ruleerr.New(ruleerr.MalformedRule, "rule does not match the IF ... THEN ...; envelope", text)
	}
	return m[1], m[2], nil
}

// Classify matches an action text against the action grammars.
//
// Find with ordering is probed before plain find, so an ordering suffix is
// never read as part of a predicate. The first structural match wins.
func (g *Grammar) Classify(actionText string) (Action, error) {
	text := triple.Normalize(strings.TrimSpace(actionText))

	if m := g.findOrdered.FindStringSubmatch(text); m != nil {
		dir := Ascending
		if m[3] == "-" {
			dir = Descending
		}
		return Find{
			Predicate: m[1],
			Order:     &Ordering{Reference: strings.TrimSpace(m[2]), Direction: dir},
		}, nil
	}
	if m := g.find.FindStringSubmatch(text); m != nil {
		return Find{Predicate: m[1]}, nil
	}
	if m := g.insert.FindStringSubmatch(text); m != nil {
		return Insert{Prefix: m[1]}, nil
	}
	if m := g.delete.FindStringSubmatch(text); m != nil {
		return Delete{Prefix: m[1]}, nil
	}

	return nil, ruleerr.New(ruleerr.MalformedAction, "action matches no known action form", actionText)
}

// Parse parses the envelope and classifies the action in one step.
// The rule engine calls the two halves separately so that a false
// condition short-circuits before classification.
func (g *Grammar) Parse(text string) (*Rule, error) {
	cond, act, err := g.ParseEnvelope(text)
	if err != nil {
		return nil, err
	}
	action, err := g.Classify(act)
	if err != nil {
		return nil, err
	}
	return &Rule{Text: text, Condition: cond, ActionText: act, Action: action}, nil
}
