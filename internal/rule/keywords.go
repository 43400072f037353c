package rule

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/roach88/vsptd/internal/triple"
)

// Keywords is the keyword table of the rule language.
//
// The defaults are the Cyrillic spellings used by existing rule bases.
// Connective lists are matched case-insensitively (Unicode case folding).
type Keywords struct {
	If         string   `mapstructure:"if" yaml:"if"`
	Then       string   `mapstructure:"then" yaml:"then"`
	Terminator string   `mapstructure:"terminator" yaml:"terminator"`
	Find       string   `mapstructure:"find" yaml:"find"`
	Insert     string   `mapstructure:"insert" yaml:"insert"`
	Delete     string   `mapstructure:"delete" yaml:"delete"`
	Or         []string `mapstructure:"or" yaml:"or"`
	And        []string `mapstructure:"and" yaml:"and"`
	Not        []string `mapstructure:"not" yaml:"not"`
}

// DefaultKeywords returns the keyword table of the original rule language.
func DefaultKeywords() Keywords {
	return Keywords{
		If:         "ЕСЛИ",
		Then:       "ТО",
		Terminator: ";",
		Find:       "НАЙТИ_В_БД",
		Insert:     "ДОБАВИТЬ_В_БД",
		Delete:     "УДАЛИТЬ_В_БД",
		Or:         []string{"или", "or"},
		And:        []string{"и", "and"},
		Not:        []string{"не", "not"},
	}
}

// Connective is a logical connective in its query-language spelling.
type Connective string

const (
	ConnOr  Connective = "OR"
	ConnAnd Connective = "AND"
	ConnNot Connective = "NOT"
)

// Grammar is a compiled keyword table. It is immutable and safe for
// concurrent use.
type Grammar struct {
	kw          Keywords
	envelope    *regexp.Regexp
	findOrdered *regexp.Regexp
	find        *regexp.Regexp
	insert      *regexp.Regexp
	delete      *regexp.Regexp
	connectives map[string]Connective // folded word -> connective
}

// NewGrammar compiles a keyword table.
func NewGrammar(kw Keywords) (*Grammar, error) {
	required := map[string]string{
		"if": kw.If, "then": kw.Then, "terminator": kw.Terminator,
		"find": kw.Find, "insert": kw.Insert, "delete": kw.Delete,
	}
	for field, v := range required {
		if strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("keyword %q must not be empty", field)
		}
	}

	q := func(s string) string { return regexp.QuoteMeta(triple.Normalize(s)) }

	g := &Grammar{
		kw:          kw,
		envelope:    regexp.MustCompile(`(?s)^` + q(kw.If) + ` (.+) ` + q(kw.Then) + ` (.+)` + q(kw.Terminator) + `$`),
		findOrdered: regexp.MustCompile(`(?s)^` + q(kw.Find) + `\((.*)\\\\(.*)(\+|-)\s*\\\\\)$`),
		find:        regexp.MustCompile(`(?s)^` + q(kw.Find) + `\((.*)\)$`),
		insert:      regexp.MustCompile(`^` + q(kw.Insert) + `\((` + triple.PrefixPattern + `)\)$`),
		delete:      regexp.MustCompile(`^` + q(kw.Delete) + `\((` + triple.PrefixPattern + `)\)$`),
		connectives: make(map[string]Connective),
	}

	for _, group := range []struct {
		words []string
		conn  Connective
	}{{kw.Or, ConnOr}, {kw.And, ConnAnd}, {kw.Not, ConnNot}} {
		for _, w := range group.words {
			folded := Fold(w)
			if folded == "" {
				continue
			}
			if prev, ok := g.connectives[folded]; ok && prev != group.conn {
				return nil, fmt.Errorf("connective %q declared as both %s and %s", w, prev, group.conn)
			}
			g.connectives[folded] = group.conn
		}
	}

	return g, nil
}

// MustGrammar is like NewGrammar but panics on error.
func MustGrammar(kw Keywords) *Grammar {
	g, err := NewGrammar(kw)
	if err != nil {
		panic(err)
	}
	return g
}

// Default is the grammar for DefaultKeywords.
var Default = MustGrammar(DefaultKeywords())

// Keywords returns the keyword table the grammar was compiled from.
func (g *Grammar) Keywords() Keywords {
	return g.kw
}

// Connective reports whether word is a logical connective.
func (g *Grammar) Connective(word string) (Connective, bool) {
	c, ok := g.connectives[Fold(word)]
	return c, ok
}

// Fold returns the Unicode case-folded, NFC-normalized form of s.
func Fold(s string) string {
	// A Caser keeps state between calls and must not be shared.
	return cases.Fold().String(triple.Normalize(strings.TrimSpace(s)))
}
