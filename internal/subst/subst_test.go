package subst

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vsptd/internal/ruleerr"
	"github.com/roach88/vsptd/internal/triple"
)

var pool = triple.MustParse("$L.D=35;$L.L=10;$L.SE='221440';$E.NM='O''Brien; DROP';$E.D=13;")

// columns maps P.N to an upper-cased column, with one hostile entry.
var columns = BinderFunc(func(_ context.Context, prefix, name string) (string, error) {
	switch prefix + "." + name {
	case "E.D":
		return "DIAM", nil
	case "E.L":
		return "LEN", nil
	case "E.NM":
		return "NAME", nil
	case "E.BAD":
		return `x" OR 1=1 --`, nil
	}
	return "", ruleerr.New(ruleerr.UnresolvedColumn, "no column", prefix+"."+name)
})

func TestPredicate_SampleRule(t *testing.T) {
	frag, err := New(nil).Predicate(context.Background(), "E.D<$L.D И E.L>$L.L", pool, columns)
	require.NoError(t, err)

	assert.Equal(t, `"DIAM"<? AND "LEN">?`, frag.SQL)
	assert.Equal(t, []triple.Value{triple.Number(35), triple.Number(10)}, frag.Args)
}

func TestPredicate_ConnectiveVariants(t *testing.T) {
	s := New(nil)
	tests := map[string]string{
		"E.D=1 или E.L=2":   `"DIAM"=1 OR "LEN"=2`,
		"E.D=1 ИЛИ E.L=2":   `"DIAM"=1 OR "LEN"=2`,
		"E.D=1 Или E.L=2":   `"DIAM"=1 OR "LEN"=2`,
		"E.D=1 and E.L=2":   `"DIAM"=1 AND "LEN"=2`,
		"(E.D=1)и(E.L=2)":   `("DIAM"=1)AND("LEN"=2)`,
		"НЕ E.D=1":          `NOT "DIAM"=1`,
		"E.NM='и' и E.D=1":  `"NAME"='и' AND "DIAM"=1`,
		"E.NM='a или b'":    `"NAME"='a или b'`,
		"E.D=1.5":           `"DIAM"=1.5`,
		"E.NM='E.D'":        `"NAME"='E.D'`,
		"E.NM=\"$L.D\"":     `"NAME"="$L.D"`,
		"  E.D = 1  ":       `"DIAM" = 1`,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			frag, err := s.Predicate(context.Background(), in, pool, columns)
			require.NoError(t, err)
			assert.Equal(t, want, frag.SQL)
			assert.Empty(t, frag.Args)
		})
	}
}

func TestPredicate_QuotingInvariant(t *testing.T) {
	frag, err := New(nil).Predicate(context.Background(), "E.NM=$E.NM И E.D=$L.SE", pool, columns)
	require.NoError(t, err)

	assert.Equal(t, `"NAME"=? AND "DIAM"=?`, frag.SQL)
	require.Len(t, frag.Args, 2)
	assert.Equal(t, triple.String("O'Brien; DROP"), frag.Args[0])
	assert.Equal(t, triple.String("221440"), frag.Args[1], "numeric-looking text stays text")
}

func TestPredicate_BoundBeforeUnbound(t *testing.T) {
	// Both references fail; the bound one is reported because it is
	// resolved first, even though the unbound one comes first in the text.
	_, err := New(nil).Predicate(context.Background(), "E.XX=1 AND E.D=$L.MISSING", pool, columns)
	require.Error(t, err)
	assert.True(t, ruleerr.Is(err, ruleerr.UnresolvedTriplet))

	var re *ruleerr.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "$L.MISSING", re.Subject)
}

func TestPredicate_UnresolvedColumn(t *testing.T) {
	_, err := New(nil).Predicate(context.Background(), "E.XX=$L.D", pool, columns)
	require.Error(t, err)
	assert.True(t, ruleerr.Is(err, ruleerr.UnresolvedColumn))
}

func TestPredicate_HostileColumnRejected(t *testing.T) {
	_, err := New(nil).Predicate(context.Background(), "E.BAD=1", pool, columns)
	require.Error(t, err)
	assert.True(t, ruleerr.Is(err, ruleerr.InvalidIdentifier))
}

func TestPredicate_BinderFailureWrapped(t *testing.T) {
	boom := errors.New("metadata store unavailable")
	b := BinderFunc(func(context.Context, string, string) (string, error) { return "", boom })

	_, err := New(nil).Predicate(context.Background(), "E.D=1", pool, b)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "E.D")
}

func TestPredicate_Malformed(t *testing.T) {
	s := New(nil)
	for _, in := range []string{"", "   ", "E.NM='open", "E.D=$1"} {
		_, err := s.Predicate(context.Background(), in, pool, columns)
		require.Error(t, err, in)
		assert.True(t, ruleerr.Is(err, ruleerr.MalformedAction), in)
	}
}

func TestPredicate_NoBinderNeededWithoutColumns(t *testing.T) {
	frag, err := New(nil).Predicate(context.Background(), "$L.D = 35", pool, nil)
	require.NoError(t, err)
	assert.Equal(t, "? = 35", frag.SQL)
	assert.Equal(t, []triple.Value{triple.Number(35)}, frag.Args)
}

func TestReference(t *testing.T) {
	s := New(nil)

	col, err := s.Reference(context.Background(), " E.D ", columns)
	require.NoError(t, err)
	assert.Equal(t, "DIAM", col)

	for _, in := range []string{"$E.D", "E.D E.L", "E", "", "E.D-"} {
		_, err := s.Reference(context.Background(), in, columns)
		assert.True(t, ruleerr.Is(err, ruleerr.MalformedAction), in)
	}

	_, err = s.Reference(context.Background(), "E.BAD", columns)
	assert.True(t, ruleerr.Is(err, ruleerr.InvalidIdentifier))
}

func TestConnectives(t *testing.T) {
	out, err := New(nil).Connectives("$L.D=35 и $L.L=10 или 'и'")
	require.NoError(t, err)
	assert.Equal(t, "$L.D=35 AND $L.L=10 OR 'и'", out)
}
