package querysql

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vsptd/internal/queryir"
	"github.com/roach88/vsptd/internal/ruleerr"
	"github.com/roach88/vsptd/internal/triple"
)

func render(st Statement) []byte {
	return []byte(st.SQL + "\n" + st.Inline() + "\n")
}

func assertGolden(t *testing.T, name string, st Statement) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, render(st))
}

func TestCompile_Golden(t *testing.T) {
	pred := queryir.Fragment{
		SQL:  `"D" < ? AND "L" > ?`,
		Args: []triple.Value{triple.Number(35), triple.Number(10)},
	}
	probe := queryir.Conjunction([]queryir.Assignment{
		{Column: "L", Value: triple.Number(36)},
		{Column: "NAME", Value: triple.String("Отвёртка")},
	})

	tests := []struct {
		name  string
		query queryir.Query
	}{
		{"select_find", queryir.Select{From: "VERT", Columns: []string{"NAME"}, Filter: pred}},
		{"select_find_desc", queryir.Select{
			From: "VERT", Columns: []string{"NAME"}, Filter: pred,
			OrderBy: &queryir.Order{Column: "D", Descending: true},
		}},
		{"count_probe", queryir.Count{From: "VERT", Filter: probe}},
		{"insert_row", queryir.Insert{Into: "VERT", Assignments: []queryir.Assignment{
			{Column: "L", Value: triple.Number(36)},
			{Column: "NAME", Value: triple.String("Отвёртка")},
		}}},
		{"delete_rows", queryir.Delete{From: "VERT", Filter: probe}},
	}

	compiler := NewSQLCompiler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := compiler.Compile(tt.query)
			require.NoError(t, err)
			assertGolden(t, tt.name, st)
		})
	}
}

func TestCompile_SelectWithoutRowID(t *testing.T) {
	pred := queryir.Fragment{SQL: `"D"<?`, Args: []triple.Value{triple.Number(35)}}
	compiler := NewSQLCompiler()

	tests := []struct {
		name  string
		order *queryir.Order
		want  string
	}{
		{"no order", nil, `SELECT "NAME" FROM "W" WHERE ("D"<?)`},
		{"descending", &queryir.Order{Column: "D", Descending: true}, `SELECT "NAME" FROM "W" WHERE ("D"<?) ORDER BY "D" DESC`},
		{"ascending", &queryir.Order{Column: "D"}, `SELECT "NAME" FROM "W" WHERE ("D"<?) ORDER BY "D" ASC`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := compiler.Compile(queryir.Select{
				From: "W", Columns: []string{"NAME"}, Filter: pred,
				OrderBy: tt.order, WithoutRowID: true,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, st.SQL)
			assert.NotContains(t, st.SQL, "rowid")
		})
	}
}

func TestCompile_ValuesNeverInterpolated(t *testing.T) {
	hostile := triple.String("x' OR '1'='1")
	st, err := NewSQLCompiler().Compile(queryir.Count{
		From:   "VERT",
		Filter: queryir.Equals{Column: "NAME", Value: hostile},
	})
	require.NoError(t, err)

	assert.Equal(t, `SELECT COUNT(*) FROM "VERT" WHERE "NAME" = ?`, st.SQL)
	assert.Equal(t, []any{"x' OR '1'='1"}, st.Params())
	assert.Equal(t, `SELECT COUNT(*) FROM "VERT" WHERE "NAME" = 'x'' OR ''1''=''1'`, st.Inline())
}

func TestCompile_NumbersBindAsNumbers(t *testing.T) {
	st, err := NewSQLCompiler().Compile(queryir.Insert{Into: "VERT", Assignments: []queryir.Assignment{
		{Column: "D", Value: triple.Number(13)},
		{Column: "W", Value: triple.Number(2.5)},
		{Column: "SE", Value: triple.String("221440")},
	}})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(13), 2.5, "221440"}, st.Params())
	assert.Equal(t, `INSERT INTO "VERT" ("D", "W", "SE") VALUES (13, 2.5, '221440')`, st.Inline())
}

func TestCompile_RejectsInvalidIdentifiers(t *testing.T) {
	_, err := NewSQLCompiler().Compile(queryir.Select{From: "VERT", Columns: []string{`NAME" FROM x; --`}})
	require.Error(t, err)
	assert.True(t, ruleerr.Is(err, ruleerr.InvalidIdentifier))
}

func TestCompile_Nil(t *testing.T) {
	_, err := NewSQLCompiler().Compile(nil)
	assert.Error(t, err)
}

func TestInline_SkipsQuotedPlaceholders(t *testing.T) {
	got := Inline(`"NAME" = 'why?' AND "D" = ? AND "X" = 'it''s?' AND "L" = ?`,
		[]triple.Value{triple.Number(1), triple.String("a")})
	assert.Equal(t, `"NAME" = 'why?' AND "D" = 1 AND "X" = 'it''s?' AND "L" = 'a'`, got)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"VERT"`, QuoteIdent("VERT"))
	assert.Equal(t, `"a""b"`, QuoteIdent(`a"b`))
}
