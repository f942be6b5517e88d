package pgtemplate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqlforge/gqlforge/internal/dbschema"
	"github.com/gqlforge/gqlforge/internal/mustache"
	"github.com/gqlforge/gqlforge/internal/pathresolver"
	"github.com/gqlforge/gqlforge/internal/sqlsynth"
)

func TestRenderThenCompileMatchesScenario(t *testing.T) {
	schema := dbschema.NewSchema()
	require.NoError(t, schema.Apply(`CREATE TABLE users (id int PRIMARY KEY, name text)`))

	ctx := pathresolver.New()
	ctx.Args = map[string]pathresolver.Value{"name": "alice"}

	tpl := Template{
		Table:     "users",
		Operation: sqlsynth.Select,
		Filter:    mustache.Parse(`{"name": "{{args.name}}"}`),
		OrderBy:   mustache.Parse("name ASC"),
	}

	rendered := Render(tpl, ctx)
	got, err := sqlsynth.Compile(rendered, schema)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "name" FROM "users" WHERE "name" = $1 ORDER BY "name" ASC`, got.SQL)
	assert.Equal(t, []string{"alice"}, got.Params)
}
