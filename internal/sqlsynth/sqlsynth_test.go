package sqlsynth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqlforge/gqlforge/internal/dbschema"
	plerrors "github.com/gqlforge/gqlforge/internal/platform/errors"
)

func usersSchema(t *testing.T) *dbschema.Schema {
	t.Helper()
	s := dbschema.NewSchema()
	require.NoError(t, s.Apply(`CREATE TABLE users (id int PRIMARY KEY, name text)`))
	return s
}

func TestSelectWithFilterAndOrderByMatchesScenario(t *testing.T) {
	schema := usersSchema(t)
	tpl := Template{
		Table:     "users",
		Operation: Select,
		Filter:    `{"name": "alice"}`,
		OrderBy:   "name ASC",
	}
	got, err := Compile(tpl, schema)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "name" FROM "users" WHERE "name" = $1 ORDER BY "name" ASC`, got.SQL)
	assert.Equal(t, []string{"alice"}, got.Params)
}

func TestSelectOneAddsLimitOne(t *testing.T) {
	schema := usersSchema(t)
	tpl := Template{Table: "users", Operation: SelectOne, Filter: `{"id": "1"}`}
	got, err := Compile(tpl, schema)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(got.SQL, "LIMIT 1"), "SelectOne must end with LIMIT 1, got %q", got.SQL)
	assert.Equal(t, []string{"1"}, got.Params)
}

func TestSelectWithoutFilterOmitsWhere(t *testing.T) {
	schema := usersSchema(t)
	got, err := Compile(Template{Table: "users", Operation: Select}, schema)
	require.NoError(t, err)
	assert.NotContains(t, got.SQL, "WHERE")
}

func TestLimitOffsetAreParameters(t *testing.T) {
	schema := usersSchema(t)
	tpl := Template{Table: "users", Operation: Select, Limit: "10", Offset: "20"}
	got, err := Compile(tpl, schema)
	require.NoError(t, err)
	assert.Contains(t, got.SQL, "LIMIT $1")
	assert.Contains(t, got.SQL, "OFFSET $2")
	assert.Equal(t, []string{"10", "20"}, got.Params)
	assert.NotContains(t, got.SQL, "10")
	assert.NotContains(t, got.SQL, "20")
}

func TestInsertProducesReturningClause(t *testing.T) {
	schema := usersSchema(t)
	tpl := Template{Table: "users", Operation: Insert, Input: `{"id": "1", "name": "bob"}`}
	got, err := Compile(tpl, schema)
	require.NoError(t, err)
	assert.Contains(t, got.SQL, `INSERT INTO "users"`)
	assert.Contains(t, got.SQL, "RETURNING")
	assert.Len(t, got.Params, 2)
}

func TestInsertUnknownColumnFails(t *testing.T) {
	schema := usersSchema(t)
	tpl := Template{Table: "users", Operation: Insert, Input: `{"nope": "x"}`}
	_, err := Compile(tpl, schema)
	require.Error(t, err)
	var ple *plerrors.Error
	require.ErrorAs(t, err, &ple)
	assert.Equal(t, plerrors.UnknownColumn, ple.Kind)
}

func TestUpdateWithoutFilterFails(t *testing.T) {
	schema := usersSchema(t)
	tpl := Template{Table: "users", Operation: Update, Input: `{"name": "x"}`}
	_, err := Compile(tpl, schema)
	require.Error(t, err)
}

func TestDeleteWithoutFilterFails(t *testing.T) {
	schema := usersSchema(t)
	tpl := Template{Table: "users", Operation: Delete}
	_, err := Compile(tpl, schema)
	require.Error(t, err)
}

func TestUpdateWithFilterSucceeds(t *testing.T) {
	schema := usersSchema(t)
	tpl := Template{Table: "users", Operation: Update, Input: `{"name": "carol"}`, Filter: `{"id": "1"}`}
	got, err := Compile(tpl, schema)
	require.NoError(t, err)
	assert.Contains(t, got.SQL, `UPDATE "users" SET "name" = $1 WHERE "id" = $2`)
	assert.Equal(t, []string{"carol", "1"}, got.Params)
}

func TestDeleteWithFilterSucceeds(t *testing.T) {
	schema := usersSchema(t)
	got, err := Compile(Template{Table: "users", Operation: Delete, Filter: `{"id": "1"}`}, schema)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "users" WHERE "id" = $1`, got.SQL)
	assert.Equal(t, []string{"1"}, got.Params)
}

func TestEmptyFilterObjectYieldsTrue(t *testing.T) {
	schema := usersSchema(t)
	got, err := Compile(Template{Table: "users", Operation: Delete, Filter: `{}`}, schema)
	require.NoError(t, err)
	assert.Contains(t, got.SQL, "WHERE TRUE")
}

func TestNullValuesBindEmptyNotGoNil(t *testing.T) {
	s := dbschema.NewSchema()
	require.NoError(t, s.Apply(`CREATE TABLE users (id int PRIMARY KEY, name text, manager_id int)`))

	got, err := Compile(Template{
		Table:     "users",
		Operation: Update,
		Input:     `{"manager_id": null}`,
		Filter:    `{"id": "1"}`,
	}, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"", "1"}, got.Params)
	assert.NotContains(t, got.Params[0], "<nil>")

	got, err = Compile(Template{
		Table:     "users",
		Operation: Insert,
		Input:     `{"id": "2", "manager_id": null}`,
	}, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", ""}, got.Params)

	got, err = Compile(Template{
		Table:     "users",
		Operation: Select,
		Filter:    `{"manager_id": null}`,
	}, s)
	require.NoError(t, err)
	assert.Equal(t, []string{""}, got.Params)
}

func TestCompositeInputValuesBindAsJSONText(t *testing.T) {
	s := dbschema.NewSchema()
	require.NoError(t, s.Apply(`CREATE TABLE events (id int PRIMARY KEY, payload jsonb)`))

	got, err := Compile(Template{
		Table:     "events",
		Operation: Insert,
		Input:     `{"id": "1", "payload": {"tags": ["a", "b"], "level": 3}}`,
	}, s)
	require.NoError(t, err)
	require.Len(t, got.Params, 2)
	assert.JSONEq(t, `{"tags":["a","b"],"level":3}`, got.Params[1])
	assert.NotContains(t, got.Params[1], "map[")
}

func TestOrderBySanitizesInjectionAttempt(t *testing.T) {
	schema := usersSchema(t)
	got, err := Compile(Template{Table: "users", Operation: Select, OrderBy: "name; DROP TABLE users"}, schema)
	require.NoError(t, err)
	assert.NotContains(t, got.SQL, "DROP")
	assert.NotContains(t, got.SQL, "ORDER BY")
}

func TestOrderByDropsUnknownColumn(t *testing.T) {
	schema := usersSchema(t)
	got, err := Compile(Template{Table: "users", Operation: Select, OrderBy: "nonexistent DESC"}, schema)
	require.NoError(t, err)
	assert.NotContains(t, got.SQL, "ORDER BY")
}

func TestIdentifiersAreAlwaysQuoted(t *testing.T) {
	schema := usersSchema(t)
	got, err := Compile(Template{Table: "users", Operation: Select}, schema)
	require.NoError(t, err)
	assert.Contains(t, got.SQL, `"id"`)
	assert.Contains(t, got.SQL, `"name"`)
	assert.Contains(t, got.SQL, `"users"`)
}
