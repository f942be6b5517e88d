package blueprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqlforge/gqlforge/internal/config"
	"github.com/gqlforge/gqlforge/internal/ir"
)

const testSDL = `
schema
  @server(port: 8080)
  @upstream(poolSize: 10)
  @link(type: Postgres, src: "postgres://localhost/app", id: "primary")
{
  query: Query
  mutation: Mutation
}

type Query {
  user(id: ID!): User @http(url: "http://upstream/users/{{args.id}}", dedupe: true)
  greeting: String @expr(body: "hello")
  secret: String @protected(by: "claims.role == 'admin'")
  users(name: String): [User] @postgres(table: "users", operation: "Select", filter: "{\"name\": \"{{args.name}}\"}", orderBy: "name ASC")
  internalDebug: String @omit
}

type Mutation {
  createUser(name: String!): User @http(url: "http://upstream/users", method: "POST", dedupe: false)
}

type User {
  id: ID!
  name: String!
  legacyField: String @omit
}
`

func compileTestSchema(t *testing.T) *Blueprint {
	t.Helper()
	mod, err := config.Parse("test.graphql", testSDL)
	require.NoError(t, err)
	bp, err := Compile(mod)
	require.NoError(t, err)
	return bp
}

func TestCompileHTTPField(t *testing.T) {
	bp := compileTestSchema(t)
	node := bp.Fields[FieldKey{Type: "Query", Field: "user"}]
	require.NotNil(t, node)
	assert.Equal(t, ir.KindIO, node.Kind)
	assert.Equal(t, ir.IOHTTP, node.IO.Kind)
	assert.True(t, node.IO.Dedupe)
}

func TestCompileExprField(t *testing.T) {
	bp := compileTestSchema(t)
	node := bp.Fields[FieldKey{Type: "Query", Field: "greeting"}]
	require.NotNil(t, node)
	assert.Equal(t, ir.KindDynamic, node.Kind)
	require.NotNil(t, node.DynamicTemplate)
}

func TestCompileProtectedField(t *testing.T) {
	bp := compileTestSchema(t)
	node := bp.Fields[FieldKey{Type: "Query", Field: "secret"}]
	require.NotNil(t, node)
	assert.Equal(t, ir.KindProtect, node.Kind)
	assert.Equal(t, "claims.role == 'admin'", node.ProtectExpr)
}

func TestCompilePostgresField(t *testing.T) {
	bp := compileTestSchema(t)
	node := bp.Fields[FieldKey{Type: "Query", Field: "users"}]
	require.NotNil(t, node)
	require.Equal(t, ir.IOPostgres, node.IO.Kind)
	assert.Equal(t, "users", node.IO.Postgres.Table)
}

func TestCompileOmitDropsField(t *testing.T) {
	bp := compileTestSchema(t)
	_, ok := bp.Fields[FieldKey{Type: "Query", Field: "internalDebug"}]
	assert.False(t, ok)
	assert.True(t, bp.Omitted[FieldKey{Type: "Query", Field: "internalDebug"}])
	assert.True(t, bp.Omitted[FieldKey{Type: "User", Field: "legacyField"}])
}

func TestCompileDefaultResolverIsPathThroughParentValue(t *testing.T) {
	bp := compileTestSchema(t)
	node := bp.Fields[FieldKey{Type: "User", Field: "name"}]
	require.NotNil(t, node)
	assert.Equal(t, ir.KindPath, node.Kind)
	assert.Equal(t, []string{"name"}, node.PathSegments)
	assert.False(t, node.PathNullable)
}

func TestMutationDedupeFalseHonored(t *testing.T) {
	bp := compileTestSchema(t)
	node := bp.Fields[FieldKey{Type: "Mutation", Field: "createUser"}]
	require.NotNil(t, node)
	assert.False(t, node.IO.Dedupe)
}

func TestFieldCountExcludesOmitted(t *testing.T) {
	bp := compileTestSchema(t)
	assert.Equal(t, 2, bp.fieldCount("User"))
}

func TestPrintSDLExcludesOmittedFields(t *testing.T) {
	bp := compileTestSchema(t)
	sdl := bp.PrintSDL()
	assert.Contains(t, sdl, "name")
	assert.NotContains(t, sdl, "legacyField")
	assert.NotContains(t, sdl, "internalDebug")
}

func TestPostgresRequiresDBWhenMultipleLinks(t *testing.T) {
	mod, err := config.Parse("multi.graphql", `
schema
  @link(type: Postgres, src: "postgres://a", id: "a")
  @link(type: Postgres, src: "postgres://b", id: "b")
{ query: Query }
type Query {
  rows: [Row] @postgres(table: "rows", operation: "Select")
}
type Row { id: ID! }
`)
	require.NoError(t, err)
	_, err = Compile(mod)
	assert.Error(t, err)
}
