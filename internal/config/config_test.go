package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSDL = `
schema
  @server(port: 9090, host: "127.0.0.1", enableBatching: true, batchDelayMs: 10)
  @upstream(poolSize: 50, allowedHeaders: ["Authorization", "X-Tenant-Id"])
  @link(type: Postgres, src: "postgres://localhost/app", id: "primary")
  @link(type: Postgres, src: "postgres://localhost/reporting", id: "reporting")
  @link(type: Jwks, src: "https://issuer.example.com/jwks.json")
{
  query: Query
  mutation: Mutation
}

type Query {
  user(id: ID!): User @http(url: "http://users/{{args.id}}")
}

type Mutation {
  createUser(name: String!): User @http(url: "http://users", method: "POST")
}

type User {
  id: ID!
  name: String!
}
`

func TestParseSchemaDirectives(t *testing.T) {
	m, err := Parse("test.graphql", testSDL)
	require.NoError(t, err)

	assert.Equal(t, 9090, m.Server.Port)
	assert.Equal(t, "127.0.0.1", m.Server.Host)
	assert.True(t, m.Server.EnableBatching)

	assert.Equal(t, 50, m.Upstream.PoolSize)
	assert.Equal(t, []string{"Authorization", "X-Tenant-Id"}, m.Upstream.AllowedHeaders)

	require.Len(t, m.Links, 3)
	pg := m.LinksByType(LinkPostgres)
	require.Len(t, pg, 2)
	assert.Equal(t, "primary", pg[0].ID)
	assert.Equal(t, "reporting", pg[1].ID)

	jwks := m.LinksByType(LinkJwks)
	require.Len(t, jwks, 1)
	assert.Equal(t, "https://issuer.example.com/jwks.json", jwks[0].Src)
}

func TestParseSchemaDefaults(t *testing.T) {
	m, err := Parse("minimal.graphql", `
schema { query: Query }
type Query { ping: String }
`)
	require.NoError(t, err)
	assert.Equal(t, 8080, m.Server.Port)
	assert.Equal(t, 100, m.Upstream.PoolSize)
	assert.Empty(t, m.Links)
}

func TestParseRejectsDuplicateScriptLink(t *testing.T) {
	_, err := Parse("bad.graphql", `
schema
  @link(type: Script, src: "./ext.js")
  @link(type: Script, src: "./ext2.js")
{ query: Query }
type Query { ping: String }
`)
	assert.Error(t, err)
}

func TestParseRejectsDuplicatePostgresID(t *testing.T) {
	_, err := Parse("bad.graphql", `
schema
  @link(type: Postgres, src: "postgres://a", id: "db")
  @link(type: Postgres, src: "postgres://b", id: "db")
{ query: Query }
type Query { ping: String }
`)
	assert.Error(t, err)
}

func TestLinkByIDSingleImplicit(t *testing.T) {
	m, err := Parse("single.graphql", `
schema
  @link(type: S3, src: "s3://bucket", id: "assets")
{ query: Query }
type Query { ping: String }
`)
	require.NoError(t, err)
	l, ok := m.LinkByID(LinkS3, "")
	require.True(t, ok)
	assert.Equal(t, "assets", l.ID)
}

func TestFieldDirectivesReachableOnMergedSchema(t *testing.T) {
	m, err := Parse("test.graphql", testSDL)
	require.NoError(t, err)

	queryType := m.Schema.Types["Query"]
	require.NotNil(t, queryType)
	field := queryType.Fields.ForName("user")
	require.NotNil(t, field)
	httpDir := field.Directives.ForName("http")
	require.NotNil(t, httpDir)
	assert.Equal(t, "http://users/{{args.id}}", ArgStringOr(httpDir, "url", ""))
}
