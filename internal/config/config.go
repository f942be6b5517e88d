// Package config parses GqlForge's configuration language — GraphQL
// SDL augmented with resolver directives — into a Module, the input
// the Blueprint compiler (internal/blueprint) consumes.
//
// Parsing itself is delegated entirely to
// github.com/vektah/gqlparser/v2. Two passes run over the same
// source: parser.ParseSchema recovers the literal SchemaDefinition
// nodes (where `schema @server(...) @upstream(...) @link(...)`
// directives live — the same low-level pass gqlgen's own config
// loader uses to read schema-level directives before building a
// merged type system), and gqlparser.LoadSchema produces the merged,
// validated *ast.Schema that field-level directive extraction walks.
package config

import (
	"fmt"
	"time"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// LinkType discriminates an `@link(type: …)` extension.
type LinkType string

const (
	LinkScript   LinkType = "Script"
	LinkKey      LinkType = "Key"
	LinkHtpasswd LinkType = "Htpasswd"
	LinkJwks     LinkType = "Jwks"
	LinkProtobuf LinkType = "Protobuf"
	LinkSQL      LinkType = "Sql"
	LinkPostgres LinkType = "Postgres"
	LinkS3       LinkType = "S3"
)

// Link is one parsed `@link(type:…, src:…, id?:…)` extension.
type Link struct {
	Type LinkType
	Src  string
	ID   string
}

// ServerConfig is the parsed `@server` directive: bind address, HTTP
// version, TLS material, batching, timeouts.
type ServerConfig struct {
	Host              string
	Port              int
	HTTP2             bool
	EnableBatching    bool
	BatchDelay        time.Duration
	BatchMaxSize      int
	RequestTimeout    time.Duration
	CertPath, KeyPath string
}

// UpstreamConfig is the parsed `@upstream` directive: pool, keepalive,
// proxy, allowed headers, global batch defaults.
type UpstreamConfig struct {
	PoolSize        int
	PoolIdleTimeout time.Duration
	KeepAlive       time.Duration
	Proxy           string
	AllowedHeaders  []string
	EnableBatching  bool
	BatchDelay      time.Duration
	BatchMaxSize    int
}

// Module is the compiled-from-SDL configuration: the merged GraphQL
// type system plus the server/upstream/link directives extracted from
// the schema block.
type Module struct {
	Schema   *ast.Schema
	Server   ServerConfig
	Upstream UpstreamConfig
	Links    []Link
}

// coreDirectives declares every directive the gateway recognizes so
// gqlparser's schema validator accepts them on an arbitrary user SDL
// file. Marked BuiltIn so Blueprint.PrintSDL can exclude it from the
// reconstructed public schema the same way gqlparser excludes its own
// built-in scalars.
var coreDirectives = &ast.Source{
	Name:    "gqlforge/core_directives.graphql",
	BuiltIn: true,
	Input: `
scalar JSON

enum LinkType {
  Script
  Key
  Htpasswd
  Jwks
  Protobuf
  Sql
  Postgres
  S3
}

directive @server(host: String, port: Int, http2: Boolean, enableBatching: Boolean, batchDelayMs: Int, batchMaxSize: Int, timeoutMs: Int, cert: String, key: String) on SCHEMA

directive @upstream(poolSize: Int, poolIdleTimeoutMs: Int, keepAliveMs: Int, proxy: String, allowedHeaders: [String!], enableBatching: Boolean, batchDelayMs: Int, batchMaxSize: Int) on SCHEMA

directive @link(type: LinkType!, src: String, id: String) repeatable on SCHEMA

directive @cache(maxAge: Int!) on FIELD_DEFINITION | OBJECT

directive @omit on FIELD_DEFINITION

directive @expr(body: JSON) on FIELD_DEFINITION

directive @http(url: String!, method: String, query: JSON, headers: JSON, body: String, batchKey: String, dedupe: Boolean) on FIELD_DEFINITION

directive @graphQL(name: String!, args: JSON, batch: Boolean, url: String, selection: String) on FIELD_DEFINITION

directive @grpc(method: String!, address: String, body: String, batchKey: String, link: String) on FIELD_DEFINITION

directive @postgres(db: String, table: String!, operation: String!, filter: String, input: String, limit: String, offset: String, orderBy: String, batchKey: String) on FIELD_DEFINITION

directive @s3(bucket: String, operation: String!, key: String, prefix: String, expiration: Int, contentType: String, linkId: String) on FIELD_DEFINITION

directive @js(name: String!) on FIELD_DEFINITION | OBJECT

directive @protected(by: String) on FIELD_DEFINITION | OBJECT
`,
}

// Parse parses raw SDL text (already loaded from file/URL by the
// caller) into a Module.
func Parse(name, src string) (*Module, error) {
	source := &ast.Source{Name: name, Input: src, BuiltIn: false}

	schemaDoc, err := parser.ParseSchema(source)
	if err != nil {
		return nil, fmt.Errorf("config: parsing schema document: %w", err)
	}

	schema, err := gqlparser.LoadSchema(coreDirectives, source)
	if err != nil {
		return nil, fmt.Errorf("config: loading merged schema: %w", err)
	}

	m := &Module{
		Schema:   schema,
		Server:   defaultServerConfig(),
		Upstream: defaultUpstreamConfig(),
	}

	for _, def := range schemaDoc.Schema {
		if err := m.applySchemaDirectives(def.Directives); err != nil {
			return nil, err
		}
	}
	for _, def := range schemaDoc.SchemaExtension {
		if err := m.applySchemaDirectives(def.Directives); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "0.0.0.0",
		Port:           8080,
		RequestTimeout: 30 * time.Second,
	}
}

func defaultUpstreamConfig() UpstreamConfig {
	return UpstreamConfig{
		PoolSize:        100,
		PoolIdleTimeout: 60 * time.Second,
		KeepAlive:       30 * time.Second,
	}
}

func (m *Module) applySchemaDirectives(dirs ast.DirectiveList) error {
	if d := dirs.ForName("server"); d != nil {
		m.Server.Host = ArgStringOr(d, "host", m.Server.Host)
		m.Server.Port = ArgIntOr(d, "port", m.Server.Port)
		m.Server.HTTP2 = ArgBoolOr(d, "http2", m.Server.HTTP2)
		m.Server.EnableBatching = ArgBoolOr(d, "enableBatching", m.Server.EnableBatching)
		m.Server.BatchDelay = time.Duration(ArgIntOr(d, "batchDelayMs", 0)) * time.Millisecond
		m.Server.BatchMaxSize = ArgIntOr(d, "batchMaxSize", 1000)
		m.Server.RequestTimeout = time.Duration(ArgIntOr(d, "timeoutMs", int(m.Server.RequestTimeout/time.Millisecond))) * time.Millisecond
		m.Server.CertPath = ArgStringOr(d, "cert", "")
		m.Server.KeyPath = ArgStringOr(d, "key", "")
	}

	if d := dirs.ForName("upstream"); d != nil {
		m.Upstream.PoolSize = ArgIntOr(d, "poolSize", m.Upstream.PoolSize)
		m.Upstream.PoolIdleTimeout = time.Duration(ArgIntOr(d, "poolIdleTimeoutMs", int(m.Upstream.PoolIdleTimeout/time.Millisecond))) * time.Millisecond
		m.Upstream.KeepAlive = time.Duration(ArgIntOr(d, "keepAliveMs", int(m.Upstream.KeepAlive/time.Millisecond))) * time.Millisecond
		m.Upstream.Proxy = ArgStringOr(d, "proxy", "")
		m.Upstream.AllowedHeaders = ArgStringList(d, "allowedHeaders")
		m.Upstream.EnableBatching = ArgBoolOr(d, "enableBatching", m.Upstream.EnableBatching)
		m.Upstream.BatchDelay = time.Duration(ArgIntOr(d, "batchDelayMs", 0)) * time.Millisecond
		m.Upstream.BatchMaxSize = ArgIntOr(d, "batchMaxSize", 1000)
	}

	for _, d := range dirs {
		if d.Name != "link" {
			continue
		}
		link := Link{
			Type: LinkType(ArgStringOr(d, "type", "")),
			Src:  ArgStringOr(d, "src", ""),
			ID:   ArgStringOr(d, "id", ""),
		}
		if link.Type == "" {
			return fmt.Errorf("config: @link missing required 'type' argument")
		}
		if err := validateLink(m.Links, link); err != nil {
			return err
		}
		m.Links = append(m.Links, link)
	}

	return nil
}

// validateLink enforces link cardinality: at most one Script/Key
// link, and multiple Postgres links require unique ids.
func validateLink(existing []Link, l Link) error {
	switch l.Type {
	case LinkScript, LinkKey:
		for _, e := range existing {
			if e.Type == l.Type {
				return fmt.Errorf("config: at most one @link(type: %s) is allowed", l.Type)
			}
		}
	case LinkPostgres:
		for _, e := range existing {
			if e.Type == LinkPostgres && e.ID == l.ID {
				return fmt.Errorf("config: multiple @link(type: Postgres) entries require unique ids (duplicate id %q)", l.ID)
			}
		}
	}
	return nil
}

// LinksByType returns every configured link of the given type, in
// declaration order.
func (m *Module) LinksByType(t LinkType) []Link {
	var out []Link
	for _, l := range m.Links {
		if l.Type == t {
			out = append(out, l)
		}
	}
	return out
}

// LinkByID returns the link of type t with the given id (or the first
// one if id is empty and exactly one exists).
func (m *Module) LinkByID(t LinkType, id string) (Link, bool) {
	links := m.LinksByType(t)
	if id == "" {
		if len(links) == 1 {
			return links[0], true
		}
		return Link{}, false
	}
	for _, l := range links {
		if l.ID == id {
			return l, true
		}
	}
	return Link{}, false
}
