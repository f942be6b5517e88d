// Package runtime implements the concrete evaluator.Executor backed by
// real upstream connections, built once at process start from a
// compiled Blueprint's links: one pooled HTTP client, one PostgreSQL
// pool per `@link(type: Postgres, id)`, one S3 client per
// `@link(type: S3, id)`, one JWKSet/htpasswd table for @protected, and
// one script Engine. Pools are keyed by link id since a configuration
// can name more than one Postgres/S3 link.
package runtime

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/net/http2"

	"github.com/gqlforge/gqlforge/internal/auth"
	"github.com/gqlforge/gqlforge/internal/blueprint"
	"github.com/gqlforge/gqlforge/internal/config"
	"github.com/gqlforge/gqlforge/internal/dbschema"
	plerrors "github.com/gqlforge/gqlforge/internal/platform/errors"
	"github.com/gqlforge/gqlforge/internal/reqtemplate/s3template"
	"github.com/gqlforge/gqlforge/internal/scripting"
)

// Runtime holds every process-lifetime upstream handle the Executor
// methods dispatch against. All fields are populated once by New and
// read-only for the life of the process; concurrent requests share
// them freely.
type Runtime struct {
	httpClient *http.Client
	grpcClient *http.Client // h2c transport, reused across gRPC calls

	pg map[string]*pgxpool.Pool
	s3 map[string]*s3template.Client

	jwks         []*auth.JWKSet
	htpasswd     []auth.HtpasswdEntry
	scriptEngine *scripting.Engine
	schema       *dbschema.Schema

	allowedHeaders []string
}

// New builds a Runtime from bp's configuration, dialing every
// configured Postgres/S3 link and loading Key/Jwks/Htpasswd/Script
// link material. Connections are lazy at the driver level (pgxpool and
// the S3 SDK both establish actual sockets on first use) but the
// handles themselves are constructed eagerly so a misconfigured link
// fails at startup, not mid-request.
func New(ctx context.Context, bp *blueprint.Blueprint) (*Runtime, error) {
	rt := &Runtime{
		httpClient:     newHTTPClient(bp.Config.Upstream),
		grpcClient:     newGrpcClient(),
		pg:             map[string]*pgxpool.Pool{},
		s3:             map[string]*s3template.Client{},
		allowedHeaders: bp.Config.Upstream.AllowedHeaders,
	}

	for _, link := range bp.Config.LinksByType(config.LinkPostgres) {
		pool, err := newPostgresPool(ctx, link, bp.Config.Upstream)
		if err != nil {
			return nil, fmt.Errorf("runtime: connecting @link(type: Postgres, id: %q): %w", link.ID, err)
		}
		rt.pg[link.ID] = pool
	}

	for _, link := range bp.Config.LinksByType(config.LinkS3) {
		client, err := newS3Client(ctx, link)
		if err != nil {
			return nil, fmt.Errorf("runtime: building @link(type: S3, id: %q): %w", link.ID, err)
		}
		rt.s3[link.ID] = client
	}

	for _, link := range bp.Config.LinksByType(config.LinkJwks) {
		set, err := loadJWKSet(link)
		if err != nil {
			return nil, fmt.Errorf("runtime: loading @link(type: Jwks, src: %q): %w", link.Src, err)
		}
		rt.jwks = append(rt.jwks, set)
	}

	if keyLinks := bp.Config.LinksByType(config.LinkKey); len(keyLinks) == 1 {
		set, err := loadJWKSet(keyLinks[0])
		if err != nil {
			return nil, fmt.Errorf("runtime: loading @link(type: Key, src: %q): %w", keyLinks[0].Src, err)
		}
		rt.jwks = append(rt.jwks, set)
	}

	if htLinks := bp.Config.LinksByType(config.LinkHtpasswd); len(htLinks) == 1 {
		data, err := os.ReadFile(htLinks[0].Src)
		if err != nil {
			return nil, fmt.Errorf("runtime: reading @link(type: Htpasswd, src: %q): %w", htLinks[0].Src, err)
		}
		rt.htpasswd = auth.ParseHtpasswd(string(data))
	}

	if scriptLinks := bp.Config.LinksByType(config.LinkScript); len(scriptLinks) == 1 {
		data, err := os.ReadFile(scriptLinks[0].Src)
		if err != nil {
			return nil, fmt.Errorf("runtime: reading @link(type: Script, src: %q): %w", scriptLinks[0].Src, err)
		}
		engine, err := scripting.New(string(data))
		if err != nil {
			return nil, fmt.Errorf("runtime: loading @link(type: Script, src: %q): %w", scriptLinks[0].Src, err)
		}
		rt.scriptEngine = engine
	}

	if sqlLinks := bp.Config.LinksByType(config.LinkSQL); len(sqlLinks) == 1 {
		data, err := os.ReadFile(sqlLinks[0].Src)
		if err != nil {
			return nil, fmt.Errorf("runtime: reading @link(type: Sql, src: %q): %w", sqlLinks[0].Src, err)
		}
		schema := dbschema.NewSchema()
		if err := schema.Apply(string(data)); err != nil {
			return nil, fmt.Errorf("runtime: applying @link(type: Sql, src: %q): %w", sqlLinks[0].Src, err)
		}
		rt.schema = schema
	}

	return rt, nil
}

// Schema exposes the DDL-derived table metadata sqlsynth needs to
// compile @postgres fields, loaded once at startup from
// `@link(type: Sql)`. Nil when the config declares no such link,
// which is valid for gateways with no Postgres-backed fields.
func (rt *Runtime) Schema() *dbschema.Schema { return rt.schema }

// AllowedHeaders returns the `@upstream(allowedHeaders: …)` allowlist
// the gateway's request decoder uses to populate pathresolver.Context.
func (rt *Runtime) AllowedHeaders() []string { return rt.allowedHeaders }

// JWKSets exposes the loaded key sets for the gateway's request-level
// auth pre-check. Basic/JWT verification happens once per request,
// ahead of field evaluation, not per @protected field.
func (rt *Runtime) JWKSets() []*auth.JWKSet { return rt.jwks }

// HtpasswdEntries exposes the parsed htpasswd table for Basic auth.
func (rt *Runtime) HtpasswdEntries() []auth.HtpasswdEntry { return rt.htpasswd }

// Close releases every pooled upstream connection.
func (rt *Runtime) Close() {
	for _, pool := range rt.pg {
		pool.Close()
	}
}

// resolvePool looks up the Postgres pool for db (an `@postgres(db:)`
// link id), falling back to the single configured pool when db is ""
// and exactly one is registered.
func (rt *Runtime) resolvePool(db string) (*pgxpool.Pool, error) {
	if db != "" {
		pool, ok := rt.pg[db]
		if !ok {
			return nil, plerrors.New(plerrors.ConfigInvalid, fmt.Sprintf("runtime: no @link(type: Postgres, id: %q) configured", db))
		}
		return pool, nil
	}
	if len(rt.pg) == 1 {
		for _, pool := range rt.pg {
			return pool, nil
		}
	}
	return nil, plerrors.New(plerrors.ConfigInvalid, fmt.Sprintf("runtime: postgres query requires a unique @link(type: Postgres); %d configured", len(rt.pg)))
}

// s3ClientFor looks up the S3 client for linkID, falling back to the
// single configured client when linkID is "".
func (rt *Runtime) s3ClientFor(linkID string) (*s3template.Client, error) {
	if linkID != "" {
		client, ok := rt.s3[linkID]
		if !ok {
			return nil, plerrors.New(plerrors.ConfigInvalid, fmt.Sprintf("runtime: no @link(type: S3, id: %q) configured", linkID))
		}
		return client, nil
	}
	if len(rt.s3) == 1 {
		for _, client := range rt.s3 {
			return client, nil
		}
	}
	return nil, plerrors.New(plerrors.ConfigInvalid, fmt.Sprintf("runtime: s3 operation requires a unique @link(type: S3); %d configured", len(rt.s3)))
}

func newHTTPClient(up config.UpstreamConfig) *http.Client {
	idleTimeout := up.PoolIdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 60 * time.Second
	}
	keepAlive := up.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	maxConns := up.PoolSize
	if maxConns <= 0 {
		maxConns = 100
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			KeepAlive: keepAlive,
		}).DialContext,
		MaxIdleConns:        maxConns,
		MaxIdleConnsPerHost: maxConns,
		IdleConnTimeout:     idleTimeout,
	}
	if up.Proxy != "" {
		if proxyURL, err := url.Parse(up.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &http.Client{Transport: transport}
}

func newPostgresPool(ctx context.Context, link config.Link, up config.UpstreamConfig) (*pgxpool.Pool, error) {
	pgCfg, err := pgxpool.ParseConfig(link.Src)
	if err != nil {
		return nil, err
	}
	if up.PoolSize > 0 {
		pgCfg.MaxConns = int32(up.PoolSize)
	}
	if up.PoolIdleTimeout > 0 {
		pgCfg.MaxConnIdleTime = up.PoolIdleTimeout
	}
	return pgxpool.NewWithConfig(ctx, pgCfg)
}

func newS3Client(ctx context.Context, link config.Link) (*s3template.Client, error) {
	return s3template.NewClient(ctx, s3template.ClientConfig{
		ID:       link.ID,
		Endpoint: link.Src,
	})
}

// newGrpcClient builds an http.Client speaking cleartext HTTP/2
// ("h2c"): GqlForge relays framed protobuf bytes straight over
// `content-type: application/grpc` without linking a generated gRPC
// client stub, so only the h2c transport from the gRPC ecosystem is
// needed here, not the full google.golang.org/grpc RPC stack.
func newGrpcClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return (&net.Dialer{}).DialContext(ctx, network, addr)
			},
		},
	}
}
