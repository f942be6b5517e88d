// Package s3template implements the S3 request template: render
// bucket/key/prefix Mustache pieces against an evaluation context and
// dispatch presigned-URL/list/delete operations against an
// S3-compatible object store via github.com/aws/aws-sdk-go-v2.
package s3template

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/gqlforge/gqlforge/internal/fingerprint"
	"github.com/gqlforge/gqlforge/internal/mustache"
	"github.com/gqlforge/gqlforge/internal/pathresolver"
)

// Operation selects the S3 action a field's template performs.
type Operation int

const (
	GetPresignedURL Operation = iota
	PutPresignedURL
	List
	Delete
)

// Template is a field's S3 request template.
type Template struct {
	Bucket      *mustache.Template
	Operation   Operation
	Key         *mustache.Template // GetPresignedUrl, PutPresignedUrl, Delete
	Prefix      *mustache.Template // List
	Expiration  time.Duration
	ContentType string
	LinkID      string // selects which @link(type: S3, id: …) client to use
}

// Rendered is the concrete outbound S3 request description.
type Rendered struct {
	Bucket      string
	Operation   Operation
	Key         string
	Prefix      string
	Expiration  time.Duration
	ContentType string
	// LinkID selects which `@link(type: S3, id: …)` client the
	// executor dispatches this request against.
	LinkID string
}

// Render renders every Mustache piece of tpl against ctx.
func Render(tpl Template, ctx *pathresolver.Context) Rendered {
	r := Rendered{
		Operation:   tpl.Operation,
		Expiration:  tpl.Expiration,
		ContentType: tpl.ContentType,
		LinkID:      tpl.LinkID,
	}
	if tpl.Bucket != nil {
		r.Bucket = tpl.Bucket.Render(ctx)
	}
	if tpl.Key != nil {
		r.Key = tpl.Key.Render(ctx)
	}
	if tpl.Prefix != nil {
		r.Prefix = tpl.Prefix.Render(ctx)
	}
	return r
}

// Fingerprint computes the dedupe/cache key for a rendered S3 request.
func Fingerprint(r Rendered) fingerprint.ID {
	return fingerprint.Bytes(r.Bucket, fmt.Sprint(r.Operation), r.Key, r.Prefix)
}

// ClientConfig describes one `@link(type: S3, id?: …)` extension.
type ClientConfig struct {
	ID        string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// Client wraps an s3.Client for the operations the S3 template needs.
type Client struct {
	raw    *s3.Client
	presig *s3.PresignClient
}

// NewClient builds a Client from a ClientConfig, following the usual
// region/static-credentials/custom-endpoint-with-path-style pattern
// for S3-compatible stores (MinIO, R2, etc.).
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3template: loading AWS config for link %q: %w", cfg.ID, err)
	}

	raw := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{raw: raw, presig: s3.NewPresignClient(raw)}, nil
}

// Do dispatches r against the client, returning the operation's
// result: a presigned URL string for Get/PutPresignedUrl, a
// newline-joined key listing for List, or "" for Delete.
func (c *Client) Do(ctx context.Context, r Rendered) (string, error) {
	switch r.Operation {
	case GetPresignedURL:
		out, err := c.presig.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(r.Bucket),
			Key:    aws.String(r.Key),
		}, s3.WithPresignExpires(r.Expiration))
		if err != nil {
			return "", fmt.Errorf("s3template: presigning GET %s/%s: %w", r.Bucket, r.Key, err)
		}
		return out.URL, nil

	case PutPresignedURL:
		in := &s3.PutObjectInput{Bucket: aws.String(r.Bucket), Key: aws.String(r.Key)}
		if r.ContentType != "" {
			in.ContentType = aws.String(r.ContentType)
		}
		out, err := c.presig.PresignPutObject(ctx, in, s3.WithPresignExpires(r.Expiration))
		if err != nil {
			return "", fmt.Errorf("s3template: presigning PUT %s/%s: %w", r.Bucket, r.Key, err)
		}
		return out.URL, nil

	case List:
		out, err := c.raw.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket: aws.String(r.Bucket),
			Prefix: aws.String(r.Prefix),
		})
		if err != nil {
			return "", fmt.Errorf("s3template: listing %s/%s*: %w", r.Bucket, r.Prefix, err)
		}
		keys := make([]string, 0, len(out.Contents))
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		return joinLines(keys), nil

	case Delete:
		_, err := c.raw.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(r.Bucket),
			Key:    aws.String(r.Key),
		})
		if err != nil {
			return "", fmt.Errorf("s3template: deleting %s/%s: %w", r.Bucket, r.Key, err)
		}
		return "", nil

	default:
		return "", fmt.Errorf("s3template: unknown operation %v", r.Operation)
	}
}

func joinLines(keys []string) string {
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += "\n"
		}
		out += k
	}
	return out
}
