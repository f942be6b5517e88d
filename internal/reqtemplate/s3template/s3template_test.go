package s3template

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqlforge/gqlforge/internal/mustache"
	"github.com/gqlforge/gqlforge/internal/pathresolver"
)

func TestRenderGetPresignedURL(t *testing.T) {
	tpl := Template{
		Bucket:     mustache.Parse("media"),
		Operation:  GetPresignedURL,
		Key:        mustache.Parse("{{args.id}}.png"),
		Expiration: 15 * time.Minute,
	}
	ctx := pathresolver.New()
	ctx.Args = map[string]pathresolver.Value{"id": "42"}

	r := Render(tpl, ctx)
	require.Equal(t, "media", r.Bucket)
	assert.Equal(t, "42.png", r.Key)
	assert.Equal(t, GetPresignedURL, r.Operation)
	assert.Equal(t, 15*time.Minute, r.Expiration)
}

func TestFingerprintStable(t *testing.T) {
	r := Rendered{Bucket: "b", Operation: List, Prefix: "p/"}
	assert.Equal(t, Fingerprint(r), Fingerprint(r))

	other := Rendered{Bucket: "b", Operation: List, Prefix: "q/"}
	assert.NotEqual(t, Fingerprint(r), Fingerprint(other))
}

func TestJoinLines(t *testing.T) {
	assert.Equal(t, "", joinLines(nil))
	assert.Equal(t, "a", joinLines([]string{"a"}))
	assert.Equal(t, "a\nb", joinLines([]string{"a", "b"}))
}
