package auth

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/gqlforge/gqlforge/internal/pathresolver"
	plerrors "github.com/gqlforge/gqlforge/internal/platform/errors"
	"github.com/gqlforge/gqlforge/internal/platform/logging"
)

var log = logging.New("auth")

// Outcome is a verifier's result: Succeed carries optional claims;
// Fail carries the error that should be surfaced if no other verifier
// in an `or` combinator succeeds.
type Outcome struct {
	Claims pathresolver.Value
	Err    *plerrors.Error
}

func Succeed(claims pathresolver.Value) Outcome {
	return Outcome{Claims: claims}
}

func Fail(err *plerrors.Error) Outcome {
	return Outcome{Err: err}
}

func (o Outcome) Ok() bool { return o.Err == nil }

// And combines two verification outcomes by logical conjunction:
// both must succeed; their claim objects are merged key-wise,
// preferring the left side on conflict.
func And(a, b Outcome) Outcome {
	if !a.Ok() {
		return a
	}
	if !b.Ok() {
		return b
	}
	return Succeed(mergeClaims(a.Claims, b.Claims))
}

// Or succeeds if either side succeeds; if both fail, it reports the
// more severe failure (Forbidden is considered more severe than
// Unauthenticated, since it implies credentials were at least
// evaluated).
func Or(a, b Outcome) Outcome {
	if a.Ok() {
		return a
	}
	if b.Ok() {
		return b
	}
	if severity(b.Err.Kind) > severity(a.Err.Kind) {
		return b
	}
	return a
}

func severity(k plerrors.Kind) int {
	if k == plerrors.AuthForbidden {
		return 1
	}
	return 0
}

func mergeClaims(a, b pathresolver.Value) pathresolver.Value {
	am, aok := a.(map[string]pathresolver.Value)
	bm, bok := b.(map[string]pathresolver.Value)
	if !aok && !bok {
		return a
	}
	out := map[string]pathresolver.Value{}
	for k, v := range bm {
		out[k] = v
	}
	for k, v := range am {
		out[k] = v // left wins on conflict
	}
	return out
}

// HtpasswdEntry is one line of a parsed htpasswd file. Bcrypt
// ($2a$/$2b$/$2y$) and {SHA} hashes are recognized by their leading
// tag; any other hash is compared as a plain hex MD5 digest of the
// password. MD5-crypt ($apr1$) hashes are not supported.
type HtpasswdEntry struct {
	Username string
	Hash     string
}

// ParseHtpasswd parses the "user:hash" line format produced by
// `htpasswd`, ignoring blank lines and comments.
func ParseHtpasswd(data string) []HtpasswdEntry {
	var out []HtpasswdEntry
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		user, hash, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out = append(out, HtpasswdEntry{Username: user, Hash: hash})
	}
	return out
}

// VerifyBasic checks an `Authorization: Basic base64(user:pass)`
// header against a parsed htpasswd blob.
func VerifyBasic(authHeader string, entries []HtpasswdEntry) Outcome {
	const prefix = "Basic "
	if !strings.HasPrefix(authHeader, prefix) {
		return Fail(plerrors.New(plerrors.AuthUnauthenticated, "missing Basic credentials"))
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(authHeader, prefix))
	if err != nil {
		log.Warn().Err(err).Msg("basic auth failed: malformed credentials")
		return Fail(plerrors.New(plerrors.AuthUnauthenticated, "malformed Basic credentials"))
	}
	user, pass, ok := strings.Cut(string(raw), ":")
	if !ok {
		log.Warn().Msg("basic auth failed: malformed credentials")
		return Fail(plerrors.New(plerrors.AuthUnauthenticated, "malformed Basic credentials"))
	}

	for _, e := range entries {
		if e.Username != user {
			continue
		}
		if checkPassword(e.Hash, pass) {
			return Succeed(map[string]pathresolver.Value{"username": user})
		}
		log.Warn().Str("username", user).Msg("basic auth failed: wrong password")
		return Fail(plerrors.New(plerrors.AuthUnauthenticated, "invalid credentials"))
	}
	log.Warn().Str("username", user).Msg("basic auth failed: unknown user")
	return Fail(plerrors.New(plerrors.AuthUnauthenticated, "invalid credentials"))
}

func shaSum(password string) string {
	sum := sha1.Sum([]byte(password))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func checkPassword(hash, password string) bool {
	switch {
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	case strings.HasPrefix(hash, "{SHA}"):
		sum := shaSum(password)
		want := strings.TrimPrefix(hash, "{SHA}")
		return subtle.ConstantTimeCompare([]byte(sum), []byte(want)) == 1
	default:
		sum := fmt.Sprintf("%x", md5.Sum([]byte(password)))
		return subtle.ConstantTimeCompare([]byte(sum), []byte(hash)) == 1
	}
}

// JWKSet is a minimal in-memory JSON Web Key Set used to verify JWT
// signatures. Keys are indexed by `kid`.
type JWKSet struct {
	keys map[string]any
}

// NewJWKSet builds a JWKSet from pre-parsed key material (e.g. RSA
// public keys, HMAC secrets) keyed by `kid`.
func NewJWKSet(keys map[string]any) *JWKSet {
	return &JWKSet{keys: keys}
}

// VerifyJWT validates a bearer token against one or more JWK sets in
// order, returning the first success.
func VerifyJWT(authHeader string, sets []*JWKSet) Outcome {
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return Fail(plerrors.New(plerrors.AuthUnauthenticated, "missing bearer token"))
	}
	raw := strings.TrimPrefix(authHeader, prefix)

	var lastErr *plerrors.Error
	for _, set := range sets {
		claims, err := verifyWithSet(raw, set)
		if err == nil {
			return Succeed(claims)
		}
		lastErr = plerrors.Wrap(plerrors.AuthUnauthenticated, "jwt verification failed", err)
	}
	if lastErr == nil {
		lastErr = plerrors.New(plerrors.AuthUnauthenticated, "no JWK sets configured")
	} else {
		log.Warn().Err(lastErr.Underlying).Msg("jwt verification failed against every key set")
	}
	return Fail(lastErr)
}

func verifyWithSet(raw string, set *JWKSet) (pathresolver.Value, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid != "" {
			if k, ok := set.keys[kid]; ok {
				return k, nil
			}
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		for _, k := range set.keys {
			return k, nil
		}
		return nil, fmt.Errorf("no keys available")
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	claimsJSON, err := json.Marshal(token.Claims)
	if err != nil {
		return nil, err
	}
	var claims pathresolver.Value
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return nil, err
	}
	return claims, nil
}
