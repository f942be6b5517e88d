package runtime

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"strings"

	"github.com/gqlforge/gqlforge/internal/auth"
	"github.com/gqlforge/gqlforge/internal/config"
)

// jwkKey is one entry of a JSON Web Key Set document (RFC 7517). Only
// the fields GqlForge's JWT verification actually needs are modeled;
// everything else is ignored, mirroring how pgbinary only decodes the
// wire types the gateway re-serializes.
type jwkKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"` // RSA modulus, base64url
	E   string `json:"e"` // RSA exponent, base64url
	K   string `json:"k"` // oct (HMAC) secret, base64url
}

type jwkSetDoc struct {
	Keys []jwkKey `json:"keys"`
}

// loadJWKSet fetches (http/https src) or reads (file path src) a JWKS
// document and converts every key into the crypto material
// golang-jwt/jwt/v5's keyfunc expects: *rsa.PublicKey for "RSA", the
// raw secret bytes for "oct".
//
// golang-jwt/jwt/v5 itself ships no JWKS parser, so this conversion
// is standard-library crypto/rsa and math/big rather than a
// third-party JWK library.
func loadJWKSet(link config.Link) (*auth.JWKSet, error) {
	raw, err := fetchOrRead(link.Src)
	if err != nil {
		return nil, err
	}

	var doc jwkSetDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("runtime: parsing JWKS document: %w", err)
	}

	keys := make(map[string]any, len(doc.Keys))
	for _, k := range doc.Keys {
		material, err := k.material()
		if err != nil {
			return nil, fmt.Errorf("runtime: key %q: %w", k.Kid, err)
		}
		if material != nil {
			keys[k.Kid] = material
		}
	}
	return auth.NewJWKSet(keys), nil
}

func (k jwkKey) material() (any, error) {
	switch strings.ToUpper(k.Kty) {
	case "RSA":
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, fmt.Errorf("decoding modulus: %w", err)
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, fmt.Errorf("decoding exponent: %w", err)
		}
		return &rsa.PublicKey{
			N: new(big.Int).SetBytes(n),
			E: int(new(big.Int).SetBytes(e).Int64()),
		}, nil
	case "OCT":
		secret, err := base64.RawURLEncoding.DecodeString(k.K)
		if err != nil {
			return nil, fmt.Errorf("decoding secret: %w", err)
		}
		return secret, nil
	default:
		return nil, nil // unsupported key type: skip, not fatal
	}
}

func fetchOrRead(src string) ([]byte, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		resp, err := http.Get(src)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", src, err)
		}
		defer resp.Body.Close()
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(src)
}
