package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultJWKSCacheTTL = 5 * time.Minute

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSCache holds the identity provider's RSA keys by kid. When no JWKS URL
// is configured it is discovered from the issuer's openid-configuration on
// first use.
type JWKSCache struct {
	mu        sync.RWMutex
	issuer    string
	jwksURL   string
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
	ttl       time.Duration
	client    *http.Client
}

func NewJWKSCache(issuer, jwksURL string, ttl time.Duration) *JWKSCache {
	return &JWKSCache{
		issuer:  strings.TrimSuffix(issuer, "/"),
		jwksURL: jwksURL,
		keys:    make(map[string]*rsa.PublicKey),
		ttl:     ttl,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Keyfunc adapts the cache to jwt.ParseWithClaims.
func (c *JWKSCache) Keyfunc(token *jwt.Token) (interface{}, error) {
	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, fmt.Errorf("token has no kid header")
	}
	return c.GetKey(kid)
}

func (c *JWKSCache) GetKey(kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	fresh := time.Since(c.fetchedAt) <= c.ttl
	c.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}

	if err := c.refresh(); err != nil {
		return nil, fmt.Errorf("fetch JWKS: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if key, ok = c.keys[kid]; !ok {
		return nil, fmt.Errorf("key %q not found in JWKS", kid)
	}
	return key, nil
}

func (c *JWKSCache) refresh() error {
	url, err := c.resolveURL()
	if err != nil {
		return err
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := c.getJSON(url, &doc); err != nil {
		return err
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		if pub, err := parseRSAPublicKey(k); err == nil {
			keys[k.Kid] = pub
		}
	}

	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return nil
}

func (c *JWKSCache) resolveURL() (string, error) {
	c.mu.RLock()
	url := c.jwksURL
	c.mu.RUnlock()
	if url != "" {
		return url, nil
	}
	if c.issuer == "" {
		return "", fmt.Errorf("neither JWKS URL nor issuer configured")
	}

	var discovery struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := c.getJSON(c.issuer+"/.well-known/openid-configuration", &discovery); err != nil {
		return "", fmt.Errorf("oidc discovery: %w", err)
	}
	if discovery.JWKSURI == "" {
		return "", fmt.Errorf("oidc discovery: no jwks_uri")
	}

	c.mu.Lock()
	c.jwksURL = discovery.JWKSURI
	c.mu.Unlock()
	return discovery.JWKSURI, nil
}

func (c *JWKSCache) getJSON(url string, v interface{}) error {
	resp, err := c.client.Get(url)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func parseRSAPublicKey(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}
