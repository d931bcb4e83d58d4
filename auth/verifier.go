// Package auth verifies Clerk, Supabase and local session JWTs.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tickrify1/tickrify.com-sub000/app/config"
)

const (
	defaultLeeway = 30 * time.Second

	// SupabaseAudience is the aud claim on Supabase user access tokens.
	SupabaseAudience = "authenticated"
)

var ErrNoVerifier = errors.New("no verifier accepted the token")

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(tokenString string) (*Claims, error)
}

// Verifier validates JWT access tokens against a JWKS endpoint.
type Verifier struct {
	issuer   string
	audience string
	keyfunc  keyfunc.Keyfunc
	parser   *jwt.Parser
}

// NewVerifier builds a verifier with an optional JWKS URL override. An empty
// audience skips the aud check; Clerk session tokens carry none.
func NewVerifier(issuer, audience, jwksURL string) (*Verifier, error) {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, errors.New("issuer must be set")
	}
	if jwksURL == "" {
		jwksURL = strings.TrimRight(issuer, "/") + "/.well-known/jwks.json"
	}

	keyProvider, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to init JWKS keyfunc: %w", err)
	}

	opts := []jwt.ParserOption{
		jwt.WithIssuer(issuer),
		jwt.WithLeeway(defaultLeeway),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{
			jwt.SigningMethodRS256.Name, jwt.SigningMethodRS384.Name, jwt.SigningMethodRS512.Name,
			jwt.SigningMethodES256.Name,
		}),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	return &Verifier{
		issuer:   issuer,
		audience: audience,
		keyfunc:  keyProvider,
		parser:   jwt.NewParser(opts...),
	}, nil
}

// Verify parses and validates a JWT, returning extracted claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := v.parser.Parse(tokenString, v.keyfunc.Keyfunc)
	if err != nil {
		return nil, err
	}
	return claimsFromToken(token, tokenString)
}

// Chain tries each verifier in order and returns the first success.
type Chain []TokenVerifier

func (c Chain) Verify(tokenString string) (*Claims, error) {
	var errs []error
	for _, v := range c {
		claims, err := v.Verify(tokenString)
		if err == nil {
			return claims, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, ErrNoVerifier
	}
	return nil, fmt.Errorf("%w: %w", ErrNoVerifier, errors.Join(errs...))
}

// VerifiersFromConfig builds a JWKS verifier for every configured hosted
// provider. A provider whose JWKS cannot be loaded is skipped with a warning.
func VerifiersFromConfig(cfg config.AuthConfig) Chain {
	var chain Chain
	if cfg.ClerkIssuer != "" {
		v, err := NewVerifier(cfg.ClerkIssuer, "", cfg.ClerkJWKSURL)
		if err != nil {
			log.Printf("level=warn component=auth msg=\"clerk verifier unavailable\" err=%v", err)
		} else {
			chain = append(chain, v)
		}
	}
	if cfg.SupabaseURL != "" {
		issuer := strings.TrimRight(cfg.SupabaseURL, "/") + "/auth/v1"
		v, err := NewVerifier(issuer, SupabaseAudience, "")
		if err != nil {
			log.Printf("level=warn component=auth msg=\"supabase verifier unavailable\" err=%v", err)
		} else {
			chain = append(chain, v)
		}
	}
	return chain
}

func claimsFromToken(token *jwt.Token, raw string) (*Claims, error) {
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}
	claims := &Claims{
		Subject:   readString(mapClaims, "sub"),
		Issuer:    readString(mapClaims, "iss"),
		Audience:  readAudience(mapClaims["aud"]),
		ExpiresAt: readExpiry(mapClaims["exp"]),
		Scope:     readString(mapClaims, "scope"),
		Email:     readString(mapClaims, "email"),
		Name:      readName(mapClaims),
		Token:     raw,
		Raw:       mapClaims,
	}
	if claims.Subject == "" {
		return nil, errors.New("token missing sub")
	}
	return claims, nil
}

func readString(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// readName looks at the top-level name claim, then Supabase user_metadata.
func readName(claims jwt.MapClaims) string {
	if n := readString(claims, "name"); n != "" {
		return n
	}
	if meta, ok := claims["user_metadata"].(map[string]any); ok {
		for _, k := range []string{"name", "full_name"} {
			if s, ok := meta[k].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func readAudience(raw any) []string {
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}

func readExpiry(raw any) time.Time {
	switch v := raw.(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return time.Unix(i, 0)
		}
	case int64:
		return time.Unix(v, 0)
	}
	return time.Time{}
}

// AuthDisabled reports whether auth should be skipped for local development.
func AuthDisabled() bool {
	if strings.EqualFold(os.Getenv("AUTH_DISABLED"), "true") {
		if strings.EqualFold(os.Getenv("ENV"), "local") || os.Getenv("AWS_LAMBDA_FUNCTION_NAME") == "" {
			log.Print("auth disabled via AUTH_DISABLED for local development")
			return true
		}
	}
	return false
}
