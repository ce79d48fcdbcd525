package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

var (
	// ErrInvalidToken is returned for bearer tokens that fail verification.
	ErrInvalidToken = errors.New("invalid bearer token")
	// ErrNoSecret is returned when a token arrives but no secret is configured.
	ErrNoSecret = errors.New("bearer tokens are not accepted: no JWT secret configured")
)

type claimsKey struct{}

// WithClaims returns a context carrying verified JWT claims.
func WithClaims(ctx context.Context, claims jwt.MapClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFrom returns the verified claims attached to ctx.
func ClaimsFrom(ctx context.Context) (jwt.MapClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(jwt.MapClaims)
	return claims, ok
}

// CallerID returns the claim named key as a string. Missing, null, false,
// zero and empty claims yield "".
func CallerID(ctx context.Context, key string) string {
	claims, ok := ClaimsFrom(ctx)
	if !ok {
		return ""
	}
	v, ok := claims[key]
	if !ok || !truthy(v) {
		return ""
	}
	id, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return id
}

func truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		f, err := cast.ToFloat64E(x)
		return err != nil || f != 0
	}
	return true
}

// Verifier checks HS256 bearer tokens.
type Verifier struct {
	secret   []byte
	audience string
	log      *zap.Logger
}

func NewVerifier(secret, audience string, log *zap.Logger) *Verifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{secret: []byte(secret), audience: audience, log: log}
}

// Parse verifies a compact JWT and returns its claims.
func (v *Verifier) Parse(tokenString string) (jwt.MapClaims, error) {
	if len(v.secret) == 0 {
		return nil, ErrNoSecret
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	token, err := jwt.Parse(tokenString, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Sign issues an HS256 token; ttl <= 0 means no expiry.
func (v *Verifier) Sign(claims jwt.MapClaims, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrNoSecret
	}
	out := jwt.MapClaims{}
	for k, val := range claims {
		out[k] = val
	}
	now := time.Now()
	out["iat"] = now.Unix()
	if ttl > 0 {
		out["exp"] = now.Add(ttl).Unix()
	}
	if v.audience != "" {
		out["aud"] = v.audience
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, out).SignedString(v.secret)
	return s, errors.Wrap(err, "sign token")
}

// Middleware attaches verified claims to the request context. Requests
// without an Authorization header pass through as anonymous; malformed or
// unverifiable tokens are answered with 401.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			unauthorized(w, errors.New("authorization header is not a bearer token"))
			return
		}
		claims, err := v.Parse(strings.TrimSpace(token))
		if err != nil {
			v.log.Debug("rejected bearer token", zap.Error(err))
			unauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="pgraph"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"errors": []map[string]string{{"message": err.Error()}},
	})
}
