package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the subset of gateway-issued JWT claims this service reads.
type Claims struct {
	Sub      string `json:"sub"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	Exp      int64  `json:"exp"`
	Iat      int64  `json:"iat"`
}

// Identity is the request principal resolved by Middleware.
type Identity struct {
	TenantID string
	ActorID  string
	Role     string
}

type identityKey struct{}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// ParseJWTNoVerify decodes a JWT's claims without checking the signature.
// Signature verification happens at the API gateway; by the time a request
// reaches this service the token has already been validated.
func ParseJWTNoVerify(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidToken
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Exp > 0 && time.Now().Unix() > claims.Exp {
		return nil, ErrInvalidToken
	}

	return &claims, nil
}

// Middleware resolves the request identity from the Authorization header, or
// from X-Tenant-Id / X-Actor-Id headers for internal callers. Requests with
// no resolvable tenant are rejected.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := resolveIdentity(r)
		if !ok {
			http.Error(w, "missing or invalid credentials", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
	})
}

func resolveIdentity(r *http.Request) (Identity, bool) {
	if raw := strings.TrimSpace(r.Header.Get("Authorization")); raw != "" {
		token := strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
		claims, err := ParseJWTNoVerify(token)
		if err != nil || claims.TenantID == "" {
			return Identity{}, false
		}
		return Identity{TenantID: claims.TenantID, ActorID: claims.Sub, Role: claims.Role}, true
	}

	tenant := strings.TrimSpace(r.Header.Get("X-Tenant-Id"))
	if tenant == "" {
		return Identity{}, false
	}
	return Identity{
		TenantID: tenant,
		ActorID:  strings.TrimSpace(r.Header.Get("X-Actor-Id")),
		Role:     strings.TrimSpace(r.Header.Get("X-Role")),
	}, true
}
