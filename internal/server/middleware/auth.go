package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
)

// ErrInvalidToken is returned when a bearer token fails verification.
var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier turns a bearer token into a caller identity.
type TokenVerifier interface {
	Verify(token string) (ownerID string, err error)
}

// HMACVerifier verifies tokens of the form "<owner_id>.<signature>"
// where the signature is hex-encoded HMAC-SHA256 of the owner id.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier creates a verifier keyed with secret.
func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Sign issues a token for ownerID. Used by provisioning tooling and
// tests.
func (v *HMACVerifier) Sign(ownerID string) string {
	return ownerID + "." + v.signature(ownerID)
}

func (v *HMACVerifier) Verify(token string) (string, error) {
	dot := strings.LastIndexByte(token, '.')
	if dot <= 0 || dot == len(token)-1 {
		return "", ErrInvalidToken
	}
	ownerID, sig := token[:dot], token[dot+1:]
	if !hmac.Equal([]byte(sig), []byte(v.signature(ownerID))) {
		return "", ErrInvalidToken
	}
	return ownerID, nil
}

func (v *HMACVerifier) signature(ownerID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(ownerID))
	return hex.EncodeToString(mac.Sum(nil))
}

type ownerKeyType struct{}

var ownerKey ownerKeyType

// BearerToken extracts the token from an Authorization header or, for
// endpoints that cannot set headers, a "token" query parameter.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// Auth rejects requests without a verifiable bearer token and stores
// the caller identity in the request context.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				WriteError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
				return
			}
			ownerID, err := verifier.Verify(token)
			if err != nil {
				WriteError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid bearer token")
				return
			}
			ctx := context.WithValue(r.Context(), ownerKey, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerID returns the authenticated caller, or empty when the request
// did not pass through Auth.
func OwnerID(ctx context.Context) string {
	id, _ := ctx.Value(ownerKey).(string)
	return id
}
