package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"quiz-ledger/internal/domain"
)

type contextKey string

const callerKey contextKey = "caller"

var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator issues and checks HS256 tokens whose subject is the caller's
// address. Ledger writes are attributed to that address.
type Authenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(secret, issuer string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue signs a token for addr.
func (a *Authenticator) Issue(addr domain.Address) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   addr.Hex(),
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify returns the address a valid token was issued for.
func (a *Authenticator) Verify(raw string) (domain.Address, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return domain.Address{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	addr, err := domain.ParseAddress(claims.Subject)
	if err != nil {
		return domain.Address{}, fmt.Errorf("%w: subject: %v", ErrUnauthenticated, err)
	}
	return addr, nil
}

// RequireCaller rejects requests without a valid bearer token and stores
// the caller address in the request context.
func (a *Authenticator) RequireCaller(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, ErrUnauthenticated)
			return
		}
		caller, err := a.Verify(token)
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), callerKey, caller)))
	}
}

// CallerFrom returns the authenticated caller stored by RequireCaller.
func CallerFrom(ctx context.Context) (domain.Address, bool) {
	addr, ok := ctx.Value(callerKey).(domain.Address)
	return addr, ok
}
