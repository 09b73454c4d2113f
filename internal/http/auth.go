package http

import (
	"context"
	"crypto/rsa"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
)

// Principal is the authenticated buyer. Token is forwarded to the backend
// unchanged.
type Principal struct {
	UserID string
	Token  string
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

var errUnauthorized = errors.New("unauthorized")

// Authenticator reads the buyer from a bearer token. Without a public key the
// signature is left to the backend and only the subject is read.
type Authenticator struct {
	key    *rsa.PublicKey
	parser *jwt.Parser
}

func NewAuthenticator(publicKeyPEM string) (*Authenticator, error) {
	a := &Authenticator{parser: jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))}
	if publicKeyPEM == "" {
		return a, nil
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, errors.Wrap(err, "parse jwt public key")
	}
	a.key = key
	return a, nil
}

func (a *Authenticator) Authenticate(header string) (Principal, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return Principal{}, errors.Wrap(errUnauthorized, "missing bearer token")
	}

	var token *jwt.Token
	var err error
	if a.key != nil {
		token, err = a.parser.Parse(raw, func(*jwt.Token) (interface{}, error) { return a.key, nil })
	} else {
		token, _, err = jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	}
	if err != nil {
		return Principal{}, errors.Wrap(errUnauthorized, err.Error())
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return Principal{}, errors.Wrap(errUnauthorized, "token has no subject")
	}
	return Principal{UserID: sub, Token: raw}, nil
}

func JWTMiddleware(auth *Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := auth.Authenticate(r.Header.Get("Authorization"))
			if err != nil {
				loggerFrom(r.Context()).Debug("rejected token: ", err)
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
		})
	}
}
