package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"timed-quiz/internal/domain"
)

const tokenIssuer = "timed-quiz"

// Claims is the bearer-token payload: the subject is the user id.
type Claims struct {
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies HS256 bearer tokens.
type Authenticator struct {
	hmac []byte
	now  func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{hmac: []byte(secret), now: time.Now}
}

// IssueToken signs a token for userID with the given role.
func (a *Authenticator) IssueToken(userID, role string, ttl time.Duration) (string, error) {
	return a.IssueTokenFor(domain.User{ID: userID, Role: role}, ttl)
}

// IssueTokenFor signs a token carrying the user's id, role and display name.
func (a *Authenticator) IssueTokenFor(user domain.User, ttl time.Duration) (string, error) {
	if user.ID == "" {
		return "", errors.New("user id is required")
	}
	role := user.Role
	if role == "" {
		role = domain.RoleStudent
	}
	now := a.now()
	claims := &Claims{
		Role: role,
		Name: user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.hmac)
}

// Parse verifies a token and returns the user it names.
func (a *Authenticator) Parse(tokenStr string) (domain.User, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return a.hmac, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return domain.User{}, err
	}
	if !token.Valid || claims.Subject == "" {
		return domain.User{}, errors.New("token has no subject")
	}
	return domain.User{ID: claims.Subject, Name: claims.Name, Role: claims.Role}, nil
}

type userKey struct{}

// UserFrom returns the authenticated caller stored by Middleware.
func UserFrom(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(userKey{}).(domain.User)
	return user, ok
}

// Middleware rejects requests without a valid bearer token. Websocket clients that cannot set
// headers may pass the token as ?token=.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := ""
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			raw = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		} else if q := r.URL.Query().Get("token"); q != "" {
			raw = q
		}
		if raw == "" {
			writeDetail(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, err := a.Parse(raw)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}
