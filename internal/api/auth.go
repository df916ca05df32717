package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"newsroom-ledger/internal/ledger"
)

// Claims - сессия портала внутри токена
type Claims struct {
	UserID      uint   `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) (*Authenticator, error) {
	if len(secret) < 16 {
		return nil, errors.New("JWT secret must be at least 16 characters")
	}
	return &Authenticator{secret: []byte(secret)}, nil
}

// IssueToken подписывает сессию HS256 на ttl
func (a *Authenticator) IssueToken(s ledger.Session, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:      s.UserID,
		DisplayName: s.DisplayName,
		Role:        s.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) ParseToken(tokenString string) (ledger.Session, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return ledger.Session{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return ledger.Session{}, errors.New("invalid token")
	}
	role := ledger.Role(claims.Role)
	if claims.UserID == 0 || !role.IsValid() {
		return ledger.Session{}, errors.New("token carries no valid session")
	}
	return ledger.Session{UserID: claims.UserID, DisplayName: claims.DisplayName, Role: role}, nil
}

// Middleware кладёт сессию из Bearer-токена в контекст. Запрос без токена проходит дальше:
// операции сами отвечают UNAUTHORIZED.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			respond(w, nil, ledger.ErrUnauthorizedf("malformed Authorization header"))
			return
		}
		session, err := a.ParseToken(tokenString)
		if err != nil {
			respond(w, nil, ledger.ErrUnauthorizedf("invalid token: %v", err))
			return
		}
		next.ServeHTTP(w, r.WithContext(ledger.WithSession(r.Context(), session)))
	})
}
