package inbox

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims identifies the actor a request is made on behalf of.
type Claims struct {
	Name string    `json:"name"`
	Role ActorType `json:"role"`
	jwt.RegisteredClaims
}

// TokenSigner mints and verifies HS256 actor tokens.
type TokenSigner struct {
	secret   []byte
	issuer   string
	validity time.Duration
}

// NewTokenSigner creates a TokenSigner.
func NewTokenSigner(secret, issuer string, validity time.Duration) *TokenSigner {
	return &TokenSigner{
		secret:   []byte(secret),
		issuer:   issuer,
		validity: validity,
	}
}

// Sign creates a signed token for actor.
func (s *TokenSigner) Sign(actor Actor) (string, error) {
	now := time.Now()
	claims := Claims{
		Name: actor.Name,
		Role: actor.Type,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.validity)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses a token and returns the actor it names.
func (s *TokenSigner) Verify(tokenString string) (Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Actor{}, ErrExpiredToken
		}
		return Actor{}, errors.Join(ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Actor{}, ErrInvalidToken
	}
	return Actor{ID: claims.Subject, Name: claims.Name, Type: claims.Role}, nil
}
