package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Используется SigningMethodHS256
type JWTSigner struct {
	secret    []byte
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration
}

func NewJWTSigner(secret []byte, issuer string, ttl time.Duration) *JWTSigner {
	return &JWTSigner{
		secret:    secret,
		issuer:    issuer,
		ttl:       ttl,
		clockSkew: 30 * time.Second,
	}
}

func (s *JWTSigner) TTL() time.Duration {
	return s.ttl
}

type AccessClaims struct {
	jwt.StandardClaims
	Username string `json:"username,omitempty"`
}

// SignAccessToken выпускает JWT с sub=userID и exp=now+ttl
func (s *JWTSigner) SignAccessToken(userID, username string, now time.Time) (string, error) {
	claims := AccessClaims{
		StandardClaims: jwt.StandardClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  now.Unix(),
			NotBefore: now.Add(-s.clockSkew).Unix(),
			ExpiresAt: now.Add(s.ttl).Unix(),
		},
		Username: username,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(s.secret)
}

func (s *JWTSigner) ParseAndValidate(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.VerifyIssuer(s.issuer, true) {
		return nil, ErrInvalidToken
	}

	// временные клеймы с допуском clockSkew
	now := time.Now()
	nbf := time.Unix(claims.NotBefore, 0).Add(-s.clockSkew)
	exp := time.Unix(claims.ExpiresAt, 0).Add(s.clockSkew)
	if now.Before(nbf) || now.After(exp) {
		return nil, ErrTokenExpired
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
