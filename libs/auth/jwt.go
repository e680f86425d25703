package auth

import (
	"crypto"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Roles recognised by the scheduling API.
const (
	RoleAdmin        = "admin"
	RoleProfessional = "professional"
	RoleReceptionist = "receptionist"
)

// Claims carries the caller identity. ProfessionalID is set for tokens issued
// to a professional and scopes writes to their own schedule.
type Claims struct {
	ProfessionalID string `json:"professional_id,omitempty"`
	Role           string `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) Sub() string { return c.Subject }

// NewClaims builds claims valid for ttl from now.
func NewClaims(sub, professionalID, role string, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		ProfessionalID: professionalID,
		Role:           role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func SignHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ParseAndVerifyHS256(token, secret string) (*Claims, error) {
	if secret == "" {
		return nil, ErrInvalidToken
	}
	return parse(token, func(*jwt.Token) (any, error) { return []byte(secret), nil }, jwt.SigningMethodHS256.Alg())
}

func VerifyRS256(token string, pubKey crypto.PublicKey) (*Claims, error) {
	rsaKey, ok := pubKey.(*rsa.PublicKey)
	if !ok {
		return nil, ErrInvalidToken
	}
	return parse(token, func(*jwt.Token) (any, error) { return rsaKey, nil }, jwt.SigningMethodRS256.Alg())
}

func parse(token string, keyFunc jwt.Keyfunc, algs ...string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, keyFunc,
		jwt.WithValidMethods(algs),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// Verifier checks bearer tokens: RS256 against a JWKS when one is configured,
// HS256 against the shared secret otherwise.
type Verifier struct {
	Secret string
	JWKS   *JWKSClient
}

func (v Verifier) Enabled() bool { return v.Secret != "" || v.JWKS != nil }

func (v Verifier) Verify(token string) (*Claims, error) {
	if v.JWKS != nil {
		parsed, _, err := jwt.NewParser().ParseUnverified(token, &Claims{})
		if err != nil {
			return nil, ErrInvalidToken
		}
		kid, _ := parsed.Header["kid"].(string)
		if parsed.Method.Alg() == jwt.SigningMethodRS256.Alg() && kid != "" {
			pub, err := v.JWKS.Get(kid)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
			}
			return VerifyRS256(token, pub)
		}
	}
	return ParseAndVerifyHS256(token, v.Secret)
}
