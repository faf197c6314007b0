package geo

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// TokenKind discriminates the two QR payload flavors.
type TokenKind string

const (
	TokenKindStart   TokenKind = "trip_start"
	TokenKindPayment TokenKind = "trip_payment"
)

// Max ages checked at validation time.
const (
	StartTokenMaxAge   = time.Hour
	PaymentTokenMaxAge = 24 * time.Hour
)

var (
	ErrEmptySecret  = errors.New("geo: empty token secret")
	ErrInvalidToken = errors.New("geo: invalid token")
)

// tokenClaims is the signed QR payload: trip id, pin, a type discriminator,
// and the creation timestamp.
type tokenClaims struct {
	TripID string    `json:"trip_id"`
	Pin    string    `json:"pin"`
	Kind   TokenKind `json:"kind"`
	jwtlib.RegisteredClaims
}

// TokenIssuer signs and validates start/payment tokens.
type TokenIssuer struct {
	secret []byte
	now    func() time.Time // injectable for tests
}

// NewTokenIssuer creates a token issuer with the given HMAC secret.
func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	s := strings.TrimSpace(secret)
	if s == "" {
		return nil, ErrEmptySecret
	}
	return &TokenIssuer{secret: []byte(s), now: time.Now}, nil
}

// GenerateStartToken returns an opaque payload embedding the trip id, pin,
// the start discriminator, and a creation timestamp.
func (issuer *TokenIssuer) GenerateStartToken(tripID, pin string) (string, error) {
	return issuer.generate(tripID, pin, TokenKindStart)
}

// GeneratePaymentToken is the 24-hour flavor presented at settlement.
func (issuer *TokenIssuer) GeneratePaymentToken(tripID, pin string) (string, error) {
	return issuer.generate(tripID, pin, TokenKindPayment)
}

func (issuer *TokenIssuer) generate(tripID, pin string, kind TokenKind) (string, error) {
	claims := tokenClaims{
		TripID: tripID,
		Pin:    pin,
		Kind:   kind,
		RegisteredClaims: jwtlib.RegisteredClaims{
			IssuedAt: jwtlib.NewNumericDate(issuer.now().UTC()),
		},
	}
	tkn := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return tkn.SignedString(issuer.secret)
}

// ValidateStartToken checks signature, type discriminator, trip id, pin, and
// age <= maxAge. It returns false on any mismatch; callers only need the
// verdict, never the reason.
func (issuer *TokenIssuer) ValidateStartToken(payload, tripID, pin string, maxAge time.Duration) bool {
	return issuer.validate(payload, tripID, pin, TokenKindStart, maxAge)
}

// ValidatePaymentToken is the settlement-side counterpart.
func (issuer *TokenIssuer) ValidatePaymentToken(payload, tripID, pin string, maxAge time.Duration) bool {
	return issuer.validate(payload, tripID, pin, TokenKindPayment, maxAge)
}

func (issuer *TokenIssuer) validate(payload, tripID, pin string, kind TokenKind, maxAge time.Duration) bool {
	var claims tokenClaims
	tkn, err := jwtlib.ParseWithClaims(payload, &claims, func(t *jwtlib.Token) (any, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return issuer.secret, nil
	}, jwtlib.WithoutClaimsValidation())
	if err != nil || !tkn.Valid {
		return false
	}

	if claims.Kind != kind || claims.TripID != tripID || claims.Pin != pin {
		return false
	}
	if claims.IssuedAt == nil {
		return false
	}
	age := issuer.now().UTC().Sub(claims.IssuedAt.Time)
	return age >= 0 && age <= maxAge
}
