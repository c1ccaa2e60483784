package jwtutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrMalformed is returned for tokens that cannot be parsed
	ErrMalformed = errors.New("malformed session token")
	// ErrExpired is returned for tokens past their expiry
	ErrExpired = errors.New("session token expired")
	// ErrInvalidSignature is returned for forged tokens and tokens of another account class
	ErrInvalidSignature = errors.New("invalid session token signature")
	// ErrMissingSubject is returned when a session is requested without a tenant key or actor
	ErrMissingSubject = errors.New("session needs a tenant key and an actor")
)

// AccountClass distinguishes the two login surfaces
type AccountClass string

const (
	AccountCompany AccountClass = "company"
	AccountManager AccountClass = "manager"
)

// JWTConfig holds the signing context of one account class
type JWTConfig struct {
	SigningKey string
	TTL        time.Duration
	Issuer     string
}

// SessionClaims is the signed payload of a session
type SessionClaims struct {
	TenantID     uint         `json:"tid"`
	TenantKey    string       `json:"tkey"`
	ActorID      uint         `json:"aid"`
	Role         string       `json:"role"`
	AccountClass AccountClass `json:"cls"`
	BranchID     *uint        `json:"bid,omitempty"`
	jwt.RegisteredClaims
}

// SessionInput is what a session is issued for
type SessionInput struct {
	TenantID  uint
	TenantKey string
	ActorID   uint
	Role      string
	BranchID  *uint
}

// JWTUtil issues and verifies sessions for a single account class
type JWTUtil struct {
	class  AccountClass
	config JWTConfig
	now    func() time.Time
}

// Option customizes a JWTUtil
type Option func(*JWTUtil)

// WithClock overrides the time source used for issuing and verifying
func WithClock(now func() time.Time) Option {
	return func(j *JWTUtil) {
		j.now = now
	}
}

// NewJWTUtil creates a session manager for the given account class
func NewJWTUtil(class AccountClass, config JWTConfig, opts ...Option) *JWTUtil {
	j := &JWTUtil{
		class:  class,
		config: config,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Class returns the account class this manager serves
func (j *JWTUtil) Class() AccountClass {
	return j.class
}

// GenerateToken signs a session for in and returns it with its expiry
func (j *JWTUtil) GenerateToken(in SessionInput) (string, time.Time, error) {
	if j.config.SigningKey == "" {
		return "", time.Time{}, errors.New("session signing key not configured")
	}
	if in.TenantKey == "" || in.ActorID == 0 {
		return "", time.Time{}, ErrMissingSubject
	}

	issuedAt := j.now()
	expiresAt := issuedAt.Add(j.config.TTL)

	claims := SessionClaims{
		TenantID:     in.TenantID,
		TenantKey:    in.TenantKey,
		ActorID:      in.ActorID,
		Role:         in.Role,
		AccountClass: j.class,
		BranchID:     in.BranchID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    j.config.Issuer,
			Subject:   fmt.Sprintf("%d", in.ActorID),
			Audience:  jwt.ClaimStrings{string(j.class)},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(j.config.SigningKey))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies the signature, expiry and class of a session token
func (j *JWTUtil) ValidateToken(tokenString string) (*SessionClaims, error) {
	if tokenString == "" {
		return nil, ErrMalformed
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(j.config.SigningKey), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, classify(err)
	}
	if !token.Valid {
		return nil, ErrInvalidSignature
	}

	if claims.AccountClass != j.class || !audienceContains(claims.Audience, string(j.class)) {
		return nil, ErrInvalidSignature
	}
	if claims.TenantKey == "" || claims.ActorID == 0 {
		return nil, ErrMalformed
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrInvalidSignature
	}
}

func audienceContains(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

type claimsKey struct{}

// WithClaims stores verified session claims in ctx
func WithClaims(ctx context.Context, claims *SessionClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the session claims stored by WithClaims
func ClaimsFromContext(ctx context.Context) (*SessionClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*SessionClaims)
	return claims, ok && claims != nil
}
