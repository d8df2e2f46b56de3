// Package auth provides bcrypt password hashing and HS256 JWT issue/parse.
// It is a leaf package used by internal/domain/auth and internal/api/middleware.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// BCryptCost is the bcrypt work factor.
const BCryptCost = 12

// DefaultJWTExpiry is the token lifetime in hours when JWT_EXPIRY is unset.
const DefaultJWTExpiry = 24

// Issuer is stamped into every token.
const Issuer = "chatroute"

const (
	envJWTSecret = "JWT_SECRET"
	envJWTExpiry = "JWT_EXPIRY"
)

// ErrEmptyToken is returned by ParseJWT for an empty string.
var ErrEmptyToken = errors.New("auth: token is empty")

// getJWTSecret reads JWT_SECRET. It panics when unset so a server can never
// start signing with an empty key.
func getJWTSecret() []byte {
	secret := os.Getenv(envJWTSecret)
	if secret == "" {
		panic(envJWTSecret + " environment variable not set, cannot sign tokens")
	}
	return []byte(secret)
}

// parseJWTExpiry turns an hour count into a Duration, falling back to
// DefaultJWTExpiry for empty or non-numeric input.
func parseJWTExpiry(expiryStr string) time.Duration {
	if expiryStr == "" {
		return time.Duration(DefaultJWTExpiry) * time.Hour
	}
	hours, err := strconv.Atoi(expiryStr)
	if err != nil {
		return time.Duration(DefaultJWTExpiry) * time.Hour
	}
	return time.Duration(hours) * time.Hour
}

func getJWTExpiry() time.Duration {
	return parseJWTExpiry(os.Getenv(envJWTExpiry))
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BCryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches hash. Malformed hashes
// simply do not match.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Claims are the token claims. Username doubles as the subject.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateJWT signs a token for username using JWT_SECRET and JWT_EXPIRY.
func GenerateJWT(username string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(getJWTExpiry())),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(getJWTSecret())
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, nil
}

// ParseJWT validates a token and returns its claims. Only HMAC signatures are
// accepted.
func ParseJWT(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrEmptyToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return getJWTSecret(), nil
	}, jwt.WithIssuer(Issuer))
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Username == "" {
		return nil, fmt.Errorf("invalid JWT claims or signature")
	}
	return claims, nil
}
