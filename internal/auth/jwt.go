package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents operator token claims
type Claims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// GenerateToken generates a signed operator token
func GenerateToken(secret []byte, operator string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("JWT secret is not configured")
	}

	claims := &Claims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken parses and validates an operator token
func ValidateToken(secret []byte, tokenString string) (*Claims, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("JWT secret is not configured")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// ExtractToken extracts the bearer token from an Authorization header
func ExtractToken(authHeader string) (string, error) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header must be 'Bearer {token}'")
	}
	return parts[1], nil
}
