package auth

import (
	"context"
	"net/http"
)

type operatorKeyType string

const OperatorKey operatorKeyType = "operator"

// JWTMiddleware guards a handler with operator bearer-token authentication.
// Read-only surfaces stay public; only mutating routes are wrapped with this.
func JWTMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Missing authorization header", http.StatusUnauthorized)
				return
			}

			tokenString, err := ExtractToken(authHeader)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			claims, err := ValidateToken(secret, tokenString)
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), OperatorKey, claims.Operator)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOperator returns the authenticated operator name from the context
func GetOperator(ctx context.Context) string {
	if op, ok := ctx.Value(OperatorKey).(string); ok {
		return op
	}
	return ""
}
