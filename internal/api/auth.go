package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// OperatorClaims identifies who issued a DR command.
type OperatorClaims struct {
	Subject string `json:"sub_name"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateOperatorToken mints a short-lived operator token. Used by
// deployment tooling and tests.
func GenerateOperatorToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	claims := OperatorClaims{
		Subject: subject,
		Role:    "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func (s *Server) parseToken(tokenString string) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// requireOperator guards command endpoints. Queries stay open; state
// mutation needs a valid operator token.
func (s *Server) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.secret) == 0 {
			s.writeError(w, http.StatusUnauthorized, fmt.Errorf("api: no operator secret configured"))
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			s.writeError(w, http.StatusUnauthorized, fmt.Errorf("api: bearer token required"))
			return
		}

		claims, err := s.parseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, fmt.Errorf("api: invalid token"))
			return
		}
		if claims.Role != "operator" {
			s.writeError(w, http.StatusForbidden, fmt.Errorf("api: operator role required"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
