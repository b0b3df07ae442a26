package service

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the identity fields the admission layer reads from a token.
type Claims struct {
	UserID string
	Email  string
	Role   string
	Tier   string // optional; selects the tier session rate class
}

// AuthService only validates tokens. Issuing them belongs to the identity provider.
type AuthService struct {
	jwtSecret []byte // Stored in env (JWT_SECRET)
}

func NewAuthService(secret string) *AuthService {
	return &AuthService{
		jwtSecret: []byte(secret),
	}
}

// Validates a JWT token and returns its claims
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Verifying signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	claims := &Claims{
		UserID: stringClaim(mapClaims, "user_id"),
		Email:  stringClaim(mapClaims, "email"),
		Role:   stringClaim(mapClaims, "role"),
		Tier:   stringClaim(mapClaims, "tier"),
	}
	if claims.UserID == "" {
		claims.UserID = stringClaim(mapClaims, "sub")
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user id")
	}

	return claims, nil
}

func stringClaim(claims jwt.MapClaims, name string) string {
	v, _ := claims[name].(string)
	return v
}
