package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/intermernet/clubportal/internal/database"
)

// TokenLifetime is how long an issued portal token stays valid.
const TokenLifetime = 24 * time.Hour

// Claims is the payload of a portal token. The member's role travels inside
// the signed token so handlers can decide capabilities without a roster
// lookup; a role change takes effect on the next login.
type Claims struct {
	MemberID int64         `json:"memberId"`
	Role     database.Role `json:"role"`
	jwt.RegisteredClaims
}

// GenerateJWT creates a signed token for a member and their current role.
func GenerateJWT(memberID int64, role database.Role, secret string) (string, error) {
	if !role.Valid() {
		return "", errors.New("cannot issue token for unknown role")
	}

	now := time.Now()
	claims := &Claims{
		MemberID: memberID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenLifetime)),
		},
	}

	// HS256 with the server secret; the signature keeps the role claim honest.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateJWT parses and validates a token string, checking signature,
// signing method and expiry. It returns the embedded claims.
func ValidateJWT(tokenString string, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Reject tokens that claim a different algorithm family.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if !claims.Role.Valid() {
		return nil, errors.New("token carries an unknown role")
	}
	return claims, nil
}
