// Package auth verifies bearer credentials issued by the external identity
// provider. The service never issues tokens; it only checks signatures and
// extracts the subject and role claims.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const RoleAdmin = "admin"

var ErrInvalidToken = errors.New("invalid token")

// Claims is the identity the rest of the system works with.
type Claims struct {
	UserID uuid.UUID
	Role   string
}

func (c Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates an HS256 token, returning the caller's
// identity.
//
// Returns:
//   - *Claims: the verified identity.
//   - error: auth.ErrInvalidToken for malformed, mis-signed, or expired
//     tokens.
func (v *Verifier) Verify(token string) (*Claims, error) {
	const op = "auth.Verifier.Verify"

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidToken)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidToken)
	}

	sub, err := mc.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidToken)
	}

	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidToken)
	}

	role, _ := mc["role"].(string)

	return &Claims{UserID: userID, Role: role}, nil
}
