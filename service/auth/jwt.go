package auth

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"PulseChat/tools/errs"
)

// Identity is the output of a successful token verification.
type Identity struct {
	UserID   string
	Username string
}

// Verifier is the token collaborator: verify(token) -> identity | invalid.
// HMAC family only; anything else in the header is rejected outright.
type Verifier struct {
	secret []byte
	ttl    time.Duration
}

func NewVerifier(secret []byte, ttl time.Duration) *Verifier {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Verifier{secret: secret, ttl: ttl}
}

func (v *Verifier) Verify(token string) (*Identity, error) {
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errs.New("invalid token")
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errs.New("claims type mismatch")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, errs.New("token missing sub")
	}
	name, _ := claims["name"].(string)
	return &Identity{UserID: sub, Username: name}, nil
}

// Issue signs a development token for the /login endpoint.
func (v *Verifier) Issue(userID, username string) (token string, expireAt time.Time, err error) {
	now := time.Now()
	exp := now.Add(v.ttl)
	claims := jwtlib.MapClaims{
		"sub":  userID,
		"name": username,
		"iat":  now.Unix(),
		"nbf":  now.Unix(),
		"exp":  exp.Unix(),
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}
