package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pccr10001/smsnotify/internal/model"
)

var (
	secretKey []byte
	tokenTTL  = 24 * time.Hour
)

type Claims struct {
	UserID uint   `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Configure sets the signing secret and token lifetime. An empty secret
// gets a random one, which invalidates tokens on every restart; the return
// value reports whether that happened.
func Configure(secret string, ttl time.Duration) (generated bool) {
	if ttl > 0 {
		tokenTTL = ttl
	}
	if secret != "" {
		secretKey = []byte(secret)
		return false
	}
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	secretKey = []byte(hex.EncodeToString(b))
	return true
}

func GenerateToken(user *model.User) (string, error) {
	if len(secretKey) == 0 {
		return "", errors.New("auth not configured")
	}
	now := time.Now()
	claims := &Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secretKey)
}

func ValidateToken(tokenString string) (*Claims, error) {
	if len(secretKey) == 0 {
		return nil, errors.New("auth not configured")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secretKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
