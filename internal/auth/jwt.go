// Package auth issues and verifies the bearer tokens that identify registry
// actors. A token's subject is the hex id of the actor key; mutations are
// attributed to that key.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/modlink/registry-engine/internal/address"
)

// SecretEnv names the environment variable holding the HMAC secret.
const SecretEnv = "REG_JWT_SECRET"

const issuer = "module-registry"

var (
	// jwtSecret holds the validated JWT secret
	jwtSecret     string
	jwtSecretOnce sync.Once
	jwtSecretErr  error
)

// ErrInvalidActor is returned for tokens whose subject is not an actor id.
var ErrInvalidActor = errors.New("token subject is not a valid actor id")

// Claims represents the JWT claims structure
type Claims struct {
	Label string `json:"label,omitempty"`
	jwt.RegisteredClaims
}

// Actor returns the actor key carried in the subject.
func (c *Claims) Actor() (address.Key, error) {
	k, err := address.Parse(c.Subject)
	if err != nil || k.IsZero() {
		return address.Zero, ErrInvalidActor
	}
	return k, nil
}

func isDevMode() bool {
	devMode := os.Getenv("DEV_MODE")
	ginMode := os.Getenv("GIN_MODE")
	return devMode == "true" || devMode == "1" || ginMode == "debug"
}

func generateRandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ValidateJWTSecret checks that the JWT secret is properly configured.
// Outside dev mode it fails when REG_JWT_SECRET is unset; in dev mode a random
// secret is generated and tokens do not survive a restart.
func ValidateJWTSecret() error {
	jwtSecretOnce.Do(func() {
		secret := os.Getenv(SecretEnv)

		if secret == "" {
			if !isDevMode() {
				jwtSecretErr = fmt.Errorf("%s environment variable is required; generate one with: openssl rand -hex 32", SecretEnv)
				return
			}
			jwtSecret, jwtSecretErr = generateRandomSecret()
			slog.Warn("JWT secret not set, using an auto-generated development secret", "env", SecretEnv)
			return
		}

		if len(secret) < 32 {
			slog.Warn("JWT secret is shorter than the recommended 32 characters", "env", SecretEnv)
		}
		jwtSecret = secret
	})

	return jwtSecretErr
}

// GetJWTSecret retrieves the validated JWT secret.
// Panics if the secret cannot be initialised.
func GetJWTSecret() string {
	if jwtSecret == "" {
		if err := ValidateJWTSecret(); err != nil {
			panic(err)
		}
	}
	return jwtSecret
}

// GenerateActorToken signs a token for actor. A zero expiresIn means one hour.
func GenerateActorToken(actor address.Key, label string, expiresIn time.Duration) (string, error) {
	if actor.IsZero() {
		return "", ErrInvalidActor
	}
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	now := time.Now()
	claims := &Claims{
		Label: label,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   actor.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(GetJWTSecret()))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateActorToken parses and verifies a token and returns its actor.
func ValidateActorToken(tokenString string) (address.Key, *Claims, error) {
	secret := GetJWTSecret()

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return address.Zero, nil, err
	}
	if !token.Valid {
		return address.Zero, nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return address.Zero, nil, errors.New("invalid claims type")
	}
	actor, err := claims.Actor()
	if err != nil {
		return address.Zero, nil, err
	}
	return actor, claims, nil
}
