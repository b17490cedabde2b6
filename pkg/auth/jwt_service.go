package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is stamped on tokens this service mints and required on the
// tokens it accepts.
const DefaultIssuer = "lecture-video-api"

const clockSkew = 30 * time.Second

var ErrMissingIdentity = errors.New("token carries no user id")

type JWTService struct {
	secretKey     []byte
	tokenLifespan time.Duration
	issuer        string
	parser        *jwt.Parser
}

// CustomClaims identify a user issued a session by the identity provider.
// Providers that only set the subject are accepted; UserID is then read from it.
type CustomClaims struct {
	UserID   int64  `json:"user_id,omitempty"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewJWTService(secretKey string, tokenLifespan time.Duration) *JWTService {
	return NewJWTServiceWithIssuer(secretKey, tokenLifespan, DefaultIssuer)
}

func NewJWTServiceWithIssuer(secretKey string, tokenLifespan time.Duration, issuer string) *JWTService {
	return &JWTService{
		secretKey:     []byte(secretKey),
		tokenLifespan: tokenLifespan,
		issuer:        issuer,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithLeeway(clockSkew),
			jwt.WithExpirationRequired(),
		),
	}
}

// GenerateToken mints a session token. Used by tooling and tests; production
// tokens come from the identity provider sharing the secret.
func (s *JWTService) GenerateToken(userID int64, username string) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenLifespan)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    s.issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("cannot sign token: %w", err)
	}
	return signed, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*CustomClaims, error) {
	claims := &CustomClaims{}
	if _, err := s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.secretKey, nil
	}); err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if claims.UserID == 0 && claims.Subject != "" {
		id, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: subject %q is not numeric", ErrMissingIdentity, claims.Subject)
		}
		claims.UserID = id
	}
	if claims.UserID <= 0 {
		return nil, ErrMissingIdentity
	}
	return claims, nil
}
