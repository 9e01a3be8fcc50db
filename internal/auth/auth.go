package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/reportdesk/backend/internal/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	issuer           = "reportdesk"
	revokedKeyPrefix = "reportdesk:revoked:"
)

// ErrUnauthenticated covers every credential or token failure
var ErrUnauthenticated = errors.New("could not validate credentials")

// UserFinder loads a user, with owned report IDs, by username
type UserFinder interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

// Claims represents JWT token claims. Subject carries the username.
type Claims struct {
	UserID uint `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

type Service struct {
	users  UserFinder
	rdb    *redis.Client
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService builds the auth service. rdb may be nil, which disables revocation.
func NewService(users UserFinder, rdb *redis.Client, secret string, ttl time.Duration) *Service {
	return &Service{
		users:  users,
		rdb:    rdb,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL is the lifetime of issued access tokens
func (s *Service) TTL() time.Duration {
	return s.ttl
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// Authenticate checks username and password, returning the user on success
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	if CheckPassword(user.Password, password) != nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

// IssueToken signs an HS256 access token for the user
func (s *Service) IssueToken(user *models.User) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ParseToken verifies signature, algorithm, issuer and expiry
func (s *Service) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrUnauthenticated
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return nil, ErrUnauthenticated
	}
	return claims, nil
}

// ResolveToken maps a bearer token to its user, rejecting revoked tokens
func (s *Service) ResolveToken(ctx context.Context, tokenString string) (*models.User, error) {
	claims, err := s.ParseToken(tokenString)
	if err != nil {
		return nil, err
	}

	revoked, err := s.isRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check token revocation: %w", err)
	}
	if revoked {
		return nil, ErrUnauthenticated
	}

	user, err := s.users.FindByUsername(ctx, claims.Subject)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

// Revoke blacklists the token until it would have expired anyway
func (s *Service) Revoke(ctx context.Context, tokenString string) error {
	if s.rdb == nil {
		return nil
	}
	claims, err := s.ParseToken(tokenString)
	if err != nil {
		return err
	}
	if claims.ID == "" {
		return nil
	}

	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, revokedKeyPrefix+claims.ID, "1", ttl).Err()
}

func (s *Service) isRevoked(ctx context.Context, jti string) (bool, error) {
	if s.rdb == nil || jti == "" {
		return false, nil
	}
	n, err := s.rdb.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
