// Package operatorauth issues and verifies the bearer JWTs that guard the
// administrative recovery routes of the bank-core server. Operators are
// stored in the same document store as accounts and transactions -- there is
// no separate relational user database -- keyed by username with a bcrypt
// password hash, matching how every other single-document record in this
// core is modeled.
package operatorauth

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/centralbank/bankcore/backend/pkg/store"
)

const operatorsCollection = "operators"

const tokenLifetime = 24 * time.Hour

var (
	ErrOperatorExists    = errors.New("operator already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Operator is one administrative account allowed to trigger recovery
// sweeps. PasswordHash is never serialized back to a client.
type Operator struct {
	Username     string `bson:"_id"`
	PasswordHash string `bson:"passwordHash"`
	Role         string `bson:"role"`
}

// Claims is the JWT payload issued on successful login, and the shape
// VerifyToken decodes back out.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Service registers operators, authenticates them, and mints and verifies
// the JWTs the admin HTTP surface's auth middleware checks.
type Service struct {
	st     store.Store
	secret []byte
}

func NewService(st store.Store, secret string) *Service {
	return &Service{st: st, secret: []byte(secret)}
}

// Register creates a new operator with role. Fails with ErrOperatorExists
// if the username is already taken.
func (s *Service) Register(ctx context.Context, username, password, role string) error {
	var existing Operator
	found, err := s.st.FindOne(ctx, operatorsCollection, store.Eq{Field: "_id", Value: username}, &existing)
	if err != nil {
		return err
	}
	if found {
		return ErrOperatorExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	op := Operator{Username: username, PasswordHash: string(hash), Role: role}
	if err := s.st.Insert(ctx, operatorsCollection, op); err != nil {
		return err
	}
	log.Printf("operatorauth: registered operator %q with role %q", username, role)
	return nil
}

// Login verifies username/password and returns a signed JWT valid for
// tokenLifetime.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	var op Operator
	found, err := s.st.FindOne(ctx, operatorsCollection, store.Eq{Field: "_id", Value: username}, &op)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	claims := &Claims{
		Username: op.Username,
		Role:     op.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenLifetime)),
			Issuer:    "bankcore-operatorauth",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	log.Printf("operatorauth: issued token for operator %q", username)
	return signed, nil
}

// VerifyToken parses and validates tokenString, returning the claims it
// carries. Used directly by tests and indirectly by the HTTP auth
// middleware, which re-derives the same check from the raw secret.
func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
