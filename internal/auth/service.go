package auth

import (
	"fmt"

	"fellowship-chat/internal/config"
	"fellowship-chat/pkg/apperr"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin      = "Admin"
	RoleSuperAdmin = "Super-Admin"
)

// Identity is the authenticated user reference resolved from a bearer
// credential. Users and roles are managed by the identity service; this
// package only verifies and decodes its tokens.
type Identity struct {
	ID   string
	Name string
	Role string
}

func (i *Identity) IsAdmin() bool {
	return i.Role == RoleAdmin || i.Role == RoleSuperAdmin
}

type Service struct {
	cfg *config.Config
}

func NewService(cfg *config.Config) *Service {
	return &Service{cfg: cfg}
}

// Authenticate resolves a bearer token to an identity. Any failure is an
// authentication error; callers must not create state for rejected tokens.
func (s *Service) Authenticate(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, apperr.Authentication("missing credentials")
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.cfg.JWT.Secret, nil
	})
	if err != nil {
		return nil, apperr.Authentication("invalid credentials")
	}

	claims, ok := token.Claims.(*jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, apperr.Authentication("invalid credentials")
	}

	id, _ := (*claims)["id"].(string)
	if id == "" {
		return nil, apperr.Authentication("invalid credentials")
	}

	name, _ := (*claims)["fullName"].(string)
	if name == "" {
		name, _ = (*claims)["email"].(string)
	}
	if name == "" {
		name = "Anonymous"
	}

	role, _ := (*claims)["role"].(string)

	return &Identity{ID: id, Name: name, Role: role}, nil
}
