package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the roles recognised by the admin API.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleStaff      UserRole = "STAFF"
)

// Valid reports whether the role is known.
func (r UserRole) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleStaff:
		return true
	}
	return false
}

// JWTClaims is the access token payload. AcademyID scopes every admin operation.
type JWTClaims struct {
	UserID    string   `json:"user_id"`
	AcademyID string   `json:"academy_id"`
	Role      UserRole `json:"role"`
	jwt.RegisteredClaims
}

// TokenRequest exchanges the bootstrap key for an academy-scoped admin token.
type TokenRequest struct {
	AcademyID    string   `json:"academy_id" validate:"required,max=64"`
	UserID       string   `json:"user_id" validate:"required,max=64"`
	Role         UserRole `json:"role" validate:"omitempty,oneof=SUPERADMIN ADMIN STAFF"`
	BootstrapKey string   `json:"bootstrap_key" validate:"required"`
}

// TokenResponse returns the issued access token.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
}
