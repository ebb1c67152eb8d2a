package models

import "github.com/golang-jwt/jwt/v5"

// UserInfo is the identity attached to websocket sessions and stream
// frames. It carries no credentials, only display fields.
type UserInfo struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Role     UserRole `json:"role"`
}

// JWTClaims represents the JWT payload for access tokens minted by the
// identity service. This API validates them; it never issues tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}
