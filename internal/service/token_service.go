package service

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/ims-admission-api/internal/models"
	appErrors "github.com/noah-isme/ims-admission-api/pkg/errors"
)

// TokenConfig defines what this API checks on inbound access tokens.
type TokenConfig struct {
	Secret string
	Issuer string
}

// TokenService validates access tokens issued by the identity service.
// This API never issues tokens; it only verifies them.
type TokenService struct {
	config TokenConfig
	logger *zap.Logger
}

// NewTokenService constructs a TokenService instance.
func NewTokenService(config TokenConfig, logger *zap.Logger) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{config: config, logger: logger}
}

// ValidateToken parses and validates an access token returning the claims.
func (s *TokenService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	var options []jwt.ParserOption
	if s.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, options...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	// SYSTEM is reserved for in-process jobs and never arrives over HTTP.
	if !models.IsValidRole(claims.Role) || claims.Role == models.RoleSystem {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unrecognized role in token")
	}

	return claims, nil
}
