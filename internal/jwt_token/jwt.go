// Package jwttoken issues and validates the HS256 access tokens that
// authenticate field agents against the permit API.
package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "permis/pkg/domain"
	dErrors "permis/pkg/domain-errors"
)

// Claims represents the JWT claims for agent access tokens
type Claims struct {
	AgentID string `json:"agent_id"`
	jwt.RegisteredClaims
}

// Agent parses the agent identity carried by the token.
func (c *Claims) Agent() (id.AgentID, error) {
	agentID, err := id.ParseAgentID(c.AgentID)
	if err != nil {
		return id.AgentID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return agentID, nil
}

// JWTService handles JWT creation and validation
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

func (s *JWTService) GenerateAccessToken(agentID id.AgentID, expiresIn time.Duration) (string, error) {
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		AgentID: agentID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   agentID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signedToken, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	return claims, nil
}

// ValidateAccessToken validates the token and resolves the agent it
// authenticates. This is the surface the HTTP auth middleware consumes.
func (s *JWTService) ValidateAccessToken(tokenString string) (id.AgentID, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return id.AgentID{}, err
	}
	return claims.Agent()
}
