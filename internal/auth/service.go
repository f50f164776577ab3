package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/wayfindercollective/funnel-backend/internal/common/config"
	"github.com/wayfindercollective/funnel-backend/internal/common/logger"
	"github.com/wayfindercollective/funnel-backend/internal/common/middleware"
)

// operatorID is the subject claim for the single dashboard operator
const operatorID = "operator"

// Service authenticates the dashboard operator. There is exactly one
// operator account, configured by email and bcrypt password hash; the
// service issues JWTs for it and nothing else.
type Service struct {
	operatorEmail string
	operatorHash  string
	jwtConfig     config.JWTConfig
	logger        *logger.Logger
}

func NewService(cfg config.AuthConfig, jwtCfg config.JWTConfig, log *logger.Logger) *Service {
	return &Service{
		operatorEmail: strings.ToLower(strings.TrimSpace(cfg.OperatorEmail)),
		operatorHash:  cfg.OperatorPasswordHash,
		jwtConfig:     jwtCfg,
		logger:        log,
	}
}

// Login authenticates the operator and issues an access token. Unknown
// emails and wrong passwords produce the same error so the response does
// not leak which one was wrong.
func (s *Service) Login(_ context.Context, req *LoginRequest) (*AuthResponse, error) {
	if err := ValidateLoginRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if s.operatorEmail == "" || s.operatorHash == "" {
		s.logger.Warn("dashboard login attempted but no operator is configured")
		return nil, fmt.Errorf("invalid credentials")
	}

	if req.Email != s.operatorEmail || !VerifyPassword(s.operatorHash, req.Password) {
		return nil, fmt.Errorf("invalid credentials")
	}

	token, err := middleware.GenerateToken(operatorID, s.operatorEmail, s.jwtConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	s.logger.Infof("operator %s logged in", s.operatorEmail)

	return &AuthResponse{
		AccessToken: token,
		Email:       s.operatorEmail,
	}, nil
}

// OperatorEmail returns the configured operator email
func (s *Service) OperatorEmail() string {
	return s.operatorEmail
}
