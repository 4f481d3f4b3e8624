package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"permis/internal/agent/lockout"
	"permis/internal/agent/models"
	agentstore "permis/internal/agent/store/agent"
	jwttoken "permis/internal/jwt_token"
	id "permis/pkg/domain"
	dErrors "permis/pkg/domain-errors"
	"permis/pkg/requestcontext"
)

type AgentServiceSuite struct {
	suite.Suite
	service    *Service
	jwtService *jwttoken.JWTService
	ctx        context.Context
}

func (s *AgentServiceSuite) SetupTest() {
	s.jwtService = jwttoken.NewJWTService("test-signing-key", "permis-test", "permis-api")
	s.service = New(agentstore.NewMemory(), s.jwtService)
	s.ctx = context.Background()
}

func TestAgentServiceSuite(t *testing.T) {
	suite.Run(t, new(AgentServiceSuite))
}

func (s *AgentServiceSuite) mustCreate(email string) (*models.Agent, string) {
	agent, password, err := s.service.CreateAgent(s.ctx, email, "")
	s.Require().NoError(err)
	s.Require().NotEmpty(password)
	return agent, password
}

func (s *AgentServiceSuite) TestCreateAgent() {
	s.Run("creates agent with generated password", func() {
		agent, password := s.mustCreate("marie.dubois@peche.gouv.fr")
		s.Equal("marie.dubois@peche.gouv.fr", agent.Email)
		s.Equal("Marie Dubois", agent.DisplayName, "display name derives from the email when omitted")
		s.Equal(models.StatusActive, agent.Status)
		s.NotContains(agent.PasswordHash, password, "stored hash must not embed the cleartext")
	})

	s.Run("duplicate email conflicts", func() {
		s.mustCreate("jean@peche.gouv.fr")
		_, _, err := s.service.CreateAgent(s.ctx, "jean@peche.gouv.fr", "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("malformed email is a validation error", func() {
		_, _, err := s.service.CreateAgent(s.ctx, "not-an-email", "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *AgentServiceSuite) TestLogin() {
	agent, password := s.mustCreate("marie@peche.gouv.fr")

	s.Run("valid credentials issue a token", func() {
		result, err := s.service.Login(s.ctx, "marie@peche.gouv.fr", password)
		s.Require().NoError(err)
		s.Equal("Bearer", result.TokenType)
		s.Equal(int64(DefaultTokenTTL.Seconds()), result.ExpiresIn)
		s.Equal(agent.ID, result.Agent.ID)

		claims, err := s.jwtService.ValidateToken(result.AccessToken)
		s.Require().NoError(err)
		s.Equal(agent.ID.String(), claims.AgentID)
	})

	s.Run("email matching ignores case and padding", func() {
		result, err := s.service.Login(s.ctx, "  MARIE@Peche.Gouv.FR ", password)
		s.Require().NoError(err)
		s.Equal(agent.ID, result.Agent.ID)
	})
}

func (s *AgentServiceSuite) TestLoginRejections() {
	_, password := s.mustCreate("marie@peche.gouv.fr")

	wrongCredentials := map[string]struct {
		email    string
		password string
	}{
		"wrong password":  {email: "marie@peche.gouv.fr", password: "not-the-password"},
		"unknown email":   {email: "ghost@peche.gouv.fr", password: password},
		"malformed email": {email: "marie", password: password},
		"empty password":  {email: "marie@peche.gouv.fr", password: ""},
	}
	for name, tc := range wrongCredentials {
		s.Run(name, func() {
			_, err := s.service.Login(s.ctx, tc.email, tc.password)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
			s.Contains(err.Error(), "invalid email or password",
				"every credential failure must read identically")
		})
	}
}

func (s *AgentServiceSuite) TestLoginLockout() {
	service := New(agentstore.NewMemory(), s.jwtService, WithLoginThrottle(lockout.New(
		lockout.WithMaxFailures(3),
		lockout.WithWindow(time.Minute),
		lockout.WithLockDuration(time.Minute),
	)))
	_, password, err := service.CreateAgent(s.ctx, "marie@peche.gouv.fr", "")
	s.Require().NoError(err)

	ctx := requestcontext.WithClientMetadata(s.ctx, "10.0.0.7", "test-client")
	for i := 0; i < 3; i++ {
		_, err := service.Login(ctx, "marie@peche.gouv.fr", "not-the-password")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	}

	s.Run("locked pair rejects even the right password", func() {
		_, err := service.Login(ctx, "marie@peche.gouv.fr", password)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	})

	s.Run("another address still gets in", func() {
		elsewhere := requestcontext.WithClientMetadata(s.ctx, "10.0.0.8", "test-client")
		result, err := service.Login(elsewhere, "marie@peche.gouv.fr", password)
		s.Require().NoError(err)
		s.Equal("marie@peche.gouv.fr", result.Agent.Email)
	})
}

func (s *AgentServiceSuite) TestLoginLockoutCountsUnknownEmails() {
	service := New(agentstore.NewMemory(), s.jwtService, WithLoginThrottle(lockout.New(
		lockout.WithMaxFailures(3),
		lockout.WithWindow(time.Minute),
		lockout.WithLockDuration(time.Minute),
	)))

	ctx := requestcontext.WithClientMetadata(s.ctx, "10.0.0.7", "test-client")
	for i := 0; i < 3; i++ {
		_, err := service.Login(ctx, "ghost@peche.gouv.fr", "anything")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized),
			"an unknown email must read like a wrong password, not like a missing account")
	}

	_, err := service.Login(ctx, "ghost@peche.gouv.fr", "anything")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
}

func (s *AgentServiceSuite) TestLoginSuccessClearsLockoutCounter() {
	service := New(agentstore.NewMemory(), s.jwtService, WithLoginThrottle(lockout.New(
		lockout.WithMaxFailures(3),
		lockout.WithWindow(time.Minute),
		lockout.WithLockDuration(time.Minute),
	)))
	_, password, err := service.CreateAgent(s.ctx, "marie@peche.gouv.fr", "")
	s.Require().NoError(err)

	ctx := requestcontext.WithClientMetadata(s.ctx, "10.0.0.7", "test-client")
	for i := 0; i < 2; i++ {
		_, err := service.Login(ctx, "marie@peche.gouv.fr", "not-the-password")
		s.Require().Error(err)
	}

	_, err = service.Login(ctx, "marie@peche.gouv.fr", password)
	s.Require().NoError(err)

	// The earlier failures are forgotten, so two more do not lock.
	for i := 0; i < 2; i++ {
		_, err := service.Login(ctx, "marie@peche.gouv.fr", "not-the-password")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	}
}

func (s *AgentServiceSuite) TestLoginDisabledAgent() {
	agent, password := s.mustCreate("marie@peche.gouv.fr")

	_, err := s.service.DisableAgent(s.ctx, agent.ID)
	s.Require().NoError(err)

	_, err = s.service.Login(s.ctx, "marie@peche.gouv.fr", password)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *AgentServiceSuite) TestCustomTokenTTL() {
	service := New(agentstore.NewMemory(), s.jwtService, WithTokenTTL(15*time.Minute))
	_, password, err := service.CreateAgent(s.ctx, "marie@peche.gouv.fr", "")
	s.Require().NoError(err)

	result, err := service.Login(s.ctx, "marie@peche.gouv.fr", password)
	s.Require().NoError(err)
	s.Equal(int64(900), result.ExpiresIn)
}

func (s *AgentServiceSuite) TestGetAgent() {
	agent, _ := s.mustCreate("marie@peche.gouv.fr")

	s.Run("found", func() {
		found, err := s.service.GetAgent(s.ctx, agent.ID)
		s.Require().NoError(err)
		s.Equal(agent.Email, found.Email)
	})

	s.Run("unknown id", func() {
		_, err := s.service.GetAgent(s.ctx, id.NewAgentID())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("nil id", func() {
		_, err := s.service.GetAgent(s.ctx, id.AgentID{})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *AgentServiceSuite) TestDisableEnable() {
	agent, _ := s.mustCreate("marie@peche.gouv.fr")

	disabled, err := s.service.DisableAgent(s.ctx, agent.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusDisabled, disabled.Status)

	_, err = s.service.DisableAgent(s.ctx, agent.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict), "disabling twice is a state conflict")

	enabled, err := s.service.EnableAgent(s.ctx, agent.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusActive, enabled.Status)
}

func (s *AgentServiceSuite) TestChangePassword() {
	agent, password := s.mustCreate("marie@peche.gouv.fr")

	s.Run("rotates the password", func() {
		err := s.service.ChangePassword(s.ctx, agent.ID, password, "a-new-password")
		s.Require().NoError(err)

		_, err = s.service.Login(s.ctx, "marie@peche.gouv.fr", password)
		s.Require().Error(err, "the old password must stop working")

		result, err := s.service.Login(s.ctx, "marie@peche.gouv.fr", "a-new-password")
		s.Require().NoError(err)
		s.Equal(agent.ID, result.Agent.ID)
	})

	s.Run("wrong current password", func() {
		err := s.service.ChangePassword(s.ctx, agent.ID, "not-current", "another-new-one")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("empty new password", func() {
		err := s.service.ChangePassword(s.ctx, agent.ID, "a-new-password", "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}
