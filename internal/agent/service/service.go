package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	agentmetrics "permis/internal/agent/metrics"
	"permis/internal/agent/models"
	"permis/internal/agent/secrets"
	id "permis/pkg/domain"
	dErrors "permis/pkg/domain-errors"
	"permis/pkg/platform/sentinel"
	"permis/pkg/requestcontext"
)

type AgentStore interface {
	Create(ctx context.Context, a *models.Agent) error
	FindByID(ctx context.Context, agentID id.AgentID) (*models.Agent, error)
	FindByEmail(ctx context.Context, email string) (*models.Agent, error)
	Update(ctx context.Context, a *models.Agent) error
	Count(ctx context.Context) (int, error)
}

// TokenIssuer mints access tokens for authenticated agents.
type TokenIssuer interface {
	GenerateAccessToken(agentID id.AgentID, expiresIn time.Duration) (string, error)
}

// LoginThrottle guards Login against credential stuffing. Attempts are keyed
// by email and client address so one noisy source cannot lock an account for
// everyone.
type LoginThrottle interface {
	Allow(ctx context.Context, email, clientIP string) error
	RecordFailure(ctx context.Context, email, clientIP string)
	Clear(ctx context.Context, email, clientIP string)
}

// DefaultTokenTTL bounds how long a stolen token stays usable. Agents work
// in shifts; a shift-length token avoids mid-shift re-login without keeping
// credentials alive overnight.
const DefaultTokenTTL = 8 * time.Hour

// Service orchestrates agent accounts and login.
type Service struct {
	agents   AgentStore
	tokens   TokenIssuer
	tokenTTL time.Duration
	throttle LoginThrottle
	metrics  *agentmetrics.Metrics
	logger   *slog.Logger
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.tokenTTL = ttl
	}
}

// WithLoginThrottle enables failed-login lockout on Login.
func WithLoginThrottle(throttle LoginThrottle) Option {
	return func(s *Service) {
		s.throttle = throttle
	}
}

func WithMetrics(m *agentmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service.
func New(agents AgentStore, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{agents: agents, tokens: tokens, tokenTTL: DefaultTokenTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoginResult carries a freshly minted access token in OAuth response shape.
type LoginResult struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresIn   int64         `json:"expires_in"`
	Agent       *models.Agent `json:"agent"`
}

// Login exchanges email and password for an access token.
//
// Every credential failure surfaces as the same unauthorized error so a
// caller cannot probe which emails have accounts. Disabled accounts are the
// one exception: the agent already proved who they are, telling them the
// account is disabled is telling them the truth. With a throttle configured,
// repeated failures lock the email and address pair out before credentials
// are checked at all.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	normalized, err := models.NormalizeEmail(email)
	if err != nil {
		return nil, errInvalidCredentials()
	}
	if password == "" {
		return nil, errInvalidCredentials()
	}

	clientIP := requestcontext.ClientIP(ctx)
	if s.throttle != nil {
		if err := s.throttle.Allow(ctx, normalized, clientIP); err != nil {
			s.metrics.IncrementLogin(agentmetrics.LoginLocked)
			s.logAudit(ctx, "agent.login_locked", "email", normalized, "client_ip", clientIP)
			return nil, err
		}
	}

	agent, err := s.agents.FindByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.recordLoginFailure(ctx, normalized, clientIP)
			return nil, errInvalidCredentials()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load agent")
	}

	if err := secrets.Verify(password, agent.PasswordHash); err != nil {
		s.recordLoginFailure(ctx, normalized, clientIP)
		s.logAudit(ctx, "agent.login_failed", "agent_id", agent.ID.String())
		return nil, errInvalidCredentials()
	}
	if !agent.IsActive() {
		return nil, dErrors.New(dErrors.CodeForbidden, "agent account is disabled")
	}

	token, err := s.tokens.GenerateAccessToken(agent.ID, s.tokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue access token")
	}

	if s.throttle != nil {
		s.throttle.Clear(ctx, normalized, clientIP)
	}
	s.metrics.IncrementLogin(agentmetrics.LoginSuccess)
	s.logAudit(ctx, "agent.login", "agent_id", agent.ID.String())
	return &LoginResult{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.tokenTTL.Seconds()),
		Agent:       agent,
	}, nil
}

// recordLoginFailure feeds the throttle without deciding anything itself.
// Unknown emails count too, otherwise enumeration sprays run unthrottled.
func (s *Service) recordLoginFailure(ctx context.Context, email, clientIP string) {
	if s.throttle != nil {
		s.throttle.RecordFailure(ctx, email, clientIP)
	}
	s.metrics.IncrementLogin(agentmetrics.LoginFailure)
}

func errInvalidCredentials() error {
	return dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
}

// CreateAgent registers an agent account.
// Returns the created agent and the generated initial password (only
// available at creation time).
func (s *Service) CreateAgent(ctx context.Context, email, displayName string) (*models.Agent, string, error) {
	password, err := secrets.Generate()
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate initial password")
	}
	hash, err := secrets.Hash(password)
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash initial password")
	}

	agent, err := models.NewAgent(id.NewAgentID(), email, hash, displayName, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, "", dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, "", err
	}

	if err := s.agents.Create(ctx, agent); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, "", dErrors.New(dErrors.CodeConflict, "email is already registered")
		}
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to create agent")
	}

	s.metrics.IncrementCreated()
	s.logAudit(ctx, "agent.created",
		"agent_id", agent.ID.String(),
		"email", agent.Email)
	return agent, password, nil
}

func (s *Service) GetAgent(ctx context.Context, agentID id.AgentID) (*models.Agent, error) {
	if agentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "agent id is required")
	}
	agent, err := s.agents.FindByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "agent not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load agent")
	}
	return agent, nil
}

// DisableAgent blocks an agent from logging in. Tokens already issued stay
// valid until they expire; the short token TTL bounds the exposure.
func (s *Service) DisableAgent(ctx context.Context, agentID id.AgentID) (*models.Agent, error) {
	return s.transition(ctx, agentID, "agent.disabled", func(a *models.Agent, now time.Time) error {
		return a.Disable(now)
	})
}

// EnableAgent reactivates a disabled agent.
func (s *Service) EnableAgent(ctx context.Context, agentID id.AgentID) (*models.Agent, error) {
	return s.transition(ctx, agentID, "agent.enabled", func(a *models.Agent, now time.Time) error {
		return a.Enable(now)
	})
}

func (s *Service) transition(ctx context.Context, agentID id.AgentID, event string, apply func(*models.Agent, time.Time) error) (*models.Agent, error) {
	agent, err := s.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if err := apply(agent, requestcontext.Now(ctx)); err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeConflict, err.Error())
		}
		return nil, err
	}
	if err := s.agents.Update(ctx, agent); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update agent")
	}
	s.logAudit(ctx, event, "agent_id", agent.ID.String())
	return agent, nil
}

// ChangePassword rotates an agent's own password after re-proving the
// current one.
func (s *Service) ChangePassword(ctx context.Context, agentID id.AgentID, current, next string) error {
	agent, err := s.GetAgent(ctx, agentID)
	if err != nil {
		return err
	}
	if err := secrets.Verify(current, agent.PasswordHash); err != nil {
		return dErrors.New(dErrors.CodeUnauthorized, "current password is incorrect")
	}
	hash, err := secrets.Hash(next)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
			return dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	agent.PasswordHash = hash
	agent.UpdatedAt = requestcontext.Now(ctx)
	if err := s.agents.Update(ctx, agent); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update agent")
	}
	s.logAudit(ctx, "agent.password_changed", "agent_id", agent.ID.String())
	return nil
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if s.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}
