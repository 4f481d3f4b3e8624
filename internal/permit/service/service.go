package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	permitmetrics "permis/internal/permit/metrics"
	"permis/internal/permit/models"
	id "permis/pkg/domain"
	dErrors "permis/pkg/domain-errors"
	"permis/pkg/platform/sentinel"
	"permis/pkg/requestcontext"
)

type PermitStore interface {
	CreateWithKey(ctx context.Context, p *models.Permit, key, fingerprint string) error
	FindByID(ctx context.Context, permitID id.PermitID) (*models.Permit, error)
	FindBySerial(ctx context.Context, serial id.SerialNumber) (*models.Permit, error)
	FindByKey(ctx context.Context, key string) (*models.Permit, string, error)
	ListUnexpired(ctx context.Context, asOf time.Time) ([]models.Permit, error)
}

// Service orchestrates permit issuance and lookup.
type Service struct {
	permits PermitStore
	logger  *slog.Logger
	metrics *permitmetrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *permitmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service.
func New(permits PermitStore, opts ...Option) *Service {
	s := &Service{permits: permits}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateResult reports what a submission resolved to. Created is false when
// the submission was acknowledged against an already committed permit, either
// through its idempotency key or through matching content.
type CreateResult struct {
	Permit  *models.Permit
	Created bool
}

// CreatePermit commits a submission exactly once.
//
// Resolution order:
//   - fresh key, fresh serial: the permit is created
//   - key already committed with equal content: acknowledged, not re-created
//   - key already committed with different content: conflict (client bug)
//   - fresh key but identical content already committed under another key
//     (an offline retry that lost its queue state): acknowledged as a
//     duplicate rather than rejected, so retries are always safe
//   - fresh key, same serial, different content: conflict
func (s *Service) CreatePermit(ctx context.Context, key string, params models.CreateParams) (CreateResult, error) {
	start := time.Now()
	defer s.observeCreate(start)

	key = strings.TrimSpace(key)
	if key == "" {
		return CreateResult{}, dErrors.New(dErrors.CodeBadRequest, "idempotency key is required")
	}

	fingerprint, err := models.Fingerprint(params)
	if err != nil {
		return CreateResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to fingerprint submission")
	}

	p, err := models.NewPermit(id.NewPermitID(), params, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return CreateResult{}, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return CreateResult{}, err
	}

	err = s.permits.CreateWithKey(ctx, p, key, fingerprint)
	switch {
	case err == nil:
		s.logAudit(ctx, "permit.created",
			"permit_id", p.ID.String(),
			"serial_number", string(p.SerialNumber))
		s.incrementCreated()
		return CreateResult{Permit: p, Created: true}, nil
	case errors.Is(err, sentinel.ErrDuplicateKey):
		return s.resolveDuplicateKey(ctx, key, fingerprint)
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return s.resolveSerialCollision(ctx, params.SerialNumber, fingerprint)
	default:
		return CreateResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create permit")
	}
}

// resolveDuplicateKey handles a key that already committed: equal content is
// an acknowledgement, different content under the same key is a client error.
func (s *Service) resolveDuplicateKey(ctx context.Context, key, fingerprint string) (CreateResult, error) {
	existing, storedFingerprint, err := s.permits.FindByKey(ctx, key)
	if err != nil {
		return CreateResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve idempotency key")
	}
	if storedFingerprint != fingerprint {
		return CreateResult{}, dErrors.New(dErrors.CodeConflict, "idempotency key was already used for a different submission")
	}
	s.incrementDuplicate()
	return CreateResult{Permit: existing, Created: false}, nil
}

// resolveSerialCollision handles a serial that already exists under another
// key. Matching content means the same logical permit arrived twice, so the
// first commit stands and this submission is acknowledged.
func (s *Service) resolveSerialCollision(ctx context.Context, serial id.SerialNumber, fingerprint string) (CreateResult, error) {
	existing, err := s.permits.FindBySerial(ctx, serial)
	if err != nil {
		return CreateResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve serial collision")
	}
	existingFingerprint, err := models.ContentFingerprint(existing)
	if err != nil {
		return CreateResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to fingerprint existing permit")
	}
	if existingFingerprint != fingerprint {
		return CreateResult{}, dErrors.New(dErrors.CodeConflict, "serial number must be unique")
	}
	s.incrementDuplicate()
	return CreateResult{Permit: existing, Created: false}, nil
}

func (s *Service) GetPermit(ctx context.Context, permitID id.PermitID) (*models.Permit, error) {
	if permitID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "permit id is required")
	}
	p, err := s.permits.FindByID(ctx, permitID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "permit not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load permit")
	}
	return p, nil
}

// Snapshot lists the permits an offline verifier needs: everything still
// inside its validity window at the time of the request.
func (s *Service) Snapshot(ctx context.Context) ([]models.Permit, error) {
	permits, err := s.permits.ListUnexpired(ctx, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build permit snapshot")
	}
	return permits, nil
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

func (s *Service) incrementCreated() {
	if s.metrics != nil {
		s.metrics.IncrementCreated()
	}
}

func (s *Service) incrementDuplicate() {
	if s.metrics != nil {
		s.metrics.IncrementDuplicate()
	}
}

func (s *Service) observeCreate(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveCreate(start)
	}
}
