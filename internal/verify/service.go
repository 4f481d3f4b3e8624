package verify

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks PermitSource,ScanRecorder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"permis/internal/permit/models"
	"permis/internal/scanlog"
	"permis/internal/signedcode"
	"permis/internal/signer"
	verifymetrics "permis/internal/verify/metrics"
	id "permis/pkg/domain"
	"permis/pkg/platform/device"
	"permis/pkg/platform/sentinel"
	"permis/pkg/requestcontext"
)

// DefaultMaxCodeAge bounds how long a signed code stays trusted. Replaying a
// leaked code is only possible inside this window; the permit's own
// expiration is checked separately.
const DefaultMaxCodeAge = 24 * time.Hour

var tracer trace.Tracer = otel.Tracer("permis/internal/verify")

// PermitSource resolves a permit by its record id. sentinel.ErrNotFound is a
// definite answer; any other error means the source was unreachable.
type PermitSource interface {
	FindByID(ctx context.Context, permitID id.PermitID) (*models.Permit, error)
}

// ScanRecorder appends one scan audit event. Implementations must not block
// verification; errors are logged and dropped.
type ScanRecorder interface {
	Record(ctx context.Context, event scanlog.Event) error
}

// Service runs the verification state machine: parse the code, check the
// signature, check freshness, resolve the record, check business expiration,
// classify, audit. Stateless across calls apart from the audit append.
type Service struct {
	verifier signer.Verifier
	permits  PermitSource
	snapshot PermitSource
	scans    ScanRecorder
	maxAge   time.Duration
	logger   *slog.Logger
	metrics  *verifymetrics.Metrics
}

type Option func(*Service)

// WithSnapshotFallback adds a local snapshot consulted when the
// authoritative source is unreachable. Results answered this way report
// offline mode.
func WithSnapshotFallback(snapshot PermitSource) Option {
	return func(s *Service) {
		s.snapshot = snapshot
	}
}

// WithScanRecorder wires the audit sink. Without one, verification still
// classifies; it just leaves no scan trail.
func WithScanRecorder(scans ScanRecorder) Option {
	return func(s *Service) {
		s.scans = scans
	}
}

// WithMaxCodeAge overrides the 24h trust window.
func WithMaxCodeAge(maxAge time.Duration) Option {
	return func(s *Service) {
		if maxAge > 0 {
			s.maxAge = maxAge
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *verifymetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a verification service backed by the authoritative permit
// source.
func New(verifier signer.Verifier, permits PermitSource, opts ...Option) *Service {
	s := &Service{
		verifier: verifier,
		permits:  permits,
		maxAge:   DefaultMaxCodeAge,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewOffline constructs a verifier for disconnected devices: lookups go only
// to the local snapshot and every result reports offline mode.
func NewOffline(verifier signer.Verifier, snapshot PermitSource, opts ...Option) *Service {
	opts = append([]Option{WithSnapshotFallback(snapshot)}, opts...)
	return New(verifier, nil, opts...)
}

// Verify classifies one scanned string. It always returns a definite Result;
// malformed input, crypto failures, and unreachable stores all collapse into
// statuses, never into errors.
func (s *Service) Verify(ctx context.Context, rawCode string) Result {
	ctx, span := tracer.Start(ctx, "verify.Verify")
	defer span.End()

	start := time.Now()
	now := requestcontext.Now(ctx)

	result, permitRef := s.classify(ctx, rawCode, now)
	result.CheckedAt = now

	span.SetAttributes(
		attribute.String("verify.status", string(result.Status)),
		attribute.String("verify.mode", string(result.Mode)),
	)
	s.metrics.IncrementOutcome(string(result.Status), string(result.Mode))
	s.metrics.ObserveVerify(time.Since(start))

	s.audit(ctx, result, permitRef, now)
	return result
}

// classify walks the state machine. The returned permit reference is what the
// audit entry may cite: nil until the payload's signature has been checked,
// because an unauthenticated payload must not name a record.
func (s *Service) classify(ctx context.Context, rawCode string, now time.Time) (Result, *id.PermitID) {
	payloadBytes, signature, err := signedcode.ParseCode(rawCode)
	if err != nil {
		return s.rejected(StatusInvalidSignature, "code shape is not recognized"), nil
	}

	// Signature before payload parse: only authenticated bytes are decoded.
	if !s.verifier.Verify(payloadBytes, signature) {
		return s.rejected(StatusInvalidSignature, "signature does not match payload"), nil
	}

	payload, err := signedcode.Decode(payloadBytes)
	if err != nil {
		return s.rejected(StatusInvalidSignature, "payload is malformed or unsupported"), nil
	}

	var permitRef *id.PermitID
	if permitID, err := id.ParsePermitID(payload.RecordID); err == nil {
		permitRef = &permitID
	}

	// Freshness is inclusive on the fresh side: a code exactly maxAge old
	// is still trusted. A future-dated code is clock skew, not a replay.
	age := now.Sub(time.UnixMilli(payload.IssuedAtMillis))
	if age > s.maxAge {
		return s.rejected(StatusStale, "code is older than the trust window"), permitRef
	}

	if permitRef == nil {
		return s.rejected(StatusRecordNotFound, "record id is not recognized"), nil
	}

	permit, mode, err := s.resolve(ctx, *permitRef)
	if err != nil {
		return Result{
			Status: StatusRecordNotFound,
			Reason: "permit record not found",
			Mode:   mode,
		}, permitRef
	}

	if permit.IsExpired(now) {
		return Result{
			Status: StatusExpired,
			Reason: "permit validity window has closed",
			Mode:   mode,
			Permit: summarize(permit),
		}, permitRef
	}

	return Result{
		Status: StatusValid,
		Mode:   mode,
		Permit: summarize(permit),
	}, permitRef
}

// resolve asks the authoritative source first. A definite not-found answer is
// final; only an unreachable source falls through to the snapshot.
func (s *Service) resolve(ctx context.Context, permitID id.PermitID) (*models.Permit, id.VerificationMode, error) {
	if s.permits != nil {
		permit, err := s.permits.FindByID(ctx, permitID)
		switch {
		case err == nil:
			return permit, id.ModeOnline, nil
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, id.ModeOnline, err
		}
		if s.logger != nil {
			s.logger.WarnContext(ctx, "authoritative lookup unreachable, consulting snapshot",
				"permit_id", permitID.String(),
				"error", err,
			)
		}
	}

	if s.snapshot == nil {
		return nil, id.ModeOffline, sentinel.ErrNotFound
	}
	permit, err := s.snapshot.FindByID(ctx, permitID)
	if err != nil {
		// Snapshot misses and snapshot infrastructure failures read the
		// same to the scanner: the record cannot be resolved right now.
		return nil, id.ModeOffline, sentinel.ErrNotFound
	}
	if s.permits != nil {
		s.metrics.IncrementSnapshotFallback()
	}
	return permit, id.ModeOffline, nil
}

// rejected builds a terminal result for checks that run before any lookup.
// Mode reflects the path this verifier would have used.
func (s *Service) rejected(status Status, reason string) Result {
	return Result{Status: status, Reason: reason, Mode: s.defaultMode()}
}

func (s *Service) defaultMode() id.VerificationMode {
	if s.permits != nil {
		return id.ModeOnline
	}
	return id.ModeOffline
}

// audit appends the scan trail entry. Failures are logged and swallowed so
// classification is never blocked by logging.
func (s *Service) audit(ctx context.Context, result Result, permitRef *id.PermitID, now time.Time) {
	if s.scans == nil {
		return
	}

	event := scanlog.Event{
		PermitID:  permitRef,
		ScannedAt: now,
		Result:    scanResult(result.Status),
		Mode:      result.Mode,
		Reason:    result.Reason,
		RequestID: requestcontext.RequestID(ctx),
		Device:    device.DisplayName(requestcontext.UserAgent(ctx)),
	}
	if agentID := requestcontext.AgentID(ctx); !agentID.IsNil() {
		event.AgentID = &agentID
	}

	if err := s.scans.Record(ctx, event); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "scan audit append failed",
			"result", string(event.Result),
			"error", err,
		)
	}
}
