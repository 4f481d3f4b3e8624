package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	dErrors "permis/pkg/domain-errors"
	"permis/pkg/platform/sentinel"
)

// maxErrorBody bounds how much of an error response is read for a message.
const maxErrorBody = 4096

// TokenSource yields a current bearer token for submissions. Implementations
// may log in or refresh behind the call; an error is treated as transient,
// since connectivity that is down for the token is down for the submission.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// HTTPSubmitter replays queued operations against the issuing server's API.
// Response classification follows the Submitter contract: 201 committed,
// 200 already applied under this idempotency key, request-shaped rejections
// permanent, everything else transient.
type HTTPSubmitter struct {
	baseURL string
	client  *http.Client
	token   string
	tokens  TokenSource
}

type SubmitterOption func(*HTTPSubmitter)

func WithHTTPClient(client *http.Client) SubmitterOption {
	return func(s *HTTPSubmitter) {
		if client != nil {
			s.client = client
		}
	}
}

// WithBearerToken attaches a fixed access token to every submission.
func WithBearerToken(token string) SubmitterOption {
	return func(s *HTTPSubmitter) {
		s.token = token
	}
}

// WithTokenSource attaches a per-submission token source. Long-running
// daemons use this instead of WithBearerToken so submissions keep working
// past a single token's lifetime.
func WithTokenSource(tokens TokenSource) SubmitterOption {
	return func(s *HTTPSubmitter) {
		s.tokens = tokens
	}
}

func NewHTTPSubmitter(baseURL string, opts ...SubmitterOption) *HTTPSubmitter {
	s := &HTTPSubmitter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPSubmitter) Submit(ctx context.Context, op Operation) error {
	endpoint, err := s.endpointFor(op.Kind)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(op.Payload))
	if err != nil {
		return fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", op.IdempotencyKey.String())

	token := s.token
	if s.tokens != nil {
		token, err = s.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("acquire access token: %w", err)
		}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("submit operation: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated:
		return nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// 200 is the server's replay acknowledgement: this idempotency
		// key was applied by an earlier submission.
		return sentinel.ErrDuplicateKey
	default:
		return decodeAPIError(resp)
	}
}

// endpointFor routes an operation kind to its server endpoint. An unknown
// kind can never succeed, so it rejects permanently.
func (s *HTTPSubmitter) endpointFor(kind string) (string, error) {
	switch kind {
	case KindCreatePermit:
		return s.baseURL + "/api/v1/permits", nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput,
			fmt.Sprintf("no endpoint for operation kind %q", kind))
	}
}

// decodeAPIError rebuilds a domain error from the server's error envelope so
// the queue classifies retries on the server's own code. Unreadable bodies
// fall back to a status-derived code.
func decodeAPIError(resp *http.Response) error {
	code := codeForStatus(resp.StatusCode)
	message := fmt.Sprintf("server replied %s", resp.Status)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err == nil && len(body) > 0 {
		var envelope struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Error != "" {
			code = dErrors.Code(envelope.Error)
			if envelope.ErrorDescription != "" {
				message = envelope.ErrorDescription
			}
		}
	}
	return dErrors.New(code, message)
}

func codeForStatus(status int) dErrors.Code {
	switch {
	case status == http.StatusBadRequest:
		return dErrors.CodeBadRequest
	case status == http.StatusUnprocessableEntity:
		return dErrors.CodeValidation
	case status == http.StatusConflict:
		return dErrors.CodeConflict
	case status == http.StatusUnauthorized:
		return dErrors.CodeUnauthorized
	case status == http.StatusForbidden:
		return dErrors.CodeForbidden
	case status == http.StatusNotFound:
		return dErrors.CodeNotFound
	case status >= 500:
		return dErrors.CodeUnavailable
	default:
		return dErrors.CodeInternal
	}
}
