package signedcode

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	// Scheme identifies permit codes among arbitrary scanned strings.
	Scheme = "permis"
	// ActionVerify is the only action the scan surface understands.
	ActionVerify = "verify"

	payloadParam   = "p"
	signatureParam = "s"
)

// ErrMalformedCode reports a scanned string that does not match the exact
// code shape. Shape is checked before any cryptography runs.
var ErrMalformedCode = errors.New("malformed code")

var codeEncoding = base64.RawURLEncoding

// FormatCode renders canonical payload bytes and a detached signature as the
// scannable string: permis://verify?p=<payload>&s=<signature>, both values
// base64url without padding. Parameter order is fixed so two identical codes
// compare byte-equal.
func FormatCode(payload, signature []byte) string {
	return fmt.Sprintf("%s://%s?%s=%s&%s=%s",
		Scheme, ActionVerify,
		payloadParam, codeEncoding.EncodeToString(payload),
		signatureParam, codeEncoding.EncodeToString(signature),
	)
}

// ParseCode splits a scanned string back into payload and signature bytes.
// Any deviation from the exact shape, wrong scheme or action, extra path or
// parameters, missing values, invalid base64url, fails with ErrMalformedCode.
func ParseCode(raw string) (payload, signature []byte, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedCode, err)
	}
	if u.Scheme != Scheme {
		return nil, nil, fmt.Errorf("%w: unexpected scheme %q", ErrMalformedCode, u.Scheme)
	}
	if u.Host != ActionVerify {
		return nil, nil, fmt.Errorf("%w: unexpected action %q", ErrMalformedCode, u.Host)
	}
	if u.Path != "" || u.User != nil || u.Fragment != "" {
		return nil, nil, fmt.Errorf("%w: unexpected component", ErrMalformedCode)
	}

	params, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedCode, err)
	}
	if len(params) != 2 || len(params[payloadParam]) != 1 || len(params[signatureParam]) != 1 {
		return nil, nil, fmt.Errorf("%w: expected exactly payload and signature parameters", ErrMalformedCode)
	}

	payload, err = codeEncoding.DecodeString(params.Get(payloadParam))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: payload: %v", ErrMalformedCode, err)
	}
	signature, err = codeEncoding.DecodeString(params.Get(signatureParam))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: signature: %v", ErrMalformedCode, err)
	}
	if len(payload) == 0 || len(signature) == 0 {
		return nil, nil, fmt.Errorf("%w: empty payload or signature", ErrMalformedCode)
	}
	return payload, signature, nil
}
