package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrAlreadyUsed: write lost to an existing row (unique constraint)
// - ErrDuplicateKey: idempotency key already committed; the prior result stands
// - ErrExpired: record's business expiration date has passed
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrQueueFull: local durable queue is at capacity
// - ErrUnavailable: service or resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadyUsed  = errors.New("already used")
	ErrDuplicateKey = errors.New("duplicate idempotency key")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrQueueFull    = errors.New("queue full")
	ErrUnavailable  = errors.New("unavailable")
)
