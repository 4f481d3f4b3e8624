// Package memory holds queued operations in process memory, for tests and
// ephemeral tooling. Ordering matches enqueue order.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"permis/internal/offline"
	"permis/pkg/platform/sentinel"
)

type Store struct {
	mu  sync.RWMutex
	ops []offline.Operation
}

func New() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, op offline.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.ops {
		if existing.IdempotencyKey == op.IdempotencyKey {
			return fmt.Errorf("operation %s already queued", op.IdempotencyKey)
		}
	}
	s.ops = append(s.ops, cloneOp(op))
	return nil
}

func (s *Store) List(_ context.Context) ([]offline.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]offline.Operation, len(s.ops))
	for i, op := range s.ops {
		out[i] = cloneOp(op)
	}
	return out, nil
}

func (s *Store) Update(_ context.Context, op offline.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.ops {
		if existing.IdempotencyKey == op.IdempotencyKey {
			s.ops[i] = cloneOp(op)
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (s *Store) Delete(_ context.Context, key uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.ops {
		if existing.IdempotencyKey == key {
			s.ops = append(s.ops[:i], s.ops[i+1:]...)
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (s *Store) CountActive(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, op := range s.ops {
		if op.Status == offline.StatusPending || op.Status == offline.StatusInFlight {
			count++
		}
	}
	return count, nil
}

func cloneOp(op offline.Operation) offline.Operation {
	op.Payload = bytes.Clone(op.Payload)
	return op
}
