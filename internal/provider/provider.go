// Package provider defines the SMS/voice provider contract. The engine
// consumes only this interface; provider failures are transient and
// never become ledger errors.
package provider

import (
	"context"
	"fmt"
	"sync"

	"numledger-go/internal/models"

	"github.com/google/uuid"
)

// Client is the external number-provider collaborator.
type Client interface {
	// AllocateNumber reserves a phone number able to receive traffic
	// for the service over the given capability.
	AllocateNumber(ctx context.Context, service string, capability models.Capability) (string, error)

	// PollMessages returns the codes received so far for a
	// verification, oldest first.
	PollMessages(ctx context.Context, verificationId string) ([]string, error)
}

// Sandbox is an in-process provider used by tests and local demos.
// Codes are delivered by calling DeliverCode.
type Sandbox struct {
	mu    sync.Mutex
	codes map[string][]string
	down  bool
}

var _ Client = (*Sandbox)(nil)

func NewSandbox() *Sandbox {
	return &Sandbox{codes: make(map[string][]string)}
}

// SetDown toggles simulated provider outage.
func (s *Sandbox) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// DeliverCode queues a code for a verification.
func (s *Sandbox) DeliverCode(verificationId, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[verificationId] = append(s.codes[verificationId], code)
}

func (s *Sandbox) AllocateNumber(ctx context.Context, service string, capability models.Capability) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return "", fmt.Errorf("sandbox provider is down")
	}
	// Synthetic E.164-looking number, unique per allocation.
	return "+1555" + uuid.New().String()[:7], nil
}

func (s *Sandbox) PollMessages(ctx context.Context, verificationId string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, fmt.Errorf("sandbox provider is down")
	}
	return append([]string(nil), s.codes[verificationId]...), nil
}
