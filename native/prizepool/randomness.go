package prizepool

import (
	"errors"
	"math/big"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrUnknownRequest is returned for a request id the source never issued.
	ErrUnknownRequest = errors.New("prizepool randomness: unknown request")
	// ErrRequestPending is returned when reading a number before completion.
	ErrRequestPending = errors.New("prizepool randomness: request still pending")
)

// RandomnessSource abstracts the external randomness venue. The engine never
// waits on it: callers poll IsRequestComplete and re-invoke CompleteAward. A
// permanently unresponsive source leaves the pool stuck in its current epoch,
// an accepted operational risk.
type RandomnessSource interface {
	// RequestRandomNumber starts a request seeded by the given bytes and
	// returns an opaque request identifier.
	RequestRandomNumber(seed []byte) (string, error)
	// IsRequestComplete reports whether the request has produced a value.
	IsRequestComplete(requestID string) (bool, error)
	// RandomNumber returns the produced value for a completed request.
	RandomNumber(requestID string) (*big.Int, error)
}

type mockRequest struct {
	seed     []byte
	complete bool
	value    *big.Int
}

// MockRandomness is an in-memory randomness source. Requests stay pending
// until Fulfill is called, letting tests exercise the polling predicates.
type MockRandomness struct {
	mu       sync.Mutex
	requests map[string]*mockRequest
}

func NewMockRandomness() *MockRandomness {
	return &MockRandomness{requests: make(map[string]*mockRequest)}
}

func (m *MockRandomness) RequestRandomNumber(seed []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.requests[id] = &mockRequest{seed: append([]byte(nil), seed...)}
	return id, nil
}

func (m *MockRandomness) IsRequestComplete(requestID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok {
		return false, ErrUnknownRequest
	}
	return req.complete, nil
}

func (m *MockRandomness) RandomNumber(requestID string) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok {
		return nil, ErrUnknownRequest
	}
	if !req.complete {
		return nil, ErrRequestPending
	}
	return new(big.Int).Set(req.value), nil
}

// Fulfill marks a request complete with the given value.
func (m *MockRandomness) Fulfill(requestID string, value *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok {
		return ErrUnknownRequest
	}
	req.complete = true
	req.value = new(big.Int).Set(value)
	return nil
}
