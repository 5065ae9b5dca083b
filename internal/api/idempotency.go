package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrIdempotencyConflict is returned when a key is reused with another payload.
var ErrIdempotencyConflict = errors.New("idempotency key conflict: same key with different payload")

// ErrIdempotencyInFlight is returned while the first request with a key is
// still being executed.
var ErrIdempotencyInFlight = errors.New("idempotency key in use by a request in progress")

// IdempotencyKey represents the composite key for idempotency checking
type IdempotencyKey struct {
	UID   int64
	Route string
	Key   string
}

// String returns a string representation of the idempotency key
func (k IdempotencyKey) String() string {
	return fmt.Sprintf("%d:%s:%s", k.UID, k.Route, k.Key)
}

// IdempotencyRecord stores the cached response of a request
type IdempotencyRecord struct {
	PayloadHash string    // Hash of the original payload
	Status      int       // Cached HTTP status
	Body        any       // Cached response body
	ExpiresAt   time.Time // Expiration time
	pending     bool      // reserved by Begin, no response yet
}

// IdempotencyStore manages idempotency records
type IdempotencyStore struct {
	mu      sync.RWMutex
	records map[string]*IdempotencyRecord
	ttl     time.Duration
	now     func() time.Time
}

// NewIdempotencyStore creates a new idempotency store
func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		records: make(map[string]*IdempotencyRecord),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Begin checks the key and reserves it for the caller in one step.
// Returns:
// - (nil, nil) if not seen before: the caller must execute, then Store or Release
// - (record, nil) if duplicate with same payload (return cached response)
// - (nil, ErrIdempotencyConflict) if the payload differs
// - (nil, ErrIdempotencyInFlight) if another request holds the key
func (s *IdempotencyStore) Begin(key IdempotencyKey, payloadHash string) (*IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	record, exists := s.records[key.String()]
	if exists && !now.After(record.ExpiresAt) {
		if record.PayloadHash != payloadHash {
			return nil, ErrIdempotencyConflict
		}
		if record.pending {
			return nil, ErrIdempotencyInFlight
		}
		return record, nil
	}

	s.records[key.String()] = &IdempotencyRecord{
		PayloadHash: payloadHash,
		ExpiresAt:   now.Add(s.ttl),
		pending:     true,
	}
	return nil, nil
}

// Store stores the response for future idempotency checks
func (s *IdempotencyStore) Store(key IdempotencyKey, payloadHash string, status int, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key.String()] = &IdempotencyRecord{
		PayloadHash: payloadHash,
		Status:      status,
		Body:        body,
		ExpiresAt:   s.now().Add(s.ttl),
	}
}

// Release drops a reservation made by Begin that will not be stored.
func (s *IdempotencyStore) Release(key IdempotencyKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.records[key.String()]; ok && record.pending {
		delete(s.records, key.String())
	}
}

// Cleanup removes expired records
func (s *IdempotencyStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, record := range s.records {
		if now.After(record.ExpiresAt) {
			delete(s.records, key)
		}
	}
}

// Size returns the number of records in the store (for testing)
func (s *IdempotencyStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// ComputePayloadHash returns the hex sha256 of the JSON encoding of payload
func ComputePayloadHash(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
