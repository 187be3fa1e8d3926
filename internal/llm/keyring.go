package llm

import "sync"

// KeyRing holds interchangeable API credentials consumed round-robin.
type KeyRing struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

// NewKeyRing creates a key ring; empty keys are dropped.
func NewKeyRing(keys ...string) *KeyRing {
	ring := &KeyRing{}
	for _, k := range keys {
		if k != "" {
			ring.keys = append(ring.keys, k)
		}
	}
	return ring
}

// Current returns the active credential, or "" when the ring is empty.
func (r *KeyRing) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.keys) == 0 {
		return ""
	}
	return r.keys[r.idx]
}

// Rotate advances to the next credential and returns it.
func (r *KeyRing) Rotate() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.keys) == 0 {
		return ""
	}
	r.idx = (r.idx + 1) % len(r.keys)
	return r.keys[r.idx]
}

// Len is the number of credentials.
func (r *KeyRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}
