package llm

import (
	"context"
	"errors"
	"testing"

	"policychat/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keyedCompleter fails with a quota error for the listed keys.
type keyedCompleter struct {
	keys      *KeyRing
	exhausted map[string]bool
	calls     []string
	chunks    []string
	failAfter bool
}

func (k *keyedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	key := k.keys.Current()
	k.calls = append(k.calls, key)
	if k.exhausted[key] {
		return "", &APIError{StatusCode: 429, Body: "quota exceeded"}
	}
	return "answer from " + key, nil
}

func (k *keyedCompleter) Stream(ctx context.Context, prompt string, onChunk func(string) error) error {
	key := k.keys.Current()
	k.calls = append(k.calls, key)
	if k.exhausted[key] && !k.failAfter {
		return &APIError{StatusCode: 429, Body: "quota exceeded"}
	}
	for _, c := range k.chunks {
		if err := onChunk(c); err != nil {
			return err
		}
	}
	if k.exhausted[key] {
		return &APIError{StatusCode: 429, Body: "quota exceeded"}
	}
	return nil
}

func TestIsQuotaError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", &APIError{StatusCode: 429}, true},
		{"resource exhausted body", &APIError{StatusCode: 400, Body: `{"status":"RESOURCE_EXHAUSTED"}`}, true},
		{"wrapped", errors.Join(errors.New("ctx"), &APIError{StatusCode: 429}), true},
		{"plain rate limit text", errors.New("Rate limit reached for requests"), true},
		{"server error", &APIError{StatusCode: 500, Body: "internal"}, false},
		{"other", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsQuotaError(tt.err))
		})
	}
}

func TestKeyRing_RotateWrapsAround(t *testing.T) {
	ring := NewKeyRing("a", "", "b")
	assert.Equal(t, 2, ring.Len())
	assert.Equal(t, "a", ring.Current())
	assert.Equal(t, "b", ring.Rotate())
	assert.Equal(t, "a", ring.Rotate())

	empty := NewKeyRing()
	assert.Equal(t, "", empty.Current())
	assert.Equal(t, "", empty.Rotate())
}

func TestRotatingCompleter_RetriesOnceWithNextKey(t *testing.T) {
	ring := NewKeyRing("k1", "k2")
	inner := &keyedCompleter{keys: ring, exhausted: map[string]bool{"k1": true}}
	rc := NewRotatingCompleter(inner, ring, logger.Nop())

	out, err := rc.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "answer from k2", out)
	assert.Equal(t, []string{"k1", "k2"}, inner.calls)
	assert.Equal(t, "k2", ring.Current())
}

func TestRotatingCompleter_GivesUpAfterOneRetry(t *testing.T) {
	ring := NewKeyRing("k1", "k2", "k3")
	inner := &keyedCompleter{keys: ring, exhausted: map[string]bool{"k1": true, "k2": true}}
	rc := NewRotatingCompleter(inner, ring, logger.Nop())

	_, err := rc.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, IsQuotaError(err))
	assert.Len(t, inner.calls, 2)
}

func TestRotatingCompleter_SingleKeyDoesNotRetry(t *testing.T) {
	ring := NewKeyRing("only")
	inner := &keyedCompleter{keys: ring, exhausted: map[string]bool{"only": true}}
	rc := NewRotatingCompleter(inner, ring, logger.Nop())

	_, err := rc.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.Len(t, inner.calls, 1)
}

func TestRotatingCompleter_StreamRetriesOnlyBeforeFirstChunk(t *testing.T) {
	ring := NewKeyRing("k1", "k2")
	inner := &keyedCompleter{keys: ring, exhausted: map[string]bool{"k1": true}, chunks: []string{"a", "b"}}
	rc := NewRotatingCompleter(inner, ring, logger.Nop())

	var got []string
	err := rc.Stream(context.Background(), "hi", func(c string) error {
		got = append(got, c)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, []string{"k1", "k2"}, inner.calls)

	// quota error after chunks were delivered is surfaced, not retried
	ring2 := NewKeyRing("k1", "k2")
	late := &keyedCompleter{keys: ring2, exhausted: map[string]bool{"k1": true}, chunks: []string{"x"}, failAfter: true}
	rc2 := NewRotatingCompleter(late, ring2, logger.Nop())
	got = nil
	err = rc2.Stream(context.Background(), "hi", func(c string) error {
		got = append(got, c)
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, []string{"x"}, got)
	assert.Len(t, late.calls, 1)
}
