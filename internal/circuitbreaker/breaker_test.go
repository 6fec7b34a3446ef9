package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStore = errors.New("store down")

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := New(Config{MaxFailures: 3, Timeout: time.Minute})

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, cb.Call(func() error { return errStore }), errStore)
	}
	assert.Equal(t, StateOpen, cb.State())

	// Open circuit short-circuits without invoking fn.
	called := false
	err := cb.Call(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := New(Config{MaxFailures: 3, Timeout: time.Minute})

	require.Error(t, cb.Call(func() error { return errStore }))
	require.Error(t, cb.Call(func() error { return errStore }))
	require.NoError(t, cb.Call(func() error { return nil }))

	// Two more failures after a success must not trip the breaker.
	require.Error(t, cb.Call(func() error { return errStore }))
	require.Error(t, cb.Call(func() error { return errStore }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	cb := New(Config{MaxFailures: 1, Timeout: 10 * time.Millisecond})

	require.Error(t, cb.Call(func() error { return errStore }))
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(15 * time.Millisecond)

	// Probe failure reopens immediately.
	require.Error(t, cb.Call(func() error { return errStore }))
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(15 * time.Millisecond)

	// Probe success closes the circuit again.
	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerReset(t *testing.T) {
	cb := New(Config{MaxFailures: 1, Timeout: time.Minute})

	require.Error(t, cb.Call(func() error { return errStore }))
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Call(func() error { return nil }))
}
