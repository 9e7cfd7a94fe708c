// internal/session/registry_test.go
package session

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestCreateIssuesUniqueCodes(t *testing.T) {
	r := NewRegistry(testLogger())
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		s := r.Create()
		require.Len(t, s.Code, codeLength)
		require.False(t, seen[s.Code], "code %s issued twice", s.Code)
		seen[s.Code] = true

		got, ok := r.Lookup(s.Code)
		require.True(t, ok)
		assert.Same(t, s, got)
	}
	assert.Equal(t, 50, r.Len())
}

func TestLookupMissingCode(t *testing.T) {
	r := NewRegistry(testLogger())
	_, ok := r.Lookup("NOPE42")
	assert.False(t, ok)
}

func TestRemoveIsIdempotent(t *testing.T) {
	r := NewRegistry(testLogger())
	s := r.Create()

	r.Remove(s.Code)
	assert.Equal(t, 0, r.Len())
	r.Remove(s.Code)
	assert.Equal(t, 0, r.Len())
}

func TestRemoveCancelsRunningGame(t *testing.T) {
	r := NewRegistry(testLogger())
	s := r.Create()
	cancelled := false
	s.SetGameCancel(func() { cancelled = true })

	r.Remove(s.Code)
	assert.True(t, cancelled)
}

func TestSweepReapsOnlyEmptySessions(t *testing.T) {
	r := NewRegistry(testLogger())
	empty := r.Create()
	occupied := r.Create()
	_, _, err := occupied.Join("", "zoe")
	require.NoError(t, err)

	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 1, r.Len())

	_, ok := r.Lookup(empty.Code)
	assert.False(t, ok)
	_, ok = r.Lookup(occupied.Code)
	assert.True(t, ok)
}

func TestRemoveIfEmptyKeepsRejoinedSession(t *testing.T) {
	r := NewRegistry(testLogger())
	s := r.Create()
	_, _, err := s.Join("", "zoe")
	require.NoError(t, err)

	// A player joined between the empty signal and its consumption.
	r.removeIfEmpty(s.Code)
	_, ok := r.Lookup(s.Code)
	assert.True(t, ok)
}

func TestRunReapsOnLastLeave(t *testing.T) {
	r := NewRegistry(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx, time.Hour) // Interval long enough that only the signal path fires.

	s := r.Create()
	id, _, err := s.Join("", "zoe")
	require.NoError(t, err)
	s.Leave(id)

	assert.Eventually(t, func() bool {
		_, ok := r.Lookup(s.Code)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestRunSweepsPeriodically(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Create()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx, 10*time.Millisecond)

	assert.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)
}
