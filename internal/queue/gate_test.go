package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAdmitWithinCapacity(t *testing.T) {
	g := NewGate(2)
	ok, wake, err := g.Admit("t1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, wake)
	require.Equal(t, 1, g.ActiveCount())
}

func TestAdmitUnbounded(t *testing.T) {
	g := NewGate(0)
	for i := 0; i < 100; i++ {
		ok, _, err := g.Admit("x")
		require.NoError(t, err)
		require.True(t, ok)
	}
}

// TestFIFOActivationOrder models spec S4: capacity=1, T1 starts
// immediately, T2 and T3 queue; cancelling T1 activates T2 before T3.
func TestFIFOActivationOrder(t *testing.T) {
	g := NewGate(1)

	ok1, _, err := g.Admit("T1")
	require.NoError(t, err)
	require.True(t, ok1)

	ok2, wake2, err := g.Admit("T2")
	require.NoError(t, err)
	require.False(t, ok2)

	ok3, wake3, err := g.Admit("T3")
	require.NoError(t, err)
	require.False(t, ok3)

	g.Release("T1")

	select {
	case <-wake2:
	case <-time.After(time.Second):
		t.Fatal("T2 was not woken")
	}
	select {
	case <-wake3:
		t.Fatal("T3 woken before T2 released its slot")
	default:
	}

	g.Release("T2")
	select {
	case <-wake3:
	case <-time.After(time.Second):
		t.Fatal("T3 was not woken after T2 released")
	}
}

func TestReleaseIdempotent(t *testing.T) {
	g := NewGate(1)
	g.Admit("t1")
	g.Release("t1")
	g.Release("t1") // no-op, must not panic or go negative
	require.Equal(t, 0, g.ActiveCount())
}

func TestStopAllFailsAdmitAndWakesWaiters(t *testing.T) {
	g := NewGate(1)
	g.Admit("t1")
	_, wake, err := g.Admit("t2")
	require.NoError(t, err)

	g.StopAll()

	select {
	case <-wake:
	case <-time.After(time.Second):
		t.Fatal("waiter not woken by StopAll")
	}

	_, _, err = g.Admit("t3")
	require.Error(t, err)
}

func TestSharedPairCapacity(t *testing.T) {
	dl, ul := NewSharedPair(1)
	ok, _, err := dl.Admit("d1")
	require.NoError(t, err)
	require.True(t, ok)

	// upload gate shares the same counter, already at capacity.
	ok2, wake, err := ul.Admit("u1")
	require.NoError(t, err)
	require.False(t, ok2)

	dl.Release("d1")
	select {
	case <-wake:
	case <-time.After(time.Second):
		t.Fatal("shared waiter not woken")
	}
	require.Equal(t, 1, ul.ActiveCount())
	require.Equal(t, 1, dl.ActiveCount())
}
