package resilience

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func shortDelays() Delays {
	return Delays{
		DisconnectGrace: 20 * time.Millisecond,
		InactiveAfter:   10 * time.Millisecond,
		LeaderSkip:      20 * time.Millisecond,
		KickBlock:       30 * time.Millisecond,
	}
}

func newTestManager() *Manager {
	return NewManager(shortDelays(), zap.NewNop())
}

func TestArmDisconnect_FiresAfterGrace(t *testing.T) {
	m := newTestManager()
	fired := make(chan struct{})

	m.ArmDisconnect("ABC123", "Alice", func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("disconnect timer never fired")
	}
}

func TestArm_ReplacesPreviousTimerForSameKey(t *testing.T) {
	m := newTestManager()
	var first, second atomic.Int32

	m.ArmDisconnect("ABC123", "Alice", func() { first.Add(1) })
	m.ArmDisconnect("ABC123", "Alice", func() { second.Add(1) })

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load(), "replaced timer must not fire")
	assert.Equal(t, int32(1), second.Load())
}

func TestCancelPlayer_StopsBothTimers(t *testing.T) {
	m := newTestManager()
	var fired atomic.Int32

	m.ArmDisconnect("ABC123", "Alice", func() { fired.Add(1) })
	m.ArmInactive("ABC123", "Alice", func() { fired.Add(1) })
	require.Equal(t, 2, m.PendingTimers("ABC123"))

	m.CancelPlayer("ABC123", "Alice")
	assert.Equal(t, 0, m.PendingTimers("ABC123"))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestLeaderSkip_OnePerLobby(t *testing.T) {
	m := newTestManager()
	var first, second atomic.Int32

	m.ArmLeaderSkip("ABC123", func() { first.Add(1) })
	m.ArmLeaderSkip("ABC123", func() { second.Add(1) })
	require.Equal(t, 1, m.PendingTimers("ABC123"))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestCancelLeaderSkip(t *testing.T) {
	m := newTestManager()
	var fired atomic.Int32

	m.ArmLeaderSkip("ABC123", func() { fired.Add(1) })
	m.CancelLeaderSkip("ABC123")

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestTryReconnectLock_Exclusive(t *testing.T) {
	m := newTestManager()

	release, ok := m.TryReconnectLock("ABC123", "Alice")
	require.True(t, ok)

	_, ok = m.TryReconnectLock("ABC123", "Alice")
	assert.False(t, ok, "same identity is locked out while a reconnect runs")

	otherRelease, ok := m.TryReconnectLock("ABC123", "Bob")
	require.True(t, ok, "different identity is unaffected")
	otherRelease()

	release()
	release() // double release is safe

	release2, ok := m.TryReconnectLock("ABC123", "Alice")
	require.True(t, ok, "lock is reusable after release")
	release2()
}

func TestKickBlock_LapsesAfterDelay(t *testing.T) {
	m := newTestManager()

	m.RecordKick("ABC123", "Alice")
	assert.True(t, m.IsKickBlocked("ABC123", "Alice"))
	assert.False(t, m.IsKickBlocked("ABC123", "Bob"))
	assert.False(t, m.IsKickBlocked("XYZ999", "Alice"))

	time.Sleep(50 * time.Millisecond)
	assert.False(t, m.IsKickBlocked("ABC123", "Alice"))
}

func TestReleaseLobby_DropsEverythingForThatLobby(t *testing.T) {
	m := newTestManager()
	var fired atomic.Int32

	m.ArmDisconnect("ABC123", "Alice", func() { fired.Add(1) })
	m.ArmInactive("ABC123", "Bob", func() { fired.Add(1) })
	m.ArmLeaderSkip("ABC123", func() { fired.Add(1) })
	_, ok := m.TryReconnectLock("ABC123", "Carol")
	require.True(t, ok)
	m.RecordKick("ABC123", "Dave")

	m.ArmDisconnect("XYZ999", "Eve", func() {})

	m.ReleaseLobby("ABC123")

	assert.Equal(t, 0, m.PendingTimers("ABC123"))
	assert.Equal(t, 1, m.PendingTimers("XYZ999"), "other lobbies untouched")
	assert.False(t, m.IsKickBlocked("ABC123", "Dave"))

	_, ok = m.TryReconnectLock("ABC123", "Carol")
	assert.True(t, ok, "reconnect lock was released with the lobby")

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}
