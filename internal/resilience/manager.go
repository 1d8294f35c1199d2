// Package resilience absorbs transient disconnects without destroying game
// state: it owns the per-player grace timers, the per-lobby leader-skip
// timer, reconnection locks and kick bans. Timer callbacks must re-fetch
// whatever entity they act on; a timer firing after its owner is gone has to
// detect the absence and no-op.
package resilience

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Delays configures every timeout the manager arms.
type Delays struct {
	// DisconnectGrace is how long a disconnected player keeps their seat.
	DisconnectGrace time.Duration
	// InactiveAfter flips isActive=false, before final removal.
	InactiveAfter time.Duration
	// LeaderSkip is how long a round waits for its disconnected leader.
	LeaderSkip time.Duration
	// KickBlock is how long a kicked name is barred from rejoining.
	KickBlock time.Duration
}

// DefaultDelays matches the production tuning.
func DefaultDelays() Delays {
	return Delays{
		DisconnectGrace: 60 * time.Second,
		InactiveAfter:   15 * time.Second,
		LeaderSkip:      30 * time.Second,
		KickBlock:       5 * time.Minute,
	}
}

type key struct {
	code string
	name string
}

// Manager keys timers and locks per (lobby, player name) and per lobby.
// Arming a timer always cancels the previous same-kind timer for that key,
// so timers for one key never overlap.
type Manager struct {
	mu     sync.Mutex
	delays Delays
	log    *zap.Logger

	disconnect map[key]*time.Timer
	inactive   map[key]*time.Timer
	leaderSkip map[string]*time.Timer

	reconnecting map[key]bool
	kickedUntil  map[key]time.Time
}

func NewManager(delays Delays, log *zap.Logger) *Manager {
	return &Manager{
		delays:       delays,
		log:          log,
		disconnect:   make(map[key]*time.Timer),
		inactive:     make(map[key]*time.Timer),
		leaderSkip:   make(map[string]*time.Timer),
		reconnecting: make(map[key]bool),
		kickedUntil:  make(map[key]time.Time),
	}
}

func arm(timers map[key]*time.Timer, k key, d time.Duration, fn func()) {
	if t, ok := timers[k]; ok {
		t.Stop()
	}
	timers[k] = time.AfterFunc(d, fn)
}

// ArmDisconnect schedules final removal of a disconnected player.
func (m *Manager) ArmDisconnect(code, name string, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	arm(m.disconnect, key{code, name}, m.delays.DisconnectGrace, fn)
	m.log.Debug("armed disconnect timer", zap.String("lobby", code), zap.String("player", name))
}

// ArmInactive schedules the shorter isActive=false flip.
func (m *Manager) ArmInactive(code, name string, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	arm(m.inactive, key{code, name}, m.delays.InactiveAfter, fn)
}

// ArmLeaderSkip schedules skipping the current round if its leader stays
// away. One per lobby; re-arming replaces the previous timer.
func (m *Manager) ArmLeaderSkip(code string, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.leaderSkip[code]; ok {
		t.Stop()
	}
	m.leaderSkip[code] = time.AfterFunc(m.delays.LeaderSkip, fn)
	m.log.Debug("armed leader-skip timer", zap.String("lobby", code))
}

// CancelPlayer stops the disconnect and inactive timers for one player.
func (m *Manager) CancelPlayer(code, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{code, name}
	if t, ok := m.disconnect[k]; ok {
		t.Stop()
		delete(m.disconnect, k)
	}
	if t, ok := m.inactive[k]; ok {
		t.Stop()
		delete(m.inactive, k)
	}
}

// CancelLeaderSkip stops a lobby's pending leader-skip timer.
func (m *Manager) CancelLeaderSkip(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.leaderSkip[code]; ok {
		t.Stop()
		delete(m.leaderSkip, code)
	}
}

// TryReconnectLock claims the reconnection lock for (lobby, name). It
// returns a release func and true on success, or false if another reconnect
// for the same identity is in flight. Callers must defer the release so it
// runs on every exit path.
func (m *Manager) TryReconnectLock(code, name string) (func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{code, name}
	if m.reconnecting[k] {
		return nil, false
	}
	m.reconnecting[k] = true
	var once sync.Once
	release := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.reconnecting, k)
			m.mu.Unlock()
		})
	}
	return release, true
}

// RecordKick bars the name from rejoining this lobby until the block lapses.
func (m *Manager) RecordKick(code, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kickedUntil[key{code, name}] = time.Now().Add(m.delays.KickBlock)
}

// IsKickBlocked reports whether the name is still barred. Lapsed entries are
// dropped on the way out.
func (m *Manager) IsKickBlocked(code, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{code, name}
	until, ok := m.kickedUntil[k]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(m.kickedUntil, k)
		return false
	}
	return true
}

// ReleaseLobby exhaustively drops every timer, lock and ban scoped to a
// deleted lobby so nothing leaks after the lobby itself is gone.
func (m *Manager) ReleaseLobby(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, t := range m.disconnect {
		if k.code == code {
			t.Stop()
			delete(m.disconnect, k)
		}
	}
	for k, t := range m.inactive {
		if k.code == code {
			t.Stop()
			delete(m.inactive, k)
		}
	}
	if t, ok := m.leaderSkip[code]; ok {
		t.Stop()
		delete(m.leaderSkip, code)
	}
	for k := range m.reconnecting {
		if k.code == code {
			delete(m.reconnecting, k)
		}
	}
	for k := range m.kickedUntil {
		if k.code == code {
			delete(m.kickedUntil, k)
		}
	}
	m.log.Debug("released lobby resilience state", zap.String("lobby", code))
}

// PendingTimers reports how many timers are armed for a lobby. Test hook.
func (m *Manager) PendingTimers(code string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.disconnect {
		if k.code == code {
			n++
		}
	}
	for k := range m.inactive {
		if k.code == code {
			n++
		}
	}
	if _, ok := m.leaderSkip[code]; ok {
		n++
	}
	return n
}
