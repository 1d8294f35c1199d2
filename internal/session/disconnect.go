package session

import (
	"go.uber.org/zap"

	"github.com/SiMista/Onskone-sub000/internal/game"
)

// Disconnected is called by the transport when a connection drops. Nothing
// is destroyed immediately: the player keeps their seat behind a set of
// timers, and only the timers decide what eventually happens.
func (c *Coordinator) Disconnected(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.bindings[connID]
	if !ok {
		return
	}
	delete(c.bindings, connID)

	l, ok := c.reg.Get(b.code)
	if !ok {
		return
	}
	p, ok := l.PlayerByID(b.playerID)
	if !ok {
		return
	}

	code, name := l.Code, p.Name
	c.log.Info("player disconnected", zap.String("lobby", code), zap.String("player", name))

	// Callbacks capture only the key and the stale conn id. They re-fetch
	// everything when they fire: by then the lobby, the player or the
	// binding may be gone, and a reconnect swaps ConnID under them.
	stale := connID

	c.res.ArmInactive(code, name, func() {
		c.onInactiveTimeout(code, name, stale)
	})
	c.res.ArmDisconnect(code, name, func() {
		c.onDisconnectTimeout(code, name, stale)
	})

	if l.Game != nil && l.Game.Status == game.StatusInProgress &&
		l.Game.Current != nil && l.Game.Current.LeaderID == p.ID {
		leaderID := p.ID
		c.res.ArmLeaderSkip(code, func() {
			c.onLeaderSkipTimeout(code, leaderID, stale)
		})
	}
}

func (c *Coordinator) onInactiveTimeout(code, name, staleConn string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.reg.Get(code)
	if !ok {
		return
	}
	p, ok := l.PlayerByName(name)
	if !ok || p.ConnID != staleConn {
		return
	}
	p.IsActive = false
	c.broadcastRoster(l)
	c.log.Info("player marked inactive", zap.String("lobby", code), zap.String("player", name))

	// with one fewer active player the answer set may now be complete
	if l.Game == nil || l.Game.Current == nil || l.Game.Current.LeaderID != p.ID {
		c.advanceIfAllAnswered(l)
	}
}

func (c *Coordinator) onDisconnectTimeout(code, name, staleConn string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.reg.Get(code)
	if !ok {
		return
	}
	p, ok := l.PlayerByName(name)
	if !ok || p.ConnID != staleConn {
		return
	}
	c.log.Info("grace period expired, removing player",
		zap.String("lobby", code), zap.String("player", name))
	c.removeFromLobby(l, p)
}

func (c *Coordinator) onLeaderSkipTimeout(code, leaderID, staleConn string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.reg.Get(code)
	if !ok {
		return
	}
	g := l.Game
	if g == nil || g.Status != game.StatusInProgress || g.Current == nil {
		return
	}
	if g.Current.LeaderID != leaderID {
		return
	}
	p, ok := l.PlayerByID(leaderID)
	if !ok || p.ConnID != staleConn {
		return
	}
	c.advanceAfterLeaderLoss(l)
}
