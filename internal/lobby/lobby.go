package lobby

import (
	"errors"
	"time"
	"unicode/utf8"

	"github.com/SiMista/Onskone-sub000/internal/game"
)

var ErrNameTaken = errors.New("name already taken in this lobby")
var ErrBadName = errors.New("name must be 2 to 20 characters")
var ErrPlayerNotFound = errors.New("player not found in lobby")
var ErrGameInProgress = errors.New("lobby already has a game in progress")

const (
	minNameLen = 2
	maxNameLen = 20
)

// Lobby is a named group of players plus at most one active game. Player
// order is host-rotation-significant: removing the host promotes the first
// remaining player.
type Lobby struct {
	Code         string
	Players      []*Player
	Game         *game.Game
	LastActivity time.Time
}

// ValidateName checks the 2-20 character display-name rule.
func ValidateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < minNameLen || n > maxNameLen {
		return ErrBadName
	}
	return nil
}

// HasName reports whether the name is taken, case-sensitively.
func (l *Lobby) HasName(name string) bool {
	for _, p := range l.Players {
		if p.Name == name {
			return true
		}
	}
	return false
}

// AddPlayer validates and appends a new player. The first player in becomes
// host.
func (l *Lobby) AddPlayer(name, avatarID, connID string) (*Player, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if l.HasName(name) {
		return nil, ErrNameTaken
	}
	p := newPlayer(name, avatarID, connID)
	if len(l.Players) == 0 {
		p.IsHost = true
	}
	l.Players = append(l.Players, p)
	l.Touch()
	return p, nil
}

// removePlayer drops a player and keeps the exactly-one-host invariant:
// if the host left, the first remaining player is promoted. Removing an
// unknown id is a no-op.
func (l *Lobby) removePlayer(playerID string) bool {
	for i, p := range l.Players {
		if p.ID != playerID {
			continue
		}
		wasHost := p.IsHost
		l.Players = append(l.Players[:i], l.Players[i+1:]...)
		if wasHost && len(l.Players) > 0 {
			l.Players[0].IsHost = true
		}
		l.Touch()
		return true
	}
	return false
}

// PlayerByID looks a player up by stable id.
func (l *Lobby) PlayerByID(id string) (*Player, bool) {
	for _, p := range l.Players {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// PlayerByName looks a player up by display name (case-sensitive).
func (l *Lobby) PlayerByName(name string) (*Player, bool) {
	for _, p := range l.Players {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// PlayerByConn looks a player up by its current connection binding.
func (l *Lobby) PlayerByConn(connID string) (*Player, bool) {
	for _, p := range l.Players {
		if p.ConnID == connID {
			return p, true
		}
	}
	return nil, false
}

// Host returns the current host, if the lobby is non-empty.
func (l *Lobby) Host() (*Player, bool) {
	for _, p := range l.Players {
		if p.IsHost {
			return p, true
		}
	}
	return nil, false
}

// ActiveIDs returns ids of currently active players, in lobby order.
func (l *Lobby) ActiveIDs() []string {
	ids := make([]string, 0, len(l.Players))
	for _, p := range l.Players {
		if p.IsActive {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// ActiveSet returns player id -> isActive for every member.
func (l *Lobby) ActiveSet() map[string]bool {
	m := make(map[string]bool, len(l.Players))
	for _, p := range l.Players {
		m[p.ID] = p.IsActive
	}
	return m
}

// Touch refreshes the activity timestamp.
func (l *Lobby) Touch() {
	l.LastActivity = time.Now()
}
