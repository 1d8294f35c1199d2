package lobby

import "github.com/google/uuid"

// Player is a lobby member: stable identity plus a mutable connection
// binding. ConnID changes on reconnect; ID never does.
type Player struct {
	ID       string
	ConnID   string
	Name     string
	AvatarID string
	IsHost   bool
	IsActive bool
}

func newPlayer(name, avatarID, connID string) *Player {
	return &Player{
		ID:       uuid.NewString(),
		ConnID:   connID,
		Name:     name,
		AvatarID: avatarID,
		IsActive: true,
	}
}
