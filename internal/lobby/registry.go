package lobby

import (
	"crypto/rand"
	"errors"
	"math/big"
	"sync"
)

var ErrLobbyNotFound = errors.New("lobby not found")

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const codeLength = 6

// GenerateCode produces a 6-char code, each character drawn uniformly via
// crypto/rand.Int.
func GenerateCode() (string, error) {
	code := make([]byte, codeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = codeCharset[n.Int64()]
	}
	return string(code), nil
}

// Registry owns every live lobby, keyed by code. One instance per process,
// constructor-injected so tests can isolate their own.
type Registry struct {
	mu      sync.RWMutex
	lobbies map[string]*Lobby
}

func NewRegistry() *Registry {
	return &Registry{lobbies: make(map[string]*Lobby)}
}

// Create allocates a lobby under a fresh non-colliding code.
func (r *Registry) Create() (*Lobby, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		code, err := GenerateCode()
		if err != nil {
			return nil, err
		}
		if _, taken := r.lobbies[code]; taken {
			continue
		}
		l := &Lobby{Code: code}
		l.Touch()
		r.lobbies[code] = l
		return l, nil
	}
}

// Get looks a lobby up by code.
func (r *Registry) Get(code string) (*Lobby, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.lobbies[code]
	return l, ok
}

// Len reports how many lobbies are live.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.lobbies)
}

// RemovePlayer takes a player out of a lobby, promoting a new host if
// needed. It returns true iff the lobby became empty and was deleted; the
// caller must then release all resilience state scoped to that code.
func (r *Registry) RemovePlayer(l *Lobby, playerID string) bool {
	l.removePlayer(playerID)
	if len(l.Players) > 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.lobbies, l.Code)
	return true
}
