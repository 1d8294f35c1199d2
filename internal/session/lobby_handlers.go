package session

import (
	"errors"

	"go.uber.org/zap"

	"github.com/SiMista/Onskone-sub000/internal/game"
	"github.com/SiMista/Onskone-sub000/internal/lobby"
	"github.com/SiMista/Onskone-sub000/pkg/types"
)

func (c *Coordinator) createLobby(connID string, p types.CreateLobbyPayload) error {
	if err := lobby.ValidateName(p.PlayerName); err != nil {
		return err
	}
	l, err := c.reg.Create()
	if err != nil {
		return err
	}
	player, err := l.AddPlayer(p.PlayerName, p.AvatarID, connID)
	if err != nil {
		return err
	}
	c.bindings[connID] = binding{code: l.Code, playerID: player.ID}
	c.msgr.Join(connID, l.Code)
	c.msgr.Send(connID, types.EvtLobbyCreated, types.LobbyCreatedPayload{
		LobbyCode: l.Code,
		Player:    playerView(player),
	})
	c.log.Info("lobby created", zap.String("lobby", l.Code), zap.String("host", player.Name))
	return nil
}

func (c *Coordinator) joinLobby(connID string, p types.JoinLobbyPayload) error {
	l, err := c.lobbyByCode(p.LobbyCode)
	if err != nil {
		return err
	}
	if c.res.IsKickBlocked(l.Code, p.PlayerName) {
		return errKickBlocked
	}
	if l.Game != nil && l.Game.Status == game.StatusInProgress {
		return lobby.ErrGameInProgress
	}
	player, err := l.AddPlayer(p.PlayerName, p.AvatarID, connID)
	if errors.Is(err, lobby.ErrNameTaken) {
		c.msgr.Send(connID, types.EvtNameExists, types.NameCheckPayload{PlayerName: p.PlayerName})
		return err
	}
	if err != nil {
		return err
	}
	c.msgr.Send(connID, types.EvtNameValid, types.NameCheckPayload{PlayerName: p.PlayerName})

	c.bindings[connID] = binding{code: l.Code, playerID: player.ID}
	c.msgr.Join(connID, l.Code)
	c.msgr.Send(connID, types.EvtJoinedLobby, types.JoinedLobbyPayload{
		LobbyCode: l.Code,
		Player:    playerView(player),
		Players:   rosterViews(l),
	})
	c.broadcastRoster(l)
	return nil
}

func (c *Coordinator) leaveLobby(connID string, p types.LeaveLobbyPayload) error {
	l, err := c.lobbyByCode(p.LobbyCode)
	if err != nil {
		return err
	}
	actor, err := c.actor(connID, l)
	if err != nil {
		return err
	}
	if actor.ID != p.PlayerID {
		return errNotYou
	}
	c.removeFromLobby(l, actor)
	return nil
}

func (c *Coordinator) kickPlayer(connID string, p types.KickPlayerPayload) error {
	l, err := c.lobbyByCode(p.LobbyCode)
	if err != nil {
		return err
	}
	actor, err := c.actor(connID, l)
	if err != nil {
		return err
	}
	if !actor.IsHost {
		return errNotHost
	}
	target, ok := l.PlayerByID(p.PlayerID)
	if !ok {
		return lobby.ErrPlayerNotFound
	}
	c.res.RecordKick(l.Code, target.Name)
	c.msgr.Send(target.ConnID, types.EvtKicked, types.KickedPayload{LobbyCode: l.Code})
	c.removeFromLobby(l, target)
	c.log.Info("player kicked",
		zap.String("lobby", l.Code),
		zap.String("player", target.Name))
	return nil
}

func (c *Coordinator) promotePlayer(connID string, p types.PromotePlayerPayload) error {
	l, err := c.lobbyByCode(p.LobbyCode)
	if err != nil {
		return err
	}
	actor, err := c.actor(connID, l)
	if err != nil {
		return err
	}
	if !actor.IsHost {
		return errNotHost
	}
	target, ok := l.PlayerByID(p.PlayerID)
	if !ok {
		return lobby.ErrPlayerNotFound
	}
	if target.ID == actor.ID {
		return nil
	}
	actor.IsHost = false
	target.IsHost = true
	c.broadcastRoster(l)
	return nil
}

// removeFromLobby is the single removal path for leave, kick and grace
// expiry: it cancels the player's timers, unbinds the connection, keeps the
// host invariant, and tears down all per-lobby state when the last player
// goes. A second call for the same player finds nothing and does nothing.
func (c *Coordinator) removeFromLobby(l *lobby.Lobby, p *lobby.Player) {
	wasLeader := false
	if l.Game != nil && l.Game.Status == game.StatusInProgress && l.Game.Current != nil {
		wasLeader = l.Game.Current.LeaderID == p.ID
	}

	c.res.CancelPlayer(l.Code, p.Name)
	delete(c.bindings, p.ConnID)
	c.msgr.Leave(p.ConnID, l.Code)

	deleted := c.reg.RemovePlayer(l, p.ID)
	if deleted {
		c.res.ReleaseLobby(l.Code)
		c.msgr.CloseRoom(l.Code)
		c.log.Info("lobby deleted", zap.String("lobby", l.Code))
		return
	}

	c.broadcastRoster(l)
	if wasLeader {
		c.res.CancelLeaderSkip(l.Code)
		c.advanceAfterLeaderLoss(l)
		return
	}
	c.advanceIfAllAnswered(l)
}
