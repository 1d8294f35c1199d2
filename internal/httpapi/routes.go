package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/SiMista/Onskone-sub000/internal/lobby"
)

// SetupRoutes builds the router with the websocket endpoint and the small
// HTTP surface around it.
func SetupRoutes(wsHandler http.HandlerFunc, reg *lobby.Registry, publicURL string) http.Handler {
	r := chi.NewRouter()

	r.Get("/ws", wsHandler)
	r.Get("/healthz", Healthz)
	r.Get("/lobbies/{code}/qr.png", LobbyQR(reg, publicURL))
	return r
}
