package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/SiMista/Onskone-sub000/internal/lobby"
)

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// LobbyQR renders a QR code of the join URL for a live lobby, so a phone
// can scan its way in instead of typing the code.
func LobbyQR(reg *lobby.Registry, publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.ToUpper(chi.URLParam(r, "code"))
		if _, ok := reg.Get(code); !ok {
			http.Error(w, "lobby not found", http.StatusNotFound)
			return
		}
		png, err := qrcode.Encode(publicURL+"/join/"+code, qrcode.Medium, 256)
		if err != nil {
			http.Error(w, "failed to render qr code", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}
