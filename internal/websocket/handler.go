package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/pantry/internal/model"
)

// HandleSession upgrades an authenticated request and streams that user's
// session events. Mount it behind WithAuth.
func HandleSession(hub *Hub, logger *slog.Logger) func(*model.User, http.ResponseWriter, *http.Request) {
	return func(user *model.User, w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, nil)
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}
		defer conn.CloseNow()

		NewClient(hub, conn, user.ID).Run(r.Context())
	}
}
