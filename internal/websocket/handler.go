package websocket

import (
	"context"
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
	"github.com/moneyseed/moneyseed/internal/auth"
	"github.com/moneyseed/moneyseed/internal/family"
	"github.com/moneyseed/moneyseed/internal/model"
)

type FamilyResolver interface {
	Resolve(ctx context.Context, userID int64) (*family.Context, error)
}

// WatchedUsers is the set of users whose changes a caller may see: a child
// sees only itself, a parent sees itself and its children.
func WatchedUsers(fc *family.Context) []int64 {
	ids := []int64{fc.UserID}
	if fc.Role == model.RoleParent {
		ids = append(ids, fc.ChildIDs...)
	}
	return ids
}

// HandleWebSocket upgrades authenticated requests and runs them as hub
// clients watching the caller's family.
func HandleWebSocket(hub *Hub, families FamilyResolver, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserID(r.Context())
		fc, err := families.Resolve(r.Context(), userID)
		if err != nil {
			http.Error(w, "failed to resolve family", http.StatusServiceUnavailable)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // Same-origin app served from LAN or tunnel hosts
		})
		if err != nil {
			logger.Warn("accept", "error", err)
			return
		}

		NewClient(hub, conn, WatchedUsers(fc)).Run(r.Context())
	}
}
