package handler

import (
	"net/http"

	"github.com/hitoshi/marketgate/internal/middleware"
	"github.com/hitoshi/marketgate/internal/model"
	"github.com/hitoshi/marketgate/internal/session"
)

// snapshotResponse はGET /api/sessionのレスポンス。errorはエラーがない場合null。
type snapshotResponse struct {
	User            *model.User `json:"user"`
	Loading         bool        `json:"loading"`
	IsAuthenticated bool        `json:"isAuthenticated"`
	IsAdmin         bool        `json:"isAdmin"`
	IsSuperAdmin    bool        `json:"isSuperAdmin"`
	Error           *string     `json:"error"`
}

func toSnapshotResponse(snap session.Snapshot) snapshotResponse {
	resp := snapshotResponse{
		User:            snap.User,
		Loading:         snap.Loading,
		IsAuthenticated: snap.IsAuthenticated,
		IsAdmin:         snap.IsAdmin(),
		IsSuperAdmin:    snap.IsSuperAdmin(),
	}
	if snap.Error != "" {
		msg := snap.Error
		resp.Error = &msg
	}
	return resp
}

// GetSession は現在のスナップショットを返す。未ログインでも200を返す。
// GET /api/session
func GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toSnapshotResponse(middleware.SnapshotFromContext(r.Context())))
}
