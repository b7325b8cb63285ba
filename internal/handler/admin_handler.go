package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/marketgate/internal/middleware"
	"github.com/hitoshi/marketgate/internal/model"
	"github.com/hitoshi/marketgate/internal/session"
)

// defaultPageLimit は一覧取得でlimitが指定されない場合の件数。
const defaultPageLimit = 10

// maxPageLimit は一覧取得で指定できるlimitの上限。
const maxPageLimit = 100

// AdminActions は管理者向けのアクション。session.Uniformが実装する。
type AdminActions interface {
	GetAllUsers(ctx context.Context, sess *model.Session, p session.ListParams) *session.UserList
	UpdateUserRole(ctx context.Context, sess *model.Session, userID string, role model.Role) *model.User
	UpdateUserStatus(ctx context.Context, sess *model.Session, userID string, isActive bool) bool
	DeleteUser(ctx context.Context, sess *model.Session, userID string) bool
}

// AdminHandler はユーザー管理のHTTPハンドラー。
type AdminHandler struct {
	actions AdminActions
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(actions AdminActions) *AdminHandler {
	return &AdminHandler{actions: actions}
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

type updateStatusRequest struct {
	IsActive *bool `json:"isActive"`
}

// ListUsers はユーザー一覧を返す。
// GET /api/admin/users?page=1&limit=10&search=xxx
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := parsePositiveInt(q.Get("page"), 1)
	if err != nil {
		writeBadRequest(w, "page は正の整数で指定してください")
		return
	}
	limit, err := parsePositiveInt(q.Get("limit"), defaultPageLimit)
	if err != nil || limit > maxPageLimit {
		writeBadRequest(w, "limit は1から100の整数で指定してください")
		return
	}

	sess := middleware.SnapshotFromContext(r.Context()).Session
	list := h.actions.GetAllUsers(r.Context(), sess, session.ListParams{
		Page:   page,
		Limit:  limit,
		Search: q.Get("search"),
	})
	if list == nil {
		writeActionFailed(w, "get_all_users")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// UpdateRole はユーザーのロールを変更する。
// PATCH /api/admin/users/{id}/role
func (h *AdminHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	var req updateRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRoleError(req.Role))
		return
	}

	sess := middleware.SnapshotFromContext(r.Context()).Session
	user := h.actions.UpdateUserRole(r.Context(), sess, userID, role)
	if user == nil {
		writeActionFailed(w, "update_user_role")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateStatus はユーザーを有効化（BAN解除）または無効化（BAN）する。
// PATCH /api/admin/users/{id}/status
func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IsActive == nil {
		writeBadRequest(w, "isActive は必須です")
		return
	}

	sess := middleware.SnapshotFromContext(r.Context()).Session
	if !h.actions.UpdateUserStatus(r.Context(), sess, userID, *req.IsActive) {
		writeActionFailed(w, "update_user_status")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteUser はユーザーを削除する。
// DELETE /api/admin/users/{id}
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	sess := middleware.SnapshotFromContext(r.Context()).Session
	if !h.actions.DeleteUser(r.Context(), sess, userID) {
		writeActionFailed(w, "delete_user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parsePositiveInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
