package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/hitoshi/marketgate/internal/middleware"
	"github.com/hitoshi/marketgate/internal/model"
)

// maxJSONBodySize はJSONリクエストボディの上限。
const maxJSONBodySize = 1 << 20

// writeActionFailed はアクションが失敗した場合の422レスポンスを書き込む。
// 失敗理由はアクション層のログにのみ残る。
func writeActionFailed(w http.ResponseWriter, action string) {
	middleware.WriteErrorResponse(w, http.StatusUnprocessableEntity, model.NewActionFailedError(action))
}

func writeBadRequest(w http.ResponseWriter, reason string) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(reason))
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディをデコードする。失敗時は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeBadRequest(w, "リクエストボディが空です")
		} else {
			writeBadRequest(w, "リクエストボディの解析に失敗しました")
		}
		return false
	}
	return true
}
