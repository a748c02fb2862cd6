package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/courtalert/internal/alert"
	"github.com/hitoshi/courtalert/internal/model"
)

// DispatchServiceInterface はアラートハンドラーが必要とするディスパッチャのインターフェース。
type DispatchServiceInterface interface {
	// RunOnce は現在時刻を基準に1回分のディスパッチを実行する。
	RunOnce(ctx context.Context, now time.Time) (alert.Result, error)
}

// AlertHandler は日次アラート配信トリガーのHTTPハンドラー。
type AlertHandler struct {
	dispatcher DispatchServiceInterface
}

// NewAlertHandler はAlertHandlerを生成する。
func NewAlertHandler(dispatcher DispatchServiceInterface) *AlertHandler {
	return &AlertHandler{dispatcher: dispatcher}
}

// dispatchResponse はディスパッチ結果のAPIレスポンス。
type dispatchResponse struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Dispatch はディスパッチを1回実行する。
// POST /api/alerts/send
// 認証はルーターのcron認証ミドルウェアが行う。
func (h *AlertHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	result, err := h.dispatcher.RunOnce(r.Context(), time.Now())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
			Code:     model.ErrCodeDispatchFailed,
			Message:  "ディスパッチの実行に失敗しました。",
			Category: "alert",
			Action:   "しばらく待ってから再度お試しください。",
		})
		return
	}

	writeJSON(w, http.StatusOK, dispatchResponse{
		Sent:    result.Sent,
		Skipped: result.Skipped,
		Failed:  result.Failed,
	})
}
