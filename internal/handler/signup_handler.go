package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/courtalert/internal/middleware"
	"github.com/hitoshi/courtalert/internal/model"
	"github.com/hitoshi/courtalert/internal/ratelimit"
	"github.com/hitoshi/courtalert/internal/repository"
)

// SignupServiceInterface は登録ハンドラーが必要とするサービスインターフェース。
type SignupServiceInterface interface {
	// Subscribe は購読者を登録または再有効化する。
	Subscribe(ctx context.Context, email, name, abGroup, ip, fingerprint string) (*model.Subscriber, error)
	// CheckEligibility は登録リクエストがレート制限に該当するかを評価する。
	CheckEligibility(ctx context.Context, ip, fingerprint string) ratelimit.Result
	// GetPreferences は配信停止トークンで配信設定を取得する。
	GetPreferences(ctx context.Context, token string) (*model.Subscriber, error)
	// UpdatePreferences は配信停止トークンで配信設定を部分更新する。
	UpdatePreferences(ctx context.Context, token string, patch repository.PreferencePatch) (*model.Subscriber, error)
	// Unsubscribe は配信停止トークンでアラートを停止する。
	Unsubscribe(ctx context.Context, token string) error
}

// SignupHandler は登録・配信設定・配信停止のHTTPハンドラー。
type SignupHandler struct {
	service SignupServiceInterface
	// unsubscribeRedirectURL は配信停止完了後のリダイレクト先。
	unsubscribeRedirectURL string
}

// NewSignupHandler はSignupHandlerを生成する。
func NewSignupHandler(service SignupServiceInterface, unsubscribeRedirectURL string) *SignupHandler {
	return &SignupHandler{
		service:                service,
		unsubscribeRedirectURL: unsubscribeRedirectURL,
	}
}

// subscribeRequest は登録リクエストのボディ。
type subscribeRequest struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	ABGroup     string `json:"ab_group"`
	Fingerprint string `json:"fingerprint"`
}

// subscribeResponse は登録成功レスポンス。
type subscribeResponse struct {
	Email       string `json:"email"`
	TrialEndsAt string `json:"trial_ends_at"`
}

// checkEligibilityRequest は事前判定リクエストのボディ。
type checkEligibilityRequest struct {
	Fingerprint string `json:"fingerprint"`
}

// checkEligibilityResponse は事前判定レスポンス。
type checkEligibilityResponse struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason"`
}

// preferencesResponse は配信設定のAPIレスポンス。
type preferencesResponse struct {
	Email              string  `json:"email"`
	Name               string  `json:"name"`
	SelectedFacilities []int64 `json:"selected_facilities"`
	SelectedDays       []int   `json:"selected_days"`
	PreferredStartHour int     `json:"preferred_start_hour"`
	PreferredEndHour   int     `json:"preferred_end_hour"`
	AlertHour          int     `json:"alert_hour"`
	AlertsEnabled      bool    `json:"alerts_enabled"`
	TrialEndsAt        string  `json:"trial_ends_at"`
}

// updatePreferencesRequest は配信設定更新リクエストのボディ。
// 省略されたフィールドは変更しない。
type updatePreferencesRequest struct {
	SelectedFacilities *[]int64 `json:"selected_facilities"`
	SelectedDays       *[]int   `json:"selected_days"`
	PreferredStartHour *int     `json:"preferred_start_hour"`
	PreferredEndHour   *int     `json:"preferred_end_hour"`
	AlertHour          *int     `json:"alert_hour"`
}

// Subscribe は購読者の登録を処理する。
// POST /api/alerts/subscribe
func (h *SignupHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	sub, err := h.service.Subscribe(r.Context(), req.Email, req.Name, req.ABGroup, middleware.ClientIP(r), req.Fingerprint)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, subscribeResponse{
		Email:       sub.Email,
		TrialEndsAt: sub.ExtensionExpiresAt.Format(time.RFC3339),
	})
}

// CheckEligibility は登録前のレート制限判定を処理する。
// POST /api/alerts/check-eligibility
// 試行は記録しない。判定のみ行う。
func (h *SignupHandler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	var req checkEligibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	result := h.service.CheckEligibility(r.Context(), middleware.ClientIP(r), req.Fingerprint)

	writeJSON(w, http.StatusOK, checkEligibilityResponse{
		Eligible: result.Eligible,
		Reason:   string(result.Reason),
	})
}

// GetPreferences は配信設定を取得する。
// GET /api/alerts/preferences?token=
func (h *SignupHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	sub, err := h.service.GetPreferences(r.Context(), token)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPreferencesResponse(sub))
}

// UpdatePreferences は配信設定を部分更新する。
// PUT /api/alerts/preferences?token=
func (h *SignupHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	var req updatePreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	sub, err := h.service.UpdatePreferences(r.Context(), token, repository.PreferencePatch{
		SelectedFacilities: req.SelectedFacilities,
		SelectedDays:       req.SelectedDays,
		PreferredStartHour: req.PreferredStartHour,
		PreferredEndHour:   req.PreferredEndHour,
		AlertHour:          req.AlertHour,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPreferencesResponse(sub))
}

// Unsubscribe はメール内リンクからの配信停止を処理し、完了ページへリダイレクトする。
// GET /api/alerts/unsubscribe?token=
func (h *SignupHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	if err := h.service.Unsubscribe(r.Context(), token); err != nil {
		handleServiceError(w, err)
		return
	}

	http.Redirect(w, r, h.unsubscribeRedirectURL, http.StatusFound)
}

// toPreferencesResponse は購読者モデルをAPIレスポンスへ変換する。
func toPreferencesResponse(sub *model.Subscriber) preferencesResponse {
	facilities := sub.SelectedFacilities
	if facilities == nil {
		facilities = []int64{}
	}
	days := sub.SelectedDays
	if days == nil {
		days = []int{}
	}
	return preferencesResponse{
		Email:              sub.Email,
		Name:               sub.Name,
		SelectedFacilities: facilities,
		SelectedDays:       days,
		PreferredStartHour: sub.PreferredStartHour,
		PreferredEndHour:   sub.PreferredEndHour,
		AlertHour:          sub.AlertHour,
		AlertsEnabled:      sub.AlertsEnabled,
		TrialEndsAt:        sub.ExtensionExpiresAt.Format(time.RFC3339),
	}
}
