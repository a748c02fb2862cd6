package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/courtalert/internal/alert"
	"github.com/hitoshi/courtalert/internal/middleware"
	"github.com/hitoshi/courtalert/internal/model"
	"github.com/hitoshi/courtalert/internal/ratelimit"
	"github.com/hitoshi/courtalert/internal/repository"
)

const testCronSecret = "cron-secret"

// mockDispatchService はDispatchServiceInterfaceのモック実装。
type mockDispatchService struct {
	runOnceFn func(ctx context.Context, now time.Time) (alert.Result, error)
	calls     int
}

func (m *mockDispatchService) RunOnce(ctx context.Context, now time.Time) (alert.Result, error) {
	m.calls++
	if m.runOnceFn != nil {
		return m.runOnceFn(ctx, now)
	}
	return alert.Result{}, nil
}

// mockSignupService はSignupServiceInterfaceのモック実装。
type mockSignupService struct {
	subscribeFn         func(ctx context.Context, email, name, abGroup, ip, fingerprint string) (*model.Subscriber, error)
	checkEligibilityFn  func(ctx context.Context, ip, fingerprint string) ratelimit.Result
	getPreferencesFn    func(ctx context.Context, token string) (*model.Subscriber, error)
	updatePreferencesFn func(ctx context.Context, token string, patch repository.PreferencePatch) (*model.Subscriber, error)
	unsubscribeFn       func(ctx context.Context, token string) error
}

func (m *mockSignupService) Subscribe(ctx context.Context, email, name, abGroup, ip, fingerprint string) (*model.Subscriber, error) {
	if m.subscribeFn != nil {
		return m.subscribeFn(ctx, email, name, abGroup, ip, fingerprint)
	}
	return testSubscriber(), nil
}

func (m *mockSignupService) CheckEligibility(ctx context.Context, ip, fingerprint string) ratelimit.Result {
	if m.checkEligibilityFn != nil {
		return m.checkEligibilityFn(ctx, ip, fingerprint)
	}
	return ratelimit.Result{Eligible: true, Reason: ratelimit.ReasonNone}
}

func (m *mockSignupService) GetPreferences(ctx context.Context, token string) (*model.Subscriber, error) {
	if m.getPreferencesFn != nil {
		return m.getPreferencesFn(ctx, token)
	}
	return testSubscriber(), nil
}

func (m *mockSignupService) UpdatePreferences(ctx context.Context, token string, patch repository.PreferencePatch) (*model.Subscriber, error) {
	if m.updatePreferencesFn != nil {
		return m.updatePreferencesFn(ctx, token, patch)
	}
	return testSubscriber(), nil
}

func (m *mockSignupService) Unsubscribe(ctx context.Context, token string) error {
	if m.unsubscribeFn != nil {
		return m.unsubscribeFn(ctx, token)
	}
	return nil
}

func testSubscriber() *model.Subscriber {
	return &model.Subscriber{
		ID:                 "sub-1",
		Email:              "tennis@example.com",
		SelectedFacilities: []int64{1, 2},
		SelectedDays:       []int{1, 2, 3, 4, 5},
		PreferredStartHour: 6,
		PreferredEndHour:   21,
		AlertHour:          7,
		AlertsEnabled:      true,
		ExtensionExpiresAt: time.Date(2025, 1, 22, 0, 0, 0, 0, time.UTC),
	}
}

func newTestRouter(dispatch *mockDispatchService, signup *mockSignupService) http.Handler {
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	return NewRouter(&RouterDeps{
		CORSAllowedOrigin:      "https://example.com",
		RateLimiter:            rl,
		CronSecret:             testCronSecret,
		Logger:                 slog.New(slog.NewJSONHandler(io.Discard, nil)),
		DispatchService:        dispatch,
		SignupService:          signup,
		UnsubscribeRedirectURL: "https://example.com/alerts/unsubscribed",
		MetricsGatherer:        prometheus.NewRegistry(),
	})
}

// 正しいcronシークレットでディスパッチが実行されることを検証
func TestDispatchEndpoint_ValidSecret(t *testing.T) {
	dispatch := &mockDispatchService{
		runOnceFn: func(ctx context.Context, now time.Time) (alert.Result, error) {
			return alert.Result{Sent: 3, Skipped: 1, Failed: 0}, nil
		},
	}
	router := newTestRouter(dispatch, &mockSignupService{})

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/send", nil)
	req.Header.Set("Authorization", "Bearer "+testCronSecret)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body dispatchResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Sent != 3 || body.Skipped != 1 || body.Failed != 0 {
		t.Errorf("body = %+v", body)
	}
}

// シークレット不一致で401が返り、ディスパッチが実行されないことを検証
func TestDispatchEndpoint_InvalidSecret(t *testing.T) {
	dispatch := &mockDispatchService{}
	router := newTestRouter(dispatch, &mockSignupService{})

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/send", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if dispatch.calls != 0 {
		t.Error("dispatcher must not run without valid cron secret")
	}
}

// ディスパッチ失敗で500とエラーペイロードが返ることを検証
func TestDispatchEndpoint_SystemicFailure(t *testing.T) {
	dispatch := &mockDispatchService{
		runOnceFn: func(ctx context.Context, now time.Time) (alert.Result, error) {
			return alert.Result{}, errors.New("db down")
		},
	}
	router := newTestRouter(dispatch, &mockSignupService{})

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/send", nil)
	req.Header.Set("Authorization", "Bearer "+testCronSecret)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}

	var body apiErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != model.ErrCodeDispatchFailed {
		t.Errorf("code = %q, want DISPATCH_FAILED", body.Code)
	}
}

// 登録成功で201とトライアル期限が返ることを検証
func TestSubscribeEndpoint_Success(t *testing.T) {
	var gotIP string
	signup := &mockSignupService{
		subscribeFn: func(ctx context.Context, email, name, abGroup, ip, fingerprint string) (*model.Subscriber, error) {
			gotIP = ip
			return testSubscriber(), nil
		},
	}
	router := newTestRouter(&mockDispatchService{}, signup)

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/subscribe",
		strings.NewReader(`{"email":"tennis@example.com","name":"Taro","fingerprint":"fp-1"}`))
	req.Header.Set("X-Forwarded-For", "203.0.113.5")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if gotIP != "203.0.113.5" {
		t.Errorf("ip = %q, want X-Forwarded-For value", gotIP)
	}

	var body subscribeResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Email != "tennis@example.com" || body.TrialEndsAt == "" {
		t.Errorf("body = %+v", body)
	}
}

// 不正なJSONボディで400が返ることを検証
func TestSubscribeEndpoint_InvalidBody(t *testing.T) {
	router := newTestRouter(&mockDispatchService{}, &mockSignupService{})

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/subscribe", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// レート制限エラーが429にマッピングされることを検証
func TestSubscribeEndpoint_RateLimited(t *testing.T) {
	signup := &mockSignupService{
		subscribeFn: func(ctx context.Context, email, name, abGroup, ip, fingerprint string) (*model.Subscriber, error) {
			return nil, model.NewSignupRateLimitedError("ip_daily")
		},
	}
	router := newTestRouter(&mockDispatchService{}, signup)

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/subscribe",
		strings.NewReader(`{"email":"tennis@example.com"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
}

// 事前判定が判定結果を返すことを検証
func TestCheckEligibilityEndpoint(t *testing.T) {
	signup := &mockSignupService{
		checkEligibilityFn: func(ctx context.Context, ip, fingerprint string) ratelimit.Result {
			return ratelimit.Result{Eligible: false, Reason: ratelimit.ReasonFingerprint}
		},
	}
	router := newTestRouter(&mockDispatchService{}, signup)

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/check-eligibility",
		strings.NewReader(`{"fingerprint":"fp-1"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body checkEligibilityResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Eligible || body.Reason != "fingerprint" {
		t.Errorf("body = %+v", body)
	}
}

// 配信設定の取得を検証
func TestGetPreferencesEndpoint(t *testing.T) {
	router := newTestRouter(&mockDispatchService{}, &mockSignupService{})

	req := httptest.NewRequest(http.MethodGet, "/api/alerts/preferences?token=tok-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var body preferencesResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.AlertHour != 7 || len(body.SelectedFacilities) != 2 {
		t.Errorf("body = %+v", body)
	}
}

// トークン欠落で400が返ることを検証
func TestGetPreferencesEndpoint_MissingToken(t *testing.T) {
	router := newTestRouter(&mockDispatchService{}, &mockSignupService{})

	req := httptest.NewRequest(http.MethodGet, "/api/alerts/preferences", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// 無効なトークンで404が返ることを検証
func TestGetPreferencesEndpoint_TokenNotFound(t *testing.T) {
	signup := &mockSignupService{
		getPreferencesFn: func(ctx context.Context, token string) (*model.Subscriber, error) {
			return nil, model.NewTokenNotFoundError()
		},
	}
	router := newTestRouter(&mockDispatchService{}, signup)

	req := httptest.NewRequest(http.MethodGet, "/api/alerts/preferences?token=bad", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// 配信設定の部分更新がサービスへ渡されることを検証
func TestUpdatePreferencesEndpoint(t *testing.T) {
	var gotPatch repository.PreferencePatch
	signup := &mockSignupService{
		updatePreferencesFn: func(ctx context.Context, token string, patch repository.PreferencePatch) (*model.Subscriber, error) {
			gotPatch = patch
			return testSubscriber(), nil
		},
	}
	router := newTestRouter(&mockDispatchService{}, signup)

	req := httptest.NewRequest(http.MethodPut, "/api/alerts/preferences?token=tok-1",
		strings.NewReader(`{"alert_hour":9}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if gotPatch.AlertHour == nil || *gotPatch.AlertHour != 9 {
		t.Error("expected alert_hour patch to reach the service")
	}
	if gotPatch.SelectedDays != nil {
		t.Error("omitted fields must stay nil in the patch")
	}
}

// 配信停止が完了ページへリダイレクトすることを検証
func TestUnsubscribeEndpoint_Redirects(t *testing.T) {
	var gotToken string
	signup := &mockSignupService{
		unsubscribeFn: func(ctx context.Context, token string) error {
			gotToken = token
			return nil
		},
	}
	router := newTestRouter(&mockDispatchService{}, signup)

	req := httptest.NewRequest(http.MethodGet, "/api/alerts/unsubscribe?token=tok-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "https://example.com/alerts/unsubscribed" {
		t.Errorf("Location = %q", loc)
	}
	if gotToken != "tok-1" {
		t.Errorf("token = %q, want tok-1", gotToken)
	}
}

// ヘルスチェックが200を返すことを検証
func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(&mockDispatchService{}, &mockSignupService{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

// /metricsがPrometheus形式で公開されることを検証
func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(&mockDispatchService{}, &mockSignupService{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

// セキュリティヘッダーが全レスポンスに付与されることを検証
func TestRouter_SecurityHeaders(t *testing.T) {
	router := newTestRouter(&mockDispatchService{}, &mockSignupService{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
