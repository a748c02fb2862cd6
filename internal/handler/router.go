package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/courtalert/internal/metrics"
	"github.com/hitoshi/courtalert/internal/middleware"
)

// Pinger はヘルスチェック用のDB疎通確認インターフェース。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CronSecret        string
	Logger            *slog.Logger

	// サービス
	DispatchService DispatchServiceInterface
	SignupService   SignupServiceInterface

	// 配信停止完了後のリダイレクト先
	UnsubscribeRedirectURL string

	// ヘルスチェック
	DB Pinger

	// メトリクス公開。nilの場合は/metricsを公開しない。
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS
//
// /api/alerts/send はcron認証のみで保護し、公開エンドポイントには
// IP単位のレート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	alertHandler := NewAlertHandler(deps.DispatchService)
	signupHandler := NewSignupHandler(deps.SignupService, deps.UnsubscribeRedirectURL)

	// 運用エンドポイント
	r.Get("/health", newHealthHandler(deps.DB))
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	r.Route("/api/alerts", func(r chi.Router) {
		// cronトリガー。シークレット検証はデータアクセスの前に行う。
		r.With(middleware.NewCronAuthMiddleware(deps.CronSecret)).Post("/send", alertHandler.Dispatch)

		// 公開エンドポイント
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.GeneralMiddleware())

			// 登録系は専用のレート制限を追加
			r.With(deps.RateLimiter.SignupMiddleware()).Post("/subscribe", signupHandler.Subscribe)
			r.With(deps.RateLimiter.SignupMiddleware()).Post("/check-eligibility", signupHandler.CheckEligibility)

			r.Get("/preferences", signupHandler.GetPreferences)
			r.Put("/preferences", signupHandler.UpdatePreferences)
			r.Get("/unsubscribe", signupHandler.Unsubscribe)
		})
	})

	return r
}

// newHealthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
func newHealthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	}
}
