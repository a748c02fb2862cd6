package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/courtalert/internal/alert"
	"github.com/hitoshi/courtalert/internal/config"
	"github.com/hitoshi/courtalert/internal/database"
	"github.com/hitoshi/courtalert/internal/handler"
	"github.com/hitoshi/courtalert/internal/logger"
	"github.com/hitoshi/courtalert/internal/mailer"
	"github.com/hitoshi/courtalert/internal/metrics"
	"github.com/hitoshi/courtalert/internal/middleware"
	"github.com/hitoshi/courtalert/internal/ratelimit"
	"github.com/hitoshi/courtalert/internal/repository"
	"github.com/hitoshi/courtalert/internal/security"
	"github.com/hitoshi/courtalert/internal/signup"
	"github.com/hitoshi/courtalert/internal/worker/dispatch"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// buildTransport はSMTPトランスポートを構築する。
func buildTransport(cfg *config.Config) (*mailer.SMTPTransport, error) {
	transport, err := mailer.NewSMTPTransport(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build mail transport: %w", err)
	}
	return transport, nil
}

// buildDispatcher はディスパッチャとその依存関係をワイヤリングする。
// serveモード（HTTPトリガー）とworkerモード（定期実行）の両方が使う。
func buildDispatcher(cfg *config.Config, db *sql.DB, transport mailer.Transport, collector metrics.MetricsCollector) *alert.Dispatcher {
	return alert.NewDispatcher(
		repository.NewPostgresSubscriberRepo(db),
		repository.NewPostgresFacilityRepo(db),
		repository.NewPostgresSendLogRepo(db),
		transport,
		collector,
		slog.Default(),
		alert.Config{
			BaseURL:       cfg.BaseURL,
			FromEmail:     cfg.FromEmail,
			MaxConcurrent: cfg.DispatchMaxConcurrent,
			Location:      cfg.SchedulingLocation(),
		},
	)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. リポジトリの初期化
	subscriberRepo := repository.NewPostgresSubscriberRepo(db)
	sendLogRepo := repository.NewPostgresSendLogRepo(db)
	attemptRepo := repository.NewPostgresSignupAttemptRepo(db)

	// 4. メールトランスポートとディスパッチャの構築
	transport, err := buildTransport(cfg)
	if err != nil {
		return err
	}
	dispatcher := buildDispatcher(cfg, db, transport, collector)

	// 5. 登録サービスの構築
	evaluator := ratelimit.NewEvaluator(attemptRepo, ratelimit.Limits{
		IPDaily:     cfg.SignupIPDailyLimit,
		IPWeekly:    cfg.SignupIPWeeklyLimit,
		IPMonthly:   cfg.SignupIPMonthlyLimit,
		Fingerprint: cfg.SignupFingerprintLimit,
	}, slog.Default())

	signupService := signup.NewService(
		subscriberRepo, sendLogRepo, attemptRepo, evaluator,
		transport, security.NewNameSanitizer(), collector, slog.Default(),
		signup.Config{
			BaseURL:       cfg.BaseURL,
			FromEmail:     cfg.FromEmail,
			ExtensionDays: cfg.ExtensionDays,
		},
	)

	// 6. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	// configのレート上限はreq/min単位なのでreq/secに変換する
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.SignupRate = rate.Limit(float64(cfg.RateLimitSignup) / 60.0)
	rateLimiterCfg.SignupBurst = cfg.RateLimitSignup
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		CORSAllowedOrigin:      cfg.CORSAllowedOrigin,
		RateLimiter:            rateLimiter,
		CronSecret:             cfg.CronSecret,
		Logger:                 slog.Default(),
		DispatchService:        dispatcher,
		SignupService:          signupService,
		UnsubscribeRedirectURL: cfg.BaseURL + "/alerts/unsubscribed",
		DB:                     db,
		MetricsGatherer:        registry,
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、ディスパッチスケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. ディスパッチャとスケジューラの構築
	transport, err := buildTransport(cfg)
	if err != nil {
		return err
	}
	dispatcher := buildDispatcher(cfg, db, transport, collector)

	scheduler := dispatch.NewScheduler(dispatcher, slog.Default(), cfg.DispatchTimeout)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("dispatch_interval", cfg.DispatchInterval),
		slog.Int("max_concurrent", cfg.DispatchMaxConcurrent),
		slog.String("scheduling_timezone", cfg.SchedulingTimezone),
	)

	// ディスパッチスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.DispatchInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
