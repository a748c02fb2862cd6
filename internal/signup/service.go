// Package signup は購読者の登録・配信設定・配信停止のビジネスロジックを提供する。
package signup

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/courtalert/internal/mailer"
	"github.com/hitoshi/courtalert/internal/metrics"
	"github.com/hitoshi/courtalert/internal/model"
	"github.com/hitoshi/courtalert/internal/ratelimit"
	"github.com/hitoshi/courtalert/internal/repository"
	"github.com/hitoshi/courtalert/internal/security"
)

// emailPattern はメールアドレスの形式検証パターン。
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// 新規購読者のデフォルト配信設定。
// 曜日は月〜金、時間帯は6時〜21時、配信時刻は7時。
var (
	defaultSelectedDays = []int{1, 2, 3, 4, 5}
)

const (
	defaultStartHour = 6
	defaultEndHour   = 21
	defaultAlertHour = 7
	defaultSource    = "paywall_extension"
)

// Config はsignupサービスの設定を保持する。
type Config struct {
	BaseURL       string
	FromEmail     string
	ExtensionDays int
}

// Service は登録・配信設定・配信停止の操作を提供する。
type Service struct {
	subscribers repository.SubscriberRepository
	sendLogs    repository.SendLogRepository
	attempts    repository.SignupAttemptRepository
	evaluator   *ratelimit.Evaluator
	transport   mailer.Transport
	sanitizer   security.NameSanitizerService
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	config      Config

	now func() time.Time

	// asyncSend はウェルカムメール送信の起動方法。テストで同期実行に差し替える。
	asyncSend func(f func())
}

// NewService はServiceを生成する。
func NewService(
	subscribers repository.SubscriberRepository,
	sendLogs repository.SendLogRepository,
	attempts repository.SignupAttemptRepository,
	evaluator *ratelimit.Evaluator,
	transport mailer.Transport,
	sanitizer security.NameSanitizerService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	config Config,
) *Service {
	return &Service{
		subscribers: subscribers,
		sendLogs:    sendLogs,
		attempts:    attempts,
		evaluator:   evaluator,
		transport:   transport,
		sanitizer:   sanitizer,
		metrics:     collector,
		logger:      logger,
		config:      config,
		now:         time.Now,
		asyncSend:   func(f func()) { go f() },
	}
}

// CheckEligibility は登録リクエストが許可されるかを評価する。
// 試行の記録は行わない。記録はSubscribeのみが行う。
func (s *Service) CheckEligibility(ctx context.Context, ip, fingerprint string) ratelimit.Result {
	return s.evaluator.CheckEligibility(ctx, ip, fingerprint, s.now())
}

// Subscribe は購読者を登録し、7日間のトライアル期間を付与する。
//
// メールアドレスで冪等なupsertを行う。既存の購読者には新しい期間を付与して
// アラートを再有効化し、配信停止トークンは維持する。成功・ブロックを問わず
// 登録試行を1件記録する。ウェルカムメールは非同期に送信し、失敗しても
// レスポンスをブロックしない。
func (s *Service) Subscribe(ctx context.Context, email, name, abGroup, ip, fingerprint string) (*model.Subscriber, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(email) {
		return nil, model.NewInvalidEmailError()
	}

	now := s.now()
	result := s.evaluator.CheckEligibility(ctx, ip, fingerprint, now)

	s.recordAttempt(ctx, ip, fingerprint, email, !result.Eligible)

	if !result.Eligible {
		s.metrics.RecordSignup(true)
		s.logger.Warn("登録リクエストをレート制限によりブロックしました",
			slog.String("ip", ip),
			slog.String("reason", string(result.Reason)),
		)
		return nil, model.NewSignupRateLimitedError(string(result.Reason))
	}

	name = s.sanitizer.Sanitize(name)
	expiresAt := now.Add(time.Duration(s.config.ExtensionDays) * 24 * time.Hour)

	existing, err := s.subscribers.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("購読者の検索に失敗しました: %w", err)
	}

	var sub *model.Subscriber
	if existing != nil {
		if err := s.subscribers.RenewExtension(ctx, existing.ID, now, expiresAt, name, abGroup); err != nil {
			return nil, fmt.Errorf("トライアル期間の更新に失敗しました: %w", err)
		}
		sub = existing
		sub.ExtensionGrantedAt = now
		sub.ExtensionExpiresAt = expiresAt
		sub.AlertsEnabled = true
		sub.UnsubscribedAt = nil
		if name != "" {
			sub.Name = name
		}
	} else {
		sub = &model.Subscriber{
			ID:                 uuid.NewString(),
			Email:              email,
			Name:               name,
			ExtensionGrantedAt: now,
			ExtensionExpiresAt: expiresAt,
			SelectedDays:       defaultSelectedDays,
			PreferredStartHour: defaultStartHour,
			PreferredEndHour:   defaultEndHour,
			AlertHour:          defaultAlertHour,
			AlertsEnabled:      true,
			UnsubscribeToken:   uuid.NewString(),
			Source:             defaultSource,
			ABGroup:            abGroup,
		}
		if err := s.subscribers.Create(ctx, sub); err != nil {
			return nil, fmt.Errorf("購読者の作成に失敗しました: %w", err)
		}
	}

	s.metrics.RecordSignup(false)

	welcome := *sub
	s.asyncSend(func() {
		s.sendWelcomeEmail(&welcome, expiresAt)
	})

	return sub, nil
}

// GetPreferences は配信停止トークンで購読者の配信設定を取得する。
func (s *Service) GetPreferences(ctx context.Context, token string) (*model.Subscriber, error) {
	sub, err := s.subscribers.FindByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("購読者の検索に失敗しました: %w", err)
	}
	if sub == nil {
		return nil, model.NewTokenNotFoundError()
	}
	return sub, nil
}

// UpdatePreferences は配信停止トークンで購読者の配信設定を部分更新する。
// 時刻は0〜23、曜日は0〜6、開始時刻<=終了時刻を検証する。
func (s *Service) UpdatePreferences(ctx context.Context, token string, patch repository.PreferencePatch) (*model.Subscriber, error) {
	sub, err := s.subscribers.FindByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("購読者の検索に失敗しました: %w", err)
	}
	if sub == nil {
		return nil, model.NewTokenNotFoundError()
	}

	if err := validatePatch(sub, patch); err != nil {
		return nil, err
	}

	if err := s.subscribers.UpdatePreferences(ctx, sub.ID, patch); err != nil {
		return nil, fmt.Errorf("配信設定の更新に失敗しました: %w", err)
	}

	applyPatch(sub, patch)
	return sub, nil
}

// Unsubscribe は配信停止トークンでアラートを停止する。行は削除しない。
func (s *Service) Unsubscribe(ctx context.Context, token string) error {
	sub, err := s.subscribers.FindByToken(ctx, token)
	if err != nil {
		return fmt.Errorf("購読者の検索に失敗しました: %w", err)
	}
	if sub == nil {
		return model.NewTokenNotFoundError()
	}

	if err := s.subscribers.Unsubscribe(ctx, sub.ID, s.now()); err != nil {
		return fmt.Errorf("配信停止の記録に失敗しました: %w", err)
	}

	s.logger.Info("購読者が配信停止しました", slog.String("subscriber_id", sub.ID))
	return nil
}

// recordAttempt は登録試行を1件追記する。
// 記録の失敗はログのみに留め、登録フローを止めない。
func (s *Service) recordAttempt(ctx context.Context, ip, fingerprint, email string, blocked bool) {
	attempt := &model.SignupAttempt{
		ID:          uuid.NewString(),
		IPAddress:   ip,
		Fingerprint: fingerprint,
		Email:       email,
		Blocked:     blocked,
		CreatedAt:   s.now(),
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		s.logger.Error("登録試行の記録に失敗しました", slog.String("error", err.Error()))
	}
}

// sendWelcomeEmail はウェルカムメールを送信し、送信ログに記録する。
// リクエストコンテキストから切り離された独立のタイムアウトで実行する。
func (s *Service) sendWelcomeEmail(sub *model.Subscriber, expiresAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	prefsURL := s.config.BaseURL + "/alerts?token=" + sub.UnsubscribeToken
	email, err := mailer.AlertTrialWelcome(sub.Name, prefsURL, expiresAt, s.config.ExtensionDays)
	if err != nil {
		s.logger.Error("ウェルカムメールのレンダリングに失敗しました",
			slog.String("subscriber_id", sub.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	messageID, err := s.transport.Send(ctx, mailer.Message{
		From:    s.config.FromEmail,
		To:      sub.Email,
		Subject: email.Subject,
		HTML:    email.HTML,
	})
	if err != nil {
		s.metrics.RecordSendFailure()
		s.logger.Error("ウェルカムメールの送信に失敗しました",
			slog.String("subscriber_id", sub.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	log := &model.SendLog{
		ID:                 uuid.NewString(),
		SubscriberID:       sub.ID,
		Email:              sub.Email,
		SentAt:             s.now(),
		EmailType:          model.EmailTypeWelcome,
		TransportMessageID: messageID,
	}
	if err := s.sendLogs.Create(ctx, log); err != nil {
		s.logger.Error("ウェルカムメールの送信ログ記録に失敗しました",
			slog.String("subscriber_id", sub.ID),
			slog.String("error", err.Error()),
		)
	}
}

// validatePatch は部分更新後の設定値が有効かを検証する。
// 片方のみ更新される場合は既存の値と組み合わせて検証する。
func validatePatch(sub *model.Subscriber, patch repository.PreferencePatch) error {
	if patch.SelectedDays != nil {
		for _, d := range *patch.SelectedDays {
			if d < 0 || d > 6 {
				return model.NewInvalidPreferenceError("selected_days")
			}
		}
	}

	start := sub.PreferredStartHour
	if patch.PreferredStartHour != nil {
		start = *patch.PreferredStartHour
	}
	end := sub.PreferredEndHour
	if patch.PreferredEndHour != nil {
		end = *patch.PreferredEndHour
	}
	if start < 0 || start > 23 {
		return model.NewInvalidPreferenceError("preferred_start_hour")
	}
	if end < 0 || end > 23 {
		return model.NewInvalidPreferenceError("preferred_end_hour")
	}
	if start > end {
		return model.NewInvalidPreferenceError("preferred_start_hour")
	}

	if patch.AlertHour != nil {
		if *patch.AlertHour < 0 || *patch.AlertHour > 23 {
			return model.NewInvalidPreferenceError("alert_hour")
		}
	}

	return nil
}

// applyPatch は更新後の値をメモリ上の購読者に反映する。
func applyPatch(sub *model.Subscriber, patch repository.PreferencePatch) {
	if patch.SelectedFacilities != nil {
		sub.SelectedFacilities = *patch.SelectedFacilities
	}
	if patch.SelectedDays != nil {
		sub.SelectedDays = *patch.SelectedDays
	}
	if patch.PreferredStartHour != nil {
		sub.PreferredStartHour = *patch.PreferredStartHour
	}
	if patch.PreferredEndHour != nil {
		sub.PreferredEndHour = *patch.PreferredEndHour
	}
	if patch.AlertHour != nil {
		sub.AlertHour = *patch.AlertHour
	}
}
