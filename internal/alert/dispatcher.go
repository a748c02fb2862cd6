// Package alert は日次アラートの選定・生成・送信を行うディスパッチャを提供する。
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/courtalert/internal/availability"
	"github.com/hitoshi/courtalert/internal/mailer"
	"github.com/hitoshi/courtalert/internal/metrics"
	"github.com/hitoshi/courtalert/internal/model"
	"github.com/hitoshi/courtalert/internal/repository"
)

// スキップ理由のメトリクスラベル。
const (
	skipReasonAlreadySent = "already_sent"
	skipReasonNoSlots     = "no_slots"
)

// Config はディスパッチャの設定を保持する。
type Config struct {
	BaseURL       string
	FromEmail     string
	MaxConcurrent int
	// Location は配信時刻・曜日・暦日の判定に使うタイムゾーン。
	Location *time.Location
}

// Result は1回のディスパッチの集計結果を表す。
type Result struct {
	Sent    int
	Skipped int
	Failed  int
}

// Dispatcher は配信対象の選定から送信・記録までを1回の起動で実行する。
type Dispatcher struct {
	subscribers repository.SubscriberRepository
	facilities  repository.FacilityRepository
	sendLogs    repository.SendLogRepository
	transport   mailer.Transport
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	config      Config
}

// NewDispatcher はDispatcherを生成する。
func NewDispatcher(
	subscribers repository.SubscriberRepository,
	facilities repository.FacilityRepository,
	sendLogs repository.SendLogRepository,
	transport mailer.Transport,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	config Config,
) *Dispatcher {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 5
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &Dispatcher{
		subscribers: subscribers,
		facilities:  facilities,
		sendLogs:    sendLogs,
		transport:   transport,
		metrics:     collector,
		logger:      logger,
		config:      config,
	}
}

// RunOnce は1回分のディスパッチを実行する。
//
// 配信対象の選定・施設の読み込み・送信済み判定はすべて並行送信の開始前に
// 解決する。送信済み判定は購読者数によらず1回のバッチクエリで行う。
// 選定段階のストア障害は部分送信なしで起動全体を中断する。
// 個別購読者の送信失敗は記録して継続し、当日中の再試行はしない。
func (d *Dispatcher) RunOnce(ctx context.Context, now time.Time) (Result, error) {
	start := time.Now()
	defer func() {
		d.metrics.RecordDispatchLatency(time.Since(start))
	}()

	local := now.In(d.config.Location)
	hour := local.Hour()
	dayOfWeek := int(local.Weekday())
	today := local.Format("2006-01-02")

	subscribers, err := d.subscribers.ListDueForAlert(ctx, hour, dayOfWeek, now)
	if err != nil {
		return Result{}, fmt.Errorf("配信対象の選定に失敗しました: %w", err)
	}
	if len(subscribers) == 0 {
		d.logger.Info("配信対象の購読者がいません",
			slog.Int("hour", hour),
			slog.Int("day_of_week", dayOfWeek),
		)
		return Result{}, nil
	}

	facilityList, err := d.facilities.ListAll(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("施設一覧の取得に失敗しました: %w", err)
	}
	facilityByID := make(map[int64]*model.Facility, len(facilityList))
	for _, f := range facilityList {
		facilityByID[f.ID] = f
	}

	// 当日分の送信済み判定。並行送信の開始前に全購読者分を一括で解決する。
	todayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, d.config.Location)
	ids := make([]string, len(subscribers))
	for i, sub := range subscribers {
		ids[i] = sub.ID
	}
	alreadySent, err := d.sendLogs.ListSentSince(ctx, ids, model.EmailTypeDailyAlert, todayStart)
	if err != nil {
		return Result{}, fmt.Errorf("送信済み判定に失敗しました: %w", err)
	}

	var sent, skipped, failed atomic.Int64

	sem := make(chan struct{}, d.config.MaxConcurrent)
	var wg sync.WaitGroup

	for _, sub := range subscribers {
		if alreadySent[sub.ID] {
			skipped.Add(1)
			d.metrics.RecordAlertSkipped(skipReasonAlreadySent)
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(sub *model.Subscriber) {
			defer wg.Done()
			defer func() { <-sem }()

			switch d.dispatchOne(ctx, sub, facilityByID, today, now) {
			case outcomeSent:
				sent.Add(1)
			case outcomeSkipped:
				skipped.Add(1)
			case outcomeFailed:
				failed.Add(1)
			}
		}(sub)
	}

	wg.Wait()

	result := Result{
		Sent:    int(sent.Load()),
		Skipped: int(skipped.Load()),
		Failed:  int(failed.Load()),
	}

	d.logger.Info("ディスパッチが完了しました",
		slog.Int("sent", result.Sent),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
		slog.Int("eligible", len(subscribers)),
	)

	return result, nil
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeSkipped
	outcomeFailed
)

// dispatchOne は購読者1人分のアラートを生成・送信・記録する。
func (d *Dispatcher) dispatchOne(ctx context.Context, sub *model.Subscriber, facilityByID map[int64]*model.Facility, today string, now time.Time) outcome {
	var included []mailer.FacilityAvailability
	var facilityIDs []int64
	totalSlots := 0

	for _, fid := range sub.SelectedFacilities {
		facility, ok := facilityByID[fid]
		if !ok {
			continue
		}
		slots := availability.GetTodaySlots(facility.AvailableIntervals, sub.PreferredStartHour, sub.PreferredEndHour, today)
		if len(slots) == 0 {
			continue
		}
		included = append(included, mailer.FacilityAvailability{
			ID:      facility.ID,
			Title:   facility.Title,
			Address: facility.Address,
			MapURL:  facility.MapURL,
			Slots:   slots,
		})
		facilityIDs = append(facilityIDs, facility.ID)
		totalSlots += len(slots)
	}

	if len(included) == 0 {
		d.metrics.RecordAlertSkipped(skipReasonNoSlots)
		return outcomeSkipped
	}

	prefsURL := d.config.BaseURL + "/alerts?token=" + sub.UnsubscribeToken
	unsubURL := d.config.BaseURL + "/api/alerts/unsubscribe?token=" + sub.UnsubscribeToken

	email, err := mailer.DailyCourtAlert(included, sub.TrialDaysRemaining(now), prefsURL, unsubURL)
	if err != nil {
		d.logger.Error("アラートメールのレンダリングに失敗しました",
			slog.String("subscriber_id", sub.ID),
			slog.String("error", err.Error()),
		)
		return outcomeFailed
	}

	messageID, err := d.transport.Send(ctx, mailer.Message{
		From:    d.config.FromEmail,
		To:      sub.Email,
		Subject: email.Subject,
		HTML:    email.HTML,
	})
	if err != nil {
		d.metrics.RecordSendFailure()
		d.logger.Error("アラートメールの送信に失敗しました",
			slog.String("subscriber_id", sub.ID),
			slog.String("error", err.Error()),
		)
		return outcomeFailed
	}

	log := &model.SendLog{
		ID:                 uuid.NewString(),
		SubscriberID:       sub.ID,
		Email:              sub.Email,
		SentAt:             now,
		FacilitiesIncluded: facilityIDs,
		SlotsIncluded:      totalSlots,
		EmailType:          model.EmailTypeDailyAlert,
		TransportMessageID: messageID,
	}
	if err := d.sendLogs.Create(ctx, log); err != nil {
		// 一意制約違反は並行起動との競合。二重送信は防がれたのでスキップ扱い。
		if errors.Is(err, repository.ErrDuplicateSend) {
			d.metrics.RecordAlertSkipped(skipReasonAlreadySent)
			return outcomeSkipped
		}
		d.logger.Error("送信ログの記録に失敗しました",
			slog.String("subscriber_id", sub.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := d.subscribers.RecordSend(ctx, sub.ID, now); err != nil {
		d.logger.Error("送信統計の更新に失敗しました",
			slog.String("subscriber_id", sub.ID),
			slog.String("error", err.Error()),
		)
	}

	d.metrics.RecordAlertSent()
	return outcomeSent
}
