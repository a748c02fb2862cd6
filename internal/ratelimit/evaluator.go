// Package ratelimit は登録リクエストに対するローリングウィンドウの
// レート制限評価を提供する。
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/courtalert/internal/repository"
)

// Reason はレート制限の判定理由を表す。
type Reason string

const (
	// ReasonNone は制限に該当しなかったことを示す。
	ReasonNone Reason = "none"
	// ReasonIPDaily はIPの24時間上限超過を示す。
	ReasonIPDaily Reason = "ip_daily"
	// ReasonIPWeekly はIPの7日間上限超過を示す。
	ReasonIPWeekly Reason = "ip_weekly"
	// ReasonIPMonthly はIPの30日間上限超過を示す。
	ReasonIPMonthly Reason = "ip_monthly"
	// ReasonFingerprint はデバイスフィンガープリントの30日間上限超過を示す。
	ReasonFingerprint Reason = "fingerprint"
)

// Result はレート制限評価の結果を表す。
type Result struct {
	Eligible bool
	Reason   Reason
}

// Limits は各ウィンドウの上限値を保持する。
type Limits struct {
	IPDaily     int // 24時間あたりのIP別上限
	IPWeekly    int // 7日間あたりのIP別上限
	IPMonthly   int // 30日間あたりのIP別上限
	Fingerprint int // 30日間あたりのフィンガープリント別上限
}

// DefaultLimits はデフォルトの上限値を返す: 3/日、4/週、5/月、フィンガープリント1/月。
func DefaultLimits() Limits {
	return Limits{
		IPDaily:     3,
		IPWeekly:    4,
		IPMonthly:   5,
		Fingerprint: 1,
	}
}

// Evaluator は登録試行ログを参照してレート制限を評価する。
// 評価自体は読み取り専用で、試行の記録は呼び出し側（signupサービス）が行う。
type Evaluator struct {
	attempts repository.SignupAttemptRepository
	limits   Limits
	logger   *slog.Logger
}

// NewEvaluator はEvaluatorを生成する。
func NewEvaluator(attempts repository.SignupAttemptRepository, limits Limits, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		attempts: attempts,
		limits:   limits,
		logger:   logger,
	}
}

// CheckEligibility は登録リクエストが許可されるかを評価する。
//
// IP別のウィンドウを日次 > 週次 > 月次の順に評価し、最初に違反したものが
// 理由となる。フィンガープリントの確認はIPの全チェック通過後にのみ行う。
//
// ストアへのアクセスに失敗した場合はフェイルオープン（eligible=true）とする。
// 登録フローの可用性を不正対策より優先する意図的なポリシーであり、
// フェイルクローズへ変更してはならない。実際の書き込みパスが再検証を行う。
func (e *Evaluator) CheckEligibility(ctx context.Context, ip, fingerprint string, now time.Time) Result {
	windows := []struct {
		since  time.Time
		limit  int
		reason Reason
	}{
		{now.Add(-24 * time.Hour), e.limits.IPDaily, ReasonIPDaily},
		{now.Add(-7 * 24 * time.Hour), e.limits.IPWeekly, ReasonIPWeekly},
		{now.Add(-30 * 24 * time.Hour), e.limits.IPMonthly, ReasonIPMonthly},
	}

	for _, w := range windows {
		count, err := e.attempts.CountByIPSince(ctx, ip, w.since)
		if err != nil {
			return e.failOpen(err)
		}
		if count >= w.limit {
			return Result{Eligible: false, Reason: w.reason}
		}
	}

	if fingerprint != "" {
		count, err := e.attempts.CountByFingerprintSince(ctx, fingerprint, now.Add(-30*24*time.Hour))
		if err != nil {
			return e.failOpen(err)
		}
		if count >= e.limits.Fingerprint {
			return Result{Eligible: false, Reason: ReasonFingerprint}
		}
	}

	return Result{Eligible: true, Reason: ReasonNone}
}

// failOpen はストア障害時のフェイルオープン結果を返す。
func (e *Evaluator) failOpen(err error) Result {
	e.logger.Error("レート制限の評価に失敗したため許可にフォールバックします",
		slog.String("error", err.Error()),
	)
	return Result{Eligible: true, Reason: ReasonNone}
}
