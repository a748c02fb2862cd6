package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/courtalert/internal/model"
)

// --- モック ---

type mockAttemptRepo struct {
	countByIPFn          func(ctx context.Context, ip string, since time.Time) (int, error)
	countByFingerprintFn func(ctx context.Context, fingerprint string, since time.Time) (int, error)
	ipCalls              int
	fingerprintCalls     int
}

func (m *mockAttemptRepo) Create(ctx context.Context, attempt *model.SignupAttempt) error {
	return nil
}

func (m *mockAttemptRepo) CountByIPSince(ctx context.Context, ip string, since time.Time) (int, error) {
	m.ipCalls++
	if m.countByIPFn != nil {
		return m.countByIPFn(ctx, ip, since)
	}
	return 0, nil
}

func (m *mockAttemptRepo) CountByFingerprintSince(ctx context.Context, fingerprint string, since time.Time) (int, error) {
	m.fingerprintCalls++
	if m.countByFingerprintFn != nil {
		return m.countByFingerprintFn(ctx, fingerprint, since)
	}
	return 0, nil
}

func newTestEvaluator(repo *mockAttemptRepo) *Evaluator {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewEvaluator(repo, DefaultLimits(), logger)
}

// --- テスト ---

// 試行履歴がなければ許可されることを検証
func TestCheckEligibility_NoHistory_Eligible(t *testing.T) {
	eval := newTestEvaluator(&mockAttemptRepo{})

	result := eval.CheckEligibility(context.Background(), "1.2.3.4", "", time.Now())
	if !result.Eligible {
		t.Fatalf("expected eligible, got reason %s", result.Reason)
	}
	if result.Reason != ReasonNone {
		t.Errorf("Reason = %s, want %s", result.Reason, ReasonNone)
	}
}

// 24時間以内に3件の非ブロック試行がある場合、4件目がip_dailyで拒否されることを検証
func TestCheckEligibility_IPDailyLimit(t *testing.T) {
	now := time.Now()
	repo := &mockAttemptRepo{
		countByIPFn: func(ctx context.Context, ip string, since time.Time) (int, error) {
			// すべてのウィンドウに直近24時間の3件が含まれる
			return 3, nil
		},
	}
	eval := newTestEvaluator(repo)

	result := eval.CheckEligibility(context.Background(), "1.2.3.4", "", now)
	if result.Eligible {
		t.Fatal("expected not eligible")
	}
	// 日次 > 週次 > 月次の順で評価されるため、理由は必ずip_daily
	if result.Reason != ReasonIPDaily {
		t.Errorf("Reason = %s, want %s", result.Reason, ReasonIPDaily)
	}
}

// 日次は下回るが週次上限に達している場合、ip_weeklyで拒否されることを検証
func TestCheckEligibility_IPWeeklyLimit(t *testing.T) {
	now := time.Now()
	repo := &mockAttemptRepo{
		countByIPFn: func(ctx context.Context, ip string, since time.Time) (int, error) {
			if since.After(now.Add(-25 * time.Hour)) {
				return 2, nil // 日次ウィンドウ: 上限未満
			}
			return 4, nil // 週次・月次ウィンドウ
		},
	}
	eval := newTestEvaluator(repo)

	result := eval.CheckEligibility(context.Background(), "1.2.3.4", "", now)
	if result.Eligible {
		t.Fatal("expected not eligible")
	}
	if result.Reason != ReasonIPWeekly {
		t.Errorf("Reason = %s, want %s", result.Reason, ReasonIPWeekly)
	}
}

// 週次は下回るが月次上限に達している場合、ip_monthlyで拒否されることを検証
func TestCheckEligibility_IPMonthlyLimit(t *testing.T) {
	now := time.Now()
	repo := &mockAttemptRepo{
		countByIPFn: func(ctx context.Context, ip string, since time.Time) (int, error) {
			if since.After(now.Add(-25 * time.Hour)) {
				return 2, nil // 日次ウィンドウ: 上限未満
			}
			if since.After(now.Add(-8 * 24 * time.Hour)) {
				return 3, nil // 週次ウィンドウ: 上限未満
			}
			return 5, nil // 月次ウィンドウ
		},
	}
	eval := newTestEvaluator(repo)

	result := eval.CheckEligibility(context.Background(), "1.2.3.4", "", now)
	if result.Eligible {
		t.Fatal("expected not eligible")
	}
	if result.Reason != ReasonIPMonthly {
		t.Errorf("Reason = %s, want %s", result.Reason, ReasonIPMonthly)
	}
}

// IPカウントがゼロでも、同一フィンガープリントの30日以内の試行が1件あれば
// fingerprintで拒否されることを検証
func TestCheckEligibility_FingerprintLimit(t *testing.T) {
	repo := &mockAttemptRepo{
		countByFingerprintFn: func(ctx context.Context, fingerprint string, since time.Time) (int, error) {
			return 1, nil
		},
	}
	eval := newTestEvaluator(repo)

	result := eval.CheckEligibility(context.Background(), "1.2.3.4", "device-abc", time.Now())
	if result.Eligible {
		t.Fatal("expected not eligible")
	}
	if result.Reason != ReasonFingerprint {
		t.Errorf("Reason = %s, want %s", result.Reason, ReasonFingerprint)
	}
}

// フィンガープリント未指定の場合、フィンガープリントのカウントが行われないことを検証
func TestCheckEligibility_NoFingerprint_SkipsCheck(t *testing.T) {
	repo := &mockAttemptRepo{}
	eval := newTestEvaluator(repo)

	eval.CheckEligibility(context.Background(), "1.2.3.4", "", time.Now())
	if repo.fingerprintCalls != 0 {
		t.Errorf("fingerprint checks = %d, want 0", repo.fingerprintCalls)
	}
}

// IPチェックで拒否された場合、フィンガープリントのチェックに進まないことを検証
func TestCheckEligibility_IPBlocked_SkipsFingerprint(t *testing.T) {
	repo := &mockAttemptRepo{
		countByIPFn: func(ctx context.Context, ip string, since time.Time) (int, error) {
			return 10, nil
		},
	}
	eval := newTestEvaluator(repo)

	result := eval.CheckEligibility(context.Background(), "1.2.3.4", "device-abc", time.Now())
	if result.Eligible {
		t.Fatal("expected not eligible")
	}
	if repo.fingerprintCalls != 0 {
		t.Errorf("fingerprint checks = %d, want 0", repo.fingerprintCalls)
	}
}

// ストア障害時にフェイルオープンで許可されることを検証（意図的なポリシー）
func TestCheckEligibility_StoreFailure_FailsOpen(t *testing.T) {
	repo := &mockAttemptRepo{
		countByIPFn: func(ctx context.Context, ip string, since time.Time) (int, error) {
			return 0, errors.New("store unreachable")
		},
	}
	eval := newTestEvaluator(repo)

	result := eval.CheckEligibility(context.Background(), "1.2.3.4", "device-abc", time.Now())
	if !result.Eligible {
		t.Fatal("expected fail-open eligible on store failure")
	}
	if result.Reason != ReasonNone {
		t.Errorf("Reason = %s, want %s", result.Reason, ReasonNone)
	}
}

// フィンガープリント側のストア障害でもフェイルオープンすることを検証
func TestCheckEligibility_FingerprintStoreFailure_FailsOpen(t *testing.T) {
	repo := &mockAttemptRepo{
		countByFingerprintFn: func(ctx context.Context, fingerprint string, since time.Time) (int, error) {
			return 0, errors.New("store unreachable")
		},
	}
	eval := newTestEvaluator(repo)

	result := eval.CheckEligibility(context.Background(), "1.2.3.4", "device-abc", time.Now())
	if !result.Eligible {
		t.Fatal("expected fail-open eligible on store failure")
	}
}
