// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/courtalert/internal/model"
)

// ErrDuplicateSend は送信ログの一意制約（同一購読者・同一暦日の日次アラート）に
// 違反した場合に返される。並行起動との競合で二重送信が防がれたことを意味し、
// 呼び出し側はスキップとして扱う。
var ErrDuplicateSend = errors.New("daily alert already logged for this subscriber today")

// PreferencePatch は配信設定の部分更新を表す。
// nilフィールドは変更せず、既存の値を維持する。
type PreferencePatch struct {
	SelectedFacilities *[]int64
	SelectedDays       *[]int
	PreferredStartHour *int
	PreferredEndHour   *int
	AlertHour          *int
}

// SubscriberRepository は購読者データの永続化インターフェース。
type SubscriberRepository interface {
	// FindByEmail は正規化済みメールアドレスで購読者を検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Subscriber, error)

	// FindByToken は配信停止トークンで購読者を検索する。見つからない場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.Subscriber, error)

	// Create は購読者を新規作成する。
	Create(ctx context.Context, sub *model.Subscriber) error

	// RenewExtension は再登録時にトライアル期間を更新し、アラートを再有効化する。
	// unsubscribed_atはクリアされ、unsubscribe_tokenは維持される。
	RenewExtension(ctx context.Context, id string, grantedAt, expiresAt time.Time, name, abGroup string) error

	// UpdatePreferences は配信設定を部分更新する。
	UpdatePreferences(ctx context.Context, id string, patch PreferencePatch) error

	// Unsubscribe はアラートを無効化し、配信停止日時を記録する。行は削除しない。
	Unsubscribe(ctx context.Context, id string, at time.Time) error

	// ListDueForAlert は指定時刻・曜日に配信すべき購読者を返す。
	// alerts_enabled かつ 未配信停止 かつ トライアル有効 かつ
	// alert_hour = hour かつ dayOfWeek ∈ selected_days の購読者を対象とする。
	ListDueForAlert(ctx context.Context, hour, dayOfWeek int, now time.Time) ([]*model.Subscriber, error)

	// RecordSend は送信成功後にemails_sentをインクリメントし、last_email_sent_atを更新する。
	RecordSend(ctx context.Context, id string, sentAt time.Time) error
}

// FacilityRepository は施設データの読み取りインターフェース。
// 施設のライフサイクルは外部が管理するため、このコアは読み取りのみ行う。
type FacilityRepository interface {
	// ListAll は全施設を返す。ディスパッチャが1回の起動につき1回だけ呼ぶ。
	ListAll(ctx context.Context) ([]*model.Facility, error)
}

// SendLogRepository は送信ログ（追記専用）の永続化インターフェース。
type SendLogRepository interface {
	// Create は送信ログを追記する。
	// 日次アラートの一意制約に違反した場合はErrDuplicateSendを返す。
	Create(ctx context.Context, log *model.SendLog) error

	// ListSentSince は指定購読者集合のうち、since以降に指定種別のメールを
	// 送信済みの購読者ID集合を返す。
	// 購読者数によらず必ず1回のバッチクエリ（subscriber_id = ANY($1)）で解決する。
	ListSentSince(ctx context.Context, subscriberIDs []string, emailType model.EmailType, since time.Time) (map[string]bool, error)
}

// SignupAttemptRepository は登録試行ログ（追記専用）の永続化インターフェース。
type SignupAttemptRepository interface {
	// Create は登録試行を1件追記する。
	Create(ctx context.Context, attempt *model.SignupAttempt) error

	// CountByIPSince は指定IPのsince以降の非ブロック試行数を返す。
	CountByIPSince(ctx context.Context, ip string, since time.Time) (int, error)

	// CountByFingerprintSince は指定フィンガープリントのsince以降の非ブロック試行数を返す。
	CountByFingerprintSince(ctx context.Context, fingerprint string, since time.Time) (int, error)
}
