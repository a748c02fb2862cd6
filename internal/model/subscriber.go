// Package model はドメインモデルを定義する。
package model

import "time"

// Subscriber はアラート配信にオプトインした購読者を表す。
// メールアドレスは小文字に正規化され、一意である。
type Subscriber struct {
	ID    string
	Email string
	Name  string

	// トライアル期間。extension_expires_at を過ぎた購読者には配信しない。
	ExtensionGrantedAt time.Time
	ExtensionExpiresAt time.Time

	// 施設・曜日・時間帯の配信設定。
	// SelectedDays は 0=日曜〜6=土曜（太平洋時間の暦日基準）。
	SelectedFacilities []int64
	SelectedDays       []int
	PreferredStartHour int
	PreferredEndHour   int

	// AlertHour は配信を受け取る太平洋時間の時刻（0〜23の単一時刻）。
	// 1日に複数回の配信はサポートしない。
	AlertHour int

	AlertsEnabled    bool
	UnsubscribeToken string
	UnsubscribedAt   *time.Time

	// 配信統計。
	EmailsSent      int
	LastEmailSentAt *time.Time

	// 分析用。ABGroup は購読者ごとに明示的に保存する（グローバル状態にしない）。
	Source  string
	ABGroup string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive は現時点でアラート配信対象かどうかを返す。
func (s *Subscriber) IsActive(now time.Time) bool {
	return s.AlertsEnabled && s.UnsubscribedAt == nil && now.Before(s.ExtensionExpiresAt)
}

// TrialDaysRemaining はトライアル残日数を返す（切り上げ）。
// 期限切れの場合は0を返す。
func (s *Subscriber) TrialDaysRemaining(now time.Time) int {
	remaining := s.ExtensionExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) > 0 {
		days++
	}
	return days
}
