// Package model はドメインモデルを定義する。
package model

import "time"

// EmailType は送信メールの種別を表す。
type EmailType string

const (
	// EmailTypeDailyAlert は日次の空き状況アラートメール。
	EmailTypeDailyAlert EmailType = "daily_alert"
	// EmailTypeWelcome は購読開始時のウェルカムメール。
	EmailTypeWelcome EmailType = "welcome"
	// EmailTypeExpirationReminder はトライアル期限リマインダーメール。
	EmailTypeExpirationReminder EmailType = "expiration_reminder"
)

// SendLog は送信1件ごとの追記専用レコードを表す。
// 冪等性ガードの唯一の真実源（source of truth）となる。
type SendLog struct {
	ID           string
	SubscriberID string
	Email        string
	SentAt       time.Time

	// FacilitiesIncluded はメールに含めた施設ID、SlotsIncluded は合計スロット数。
	FacilitiesIncluded []int64
	SlotsIncluded      int

	EmailType EmailType

	// TransportMessageID はメールトランスポートが返したメッセージID。
	// トランスポートがIDを返さない場合は空。
	TransportMessageID string
}
