// Package model はドメインモデルを定義する。
package model

import "time"

// SignupAttempt は登録・延長リクエスト1回ごとの追記専用レコードを表す。
// 成功・ブロックを問わず1リクエストにつき必ず1行記録される。
// レート制限評価器だけがこのログを参照し、更新・削除は行わない。
type SignupAttempt struct {
	ID          string
	IPAddress   string
	Fingerprint string
	Email       string
	Blocked     bool
	CreatedAt   time.Time
}
