// Package model はドメインモデルを定義する。
package model

// Facility はテニスコート施設を表す。
// このコアにとっては読み取り専用の外部データで、ライフサイクルは管理しない。
type Facility struct {
	ID      int64
	Title   string
	Address string
	MapURL  string

	// AvailableIntervals は空き時間帯の生テキスト。
	// 1行につき1区間を「YYYY-MM-DD HH:MM:SS-HH:MM:SS」形式で保持する。
	// 外部フィード由来の不透明なデータとして扱い、パースは availability パッケージが行う。
	AvailableIntervals string
}
